// Package features implements the stateful preprocessing pipeline that must
// behave identically at training time (fit) and inference time (transform),
// including across a save/load round trip.
package features

import (
	"fmt"
	"math"
)

// Column is one named column of a Frame. A column is either numeric
// (Nums set, NaN marks missing) or categorical (Strs set, "" marks
// missing), never both.
type Column struct {
	Name string
	Nums []float64
	Strs []string
}

// IsNumeric reports whether the column holds numeric cells.
func (c *Column) IsNumeric() bool { return c.Strs == nil }

func (c *Column) len() int {
	if c.IsNumeric() {
		return len(c.Nums)
	}
	return len(c.Strs)
}

func (c *Column) clone() *Column {
	out := &Column{Name: c.Name}
	if c.IsNumeric() {
		out.Nums = append([]float64(nil), c.Nums...)
	} else {
		out.Strs = append([]string(nil), c.Strs...)
	}
	return out
}

// Frame is a small ordered-column table. Pipeline steps take a Frame in and
// produce a new Frame out; no step mutates its input.
type Frame struct {
	cols  []*Column
	index map[string]int
}

func NewFrame() *Frame {
	return &Frame{index: make(map[string]int)}
}

// Rows returns the number of rows (0 for an empty frame).
func (f *Frame) Rows() int {
	if len(f.cols) == 0 {
		return 0
	}
	return f.cols[0].len()
}

// Names returns the column names in order.
func (f *Frame) Names() []string {
	names := make([]string, len(f.cols))
	for i, c := range f.cols {
		names[i] = c.Name
	}
	return names
}

// Col returns the named column, or false when absent.
func (f *Frame) Col(name string) (*Column, bool) {
	i, ok := f.index[name]
	if !ok {
		return nil, false
	}
	return f.cols[i], true
}

// Has reports whether the named column exists.
func (f *Frame) Has(name string) bool {
	_, ok := f.index[name]
	return ok
}

func (f *Frame) add(col *Column) error {
	if _, exists := f.index[col.Name]; exists {
		return fmt.Errorf("column %s already exists", col.Name)
	}
	if len(f.cols) > 0 && col.len() != f.Rows() {
		return fmt.Errorf("column %s has %d rows, frame has %d", col.Name, col.len(), f.Rows())
	}
	f.index[col.Name] = len(f.cols)
	f.cols = append(f.cols, col)
	return nil
}

// AddNumeric appends a numeric column. Use NaN for missing cells.
func (f *Frame) AddNumeric(name string, values []float64) error {
	return f.add(&Column{Name: name, Nums: values})
}

// AddString appends a categorical column. Use "" for missing cells.
func (f *Frame) AddString(name string, values []string) error {
	return f.add(&Column{Name: name, Strs: values})
}

// Clone returns a deep copy of the frame.
func (f *Frame) Clone() *Frame {
	out := NewFrame()
	for _, c := range f.cols {
		out.index[c.Name] = len(out.cols)
		out.cols = append(out.cols, c.clone())
	}
	return out
}

// Drop removes the named column if present.
func (f *Frame) Drop(name string) {
	i, ok := f.index[name]
	if !ok {
		return
	}
	f.cols = append(f.cols[:i], f.cols[i+1:]...)
	delete(f.index, name)
	for j := i; j < len(f.cols); j++ {
		f.index[f.cols[j].Name] = j
	}
}

// Replace swaps an existing column for a new one of the same name,
// preserving its position.
func (f *Frame) Replace(col *Column) error {
	i, ok := f.index[col.Name]
	if !ok {
		return fmt.Errorf("column %s does not exist", col.Name)
	}
	if col.len() != f.cols[i].len() {
		return fmt.Errorf("column %s has %d rows, frame has %d", col.Name, col.len(), f.cols[i].len())
	}
	f.cols[i] = col
	return nil
}

// Matrix materializes the frame as a row-major float64 matrix, in column
// order. Every column must be numeric by the time this is called.
func (f *Frame) Matrix() ([][]float64, error) {
	rows := f.Rows()
	out := make([][]float64, rows)
	for i := range out {
		out[i] = make([]float64, len(f.cols))
	}
	for j, c := range f.cols {
		if !c.IsNumeric() {
			return nil, fmt.Errorf("column %s is not numeric", c.Name)
		}
		for i, v := range c.Nums {
			out[i][j] = v
		}
	}
	return out, nil
}

func isMissing(v float64) bool { return math.IsNaN(v) }
