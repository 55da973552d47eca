package features

import (
	"fmt"
	"sort"
)

// UnknownCategoryError reports a categorical value at transform time that
// was never seen during fit (label-encoding mode only). It is never
// silently coerced to a default code.
type UnknownCategoryError struct {
	Column string
	Value  string
}

func (e *UnknownCategoryError) Error() string {
	return fmt.Sprintf("unknown category %q in column %s", e.Value, e.Column)
}

// labelEncoder assigns integer codes to the sorted distinct values of one
// column at fit time and applies the same table on every transform.
type labelEncoder struct {
	Classes []string `json:"classes"`
}

func fitLabelEncoder(col *Column) *labelEncoder {
	seen := make(map[string]struct{})
	for _, v := range col.Strs {
		seen[v] = struct{}{}
	}
	classes := make([]string, 0, len(seen))
	for v := range seen {
		classes = append(classes, v)
	}
	sort.Strings(classes)
	return &labelEncoder{Classes: classes}
}

func (e *labelEncoder) encode(name string, col *Column) (*Column, error) {
	codes := make(map[string]int, len(e.Classes))
	for i, c := range e.Classes {
		codes[c] = i
	}

	out := make([]float64, len(col.Strs))
	for i, v := range col.Strs {
		code, ok := codes[v]
		if !ok {
			return nil, &UnknownCategoryError{Column: name, Value: v}
		}
		out[i] = float64(code)
	}
	return &Column{Name: name, Nums: out}, nil
}

// oneHotEncoder expands categorical columns into indicator columns. At fit
// it drops the first (sorted) level per column to avoid collinearity and
// records the exact resulting column order. At transform the expansion is
// reconciled against that record: recorded columns absent from the new
// expansion come back all-zero, unrecorded columns are dropped, and the
// final order matches the record exactly.
type oneHotEncoder struct {
	// Levels holds the kept (non-dropped) levels per source column, sorted.
	Levels map[string][]string `json:"levels"`
	// Columns is the full output column order recorded at fit, including
	// passthrough columns and the target.
	Columns []string `json:"columns"`
}

func indicatorName(col, level string) string {
	return col + "_" + level
}

func fitOneHotEncoder(frame *Frame, catCols []string) *oneHotEncoder {
	enc := &oneHotEncoder{Levels: make(map[string][]string)}

	for _, name := range catCols {
		col, ok := frame.Col(name)
		if !ok {
			continue
		}
		seen := make(map[string]struct{})
		for _, v := range col.Strs {
			if v != "" {
				seen[v] = struct{}{}
			}
		}
		levels := make([]string, 0, len(seen))
		for v := range seen {
			levels = append(levels, v)
		}
		sort.Strings(levels)
		if len(levels) > 0 {
			levels = levels[1:] // drop first level
		}
		enc.Levels[name] = levels
	}

	// Record the output order: passthrough columns first, then indicators
	// per source column.
	catSet := make(map[string]struct{}, len(catCols))
	for _, name := range catCols {
		catSet[name] = struct{}{}
	}
	for _, name := range frame.Names() {
		if _, isCat := catSet[name]; !isCat {
			enc.Columns = append(enc.Columns, name)
		}
	}
	for _, name := range catCols {
		for _, level := range enc.Levels[name] {
			enc.Columns = append(enc.Columns, indicatorName(name, level))
		}
	}

	return enc
}

// apply expands the frame and reconciles it against the recorded column
// order. Works identically for the fitting batch and any later batch.
func (e *oneHotEncoder) apply(frame *Frame, catCols []string) (*Frame, error) {
	rows := frame.Rows()

	// Expand every source column we have levels for.
	indicators := make(map[string][]float64)
	for _, name := range catCols {
		col, ok := frame.Col(name)
		for _, level := range e.Levels[name] {
			vals := make([]float64, rows)
			if ok {
				for i, v := range col.Strs {
					if v == level {
						vals[i] = 1
					}
				}
			}
			indicators[indicatorName(name, level)] = vals
		}
	}

	catSet := make(map[string]struct{}, len(catCols))
	for _, name := range catCols {
		catSet[name] = struct{}{}
	}

	out := NewFrame()
	for _, name := range e.Columns {
		if vals, ok := indicators[name]; ok {
			if err := out.AddNumeric(name, vals); err != nil {
				return nil, err
			}
			continue
		}
		col, ok := frame.Col(name)
		if !ok {
			// Recorded column missing from this batch: all-zero.
			if err := out.AddNumeric(name, make([]float64, rows)); err != nil {
				return nil, err
			}
			continue
		}
		if !col.IsNumeric() {
			return nil, fmt.Errorf("recorded passthrough column %s is not numeric", name)
		}
		if err := out.AddNumeric(name, append([]float64(nil), col.Nums...)); err != nil {
			return nil, err
		}
	}

	return out, nil
}
