package model

import (
	"bufio"
	"fmt"
	"os"
	"strconv"
	"strings"
)

// lgbTree is one tree of a LightGBM-style text dump. Internal nodes are
// indexed arrays; a negative child index c refers to leaf -(c)-1.
type lgbTree struct {
	splitFeature []int
	threshold    []float64
	leftChild    []int
	rightChild   []int
	leafValue    []float64
}

func (t *lgbTree) eval(row []float64) (float64, error) {
	if len(t.splitFeature) == 0 {
		if len(t.leafValue) == 0 {
			return 0, fmt.Errorf("empty tree")
		}
		return t.leafValue[0], nil
	}

	node := 0
	for {
		feat := t.splitFeature[node]
		if feat < 0 || feat >= len(row) {
			return 0, fmt.Errorf("tree references feature %d, row has %d", feat, len(row))
		}

		var next int
		if row[feat] <= t.threshold[node] {
			next = t.leftChild[node]
		} else {
			next = t.rightChild[node]
		}

		if next < 0 {
			leaf := -next - 1
			if leaf >= len(t.leafValue) {
				return 0, fmt.Errorf("leaf index %d out of range", leaf)
			}
			return t.leafValue[leaf], nil
		}
		if next >= len(t.splitFeature) {
			return 0, fmt.Errorf("node index %d out of range", next)
		}
		node = next
	}
}

// lgbModel is a boosted binary classifier parsed from the text dump:
// p = sigmoid(sum of per-tree outputs).
type lgbModel struct {
	trees []*lgbTree
}

func (m *lgbModel) score(row []float64) (float64, error) {
	var margin float64
	for _, t := range m.trees {
		v, err := t.eval(row)
		if err != nil {
			return 0, err
		}
		margin += v
	}
	return sigmoid(margin), nil
}

func (m *lgbModel) Predict(features [][]float64) ([]int, error) {
	labels := make([]int, len(features))
	for i, row := range features {
		p, err := m.score(row)
		if err != nil {
			return nil, err
		}
		if p > 0.5 {
			labels[i] = 1
		}
	}
	return labels, nil
}

func (m *lgbModel) PredictProba(features [][]float64) ([][]float64, error) {
	probs := make([][]float64, len(features))
	for i, row := range features {
		p, err := m.score(row)
		if err != nil {
			return nil, err
		}
		probs[i] = []float64{1 - p, p}
	}
	return probs, nil
}

func parseLGBModel(path string) (*lgbModel, error) {
	f, err := os.Open(path)
	if err != nil {
		return nil, err
	}
	defer f.Close()

	m := &lgbModel{}
	var current *lgbTree
	objective := ""

	scanner := bufio.NewScanner(f)
	scanner.Buffer(make([]byte, 0, 64*1024), 4*1024*1024)
	for scanner.Scan() {
		line := strings.TrimSpace(scanner.Text())
		if line == "" {
			continue
		}

		key, value, ok := strings.Cut(line, "=")
		if !ok {
			continue
		}

		switch key {
		case "objective":
			objective = value
		case "Tree":
			if current != nil {
				m.trees = append(m.trees, current)
			}
			current = &lgbTree{}
		case "split_feature":
			if current == nil {
				return nil, fmt.Errorf("%s: split_feature outside tree block", path)
			}
			current.splitFeature, err = parseInts(value)
		case "threshold":
			if current == nil {
				return nil, fmt.Errorf("%s: threshold outside tree block", path)
			}
			current.threshold, err = parseFloats(value)
		case "left_child":
			if current == nil {
				return nil, fmt.Errorf("%s: left_child outside tree block", path)
			}
			current.leftChild, err = parseInts(value)
		case "right_child":
			if current == nil {
				return nil, fmt.Errorf("%s: right_child outside tree block", path)
			}
			current.rightChild, err = parseInts(value)
		case "leaf_value":
			if current == nil {
				return nil, fmt.Errorf("%s: leaf_value outside tree block", path)
			}
			current.leafValue, err = parseFloats(value)
		}
		if err != nil {
			return nil, fmt.Errorf("parse %s: line %q: %w", path, line, err)
		}
	}
	if err := scanner.Err(); err != nil {
		return nil, fmt.Errorf("read %s: %w", path, err)
	}
	if current != nil {
		m.trees = append(m.trees, current)
	}

	if objective != "binary" {
		return nil, fmt.Errorf("%s: unsupported objective %q", path, objective)
	}
	if len(m.trees) == 0 {
		return nil, fmt.Errorf("%s: model has no trees", path)
	}
	for i, t := range m.trees {
		n := len(t.splitFeature)
		if len(t.threshold) != n || len(t.leftChild) != n || len(t.rightChild) != n {
			return nil, fmt.Errorf("%s: tree %d has inconsistent node arrays", path, i)
		}
		if n > 0 && len(t.leafValue) != n+1 {
			return nil, fmt.Errorf("%s: tree %d has %d internal nodes but %d leaves", path, i, n, len(t.leafValue))
		}
	}

	return m, nil
}

func parseInts(s string) ([]int, error) {
	fields := strings.Fields(s)
	out := make([]int, len(fields))
	for i, f := range fields {
		v, err := strconv.Atoi(f)
		if err != nil {
			return nil, err
		}
		out[i] = v
	}
	return out, nil
}

func parseFloats(s string) ([]float64, error) {
	fields := strings.Fields(s)
	out := make([]float64, len(fields))
	for i, f := range fields {
		v, err := strconv.ParseFloat(f, 64)
		if err != nil {
			return nil, err
		}
		out[i] = v
	}
	return out, nil
}
