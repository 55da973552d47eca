// Package model loads registered classifier artifacts under their native
// formats and serves predictions from the currently active model.
package model

import (
	"encoding/json"
	"fmt"
	"math"
	"os"
)

// PredictHandle is the universal capability every loaded model provides.
type PredictHandle interface {
	// Predict returns the class label (0 or 1) for each feature row.
	Predict(features [][]float64) ([]int, error)
}

// ProbaHandle is the optional native capability for per-class probabilities.
type ProbaHandle interface {
	PredictHandle
	// PredictProba returns [P(class 0), P(class 1)] for each feature row.
	PredictProba(features [][]float64) ([][]float64, error)
}

func sigmoid(x float64) float64 {
	return 1.0 / (1.0 + math.Exp(-x))
}

// linearModel is a binary logistic classifier: label 1 when
// sigmoid(intercept + w·x) > 0.5.
type linearModel struct {
	Intercept    float64   `json:"intercept"`
	Coefficients []float64 `json:"coefficients"`
}

func (m *linearModel) score(row []float64) (float64, error) {
	if len(row) != len(m.Coefficients) {
		return 0, fmt.Errorf("expected %d features, got %d", len(m.Coefficients), len(row))
	}
	margin := m.Intercept
	for i, w := range m.Coefficients {
		margin += w * row[i]
	}
	return sigmoid(margin), nil
}

func (m *linearModel) Predict(features [][]float64) ([]int, error) {
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

func (m *linearModel) PredictProba(features [][]float64) ([][]float64, error) {
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

// treeNode is one node of a binary decision tree. Leaf nodes carry a value
// whose meaning depends on the ensemble (margin contribution for boosted
// trees, class-1 probability for bagged ones).
type treeNode struct {
	Leaf      *float64  `json:"leaf,omitempty"`
	Feature   int       `json:"feature,omitempty"`
	Threshold float64   `json:"threshold,omitempty"`
	Left      *treeNode `json:"left,omitempty"`
	Right     *treeNode `json:"right,omitempty"`
}

func (n *treeNode) eval(row []float64) (float64, error) {
	node := n
	for node.Leaf == nil {
		if node.Feature < 0 || node.Feature >= len(row) {
			return 0, fmt.Errorf("tree references feature %d, row has %d", node.Feature, len(row))
		}
		if row[node.Feature] < node.Threshold {
			node = node.Left
		} else {
			node = node.Right
		}
		if node == nil {
			return 0, fmt.Errorf("malformed tree: missing child node")
		}
	}
	return *node.Leaf, nil
}

func (n *treeNode) validate() error {
	if n.Leaf != nil {
		return nil
	}
	if n.Left == nil || n.Right == nil {
		return fmt.Errorf("split node missing children")
	}
	if err := n.Left.validate(); err != nil {
		return err
	}
	return n.Right.validate()
}

// boostedModel is a gradient-boosted tree classifier with a logistic link:
// p = sigmoid(base_score + sum of leaf margins).
type boostedModel struct {
	BaseScore float64     `json:"base_score"`
	Trees     []*treeNode `json:"trees"`
}

func (m *boostedModel) score(row []float64) (float64, error) {
	margin := m.BaseScore
	for _, t := range m.Trees {
		v, err := t.eval(row)
		if err != nil {
			return 0, err
		}
		margin += v
	}
	return sigmoid(margin), nil
}

func (m *boostedModel) Predict(features [][]float64) ([]int, error) {
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

func (m *boostedModel) PredictProba(features [][]float64) ([][]float64, error) {
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

// ensembleModel is a bagged tree ensemble (random-forest style): leaves
// hold class-1 probabilities that are averaged across trees.
type ensembleModel struct {
	Trees []*treeNode `json:"trees"`
}

func (m *ensembleModel) score(row []float64) (float64, error) {
	if len(m.Trees) == 0 {
		return 0, fmt.Errorf("ensemble has no trees")
	}
	var sum float64
	for _, t := range m.Trees {
		v, err := t.eval(row)
		if err != nil {
			return 0, err
		}
		sum += v
	}
	return sum / float64(len(m.Trees)), nil
}

func (m *ensembleModel) Predict(features [][]float64) ([]int, error) {
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

func (m *ensembleModel) PredictProba(features [][]float64) ([][]float64, error) {
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

// universalModel is the predict-only wrapper format written alongside every
// registered model. It embeds exactly one payload and never exposes
// probabilities, so serving works even when no native flavor loads.
type universalModel struct {
	Format string        `json:"format"` // "linear" or "boosted"
	Linear *linearModel  `json:"linear,omitempty"`
	Trees  *boostedModel `json:"trees,omitempty"`
}

func (m *universalModel) Predict(features [][]float64) ([]int, error) {
	switch m.Format {
	case "linear":
		return m.Linear.Predict(features)
	case "boosted":
		return m.Trees.Predict(features)
	default:
		return nil, fmt.Errorf("unknown universal payload format %q", m.Format)
	}
}

func loadJSONModel(path string, out interface{}) error {
	data, err := os.ReadFile(path)
	if err != nil {
		return err
	}
	if err := json.Unmarshal(data, out); err != nil {
		return fmt.Errorf("parse %s: %w", path, err)
	}
	return nil
}
