// Package engine combines the feature pipeline and the model service into
// a single decision for one raw applicant record.
package engine

import (
	"fmt"
	"math"

	"credit-approval-api/internal/cfg"
	"credit-approval-api/internal/features"
	"credit-approval-api/internal/model"
)

// Decisions for a binary credit-approval prediction. Label 1 means good
// credit, so it maps to approval.
const (
	DecisionApproved = "APPROVED"
	DecisionRejected = "REJECTED"
)

// Record is one raw applicant as decoded from the request body. Values are
// JSON scalars; absent features are imputed by the fitted pipeline.
type Record map[string]interface{}

// Result is the decision for one record. Probability and Confidence are
// nil when the loaded model has no probability support; the label and
// decision are still valid.
type Result struct {
	Label        int      `json:"prediction"`
	Probability  *float64 `json:"probability,omitempty"`
	Confidence   *float64 `json:"confidence,omitempty"`
	Decision     string   `json:"decision"`
	ModelVersion int      `json:"model_version"`
}

// Engine glues transform and predict together. It holds no mutable state
// of its own.
type Engine struct {
	spec     cfg.FeatureSpec
	engineer *features.Engineer
	service  *model.Service
}

func New(spec cfg.FeatureSpec, engineer *features.Engineer, service *model.Service) *Engine {
	return &Engine{spec: spec, engineer: engineer, service: service}
}

// Predict transforms one raw record with the fitted pipeline and runs the
// active model over it. Transform and predict failures propagate; they are
// never converted into a default decision.
func (e *Engine) Predict(record Record) (Result, error) {
	frame, err := e.frameFromRecord(record)
	if err != nil {
		return Result{}, err
	}

	X, err := e.engineer.Transform(frame)
	if err != nil {
		return Result{}, fmt.Errorf("transform record: %w", err)
	}

	labels, err := e.service.Predict(X)
	if err != nil {
		return Result{}, err
	}
	if len(labels) != 1 {
		return Result{}, fmt.Errorf("expected 1 label, got %d", len(labels))
	}

	result := Result{
		Label:        labels[0],
		Decision:     DecisionRejected,
		ModelVersion: e.service.Describe().Version,
	}
	if labels[0] == 1 {
		result.Decision = DecisionApproved
	}

	// Probability is a best-effort enhancement: absent support yields nil
	// fields, never a synthetic 0.0/1.0 pseudo-probability.
	probs, err := e.service.PredictProba(X)
	if err != nil {
		return Result{}, err
	}
	if len(probs) == 1 && len(probs[0]) == 2 {
		p := probs[0][1]
		confidence := math.Max(p, 1-p)
		result.Probability = &p
		result.Confidence = &confidence
	}

	return result, nil
}

// frameFromRecord builds a single-row frame following the feature spec.
// Absent or null features become missing cells for the imputers.
func (e *Engine) frameFromRecord(record Record) (*features.Frame, error) {
	frame := features.NewFrame()

	for _, name := range e.spec.NumericalFeatures {
		value := math.NaN()
		if raw, ok := record[name]; ok && raw != nil {
			switch v := raw.(type) {
			case float64:
				value = v
			case int:
				value = float64(v)
			default:
				return nil, fmt.Errorf("feature %s: expected number, got %T", name, raw)
			}
		}
		if err := frame.AddNumeric(name, []float64{value}); err != nil {
			return nil, err
		}
	}

	for _, name := range e.spec.CategoricalFeatures {
		value := ""
		if raw, ok := record[name]; ok && raw != nil {
			s, ok := raw.(string)
			if !ok {
				return nil, fmt.Errorf("feature %s: expected string, got %T", name, raw)
			}
			value = s
		}
		if err := frame.AddString(name, []string{value}); err != nil {
			return nil, err
		}
	}

	return frame, nil
}
