package features

import (
	"errors"
	"fmt"

	"github.com/rs/zerolog/log"

	"credit-approval-api/internal/cfg"
)

// ErrNotFitted means Transform was called before any fit or load.
var ErrNotFitted = errors.New("feature engineer is not fitted")

// ErrAlreadyFitted means FitTransform was called on an instance that is
// already fitted. Refitting requires a new instance or an explicit Reset.
var ErrAlreadyFitted = errors.New("feature engineer is already fitted: use a new instance or Reset")

// fittedState is the learned parameters of every pipeline step, captured
// exactly once by FitTransform and reused unchanged by every Transform.
type fittedState struct {
	NumImputer   *numericImputer
	CatImputer   *categoricalImputer
	Encoders     map[string]*labelEncoder // label mode only
	OneHot       *oneHotEncoder           // one-hot mode only
	Scaler       *scaler
	FeatureNames []string
}

// Engineer applies the preprocessing pipeline: impute, derive, encode,
// scale, target extraction, in that fixed order for both fit and
// transform. An instance is either unfitted (FitTransform callable) or
// fitted (Transform callable); it transitions exactly once.
//
// Instances are not safe for concurrent use during a fit; after fitting,
// any number of goroutines may call Transform concurrently.
type Engineer struct {
	spec  cfg.FeatureSpec
	state *fittedState
}

func NewEngineer(spec cfg.FeatureSpec) *Engineer {
	return &Engineer{spec: spec}
}

// IsFitted reports whether fitted state is present.
func (e *Engineer) IsFitted() bool { return e.state != nil }

// Reset discards the fitted state, returning the instance to unfitted.
func (e *Engineer) Reset() { e.state = nil }

// FeatureNames returns the final feature order, or nil when unfitted.
func (e *Engineer) FeatureNames() []string {
	if e.state == nil {
		return nil
	}
	return append([]string(nil), e.state.FeatureNames...)
}

// FitTransform fits every pipeline step on the training frame and returns
// the transformed feature matrix, the target vector, and the final feature
// names. The target column must be present.
func (e *Engineer) FitTransform(frame *Frame) ([][]float64, []int, []string, error) {
	if e.state != nil {
		return nil, nil, nil, ErrAlreadyFitted
	}

	work := frame.Clone()
	numCols := append([]string(nil), e.spec.NumericalFeatures...)
	catCols := append([]string(nil), e.spec.CategoricalFeatures...)

	state := &fittedState{}

	// 1. Missing values: statistics computed here, reused verbatim later.
	var err error
	state.NumImputer, err = fitNumericImputer(work, numCols, e.spec.MissingStrategy)
	if err != nil {
		return nil, nil, nil, fmt.Errorf("fit numerical imputer: %w", err)
	}
	state.NumImputer.apply(work)

	state.CatImputer, err = fitCategoricalImputer(work, catCols)
	if err != nil {
		return nil, nil, nil, fmt.Errorf("fit categorical imputer: %w", err)
	}
	state.CatImputer.apply(work)

	// 2. Derived features: stateless, nothing fitted.
	derivedNum, derivedCat := deriveFeatures(work)
	numCols = append(numCols, derivedNum...)
	catCols = append(catCols, derivedCat...)

	// 3. Categorical encoding.
	switch e.spec.EncodingMethod {
	case cfg.EncodingOneHot:
		state.OneHot = fitOneHotEncoder(work, catCols)
		work, err = state.OneHot.apply(work, catCols)
		if err != nil {
			return nil, nil, nil, fmt.Errorf("one-hot encode: %w", err)
		}
	case cfg.EncodingLabel:
		state.Encoders = make(map[string]*labelEncoder)
		for _, name := range catCols {
			col, ok := work.Col(name)
			if !ok {
				continue
			}
			enc := fitLabelEncoder(col)
			encoded, err := enc.encode(name, col)
			if err != nil {
				return nil, nil, nil, fmt.Errorf("label encode %s: %w", name, err)
			}
			if err := work.Replace(encoded); err != nil {
				return nil, nil, nil, err
			}
			state.Encoders[name] = enc
		}
	default:
		return nil, nil, nil, fmt.Errorf("unknown encoding method: %s", e.spec.EncodingMethod)
	}

	// 4. Scaling: one scaler over everything except the target.
	y, err := extractTarget(work, e.spec.Target)
	if err != nil {
		return nil, nil, nil, err
	}
	featFrame := work.Clone()
	featFrame.Drop(e.spec.Target)

	state.Scaler, err = fitScaler(featFrame, e.spec.ScalingMethod)
	if err != nil {
		return nil, nil, nil, fmt.Errorf("fit scaler: %w", err)
	}
	X, err := state.Scaler.apply(featFrame)
	if err != nil {
		return nil, nil, nil, fmt.Errorf("scale features: %w", err)
	}

	state.FeatureNames = featFrame.Names()
	e.state = state

	log.Info().
		Int("rows", len(X)).
		Int("features", len(state.FeatureNames)).
		Str("encoding", e.spec.EncodingMethod).
		Str("scaling", e.spec.ScalingMethod).
		Msg("Feature pipeline fitted")

	return X, y, e.FeatureNames(), nil
}

// Transform applies the fitted pipeline to a new frame and returns the
// feature matrix. The target column is optional and never part of the
// output. Only previously fitted state is used; nothing is recomputed from
// the incoming batch.
func (e *Engineer) Transform(frame *Frame) ([][]float64, error) {
	if e.state == nil {
		return nil, ErrNotFitted
	}

	work := frame.Clone()

	e.state.NumImputer.apply(work)
	e.state.CatImputer.apply(work)

	_, derivedCat := deriveFeatures(work)
	catCols := append(append([]string(nil), e.spec.CategoricalFeatures...), derivedCat...)

	switch {
	case e.state.OneHot != nil:
		var err error
		work, err = e.state.OneHot.apply(work, catCols)
		if err != nil {
			return nil, fmt.Errorf("one-hot encode: %w", err)
		}
	case e.state.Encoders != nil:
		for _, name := range catCols {
			enc, ok := e.state.Encoders[name]
			if !ok {
				continue
			}
			col, ok := work.Col(name)
			if !ok {
				return nil, fmt.Errorf("categorical column %s missing from input", name)
			}
			encoded, err := enc.encode(name, col)
			if err != nil {
				return nil, err
			}
			if err := work.Replace(encoded); err != nil {
				return nil, err
			}
		}
	}

	work.Drop(e.spec.Target)

	X, err := e.state.Scaler.apply(work)
	if err != nil {
		return nil, fmt.Errorf("scale features: %w", err)
	}
	return X, nil
}

// extractTarget pulls the binary target vector out of the frame. The
// feature matrix handed to any model never includes the target.
func extractTarget(frame *Frame, target string) ([]int, error) {
	col, ok := frame.Col(target)
	if !ok {
		return nil, fmt.Errorf("target column %s missing from input", target)
	}
	if !col.IsNumeric() {
		return nil, fmt.Errorf("target column %s is not numeric", target)
	}

	y := make([]int, len(col.Nums))
	for i, v := range col.Nums {
		if isMissing(v) {
			return nil, fmt.Errorf("target column %s has a missing value at row %d", target, i)
		}
		y[i] = int(v)
	}
	return y, nil
}
