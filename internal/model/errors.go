package model

import (
	"errors"
	"fmt"

	"credit-approval-api/internal/registry"
)

// ErrModelNotLoaded means Predict was called before any successful load.
var ErrModelNotLoaded = errors.New("model not loaded")

// LoadError wraps a failure to load the universal model artifact. The
// service keeps any previously loaded model when this occurs.
type LoadError struct {
	Identity registry.Identity
	Cause    error
}

func (e *LoadError) Error() string {
	return fmt.Sprintf("load model %s v%d (%s): %v", e.Identity.Name, e.Identity.Version, e.Identity.Stage, e.Cause)
}

func (e *LoadError) Unwrap() error { return e.Cause }

// PredictionError wraps a failure raised by the underlying predict handle.
type PredictionError struct {
	Cause error
}

func (e *PredictionError) Error() string {
	return fmt.Sprintf("prediction failed: %v", e.Cause)
}

func (e *PredictionError) Unwrap() error { return e.Cause }
