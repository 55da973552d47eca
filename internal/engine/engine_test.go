package engine

import (
	"context"
	"encoding/json"
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"credit-approval-api/internal/cfg"
	"credit-approval-api/internal/features"
	"credit-approval-api/internal/model"
	"credit-approval-api/internal/registry"
)

type stubRegistry struct {
	dir string
}

func (s *stubRegistry) ListVersions(_ context.Context, _ string) ([]registry.Version, error) {
	return []registry.Version{
		{Version: 1, Stage: "Production", RunID: "run-1", CreatedAt: time.Now().UTC()},
	}, nil
}

func (s *stubRegistry) ResolveArtifacts(_ context.Context, _ string, _ int) (string, error) {
	return s.dir, nil
}

func testSpec() cfg.FeatureSpec {
	return cfg.FeatureSpec{
		NumericalFeatures:   []string{"age", "annual_income"},
		CategoricalFeatures: []string{"housing_type"},
		Target:              "approved",
		EncodingMethod:      cfg.EncodingOneHot,
		ScalingMethod:       cfg.ScalingStandard,
		MissingStrategy:     cfg.MissingMedian,
	}
}

func fittedEngineer(t *testing.T, spec cfg.FeatureSpec) *features.Engineer {
	t.Helper()
	frame := features.NewFrame()
	require.NoError(t, frame.AddNumeric("age", []float64{25, 40, 60, 30}))
	require.NoError(t, frame.AddNumeric("annual_income", []float64{20000, 50000, 80000, 120000}))
	require.NoError(t, frame.AddString("housing_type", []string{"RENT", "OWN", "OWN", "MORTGAGE"}))
	require.NoError(t, frame.AddNumeric("approved", []float64{0, 1, 1, 1}))

	eng := features.NewEngineer(spec)
	_, _, _, err := eng.FitTransform(frame)
	require.NoError(t, err)
	return eng
}

// writeLinearArtifacts writes a constant classifier whose margin is the
// intercept alone, with or without the native flavor next to the wrapper.
func writeLinearArtifacts(t *testing.T, dir string, intercept float64, width int, withNative bool) {
	t.Helper()
	linear := map[string]interface{}{
		"intercept":    intercept,
		"coefficients": make([]float64, width),
	}
	universal := map[string]interface{}{"format": "linear", "linear": linear}

	data, err := json.Marshal(universal)
	require.NoError(t, err)
	require.NoError(t, os.WriteFile(filepath.Join(dir, model.UniversalArtifact), data, 0o600))

	if withNative {
		data, err = json.Marshal(linear)
		require.NoError(t, err)
		require.NoError(t, os.WriteFile(filepath.Join(dir, model.LinearArtifact), data, 0o600))
	}
}

func loadedService(t *testing.T, engineer *features.Engineer, intercept float64, withNative bool) *model.Service {
	t.Helper()
	dir := t.TempDir()
	writeLinearArtifacts(t, dir, intercept, len(engineer.FeatureNames()), withNative)

	svc := model.NewService(&stubRegistry{dir: dir}, "credit", "Production", nil)
	_, err := svc.Load(context.Background())
	require.NoError(t, err)
	return svc
}

func TestPredictApproval(t *testing.T) {
	spec := testSpec()
	engineer := fittedEngineer(t, spec)
	svc := loadedService(t, engineer, 2.0, true)
	eng := New(spec, engineer, svc)

	result, err := eng.Predict(Record{
		"age":           40.0,
		"annual_income": 50000.0,
		"housing_type":  "OWN",
	})
	require.NoError(t, err)

	assert.Equal(t, 1, result.Label)
	assert.Equal(t, DecisionApproved, result.Decision)
	assert.Equal(t, 1, result.ModelVersion)

	require.NotNil(t, result.Probability)
	require.NotNil(t, result.Confidence)
	assert.InDelta(t, 0.8808, *result.Probability, 1e-3)
	assert.Equal(t, *result.Probability, *result.Confidence)
	assert.GreaterOrEqual(t, *result.Confidence, 0.5)
}

func TestPredictHighIncomeApplicant(t *testing.T) {
	spec := testSpec()
	engineer := fittedEngineer(t, spec)
	svc := loadedService(t, engineer, 2.0, true)
	eng := New(spec, engineer, svc)

	result, err := eng.Predict(Record{
		"age":           45.0,
		"annual_income": 180000.0,
		"housing_type":  "OWN",
	})
	require.NoError(t, err)

	assert.Equal(t, 1, result.Label)
	assert.Equal(t, DecisionApproved, result.Decision)
	require.NotNil(t, result.Confidence)
	assert.GreaterOrEqual(t, *result.Confidence, 0.5)
	assert.LessOrEqual(t, *result.Confidence, 1.0)
}

func TestPredictRejection(t *testing.T) {
	spec := testSpec()
	engineer := fittedEngineer(t, spec)
	svc := loadedService(t, engineer, -2.0, true)
	eng := New(spec, engineer, svc)

	result, err := eng.Predict(Record{
		"age":           40.0,
		"annual_income": 50000.0,
		"housing_type":  "OWN",
	})
	require.NoError(t, err)

	assert.Equal(t, 0, result.Label)
	assert.Equal(t, DecisionRejected, result.Decision)
	require.NotNil(t, result.Confidence)
	assert.InDelta(t, 0.8808, *result.Confidence, 1e-3)
}

func TestPredictWithoutProbabilitySupport(t *testing.T) {
	spec := testSpec()
	engineer := fittedEngineer(t, spec)
	svc := loadedService(t, engineer, 2.0, false)
	eng := New(spec, engineer, svc)

	result, err := eng.Predict(Record{
		"age":           40.0,
		"annual_income": 50000.0,
		"housing_type":  "OWN",
	})
	require.NoError(t, err)

	// Degraded but valid: the label stands, probability fields stay unset.
	assert.Equal(t, 1, result.Label)
	assert.Nil(t, result.Probability)
	assert.Nil(t, result.Confidence)
}

func TestPredictMissingFeaturesAreImputed(t *testing.T) {
	spec := testSpec()
	engineer := fittedEngineer(t, spec)
	svc := loadedService(t, engineer, 2.0, true)
	eng := New(spec, engineer, svc)

	// No features at all: everything is imputed from fit statistics.
	result, err := eng.Predict(Record{})
	require.NoError(t, err)
	assert.Equal(t, DecisionApproved, result.Decision)
}

func TestPredictRejectsWrongTypes(t *testing.T) {
	spec := testSpec()
	engineer := fittedEngineer(t, spec)
	svc := loadedService(t, engineer, 2.0, true)
	eng := New(spec, engineer, svc)

	_, err := eng.Predict(Record{"age": "forty"})
	require.Error(t, err)
	assert.Contains(t, err.Error(), "age")

	_, err = eng.Predict(Record{"housing_type": 7.0})
	require.Error(t, err)
	assert.Contains(t, err.Error(), "housing_type")
}

func TestPredictModelNotLoaded(t *testing.T) {
	spec := testSpec()
	engineer := fittedEngineer(t, spec)
	svc := model.NewService(&stubRegistry{dir: t.TempDir()}, "credit", "Production", nil)
	eng := New(spec, engineer, svc)

	_, err := eng.Predict(Record{"age": 40.0})
	require.ErrorIs(t, err, model.ErrModelNotLoaded)
}
