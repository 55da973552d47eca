package model

import (
	"context"
	"errors"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"credit-approval-api/internal/registry"
)

// fakeRegistry serves versions and artifacts from local temp dirs and can be
// switched into a failing state to exercise reload behavior.
type fakeRegistry struct {
	versions []registry.Version
	dirs     map[int]string
	fail     bool
}

func (f *fakeRegistry) ListVersions(_ context.Context, _ string) ([]registry.Version, error) {
	if f.fail {
		return nil, errors.New("registry down")
	}
	return f.versions, nil
}

func (f *fakeRegistry) ResolveArtifacts(_ context.Context, _ string, version int) (string, error) {
	if f.fail {
		return "", errors.New("registry down")
	}
	dir, ok := f.dirs[version]
	if !ok {
		return "", errors.New("version not found")
	}
	return dir, nil
}

func newFakeRegistry(t *testing.T) *fakeRegistry {
	t.Helper()
	dir := t.TempDir()
	writeArtifact(t, dir, UniversalArtifact, universalLinear)
	writeArtifact(t, dir, LinearArtifact, `{"intercept": 2.0, "coefficients": [0.0, 0.0]}`)
	return &fakeRegistry{
		versions: []registry.Version{
			{Version: 1, Stage: "Production", RunID: "run-1", CreatedAt: time.Now().UTC()},
		},
		dirs: map[int]string{1: dir},
	}
}

func TestServicePredictBeforeLoad(t *testing.T) {
	svc := NewService(newFakeRegistry(t), "credit", "Production", nil)

	_, err := svc.Predict([][]float64{{0, 0}})
	require.ErrorIs(t, err, ErrModelNotLoaded)

	_, err = svc.PredictProba([][]float64{{0, 0}})
	require.ErrorIs(t, err, ErrModelNotLoaded)

	assert.False(t, svc.Describe().Loaded)
}

func TestServiceLoadAndPredict(t *testing.T) {
	svc := NewService(newFakeRegistry(t), "credit", "Production", nil)

	identity, err := svc.Load(context.Background())
	require.NoError(t, err)
	assert.Equal(t, 1, identity.Version)

	labels, err := svc.Predict([][]float64{{0, 0}})
	require.NoError(t, err)
	assert.Equal(t, []int{1}, labels)

	probs, err := svc.PredictProba([][]float64{{0, 0}})
	require.NoError(t, err)
	require.Len(t, probs, 1)
	assert.InDelta(t, 0.8808, probs[0][1], 1e-3)

	info := svc.Describe()
	assert.True(t, info.Loaded)
	assert.Equal(t, "run-1", info.RunID)
}

func TestServiceReloadFailureKeepsPriorModel(t *testing.T) {
	reg := newFakeRegistry(t)
	svc := NewService(reg, "credit", "Production", nil)

	_, err := svc.Load(context.Background())
	require.NoError(t, err)

	reg.fail = true
	_, err = svc.Reload(context.Background())
	require.Error(t, err)

	// The previous model keeps serving after the failed reload.
	labels, err := svc.Predict([][]float64{{0, 0}})
	require.NoError(t, err)
	assert.Equal(t, []int{1}, labels)
	assert.True(t, svc.Describe().Loaded)
	assert.Equal(t, 1, svc.Describe().Version)
}

func TestServiceReloadPicksNewVersion(t *testing.T) {
	reg := newFakeRegistry(t)
	svc := NewService(reg, "credit", "Production", nil)

	_, err := svc.Load(context.Background())
	require.NoError(t, err)

	dir2 := t.TempDir()
	writeArtifact(t, dir2, UniversalArtifact, `{
  "format": "linear",
  "linear": {"intercept": -2.0, "coefficients": [0.0, 0.0]}
}`)
	reg.versions = append(reg.versions, registry.Version{
		Version: 2, Stage: "Production", RunID: "run-2", CreatedAt: time.Now().UTC(),
	})
	reg.dirs[2] = dir2

	identity, err := svc.Reload(context.Background())
	require.NoError(t, err)
	assert.Equal(t, 2, identity.Version)

	labels, err := svc.Predict([][]float64{{0, 0}})
	require.NoError(t, err)
	assert.Equal(t, []int{0}, labels)

	// Version 2 carries no native flavor: probabilities degrade to nil.
	probs, err := svc.PredictProba([][]float64{{0, 0}})
	require.NoError(t, err)
	assert.Nil(t, probs)
}

func TestServicePredictionErrorWrapped(t *testing.T) {
	svc := NewService(newFakeRegistry(t), "credit", "Production", nil)
	_, err := svc.Load(context.Background())
	require.NoError(t, err)

	// Wrong feature dimension surfaces as a prediction error.
	_, err = svc.Predict([][]float64{{1.0}})
	var predErr *PredictionError
	require.ErrorAs(t, err, &predErr)
}
