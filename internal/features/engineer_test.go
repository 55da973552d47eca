package features

import (
	"math"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"credit-approval-api/internal/cfg"
)

func testSpec(encoding string) cfg.FeatureSpec {
	return cfg.FeatureSpec{
		NumericalFeatures:   []string{"age", "annual_income"},
		CategoricalFeatures: []string{"housing_type"},
		Target:              "approved",
		EncodingMethod:      encoding,
		ScalingMethod:       cfg.ScalingStandard,
		MissingStrategy:     cfg.MissingMedian,
	}
}

func trainingFrame(t *testing.T) *Frame {
	t.Helper()
	frame := NewFrame()
	require.NoError(t, frame.AddNumeric("age", []float64{25, 40, 60, 30}))
	require.NoError(t, frame.AddNumeric("annual_income", []float64{20000, 50000, 80000, 120000}))
	require.NoError(t, frame.AddString("housing_type", []string{"RENT", "OWN", "OWN", "MORTGAGE"}))
	require.NoError(t, frame.AddNumeric("approved", []float64{0, 1, 1, 1}))
	return frame
}

func singleRow(t *testing.T, age, income float64, housing string) *Frame {
	t.Helper()
	frame := NewFrame()
	require.NoError(t, frame.AddNumeric("age", []float64{age}))
	require.NoError(t, frame.AddNumeric("annual_income", []float64{income}))
	require.NoError(t, frame.AddString("housing_type", []string{housing}))
	return frame
}

func TestFitTransformOneHot(t *testing.T) {
	eng := NewEngineer(testSpec(cfg.EncodingOneHot))

	X, y, names, err := eng.FitTransform(trainingFrame(t))
	require.NoError(t, err)

	assert.Equal(t, []int{0, 1, 1, 1}, y)
	require.Len(t, X, 4)

	// Raw numericals, then indicators with the first sorted level dropped
	// per source column, in recorded order.
	assert.Equal(t, []string{
		"age", "annual_income",
		"housing_type_OWN", "housing_type_RENT",
		"age_group_middle_age", "age_group_senior", "age_group_young",
		"income_group_low", "income_group_medium", "income_group_very_high",
	}, names)

	for _, row := range X {
		assert.Len(t, row, len(names))
	}
}

func TestTransformMatchesFitOutput(t *testing.T) {
	eng := NewEngineer(testSpec(cfg.EncodingOneHot))

	X, _, _, err := eng.FitTransform(trainingFrame(t))
	require.NoError(t, err)

	// Transforming a training row again reproduces its fit-time vector
	// exactly: nothing is recomputed from the incoming batch.
	out, err := eng.Transform(singleRow(t, 40, 50000, "OWN"))
	require.NoError(t, err)
	require.Len(t, out, 1)
	assert.Equal(t, X[1], out[0])
}

func TestTransformIsDeterministic(t *testing.T) {
	eng := NewEngineer(testSpec(cfg.EncodingOneHot))
	_, _, _, err := eng.FitTransform(trainingFrame(t))
	require.NoError(t, err)

	first, err := eng.Transform(singleRow(t, 33, 45000, "RENT"))
	require.NoError(t, err)
	second, err := eng.Transform(singleRow(t, 33, 45000, "RENT"))
	require.NoError(t, err)
	assert.Equal(t, first, second)
}

func TestTransformImputesWithFitStatistics(t *testing.T) {
	eng := NewEngineer(testSpec(cfg.EncodingOneHot))
	_, _, _, err := eng.FitTransform(trainingFrame(t))
	require.NoError(t, err)

	// Fit-time ages are 25, 30, 40, 60: the median is 35. A missing age
	// must transform identically to an explicit 35.
	imputed, err := eng.Transform(singleRow(t, math.NaN(), 50000, "OWN"))
	require.NoError(t, err)
	explicit, err := eng.Transform(singleRow(t, 35, 50000, "OWN"))
	require.NoError(t, err)
	assert.Equal(t, explicit, imputed)
}

func TestTransformUnseenOneHotLevelIsZeroed(t *testing.T) {
	eng := NewEngineer(testSpec(cfg.EncodingOneHot))
	_, _, names, err := eng.FitTransform(trainingFrame(t))
	require.NoError(t, err)

	// An unseen level produces all-zero indicators for that column; the
	// output width never changes.
	out, err := eng.Transform(singleRow(t, 40, 50000, "HOUSEBOAT"))
	require.NoError(t, err)
	require.Len(t, out, 1)
	require.Len(t, out[0], len(names))

	ownIdx, rentIdx := -1, -1
	for i, n := range names {
		switch n {
		case "housing_type_OWN":
			ownIdx = i
		case "housing_type_RENT":
			rentIdx = i
		}
	}
	require.NotEqual(t, -1, ownIdx)
	require.NotEqual(t, -1, rentIdx)

	// Indicators are scaled like any other column: zero maps to the
	// scaled image of zero.
	base, err := eng.Transform(singleRow(t, 40, 50000, "MORTGAGE"))
	require.NoError(t, err)
	assert.Equal(t, base[0][ownIdx], out[0][ownIdx])
	assert.Equal(t, base[0][rentIdx], out[0][rentIdx])
}

func TestTransformUnseenLabelCategoryFails(t *testing.T) {
	eng := NewEngineer(testSpec(cfg.EncodingLabel))
	_, _, _, err := eng.FitTransform(trainingFrame(t))
	require.NoError(t, err)

	_, err = eng.Transform(singleRow(t, 40, 50000, "HOUSEBOAT"))
	require.Error(t, err)

	var unknown *UnknownCategoryError
	require.ErrorAs(t, err, &unknown)
	assert.Equal(t, "housing_type", unknown.Column)
	assert.Equal(t, "HOUSEBOAT", unknown.Value)
}

func TestTransformBeforeFit(t *testing.T) {
	eng := NewEngineer(testSpec(cfg.EncodingOneHot))
	_, err := eng.Transform(singleRow(t, 40, 50000, "OWN"))
	require.ErrorIs(t, err, ErrNotFitted)
}

func TestFitTransformTwice(t *testing.T) {
	eng := NewEngineer(testSpec(cfg.EncodingOneHot))
	_, _, _, err := eng.FitTransform(trainingFrame(t))
	require.NoError(t, err)

	_, _, _, err = eng.FitTransform(trainingFrame(t))
	require.ErrorIs(t, err, ErrAlreadyFitted)

	eng.Reset()
	assert.False(t, eng.IsFitted())
	_, _, _, err = eng.FitTransform(trainingFrame(t))
	require.NoError(t, err)
}

func TestFitTransformMissingTarget(t *testing.T) {
	eng := NewEngineer(testSpec(cfg.EncodingOneHot))

	frame := singleRow(t, 40, 50000, "OWN")
	_, _, _, err := eng.FitTransform(frame)
	require.Error(t, err)
	assert.Contains(t, err.Error(), "approved")
}

func TestSaveLoadRoundTrip(t *testing.T) {
	dir := t.TempDir()

	fitted := NewEngineer(testSpec(cfg.EncodingOneHot))
	_, _, _, err := fitted.FitTransform(trainingFrame(t))
	require.NoError(t, err)
	require.NoError(t, fitted.Save(dir))

	loaded := NewEngineer(testSpec(cfg.EncodingOneHot))
	require.NoError(t, loaded.Load(dir))
	assert.Equal(t, fitted.FeatureNames(), loaded.FeatureNames())

	// The rehydrated pipeline transforms bit-identically to the fitted one.
	row := singleRow(t, 33, 45000, "RENT")
	want, err := fitted.Transform(row)
	require.NoError(t, err)
	got, err := loaded.Transform(row)
	require.NoError(t, err)
	assert.Equal(t, want, got)
}

func TestSaveLoadRoundTripLabelEncoding(t *testing.T) {
	dir := t.TempDir()

	fitted := NewEngineer(testSpec(cfg.EncodingLabel))
	_, _, _, err := fitted.FitTransform(trainingFrame(t))
	require.NoError(t, err)
	require.NoError(t, fitted.Save(dir))

	loaded := NewEngineer(testSpec(cfg.EncodingLabel))
	require.NoError(t, loaded.Load(dir))

	row := singleRow(t, 33, 45000, "RENT")
	want, err := fitted.Transform(row)
	require.NoError(t, err)
	got, err := loaded.Transform(row)
	require.NoError(t, err)
	assert.Equal(t, want, got)
}

func TestSaveUnfitted(t *testing.T) {
	eng := NewEngineer(testSpec(cfg.EncodingOneHot))
	require.ErrorIs(t, eng.Save(t.TempDir()), ErrNotFitted)
}

func TestLoadIntoFitted(t *testing.T) {
	dir := t.TempDir()
	eng := NewEngineer(testSpec(cfg.EncodingOneHot))
	_, _, _, err := eng.FitTransform(trainingFrame(t))
	require.NoError(t, err)
	require.NoError(t, eng.Save(dir))

	require.ErrorIs(t, eng.Load(dir), ErrAlreadyFitted)
}

func TestLoadFromEmptyDir(t *testing.T) {
	eng := NewEngineer(testSpec(cfg.EncodingOneHot))
	err := eng.Load(t.TempDir())
	require.ErrorIs(t, err, ErrNotFitted)
}
