package features

import (
	"math"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestDeriveFeatures(t *testing.T) {
	frame := NewFrame()
	require.NoError(t, frame.AddNumeric("age", []float64{25, 26, 36, 51}))
	require.NoError(t, frame.AddNumeric("annual_income", []float64{25000, 45000, 90000, 150000}))
	require.NoError(t, frame.AddNumeric("credit_score", []float64{500, 600, 700, 820}))
	require.NoError(t, frame.AddNumeric("total_credit_limit", []float64{9999, 10000, 20000, 50000}))
	require.NoError(t, frame.AddNumeric("num_existing_credit_cards", []float64{0, 1, 3, 4}))

	numeric, categorical := deriveFeatures(frame)
	assert.Equal(t, []string{"credit_limit_per_card", "income_to_credit_ratio"}, numeric)
	assert.Equal(t, []string{"age_group", "income_group", "credit_score_group"}, categorical)

	perCard, _ := frame.Col("credit_limit_per_card")
	assert.InDelta(t, 9999.0, perCard.Nums[0], 1e-12) // 9999 / (0+1)
	assert.InDelta(t, 5000.0, perCard.Nums[2], 1e-12) // 20000 / (3+1)

	ratio, _ := frame.Col("income_to_credit_ratio")
	assert.InDelta(t, 2.5, ratio.Nums[0], 1e-12) // 25000 / (9999+1)

	ageGroup, _ := frame.Col("age_group")
	assert.Equal(t, []string{"young", "adult", "middle_age", "senior"}, ageGroup.Strs)

	incomeGroup, _ := frame.Col("income_group")
	assert.Equal(t, []string{"low", "medium", "high", "very_high"}, incomeGroup.Strs)

	scoreGroup, _ := frame.Col("credit_score_group")
	assert.Equal(t, []string{"poor", "fair", "good", "excellent"}, scoreGroup.Strs)
}

func TestDeriveSkipsWhenInputsAbsent(t *testing.T) {
	frame := NewFrame()
	require.NoError(t, frame.AddNumeric("age", []float64{40}))

	numeric, categorical := deriveFeatures(frame)
	assert.Empty(t, numeric)
	assert.Equal(t, []string{"age_group"}, categorical)
	assert.False(t, frame.Has("credit_limit_per_card"))
}

func TestBinEdgesAreHalfOpen(t *testing.T) {
	// (lo, hi] intervals: the upper edge belongs to the bin.
	assert.Equal(t, "young", ageBins.label(25))
	assert.Equal(t, "adult", ageBins.label(25.01))
	assert.Equal(t, "", ageBins.label(0))
	assert.Equal(t, "", ageBins.label(150))
	assert.Equal(t, "", ageBins.label(math.NaN()))
	assert.Equal(t, "very_high", incomeBins.label(1e9))
}
