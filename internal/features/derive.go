package features

import "math"

// binSpec assigns a label to each half-open interval (edges[i], edges[i+1]].
// Values outside every interval map to missing.
type binSpec struct {
	edges  []float64
	labels []string
}

func (b binSpec) label(v float64) string {
	if isMissing(v) {
		return ""
	}
	for i := 0; i < len(b.labels); i++ {
		if v > b.edges[i] && v <= b.edges[i+1] {
			return b.labels[i]
		}
	}
	return ""
}

var (
	ageBins = binSpec{
		edges:  []float64{0, 25, 35, 50, 100},
		labels: []string{"young", "adult", "middle_age", "senior"},
	}
	incomeBins = binSpec{
		edges:  []float64{0, 30000, 60000, 100000, math.Inf(1)},
		labels: []string{"low", "medium", "high", "very_high"},
	}
	creditScoreBins = binSpec{
		edges:  []float64{0, 580, 670, 740, 800, 850},
		labels: []string{"poor", "fair", "good", "very_good", "excellent"},
	}
)

// deriveFeatures appends derived columns to the frame. Every derivation is
// a deterministic, stateless function of columns already present; a derived
// feature is skipped when any of its inputs is absent. Identical input
// yields identical output in fit and transform mode alike.
//
// Returns the names of the numeric and categorical columns added.
func deriveFeatures(frame *Frame) (numeric, categorical []string) {
	rows := frame.Rows()

	if limit, ok := frame.Col("total_credit_limit"); ok {
		if cards, ok := frame.Col("num_existing_credit_cards"); ok {
			vals := make([]float64, rows)
			for i := range vals {
				vals[i] = limit.Nums[i] / (cards.Nums[i] + 1)
			}
			frame.AddNumeric("credit_limit_per_card", vals)
			numeric = append(numeric, "credit_limit_per_card")
		}
	}

	if income, ok := frame.Col("annual_income"); ok {
		if limit, ok := frame.Col("total_credit_limit"); ok {
			vals := make([]float64, rows)
			for i := range vals {
				vals[i] = income.Nums[i] / (limit.Nums[i] + 1)
			}
			frame.AddNumeric("income_to_credit_ratio", vals)
			numeric = append(numeric, "income_to_credit_ratio")
		}
	}

	if age, ok := frame.Col("age"); ok {
		vals := make([]string, rows)
		for i, v := range age.Nums {
			vals[i] = ageBins.label(v)
		}
		frame.AddString("age_group", vals)
		categorical = append(categorical, "age_group")
	}

	if income, ok := frame.Col("annual_income"); ok {
		vals := make([]string, rows)
		for i, v := range income.Nums {
			vals[i] = incomeBins.label(v)
		}
		frame.AddString("income_group", vals)
		categorical = append(categorical, "income_group")
	}

	if score, ok := frame.Col("credit_score"); ok {
		vals := make([]string, rows)
		for i, v := range score.Nums {
			vals[i] = creditScoreBins.label(v)
		}
		frame.AddString("credit_score_group", vals)
		categorical = append(categorical, "credit_score_group")
	}

	return numeric, categorical
}
