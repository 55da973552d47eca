package features

import (
	"fmt"
	"math"

	"credit-approval-api/internal/cfg"
)

// scaler holds the parameters of one scaler fitted over every feature
// column (target excluded) and reapplies them unchanged on transform.
// The transformed value is (x - Center) / Scale per column.
type scaler struct {
	Method  string    `json:"method"`
	Columns []string  `json:"columns"`
	Center  []float64 `json:"center"`
	Scale   []float64 `json:"scale"`
}

func fitScaler(frame *Frame, method string) (*scaler, error) {
	sc := &scaler{Method: method}

	for _, name := range frame.Names() {
		col, _ := frame.Col(name)
		if !col.IsNumeric() {
			return nil, fmt.Errorf("column %s is not numeric at scaling time", name)
		}

		var center, scale float64
		switch method {
		case cfg.ScalingStandard:
			center = mean(col.Nums)
			scale = stddev(col.Nums, center)
		case cfg.ScalingMinMax:
			lo, hi := minMax(col.Nums)
			center = lo
			scale = hi - lo
		case cfg.ScalingRobust:
			center = quantile(col.Nums, 0.5)
			scale = quantile(col.Nums, 0.75) - quantile(col.Nums, 0.25)
		default:
			return nil, fmt.Errorf("unknown scaling method: %s", method)
		}

		// Constant columns scale by 1 to avoid division by zero.
		if scale == 0 {
			scale = 1
		}

		sc.Columns = append(sc.Columns, name)
		sc.Center = append(sc.Center, center)
		sc.Scale = append(sc.Scale, scale)
	}

	return sc, nil
}

// apply produces the scaled feature matrix in the fitted column order.
func (sc *scaler) apply(frame *Frame) ([][]float64, error) {
	rows := frame.Rows()
	out := make([][]float64, rows)
	for i := range out {
		out[i] = make([]float64, len(sc.Columns))
	}

	for j, name := range sc.Columns {
		col, ok := frame.Col(name)
		if !ok {
			return nil, fmt.Errorf("column %s missing at scaling time", name)
		}
		if !col.IsNumeric() {
			return nil, fmt.Errorf("column %s is not numeric at scaling time", name)
		}
		for i, v := range col.Nums {
			out[i][j] = (v - sc.Center[j]) / sc.Scale[j]
		}
	}

	return out, nil
}

// stddev is the population standard deviation (matching the convention of
// the fitted model artifacts).
func stddev(values []float64, mean float64) float64 {
	if len(values) == 0 {
		return 0
	}
	var sum float64
	for _, v := range values {
		d := v - mean
		sum += d * d
	}
	return math.Sqrt(sum / float64(len(values)))
}

func minMax(values []float64) (lo, hi float64) {
	lo = math.Inf(1)
	hi = math.Inf(-1)
	for _, v := range values {
		if v < lo {
			lo = v
		}
		if v > hi {
			hi = v
		}
	}
	return lo, hi
}
