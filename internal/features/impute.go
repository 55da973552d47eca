package features

import (
	"fmt"
	"math"
	"sort"

	"credit-approval-api/internal/cfg"
)

// numericImputer fills missing numeric cells with a statistic computed once
// during fit and reused verbatim on every transform. Transform never
// recomputes from the incoming batch.
type numericImputer struct {
	Strategy string             `json:"strategy"`
	Fill     map[string]float64 `json:"fill"`
}

func fitNumericImputer(frame *Frame, cols []string, strategy string) (*numericImputer, error) {
	imp := &numericImputer{Strategy: strategy, Fill: make(map[string]float64)}
	for _, name := range cols {
		col, ok := frame.Col(name)
		if !ok {
			continue
		}

		present := make([]float64, 0, len(col.Nums))
		for _, v := range col.Nums {
			if !isMissing(v) {
				present = append(present, v)
			}
		}
		if len(present) == 0 {
			return nil, fmt.Errorf("column %s has no observed values to impute from", name)
		}

		switch strategy {
		case cfg.MissingMean:
			imp.Fill[name] = mean(present)
		case cfg.MissingMedian:
			imp.Fill[name] = quantile(present, 0.5)
		case cfg.MissingMostFrequent:
			imp.Fill[name] = mostFrequentFloat(present)
		default:
			return nil, fmt.Errorf("unknown missing-value strategy: %s", strategy)
		}
	}
	return imp, nil
}

func (imp *numericImputer) apply(frame *Frame) {
	for name, fill := range imp.Fill {
		col, ok := frame.Col(name)
		if !ok {
			continue
		}
		for i, v := range col.Nums {
			if isMissing(v) {
				col.Nums[i] = fill
			}
		}
	}
}

// categoricalImputer fills missing categorical cells with the most frequent
// fit-time value per column.
type categoricalImputer struct {
	Fill map[string]string `json:"fill"`
}

func fitCategoricalImputer(frame *Frame, cols []string) (*categoricalImputer, error) {
	imp := &categoricalImputer{Fill: make(map[string]string)}
	for _, name := range cols {
		col, ok := frame.Col(name)
		if !ok {
			continue
		}

		counts := make(map[string]int)
		for _, v := range col.Strs {
			if v != "" {
				counts[v]++
			}
		}
		if len(counts) == 0 {
			return nil, fmt.Errorf("column %s has no observed values to impute from", name)
		}
		imp.Fill[name] = mostFrequentString(counts)
	}
	return imp, nil
}

func (imp *categoricalImputer) apply(frame *Frame) {
	for name, fill := range imp.Fill {
		col, ok := frame.Col(name)
		if !ok {
			continue
		}
		for i, v := range col.Strs {
			if v == "" {
				col.Strs[i] = fill
			}
		}
	}
}

func mean(values []float64) float64 {
	var sum float64
	for _, v := range values {
		sum += v
	}
	return sum / float64(len(values))
}

// quantile computes the q-quantile with linear interpolation between
// closest ranks.
func quantile(values []float64, q float64) float64 {
	sorted := append([]float64(nil), values...)
	sort.Float64s(sorted)

	if len(sorted) == 1 {
		return sorted[0]
	}
	pos := q * float64(len(sorted)-1)
	lo := int(math.Floor(pos))
	hi := int(math.Ceil(pos))
	if lo == hi {
		return sorted[lo]
	}
	frac := pos - float64(lo)
	return sorted[lo]*(1-frac) + sorted[hi]*frac
}

// mostFrequentFloat breaks frequency ties by the smallest value so the fit
// is deterministic regardless of input order.
func mostFrequentFloat(values []float64) float64 {
	counts := make(map[float64]int)
	for _, v := range values {
		counts[v]++
	}

	best := math.NaN()
	bestCount := -1
	for v, n := range counts {
		if n > bestCount || (n == bestCount && v < best) {
			best = v
			bestCount = n
		}
	}
	return best
}

// mostFrequentString breaks frequency ties lexicographically.
func mostFrequentString(counts map[string]int) string {
	best := ""
	bestCount := -1
	for v, n := range counts {
		if n > bestCount || (n == bestCount && v < best) {
			best = v
			bestCount = n
		}
	}
	return best
}
