package parser

import (
	"math"
	"sort"
	"strconv"
)

// listPrecision is the number of decimals the list mean is rounded to.
const listPrecision = 4

// reduceList turns a list of readings into a scalar (the mean) plus
// count, mean, median, min, max and the individual values (as a slice and
// as value_1..value_N) as attributes.
func reduceList(values []float64) Value {
	sorted := make([]float64, len(values))
	copy(sorted, values)
	sort.Float64s(sorted)

	var sum float64
	for _, v := range values {
		sum += v
	}
	mean := round(sum/float64(len(values)), listPrecision)

	individual := make([]float64, len(values))
	copy(individual, values)

	attrs := map[string]any{
		"count":  len(values),
		"mean":   mean,
		"median": median(sorted),
		"min":    sorted[0],
		"max":    sorted[len(sorted)-1],
		"values": individual,
	}
	for i, v := range values {
		attrs["value_"+strconv.Itoa(i+1)] = v
	}

	return Value{
		Kind:       KindNumber,
		Number:     mean,
		Attributes: attrs,
	}
}

// median expects sorted input.
func median(sorted []float64) float64 {
	n := len(sorted)
	if n%2 == 1 {
		return sorted[n/2]
	}
	return (sorted[n/2-1] + sorted[n/2]) / 2
}

func round(v float64, places int) float64 {
	scale := math.Pow(10, float64(places))
	return math.Round(v*scale) / scale
}
