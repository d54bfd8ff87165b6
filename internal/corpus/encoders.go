package corpus

import (
	"math"
	"sort"
)

// LabelEncoder maps categorical values to their index in the sorted set of
// distinct values seen during fitting.
type LabelEncoder struct {
	Classes []string
}

// FitLabelEncoder learns the classes of values.
func FitLabelEncoder(values []string) *LabelEncoder {
	seen := make(map[string]struct{}, len(values))
	for _, v := range values {
		seen[v] = struct{}{}
	}
	classes := make([]string, 0, len(seen))
	for v := range seen {
		classes = append(classes, v)
	}
	sort.Strings(classes)
	return &LabelEncoder{Classes: classes}
}

// Transform returns the code for v, or -1 for an unseen value.
func (e *LabelEncoder) Transform(v string) int {
	i := sort.SearchStrings(e.Classes, v)
	if i < len(e.Classes) && e.Classes[i] == v {
		return i
	}
	return -1
}

// Inverse returns the class for code, or "" when out of range.
func (e *LabelEncoder) Inverse(code int) string {
	if code < 0 || code >= len(e.Classes) {
		return ""
	}
	return e.Classes[code]
}

// StandardScaler standardises numeric columns to zero mean and unit variance.
// Scale uses the population standard deviation; constant columns scale by 1.
type StandardScaler struct {
	Columns []string
	Mean    []float64
	Scale   []float64
}

// FitStandardScaler fits one mean and scale per column. rows[i][j] is the
// value of column j in row i.
func FitStandardScaler(columns []string, rows [][]float64) *StandardScaler {
	s := &StandardScaler{
		Columns: append([]string(nil), columns...),
		Mean:    make([]float64, len(columns)),
		Scale:   make([]float64, len(columns)),
	}
	n := float64(len(rows))
	for j := range columns {
		if n == 0 {
			s.Scale[j] = 1
			continue
		}
		sum := 0.0
		for _, r := range rows {
			sum += r[j]
		}
		mean := sum / n
		variance := 0.0
		for _, r := range rows {
			d := r[j] - mean
			variance += d * d
		}
		std := math.Sqrt(variance / n)
		if std == 0 {
			std = 1
		}
		s.Mean[j] = mean
		s.Scale[j] = std
	}
	return s
}

// Transform standardises one row in column order.
func (s *StandardScaler) Transform(row []float64) []float64 {
	out := make([]float64, len(row))
	for j, v := range row {
		if j >= len(s.Mean) {
			out[j] = v
			continue
		}
		out[j] = (v - s.Mean[j]) / s.Scale[j]
	}
	return out
}
