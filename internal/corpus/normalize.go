package corpus

import (
	"math"
	"regexp"
	"sort"
	"strconv"
	"strings"

	"movierag/internal/domain"
)

var (
	specialCharRe = regexp.MustCompile(`[^\p{L}\p{N}_\s\p{Z}\-.,!?]`)
	whitespaceRe  = regexp.MustCompile(`[\s\p{Z}]+`)
	leadingNumRe  = regexp.MustCompile(`^[-+]?(\d+\.?\d*|\.\d+)`)
	titleYearRe   = regexp.MustCompile(`\((\d{4})\)`)
	anyYearRe     = regexp.MustCompile(`\d{4}`)
)

// cleanText strips special characters, collapses whitespace and lowercases.
// Missing or blank input becomes domain.Unknown.
func cleanText(raw string, valid bool) string {
	if !valid || isMissingMarker(raw) {
		return domain.Unknown
	}
	s := specialCharRe.ReplaceAllString(raw, "")
	s = whitespaceRe.ReplaceAllString(s, " ")
	s = strings.ToLower(strings.TrimSpace(s))
	if s == "" {
		return domain.Unknown
	}
	return s
}

// fillText only substitutes the sentinel for missing values.
func fillText(raw string, valid bool) string {
	s := strings.TrimSpace(raw)
	if !valid || s == "" || isMissingMarker(s) {
		return domain.Unknown
	}
	return s
}

func isMissingMarker(s string) bool {
	switch strings.ToLower(strings.TrimSpace(s)) {
	case "", "nan", "null", "none", "n/a", "na":
		return true
	}
	return false
}

// parseNumber coerces values like "8.1", "1,234,567" or "142 min".
func parseNumber(raw string, valid bool) (float64, bool) {
	if !valid {
		return 0, false
	}
	s := strings.ReplaceAll(strings.TrimSpace(raw), ",", "")
	m := leadingNumRe.FindString(s)
	if m == "" {
		return 0, false
	}
	v, err := strconv.ParseFloat(m, 64)
	if err != nil || math.IsNaN(v) || math.IsInf(v, 0) {
		return 0, false
	}
	return v, true
}

// titleYear extracts a parenthesised four digit year from a raw title.
func titleYear(title string, valid bool) (float64, bool) {
	if !valid {
		return 0, false
	}
	m := titleYearRe.FindStringSubmatch(title)
	if m == nil {
		return 0, false
	}
	v, err := strconv.ParseFloat(m[1], 64)
	return v, err == nil
}

// columnYear reads the first four digit group of a year column value,
// tolerating forms like "(2019)" or "2019–2022".
func columnYear(raw string, valid bool) (float64, bool) {
	if !valid {
		return 0, false
	}
	m := anyYearRe.FindString(raw)
	if m == "" {
		return 0, false
	}
	v, err := strconv.ParseFloat(m, 64)
	return v, err == nil
}

// median of the values; ok is false for an empty slice.
func median(values []float64) (float64, bool) {
	if len(values) == 0 {
		return 0, false
	}
	s := make([]float64, len(values))
	copy(s, values)
	sort.Float64s(s)
	mid := len(s) / 2
	if len(s)%2 == 1 {
		return s[mid], true
	}
	return (s[mid-1] + s[mid]) / 2, true
}

// ratingCategory buckets a rating with right-closed bins (0,5], (5,6],
// (6,7], (7,8], (8,10]. Values outside (0,10] get no category.
func ratingCategory(r float64) string {
	switch {
	case r <= 0 || r > 10:
		return ""
	case r <= 5:
		return "Poor"
	case r <= 6:
		return "Below Average"
	case r <= 7:
		return "Average"
	case r <= 8:
		return "Good"
	default:
		return "Excellent"
	}
}

func decade(year float64) int {
	return int(math.Floor(year/10)) * 10
}

func genreList(genre string) string {
	parts := strings.Split(genre, ",")
	out := parts[:0]
	for _, p := range parts {
		if p = strings.TrimSpace(p); p != "" {
			out = append(out, p)
		}
	}
	if len(out) == 0 {
		return genre
	}
	return strings.Join(out, ",")
}
