// Package session analyzes completed human labels from a labeling session:
// per-schema descriptive statistics, LLM critical-issue discovery, and
// recommendations.
package session

import (
	"math"
	"regexp"
	"sort"
	"strings"

	"tracelens/internal/models"
)

// Numeric labels at or below this value (on the 1-5 scale) count as low.
const lowScoreThreshold = 2.0

var wordRe = regexp.MustCompile(`[a-zA-Z][a-zA-Z']+`)

var stopwords = map[string]bool{
	"the": true, "and": true, "for": true, "that": true, "this": true,
	"with": true, "was": true, "are": true, "but": true, "not": true,
	"its": true, "has": true, "have": true, "from": true, "too": true,
	"very": true, "should": true, "would": true, "could": true,
}

// Negative categorical answers that mark an item as low-scoring.
var negativeOptions = map[string]bool{
	"false": true, "no": true, "not at all": true,
}

// ComputeStats derives per-schema descriptive statistics from the completed
// items of a session. Purely deterministic; no model involved.
func ComputeStats(sess *models.LabelingSession) []models.SchemaStats {
	var stats []models.SchemaStats

	for _, schema := range sess.Schemas {
		st := models.SchemaStats{
			SchemaKey:  schema.Key,
			SchemaType: schema.SchemaType,
		}

		var values []float64
		for _, item := range sess.Items {
			if item.State != models.ItemStateCompleted {
				continue
			}
			label, ok := item.Labels[schema.Key]
			if !ok {
				continue
			}
			st.SampleCount++

			switch schema.SchemaType {
			case models.SchemaTypeNumerical:
				if label.NumericValue != nil {
					values = append(values, *label.NumericValue)
					if *label.NumericValue <= lowScoreThreshold {
						st.LowScoreIDs = append(st.LowScoreIDs, item.TraceID)
					}
				}
			case models.SchemaTypeCategorical:
				if st.Distribution == nil {
					st.Distribution = map[string]int{}
				}
				st.Distribution[label.StringValue]++
				if negativeOptions[strings.ToLower(label.StringValue)] {
					st.LowScoreIDs = append(st.LowScoreIDs, item.TraceID)
				}
			case models.SchemaTypeText:
				if st.Themes == nil {
					st.Themes = map[string]int{}
				}
				countThemes(label.StringValue, st.Themes)
			}
		}

		if len(values) > 0 {
			st.Mean = mean(values)
			st.Median = median(values)
			st.StdDev = stddev(values, st.Mean)
		}
		if st.Themes != nil {
			st.Themes = topThemes(st.Themes, 10)
		}

		stats = append(stats, st)
	}

	return stats
}

// countThemes tallies lowercased words of three or more characters, skipping
// stopwords. Crude, but enough to surface recurring complaints.
func countThemes(text string, themes map[string]int) {
	for _, w := range wordRe.FindAllString(strings.ToLower(text), -1) {
		if len(w) < 3 || stopwords[w] {
			continue
		}
		themes[w]++
	}
}

func topThemes(themes map[string]int, n int) map[string]int {
	type kv struct {
		k string
		v int
	}
	sorted := make([]kv, 0, len(themes))
	for k, v := range themes {
		sorted = append(sorted, kv{k, v})
	}
	sort.Slice(sorted, func(i, j int) bool {
		if sorted[i].v != sorted[j].v {
			return sorted[i].v > sorted[j].v
		}
		return sorted[i].k < sorted[j].k
	})

	if len(sorted) > n {
		sorted = sorted[:n]
	}
	out := make(map[string]int, len(sorted))
	for _, e := range sorted {
		out[e.k] = e.v
	}
	return out
}

func mean(values []float64) float64 {
	sum := 0.0
	for _, v := range values {
		sum += v
	}
	return sum / float64(len(values))
}

func median(values []float64) float64 {
	sorted := make([]float64, len(values))
	copy(sorted, values)
	sort.Float64s(sorted)

	mid := len(sorted) / 2
	if len(sorted)%2 == 0 {
		return (sorted[mid-1] + sorted[mid]) / 2
	}
	return sorted[mid]
}

func stddev(values []float64, m float64) float64 {
	if len(values) < 2 {
		return 0
	}
	sum := 0.0
	for _, v := range values {
		d := v - m
		sum += d * d
	}
	return math.Sqrt(sum / float64(len(values)-1))
}
