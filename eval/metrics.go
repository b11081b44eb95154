// Package eval scores predicted answers against gold answers with the
// standard extractive-QA metrics: exact match and token-level F1, both over
// normalized text.
package eval

import (
	"fmt"
	"strings"
	"unicode"
)

// Score holds the metrics for one prediction.
type Score struct {
	ExactMatch float64 `json:"exact_match"`
	F1         float64 `json:"f1"`
}

// Summary aggregates scores over a prediction set.
type Summary struct {
	Count      int     `json:"count"`
	ExactMatch float64 `json:"exact_match"`
	F1         float64 `json:"f1"`
}

// Evaluate scores one prediction against the gold answer.
func Evaluate(prediction, gold string) Score {
	return Score{
		ExactMatch: ExactMatch(prediction, gold),
		F1:         F1(prediction, gold),
	}
}

// EvaluateAll scores a prediction set pairwise and returns mean metrics.
func EvaluateAll(predictions, golds []string) (*Summary, error) {
	if len(predictions) != len(golds) {
		return nil, fmt.Errorf("eval: %d predictions but %d gold answers", len(predictions), len(golds))
	}
	sum := &Summary{Count: len(predictions)}
	if sum.Count == 0 {
		return sum, nil
	}
	for i := range predictions {
		s := Evaluate(predictions[i], golds[i])
		sum.ExactMatch += s.ExactMatch
		sum.F1 += s.F1
	}
	sum.ExactMatch /= float64(sum.Count)
	sum.F1 /= float64(sum.Count)
	return sum, nil
}

// ExactMatch returns 1 when the normalized prediction equals the normalized
// gold answer, else 0.
func ExactMatch(prediction, gold string) float64 {
	if normalizeAnswer(prediction) == normalizeAnswer(gold) {
		return 1
	}
	return 0
}

// F1 returns the token-level F1 between normalized prediction and gold.
func F1(prediction, gold string) float64 {
	predTokens := strings.Fields(normalizeAnswer(prediction))
	goldTokens := strings.Fields(normalizeAnswer(gold))
	if len(predTokens) == 0 || len(goldTokens) == 0 {
		if len(predTokens) == len(goldTokens) {
			return 1
		}
		return 0
	}

	goldCounts := make(map[string]int, len(goldTokens))
	for _, t := range goldTokens {
		goldCounts[t]++
	}
	common := 0
	for _, t := range predTokens {
		if goldCounts[t] > 0 {
			goldCounts[t]--
			common++
		}
	}
	if common == 0 {
		return 0
	}
	precision := float64(common) / float64(len(predTokens))
	recall := float64(common) / float64(len(goldTokens))
	return 2 * precision * recall / (precision + recall)
}

// articles dropped during normalization.
var articles = map[string]bool{"a": true, "an": true, "the": true}

// normalizeAnswer lowercases, maps Unicode whitespace and hyphen variants
// that models like to emit onto their ASCII forms, strips punctuation and
// zero-width characters, drops English articles, and collapses whitespace.
func normalizeAnswer(s string) string {
	var b strings.Builder
	b.Grow(len(s))
	for _, r := range strings.ToLower(s) {
		switch {
		case unicode.IsSpace(r):
			b.WriteByte(' ')
		case r == '\u2010' || r == '\u2011' || r == '\u2012' || r == '\u2013' || r == '\u2014':
			b.WriteByte(' ')
		case r == '\u200B' || r == '\u200C' || r == '\u200D' || r == '\uFEFF':
			// strip zero-width characters
		case unicode.IsPunct(r):
			b.WriteByte(' ')
		default:
			b.WriteRune(r)
		}
	}

	words := strings.Fields(b.String())
	kept := words[:0]
	for _, w := range words {
		if !articles[w] {
			kept = append(kept, w)
		}
	}
	return strings.Join(kept, " ")
}
