// Package summarize builds extractive summaries by word-frequency sentence
// scoring.
package summarize

import (
	"math"
	"sort"
	"strings"

	"github.com/deusflow/opbop/internal/apperr"
	"github.com/deusflow/opbop/internal/model"
	"github.com/deusflow/opbop/internal/textutil"
)

// TargetSentences returns how many sentences a summary of text keeps.
// Texts with more than ten periods are compressed ten to one, shorter ones
// five to one.
func TargetSentences(text string) int {
	divisor := 5
	if strings.Count(text, ".") > 10 {
		divisor = 10
	}
	delims := strings.Count(text, ".") + strings.Count(text, "!") + strings.Count(text, "?")
	n := (delims + divisor - 1) / divisor
	if n < 1 {
		n = 1
	}
	return n
}

// Summarize selects the highest scoring sentences of text. Sentences are
// joined in score order, not in the order they appear in the text.
func Summarize(text string) (model.Summary, error) {
	freq := wordFrequencies(text)
	if len(freq) == 0 {
		return model.Summary{}, apperr.EmptyText("summarize")
	}

	scores, order := scoreSentences(textutil.Sentences(text), freq)

	ranked := make([]string, len(order))
	copy(ranked, order)
	sort.SliceStable(ranked, func(i, j int) bool {
		return scores[ranked[i]] > scores[ranked[j]]
	})
	if n := TargetSentences(text); len(ranked) > n {
		ranked = ranked[:n]
	}

	out := strings.Join(ranked, " ")
	return model.Summary{
		Text:         out,
		ReductionPct: ReductionPct(text, out),
	}, nil
}

// ReductionPct is the rounded percentage of characters removed from in to
// produce out. Surrounding whitespace in in is not counted.
func ReductionPct(in, out string) int {
	inLen := textutil.RuneLen(strings.TrimSpace(in))
	if inLen == 0 {
		return 0
	}
	return int(math.Round(100 * (1 - float64(textutil.RuneLen(out))/float64(inLen))))
}

// wordFrequencies counts non stop-word tokens and normalizes by the maximum
// count so the most frequent word scores 1.
func wordFrequencies(text string) map[string]float64 {
	counts := make(map[string]int)
	maxCount := 0
	for _, w := range textutil.Words(text) {
		if textutil.IsStopWord(w) {
			continue
		}
		counts[w]++
		if counts[w] > maxCount {
			maxCount = counts[w]
		}
	}

	freq := make(map[string]float64, len(counts))
	for w, c := range counts {
		freq[w] = float64(c) / float64(maxCount)
	}
	return freq
}

// scoreSentences sums word frequencies per sentence. Sentences with no scored
// word are left out. Repeated sentences share one entry.
func scoreSentences(sentences []string, freq map[string]float64) (map[string]float64, []string) {
	scores := make(map[string]float64)
	var order []string
	for _, s := range sentences {
		for _, w := range textutil.Words(s) {
			f, ok := freq[w]
			if !ok {
				continue
			}
			if _, seen := scores[s]; !seen {
				order = append(order, s)
			}
			scores[s] += f
		}
	}
	return scores, order
}
