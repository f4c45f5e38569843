// Package keywords ranks the words of a text by TF-IDF, treating each
// sentence as a document.
package keywords

import (
	"math"
	"sort"
	"strings"

	"github.com/deusflow/opbop/internal/apperr"
	"github.com/deusflow/opbop/internal/textutil"
)

// Containment decides whether a sentence contains a word when counting
// document frequency.
type Containment int

const (
	// Substring is a literal substring test.
	Substring Containment = iota
	// CharSubset reports containment when every character of the word
	// appears somewhere in the sentence. Kept for ranking compatibility with
	// the legacy service.
	CharSubset
)

// DefaultCount is the number of keywords used to search for related coverage.
const DefaultCount = 3

// Extractor ranks words by TF-IDF, treating each sentence as a document.
type Extractor struct {
	Containment Containment
}

// Extract returns the top k words of text using substring containment.
func Extract(text string, k int) ([]string, error) {
	return Extractor{}.Extract(text, k)
}

// Extract returns the k highest scoring words of text, ties kept in order of
// first appearance. Text without any word is an EmptyText error; text made
// only of stop words yields no keywords.
func (e Extractor) Extract(text string, k int) ([]string, error) {
	cleaned := strings.ReplaceAll(strings.ToLower(text), ",", "")

	var words []string
	for _, w := range strings.Fields(cleaned) {
		if w = strings.TrimRight(w, "."); w != "" {
			words = append(words, w)
		}
	}
	if len(words) == 0 {
		return nil, apperr.EmptyText("keywords")
	}
	total := float64(len(words))

	sentences := textutil.Sentences(cleaned)
	sentCount := float64(len(sentences))
	if sentCount == 0 {
		sentCount = 1
	}

	// frequency pass
	var order []string
	counts := make(map[string]int)
	docFreq := make(map[string]int)
	for _, w := range words {
		if textutil.IsStopWord(w) {
			continue
		}
		if _, seen := counts[w]; !seen {
			order = append(order, w)
			docFreq[w] = 1
		} else {
			docFreq[w] = e.sentencesContaining(w, sentences)
		}
		counts[w]++
	}

	// scoring pass
	scores := make(map[string]float64, len(order))
	for _, w := range order {
		tf := float64(counts[w]) / total
		df := docFreq[w]
		if df < 1 {
			df = 1
		}
		scores[w] = tf * math.Log(sentCount/float64(df))
	}

	ranked := make([]string, len(order))
	copy(ranked, order)
	sort.SliceStable(ranked, func(i, j int) bool {
		return scores[ranked[i]] > scores[ranked[j]]
	})

	if k < 0 {
		k = 0
	}
	if len(ranked) > k {
		ranked = ranked[:k]
	}
	return ranked, nil
}

func (e Extractor) sentencesContaining(word string, sentences []string) int {
	n := 0
	for _, s := range sentences {
		if e.contains(s, word) {
			n++
		}
	}
	return n
}

func (e Extractor) contains(sentence, word string) bool {
	if e.Containment == CharSubset {
		for _, r := range word {
			if !strings.ContainsRune(sentence, r) {
				return false
			}
		}
		return true
	}
	return strings.Contains(sentence, word)
}
