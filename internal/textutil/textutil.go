// Package textutil has the tokenization helpers shared by the keyword
// extractor and the summarizer.
package textutil

import (
	"regexp"
	"strings"
	"sync"
	"unicode/utf8"

	"github.com/neurosnap/sentences"
	"github.com/neurosnap/sentences/english"
)

const asciiPunctuation = "!\"#$%&'()*+,-./:;<=>?@[\\]^_`{|}~"

var (
	tokenizerOnce sync.Once
	tokenizer     *sentences.DefaultSentenceTokenizer

	fallbackSplit = regexp.MustCompile(`[^.!?]+(?:[.!?]+["')\]]*|$)`)
)

func sentenceTokenizer() *sentences.DefaultSentenceTokenizer {
	tokenizerOnce.Do(func() {
		t, err := english.NewSentenceTokenizer(nil)
		if err == nil {
			tokenizer = t
		}
	})
	return tokenizer
}

// Sentences splits text into trimmed, non-empty sentences using the Punkt
// English model.
func Sentences(text string) []string {
	var raw []string
	if t := sentenceTokenizer(); t != nil {
		for _, s := range t.Tokenize(text) {
			raw = append(raw, s.Text)
		}
	} else {
		raw = fallbackSplit.FindAllString(text, -1)
	}

	out := make([]string, 0, len(raw))
	for _, s := range raw {
		if s = strings.TrimSpace(s); s != "" {
			out = append(out, s)
		}
	}
	return out
}

// StripPunctuation removes ASCII punctuation characters.
func StripPunctuation(s string) string {
	return strings.Map(func(r rune) rune {
		if r < utf8.RuneSelf && strings.ContainsRune(asciiPunctuation, r) {
			return -1
		}
		return r
	}, s)
}

// Words lower-cases s, strips punctuation and splits on whitespace.
func Words(s string) []string {
	return strings.Fields(StripPunctuation(strings.ToLower(s)))
}

// CollapseSpace joins all whitespace runs into single spaces.
func CollapseSpace(s string) string {
	return strings.Join(strings.Fields(s), " ")
}

func RuneLen(s string) int {
	return utf8.RuneCountInString(s)
}
