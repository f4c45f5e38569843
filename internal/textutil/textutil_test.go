package textutil

import (
	"reflect"
	"testing"
)

func TestSentences(t *testing.T) {
	got := Sentences("The cat sat. The dog ran away!  Did it rain?")
	want := []string{"The cat sat.", "The dog ran away!", "Did it rain?"}
	if !reflect.DeepEqual(got, want) {
		t.Errorf("Sentences = %q, want %q", got, want)
	}
}

func TestSentencesEmpty(t *testing.T) {
	if got := Sentences("   "); len(got) != 0 {
		t.Errorf("expected no sentences, got %q", got)
	}
}

func TestWords(t *testing.T) {
	got := Words("Hello, World! It's 3.5 degrees.")
	want := []string{"hello", "world", "its", "35", "degrees"}
	if !reflect.DeepEqual(got, want) {
		t.Errorf("Words = %q, want %q", got, want)
	}
}

func TestIsStopWord(t *testing.T) {
	for _, w := range []string{"the", "The", "don't", "ourselves"} {
		if !IsStopWord(w) {
			t.Errorf("%q should be a stop word", w)
		}
	}
	if IsStopWord("election") {
		t.Error("election is not a stop word")
	}
}

func TestCollapseSpace(t *testing.T) {
	if got := CollapseSpace(" a\n\n b\t c "); got != "a b c" {
		t.Errorf("CollapseSpace = %q", got)
	}
}
