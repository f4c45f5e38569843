// Package model holds the data passed between pipeline stages and persisted in the cache.
package model

import (
	"fmt"
	"time"
)

// Document is the extracted content of an article page.
type Document struct {
	URL      string `json:"url"`
	Title    string `json:"title"`
	MainText string `json:"maintext"`
	ImageURL string `json:"imageUrl,omitempty"`
}

// Summary is an extractive summary of a text.
type Summary struct {
	Text         string `json:"text"`
	ReductionPct int    `json:"reductionPct"`
}

// Sensitivity grades explicit content: 0 none, 1 mild, 2 explicit.
type Sensitivity int

const (
	SensitivityNone Sensitivity = iota
	SensitivityMild
	SensitivityExplicit
)

func (s Sensitivity) Valid() bool {
	return s >= SensitivityNone && s <= SensitivityExplicit
}

func ParseSensitivity(n int) (Sensitivity, error) {
	s := Sensitivity(n)
	if !s.Valid() {
		return 0, fmt.Errorf("sensitivity %d out of range 0..2", n)
	}
	return s, nil
}

// SimplificationResult is what the completion service returns for a summary.
type SimplificationResult struct {
	Simplified  string      `json:"simplified"`
	Sensitivity Sensitivity `json:"sensitivity"`
}

type RelatedArticle struct {
	Title    string `json:"title"`
	URL      string `json:"url"`
	Source   string `json:"source"`
	ImageURL string `json:"imageUrl"`
}

type Reliability string

const (
	ReliabilityUnknown Reliability = "unknown"
	ReliabilityHigh    Reliability = "high"
	ReliabilityMixed   Reliability = "mixed"
	ReliabilityLow     Reliability = "low"
)

// CachedBundle is the document persisted per article URL.
type CachedBundle struct {
	URL         string           `json:"url"`
	Title       string           `json:"title,omitempty"`
	TLDR        string           `json:"tldr"`
	Reduction   int              `json:"reduction"`
	Simplified  string           `json:"simplified"`
	Sensitivity Sensitivity      `json:"sensitivity"`
	Articles    []RelatedArticle `json:"articles"`
	Reliability Reliability      `json:"reliability"`
	CreatedAt   time.Time        `json:"createdAt"`
}

// DateRange bounds related-article search. Zero values mean unbounded.
type DateRange struct {
	From time.Time
	To   time.Time
}

func (r DateRange) IsZero() bool {
	return r.From.IsZero() && r.To.IsZero()
}

// Contains reports whether t falls inside the range, treating To as a whole day.
func (r DateRange) Contains(t time.Time) bool {
	if !r.From.IsZero() && t.Before(r.From) {
		return false
	}
	if !r.To.IsZero() && !t.Before(r.To.AddDate(0, 0, 1)) {
		return false
	}
	return true
}
