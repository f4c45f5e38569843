// Package reliability maps publisher domains to a reliability label loaded
// from a tab-separated table.
package reliability

import (
	"encoding/csv"
	"errors"
	"fmt"
	"io"
	"os"
	"strings"

	"github.com/deusflow/opbop/internal/model"
	"github.com/deusflow/opbop/internal/urlutil"
)

// Table is read-only after construction and safe for concurrent lookups.
type Table struct {
	labels map[string]model.Reliability
}

// Load reads the table at path.
func Load(path string) (*Table, error) {
	f, err := os.Open(path)
	if err != nil {
		return nil, fmt.Errorf("open reliability table: %w", err)
	}
	defer f.Close()
	return Parse(f)
}

// Parse reads rows of at least four tab-separated columns. The domain is in
// column 1 and the label in column 3, both counted from 0. Shorter rows are
// skipped.
func Parse(r io.Reader) (*Table, error) {
	reader := csv.NewReader(r)
	reader.Comma = '\t'
	reader.FieldsPerRecord = -1
	reader.LazyQuotes = true

	t := &Table{labels: make(map[string]model.Reliability)}
	for {
		rec, err := reader.Read()
		if errors.Is(err, io.EOF) {
			break
		}
		if err != nil {
			return nil, fmt.Errorf("parse reliability table: %w", err)
		}
		if len(rec) < 4 {
			continue
		}
		domain := urlutil.NormalizeDomain(rec[1])
		if domain == "" {
			continue
		}
		if _, exists := t.labels[domain]; !exists {
			t.labels[domain] = NormalizeLabel(rec[3])
		}
	}
	return t, nil
}

// Empty returns a table where every lookup is unknown.
func Empty() *Table {
	return &Table{labels: map[string]model.Reliability{}}
}

// NormalizeLabel maps free-form ratings ("High", "Very Low", "Mixed") onto the
// four labels.
func NormalizeLabel(raw string) model.Reliability {
	l := strings.ToLower(strings.TrimSpace(raw))
	switch {
	case strings.Contains(l, "mixed"):
		return model.ReliabilityMixed
	case strings.Contains(l, "high"):
		return model.ReliabilityHigh
	case strings.Contains(l, "low"):
		return model.ReliabilityLow
	default:
		return model.ReliabilityUnknown
	}
}

// Lookup returns the label for the article URL, matching the registrable
// domain first and the full host second. Misses are unknown.
func (t *Table) Lookup(rawURL string) model.Reliability {
	if t == nil {
		return model.ReliabilityUnknown
	}
	if l, ok := t.labels[urlutil.RegistrableDomain(rawURL)]; ok {
		return l
	}
	if l, ok := t.labels[urlutil.Host(rawURL)]; ok {
		return l
	}
	return model.ReliabilityUnknown
}

func (t *Table) Len() int {
	if t == nil {
		return 0
	}
	return len(t.labels)
}
