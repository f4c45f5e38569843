package main

import (
	"bytes"
	"path/filepath"
	"strings"
	"testing"

	"github.com/deusflow/opbop/internal/config"
	"github.com/deusflow/opbop/internal/storage"
)

func TestCheckStore(t *testing.T) {
	cfg := config.Default()
	cfg.Store.Driver = "sqlite"
	cfg.Store.DSN = filepath.Join(t.TempDir(), "opbop.db")

	cmd := newStoreCmd()
	var out bytes.Buffer
	cmd.SetOut(&out)
	cmd.SetContext(t.Context())

	if err := checkStore(cmd, cfg); err != nil {
		t.Fatalf("checkStore: %v", err)
	}
	if !strings.Contains(out.String(), "Store OK") {
		t.Errorf("unexpected output: %s", out.String())
	}
	s, err := storage.Open(t.Context(), cfg.Store.Driver, cfg.Store.DSN, nil)
	if err != nil {
		t.Fatalf("reopen store: %v", err)
	}
	defer s.Close()
	stats, err := s.Stats(t.Context())
	if err != nil {
		t.Fatal(err)
	}
	if stats["total_items"] != 0 {
		t.Errorf("store check left rows behind: %v", stats)
	}
}

func TestParseDay(t *testing.T) {
	d, err := parseDay("2024-03-10")
	if err != nil || d.Day() != 10 {
		t.Errorf("parseDay = %v, %v", d, err)
	}
	if d, err := parseDay(""); err != nil || !d.IsZero() {
		t.Errorf("empty day should be zero, got %v, %v", d, err)
	}
	if _, err := parseDay("March 10"); err == nil {
		t.Error("expected error for bad date")
	}
}

func TestProcessRequiresURL(t *testing.T) {
	root := newRootCmd()
	root.SetArgs([]string{"process"})
	root.SetOut(&bytes.Buffer{})
	root.SetErr(&bytes.Buffer{})

	if err := root.Execute(); err == nil {
		t.Fatal("expected an argument error")
	}
}
