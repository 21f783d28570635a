package main

import (
	"bytes"
	"strings"
	"testing"
	"time"

	"github.com/therealutkarshpriyadarshi/logscope/internal/parser"
)

func generateLines(t *testing.T, cfg Config) ([]string, Stats) {
	t.Helper()
	var buf bytes.Buffer
	stats, err := Generate(&buf, cfg)
	if err != nil {
		t.Fatalf("Generate() error = %v", err)
	}
	return strings.Split(strings.TrimSuffix(buf.String(), "\n"), "\n"), stats
}

func TestGenerate_Valid(t *testing.T) {
	end := time.Date(2024, 3, 1, 12, 0, 0, 0, time.UTC)
	lines, stats := generateLines(t, Config{Lines: 500, Clients: 20, Span: time.Hour, End: end, Seed: 42})

	if len(lines) != 500 || stats.Lines != 500 || stats.Malformed != 0 {
		t.Fatalf("lines = %d, stats = %+v", len(lines), stats)
	}

	p := parser.NewCombinedParser()
	var prev time.Time
	for i, line := range lines {
		record, err := p.Parse(line)
		if err != nil {
			t.Fatalf("line %d rejected: %v\n%s", i+1, err, line)
		}
		if record.Timestamp.Before(prev) {
			t.Errorf("line %d is out of time order", i+1)
		}
		prev = record.Timestamp
	}
	if !prev.Equal(end) {
		t.Errorf("last timestamp = %v, want %v", prev, end)
	}
}

func TestGenerate_AllMalformed(t *testing.T) {
	lines, stats := generateLines(t, Config{Lines: 200, MalformedRatio: 1, Seed: 7})

	if stats.Malformed != 200 {
		t.Errorf("Malformed = %d, want 200", stats.Malformed)
	}
	p := parser.NewCombinedParser()
	for i, line := range lines {
		if _, err := p.Parse(line); err == nil {
			t.Errorf("line %d should be rejected: %s", i+1, line)
		}
	}
}

func TestGenerate_Deterministic(t *testing.T) {
	end := time.Date(2024, 3, 1, 0, 0, 0, 0, time.UTC)
	cfg := Config{Lines: 50, MalformedRatio: 0.2, AttackRatio: 0.2, Span: time.Hour, End: end, Seed: 99}

	a, _ := generateLines(t, cfg)
	b, _ := generateLines(t, cfg)
	if strings.Join(a, "\n") != strings.Join(b, "\n") {
		t.Error("the same seed should produce the same log")
	}
}

func TestGenerate_InvalidConfig(t *testing.T) {
	var buf bytes.Buffer
	if _, err := Generate(&buf, Config{Lines: -1}); err == nil {
		t.Error("expected error for negative line count")
	}
	if _, err := Generate(&buf, Config{Lines: 1, MalformedRatio: 2}); err == nil {
		t.Error("expected error for ratio above 1")
	}
}
