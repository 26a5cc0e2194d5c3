package main

import (
	"context"
	"errors"
	"os"
	"path/filepath"
	"testing"

	"limlog/internal/ingest"
	"limlog/internal/report"
)

func TestAggregateAbortStillReportsPartialRun(t *testing.T) {
	dir := t.TempDir()
	cfgPath := filepath.Join(dir, "limlog.yaml")
	if err := os.WriteFile(cfgPath, []byte("aggregate:\n  on_malformed: abort\n"), 0o644); err != nil {
		t.Fatalf("write config: %v", err)
	}
	logPath := filepath.Join(dir, "run.log")
	log := "2024001.120000000 x S1 WARNING-HIGH 12 > 10\n" +
		"garbage\n" +
		"2024001.120100000 x S2 WARNING-HIGH 12 > 10\n"
	if err := os.WriteFile(logPath, []byte(log), 0o644); err != nil {
		t.Fatalf("write log: %v", err)
	}
	outPath := filepath.Join(dir, "report.json")

	err := runAggregate(context.Background(), []string{"-config", cfgPath, "-format", "json", "-o", outPath, logPath})
	var malformed *ingest.MalformedLineError
	if !errors.As(err, &malformed) {
		t.Fatalf("expected MalformedLineError, got %v", err)
	}

	f, err := os.Open(outPath)
	if err != nil {
		t.Fatalf("open report: %v", err)
	}
	defer f.Close()
	doc, err := report.Decode(f, report.FormatJSON)
	if err != nil {
		t.Fatalf("decode report: %v", err)
	}
	if len(doc.Signals) != 1 || doc.Signals[0].SignalID != "S1" {
		t.Fatalf("expected only S1 in the partial report, got %+v", doc.Signals)
	}
}
