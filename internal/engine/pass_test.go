package engine

import (
	"context"
	"errors"
	"strings"
	"testing"

	"limlog/internal/config"
	"limlog/internal/ingest"
	"limlog/internal/model"
)

const mixedInput = t1 + " x S1 WARNING-HIGH 12 > 10\n" +
	t2 + " x S1 WARNING-HIGH 12 > 10 extra\n" +
	"\n" +
	"short line\n" +
	t3 + " x S2 CAUTION-LOW 1 < 2\n"

func TestPassSkipsMalformedByDefault(t *testing.T) {
	var got []model.Reject
	p := NewPass(testConfig(), nil, nil, nil)
	p.OnReject(func(r model.Reject) { got = append(got, r) })
	if err := p.Run(context.Background(), strings.NewReader(mixedInput), "test"); err != nil {
		t.Fatalf("run: %v", err)
	}
	s := p.Stats()
	if s.Lines != 5 || s.Applied != 2 || s.Malformed != 1 || s.Skipped != 2 || s.Signals != 2 {
		t.Fatalf("stats: %+v", s)
	}
	// the blank line is counted but not kept as a reject
	if len(got) != 2 {
		t.Fatalf("rejects: %d", len(got))
	}
	if got[0].Kind != model.RejectMalformed || got[1].Kind != model.RejectSkipped {
		t.Fatalf("reject kinds: %s %s", got[0].Kind, got[1].Kind)
	}
}

func TestPassAbortsOnMalformed(t *testing.T) {
	cfg := testConfig()
	cfg.Aggregate.OnMalformed = config.OnMalformedAbort
	p := NewPass(cfg, nil, nil, nil)
	err := p.Run(context.Background(), strings.NewReader(mixedInput), "test")
	var malformed *ingest.MalformedLineError
	if !errors.As(err, &malformed) {
		t.Fatalf("expected MalformedLineError, got %v", err)
	}
	if _, ok := p.Result()["S2"]; ok {
		t.Fatalf("lines after the malformed one were applied")
	}
	if _, ok := p.Result()["S1"]; !ok {
		t.Fatalf("lines before the malformed one were lost")
	}
}

func TestPassStopsOnCancel(t *testing.T) {
	ctx, cancel := context.WithCancel(context.Background())
	cancel()
	p := NewPass(testConfig(), nil, nil, nil)
	err := p.Run(ctx, strings.NewReader(mixedInput), "test")
	if !errors.Is(err, context.Canceled) {
		t.Fatalf("expected context.Canceled, got %v", err)
	}
	if len(p.Result()) != 0 {
		t.Fatalf("lines applied after cancel")
	}
}

func TestPassFilter(t *testing.T) {
	cfg := testConfig()
	cfg.Filter.Include = []string{"S2"}
	p := NewPass(cfg, nil, nil, nil)
	if err := p.Run(context.Background(), strings.NewReader(mixedInput), "test"); err != nil {
		t.Fatalf("run: %v", err)
	}
	if len(p.Result()) != 1 {
		t.Fatalf("signals: %v", p.Result().SignalIDs())
	}
	if p.Stats().Filtered != 1 {
		t.Fatalf("filtered: %d", p.Stats().Filtered)
	}
}

func TestFinishCopiesResult(t *testing.T) {
	p := NewPass(testConfig(), nil, nil, nil)
	_ = p.ProcessLine(context.Background(), t1+" x S1 WARNING-HIGH 12 > 10", "test")
	run := p.Finish("run-1", "test")
	_ = p.ProcessLine(context.Background(), t2+" x S1 NOMINAL 5 > 10", "test")
	if run.Result["S1"].Toggles != 0 {
		t.Fatalf("finished run changed after more lines")
	}
	if run.FinishedAt.Before(run.StartedAt) {
		t.Fatalf("finished before started")
	}
}

func TestSignalFilter(t *testing.T) {
	f := BuildFilter(config.FilterConfig{Include: []string{" AOPCADMD ", ""}, Exclude: []string{"aopcadmd"}})
	if f.Allows("AOPCADMD") {
		t.Fatalf("exclude should win over include")
	}
	f = BuildFilter(config.FilterConfig{Include: []string{"AOPCADMD"}})
	if !f.Allows("aopcadmd") || f.Allows("other") {
		t.Fatalf("include match is case-insensitive and exclusive")
	}
	if !BuildFilter(config.FilterConfig{}).Allows("any") {
		t.Fatalf("empty filter should allow every signal")
	}
	var nilFilter *SignalFilter
	if !nilFilter.Allows("any") {
		t.Fatalf("nil filter should allow every signal")
	}
}
