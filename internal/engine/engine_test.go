package engine

import (
	"context"
	"testing"
	"time"

	"limlog/internal/config"
	"limlog/internal/ingest"
	"limlog/internal/metrics"
	"limlog/internal/model"
	"limlog/internal/rejects"
)

func testConfig() *config.Config {
	cfg := config.DefaultConfig()
	cfg.Filter = config.FilterConfig{}
	return cfg
}

func newEngineForTest(cfg *config.Config) (*Engine, *metrics.Store, *rejects.Store) {
	m := metrics.NewStore()
	r := rejects.NewStore(100)
	return NewEngine(cfg, nil, nil, m, r), m, r
}

func feed(t *testing.T, eng *Engine, source string, lines ...string) {
	t.Helper()
	for _, l := range lines {
		_ = eng.ProcessLine(context.Background(), ingest.Line{Text: l, Source: source})
	}
}

func TestEngineAggregatesLines(t *testing.T) {
	eng, m, r := newEngineForTest(testConfig())
	feed(t, eng, "file_tail:a.log",
		t1+" x S1 WARNING-HIGH 12 > 10",
		t2+" x S1 NOMINAL 5 > 10",
		t2+" x S2 CAUTION-LOW > 1",
		t3+" x S3 BOGUS 1 > 1",
	)
	rec, ok := eng.Signal("S1")
	if !ok {
		t.Fatalf("expected S1")
	}
	if rec.Toggles != 1 {
		t.Fatalf("toggles: %d", rec.Toggles)
	}
	stats := eng.Stats()
	if stats.Lines != 4 || stats.Applied != 2 || stats.Skipped != 1 || stats.Malformed != 1 || stats.Signals != 1 {
		t.Fatalf("stats: %+v", stats)
	}
	c, ok := m.Get("file_tail:a.log")
	if !ok || c.Lines != 4 || c.Malformed != 1 {
		t.Fatalf("metrics: %+v", c)
	}
	if got := r.List(0, model.RejectMalformed); len(got) != 1 {
		t.Fatalf("malformed rejects: %d", len(got))
	}
	if got := r.List(0, ""); len(got) != 2 {
		t.Fatalf("rejects: %d", len(got))
	}
}

func TestSnapshotIsDeepCopy(t *testing.T) {
	eng, _, _ := newEngineForTest(testConfig())
	feed(t, eng, "test", t1+" x VALVE OUT-OF-STATE OPEN != CLOSED")
	snap := eng.Snapshot()
	s, _ := snap["VALVE"].State()
	s.Log[0] = "CHANGED"
	snap["VALVE"].Toggles = 99

	rec, _ := eng.Signal("VALVE")
	live, _ := rec.State()
	if live.Log[0] != "OPEN" || rec.Toggles != 0 {
		t.Fatalf("snapshot shares state with the engine")
	}
}

func TestEngineStartPreservesOrder(t *testing.T) {
	eng, _, _ := newEngineForTest(testConfig())
	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()
	in := make(chan ingest.Line)
	eng.Start(ctx, in)
	for _, l := range []string{
		t1 + " x S1 CAUTION-HIGH 11 > 10",
		t2 + " x S1 NOMINAL 5 > 10",
		t3 + " x S1 CAUTION-HIGH 15 > 10",
		t4 + " x S1 NOMINAL 5 > 10",
	} {
		in <- ingest.Line{Text: l, Source: "test"}
	}
	deadline := time.Now().Add(2 * time.Second)
	for time.Now().Before(deadline) {
		if eng.Stats().Lines == 4 {
			break
		}
		time.Sleep(5 * time.Millisecond)
	}
	rec, ok := eng.Signal("S1")
	if !ok || rec.Toggles != 2 {
		t.Fatalf("record: %+v", rec)
	}
	n, _ := rec.Numeric()
	if n.Max != 15 {
		t.Fatalf("max: %v", n.Max)
	}
}

func TestUpdateConfigSwapsFilter(t *testing.T) {
	eng, _, _ := newEngineForTest(testConfig())
	feed(t, eng, "test", t1+" x S1 WARNING-HIGH 12 > 10")

	cfg := testConfig()
	cfg.Filter.Exclude = []string{"s1"}
	eng.UpdateConfig(cfg)
	feed(t, eng, "test",
		t2+" x S1 NOMINAL 5 > 10",
		t2+" x S2 WARNING-HIGH 12 > 10",
	)
	rec, _ := eng.Signal("S1")
	if rec.Toggles != 0 {
		t.Fatalf("excluded line applied")
	}
	if _, ok := eng.Signal("S2"); !ok {
		t.Fatalf("expected S2")
	}
	if eng.Stats().Filtered != 1 {
		t.Fatalf("filtered: %d", eng.Stats().Filtered)
	}
}

func TestCheckpointAndReset(t *testing.T) {
	eng, _, _ := newEngineForTest(testConfig())
	feed(t, eng, "test", t1+" x S1 WARNING-HIGH 12 > 10")
	run := eng.Checkpoint("serve")
	if run.ID == "" || run.Source != "serve" {
		t.Fatalf("run: %+v", run)
	}
	if len(run.Result) != 1 || run.Stats.Signals != 1 {
		t.Fatalf("run result: %d signals", len(run.Result))
	}
	if _, ok := eng.Signal("S1"); !ok {
		t.Fatalf("checkpoint cleared the engine")
	}
	eng.Reset()
	if len(eng.Snapshot()) != 0 || eng.Stats().Lines != 0 {
		t.Fatalf("reset kept state")
	}
	if len(run.Result) != 1 {
		t.Fatalf("reset changed a checkpointed run")
	}
}
