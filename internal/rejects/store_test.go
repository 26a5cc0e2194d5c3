package rejects

import (
	"testing"
	"time"

	"limlog/internal/model"
)

func TestStoreKeepsNewest(t *testing.T) {
	s := NewStore(3)
	base := time.Date(2024, 1, 1, 0, 0, 0, 0, time.UTC)
	kinds := []string{model.RejectSkipped, model.RejectMalformed, model.RejectSkipped, model.RejectMalformed, model.RejectSkipped}
	for i, k := range kinds {
		s.Add(model.Reject{Timestamp: base.Add(time.Duration(i) * time.Second), Kind: k, Raw: string(rune('a' + i))})
	}
	all := s.List(0, "")
	if len(all) != 3 || all[0].Raw != "c" || all[2].Raw != "e" {
		t.Fatalf("list: %+v", all)
	}
	if s.Total() != 5 {
		t.Fatalf("total: %d", s.Total())
	}
	if got := s.List(1, ""); len(got) != 1 || got[0].Raw != "e" {
		t.Fatalf("limit: %+v", got)
	}
	if got := s.List(0, model.RejectMalformed); len(got) != 1 || got[0].Raw != "d" {
		t.Fatalf("kind: %+v", got)
	}
	if got := s.Since(base.Add(3 * time.Second)); len(got) != 2 {
		t.Fatalf("since: %d", len(got))
	}
	s.Clear()
	if len(s.List(0, "")) != 0 || s.Total() != 0 {
		t.Fatalf("clear kept entries")
	}
}
