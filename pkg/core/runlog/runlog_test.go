package runlog

import (
	"errors"
	"path/filepath"
	"testing"
	"time"
)

func openStore(t *testing.T) *Store {
	t.Helper()
	s, err := Open(filepath.Join(t.TempDir(), "runs.db"))
	if err != nil {
		t.Fatalf("open run log: %v", err)
	}
	t.Cleanup(func() { s.Close() })
	return s
}

var base = time.Date(2026, 3, 1, 9, 0, 0, 0, time.UTC)

func record(id string, start time.Time, status Status) Record {
	return Record{
		RunID:  id,
		User:   "actuary",
		Inputs: map[string]string{"bundle": "basis.hjson"},
		Start:  start,
		End:    start.Add(90 * time.Second),
		Status: status,
	}
}

func TestHistoryNewestFirst(t *testing.T) {
	s := openStore(t)
	for i, id := range []string{"r1", "r2", "r3"} {
		if err := s.Create(record(id, base.Add(time.Duration(i)*time.Hour), StatusSuccess)); err != nil {
			t.Fatalf("create %s: %v", id, err)
		}
	}

	all, err := s.History(0)
	if err != nil {
		t.Fatalf("history: %v", err)
	}
	if len(all) != 3 || all[0].RunID != "r3" || all[2].RunID != "r1" {
		t.Fatalf("unexpected order: %+v", all)
	}
	if all[0].DurationSeconds != 90 {
		t.Errorf("expected duration 90s, got %v", all[0].DurationSeconds)
	}
	if all[0].Inputs["bundle"] != "basis.hjson" {
		t.Errorf("inputs not kept: %v", all[0].Inputs)
	}

	two, err := s.History(2)
	if err != nil {
		t.Fatalf("history: %v", err)
	}
	if len(two) != 2 || two[1].RunID != "r2" {
		t.Fatalf("unexpected limited history: %+v", two)
	}
}

func TestGet(t *testing.T) {
	s := openStore(t)
	rec := record("r1", base, StatusFailed)
	rec.ErrorMessage = "LOOKUP: no rate"
	if err := s.Create(rec); err != nil {
		t.Fatalf("create: %v", err)
	}

	got, err := s.Get("r1")
	if err != nil {
		t.Fatalf("get: %v", err)
	}
	if got.Status != StatusFailed || got.ErrorMessage != rec.ErrorMessage {
		t.Errorf("unexpected record %+v", got)
	}

	if _, err := s.Get("nope"); !errors.Is(err, ErrNotFound) {
		t.Errorf("expected ErrNotFound, got %v", err)
	}
}

func TestPrune(t *testing.T) {
	s := openStore(t)
	for i, id := range []string{"old1", "old2", "new"} {
		if err := s.Create(record(id, base.AddDate(0, 0, i*10), StatusSuccess)); err != nil {
			t.Fatalf("create %s: %v", id, err)
		}
	}

	n, err := s.Prune(base.AddDate(0, 0, 15))
	if err != nil {
		t.Fatalf("prune: %v", err)
	}
	if n != 2 {
		t.Errorf("expected 2 pruned, got %d", n)
	}
	left, _ := s.History(0)
	if len(left) != 1 || left[0].RunID != "new" {
		t.Fatalf("unexpected history after prune: %+v", left)
	}
}

func TestCreateRequiresRunID(t *testing.T) {
	s := openStore(t)
	if err := s.Create(Record{}); err == nil {
		t.Fatal("expected error for empty run id")
	}
}
