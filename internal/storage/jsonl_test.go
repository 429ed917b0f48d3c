package storage_test

import (
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/signalnine/crashrank/internal/crash"
	"github.com/signalnine/crashrank/internal/rating"
	"github.com/signalnine/crashrank/internal/storage"
)

func TestAppendAndLoadObservations(t *testing.T) {
	store, err := storage.NewJSONL(t.TempDir())
	if err != nil {
		t.Fatalf("NewJSONL: %v", err)
	}

	first := crash.OrdinalResult{
		EvalID:     "eval-1",
		OrderedIDs: []string{"a", "b", "c"},
		RawOutput:  "a beats b beats c",
		JudgeID:    "dummy",
		Timestamp:  time.Now().UTC(),
	}
	second := crash.OrdinalResult{
		EvalID:     "eval-2",
		OrderedIDs: []string{"c", "a"},
		JudgeID:    "dummy",
		Timestamp:  time.Now().UTC(),
	}
	for _, res := range []crash.OrdinalResult{first, second} {
		if err := store.AppendObservation(res); err != nil {
			t.Fatalf("AppendObservation: %v", err)
		}
	}

	got, err := store.LoadObservations()
	if err != nil {
		t.Fatalf("LoadObservations: %v", err)
	}
	if len(got) != 2 {
		t.Fatalf("expected 2 observations, got %d", len(got))
	}
	if got[0].EvalID != "eval-1" || got[1].EvalID != "eval-2" {
		t.Errorf("observation order not preserved: %v", got)
	}
	if len(got[0].OrderedIDs) != 3 || got[0].OrderedIDs[0] != "a" {
		t.Errorf("ordered ids mangled: %v", got[0].OrderedIDs)
	}
}

func TestLoadObservationsSkipsCorruptLines(t *testing.T) {
	dir := t.TempDir()
	store, err := storage.NewJSONL(dir)
	if err != nil {
		t.Fatalf("NewJSONL: %v", err)
	}
	if err := store.AppendObservation(crash.OrdinalResult{OrderedIDs: []string{"a", "b"}, JudgeID: "dummy"}); err != nil {
		t.Fatalf("AppendObservation: %v", err)
	}

	obsPath := filepath.Join(dir, "observations.jsonl")
	f, err := os.OpenFile(obsPath, os.O_WRONLY|os.O_APPEND, 0o644)
	if err != nil {
		t.Fatalf("opening log: %v", err)
	}
	f.WriteString("{not valid json\n")
	f.Close()
	if err := store.AppendObservation(crash.OrdinalResult{OrderedIDs: []string{"b", "a"}, JudgeID: "dummy"}); err != nil {
		t.Fatalf("AppendObservation: %v", err)
	}

	got, err := store.LoadObservations()
	if err != nil {
		t.Fatalf("LoadObservations: %v", err)
	}
	if len(got) != 2 {
		t.Errorf("expected 2 valid observations, got %d", len(got))
	}
}

func TestLoadObservationsMissingFile(t *testing.T) {
	store, err := storage.NewJSONL(t.TempDir())
	if err != nil {
		t.Fatalf("NewJSONL: %v", err)
	}
	got, err := store.LoadObservations()
	if err != nil {
		t.Fatalf("LoadObservations: %v", err)
	}
	if got != nil {
		t.Errorf("expected no observations, got %v", got)
	}
}

func TestSnapshotRoundTrip(t *testing.T) {
	store, err := storage.NewJSONL(t.TempDir())
	if err != nil {
		t.Fatalf("NewJSONL: %v", err)
	}

	state := storage.SystemState{
		Ranker: rating.State{
			Ratings: map[string]rating.Rating{
				"a": {Mu: 28.1, Sigma: 4.2},
				"b": {Mu: 21.9, Sigma: 5.0},
			},
			Statistics: rating.Statistics{
				EvalCounts: map[string]int{"a": 3, "b": 3},
				WinCounts:  map[string]int{"a": 5, "b": 1},
				Rankings:   map[string][]int{"a": {1, 1, 2}, "b": {2, 2, 1}},
				GroupSizes: map[string][]int{"a": {3, 3, 2}, "b": {3, 3, 2}},
			},
		},
		Runtime: storage.RuntimeState{
			EvaluatedMatchups: 3,
			TotalEvaluations:  4,
			FailedEvaluations: 1,
			LastMilestone:     0,
		},
	}
	if err := store.SaveSnapshot(state); err != nil {
		t.Fatalf("SaveSnapshot: %v", err)
	}

	got, err := store.LoadSnapshot()
	if err != nil {
		t.Fatalf("LoadSnapshot: %v", err)
	}
	if got == nil {
		t.Fatal("expected snapshot, got nil")
	}
	if got.Ranker.Ratings["a"].Mu != 28.1 {
		t.Errorf("mu: got %f, want 28.1", got.Ranker.Ratings["a"].Mu)
	}
	if got.Runtime.EvaluatedMatchups != 3 || got.Runtime.FailedEvaluations != 1 {
		t.Errorf("runtime counters: got %+v", got.Runtime)
	}
	if got.SavedAt.IsZero() {
		t.Error("expected saved_at to be set")
	}
	if time.Since(got.SavedAt) > time.Minute || got.SavedAt.After(time.Now().Add(time.Second)) {
		t.Errorf("saved_at not preserved through reload: %v", got.SavedAt)
	}
}

func TestSnapshotOverwrites(t *testing.T) {
	store, err := storage.NewJSONL(t.TempDir())
	if err != nil {
		t.Fatalf("NewJSONL: %v", err)
	}
	for i := 1; i <= 3; i++ {
		state := storage.SystemState{Runtime: storage.RuntimeState{EvaluatedMatchups: i}}
		if err := store.SaveSnapshot(state); err != nil {
			t.Fatalf("SaveSnapshot %d: %v", i, err)
		}
	}
	got, err := store.LoadSnapshot()
	if err != nil {
		t.Fatalf("LoadSnapshot: %v", err)
	}
	if got.Runtime.EvaluatedMatchups != 3 {
		t.Errorf("expected latest snapshot (3), got %d", got.Runtime.EvaluatedMatchups)
	}
}

func TestSnapshotHistoryAppends(t *testing.T) {
	dir := t.TempDir()
	store, err := storage.NewJSONL(dir)
	if err != nil {
		t.Fatalf("NewJSONL: %v", err)
	}
	for i := 0; i < 2; i++ {
		if err := store.SaveSnapshot(storage.SystemState{}); err != nil {
			t.Fatalf("SaveSnapshot: %v", err)
		}
	}
	data, err := os.ReadFile(filepath.Join(dir, "snapshots.jsonl"))
	if err != nil {
		t.Fatalf("reading history: %v", err)
	}
	lines := 0
	for _, b := range data {
		if b == '\n' {
			lines++
		}
	}
	if lines != 2 {
		t.Errorf("expected 2 history lines, got %d", lines)
	}
}

func TestLoadSnapshotMissing(t *testing.T) {
	store, err := storage.NewJSONL(t.TempDir())
	if err != nil {
		t.Fatalf("NewJSONL: %v", err)
	}
	got, err := store.LoadSnapshot()
	if err != nil {
		t.Fatalf("LoadSnapshot: %v", err)
	}
	if got != nil {
		t.Errorf("expected nil snapshot, got %+v", got)
	}
}

func TestLoadSnapshotMalformedFailsOpen(t *testing.T) {
	dir := t.TempDir()
	store, err := storage.NewJSONL(dir)
	if err != nil {
		t.Fatalf("NewJSONL: %v", err)
	}
	if err := os.WriteFile(filepath.Join(dir, "snapshot.json"), []byte("garbage"), 0o644); err != nil {
		t.Fatalf("writing garbage: %v", err)
	}
	got, err := store.LoadSnapshot()
	if err != nil {
		t.Fatalf("LoadSnapshot: %v", err)
	}
	if got != nil {
		t.Errorf("expected malformed snapshot treated as absent, got %+v", got)
	}
}

func TestLoadSnapshotLegacyFlatRankerState(t *testing.T) {
	dir := t.TempDir()
	store, err := storage.NewJSONL(dir)
	if err != nil {
		t.Fatalf("NewJSONL: %v", err)
	}
	legacy := []byte(`{"c1": {"mu": 30.0, "sigma": 3.5}}`)
	if err := os.WriteFile(filepath.Join(dir, "snapshot.json"), legacy, 0o644); err != nil {
		t.Fatalf("writing legacy snapshot: %v", err)
	}

	got, err := store.LoadSnapshot()
	if err != nil {
		t.Fatalf("LoadSnapshot: %v", err)
	}
	if got == nil {
		t.Fatal("expected legacy snapshot to load")
	}
	if got.Ranker.Ratings["c1"].Mu != 30.0 {
		t.Errorf("legacy mu: got %f, want 30.0", got.Ranker.Ratings["c1"].Mu)
	}
	if got.Runtime.EvaluatedMatchups != 0 {
		t.Errorf("legacy runtime should be zeroed, got %+v", got.Runtime)
	}
}
