package report_test

import (
	"bytes"
	"encoding/json"
	"os"
	"path/filepath"
	"strings"
	"testing"

	"github.com/signalnine/crashrank/internal/rating"
	"github.com/signalnine/crashrank/internal/report"
	"github.com/signalnine/crashrank/internal/storage"
)

func seededState(t *testing.T) rating.State {
	t.Helper()
	return rating.State{
		Ratings: map[string]rating.Rating{
			"heap_uaf":   {Mu: 31.2, Sigma: 2.1},
			"null_deref": {Mu: 18.4, Sigma: 2.5},
			"stack_bof":  {Mu: 26.0, Sigma: 3.0},
		},
		Statistics: rating.Statistics{
			EvalCounts: map[string]int{"heap_uaf": 6, "null_deref": 6, "stack_bof": 4},
			WinCounts:  map[string]int{"heap_uaf": 10, "null_deref": 1, "stack_bof": 5},
			Rankings:   map[string][]int{"heap_uaf": {1, 1, 1, 1, 2, 1}, "null_deref": {3, 3, 2, 3, 3, 3}, "stack_bof": {2, 2, 1, 2}},
			GroupSizes: map[string][]int{"heap_uaf": {3, 3, 3, 3, 3, 3}, "null_deref": {3, 3, 3, 3, 3, 3}, "stack_bof": {3, 3, 3, 3}},
		},
	}
}

func TestRowsOrderedByScore(t *testing.T) {
	rows := report.Rows(seededState(t))
	if len(rows) != 3 {
		t.Fatalf("got %d rows, want 3", len(rows))
	}
	wantOrder := []string{"heap_uaf", "stack_bof", "null_deref"}
	for i, want := range wantOrder {
		if rows[i].CrashID != want {
			t.Errorf("rank %d = %s, want %s", i+1, rows[i].CrashID, want)
		}
		if rows[i].Rank != i+1 {
			t.Errorf("rank field = %d, want %d", rows[i].Rank, i+1)
		}
	}
	if rows[0].Evals != 6 {
		t.Errorf("heap_uaf evals = %d, want 6", rows[0].Evals)
	}
}

func TestGenerateFormats(t *testing.T) {
	dir := t.TempDir()
	store, err := storage.NewJSONL(dir)
	if err != nil {
		t.Fatal(err)
	}
	if err := store.SaveSnapshot(storage.SystemState{Ranker: seededState(t)}); err != nil {
		t.Fatal(err)
	}

	var table bytes.Buffer
	if err := report.Generate(dir, "table", &table); err != nil {
		t.Fatalf("Generate table: %v", err)
	}
	if !strings.Contains(table.String(), "heap_uaf") || !strings.Contains(table.String(), "RANK") {
		t.Errorf("table output missing expected content:\n%s", table.String())
	}

	var md bytes.Buffer
	if err := report.Generate(dir, "markdown", &md); err != nil {
		t.Fatalf("Generate markdown: %v", err)
	}
	if !strings.Contains(md.String(), "| heap_uaf |") {
		t.Errorf("markdown output missing row:\n%s", md.String())
	}

	var jsonBuf bytes.Buffer
	if err := report.Generate(dir, "json", &jsonBuf); err != nil {
		t.Fatalf("Generate json: %v", err)
	}
	var rows []report.Row
	if err := json.Unmarshal(jsonBuf.Bytes(), &rows); err != nil {
		t.Fatalf("json output not parseable: %v", err)
	}
	if len(rows) != 3 || rows[0].CrashID != "heap_uaf" {
		t.Errorf("json rows = %+v", rows)
	}
}

func TestGenerateWithoutSnapshot(t *testing.T) {
	var buf bytes.Buffer
	if err := report.Generate(t.TempDir(), "table", &buf); err == nil {
		t.Fatal("expected error when no snapshot exists")
	}
}

func TestWriteRankedDir(t *testing.T) {
	corpus := t.TempDir()
	files := map[string]string{}
	for _, id := range []string{"heap_uaf", "null_deref"} {
		p := filepath.Join(corpus, id+".bin")
		if err := os.WriteFile(p, []byte(id), 0o644); err != nil {
			t.Fatal(err)
		}
		files[id] = p
	}

	rows := []report.Row{
		{Rank: 1, CrashID: "heap_uaf"},
		{Rank: 2, CrashID: "null_deref"},
	}
	ranked := filepath.Join(t.TempDir(), "ranked")
	pathFor := func(id string) (string, error) { return files[id], nil }
	if err := report.WriteRankedDir(ranked, rows, pathFor); err != nil {
		t.Fatal(err)
	}

	link := filepath.Join(ranked, "001_heap_uaf")
	target, err := os.Readlink(link)
	if err != nil {
		t.Fatal(err)
	}
	data, err := os.ReadFile(target)
	if err != nil {
		t.Fatal(err)
	}
	if string(data) != "heap_uaf" {
		t.Errorf("link target content = %q", data)
	}

	// Rewriting replaces stale links rather than erroring.
	if err := report.WriteRankedDir(ranked, rows[:1], pathFor); err != nil {
		t.Fatal(err)
	}
	entries, err := os.ReadDir(ranked)
	if err != nil {
		t.Fatal(err)
	}
	if len(entries) != 1 {
		t.Errorf("ranked dir has %d entries after rewrite, want 1", len(entries))
	}
}
