package report

import (
	"encoding/json"
	"fmt"
	"io"
	"os"
	"path/filepath"
	"sort"
	"strings"
	"text/tabwriter"

	"github.com/signalnine/crashrank/internal/rating"
	"github.com/signalnine/crashrank/internal/storage"
)

type Row struct {
	Rank        int     `json:"rank"`
	CrashID     string  `json:"crash_id"`
	Score       float64 `json:"score"`
	Uncertainty float64 `json:"uncertainty"`
	Evals       int     `json:"evals"`
	WinPct      float64 `json:"win_pct"`
	AvgRank     float64 `json:"avg_rank"`
}

// Generate reads the snapshot under stateDir and writes the ranking report.
func Generate(stateDir, format string, w io.Writer) error {
	store, err := storage.NewJSONL(stateDir)
	if err != nil {
		return err
	}
	snap, err := store.LoadSnapshot()
	if err != nil {
		return err
	}
	if snap == nil {
		return fmt.Errorf("no snapshot found in %s, run a tournament first", stateDir)
	}

	rows := Rows(snap.Ranker)

	switch format {
	case "markdown":
		return writeMarkdown(rows, w)
	case "json":
		return writeJSON(rows, w)
	default:
		return writeTable(rows, w)
	}
}

// Rows builds the ranking from a saved ranker state, best first. Ties break
// on crash id.
func Rows(state rating.State) []Row {
	engine := rating.NewEngine(rating.DefaultParams())
	engine.LoadSnapshot(state)

	seen := map[string]bool{}
	var ids []string
	for id := range state.Ratings {
		if !seen[id] {
			seen[id] = true
			ids = append(ids, id)
		}
	}
	for id := range state.Statistics.EvalCounts {
		if !seen[id] {
			seen[id] = true
			ids = append(ids, id)
		}
	}
	sort.Slice(ids, func(a, b int) bool {
		sa, sb := engine.Score(ids[a]), engine.Score(ids[b])
		if sa != sb {
			return sa > sb
		}
		return ids[a] < ids[b]
	})

	rows := make([]Row, len(ids))
	for i, id := range ids {
		rows[i] = Row{
			Rank:        i + 1,
			CrashID:     id,
			Score:       engine.Score(id),
			Uncertainty: engine.Uncertainty(id),
			Evals:       engine.EvalCount(id),
			WinPct:      engine.WinPercentage(id),
			AvgRank:     engine.AverageRank(id),
		}
	}
	return rows
}

// WriteRankedDir recreates dir as a set of <rank>_<id> symlinks pointing at
// the crash files, so the top of the ranking reads straight off ls.
func WriteRankedDir(dir string, rows []Row, pathFor func(id string) (string, error)) error {
	if err := os.RemoveAll(dir); err != nil {
		return fmt.Errorf("clearing ranked dir: %w", err)
	}
	if err := os.MkdirAll(dir, 0o755); err != nil {
		return fmt.Errorf("creating ranked dir: %w", err)
	}
	for _, row := range rows {
		target, err := pathFor(row.CrashID)
		if err != nil {
			return fmt.Errorf("resolving crash %s: %w", row.CrashID, err)
		}
		abs, err := filepath.Abs(target)
		if err != nil {
			return fmt.Errorf("resolving crash %s: %w", row.CrashID, err)
		}
		link := filepath.Join(dir, fmt.Sprintf("%03d_%s", row.Rank, row.CrashID))
		if err := os.Symlink(abs, link); err != nil {
			return fmt.Errorf("linking %s: %w", link, err)
		}
	}
	return nil
}

func writeTable(rows []Row, w io.Writer) error {
	tw := tabwriter.NewWriter(w, 0, 4, 2, ' ', 0)
	fmt.Fprintln(tw, "RANK\tCRASH ID\tSCORE\tUNCERTAINTY\tEVALS\tWIN RATE\tAVG RANK")
	fmt.Fprintln(tw, strings.Repeat("-", 80))
	for _, r := range rows {
		fmt.Fprintf(tw, "%d\t%s\t%.2f\t%.2f\t%d\t%.0f%%\t%.1f\n",
			r.Rank, r.CrashID, r.Score, r.Uncertainty, r.Evals, r.WinPct*100, r.AvgRank)
	}
	return tw.Flush()
}

func writeMarkdown(rows []Row, w io.Writer) error {
	fmt.Fprintln(w, "| Rank | Crash ID | Score | Uncertainty | Evals | Win Rate | Avg Rank |")
	fmt.Fprintln(w, "|---|---|---|---|---|---|---|")
	for _, r := range rows {
		fmt.Fprintf(w, "| %d | %s | %.2f | %.2f | %d | %.0f%% | %.1f |\n",
			r.Rank, r.CrashID, r.Score, r.Uncertainty, r.Evals, r.WinPct*100, r.AvgRank)
	}
	return nil
}

func writeJSON(rows []Row, w io.Writer) error {
	enc := json.NewEncoder(w)
	enc.SetIndent("", "  ")
	return enc.Encode(rows)
}
