package judge

import (
	"bytes"
	"context"
	"fmt"
	"os/exec"
	"strings"
	"time"

	"github.com/signalnine/crashrank/internal/crash"
)

// Command runs an external judging program. The crash file paths are passed
// as trailing arguments and the matching ids via CRASHRANK_CRASH_IDS, in the
// same order. The program must print a verdict JSON object with an "ordered"
// array of crash ids (best first) to stdout, and is killed after the timeout.
type Command struct {
	argv    []string
	timeout time.Duration
}

func NewCommand(argv []string, timeout time.Duration) (*Command, error) {
	if len(argv) == 0 {
		return nil, fmt.Errorf("command judge: empty argv")
	}
	if timeout <= 0 {
		timeout = 5 * time.Minute
	}
	return &Command{argv: argv, timeout: timeout}, nil
}

func (j *Command) Evaluate(ctx context.Context, crashes []crash.Crash) (crash.OrdinalResult, error) {
	if len(crashes) == 0 {
		return crash.OrdinalResult{}, fmt.Errorf("command judge: empty matchup")
	}

	ctx, cancel := context.WithTimeout(ctx, j.timeout)
	defer cancel()

	ids := matchupIDs(crashes)
	args := append([]string(nil), j.argv[1:]...)
	for _, c := range crashes {
		args = append(args, c.FilePath)
	}

	cmd := exec.CommandContext(ctx, j.argv[0], args...)
	cmd.Env = append(cmd.Environ(), "CRASHRANK_CRASH_IDS="+strings.Join(ids, ","))
	var stdout, stderr bytes.Buffer
	cmd.Stdout = &stdout
	cmd.Stderr = &stderr

	if err := cmd.Run(); err != nil {
		if ctx.Err() == context.DeadlineExceeded {
			return crash.OrdinalResult{}, fmt.Errorf("judge command timed out after %s", j.timeout)
		}
		return crash.OrdinalResult{}, fmt.Errorf("judge command: %w: %s", err, strings.TrimSpace(stderr.String()))
	}

	v, err := parseVerdict(stdout.String())
	if err != nil {
		return crash.OrdinalResult{}, fmt.Errorf("judge command: %w", err)
	}
	if err := crash.ValidateOrder(v.Ordered, ids); err != nil {
		return crash.OrdinalResult{}, fmt.Errorf("judge command: %w", err)
	}

	parsed := map[string]any{}
	if v.Rationale != "" {
		parsed["rationale"] = v.Rationale
	}
	return newResult("command", v.Ordered, stdout.String(), parsed), nil
}
