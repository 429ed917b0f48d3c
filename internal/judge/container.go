package judge

import (
	"context"
	"fmt"
	"os"
	"path/filepath"
	"strings"
	"time"

	"github.com/moby/moby/api/types/container"
	"github.com/moby/moby/api/types/mount"
	"github.com/moby/moby/client"

	"github.com/signalnine/crashrank/internal/crash"
)

// Container runs the judging command inside a Docker container. Crash files
// are bind-mounted read-only under /crashes and a scratch directory is
// mounted at /out; the command must write its verdict JSON to
// /out/verdict.json (falling back to stdout-style parsing of the file
// contents). Crash ids are exposed via CRASHRANK_CRASH_IDS.
type Container struct {
	image   string
	command []string
	timeout time.Duration
}

func NewContainer(image string, command []string, timeout time.Duration) (*Container, error) {
	if image == "" {
		return nil, fmt.Errorf("container judge: empty image")
	}
	if timeout <= 0 {
		timeout = 5 * time.Minute
	}
	return &Container{image: image, command: command, timeout: timeout}, nil
}

func (j *Container) Evaluate(ctx context.Context, crashes []crash.Crash) (crash.OrdinalResult, error) {
	if len(crashes) == 0 {
		return crash.OrdinalResult{}, fmt.Errorf("container judge: empty matchup")
	}

	cli, err := client.NewClientWithOpts(client.FromEnv, client.WithAPIVersionNegotiation())
	if err != nil {
		return crash.OrdinalResult{}, fmt.Errorf("creating docker client: %w", err)
	}
	defer cli.Close()

	outDir, err := os.MkdirTemp("", "crashrank-verdict-")
	if err != nil {
		return crash.OrdinalResult{}, fmt.Errorf("creating verdict dir: %w", err)
	}
	defer os.RemoveAll(outDir)

	ids := matchupIDs(crashes)
	mounts := []mount.Mount{
		{
			Type:   mount.TypeBind,
			Source: outDir,
			Target: "/out",
		},
	}
	cmd := append([]string(nil), j.command...)
	for _, c := range crashes {
		abs, err := filepath.Abs(c.FilePath)
		if err != nil {
			return crash.OrdinalResult{}, fmt.Errorf("resolving crash path %s: %w", c.FilePath, err)
		}
		target := "/crashes/" + c.ID + "/" + filepath.Base(abs)
		mounts = append(mounts, mount.Mount{
			Type:     mount.TypeBind,
			Source:   abs,
			Target:   target,
			ReadOnly: true,
		})
		cmd = append(cmd, target)
	}

	containerCfg := &container.Config{
		Image: j.image,
		Cmd:   cmd,
		Env: []string{
			"CRASHRANK_CRASH_IDS=" + strings.Join(ids, ","),
			"CRASHRANK_VERDICT_PATH=/out/verdict.json",
		},
		Labels: map[string]string{"crashrank": "true"},
	}
	hostCfg := &container.HostConfig{
		Mounts: mounts,
	}

	createResp, err := cli.ContainerCreate(ctx, client.ContainerCreateOptions{
		Config:     containerCfg,
		HostConfig: hostCfg,
	})
	if err != nil {
		return crash.OrdinalResult{}, fmt.Errorf("creating container: %w", err)
	}
	containerID := createResp.ID
	defer func() {
		cli.ContainerRemove(context.Background(), containerID, client.ContainerRemoveOptions{Force: true})
	}()

	if _, err := cli.ContainerStart(ctx, containerID, client.ContainerStartOptions{}); err != nil {
		return crash.OrdinalResult{}, fmt.Errorf("starting container: %w", err)
	}

	timeoutCtx, cancel := context.WithTimeout(ctx, j.timeout)
	defer cancel()

	waitResult := cli.ContainerWait(timeoutCtx, containerID, client.ContainerWaitOptions{
		Condition: container.WaitConditionNotRunning,
	})
	select {
	case err := <-waitResult.Error:
		cli.ContainerKill(context.Background(), containerID, client.ContainerKillOptions{Signal: "SIGKILL"})
		if timeoutCtx.Err() == context.DeadlineExceeded {
			return crash.OrdinalResult{}, fmt.Errorf("container judge timed out after %s", j.timeout)
		}
		return crash.OrdinalResult{}, fmt.Errorf("waiting for container: %w", err)
	case status := <-waitResult.Result:
		if status.StatusCode != 0 {
			return crash.OrdinalResult{}, fmt.Errorf("container judge exited with status %d", status.StatusCode)
		}
	}

	raw, err := os.ReadFile(filepath.Join(outDir, "verdict.json"))
	if err != nil {
		return crash.OrdinalResult{}, fmt.Errorf("reading verdict: %w", err)
	}
	v, err := parseVerdict(string(raw))
	if err != nil {
		return crash.OrdinalResult{}, fmt.Errorf("container judge: %w", err)
	}
	if err := crash.ValidateOrder(v.Ordered, ids); err != nil {
		return crash.OrdinalResult{}, fmt.Errorf("container judge: %w", err)
	}

	parsed := map[string]any{}
	if v.Rationale != "" {
		parsed["rationale"] = v.Rationale
	}
	return newResult("container:"+j.image, v.Ordered, string(raw), parsed), nil
}
