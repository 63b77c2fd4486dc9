package commands

import (
	"context"
	"encoding/json"
	"fmt"
	"log/slog"
	"os"
	"strings"
	"time"

	"github.com/spf13/cobra"

	"github.com/prbench/prbench/pkg/candidate"
	"github.com/prbench/prbench/pkg/config"
	"github.com/prbench/prbench/pkg/harness"
	"github.com/prbench/prbench/pkg/metrics"
)

type harnessOptions struct {
	configFile     string
	inputDir       string
	agentDir       string
	agentCmd       string
	agentTimeout   time.Duration
	testTimeout    time.Duration
	dockerImage    string
	parallel       int
	keepContainers bool
	jsonOutput     bool
	metricsAddr    string
}

// NewHarnessCommand builds the `harness` verb: replay agentCmd against
// every exported task instance under input_dir, one fresh container per
// task, up to parallel concurrently.
func NewHarnessCommand() *cobra.Command {
	opts := &harnessOptions{}

	cmd := &cobra.Command{
		Use:   "harness",
		Short: "Evaluate an external coding agent against exported task instances",
		RunE: func(cmd *cobra.Command, _ []string) error {
			return runHarness(cmd.Context(), opts)
		},
	}

	flags := cmd.Flags()
	flags.StringVar(&opts.configFile, "config", "", "optional YAML file of harness settings; CLI flags override it")
	flags.StringVar(&opts.inputDir, "input_dir", "", "directory of exported task instances (required)")
	flags.StringVar(&opts.agentDir, "agent_dir", ".", "working directory the agent subprocess runs in")
	flags.StringVar(&opts.agentCmd, "agent_cmd", "", "shell command invoking the external coding agent (required)")
	flags.DurationVar(&opts.agentTimeout, "agent_timeout", 30*time.Minute, "maximum time allotted to one agent run")
	flags.DurationVar(&opts.testTimeout, "test_timeout", 5*time.Minute, "maximum time allotted to one fail_to_pass/pass_to_pass command")
	flags.StringVar(&opts.dockerImage, "docker_image", "", "container image override (default: each task's own environment.base_image)")
	flags.IntVar(&opts.parallel, "parallel", 1, "number of tasks evaluated concurrently")
	flags.BoolVar(&opts.keepContainers, "keep_containers", false, "do not destroy containers after evaluation, for debugging")
	flags.BoolVar(&opts.jsonOutput, "json", false, "emit one JSON record per task instead of a human-readable summary")
	flags.StringVar(&opts.metricsAddr, "metrics_addr", "", "address to serve Prometheus /metrics on during the run (empty disables it)")

	return cmd
}

func runHarness(ctx context.Context, opts *harnessOptions) error {
	var agentCmd []string
	if opts.agentCmd != "" {
		agentCmd = strings.Fields(opts.agentCmd)
	}

	hc, err := config.LoadHarnessConfig(opts.configFile, config.HarnessConfig{
		InputDir:       opts.inputDir,
		AgentDir:       opts.agentDir,
		AgentCmd:       agentCmd,
		AgentTimeout:   opts.agentTimeout,
		TestTimeout:    opts.testTimeout,
		DockerImage:    opts.dockerImage,
		Parallel:       opts.parallel,
		KeepContainers: opts.keepContainers,
		JSON:           opts.jsonOutput,
	})
	if err != nil {
		return &exitError{fmt.Errorf("loading harness configuration: %w", err), 1}
	}

	creds, err := LoadCredentials()
	if err != nil {
		return &exitError{err, 1}
	}
	SetupLogging(creds.LogLevel)

	dirs, err := harness.DiscoverTaskDirs(hc.InputDir)
	if err != nil {
		return &exitError{fmt.Errorf("discovering task instances: %w", err), 2}
	}
	if len(dirs) == 0 {
		return &exitError{fmt.Errorf("no task instances found under %s", hc.InputDir), 1}
	}

	h := harness.New("https://github.com/%s/%s.git", hc.DockerImage, harness.Config{
		AgentTimeout:   hc.AgentTimeout,
		CommandTimeout: hc.TestTimeout,
		KeepContainers: hc.KeepContainers,
	})

	shellCmd := strings.Join(hc.AgentCmd, " ")
	agentFor := func(candidate.TaskInstance) harness.Agent {
		return &harness.ShellAgent{AgentCmd: shellCmd, AgentDir: hc.AgentDir}
	}

	metrics.Serve(ctx, opts.metricsAddr)

	results := harness.RunAll(ctx, h, dirs, hc.Parallel, agentFor)

	if hc.JSON {
		enc := json.NewEncoder(os.Stdout)
		for _, r := range results {
			if err := enc.Encode(r); err != nil {
				return &exitError{fmt.Errorf("encoding result: %w", err), 2}
			}
		}
	} else {
		counts := map[harness.Status]int{}
		for _, r := range results {
			counts[r.Status]++
			fmt.Printf("%-40s %s\n", r.TaskID, r.Status)
		}
		slog.Info("harness run complete", "total", len(results), "by_status", counts)
	}

	return nil
}
