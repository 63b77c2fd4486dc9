package commands

import (
	"context"
	"fmt"
	"log/slog"
	"net/http"
	"os"
	"strconv"
	"strings"
	"time"

	"github.com/spf13/cobra"

	"github.com/prbench/prbench/pkg/archive"
	"github.com/prbench/prbench/pkg/candidate"
	"github.com/prbench/prbench/pkg/config"
	"github.com/prbench/prbench/pkg/export"
	"github.com/prbench/prbench/pkg/filters"
	"github.com/prbench/prbench/pkg/ghapi"
	"github.com/prbench/prbench/pkg/llm"
	"github.com/prbench/prbench/pkg/metrics"
	"github.com/prbench/prbench/pkg/patch"
	"github.com/prbench/prbench/pkg/pipeline"
	"github.com/prbench/prbench/pkg/prcache"
	"github.com/prbench/prbench/pkg/testgen"
)

// ExitCoder lets main map a command's terminal condition to spec.md §6's
// exit code taxonomy without os.Exit-ing from inside a cobra RunE.
type ExitCoder interface {
	ExitCode() int
}

// exitError pairs an error with the process exit code it should produce.
type exitError struct {
	err  error
	code int
}

func (e *exitError) Error() string { return e.err.Error() }
func (e *exitError) Unwrap() error { return e.err }
func (e *exitError) ExitCode() int { return e.code }

type mineOptions struct {
	configFile        string
	outputDir         string
	prFile            string
	archiveBaseURL    string
	maxTasks          int
	difficulty        []string
	difficultyTargets string
	minStars          int
	languages         []string
	model             string
	cacheDB           string
	once              bool
	botAccounts       []string
	blocklist         []string
	maxFiles          int
	qMin              float64
	ratePerHour       int
	baseImage         string
	toolServerBinary  string
	metricsAddr       string
}

// NewMineCommand builds the `mine` verb: run the Orchestrator over an
// archive hour range (or a static pr_file) until difficulty targets are
// met, max_tasks is reached, or (with --once) a single pass completes.
func NewMineCommand() *cobra.Command {
	opts := &mineOptions{}

	cmd := &cobra.Command{
		Use:   "mine",
		Short: "Mine merged pull requests into exported task instances",
		RunE: func(cmd *cobra.Command, _ []string) error {
			return runMine(cmd.Context(), opts)
		},
	}

	flags := cmd.Flags()
	flags.StringVar(&opts.configFile, "config", "", "optional YAML file of mine settings; CLI flags override it")
	flags.StringVar(&opts.outputDir, "output_dir", "", "directory task instances are exported to (required)")
	flags.StringVar(&opts.prFile, "pr_file", "", "path to a local gzip ndjson PR dump, replacing the live archive source")
	flags.StringVar(&opts.archiveBaseURL, "archive_base_url", "https://data.gharchive.org", "base URL for hourly archive dumps")
	flags.IntVar(&opts.maxTasks, "max_tasks", 0, "stop admitting new deep-processing work once this many tasks are exported (0 = unbounded)")
	flags.StringSliceVar(&opts.difficulty, "difficulty", nil, "allowlist of difficulty labels to export (default: all)")
	flags.StringVar(&opts.difficultyTargets, "difficulty_targets", "", "per-difficulty export targets, e.g. easy=20,medium=15,hard=5")
	flags.IntVar(&opts.minStars, "min_stars", 10, "minimum repository star count")
	flags.StringSliceVar(&opts.languages, "languages", []string{"python", "go", "javascript", "typescript", "java", "rust"}, "allowed languages")
	flags.StringVar(&opts.model, "model", "", "LLM model identifier for classification, quality scoring, and test generation")
	flags.StringVar(&opts.cacheDB, "cache_db", "prbench-cache.db", "path to the persistent dedup cache file")
	flags.BoolVar(&opts.once, "once", false, "ingest a single hour (or the whole pr_file) then exit, regardless of targets")
	flags.StringSliceVar(&opts.botAccounts, "bot_accounts", nil, "author logins to reject as bots")
	flags.StringSliceVar(&opts.blocklist, "blocklist", nil, "owner/name repos to always reject")
	flags.IntVar(&opts.maxFiles, "max_files", 20, "maximum changed files per candidate")
	flags.Float64Var(&opts.qMin, "q_min", 0.30, "minimum quality score to export")
	flags.IntVar(&opts.ratePerHour, "rate_per_hour", 4000, "code-hosting API rate budget, tokens/hour")
	flags.StringVar(&opts.baseImage, "base_image", "ubuntu-multi:latest", "container base image for deep processing")
	flags.StringVar(&opts.toolServerBinary, "toolserver_binary", "", "host path to a toolserverd binary to stage into each sandbox (empty disables the in-container tool server)")
	flags.StringVar(&opts.metricsAddr, "metrics_addr", "", "address to serve Prometheus /metrics on during the run (empty disables it)")

	return cmd
}

func runMine(ctx context.Context, opts *mineOptions) error {
	cliTargets, err := parseDifficultyTargets(opts.difficultyTargets)
	if err != nil {
		return &exitError{fmt.Errorf("--difficulty_targets: %w", err), 1}
	}
	rawTargets := make(map[string]int, len(cliTargets))
	for d, n := range cliTargets {
		rawTargets[string(d)] = n
	}

	mc, err := config.LoadMineConfig(opts.configFile, config.MineConfig{
		OutputDir:         opts.outputDir,
		PRFile:            opts.prFile,
		MaxTasks:          opts.maxTasks,
		Difficulty:        opts.difficulty,
		DifficultyTargets: rawTargets,
		MinStars:          opts.minStars,
		Languages:         opts.languages,
		Model:             opts.model,
		CacheDB:           opts.cacheDB,
		Once:              opts.once,
		Limits: config.LimitsConfig{
			QualityMin:        opts.qMin,
			MaxFiles:          opts.maxFiles,
			RateBudgetPerHour: opts.ratePerHour,
		},
	})
	if err != nil {
		return &exitError{fmt.Errorf("loading mine configuration: %w", err), 1}
	}

	creds, err := LoadCredentials()
	if err != nil {
		return &exitError{err, 1}
	}
	SetupLogging(creds.LogLevel)

	targets := make(pipeline.DifficultyTargets, len(mc.DifficultyTargets))
	for d, n := range mc.DifficultyTargets {
		targets[candidate.Difficulty(d)] = n
	}
	targets, err = applyDifficultyAllowlist(targets, mc.Difficulty)
	if err != nil {
		return &exitError{fmt.Errorf("--difficulty: %w", err), 1}
	}

	cache, err := prcache.Open(mc.CacheDB)
	if err != nil {
		return &exitError{fmt.Errorf("opening cache_db: %w", err), 2}
	}
	defer cache.Close()

	writer, err := export.NewWriter(mc.OutputDir)
	if err != nil {
		return &exitError{fmt.Errorf("creating output_dir: %w", err), 2}
	}

	var src archive.Source
	var startHour, endHour time.Time
	if mc.PRFile != "" {
		src = &archive.FileSource{Path: mc.PRFile}
		startHour = time.Now().UTC().Truncate(time.Hour)
		endHour = startHour
	} else {
		src = &archive.HTTPSource{BaseURL: opts.archiveBaseURL, HTTPClient: &http.Client{Timeout: 30 * time.Second}}
		endHour = time.Now().UTC().Add(-time.Hour).Truncate(time.Hour)
		if mc.Once {
			startHour = endHour
		} else {
			startHour = endHour.Add(-24 * time.Hour)
		}
	}

	deps := pipeline.Deps{
		Archive:   src,
		StartHour: startHour,
		EndHour:   endHour,
		PreFilter: filters.PreFilterConfig{BotAccounts: opts.botAccounts, Blocklist: opts.blocklist},
		LocalFilter: filters.LocalFilterConfig{
			Languages: mc.Languages,
			MinStars:  mc.MinStars,
			MaxFiles:  mc.Limits.MaxFiles,
		},
		GHAPI:     ghapi.New("https://api.github.com", creds.GitHubToken, mc.Limits.RateBudgetPerHour, nil),
		LLMClient: llm.NewOpenAICompatClient("https://api.openai.com/v1", creds.LLMAPIKey, nil),
		Extractor: patch.NewExtractor(os.TempDir()),
		Cache:     cache,
		Exporter:  writer,
		Budget:    pipeline.NewLLMBudget(0, 0),
	}

	cfg := pipeline.NewConfig(pipeline.Config{
		Permits: pipeline.StagePermits{
			Archive: int64(mc.Concurrency.Archive),
			Enrich:  int64(mc.Concurrency.Enrich),
			Pre:     int64(mc.Concurrency.Pre),
			Deep:    int64(mc.Concurrency.Deep),
		},
		BacklogMultiplier: mc.Concurrency.BacklogMultiplier,
		DifficultyTargets: targets,
		MaxTasks:          mc.MaxTasks,
		Model:             mc.Model,
		QMin:              mc.Limits.QualityMin,
		BaseImage:         opts.baseImage,
		TestgenLimits: testgen.Config{
			TurnMax:          mc.Limits.TurnMax,
			ShellTimeout:     mc.Limits.TurnTimeout,
			OutputMaxBytes:   mc.Limits.OutputMaxBytes,
			ValidationMax:    mc.Limits.ValidationRetries,
			ToolServerBinary: opts.toolServerBinary,
		},
	})

	orch := pipeline.NewOrchestrator(deps, cfg, nil)

	metrics.Serve(ctx, opts.metricsAddr)

	summary, err := orch.Run(ctx)
	if err != nil {
		return &exitError{err, 2}
	}

	slog.Info("mining run complete",
		"seen", summary.Seen,
		"exported", summary.Exported,
		"exported_by", summary.ExportedBy,
		"targets_met", summary.TargetsMet,
	)

	if len(targets) > 0 && !summary.TargetsMet {
		return &exitError{fmt.Errorf("mine exited before meeting difficulty targets"), 3}
	}
	return nil
}

// parseDifficultyTargets parses "easy=20,medium=15,hard=5" into a
// pipeline.DifficultyTargets map.
func parseDifficultyTargets(s string) (pipeline.DifficultyTargets, error) {
	if s == "" {
		return nil, nil
	}
	targets := make(pipeline.DifficultyTargets)
	for _, part := range strings.Split(s, ",") {
		part = strings.TrimSpace(part)
		if part == "" {
			continue
		}
		kv := strings.SplitN(part, "=", 2)
		if len(kv) != 2 {
			return nil, fmt.Errorf("malformed entry %q, want difficulty=count", part)
		}
		d := candidate.Difficulty(strings.TrimSpace(kv[0]))
		switch d {
		case candidate.DifficultyEasy, candidate.DifficultyMedium, candidate.DifficultyHard:
		default:
			return nil, fmt.Errorf("unknown difficulty %q", kv[0])
		}
		n, err := strconv.Atoi(strings.TrimSpace(kv[1]))
		if err != nil {
			return nil, fmt.Errorf("count for %q: %w", kv[0], err)
		}
		targets[d] = n
	}
	return targets, nil
}

// applyDifficultyAllowlist restricts preClassifyStage's admission to the
// labels named by --difficulty: any difficulty absent from allowed gets a
// zero quota (classifier.Classify's quota_full rule then rejects every
// candidate of that class), while labels in allowed keep whatever count
// --difficulty_targets gave them, or stay unbounded if it gave them none.
func applyDifficultyAllowlist(targets pipeline.DifficultyTargets, allowed []string) (pipeline.DifficultyTargets, error) {
	if len(allowed) == 0 {
		return targets, nil
	}
	allow := make(map[candidate.Difficulty]bool, len(allowed))
	for _, a := range allowed {
		d := candidate.Difficulty(strings.TrimSpace(a))
		switch d {
		case candidate.DifficultyEasy, candidate.DifficultyMedium, candidate.DifficultyHard:
		default:
			return nil, fmt.Errorf("unknown difficulty %q", a)
		}
		allow[d] = true
	}

	if targets == nil {
		targets = make(pipeline.DifficultyTargets)
	}
	for _, d := range []candidate.Difficulty{candidate.DifficultyEasy, candidate.DifficultyMedium, candidate.DifficultyHard} {
		if !allow[d] {
			targets[d] = 0
		}
	}
	return targets, nil
}
