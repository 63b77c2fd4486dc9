package pipeline

import (
	"context"
	"crypto/rand"
	"encoding/hex"
	"fmt"
	"log/slog"
	"sync"
	"time"

	"golang.org/x/sync/semaphore"

	"github.com/prbench/prbench/pkg/archive"
	"github.com/prbench/prbench/pkg/bencherrors"
	"github.com/prbench/prbench/pkg/candidate"
	"github.com/prbench/prbench/pkg/classifier"
	"github.com/prbench/prbench/pkg/filters"
	"github.com/prbench/prbench/pkg/metrics"
	"github.com/prbench/prbench/pkg/quality"
	"github.com/prbench/prbench/pkg/rewriter"
	"github.com/prbench/prbench/pkg/sandbox"
	"github.com/prbench/prbench/pkg/testgen"
)

// scoredCandidate carries an enriched candidate alongside the coarse
// difficulty label PreClassifier assigned it, the unit DeepProcessing
// consumes.
type scoredCandidate struct {
	Cand       candidate.Candidate
	Difficulty candidate.Difficulty
}

// Orchestrator wires every stage together as spec.md §4.11 describes:
// streaming, per-stage semaphores, backpressure-bounded queues,
// difficulty-target admission control, and cooperative cancellation.
type Orchestrator struct {
	Deps
	Config Config

	Counters *Counters
	Events   chan<- Event // optional; nil disables progress reporting

	cancel context.CancelFunc
}

// NewOrchestrator builds an Orchestrator from deps and cfg, filling any
// unset Config field with spec.md's defaults.
func NewOrchestrator(deps Deps, cfg Config, events chan<- Event) *Orchestrator {
	return &Orchestrator{
		Deps:     deps,
		Config:   NewConfig(cfg),
		Counters: NewCounters(),
		Events:   events,
	}
}

// Run drains the configured archive hour range end to end: ingest,
// pre-filter, enrich, local-filter, pre-classify, deep-process, export.
// It blocks until every stage drains (source exhausted, difficulty
// targets met, max_tasks reached, or ctx cancelled) and returns the final
// Summary. Per spec.md §7, Fatal conditions are the only ones returned as
// an error; everything else is folded into the Summary's counts.
func (o *Orchestrator) Run(ctx context.Context) (Summary, error) {
	runCtx, cancel := context.WithCancel(ctx)
	o.cancel = cancel
	defer cancel()

	if _, err := o.Cache.RecoverStuckInProgress(o.Config.CacheRecoverGrace, time.Now()); err != nil {
		return Summary{}, bencherrors.New(bencherrors.Fatal, "recovering stuck cache entries", err)
	}

	depth := func(permits int64) int {
		return int(permits) * o.Config.BacklogMultiplier
	}

	rawCh := make(chan candidate.Candidate, depth(o.Config.Permits.Archive))
	archErrCh := make(chan error, 1)
	go archive.Ingest(runCtx, o.Deps.Archive, o.Deps.StartHour, o.Deps.EndHour, int(o.Config.Permits.Archive), rawCh, archErrCh)

	preFilteredCh := make(chan candidate.Candidate, depth(o.Config.Permits.Enrich))
	go o.preFilterStage(runCtx, rawCh, preFilteredCh)

	dedupedCh := make(chan candidate.Candidate, depth(o.Config.Permits.Enrich))
	go o.dedupStage(runCtx, preFilteredCh, dedupedCh)

	enrichedCh := make(chan candidate.Candidate, depth(o.Config.Permits.Pre))
	go o.enrichStage(runCtx, dedupedCh, enrichedCh)

	localFilteredCh := make(chan candidate.Candidate, depth(o.Config.Permits.Pre))
	go o.localFilterStage(runCtx, enrichedCh, localFilteredCh)

	scoredCh := make(chan scoredCandidate, depth(o.Config.Permits.Deep))
	go o.preClassifyStage(runCtx, localFilteredCh, scoredCh)

	o.deepStage(runCtx, scoredCh)

	var archErr error
	select {
	case archErr = <-archErrCh:
	default:
	}

	targetsMet := o.Config.DifficultyTargets.targetsMet(o.Counters.ExportedByDifficulty())
	summary := o.Counters.Snapshot(targetsMet)

	if archErr != nil {
		slog.Warn("archive ingest reported a stage error", "error", archErr)
	}

	return summary, nil
}

// preFilterStage rejects shallow candidates before any enrichment call is
// spent: bot authors and blocklisted repos. Cheap and synchronous, so it
// runs on a single goroutine rather than behind a semaphore.
func (o *Orchestrator) preFilterStage(ctx context.Context, in <-chan candidate.Candidate, out chan<- candidate.Candidate) {
	defer close(out)
	for cand := range in {
		o.Counters.incSeen()
		metrics.CandidatesSeen.Inc()
		if err := filters.PreFilter(cand, o.Deps.PreFilter); err != nil {
			o.reject(cand, err)
			continue
		}
		select {
		case out <- cand:
		case <-ctx.Done():
			return
		}
	}
}

// dedupStage is the pipeline's cache-insert gate, run before any call that
// costs GH API or LLM budget. Per spec.md §5's stage ordering ("cache
// insert → enrich → filter → pre-classify → ..."), TryInsertSeen happens
// here, first, so a candidate already recorded by this or a prior run —
// whatever stage previously rejected, failed, or exported it — never
// re-enters enrichment or pre-classification on a repeat run against the
// same cache.
func (o *Orchestrator) dedupStage(ctx context.Context, in <-chan candidate.Candidate, out chan<- candidate.Candidate) {
	defer close(out)
	for cand := range in {
		inserted, err := o.Deps.Cache.TryInsertSeen(cand.Key(), time.Now())
		if err != nil {
			slog.Warn("cache try_insert_seen failed", "key", cand.Key().String(), "error", err)
			continue
		}
		if !inserted {
			continue // already seen by a prior or concurrent run
		}
		select {
		case out <- cand:
		case <-ctx.Done():
			return
		}
	}
}

// enrichStage fans out to o.Config.Permits.Enrich concurrent Enrich calls,
// each going through the shared credential rate limiter inside o.GHAPI.
func (o *Orchestrator) enrichStage(ctx context.Context, in <-chan candidate.Candidate, out chan<- candidate.Candidate) {
	defer close(out)
	sem := semaphore.NewWeighted(o.Config.Permits.Enrich)
	var wg sync.WaitGroup

	for cand := range in {
		if err := sem.Acquire(ctx, 1); err != nil {
			break
		}
		wg.Add(1)
		go func(cand candidate.Candidate) {
			defer wg.Done()
			defer sem.Release(1)

			if err := o.Deps.GHAPI.Enrich(ctx, &cand); err != nil {
				o.reject(cand, err)
				return
			}
			cand.Enriched = true

			if err := filters.RejectIfUserOwned(cand.OwnerType); err != nil {
				o.reject(cand, err)
				return
			}

			select {
			case out <- cand:
			case <-ctx.Done():
			}
		}(cand)
	}
	wg.Wait()
}

// localFilterStage applies the enriched-candidate allowlists and bounds:
// language, star floor, changed-file bounds, test-only changes.
func (o *Orchestrator) localFilterStage(ctx context.Context, in <-chan candidate.Candidate, out chan<- candidate.Candidate) {
	defer close(out)
	for cand := range in {
		if err := filters.LocalFilter(cand, o.Deps.LocalFilter); err != nil {
			o.reject(cand, err)
			continue
		}
		select {
		case out <- cand:
		case <-ctx.Done():
			return
		}
	}
}

// preClassifyStage labels each candidate's coarse difficulty via one
// forced LLM tool call, rejecting candidates whose class quota is already
// met under the configured difficulty targets.
func (o *Orchestrator) preClassifyStage(ctx context.Context, in <-chan candidate.Candidate, out chan<- scoredCandidate) {
	defer close(out)
	sem := semaphore.NewWeighted(o.Config.Permits.Pre)
	var wg sync.WaitGroup

	targets := classifier.DifficultyTargets(o.Config.DifficultyTargets)

	for cand := range in {
		if err := sem.Acquire(ctx, 1); err != nil {
			break
		}
		wg.Add(1)
		go func(cand candidate.Candidate) {
			defer wg.Done()
			defer sem.Release(1)

			result, err := classifier.Classify(ctx, o.Deps.LLMClient, o.Config.Model, cand, targets, o.Counters.ExportedByDifficulty())
			if err != nil {
				o.reject(cand, err)
				return
			}

			select {
			case out <- scoredCandidate{Cand: cand, Difficulty: result.Classification}:
			case <-ctx.Done():
			}
		}(cand)
	}
	wg.Wait()
}

// deepStage is the admission-controlled terminal stage: it stops pulling
// new candidates once difficulty targets (or max_tasks) are met, drains
// in-flight sessions, and triggers cooperative shutdown of every upstream
// stage by cancelling runCtx.
func (o *Orchestrator) deepStage(ctx context.Context, in <-chan scoredCandidate) {
	sem := semaphore.NewWeighted(o.Config.Permits.Deep)
	var wg sync.WaitGroup

	for sc := range in {
		if o.admissionClosed() {
			o.cancel() // stop upstream from producing more work
			break
		}

		if err := sem.Acquire(ctx, 1); err != nil {
			break
		}
		wg.Add(1)
		go func(sc scoredCandidate) {
			defer wg.Done()
			defer sem.Release(1)
			o.processDeep(ctx, sc)
		}(sc)
	}

	wg.Wait()
}

func (o *Orchestrator) admissionClosed() bool {
	if o.Config.MaxTasks > 0 && o.Counters.Snapshot(false).Exported >= o.Config.MaxTasks {
		return true
	}
	return o.Config.DifficultyTargets.targetsMet(o.Counters.ExportedByDifficulty())
}

// processDeep runs one candidate through PatchExtractor, DockerSandbox,
// TestGenerator, QualityScorer, PromptRewriter, and export, acquiring and
// releasing the three deep-processing resources (container, LLM budget
// slot; the deep permit itself is held by the caller) in LIFO order per
// spec.md §5.
func (o *Orchestrator) processDeep(ctx context.Context, sc scoredCandidate) {
	start := time.Now()
	defer func() { metrics.DeepProcessingDuration.Observe(time.Since(start).Seconds()) }()

	cand := sc.Cand
	key := cand.Key()
	now := time.Now()

	if err := o.Deps.Budget.Acquire(ctx, now); err != nil {
		return // pipeline shutting down while waiting on budget
	}
	defer o.Deps.Budget.Release()

	limits := sandbox.LimitsForDifficulty(sc.Difficulty)
	sbox, err := sandbox.Start(ctx, o.Config.BaseImage, limits)
	if err != nil {
		o.fail(cand, "container_create_failed", err)
		return
	}
	defer sbox.Close(ctx)

	if err := o.Deps.Cache.MarkInProgress(key, now); err != nil {
		slog.Warn("cache mark_in_progress failed", "key", key.String(), "error", err)
	}

	repoURL := fmt.Sprintf(o.Config.RepoURLTemplate, cand.Repo.Owner, cand.Repo.Name)

	p, err := o.Deps.Extractor.Extract(ctx, repoURL, &cand)
	if err != nil {
		o.fail(cand, bencherrors.ReasonOf(err), err)
		return
	}

	canary := newCanary()
	sanitizedPrompt := rewriter.Rewrite(cand.Body, canary)

	env := candidate.Environment{BaseImage: o.Config.BaseImage, Setup: o.Config.SetupCommands}
	gen := testgen.NewGenerator(sbox, o.Deps.LLMClient, o.Config.Model, o.Config.TestgenLimits)

	result, err := gen.Run(ctx, repoURL, cand, env, sanitizedPrompt)
	if err != nil {
		o.fail(cand, result.Reason, err)
		return
	}
	if result.State != testgen.StateSubmitted {
		o.fail(cand, result.Reason, nil)
		return
	}

	qres, err := quality.Score(ctx, o.Deps.LLMClient, o.Config.Model, quality.Input{
		Title:           cand.Title,
		SanitizedPrompt: sanitizedPrompt,
		Patch:           p.Text,
		TestSpec:        result.TestSpec,
	}, o.Config.QMin)
	if err != nil {
		o.reject(cand, err)
		return
	}

	ti := candidate.TaskInstance{
		TaskID:       candidate.NewTaskID(cand.Repo, cand.Number),
		Repo:         cand.Repo,
		Number:       cand.Number,
		BaseCommit:   cand.BaseCommit,
		MergeCommit:  cand.MergeCommit,
		Language:     cand.Language,
		Difficulty:   sc.Difficulty,
		QualityScore: qres.Score,
		Prompt:       sanitizedPrompt,
		Patch:        *p,
		TestSpec:     result.TestSpec,
		Canary:       canary,
		Environment:  env,
	}

	if err := o.Deps.Exporter.Export(ti); err != nil {
		o.fail(cand, "export_failed", err)
		return
	}

	if err := o.Deps.Cache.MarkExported(key, time.Now()); err != nil {
		slog.Warn("cache mark_exported failed", "key", key.String(), "error", err)
	}
	o.Counters.incExported(sc.Difficulty)
	metrics.TasksExported.WithLabelValues(string(sc.Difficulty)).Inc()
	o.emit("export", ti.TaskID, "exported", "")
}

func (o *Orchestrator) reject(cand candidate.Candidate, err error) {
	reason := bencherrors.ReasonOf(err)
	if reason == "" {
		reason = "rejected"
	}
	if markErr := o.Deps.Cache.MarkRejected(cand.Key(), reason, time.Now()); markErr != nil {
		slog.Warn("cache mark_rejected failed", "key", cand.Key().String(), "error", markErr)
	}
	o.Counters.incRejected(reason)
	metrics.CandidatesRejected.WithLabelValues(reason).Inc()
	o.emit("filter", candidate.NewTaskID(cand.Repo, cand.Number), "rejected", reason)
}

func (o *Orchestrator) fail(cand candidate.Candidate, reason string, err error) {
	if reason == "" {
		reason = "failed"
	}
	if markErr := o.Deps.Cache.MarkFailed(cand.Key(), reason, time.Now()); markErr != nil {
		slog.Warn("cache mark_failed failed", "key", cand.Key().String(), "error", markErr)
	}
	o.Counters.incFailed(reason)
	metrics.CandidatesFailed.WithLabelValues(reason).Inc()
	o.emit("deep", candidate.NewTaskID(cand.Repo, cand.Number), "failed", reason)
	if err != nil {
		slog.Debug("deep processing failed", "repo", cand.Repo.String(), "number", cand.Number, "reason", reason, "error", err)
	}
}

func newCanary() string {
	buf := make([]byte, 16)
	if _, err := rand.Read(buf); err != nil {
		return fmt.Sprintf("canary-fallback-%d", time.Now().UnixNano())
	}
	return "prbench-" + hex.EncodeToString(buf)
}
