// Package task contains the worker loop that drains the persistent
// queue: claiming batches, running acquisition and capture, submitting
// subjects to the judge, and recording outcomes.
package task

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"sync"
	"sync/atomic"
	"time"

	"github.com/google/uuid"

	"github.com/phrazzld/showhn-judge/internal/acquire"
	"github.com/phrazzld/showhn-judge/internal/config"
	"github.com/phrazzld/showhn-judge/internal/domain"
	"github.com/phrazzld/showhn-judge/internal/judge"
	"github.com/phrazzld/showhn-judge/internal/store"
)

// ErrAlreadyRunning is returned when Run is called on a running Runner.
var ErrAlreadyRunning = errors.New("worker is already running")

// Acquirer is the content acquisition surface the runner needs.
// *acquire.Acquirer satisfies it.
type Acquirer interface {
	Acquire(ctx context.Context, req acquire.Request) (*acquire.Result, error)
	FastPathEligible(rawURL string) bool
}

// Capturer is the screenshot pipeline surface the runner needs.
// *capture.Pipeline satisfies it.
type Capturer interface {
	Capture(ctx context.Context, subjectID uuid.UUID, pageURL string) error
	Persist(ctx context.Context, subjectID uuid.UUID, png []byte) error
	LoadScreenshot(subjectID uuid.UUID) ([]byte, error)
	MarkUncapturable(ctx context.Context, subjectID uuid.UUID) error
}

// Runner polls the task store and processes claimed work until its
// context is cancelled. Exactly one batch is in flight at a time; a
// cancelled context finishes the in-flight batch before Run returns.
type Runner struct {
	logger   *slog.Logger
	tasks    store.TaskStore
	subjects store.SubjectStore
	verdicts store.VerdictStore
	acquirer Acquirer
	capturer Capturer
	judge    judge.Judge

	cfg              config.WorkerConfig
	fetchConcurrency int

	running atomic.Bool
}

// NewRunner wires a Runner from its collaborators.
func NewRunner(
	logger *slog.Logger,
	tasks store.TaskStore,
	subjects store.SubjectStore,
	verdicts store.VerdictStore,
	acquirer Acquirer,
	capturer Capturer,
	j judge.Judge,
	workerCfg config.WorkerConfig,
	acquireCfg config.AcquireConfig,
) (*Runner, error) {
	if logger == nil {
		return nil, errors.New("logger cannot be nil")
	}
	if tasks == nil || subjects == nil || verdicts == nil {
		return nil, errors.New("stores cannot be nil")
	}
	if acquirer == nil || capturer == nil || j == nil {
		return nil, errors.New("pipeline collaborators cannot be nil")
	}
	return &Runner{
		logger:           logger,
		tasks:            tasks,
		subjects:         subjects,
		verdicts:         verdicts,
		acquirer:         acquirer,
		capturer:         capturer,
		judge:            j,
		cfg:              workerCfg,
		fetchConcurrency: acquireCfg.FetchConcurrency,
	}, nil
}

// Run is the worker loop. It blocks until ctx is cancelled, finishing
// any batch already claimed.
func (r *Runner) Run(ctx context.Context) error {
	if !r.running.CompareAndSwap(false, true) {
		return ErrAlreadyRunning
	}
	defer r.running.Store(false)

	r.logger.InfoContext(ctx, "worker started",
		"batch_size", r.cfg.BatchSize,
		"poll_interval", r.cfg.PollInterval,
		"stale_timeout", r.cfg.StaleTimeout)

	maintenance := time.NewTicker(r.cfg.StatsInterval)
	defer maintenance.Stop()

	for {
		select {
		case <-ctx.Done():
			r.logger.InfoContext(ctx, "worker stopping")
			return nil
		case <-maintenance.C:
			r.maintain(ctx)
		default:
		}

		processed, err := r.ProcessBatch(ctx)
		if err != nil {
			if ctx.Err() != nil {
				r.logger.InfoContext(ctx, "worker stopping")
				return nil
			}
			r.logger.ErrorContext(ctx, "batch processing failed", "error", err)
		}

		if processed == 0 {
			select {
			case <-ctx.Done():
				r.logger.InfoContext(ctx, "worker stopping")
				return nil
			case <-time.After(r.cfg.PollInterval):
			}
		}
	}
}

// maintain reclaims stale tasks and logs the queue breakdown.
func (r *Runner) maintain(ctx context.Context) {
	reclaimed, err := r.tasks.ReclaimStaleTasks(ctx, r.cfg.StaleTimeout)
	if err != nil {
		r.logger.ErrorContext(ctx, "stale task reclaim failed", "error", err)
	} else if reclaimed > 0 {
		r.logger.WarnContext(ctx, "reclaimed stale tasks", "count", reclaimed)
	}

	stats, err := r.tasks.GetStats(ctx)
	if err != nil {
		r.logger.ErrorContext(ctx, "queue stats unavailable", "error", err)
		return
	}
	attrs := make([]any, 0, len(stats)*2)
	for _, s := range stats {
		attrs = append(attrs, fmt.Sprintf("%s_%s", s.Type, s.Status), s.Count)
	}
	r.logger.InfoContext(ctx, "queue stats", attrs...)
}

// ProcessBatch claims one batch and processes it to completion. Returns
// the number of tasks claimed.
func (r *Runner) ProcessBatch(ctx context.Context) (int, error) {
	tasks, err := r.tasks.DequeueBatch(ctx, r.cfg.BatchSize, nil)
	if err != nil {
		return 0, fmt.Errorf("dequeuing batch: %w", err)
	}
	if len(tasks) == 0 {
		return 0, nil
	}

	var visual, judging []*domain.Task
	for _, t := range tasks {
		switch t.Type {
		case domain.TaskTypeVisual:
			visual = append(visual, t)
		case domain.TaskTypeCombined, domain.TaskTypeJudge:
			judging = append(judging, t)
		default:
			// Unreachable while the enum stays closed at the store, but a
			// bad row must not wedge the loop.
			r.failTask(ctx, t, fmt.Errorf("unknown task type %q", t.Type))
		}
	}

	r.processVisualTasks(ctx, visual)
	r.processJudgingTasks(ctx, judging)

	return len(tasks), nil
}

// processVisualTasks runs capture-only tasks one at a time; they share
// a single browser.
func (r *Runner) processVisualTasks(ctx context.Context, tasks []*domain.Task) {
	for _, t := range tasks {
		r.processVisualTask(ctx, t)
		r.pace(ctx, r.cfg.VisualPacing)
	}
}

func (r *Runner) processVisualTask(ctx context.Context, t *domain.Task) {
	subject, err := r.subjects.GetByID(ctx, t.SubjectID)
	if err != nil {
		r.failTask(ctx, t, fmt.Errorf("loading subject: %w", err))
		return
	}
	if subject.URL == "" {
		// Nothing to capture; the task is trivially done.
		r.completeTask(ctx, t)
		return
	}

	if err := r.capturer.Capture(ctx, subject.ID, subject.URL); err != nil {
		r.failTask(ctx, t, err)
		if t.Attempts >= t.MaxAttempts {
			if markErr := r.capturer.MarkUncapturable(ctx, subject.ID); markErr != nil {
				r.logger.ErrorContext(ctx, "failed to deactivate uncapturable subject",
					"subject_id", subject.ID,
					"error", markErr)
			}
		}
		return
	}
	r.completeTask(ctx, t)
}

// judgingItem tracks one judge-bearing task through acquisition.
type judgingItem struct {
	task    *domain.Task
	subject *domain.Subject
	result  *acquire.Result
	err     error
}

// processJudgingTasks acquires content for every judge-bearing task and
// submits all successfully acquired subjects in one judge call. Each
// task still succeeds or fails on its own.
func (r *Runner) processJudgingTasks(ctx context.Context, tasks []*domain.Task) {
	if len(tasks) == 0 {
		return
	}

	items := make([]*judgingItem, 0, len(tasks))
	for _, t := range tasks {
		item := &judgingItem{task: t}
		item.subject, item.err = r.subjects.GetByID(ctx, t.SubjectID)
		items = append(items, item)
	}

	r.acquireAll(ctx, items)

	payloads := make([]judge.Payload, 0, len(items))
	bySubject := make(map[uuid.UUID]*judgingItem, len(items))
	for _, item := range items {
		if item.err != nil {
			r.failTask(ctx, item.task, item.err)
			continue
		}
		payload, err := r.buildPayload(ctx, item)
		if err != nil {
			r.failTask(ctx, item.task, err)
			continue
		}
		payloads = append(payloads, payload)
		bySubject[item.subject.ID] = item
	}
	if len(payloads) == 0 {
		return
	}

	results, err := r.judge.JudgeSubjects(ctx, payloads)
	if err != nil {
		for _, item := range bySubject {
			r.failTask(ctx, item.task, fmt.Errorf("judging batch: %w", err))
		}
		return
	}

	for _, res := range results {
		item, ok := bySubject[res.SubjectID]
		if !ok {
			r.logger.ErrorContext(ctx, "judge returned verdict for unknown subject",
				"subject_id", res.SubjectID)
			continue
		}
		if res.Err != nil {
			r.failTask(ctx, item.task, res.Err)
			continue
		}
		if err := r.verdicts.Upsert(ctx, res.Verdict); err != nil {
			r.failTask(ctx, item.task, fmt.Errorf("storing verdict: %w", err))
			continue
		}
		r.completeTask(ctx, item.task)
	}

	r.pace(ctx, r.cfg.JudgePacing)
}

// acquireAll runs acquisition for every item. Fast-path subjects fetch
// in parallel under a concurrency bound; render-path subjects run
// sequentially since they serialize on the browser anyway.
func (r *Runner) acquireAll(ctx context.Context, items []*judgingItem) {
	var fast, render []*judgingItem
	for _, item := range items {
		if item.err != nil {
			continue
		}
		if item.subject.URL != "" && r.acquirer.FastPathEligible(item.subject.URL) {
			fast = append(fast, item)
		} else {
			render = append(render, item)
		}
	}

	var wg sync.WaitGroup
	sem := make(chan struct{}, r.fetchConcurrency)
	for _, item := range fast {
		wg.Add(1)
		go func(item *judgingItem) {
			defer wg.Done()
			sem <- struct{}{}
			defer func() { <-sem }()
			r.acquireItem(ctx, item)
		}(item)
	}
	wg.Wait()

	for _, item := range render {
		r.acquireItem(ctx, item)
	}
}

func (r *Runner) acquireItem(ctx context.Context, item *judgingItem) {
	s := item.subject
	item.result, item.err = r.acquirer.Acquire(ctx, acquire.Request{
		SubjectID:     s.ID,
		Title:         s.Title,
		URL:           s.URL,
		AuthorText:    s.AuthorText,
		HasScreenshot: s.HasScreenshot,
	})
	if item.err != nil {
		return
	}

	// A render-path visit captures the screenshot as a side effect when
	// the subject had none. The browser already paid for it, so persist
	// it whatever the task type; later visits then skip recapturing.
	if len(item.result.Screenshot) > 0 {
		if err := r.capturer.Persist(ctx, s.ID, item.result.Screenshot); err != nil {
			r.logger.ErrorContext(ctx, "failed to persist captured screenshot",
				"subject_id", s.ID,
				"error", err)
		}
	}

	item.err = r.storeAcquisition(ctx, item)
}

// storeAcquisition writes the acquisition results back onto the subject.
func (r *Runner) storeAcquisition(ctx context.Context, item *judgingItem) error {
	res := item.result
	update := store.SubjectUpdate{
		PageText:   &res.PageText,
		ReadmeText: &res.ReadmeText,
	}
	if res.UsedFastPath {
		update.RepoStars = &res.RepoStars
		update.RepoForks = &res.RepoForks
		update.RepoLanguage = &res.RepoLanguage
		update.RepoDescription = &res.RepoDescription
	}
	if err := r.subjects.UpdateAcquisition(ctx, item.subject.ID, update); err != nil {
		return fmt.Errorf("storing acquisition: %w", err)
	}
	return nil
}

// buildPayload assembles the judge input for one acquired item.
func (r *Runner) buildPayload(ctx context.Context, item *judgingItem) (judge.Payload, error) {
	s, res := item.subject, item.result

	payload := judge.Payload{
		SubjectID:  s.ID,
		Title:      s.Title,
		URL:        s.URL,
		Text:       res.PageText,
		AuthorText: s.AuthorText,
		Readme:     res.ReadmeText,
	}
	if res.UsedFastPath {
		payload.RepoStars = res.RepoStars
		payload.RepoLanguage = res.RepoLanguage
	}

	// The stored screenshot rides along as judge input when one exists.
	png, err := r.capturer.LoadScreenshot(s.ID)
	if err != nil {
		r.logger.WarnContext(ctx, "screenshot unavailable for judging",
			"subject_id", s.ID,
			"error", err)
	} else {
		payload.ImagePNG = png
	}
	return payload, nil
}

func (r *Runner) completeTask(ctx context.Context, t *domain.Task) {
	if err := r.tasks.CompleteTask(ctx, t.ID); err != nil {
		r.logger.ErrorContext(ctx, "failed to mark task completed",
			"task_id", t.ID,
			"error", err)
		return
	}
	r.logger.InfoContext(ctx, "task completed",
		"task_id", t.ID,
		"task_type", t.Type,
		"subject_id", t.SubjectID)
}

func (r *Runner) failTask(ctx context.Context, t *domain.Task, taskErr error) {
	r.logger.WarnContext(ctx, "task failed",
		"task_id", t.ID,
		"task_type", t.Type,
		"subject_id", t.SubjectID,
		"attempt", t.Attempts,
		"max_attempts", t.MaxAttempts,
		"error", taskErr)
	if err := r.tasks.FailTask(ctx, t.ID, taskErr); err != nil {
		r.logger.ErrorContext(ctx, "failed to record task failure",
			"task_id", t.ID,
			"error", err)
	}
}

// pace sleeps the configured delay between repeated operations of one
// task type, bailing early on shutdown.
func (r *Runner) pace(ctx context.Context, d time.Duration) {
	if d <= 0 {
		return
	}
	select {
	case <-time.After(d):
	case <-ctx.Done():
	}
}
