// Package main implements the reprocessing tool: it bulk re-enqueues
// tasks for subject sets selected by filter flags, bypassing the
// duplicate-task check.
package main

import (
	"context"
	"database/sql"
	"flag"
	"fmt"
	"log"
	"strings"
	"time"

	"github.com/google/uuid"
	_ "github.com/jackc/pgx/v5/stdlib"

	"github.com/phrazzld/showhn-judge/internal/config"
	"github.com/phrazzld/showhn-judge/internal/domain"
	"github.com/phrazzld/showhn-judge/internal/platform/logger"
	"github.com/phrazzld/showhn-judge/internal/platform/postgres"
	"github.com/phrazzld/showhn-judge/internal/store"
)

func main() {
	var (
		missingVerdict = flag.Bool("missing-verdict", false, "select subjects with no verdict")
		before         = flag.String("before", "", "select subjects verdicted before this RFC3339 time")
		modelID        = flag.String("model", "", "select subjects verdicted by this model id")
		idList         = flag.String("ids", "", "comma-separated subject ids to select")
		taskType       = flag.String("type", string(domain.TaskTypeCombined), "task type to enqueue (combined, judge, visual)")
		priority       = flag.Int("priority", 0, "priority for the new tasks")
		dryRun         = flag.Bool("dry-run", false, "select and count, enqueue nothing")
	)
	flag.Parse()

	if err := run(*missingVerdict, *before, *modelID, *idList, *taskType, *priority, *dryRun); err != nil {
		log.Fatalf("reprocess failed: %v", err)
	}
}

func run(missingVerdict bool, before, modelID, idList, taskType string, priority int, dryRun bool) error {
	if !domain.IsValidTaskType(domain.TaskType(taskType)) {
		return fmt.Errorf("unknown task type %q", taskType)
	}

	filter, err := buildFilter(missingVerdict, before, modelID, idList)
	if err != nil {
		return err
	}

	cfg, err := config.Load()
	if err != nil {
		return fmt.Errorf("loading configuration: %w", err)
	}
	if _, err := logger.Setup(cfg.Server); err != nil {
		return fmt.Errorf("setting up logger: %w", err)
	}

	ctx := context.Background()
	db, err := sql.Open("pgx", cfg.Database.URL)
	if err != nil {
		return fmt.Errorf("opening database: %w", err)
	}
	defer func() { _ = db.Close() }()

	verdicts := postgres.NewPostgresVerdictStore(db)
	tasks := postgres.NewPostgresTaskStore(db)

	ids, err := verdicts.SelectSubjectIDs(ctx, filter)
	if err != nil {
		return fmt.Errorf("selecting subjects: %w", err)
	}
	fmt.Printf("selected %d subjects\n", len(ids))
	if dryRun {
		return nil
	}

	enqueued := 0
	for _, id := range ids {
		t, err := tasks.Enqueue(ctx, domain.TaskType(taskType), id, priority, true)
		if err != nil {
			return fmt.Errorf("enqueueing subject %s: %w", id, err)
		}
		if t != nil {
			enqueued++
		}
	}
	fmt.Printf("enqueued %d %s tasks\n", enqueued, taskType)

	stats, err := tasks.GetStats(ctx)
	if err != nil {
		return fmt.Errorf("reading queue stats: %w", err)
	}
	for _, s := range stats {
		fmt.Printf("%-10s %-12s %d\n", s.Type, s.Status, s.Count)
	}
	return nil
}

// buildFilter turns the flag set into a subject filter, rejecting
// conflicting selectors.
func buildFilter(missingVerdict bool, before, modelID, idList string) (store.SubjectFilter, error) {
	var filter store.SubjectFilter
	selectors := 0

	if missingVerdict {
		filter.MissingVerdict = true
		selectors++
	}
	if before != "" {
		cutoff, err := time.Parse(time.RFC3339, before)
		if err != nil {
			return store.SubjectFilter{}, fmt.Errorf("parsing -before: %w", err)
		}
		filter.AnalyzedBefore = &cutoff
		selectors++
	}
	if modelID != "" {
		filter.ModelID = modelID
		selectors++
	}
	if idList != "" {
		for _, raw := range strings.Split(idList, ",") {
			id, err := uuid.Parse(strings.TrimSpace(raw))
			if err != nil {
				return store.SubjectFilter{}, fmt.Errorf("parsing subject id %q: %w", raw, err)
			}
			filter.IDs = append(filter.IDs, id)
		}
		selectors++
	}

	if selectors > 1 {
		return store.SubjectFilter{}, fmt.Errorf("use at most one of -missing-verdict, -before, -model, -ids")
	}
	return filter, nil
}
