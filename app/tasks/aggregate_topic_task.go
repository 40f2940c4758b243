package tasks

import (
	"context"
	"fmt"
	"log/slog"
	"time"

	"github.com/google/uuid"

	"github.com/lysyi3m/sports-comb/app/database"
	"github.com/lysyi3m/sports-comb/app/feed"
)

type AggregateTopicTask struct {
	Task
	TopicConfig *feed.TopicConfig
	refresher   *SectionRefresher
	topicRepo   database.TopicRepository
	runRepo     database.RunRepository
	now         func() time.Time
}

func NewAggregateTopicTask(topicConfig *feed.TopicConfig, refresher *SectionRefresher,
	topicRepo database.TopicRepository, runRepo database.RunRepository) *AggregateTopicTask {
	return &AggregateTopicTask{
		Task:        NewTask(TaskTypeAggregateTopic, topicConfig.Name),
		TopicConfig: topicConfig,
		refresher:   refresher,
		topicRepo:   topicRepo,
		runRepo:     runRepo,
		now:         time.Now,
	}
}

// Execute refreshes every section of the topic, deduplicates the combined
// items and replaces the stored payload. Section failures only shrink the
// result; a failed write fails the task. When another refresh holds any of
// the sections the stored payload is left as it is.
func (t *AggregateTopicTask) Execute(ctx context.Context) error {
	select {
	case <-ctx.Done():
		return ctx.Err()
	default:
	}

	if !t.TopicConfig.IsEnabled() {
		slog.Debug("Topic disabled, skipping", "topic", t.Target)
		return nil
	}

	runID := uuid.NewString()
	if err := t.runRepo.StartRun(runID, t.Target, t.now()); err != nil {
		slog.Warn("Failed to record run start", "topic", t.Target, "run_id", runID, "error", err)
	}

	keys := t.TopicConfig.SectionKeys()
	var raws []feed.RawItem
	var busy []string
	added := 0

	for _, key := range keys {
		if err := ctx.Err(); err != nil {
			t.finishRun(runID, database.RunStatusFailed, 0, err)
			return err
		}

		outcome := t.refresher.Refresh(ctx, key, t.TopicConfig.ItemsPerSection)
		if outcome.Skipped {
			busy = append(busy, key.String())
			continue
		}
		if !outcome.Result.OK() {
			continue
		}

		added += outcome.Added
		raws = append(raws, outcome.Result.Items...)
	}

	// A partial rebuild would overwrite a complete payload.
	if len(busy) > 0 {
		t.finishRun(runID, database.RunStatusSkipped, 0, nil)
		slog.Info("Topic refresh skipped, sections busy",
			"topic", t.Target,
			"run_id", runID,
			"busy", busy,
			"duration", t.GetDuration())
		return nil
	}

	deduplicator := feed.NewDeduplicator(t.Target, t.TopicConfig.PrioritySourceOrder, t.TopicConfig.MaxItems)
	processed, result, skipped := deduplicator.Process(raws, t.now())

	for _, s := range skipped {
		slog.Debug("Item skipped", "topic", t.Target, "source", s.Item.Source, "link", s.Item.Link, "reason", s.Reason)
	}

	payload, err := feed.MarshalProcessedTopic(processed)
	if err != nil {
		t.finishRun(runID, database.RunStatusFailed, 0, err)
		return fmt.Errorf("failed to encode processed topic: %w", err)
	}

	if err := t.topicRepo.SaveProcessedTopic(t.Target, payload, processed.UpdatedAt); err != nil {
		t.finishRun(runID, database.RunStatusFailed, 0, err)
		return fmt.Errorf("failed to save processed topic: %w", err)
	}

	t.finishRun(runID, database.RunStatusSucceeded, len(processed.Items), nil)

	slog.Info("Task completed",
		"type", "AggregateTopic",
		"topic", t.Target,
		"run_id", runID,
		"duration", t.GetDuration(),
		"sections", len(keys),
		"input", len(raws),
		"added", added,
		"skipped", len(skipped),
		"groups", result.GroupCount,
		"exact", result.ExactMatches,
		"fuzzy", result.FuzzyMatches,
		"items", len(processed.Items),
		"truncated", processed.OverflowTruncated)

	return nil
}

func (t *AggregateTopicTask) finishRun(runID, status string, itemCount int, runErr error) {
	var errMsg string
	if runErr != nil {
		errMsg = runErr.Error()
	}
	if err := t.runRepo.FinishRun(runID, t.now(), status, itemCount, errMsg); err != nil {
		slog.Warn("Failed to record run result", "topic", t.Target, "run_id", runID, "error", err)
	}
}
