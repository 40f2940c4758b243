package tasks

import (
	"context"
	"log/slog"
	"time"

	"github.com/lysyi3m/sports-comb/app/database"
	"github.com/lysyi3m/sports-comb/app/feed"
	"github.com/lysyi3m/sports-comb/app/source"
)

// SectionOutcome is what one refresh of a (source, section) produced.
type SectionOutcome struct {
	Result  source.Result
	Skipped bool // another refresh holds the section
	Added   int  // URLs new to the section's article store
}

// SectionRefresher fetches one section under its lock, stores the articles
// and records the refresh stats. Topic runs and section feeds share it.
type SectionRefresher struct {
	fetcher     SectionFetcher
	locks       SectionLocker
	articleRepo database.ArticleRepository
	sectionRepo database.SectionRepository
	now         func() time.Time
}

func NewSectionRefresher(fetcher SectionFetcher, locks SectionLocker,
	articleRepo database.ArticleRepository, sectionRepo database.SectionRepository) *SectionRefresher {
	return &SectionRefresher{
		fetcher:     fetcher,
		locks:       locks,
		articleRepo: articleRepo,
		sectionRepo: sectionRepo,
		now:         time.Now,
	}
}

// Refresh returns a skipped outcome without fetching when the section lock
// is held elsewhere. Skipped refreshes record no stats.
func (r *SectionRefresher) Refresh(ctx context.Context, key feed.SectionKey, maxItems int) SectionOutcome {
	if !r.locks.Acquire(key) {
		slog.Info("Section refresh already in progress, skipping", "source", key.Source, "section", key.Section)
		return SectionOutcome{Skipped: true}
	}
	defer r.locks.Release(key)

	result := r.fetcher.Fetch(ctx, key, maxItems)
	outcome := SectionOutcome{Result: result}

	var lastError string
	switch {
	case !result.OK():
		slog.Warn("Section fetch failed", "source", key.Source, "section", key.Section, "duration", result.Duration, "error", result.Err)
		lastError = result.Err.Error()
	case len(result.Items) == 0:
		slog.Info("Section returned no items", "source", key.Source, "section", key.Section, "found", result.Found, "filtered", result.Filtered)
	default:
		added, err := r.articleRepo.UpsertArticles(key, result.Items, r.now())
		if err != nil {
			slog.Warn("Failed to store section articles", "source", key.Source, "section", key.Section, "error", err)
			lastError = err.Error()
		}
		outcome.Added = added

		slog.Debug("Section fetched", "source", key.Source, "section", key.Section, "items", len(result.Items),
			"added", added, "filtered", result.Filtered, "duration", result.Duration)
	}

	if err := r.sectionRepo.RecordRefresh(key, r.now(), result.Found, outcome.Added, lastError); err != nil {
		slog.Warn("Failed to record section refresh", "source", key.Source, "section", key.Section, "error", err)
	}

	return outcome
}
