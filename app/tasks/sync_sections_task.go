package tasks

import (
	"context"
	"fmt"
	"log/slog"
	"sort"

	"github.com/lysyi3m/sports-comb/app/database"
	"github.com/lysyi3m/sports-comb/app/feed"
)

// SyncSectionsTask mirrors the configured sections into the database and
// drops rows and stored articles for sections no longer configured.
type SyncSectionsTask struct {
	Task
	sources     map[string]*feed.SourceConfig
	sectionRepo database.SectionRepository
	articleRepo database.ArticleRepository
}

func NewSyncSectionsTask(sources map[string]*feed.SourceConfig, sectionRepo database.SectionRepository,
	articleRepo database.ArticleRepository) *SyncSectionsTask {
	return &SyncSectionsTask{
		Task:        NewTask(TaskTypeSyncSections, "sections"),
		sources:     sources,
		sectionRepo: sectionRepo,
		articleRepo: articleRepo,
	}
}

func (t *SyncSectionsTask) Execute(ctx context.Context) error {
	select {
	case <-ctx.Done():
		return ctx.Err()
	default:
	}

	names := make([]string, 0, len(t.sources))
	for name := range t.sources {
		names = append(names, name)
	}
	sort.Strings(names)

	var keys []feed.SectionKey
	for _, name := range names {
		src := t.sources[name]
		for sectionKey, section := range src.Sections {
			key := feed.SectionKey{Source: name, Section: sectionKey}
			displayName := fmt.Sprintf("%s - %s", src.Name, section.Name)

			if err := t.sectionRepo.UpsertSection(key, displayName, section.URL); err != nil {
				return fmt.Errorf("failed to sync section %s: %w", key, err)
			}
			keys = append(keys, key)
		}
	}

	removed, err := t.sectionRepo.DeleteSectionsExcept(keys)
	if err != nil {
		return fmt.Errorf("failed to remove stale sections: %w", err)
	}

	removedArticles, err := t.articleRepo.DeleteArticlesExcept(keys)
	if err != nil {
		return fmt.Errorf("failed to remove stale articles: %w", err)
	}

	slog.Info("Task completed",
		"type", "SyncSections",
		"duration", t.GetDuration(),
		"sections", len(keys),
		"removed", removed,
		"removed_articles", removedArticles)

	return nil
}
