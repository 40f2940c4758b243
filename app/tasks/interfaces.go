package tasks

import (
	"context"

	"github.com/lysyi3m/sports-comb/app/feed"
	"github.com/lysyi3m/sports-comb/app/source"
)

// TaskSchedulerInterface defines the interface for task scheduling operations.
// Used by the main application and the HTTP API to run topic aggregation in
// the background.
//
//	refresher := NewSectionRefresher(registry, lockManager, articleRepo, sectionRepo)
//	scheduler := NewScheduler(configCache, refresher, topicRepo, sectionRepo, articleRepo, runRepo)
//	scheduler.Start()
//	defer scheduler.Stop()
//	scheduler.EnqueueTopic("futebol")
type TaskSchedulerInterface interface {
	Start()
	Stop()
	EnqueueTask(task TaskInterface) error
	EnqueueTopic(name string) error
}

// SectionFetcher fetches one (source, section); source.Registry satisfies it.
type SectionFetcher interface {
	Fetch(ctx context.Context, key feed.SectionKey, maxItems int) source.Result
}

// SectionLocker guards a (source, section) against overlapping refreshes;
// locks.Manager satisfies it.
type SectionLocker interface {
	Acquire(key feed.SectionKey) bool
	Release(key feed.SectionKey)
}

// TopicSource supplies topic and source definitions; feed.ConfigCache
// satisfies it.
type TopicSource interface {
	GetTopic(name string) (*feed.TopicConfig, error)
	GetEnabledTopics() map[string]*feed.TopicConfig
	GetSources() map[string]*feed.SourceConfig
}
