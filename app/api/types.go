package api

import (
	"context"
	"time"

	"github.com/lysyi3m/sports-comb/app/database"
	"github.com/lysyi3m/sports-comb/app/feed"
	"github.com/lysyi3m/sports-comb/app/locks"
	"github.com/lysyi3m/sports-comb/app/tasks"
)

type GeneratorInterface interface {
	Run(meta feed.Metadata, topic *feed.ProcessedTopic) (string, error)
	RunAtom(meta feed.Metadata, topic *feed.ProcessedTopic) (string, error)
}

var _ GeneratorInterface = (*feed.Generator)(nil)

type ConfigInterface interface {
	GetTopic(name string) (*feed.TopicConfig, error)
	GetTopics() map[string]*feed.TopicConfig
	GetSources() map[string]*feed.SourceConfig
	GetSource(name string) (*feed.SourceConfig, error)
	GetTopicCount() int
}

var _ ConfigInterface = (*feed.ConfigCache)(nil)

// LockInspector reports which sections are being refreshed right now.
type LockInspector interface {
	Held() map[feed.SectionKey]time.Time
}

var _ LockInspector = (*locks.Manager)(nil)

// SectionRefresher refreshes a single section on demand.
type SectionRefresher interface {
	Refresh(ctx context.Context, key feed.SectionKey, maxItems int) tasks.SectionOutcome
}

var _ SectionRefresher = (*tasks.SectionRefresher)(nil)

type Handler struct {
	configCache ConfigInterface
	topicRepo   database.TopicRepository
	sectionRepo database.SectionRepository
	articleRepo database.ArticleRepository
	runRepo     database.RunRepository
	generator   GeneratorInterface
	refresher   SectionRefresher
	locks       LockInspector
	scheduler   tasks.TaskSchedulerInterface
}
