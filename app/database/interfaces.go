package database

import (
	"time"

	"github.com/lysyi3m/sports-comb/app/feed"
)

type TopicRepository interface {
	// SaveProcessedTopic fully replaces the stored payload for name.
	SaveProcessedTopic(name string, payload []byte, updatedAt time.Time) error
	// GetProcessedTopic returns nil without error when name was never saved.
	GetProcessedTopic(name string) ([]byte, error)
	ListProcessedTopics() ([]ProcessedTopicInfo, error)
	GetProcessedTopicCount() (int, error)
}

type SectionRepository interface {
	UpsertSection(key feed.SectionKey, displayName, url string) error
	RecordRefresh(key feed.SectionKey, refreshedAt time.Time, found, added int, lastError string) error
	GetSection(key feed.SectionKey) (*Section, error)
	GetSections() ([]Section, error)
	DeleteSectionsExcept(keep []feed.SectionKey) (int, error)
}

type RunRepository interface {
	StartRun(id, topic string, startedAt time.Time) error
	FinishRun(id string, finishedAt time.Time, status string, itemCount int, errMsg string) error
	GetRecentRuns(topic string, limit int) ([]AggregationRun, error)
}

type ArticleRepository interface {
	// UpsertArticles stores items under key and returns how many URLs were
	// new to that section.
	UpsertArticles(key feed.SectionKey, items []feed.RawItem, scrapedAt time.Time) (int, error)
	GetRecentArticles(key feed.SectionKey, q ArticleQuery) ([]Article, error)
	GetArticleCount() (int, error)
	DeleteArticlesExcept(keep []feed.SectionKey) (int, error)
}
