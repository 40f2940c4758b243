package database

import (
	"time"
)

type ProcessedTopicInfo struct {
	Topic       string
	UpdatedAt   time.Time
	PayloadSize int
}

type Section struct {
	Source          string
	Section         string
	DisplayName     string
	URL             string
	LastRefreshedAt *time.Time
	LastFoundCount  int
	LastAddedCount  int
	LastError       string
	CreatedAt       time.Time
}

const (
	RunStatusRunning   = "running"
	RunStatusSucceeded = "succeeded"
	RunStatusFailed    = "failed"
	RunStatusSkipped   = "skipped" // a section was busy, payload left untouched
)

type AggregationRun struct {
	ID         string
	Topic      string
	StartedAt  time.Time
	FinishedAt *time.Time
	Status     string
	ItemCount  int
	Error      string
}

// Article is one item scraped from a section, kept for the section feed.
type Article struct {
	ID          int64
	Source      string
	Section     string
	URL         string
	Title       string
	Summary     string
	Image       string
	Author      string
	Categories  []string
	PubDate     string
	PublishedAt *time.Time
	ScrapedAt   time.Time
}

type ArticleQuery struct {
	Limit int
	// Terms match when any of them is a substring of the title or summary.
	Terms          []string
	ExcludeAuthors []string
}
