package feed

import (
	"time"
)

// Item types

// RawItem is a single article as returned by a source fetcher.
type RawItem struct {
	Title      string   `json:"title"`
	Link       string   `json:"link"`
	PubDate    string   `json:"pubDate"` // ISO-8601 or RFC-2822
	Summary    string   `json:"summary,omitempty"`
	Image      string   `json:"image,omitempty"`
	Author     string   `json:"author,omitempty"`
	Categories []string `json:"categories,omitempty"`
	Source     string   `json:"source"`
}

// WorkingItem carries the derived fields used only while deduplicating.
type WorkingItem struct {
	RawItem
	CanonicalURL    string
	NormalizedTitle string
	PublishedAt     time.Time // always UTC
}

type MergedRef struct {
	Source string `json:"source"`
	Link   string `json:"link"`
}

type OutputItem struct {
	Title           string      `json:"title"`
	Link            string      `json:"link"`
	PubDate         string      `json:"pubDate"`
	Summary         string      `json:"summary"`
	Source          string      `json:"source"`
	PrimaryCategory string      `json:"primary_category"`
	Categories      []string    `json:"categories"`
	Image           *string     `json:"image"`
	Author          *string     `json:"author"`
	MergedFrom      []MergedRef `json:"merged_from"`
}

// ProcessedTopic is the persisted result of one aggregation run.
type ProcessedTopic struct {
	Topic             string       `json:"topic"`
	UpdatedAt         time.Time    `json:"updated_at"`
	OverflowTruncated bool         `json:"overflow_truncated"`
	Items             []OutputItem `json:"items"`
}

type Metadata struct {
	Title       string
	Link        string
	Description string
	ImageURL    string
	Language    string
	FeedPath    string // self link path without the format, /topics/<topic> when empty
}

// Configuration types

type SourceConfig struct {
	Key       string                    `yaml:"-"`
	Name      string                    `yaml:"name"`
	BaseURL   string                    `yaml:"base_url"`
	Language  string                    `yaml:"language"`
	Kind      string                    `yaml:"kind"`    // rss or html
	Timeout   int                       `yaml:"timeout"` // seconds
	Sections  map[string]*SectionConfig `yaml:"sections"`
	UserAgent string                    `yaml:"user_agent"`
}

type SectionConfig struct {
	Key         string         `yaml:"-"`
	Name        string         `yaml:"name"`
	Description string         `yaml:"description"`
	URL         string         `yaml:"url"`
	MaxItems    int            `yaml:"max_items"`
	Enrich      bool           `yaml:"enrich"` // fetch article pages for missing metadata
	Selectors   Selectors      `yaml:"selectors"`
	Filters     SectionFilters `yaml:"filters"`
}

// Selectors are goquery CSS selectors for html sources. When Item is empty
// the listing page only yields links and every article page is fetched.
type Selectors struct {
	Item    string `yaml:"item"`
	Title   string `yaml:"title"`
	Link    string `yaml:"link"`
	Date    string `yaml:"date"`
	Image   string `yaml:"image"`
	Summary string `yaml:"summary"`
	Author  string `yaml:"author"`
}

type SectionFilters struct {
	ExcludeAuthors []string `yaml:"exclude_authors"`
	ExcludeTerms   []string `yaml:"exclude_terms"`
}

type TopicConfig struct {
	Name                string              `yaml:"-"` // derived from filename
	Title               string              `yaml:"title"`
	Description         string              `yaml:"description"`
	Enabled             *bool               `yaml:"enabled"`
	PrioritySourceOrder []string            `yaml:"priority_source_order"`
	Sources             map[string][]string `yaml:"sources"`
	MaxItems            int                 `yaml:"max_items"`
	ItemsPerSection     int                 `yaml:"items_per_section"`
}

func (t *TopicConfig) IsEnabled() bool {
	return t.Enabled == nil || *t.Enabled
}

// SectionKey identifies one independently fetched and locked unit.
type SectionKey struct {
	Source  string
	Section string
}

func (k SectionKey) String() string {
	return k.Source + "/" + k.Section
}
