package source

import (
	"context"
	"errors"
	"time"

	"github.com/lysyi3m/sports-comb/app/feed"
)

const DefaultSectionMaxItems = 30

var (
	ErrUnknownSource  = errors.New("unknown source")
	ErrUnknownSection = errors.New("unknown section")
	ErrNoFetcher      = errors.New("no fetcher registered")
)

// Request carries everything a fetcher needs for one (source, section).
type Request struct {
	Source   *feed.SourceConfig
	Section  *feed.SectionConfig
	MaxItems int
}

// Fetcher retrieves recent items for one section of a site. Returned items
// need not be tagged with a source; the registry does that.
type Fetcher interface {
	Name() string
	Fetch(ctx context.Context, req Request) ([]feed.RawItem, error)
}

// Result is the outcome of one section fetch. A failed fetch carries Err and
// no items; a healthy section with nothing new has neither.
type Result struct {
	Key      feed.SectionKey
	Items    []feed.RawItem
	Found    int
	Filtered int
	Err      error
	Duration time.Duration
}

func (r Result) OK() bool {
	return r.Err == nil
}
