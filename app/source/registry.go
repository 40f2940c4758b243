package source

import (
	"context"
	"fmt"
	"log/slog"
	"time"

	"github.com/lysyi3m/sports-comb/app/feed"
)

// SourceLookup resolves source definitions; feed.ConfigCache satisfies it.
type SourceLookup interface {
	GetSource(name string) (*feed.SourceConfig, error)
}

// Registry maps sources to fetchers. Fetchers are registered per kind
// ("rss", "html") and may be overridden for a single source.
type Registry struct {
	sources  SourceLookup
	filterer *feed.Filterer
	byKind   map[string]Fetcher
	bySource map[string]Fetcher
}

func NewRegistry(sources SourceLookup, filterer *feed.Filterer) *Registry {
	if filterer == nil {
		filterer = feed.NewFilterer()
	}
	return &Registry{
		sources:  sources,
		filterer: filterer,
		byKind:   make(map[string]Fetcher),
		bySource: make(map[string]Fetcher),
	}
}

// Register adds or replaces the fetcher for a source kind.
func (r *Registry) Register(kind string, fetcher Fetcher) {
	r.byKind[kind] = fetcher
}

// RegisterSource pins a fetcher to one source, ahead of its kind.
func (r *Registry) RegisterSource(source string, fetcher Fetcher) {
	r.bySource[source] = fetcher
}

// Resolve returns the source config, section config and fetcher for key.
func (r *Registry) Resolve(key feed.SectionKey) (*feed.SourceConfig, *feed.SectionConfig, Fetcher, error) {
	src, err := r.sources.GetSource(key.Source)
	if err != nil {
		return nil, nil, nil, fmt.Errorf("%w %q: %v", ErrUnknownSource, key.Source, err)
	}

	section, ok := src.Sections[key.Section]
	if !ok {
		return nil, nil, nil, fmt.Errorf("%w %q for source %q", ErrUnknownSection, key.Section, key.Source)
	}

	if fetcher, ok := r.bySource[key.Source]; ok {
		return src, section, fetcher, nil
	}
	if fetcher, ok := r.byKind[src.Kind]; ok {
		return src, section, fetcher, nil
	}

	return nil, nil, nil, fmt.Errorf("%w for source %q of kind %q", ErrNoFetcher, key.Source, src.Kind)
}

// Fetch runs the fetcher for key and returns the tagged, filtered and capped
// items. It never panics on fetcher failure; the error is carried in Result.
func (r *Registry) Fetch(ctx context.Context, key feed.SectionKey, maxItems int) Result {
	start := time.Now()
	result := Result{Key: key}

	src, section, fetcher, err := r.Resolve(key)
	if err != nil {
		result.Err = err
		result.Duration = time.Since(start)
		return result
	}

	limit := maxItems
	if limit <= 0 {
		limit = section.MaxItems
	}
	if limit <= 0 {
		limit = DefaultSectionMaxItems
	}

	items, err := fetcher.Fetch(ctx, Request{Source: src, Section: section, MaxItems: limit})
	result.Duration = time.Since(start)
	if err != nil {
		result.Err = fmt.Errorf("%s fetch %s: %w", fetcher.Name(), key, err)
		return result
	}

	result.Found = len(items)

	for i := range items {
		items[i].Source = key.Source
	}

	kept, dropped := r.filterer.Run(items, section.Filters)
	for _, f := range dropped {
		slog.Debug("Item filtered", "source", key.Source, "section", key.Section, "link", f.Item.Link, "reason", f.Reason)
	}
	result.Filtered = len(dropped)

	if len(kept) > limit {
		kept = kept[:limit]
	}
	result.Items = kept

	return result
}
