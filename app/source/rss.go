package source

import (
	"context"
	"net/http"

	"github.com/lysyi3m/sports-comb/app/feed"
)

// RSSFetcher reads a section's RSS/Atom feed through gofeed.
type RSSFetcher struct {
	pages  pageFetcher
	parser *feed.Parser
}

func NewRSSFetcher(client *http.Client, parser *feed.Parser, userAgent string) *RSSFetcher {
	if parser == nil {
		parser = feed.NewParser()
	}
	return &RSSFetcher{
		pages:  newPageFetcher(client, userAgent),
		parser: parser,
	}
}

func (f *RSSFetcher) Name() string {
	return "rss"
}

func (f *RSSFetcher) Fetch(ctx context.Context, req Request) ([]feed.RawItem, error) {
	pages := f.pages
	pages.userAgent = userAgentFor(req, pages.userAgent)

	data, err := pages.get(ctx, req.Section.URL, timeoutFor(req))
	if err != nil {
		return nil, err
	}

	_, items, err := f.parser.Run(data)
	if err != nil {
		return nil, err
	}

	if req.MaxItems > 0 && len(items) > req.MaxItems {
		items = items[:req.MaxItems]
	}

	return items, nil
}
