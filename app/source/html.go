package source

import (
	"bytes"
	"cmp"
	"context"
	"fmt"
	"log/slog"
	"net/http"
	"net/url"
	"strings"
	"time"

	"github.com/PuerkitoBio/goquery"

	"github.com/lysyi3m/sports-comb/app/feed"
)

const defaultLinkSelector = "a[href]"

// HTMLFetcher scrapes a section listing page with CSS selectors. Sections
// without an item selector only yield links, and each linked article page is
// fetched for its metadata.
type HTMLFetcher struct {
	pages     pageFetcher
	extractor *feed.ContentExtractor
	delay     time.Duration
}

func NewHTMLFetcher(client *http.Client, extractor *feed.ContentExtractor, userAgent string, delay time.Duration) *HTMLFetcher {
	if extractor == nil {
		extractor = feed.NewContentExtractor()
	}
	return &HTMLFetcher{
		pages:     newPageFetcher(client, userAgent),
		extractor: extractor,
		delay:     delay,
	}
}

func (f *HTMLFetcher) Name() string {
	return "html"
}

func (f *HTMLFetcher) Fetch(ctx context.Context, req Request) ([]feed.RawItem, error) {
	pages := f.pages
	pages.userAgent = userAgentFor(req, pages.userAgent)
	timeout := timeoutFor(req)

	base, err := url.Parse(req.Section.URL)
	if err != nil {
		return nil, fmt.Errorf("invalid section url: %w", err)
	}

	data, err := pages.get(ctx, req.Section.URL, timeout)
	if err != nil {
		return nil, err
	}

	doc, err := goquery.NewDocumentFromReader(bytes.NewReader(data))
	if err != nil {
		return nil, fmt.Errorf("failed to parse listing page: %w", err)
	}

	selectors := req.Section.Selectors
	linkOnly := selectors.Item == ""

	var items []feed.RawItem
	if linkOnly {
		items = f.extractLinks(doc, base, selectors, req.MaxItems)
	} else {
		items = f.extractItems(doc, base, selectors, req.MaxItems)
	}

	requests := 0
	for i := range items {
		if !linkOnly && !req.Section.Enrich && items[i].PubDate != "" {
			continue
		}

		if requests > 0 && f.delay > 0 {
			select {
			case <-ctx.Done():
				return items[:i], ctx.Err()
			case <-time.After(f.delay):
			}
		}

		requests++
		if err := f.enrich(ctx, pages, timeout, &items[i]); err != nil {
			slog.Warn("Failed to fetch article page", "source", req.Source.Key, "section", req.Section.Key, "link", items[i].Link, "error", err)
		}
	}

	return items, nil
}

func (f *HTMLFetcher) extractItems(doc *goquery.Document, base *url.URL, selectors feed.Selectors, limit int) []feed.RawItem {
	var items []feed.RawItem
	seen := make(map[string]bool)

	doc.Find(selectors.Item).EachWithBreak(func(_ int, s *goquery.Selection) bool {
		linkSel := s.Find(cmp.Or(selectors.Link, "a")).First()
		if linkSel.Length() == 0 && goquery.NodeName(s) == "a" {
			linkSel = s
		}
		href, _ := linkSel.Attr("href")
		link := resolveURL(base, href)
		if link == "" || seen[link] {
			return true
		}
		seen[link] = true

		item := feed.RawItem{
			Title:   cleanText(selectText(s, selectors.Title)),
			Link:    link,
			PubDate: selectDate(s, selectors.Date),
			Summary: cleanText(selectText(s, selectors.Summary)),
			Author:  cleanText(selectText(s, selectors.Author)),
			Image:   resolveURL(base, selectImage(s, selectors.Image)),
		}
		if item.Title == "" {
			item.Title = cleanText(linkSel.Text())
		}

		items = append(items, item)
		return limit <= 0 || len(items) < limit
	})

	return items
}

// extractLinks collects article links on the listing page's own host.
func (f *HTMLFetcher) extractLinks(doc *goquery.Document, base *url.URL, selectors feed.Selectors, limit int) []feed.RawItem {
	var items []feed.RawItem
	seen := make(map[string]bool)
	listing := strings.TrimRight(base.String(), "/")

	doc.Find(cmp.Or(selectors.Link, defaultLinkSelector)).EachWithBreak(func(_ int, s *goquery.Selection) bool {
		href, _ := s.Attr("href")
		link := resolveURL(base, href)
		if link == "" || seen[link] || strings.TrimRight(link, "/") == listing {
			return true
		}

		parsed, err := url.Parse(link)
		if err != nil || !strings.EqualFold(parsed.Hostname(), base.Hostname()) {
			return true
		}
		seen[link] = true

		items = append(items, feed.RawItem{Link: link, Title: cleanText(s.Text())})
		return limit <= 0 || len(items) < limit
	})

	return items
}

// enrich fetches the article page and fills blank fields from its
// structured metadata, then from readability.
func (f *HTMLFetcher) enrich(ctx context.Context, pages pageFetcher, timeout time.Duration, item *feed.RawItem) error {
	data, err := pages.get(ctx, item.Link, timeout)
	if err != nil {
		return err
	}

	meta, err := parseArticlePage(data)
	if err != nil {
		return fmt.Errorf("failed to parse article page: %w", err)
	}

	// Page metadata is more reliable than link text for titles.
	if meta.Title != "" {
		item.Title = meta.Title
	}
	meta.fill(item)

	if meta.complete() {
		return nil
	}

	extract, err := f.extractor.Run(data, item.Link)
	if err != nil {
		slog.Debug("Readability extraction failed", "link", item.Link, "error", err)
		return nil
	}
	extract.Enrich(item)

	return nil
}

func selectText(s *goquery.Selection, selector string) string {
	if selector == "" {
		return ""
	}
	return s.Find(selector).First().Text()
}

func selectDate(s *goquery.Selection, selector string) string {
	if selector == "" {
		return ""
	}
	el := s.Find(selector).First()
	for _, attr := range []string{"datetime", "content", "data-date"} {
		if value, ok := el.Attr(attr); ok && strings.TrimSpace(value) != "" {
			return strings.TrimSpace(value)
		}
	}
	return cleanText(el.Text())
}

func selectImage(s *goquery.Selection, selector string) string {
	el := s.Find(cmp.Or(selector, "img")).First()
	for _, attr := range []string{"data-src", "src", "content"} {
		if value, ok := el.Attr(attr); ok && strings.TrimSpace(value) != "" && !strings.HasPrefix(value, "data:") {
			return strings.TrimSpace(value)
		}
	}
	return ""
}

func resolveURL(base *url.URL, href string) string {
	href = strings.TrimSpace(href)
	if href == "" || strings.HasPrefix(href, "#") || strings.HasPrefix(href, "javascript:") || strings.HasPrefix(href, "mailto:") {
		return ""
	}
	ref, err := url.Parse(href)
	if err != nil {
		return ""
	}
	return base.ResolveReference(ref).String()
}

func cleanText(s string) string {
	return strings.Join(strings.Fields(s), " ")
}
