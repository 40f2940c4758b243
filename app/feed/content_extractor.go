package feed

import (
	"bytes"
	"fmt"
	"log/slog"
	"net/url"
	"strings"

	readability "codeberg.org/readeck/go-readability/v2"
)

// Extract is the article metadata readability could recover from a page.
type Extract struct {
	Title    string
	Excerpt  string
	Text     string
	ImageURL string
	Byline   string
}

type ContentExtractor struct{}

func NewContentExtractor() *ContentExtractor {
	return &ContentExtractor{}
}

func (e *ContentExtractor) Run(data []byte, pageURL string) (*Extract, error) {
	if len(data) == 0 {
		return nil, fmt.Errorf("HTML data is empty")
	}

	var base *url.URL
	if pageURL != "" {
		parsed, err := url.Parse(pageURL)
		if err != nil {
			return nil, fmt.Errorf("failed to parse page url: %w", err)
		}
		base = parsed
	}

	article, err := readability.FromReader(bytes.NewReader(data), base)
	if err != nil {
		return nil, fmt.Errorf("failed to extract content: %w", err)
	}

	var text bytes.Buffer
	if err := article.RenderText(&text); err != nil {
		return nil, fmt.Errorf("failed to render text: %w", err)
	}

	extract := &Extract{
		Title:    strings.TrimSpace(article.Title()),
		Excerpt:  strings.TrimSpace(article.Excerpt()),
		Text:     strings.TrimSpace(text.String()),
		ImageURL: strings.TrimSpace(article.ImageURL()),
		Byline:   strings.TrimSpace(article.Byline()),
	}

	if extract.Title == "" && extract.Text == "" {
		return nil, fmt.Errorf("no content extracted from HTML data")
	}

	slog.Debug("Content extracted successfully",
		"url", pageURL,
		"title", extract.Title,
		"content_length", len(extract.Text))

	return extract, nil
}

// Enrich fills blank fields of item from the extract. Fields already set by
// the listing page are left alone.
func (x *Extract) Enrich(item *RawItem) {
	if item.Title == "" {
		item.Title = x.Title
	}
	if item.Summary == "" {
		item.Summary = x.Excerpt
	}
	if item.Image == "" {
		item.Image = x.ImageURL
	}
	if item.Author == "" {
		item.Author = x.Byline
	}
}
