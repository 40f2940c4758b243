package feed

import (
	"bytes"
	"cmp"
	"fmt"
	"strings"

	"github.com/mmcdole/gofeed"
)

type Parser struct {
	gofeedParser *gofeed.Parser
}

func NewParser() *Parser {
	return &Parser{
		gofeedParser: gofeed.NewParser(),
	}
}

// Run parses an RSS, Atom or JSON feed. Items are returned untagged; the
// caller sets Source.
func (p *Parser) Run(data []byte) (*Metadata, []RawItem, error) {
	parsed, err := p.gofeedParser.Parse(bytes.NewReader(data))
	if err != nil {
		return nil, nil, fmt.Errorf("failed to parse feed: %w", err)
	}

	metadata := &Metadata{
		Title:       parsed.Title,
		Link:        parsed.Link,
		Description: parsed.Description,
		Language:    parsed.Language,
	}

	if parsed.Image != nil {
		metadata.ImageURL = parsed.Image.URL
	}

	items := make([]RawItem, 0, len(parsed.Items))
	for _, item := range parsed.Items {
		if item == nil {
			continue
		}
		items = append(items, p.normalizeItem(item))
	}

	return metadata, items, nil
}

func (p *Parser) normalizeItem(item *gofeed.Item) RawItem {
	normalized := RawItem{
		Title:      strings.TrimSpace(item.Title),
		Link:       strings.TrimSpace(item.Link),
		Summary:    strings.TrimSpace(cmp.Or(item.Description, item.Content)),
		Author:     p.extractAuthor(item),
		Image:      p.extractImage(item),
		Categories: item.Categories,
	}

	switch {
	case item.PublishedParsed != nil:
		normalized.PubDate = FormatDate(*item.PublishedParsed)
	case item.UpdatedParsed != nil:
		normalized.PubDate = FormatDate(*item.UpdatedParsed)
	default:
		normalized.PubDate = strings.TrimSpace(cmp.Or(item.Published, item.Updated))
	}

	return normalized
}

func (p *Parser) extractImage(item *gofeed.Item) string {
	if item.Image != nil && item.Image.URL != "" {
		return item.Image.URL
	}

	for _, enclosure := range item.Enclosures {
		if enclosure == nil || enclosure.URL == "" {
			continue
		}
		if enclosure.Type == "" || strings.HasPrefix(enclosure.Type, "image/") {
			return enclosure.URL
		}
	}

	return ""
}

func (p *Parser) extractAuthor(item *gofeed.Item) string {
	var names []string

	if len(item.Authors) > 0 {
		for _, author := range item.Authors {
			if author == nil {
				continue
			}
			if name := p.formatAuthor(author.Name, author.Email); name != "" {
				names = append(names, name)
			}
		}
	} else if item.Author != nil {
		if name := p.formatAuthor(item.Author.Name, item.Author.Email); name != "" {
			names = append(names, name)
		}
	}

	return strings.Join(names, ", ")
}

func (p *Parser) formatAuthor(name, email string) string {
	name = strings.TrimSpace(name)
	email = strings.TrimSpace(email)

	if name != "" {
		return name
	}
	return email
}
