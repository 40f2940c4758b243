package feed

import (
	"bytes"
	"encoding/xml"
	"fmt"
	"html"
	"net/url"
	"path"
	"strings"
	"time"

	"github.com/lysyi3m/sports-comb/app/cfg"
)

var imageTypes = map[string]string{
	".png":  "image/png",
	".jpg":  "image/jpeg",
	".jpeg": "image/jpeg",
	".gif":  "image/gif",
	".webp": "image/webp",
	".svg":  "image/svg+xml",
}

type Generator struct{}

func NewGenerator() *Generator {
	return &Generator{}
}

// Run renders a processed topic as RSS 2.0.
func (g *Generator) Run(meta Metadata, topic *ProcessedTopic) (string, error) {
	if topic == nil {
		return "", fmt.Errorf("processed topic is nil")
	}

	var buf bytes.Buffer

	buf.WriteString(`<?xml version="1.0" encoding="UTF-8"?>`)
	buf.WriteString("\n")
	buf.WriteString(`<rss version="2.0" xmlns:atom="http://www.w3.org/2005/Atom" xmlns:dc="http://purl.org/dc/elements/1.1/">`)
	buf.WriteString("\n  <channel>\n")

	g.writeElement(&buf, "title", meta.Title, 4)
	g.writeElement(&buf, "link", meta.Link, 4)
	description := meta.Description
	if description == "" {
		description = fmt.Sprintf("Aggregated %s news", topic.Topic)
	}
	g.writeElement(&buf, "description", description, 4)

	buf.WriteString(fmt.Sprintf("    <atom:link href=\"%s\" rel=\"self\" type=\"application/rss+xml\" />\n",
		html.EscapeString(g.selfLink(meta, topic.Topic, "rss"))))

	g.writeElement(&buf, "lastBuildDate", g.lastBuildDate(topic).Format(time.RFC1123Z), 4)
	g.writeElement(&buf, "generator", fmt.Sprintf("Sports-Comb/%s", cfg.Get().Version), 4)
	g.writeElement(&buf, "language", meta.Language, 4)
	g.writeElement(&buf, "ttl", "15", 4)

	for _, item := range topic.Items {
		g.writeItem(&buf, item)
	}

	buf.WriteString("  </channel>\n</rss>")

	return buf.String(), nil
}

// RunAtom renders a processed topic as Atom 1.0.
func (g *Generator) RunAtom(meta Metadata, topic *ProcessedTopic) (string, error) {
	if topic == nil {
		return "", fmt.Errorf("processed topic is nil")
	}

	var buf bytes.Buffer
	selfLink := g.selfLink(meta, topic.Topic, "atom")

	buf.WriteString(`<?xml version="1.0" encoding="UTF-8"?>`)
	buf.WriteString("\n")
	buf.WriteString(`<feed xmlns="http://www.w3.org/2005/Atom">`)
	buf.WriteString("\n")

	g.writeElement(&buf, "id", selfLink, 2)
	g.writeElement(&buf, "title", meta.Title, 2)
	g.writeElement(&buf, "subtitle", meta.Description, 2)
	g.writeElement(&buf, "updated", g.lastBuildDate(topic).Format(time.RFC3339), 2)
	buf.WriteString(fmt.Sprintf("  <link href=\"%s\" rel=\"self\" />\n", html.EscapeString(selfLink)))
	if meta.Link != "" {
		buf.WriteString(fmt.Sprintf("  <link href=\"%s\" rel=\"alternate\" />\n", html.EscapeString(meta.Link)))
	}
	g.writeElement(&buf, "generator", fmt.Sprintf("Sports-Comb/%s", cfg.Get().Version), 2)

	for _, item := range topic.Items {
		g.writeEntry(&buf, item)
	}

	buf.WriteString("</feed>")

	return buf.String(), nil
}

func (g *Generator) writeItem(buf *bytes.Buffer, item OutputItem) {
	buf.WriteString("    <item>\n")

	buf.WriteString("      <guid isPermaLink=\"true\">")
	xml.EscapeText(buf, []byte(item.Link))
	buf.WriteString("</guid>\n")

	g.writeElement(buf, "title", item.Title, 6)
	g.writeElement(buf, "link", item.Link, 6)
	g.writeElement(buf, "description", g.description(item), 6)

	if published, err := ParseDate(item.PubDate); err == nil {
		g.writeElement(buf, "pubDate", published.In(time.Local).Format(time.RFC1123Z), 6)
	}

	if item.Author != nil {
		g.writeElement(buf, "dc:creator", *item.Author, 6)
	}

	g.writeElement(buf, "category", item.PrimaryCategory, 6)
	for _, category := range item.Categories {
		if category != item.PrimaryCategory {
			g.writeElement(buf, "category", category, 6)
		}
	}

	if item.Image != nil {
		buf.WriteString(fmt.Sprintf("      <enclosure url=\"%s\" length=\"0\" type=\"%s\" />\n",
			html.EscapeString(*item.Image),
			ImageMIMEType(*item.Image)))
	}

	buf.WriteString("    </item>\n")
}

func (g *Generator) writeEntry(buf *bytes.Buffer, item OutputItem) {
	buf.WriteString("  <entry>\n")

	g.writeElement(buf, "id", item.Link, 4)
	g.writeElement(buf, "title", item.Title, 4)
	buf.WriteString(fmt.Sprintf("    <link href=\"%s\" rel=\"alternate\" />\n", html.EscapeString(item.Link)))
	g.writeElement(buf, "summary", g.description(item), 4)

	if published, err := ParseDate(item.PubDate); err == nil {
		stamp := published.Format(time.RFC3339)
		g.writeElement(buf, "published", stamp, 4)
		g.writeElement(buf, "updated", stamp, 4)
	}

	if item.Author != nil {
		buf.WriteString("    <author>\n")
		g.writeElement(buf, "name", *item.Author, 6)
		buf.WriteString("    </author>\n")
	}

	if item.PrimaryCategory != "" {
		buf.WriteString(fmt.Sprintf("    <category term=\"%s\" />\n", html.EscapeString(item.PrimaryCategory)))
	}
	for _, category := range item.Categories {
		if category == "" || category == item.PrimaryCategory {
			continue
		}
		buf.WriteString(fmt.Sprintf("    <category term=\"%s\" />\n", html.EscapeString(category)))
	}

	if item.Image != nil {
		buf.WriteString(fmt.Sprintf("    <link href=\"%s\" rel=\"enclosure\" type=\"%s\" length=\"0\" />\n",
			html.EscapeString(*item.Image),
			ImageMIMEType(*item.Image)))
	}

	buf.WriteString("  </entry>\n")
}

func (g *Generator) writeElement(buf *bytes.Buffer, tag, content string, indent int) {
	if content == "" {
		return
	}

	for i := 0; i < indent; i++ {
		buf.WriteByte(' ')
	}

	buf.WriteString("<")
	buf.WriteString(tag)
	buf.WriteString(">")
	xml.EscapeText(buf, []byte(content))
	buf.WriteString("</")
	buf.WriteString(tag)
	buf.WriteString(">\n")
}

func (g *Generator) description(item OutputItem) string {
	if item.Summary != "" {
		return item.Summary
	}
	return item.Title
}

func (g *Generator) selfLink(meta Metadata, topic, format string) string {
	path := meta.FeedPath
	if path == "" {
		path = "/topics/" + topic
	}
	if cfg.Get().BaseUrl != "" {
		return fmt.Sprintf("%s%s/%s", strings.TrimRight(cfg.Get().BaseUrl, "/"), path, format)
	}
	return fmt.Sprintf("http://localhost:%s%s/%s", cfg.Get().Port, path, format)
}

// lastBuildDate is the newest item's date, or the run time for empty topics.
func (g *Generator) lastBuildDate(topic *ProcessedTopic) time.Time {
	if len(topic.Items) > 0 {
		if published, err := ParseDate(topic.Items[0].PubDate); err == nil {
			return published.In(time.Local)
		}
	}
	if !topic.UpdatedAt.IsZero() {
		return topic.UpdatedAt.In(time.Local)
	}
	return time.Now().In(time.Local)
}

// ImageMIMEType guesses an enclosure type from the image URL's extension,
// defaulting to image/jpeg.
func ImageMIMEType(imageURL string) string {
	p := imageURL
	if u, err := url.Parse(imageURL); err == nil {
		p = u.Path
	}
	if t, ok := imageTypes[strings.ToLower(path.Ext(p))]; ok {
		return t
	}
	return "image/jpeg"
}
