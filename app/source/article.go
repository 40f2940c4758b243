package source

import (
	"bytes"
	"cmp"
	"encoding/json"
	"strings"

	"github.com/PuerkitoBio/goquery"

	"github.com/lysyi3m/sports-comb/app/feed"
)

var articleTypes = map[string]bool{
	"Article":              true,
	"NewsArticle":          true,
	"BlogPosting":          true,
	"ReportageNewsArticle": true,
}

// articleMeta is what an article page says about itself.
type articleMeta struct {
	Title         string
	Description   string
	Image         string
	Author        string
	DatePublished string
	DateModified  string
	Keywords      []string
}

// fill copies page metadata into blank fields of item.
func (m articleMeta) fill(item *feed.RawItem) {
	if item.Title == "" {
		item.Title = m.Title
	}
	if item.Summary == "" {
		item.Summary = m.Description
	}
	if item.Image == "" {
		item.Image = m.Image
	}
	if item.Author == "" {
		item.Author = m.Author
	}
	if item.PubDate == "" {
		item.PubDate = m.DatePublished
	}
	if item.PubDate == "" {
		item.PubDate = m.DateModified
	}
	if len(item.Categories) == 0 {
		item.Categories = m.Keywords
	}
}

func (m articleMeta) complete() bool {
	return m.Title != "" && m.DatePublished != "" && m.Image != "" && m.Description != ""
}

// parseArticlePage reads JSON-LD first and falls back to meta tags for any
// field the structured data left empty.
func parseArticlePage(data []byte) (articleMeta, error) {
	doc, err := goquery.NewDocumentFromReader(bytes.NewReader(data))
	if err != nil {
		return articleMeta{}, err
	}

	meta := parseJSONLD(doc)
	fallback := parseMetaTags(doc)

	merged := articleMeta{
		Title:         cmp.Or(meta.Title, fallback.Title),
		Description:   cmp.Or(meta.Description, fallback.Description),
		Image:         cmp.Or(meta.Image, fallback.Image),
		Author:        cmp.Or(meta.Author, fallback.Author),
		DatePublished: cmp.Or(meta.DatePublished, fallback.DatePublished),
		DateModified:  cmp.Or(meta.DateModified, fallback.DateModified),
		Keywords:      meta.Keywords,
	}
	if len(merged.Keywords) == 0 {
		merged.Keywords = fallback.Keywords
	}

	return merged, nil
}

func parseJSONLD(doc *goquery.Document) articleMeta {
	var found articleMeta

	doc.Find(`script[type="application/ld+json"]`).EachWithBreak(func(_ int, s *goquery.Selection) bool {
		var data any
		if err := json.Unmarshal([]byte(s.Text()), &data); err != nil {
			return true
		}

		for _, node := range jsonLDNodes(data) {
			if !articleTypes[jsonString(node["@type"])] {
				continue
			}
			found = articleMeta{
				Title:         cmp.Or(jsonString(node["headline"]), jsonString(node["name"])),
				Description:   jsonString(node["description"]),
				Image:         jsonString(node["image"]),
				Author:        jsonString(node["author"]),
				DatePublished: jsonString(node["datePublished"]),
				DateModified:  jsonString(node["dateModified"]),
				Keywords:      jsonStrings(node["keywords"]),
			}
			return false
		}
		return true
	})

	return found
}

func parseMetaTags(doc *goquery.Document) articleMeta {
	content := func(selectors ...string) string {
		for _, selector := range selectors {
			if value, ok := doc.Find(selector).First().Attr("content"); ok && strings.TrimSpace(value) != "" {
				return strings.TrimSpace(value)
			}
		}
		return ""
	}

	meta := articleMeta{
		Title:         content(`meta[property="og:title"]`, `meta[name="twitter:title"]`),
		Description:   content(`meta[property="og:description"]`, `meta[name="description"]`),
		Image:         content(`meta[property="og:image"]`, `meta[name="twitter:image"]`),
		Author:        content(`meta[name="author"]`, `meta[property="article:author"]`),
		DatePublished: content(`meta[property="article:published_time"]`, `meta[itemprop="datePublished"]`, `meta[name="pubdate"]`),
		DateModified:  content(`meta[property="article:modified_time"]`, `meta[itemprop="dateModified"]`),
	}

	if meta.Title == "" {
		meta.Title = strings.TrimSpace(doc.Find("title").First().Text())
	}
	if meta.DatePublished == "" {
		if value, ok := doc.Find("time[datetime]").First().Attr("datetime"); ok {
			meta.DatePublished = strings.TrimSpace(value)
		}
	}

	doc.Find(`meta[property="article:tag"]`).Each(func(_ int, s *goquery.Selection) {
		if value, ok := s.Attr("content"); ok && strings.TrimSpace(value) != "" {
			meta.Keywords = append(meta.Keywords, strings.TrimSpace(value))
		}
	})

	return meta
}

// jsonLDNodes flattens the object, array and @graph layouts sites use.
func jsonLDNodes(data any) []map[string]any {
	var nodes []map[string]any

	switch v := data.(type) {
	case map[string]any:
		if graph, ok := v["@graph"]; ok {
			return jsonLDNodes(graph)
		}
		nodes = append(nodes, v)
	case []any:
		for _, element := range v {
			nodes = append(nodes, jsonLDNodes(element)...)
		}
	}

	return nodes
}

// jsonString reads a JSON-LD value that may be a string, an object with
// "name" or "url", or a list of either.
func jsonString(value any) string {
	switch v := value.(type) {
	case string:
		return strings.TrimSpace(v)
	case map[string]any:
		return cmp.Or(jsonString(v["name"]), jsonString(v["url"]))
	case []any:
		for _, element := range v {
			if s := jsonString(element); s != "" {
				return s
			}
		}
	}
	return ""
}

func jsonStrings(value any) []string {
	var result []string

	switch v := value.(type) {
	case string:
		for _, part := range strings.Split(v, ",") {
			if part = strings.TrimSpace(part); part != "" {
				result = append(result, part)
			}
		}
	case []any:
		for _, element := range v {
			if s := jsonString(element); s != "" {
				result = append(result, s)
			}
		}
	}

	return result
}
