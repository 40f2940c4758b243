package source

import (
	"context"
	"errors"
	"fmt"
	"testing"

	"github.com/lysyi3m/sports-comb/app/feed"
)

type staticSources map[string]*feed.SourceConfig

func (s staticSources) GetSource(name string) (*feed.SourceConfig, error) {
	src, ok := s[name]
	if !ok {
		return nil, fmt.Errorf("source config with name '%s' not found", name)
	}
	return src, nil
}

type fakeFetcher struct {
	name  string
	items []feed.RawItem
	err   error
	calls []Request
}

func (f *fakeFetcher) Name() string {
	return f.name
}

func (f *fakeFetcher) Fetch(_ context.Context, req Request) ([]feed.RawItem, error) {
	f.calls = append(f.calls, req)
	if f.err != nil {
		return nil, f.err
	}
	out := make([]feed.RawItem, len(f.items))
	copy(out, f.items)
	return out, nil
}

func testSources() staticSources {
	return staticSources{
		"ge": {
			Key:  "ge",
			Kind: "rss",
			Sections: map[string]*feed.SectionConfig{
				"futebol": {
					Key:      "futebol",
					URL:      "https://ge.globo.com/rss/futebol",
					MaxItems: 2,
					Filters:  feed.SectionFilters{ExcludeTerms: []string{"cartola"}},
				},
			},
		},
		"lance": {
			Key:      "lance",
			Kind:     "html",
			Sections: map[string]*feed.SectionConfig{"flamengo": {Key: "flamengo", URL: "https://lance.com.br/flamengo"}},
		},
	}
}

func TestRegistryFetchTagsFiltersAndCaps(t *testing.T) {
	rss := &fakeFetcher{name: "rss", items: []feed.RawItem{
		{Title: "Dicas do Cartola", Link: "https://ge.globo.com/1"},
		{Title: "Flamengo vence", Link: "https://ge.globo.com/2"},
		{Title: "Palmeiras empata", Link: "https://ge.globo.com/3"},
		{Title: "Corinthians perde", Link: "https://ge.globo.com/4"},
	}}

	registry := NewRegistry(testSources(), nil)
	registry.Register("rss", rss)

	result := registry.Fetch(context.Background(), feed.SectionKey{Source: "ge", Section: "futebol"}, 0)

	if !result.OK() {
		t.Fatalf("Expected success, got: %v", result.Err)
	}
	if len(result.Items) != 2 {
		t.Fatalf("Expected 2 items after cap, got %d", len(result.Items))
	}
	if result.Found != 4 || result.Filtered != 1 {
		t.Errorf("Expected found=4 filtered=1, got found=%d filtered=%d", result.Found, result.Filtered)
	}
	for _, item := range result.Items {
		if item.Source != "ge" {
			t.Errorf("Expected source 'ge', got '%s'", item.Source)
		}
	}
	if result.Items[0].Title != "Flamengo vence" {
		t.Errorf("Expected filtered item to be skipped, got '%s'", result.Items[0].Title)
	}
	if rss.calls[0].MaxItems != 2 {
		t.Errorf("Expected fetcher limit 2 from section, got %d", rss.calls[0].MaxItems)
	}
}

func TestRegistryExplicitLimitWins(t *testing.T) {
	rss := &fakeFetcher{name: "rss"}
	registry := NewRegistry(testSources(), nil)
	registry.Register("rss", rss)

	registry.Fetch(context.Background(), feed.SectionKey{Source: "ge", Section: "futebol"}, 10)

	if rss.calls[0].MaxItems != 10 {
		t.Errorf("Expected limit 10, got %d", rss.calls[0].MaxItems)
	}
}

func TestRegistryDefaultLimit(t *testing.T) {
	html := &fakeFetcher{name: "html"}
	registry := NewRegistry(testSources(), nil)
	registry.Register("html", html)

	result := registry.Fetch(context.Background(), feed.SectionKey{Source: "lance", Section: "flamengo"}, 0)

	if !result.OK() {
		t.Fatalf("Expected success, got: %v", result.Err)
	}
	if html.calls[0].MaxItems != DefaultSectionMaxItems {
		t.Errorf("Expected default limit %d, got %d", DefaultSectionMaxItems, html.calls[0].MaxItems)
	}
	if len(result.Items) != 0 {
		t.Errorf("Expected no items, got %d", len(result.Items))
	}
}

func TestRegistrySourceOverride(t *testing.T) {
	generic := &fakeFetcher{name: "html"}
	custom := &fakeFetcher{name: "lance", items: []feed.RawItem{{Title: "x", Link: "https://lance.com.br/x"}}}

	registry := NewRegistry(testSources(), nil)
	registry.Register("html", generic)
	registry.RegisterSource("lance", custom)

	result := registry.Fetch(context.Background(), feed.SectionKey{Source: "lance", Section: "flamengo"}, 0)

	if len(custom.calls) != 1 || len(generic.calls) != 0 {
		t.Errorf("Expected source-specific fetcher to be used, got custom=%d generic=%d", len(custom.calls), len(generic.calls))
	}
	if len(result.Items) != 1 {
		t.Errorf("Expected 1 item, got %d", len(result.Items))
	}
}

func TestRegistryErrors(t *testing.T) {
	failing := &fakeFetcher{name: "rss", err: errors.New("connection refused")}
	registry := NewRegistry(testSources(), nil)
	registry.Register("rss", failing)

	cases := []struct {
		key  feed.SectionKey
		want error
	}{
		{feed.SectionKey{Source: "marca", Section: "futbol"}, ErrUnknownSource},
		{feed.SectionKey{Source: "ge", Section: "basquete"}, ErrUnknownSection},
		{feed.SectionKey{Source: "lance", Section: "flamengo"}, ErrNoFetcher},
	}

	for _, c := range cases {
		result := registry.Fetch(context.Background(), c.key, 0)
		if !errors.Is(result.Err, c.want) {
			t.Errorf("%s: expected %v, got %v", c.key, c.want, result.Err)
		}
	}

	result := registry.Fetch(context.Background(), feed.SectionKey{Source: "ge", Section: "futebol"}, 0)
	if result.OK() {
		t.Error("Expected fetch failure to be reported")
	}
	if len(result.Items) != 0 {
		t.Errorf("Expected no items on failure, got %d", len(result.Items))
	}
}
