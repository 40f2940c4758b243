package feed

import (
	"fmt"
	"log/slog"
	"sort"
	"strings"
	"time"
)

const (
	DefaultSimilarityThreshold = 92
	DefaultTimeWindow          = 6 * time.Hour
	DefaultTopicMaxItems       = 200
)

// SkippedItem records a raw item that never entered deduplication.
type SkippedItem struct {
	Item   RawItem
	Reason error
}

// NewWorkingItem derives the comparison fields of a raw item. Items without
// title, link or a parseable publish date are rejected.
func NewWorkingItem(raw RawItem) (WorkingItem, error) {
	switch {
	case strings.TrimSpace(raw.Title) == "":
		return WorkingItem{}, fmt.Errorf("%w: title", ErrMissingField)
	case strings.TrimSpace(raw.Link) == "":
		return WorkingItem{}, fmt.Errorf("%w: link", ErrMissingField)
	case strings.TrimSpace(raw.PubDate) == "":
		return WorkingItem{}, fmt.Errorf("%w: pubDate", ErrMissingField)
	}

	publishedAt, err := ParseDate(raw.PubDate)
	if err != nil {
		return WorkingItem{}, err
	}

	return WorkingItem{
		RawItem:         raw,
		CanonicalURL:    Canonicalize(raw.Link),
		NormalizedTitle: NormalizeTitle(raw.Title),
		PublishedAt:     publishedAt,
	}, nil
}

// NewWorkingItems converts a batch, collecting rejected items instead of
// failing the whole batch.
func NewWorkingItems(raws []RawItem) ([]WorkingItem, []SkippedItem) {
	items := make([]WorkingItem, 0, len(raws))
	var skipped []SkippedItem

	for _, raw := range raws {
		item, err := NewWorkingItem(raw)
		if err != nil {
			skipped = append(skipped, SkippedItem{Item: raw, Reason: err})
			continue
		}
		items = append(items, item)
	}

	return items, skipped
}

// dedupGroup is one story. Groups live in an arena addressed by index; the
// canonical URL table points at the index of the group whose winner
// currently owns that URL.
type dedupGroup struct {
	winner     *WorkingItem
	titleRunes []rune
	mergedFrom []MergedRef
}

type DedupResult struct {
	Items             []OutputItem
	OverflowTruncated bool
	InputCount        int
	GroupCount        int
	ExactMatches      int
	FuzzyMatches      int
}

type Deduplicator struct {
	Topic               string
	MaxItems            int
	SimilarityThreshold int
	TimeWindow          time.Duration
	selector            *Selector
}

func NewDeduplicator(topic string, priorityOrder []string, maxItems int) *Deduplicator {
	if maxItems <= 0 {
		maxItems = DefaultTopicMaxItems
	}
	return &Deduplicator{
		Topic:               topic,
		MaxItems:            maxItems,
		SimilarityThreshold: DefaultSimilarityThreshold,
		TimeWindow:          DefaultTimeWindow,
		selector:            NewSelector(priorityOrder),
	}
}

// Run groups near-duplicate items, keeps the best item of each group and
// returns the groups newest first, capped at MaxItems.
func (d *Deduplicator) Run(items []WorkingItem) DedupResult {
	sorted := make([]WorkingItem, 0, len(items))
	for _, item := range items {
		if item.PublishedAt.IsZero() {
			slog.Debug("Dropping item without publish date", "topic", d.Topic, "source", item.Source, "link", item.Link)
			continue
		}
		sorted = append(sorted, item)
	}

	sort.SliceStable(sorted, func(i, j int) bool {
		return sorted[i].PublishedAt.After(sorted[j].PublishedAt)
	})

	result := DedupResult{InputCount: len(sorted)}
	groups := make([]dedupGroup, 0, len(sorted))
	byURL := make(map[string]int, len(sorted))

	for i := range sorted {
		candidate := &sorted[i]
		candidateRunes := []rune(candidate.NormalizedTitle)

		id, exact := byURL[candidate.CanonicalURL]
		if exact {
			result.ExactMatches++
		} else {
			id = d.findFuzzyMatch(groups, candidate, candidateRunes)
			if id < 0 {
				byURL[candidate.CanonicalURL] = len(groups)
				groups = append(groups, dedupGroup{winner: candidate, titleRunes: candidateRunes})
				continue
			}
			result.FuzzyMatches++
		}

		group := &groups[id]
		previous := group.winner

		// Losing candidates are recorded too, so the priority winner lists the
		// other source whichever of the two was processed first.
		if d.selector.Best(previous, candidate) != candidate {
			group.mergedFrom = append(group.mergedFrom, MergedRef{Source: candidate.Source, Link: candidate.Link})
			continue
		}

		group.mergedFrom = append(group.mergedFrom, MergedRef{Source: previous.Source, Link: previous.Link})
		group.winner = candidate
		group.titleRunes = candidateRunes

		if previous.CanonicalURL != candidate.CanonicalURL {
			delete(byURL, previous.CanonicalURL)
		}
		byURL[candidate.CanonicalURL] = id
	}

	result.GroupCount = len(groups)

	winners := make([]*dedupGroup, len(groups))
	for i := range groups {
		winners[i] = &groups[i]
	}
	sort.SliceStable(winners, func(i, j int) bool {
		return winners[i].winner.PublishedAt.After(winners[j].winner.PublishedAt)
	})

	if len(winners) > d.MaxItems {
		winners = winners[:d.MaxItems]
		result.OverflowTruncated = true
	}

	result.Items = make([]OutputItem, 0, len(winners))
	for _, group := range winners {
		result.Items = append(result.Items, d.toOutput(group))
	}

	return result
}

// findFuzzyMatch returns the first group, in creation order, whose winner is
// within the time window and similar enough, or -1.
func (d *Deduplicator) findFuzzyMatch(groups []dedupGroup, candidate *WorkingItem, candidateRunes []rune) int {
	for id := range groups {
		winner := groups[id].winner

		gap := candidate.PublishedAt.Sub(winner.PublishedAt)
		if gap < 0 {
			gap = -gap
		}
		if gap > d.TimeWindow {
			continue
		}

		if ratioRunes(candidateRunes, groups[id].titleRunes) >= d.SimilarityThreshold {
			return id
		}
	}
	return -1
}

// toOutput keeps only the winner's own categories; categories of absorbed
// items are not carried over.
func (d *Deduplicator) toOutput(group *dedupGroup) OutputItem {
	winner := group.winner

	mergedFrom := make([]MergedRef, len(group.mergedFrom))
	copy(mergedFrom, group.mergedFrom)

	return OutputItem{
		Title:           winner.Title,
		Link:            winner.Link,
		PubDate:         FormatDate(winner.PublishedAt),
		Summary:         winner.Summary,
		Source:          winner.Source,
		PrimaryCategory: d.Topic,
		Categories:      normalizeCategories(winner.Categories),
		Image:           optionalString(winner.Image),
		Author:          optionalString(winner.Author),
		MergedFrom:      mergedFrom,
	}
}

func normalizeCategories(categories []string) []string {
	seen := make(map[string]struct{}, len(categories))
	result := make([]string, 0, len(categories))

	for _, category := range categories {
		category = strings.ToLower(strings.TrimSpace(category))
		if category == "" {
			continue
		}
		if _, ok := seen[category]; ok {
			continue
		}
		seen[category] = struct{}{}
		result = append(result, category)
	}

	sort.Strings(result)
	return result
}

func optionalString(value string) *string {
	value = strings.TrimSpace(value)
	if value == "" {
		return nil
	}
	return &value
}

// Process runs a full batch of raw items and wraps the outcome as a
// ProcessedTopic ready for persistence.
func (d *Deduplicator) Process(raws []RawItem, updatedAt time.Time) (*ProcessedTopic, DedupResult, []SkippedItem) {
	items, skipped := NewWorkingItems(raws)
	result := d.Run(items)

	return &ProcessedTopic{
		Topic:             d.Topic,
		UpdatedAt:         updatedAt.UTC(),
		OverflowTruncated: result.OverflowTruncated,
		Items:             result.Items,
	}, result, skipped
}
