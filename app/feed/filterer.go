package feed

import (
	"fmt"
	"strings"
)

type Filterer struct{}

func NewFilterer() *Filterer {
	return &Filterer{}
}

// FilteredItem is an item dropped by a section filter, with the reason.
type FilteredItem struct {
	Item   RawItem
	Reason string
}

// Run splits items into those that pass the section filters and those that
// were excluded. Matching is a case-insensitive substring test.
func (f *Filterer) Run(items []RawItem, filters SectionFilters) ([]RawItem, []FilteredItem) {
	if len(filters.ExcludeAuthors) == 0 && len(filters.ExcludeTerms) == 0 {
		return items, nil
	}

	kept := make([]RawItem, 0, len(items))
	var dropped []FilteredItem

	for _, item := range items {
		if reason, excluded := f.applyFilters(item, filters); excluded {
			dropped = append(dropped, FilteredItem{Item: item, Reason: reason})
			continue
		}
		kept = append(kept, item)
	}

	return kept, dropped
}

func (f *Filterer) applyFilters(item RawItem, filters SectionFilters) (string, bool) {
	for _, author := range filters.ExcludeAuthors {
		if f.matchesFilter(item.Author, author) {
			return fmt.Sprintf("Excluded by author filter: contains '%s'", author), true
		}
	}

	for _, term := range filters.ExcludeTerms {
		if f.matchesFilter(item.Title, term) || f.matchesFilter(item.Summary, term) {
			return fmt.Sprintf("Excluded by term filter: contains '%s'", term), true
		}
	}

	return "", false
}

func (f *Filterer) matchesFilter(value, pattern string) bool {
	if pattern == "" {
		return false
	}
	return strings.Contains(strings.ToLower(value), strings.ToLower(pattern))
}
