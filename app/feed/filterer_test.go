package feed

import "testing"

func TestFilterer_NoFilters(t *testing.T) {
	items := []RawItem{{Title: "A"}, {Title: "B"}}

	kept, dropped := NewFilterer().Run(items, SectionFilters{})

	if len(kept) != 2 {
		t.Errorf("Expected 2 items, got %d", len(kept))
	}
	if len(dropped) != 0 {
		t.Errorf("Expected no dropped items, got %d", len(dropped))
	}
}

func TestFilterer_ExcludeAuthors(t *testing.T) {
	items := []RawItem{
		{Title: "Match report", Author: "Redação Publieditorial"},
		{Title: "Transfer news", Author: "João Silva"},
		{Title: "No author"},
	}

	kept, dropped := NewFilterer().Run(items, SectionFilters{ExcludeAuthors: []string{"publieditorial"}})

	if len(kept) != 2 {
		t.Fatalf("Expected 2 items, got %d", len(kept))
	}
	if len(dropped) != 1 || dropped[0].Item.Title != "Match report" {
		t.Errorf("Expected 'Match report' to be dropped, got %+v", dropped)
	}
	if dropped[0].Reason == "" {
		t.Error("Expected a filter reason")
	}
}

func TestFilterer_ExcludeTermsInTitleOrSummary(t *testing.T) {
	items := []RawItem{
		{Title: "Dicas do CARTOLA para a rodada"},
		{Title: "Flamengo treina", Summary: "Veja as dicas do Cartola"},
		{Title: "Palmeiras vence"},
	}

	kept, dropped := NewFilterer().Run(items, SectionFilters{ExcludeTerms: []string{"cartola", ""}})

	if len(kept) != 1 || kept[0].Title != "Palmeiras vence" {
		t.Errorf("Expected only 'Palmeiras vence' to remain, got %+v", kept)
	}
	if len(dropped) != 2 {
		t.Errorf("Expected 2 dropped items, got %d", len(dropped))
	}
}
