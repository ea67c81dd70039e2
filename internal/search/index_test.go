package search

import (
	"reflect"
	"testing"
)

// ---------------------------------------------------------------------------
// Sort key mapping
// ---------------------------------------------------------------------------

func TestSortSpec(t *testing.T) {
	tests := []struct {
		key       SortKey
		wantField string
		wantDesc  bool
		wantOK    bool
	}{
		{SortUpdate, "last_modified", false, true},
		{SortStars, "stargazers_count", true, true},
		{SortForks, "forks_count", true, true},
		{SortName, "name", false, true},
		{SortNone, "", false, false},
		{SortKey("bogus"), "", false, false},
	}
	for _, tt := range tests {
		field, desc, ok := tt.key.sortSpec()
		if field != tt.wantField || desc != tt.wantDesc || ok != tt.wantOK {
			t.Errorf("sortSpec(%q) = (%q, %v, %v), want (%q, %v, %v)",
				tt.key, field, desc, ok, tt.wantField, tt.wantDesc, tt.wantOK)
		}
	}
}

// ---------------------------------------------------------------------------
// Suggestion tokenization
// ---------------------------------------------------------------------------

func TestSuggestionTerms(t *testing.T) {
	got := SuggestionTerms("RedisGraph", "A graph database module for the win")
	want := []string{"redisgraph", "graph", "database", "win"}
	if !reflect.DeepEqual(got, want) {
		t.Errorf("SuggestionTerms = %v, want %v", got, want)
	}
}

func TestSuggestionTermsDeduplicates(t *testing.T) {
	got := SuggestionTerms("cache", "cache cache CACHE")
	if len(got) != 1 || got[0] != "cache" {
		t.Errorf("SuggestionTerms = %v, want [cache]", got)
	}
}

func TestSuggestionTermsAllStopwords(t *testing.T) {
	got := SuggestionTerms("the module", "of a modules")
	if len(got) != 0 {
		t.Errorf("SuggestionTerms = %v, want empty", got)
	}
}

func TestStopwordSetCoversList(t *testing.T) {
	for _, w := range Stopwords {
		if !stopwordSet[w] {
			t.Errorf("stopword %q missing from set", w)
		}
	}
}
