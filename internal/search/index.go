// Package search implements the search index and autocomplete adapter over
// RediSearch.
//
// The index does not follow the JSON documents directly: the registry writes
// an explicit index record (a hash under the ixdoc: prefix) for every module,
// first with the text fields at add time and again with the numeric stats
// fields on every refresh. Keeping the index write an explicit, separate
// operation from the document write is what gives the two-store consistency
// model its shape — either store can briefly lag the other, and the hourly
// refresh re-index converges them.
package search

import (
	"context"
	"errors"
	"fmt"
	"regexp"
	"strings"
	"time"

	"github.com/redis/go-redis/v9"
)

const (
	// IndexName is the RediSearch index over module index records.
	IndexName = "ix"
	// suggestKey is the autocomplete dictionary key.
	suggestKey = "ac"
	// docPrefix namespaces index records away from the JSON documents.
	docPrefix = "ixdoc:"
	// maxResults bounds a single search page.
	maxResults = 1000
	// maxSuggestions bounds one autocomplete response.
	maxSuggestions = 10
)

// matchAll is the query used when the caller supplies none.
const matchAll = "*"

// SortKey selects the result ordering for module listings.
type SortKey string

const (
	SortNone   SortKey = ""
	SortUpdate SortKey = "update" // ascending days-since-last-push: freshest first
	SortStars  SortKey = "stars"  // descending stargazer count
	SortForks  SortKey = "forks"  // descending fork count
	SortName   SortKey = "name"   // ascending lexical name
)

// sortSpec maps a SortKey to an index field and direction.
func (k SortKey) sortSpec() (field string, desc bool, ok bool) {
	switch k {
	case SortUpdate:
		return "last_modified", false, true
	case SortStars:
		return "stargazers_count", true, true
	case SortForks:
		return "forks_count", true, true
	case SortName:
		return "name", false, true
	default:
		return "", false, false
	}
}

// Result carries the ids matched by a query plus diagnostic timings.
type Result struct {
	Total      int
	DocIDs     []string
	SearchTime time.Duration
}

// Index is a RediSearch-backed search and suggestion adapter.
type Index struct {
	rdb *redis.Client
}

// Open connects to the search index at the given redis URL.
func Open(redisURL string) (*Index, error) {
	opts, err := redis.ParseURL(redisURL)
	if err != nil {
		return nil, fmt.Errorf("search: parse redis url: %w", err)
	}
	return New(redis.NewClient(opts)), nil
}

// New wraps an existing redis client.
func New(rdb *redis.Client) *Index {
	return &Index{rdb: rdb}
}

// Close releases the connection pool.
func (ix *Index) Close() error { return ix.rdb.Close() }

// Ensure creates the module index schema if it does not already exist. The
// schema matches the module record: name and description as text (name
// sortable), the three stat counters as sortable numerics.
func (ix *Index) Ensure(ctx context.Context) error {
	stop := make([]interface{}, len(Stopwords))
	for i, w := range Stopwords {
		stop[i] = w
	}
	err := ix.rdb.FTCreate(ctx, IndexName,
		&redis.FTCreateOptions{
			OnHash:    true,
			Prefix:    []interface{}{docPrefix},
			StopWords: stop,
		},
		&redis.FieldSchema{FieldName: "name", FieldType: redis.SearchFieldTypeText, Sortable: true},
		&redis.FieldSchema{FieldName: "description", FieldType: redis.SearchFieldTypeText},
		&redis.FieldSchema{FieldName: "stargazers_count", FieldType: redis.SearchFieldTypeNumeric, Sortable: true},
		&redis.FieldSchema{FieldName: "forks_count", FieldType: redis.SearchFieldTypeNumeric, Sortable: true},
		&redis.FieldSchema{FieldName: "last_modified", FieldType: redis.SearchFieldTypeNumeric, Sortable: true},
	).Err()
	if err != nil && strings.Contains(err.Error(), "already exists") {
		return nil
	}
	if err != nil {
		return fmt.Errorf("search: create index: %w", err)
	}
	return nil
}

// Add writes (or overwrites fields of) the index record for docID.
func (ix *Index) Add(ctx context.Context, docID string, fields map[string]any) error {
	args := make([]interface{}, 0, len(fields)*2)
	for k, v := range fields {
		args = append(args, k, v)
	}
	if err := ix.rdb.HSet(ctx, docPrefix+docID, args...).Err(); err != nil {
		return fmt.Errorf("search: index %s: %w", docID, err)
	}
	return nil
}

// Replace atomically rewrites the full index record for docID. Unlike Add it
// drops fields absent from the new record.
func (ix *Index) Replace(ctx context.Context, docID string, fields map[string]any) error {
	key := docPrefix + docID
	args := make([]interface{}, 0, len(fields)*2)
	for k, v := range fields {
		args = append(args, k, v)
	}
	pipe := ix.rdb.TxPipeline()
	pipe.Del(ctx, key)
	pipe.HSet(ctx, key, args...)
	if _, err := pipe.Exec(ctx); err != nil {
		return fmt.Errorf("search: replace %s: %w", docID, err)
	}
	return nil
}

// Search runs a text query with optional sorting and returns matched document
// ids (without the index prefix) plus the client-measured query duration.
// An empty query matches every indexed module.
func (ix *Index) Search(ctx context.Context, query string, sort SortKey) (*Result, error) {
	if strings.TrimSpace(query) == "" {
		query = matchAll
	}
	opts := &redis.FTSearchOptions{
		NoContent:   true,
		LimitOffset: 0,
		Limit:       maxResults,
	}
	if field, desc, ok := sort.sortSpec(); ok {
		opts.SortBy = []redis.FTSearchSortBy{{FieldName: field, Asc: !desc, Desc: desc}}
	}

	start := time.Now()
	res, err := ix.rdb.FTSearchWithArgs(ctx, IndexName, query, opts).Result()
	elapsed := time.Since(start)
	if err != nil {
		return nil, fmt.Errorf("search: query %q: %w", query, err)
	}

	ids := make([]string, 0, len(res.Docs))
	for _, doc := range res.Docs {
		ids = append(ids, strings.TrimPrefix(doc.ID, docPrefix))
	}
	return &Result{Total: res.Total, DocIDs: ids, SearchTime: elapsed}, nil
}

// AddSuggestions inserts terms into the autocomplete dictionary. Re-adding a
// term bumps its score, which is the desired ranking behavior for words that
// appear across many modules.
func (ix *Index) AddSuggestions(ctx context.Context, terms []string) error {
	if len(terms) == 0 {
		return nil
	}
	pipe := ix.rdb.Pipeline()
	for _, term := range terms {
		// FT.SUGADD has no typed wrapper in the client; INCR accumulates score.
		pipe.Do(ctx, "FT.SUGADD", suggestKey, term, 1, "INCR")
	}
	if _, err := pipe.Exec(ctx); err != nil {
		return fmt.Errorf("search: add suggestions: %w", err)
	}
	return nil
}

// Suggest returns ranked completions for a prefix, most relevant first.
func (ix *Index) Suggest(ctx context.Context, prefix string) ([]string, error) {
	prefix = strings.TrimSpace(strings.ToLower(prefix))
	if prefix == "" {
		return nil, nil
	}
	cmd := ix.rdb.Do(ctx, "FT.SUGGET", suggestKey, prefix, "MAX", maxSuggestions)
	vals, err := cmd.StringSlice()
	if errors.Is(err, redis.Nil) {
		return nil, nil
	}
	if err != nil {
		return nil, fmt.Errorf("search: suggest %q: %w", prefix, err)
	}
	return vals, nil
}

var wordPattern = regexp.MustCompile(`\w+`)

// SuggestionTerms tokenizes a module's name and description into the
// lowercase word set fed to the autocomplete dictionary, with stopwords
// removed. Duplicate words collapse to one term.
func SuggestionTerms(name, description string) []string {
	seen := make(map[string]struct{})
	terms := make([]string, 0, 8)
	for _, w := range wordPattern.FindAllString(name+" "+description, -1) {
		w = strings.ToLower(w)
		if _, dup := seen[w]; dup {
			continue
		}
		seen[w] = struct{}{}
		if stopwordSet[w] {
			continue
		}
		terms = append(terms, w)
	}
	return terms
}
