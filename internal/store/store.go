// Package store implements the document store adapter over RedisJSON.
//
// Every catalog entity (the hub catalog, modules, submissions) is a JSON
// document addressed by key, with dotted-path granularity for partial reads
// and writes. The adapter exposes exactly the primitives the core needs:
// existence checks, conditional create (the bootstrap latch), path get/set,
// array append, and a pipelined multi-get for the list path. Consumers depend
// on their own narrow interfaces; *Store satisfies all of them.
package store

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"

	"github.com/redis/go-redis/v9"
)

// ErrNotFound is returned when a document (or a path within one) does not exist.
var ErrNotFound = errors.New("document not found")

// RootPath addresses the whole document.
const RootPath = "$"

// Store is a RedisJSON-backed document store.
type Store struct {
	rdb *redis.Client
}

// Open connects to the document store at the given redis URL.
func Open(redisURL string) (*Store, error) {
	opts, err := redis.ParseURL(redisURL)
	if err != nil {
		return nil, fmt.Errorf("store: parse redis url: %w", err)
	}
	return New(redis.NewClient(opts)), nil
}

// New wraps an existing redis client.
func New(rdb *redis.Client) *Store {
	return &Store{rdb: rdb}
}

// Client exposes the underlying redis client for components that share the
// connection (e.g., the hosting rate limiter).
func (s *Store) Client() *redis.Client { return s.rdb }

// Ping verifies connectivity.
func (s *Store) Ping(ctx context.Context) error {
	return s.rdb.Ping(ctx).Err()
}

// Close releases the connection pool.
func (s *Store) Close() error { return s.rdb.Close() }

// Exists reports whether a document exists.
func (s *Store) Exists(ctx context.Context, key string) (bool, error) {
	n, err := s.rdb.Exists(ctx, key).Result()
	if err != nil {
		return false, fmt.Errorf("store: exists %s: %w", key, err)
	}
	return n > 0, nil
}

// CreateJSON writes v as the root of key only if the key does not already
// exist (JSON.SET ... NX). It returns true when this call created the
// document. This is the atomic create-if-absent primitive the catalog
// bootstrap relies on: concurrent callers race on the server, and exactly one
// observes created=true.
func (s *Store) CreateJSON(ctx context.Context, key string, v any) (bool, error) {
	err := s.rdb.JSONSetMode(ctx, key, RootPath, v, "NX").Err()
	if errors.Is(err, redis.Nil) {
		return false, nil
	}
	if err != nil {
		return false, fmt.Errorf("store: create %s: %w", key, err)
	}
	return true, nil
}

// SetJSON writes v at path within key. v must marshal to a JSON object,
// array, or other composite; whole-struct writes are preferred over
// bare-string path updates.
func (s *Store) SetJSON(ctx context.Context, key, path string, v any) error {
	if err := s.rdb.JSONSet(ctx, key, path, v).Err(); err != nil {
		return fmt.Errorf("store: set %s %s: %w", key, path, err)
	}
	return nil
}

// GetJSON reads the value at path within key into out. Reads use the legacy
// path form (".stats", ".submit_enabled", "." for the root) so the server
// returns the bare value; the JSONPath form would wrap every result in a
// match array.
func (s *Store) GetJSON(ctx context.Context, key, path string, out any) error {
	if path == RootPath {
		path = "."
	}
	raw, err := s.rdb.JSONGet(ctx, key, path).Result()
	if errors.Is(err, redis.Nil) {
		return ErrNotFound
	}
	if err != nil {
		return fmt.Errorf("store: get %s %s: %w", key, path, err)
	}
	if raw == "" {
		return ErrNotFound
	}
	if err := json.Unmarshal([]byte(raw), out); err != nil {
		return fmt.Errorf("store: decode %s %s: %w", key, path, err)
	}
	return nil
}

// ArrAppend appends v to the array at path within key. The value is
// marshalled here because JSON.ARRAPPEND takes serialized JSON arguments.
func (s *Store) ArrAppend(ctx context.Context, key, path string, v any) error {
	buf, err := json.Marshal(v)
	if err != nil {
		return fmt.Errorf("store: encode append value: %w", err)
	}
	if err := s.rdb.JSONArrAppend(ctx, key, path, string(buf)).Err(); err != nil {
		return fmt.Errorf("store: array append %s %s: %w", key, path, err)
	}
	return nil
}

// Del removes a document.
func (s *Store) Del(ctx context.Context, key string) error {
	if err := s.rdb.Del(ctx, key).Err(); err != nil {
		return fmt.Errorf("store: del %s: %w", key, err)
	}
	return nil
}

// MGetRaw fetches multiple documents in one pipelined round trip, returning
// the raw JSON of each. Missing documents yield nil entries rather than
// failing the batch: a module can be visible in the search index before (or
// after) its document exists, and the list path tolerates that window.
func (s *Store) MGetRaw(ctx context.Context, keys []string) ([][]byte, error) {
	if len(keys) == 0 {
		return nil, nil
	}
	pipe := s.rdb.Pipeline()
	cmds := make([]*redis.JSONCmd, len(keys))
	for i, key := range keys {
		cmds[i] = pipe.JSONGet(ctx, key)
	}
	if _, err := pipe.Exec(ctx); err != nil && !errors.Is(err, redis.Nil) {
		return nil, fmt.Errorf("store: multi-get: %w", err)
	}
	out := make([][]byte, len(keys))
	for i, cmd := range cmds {
		raw, err := cmd.Result()
		if errors.Is(err, redis.Nil) || raw == "" {
			continue
		}
		if err != nil {
			return nil, fmt.Errorf("store: multi-get %s: %w", keys[i], err)
		}
		out[i] = []byte(raw)
	}
	return out, nil
}
