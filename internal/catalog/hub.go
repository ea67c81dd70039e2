// Package catalog ties the hub together: the catalog document, module
// listing and autocomplete, ingestion, and the submission entry points.
package catalog

import (
	"context"
	"encoding/json"
	"fmt"
	"log/slog"
	"strconv"
	"time"

	"github.com/modhub/modhub/internal/hosting"
	"github.com/modhub/modhub/internal/registry"
	"github.com/modhub/modhub/internal/search"
	"github.com/modhub/modhub/internal/submission"
	"github.com/modhub/modhub/internal/telemetry"
)

// CatalogKey is the singleton catalog document.
const CatalogKey = "hub:catalog"

// DocStore is the slice of the document store the hub uses.
type DocStore interface {
	CreateJSON(ctx context.Context, key string, v any) (bool, error)
	SetJSON(ctx context.Context, key, path string, v any) error
	GetJSON(ctx context.Context, key, path string, out any) error
	ArrAppend(ctx context.Context, key, path string, v any) error
	MGetRaw(ctx context.Context, keys []string) ([][]byte, error)
}

// SearchIndex is the slice of the search layer the hub queries.
type SearchIndex interface {
	Ensure(ctx context.Context) error
	Search(ctx context.Context, query string, sort search.SortKey) (*search.Result, error)
	Suggest(ctx context.Context, prefix string) ([]string, error)
}

// Jobs enqueues background work and reports job progress.
type Jobs interface {
	EnqueueIngest(ctx context.Context, hubRepo, modulesPath string) (string, error)
	JobStatus(ctx context.Context, jobID string) (string, error)
}

// Settings carries the hub's catalog-level configuration.
type Settings struct {
	// HubRepo is the "owner/name" repository holding the catalog source.
	HubRepo string
	// ModulesPath is the directory of module records inside HubRepo.
	ModulesPath string
	// SubmitEnabled is the initial submit flag for a freshly created catalog.
	SubmitEnabled bool
	// MergePolicy decides what ingestion does with already-listed modules:
	// "skip" keeps the stored document, "replace" overwrites it.
	MergePolicy string
}

// Hub is the catalog facade.
type Hub struct {
	docs     DocStore
	index    SearchIndex
	jobs     Jobs
	registry *registry.Registry
	host     hosting.Client
	engine   *submission.Engine
	settings Settings
	logger   *slog.Logger
	now      func() time.Time
}

// New creates a hub. The submission engine is attached separately because it
// needs the hub as its catalog gateway.
func New(docs DocStore, index SearchIndex, jobs Jobs, reg *registry.Registry, host hosting.Client, settings Settings, logger *slog.Logger) *Hub {
	return &Hub{
		docs:     docs,
		index:    index,
		jobs:     jobs,
		registry: reg,
		host:     host,
		settings: settings,
		logger:   logger,
		now:      time.Now,
	}
}

// AttachEngine wires in the submission engine.
func (h *Hub) AttachEngine(engine *submission.Engine) { h.engine = engine }

// catalogDoc is the persisted catalog shape.
type catalogDoc struct {
	Created       string               `json:"created"`
	Modules       map[string]moduleRef `json:"modules"`
	Submissions   []submissionLogEntry `json:"submissions"`
	SubmitEnabled bool                 `json:"submit_enabled"`
}

// moduleRef points from the catalog to one module document.
type moduleRef struct {
	ID      string `json:"id"`
	Key     string `json:"key"`
	Created string `json:"created"`
}

type submissionLogEntry struct {
	ID      string `json:"id"`
	Created int64  `json:"created"`
}

func epochString(t time.Time) string {
	return strconv.FormatFloat(float64(t.UnixMicro())/1e6, 'f', 6, 64)
}

// EnsureBootstrapped initializes the catalog exactly once across any number
// of racing processes. The conditional create of the catalog document is the
// latch: the winner builds the search index and enqueues the initial ingest,
// losers see the document in place and return.
func (h *Hub) EnsureBootstrapped(ctx context.Context) (bool, error) {
	doc := catalogDoc{
		Created:       epochString(h.now()),
		Modules:       map[string]moduleRef{},
		Submissions:   []submissionLogEntry{},
		SubmitEnabled: h.settings.SubmitEnabled,
	}
	created, err := h.docs.CreateJSON(ctx, CatalogKey, doc)
	if err != nil {
		return false, fmt.Errorf("catalog: create catalog document: %w", err)
	}
	if !created {
		h.logger.Debug("catalog already bootstrapped")
		return false, nil
	}

	if err := h.index.Ensure(ctx); err != nil {
		return true, err
	}
	jobID, err := h.jobs.EnqueueIngest(ctx, h.settings.HubRepo, h.settings.ModulesPath)
	if err != nil {
		return true, fmt.Errorf("catalog: enqueue initial ingest: %w", err)
	}
	h.logger.Info("catalog bootstrapped",
		"hub_repo", h.settings.HubRepo, "ingest_job", jobID)
	return true, nil
}

// ListResult is a module listing page with its per-phase timings.
type ListResult struct {
	TotalResults     int
	SearchDurationMs int64
	FetchDurationMs  int64
	TotalDurationMs  int64
	Modules          []*registry.Module
}

// ListModules searches the catalog. An empty query lists everything; sort
// accepts the search.SortKey values.
func (h *Hub) ListModules(ctx context.Context, query string, sort search.SortKey) (*ListResult, error) {
	start := h.now()
	telemetry.SearchQueriesTotal.WithLabelValues(string(sort)).Inc()

	res, err := h.index.Search(ctx, query, sort)
	if err != nil {
		return nil, err
	}
	telemetry.SearchDuration.Observe(res.SearchTime.Seconds())

	fetchStart := time.Now()
	raws, err := h.docs.MGetRaw(ctx, res.DocIDs)
	if err != nil {
		return nil, fmt.Errorf("catalog: fetch module documents: %w", err)
	}
	modules := make([]*registry.Module, 0, len(raws))
	for i, raw := range raws {
		if raw == nil {
			// Index record outlived its document; the next refresh heals it.
			h.logger.Warn("indexed module has no document", "key", res.DocIDs[i])
			continue
		}
		var mod registry.Module
		if err := json.Unmarshal(raw, &mod); err != nil {
			h.logger.Warn("skipping undecodable module document",
				"key", res.DocIDs[i], "error", err)
			continue
		}
		modules = append(modules, &mod)
	}
	fetchElapsed := time.Since(fetchStart)

	return &ListResult{
		TotalResults:     res.Total,
		SearchDurationMs: res.SearchTime.Milliseconds(),
		FetchDurationMs:  fetchElapsed.Milliseconds(),
		TotalDurationMs:  time.Since(start).Milliseconds(),
		Modules:          modules,
	}, nil
}

// Suggest returns ranked autocomplete candidates for a prefix.
func (h *Hub) Suggest(ctx context.Context, prefix string) ([]string, error) {
	telemetry.SuggestRequestsTotal.Inc()
	return h.index.Suggest(ctx, prefix)
}

// AddModule lists a module and records it in the catalog document. The merge
// policy decides what happens when the module is already listed.
func (h *Hub) AddModule(ctx context.Context, mod *registry.Module) error {
	replace := h.settings.MergePolicy == "replace"
	created, err := h.registry.Add(ctx, mod, replace)
	if err != nil {
		return err
	}
	if !created && !replace {
		return nil
	}
	repoID := mod.RepoID()
	ref := moduleRef{
		ID:      repoID,
		Key:     registry.DocKey(repoID),
		Created: epochString(h.now()),
	}
	path := fmt.Sprintf(`.modules["%s"]`, repoID)
	if err := h.docs.SetJSON(ctx, CatalogKey, path, ref); err != nil {
		return fmt.Errorf("catalog: record module reference %s: %w", repoID, err)
	}
	return nil
}

// GetModule loads one module document.
func (h *Hub) GetModule(ctx context.Context, repoID string) (*registry.Module, error) {
	return h.registry.Get(ctx, repoID)
}

// RefreshModuleStats delegates to the registry; the worker calls this.
func (h *Hub) RefreshModuleStats(ctx context.Context, repoID string) error {
	return h.registry.RefreshStats(ctx, repoID)
}

// Submission entry points, delegated to the engine.

func (h *Hub) Submit(ctx context.Context, req submission.Request) (*submission.Submission, error) {
	return h.engine.Submit(ctx, req)
}

func (h *Hub) SubmissionStatus(ctx context.Context, repoID string) (*submission.Submission, error) {
	return h.engine.Status(ctx, repoID)
}

func (h *Hub) ProcessSubmission(ctx context.Context, repoID string) error {
	return h.engine.Process(ctx, repoID)
}

func (h *Hub) ResetSubmission(ctx context.Context, repoID string) error {
	return h.engine.Reset(ctx, repoID)
}

// JobStatus reports the state of a queued job by id.
func (h *Hub) JobStatus(ctx context.Context, jobID string) (string, error) {
	return h.jobs.JobStatus(ctx, jobID)
}

// Catalog gateway for the submission engine.

// SubmitEnabled reads the catalog's submit flag.
func (h *Hub) SubmitEnabled(ctx context.Context) (bool, error) {
	var enabled bool
	if err := h.docs.GetJSON(ctx, CatalogKey, ".submit_enabled", &enabled); err != nil {
		return false, err
	}
	return enabled, nil
}

// ModuleExists reports whether a module is already listed.
func (h *Hub) ModuleExists(ctx context.Context, repoID string) (bool, error) {
	return h.registry.Exists(ctx, repoID)
}

// AppendSubmissionLog records a submission in the catalog's history.
func (h *Hub) AppendSubmissionLog(ctx context.Context, repoID string, created int64) error {
	entry := submissionLogEntry{ID: repoID, Created: created}
	return h.docs.ArrAppend(ctx, CatalogKey, ".submissions", entry)
}

var _ submission.Catalog = (*Hub)(nil)
