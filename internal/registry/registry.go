package registry

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"time"

	"github.com/modhub/modhub/internal/hosting"
	"github.com/modhub/modhub/internal/search"
	"github.com/modhub/modhub/internal/store"
	"github.com/modhub/modhub/internal/telemetry"
)

// DocStore is the slice of the document store the registry uses.
type DocStore interface {
	CreateJSON(ctx context.Context, key string, v any) (bool, error)
	SetJSON(ctx context.Context, key, path string, v any) error
	GetJSON(ctx context.Context, key, path string, out any) error
	Exists(ctx context.Context, key string) (bool, error)
}

// Index is the slice of the search index the registry writes to.
type Index interface {
	Add(ctx context.Context, docID string, fields map[string]any) error
	Replace(ctx context.Context, docID string, fields map[string]any) error
	AddSuggestions(ctx context.Context, terms []string) error
}

// Scheduler starts a module's recurring stats refresh.
type Scheduler interface {
	ScheduleRefresh(ctx context.Context, repoID string, interval time.Duration) error
}

// Registry keeps module documents, their index records, and their refresh
// schedules in step. The document write always precedes the index write;
// divergence between the two heals on the next refresh.
type Registry struct {
	docs     DocStore
	index    Index
	sched    Scheduler
	hosts    map[string]hosting.Client
	interval time.Duration
	logger   *slog.Logger
}

// New creates a registry. hosts maps repository descriptor types to hosting
// clients; descriptor types with no entry are skipped during refresh.
func New(docs DocStore, index Index, sched Scheduler, hosts map[string]hosting.Client, refreshInterval time.Duration, logger *slog.Logger) *Registry {
	if refreshInterval <= 0 {
		refreshInterval = time.Hour
	}
	return &Registry{
		docs:     docs,
		index:    index,
		sched:    sched,
		hosts:    hosts,
		interval: refreshInterval,
		logger:   logger,
	}
}

// Exists reports whether a module document is present.
func (r *Registry) Exists(ctx context.Context, repoID string) (bool, error) {
	return r.docs.Exists(ctx, DocKey(repoID))
}

// Get loads a module document.
func (r *Registry) Get(ctx context.Context, repoID string) (*Module, error) {
	var mod Module
	if err := r.docs.GetJSON(ctx, DocKey(repoID), store.RootPath, &mod); err != nil {
		return nil, err
	}
	return &mod, nil
}

// Add lists a module: document first, then the index record (name and
// description only; counters arrive with the first refresh), then the
// suggestion terms, then the recurring refresh schedule. When the document
// already exists, replace decides between overwriting it and leaving it
// untouched; either way the downstream writes still run so a half-listed
// module converges.
func (r *Registry) Add(ctx context.Context, mod *Module, replace bool) (bool, error) {
	repoID := mod.RepoID()
	if repoID == "" {
		return false, errors.New("registry: module has no repository id")
	}
	key := DocKey(repoID)

	created, err := r.docs.CreateJSON(ctx, key, mod)
	if err != nil {
		return false, fmt.Errorf("registry: write module %s: %w", repoID, err)
	}
	if !created && !replace {
		r.logger.Debug("module already listed, keeping existing document", "module", repoID)
	} else if !created {
		if err := r.docs.SetJSON(ctx, key, store.RootPath, mod); err != nil {
			return false, fmt.Errorf("registry: replace module %s: %w", repoID, err)
		}
	}

	if err := r.index.Add(ctx, key, map[string]any{
		"name":        mod.Name,
		"description": mod.Description,
	}); err != nil {
		return created, fmt.Errorf("registry: index module %s: %w", repoID, err)
	}
	if err := r.index.AddSuggestions(ctx, search.SuggestionTerms(mod.Name, mod.Description)); err != nil {
		return created, fmt.Errorf("registry: add suggestions for %s: %w", repoID, err)
	}
	if err := r.sched.ScheduleRefresh(ctx, repoID, r.interval); err != nil {
		return created, fmt.Errorf("registry: schedule refresh for %s: %w", repoID, err)
	}

	r.logger.Info("module listed", "module", repoID, "created", created)
	return created, nil
}

// RefreshStats pulls current hosting counters for a module, writes them to
// the document's stats field, and rewrites the index record in full. A
// repository descriptor whose type has no configured hosting client is a
// successful no-op.
func (r *Registry) RefreshStats(ctx context.Context, repoID string) error {
	mod, err := r.Get(ctx, repoID)
	if err != nil {
		if errors.Is(err, store.ErrNotFound) {
			// The document was removed after the refresh chain started.
			telemetry.StatsRefreshTotal.WithLabelValues("skipped").Inc()
			r.logger.Warn("refresh skipped, module document missing", "module", repoID)
			return nil
		}
		telemetry.StatsRefreshTotal.WithLabelValues("error").Inc()
		return fmt.Errorf("registry: load module %s: %w", repoID, err)
	}

	host, ok := r.hosts[mod.Repository.Type]
	if !ok {
		telemetry.StatsRefreshTotal.WithLabelValues("skipped").Inc()
		r.logger.Info("refresh skipped, unsupported repository type",
			"module", repoID, "type", mod.Repository.Type)
		return nil
	}

	repo, err := host.GetRepository(ctx, mod.Repository.ID)
	if err != nil {
		telemetry.StatsRefreshTotal.WithLabelValues("error").Inc()
		return fmt.Errorf("registry: fetch repository %s: %w", mod.Repository.ID, err)
	}

	stats := &Stats{
		Stargazers:       repo.Stargazers,
		Forks:            repo.Forks,
		LastModifiedDays: int(time.Since(repo.PushedAt).Hours() / 24),
	}
	release, err := host.GetLatestRelease(ctx, mod.Repository.ID)
	switch {
	case err == nil:
		stats.LastRelease = &Release{Name: release.TagName, URL: release.URL}
	case errors.Is(err, hosting.ErrReleaseNotFound):
		// Plenty of modules never cut a release.
	default:
		telemetry.StatsRefreshTotal.WithLabelValues("error").Inc()
		return fmt.Errorf("registry: fetch latest release %s: %w", mod.Repository.ID, err)
	}

	key := DocKey(repoID)
	if err := r.docs.SetJSON(ctx, key, ".stats", stats); err != nil {
		telemetry.StatsRefreshTotal.WithLabelValues("error").Inc()
		return fmt.Errorf("registry: write stats %s: %w", repoID, err)
	}
	if err := r.index.Replace(ctx, key, map[string]any{
		"name":             mod.Name,
		"description":      mod.Description,
		"stargazers_count": stats.Stargazers,
		"forks_count":      stats.Forks,
		"last_modified":    stats.LastModifiedDays,
	}); err != nil {
		telemetry.StatsRefreshTotal.WithLabelValues("error").Inc()
		return fmt.Errorf("registry: reindex %s: %w", repoID, err)
	}

	telemetry.StatsRefreshTotal.WithLabelValues("updated").Inc()
	r.logger.Info("module stats refreshed", "module", repoID,
		"stars", stats.Stargazers, "forks", stats.Forks)
	return nil
}
