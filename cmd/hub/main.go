// Package main is the entry point for the hub binary. It dispatches the
// subcommands — worker, bootstrap, submit, status, reset-submission, and
// version — via a simple switch on os.Args so the binary's full CLI surface
// is readable in one place without requiring a cobra dependency. The worker
// command runs bootstrap on startup so freshly deployed containers never
// need a separate initialization step.
package main

import (
	"context"
	"fmt"
	"log"
	"log/slog"
	"net/http"
	"os"
	"time"

	"github.com/prometheus/client_golang/prometheus/promhttp"

	"github.com/modhub/modhub/internal/catalog"
	"github.com/modhub/modhub/internal/config"
	"github.com/modhub/modhub/internal/hosting"
	"github.com/modhub/modhub/internal/hosting/github"
	"github.com/modhub/modhub/internal/queue"
	"github.com/modhub/modhub/internal/registry"
	"github.com/modhub/modhub/internal/safego"
	"github.com/modhub/modhub/internal/search"
	"github.com/modhub/modhub/internal/store"
	"github.com/modhub/modhub/internal/submission"
	"github.com/modhub/modhub/internal/telemetry"
	"github.com/modhub/modhub/internal/worker"
)

const version = "0.1.0"

func main() {
	if err := run(); err != nil {
		log.Fatalf("Error: %v\n", err)
	}
}

func run() error {
	command := "worker"
	if len(os.Args) > 1 {
		command = os.Args[1]
	}

	if command == "version" {
		fmt.Printf("hub v%s\n", version)
		return nil
	}

	cfg, err := config.Load(os.Getenv("CONFIG_PATH"))
	if err != nil {
		return fmt.Errorf("failed to load config: %w", err)
	}

	telemetry.SetupLogger(cfg.Logging.Format, cfg.Logging.Level)

	switch command {
	case "worker":
		return runWorker(cfg)
	case "bootstrap":
		return runBootstrap(cfg)
	case "submit":
		if len(os.Args) < 3 {
			return fmt.Errorf("usage: %s submit <owner/name> [author ...]", os.Args[0])
		}
		return runSubmit(cfg, os.Args[2], os.Args[3:])
	case "status":
		if len(os.Args) < 3 {
			return fmt.Errorf("usage: %s status <owner/name>", os.Args[0])
		}
		return runStatus(cfg, os.Args[2])
	case "reset-submission":
		if len(os.Args) < 3 {
			return fmt.Errorf("usage: %s reset-submission <owner/name>", os.Args[0])
		}
		return runReset(cfg, os.Args[2])
	default:
		return fmt.Errorf("unknown command: %s\nAvailable commands: worker, bootstrap, submit, status, reset-submission, version", command)
	}
}

// wiring holds the assembled service graph.
type wiring struct {
	docs   *store.Store
	index  *search.Index
	jobs   *queue.Client
	hub    *catalog.Hub
	logger *slog.Logger
}

func (w *wiring) close() {
	if err := w.jobs.Close(); err != nil {
		w.logger.Warn("closing queue client", "error", err)
	}
	if err := w.index.Close(); err != nil {
		w.logger.Warn("closing search index", "error", err)
	}
	if err := w.docs.Close(); err != nil {
		w.logger.Warn("closing document store", "error", err)
	}
}

// wire builds the full service graph. requireHosting fails fast for commands
// that cannot run without the hosting API (the worker); operator commands
// that only touch Redis accept a missing token.
func wire(cfg *config.Config, requireHosting bool) (*wiring, error) {
	logger := slog.Default()

	docs, err := store.Open(cfg.Redis.DocsURL)
	if err != nil {
		return nil, fmt.Errorf("failed to open document store: %w", err)
	}
	index, err := search.Open(cfg.Redis.GetSearchURL())
	if err != nil {
		return nil, fmt.Errorf("failed to open search index: %w", err)
	}
	jobs, err := queue.Open(cfg.Redis.GetQueueURL(), cfg.Worker.MaxRetry)
	if err != nil {
		return nil, fmt.Errorf("failed to open job queue: %w", err)
	}

	var host hosting.Client
	hosts := map[string]hosting.Client{}
	if cfg.Hosting.Token != "" {
		gh, err := github.NewClient(&github.Settings{
			Token:             cfg.Hosting.Token,
			BaseURL:           cfg.Hosting.BaseURL,
			RequestTimeout:    cfg.Hosting.RequestTimeout,
			RequestsPerMinute: cfg.Hosting.RequestsPerMinute,
			RateRedis:         docs.Client(),
		})
		if err != nil {
			return nil, fmt.Errorf("failed to create hosting client: %w", err)
		}
		host = gh
		hosts[hosting.ProviderGitHub] = gh
	} else if requireHosting {
		return nil, fmt.Errorf("hosting.token is required (set HOSTING_TOKEN)")
	}

	reg := registry.New(docs, index, jobs, hosts, cfg.Hub.RefreshInterval, logger)
	hub := catalog.New(docs, index, jobs, reg, host, catalog.Settings{
		HubRepo:       cfg.Hub.Repo,
		ModulesPath:   cfg.Hub.ModulesPath,
		SubmitEnabled: cfg.Hub.SubmitEnabled,
		MergePolicy:   cfg.Ingest.MergePolicy,
	}, logger)
	engine := submission.New(docs, jobs, hub, host, cfg.Hub.Repo, logger)
	hub.AttachEngine(engine)

	return &wiring{docs: docs, index: index, jobs: jobs, hub: hub, logger: logger}, nil
}

func runWorker(cfg *config.Config) error {
	w, err := wire(cfg, true)
	if err != nil {
		return err
	}
	defer w.close()

	ctx := context.Background()
	if _, err := w.hub.EnsureBootstrapped(ctx); err != nil {
		return fmt.Errorf("bootstrap failed: %w", err)
	}

	// Metrics side-channel, kept off any public listener.
	if cfg.Telemetry.MetricsEnabled {
		addr := fmt.Sprintf(":%d", cfg.Telemetry.PrometheusPort)
		safego.Go("metrics-server", func() {
			mux := http.NewServeMux()
			mux.Handle("/metrics", promhttp.Handler())
			srv := &http.Server{
				Addr:         addr,
				Handler:      mux,
				ReadTimeout:  5 * time.Second,
				WriteTimeout: 10 * time.Second,
			}
			w.logger.Info("metrics server listening", "addr", addr)
			if err := srv.ListenAndServe(); err != nil && err != http.ErrServerClosed {
				w.logger.Error("metrics server stopped", "error", err)
			}
		})
	}

	if cfg.Ingest.LocalPath != "" {
		if cfg.Ingest.Watch {
			safego.Go("modules-watcher", func() {
				if err := w.hub.WatchLocal(ctx, cfg.Ingest.LocalPath); err != nil && err != context.Canceled {
					w.logger.Error("modules watcher stopped", "error", err)
				}
			})
		} else if err := w.hub.IngestLocal(ctx, cfg.Ingest.LocalPath); err != nil {
			w.logger.Error("local ingest failed", "error", err)
		}
	}

	wrk := worker.New(w.hub, w.jobs, cfg.Hub.RefreshInterval, w.logger)
	return wrk.Run(cfg.Redis.GetQueueURL(), cfg.Worker.Concurrency)
}

func runBootstrap(cfg *config.Config) error {
	w, err := wire(cfg, false)
	if err != nil {
		return err
	}
	defer w.close()

	created, err := w.hub.EnsureBootstrapped(context.Background())
	if err != nil {
		return err
	}
	if created {
		fmt.Println("Catalog bootstrapped")
	} else {
		fmt.Println("Catalog already bootstrapped")
	}
	return nil
}

func runSubmit(cfg *config.Config, repoID string, authors []string) error {
	w, err := wire(cfg, false)
	if err != nil {
		return err
	}
	defer w.close()

	sub, err := w.hub.Submit(context.Background(), submission.Request{
		Repository: repoID,
		Authors:    authors,
	})
	if err != nil {
		return err
	}
	fmt.Printf("Submission %s: %s (%s)\n", sub.ID, sub.Status, sub.Message)
	if sub.JobID != "" {
		fmt.Printf("Job: %s\n", sub.JobID)
	}
	return nil
}

func runStatus(cfg *config.Config, repoID string) error {
	w, err := wire(cfg, false)
	if err != nil {
		return err
	}
	defer w.close()

	ctx := context.Background()
	sub, err := w.hub.SubmissionStatus(ctx, repoID)
	if err != nil {
		return err
	}
	fmt.Printf("Submission %s: %s (%s)\n", sub.ID, sub.Status, sub.Message)
	if sub.JobID != "" {
		jobState, err := w.hub.JobStatus(ctx, sub.JobID)
		if err == nil {
			fmt.Printf("Job %s: %s\n", sub.JobID, jobState)
		}
	}
	if sub.PullURL != "" {
		fmt.Printf("Pull request: %s\n", sub.PullURL)
	}
	return nil
}

func runReset(cfg *config.Config, repoID string) error {
	w, err := wire(cfg, false)
	if err != nil {
		return err
	}
	defer w.close()

	if err := w.hub.ResetSubmission(context.Background(), repoID); err != nil {
		return err
	}
	fmt.Printf("Submission %s reset\n", repoID)
	return nil
}
