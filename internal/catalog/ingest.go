package catalog

import (
	"context"
	"encoding/json"
	"fmt"
	"os"
	"path/filepath"
	"strings"

	"github.com/modhub/modhub/internal/registry"
)

// IngestRepo loads every module record from the hub repository's modules
// directory. A record that fails to fetch, decode, or list is logged and
// skipped; one bad file never takes the batch down.
func (h *Hub) IngestRepo(ctx context.Context, hubRepo, modulesPath string) error {
	entries, err := h.host.ListContents(ctx, hubRepo, modulesPath)
	if err != nil {
		return fmt.Errorf("catalog: list %s in %s: %w", modulesPath, hubRepo, err)
	}

	var ingested int
	for _, entry := range entries {
		if entry.Type != "file" || !strings.HasSuffix(entry.Name, ".json") {
			continue
		}
		content, err := h.host.GetFileContent(ctx, hubRepo, entry.Path)
		if err != nil {
			h.logger.Warn("skipping unreadable module record",
				"path", entry.Path, "error", err)
			continue
		}
		if err := h.ingestRecord(ctx, entry.Path, content); err != nil {
			h.logger.Warn("skipping module record", "path", entry.Path, "error", err)
			continue
		}
		ingested++
	}

	h.logger.Info("repository ingest complete",
		"hub_repo", hubRepo, "ingested", ingested, "entries", len(entries))
	return nil
}

// IngestLocal loads module records from a local directory.
func (h *Hub) IngestLocal(ctx context.Context, dir string) error {
	entries, err := os.ReadDir(dir)
	if err != nil {
		return fmt.Errorf("catalog: read %s: %w", dir, err)
	}

	var ingested int
	for _, entry := range entries {
		if entry.IsDir() || !strings.HasSuffix(entry.Name(), ".json") {
			continue
		}
		path := filepath.Join(dir, entry.Name())
		if err := h.ingestFile(ctx, path); err != nil {
			h.logger.Warn("skipping module record", "path", path, "error", err)
			continue
		}
		ingested++
	}

	h.logger.Info("local ingest complete", "dir", dir, "ingested", ingested)
	return nil
}

func (h *Hub) ingestFile(ctx context.Context, path string) error {
	content, err := os.ReadFile(path)
	if err != nil {
		return err
	}
	return h.ingestRecord(ctx, path, content)
}

func (h *Hub) ingestRecord(ctx context.Context, origin string, content []byte) error {
	var mod registry.Module
	if err := json.Unmarshal(content, &mod); err != nil {
		return fmt.Errorf("decode: %w", err)
	}
	if mod.RepoID() == "" {
		return fmt.Errorf("record %s has no repository id", origin)
	}
	return h.AddModule(ctx, &mod)
}
