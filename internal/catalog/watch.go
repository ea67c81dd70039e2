package catalog

import (
	"context"
	"fmt"
	"strings"

	"github.com/fsnotify/fsnotify"
)

// WatchLocal ingests the local modules directory once, then keeps watching
// it and ingests each json file as it is created or rewritten. Blocks until
// the context is cancelled.
func (h *Hub) WatchLocal(ctx context.Context, dir string) error {
	if err := h.IngestLocal(ctx, dir); err != nil {
		return err
	}

	watcher, err := fsnotify.NewWatcher()
	if err != nil {
		return fmt.Errorf("catalog: create watcher: %w", err)
	}
	defer watcher.Close()

	if err := watcher.Add(dir); err != nil {
		return fmt.Errorf("catalog: watch %s: %w", dir, err)
	}
	h.logger.Info("watching modules directory", "dir", dir)

	for {
		select {
		case <-ctx.Done():
			return ctx.Err()
		case event, ok := <-watcher.Events:
			if !ok {
				return nil
			}
			if !event.Op.Has(fsnotify.Create) && !event.Op.Has(fsnotify.Write) {
				continue
			}
			if !strings.HasSuffix(event.Name, ".json") {
				continue
			}
			if err := h.ingestFile(ctx, event.Name); err != nil {
				h.logger.Warn("skipping module record", "path", event.Name, "error", err)
			}
		case err, ok := <-watcher.Errors:
			if !ok {
				return nil
			}
			h.logger.Error("watcher error", "error", err)
		}
	}
}
