package resources

import (
	"context"
	"fmt"
	"log/slog"

	"git.sr.ht/~jakintosh/codeflow/internal/service"
)

// ClientSyncer stores a batch of client definitions.
type ClientSyncer interface {
	SyncClients(ctx context.Context, clients []service.Client) (int, error)
}

// ClientCatalog loads client definitions from a directory into the
// registry. Removing a file does not unregister its client.
type ClientCatalog struct {
	dir    string
	syncer ClientSyncer
	logger *slog.Logger
}

func NewClientCatalog(
	dir string,
	syncer ClientSyncer,
	logger *slog.Logger,
) *ClientCatalog {
	if logger == nil {
		logger = slog.Default()
	}
	return &ClientCatalog{dir: dir, syncer: syncer, logger: logger}
}

// Load syncs every valid definition. Invalid files are reported in the
// returned error, but the valid ones are still stored.
func (c *ClientCatalog) Load(ctx context.Context) (int, error) {
	clients, loadErr := service.LoadClientCatalog(c.dir)

	n, err := c.syncer.SyncClients(ctx, clients)
	if err != nil {
		return n, fmt.Errorf("failed to sync clients from '%s': %w", c.dir, err)
	}

	c.logger.Info("client catalog loaded", "dir", c.dir, "clients", n)
	return n, loadErr
}

// Watch reloads the catalog whenever the directory changes, until ctx is
// done.
func (c *ClientCatalog) Watch(ctx context.Context) error {
	err := watchDir(ctx, c.dir, c.logger, func() {
		if _, err := c.Load(ctx); err != nil {
			c.logger.Warn("client catalog reload", "dir", c.dir, "error", err)
		}
	})
	if err != nil {
		return fmt.Errorf("failed to start client catalog watcher: %w", err)
	}
	return nil
}
