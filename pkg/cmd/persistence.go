// Package cmd provides common initialization functions for the command-line applications.
package cmd

import (
	"context"
	"log/slog"
	"strings"

	"github.com/dukex/drafts/pkg/persistence"
	"github.com/dukex/drafts/pkg/persistence/file"
	"github.com/dukex/drafts/pkg/persistence/postgresql"
)

var supportedPersistenceProviders = []string{"file", "postgres", "postgresql"}

// NewPersistence opens the store named by databaseURL. postgres:// URLs use PostgreSQL;
// anything else is a file store root.
//
// nolint:ireturn // callers only need the persistence contract
func NewPersistence(ctx context.Context, logger *slog.Logger, databaseURL string) (persistence.Persistence, error) {
	switch parsePersistenceProvider(databaseURL) {
	case "postgres", "postgresql":
		p, err := postgresql.NewPersistence(ctx, logger, databaseURL)
		if err != nil {
			return nil, err
		}

		return p, nil
	default:
		p, err := file.NewPersistence(logger, databaseURL)
		if err != nil {
			return nil, err
		}

		return p, nil
	}
}

func parsePersistenceProvider(databaseURL string) string {
	provider, _, found := strings.Cut(databaseURL, "://")
	if !found {
		return "file"
	}

	for _, supported := range supportedPersistenceProviders {
		if provider == supported {
			return provider
		}
	}

	return "file"
}
