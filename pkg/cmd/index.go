package cmd

import (
	"context"
	"log/slog"
	"strings"

	"github.com/dukex/drafts/pkg/search"
	"github.com/dukex/drafts/pkg/search/memory"
	"github.com/dukex/drafts/pkg/search/redisindex"
)

// NewIndexer connects the search index named by indexURL. redis:// and rediss:// URLs use
// Redis; anything else, including memory://, keeps the index in process.
//
// nolint:ireturn // callers only need the indexer contract
func NewIndexer(ctx context.Context, logger *slog.Logger, indexURL string) (search.Indexer, error) {
	if strings.HasPrefix(indexURL, "redis://") || strings.HasPrefix(indexURL, "rediss://") {
		index, err := redisindex.NewIndex(ctx, logger, indexURL)
		if err != nil {
			return nil, err
		}

		return index, nil
	}

	logger.Info("Using in-memory search index")

	return memory.NewIndex(), nil
}
