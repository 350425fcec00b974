// Package redisindex stores search documents in Redis.
package redisindex

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"log/slog"

	"github.com/dukex/drafts/pkg/search"
	"github.com/redis/go-redis/v9"
)

const defaultPrefix = "drafts"

// Index keeps every document as a JSON string and one ID set per kind. Filtering runs
// client-side over the kind's documents.
type Index struct {
	client *redis.Client
	prefix string
	logger *slog.Logger
}

// NewIndex connects to the Redis server at url ("redis://host:port/db").
func NewIndex(ctx context.Context, logger *slog.Logger, url string) (*Index, error) {
	opts, err := redis.ParseURL(url)
	if err != nil {
		return nil, fmt.Errorf("failed to parse redis url: %w", err)
	}

	client := redis.NewClient(opts)

	err = client.Ping(ctx).Err()
	if err != nil {
		return nil, fmt.Errorf("failed to ping redis: %w", err)
	}

	return NewIndexWithClient(client, logger, defaultPrefix), nil
}

func NewIndexWithClient(client *redis.Client, logger *slog.Logger, prefix string) *Index {
	return &Index{
		client: client,
		prefix: prefix,
		logger: logger.With("module", "redis_index"),
	}
}

func (i *Index) docKey(kind search.Kind, id string) string {
	return fmt.Sprintf("%s:doc:%s:%s", i.prefix, kind, id)
}

func (i *Index) setKey(kind search.Kind) string {
	return fmt.Sprintf("%s:ids:%s", i.prefix, kind)
}

// Index writes the document and its set membership atomically. Redis writes are visible
// to the next read, so refresh needs no extra work.
func (i *Index) Index(ctx context.Context, doc *search.Document, _ bool) error {
	payload, err := json.Marshal(doc)
	if err != nil {
		return fmt.Errorf("failed to encode document: %w", err)
	}

	_, err = i.client.TxPipelined(ctx, func(pipe redis.Pipeliner) error {
		pipe.Set(ctx, i.docKey(doc.Kind, doc.ID), payload, 0)
		pipe.SAdd(ctx, i.setKey(doc.Kind), doc.ID)

		return nil
	})
	if err != nil {
		return fmt.Errorf("failed to index %s %s: %w", doc.Kind, doc.ID, err)
	}

	return nil
}

func (i *Index) Delete(ctx context.Context, kind search.Kind, id string, _ bool) error {
	_, err := i.client.TxPipelined(ctx, func(pipe redis.Pipeliner) error {
		pipe.Del(ctx, i.docKey(kind, id))
		pipe.SRem(ctx, i.setKey(kind), id)

		return nil
	})
	if err != nil {
		return fmt.Errorf("failed to delete %s %s: %w", kind, id, err)
	}

	return nil
}

func (i *Index) Search(ctx context.Context, query search.Query) (*search.Result, error) {
	kinds := []search.Kind{query.Kind}
	if query.Kind == "" {
		kinds = []search.Kind{search.KindDraft, search.KindRecord}
	}

	docs := make([]*search.Document, 0)

	for _, kind := range kinds {
		loaded, err := i.load(ctx, kind)
		if err != nil {
			return nil, err
		}

		docs = append(docs, loaded...)
	}

	return query.Apply(docs), nil
}

func (i *Index) load(ctx context.Context, kind search.Kind) ([]*search.Document, error) {
	ids, err := i.client.SMembers(ctx, i.setKey(kind)).Result()
	if err != nil {
		return nil, fmt.Errorf("failed to list %s documents: %w", kind, err)
	}

	if len(ids) == 0 {
		return nil, nil
	}

	keys := make([]string, len(ids))
	for n, id := range ids {
		keys[n] = i.docKey(kind, id)
	}

	values, err := i.client.MGet(ctx, keys...).Result()
	if err != nil {
		return nil, fmt.Errorf("failed to load %s documents: %w", kind, err)
	}

	docs := make([]*search.Document, 0, len(values))

	for n, value := range values {
		payload, ok := value.(string)
		if !ok {
			// set member without a document, left behind by an interrupted write
			i.logger.WarnContext(ctx, "Dangling index entry", "kind", kind, "id", ids[n])

			continue
		}

		var doc search.Document
		if err := json.Unmarshal([]byte(payload), &doc); err != nil {
			return nil, fmt.Errorf("failed to decode %s %s: %w", kind, ids[n], err)
		}

		docs = append(docs, &doc)
	}

	return docs, nil
}

// Get returns a single document, or nil when it is not indexed.
func (i *Index) Get(ctx context.Context, kind search.Kind, id string) (*search.Document, error) {
	payload, err := i.client.Get(ctx, i.docKey(kind, id)).Bytes()
	if errors.Is(err, redis.Nil) {
		return nil, nil
	}

	if err != nil {
		return nil, err
	}

	var doc search.Document
	if err := json.Unmarshal(payload, &doc); err != nil {
		return nil, err
	}

	return &doc, nil
}

func (i *Index) HealthCheck(ctx context.Context) error {
	return i.client.Ping(ctx).Err()
}

func (i *Index) Close() error {
	return i.client.Close()
}
