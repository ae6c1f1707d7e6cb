// Package feeder keeps the conflict-search index in step with decided name
// requests. It consumes the search-feed topic and mirrors accepted names
// into the index.
package feeder

import (
	"context"
	"encoding/json"
	"fmt"
	"log/slog"

	nrmodels "namereg/internal/namerequest/models"
	"namereg/internal/queue"
	"namereg/internal/search/solr"
)

// RequestSource loads the request an index event refers to.
type RequestSource interface {
	Get(ctx context.Context, nrNum string) (*nrmodels.Request, error)
}

// Indexer is the slice of the Solr client the feeder uses.
type Indexer interface {
	Upsert(ctx context.Context, docs []solr.Document) error
	DeleteByNRNum(ctx context.Context, nrNum string) error
}

// Feeder applies search-feed events to the index.
type Feeder struct {
	requests RequestSource
	index    Indexer
	logger   *slog.Logger
}

// New constructs a Feeder.
func New(requests RequestSource, index Indexer, logger *slog.Logger) *Feeder {
	return &Feeder{requests: requests, index: index, logger: logger}
}

// Handle is the message handler wired into the search-feed consumer.
func (f *Feeder) Handle(ctx context.Context, key, value []byte) error {
	var evt queue.SearchFeedEvent
	if err := json.Unmarshal(value, &evt); err != nil {
		return fmt.Errorf("decode search feed event: %w", err)
	}
	return f.Apply(ctx, evt)
}

// Apply mirrors one event into the index. Deletions drop every document for
// the NR; updates reindex the accepted names.
func (f *Feeder) Apply(ctx context.Context, evt queue.SearchFeedEvent) error {
	if evt.Deleted {
		if err := f.index.DeleteByNRNum(ctx, evt.NRNum); err != nil {
			return fmt.Errorf("remove %s from index: %w", evt.NRNum, err)
		}
		f.logger.InfoContext(ctx, "removed name request from search index", "nr_num", evt.NRNum)
		return nil
	}

	req, err := f.requests.Get(ctx, evt.NRNum)
	if err != nil {
		return fmt.Errorf("load %s for indexing: %w", evt.NRNum, err)
	}

	var docs []solr.Document
	for _, n := range req.Names {
		if !n.Accepted() {
			continue
		}
		docs = append(docs, solr.Document{
			ID:    fmt.Sprintf("%s-%d", req.NRNum, n.Choice),
			Name:  n.Name,
			NRNum: req.NRNum,
			State: string(req.State),
		})
	}
	if len(docs) == 0 {
		// A decision with no accepted names means any earlier index entry
		// is stale.
		if err := f.index.DeleteByNRNum(ctx, evt.NRNum); err != nil {
			return fmt.Errorf("remove %s from index: %w", evt.NRNum, err)
		}
		return nil
	}

	if err := f.index.Upsert(ctx, docs); err != nil {
		return fmt.Errorf("index %s: %w", evt.NRNum, err)
	}
	f.logger.InfoContext(ctx, "indexed name request", "nr_num", evt.NRNum, "names", len(docs))
	return nil
}
