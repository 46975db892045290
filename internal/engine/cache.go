package engine

import (
	"context"
	"sync"

	"golang.org/x/sync/errgroup"

	"github.com/weftdb/weft/internal/hashing"
	"github.com/weftdb/weft/internal/tabular"
	"github.com/weftdb/weft/internal/types"
)

// openCache is the run's view of open assertions per key. It is
// primed by a bounded fan-out of LookupAssertionsByKey before the
// write passes and then maintained as an overlay: creates and closes
// performed by the run update it, so repeated keys read their own
// writes without another round trip. A miss falls through to the
// store.
type openCache struct {
	store interface {
		LookupAssertionsByKey(ctx context.Context, workspaceID, assertionKey, scenarioID string) ([]*types.AssertionRecord, error)
	}
	wid string

	mu      sync.Mutex
	entries map[string][]*types.AssertionRecord
}

// open returns the open assertions for the key, newest first. The
// result is a copy: callers iterate it while closes mutate the
// cached entry underneath.
func (c *openCache) open(ctx context.Context, key string) ([]*types.AssertionRecord, error) {
	c.mu.Lock()
	cached, ok := c.entries[key]
	c.mu.Unlock()
	if ok {
		return append([]*types.AssertionRecord(nil), cached...), nil
	}
	open, err := c.store.LookupAssertionsByKey(ctx, c.wid, key, types.DefaultScenario)
	if err != nil {
		return nil, err
	}
	c.mu.Lock()
	c.entries[key] = open
	c.mu.Unlock()
	return append([]*types.AssertionRecord(nil), open...), nil
}

// add registers a newly created open assertion at the head of its key.
func (c *openCache) add(a *types.AssertionRecord) {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.entries[a.AssertionKey] = append([]*types.AssertionRecord{a}, c.entries[a.AssertionKey]...)
}

// close drops a closed assertion from its key's open set.
func (c *openCache) close(key, assertionID string) {
	c.mu.Lock()
	defer c.mu.Unlock()
	open := c.entries[key]
	kept := make([]*types.AssertionRecord, 0, len(open))
	for _, a := range open {
		if a.AssertionID != assertionID {
			kept = append(kept, a)
		}
	}
	c.entries[key] = kept
}

// prefetchOpen primes the cache for every assertion key the staged
// rows will touch. Lookups are independent reads and fan out through
// errgroup with bounded concurrency; a failed lookup leaves a miss for
// the write pass to retry inline.
func (r *run) prefetchOpen(ctx context.Context, rows []tabular.StagedRow) *openCache {
	cache := &openCache{
		store:   r.store,
		wid:     r.wid,
		entries: make(map[string][]*types.AssertionRecord),
	}

	keySet := make(map[string]struct{})
	for _, row := range rows {
		for _, se := range row.Entities {
			for _, prop := range se.Properties {
				keySet[hashing.PropertyKey(r.wid, se.EntityType, se.PrimaryKey, prop.Key)] = struct{}{}
			}
		}
		for _, sr := range row.Relationships {
			keySet[hashing.RelationshipKey(r.wid, sr.FromEntityType, sr.FromPrimaryKey,
				sr.RelationshipType, sr.ToEntityType, sr.ToPrimaryKey)] = struct{}{}
		}
	}
	if len(keySet) == 0 {
		return cache
	}

	g, gctx := errgroup.WithContext(ctx)
	g.SetLimit(r.prefetchWorkers)
	for key := range keySet {
		g.Go(func() error {
			open, err := r.store.LookupAssertionsByKey(gctx, r.wid, key, types.DefaultScenario)
			if err != nil {
				return nil // miss; inline lookup retries during the pass
			}
			cache.mu.Lock()
			cache.entries[key] = open
			cache.mu.Unlock()
			return nil
		})
	}
	// Workers never return errors; Wait is a join.
	_ = g.Wait()
	return cache
}
