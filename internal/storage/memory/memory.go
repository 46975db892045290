// Package memory implements the storage port on plain maps guarded by
// a single mutex. It backs unit tests and the server's httptest
// suites; nothing persists past process exit.
package memory

import (
	"context"
	"fmt"
	"sort"
	"strings"
	"sync"
	"time"

	"github.com/weftdb/weft/internal/idgen"
	"github.com/weftdb/weft/internal/storage"
	"github.com/weftdb/weft/internal/types"
)

type entityKey struct {
	workspaceID string
	entityType  string
	primaryKey  string
}

type edge struct {
	workspaceID string
	srcID       string
	edgeType    string
	dstID       string
}

// Store implements storage.Storage in memory.
type Store struct {
	mu     sync.RWMutex
	closed bool
	clock  idgen.Clock

	entities   map[string]*types.Entity // by entity_id
	entityByPK map[entityKey]string     // natural key → entity_id
	assertions map[string]*types.AssertionRecord
	propValues map[string]*types.PropertyValue
	events     map[string]*types.ChangeEvent
	runs       map[string]*types.ImportRun
	sources    map[string]*types.Source
	edges      map[edge]struct{}
	edgeOrder  []edge // insertion order, for deterministic traversal
}

var _ storage.Storage = (*Store)(nil)

// New returns an empty store.
func New() *Store {
	return &Store{
		clock:      idgen.WallClock{},
		entities:   make(map[string]*types.Entity),
		entityByPK: make(map[entityKey]string),
		assertions: make(map[string]*types.AssertionRecord),
		propValues: make(map[string]*types.PropertyValue),
		events:     make(map[string]*types.ChangeEvent),
		runs:       make(map[string]*types.ImportRun),
		sources:    make(map[string]*types.Source),
		edges:      make(map[edge]struct{}),
	}
}

// SetClock overrides the timestamp source, for tests.
func (s *Store) SetClock(c idgen.Clock) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.clock = c
}

func (s *Store) UpsertEntity(ctx context.Context, workspaceID, entityType, primaryKey, displayName string) (string, bool, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	key := entityKey{workspaceID, entityType, primaryKey}
	if id, ok := s.entityByPK[key]; ok {
		return id, false, nil
	}
	now := s.clock.Now()
	e := &types.Entity{
		EntityID:    idgen.New(idgen.PrefixEntity),
		WorkspaceID: workspaceID,
		EntityType:  entityType,
		PrimaryKey:  primaryKey,
		DisplayName: displayName,
		CreatedAt:   now,
		UpdatedAt:   now,
	}
	s.entities[e.EntityID] = e
	s.entityByPK[key] = e.EntityID
	return e.EntityID, true, nil
}

func (s *Store) LookupEntity(ctx context.Context, workspaceID, entityType, primaryKey string) (*types.Entity, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	id, ok := s.entityByPK[entityKey{workspaceID, entityType, primaryKey}]
	if !ok {
		return nil, storage.ErrNotFound
	}
	return copyEntity(s.entities[id]), nil
}

func (s *Store) GetEntity(ctx context.Context, workspaceID, entityID string) (*types.Entity, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	e, ok := s.entities[entityID]
	if !ok || e.WorkspaceID != workspaceID {
		return nil, storage.ErrNotFound
	}
	return copyEntity(e), nil
}

func (s *Store) SearchEntities(ctx context.Context, workspaceID, entityType, primaryKey string, limit int) ([]*types.Entity, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	if limit <= 0 {
		limit = 50
	}
	var out []*types.Entity
	for _, e := range s.entities {
		if e.WorkspaceID != workspaceID {
			continue
		}
		if entityType != "" && e.EntityType != entityType {
			continue
		}
		if primaryKey != "" && !strings.HasPrefix(e.PrimaryKey, primaryKey) {
			continue
		}
		out = append(out, copyEntity(e))
	}
	sort.Slice(out, func(i, j int) bool {
		if out[i].EntityType != out[j].EntityType {
			return out[i].EntityType < out[j].EntityType
		}
		return out[i].PrimaryKey < out[j].PrimaryKey
	})
	if len(out) > limit {
		out = out[:limit]
	}
	return out, nil
}

func (s *Store) InsertAssertion(ctx context.Context, a *types.AssertionRecord) (string, error) {
	a.SetDefaults()
	if err := a.Validate(); err != nil {
		return "", fmt.Errorf("%w: %v", storage.ErrInvalidInput, err)
	}
	s.mu.Lock()
	defer s.mu.Unlock()
	if a.AssertionID == "" {
		a.AssertionID = idgen.New(idgen.PrefixAssertion)
	}
	s.assertions[a.AssertionID] = copyAssertion(a)
	return a.AssertionID, nil
}

func (s *Store) GetAssertion(ctx context.Context, workspaceID, assertionID string) (*types.AssertionRecord, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	a, ok := s.assertions[assertionID]
	if !ok || a.WorkspaceID != workspaceID {
		return nil, storage.ErrNotFound
	}
	return copyAssertion(a), nil
}

func (s *Store) CloseAssertion(ctx context.Context, workspaceID, assertionID string, validTo time.Time) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	a, ok := s.assertions[assertionID]
	if !ok || a.WorkspaceID != workspaceID {
		return storage.ErrNotFound
	}
	t := validTo
	a.ValidTo = &t
	return nil
}

func (s *Store) LookupAssertionsByKey(ctx context.Context, workspaceID, assertionKey, scenarioID string) ([]*types.AssertionRecord, error) {
	if scenarioID == "" {
		scenarioID = types.DefaultScenario
	}
	s.mu.RLock()
	defer s.mu.RUnlock()
	var out []*types.AssertionRecord
	for _, a := range s.assertions {
		if a.WorkspaceID != workspaceID || a.AssertionKey != assertionKey || a.ScenarioID != scenarioID {
			continue
		}
		if !a.IsOpen() {
			continue
		}
		out = append(out, copyAssertion(a))
	}
	sortAssertions(out)
	return out, nil
}

func (s *Store) LookupAssertionsByImportRun(ctx context.Context, importRunID string) ([]*types.AssertionRecord, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	var out []*types.AssertionRecord
	for _, a := range s.assertions {
		if a.ImportRunID == importRunID {
			out = append(out, copyAssertion(a))
		}
	}
	sort.Slice(out, func(i, j int) bool {
		if !out[i].RecordedAt.Equal(out[j].RecordedAt) {
			return out[i].RecordedAt.Before(out[j].RecordedAt)
		}
		return out[i].AssertionID < out[j].AssertionID
	})
	return out, nil
}

func (s *Store) GetAssertionsForEntity(ctx context.Context, workspaceID, entityID string) ([]*types.AssertionRecord, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	var out []*types.AssertionRecord
	for _, e := range s.edgeOrder {
		if e.srcID != entityID || e.edgeType != types.EdgeAssertedRel {
			continue
		}
		a, ok := s.assertions[e.dstID]
		if !ok || a.WorkspaceID != workspaceID {
			continue
		}
		out = append(out, copyAssertion(a))
	}
	sort.Slice(out, func(i, j int) bool {
		if !out[i].RecordedAt.Equal(out[j].RecordedAt) {
			return out[i].RecordedAt.Before(out[j].RecordedAt)
		}
		return out[i].AssertionID < out[j].AssertionID
	})
	return out, nil
}

func (s *Store) InsertPropertyValue(ctx context.Context, pv *types.PropertyValue) (string, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if pv.PropertyValueID == "" {
		pv.PropertyValueID = idgen.New(idgen.PrefixPropertyValue)
	}
	cp := *pv
	if pv.Value != nil {
		v := *pv.Value
		cp.Value = &v
	}
	s.propValues[pv.PropertyValueID] = &cp
	return pv.PropertyValueID, nil
}

func (s *Store) GetPropertyValue(ctx context.Context, workspaceID, propertyValueID string) (*types.PropertyValue, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	pv, ok := s.propValues[propertyValueID]
	if !ok || pv.WorkspaceID != workspaceID {
		return nil, storage.ErrNotFound
	}
	cp := *pv
	if pv.Value != nil {
		v := *pv.Value
		cp.Value = &v
	}
	return &cp, nil
}

func (s *Store) CreateAssertedRel(ctx context.Context, workspaceID, fromID, assertionID, toID string) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.addEdge(edge{workspaceID, fromID, types.EdgeAssertedRel, assertionID})
	s.addEdge(edge{workspaceID, assertionID, types.EdgeAssertedRel, toID})
	return nil
}

func (s *Store) GetAssertedTarget(ctx context.Context, workspaceID, assertionID string) (string, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	for _, e := range s.edgeOrder {
		if e.workspaceID == workspaceID && e.srcID == assertionID && e.edgeType == types.EdgeAssertedRel {
			return e.dstID, nil
		}
	}
	return "", storage.ErrNotFound
}

func (s *Store) LinkCreatedAssertion(ctx context.Context, workspaceID, changeEventID, assertionID string) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.addEdge(edge{workspaceID, changeEventID, types.EdgeCreatedAssertion, assertionID})
	return nil
}

func (s *Store) LinkClosedAssertion(ctx context.Context, workspaceID, changeEventID, assertionID string) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.addEdge(edge{workspaceID, changeEventID, types.EdgeClosedAssertion, assertionID})
	return nil
}

func (s *Store) LinkTriggeredBy(ctx context.Context, workspaceID, changeEventID, importRunID string) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.addEdge(edge{workspaceID, changeEventID, types.EdgeTriggeredBy, importRunID})
	return nil
}

func (s *Store) InsertChangeEvent(ctx context.Context, ce *types.ChangeEvent) (string, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if ce.ChangeEventID == "" {
		ce.ChangeEventID = idgen.New(idgen.PrefixChangeEvent)
	}
	cp := *ce
	s.events[ce.ChangeEventID] = &cp
	return ce.ChangeEventID, nil
}

func (s *Store) GetChangeEventByImportRun(ctx context.Context, importRunID string) (*types.ChangeEvent, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	var best *types.ChangeEvent
	for _, ce := range s.events {
		if ce.ImportRunID != importRunID {
			continue
		}
		if best == nil || ce.TS.After(best.TS) {
			best = ce
		}
	}
	if best == nil {
		return nil, storage.ErrNotFound
	}
	cp := *best
	return &cp, nil
}

func (s *Store) ListChangeEventAssertions(ctx context.Context, workspaceID, changeEventID string) (created, closed []string, err error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	for _, e := range s.edgeOrder {
		if e.workspaceID != workspaceID || e.srcID != changeEventID {
			continue
		}
		switch e.edgeType {
		case types.EdgeCreatedAssertion:
			created = append(created, e.dstID)
		case types.EdgeClosedAssertion:
			closed = append(closed, e.dstID)
		}
	}
	return created, closed, nil
}

func (s *Store) InsertImportRun(ctx context.Context, ir *types.ImportRun) (string, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if ir.ImportRunID == "" {
		ir.ImportRunID = idgen.New(idgen.PrefixImportRun)
	}
	if ir.StartedAt.IsZero() {
		ir.StartedAt = s.clock.Now()
	}
	if ir.Status == "" {
		ir.Status = types.RunRunning
	}
	cp := copyRun(ir)
	s.runs[ir.ImportRunID] = cp
	return ir.ImportRunID, nil
}

func (s *Store) UpdateImportRun(ctx context.Context, ir *types.ImportRun) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	cur, ok := s.runs[ir.ImportRunID]
	if !ok || cur.WorkspaceID != ir.WorkspaceID {
		return storage.ErrNotFound
	}
	cur.Status = ir.Status
	cur.Stats = ir.Stats
	cur.ErrorMessage = ir.ErrorMessage
	if ir.CompletedAt != nil {
		t := *ir.CompletedAt
		cur.CompletedAt = &t
	}
	return nil
}

func (s *Store) GetImportRun(ctx context.Context, workspaceID, importRunID string) (*types.ImportRun, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	ir, ok := s.runs[importRunID]
	if !ok || ir.WorkspaceID != workspaceID {
		return nil, storage.ErrNotFound
	}
	return copyRun(ir), nil
}

func (s *Store) ListImportRuns(ctx context.Context, workspaceID string, limit int) ([]*types.ImportRun, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	if limit <= 0 {
		limit = 50
	}
	var out []*types.ImportRun
	for _, ir := range s.runs {
		if ir.WorkspaceID == workspaceID {
			out = append(out, copyRun(ir))
		}
	}
	sort.Slice(out, func(i, j int) bool {
		if !out[i].StartedAt.Equal(out[j].StartedAt) {
			return out[i].StartedAt.After(out[j].StartedAt)
		}
		return out[i].ImportRunID > out[j].ImportRunID
	})
	if len(out) > limit {
		out = out[:limit]
	}
	return out, nil
}

func (s *Store) UpsertSource(ctx context.Context, src *types.Source) (string, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	for _, existing := range s.sources {
		if existing.WorkspaceID == src.WorkspaceID && existing.SourceName == src.SourceName {
			src.SourceID = existing.SourceID
			s.sources[existing.SourceID] = copySource(src)
			return existing.SourceID, nil
		}
	}
	if src.SourceID == "" {
		src.SourceID = idgen.New(idgen.PrefixSource)
	}
	s.sources[src.SourceID] = copySource(src)
	return src.SourceID, nil
}

func (s *Store) GetSource(ctx context.Context, workspaceID, sourceID string) (*types.Source, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	src, ok := s.sources[sourceID]
	if !ok || src.WorkspaceID != workspaceID {
		return nil, storage.ErrNotFound
	}
	return copySource(src), nil
}

func (s *Store) ListSources(ctx context.Context, workspaceID string) ([]*types.Source, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	var out []*types.Source
	for _, src := range s.sources {
		if src.WorkspaceID == workspaceID {
			out = append(out, copySource(src))
		}
	}
	sort.Slice(out, func(i, j int) bool {
		if out[i].AuthorityRank != out[j].AuthorityRank {
			return out[i].AuthorityRank < out[j].AuthorityRank
		}
		return out[i].SourceName < out[j].SourceName
	})
	return out, nil
}

func (s *Store) GetSourceAuthorityMap(ctx context.Context, workspaceID string) (map[string]int, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	out := make(map[string]int)
	for _, src := range s.sources {
		if src.WorkspaceID == workspaceID {
			out[src.SourceID] = src.AuthorityRank
		}
	}
	return out, nil
}

func (s *Store) Ping(ctx context.Context) error {
	s.mu.RLock()
	defer s.mu.RUnlock()
	if s.closed {
		return storage.ErrStoreUnavailable
	}
	return nil
}

func (s *Store) Close() error {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.closed = true
	return nil
}

// addEdge requires s.mu held for writing.
func (s *Store) addEdge(e edge) {
	if _, ok := s.edges[e]; ok {
		return
	}
	s.edges[e] = struct{}{}
	s.edgeOrder = append(s.edgeOrder, e)
}

func sortAssertions(out []*types.AssertionRecord) {
	sort.Slice(out, func(i, j int) bool {
		if !out[i].RecordedAt.Equal(out[j].RecordedAt) {
			return out[i].RecordedAt.After(out[j].RecordedAt)
		}
		return out[i].AssertionID > out[j].AssertionID
	})
}

func copyEntity(e *types.Entity) *types.Entity {
	cp := *e
	return &cp
}

func copyAssertion(a *types.AssertionRecord) *types.AssertionRecord {
	cp := *a
	if a.ValidTo != nil {
		t := *a.ValidTo
		cp.ValidTo = &t
	}
	return &cp
}

func copyRun(ir *types.ImportRun) *types.ImportRun {
	cp := *ir
	if ir.CompletedAt != nil {
		t := *ir.CompletedAt
		cp.CompletedAt = &t
	}
	return &cp
}

func copySource(src *types.Source) *types.Source {
	cp := *src
	cp.AuthorityDomains = append([]string(nil), src.AuthorityDomains...)
	return &cp
}
