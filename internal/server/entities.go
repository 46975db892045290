package server

import (
	"context"
	"fmt"
	"net/http"
	"time"

	"github.com/go-chi/chi/v5"

	"github.com/weftdb/weft/internal/resolve"
	"github.com/weftdb/weft/internal/types"
)

func (s *Server) handleSearchEntities(w http.ResponseWriter, r *http.Request) {
	wid := chi.URLParam(r, "workspaceID")
	q := r.URL.Query()
	limit := queryInt(r, "limit", 50)

	entities, err := s.store.SearchEntities(r.Context(), wid, q.Get("entity_type"), q.Get("q"), limit)
	if err != nil {
		s.respondError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, map[string]any{"entities": entities})
}

type propertyView struct {
	Value     *string                `json:"value"`
	ValueType types.ValueType        `json:"value_type"`
	Assertion *types.AssertionRecord `json:"assertion"`
}

type relationshipView struct {
	RelationshipType string                 `json:"relationship_type"`
	Target           *types.Entity          `json:"target"`
	Assertion        *types.AssertionRecord `json:"assertion"`
}

type claimView struct {
	Assertion *types.AssertionRecord `json:"assertion"`
	IsWinner  bool                   `json:"is_winner"`
	Value     *string                `json:"value,omitempty"`
}

type entityResponse struct {
	Entity        *types.Entity           `json:"entity"`
	ViewMode      types.ViewMode          `json:"view_mode"`
	ScenarioID    string                  `json:"scenario_id"`
	At            *time.Time              `json:"at,omitempty"`
	Properties    map[string]propertyView `json:"properties,omitempty"`
	Relationships []relationshipView      `json:"relationships,omitempty"`
	Claims        map[string][]claimView  `json:"claims,omitempty"`
}

// handleGetEntity serves both view modes. `resolved` projects one
// winner per assertion key through conflict resolution; `all_claims`
// returns every claim annotated with the resolution outcome.
func (s *Server) handleGetEntity(w http.ResponseWriter, r *http.Request) {
	ctx := r.Context()
	wid := chi.URLParam(r, "workspaceID")
	entityID := chi.URLParam(r, "entityID")
	q := r.URL.Query()

	viewMode := types.ViewMode(q.Get("view_mode"))
	if viewMode == "" {
		viewMode = types.ViewResolved
	}
	if !viewMode.IsValid() {
		writeError(w, http.StatusBadRequest, codeValidation,
			fmt.Sprintf("view_mode %q is invalid (valid values: resolved, all_claims)", q.Get("view_mode")))
		return
	}

	scenario := q.Get("scenario_id")
	if scenario == "" {
		scenario = types.DefaultScenario
	}

	var at *time.Time
	if raw := q.Get("at"); raw != "" {
		ts, err := time.Parse(time.RFC3339, raw)
		if err != nil {
			writeError(w, http.StatusBadRequest, codeValidation, "at must be RFC 3339: "+err.Error())
			return
		}
		utc := ts.UTC()
		at = &utc
	}

	entity, err := s.store.GetEntity(ctx, wid, entityID)
	if err != nil {
		s.respondError(w, err)
		return
	}

	assertions, err := s.store.GetAssertionsForEntity(ctx, wid, entityID)
	if err != nil {
		s.respondError(w, err)
		return
	}
	authority, err := s.store.GetSourceAuthorityMap(ctx, wid)
	if err != nil {
		s.respondError(w, err)
		return
	}

	resp := entityResponse{
		Entity:     entity,
		ViewMode:   viewMode,
		ScenarioID: scenario,
		At:         at,
	}

	switch viewMode {
	case types.ViewResolved:
		err = s.buildResolvedView(ctx, &resp, assertions, scenario, at, authority)
	case types.ViewAllClaims:
		err = s.buildClaimsView(ctx, &resp, assertions, scenario, at, authority)
	}
	if err != nil {
		s.respondError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, resp)
}

func (s *Server) buildResolvedView(ctx context.Context, resp *entityResponse,
	assertions []*types.AssertionRecord, scenario string, at *time.Time, authority map[string]int) error {

	winners := resolve.ResolveEntityView(assertions, scenario, at, authority)

	resp.Properties = make(map[string]propertyView)
	resp.Relationships = []relationshipView{}

	for _, a := range winners {
		if a.IsProperty() {
			pv, err := s.propertyValueOf(ctx, a)
			if err != nil {
				return err
			}
			view := propertyView{Assertion: a}
			if pv != nil {
				view.Value = pv.Value
				view.ValueType = pv.ValueType
			}
			resp.Properties[a.PropertyKey] = view
			continue
		}

		target, err := s.relationshipTargetOf(ctx, a)
		if err != nil {
			return err
		}
		resp.Relationships = append(resp.Relationships, relationshipView{
			RelationshipType: a.RelationshipType,
			Target:           target,
			Assertion:        a,
		})
	}
	return nil
}

func (s *Server) buildClaimsView(ctx context.Context, resp *entityResponse,
	assertions []*types.AssertionRecord, scenario string, at *time.Time, authority map[string]int) error {

	claims := resolve.AllClaims(assertions, scenario, at, authority)

	resp.Claims = make(map[string][]claimView)
	for _, c := range claims {
		view := claimView{Assertion: c.Assertion, IsWinner: c.IsWinner}
		if c.Assertion.IsProperty() {
			pv, err := s.propertyValueOf(ctx, c.Assertion)
			if err != nil {
				return err
			}
			if pv != nil {
				view.Value = pv.Value
			}
		}
		key := c.Assertion.AssertionKey
		resp.Claims[key] = append(resp.Claims[key], view)
	}
	return nil
}

// propertyValueOf follows the assertion's outgoing edge to its
// PropertyValue vertex. A missing target is tolerated: the claim is
// still visible, just without a value.
func (s *Server) propertyValueOf(ctx context.Context, a *types.AssertionRecord) (*types.PropertyValue, error) {
	targetID, err := s.store.GetAssertedTarget(ctx, a.WorkspaceID, a.AssertionID)
	if err != nil {
		if isNotFound(err) {
			return nil, nil
		}
		return nil, err
	}
	pv, err := s.store.GetPropertyValue(ctx, a.WorkspaceID, targetID)
	if err != nil {
		if isNotFound(err) {
			return nil, nil
		}
		return nil, err
	}
	return pv, nil
}

func (s *Server) relationshipTargetOf(ctx context.Context, a *types.AssertionRecord) (*types.Entity, error) {
	targetID, err := s.store.GetAssertedTarget(ctx, a.WorkspaceID, a.AssertionID)
	if err != nil {
		if isNotFound(err) {
			return nil, nil
		}
		return nil, err
	}
	target, err := s.store.GetEntity(ctx, a.WorkspaceID, targetID)
	if err != nil {
		if isNotFound(err) {
			return nil, nil
		}
		return nil, err
	}
	return target, nil
}
