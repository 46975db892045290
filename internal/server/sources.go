package server

import (
	"encoding/json"
	"net/http"

	"github.com/go-chi/chi/v5"

	"github.com/weftdb/weft/internal/types"
)

type putSourceRequest struct {
	SourceType       types.SourceType `json:"source_type"`
	AuthorityRank    int              `json:"authority_rank"`
	AuthorityDomains []string         `json:"authority_domains,omitempty"`
	UpdateFrequency  string           `json:"update_frequency,omitempty"`
	Description      string           `json:"description,omitempty"`
}

// handlePutSource registers or updates a named source. Re-registering
// keeps the source_id stable so existing assertions stay attributed.
func (s *Server) handlePutSource(w http.ResponseWriter, r *http.Request) {
	wid := chi.URLParam(r, "workspaceID")
	name := chi.URLParam(r, "sourceName")

	if err := types.ValidateWorkspaceID(wid); err != nil {
		s.respondError(w, err)
		return
	}

	var req putSourceRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		writeError(w, http.StatusBadRequest, codeValidation, "malformed JSON body: "+err.Error())
		return
	}
	if req.SourceType == "" {
		req.SourceType = types.SourceExcel
	}
	if !req.SourceType.IsValid() {
		writeError(w, http.StatusBadRequest, codeValidation, "invalid source_type: "+string(req.SourceType))
		return
	}

	src := &types.Source{
		WorkspaceID:      wid,
		SourceName:       name,
		SourceType:       req.SourceType,
		AuthorityRank:    req.AuthorityRank,
		AuthorityDomains: req.AuthorityDomains,
		UpdateFrequency:  req.UpdateFrequency,
		Description:      req.Description,
	}

	id, err := s.store.UpsertSource(r.Context(), src)
	if err != nil {
		s.respondError(w, err)
		return
	}
	src.SourceID = id
	writeJSON(w, http.StatusOK, src)
}

func (s *Server) handleListSources(w http.ResponseWriter, r *http.Request) {
	wid := chi.URLParam(r, "workspaceID")
	sources, err := s.store.ListSources(r.Context(), wid)
	if err != nil {
		s.respondError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, map[string]any{"sources": sources})
}
