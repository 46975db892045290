package server

import (
	"encoding/json"
	"fmt"
	"net/http"

	"github.com/weftdb/weft/internal/schema"
	"github.com/weftdb/weft/internal/types"
)

type createWorkspaceRequest struct {
	WorkspaceID string `json:"workspace_id"`
	SchemaYAML  string `json:"schema_yaml,omitempty"`
}

// handleCreateWorkspace validates the workspace id and, when a schema
// document is supplied, registers it with the schema registry.
func (s *Server) handleCreateWorkspace(w http.ResponseWriter, r *http.Request) {
	var req createWorkspaceRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		writeError(w, http.StatusBadRequest, codeValidation, "malformed JSON body: "+err.Error())
		return
	}

	if err := types.ValidateWorkspaceID(req.WorkspaceID); err != nil {
		s.respondError(w, err)
		return
	}

	if req.SchemaYAML != "" {
		sch, err := schema.Parse([]byte(req.SchemaYAML))
		if err != nil {
			s.respondError(w, err)
			return
		}
		if sch.Workspace != req.WorkspaceID {
			writeError(w, http.StatusBadRequest, codeValidation,
				fmt.Sprintf("schema declares workspace %q, request is for %q", sch.Workspace, req.WorkspaceID))
			return
		}
		if err := s.schemas.Register(sch); err != nil {
			s.respondError(w, err)
			return
		}
	}

	writeJSON(w, http.StatusCreated, map[string]any{"workspace_id": req.WorkspaceID})
}

func (s *Server) handleListWorkspaces(w http.ResponseWriter, r *http.Request) {
	writeJSON(w, http.StatusOK, map[string]any{"workspaces": s.schemas.List()})
}

func (s *Server) handleListSpecs(w http.ResponseWriter, r *http.Request) {
	names, err := s.specs.List()
	if err != nil {
		s.respondError(w, err)
		return
	}
	if names == nil {
		names = []string{}
	}
	writeJSON(w, http.StatusOK, map[string]any{"specs": names})
}
