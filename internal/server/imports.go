package server

import (
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"os"
	"path/filepath"
	"strconv"
	"strings"

	"github.com/go-chi/chi/v5"

	"github.com/weftdb/weft/internal/engine"
	"github.com/weftdb/weft/internal/types"
)

const maxUploadBytes = 64 << 20

type importResponse struct {
	ImportRunID string `json:"import_run_id"`
	Status      string `json:"status"`
	Message     string `json:"message"`
}

// handleCreateImport accepts a workbook upload and runs the ingestion
// engine synchronously under the workspace lock. Engine-level failures
// travel inside the 200 response; only a run that could not start
// produces an error status.
func (s *Server) handleCreateImport(w http.ResponseWriter, r *http.Request) {
	wid := chi.URLParam(r, "workspaceID")
	if err := types.ValidateWorkspaceID(wid); err != nil {
		s.respondError(w, err)
		return
	}

	if err := r.ParseMultipartForm(maxUploadBytes); err != nil {
		writeError(w, http.StatusBadRequest, codeValidation, "malformed multipart request: "+err.Error())
		return
	}

	specName := r.FormValue("spec_name")
	if specName == "" {
		writeError(w, http.StatusBadRequest, codeValidation, "spec_name is required")
		return
	}

	file, header, err := r.FormFile("file")
	if err != nil {
		writeError(w, http.StatusBadRequest, codeValidation, "file field is required")
		return
	}
	defer file.Close()

	filename := filepath.Base(header.Filename)
	ext := strings.ToLower(filepath.Ext(filename))
	if ext != ".xlsx" && ext != ".xls" {
		writeError(w, http.StatusBadRequest, codeValidation,
			fmt.Sprintf("unsupported file extension %q (want .xlsx or .xls)", ext))
		return
	}

	spec, err := s.specs.Get(specName)
	if err != nil {
		s.respondError(w, err)
		return
	}

	path, err := s.saveUpload(wid, filename, file)
	if err != nil {
		s.respondError(w, err)
		return
	}

	ctx := r.Context()
	lease, err := s.locker.Acquire(ctx, wid)
	if err != nil {
		s.respondError(w, err)
		return
	}
	defer lease.Release(context.WithoutCancel(ctx))

	res, err := s.engine.Run(ctx, engine.Options{
		WorkspaceID: wid,
		SpecName:    specName,
		Spec:        spec,
		SourceFile:  path,
		Actor:       r.FormValue("actor"),
		SourceID:    r.FormValue("source_id"),
	})
	if err != nil {
		// Run record insert failed: nothing started.
		s.respondError(w, err)
		return
	}

	writeJSON(w, http.StatusOK, importResponse{
		ImportRunID: res.ImportRunID,
		Status:      string(res.Status),
		Message:     importMessage(res),
	})
}

func importMessage(res *engine.Result) string {
	if res.Status == types.RunFailed {
		return "import failed: " + res.ErrorMessage
	}
	st := res.Stats
	msg := fmt.Sprintf("%d created, %d modified, %d closed, %d unchanged",
		st.AssertionsCreated, st.AssertionsModified, st.AssertionsClosed, st.AssertionsUnchanged)
	if len(res.Errors) > 0 {
		msg += fmt.Sprintf(" (%d row errors)", len(res.Errors))
	}
	return msg
}

// saveUpload persists the raw workbook under data/raw/{workspace}.
func (s *Server) saveUpload(wid, filename string, src io.Reader) (string, error) {
	dir := filepath.Join(s.dataDir, "raw", wid)
	if err := os.MkdirAll(dir, 0o755); err != nil {
		return "", fmt.Errorf("creating upload dir: %w", err)
	}
	path := filepath.Join(dir, filename)
	dst, err := os.Create(path)
	if err != nil {
		return "", fmt.Errorf("saving upload: %w", err)
	}
	defer dst.Close()
	if _, err := io.Copy(dst, io.LimitReader(src, maxUploadBytes)); err != nil {
		return "", fmt.Errorf("saving upload: %w", err)
	}
	return path, nil
}

func (s *Server) handleListImports(w http.ResponseWriter, r *http.Request) {
	wid := chi.URLParam(r, "workspaceID")
	limit := queryInt(r, "limit", 50)

	runs, err := s.store.ListImportRuns(r.Context(), wid, limit)
	if err != nil {
		s.respondError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, map[string]any{"import_runs": runs})
}

type importRunDetail struct {
	*types.ImportRun
	ParsedStats *types.ImportStats `json:"parsed_stats,omitempty"`
}

func (s *Server) handleGetImport(w http.ResponseWriter, r *http.Request) {
	wid := chi.URLParam(r, "workspaceID")
	runID := chi.URLParam(r, "importRunID")

	run, err := s.store.GetImportRun(r.Context(), wid, runID)
	if err != nil {
		s.respondError(w, err)
		return
	}

	detail := importRunDetail{ImportRun: run}
	if run.Stats != "" {
		var st types.ImportStats
		if err := json.Unmarshal([]byte(run.Stats), &st); err == nil {
			detail.ParsedStats = &st
		}
	}
	writeJSON(w, http.StatusOK, detail)
}

type importDiffResponse struct {
	ChangeEvent       *types.ChangeEvent       `json:"change_event"`
	Stats             *types.ChangeEventStats  `json:"stats,omitempty"`
	CreatedAssertions []*types.AssertionRecord `json:"created_assertions"`
	ClosedAssertions  []*types.AssertionRecord `json:"closed_assertions"`
}

// handleImportDiff replays the change event of one run: the event's
// counters plus the full created/closed assertion payloads.
func (s *Server) handleImportDiff(w http.ResponseWriter, r *http.Request) {
	ctx := r.Context()
	wid := chi.URLParam(r, "workspaceID")
	runID := chi.URLParam(r, "importRunID")

	// 404 for an unknown run, empty diff for a run with no changes.
	if _, err := s.store.GetImportRun(ctx, wid, runID); err != nil {
		s.respondError(w, err)
		return
	}

	ce, err := s.store.GetChangeEventByImportRun(ctx, runID)
	if err != nil {
		if isNotFound(err) {
			writeJSON(w, http.StatusOK, importDiffResponse{
				CreatedAssertions: []*types.AssertionRecord{},
				ClosedAssertions:  []*types.AssertionRecord{},
			})
			return
		}
		s.respondError(w, err)
		return
	}

	createdIDs, closedIDs, err := s.store.ListChangeEventAssertions(ctx, wid, ce.ChangeEventID)
	if err != nil {
		s.respondError(w, err)
		return
	}

	resp := importDiffResponse{ChangeEvent: ce}
	if ce.Stats != "" {
		var st types.ChangeEventStats
		if err := json.Unmarshal([]byte(ce.Stats), &st); err == nil {
			resp.Stats = &st
		}
	}
	if resp.CreatedAssertions, err = s.fetchAssertions(ctx, wid, createdIDs); err != nil {
		s.respondError(w, err)
		return
	}
	if resp.ClosedAssertions, err = s.fetchAssertions(ctx, wid, closedIDs); err != nil {
		s.respondError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, resp)
}

func (s *Server) fetchAssertions(ctx context.Context, wid string, ids []string) ([]*types.AssertionRecord, error) {
	out := make([]*types.AssertionRecord, 0, len(ids))
	for _, id := range ids {
		a, err := s.store.GetAssertion(ctx, wid, id)
		if err != nil {
			return nil, err
		}
		out = append(out, a)
	}
	return out, nil
}

func queryInt(r *http.Request, name string, def int) int {
	raw := r.URL.Query().Get(name)
	if raw == "" {
		return def
	}
	n, err := strconv.Atoi(raw)
	if err != nil || n <= 0 {
		return def
	}
	return n
}
