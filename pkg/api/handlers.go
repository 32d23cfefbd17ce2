package api

import (
	"encoding/json"
	"errors"
	"net/http"
	"strconv"

	"github.com/go-chi/chi/v5"

	"github.com/splidsboel/assignment3/pkg/indexstore"
)

type errorResponse struct {
	Error string `json:"error"`
}

// writeJSON serializes v as JSON with the given status code.
func writeJSON(w http.ResponseWriter, status int, v any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)

	if err := json.NewEncoder(w).Encode(v); err != nil {
		http.Error(w, "encoding response", http.StatusInternalServerError)
	}
}

// runResponse is an indexed run with its labels decoded.
type runResponse struct {
	indexstore.Run
	Labels map[string]string `json:"labels,omitempty"`
}

func newRunResponse(run *indexstore.Run) runResponse {
	resp := runResponse{Run: *run}

	if run.LabelsJSON != "" {
		_ = json.Unmarshal([]byte(run.LabelsJSON), &resp.Labels)
	}

	return resp
}

func (s *server) handleHealth(w http.ResponseWriter, _ *http.Request) {
	writeJSON(w, http.StatusOK, map[string]string{"status": "ok"})
}

// handleListRuns returns indexed runs, newest first. Supports the source,
// status and limit query parameters.
func (s *server) handleListRuns(w http.ResponseWriter, r *http.Request) {
	q := r.URL.Query()
	filter := indexstore.RunFilter{
		Source: q.Get("source"),
		Status: q.Get("status"),
	}

	if raw := q.Get("limit"); raw != "" {
		limit, err := strconv.Atoi(raw)
		if err != nil || limit < 0 {
			writeJSON(w, http.StatusBadRequest, errorResponse{"limit must be a non-negative integer"})

			return
		}

		filter.Limit = limit
	}

	runs, err := s.indexStore.ListRuns(r.Context(), filter)
	if err != nil {
		writeJSON(w, http.StatusInternalServerError, errorResponse{"listing runs: " + err.Error()})

		return
	}

	entries := make([]runResponse, 0, len(runs))
	for i := range runs {
		entries = append(entries, newRunResponse(&runs[i]))
	}

	writeJSON(w, http.StatusOK, map[string]any{"runs": entries})
}

func (s *server) handleGetRun(w http.ResponseWriter, r *http.Request) {
	run, ok := s.lookupRun(w, r)
	if !ok {
		return
	}

	summaries, err := s.indexStore.ListSummaries(r.Context(), run.Source, run.RunID)
	if err != nil {
		writeJSON(w, http.StatusInternalServerError, errorResponse{"listing summaries: " + err.Error()})

		return
	}

	writeJSON(w, http.StatusOK, map[string]any{
		"run":       newRunResponse(run),
		"summaries": nonNil(summaries),
	})
}

func (s *server) handleRunSummaries(w http.ResponseWriter, r *http.Request) {
	run, ok := s.lookupRun(w, r)
	if !ok {
		return
	}

	summaries, err := s.indexStore.ListSummaries(r.Context(), run.Source, run.RunID)
	if err != nil {
		writeJSON(w, http.StatusInternalServerError, errorResponse{"listing summaries: " + err.Error()})

		return
	}

	writeJSON(w, http.StatusOK, map[string]any{"summaries": nonNil(summaries)})
}

// handleAlgorithmSummaries returns one algorithm's statistics across runs.
func (s *server) handleAlgorithmSummaries(w http.ResponseWriter, r *http.Request) {
	label := chi.URLParam(r, "label")

	summaries, err := s.indexStore.ListSummariesByLabel(r.Context(), label)
	if err != nil {
		writeJSON(w, http.StatusInternalServerError, errorResponse{"listing summaries: " + err.Error()})

		return
	}

	writeJSON(w, http.StatusOK, map[string]any{"label": label, "summaries": nonNil(summaries)})
}

// lookupRun resolves the runID URL parameter, writing the error response
// itself when the run cannot be returned.
func (s *server) lookupRun(w http.ResponseWriter, r *http.Request) (*indexstore.Run, bool) {
	runID := chi.URLParam(r, "runID")

	run, err := s.indexStore.GetRun(r.Context(), r.URL.Query().Get("source"), runID)
	if err != nil {
		if errors.Is(err, indexstore.ErrNotFound) {
			writeJSON(w, http.StatusNotFound, errorResponse{"run not found"})
		} else {
			writeJSON(w, http.StatusInternalServerError, errorResponse{"getting run: " + err.Error()})
		}

		return nil, false
	}

	return run, true
}

// handleFileRequest serves a file below the results directory, falling
// back to a presigned S3 URL when the file is not present locally.
func (s *server) handleFileRequest(w http.ResponseWriter, r *http.Request) {
	filePath := chi.URLParam(r, "*")
	if filePath == "" {
		writeJSON(w, http.StatusBadRequest, errorResponse{"file path is required"})

		return
	}

	if !isAllowedPath(filePath) {
		writeJSON(w, http.StatusBadRequest, errorResponse{"path not allowed"})

		return
	}

	if s.localServer != nil {
		err := s.localServer.ServeFile(w, r, filePath)
		if err == nil {
			return
		}

		s.log.WithError(err).WithField("path", filePath).Debug("File not served locally")
	}

	if s.presigner == nil {
		writeJSON(w, http.StatusNotFound, errorResponse{"file not found"})

		return
	}

	url, err := s.presigner.GeneratePresignedURL(r.Context(), filePath)
	if err != nil {
		s.log.WithError(err).WithField("path", filePath).Warn("Failed to generate presigned URL")
		writeJSON(w, http.StatusNotFound, errorResponse{"file not found"})

		return
	}

	// redirect=true lets plain links and curl -L download the object.
	if r.URL.Query().Get("redirect") == "true" {
		http.Redirect(w, r, url, http.StatusFound)

		return
	}

	writeJSON(w, http.StatusOK, map[string]string{"url": url})
}

// nonNil keeps empty results encoded as [] rather than null.
func nonNil(summaries []indexstore.AlgorithmSummary) []indexstore.AlgorithmSummary {
	if summaries == nil {
		return []indexstore.AlgorithmSummary{}
	}

	return summaries
}
