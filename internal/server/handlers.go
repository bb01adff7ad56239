package server

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"net/http"
	"os"
	"path/filepath"
	"strconv"
	"time"

	"github.com/gorilla/mux"
	"go.uber.org/zap"

	"github.com/veil-sh/veil/internal/bulk"
	"github.com/veil-sh/veil/internal/detect"
	"github.com/veil-sh/veil/internal/history"
	"github.com/veil-sh/veil/internal/preset"
	"github.com/veil-sh/veil/internal/redact"
	"github.com/veil-sh/veil/internal/report"
	"github.com/veil-sh/veil/internal/websocket"
)

// errorResponse is the JSON shape of every API error.
type errorResponse struct {
	Error   string `json:"error"`
	Details string `json:"details,omitempty"`
}

func (s *Server) writeError(w http.ResponseWriter, status int, msg string, err error) {
	resp := errorResponse{Error: msg}
	if err != nil {
		resp.Details = err.Error()
	}
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	json.NewEncoder(w).Encode(resp)
}

func (s *Server) writeJSON(w http.ResponseWriter, status int, v interface{}) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	if err := json.NewEncoder(w).Encode(v); err != nil {
		s.logger.Error("Failed to encode response", zap.Error(err))
	}
}

// readUpload pulls the "file" part from a multipart request, bounded by the
// configured upload ceiling.
func (s *Server) readUpload(r *http.Request) (string, []byte, error) {
	if err := r.ParseMultipartForm(s.config.Server.MaxUploadBytes); err != nil {
		return "", nil, fmt.Errorf("failed to parse multipart form: %w", err)
	}
	f, header, err := r.FormFile("file")
	if err != nil {
		return "", nil, fmt.Errorf("missing file part: %w", err)
	}
	defer f.Close()

	data, err := io.ReadAll(io.LimitReader(f, s.config.Server.MaxUploadBytes+1))
	if err != nil {
		return "", nil, fmt.Errorf("failed to read upload: %w", err)
	}
	if int64(len(data)) > s.config.Server.MaxUploadBytes {
		return "", nil, fmt.Errorf("upload exceeds %d bytes", s.config.Server.MaxUploadBytes)
	}
	return header.Filename, data, nil
}

// loadPreset resolves the preset named in the form, falling back to the
// configured active preset.
func (s *Server) loadPreset(r *http.Request) (*preset.Preset, error) {
	id := r.FormValue("preset")
	if id == "" {
		id = s.config.Detection.ActivePreset
	}
	return s.presets.Get(r.Context(), id)
}

// handleAnalyze runs one detection pass over an uploaded file and returns
// the detections as JSON. Nothing is persisted or rendered.
func (s *Server) handleAnalyze(w http.ResponseWriter, r *http.Request) {
	start := time.Now()

	name, data, err := s.readUpload(r)
	if err != nil {
		s.writeError(w, http.StatusBadRequest, "invalid upload", err)
		return
	}

	pr, err := s.loadPreset(r)
	if err != nil {
		s.writeError(w, http.StatusBadRequest, "unknown preset", err)
		return
	}

	result, err := s.pipeline.Analyze(r.Context(), name, data, pr)
	if err != nil {
		s.writeError(w, http.StatusUnprocessableEntity, "analysis failed", err)
		return
	}

	s.broadcastDetection(result, pr.ID, time.Since(start))
	s.writeJSON(w, http.StatusOK, result)
}

// applyOverride is the optional "actions" part of an apply upload. When it
// is absent every detection is redacted with its preset style.
type applyOverride struct {
	Actions []redact.ActionRequest `json:"actions"`
}

// handleApply analyzes an uploaded file, renders the requested redactions,
// and returns the sanitized bytes. The action report travels in headers so
// the body stays pure output.
func (s *Server) handleApply(w http.ResponseWriter, r *http.Request) {
	start := time.Now()

	name, data, err := s.readUpload(r)
	if err != nil {
		s.writeError(w, http.StatusBadRequest, "invalid upload", err)
		return
	}

	pr, err := s.loadPreset(r)
	if err != nil {
		s.writeError(w, http.StatusBadRequest, "unknown preset", err)
		return
	}

	result, err := s.pipeline.Analyze(r.Context(), name, data, pr)
	if err != nil {
		s.writeError(w, http.StatusUnprocessableEntity, "analysis failed", err)
		return
	}

	requests, err := parseActions(r.FormValue("actions"), result)
	if err != nil {
		s.writeError(w, http.StatusBadRequest, "invalid actions", err)
		return
	}

	applied, err := s.pipeline.Apply(r.Context(), name, data, result, pr, requests)
	if err != nil {
		var rerr *redact.RedactionError
		if errors.As(err, &rerr) {
			s.writeError(w, http.StatusUnprocessableEntity, "redaction failed", err)
			return
		}
		s.writeError(w, http.StatusInternalServerError, "redaction failed", err)
		return
	}

	s.broadcastDetection(result, pr.ID, time.Since(start))

	w.Header().Set("Content-Type", contentTypeFor(applied.Format))
	w.Header().Set("X-Veil-Format", applied.Format)
	w.Header().Set("X-Veil-Actions", strconv.Itoa(len(applied.Report)))
	w.WriteHeader(http.StatusOK)
	w.Write(applied.Output)
}

// parseActions decodes the optional actions override; an empty override
// means redact everything the analysis found.
func parseActions(raw string, result *detect.AnalyzeResult) ([]redact.ActionRequest, error) {
	if raw == "" {
		requests := make([]redact.ActionRequest, 0, len(result.Detections))
		for _, d := range result.Detections {
			requests = append(requests, redact.ActionRequest{DetectionID: d.ID})
		}
		return requests, nil
	}
	var override applyOverride
	if err := json.Unmarshal([]byte(raw), &override); err != nil {
		return nil, fmt.Errorf("failed to decode actions: %w", err)
	}
	return override.Actions, nil
}

func contentTypeFor(format string) string {
	switch format {
	case "pdf":
		return "application/pdf"
	case "jpeg":
		return "image/jpeg"
	default:
		return "image/png"
	}
}

// bulkRequest is the JSON body of POST /v1/bulk. Files are server-side
// paths; outputs land next to the originals unless output_dir is set.
type bulkRequest struct {
	Files          []string `json:"files"`
	Preset         string   `json:"preset,omitempty"`
	OutputDir      string   `json:"output_dir,omitempty"`
	MaxConcurrency int      `json:"max_concurrency,omitempty"`
	StopOnError    bool     `json:"stop_on_error,omitempty"`
	AnalyzeOnly    bool     `json:"analyze_only,omitempty"`
}

// bulkResponse summarizes one bulk run.
type bulkResponse struct {
	SessionID  string            `json:"session_id,omitempty"`
	Successful int               `json:"successful"`
	Failed     int               `json:"failed"`
	Total      int               `json:"total"`
	DurationMS float64           `json:"duration_ms"`
	Errors     map[string]string `json:"errors,omitempty"`
}

// handleBulk runs the analyze/apply chain over a server-side file list
// under bounded concurrency and streams per-file progress to the dashboard.
func (s *Server) handleBulk(w http.ResponseWriter, r *http.Request) {
	var req bulkRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		s.writeError(w, http.StatusBadRequest, "invalid request body", err)
		return
	}
	if len(req.Files) == 0 {
		s.writeError(w, http.StatusBadRequest, "no files listed", nil)
		return
	}

	presetID := req.Preset
	if presetID == "" {
		presetID = s.config.Detection.ActivePreset
	}
	pr, err := s.presets.Get(r.Context(), presetID)
	if err != nil {
		s.writeError(w, http.StatusBadRequest, "unknown preset", err)
		return
	}

	concurrency := req.MaxConcurrency
	if concurrency <= 0 {
		concurrency = s.config.Bulk.MaxConcurrency
	}

	session, err := s.beginSession(r, presetID, len(req.Files))
	if err != nil {
		s.writeError(w, http.StatusInternalServerError, "failed to open session", err)
		return
	}

	runner := s.newBulkRunner(pr, req.OutputDir, req.AnalyzeOnly)
	result := runner.orchestrator().Run(r.Context(), req.Files, bulk.Options{
		MaxConcurrency: concurrency,
		StopOnError:    req.StopOnError,
		OnFileComplete: func(file string, res *bulk.FileResult, err error) {
			runner.record(sessionID(session), presetID, file, res, err)
			s.broadcastBulkProgress(sessionID(session), file, runner, len(req.Files), err)
		},
	})

	s.finishSession(r, session, result)

	resp := bulkResponse{
		SessionID:  sessionID(session),
		Successful: result.Successful,
		Failed:     result.Failed,
		Total:      result.Total,
		DurationMS: float64(result.Duration.Milliseconds()),
	}
	for i, runErr := range result.Errors {
		if runErr != nil {
			if resp.Errors == nil {
				resp.Errors = make(map[string]string)
			}
			resp.Errors[req.Files[i]] = runErr.Error()
		}
	}
	s.writeJSON(w, http.StatusOK, resp)
}

// handleListPresets returns every stored preset.
func (s *Server) handleListPresets(w http.ResponseWriter, r *http.Request) {
	presets, err := s.presets.List(r.Context())
	if err != nil {
		s.writeError(w, http.StatusInternalServerError, "failed to list presets", err)
		return
	}
	s.writeJSON(w, http.StatusOK, presets)
}

// handleGetPreset returns one preset by id.
func (s *Server) handleGetPreset(w http.ResponseWriter, r *http.Request) {
	id := mux.Vars(r)["id"]
	p, err := s.presets.Get(r.Context(), id)
	if err != nil {
		if errors.Is(err, preset.ErrNotFound) {
			s.writeError(w, http.StatusNotFound, "preset not found", nil)
			return
		}
		s.writeError(w, http.StatusInternalServerError, "failed to load preset", err)
		return
	}
	s.writeJSON(w, http.StatusOK, p)
}

// handleCreatePreset imports a preset document and stores it.
func (s *Server) handleCreatePreset(w http.ResponseWriter, r *http.Request) {
	body, err := io.ReadAll(io.LimitReader(r.Body, 1<<20))
	if err != nil {
		s.writeError(w, http.StatusBadRequest, "failed to read body", err)
		return
	}

	p, err := preset.Import(body)
	if err != nil {
		s.writeError(w, http.StatusBadRequest, "invalid preset document", err)
		return
	}

	if err := s.presets.Save(r.Context(), p); err != nil {
		if errors.Is(err, preset.ErrBuiltIn) {
			s.writeError(w, http.StatusConflict, "built-in presets cannot be replaced", nil)
			return
		}
		s.writeError(w, http.StatusInternalServerError, "failed to save preset", err)
		return
	}

	s.logger.Info("Preset created",
		zap.String("preset_id", p.ID),
		zap.String("request_id", requestIDFromContext(r.Context())),
	)
	s.writeJSON(w, http.StatusCreated, p)
}

// handleUpdatePreset replaces a stored preset.
func (s *Server) handleUpdatePreset(w http.ResponseWriter, r *http.Request) {
	id := mux.Vars(r)["id"]

	body, err := io.ReadAll(io.LimitReader(r.Body, 1<<20))
	if err != nil {
		s.writeError(w, http.StatusBadRequest, "failed to read body", err)
		return
	}

	p, err := preset.Import(body)
	if err != nil {
		s.writeError(w, http.StatusBadRequest, "invalid preset document", err)
		return
	}
	if p.ID != id {
		s.writeError(w, http.StatusBadRequest, "preset id does not match path", nil)
		return
	}

	if err := s.presets.Save(r.Context(), p); err != nil {
		if errors.Is(err, preset.ErrBuiltIn) {
			s.writeError(w, http.StatusConflict, "built-in presets cannot be replaced", nil)
			return
		}
		s.writeError(w, http.StatusInternalServerError, "failed to save preset", err)
		return
	}
	s.writeJSON(w, http.StatusOK, p)
}

// handleDeletePreset removes a stored preset.
func (s *Server) handleDeletePreset(w http.ResponseWriter, r *http.Request) {
	id := mux.Vars(r)["id"]
	if err := s.presets.Delete(r.Context(), id); err != nil {
		switch {
		case errors.Is(err, preset.ErrNotFound):
			s.writeError(w, http.StatusNotFound, "preset not found", nil)
		case errors.Is(err, preset.ErrBuiltIn):
			s.writeError(w, http.StatusConflict, "built-in presets cannot be deleted", nil)
		default:
			s.writeError(w, http.StatusInternalServerError, "failed to delete preset", err)
		}
		return
	}
	w.WriteHeader(http.StatusNoContent)
}

// handleListSessions returns recent history sessions.
func (s *Server) handleListSessions(w http.ResponseWriter, r *http.Request) {
	if s.history == nil {
		s.writeError(w, http.StatusServiceUnavailable, "history is disabled", nil)
		return
	}
	limit := 50
	if v := r.URL.Query().Get("limit"); v != "" {
		if n, err := strconv.Atoi(v); err == nil && n > 0 {
			limit = n
		}
	}
	sessions, err := s.history.ListSessions(r.Context(), limit)
	if err != nil {
		s.writeError(w, http.StatusInternalServerError, "failed to list sessions", err)
		return
	}
	s.writeJSON(w, http.StatusOK, sessions)
}

// handleListRecords returns the per-file records of one session.
func (s *Server) handleListRecords(w http.ResponseWriter, r *http.Request) {
	if s.history == nil {
		s.writeError(w, http.StatusServiceUnavailable, "history is disabled", nil)
		return
	}
	records, err := s.history.ListRecords(r.Context(), mux.Vars(r)["id"])
	if err != nil {
		s.writeError(w, http.StatusInternalServerError, "failed to list records", err)
		return
	}
	s.writeJSON(w, http.StatusOK, records)
}

// handleStats returns aggregate history statistics.
func (s *Server) handleStats(w http.ResponseWriter, r *http.Request) {
	if s.history == nil {
		s.writeError(w, http.StatusServiceUnavailable, "history is disabled", nil)
		return
	}
	stats, err := s.history.GetStats(r.Context())
	if err != nil {
		s.writeError(w, http.StatusInternalServerError, "failed to compute stats", err)
		return
	}
	s.writeJSON(w, http.StatusOK, stats)
}

// broadcastDetection publishes a per-kind summary of one analysis pass.
// Detection previews and raw text never reach the socket.
func (s *Server) broadcastDetection(result *detect.AnalyzeResult, presetID string, elapsed time.Duration) {
	s.wsHub.BroadcastEvent(websocket.Event{
		Type:      websocket.EventTypeDetection,
		Timestamp: time.Now(),
		Data: websocket.DetectionEvent{
			File:            filepath.Base(result.File),
			Pages:           result.PageCount,
			TotalDetections: len(result.Detections),
			ByKind:          result.KindCounts(),
			PresetID:        presetID,
			ProcessingMS:    float64(elapsed.Nanoseconds()) / 1e6,
		},
	})
}

func (s *Server) broadcastBulkProgress(session, file string, runner *bulkRunner, total int, runErr error) {
	event := websocket.BulkProgressEvent{
		SessionID: session,
		File:      filepath.Base(file),
		Completed: runner.completed(),
		Total:     total,
		Failed:    runErr != nil,
	}
	if runErr != nil {
		event.Error = runErr.Error()
	}
	s.wsHub.BroadcastEvent(websocket.Event{
		Type:      websocket.EventTypeBulkProgress,
		Timestamp: time.Now(),
		Data:      event,
		SessionID: session,
	})
}

// bulkRunner adapts the pipeline to the orchestrator's per-file functions
// for server-side bulk runs.
type bulkRunner struct {
	s           *Server
	preset      *preset.Preset
	outputDir   string
	analyzeOnly bool
	done        int
}

func (s *Server) newBulkRunner(pr *preset.Preset, outputDir string, analyzeOnly bool) *bulkRunner {
	return &bulkRunner{s: s, preset: pr, outputDir: outputDir, analyzeOnly: analyzeOnly}
}

func (r *bulkRunner) orchestrator() *bulk.Orchestrator {
	var apply bulk.ApplyFunc
	if !r.analyzeOnly {
		apply = r.applyFile
	}
	return bulk.New(r.analyzeFile, apply, r.s.logger.Logger)
}

func (r *bulkRunner) analyzeFile(ctx context.Context, file string) (*detect.AnalyzeResult, error) {
	data, err := os.ReadFile(file)
	if err != nil {
		return nil, &detect.AnalysisError{File: file, Err: err}
	}
	return r.s.pipeline.Analyze(ctx, file, data, r.preset)
}

func (r *bulkRunner) applyFile(ctx context.Context, file string, analysis *detect.AnalyzeResult) (*redact.ApplyResult, error) {
	data, err := os.ReadFile(file)
	if err != nil {
		return nil, &redact.RedactionError{Reason: "failed to reread input", Err: err}
	}

	requests := make([]redact.ActionRequest, 0, len(analysis.Detections))
	for _, d := range analysis.Detections {
		requests = append(requests, redact.ActionRequest{DetectionID: d.ID})
	}

	applied, err := r.s.pipeline.Apply(ctx, file, data, analysis, r.preset, requests)
	if err != nil {
		return nil, err
	}

	if err := writeOutput(file, r.outputDir, applied); err != nil {
		return nil, err
	}
	return applied, nil
}

// record persists one per-file history record; callbacks run sequentially
// so done needs no lock.
func (r *bulkRunner) record(session, presetID, file string, res *bulk.FileResult, runErr error) {
	r.done++
	if r.s.history == nil || session == "" {
		return
	}

	var size int64
	if info, err := os.Stat(file); err == nil {
		size = info.Size()
	}
	rec := report.BuildRecord(session, presetID, file, size, res, runErr)
	if err := r.s.history.InsertRecords(context.Background(), []*history.Record{rec}); err != nil {
		r.s.logger.Warn("Failed to persist history record",
			zap.String("file", file),
			zap.Error(err),
		)
	}
}

func (r *bulkRunner) completed() int { return r.done }

// writeOutput stores sanitized bytes next to the original or under
// outputDir, suffixed so originals are never clobbered.
func writeOutput(file, outputDir string, applied *redact.ApplyResult) error {
	dir := outputDir
	if dir == "" {
		dir = filepath.Dir(file)
	} else if err := os.MkdirAll(dir, 0o755); err != nil {
		return &redact.RedactionError{Reason: "failed to create output dir", Err: err}
	}

	base := filepath.Base(file)
	ext := filepath.Ext(base)
	out := filepath.Join(dir, base[:len(base)-len(ext)]+".redacted."+applied.Format)
	if err := os.WriteFile(out, applied.Output, 0o644); err != nil {
		return &redact.RedactionError{Reason: "failed to write output", Err: err}
	}
	return nil
}

func (s *Server) beginSession(r *http.Request, presetID string, total int) (*history.Session, error) {
	if s.history == nil {
		return nil, nil
	}
	session, err := s.history.BeginSession(r.Context(), presetID)
	if err != nil {
		return nil, err
	}
	session.TotalFiles = total
	return session, nil
}

func (s *Server) finishSession(r *http.Request, session *history.Session, result *bulk.Result) {
	if s.history == nil || session == nil {
		return
	}
	session.Successful = result.Successful
	session.Failed = result.Failed
	if err := s.history.FinishSession(r.Context(), session); err != nil {
		s.logger.Warn("Failed to finish history session",
			zap.String("session_id", session.ID),
			zap.Error(err),
		)
	}
}

func sessionID(s *history.Session) string {
	if s == nil {
		return ""
	}
	return s.ID
}
