package web

import (
	"encoding/json"
	"errors"
	"fmt"
	"net/http"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/go-playground/validator/v10"

	"github.com/JonMunkholm/featuresync/internal/core"
	"github.com/JonMunkholm/featuresync/internal/logging"
	"github.com/JonMunkholm/featuresync/internal/web/templates"
)

// exportFileName is the attachment name of every export.
const exportFileName = "feature_table_data.csv"

// sseKeepAlive is the interval between comment lines on idle event streams.
const sseKeepAlive = 25 * time.Second

var validate = validator.New()

// DatasetInfo is the API view of a registered dataset.
type DatasetInfo struct {
	Key             string   `json:"key"`
	Label           string   `json:"label"`
	IdentifierField string   `json:"identifier_field"`
	EditableFields  []string `json:"editable_fields"`
	Fields          []string `json:"fields"`
	Geometry        bool     `json:"geometry"`
}

// deleteRequest is the body of a delete call.
type deleteRequest struct {
	IDs []string `json:"ids" validate:"required,min=1,max=1000,dive,required"`
}

// handleHealth reports liveness and, if configured, store reachability.
func (s *Server) handleHealth(w http.ResponseWriter, r *http.Request) {
	if s.health != nil {
		if err := s.health.Ping(r.Context()); err != nil {
			logging.FromContext(r.Context()).Warn("health check failed", "error", err)
			writeError(w, http.StatusServiceUnavailable, "unavailable")
			return
		}
	}
	writeJSON(w, map[string]string{"status": "ok"})
}

// handleStatus returns run limiter usage.
func (s *Server) handleStatus(w http.ResponseWriter, r *http.Request) {
	writeJSON(w, map[string]any{
		"runs":        s.service.LimiterStatus(),
		"subscribers": s.events.Subscribers(),
	})
}

// handleListDatasets returns every registered dataset.
func (s *Server) handleListDatasets(w http.ResponseWriter, r *http.Request) {
	defs := s.service.Datasets()
	out := make([]DatasetInfo, 0, len(defs))
	for _, def := range defs {
		out = append(out, DatasetInfo{
			Key:             def.Key,
			Label:           def.Label,
			IdentifierField: def.IdentifierField,
			EditableFields:  def.EditableFields,
			Fields:          def.FieldNames(),
			Geometry:        def.Geometry.Enabled(),
		})
	}
	writeJSON(w, out)
}

// handleReconcile runs a reconciliation against the uploaded file.
func (s *Server) handleReconcile(w http.ResponseWriter, r *http.Request) {
	s.reconcile(w, r, false)
}

// handlePreview diffs the uploaded file without submitting anything.
func (s *Server) handlePreview(w http.ResponseWriter, r *http.Request) {
	s.reconcile(w, r, true)
}

func (s *Server) reconcile(w http.ResponseWriter, r *http.Request, forceDryRun bool) {
	key := chi.URLParam(r, "dataset")
	if _, err := core.Lookup(key); err != nil {
		s.respondError(w, r, err)
		return
	}

	maxSize := s.cfg.Reconcile.MaxFileSize
	r.Body = http.MaxBytesReader(w, r.Body, maxSize)

	if err := r.ParseMultipartForm(maxSize); err != nil {
		var maxBytes *http.MaxBytesError
		if errors.As(err, &maxBytes) {
			s.respondError(w, r, err)
			return
		}
		s.respondError(w, r, fmt.Errorf("%w: %v", errInvalidForm, err))
		return
	}
	defer r.MultipartForm.RemoveAll()

	file, header, err := r.FormFile("file")
	if err != nil {
		s.respondError(w, r, errNoFile)
		return
	}
	defer file.Close()

	opts := core.RunOptions{DryRun: forceDryRun || parseBool(r.FormValue("dry_run"))}

	ctx := WithRequestMetadata(r.Context(), r)
	report, err := s.service.Reconcile(ctx, key, header.Filename, file, opts)
	if err != nil {
		runID := ""
		if report != nil {
			runID = report.RunID
		}
		s.respondErrorStatus(w, r, err, statusFor(err), runID)
		return
	}

	w.Header().Set("X-Run-ID", report.RunID)
	if wantsHTML(r) {
		w.Header().Set("Content-Type", "text/html; charset=utf-8")
		templates.RunSummary(report.Dataset, report.Matched, report.Submitted,
			len(report.Applied), len(report.Failed), report.DryRun).Render(r.Context(), w)
		return
	}
	writeJSON(w, report)
}

// handleExport streams the dataset as CSV. Query filters narrow the export.
func (s *Server) handleExport(w http.ResponseWriter, r *http.Request) {
	key := chi.URLParam(r, "dataset")
	def, err := core.Lookup(key)
	if err != nil {
		s.respondError(w, r, err)
		return
	}

	out := &csvDownload{w: w, filename: exportFileName}
	n, err := s.service.Export(r.Context(), key, parseFilters(r, def), out)
	if err != nil {
		if out.started {
			// Headers are gone; the client sees a truncated file.
			logging.FromContext(r.Context()).Error("export interrupted", "dataset", key, "error", err)
			return
		}
		s.respondError(w, r, err)
		return
	}
	if !out.started {
		// Nothing matched, so WriteCSV wrote nothing; this empty write still
		// sends the attachment headers for an empty download.
		out.Write(nil)
	}
	logging.FromContext(r.Context()).Debug("export sent", "dataset", key, "records", n)
}

// handleDelete removes records by identifier.
func (s *Server) handleDelete(w http.ResponseWriter, r *http.Request) {
	key := chi.URLParam(r, "dataset")

	var req deleteRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		s.respondError(w, r, fmt.Errorf("%w: %v", errInvalidForm, err))
		return
	}
	if err := validate.Struct(req); err != nil {
		s.respondError(w, r, fmt.Errorf("%w: %v", errInvalidForm, err))
		return
	}

	ctx := WithRequestMetadata(r.Context(), r)
	report, err := s.service.DeleteRecords(ctx, key, req.IDs)
	if err != nil {
		s.respondError(w, r, err)
		return
	}
	writeJSON(w, report)
}

// handleListRuns returns recent run history for a dataset.
func (s *Server) handleListRuns(w http.ResponseWriter, r *http.Request) {
	key := chi.URLParam(r, "dataset")
	runs, err := s.service.ListRuns(r.Context(), key, parseIntParam(r, "limit", 0))
	if err != nil {
		s.respondError(w, r, err)
		return
	}
	writeJSON(w, runs)
}

// handleEvents streams dataset refresh notifications via Server-Sent Events.
// An optional dataset query parameter restricts the stream to one dataset.
func (s *Server) handleEvents(w http.ResponseWriter, r *http.Request) {
	// ResponseController sees through the logging middleware's wrapper.
	flusher := http.NewResponseController(w)
	only := r.URL.Query().Get("dataset")

	events, unsubscribe := s.events.Subscribe()
	defer unsubscribe()

	w.Header().Set("Content-Type", "text/event-stream")
	w.Header().Set("Cache-Control", "no-cache")
	w.Header().Set("Connection", "keep-alive")
	w.Header().Set("X-Accel-Buffering", "no") // Disable nginx buffering
	w.WriteHeader(http.StatusOK)
	fmt.Fprint(w, ": connected\n\n")
	if err := flusher.Flush(); err != nil {
		logging.FromContext(r.Context()).Error("event stream not supported", "error", err)
		return
	}

	keepAlive := time.NewTicker(sseKeepAlive)
	defer keepAlive.Stop()

	for {
		select {
		case e, ok := <-events:
			if !ok {
				return
			}
			if only != "" && e.Dataset != only {
				continue
			}
			data, _ := json.Marshal(e)
			fmt.Fprintf(w, "event: %s\ndata: %s\n\n", e.Type, data)
			flusher.Flush()

		case <-keepAlive.C:
			fmt.Fprint(w, ": ping\n\n")
			flusher.Flush()

		case <-r.Context().Done():
			return
		}
	}
}
