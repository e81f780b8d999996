// Package api exposes run history read-only over HTTP.
package api

import (
	"context"
	"encoding/json"
	"net/http"
	"strconv"

	"github.com/go-chi/chi/v5"
	"github.com/go-chi/chi/v5/middleware"
	"github.com/go-chi/cors"
	"github.com/rotisserie/eris"
	"go.uber.org/zap"

	"github.com/sells-group/supervision-reconciler/internal/model"
	"github.com/sells-group/supervision-reconciler/internal/store"
)

// Reader is the part of store.Store the API needs.
type Reader interface {
	GetRun(ctx context.Context, runID string) (*model.Run, error)
	ListRuns(ctx context.Context, filter store.RunFilter) ([]model.Run, error)
	ListAssignments(ctx context.Context, runID string) ([]model.Assignment, error)
	ListReview(ctx context.Context, runID string) ([]model.Assignment, error)
	ListCompliance(ctx context.Context, runID string, status model.ComplianceStatus) ([]model.ComplianceRecord, error)
}

type handler struct {
	store Reader
	log   *zap.Logger
}

// NewRouter returns the HTTP handler for the read API.
func NewRouter(r Reader, allowedOrigins []string) http.Handler {
	h := &handler{store: r, log: zap.L().With(zap.String("component", "api"))}

	mux := chi.NewRouter()
	mux.Use(middleware.RequestID)
	mux.Use(middleware.Recoverer)
	mux.Use(h.logRequests)
	if len(allowedOrigins) == 0 {
		allowedOrigins = []string{"*"}
	}
	mux.Use(cors.Handler(cors.Options{
		AllowedOrigins: allowedOrigins,
		AllowedMethods: []string{http.MethodGet, http.MethodOptions},
		AllowedHeaders: []string{"Accept", "Content-Type"},
		MaxAge:         300,
	}))

	mux.Get("/healthz", func(w http.ResponseWriter, _ *http.Request) {
		writeJSON(w, http.StatusOK, map[string]string{"status": "ok"})
	})
	mux.Route("/runs", func(r chi.Router) {
		r.Get("/", h.listRuns)
		r.Route("/{runID}", func(r chi.Router) {
			r.Get("/", h.getRun)
			r.Get("/assignments", h.listAssignments)
			r.Get("/review", h.listReview)
			r.Get("/compliance", h.listCompliance)
		})
	})
	return mux
}

func (h *handler) logRequests(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		ww := middleware.NewWrapResponseWriter(w, r.ProtoMajor)
		next.ServeHTTP(ww, r)
		h.log.Debug("api: request",
			zap.String("method", r.Method),
			zap.String("path", r.URL.Path),
			zap.Int("status", ww.Status()),
			zap.String("request_id", middleware.GetReqID(r.Context())),
		)
	})
}

func (h *handler) listRuns(w http.ResponseWriter, r *http.Request) {
	q := r.URL.Query()
	filter := store.RunFilter{Status: model.RunStatus(q.Get("status"))}
	var err error
	if filter.Limit, err = intParam(q.Get("limit")); err != nil {
		writeError(w, http.StatusBadRequest, "invalid limit")
		return
	}
	if filter.Offset, err = intParam(q.Get("offset")); err != nil {
		writeError(w, http.StatusBadRequest, "invalid offset")
		return
	}
	switch filter.Status {
	case "", model.RunStatusRunning, model.RunStatusComplete, model.RunStatusFailed:
	default:
		writeError(w, http.StatusBadRequest, "invalid status")
		return
	}

	runs, err := h.store.ListRuns(r.Context(), filter)
	if err != nil {
		h.fail(w, err)
		return
	}
	writeJSON(w, http.StatusOK, nonNil(runs))
}

func (h *handler) getRun(w http.ResponseWriter, r *http.Request) {
	run, err := h.store.GetRun(r.Context(), chi.URLParam(r, "runID"))
	if err != nil {
		h.fail(w, err)
		return
	}
	writeJSON(w, http.StatusOK, run)
}

func (h *handler) listAssignments(w http.ResponseWriter, r *http.Request) {
	h.assignments(w, r, h.store.ListAssignments)
}

func (h *handler) listReview(w http.ResponseWriter, r *http.Request) {
	h.assignments(w, r, h.store.ListReview)
}

func (h *handler) assignments(w http.ResponseWriter, r *http.Request, list func(context.Context, string) ([]model.Assignment, error)) {
	runID := chi.URLParam(r, "runID")
	if _, err := h.store.GetRun(r.Context(), runID); err != nil {
		h.fail(w, err)
		return
	}
	out, err := list(r.Context(), runID)
	if err != nil {
		h.fail(w, err)
		return
	}
	writeJSON(w, http.StatusOK, nonNil(out))
}

func (h *handler) listCompliance(w http.ResponseWriter, r *http.Request) {
	runID := chi.URLParam(r, "runID")
	status := model.ComplianceStatus(r.URL.Query().Get("status"))
	switch status {
	case "", model.StatusCompliant, model.StatusDeficit, model.StatusExcess:
	default:
		writeError(w, http.StatusBadRequest, "invalid status")
		return
	}
	if _, err := h.store.GetRun(r.Context(), runID); err != nil {
		h.fail(w, err)
		return
	}
	out, err := h.store.ListCompliance(r.Context(), runID, status)
	if err != nil {
		h.fail(w, err)
		return
	}
	writeJSON(w, http.StatusOK, nonNil(out))
}

func (h *handler) fail(w http.ResponseWriter, err error) {
	if eris.Is(err, store.ErrNotFound) {
		writeError(w, http.StatusNotFound, "run not found")
		return
	}
	h.log.Error("api: store error", zap.Error(err))
	writeError(w, http.StatusInternalServerError, "internal error")
}

func intParam(s string) (int, error) {
	if s == "" {
		return 0, nil
	}
	n, err := strconv.Atoi(s)
	if err != nil || n < 0 {
		return 0, eris.Errorf("invalid value %q", s)
	}
	return n, nil
}

func nonNil[T any](s []T) []T {
	if s == nil {
		return []T{}
	}
	return s
}

func writeJSON(w http.ResponseWriter, status int, v any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	_ = json.NewEncoder(w).Encode(v)
}

func writeError(w http.ResponseWriter, status int, msg string) {
	writeJSON(w, status, map[string]string{"error": msg})
}
