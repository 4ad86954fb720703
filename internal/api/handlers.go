package api

import (
	"errors"
	"log/slog"
	"net/http"
	"net/url"
	"strings"

	"github.com/go-chi/chi/v5"

	"github.com/archlens/archlens/internal/apperr"
	"github.com/archlens/archlens/internal/graph"
)

// Handler holds API route handlers.
type Handler struct {
	svc GraphService
}

// NewHandler creates a new Handler.
func NewHandler(svc GraphService) *Handler {
	return &Handler{svc: svc}
}

// entityPath extracts the canonical entity path from the URL (everything
// after /api/dependencies/). An empty remainder addresses the root, and
// encoded slashes are accepted.
func entityPath(r *http.Request) string {
	raw := strings.TrimPrefix(chi.URLParam(r, "*"), "/")
	if decoded, err := url.PathUnescape(raw); err == nil {
		raw = decoded
	}
	raw = strings.TrimPrefix(raw, "./")
	if raw == "" {
		return graph.RootPath
	}
	return "./" + raw
}

// writeError maps service errors onto status codes.
func writeError(w http.ResponseWriter, op string, err error) {
	switch {
	case errors.Is(err, apperr.ErrNotFound):
		writeJSON(w, http.StatusNotFound, errorBody(err.Error()))
	case errors.Is(err, apperr.ErrConfig):
		writeJSON(w, http.StatusBadRequest, errorBody(err.Error()))
	case errors.Is(err, apperr.ErrCanceled):
		writeJSON(w, http.StatusServiceUnavailable, errorBody("canceled"))
	default:
		slog.Error(op+" failed", slog.String("error", err.Error()))
		writeJSON(w, http.StatusInternalServerError, errorBody("internal error"))
	}
}

// Graph handles GET /api/graph and returns the serialized snapshot.
func (h *Handler) Graph(w http.ResponseWriter, r *http.Request) {
	root, err := h.svc.Snapshot(r.Context())
	if err != nil {
		writeError(w, "graph", err)
		return
	}
	data, err := graph.Encode(root)
	if err != nil {
		writeError(w, "graph", err)
		return
	}
	writeRaw(w, http.StatusOK, "application/json; charset=utf-8", data)
}

// RenderGraph handles GET /api/graph/render?format=json|plantuml.
func (h *Handler) RenderGraph(w http.ResponseWriter, r *http.Request) {
	data, contentType, err := h.svc.Render(r.Context(), r.URL.Query().Get("format"))
	if err != nil {
		writeError(w, "render", err)
		return
	}
	writeRaw(w, http.StatusOK, contentType, data)
}

// Dependencies handles GET /api/dependencies/*.
func (h *Handler) Dependencies(w http.ResponseWriter, r *http.Request) {
	path := entityPath(r)
	view, err := h.svc.Dependencies(r.Context(), path)
	if err != nil {
		writeError(w, "dependencies", err)
		return
	}
	writeJSON(w, http.StatusOK, view)
}

// Scan handles POST /api/scan and runs the pipeline once.
func (h *Handler) Scan(w http.ResponseWriter, r *http.Request) {
	res, err := h.svc.Scan(r.Context())
	if err != nil {
		writeError(w, "scan", err)
		return
	}
	writeJSON(w, http.StatusOK, res)
}
