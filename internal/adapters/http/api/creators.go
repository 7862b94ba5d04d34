package api

import (
	"context"
	"net/http"

	service "github.com/okian/somurie/internal/app"
	"github.com/okian/somurie/internal/domain/model"
	"github.com/okian/somurie/pkg/logger"
)

// CreatorDependencies reads creator activity.
type CreatorDependencies interface {
	Metrics(ctx context.Context, fid int64) (service.MetricsView, error)
	Trending(ctx context.Context, fid int64) ([]model.PostMetric, error)
}

// CreatorHandler serves creator metrics.
type CreatorHandler struct {
	deps CreatorDependencies
	log  logger.Logger
}

// NewCreatorHandler creates a new creator handler.
func NewCreatorHandler(deps CreatorDependencies, log logger.Logger) *CreatorHandler {
	return &CreatorHandler{deps: deps, log: log}
}

// HandleGetMetrics handles GET /metrics/{fid}.
func (h *CreatorHandler) HandleGetMetrics(w http.ResponseWriter, r *http.Request) {
	fid, err := pathFID(r, "fid")
	if err != nil {
		writeError(w, http.StatusBadRequest, err)
		return
	}
	m, err := h.deps.Metrics(r.Context(), fid)
	if err != nil {
		writeServiceError(r.Context(), w, h.log, "api.get_metrics", err)
		return
	}
	writeData(w, http.StatusOK, m)
}

// HandleGetTrending handles GET /metrics/{fid}/trending.
func (h *CreatorHandler) HandleGetTrending(w http.ResponseWriter, r *http.Request) {
	fid, err := pathFID(r, "fid")
	if err != nil {
		writeError(w, http.StatusBadRequest, err)
		return
	}
	posts, err := h.deps.Trending(r.Context(), fid)
	if err != nil {
		writeServiceError(r.Context(), w, h.log, "api.get_trending", err)
		return
	}
	writeData(w, http.StatusOK, posts)
}
