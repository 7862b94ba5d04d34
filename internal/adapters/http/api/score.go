package api

import (
	"context"
	"net/http"

	service "github.com/okian/somurie/internal/app"
	"github.com/okian/somurie/pkg/logger"
)

// ScoreDependencies defines the score operations behind the score routes.
type ScoreDependencies interface {
	RequestScore(ctx context.Context, fid int64) (service.ScoreResult, error)
	GetScoreByCreator(ctx context.Context, fid int64) (service.ScoreView, error)
	GetScoreByShareableID(ctx context.Context, id string) (service.ScoreResult, error)
}

// ScoreHandler handles score requests.
type ScoreHandler struct {
	deps ScoreDependencies
	log  logger.Logger
}

// NewScoreHandler creates a new score handler.
func NewScoreHandler(deps ScoreDependencies, log logger.Logger) *ScoreHandler {
	return &ScoreHandler{deps: deps, log: log}
}

type calculateRequest struct {
	FID int64 `json:"fid"`
}

// HandleCalculate handles POST /score/calculate. It answers 202 with the job
// id when the score is not ready within the wait budget.
func (h *ScoreHandler) HandleCalculate(w http.ResponseWriter, r *http.Request) {
	const op = "api.score_calculate"
	var req calculateRequest
	if err := decodeBody(w, r, &req); err != nil {
		writeError(w, http.StatusBadRequest, err)
		return
	}
	if req.FID <= 0 {
		writeError(w, http.StatusBadRequest, ErrInvalidFID)
		return
	}
	res, err := h.deps.RequestScore(r.Context(), req.FID)
	if err != nil {
		writeServiceError(r.Context(), w, h.log, op, err)
		return
	}
	writeData(w, http.StatusOK, res)
}

// HandleGetScore handles GET /score/{fid}.
func (h *ScoreHandler) HandleGetScore(w http.ResponseWriter, r *http.Request) {
	fid, err := pathFID(r, "fid")
	if err != nil {
		writeError(w, http.StatusBadRequest, err)
		return
	}
	view, err := h.deps.GetScoreByCreator(r.Context(), fid)
	if err != nil {
		writeServiceError(r.Context(), w, h.log, "api.get_score", err)
		return
	}
	writeData(w, http.StatusOK, view)
}

// HandleGetShared handles GET /score/share/{id}.
func (h *ScoreHandler) HandleGetShared(w http.ResponseWriter, r *http.Request) {
	res, err := h.deps.GetScoreByShareableID(r.Context(), r.PathValue("id"))
	if err != nil {
		writeServiceError(r.Context(), w, h.log, "api.get_shared_score", err)
		return
	}
	writeData(w, http.StatusOK, res)
}
