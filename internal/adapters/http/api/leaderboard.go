package api

import (
	"context"
	"net/http"
	"strconv"

	service "github.com/okian/somurie/internal/app"
	"github.com/okian/somurie/pkg/logger"
)

// LeaderboardDependencies defines the interface for leaderboard operations
type LeaderboardDependencies interface {
	Leaderboard(ctx context.Context, kind string, fid int64) ([]service.LeaderboardEntry, error)
}

// LeaderboardHandler handles leaderboard requests
type LeaderboardHandler struct {
	deps LeaderboardDependencies
	log  logger.Logger
}

// NewLeaderboardHandler creates a new leaderboard handler
func NewLeaderboardHandler(deps LeaderboardDependencies, log logger.Logger) *LeaderboardHandler {
	return &LeaderboardHandler{deps: deps, log: log}
}

// HandleGetLeaderboard handles GET /leaderboard/{type}?fid=N requests
func (h *LeaderboardHandler) HandleGetLeaderboard(w http.ResponseWriter, r *http.Request) {
	const op = "api.get_leaderboard"
	var fid int64
	if raw := r.URL.Query().Get("fid"); raw != "" {
		n, err := strconv.ParseInt(raw, 10, 64)
		if err != nil || n <= 0 {
			writeError(w, http.StatusBadRequest, ErrInvalidFID)
			return
		}
		fid = n
	}
	entries, err := h.deps.Leaderboard(r.Context(), r.PathValue("type"), fid)
	if err != nil {
		writeServiceError(r.Context(), w, h.log, op, err)
		return
	}
	writeData(w, http.StatusOK, entries)
}
