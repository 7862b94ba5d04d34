package api

import (
	"context"
	"net/http"

	service "github.com/okian/somurie/internal/app"
	"github.com/okian/somurie/pkg/logger"
)

// CommunityDependencies covers challenges and the loan waitlist.
type CommunityDependencies interface {
	Challenge(ctx context.Context, challengerFID, targetFID int64) (service.ChallengeResult, error)
	ChallengeHistory(ctx context.Context, fid int64) (service.ChallengeHistory, error)
	JoinWaitlist(ctx context.Context, fid int64, email string) (service.WaitlistJoin, error)
	GetWaitlistStatus(ctx context.Context, fid int64) (service.WaitlistStatus, error)
}

// CommunityHandler handles challenge and waitlist requests.
type CommunityHandler struct {
	deps CommunityDependencies
	log  logger.Logger
}

// NewCommunityHandler creates a new community handler.
func NewCommunityHandler(deps CommunityDependencies, log logger.Logger) *CommunityHandler {
	return &CommunityHandler{deps: deps, log: log}
}

type challengeRequest struct {
	ChallengerFID int64 `json:"challengerFid"`
	TargetFID     int64 `json:"targetFid"`
}

type waitlistRequest struct {
	FID   int64  `json:"fid"`
	Email string `json:"email"`
}

// HandleChallenge handles POST /challenge.
func (h *CommunityHandler) HandleChallenge(w http.ResponseWriter, r *http.Request) {
	var req challengeRequest
	if err := decodeBody(w, r, &req); err != nil {
		writeError(w, http.StatusBadRequest, err)
		return
	}
	res, err := h.deps.Challenge(r.Context(), req.ChallengerFID, req.TargetFID)
	if err != nil {
		writeServiceError(r.Context(), w, h.log, "api.challenge", err)
		return
	}
	writeData(w, http.StatusOK, res)
}

// HandleChallengeHistory handles GET /challenge/history/{fid}.
func (h *CommunityHandler) HandleChallengeHistory(w http.ResponseWriter, r *http.Request) {
	fid, err := pathFID(r, "fid")
	if err != nil {
		writeError(w, http.StatusBadRequest, err)
		return
	}
	hist, err := h.deps.ChallengeHistory(r.Context(), fid)
	if err != nil {
		writeServiceError(r.Context(), w, h.log, "api.challenge_history", err)
		return
	}
	writeData(w, http.StatusOK, hist)
}

// HandleJoinWaitlist handles POST /waitlist.
func (h *CommunityHandler) HandleJoinWaitlist(w http.ResponseWriter, r *http.Request) {
	var req waitlistRequest
	if err := decodeBody(w, r, &req); err != nil {
		writeError(w, http.StatusBadRequest, err)
		return
	}
	res, err := h.deps.JoinWaitlist(r.Context(), req.FID, req.Email)
	if err != nil {
		writeServiceError(r.Context(), w, h.log, "api.join_waitlist", err)
		return
	}
	writeData(w, http.StatusOK, res)
}

// HandleWaitlistStatus handles GET /waitlist/status/{fid}.
func (h *CommunityHandler) HandleWaitlistStatus(w http.ResponseWriter, r *http.Request) {
	fid, err := pathFID(r, "fid")
	if err != nil {
		writeError(w, http.StatusBadRequest, err)
		return
	}
	st, err := h.deps.GetWaitlistStatus(r.Context(), fid)
	if err != nil {
		writeServiceError(r.Context(), w, h.log, "api.waitlist_status", err)
		return
	}
	writeData(w, http.StatusOK, st)
}
