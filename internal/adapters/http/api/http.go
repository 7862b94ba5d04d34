// Package api declares HTTP contracts and route registration helpers.
package api

import (
	"context"
	"encoding/json"
	"errors"
	"net/http"
	"strconv"
	"strings"

	service "github.com/okian/somurie/internal/app"
	"github.com/okian/somurie/pkg/logger"
)

// Dependencies required by HTTP handlers. Using an interface bundle keeps
// the handler layer loosely coupled to implementations in other packages.
type Dependencies interface {
	ScoreDependencies
	LeaderboardDependencies
	CreatorDependencies
	CommunityDependencies
	WebhookDependencies
	JobsDependencies
	StatsProvider
}

// Server wires HTTP routes for the business API.
type Server struct {
	healthHandler      *HealthHandler
	statsHandler       *StatsHandler
	scoreHandler       *ScoreHandler
	leaderboardHandler *LeaderboardHandler
	creatorHandler     *CreatorHandler
	communityHandler   *CommunityHandler
	webhookHandler     *WebhookHandler
	jobsHandler        *JobsHandler

	origins []string
	log     logger.Logger
}

// Option configures a Server.
type Option func(*Server)

// WithAllowedOrigins sets the CORS allow list. "*" allows any origin.
func WithAllowedOrigins(origins ...string) Option {
	return func(s *Server) { s.origins = origins }
}

// WithLogger sets the logger used for failed requests.
func WithLogger(l logger.Logger) Option {
	return func(s *Server) {
		if l != nil {
			s.log = l
		}
	}
}

// NewServer creates a new API server with all handlers.
func NewServer(deps Dependencies, opts ...Option) *Server {
	s := &Server{log: logger.Nop()}
	for _, opt := range opts {
		opt(s)
	}
	s.healthHandler = NewHealthHandler()
	s.statsHandler = NewStatsHandler(deps)
	s.scoreHandler = NewScoreHandler(deps, s.log)
	s.leaderboardHandler = NewLeaderboardHandler(deps, s.log)
	s.creatorHandler = NewCreatorHandler(deps, s.log)
	s.communityHandler = NewCommunityHandler(deps, s.log)
	s.webhookHandler = NewWebhookHandler(deps, s.log)
	s.jobsHandler = NewJobsHandler(deps, s.log)
	return s
}

type route struct {
	pattern  string
	endpoint string
	handler  http.HandlerFunc
}

func (s *Server) routes() []route {
	return []route{
		{"GET /healthz", "healthz", s.healthHandler.HandleMetrics},
		{"GET /health", "health", s.healthHandler.HandleHealth},
		{"GET /stats", "stats", s.statsHandler.HandleStats},
		{"POST /score/calculate", "score_calculate", s.scoreHandler.HandleCalculate},
		{"GET /score/share/{id}", "score_share", s.scoreHandler.HandleGetShared},
		{"GET /score/{fid}", "score", s.scoreHandler.HandleGetScore},
		{"GET /leaderboard/{type}", "leaderboard", s.leaderboardHandler.HandleGetLeaderboard},
		{"GET /metrics/{fid}", "metrics", s.creatorHandler.HandleGetMetrics},
		{"GET /metrics/{fid}/trending", "trending", s.creatorHandler.HandleGetTrending},
		{"POST /challenge", "challenge", s.communityHandler.HandleChallenge},
		{"GET /challenge/history/{fid}", "challenge_history", s.communityHandler.HandleChallengeHistory},
		{"POST /waitlist", "waitlist", s.communityHandler.HandleJoinWaitlist},
		{"GET /waitlist/status/{fid}", "waitlist_status", s.communityHandler.HandleWaitlistStatus},
		{"POST /webhooks/neynar", "webhook", s.webhookHandler.HandleNeynar},
		{"GET /jobs", "jobs", s.jobsHandler.HandleListJobs},
		{"GET /jobs/{id}", "job", s.jobsHandler.HandleGetJob},
	}
}

// Register attaches all HTTP routes to mux, each at its own path and under
// the /api prefix.
func (s *Server) Register(_ context.Context, mux *http.ServeMux) {
	if mux == nil {
		panic("mux is nil")
	}
	mux.HandleFunc("GET /{$}", MetricsMiddleware(handleBanner, "root"))
	for _, rt := range s.routes() {
		h := MetricsMiddleware(rt.handler, rt.endpoint)
		method, path, _ := strings.Cut(rt.pattern, " ")
		mux.HandleFunc(method+" "+path, h)
		mux.HandleFunc(method+" /api"+path, h)
	}
}

// Handler returns mux wrapped in the CORS policy of the server.
func (s *Server) Handler(mux *http.ServeMux) http.Handler {
	return CORSMiddleware(mux, s.origins...)
}

func handleBanner(w http.ResponseWriter, _ *http.Request) {
	writeData(w, http.StatusOK, map[string]string{
		"name":    "somurie",
		"message": "Creator Score API",
		"docs":    "/api-docs",
	})
}

type envelope struct {
	Success bool   `json:"success"`
	Data    any    `json:"data,omitempty"`
	Error   string `json:"error,omitempty"`
}

type processingResponse struct {
	Success    bool   `json:"success"`
	Processing bool   `json:"processing"`
	JobID      string `json:"jobId"`
	Message    string `json:"message"`
}

func writeJSON(w http.ResponseWriter, status int, v any) {
	w.Header().Set("Content-Type", "application/json; charset=utf-8")
	w.WriteHeader(status)
	_ = json.NewEncoder(w).Encode(v)
}

func writeData(w http.ResponseWriter, status int, data any) {
	writeJSON(w, status, envelope{Success: true, Data: data})
}

func writeError(w http.ResponseWriter, status int, err error) {
	msg := http.StatusText(status)
	if err != nil {
		msg = err.Error()
	}
	writeJSON(w, status, envelope{Success: false, Error: msg})
}

// writeServiceError maps service errors to a status. Only validation and
// not-found messages reach the client.
func writeServiceError(ctx context.Context, w http.ResponseWriter, log logger.Logger, op string, err error) {
	var (
		pending *service.PendingError
		missing *service.NotFoundError
		bad     *service.ValidationError
	)
	switch {
	case errors.As(err, &pending):
		writeJSON(w, http.StatusAccepted, processingResponse{
			Success:    true,
			Processing: true,
			JobID:      pending.JobID,
			Message:    "Score calculation in progress. Please check back in a few seconds.",
		})
	case errors.As(err, &missing):
		writeError(w, http.StatusNotFound, missing)
	case errors.As(err, &bad):
		writeError(w, http.StatusBadRequest, errors.New(bad.Msg))
	case errors.Is(err, service.ErrQueueFull):
		writeError(w, http.StatusTooManyRequests, ErrBackpressure)
	default:
		log.Error(ctx, "request failed", logger.String("op", op), logger.Error(err))
		writeError(w, http.StatusInternalServerError, ErrInternal)
	}
}

// pathFID parses a positive creator id from the named path value.
func pathFID(r *http.Request, name string) (int64, error) {
	fid, err := strconv.ParseInt(r.PathValue(name), 10, 64)
	if err != nil || fid <= 0 {
		return 0, ErrInvalidFID
	}
	return fid, nil
}

// decodeBody reads a JSON request body of at most maxBodyBytes.
func decodeBody(w http.ResponseWriter, r *http.Request, v any) error {
	r.Body = http.MaxBytesReader(w, r.Body, maxBodyBytes)
	if err := json.NewDecoder(r.Body).Decode(v); err != nil {
		return ErrBadRequest
	}
	return nil
}
