package api

import (
	"context"
	"io"
	"net/http"

	service "github.com/okian/somurie/internal/app"
	"github.com/okian/somurie/pkg/logger"
)

// SignatureHeader carries the hex HMAC-SHA512 of an inbound webhook body.
const SignatureHeader = "X-Neynar-Signature"

// WebhookDependencies ingests inbound social-graph events.
type WebhookDependencies interface {
	IngestWebhook(ctx context.Context, body []byte, signature string) (service.WebhookOutcome, error)
}

// WebhookHandler handles provider webhooks.
type WebhookHandler struct {
	deps WebhookDependencies
	log  logger.Logger
}

// NewWebhookHandler creates a new webhook handler.
func NewWebhookHandler(deps WebhookDependencies, log logger.Logger) *WebhookHandler {
	return &WebhookHandler{deps: deps, log: log}
}

// HandleNeynar handles POST /webhooks/neynar. The provider always gets 200;
// rejected or failed events are only logged.
func (h *WebhookHandler) HandleNeynar(w http.ResponseWriter, r *http.Request) {
	body, err := io.ReadAll(http.MaxBytesReader(w, r.Body, maxBodyBytes))
	if err != nil {
		h.log.Warn(r.Context(), "webhook body unreadable", logger.Error(err))
		writeJSON(w, http.StatusOK, envelope{Success: true})
		return
	}
	out, err := h.deps.IngestWebhook(r.Context(), body, r.Header.Get(SignatureHeader))
	if err != nil {
		h.log.Warn(r.Context(), "webhook not applied",
			logger.String("type", out.Type), logger.Error(err))
	}
	writeJSON(w, http.StatusOK, envelope{Success: true})
}
