package service

import (
	"context"
	"crypto/hmac"
	"crypto/sha256"
	"crypto/sha512"
	"encoding/hex"
	"encoding/json"
	"errors"
	"fmt"
	"strings"

	"github.com/okian/somurie/internal/domain/model"
	"github.com/okian/somurie/pkg/logger"
	"github.com/okian/somurie/pkg/metrics"
)

// Inbound webhook event types.
const (
	EventCastCreated     = "cast.created"
	EventFollowCreated   = "follow.created"
	EventFollowDeleted   = "follow.deleted"
	EventReactionCreated = "reaction.created"
	EventReactionDeleted = "reaction.deleted"
)

// WebhookEvent is the envelope of an inbound social-graph event.
type WebhookEvent struct {
	ID   string      `json:"id"`
	Type string      `json:"type"`
	Data webhookData `json:"data"`
}

type webhookData struct {
	FID           int64 `json:"fid"`
	TargetFID     int64 `json:"targetFid"`
	CastAuthorFID int64 `json:"castAuthorFid"`
	Author        *struct {
		FID int64 `json:"fid"`
	} `json:"author"`
}

// WebhookOutcome reports what an event caused.
type WebhookOutcome struct {
	Type      string   `json:"type"`
	Duplicate bool     `json:"duplicate,omitempty"`
	JobIDs    []string `json:"jobIds,omitempty"`
}

type refresh struct {
	fid      int64
	priority int
}

// IngestWebhook verifies, dedupes and applies an inbound event: affected
// creators get their cached metrics dropped and a score job queued.
func (s *Service) IngestWebhook(ctx context.Context, body []byte, signature string) (WebhookOutcome, error) {
	if s.webhookSecret != "" && !validSignature(s.webhookSecret, body, signature) {
		metrics.RecordErrorByComponent("webhook", "signature")
		return WebhookOutcome{}, ErrSignature
	}

	var ev WebhookEvent
	if err := json.Unmarshal(body, &ev); err != nil {
		return WebhookOutcome{}, invalid("decode webhook: %v", err)
	}
	out := WebhookOutcome{Type: ev.Type}
	metrics.RecordWebhookEvent(ev.Type)

	key := ev.ID
	if key == "" {
		sum := sha256.Sum256(body)
		key = "sha256:" + hex.EncodeToString(sum[:])
	}
	if s.deduper.SeenAndRecord(ctx, key) {
		metrics.RecordWebhookDuplicate()
		out.Duplicate = true
		return out, nil
	}

	var errs []error
	for _, r := range refreshes(ev) {
		s.fetcher.Invalidate(r.fid)
		id, err := s.jobs.Enqueue(ctx, r.fid, r.priority)
		if err != nil {
			errs = append(errs, fmt.Errorf("enqueue %d: %w", r.fid, err))
			continue
		}
		out.JobIDs = append(out.JobIDs, id)
	}
	if err := errors.Join(errs...); err != nil {
		// Forget the event so a redelivery can retry it.
		s.deduper.Unrecord(ctx, key)
		return out, err
	}

	s.logger.Debug(ctx, "webhook applied",
		logger.String("type", ev.Type),
		logger.Int("jobs", len(out.JobIDs)))
	return out, nil
}

func refreshes(ev WebhookEvent) []refresh {
	var out []refresh
	add := func(fid int64, priority int) {
		if fid > 0 {
			out = append(out, refresh{fid: fid, priority: priority})
		}
	}

	switch ev.Type {
	case EventCastCreated:
		fid := ev.Data.FID
		if fid == 0 && ev.Data.Author != nil {
			fid = ev.Data.Author.FID
		}
		add(fid, model.PriorityCast)
	case EventFollowCreated, EventFollowDeleted:
		add(ev.Data.FID, model.PriorityInteractive)
		add(ev.Data.TargetFID, model.PriorityInteractive)
	case EventReactionCreated, EventReactionDeleted:
		add(ev.Data.CastAuthorFID, model.PriorityInteractive)
	}
	return out
}

// validSignature checks a hex HMAC-SHA512 of body.
func validSignature(secret string, body []byte, signature string) bool {
	got, err := hex.DecodeString(strings.TrimSpace(signature))
	if err != nil || len(got) == 0 {
		return false
	}
	mac := hmac.New(sha512.New, []byte(secret))
	mac.Write(body)
	return hmac.Equal(got, mac.Sum(nil))
}
