package service

import (
	"context"
	"errors"
	"fmt"
	"math"
	"net/mail"
	"strings"
	"time"

	"github.com/okian/somurie/internal/adapters/repository"
	"github.com/okian/somurie/internal/domain/model"
	"github.com/okian/somurie/pkg/logger"
)

// Participant identifies one side of a challenge.
type Participant struct {
	FID      int64  `json:"fid"`
	Username string `json:"username"`
}

// ChallengeResult names both sides of a sent challenge.
type ChallengeResult struct {
	Challenger Participant `json:"challenger"`
	Target     Participant `json:"target"`
}

// ChallengeHistory lists sent and received challenges.
type ChallengeHistory struct {
	Sent     []ChallengeResult `json:"sent"`
	Received []ChallengeResult `json:"received"`
}

// Challenge dares targetFID to beat challengerFID's score. Both creators
// must be known. Delivery failures are logged only.
func (s *Service) Challenge(ctx context.Context, challengerFID, targetFID int64) (ChallengeResult, error) {
	if challengerFID <= 0 || targetFID <= 0 {
		return ChallengeResult{}, invalid("challengerFid and targetFid must be positive")
	}
	if challengerFID == targetFID {
		return ChallengeResult{}, invalid("You cannot challenge yourself")
	}

	profiles, err := s.store.Profiles(ctx, []int64{challengerFID, targetFID})
	if err != nil {
		return ChallengeResult{}, fmt.Errorf("load profiles: %w", err)
	}
	challenger, ok := profiles[challengerFID]
	if !ok {
		return ChallengeResult{}, notFound("Challenger not found")
	}
	target, ok := profiles[targetFID]
	if !ok {
		return ChallengeResult{}, notFound("Target user not found")
	}

	if s.challenges != nil {
		if err := s.challenges.Challenge(ctx, challenger, targetFID); err != nil {
			s.logger.Warn(ctx, "challenge notification failed",
				logger.Int64("fid", challengerFID),
				logger.Int64("target_fid", targetFID),
				logger.Error(err))
		}
	}

	return ChallengeResult{
		Challenger: Participant{FID: challenger.ID, Username: challenger.DisplayHandle()},
		Target:     Participant{FID: target.ID, Username: target.DisplayHandle()},
	}, nil
}

// ChallengeHistory returns fid's challenges. Challenges are not stored yet,
// so both lists are empty.
func (s *Service) ChallengeHistory(_ context.Context, fid int64) (ChallengeHistory, error) {
	if fid <= 0 {
		return ChallengeHistory{}, invalid("fid must be positive, got %d", fid)
	}
	return ChallengeHistory{Sent: []ChallengeResult{}, Received: []ChallengeResult{}}, nil
}

// WaitlistJoin is the outcome of joining the loan waitlist.
type WaitlistJoin struct {
	Position int    `json:"position"`
	Message  string `json:"message"`
}

// WaitlistStatus is a creator's standing on the waitlist.
type WaitlistStatus struct {
	OnWaitlist bool   `json:"onWaitlist"`
	Position   int    `json:"position"`
	JoinedAt   string `json:"joinedAt"`
	Percentile int    `json:"percentile"`
	TotalCount int    `json:"totalCount"`
}

// JoinWaitlist adds fid to the loan waitlist. Unknown creators get a
// placeholder profile; joining twice returns the existing position.
func (s *Service) JoinWaitlist(ctx context.Context, fid int64, email string) (WaitlistJoin, error) {
	if fid <= 0 {
		return WaitlistJoin{}, invalid("fid must be positive, got %d", fid)
	}
	email = strings.TrimSpace(email)
	if addr, err := mail.ParseAddress(email); err != nil || addr.Address != email {
		return WaitlistJoin{}, invalid("invalid email address")
	}

	if _, err := s.store.CreateProfileIfAbsent(ctx, model.CreatorProfile{ID: fid, Handle: model.PlaceholderHandle(fid)}); err != nil {
		return WaitlistJoin{}, fmt.Errorf("create profile: %w", err)
	}
	entry, created, err := s.store.JoinWaitlist(ctx, fid, email, s.now())
	if err != nil {
		return WaitlistJoin{}, fmt.Errorf("join waitlist: %w", err)
	}
	if !created {
		return WaitlistJoin{Position: entry.Position, Message: "You are already on the waitlist!"}, nil
	}
	s.logger.Info(ctx, "joined waitlist", logger.Int64("fid", fid), logger.Int("position", entry.Position))
	return WaitlistJoin{Position: entry.Position, Message: "Successfully joined waitlist!"}, nil
}

// GetWaitlistStatus returns fid's waitlist position.
func (s *Service) GetWaitlistStatus(ctx context.Context, fid int64) (WaitlistStatus, error) {
	if fid <= 0 {
		return WaitlistStatus{}, invalid("fid must be positive, got %d", fid)
	}
	entry, err := s.store.WaitlistEntry(ctx, fid)
	if errors.Is(err, repository.ErrNotFound) {
		return WaitlistStatus{}, notFound("Not on waitlist")
	}
	if err != nil {
		return WaitlistStatus{}, fmt.Errorf("find waitlist entry: %w", err)
	}
	total, err := s.store.WaitlistCount(ctx)
	if err != nil {
		return WaitlistStatus{}, fmt.Errorf("count waitlist: %w", err)
	}

	percentile := 0
	if total > 0 {
		percentile = int(math.Round(float64(entry.Position) / float64(total) * 100))
	}
	return WaitlistStatus{
		OnWaitlist: true,
		Position:   entry.Position,
		JoinedAt:   entry.JoinedAt.UTC().Format(time.RFC3339),
		Percentile: percentile,
		TotalCount: total,
	}, nil
}
