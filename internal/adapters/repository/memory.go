package repository

import (
	"context"
	"fmt"
	"slices"
	"sync"
	"time"

	"github.com/okian/somurie/internal/domain/model"
)

type scoreKey struct {
	creator int64
	day     int64
}

// MemoryStore is an in-process Store. Each day's scores are kept in a treap
// so percentile counts and leaderboard slices stay logarithmic.
type MemoryStore struct {
	mu sync.RWMutex

	profiles map[int64]model.CreatorProfile
	scores   map[scoreKey]model.CreatorScore
	shares   map[string]scoreKey
	days     map[int64]*dayIndex
	waitlist map[int64]model.WaitlistEntry
	nextID   uint

	now func() time.Time
}

// NewMemoryStore constructs an empty in-memory store.
func NewMemoryStore(opts ...Option) *MemoryStore {
	o := defaultOptions()
	for _, opt := range opts {
		opt(&o)
	}
	return &MemoryStore{
		profiles: make(map[int64]model.CreatorProfile),
		scores:   make(map[scoreKey]model.CreatorScore),
		shares:   make(map[string]scoreKey),
		days:     make(map[int64]*dayIndex),
		waitlist: make(map[int64]model.WaitlistEntry),
		now:      o.now,
	}
}

func keyOf(creatorID int64, day time.Time) scoreKey {
	return scoreKey{creator: creatorID, day: day.Unix()}
}

// UpsertProfile implements Store.
func (s *MemoryStore) UpsertProfile(_ context.Context, p model.CreatorProfile) error {
	defer observe("upsert_profile")()
	now := s.now()

	s.mu.Lock()
	defer s.mu.Unlock()
	if old, ok := s.profiles[p.ID]; ok {
		p.CreatedAt = old.CreatedAt
	} else {
		p.CreatedAt = now
	}
	p.UpdatedAt = now
	s.profiles[p.ID] = p
	return nil
}

// CreateProfileIfAbsent implements Store.
func (s *MemoryStore) CreateProfileIfAbsent(_ context.Context, p model.CreatorProfile) (bool, error) {
	now := s.now()

	s.mu.Lock()
	defer s.mu.Unlock()
	if _, ok := s.profiles[p.ID]; ok {
		return false, nil
	}
	p.CreatedAt, p.UpdatedAt = now, now
	s.profiles[p.ID] = p
	return true, nil
}

// Profile implements Store.
func (s *MemoryStore) Profile(_ context.Context, id int64) (model.CreatorProfile, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	p, ok := s.profiles[id]
	if !ok {
		return model.CreatorProfile{}, fmt.Errorf("profile %d: %w", id, ErrNotFound)
	}
	return p, nil
}

// Profiles implements Store.
func (s *MemoryStore) Profiles(_ context.Context, ids []int64) (map[int64]model.CreatorProfile, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	out := make(map[int64]model.CreatorProfile, len(ids))
	for _, id := range ids {
		if p, ok := s.profiles[id]; ok {
			out[id] = p
		}
	}
	return out, nil
}

// ListCreatorIDs implements Store.
func (s *MemoryStore) ListCreatorIDs(_ context.Context) ([]int64, error) {
	s.mu.RLock()
	ids := make([]int64, 0, len(s.profiles))
	for id := range s.profiles {
		ids = append(ids, id)
	}
	s.mu.RUnlock()
	slices.Sort(ids)
	return ids, nil
}

// UpsertScore implements Store.
func (s *MemoryStore) UpsertScore(_ context.Context, sc model.CreatorScore) (model.CreatorScore, error) {
	defer observe("upsert_score")()
	now := s.now()
	sc.ScoreDate = normalizeDay(sc.ScoreDate)
	key := keyOf(sc.CreatorID, sc.ScoreDate)

	s.mu.Lock()
	defer s.mu.Unlock()

	if old, ok := s.scores[key]; ok {
		sc.ID = old.ID
		sc.CreatedAt = old.CreatedAt
		if old.ShareableID != "" {
			sc.ShareableID = old.ShareableID
		}
	} else {
		if owner, taken := s.shares[sc.ShareableID]; taken && owner != key {
			return model.CreatorScore{}, fmt.Errorf("shareable id %q: %w", sc.ShareableID, ErrDuplicate)
		}
		s.nextID++
		sc.ID = s.nextID
		sc.CreatedAt = now
	}
	sc.UpdatedAt = now

	s.scores[key] = sc
	s.shares[sc.ShareableID] = key
	idx, ok := s.days[key.day]
	if !ok {
		idx = newDayIndex()
		s.days[key.day] = idx
	}
	idx.set(sc.CreatorID, sc.OverallScore)
	return sc, nil
}

// FindScore implements Store.
func (s *MemoryStore) FindScore(_ context.Context, creatorID int64, day time.Time) (model.CreatorScore, bool, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	sc, ok := s.scores[keyOf(creatorID, day)]
	return sc, ok, nil
}

// ScoreByShareableID implements Store.
func (s *MemoryStore) ScoreByShareableID(_ context.Context, id string) (model.CreatorScore, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	key, ok := s.shares[id]
	if !ok {
		return model.CreatorScore{}, fmt.Errorf("shareable id %q: %w", id, ErrNotFound)
	}
	return s.scores[key], nil
}

// ShareableIDExists implements Store.
func (s *MemoryStore) ShareableIDExists(_ context.Context, id string) (bool, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	_, ok := s.shares[id]
	return ok, nil
}

// CountScoresOnDay implements Store.
func (s *MemoryStore) CountScoresOnDay(_ context.Context, day time.Time, score float64, exclude int64) (int, int, error) {
	defer observe("count_scores")()
	s.mu.RLock()
	defer s.mu.RUnlock()
	idx, ok := s.days[day.Unix()]
	if !ok {
		return 0, 0, nil
	}
	below, total := idx.below(score, exclude)
	return below, total, nil
}

// TopScoresOnDay implements Store.
func (s *MemoryStore) TopScoresOnDay(_ context.Context, day time.Time, limit int) ([]model.CreatorScore, error) {
	if limit < 1 {
		return nil, ErrInvalidLimit
	}
	s.mu.RLock()
	defer s.mu.RUnlock()
	idx, ok := s.days[day.Unix()]
	if !ok {
		return []model.CreatorScore{}, nil
	}
	return s.resolve(day, idx.top(limit)), nil
}

// TopScoresSince implements Store.
func (s *MemoryStore) TopScoresSince(_ context.Context, since time.Time, limit int) ([]model.CreatorScore, error) {
	if limit < 1 {
		return nil, ErrInvalidLimit
	}
	cutoff := since.Unix()

	s.mu.RLock()
	out := make([]model.CreatorScore, 0)
	for day, idx := range s.days {
		if day < cutoff {
			continue
		}
		// Only each day's own top can make the overall top.
		for _, id := range idx.top(limit) {
			out = append(out, s.scores[scoreKey{creator: id, day: day}])
		}
	}
	s.mu.RUnlock()

	slices.SortFunc(out, func(a, b model.CreatorScore) int {
		switch {
		case before(a, b):
			return -1
		case before(b, a):
			return 1
		default:
			return 0
		}
	})
	if len(out) > limit {
		out = out[:limit]
	}
	return out, nil
}

// ScoresInRange implements Store.
func (s *MemoryStore) ScoresInRange(_ context.Context, day time.Time, lo, hi int, exclude int64, limit int) ([]model.CreatorScore, error) {
	if limit < 1 {
		return nil, ErrInvalidLimit
	}
	s.mu.RLock()
	defer s.mu.RUnlock()
	idx, ok := s.days[day.Unix()]
	if !ok {
		return []model.CreatorScore{}, nil
	}
	return s.resolve(day, idx.rangeOf(lo, hi, exclude, limit)), nil
}

// resolve maps index ids back to rows. Caller holds the read lock.
func (s *MemoryStore) resolve(day time.Time, ids []int64) []model.CreatorScore {
	out := make([]model.CreatorScore, 0, len(ids))
	for _, id := range ids {
		out = append(out, s.scores[keyOf(id, day)])
	}
	return out
}

// JoinWaitlist implements Store.
func (s *MemoryStore) JoinWaitlist(_ context.Context, creatorID int64, email string, at time.Time) (model.WaitlistEntry, bool, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if e, ok := s.waitlist[creatorID]; ok {
		return e, false, nil
	}
	e := model.WaitlistEntry{
		ID:        uint(len(s.waitlist) + 1),
		CreatorID: creatorID,
		Email:     email,
		Position:  len(s.waitlist) + 1,
		JoinedAt:  at,
	}
	s.waitlist[creatorID] = e
	return e, true, nil
}

// WaitlistEntry implements Store.
func (s *MemoryStore) WaitlistEntry(_ context.Context, creatorID int64) (model.WaitlistEntry, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	e, ok := s.waitlist[creatorID]
	if !ok {
		return model.WaitlistEntry{}, fmt.Errorf("waitlist %d: %w", creatorID, ErrNotFound)
	}
	return e, nil
}

// WaitlistCount implements Store.
func (s *MemoryStore) WaitlistCount(_ context.Context) (int, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return len(s.waitlist), nil
}

// Close implements Store.
func (s *MemoryStore) Close() error { return nil }
