package repository

import (
	"context"
	"errors"
	"fmt"
	"log"
	"os"
	"strings"
	"time"

	"gorm.io/driver/postgres"
	"gorm.io/driver/sqlite"
	"gorm.io/gorm"
	"gorm.io/gorm/clause"
	gormlogger "gorm.io/gorm/logger"

	"github.com/okian/somurie/internal/domain/model"
	"github.com/okian/somurie/pkg/logger"
)

// DSN schemes accepted by Open.
const (
	schemeMemory     = "memory://"
	schemeSQLite     = "sqlite://"
	schemeFile       = "file:"
	schemePostgres   = "postgres://"
	schemePostgresQL = "postgresql://"
)

// Open returns the Store selected by dsn: memory://, sqlite://<path>,
// file:<path> or a postgres URL.
func Open(ctx context.Context, dsn string, opts ...Option) (Store, error) {
	var dialector gorm.Dialector
	switch {
	case dsn == "memory" || strings.HasPrefix(dsn, schemeMemory):
		return NewMemoryStore(opts...), nil
	case strings.HasPrefix(dsn, schemeSQLite):
		dialector = sqlite.Open(strings.TrimPrefix(dsn, schemeSQLite))
	case strings.HasPrefix(dsn, schemeFile):
		dialector = sqlite.Open(dsn)
	case strings.HasPrefix(dsn, schemePostgres), strings.HasPrefix(dsn, schemePostgresQL):
		dialector = postgres.Open(dsn)
	default:
		return nil, fmt.Errorf("%w: %q", ErrUnsupportedDSN, redact(dsn))
	}
	return NewGormStore(ctx, dialector, opts...)
}

// redact hides credentials in URLs before they reach logs or errors.
func redact(dsn string) string {
	at := strings.LastIndex(dsn, "@")
	scheme := strings.Index(dsn, "://")
	if at < 0 || scheme < 0 || at < scheme {
		return dsn
	}
	return dsn[:scheme+3] + "***" + dsn[at:]
}

// GormStore persists state in a SQL database through gorm.
type GormStore struct {
	db  *gorm.DB
	log logger.Logger
	now func() time.Time
}

// NewGormStore connects with dialector and migrates the schema.
func NewGormStore(ctx context.Context, dialector gorm.Dialector, opts ...Option) (*GormStore, error) {
	o := defaultOptions()
	for _, opt := range opts {
		opt(&o)
	}

	sqlLog := gormlogger.New(
		log.New(os.Stderr, "\r\n", log.LstdFlags),
		gormlogger.Config{
			SlowThreshold:             o.slowThreshold,
			LogLevel:                  o.gormLogLevel,
			IgnoreRecordNotFoundError: true,
			Colorful:                  false,
		},
	)

	db, err := gorm.Open(dialector, &gorm.Config{
		Logger:         sqlLog,
		TranslateError: true,
		NowFunc:        func() time.Time { return o.now().UTC() },
	})
	if err != nil {
		return nil, fmt.Errorf("open database: %w", err)
	}

	if dialector.Name() == "sqlite" {
		// One writer at a time avoids "database is locked".
		sqlDB, err := db.DB()
		if err != nil {
			return nil, fmt.Errorf("database handle: %w", err)
		}
		sqlDB.SetMaxOpenConns(1)
	}

	if err := db.WithContext(ctx).AutoMigrate(
		&model.CreatorProfile{},
		&model.CreatorScore{},
		&model.WaitlistEntry{},
	); err != nil {
		return nil, fmt.Errorf("migrate: %w", err)
	}

	o.log.Info(ctx, "store ready", logger.String("dialect", dialector.Name()))
	return &GormStore{db: db, log: o.log, now: o.now}, nil
}

// DB exposes the underlying handle.
func (g *GormStore) DB() *gorm.DB { return g.db }

func translate(err error) error {
	switch {
	case err == nil:
		return nil
	case errors.Is(err, gorm.ErrRecordNotFound):
		return fmt.Errorf("%w: %w", ErrNotFound, err)
	case errors.Is(err, gorm.ErrDuplicatedKey):
		return fmt.Errorf("%w: %w", ErrDuplicate, err)
	default:
		return err
	}
}

// UpsertProfile implements Store.
func (g *GormStore) UpsertProfile(ctx context.Context, p model.CreatorProfile) error {
	defer observe("upsert_profile")()
	p.UpdatedAt = g.now().UTC()
	err := g.db.WithContext(ctx).Clauses(clause.OnConflict{
		Columns: []clause.Column{{Name: "id"}},
		DoUpdates: clause.AssignmentColumns([]string{
			"handle", "display_name", "pfp_url", "follower_count", "following_count",
			"has_badge", "reputation_score", "updated_at",
		}),
	}).Create(&p).Error
	if err != nil {
		return fmt.Errorf("upsert profile %d: %w", p.ID, translate(err))
	}
	return nil
}

// CreateProfileIfAbsent implements Store.
func (g *GormStore) CreateProfileIfAbsent(ctx context.Context, p model.CreatorProfile) (bool, error) {
	res := g.db.WithContext(ctx).Clauses(clause.OnConflict{DoNothing: true}).Create(&p)
	if res.Error != nil {
		return false, fmt.Errorf("create profile %d: %w", p.ID, translate(res.Error))
	}
	return res.RowsAffected > 0, nil
}

// Profile implements Store.
func (g *GormStore) Profile(ctx context.Context, id int64) (model.CreatorProfile, error) {
	var p model.CreatorProfile
	if err := g.db.WithContext(ctx).Take(&p, "id = ?", id).Error; err != nil {
		return model.CreatorProfile{}, fmt.Errorf("profile %d: %w", id, translate(err))
	}
	return p, nil
}

// Profiles implements Store.
func (g *GormStore) Profiles(ctx context.Context, ids []int64) (map[int64]model.CreatorProfile, error) {
	out := make(map[int64]model.CreatorProfile, len(ids))
	if len(ids) == 0 {
		return out, nil
	}
	var rows []model.CreatorProfile
	if err := g.db.WithContext(ctx).Where("id IN ?", ids).Find(&rows).Error; err != nil {
		return nil, fmt.Errorf("profiles: %w", translate(err))
	}
	for _, p := range rows {
		out[p.ID] = p
	}
	return out, nil
}

// ListCreatorIDs implements Store.
func (g *GormStore) ListCreatorIDs(ctx context.Context) ([]int64, error) {
	var ids []int64
	if err := g.db.WithContext(ctx).Model(&model.CreatorProfile{}).Order("id").Pluck("id", &ids).Error; err != nil {
		return nil, fmt.Errorf("list creators: %w", translate(err))
	}
	return ids, nil
}

// UpsertScore implements Store. The find-then-write runs in one transaction
// so the stored ShareableID survives recomputation.
func (g *GormStore) UpsertScore(ctx context.Context, s model.CreatorScore) (model.CreatorScore, error) {
	defer observe("upsert_score")()
	s.ScoreDate = normalizeDay(s.ScoreDate)
	s.ValidUntil = s.ValidUntil.UTC()

	err := g.db.WithContext(ctx).Transaction(func(tx *gorm.DB) error {
		var existing model.CreatorScore
		err := tx.Where("creator_id = ? AND score_date = ?", s.CreatorID, s.ScoreDate).Take(&existing).Error
		switch {
		case err == nil:
			s.ID = existing.ID
			s.CreatedAt = existing.CreatedAt
			if existing.ShareableID != "" {
				s.ShareableID = existing.ShareableID
			}
			return tx.Save(&s).Error
		case errors.Is(err, gorm.ErrRecordNotFound):
			s.ID = 0
			return tx.Create(&s).Error
		default:
			return err
		}
	})
	if err != nil {
		return model.CreatorScore{}, fmt.Errorf("upsert score %d: %w", s.CreatorID, translate(err))
	}
	return s, nil
}

// FindScore implements Store.
func (g *GormStore) FindScore(ctx context.Context, creatorID int64, day time.Time) (model.CreatorScore, bool, error) {
	var s model.CreatorScore
	err := g.db.WithContext(ctx).
		Where("creator_id = ? AND score_date = ?", creatorID, normalizeDay(day)).
		Take(&s).Error
	if errors.Is(err, gorm.ErrRecordNotFound) {
		return model.CreatorScore{}, false, nil
	}
	if err != nil {
		return model.CreatorScore{}, false, fmt.Errorf("find score %d: %w", creatorID, translate(err))
	}
	return s, true, nil
}

// ScoreByShareableID implements Store.
func (g *GormStore) ScoreByShareableID(ctx context.Context, id string) (model.CreatorScore, error) {
	var s model.CreatorScore
	if err := g.db.WithContext(ctx).Take(&s, "shareable_id = ?", id).Error; err != nil {
		return model.CreatorScore{}, fmt.Errorf("shareable id %q: %w", id, translate(err))
	}
	return s, nil
}

// ShareableIDExists implements Store.
func (g *GormStore) ShareableIDExists(ctx context.Context, id string) (bool, error) {
	var n int64
	if err := g.db.WithContext(ctx).Model(&model.CreatorScore{}).Where("shareable_id = ?", id).Count(&n).Error; err != nil {
		return false, fmt.Errorf("shareable id %q: %w", id, translate(err))
	}
	return n > 0, nil
}

// CountScoresOnDay implements Store.
func (g *GormStore) CountScoresOnDay(ctx context.Context, day time.Time, score float64, exclude int64) (int, int, error) {
	defer observe("count_scores")()
	onDay := func() *gorm.DB {
		return g.db.WithContext(ctx).Model(&model.CreatorScore{}).
			Where("score_date = ? AND creator_id <> ?", normalizeDay(day), exclude)
	}
	var total, below int64
	if err := onDay().Count(&total).Error; err != nil {
		return 0, 0, fmt.Errorf("count scores: %w", translate(err))
	}
	if total == 0 {
		return 0, 0, nil
	}
	if err := onDay().Where("overall_score < ?", score).Count(&below).Error; err != nil {
		return 0, 0, fmt.Errorf("count scores below: %w", translate(err))
	}
	return int(below), int(total), nil
}

const leaderboardOrder = "overall_score DESC, creator_id ASC, score_date DESC"

// TopScoresOnDay implements Store.
func (g *GormStore) TopScoresOnDay(ctx context.Context, day time.Time, limit int) ([]model.CreatorScore, error) {
	if limit < 1 {
		return nil, ErrInvalidLimit
	}
	var rows []model.CreatorScore
	err := g.db.WithContext(ctx).
		Where("score_date = ?", normalizeDay(day)).
		Order(leaderboardOrder).Limit(limit).Find(&rows).Error
	if err != nil {
		return nil, fmt.Errorf("top scores: %w", translate(err))
	}
	return rows, nil
}

// TopScoresSince implements Store.
func (g *GormStore) TopScoresSince(ctx context.Context, since time.Time, limit int) ([]model.CreatorScore, error) {
	if limit < 1 {
		return nil, ErrInvalidLimit
	}
	var rows []model.CreatorScore
	err := g.db.WithContext(ctx).
		Where("score_date >= ?", normalizeDay(since)).
		Order(leaderboardOrder).Limit(limit).Find(&rows).Error
	if err != nil {
		return nil, fmt.Errorf("top scores since: %w", translate(err))
	}
	return rows, nil
}

// ScoresInRange implements Store.
func (g *GormStore) ScoresInRange(ctx context.Context, day time.Time, lo, hi int, exclude int64, limit int) ([]model.CreatorScore, error) {
	if limit < 1 {
		return nil, ErrInvalidLimit
	}
	var rows []model.CreatorScore
	err := g.db.WithContext(ctx).
		Where("score_date = ? AND creator_id <> ? AND overall_score BETWEEN ? AND ?", normalizeDay(day), exclude, lo, hi).
		Order(leaderboardOrder).Limit(limit).Find(&rows).Error
	if err != nil {
		return nil, fmt.Errorf("scores in range: %w", translate(err))
	}
	return rows, nil
}

// JoinWaitlist implements Store.
func (g *GormStore) JoinWaitlist(ctx context.Context, creatorID int64, email string, at time.Time) (model.WaitlistEntry, bool, error) {
	var (
		entry   model.WaitlistEntry
		created bool
	)
	err := g.db.WithContext(ctx).Transaction(func(tx *gorm.DB) error {
		err := tx.Take(&entry, "creator_id = ?", creatorID).Error
		if err == nil {
			return nil
		}
		if !errors.Is(err, gorm.ErrRecordNotFound) {
			return err
		}
		var n int64
		if err := tx.Model(&model.WaitlistEntry{}).Count(&n).Error; err != nil {
			return err
		}
		entry = model.WaitlistEntry{
			CreatorID: creatorID,
			Email:     email,
			Position:  int(n) + 1,
			JoinedAt:  at.UTC(),
		}
		created = true
		return tx.Create(&entry).Error
	})
	if err != nil {
		return model.WaitlistEntry{}, false, fmt.Errorf("join waitlist %d: %w", creatorID, translate(err))
	}
	return entry, created, nil
}

// WaitlistEntry implements Store.
func (g *GormStore) WaitlistEntry(ctx context.Context, creatorID int64) (model.WaitlistEntry, error) {
	var e model.WaitlistEntry
	if err := g.db.WithContext(ctx).Take(&e, "creator_id = ?", creatorID).Error; err != nil {
		return model.WaitlistEntry{}, fmt.Errorf("waitlist %d: %w", creatorID, translate(err))
	}
	return e, nil
}

// WaitlistCount implements Store.
func (g *GormStore) WaitlistCount(ctx context.Context) (int, error) {
	var n int64
	if err := g.db.WithContext(ctx).Model(&model.WaitlistEntry{}).Count(&n).Error; err != nil {
		return 0, fmt.Errorf("waitlist count: %w", translate(err))
	}
	return int(n), nil
}

// Close implements Store.
func (g *GormStore) Close() error {
	sqlDB, err := g.db.DB()
	if err != nil {
		return err
	}
	return sqlDB.Close()
}
