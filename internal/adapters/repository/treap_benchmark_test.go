package repository

import (
	"context"
	"fmt"
	"math/rand"
	"testing"
	"time"

	"github.com/okian/somurie/internal/domain/model"
)

func seedMemoryStore(b *testing.B, creators int, day time.Time) *MemoryStore {
	b.Helper()
	ctx := context.Background()
	s := NewMemoryStore()
	r := rand.New(rand.NewSource(1))
	for i := 1; i <= creators; i++ {
		_, err := s.UpsertScore(ctx, model.CreatorScore{
			CreatorID:    int64(i),
			OverallScore: r.Intn(101),
			ScoreDate:    day,
			ShareableID:  fmt.Sprintf("share-%d", i),
		})
		if err != nil {
			b.Fatalf("seed: %v", err)
		}
	}
	return s
}

func BenchmarkMemoryStore_UpsertScore(b *testing.B) {
	ctx := context.Background()
	day := model.StartOfDay(time.Now(), time.UTC)
	s := seedMemoryStore(b, 10_000, day)
	r := rand.New(rand.NewSource(2))

	b.ResetTimer()
	for i := 0; i < b.N; i++ {
		id := int64(r.Intn(10_000) + 1)
		if _, err := s.UpsertScore(ctx, model.CreatorScore{CreatorID: id, OverallScore: r.Intn(101), ScoreDate: day}); err != nil {
			b.Fatal(err)
		}
	}
}

func BenchmarkMemoryStore_CountScoresOnDay(b *testing.B) {
	ctx := context.Background()
	day := model.StartOfDay(time.Now(), time.UTC)
	s := seedMemoryStore(b, 100_000, day)

	b.ResetTimer()
	for i := 0; i < b.N; i++ {
		if _, _, err := s.CountScoresOnDay(ctx, day, float64(i%101), 0); err != nil {
			b.Fatal(err)
		}
	}
}

func BenchmarkMemoryStore_TopScoresOnDay(b *testing.B) {
	ctx := context.Background()
	day := model.StartOfDay(time.Now(), time.UTC)
	s := seedMemoryStore(b, 100_000, day)

	b.ResetTimer()
	for i := 0; i < b.N; i++ {
		if _, err := s.TopScoresOnDay(ctx, day, 100); err != nil {
			b.Fatal(err)
		}
	}
}

func BenchmarkMemoryStore_ParallelReads(b *testing.B) {
	ctx := context.Background()
	day := model.StartOfDay(time.Now(), time.UTC)
	s := seedMemoryStore(b, 50_000, day)

	b.RunParallel(func(pb *testing.PB) {
		r := rand.New(rand.NewSource(time.Now().UnixNano()))
		for pb.Next() {
			id := int64(r.Intn(50_000) + 1)
			if _, _, err := s.FindScore(ctx, id, day); err != nil {
				b.Error(err)
				return
			}
		}
	})
}
