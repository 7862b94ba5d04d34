package testevents

import (
	"context"
	"crypto/rand"
	"encoding/hex"
	"fmt"
	"math/big"

	"github.com/google/uuid"

	"github.com/okian/somurie/pkg/logger"
)

// Event mix, out of mixScale: casts are the most common delivery.
const (
	mixScale    = 10
	castShare   = 6
	reactShare  = 3
	hashBytes   = 20
	randDivisor = 1000000
)

// Event types the generator emits.
const (
	TypeCastCreated     = "cast.created"
	TypeReactionCreated = "reaction.created"
	TypeFollowCreated   = "follow.created"
)

func randInt(n int64) int64 {
	v, err := rand.Int(rand.Reader, big.NewInt(n))
	if err != nil {
		return 0
	}
	return v.Int64()
}

func randFloat() float64 {
	return float64(randInt(randDivisor)) / randDivisor
}

func randHash() string {
	b := make([]byte, hashBytes)
	_, _ = rand.Read(b)
	return "0x" + hex.EncodeToString(b)
}

// generateEvents builds cfg.Events distinct deliveries spread over the
// configured creator range.
func generateEvents(ctx context.Context, cfg *Config, stats *Stats) ([]Event, error) {
	log := logger.Get()
	log.Info(ctx, "generating webhook events",
		logger.Int("events", cfg.Events), logger.Int("creators", cfg.Creators))

	events := make([]Event, 0, cfg.Events)
	for i := 0; i < cfg.Events; i++ {
		if err := ctx.Err(); err != nil {
			return nil, fmt.Errorf("generating event %d: %w", i, err)
		}
		events = append(events, generateSingleEvent(cfg))
	}

	stats.EventsGenerated = len(events)
	stats.CreatorsTouched = len(touchedCreators(events))
	log.Info(ctx, "generated events", logger.Int("count", len(events)),
		logger.Int("creators", stats.CreatorsTouched))
	return events, nil
}

func generateSingleEvent(cfg *Config) Event {
	pick := func() int64 { return cfg.FirstFID + randInt(int64(cfg.Creators)) }
	ev := Event{ID: uuid.NewString()}

	switch roll := randInt(mixScale); {
	case roll < castShare:
		ev.Type = TypeCastCreated
		ev.Data = EventData{FID: pick(), Hash: randHash()}
	case roll < castShare+reactShare:
		ev.Type = TypeReactionCreated
		ev.Data = EventData{CastAuthorFID: pick(), Hash: randHash()}
	default:
		ev.Type = TypeFollowCreated
		from, to := pick(), pick()
		if from == to && cfg.Creators > 1 {
			to = cfg.FirstFID + (to-cfg.FirstFID+1)%int64(cfg.Creators)
		}
		ev.Data = EventData{FID: from, TargetFID: to}
	}
	return ev
}

// deliveries expands events into the send order, repeating a share of them
// the way a provider redelivers on timeouts.
func deliveries(events []Event, share float64) ([]Event, int) {
	out := make([]Event, 0, len(events))
	repeats := 0
	for _, ev := range events {
		out = append(out, ev)
		if share > 0 && randFloat() < share {
			out = append(out, ev)
			repeats++
		}
	}
	return out, repeats
}

func touchedCreators(events []Event) map[int64]struct{} {
	set := make(map[int64]struct{})
	for _, ev := range events {
		for _, fid := range ev.Touched() {
			set[fid] = struct{}{}
		}
	}
	return set
}
