// Package testevents replays synthetic provider webhooks against a running
// server and checks that the scheduler turned them into scores.
package testevents

import "time"

// Defaults for a replay run.
const (
	DefaultBaseURL   = "http://localhost:4000"
	DefaultEvents    = 200
	DefaultCreators  = 20
	DefaultFirstFID  = 1
	DefaultTopN      = 10
	DefaultTimeout   = 15 * time.Second
	DefaultSettle    = 2 * time.Minute
	DefaultRedeliver = 0.1

	webhookPath     = "/api/webhooks/neynar"
	jobsPath        = "/api/jobs"
	healthPath      = "/healthz"
	leaderboardPath = "/api/leaderboard/all"

	signatureHeader = "X-Neynar-Signature"
	pollEvery       = 500 * time.Millisecond
)

// Config holds the settings of one replay run.
type Config struct {
	BaseURL   string
	Events    int     // distinct events to generate
	Creators  int     // creator fids events are spread over
	FirstFID  int64   // lowest fid used
	Workers   int     // concurrent senders
	Redeliver float64 // share of events sent twice
	Secret    string  // signs bodies when set
	Timeout   time.Duration
	Settle    time.Duration // how long to wait for jobs to finish
	TopN      int
}

func (c *Config) normalize() {
	if c.BaseURL == "" {
		c.BaseURL = DefaultBaseURL
	}
	if c.Events <= 0 {
		c.Events = DefaultEvents
	}
	if c.Creators <= 0 {
		c.Creators = DefaultCreators
	}
	if c.FirstFID <= 0 {
		c.FirstFID = DefaultFirstFID
	}
	if c.Workers <= 0 {
		c.Workers = 1
	}
	if c.Redeliver < 0 || c.Redeliver > 1 {
		c.Redeliver = DefaultRedeliver
	}
	if c.Timeout <= 0 {
		c.Timeout = DefaultTimeout
	}
	if c.Settle <= 0 {
		c.Settle = DefaultSettle
	}
	if c.TopN <= 0 {
		c.TopN = DefaultTopN
	}
}

// Event is one webhook delivery in the provider's envelope.
type Event struct {
	ID   string    `json:"id"`
	Type string    `json:"type"`
	Data EventData `json:"data"`
}

// EventData carries the fids an event touches.
type EventData struct {
	FID           int64  `json:"fid,omitempty"`
	TargetFID     int64  `json:"targetFid,omitempty"`
	CastAuthorFID int64  `json:"castAuthorFid,omitempty"`
	Hash          string `json:"hash,omitempty"`
}

// Touched lists the creator fids the server should refresh for e.
func (e Event) Touched() []int64 {
	var out []int64
	for _, fid := range []int64{e.Data.FID, e.Data.TargetFID, e.Data.CastAuthorFID} {
		if fid > 0 {
			out = append(out, fid)
		}
	}
	return out
}

// Job is the subset of a score job the checks read.
type Job struct {
	ID     string `json:"id"`
	FID    int64  `json:"fid"`
	Status string `json:"status"`
	Error  string `json:"error,omitempty"`
}

// Entry is one leaderboard row.
type Entry struct {
	FID          int64  `json:"fid"`
	Username     string `json:"username"`
	OverallScore int    `json:"overallScore"`
	Tier         int    `json:"tier"`
}

// Stats summarizes a run.
type Stats struct {
	EventsGenerated  int           `json:"eventsGenerated"`
	Deliveries       int           `json:"deliveries"`
	Redeliveries     int           `json:"redeliveries"`
	DeliveriesFailed int           `json:"deliveriesFailed"`
	CreatorsTouched  int           `json:"creatorsTouched"`
	JobsCompleted    int           `json:"jobsCompleted"`
	JobsFailed       int           `json:"jobsFailed"`
	JobsPending      int           `json:"jobsPending"`
	LeaderboardSize  int           `json:"leaderboardSize"`
	Duration         time.Duration `json:"duration"`
	DeliveriesPerSec float64       `json:"deliveriesPerSecond"`
}
