package testevents

import (
	"bytes"
	"context"
	"crypto/hmac"
	"crypto/sha512"
	"encoding/hex"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"sync"
	"sync/atomic"
	"time"

	"github.com/okian/somurie/pkg/logger"
)

// HTTPClient talks to the server under test.
type HTTPClient struct {
	client  *http.Client
	baseURL string
	secret  string
}

func newHTTPClient(cfg *Config) *HTTPClient {
	return &HTTPClient{
		client:  &http.Client{Timeout: cfg.Timeout},
		baseURL: cfg.BaseURL,
		secret:  cfg.Secret,
	}
}

// envelope mirrors the server's response wrapper.
type envelope struct {
	Success bool            `json:"success"`
	Data    json.RawMessage `json:"data,omitempty"`
	Error   string          `json:"error,omitempty"`
}

// getData fetches path and decodes the envelope's data into v.
func (c *HTTPClient) getData(ctx context.Context, path string, v any) error {
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, c.baseURL+path, nil)
	if err != nil {
		return fmt.Errorf("build request: %w", err)
	}
	resp, err := c.client.Do(req)
	if err != nil {
		return fmt.Errorf("GET %s: %w", path, err)
	}
	body, err := readResponseBody(resp)
	if err != nil {
		return fmt.Errorf("read %s: %w", path, err)
	}
	if resp.StatusCode != http.StatusOK {
		return fmt.Errorf("GET %s: HTTP %d: %s", path, resp.StatusCode, bytes.TrimSpace(body))
	}
	if v == nil {
		return nil
	}
	var env envelope
	if err := json.Unmarshal(body, &env); err != nil {
		return fmt.Errorf("decode %s: %w", path, err)
	}
	if !env.Success {
		return fmt.Errorf("GET %s: %s", path, env.Error)
	}
	if err := json.Unmarshal(env.Data, v); err != nil {
		return fmt.Errorf("decode %s data: %w", path, err)
	}
	return nil
}

// deliver posts one webhook, signed when a secret is configured.
func (c *HTTPClient) deliver(ctx context.Context, ev Event) error {
	body, err := json.Marshal(ev)
	if err != nil {
		return fmt.Errorf("marshal event: %w", err)
	}
	req, err := http.NewRequestWithContext(ctx, http.MethodPost, c.baseURL+webhookPath, bytes.NewReader(body))
	if err != nil {
		return fmt.Errorf("build request: %w", err)
	}
	req.Header.Set("Content-Type", "application/json")
	if c.secret != "" {
		req.Header.Set(signatureHeader, Sign(c.secret, body))
	}
	resp, err := c.client.Do(req)
	if err != nil {
		return err
	}
	_, _ = readResponseBody(resp)
	if resp.StatusCode != http.StatusOK {
		return fmt.Errorf("HTTP %d", resp.StatusCode)
	}
	return nil
}

// Sign returns the hex HMAC-SHA512 of body the server expects.
func Sign(secret string, body []byte) string {
	mac := hmac.New(sha512.New, []byte(secret))
	mac.Write(body)
	return hex.EncodeToString(mac.Sum(nil))
}

func readResponseBody(resp *http.Response) ([]byte, error) {
	defer resp.Body.Close()
	return io.ReadAll(resp.Body)
}

// submitEvents sends the deliveries through cfg.Workers concurrent senders.
func submitEvents(ctx context.Context, cfg *Config, client *HTTPClient, sends []Event, stats *Stats) {
	log := logger.Get()
	log.Info(ctx, "delivering webhooks",
		logger.Int("deliveries", len(sends)), logger.Int("workers", cfg.Workers))

	var sent, failed atomic.Int64
	var lastReport atomic.Int64
	ch := make(chan Event, cfg.Workers*2)

	var wg sync.WaitGroup
	for i := 0; i < cfg.Workers; i++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			for ev := range ch {
				if err := client.deliver(ctx, ev); err != nil {
					failed.Add(1)
					log.Debug(ctx, "delivery failed",
						logger.String("event_id", ev.ID), logger.Error(err))
				}
				n := sent.Add(1)

				now := time.Now().UnixNano()
				last := lastReport.Load()
				if now-last >= int64(time.Second) && lastReport.CompareAndSwap(last, now) {
					log.Info(ctx, "delivery progress",
						logger.Int64("sent", n), logger.Int("total", len(sends)),
						logger.Int64("failed", failed.Load()))
				}
			}
		}()
	}

	func() {
		defer close(ch)
		for _, ev := range sends {
			select {
			case <-ctx.Done():
				return
			case ch <- ev:
			}
		}
	}()
	wg.Wait()

	stats.Deliveries = int(sent.Load())
	stats.DeliveriesFailed = int(failed.Load())
	log.Info(ctx, "deliveries completed",
		logger.Int("sent", stats.Deliveries), logger.Int("failed", stats.DeliveriesFailed))
}
