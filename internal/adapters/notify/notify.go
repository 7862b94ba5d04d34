// Package notify delivers score notifications to external sinks.
package notify

import (
	"context"
	"errors"
	"fmt"

	"github.com/okian/somurie/pkg/logger"
	"github.com/okian/somurie/pkg/metrics"
)

// Notification is the payload sent to every sink.
type Notification struct {
	TargetID  int64  `json:"targetFid"`
	Title     string `json:"title"`
	Body      string `json:"body"`
	ActionURL string `json:"targetUrl"`
}

// Notifier delivers notifications to one destination.
type Notifier interface {
	Name() string
	Send(ctx context.Context, n Notification) error
}

// Manager broadcasts notifications to all registered notifiers.
type Manager struct {
	notifiers []Notifier
}

// NewManager creates a manager. Nil notifiers are skipped.
func NewManager(notifiers ...Notifier) *Manager {
	m := &Manager{}
	for _, n := range notifiers {
		if n != nil {
			m.notifiers = append(m.notifiers, n)
		}
	}
	return m
}

// HasNotifiers returns true if at least one notifier is configured.
func (m *Manager) HasNotifiers() bool {
	return len(m.notifiers) > 0
}

// Names lists the configured notifiers in order.
func (m *Manager) Names() []string {
	names := make([]string, 0, len(m.notifiers))
	for _, n := range m.notifiers {
		names = append(names, n.Name())
	}
	return names
}

// Broadcast sends n to every notifier. One failing sink does not stop the
// others; their errors are joined.
func (m *Manager) Broadcast(ctx context.Context, n Notification) error {
	var errs []error
	for _, notifier := range m.notifiers {
		if err := notifier.Send(ctx, n); err != nil {
			metrics.RecordNotification(notifier.Name(), "error")
			errs = append(errs, fmt.Errorf("%s: %w", notifier.Name(), err))
			continue
		}
		metrics.RecordNotification(notifier.Name(), "ok")
	}
	return errors.Join(errs...)
}

// LogNotifier writes notifications to a logger. It is the sink used when no
// external destination is configured.
type LogNotifier struct {
	log logger.Logger
}

// NewLogNotifier creates a notifier that logs through l.
func NewLogNotifier(l logger.Logger) *LogNotifier {
	if l == nil {
		l = logger.Nop()
	}
	return &LogNotifier{log: l}
}

func (l *LogNotifier) Name() string { return "log" }

func (l *LogNotifier) Send(ctx context.Context, n Notification) error {
	l.log.Info(ctx, "notification",
		logger.Int64("fid", n.TargetID),
		logger.String("title", n.Title),
		logger.String("body", n.Body),
		logger.String("url", n.ActionURL),
	)
	return nil
}
