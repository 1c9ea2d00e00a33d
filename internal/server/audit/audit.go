// Package audit records authentication events. Events are handed to a
// Dispatcher which forwards them asynchronously to one or more sinks.
package audit

import (
	"context"
	"time"

	"github.com/dmitrijs2005/storefront/internal/logging"
)

// Event types.
const (
	EventLogin           = "login"
	EventRegister        = "register"
	EventRefreshRotated  = "refresh_rotated"
	EventRefreshRejected = "refresh_rejected"
	EventRefreshReused   = "refresh_reused"
	EventLogout          = "logout"
	EventLogoutAll       = "logout_all"
	EventPasswordChanged = "password_changed"
	EventAdminRevoke     = "admin_revoke_sessions"
)

type Event struct {
	Timestamp time.Time         `json:"timestamp"`
	EventType string            `json:"event_type"`
	UserID    string            `json:"user_id,omitempty"`
	TokenID   string            `json:"token_id,omitempty"`
	IP        string            `json:"ip,omitempty"`
	Success   bool              `json:"success"`
	Error     string            `json:"error,omitempty"`
	Metadata  map[string]string `json:"metadata,omitempty"`
}

// Security reports whether the event is a security incident rather than
// routine traffic.
func (e Event) Security() bool {
	return e.EventType == EventRefreshReused
}

// Sink receives dispatched events.
type Sink interface {
	Emit(ctx context.Context, event Event)
}

type NoOpSink struct{}

func (NoOpSink) Emit(context.Context, Event) {}

// MultiSink fans every event out to each sink in order.
type MultiSink []Sink

func (m MultiSink) Emit(ctx context.Context, event Event) {
	for _, s := range m {
		s.Emit(ctx, event)
	}
}

// LogSink writes events to the structured logger. Security events are
// logged at warn level and tagged security_event=true.
type LogSink struct {
	logger logging.Logger
}

func NewLogSink(l logging.Logger) *LogSink {
	return &LogSink{logger: l.With("module", "audit")}
}

func (s *LogSink) Emit(ctx context.Context, e Event) {
	args := []any{
		"event_type", e.EventType,
		"user_id", e.UserID,
		"token_id", e.TokenID,
		"ip", e.IP,
		"success", e.Success,
	}
	if e.Error != "" {
		args = append(args, "error_kind", e.Error)
	}
	for k, v := range e.Metadata {
		args = append(args, k, v)
	}

	if e.Security() {
		s.logger.Warn(ctx, "security event", append(args, "security_event", true)...)
		return
	}
	s.logger.Info(ctx, "audit event", args...)
}
