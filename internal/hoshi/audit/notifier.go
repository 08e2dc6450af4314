// Package audit provides operator notifications for admin actions.
//
// When a Matrix audit room is configured (MATRIX_AUDIT_ROOM), Hoshi posts a
// short notice for every admin mutation and for failures operators must see,
// such as feedback that could not be forwarded. Without a room the notices
// go to the log.
//
// All events include the originating trace ID so operators can look up the
// full audit entry with /audit.
package audit

import (
	"context"
	"fmt"
	"log/slog"
	"time"

	"github.com/igorvasilek/hoshi/common/trace"
)

// Kind is a machine-readable event category.
type Kind string

const (
	KindStarted         Kind = "bot.started"
	KindStopping        Kind = "bot.stopping"
	KindAdminAdded      Kind = "admin.added"
	KindAdminRemoved    Kind = "admin.removed"
	KindUserBlocked     Kind = "user.blocked"
	KindUserUnblocked   Kind = "user.unblocked"
	KindHistoryCleared  Kind = "history.cleared"
	KindReplySent       Kind = "feedback.replied"
	KindFeedbackDropped Kind = "feedback.dropped"
	KindError           Kind = "error"
)

// Event carries the data that the audit notifier formats and sends.
type Event struct {
	Kind Kind
	// Actor is the Telegram user id that triggered the event; 0 for the bot.
	Actor   int64
	Target  string
	Message string
	// TraceID defaults to the trace carried by the context.
	TraceID string
	// Timestamp defaults to time.Now() when zero.
	Timestamp time.Time
}

// Notifier sends operator notifications.
type Notifier interface {
	// Notify posts an audit event. Send failures are logged, never returned.
	Notify(ctx context.Context, evt Event)
}

// Sender is the subset of the Matrix client needed by MatrixNotifier.
type Sender interface {
	SendNotice(ctx context.Context, roomID, message string) error
}

const sendTimeout = 5 * time.Second

// MatrixNotifier posts formatted notices to a Matrix audit room.
type MatrixNotifier struct {
	sender Sender
	roomID string
}

// NewMatrixNotifier creates a MatrixNotifier that posts to roomID via sender.
func NewMatrixNotifier(sender Sender, roomID string) *MatrixNotifier {
	return &MatrixNotifier{sender: sender, roomID: roomID}
}

// Notify formats evt and posts it to the audit room within a short timeout.
func (n *MatrixNotifier) Notify(ctx context.Context, evt Event) {
	if n.roomID == "" {
		return
	}

	msg := Format(ctx, evt)
	sendCtx, cancel := context.WithTimeout(context.WithoutCancel(ctx), sendTimeout)
	defer cancel()

	if err := n.sender.SendNotice(sendCtx, n.roomID, msg); err != nil {
		slog.Warn("audit notifier: failed to send room notice",
			"room", n.roomID, "kind", evt.Kind, "err", err)
		return
	}
	slog.Debug("audit notifier: sent notice", "room", n.roomID, "kind", evt.Kind)
}

// Log writes events to the default slog logger.
type Log struct{}

// Notify logs evt at info level, or warn for failures.
func (Log) Notify(ctx context.Context, evt Event) {
	tid := evt.TraceID
	if tid == "" {
		tid = trace.FromContext(ctx)
	}
	level := slog.LevelInfo
	if evt.Kind == KindError || evt.Kind == KindFeedbackDropped {
		level = slog.LevelWarn
	}
	slog.Log(ctx, level, "audit: "+evt.Message,
		"kind", evt.Kind, "actor", evt.Actor, "target", evt.Target, "trace_id", tid)
}

// Noop is a no-op Notifier used when audit notifications are disabled.
type Noop struct{}

// Notify does nothing.
func (Noop) Notify(_ context.Context, _ Event) {}

// Format renders evt as a plain-text notice.
func Format(ctx context.Context, evt Event) string {
	tid := evt.TraceID
	if tid == "" {
		tid = trace.FromContext(ctx)
	}

	icon := kindIcon(evt.Kind)
	msg := fmt.Sprintf("%s [%s] %s", icon, evt.Kind, evt.Message)
	if evt.Target != "" {
		msg = fmt.Sprintf("%s %s → %s", icon, evt.Target, evt.Message)
	}
	if tid != "" {
		msg = fmt.Sprintf("%s\n  trace: %s", msg, tid)
	}
	if evt.Actor != 0 {
		msg = fmt.Sprintf("%s\n  actor: %d", msg, evt.Actor)
	}
	return msg
}

func kindIcon(k Kind) string {
	switch k {
	case KindStarted:
		return "🟢"
	case KindStopping:
		return "⏹️"
	case KindAdminAdded:
		return "⭐"
	case KindAdminRemoved:
		return "➖"
	case KindUserBlocked:
		return "🚫"
	case KindUserUnblocked:
		return "✅"
	case KindHistoryCleared:
		return "🗑️"
	case KindReplySent:
		return "💬"
	case KindFeedbackDropped, KindError:
		return "🚨"
	default:
		return "ℹ️"
	}
}
