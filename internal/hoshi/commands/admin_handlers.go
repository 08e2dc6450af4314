package commands

import (
	"context"
	"fmt"
	"html"
	"strconv"
	"strings"

	"github.com/igorvasilek/hoshi/internal/hoshi/apperr"
	"github.com/igorvasilek/hoshi/internal/hoshi/audit"
	"github.com/igorvasilek/hoshi/internal/hoshi/logging"
	"github.com/igorvasilek/hoshi/internal/hoshi/session"
)

const (
	defaultAuditTail = 10
	maxAuditTail     = 50
)

func (h *Handlers) handleAdminPanel(ctx context.Context, cmd *Command, msg *Message) (*Reply, error) {
	return &Reply{
		Text: "🛠 <b>Admin panel</b>",
		Keyboard: [][]Button{
			{{Text: "📊 Stats", Data: "/stats"}, {Text: "👥 Admins", Data: "/admins"}},
			{{Text: "🧽 Clear memory for all", Data: "/clearall"}, {Text: "📜 Audit", Data: "/audit"}},
			{{Text: "📂 Logs", Data: "/logs"}, {Text: "🛑 Stop bot", Data: "/stop"}},
		},
	}, nil
}

func (h *Handlers) handleStats(ctx context.Context, cmd *Command, msg *Message) (*Reply, error) {
	st, err := h.Store.Stats(ctx)
	if err != nil {
		return nil, err
	}
	return Text(fmt.Sprintf("📊 <b>Stats</b>\n• Users: <code>%d</code>\n• Messages: <code>%d</code>", st.Users, st.Turns)), nil
}

func (h *Handlers) handleClearAll(ctx context.Context, cmd *Command, msg *Message) (*Reply, error) {
	if arg, _ := cmd.Arg(0); arg != "confirm" {
		return &Reply{
			Text: "⚠️ This deletes the conversation history of <b>every</b> user. Continue?",
			Keyboard: [][]Button{
				{{Text: "Yes, clear everything", Data: "/clearall confirm"}, {Text: "No", Data: "/cancel"}},
			},
		}, nil
	}

	err := h.Store.ClearAllHistory(ctx)
	h.record(ctx, msg, audit.KindHistoryCleared, 0, "all conversation history cleared", err)
	if err != nil {
		return nil, err
	}
	return Text("🧽 Memory cleared for everyone."), nil
}

func (h *Handlers) handleLogs(ctx context.Context, cmd *Command, msg *Message) (*Reply, error) {
	path := logging.CurrentFile()
	if path == "" && h.cfg.LogDir != "" {
		latest, err := logging.LatestLog(h.cfg.LogDir)
		if err == nil {
			path = latest
		}
	}
	if path == "" {
		return Text("❌ No log file found."), nil
	}
	return &Reply{Document: path, Text: "📂 Current log"}, nil
}

func (h *Handlers) handleStop(ctx context.Context, cmd *Command, msg *Message) (*Reply, error) {
	h.record(ctx, msg, audit.KindStopping, 0, "shutdown requested", nil)
	return &Reply{Text: "🛑 Stopping bot…", After: h.Stop}, nil
}

func (h *Handlers) handleReply(ctx context.Context, cmd *Command, msg *Message) (*Reply, error) {
	target, err := requireUserID(cmd)
	if err != nil {
		return nil, err
	}
	h.Sessions.BeginReply(msg.ChatID, target)
	return Text(fmt.Sprintf("✍️ Send your reply to <code>%d</code>. /cancel to abort.", target)), nil
}

func (h *Handlers) handleBlock(ctx context.Context, cmd *Command, msg *Message) (*Reply, error) {
	target, err := requireUserID(cmd)
	if err != nil {
		return nil, err
	}
	err = h.Gate.Block(ctx, msg.UserID, target)
	h.record(ctx, msg, audit.KindUserBlocked, target, "blocked from feedback", err)
	if err != nil {
		return nil, err
	}
	return Text(fmt.Sprintf("🚫 User <code>%d</code> can no longer send feedback.", target)), nil
}

func (h *Handlers) handleUnblock(ctx context.Context, cmd *Command, msg *Message) (*Reply, error) {
	target, err := requireUserID(cmd)
	if err != nil {
		return nil, err
	}
	err = h.Gate.Unblock(ctx, msg.UserID, target)
	h.record(ctx, msg, audit.KindUserUnblocked, target, "feedback ban lifted", err)
	if err != nil {
		return nil, err
	}
	return Text(fmt.Sprintf("✅ User <code>%d</code> can send feedback again.", target)), nil
}

func (h *Handlers) handleAddAdmin(ctx context.Context, cmd *Command, msg *Message) (*Reply, error) {
	arg, ok := cmd.Arg(0)
	if !ok {
		h.Sessions.BeginAdminInput(msg.ChatID, session.AdminAdd)
		return Text("⭐ Send the id of the user to promote. /cancel to abort."), nil
	}
	target, err := parseUserID(arg)
	if err != nil {
		return nil, err
	}
	return h.promote(ctx, msg, target)
}

func (h *Handlers) handleRemoveAdmin(ctx context.Context, cmd *Command, msg *Message) (*Reply, error) {
	arg, ok := cmd.Arg(0)
	if !ok {
		h.Sessions.BeginAdminInput(msg.ChatID, session.AdminRemove)
		return Text("➖ Send the id of the admin to remove. /cancel to abort."), nil
	}
	target, err := parseUserID(arg)
	if err != nil {
		return nil, err
	}
	return h.demote(ctx, msg, target)
}

func (h *Handlers) promote(ctx context.Context, msg *Message, target int64) (*Reply, error) {
	err := h.Gate.Promote(ctx, msg.UserID, target)
	h.record(ctx, msg, audit.KindAdminAdded, target, "promoted to admin", err)
	if err != nil {
		return nil, err
	}
	return Text(fmt.Sprintf("⭐ User <code>%d</code> is now an admin.", target)), nil
}

func (h *Handlers) demote(ctx context.Context, msg *Message, target int64) (*Reply, error) {
	err := h.Gate.Demote(ctx, msg.UserID, target)
	h.record(ctx, msg, audit.KindAdminRemoved, target, "removed from admins", err)
	if err != nil {
		return nil, err
	}
	return Text(fmt.Sprintf("➖ User <code>%d</code> is no longer an admin.", target)), nil
}

func (h *Handlers) handleAdmins(ctx context.Context, cmd *Command, msg *Message) (*Reply, error) {
	var b strings.Builder
	b.WriteString("👥 <b>Admins</b>\n")
	for _, id := range h.Gate.Admins() {
		fmt.Fprintf(&b, "• <code>%d</code>", id)
		if id == msg.UserID {
			b.WriteString(" (you)")
		}
		b.WriteString("\n")
	}
	fmt.Fprintf(&b, "\n🚫 Blocked from feedback: <code>%d</code>", len(h.Gate.Blacklist()))
	return Text(b.String()), nil
}

func (h *Handlers) handleAudit(ctx context.Context, cmd *Command, msg *Message) (*Reply, error) {
	n := defaultAuditTail
	if arg, ok := cmd.Arg(0); ok {
		v, err := strconv.Atoi(arg)
		if err != nil || v <= 0 {
			return nil, apperr.Validation("Usage: /audit [n]")
		}
		n = v
	}
	if n > maxAuditTail {
		n = maxAuditTail
	}

	entries, err := h.Store.AuditLog(ctx, n)
	if err != nil {
		return nil, err
	}
	if len(entries) == 0 {
		return Text("📜 The audit log is empty."), nil
	}

	var b strings.Builder
	b.WriteString("📜 <b>Audit</b>\n")
	for _, e := range entries {
		icon := "✅"
		if e.Result != "success" {
			icon = "❌"
		}
		fmt.Fprintf(&b, "%s <code>%s</code> %s by <code>%d</code>",
			icon, e.Timestamp.UTC().Format("01-02 15:04"), html.EscapeString(e.Action), e.ActorID)
		if e.Target.Valid {
			fmt.Fprintf(&b, " → <code>%s</code>", html.EscapeString(e.Target.String))
		}
		if e.ErrorMessage.Valid {
			fmt.Fprintf(&b, "\n    <i>%s</i>", html.EscapeString(truncate(e.ErrorMessage.String, 120)))
		}
		b.WriteString("\n")
	}
	return Text(strings.TrimRight(b.String(), "\n")), nil
}
