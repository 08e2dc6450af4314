package commands

import (
	"context"
	"fmt"
	"html"
	"strings"

	"github.com/igorvasilek/hoshi/internal/hoshi/access"
	"github.com/igorvasilek/hoshi/internal/hoshi/apperr"
	"github.com/igorvasilek/hoshi/internal/hoshi/audit"
	"github.com/igorvasilek/hoshi/internal/hoshi/logging"
	"github.com/igorvasilek/hoshi/internal/hoshi/session"
)

const maxForwardRunes = 3500

// HandleInput runs the workflow armed by st for one free-text message. st
// must already have been consumed from the session machine, so the input is
// handled exactly once whatever the outcome.
func (h *Handlers) HandleInput(ctx context.Context, msg *Message, st session.State) (*Reply, error) {
	switch st.Mode {
	case session.ModeFeedback:
		return h.submitFeedback(ctx, msg)
	case session.ModeAwaitingReply:
		return h.deliverReply(ctx, msg, st.Target)
	case session.ModeAwaitingAdminInput:
		return h.applyAdminInput(ctx, msg, st.Op)
	default:
		return nil, fmt.Errorf("no workflow for state %s", st)
	}
}

func (h *Handlers) submitFeedback(ctx context.Context, msg *Message) (*Reply, error) {
	text := strings.TrimSpace(msg.Text)
	if text == "" {
		return nil, apperr.New(apperr.KindUnsupportedInput, "Feedback must be text.")
	}
	// The user may have been blocked after entering feedback mode.
	if h.Gate.CapabilityOf(msg.UserID) == access.Blacklisted {
		return Text("🚫 You can't send feedback."), nil
	}
	if !h.Limiter.Allow(feedbackKey(msg.UserID), h.cfg.FeedbackInterval) {
		return nil, apperr.ErrRateLimited
	}

	fwd := &Reply{
		Text: "📨 <b>Feedback</b> from " + senderLine(msg) + "\n\n" + html.EscapeString(truncate(text, maxForwardRunes)),
		Keyboard: [][]Button{{
			{Text: "✍️ Reply", Data: fmt.Sprintf("/reply %d", msg.UserID)},
			{Text: "🚫 Block", Data: fmt.Sprintf("/block %d", msg.UserID)},
		}},
	}

	delivered := 0
	for _, chatID := range h.feedbackTargets() {
		if err := h.Messenger.Send(ctx, chatID, fwd); err != nil {
			logging.WithTrace(ctx).Warn("feedback forward failed", "from", msg.UserID, "to", chatID, "err", err)
			h.Notifier.Notify(ctx, audit.Event{
				Kind:    audit.KindFeedbackDropped,
				Actor:   msg.UserID,
				Target:  fmt.Sprintf("%d", chatID),
				Message: "feedback could not be forwarded: " + err.Error(),
			})
			continue
		}
		delivered++
	}

	if delivered == 0 {
		return Text("⚠️ Your feedback could not be delivered right now. Please try again later."), nil
	}
	return Text("✅ Thanks! Your feedback was sent to the operators."), nil
}

func (h *Handlers) feedbackTargets() []int64 {
	if h.cfg.FeedbackChatID != 0 {
		return []int64{h.cfg.FeedbackChatID}
	}
	return h.Gate.Admins()
}

func (h *Handlers) deliverReply(ctx context.Context, msg *Message, target int64) (*Reply, error) {
	if !h.isAdmin(msg.UserID) {
		return nil, apperr.ErrPermissionDenied
	}
	text := strings.TrimSpace(msg.Text)
	if text == "" {
		return nil, apperr.Validation("A reply must be text. Use /reply %d to try again.", target)
	}

	out := Text("💬 <b>Reply from the operators</b>\n\n" + html.EscapeString(truncate(text, maxForwardRunes)))
	if err := h.Messenger.Send(ctx, target, out); err != nil {
		logging.WithTrace(ctx).Warn("reply delivery failed", "to", target, "err", err)
		h.record(ctx, msg, audit.KindReplySent, target, "operator reply", err)
		return Text(fmt.Sprintf("⚠️ Could not deliver the reply to <code>%d</code>. They may have blocked the bot.", target)), nil
	}
	h.record(ctx, msg, audit.KindReplySent, target, "operator reply delivered", nil)
	return Text("✅ Reply delivered."), nil
}

func (h *Handlers) applyAdminInput(ctx context.Context, msg *Message, op session.AdminOp) (*Reply, error) {
	if !h.isAdmin(msg.UserID) {
		return nil, apperr.ErrPermissionDenied
	}
	target, err := parseUserID(msg.Text)
	if err != nil {
		return nil, err
	}
	switch op {
	case session.AdminAdd:
		return h.promote(ctx, msg, target)
	case session.AdminRemove:
		return h.demote(ctx, msg, target)
	default:
		return nil, fmt.Errorf("unknown admin operation %q", op)
	}
}
