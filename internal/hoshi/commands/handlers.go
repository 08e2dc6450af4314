package commands

import (
	"context"
	"fmt"
	"html"
	"strconv"
	"strings"
	"time"

	"github.com/igorvasilek/hoshi/common/trace"
	"github.com/igorvasilek/hoshi/internal/hoshi/access"
	"github.com/igorvasilek/hoshi/internal/hoshi/apperr"
	"github.com/igorvasilek/hoshi/internal/hoshi/audit"
	"github.com/igorvasilek/hoshi/internal/hoshi/llm"
	"github.com/igorvasilek/hoshi/internal/hoshi/logging"
	"github.com/igorvasilek/hoshi/internal/hoshi/session"
	"github.com/igorvasilek/hoshi/internal/hoshi/store"
)

const (
	defaultFeedbackInterval = 30 * time.Second
	defaultImagineInterval  = 30 * time.Second
	defaultImagineTimeout   = 60 * time.Second

	// imagineCaptionRunes keeps "🎨 " plus the escaped prompt under
	// Telegram's 1024-rune caption limit.
	imagineCaptionRunes = 1000
)

// Store is the persistence the handlers need.
type Store interface {
	ClearHistory(ctx context.Context, chatID int64) error
	ClearAllHistory(ctx context.Context) error
	Stats(ctx context.Context) (store.Stats, error)
	WriteAudit(ctx context.Context, traceID string, actorID int64, action, target, result string, payload store.AuditPayload, errorMsg string) error
	AuditLog(ctx context.Context, limit int) ([]*store.AuditEntry, error)
}

// Gate is the authorization gate as seen by the handlers.
type Gate interface {
	CapabilityChecker
	IsBlacklisted(userID int64) bool
	Admins() []int64
	Blacklist() []int64
	Promote(ctx context.Context, actor, target int64) error
	Demote(ctx context.Context, actor, target int64) error
	Block(ctx context.Context, actor, target int64) error
	Unblock(ctx context.Context, actor, target int64) error
}

// Limiter is the rate limiter as seen by the handlers.
type Limiter interface {
	Allow(key string, minInterval time.Duration) bool
}

// Config tunes the handlers. Zero durations take package defaults.
type Config struct {
	// FeedbackChatID receives feedback; 0 sends it to every admin.
	FeedbackChatID   int64
	LogDir           string
	StartedAt        time.Time
	Version          string
	FeedbackInterval time.Duration
	ImagineInterval  time.Duration
	ImagineTimeout   time.Duration
	// Secrets are stripped from diagnostics shown to users.
	Secrets []string
}

// Deps are the collaborators of the handlers.
type Deps struct {
	Store     Store
	Gate      Gate
	Sessions  *session.Machine
	Limiter   Limiter
	Messenger Messenger
	Notifier  audit.Notifier
	Images    llm.ImageGenerator
	// Stop requests a graceful shutdown of the process.
	Stop func()
	// Now defaults to time.Now.
	Now func() time.Time
}

// Handlers implements every command and the pending-input workflows.
type Handlers struct {
	cfg Config
	Deps
	routes []Route
}

// New returns Handlers wired to deps.
func New(cfg Config, deps Deps) *Handlers {
	if cfg.FeedbackInterval <= 0 {
		cfg.FeedbackInterval = defaultFeedbackInterval
	}
	if cfg.ImagineInterval <= 0 {
		cfg.ImagineInterval = defaultImagineInterval
	}
	if cfg.ImagineTimeout <= 0 {
		cfg.ImagineTimeout = defaultImagineTimeout
	}
	if cfg.StartedAt.IsZero() {
		cfg.StartedAt = time.Now()
	}
	if deps.Notifier == nil {
		deps.Notifier = audit.Noop{}
	}
	if deps.Now == nil {
		deps.Now = time.Now
	}
	if deps.Stop == nil {
		deps.Stop = func() {}
	}

	h := &Handlers{cfg: cfg, Deps: deps}
	h.routes = []Route{
		{Name: "start", Handler: h.handleStart, Help: "greeting"},
		{Name: "help", Handler: h.handleHelp, Help: "this message"},
		{Name: "mode", Handler: h.handleMode, Help: "switch between AI chat and feedback"},
		{Name: "cancel", Handler: h.handleCancel, Help: "abandon the pending action"},
		{Name: "clear", Handler: h.handleClear, Help: "forget our conversation"},
		{Name: "uptime", Handler: h.handleUptime, Help: "uptime, ping and version"},
		{Name: "imagine", Usage: "<prompt>", Handler: h.handleImagine, Help: "generate an image"},

		{Name: "ap", Access: AdminOnly, Handler: h.handleAdminPanel, Help: "admin panel"},
		{Name: "stats", Access: AdminOnly, Handler: h.handleStats, Help: "users and messages"},
		{Name: "clearall", Access: AdminOnly, Handler: h.handleClearAll, Help: "clear every chat's history"},
		{Name: "logs", Access: AdminOnly, Handler: h.handleLogs, Help: "current log file"},
		{Name: "stop", Access: AdminOnly, Handler: h.handleStop, Help: "stop the bot"},
		{Name: "reply", Access: AdminOnly, Usage: "<id>", Handler: h.handleReply, Help: "answer a user"},
		{Name: "block", Access: AdminOnly, Usage: "<id>", Handler: h.handleBlock, Help: "bar a user from feedback"},
		{Name: "unblock", Access: AdminOnly, Usage: "<id>", Handler: h.handleUnblock, Help: "lift a feedback ban"},
		{Name: "addadmin", Access: AdminOnly, Usage: "[id]", Handler: h.handleAddAdmin, Help: "promote a user"},
		{Name: "removeadmin", Access: AdminOnly, Usage: "[id]", Handler: h.handleRemoveAdmin, Help: "demote an admin"},
		{Name: "admins", Access: AdminOnly, Handler: h.handleAdmins, Help: "list admins"},
		{Name: "audit", Access: AdminOnly, Usage: "[n]", Handler: h.handleAudit, Help: "recent admin actions"},
	}
	return h
}

// Routes returns the command table.
func (h *Handlers) Routes() []Route {
	return h.routes
}

// --- everyone ---

func (h *Handlers) handleStart(ctx context.Context, cmd *Command, msg *Message) (*Reply, error) {
	var b strings.Builder
	fmt.Fprintf(&b, "Hi %s! I'm Hoshi, your personal assistant.\n", mention(msg))
	b.WriteString("Send me a message or a photo and I'll answer. Use /mode to send feedback to the operators, /help for everything else.")
	if h.Gate.CapabilityOf(msg.UserID) == access.Admin {
		b.WriteString("\n\nGlad to see you, master 😊")
	}
	fmt.Fprintf(&b, "\n\n<i>Version: %s</i>", html.EscapeString(h.cfg.Version))
	return Text(b.String()), nil
}

func (h *Handlers) handleHelp(ctx context.Context, cmd *Command, msg *Message) (*Reply, error) {
	isAdmin := h.Gate.CapabilityOf(msg.UserID) == access.Admin

	var b strings.Builder
	b.WriteString("<b>Commands</b>\n")
	writeRoutes(&b, h.routes, Anyone)
	if isAdmin {
		b.WriteString("\n<b>Admin</b>\n")
		writeRoutes(&b, h.routes, AdminOnly)
	}
	return Text(strings.TrimRight(b.String(), "\n")), nil
}

func writeRoutes(b *strings.Builder, routes []Route, acc Access) {
	for _, rt := range routes {
		if rt.Access != acc {
			continue
		}
		b.WriteString("/" + rt.Name)
		if rt.Usage != "" {
			b.WriteString(" " + html.EscapeString(rt.Usage))
		}
		b.WriteString(" - " + rt.Help + "\n")
	}
}

func (h *Handlers) handleMode(ctx context.Context, cmd *Command, msg *Message) (*Reply, error) {
	blacklisted := h.Gate.CapabilityOf(msg.UserID) == access.Blacklisted
	st, err := h.Sessions.Toggle(msg.ChatID, blacklisted)
	if err != nil {
		logging.WithTrace(ctx).Debug("feedback mode refused", "user_id", msg.UserID)
		return Text("🚫 You can't send feedback."), nil
	}
	if st.Mode == session.ModeFeedback {
		return Text("🔄 Mode: 📝 <b>Feedback</b>\nYour next message goes to the operators. /cancel to go back."), nil
	}
	return Text("🔄 Mode: 🤖 <b>AI chat</b>"), nil
}

func (h *Handlers) handleCancel(ctx context.Context, cmd *Command, msg *Message) (*Reply, error) {
	if h.Sessions.Cancel(msg.ChatID) {
		return Text("Cancelled. Back to 🤖 <b>AI chat</b>."), nil
	}
	return Text("Nothing to cancel."), nil
}

func (h *Handlers) handleClear(ctx context.Context, cmd *Command, msg *Message) (*Reply, error) {
	if err := h.Store.ClearHistory(ctx, msg.ChatID); err != nil {
		return nil, err
	}
	return Text("🧽 Our conversation is forgotten."), nil
}

func (h *Handlers) handleUptime(ctx context.Context, cmd *Command, msg *Message) (*Reply, error) {
	now := h.Now()
	var ping string
	if rtt, err := h.Messenger.Ping(ctx); err != nil {
		ping = "error"
		logging.WithTrace(ctx).Warn("ping failed", "err", err)
	} else {
		ping = fmt.Sprintf("%d ms", rtt.Milliseconds())
	}

	text := fmt.Sprintf("🤖 <b>Uptime</b>\n"+
		"• Started: <code>%s UTC</code>\n"+
		"• Uptime: <code>%s</code>\n\n"+
		"🌐 <b>Ping</b>\n"+
		"• Telegram API RTT: <code>%s</code>\n\n"+
		"• Version: %s",
		h.cfg.StartedAt.UTC().Format("2006-01-02 15:04:05"),
		FormatUptime(now.Sub(h.cfg.StartedAt)),
		ping,
		html.EscapeString(h.cfg.Version),
	)
	return Text(text), nil
}

func (h *Handlers) handleImagine(ctx context.Context, cmd *Command, msg *Message) (*Reply, error) {
	prompt := strings.TrimSpace(cmd.Rest())
	if prompt == "" {
		return nil, apperr.Validation("Usage: /imagine &lt;prompt&gt;")
	}
	if h.Images == nil {
		return nil, apperr.Validation("Image generation is not configured.")
	}
	if !h.Limiter.Allow(imagineKey(msg.UserID), h.cfg.ImagineInterval) {
		return nil, apperr.ErrRateLimited
	}

	callCtx, cancel := context.WithTimeout(ctx, h.cfg.ImagineTimeout)
	defer cancel()

	img, err := h.Images.Generate(callCtx, prompt)
	if err != nil {
		return nil, backendError(err, h.cfg.Secrets)
	}
	return &Reply{Photo: img, Text: "🎨 " + escapeWithin(prompt, imagineCaptionRunes)}, nil
}

// --- helpers ---

func (h *Handlers) isAdmin(userID int64) bool {
	return h.Gate.CapabilityOf(userID) == access.Admin
}

// record writes an audit entry for an admin action and, on success, posts an
// operator notice. Audit failures are logged, never returned.
func (h *Handlers) record(ctx context.Context, msg *Message, kind audit.Kind, target int64, message string, err error) {
	result, errMsg := "success", ""
	if err != nil {
		result, errMsg = "error", err.Error()
	}
	targetStr := ""
	if target != 0 {
		targetStr = strconv.FormatInt(target, 10)
	}

	if werr := h.Store.WriteAudit(ctx, trace.FromContext(ctx), msg.UserID, string(kind), targetStr, result, nil, errMsg); werr != nil {
		logging.WithTrace(ctx).Error("write audit failed", "action", kind, "err", werr)
	}
	if err == nil {
		h.Notifier.Notify(ctx, audit.Event{Kind: kind, Actor: msg.UserID, Target: targetStr, Message: message})
	}
}

func parseUserID(s string) (int64, error) {
	id, err := strconv.ParseInt(strings.TrimSpace(s), 10, 64)
	if err != nil || id <= 0 {
		return 0, apperr.Validation("User id must be a positive number, got <code>%s</code>.", html.EscapeString(truncate(s, 32)))
	}
	return id, nil
}

func requireUserID(cmd *Command) (int64, error) {
	arg, ok := cmd.Arg(0)
	if !ok {
		return 0, apperr.Validation("Usage: /%s &lt;user id&gt;", cmd.Name)
	}
	return parseUserID(arg)
}
