// Package app wires the Hoshi components together and runs the bot.
package app

import (
	"context"
	"fmt"
	"log/slog"
	"sync"
	"time"

	"github.com/igorvasilek/hoshi/common/version"
	"github.com/igorvasilek/hoshi/internal/hoshi/access"
	"github.com/igorvasilek/hoshi/internal/hoshi/audit"
	"github.com/igorvasilek/hoshi/internal/hoshi/commands"
	"github.com/igorvasilek/hoshi/internal/hoshi/dialogue"
	"github.com/igorvasilek/hoshi/internal/hoshi/llm"
	"github.com/igorvasilek/hoshi/internal/hoshi/matrix"
	"github.com/igorvasilek/hoshi/internal/hoshi/ratelimit"
	"github.com/igorvasilek/hoshi/internal/hoshi/session"
	"github.com/igorvasilek/hoshi/internal/hoshi/store"
	"github.com/igorvasilek/hoshi/internal/hoshi/telegram"
)

// App is the main Hoshi application
type App struct {
	config       *Config
	store        *store.Store
	gate         *access.Gate
	limiter      *ratelimit.Limiter
	sessions     *session.Machine
	bot          *telegram.Bot
	notifier     audit.Notifier
	pipeline     *Pipeline
	healthServer *HealthServer
	startedAt    time.Time

	mu     sync.Mutex
	cancel context.CancelFunc
}

// New creates the application: opens the database, seeds the admins and
// connects to Telegram and, when configured, to Matrix.
func New(config *Config) (*App, error) {
	if err := config.Validate(); err != nil {
		return nil, err
	}
	prof := config.Profile
	secrets := config.Secrets()
	startedAt := time.Now()

	st, err := store.New(config.DatabasePath)
	if err != nil {
		return nil, fmt.Errorf("failed to open database: %w", err)
	}
	slog.Info("database ready", "path", config.DatabasePath)

	a := &App{config: config, store: st, startedAt: startedAt}
	ok := false
	defer func() {
		if !ok {
			st.Close()
		}
	}()

	initCtx, cancel := context.WithTimeout(context.Background(), 30*time.Second)
	defer cancel()

	a.gate, err = access.New(initCtx, st, config.Seeds())
	if err != nil {
		return nil, fmt.Errorf("failed to load access lists: %w", err)
	}
	slog.Info("access lists loaded", "admins", len(a.gate.Admins()), "blacklisted", len(a.gate.Blacklist()))

	a.notifier, err = newNotifier(initCtx, config)
	if err != nil {
		return nil, err
	}

	a.bot, err = telegram.New(telegram.Config{
		Token:         config.BotToken,
		APIEndpoint:   config.TelegramAPIEndpoint,
		Workers:       config.Workers,
		MaxImageBytes: prof.Limits.MaxImageBytes,
	})
	if err != nil {
		return nil, err
	}
	slog.Info("connected to Telegram", "bot", a.bot.Username())

	a.limiter = ratelimit.New()
	a.sessions = session.NewMachine()
	provider := llm.NewOpenAI(config.LLM)

	engine := dialogue.New(dialogue.Config{
		SystemPrompt:    prof.SystemPrompt,
		Model:           config.LLM.Model,
		Temperature:     prof.Model.Temperature,
		MaxTokens:       prof.Model.MaxTokens,
		HistoryTurns:    prof.Limits.HistoryTurns,
		ChatInterval:    prof.Limits.ChatInterval.Std(),
		MaxImageBytes:   prof.Limits.MaxImageBytes,
		ResponseTimeout: prof.Limits.ResponseTimeout.Std(),
		Secrets:         secrets,
	}, st, a.limiter, provider)

	handlers := commands.New(commands.Config{
		FeedbackChatID:   config.FeedbackChatID,
		LogDir:           config.LogDir,
		StartedAt:        startedAt,
		Version:          version.Version,
		FeedbackInterval: prof.Limits.FeedbackInterval.Std(),
		ImagineInterval:  prof.Limits.ImagineInterval.Std(),
		ImagineTimeout:   prof.Limits.ImagineTimeout.Std(),
		Secrets:          secrets,
	}, commands.Deps{
		Store:     st,
		Gate:      a.gate,
		Sessions:  a.sessions,
		Limiter:   a.limiter,
		Messenger: a.bot,
		Notifier:  a.notifier,
		Images:    provider,
		Stop:      a.requestStop,
	})
	router := commands.NewRouter(a.gate)
	router.Register(handlers.Routes()...)

	a.pipeline = &Pipeline{
		Router:          router,
		Inputs:          handlers,
		Sessions:        a.sessions,
		Engine:          engine,
		Limiter:         a.limiter,
		Transport:       a.bot,
		BotName:         a.bot.Username(),
		CommandInterval: prof.Limits.CommandInterval.Std(),
		Secrets:         secrets,
	}

	if config.HTTPAddr != "" {
		a.healthServer = NewHealthServer(config.HTTPAddr, st, startedAt, a.gauges)
	}

	ok = true
	return a, nil
}

func newNotifier(ctx context.Context, config *Config) (audit.Notifier, error) {
	if config.AuditRoomID == "" {
		slog.Info("audit room not configured; operator notices go to the log")
		return audit.Log{}, nil
	}
	client, err := matrix.New(config.Matrix)
	if err != nil {
		return nil, err
	}
	if err := client.JoinRoom(ctx, config.AuditRoomID); err != nil {
		return nil, fmt.Errorf("failed to join audit room %s: %w", config.AuditRoomID, err)
	}
	slog.Info("audit room notifications enabled", "room", config.AuditRoomID, "as", client.UserID())
	return audit.NewMatrixNotifier(client, config.AuditRoomID), nil
}

// Run polls Telegram until ctx is cancelled or an admin sends /stop.
func (a *App) Run(ctx context.Context) error {
	ctx, cancel := context.WithCancel(ctx)
	defer cancel()
	a.mu.Lock()
	a.cancel = cancel
	a.mu.Unlock()

	if a.healthServer != nil {
		if err := a.healthServer.Start(ctx); err != nil {
			slog.Warn("health server failed to start; continuing without it", "err", err)
		}
	}

	go a.sweepLoop(ctx)

	a.notifier.Notify(ctx, audit.Event{
		Kind:    audit.KindStarted,
		Message: fmt.Sprintf("Hoshi %s started as @%s", version.Version, a.bot.Username()),
	})
	slog.Info("Hoshi is running; press Ctrl+C to stop")

	err := a.bot.Run(ctx, a.pipeline)
	slog.Info("shutting down")
	return err
}

// Stop releases resources. Call it after Run returns.
func (a *App) Stop() {
	if a.healthServer != nil {
		slog.Info("stopping health server")
		a.healthServer.Stop()
	}
	slog.Info("closing database")
	a.store.Close()
}

func (a *App) requestStop() {
	a.mu.Lock()
	defer a.mu.Unlock()
	if a.cancel != nil {
		slog.Info("stop requested")
		a.cancel()
	}
}

// sweepLoop evicts idle rate-limit entries so the table does not grow with
// every user ever seen.
func (a *App) sweepLoop(ctx context.Context) {
	interval := a.config.SweepInterval
	if interval <= 0 {
		interval = defaultSweepInterval
	}
	ticker := time.NewTicker(interval)
	defer ticker.Stop()
	for {
		select {
		case <-ctx.Done():
			return
		case <-ticker.C:
			if n := a.limiter.Sweep(interval); n > 0 {
				slog.Debug("rate limiter sweep", "evicted", n, "remaining", a.limiter.Len())
			}
		}
	}
}

func (a *App) gauges() map[string]int {
	return map[string]int{
		"pending_sessions": a.sessions.Len(),
		"rate_limit_keys":  a.limiter.Len(),
		"admins":           len(a.gate.Admins()),
		"blacklisted":      len(a.gate.Blacklist()),
	}
}
