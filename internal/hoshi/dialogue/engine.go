// Package dialogue turns one user message into one AI reply, keeping the
// per-chat conversation history in the store.
package dialogue

import (
	"context"
	"errors"
	"fmt"
	"html"
	"strings"
	"time"

	"github.com/igorvasilek/hoshi/common/redact"
	"github.com/igorvasilek/hoshi/internal/hoshi/apperr"
	"github.com/igorvasilek/hoshi/internal/hoshi/llm"
	"github.com/igorvasilek/hoshi/internal/hoshi/logging"
	"github.com/igorvasilek/hoshi/internal/hoshi/ratelimit"
	"github.com/igorvasilek/hoshi/internal/hoshi/store"
)

const (
	DefaultHistoryTurns    = store.DefaultHistoryLimit
	DefaultChatInterval    = 2 * time.Second
	DefaultMaxImageBytes   = 5 * 1024 * 1024
	DefaultResponseTimeout = 30 * time.Second

	// snippetRunes bounds the backend diagnostic shown to the user.
	snippetRunes = 160

	imageMarker = "[image]"
)

// History is the part of the store the engine needs.
type History interface {
	AppendTurn(ctx context.Context, chatID int64, role store.Role, content string) error
	History(ctx context.Context, chatID int64, limit int) ([]store.Turn, error)
}

// Limiter is the part of the rate limiter the engine needs.
type Limiter interface {
	Allow(key string, minInterval time.Duration) bool
}

// Config tunes the engine. Zero values take the package defaults.
type Config struct {
	SystemPrompt    string
	Model           string
	Temperature     float32
	MaxTokens       int
	HistoryTurns    int
	ChatInterval    time.Duration
	MaxImageBytes   int64
	ResponseTimeout time.Duration
	// Secrets are stripped from backend diagnostics before they reach a user.
	Secrets []string
}

// Image is an attached picture. DeclaredSize is what the transport
// advertised before download; Data holds the downloaded bytes.
type Image struct {
	MIME         string
	Data         []byte
	DeclaredSize int64
}

// Request is one inbound AI-mode message.
type Request struct {
	ChatID int64
	UserID int64
	// Text is the message text, or the caption when Image is set.
	Text  string
	Image *Image
}

// Engine answers AI-mode messages.
type Engine struct {
	cfg      Config
	history  History
	limiter  Limiter
	provider llm.Provider
}

// New returns an Engine.
func New(cfg Config, history History, limiter Limiter, provider llm.Provider) *Engine {
	if cfg.HistoryTurns <= 0 {
		cfg.HistoryTurns = DefaultHistoryTurns
	}
	if cfg.ChatInterval <= 0 {
		cfg.ChatInterval = DefaultChatInterval
	}
	if cfg.MaxImageBytes <= 0 {
		cfg.MaxImageBytes = DefaultMaxImageBytes
	}
	if cfg.ResponseTimeout <= 0 {
		cfg.ResponseTimeout = DefaultResponseTimeout
	}
	return &Engine{cfg: cfg, history: history, limiter: limiter, provider: provider}
}

// Respond validates req, records the user turn, asks the backend and records
// the reply. Input, size and rate checks run before anything is stored or
// sent. When the backend fails the user turn stays in history without an
// answer.
func (e *Engine) Respond(ctx context.Context, req Request) (string, error) {
	text := strings.TrimSpace(req.Text)
	if text == "" && req.Image == nil {
		return "", apperr.ErrUnsupportedInput
	}

	// An oversized image may arrive without data: the transport skips the
	// download when the declared size is already over the cap.
	if req.Image != nil {
		size := req.Image.DeclaredSize
		if n := int64(len(req.Image.Data)); n > size {
			size = n
		}
		if size > e.cfg.MaxImageBytes {
			return "", apperr.New(apperr.KindPayloadTooLarge,
				fmt.Sprintf("📦 Image is too large (%s, limit %s).", humanBytes(size), humanBytes(e.cfg.MaxImageBytes)))
		}
	}
	hasImage := req.Image != nil && len(req.Image.Data) > 0
	if text == "" && !hasImage {
		return "", apperr.ErrUnsupportedInput
	}

	if !e.limiter.Allow(ratelimit.Key(ratelimit.OpChat, req.UserID), e.cfg.ChatInterval) {
		return "", apperr.ErrRateLimited
	}

	stored := text
	if hasImage {
		stored = strings.TrimSpace(imageMarker + " " + text)
	}
	if err := e.history.AppendTurn(ctx, req.ChatID, store.RoleUser, stored); err != nil {
		return "", err
	}

	turns, err := e.history.History(ctx, req.ChatID, e.cfg.HistoryTurns)
	if err != nil {
		return "", err
	}
	msgs := toMessages(turns)
	if hasImage && len(msgs) > 0 && msgs[len(msgs)-1].Role == llm.RoleUser {
		last := &msgs[len(msgs)-1]
		last.Content = text
		if last.Content == "" {
			last.Content = llm.DefaultImagePrompt
		}
		last.Image = &llm.ImagePart{MIME: req.Image.MIME, Data: req.Image.Data}
	}

	callCtx, cancel := context.WithTimeout(ctx, e.cfg.ResponseTimeout)
	defer cancel()

	start := time.Now()
	resp, err := e.provider.Complete(callCtx, llm.CompletionRequest{
		Model:       e.cfg.Model,
		System:      e.cfg.SystemPrompt,
		Messages:    msgs,
		MaxTokens:   e.cfg.MaxTokens,
		Temperature: e.cfg.Temperature,
	})
	if err == nil && strings.TrimSpace(resp.Content) == "" {
		err = fmt.Errorf("%w: empty completion", llm.ErrMalformedResponse)
	}
	if err != nil {
		if errors.Is(callCtx.Err(), context.DeadlineExceeded) {
			err = fmt.Errorf("timed out after %s: %w", e.cfg.ResponseTimeout, err)
		}
		return "", e.backendError(err)
	}

	logging.WithTrace(ctx).Debug("completion",
		"chat_id", req.ChatID,
		"history", len(turns),
		"image", hasImage,
		"tokens", resp.Usage.TotalTokens,
		"duration_ms", time.Since(start).Milliseconds(),
	)

	if err := e.history.AppendTurn(ctx, req.ChatID, store.RoleAssistant, resp.Content); err != nil {
		return "", err
	}
	return resp.Content, nil
}

func (e *Engine) backendError(err error) error {
	snippet := html.EscapeString(redact.Snippet(err.Error(), snippetRunes, e.cfg.Secrets...))
	return apperr.Backend(snippet, err)
}

func toMessages(turns []store.Turn) []llm.Message {
	msgs := make([]llm.Message, 0, len(turns))
	for _, t := range turns {
		role := llm.RoleUser
		if t.Role == store.RoleAssistant {
			role = llm.RoleAssistant
		}
		msgs = append(msgs, llm.Message{Role: role, Content: t.Content})
	}
	return msgs
}

func humanBytes(n int64) string {
	const mib = 1024 * 1024
	if n >= mib {
		return fmt.Sprintf("%.1f MiB", float64(n)/mib)
	}
	return fmt.Sprintf("%d KiB", (n+1023)/1024)
}
