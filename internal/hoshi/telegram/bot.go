// Package telegram adapts the Telegram Bot API to Hoshi: long polling with a
// bounded worker pool, update conversion and HTML message delivery.
package telegram

import (
	"context"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"net/http"
	"strings"
	"time"

	tgbotapi "github.com/go-telegram-bot-api/telegram-bot-api/v5"
	"golang.org/x/sync/semaphore"

	"github.com/igorvasilek/hoshi/common/redact"
	"github.com/igorvasilek/hoshi/internal/hoshi/apperr"
	"github.com/igorvasilek/hoshi/internal/hoshi/dialogue"
)

const (
	defaultWorkers     = 16
	defaultPollTimeout = 60
)

// Config holds the transport configuration.
type Config struct {
	Token string
	// APIEndpoint and FileEndpoint are fmt patterns taking the token and the
	// method or file path. They default to the public Bot API.
	APIEndpoint  string
	FileEndpoint string
	// Workers bounds the number of updates handled concurrently.
	Workers int
	// PollTimeout is the long-poll timeout in seconds.
	PollTimeout int
	// MaxImageBytes caps photo downloads; larger photos are not fetched.
	MaxImageBytes int64
	HTTPClient    *http.Client
}

// Event is one inbound update reduced to what the bot acts on.
type Event struct {
	UpdateID  int
	ChatID    int64
	UserID    int64
	Username  string
	FirstName string
	// Text is the message text, the photo caption or the callback data.
	Text  string
	Image *dialogue.Image
	// CallbackID is set for inline button presses.
	CallbackID string
	// Err reports a transport failure while assembling the event, such as a
	// failed photo download.
	Err error
}

// Handler processes inbound events.
type Handler interface {
	Handle(ctx context.Context, evt Event)
}

// Bot is the Telegram transport.
type Bot struct {
	cfg  Config
	api  *tgbotapi.BotAPI
	http *http.Client
}

// New connects to the Bot API and verifies the token with getMe.
func New(cfg Config) (*Bot, error) {
	if cfg.Token == "" {
		return nil, fmt.Errorf("telegram: token is required")
	}
	if cfg.APIEndpoint == "" {
		cfg.APIEndpoint = tgbotapi.APIEndpoint
	}
	if cfg.FileEndpoint == "" {
		cfg.FileEndpoint = tgbotapi.FileEndpoint
	}
	if cfg.Workers <= 0 {
		cfg.Workers = defaultWorkers
	}
	if cfg.PollTimeout <= 0 {
		cfg.PollTimeout = defaultPollTimeout
	}
	if cfg.MaxImageBytes <= 0 {
		cfg.MaxImageBytes = dialogue.DefaultMaxImageBytes
	}
	client := cfg.HTTPClient
	if client == nil {
		client = &http.Client{Timeout: time.Duration(cfg.PollTimeout+30) * time.Second}
	}

	// The library logs polling failures with the request URL, which embeds
	// the token.
	_ = tgbotapi.SetLogger(logAdapter{token: cfg.Token})

	api, err := tgbotapi.NewBotAPIWithClient(cfg.Token, cfg.APIEndpoint, client)
	if err != nil {
		return nil, fmt.Errorf("telegram: connect: %s", redact.String(err.Error(), cfg.Token))
	}
	return &Bot{cfg: cfg, api: api, http: client}, nil
}

// Username returns the bot's @username without the at sign.
func (b *Bot) Username() string {
	return b.api.Self.UserName
}

// Run long-polls for updates and hands each one to h on its own goroutine,
// at most cfg.Workers at a time. It returns when ctx is cancelled, after the
// in-flight handlers finish.
func (b *Bot) Run(ctx context.Context, h Handler) error {
	u := tgbotapi.NewUpdate(0)
	u.Timeout = b.cfg.PollTimeout
	u.AllowedUpdates = []string{"message", "callback_query"}

	updates := b.api.GetUpdatesChan(u)
	sem := semaphore.NewWeighted(int64(b.cfg.Workers))
	// In-flight handlers outlive the poll loop so a shutdown does not cut
	// replies in half.
	handlerCtx := context.WithoutCancel(ctx)

	slog.Info("telegram polling started", "bot", b.api.Self.UserName, "workers", b.cfg.Workers)

	drain := func() {
		b.api.StopReceivingUpdates()
		_ = sem.Acquire(context.Background(), int64(b.cfg.Workers))
		slog.Info("telegram polling stopped")
	}

	for {
		select {
		case <-ctx.Done():
			drain()
			return nil
		case upd, ok := <-updates:
			if !ok {
				drain()
				return nil
			}
			if err := sem.Acquire(ctx, 1); err != nil {
				continue
			}
			go func() {
				defer sem.Release(1)
				evt, ok := b.Convert(handlerCtx, upd)
				if !ok {
					return
				}
				h.Handle(handlerCtx, evt)
			}()
		}
	}
}

// Convert turns an update into an Event. Updates without a sender, and kinds
// the bot does not subscribe to, are skipped.
func (b *Bot) Convert(ctx context.Context, upd tgbotapi.Update) (Event, bool) {
	if cq := upd.CallbackQuery; cq != nil {
		if cq.From == nil {
			return Event{}, false
		}
		chatID := cq.From.ID
		if cq.Message != nil && cq.Message.Chat != nil {
			chatID = cq.Message.Chat.ID
		}
		return Event{
			UpdateID:   upd.UpdateID,
			ChatID:     chatID,
			UserID:     cq.From.ID,
			Username:   cq.From.UserName,
			FirstName:  cq.From.FirstName,
			Text:       cq.Data,
			CallbackID: cq.ID,
		}, true
	}

	m := upd.Message
	if m == nil || m.From == nil || m.Chat == nil {
		return Event{}, false
	}
	evt := Event{
		UpdateID:  upd.UpdateID,
		ChatID:    m.Chat.ID,
		UserID:    m.From.ID,
		Username:  m.From.UserName,
		FirstName: m.From.FirstName,
		Text:      m.Text,
	}

	switch {
	case len(m.Photo) > 0:
		largest := m.Photo[0]
		for _, p := range m.Photo[1:] {
			if p.Width*p.Height > largest.Width*largest.Height {
				largest = p
			}
		}
		evt.Text = m.Caption
		evt.Image, evt.Err = b.fetchImage(ctx, largest.FileID, "image/jpeg", int64(largest.FileSize))
	case m.Document != nil && strings.HasPrefix(m.Document.MimeType, "image/"):
		evt.Text = m.Caption
		evt.Image, evt.Err = b.fetchImage(ctx, m.Document.FileID, m.Document.MimeType, int64(m.Document.FileSize))
	}
	return evt, true
}

// fetchImage downloads a file unless its declared size is already over the
// cap. The body is read up to cap+1 bytes so an understated size still
// fails the size check downstream.
func (b *Bot) fetchImage(ctx context.Context, fileID, mime string, declared int64) (*dialogue.Image, error) {
	img := &dialogue.Image{MIME: mime, DeclaredSize: declared}
	if declared > b.cfg.MaxImageBytes {
		return img, nil
	}

	file, err := b.api.GetFile(tgbotapi.FileConfig{FileID: fileID})
	if err != nil {
		return nil, b.downloadError(err)
	}
	if int64(file.FileSize) > img.DeclaredSize {
		img.DeclaredSize = int64(file.FileSize)
	}
	if img.DeclaredSize > b.cfg.MaxImageBytes {
		return img, nil
	}

	url := fmt.Sprintf(b.cfg.FileEndpoint, b.cfg.Token, file.FilePath)
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, url, nil)
	if err != nil {
		return nil, b.downloadError(err)
	}
	resp, err := b.http.Do(req)
	if err != nil {
		return nil, b.downloadError(err)
	}
	defer resp.Body.Close()
	if resp.StatusCode != http.StatusOK {
		return nil, b.downloadError(fmt.Errorf("HTTP %d", resp.StatusCode))
	}

	data, err := io.ReadAll(io.LimitReader(resp.Body, b.cfg.MaxImageBytes+1))
	if err != nil {
		return nil, b.downloadError(err)
	}
	img.Data = data
	return img, nil
}

func (b *Bot) downloadError(err error) error {
	msg := redact.String(err.Error(), b.cfg.Token)
	return apperr.Backend("could not download the image", errors.New("telegram download: "+msg))
}

// logAdapter routes the library's log output through slog.
type logAdapter struct {
	token string
}

func (l logAdapter) Println(v ...any) {
	slog.Warn(redact.String(strings.TrimSpace(fmt.Sprintln(v...)), l.token), "component", "telegram")
}

func (l logAdapter) Printf(format string, v ...any) {
	slog.Warn(redact.String(strings.TrimSpace(fmt.Sprintf(format, v...)), l.token), "component", "telegram")
}
