package telegram

import (
	"context"
	"errors"
	"fmt"
	"html"
	"path/filepath"
	"regexp"
	"strings"
	"time"
	"unicode/utf8"

	tgbotapi "github.com/go-telegram-bot-api/telegram-bot-api/v5"

	"github.com/igorvasilek/hoshi/common/redact"
	"github.com/igorvasilek/hoshi/internal/hoshi/commands"
	"github.com/igorvasilek/hoshi/internal/hoshi/logging"
)

const (
	// MaxMessageRunes is the Bot API limit for one text message.
	MaxMessageRunes = 4096
	maxCaptionRunes = 1024
	// maxEntityRunes bounds the longest HTML entity we look back for.
	maxEntityRunes = 10
)

// tagPattern matches the tags Telegram's HTML mode understands. Anything
// else between angle brackets is text and is kept.
var tagPattern = regexp.MustCompile(`(?i)</?(b|strong|i|em|u|ins|s|strike|del|span|tg-spoiler|tg-emoji|a|code|pre|blockquote)(\s[^<>]*)?>`)

// Send delivers r to chatID. Text is sent as HTML; a chunk Telegram refuses
// to parse is re-sent as plain text. The keyboard is attached to the last
// message.
func (b *Bot) Send(ctx context.Context, chatID int64, r *commands.Reply) error {
	if r == nil {
		return nil
	}
	var markup any
	if len(r.Keyboard) > 0 {
		markup = keyboard(r.Keyboard)
	}

	switch {
	case len(r.Photo) > 0:
		p := tgbotapi.NewPhoto(chatID, tgbotapi.FileBytes{Name: "image.png", Bytes: r.Photo})
		p.Caption = truncateHTML(r.Text, maxCaptionRunes)
		p.ParseMode = tgbotapi.ModeHTML
		if markup != nil {
			p.ReplyMarkup = markup
		}
		err := b.send(ctx, "send photo", p)
		if err != nil && isEntityError(err) {
			logging.WithTrace(ctx).Debug("caption rejected, sending plain text", "chat_id", chatID, "err", err)
			p.ParseMode = ""
			p.Caption = truncateRunes(fallbackText(r.Text, r.Verbatim), maxCaptionRunes)
			err = b.send(ctx, "send photo", p)
		}
		return err
	case r.Document != "":
		d := tgbotapi.NewDocument(chatID, tgbotapi.FilePath(r.Document))
		d.Caption = truncateHTML(r.Text, maxCaptionRunes)
		if d.Caption == "" {
			d.Caption = filepath.Base(r.Document)
		}
		d.ParseMode = tgbotapi.ModeHTML
		err := b.send(ctx, "send document", d)
		if err != nil && isEntityError(err) {
			d.ParseMode = ""
			d.Caption = truncateRunes(fallbackText(r.Text, r.Verbatim), maxCaptionRunes)
			err = b.send(ctx, "send document", d)
		}
		return err
	}
	return b.sendText(ctx, chatID, r.Text, markup, r.Verbatim)
}

// SendText sends HTML text split into Telegram-sized chunks.
func (b *Bot) SendText(ctx context.Context, chatID int64, text string, markup any) error {
	return b.sendText(ctx, chatID, text, markup, false)
}

func (b *Bot) sendText(ctx context.Context, chatID int64, text string, markup any, verbatim bool) error {
	if strings.TrimSpace(text) == "" {
		return nil
	}
	chunks := Chunk(text, MaxMessageRunes)
	for i, c := range chunks {
		msg := tgbotapi.NewMessage(chatID, c)
		msg.ParseMode = tgbotapi.ModeHTML
		msg.DisableWebPagePreview = true
		if i == len(chunks)-1 && markup != nil {
			msg.ReplyMarkup = markup
		}

		err := b.send(ctx, "send message", msg)
		if err != nil && isEntityError(err) {
			logging.WithTrace(ctx).Debug("html rejected, sending plain text", "chat_id", chatID, "err", err)
			msg.ParseMode = ""
			msg.Text = fallbackText(c, verbatim)
			err = b.send(ctx, "send message", msg)
		}
		if err != nil {
			return err
		}
	}
	return nil
}

// AnswerCallback acknowledges an inline button press so the client stops
// showing a spinner.
func (b *Bot) AnswerCallback(ctx context.Context, callbackID, text string) error {
	if err := ctx.Err(); err != nil {
		return err
	}
	if _, err := b.api.Request(tgbotapi.NewCallback(callbackID, text)); err != nil {
		return b.apiError("answer callback", err)
	}
	return nil
}

// Typing shows the typing indicator in chatID.
func (b *Bot) Typing(ctx context.Context, chatID int64) {
	if ctx.Err() != nil {
		return
	}
	if _, err := b.api.Request(tgbotapi.NewChatAction(chatID, tgbotapi.ChatTyping)); err != nil {
		logging.WithTrace(ctx).Debug("typing indicator failed", "chat_id", chatID, "err", b.apiError("chat action", err))
	}
}

// Ping measures the round trip of a getMe call.
func (b *Bot) Ping(ctx context.Context) (time.Duration, error) {
	if err := ctx.Err(); err != nil {
		return 0, err
	}
	start := time.Now()
	if _, err := b.api.GetMe(); err != nil {
		return 0, b.apiError("ping", err)
	}
	return time.Since(start), nil
}

func (b *Bot) send(ctx context.Context, op string, c tgbotapi.Chattable) error {
	if err := ctx.Err(); err != nil {
		return err
	}
	if _, err := b.api.Send(c); err != nil {
		return b.apiError(op, err)
	}
	return nil
}

func (b *Bot) apiError(op string, err error) error {
	return &Error{Op: op, Msg: redact.String(err.Error(), b.cfg.Token), cause: err}
}

// Error is a failed Bot API call. Msg never contains the bot token.
type Error struct {
	Op    string
	Msg   string
	cause error
}

func (e *Error) Error() string { return fmt.Sprintf("telegram: %s: %s", e.Op, e.Msg) }

func (e *Error) Unwrap() error { return e.cause }

// Code returns the Bot API error code, or 0 for transport failures.
func (e *Error) Code() int {
	var apiErr *tgbotapi.Error
	if errors.As(e.cause, &apiErr) {
		return apiErr.Code
	}
	return 0
}

// fallbackText is what replaces HTML Telegram refused. Template text loses
// its markup; verbatim text is sent unchanged.
func fallbackText(s string, verbatim bool) string {
	if verbatim {
		return s
	}
	return PlainText(s)
}

func isEntityError(err error) bool {
	return strings.Contains(strings.ToLower(err.Error()), "can't parse entities")
}

func keyboard(rows [][]commands.Button) tgbotapi.InlineKeyboardMarkup {
	out := make([][]tgbotapi.InlineKeyboardButton, 0, len(rows))
	for _, row := range rows {
		buttons := make([]tgbotapi.InlineKeyboardButton, 0, len(row))
		for _, btn := range row {
			buttons = append(buttons, tgbotapi.NewInlineKeyboardButtonData(btn.Text, btn.Data))
		}
		out = append(out, tgbotapi.NewInlineKeyboardRow(buttons...))
	}
	return tgbotapi.NewInlineKeyboardMarkup(out...)
}

// Chunk splits s into pieces of at most limit runes, preferring line breaks.
func Chunk(s string, limit int) []string {
	if limit <= 0 || utf8.RuneCountInString(s) <= limit {
		return []string{s}
	}
	var out []string
	r := []rune(s)
	for len(r) > limit {
		cut := limit
		for i := limit - 1; i > limit/2; i-- {
			if r[i] == '\n' {
				cut = i + 1
				break
			}
		}
		cut = markupSafeCut(r, cut)
		out = append(out, string(r[:cut]))
		r = r[cut:]
	}
	if len(r) > 0 {
		out = append(out, string(r))
	}
	return out
}

// markupSafeCut moves cut back so it does not fall inside a tag or an
// entity. The cut is kept when no safe position exists in the second half.
func markupSafeCut(r []rune, cut int) int {
	for i := cut - 1; i > 0 && i >= cut-maxEntityRunes; i-- {
		if r[i] == ';' || r[i] == ' ' || r[i] == '\n' {
			break
		}
		if r[i] == '&' {
			return i
		}
	}
	for i := cut - 1; i > 0 && i >= cut/2; i-- {
		switch r[i] {
		case '>', '\n':
			return cut
		case '<':
			return i
		}
	}
	return cut
}

// truncateHTML shortens escaped HTML to n runes without leaving a partial
// tag or entity at the end.
func truncateHTML(s string, n int) string {
	r := []rune(s)
	if len(r) <= n {
		return s
	}
	cut := markupSafeCut(r, n-1)
	return string(r[:cut]) + "…"
}

// PlainText strips Telegram HTML tags and unescapes entities. Other text in
// angle brackets is left alone.
func PlainText(s string) string {
	return html.UnescapeString(tagPattern.ReplaceAllString(s, ""))
}

func truncateRunes(s string, n int) string {
	if utf8.RuneCountInString(s) <= n {
		return s
	}
	return string([]rune(s)[:n-1]) + "…"
}
