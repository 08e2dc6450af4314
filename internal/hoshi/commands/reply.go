package commands

import (
	"context"
	"time"
)

// Message is the inbound context a handler runs in.
type Message struct {
	ChatID    int64
	UserID    int64
	Username  string
	FirstName string
	Text      string
	// FromCallback is set when the command came from an inline button.
	FromCallback bool
}

// Button is one inline keyboard button. Data is command text routed back
// through the command table when pressed.
type Button struct {
	Text string
	Data string
}

// Reply is what a handler wants sent back. Text is HTML; every
// user-originated fragment in it is already escaped.
type Reply struct {
	Text string
	// Verbatim marks Text that did not come from a template, such as a model
	// answer. If Telegram rejects it as HTML it is resent exactly as is.
	Verbatim bool
	Keyboard [][]Button
	// Photo, when set, is sent as an image with Text as its caption.
	Photo []byte
	// Document, when set, is a file path sent with Text as its caption.
	Document string
	// After runs once the reply has been sent.
	After func()
}

// Text returns a plain HTML reply.
func Text(s string) *Reply { return &Reply{Text: s} }

// Messenger sends replies to arbitrary chats.
type Messenger interface {
	Send(ctx context.Context, chatID int64, r *Reply) error
	Ping(ctx context.Context) (time.Duration, error)
}
