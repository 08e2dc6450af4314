// Package matrix provides the send-only Matrix client Hoshi uses to post
// operator notices to an audit room. Hoshi never syncs or reads from Matrix.
package matrix

import (
	"context"
	"errors"
	"fmt"
	"log/slog"

	"maunium.net/go/mautrix"
	"maunium.net/go/mautrix/event"
	"maunium.net/go/mautrix/id"
)

// Config holds Matrix client configuration
type Config struct {
	Homeserver  string
	UserID      string
	AccessToken string
}

// Enabled reports whether enough is configured to create a client.
func (c Config) Enabled() bool {
	return c.Homeserver != "" && c.UserID != "" && c.AccessToken != ""
}

// Client wraps the Matrix client
type Client struct {
	client *mautrix.Client
	userID string
}

// New creates a new Matrix client
func New(cfg Config) (*Client, error) {
	if !cfg.Enabled() {
		return nil, fmt.Errorf("matrix: homeserver, user id and access token are required")
	}
	client, err := mautrix.NewClient(cfg.Homeserver, id.UserID(cfg.UserID), cfg.AccessToken)
	if err != nil {
		return nil, fmt.Errorf("failed to create Matrix client: %w", err)
	}
	return &Client{client: client, userID: cfg.UserID}, nil
}

// JoinRoom joins roomID. An M_FORBIDDEN answer (already a member, or an
// invite-only room the account was added to out of band) is not an error.
func (c *Client) JoinRoom(ctx context.Context, roomID string) error {
	_, err := c.client.JoinRoomByID(ctx, id.RoomID(roomID))
	if err != nil {
		if errors.Is(err, mautrix.MForbidden) {
			slog.Warn("matrix: join forbidden, assuming membership", "room", roomID)
			return nil
		}
		return fmt.Errorf("failed to join room %s: %w", roomID, err)
	}
	return nil
}

// SendNotice sends a notice message (less intrusive than normal messages)
func (c *Client) SendNotice(ctx context.Context, roomID, message string) error {
	content := event.MessageEventContent{
		MsgType: event.MsgNotice,
		Body:    message,
	}
	if _, err := c.client.SendMessageEvent(ctx, id.RoomID(roomID), event.EventMessage, &content); err != nil {
		return fmt.Errorf("failed to send notice: %w", err)
	}
	return nil
}

// UserID returns the client's user ID
func (c *Client) UserID() string {
	return c.userID
}
