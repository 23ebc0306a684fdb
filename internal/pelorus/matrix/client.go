// Package matrix provides the outbound-only Matrix client used for ops-room
// notifications. Pelorus never reads from Matrix; user traffic arrives over
// the webhook channel, so no sync loop is started.
package matrix

import (
	"context"
	"fmt"

	"maunium.net/go/mautrix"
	"maunium.net/go/mautrix/event"
	"maunium.net/go/mautrix/id"
)

// Config holds Matrix client configuration.
type Config struct {
	Homeserver  string
	UserID      string
	AccessToken string
}

// Client wraps the mautrix client for sending notices.
type Client struct {
	client *mautrix.Client
}

// New creates an outbound-only Matrix client.
func New(cfg Config) (*Client, error) {
	c, err := mautrix.NewClient(cfg.Homeserver, id.UserID(cfg.UserID), cfg.AccessToken)
	if err != nil {
		return nil, fmt.Errorf("failed to create Matrix client: %w", err)
	}
	return &Client{client: c}, nil
}

// SendNotice sends a notice message (less intrusive than a normal message)
// to the given room.
func (c *Client) SendNotice(ctx context.Context, roomID, message string) error {
	content := event.MessageEventContent{
		MsgType: event.MsgNotice,
		Body:    message,
	}
	_, err := c.client.SendMessageEvent(ctx, id.RoomID(roomID), event.EventMessage, &content)
	if err != nil {
		return fmt.Errorf("failed to send notice: %w", err)
	}
	return nil
}
