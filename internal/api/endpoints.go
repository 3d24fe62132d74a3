package api

import (
	"context"
	"fmt"
	"net/url"
	"strconv"

	"github.com/nhle/brancard/internal/model"
	"github.com/nhle/brancard/internal/payload"
)

// NotificationQuery filters GET /api/notifications.
type NotificationQuery struct {
	UnreadOnly bool
	Count      int
}

func (q NotificationQuery) values() url.Values {
	v := url.Values{}
	if q.UnreadOnly {
		v.Set("unreadOnly", "true")
	}
	if q.Count > 0 {
		v.Set("count", strconv.Itoa(q.Count))
	}
	return v
}

// LoginRequest is the body of POST /api/auth/login.
type LoginRequest struct {
	Username string `json:"username"`
	Password string `json:"password"`
}

// LogoutRequest is the body of POST /api/auth/logout.
type LogoutRequest struct {
	UserName     string `json:"userName"`
	ForcedLogout bool   `json:"forcedLogout"`
}

type unreadCountResponse struct {
	Count int `json:"count"`
}

// Notifications returns the current user's notifications with normalized
// payloads.
func (c *Client) Notifications(
	ctx context.Context,
	q NotificationQuery,
) ([]model.NotificationTarget, error) {
	var items []model.NotificationTarget
	if err := c.Get(ctx, "/api/notifications", q.values(), &items); err != nil {
		return nil, fmt.Errorf("fetching notifications: %w", err)
	}
	return normalizeTargets(items), nil
}

// UnreadNotifications returns the unread notifications used by the
// background sync task.
func (c *Client) UnreadNotifications(ctx context.Context) ([]model.NotificationTarget, error) {
	var items []model.NotificationTarget
	if err := c.Get(ctx, "/api/notifications/unread", nil, &items); err != nil {
		return nil, fmt.Errorf("fetching unread notifications: %w", err)
	}
	return normalizeTargets(items), nil
}

// UnreadCount returns the number of unread notifications.
func (c *Client) UnreadCount(ctx context.Context) (int, error) {
	var resp unreadCountResponse
	if err := c.Get(ctx, "/api/notifications/unread-count", nil, &resp); err != nil {
		return 0, fmt.Errorf("fetching unread count: %w", err)
	}
	return resp.Count, nil
}

// MarkRead marks a single notification as read.
func (c *Client) MarkRead(ctx context.Context, id int64) error {
	path := "/api/notifications/" + strconv.FormatInt(id, 10) + "/read"
	if err := c.Post(ctx, path, struct{}{}, nil); err != nil {
		return fmt.Errorf("marking notification %d read: %w", id, err)
	}
	return nil
}

// MarkAllRead marks every notification of the current user as read.
func (c *Client) MarkAllRead(ctx context.Context) error {
	if err := c.Post(ctx, "/api/notifications/mark-all-read", struct{}{}, nil); err != nil {
		return fmt.Errorf("marking all notifications read: %w", err)
	}
	return nil
}

// RegisterDeviceToken registers a push token for the user.
func (c *Client) RegisterDeviceToken(ctx context.Context, req model.DeviceTokenRequest) error {
	if err := c.Post(ctx, "/api/DeviceTokens/register", req, nil); err != nil {
		return fmt.Errorf("registering device token: %w", err)
	}
	return nil
}

// RemoveDeviceToken unregisters a push token.
func (c *Client) RemoveDeviceToken(ctx context.Context, req model.DeviceTokenRequest) error {
	if err := c.Post(ctx, "/api/DeviceTokens/remove", req, nil); err != nil {
		return fmt.Errorf("removing device token: %w", err)
	}
	return nil
}

// ChatMessages returns every chat message visible to the current user.
func (c *Client) ChatMessages(ctx context.Context) ([]model.ChatMessage, error) {
	var msgs []model.ChatMessage
	if err := c.Get(ctx, "/api/chatMessages/messages", nil, &msgs); err != nil {
		return nil, fmt.Errorf("fetching chat messages: %w", err)
	}
	return msgs, nil
}

// SendChatMessage posts a chat message and returns it as stored.
func (c *Client) SendChatMessage(
	ctx context.Context,
	req model.ChatMessageRequest,
) (model.ChatMessage, error) {
	var msg model.ChatMessage
	if err := c.Post(ctx, "/api/chatMessages/send", req, &msg); err != nil {
		return model.ChatMessage{}, fmt.Errorf("sending chat message: %w", err)
	}
	return msg, nil
}

// Login authenticates and returns the identity with its token.
func (c *Client) Login(ctx context.Context, req LoginRequest) (model.Identity, error) {
	var id model.Identity
	if err := c.Post(ctx, "/api/auth/login", req, &id); err != nil {
		return model.Identity{}, fmt.Errorf("logging in: %w", err)
	}
	return id, nil
}

// Logout ends the server-side session.
func (c *Client) Logout(ctx context.Context, req LogoutRequest) error {
	if err := c.Post(ctx, "/api/auth/logout", req, nil); err != nil {
		return fmt.Errorf("logging out: %w", err)
	}
	return nil
}

func normalizeTargets(items []model.NotificationTarget) []model.NotificationTarget {
	for i := range items {
		items[i].Instance.Payload = payload.Normalize(items[i].Instance.RawPayload)
	}
	return items
}
