package model

import (
	"encoding/json"
)

// DefaultNotificationTitle is used whenever a payload carries no usable title.
const DefaultNotificationTitle = "Sans titre"

// NotificationEvent is the realtime event pushed on the notifications hub.
// Key casing on the wire is not stable (PascalCase or camelCase); decoding
// with encoding/json matches field names case-insensitively.
type NotificationEvent struct {
	ID          int64           `json:"id"`
	ReceiverID  int64           `json:"receiverId"`
	PayloadJSON json.RawMessage `json:"payloadJson"`
	ScheduledAt string          `json:"scheduledAt"`
}

// CanonicalPayload is the single normalized shape of notification content.
// Every field always holds a value; OriginalPayload and UserID are the only
// fields that may be nil, standing for JSON null.
type CanonicalPayload struct {
	Title           string         `json:"title"`
	Body            string         `json:"body"`
	RedirectURL     string         `json:"redirectUrl"`
	TemplateCode    string         `json:"templateCode"`
	ProcessedAt     string         `json:"processedAt"`
	OriginalPayload map[string]any `json:"originalPayload"`
	UserID          *string        `json:"userId"`
}

// NotificationInstance is the server-authored notification content shared by
// all recipients.
type NotificationInstance struct {
	// ID is the backend identifier ("numero").
	ID int64 `json:"numero"`

	// TemplateID references the template the instance was rendered from.
	TemplateID int64 `json:"noNotificationTemplate"`

	// RawPayload is the payload exactly as received.
	RawPayload json.RawMessage `json:"payloadJson"`

	// Payload is RawPayload after normalization. It is filled at the API
	// boundary and never decoded from the wire.
	Payload CanonicalPayload `json:"-"`

	ScheduledAt      *Timestamp `json:"scheduledAt"`
	SentAt           *Timestamp `json:"sentAt"`
	CreationDate     Timestamp  `json:"creationDate"`
	ModificationDate Timestamp  `json:"modificationDate"`
}

// NotificationTarget is a notification instance as delivered to one recipient,
// with that recipient's delivery and read state.
type NotificationTarget struct {
	ID               int64                `json:"numero"`
	InstanceID       int64                `json:"noNotificationInstanceId"`
	UserID           int64                `json:"noUser"`
	IsRead           bool                 `json:"isRead"`
	ReadAt           *Timestamp           `json:"readAt"`
	PushStatus       string               `json:"pushStatus"`
	PushError        *string              `json:"pushError"`
	PushSentAt       *Timestamp           `json:"pushSentAt"`
	InAppVisible     bool                 `json:"inAppVisible"`
	CreationDate     Timestamp            `json:"creationDate"`
	ModificationDate Timestamp            `json:"modificationDate"`
	Instance         NotificationInstance `json:"notificationInstance"`
}

// Title is a shortcut for the normalized title.
func (n NotificationTarget) Title() string {
	return n.Instance.Payload.Title
}

// NotificationData is the tappable metadata attached to a local notification.
type NotificationData struct {
	ID           int64  `json:"id"`
	RedirectURL  string `json:"redirectUrl,omitempty"`
	TemplateCode string `json:"templateCode,omitempty"`
	Screen       string `json:"screen,omitempty"`
}

// Notification channel identifiers. Channels are configured once on the
// local notification surface.
const (
	ChannelDefault      = "default"
	ChannelHighPriority = "high-priority"
)

// LocalNotification is an immediate (no trigger) notification raised on the
// platform notification surface.
type LocalNotification struct {
	Identifier string           `json:"identifier"`
	Title      string           `json:"title"`
	Body       string           `json:"body"`
	Channel    string           `json:"channel"`
	Sound      bool             `json:"sound"`
	Data       NotificationData `json:"data"`
}

// DeviceTokenRequest registers or removes a push token for a user.
type DeviceTokenRequest struct {
	UserID   int64  `json:"userId"`
	Token    string `json:"token"`
	Platform string `json:"platform"`
}
