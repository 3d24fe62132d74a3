package model

import (
	"time"

	"github.com/google/uuid"
)

// Identity is the authenticated user as returned by the login endpoint.
type Identity struct {
	ID                    int64  `json:"id"`
	Name                  string `json:"name"`
	Email                 string `json:"email"`
	Role                  string `json:"role"`
	Token                 string `json:"token"`
	RequiresPasswordReset bool   `json:"requiresPasswordReset,omitempty"`
}

// Toast is a transient message shown by the UI.
type Toast struct {
	ID        uuid.UUID
	Message   string
	Warning   string
	Error     string
	CreatedAt time.Time
}

// NewToast creates an informational toast.
func NewToast(message string) Toast {
	return Toast{ID: uuid.New(), Message: message, CreatedAt: time.Now()}
}

// NewErrorToast creates an error toast.
func NewErrorToast(message string) Toast {
	return Toast{ID: uuid.New(), Error: message, CreatedAt: time.Now()}
}

// Text returns whichever message the toast carries, errors first.
func (t Toast) Text() string {
	switch {
	case t.Error != "":
		return t.Error
	case t.Warning != "":
		return t.Warning
	default:
		return t.Message
	}
}
