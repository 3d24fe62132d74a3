package ui

import (
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
)

func TestRelativeTime(t *testing.T) {
	now := time.Date(2025, 3, 10, 12, 0, 0, 0, time.UTC)

	tests := []struct {
		name string
		at   time.Time
		want string
	}{
		{"zero", time.Time{}, ""},
		{"seconds", now.Add(-30 * time.Second), "à l'instant"},
		{"minutes", now.Add(-5 * time.Minute), "il y a 5 min"},
		{"hours", now.Add(-3 * time.Hour), "il y a 3 h"},
		{"days", now.Add(-48 * time.Hour), "il y a 2 j"},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			assert.Equal(t, tt.want, RelativeTime(tt.at, now))
		})
	}

	old := now.Add(-30 * 24 * time.Hour)
	assert.Equal(t, old.Local().Format("02/01/2006"), RelativeTime(old, now))
}

func TestTruncate(t *testing.T) {
	assert.Equal(t, "Ticket", Truncate("Ticket", 10))
	assert.Equal(t, "Tick…", Truncate("Ticket créé", 5))
	assert.Equal(t, "…", Truncate("Ticket", 1))
	assert.Equal(t, "", Truncate("Ticket", 0))
}

func TestLayout_ContentHeight(t *testing.T) {
	l := NewLayout(80, 24)
	assert.Equal(t, 22, l.ContentHeight())
	assert.Equal(t, 19, l.WithTray(3).ContentHeight())
	assert.Equal(t, 0, NewLayout(80, 1).ContentHeight())
}
