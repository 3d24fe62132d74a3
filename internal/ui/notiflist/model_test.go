package notiflist

import (
	"testing"
	"time"

	tea "github.com/charmbracelet/bubbletea"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/nhle/brancard/internal/keys"
	"github.com/nhle/brancard/internal/model"
)

func notification(id int64, title string, read bool) model.NotificationTarget {
	n := model.NotificationTarget{ID: id, IsRead: read}
	n.Instance.Payload = model.CanonicalPayload{Title: title, RedirectURL: "/tickets/1", TemplateCode: "TICKET"}
	return n
}

func TestModel_Keys(t *testing.T) {
	m := New(keys.DefaultKeyMap(), 100, 20)
	m.SetNotifications([]model.NotificationTarget{
		notification(1, "Ticket créé", false),
		notification(2, "Ticket terminé", true),
	}, false, "")

	_, cmd := m.Update(tea.KeyMsg{Type: tea.KeyEnter})
	require.NotNil(t, cmd)
	assert.Equal(t, OpenMsg{
		ID:   1,
		Data: model.NotificationData{ID: 1, RedirectURL: "/tickets/1", TemplateCode: "TICKET"},
	}, cmd())

	_, cmd = m.Update(tea.KeyMsg{Type: tea.KeyRunes, Runes: []rune("m")})
	require.NotNil(t, cmd)
	assert.Equal(t, MarkReadMsg{ID: 1}, cmd())

	_, cmd = m.Update(tea.KeyMsg{Type: tea.KeyRunes, Runes: []rune("M")})
	require.NotNil(t, cmd)
	assert.Equal(t, MarkAllReadMsg{}, cmd())

	m, _ = m.Update(tea.KeyMsg{Type: tea.KeyRunes, Runes: []rune("j")})
	sel, ok := m.Selected()
	require.True(t, ok)
	assert.Equal(t, int64(2), sel.ID)

	_, cmd = m.Update(tea.KeyMsg{Type: tea.KeyRunes, Runes: []rune("m")})
	assert.Nil(t, cmd, "already read")
}

func TestModel_EmptyAndError(t *testing.T) {
	m := New(keys.DefaultKeyMap(), 100, 20)
	m.SetNotifications(nil, true, "")
	assert.Contains(t, m.View(), "Chargement...")

	m.SetNotifications(nil, false, "Erreur réseau")
	view := m.View()
	assert.Contains(t, view, "Aucune notification")
	assert.Contains(t, view, "Erreur réseau")
}

func TestRenderLine(t *testing.T) {
	now := time.Date(2025, 3, 10, 9, 5, 0, 0, time.UTC)
	n := notification(1, "Ticket créé", false)
	n.CreationDate = model.NewTimestamp(now.Add(-5 * time.Minute))

	line := renderLine(n, false, 80, now)
	assert.Contains(t, line, "●")
	assert.Contains(t, line, "Ticket créé")
	assert.Contains(t, line, "il y a 5 min")

	n.IsRead = true
	assert.NotContains(t, renderLine(n, false, 80, now), "●")
}
