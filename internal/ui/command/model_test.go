package command

import (
	"testing"

	tea "github.com/charmbracelet/bubbletea"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestParse(t *testing.T) {
	tests := []struct {
		line string
		want CommandMsg
		ok   bool
	}{
		{"", CommandMsg{}, false},
		{"   ", CommandMsg{}, false},
		{"refresh", CommandMsg{Name: "refresh"}, true},
		{"  read   all ", CommandMsg{Name: "read all"}, true},
		{"chat 7", CommandMsg{Name: "chat", Args: []string{"7"}}, true},
		{"routes", CommandMsg{Name: "routes"}, true},
		{"route 9", CommandMsg{Name: "route", Args: []string{"9"}}, true},
		{"leave  route", CommandMsg{Name: "leave route"}, true},
		{"end route now", CommandMsg{Name: "end route", Args: []string{"now"}}, true},
		{"unknown x y", CommandMsg{Name: "unknown", Args: []string{"x", "y"}}, true},
	}
	for _, tt := range tests {
		t.Run(tt.line, func(t *testing.T) {
			got, ok := Parse(tt.line)
			assert.Equal(t, tt.ok, ok)
			assert.Equal(t, tt.want, got)
		})
	}
}

func TestModel_EnterEmitsCommand(t *testing.T) {
	m := New(80)
	m.Focus()
	for _, r := range "chat 7" {
		m, _ = m.Update(tea.KeyMsg{Type: tea.KeyRunes, Runes: []rune{r}})
	}

	m, cmd := m.Update(tea.KeyMsg{Type: tea.KeyEnter})
	require.NotNil(t, cmd)
	assert.Equal(t, CommandMsg{Name: "chat", Args: []string{"7"}}, cmd())
	assert.Empty(t, m.input.Value())

	_, cmd = m.Update(tea.KeyMsg{Type: tea.KeyEnter})
	require.NotNil(t, cmd)
	assert.Equal(t, CancelMsg{}, cmd())
}
