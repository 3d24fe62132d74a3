package dutyview

import (
	"testing"

	tea "github.com/charmbracelet/bubbletea"
	"github.com/charmbracelet/huh"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/nhle/brancard/internal/keys"
	"github.com/nhle/brancard/internal/model"
	"github.com/nhle/brancard/internal/state"
)

func duty() state.Duty {
	return state.Duty{
		Porter: &model.Porter{
			ID:        3,
			FirstName: "Léa",
			LastName:  "Roy",
			Status:    model.PorterOnTheMove,
			WorkRoute: &model.WorkRoute{
				ID: 8, Name: "Jour", StartTime: "07:00:00", EndTime: "15:00:00",
				Breaks: []model.WorkRouteBreak{{Name: "Dîner", StartTime: "11:30:00", EndTime: "12:00:00"}},
			},
			Tickets: []model.PorterTicket{
				{ID: 41, ServiceFrom: model.Place{Name: "Urgence"}, ServiceTo: model.Place{Name: "Radiologie"}, Status: model.TicketAccepted},
				{ID: 42, ServiceFrom: model.Place{Name: "Bloc"}, ServiceTo: model.Place{Name: "Soins intensifs"}, Status: model.TicketWaitingAcceptance},
			},
		},
	}
}

func press(s string) tea.KeyMsg {
	switch s {
	case "enter":
		return tea.KeyMsg{Type: tea.KeyEnter}
	case "esc":
		return tea.KeyMsg{Type: tea.KeyEsc}
	}
	return tea.KeyMsg{Type: tea.KeyRunes, Runes: []rune(s)}
}

func msgs(cmd tea.Cmd) []tea.Msg {
	if cmd == nil {
		return nil
	}
	msg := cmd()
	if batch, ok := msg.(tea.BatchMsg); ok {
		var out []tea.Msg
		for _, c := range batch {
			out = append(out, msgs(c)...)
		}
		return out
	}
	return []tea.Msg{msg}
}

func TestModel_RendersPorter(t *testing.T) {
	m := New(keys.DefaultKeyMap(), 120, 30)
	m.SetState(duty())

	v := m.View()
	assert.Contains(t, v, "Léa Roy · En déplacement")
	assert.Contains(t, v, "Route: Jour (07:00-15:00)")
	assert.Contains(t, v, "Dîner 11:30-12:00")
	assert.Contains(t, v, "#42")
	assert.Contains(t, v, "Bloc → Soins intensifs")
}

func TestModel_EmptyStates(t *testing.T) {
	tests := []struct {
		name string
		duty state.Duty
		want string
	}{
		{"not a porter", state.Duty{}, "Aucun profil de brancardier"},
		{"loading", state.Duty{Loading: true}, "Chargement..."},
		{"failure", state.Duty{Error: "Failed to fetch porter"}, "Failed to fetch porter"},
		{"no route", state.Duty{Porter: &model.Porter{FirstName: "Léa"}}, "Aucune route de travail"},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			m := New(keys.DefaultKeyMap(), 100, 20)
			m.SetState(tt.duty)
			assert.Contains(t, m.View(), tt.want)
		})
	}
}

func TestModel_SelectOpensTicket(t *testing.T) {
	m := New(keys.DefaultKeyMap(), 100, 30)
	m.SetState(duty())

	m, _ = m.Update(press("j"))
	m, _ = m.Update(press("j"))
	_, cmd := m.Update(press("enter"))
	assert.Equal(t, []tea.Msg{OpenTicketMsg{ID: 42}}, msgs(cmd))

	d := duty()
	d.Porter.Tickets = d.Porter.Tickets[:1]
	m.SetState(d)
	assert.Equal(t, 0, m.cursor, "cursor follows a shrinking list")
}

func TestModel_RefreshKey(t *testing.T) {
	m := New(keys.DefaultKeyMap(), 100, 30)
	_, cmd := m.Update(press("r"))
	assert.Equal(t, []tea.Msg{RefreshMsg{}}, msgs(cmd))
}

func TestModel_PickerWaitsForRoutes(t *testing.T) {
	m := New(keys.DefaultKeyMap(), 100, 30)
	m.SetState(duty())

	m, cmd := m.Update(press("w"))
	require.True(t, m.PickerOpen())
	assert.Equal(t, []tea.Msg{LoadRoutesMsg{}}, msgs(cmd))
	assert.Nil(t, m.form)
	assert.Contains(t, m.View(), "Chargement des routes...")

	d := duty()
	d.WorkRoutes = []model.WorkRoute{{ID: 8, Name: "Jour"}, {ID: 9, Name: "Soir", StartTime: "15:00:00", EndTime: "23:00:00"}}
	m.SetState(d)
	require.NotNil(t, m.form)
	assert.Contains(t, m.View(), "Soir (15:00-23:00)")
	assert.Equal(t, int64(8), m.fb.route, "current route preselected")

	m, cmd = m.Update(press("esc"))
	assert.False(t, m.PickerOpen())
	assert.Nil(t, cmd)
}

func TestModel_PickerCompletion(t *testing.T) {
	tests := []struct {
		name  string
		route int64
		want  []tea.Msg
	}{
		{"route picked", 9, []tea.Msg{SelectRouteMsg{ID: 9}}},
		{"nothing picked", 0, nil},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			m := New(keys.DefaultKeyMap(), 100, 30)
			d := duty()
			d.WorkRoutes = []model.WorkRoute{{ID: 9, Name: "Soir"}}
			m.SetState(d)
			m.OpenPicker()
			require.NotNil(t, m.form)

			m.fb.route = tt.route
			m.form.State = huh.StateCompleted
			m, cmd := m.Update(tea.WindowSizeMsg{Width: 100, Height: 30})

			assert.False(t, m.PickerOpen())
			assert.Equal(t, tt.want, msgs(cmd))
		})
	}
}
