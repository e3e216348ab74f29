package main

import (
	"errors"
	"testing"
	"time"

	tea "github.com/charmbracelet/bubbletea"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/fyrsmithlabs/resolvd/internal/engine"
	api "github.com/fyrsmithlabs/resolvd/internal/http"
	"github.com/fyrsmithlabs/resolvd/internal/pattern"
)

func sampleStatus() *api.StatusResponse {
	return &api.StatusResponse{
		Status:   "degraded",
		Services: map[string]string{"store": "error: connection refused"},
		Engine: &engine.HealthReport{
			TotalPatterns:      2,
			TotalOccurrences:   7,
			ByState:            map[pattern.State]int{pattern.StateTracking: 1, pattern.StateLearned: 1},
			OverallSuccessRate: 0.75,
			ErrorsLastHour:     7,
			CriticalLastHour:   2,
			TopPatterns: []engine.PatternSummary{{
				Signature:         "0123456789ab",
				Kind:              "DEADLOCK",
				Occurrences:       5,
				State:             pattern.StateLearned,
				PreferredStrategy: "self_healing",
			}},
		},
	}
}

func staticFetch(s *api.StatusResponse, err error) fetchFunc {
	return func() (*api.StatusResponse, error) { return s, err }
}

func TestTopModel_Init(t *testing.T) {
	m := newTopModel("http://localhost:9191", time.Second, staticFetch(sampleStatus(), nil))
	assert.NotNil(t, m.Init())
}

func TestTopModel_QuitKey(t *testing.T) {
	m := newTopModel("http://localhost:9191", time.Second, staticFetch(nil, nil))

	updated, cmd := m.Update(tea.KeyMsg{Type: tea.KeyRunes, Runes: []rune{'q'}})
	assert.True(t, updated.(topModel).quitting)
	assert.NotNil(t, cmd)
	assert.Empty(t, updated.(topModel).View())
}

func TestTopModel_RefreshPolls(t *testing.T) {
	m := newTopModel("http://localhost:9191", time.Second, staticFetch(sampleStatus(), nil))

	_, cmd := m.Update(tea.KeyMsg{Type: tea.KeyRunes, Runes: []rune{'r'}})
	require.NotNil(t, cmd)
	msg, ok := cmd().(statusMsg)
	require.True(t, ok)
	assert.Equal(t, 7, msg.status.Engine.ErrorsLastHour)
}

func TestTopModel_StatusUpdatesHistory(t *testing.T) {
	m := newTopModel("http://localhost:9191", time.Second, nil)

	var model tea.Model = m
	for i := 0; i < historySize+5; i++ {
		model, _ = model.Update(statusMsg{sampleStatus()})
	}
	got := model.(topModel)
	assert.Len(t, got.errorHistory, historySize)
	assert.Equal(t, 75.0, got.successHistory[len(got.successHistory)-1])
	assert.False(t, got.lastUpdate.IsZero())

	view := got.View()
	assert.Contains(t, view, "DEGRADED")
	assert.Contains(t, view, "0123456789ab")
	assert.Contains(t, view, "self_healing")
	assert.Contains(t, view, "connection refused")
}

func TestTopModel_ErrorView(t *testing.T) {
	m := newTopModel("http://localhost:9191", time.Second, nil)

	updated, _ := m.Update(errMsg{errors.New("dial tcp: refused")})
	view := updated.View()
	assert.Contains(t, view, "Cannot reach resolvd")
	assert.Contains(t, view, "dial tcp: refused")

	updated, _ = updated.Update(statusMsg{sampleStatus()})
	assert.Nil(t, updated.(topModel).err)
}

func TestAppendToHistory(t *testing.T) {
	var h []float64
	for i := 0; i < historySize+3; i++ {
		h = appendToHistory(h, float64(i))
	}
	require.Len(t, h, historySize)
	assert.Equal(t, 3.0, h[0])
}
