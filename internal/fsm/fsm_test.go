// Copyright (c) 2025 ManuGH
// Licensed under the PolyForm Noncommercial License 1.0.0

package fsm

import (
	"context"
	"errors"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

type state string
type event string

func TestMachine_FireFollowsTable(t *testing.T) {
	var actions []string
	m, err := New[state, event]("off", []Transition[state, event]{
		{From: "off", Event: "power", To: "on", Action: func(_ context.Context, from, to state, _ event) error {
			actions = append(actions, string(from)+">"+string(to))
			return nil
		}},
		{From: "on", Event: "power", To: "off"},
	})
	require.NoError(t, err)

	var observed []string
	m.OnTransition(func(from, to state, _ event) {
		observed = append(observed, string(from)+">"+string(to))
	})

	got, err := m.Fire(context.Background(), "power")
	require.NoError(t, err)
	assert.Equal(t, state("on"), got)
	assert.True(t, m.Can("power"))
	assert.False(t, m.Can("reset"))

	_, err = m.Fire(context.Background(), "power")
	require.NoError(t, err)
	assert.Equal(t, []string{"off>on"}, actions)
	assert.Equal(t, []string{"off>on", "on>off"}, observed)
}

func TestMachine_UnknownTransition(t *testing.T) {
	m, err := New[state, event]("off", nil)
	require.NoError(t, err)

	got, err := m.Fire(context.Background(), "power")
	require.ErrorIs(t, err, ErrInvalidTransition)
	assert.Equal(t, state("off"), got)
}

func TestMachine_FailedActionKeepsState(t *testing.T) {
	boom := errors.New("boom")
	m, err := New[state, event]("off", []Transition[state, event]{
		{From: "off", Event: "power", To: "on", Action: func(context.Context, state, state, event) error { return boom }},
	})
	require.NoError(t, err)

	got, err := m.Fire(context.Background(), "power")
	require.ErrorIs(t, err, boom)
	assert.Equal(t, state("off"), got)
	assert.Equal(t, state("off"), m.State())
}

func TestMachine_GuardRejects(t *testing.T) {
	denied := errors.New("denied")
	m, err := New[state, event]("off", []Transition[state, event]{
		{From: "off", Event: "power", To: "on", Guard: func(context.Context, state, event) error { return denied }},
	})
	require.NoError(t, err)

	_, err = m.Fire(context.Background(), "power")
	require.ErrorIs(t, err, denied)
	assert.Equal(t, state("off"), m.State())
}

func TestNew_RejectsDuplicateEdges(t *testing.T) {
	_, err := New[state, event]("off", []Transition[state, event]{
		{From: "off", Event: "power", To: "on"},
		{From: "off", Event: "power", To: "broken"},
	})
	require.Error(t, err)
}
