package client

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestMemoryStorageNotifiesSubscribers(t *testing.T) {
	s := NewMemoryStorage()
	var changes []Change
	unsub := s.Subscribe(func(ch Change) { changes = append(changes, ch) })

	s.Set("k", "v1")
	s.Set("k", "v2")
	s.Remove("k")

	require.Len(t, changes, 3)
	assert.Equal(t, Change{Key: "k", Value: "v1"}, changes[0])
	assert.Equal(t, Change{Key: "k", Value: "v2"}, changes[1])
	assert.Equal(t, Change{Key: "k", Removed: true}, changes[2])

	unsub()
	s.Set("k", "v3")
	assert.Len(t, changes, 3)
}

func TestMemoryStorageRemoveMissingKeyIsSilent(t *testing.T) {
	s := NewMemoryStorage()
	notified := false
	s.Subscribe(func(Change) { notified = true })

	s.Remove("absent")
	assert.False(t, notified)
}

func TestMemoryStorageLastWriteWins(t *testing.T) {
	s := NewMemoryStorage()
	s.Set("k", "first")
	s.Set("k", "second")

	v, ok := s.Get("k")
	require.True(t, ok)
	assert.Equal(t, "second", v)
}

func TestMemoryStorageHandlerMayReenter(t *testing.T) {
	s := NewMemoryStorage()
	var seen string
	s.Subscribe(func(ch Change) {
		if ch.Key == "a" {
			// handlers may call back into storage without deadlocking
			v, _ := s.Get("a")
			seen = v
		}
	})

	s.Set("a", "value")
	assert.Equal(t, "value", seen)
}
