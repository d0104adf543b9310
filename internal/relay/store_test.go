package relay

import (
	"context"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestStore_CreateIsIdempotent(t *testing.T) {
	s := NewStore(0, 0)

	a := s.Create("CA1")
	a.StreamHandle = "SD123"
	a.Append(SpeakerUser, "hello")

	b := s.Create("CA1")
	assert.Same(t, a, b)
	assert.Equal(t, "SD123", b.StreamHandle)
	assert.Equal(t, 1, s.Len())

	got, ok := s.Get("CA1")
	require.True(t, ok)
	assert.Same(t, a, got)
}

func TestStore_DeleteThenCreateIsFresh(t *testing.T) {
	s := NewStore(0, 0)
	old := s.Create("CA1")
	old.StreamHandle = "SD123"
	old.Append(SpeakerAgent, "hi")

	assert.True(t, s.Delete("CA1", old))
	_, ok := s.Get("CA1")
	assert.False(t, ok)

	fresh := s.Create("CA1")
	assert.NotSame(t, old, fresh)
	assert.Empty(t, fresh.StreamHandle)
	assert.Equal(t, 0, fresh.Len())
}

func TestStore_DeleteIgnoresReplacedSession(t *testing.T) {
	s := NewStore(time.Minute, 0)
	old := s.Create("CA1")

	require.Equal(t, []string{"CA1"}, s.Reap(time.Now().Add(time.Hour)))
	fresh := s.Create("CA1")

	assert.False(t, s.Delete("CA1", old))
	got, ok := s.Get("CA1")
	require.True(t, ok)
	assert.Same(t, fresh, got)
}

func TestStore_EvictionSignalsSession(t *testing.T) {
	now := time.Date(2024, 10, 1, 12, 0, 0, 0, time.UTC)
	s := NewStore(time.Minute, 1)
	s.now = func() time.Time { return now }

	a := s.Create("a")
	select {
	case <-a.Evicted():
		t.Fatal("live session reported evicted")
	default:
	}

	now = now.Add(time.Second)
	b := s.Create("b")
	assert.True(t, isClosed(a.Evicted()), "capacity eviction")

	s.Reap(now.Add(time.Hour))
	assert.True(t, isClosed(b.Evicted()), "idle reap")

	c := s.Create("c")
	s.Delete("c", c)
	assert.False(t, isClosed(c.Evicted()), "delete at teardown is not an eviction")
}

func isClosed(ch <-chan struct{}) bool {
	select {
	case <-ch:
		return true
	default:
		return false
	}
}

func TestStore_ReapIdle(t *testing.T) {
	now := time.Date(2024, 10, 1, 12, 0, 0, 0, time.UTC)
	s := NewStore(time.Minute, 0)
	s.now = func() time.Time { return now }

	s.Create("old")
	now = now.Add(50 * time.Second)
	s.Create("new")

	reaped := s.Reap(now.Add(20 * time.Second))
	assert.Equal(t, []string{"old"}, reaped)
	_, ok := s.Get("new")
	assert.True(t, ok)

	s.Touch("new")
	assert.Empty(t, s.Reap(now.Add(30*time.Second)))
}

func TestStore_ReapDisabledWithoutTTL(t *testing.T) {
	s := NewStore(0, 0)
	s.Create("a")
	assert.Nil(t, s.Reap(time.Now().Add(24*time.Hour)))
	assert.Equal(t, 1, s.Len())
}

func TestStore_CapEvictsLeastRecentlySeen(t *testing.T) {
	now := time.Date(2024, 10, 1, 12, 0, 0, 0, time.UTC)
	s := NewStore(0, 2)
	s.now = func() time.Time { return now }

	var evicted []string
	s.OnEvict = func(id string) { evicted = append(evicted, id) }

	s.Create("a")
	now = now.Add(time.Second)
	s.Create("b")
	now = now.Add(time.Second)
	s.Touch("a")
	now = now.Add(time.Second)
	s.Create("c")

	assert.Equal(t, []string{"b"}, evicted)
	assert.Equal(t, 2, s.Len())
	_, ok := s.Get("a")
	assert.True(t, ok)
}

func TestStore_RunStopsWithContext(t *testing.T) {
	s := NewStore(time.Millisecond, 0)
	s.Create("a")

	ctx, cancel := context.WithCancel(context.Background())
	reaped := make(chan []string, 1)
	done := make(chan struct{})
	go func() {
		defer close(done)
		s.Run(ctx, 5*time.Millisecond, func(ids []string) {
			select {
			case reaped <- ids:
			default:
			}
		})
	}()

	select {
	case ids := <-reaped:
		assert.Equal(t, []string{"a"}, ids)
	case <-time.After(2 * time.Second):
		t.Fatal("reaper never ran")
	}
	cancel()
	<-done
}

func TestSession_TranscriptText(t *testing.T) {
	s := newSession("CA1", time.Now())
	assert.Equal(t, "", s.TranscriptText())

	s.Append(SpeakerUser, "I need a checkup")
	s.Append(SpeakerAgent, "Sure, what time?")
	assert.Equal(t, "User: I need a checkup\nAgent: Sure, what time?\n", s.TranscriptText())

	lines := s.Transcript()
	lines[0].Text = "changed"
	assert.Equal(t, "I need a checkup", s.Transcript()[0].Text)
}
