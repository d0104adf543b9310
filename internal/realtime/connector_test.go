package realtime

import (
	"context"
	"net/http"
	"net/http/httptest"
	"strings"
	"sync"
	"testing"
	"time"

	"github.com/gorilla/websocket"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

type recorder struct {
	mu     sync.Mutex
	events []Event
	ch     chan Event
}

func newRecorder() *recorder { return &recorder{ch: make(chan Event, 32)} }

func (r *recorder) handle(ev Event) {
	r.mu.Lock()
	r.events = append(r.events, ev)
	r.mu.Unlock()
	r.ch <- ev
}

func (r *recorder) next(t *testing.T) Event {
	t.Helper()
	select {
	case ev := <-r.ch:
		return ev
	case <-time.After(2 * time.Second):
		t.Fatal("timed out waiting for event")
		return Event{}
	}
}

func wsURL(srv *httptest.Server) string {
	return "ws" + strings.TrimPrefix(srv.URL, "http")
}

func TestConnector_OpenMessageClose(t *testing.T) {
	requests := make(chan *http.Request, 1)
	received := make(chan string, 1)
	upgrader := websocket.Upgrader{}
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		requests <- r.Clone(context.Background())

		conn, err := upgrader.Upgrade(w, r, nil)
		if err != nil {
			return
		}
		defer conn.Close()

		_ = conn.WriteMessage(websocket.TextMessage, []byte(`{"type":"session.created"}`))
		_, data, err := conn.ReadMessage()
		if err == nil {
			received <- string(data)
		}
		_ = conn.WriteMessage(websocket.CloseMessage, websocket.FormatCloseMessage(websocket.CloseNormalClosure, ""))
	}))
	defer srv.Close()

	rec := newRecorder()
	c := NewConnector(Config{URL: wsURL(srv), APIKey: "sk-test"}).Open(context.Background(), rec.handle)

	assert.Equal(t, EventOpen, rec.next(t).Kind)
	assert.Equal(t, StateOpen, c.State())
	req := <-requests
	assert.Equal(t, "Bearer sk-test", req.Header.Get("Authorization"))
	assert.Equal(t, "realtime=v1", req.Header.Get("OpenAI-Beta"))
	assert.Equal(t, DefaultModel, req.URL.Query().Get("model"))

	msg := rec.next(t)
	require.Equal(t, EventMessage, msg.Kind)
	assert.JSONEq(t, `{"type":"session.created"}`, string(msg.Data))

	require.NoError(t, c.Send([]byte(`{"type":"input_audio_buffer.append","audio":"QUJD"}`)))
	select {
	case got := <-received:
		assert.Contains(t, got, "QUJD")
	case <-time.After(2 * time.Second):
		t.Fatal("server never received frame")
	}

	assert.Equal(t, EventClose, rec.next(t).Kind)
	<-c.Done()
	assert.Equal(t, StateClosed, c.State())
	assert.ErrorIs(t, c.Send([]byte(`{}`)), ErrNotOpen)
}

func TestConnector_DialFailureEmitsErrorThenClose(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusUnauthorized)
	}))
	defer srv.Close()

	rec := newRecorder()
	c := NewConnector(Config{URL: wsURL(srv), APIKey: "bad"}).Open(context.Background(), rec.handle)

	ev := rec.next(t)
	require.Equal(t, EventError, ev.Kind)
	assert.Contains(t, ev.Err.Error(), "401")
	assert.Equal(t, EventClose, rec.next(t).Kind)

	<-c.Done()
	assert.Equal(t, StateClosed, c.State())
}

func TestConn_SendBeforeOpen(t *testing.T) {
	release := make(chan struct{})
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		<-release
		w.WriteHeader(http.StatusServiceUnavailable)
	}))
	defer srv.Close()
	defer close(release)

	rec := newRecorder()
	c := NewConnector(Config{URL: wsURL(srv)}).Open(context.Background(), rec.handle)

	assert.Equal(t, StateConnecting, c.State())
	assert.ErrorIs(t, c.Send([]byte(`{}`)), ErrNotOpen)
}

func TestConn_CloseIsIdempotentAndFollowsContext(t *testing.T) {
	upgrader := websocket.Upgrader{}
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		conn, err := upgrader.Upgrade(w, r, nil)
		if err != nil {
			return
		}
		defer conn.Close()
		for {
			if _, _, err := conn.ReadMessage(); err != nil {
				return
			}
		}
	}))
	defer srv.Close()

	ctx, cancel := context.WithCancel(context.Background())
	rec := newRecorder()
	c := NewConnector(Config{URL: wsURL(srv)}).Open(ctx, rec.handle)
	require.Equal(t, EventOpen, rec.next(t).Kind)

	cancel()
	assert.Equal(t, EventClose, rec.next(t).Kind)
	<-c.Done()

	assert.NoError(t, c.Close())
	assert.NoError(t, c.Close())

	rec.mu.Lock()
	defer rec.mu.Unlock()
	for _, ev := range rec.events {
		assert.NotEqual(t, EventError, ev.Kind, "locally initiated close is not an error")
	}
}

func TestStateAndKindStrings(t *testing.T) {
	assert.Equal(t, "connecting", StateConnecting.String())
	assert.Equal(t, "open", StateOpen.String())
	assert.Equal(t, "closed", StateClosed.String())
	assert.Equal(t, "message", EventMessage.String())
}
