package handlers

import (
	"context"
	"net/http/httptest"
	"strings"
	"sync"
	"testing"
	"time"

	"github.com/gin-gonic/gin"
	"github.com/gorilla/websocket"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/yoockh/callrelay/internal/models"
	"github.com/yoockh/callrelay/internal/realtime"
	"github.com/yoockh/callrelay/internal/relay"
)

type loopUpstream struct {
	mu   sync.Mutex
	sent [][]byte
}

func (u *loopUpstream) State() realtime.State { return realtime.StateOpen }

func (u *loopUpstream) Send(b []byte) error {
	u.mu.Lock()
	u.sent = append(u.sent, b)
	u.mu.Unlock()
	return nil
}

func (u *loopUpstream) Close() error { return nil }

type chanPostCall struct{ ch chan models.PostCall }

func (c chanPostCall) Process(_ context.Context, pc models.PostCall) { c.ch <- pc }

func TestMediaStream_RelaysAudioBothWays(t *testing.T) {
	dialed := make(chan realtime.Handler, 1)
	up := &loopUpstream{}
	pc := chanPostCall{ch: make(chan models.PostCall, 1)}

	rl := relay.New(relay.Options{
		Dial: func(_ context.Context, h realtime.Handler) relay.Upstream {
			dialed <- h
			return up
		},
		PostCall:    pc,
		ConfigDelay: time.Hour,
		Logger:      quietLogger(),
	})

	r := gin.New()
	r.GET("/media-stream", NewMediaHandler(rl, quietLogger(), 0).MediaStream)
	srv := httptest.NewServer(r)
	defer srv.Close()

	header := map[string][]string{CallSIDHeader: {"CA77"}}
	conn, _, err := websocket.DefaultDialer.Dial("ws"+strings.TrimPrefix(srv.URL, "http")+"/media-stream", header)
	require.NoError(t, err)
	defer conn.Close()

	var h realtime.Handler
	select {
	case h = <-dialed:
	case <-time.After(2 * time.Second):
		t.Fatal("upstream never dialed")
	}
	h(realtime.Event{Kind: realtime.EventOpen})

	require.NoError(t, conn.WriteMessage(websocket.TextMessage, []byte(`{"event":"start","start":{"streamSid":"SD123"}}`)))
	require.NoError(t, conn.WriteMessage(websocket.TextMessage, []byte(`{"event":"media","media":{"payload":"QUJD"}}`)))

	// inbound frames are handled in order: once media reached upstream the stream handle is set
	require.Eventually(t, func() bool {
		up.mu.Lock()
		defer up.mu.Unlock()
		return len(up.sent) == 1
	}, 2*time.Second, 10*time.Millisecond)

	h(realtime.Event{Kind: realtime.EventMessage, Data: []byte(`{"type":"response.audio.delta","delta":"QUJD"}`)})

	_ = conn.SetReadDeadline(time.Now().Add(2 * time.Second))
	_, frame, err := conn.ReadMessage()
	require.NoError(t, err)
	assert.JSONEq(t, `{"event":"media","streamSid":"SD123","media":{"payload":"QUJD"}}`, string(frame))

	require.NoError(t, conn.WriteMessage(websocket.CloseMessage, websocket.FormatCloseMessage(websocket.CloseNormalClosure, "")))

	select {
	case got := <-pc.ch:
		assert.Equal(t, "CA77", got.SessionID)
		assert.Equal(t, "SD123", got.StreamSID)
	case <-time.After(2 * time.Second):
		t.Fatal("no hand-off after hangup")
	}
	rl.Wait()
	assert.Equal(t, 0, rl.Store().Len())
}

func TestMediaStream_ReadTimeout(t *testing.T) {
	open := func(t *testing.T, readTimeout time.Duration) (*relay.Relay, chanPostCall, *websocket.Conn) {
		t.Helper()
		dialed := make(chan struct{}, 1)
		pc := chanPostCall{ch: make(chan models.PostCall, 1)}
		rl := relay.New(relay.Options{
			Dial: func(context.Context, realtime.Handler) relay.Upstream {
				dialed <- struct{}{}
				return &loopUpstream{}
			},
			PostCall:    pc,
			ConfigDelay: time.Hour,
			Logger:      quietLogger(),
		})

		r := gin.New()
		r.GET("/media-stream", NewMediaHandler(rl, quietLogger(), readTimeout).MediaStream)
		srv := httptest.NewServer(r)
		t.Cleanup(srv.Close)

		conn, _, err := websocket.DefaultDialer.Dial("ws"+strings.TrimPrefix(srv.URL, "http")+"/media-stream", nil)
		require.NoError(t, err)
		t.Cleanup(func() { _ = conn.Close() })

		select {
		case <-dialed:
		case <-time.After(2 * time.Second):
			t.Fatal("upstream never dialed")
		}
		return rl, pc, conn
	}

	t.Run("silent stream stays open by default", func(t *testing.T) {
		rl, pc, conn := open(t, 0)

		select {
		case <-pc.ch:
			t.Fatal("silent stream was torn down")
		case <-time.After(200 * time.Millisecond):
		}
		assert.Equal(t, 1, rl.Store().Len())

		require.NoError(t, conn.WriteMessage(websocket.CloseMessage, websocket.FormatCloseMessage(websocket.CloseNormalClosure, "")))
		select {
		case <-pc.ch:
		case <-time.After(2 * time.Second):
			t.Fatal("no hand-off after hangup")
		}
		rl.Wait()
	})

	t.Run("configured timeout ends a silent stream", func(t *testing.T) {
		rl, pc, _ := open(t, 50*time.Millisecond)

		select {
		case <-pc.ch:
		case <-time.After(2 * time.Second):
			t.Fatal("silent stream never timed out")
		}
		rl.Wait()
		assert.Equal(t, 0, rl.Store().Len())
	})
}
