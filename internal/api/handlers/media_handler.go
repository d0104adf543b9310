package handlers

import (
	"net/http"
	"sync"
	"time"

	"github.com/gin-gonic/gin"
	"github.com/gorilla/websocket"
	"github.com/sirupsen/logrus"

	"github.com/yoockh/callrelay/internal/relay"
)

// CallSIDHeader carries the provider call id on the media stream upgrade.
const CallSIDHeader = "X-Twilio-Call-Sid"

const writeTimeout = 10 * time.Second

type MediaHandler struct {
	relay       *relay.Relay
	log         *logrus.Logger
	upgrader    websocket.Upgrader
	readTimeout time.Duration
}

// NewMediaHandler serves provider media streams. A positive readTimeout
// drops streams that send nothing for that long; zero never times out.
func NewMediaHandler(r *relay.Relay, log *logrus.Logger, readTimeout time.Duration) *MediaHandler {
	return &MediaHandler{
		relay:       r,
		log:         log,
		readTimeout: readTimeout,
		upgrader: websocket.Upgrader{
			CheckOrigin: func(r *http.Request) bool { return true }, // provider connects server-to-server
		},
	}
}

// wsConn serialises writes and keeps the read deadline moving while media flows.
type wsConn struct {
	c           *websocket.Conn
	mu          sync.Mutex
	readTimeout time.Duration
}

func (w *wsConn) ReadMessage() (int, []byte, error) {
	if w.readTimeout > 0 {
		_ = w.c.SetReadDeadline(time.Now().Add(w.readTimeout))
	}
	return w.c.ReadMessage()
}

func (w *wsConn) WriteMessage(messageType int, data []byte) error {
	w.mu.Lock()
	defer w.mu.Unlock()
	_ = w.c.SetWriteDeadline(time.Now().Add(writeTimeout))
	return w.c.WriteMessage(messageType, data)
}

func (w *wsConn) Close() error { return w.c.Close() }

func (h *MediaHandler) MediaStream(c *gin.Context) {
	conn, err := h.upgrader.Upgrade(c.Writer, c.Request, nil)
	if err != nil {
		// upgrade already wrote response in most cases
		h.log.WithError(err).Warn("media stream upgrade failed")
		return
	}
	wc := &wsConn{c: conn, readTimeout: h.readTimeout}
	defer wc.Close()

	if h.readTimeout > 0 {
		conn.SetPongHandler(func(string) error {
			return conn.SetReadDeadline(time.Now().Add(h.readTimeout))
		})
	}

	sessionID := relay.SessionID(c.GetHeader(CallSIDHeader), time.Now())
	call := h.relay.NewCall(sessionID, wc)
	call.Run(c.Request.Context())
}
