package realtime

import (
	"context"
	"errors"
	"fmt"
	"net/http"
	"net/url"
	"sync"
	"sync/atomic"
	"time"

	"github.com/gorilla/websocket"
)

const (
	DefaultURL   = "wss://api.openai.com/v1/realtime"
	DefaultModel = "gpt-4o-realtime-preview-2024-10-01"
)

var ErrNotOpen = errors.New("realtime: connection is not open")

type State int32

const (
	StateConnecting State = iota
	StateOpen
	StateClosed
)

func (s State) String() string {
	switch s {
	case StateConnecting:
		return "connecting"
	case StateOpen:
		return "open"
	case StateClosed:
		return "closed"
	default:
		return "unknown"
	}
}

type EventKind int

const (
	EventOpen EventKind = iota
	EventMessage
	EventError
	EventClose
)

func (k EventKind) String() string {
	switch k {
	case EventOpen:
		return "open"
	case EventMessage:
		return "message"
	case EventError:
		return "error"
	case EventClose:
		return "close"
	default:
		return "unknown"
	}
}

type Event struct {
	Kind EventKind
	Data []byte // EventMessage only
	Err  error  // EventError only
}

// Handler receives connection events in order from a single goroutine.
// It must not block for long; the relay hands events to the call's inbox.
type Handler func(Event)

type Config struct {
	URL              string
	Model            string
	APIKey           string
	HandshakeTimeout time.Duration
	WriteTimeout     time.Duration
}

type Connector struct {
	cfg    Config
	dialer *websocket.Dialer
}

func NewConnector(cfg Config) *Connector {
	if cfg.URL == "" {
		cfg.URL = DefaultURL
	}
	if cfg.Model == "" {
		cfg.Model = DefaultModel
	}
	if cfg.HandshakeTimeout <= 0 {
		cfg.HandshakeTimeout = 15 * time.Second
	}
	if cfg.WriteTimeout <= 0 {
		cfg.WriteTimeout = 10 * time.Second
	}
	return &Connector{
		cfg:    cfg,
		dialer: &websocket.Dialer{HandshakeTimeout: cfg.HandshakeTimeout, Proxy: http.ProxyFromEnvironment},
	}
}

func (c *Connector) endpoint() (string, error) {
	u, err := url.Parse(c.cfg.URL)
	if err != nil {
		return "", fmt.Errorf("realtime: bad url: %w", err)
	}
	q := u.Query()
	q.Set("model", c.cfg.Model)
	u.RawQuery = q.Encode()
	return u.String(), nil
}

// Open starts the handshake and returns at once; the connection reports
// EventOpen (or EventError then EventClose) through h.
func (c *Connector) Open(ctx context.Context, h Handler) *Conn {
	conn := &Conn{
		handler:      h,
		writeTimeout: c.cfg.WriteTimeout,
		done:         make(chan struct{}),
	}
	conn.state.Store(int32(StateConnecting))
	go conn.run(ctx, c)
	return conn
}

// Conn is one upstream realtime socket. Send and Close are safe for concurrent use.
type Conn struct {
	handler      Handler
	writeTimeout time.Duration

	state   atomic.Int32
	mu      sync.Mutex
	ws      *websocket.Conn
	closing bool

	closeOnce sync.Once
	done      chan struct{}
}

func (c *Conn) State() State { return State(c.state.Load()) }

func (c *Conn) emit(ev Event) {
	if c.handler != nil {
		c.handler(ev)
	}
}

func (c *Conn) run(ctx context.Context, cn *Connector) {
	defer c.finish()

	endpoint, err := cn.endpoint()
	if err != nil {
		c.emit(Event{Kind: EventError, Err: err})
		return
	}

	headers := http.Header{}
	headers.Set("Authorization", "Bearer "+cn.cfg.APIKey)
	headers.Set("OpenAI-Beta", "realtime=v1")

	ws, resp, err := cn.dialer.DialContext(ctx, endpoint, headers)
	if err != nil {
		if resp != nil {
			err = fmt.Errorf("realtime: dial failed with status %d: %w", resp.StatusCode, err)
		} else {
			err = fmt.Errorf("realtime: dial failed: %w", err)
		}
		c.emit(Event{Kind: EventError, Err: err})
		return
	}

	c.mu.Lock()
	if c.closing {
		c.mu.Unlock()
		_ = ws.Close()
		return
	}
	c.ws = ws
	c.state.Store(int32(StateOpen))
	c.mu.Unlock()

	stop := context.AfterFunc(ctx, func() { _ = c.Close() })
	defer stop()

	c.emit(Event{Kind: EventOpen})

	for {
		_, data, err := ws.ReadMessage()
		if err != nil {
			c.mu.Lock()
			initiated := c.closing
			c.mu.Unlock()
			if !initiated && !websocket.IsCloseError(err, websocket.CloseNormalClosure) {
				c.emit(Event{Kind: EventError, Err: fmt.Errorf("realtime: read: %w", err)})
			}
			return
		}
		c.emit(Event{Kind: EventMessage, Data: data})
	}
}

func (c *Conn) finish() {
	c.state.Store(int32(StateClosed))
	c.emit(Event{Kind: EventClose})
	close(c.done)
}

// Send writes one text frame. It fails with ErrNotOpen unless the socket is open.
func (c *Conn) Send(data []byte) error {
	c.mu.Lock()
	defer c.mu.Unlock()

	if c.ws == nil || c.closing || c.State() != StateOpen {
		return ErrNotOpen
	}
	_ = c.ws.SetWriteDeadline(time.Now().Add(c.writeTimeout))
	return c.ws.WriteMessage(websocket.TextMessage, data)
}

// Close is idempotent. A connection still handshaking is closed as soon as the dial returns.
func (c *Conn) Close() error {
	var err error
	c.closeOnce.Do(func() {
		c.mu.Lock()
		c.closing = true
		ws := c.ws
		if ws != nil {
			_ = ws.SetWriteDeadline(time.Now().Add(c.writeTimeout))
			_ = ws.WriteMessage(websocket.CloseMessage, websocket.FormatCloseMessage(websocket.CloseNormalClosure, ""))
		}
		c.mu.Unlock()
		if ws != nil {
			err = ws.Close()
		}
	})
	return err
}

// Done is closed after EventClose has been delivered.
func (c *Conn) Done() <-chan struct{} { return c.done }
