package relay

import (
	"context"
	"errors"
	"fmt"
	"sync"
	"time"

	"github.com/gorilla/websocket"
	"github.com/looplab/fsm"
	"github.com/sirupsen/logrus"

	"github.com/yoockh/callrelay/internal/models"
	"github.com/yoockh/callrelay/internal/protocol"
	"github.com/yoockh/callrelay/internal/realtime"
)

// Inbound is the telephony side of a call. *websocket.Conn satisfies it.
type Inbound interface {
	ReadMessage() (messageType int, p []byte, err error)
	WriteMessage(messageType int, data []byte) error
	Close() error
}

// Upstream is the realtime AI side of a call. *realtime.Conn satisfies it.
type Upstream interface {
	State() realtime.State
	Send(data []byte) error
	Close() error
}

type UpstreamDialer func(ctx context.Context, h realtime.Handler) Upstream

type PostCallProcessor interface {
	Process(ctx context.Context, pc models.PostCall)
}

// Error kinds used in log fields and metrics.
const (
	kindTransport   = "transport"
	kindParse       = "parse"
	kindMissingData = "missing_data"
)

type Options struct {
	Store    *Store
	Dial     UpstreamDialer
	PostCall PostCallProcessor

	// Instructions returns the current system message; read at push time.
	Instructions func() string
	Voice        string
	Temperature  float64
	WebhookURL   string

	ConfigDelay           time.Duration
	InboxSize             int
	PostCallTimeout       time.Duration
	HangupOnUpstreamClose bool

	Logger  *logrus.Logger
	Metrics *Metrics
}

// Relay creates one Call per inbound media stream.
type Relay struct {
	opts Options
	wg   sync.WaitGroup
}

func New(opts Options) *Relay {
	if opts.Store == nil {
		opts.Store = NewStore(0, 0)
	}
	if opts.ConfigDelay <= 0 {
		opts.ConfigDelay = 250 * time.Millisecond
	}
	if opts.InboxSize <= 0 {
		opts.InboxSize = 256
	}
	if opts.PostCallTimeout <= 0 {
		opts.PostCallTimeout = 2 * time.Minute
	}
	if opts.Instructions == nil {
		opts.Instructions = func() string { return "" }
	}
	if opts.Logger == nil {
		opts.Logger = logrus.New()
	}
	return &Relay{opts: opts}
}

func (r *Relay) Store() *Store { return r.opts.Store }

// Wait blocks until running calls and their post-call hand-offs have returned.
func (r *Relay) Wait() { r.wg.Wait() }

// SessionID derives the session key from the provider call id, or a
// process-local time-based id when the provider sent none.
func SessionID(callSID string, now time.Time) string {
	if callSID != "" {
		return callSID
	}
	return fmt.Sprintf("session_%d", now.UnixNano())
}

type msgKind int

const (
	msgInbound msgKind = iota
	msgInboundClosed
	msgUpstream
	msgPushConfig
)

type message struct {
	kind msgKind
	data []byte
	err  error
	ev   realtime.Event
}

// Call is the actor for one call. Everything touching the session, the
// state machine or inbound writes runs on the Run goroutine.
type Call struct {
	r       *Relay
	sess    *Session
	in      Inbound
	up      Upstream
	fsm     *fsm.FSM
	inbox   chan message
	done    chan struct{}
	log     *logrus.Entry
	started time.Time

	pushed    bool
	handedOff bool
}

// NewCall registers a call with the relay; the caller must Run it.
func (r *Relay) NewCall(sessionID string, in Inbound) *Call {
	r.wg.Add(1)
	c := &Call{
		r:       r,
		in:      in,
		inbox:   make(chan message, r.opts.InboxSize),
		done:    make(chan struct{}),
		started: time.Now(),
	}
	c.sess = r.opts.Store.Create(sessionID)
	c.log = r.opts.Logger.WithField("session_id", sessionID)
	c.fsm = newCallFSM(func(from, to CallState) {
		c.log.WithFields(logrus.Fields{"from": from, "to": to}).Debug("call state changed")
		r.opts.Metrics.transition(from, to)
	})
	return c
}

func (c *Call) Session() *Session { return c.sess }

func (c *Call) State() CallState { return CallState(c.fsm.Current()) }

// post delivers m to the inbox unless the call has already finished.
func (c *Call) post(m message) bool {
	select {
	case c.inbox <- m:
		return true
	case <-c.done:
		return false
	}
}

func (c *Call) onUpstream(ev realtime.Event) {
	c.post(message{kind: msgUpstream, ev: ev})
}

// Run drives the call until the inbound side closes or ctx is done.
func (c *Call) Run(ctx context.Context) {
	defer c.r.wg.Done()
	defer close(c.done)

	c.r.opts.Metrics.callStarted()
	c.log.Info("media stream connected")

	c.up = c.r.opts.Dial(ctx, c.onUpstream)
	go c.readInbound()

	for {
		select {
		case m := <-c.inbox:
			if c.handle(ctx, m) {
				return
			}
		case <-c.sess.Evicted():
			c.log.Warn("session evicted from store")
			_ = c.in.Close()
			c.teardown(ctx, "evicted")
			return
		case <-ctx.Done():
			_ = c.in.Close()
			c.teardown(ctx, "shutdown")
			return
		}
	}
}

func (c *Call) readInbound() {
	for {
		_, data, err := c.in.ReadMessage()
		if err != nil {
			c.post(message{kind: msgInboundClosed, err: err})
			return
		}
		if !c.post(message{kind: msgInbound, data: data}) {
			return
		}
	}
}

// handle returns true once the call is terminated.
func (c *Call) handle(ctx context.Context, m message) bool {
	switch m.kind {
	case msgInbound:
		st := c.State()
		if st != StateInit && st != StateActive {
			return false
		}
		c.r.opts.Store.Touch(c.sess.ID)
		c.handleInbound(m.data)
	case msgInboundClosed:
		if m.err != nil && !websocket.IsCloseError(m.err, websocket.CloseNormalClosure, websocket.CloseGoingAway) {
			c.log.WithError(m.err).Debug("inbound read ended")
		}
		c.teardown(ctx, "inbound closed")
		return true
	case msgUpstream:
		c.handleUpstreamEvent(ctx, m.ev)
	case msgPushConfig:
		c.pushConfig()
	}
	return false
}

func (c *Call) handleInbound(data []byte) {
	ev, err := protocol.DecodeInbound(data)
	if err != nil {
		c.r.opts.Metrics.failed(kindParse)
		c.log.WithError(err).WithField("error_kind", kindParse).Error("error parsing message")
		return
	}

	switch e := ev.(type) {
	case protocol.StartEvent:
		c.sess.StreamHandle = e.StreamSID
		if e.CallSID != "" {
			c.sess.CallSID = e.CallSID
		}
		c.log = c.log.WithField("stream_sid", e.StreamSID)
		c.log.Info("incoming stream has started")
	case protocol.MediaEvent:
		if c.up == nil || c.up.State() != realtime.StateOpen {
			c.r.opts.Metrics.dropped("upstream_not_open")
			return
		}
		frame, err := protocol.EncodeAppendAudio(e.Payload)
		if err != nil {
			c.r.opts.Metrics.failed(kindParse)
			return
		}
		if err := c.up.Send(frame); err != nil {
			c.r.opts.Metrics.dropped("upstream_send_failed")
			c.log.WithError(err).WithField("error_kind", kindTransport).Warn("append audio failed")
			return
		}
		c.r.opts.Metrics.relayed("inbound")
	default:
		c.log.WithField("event", ev.Tag()).Info("received non-media event")
	}
}

func (c *Call) handleUpstreamEvent(ctx context.Context, ev realtime.Event) {
	switch ev.Kind {
	case realtime.EventOpen:
		c.log.Info("connected to the realtime API")
		time.AfterFunc(c.r.opts.ConfigDelay, func() {
			c.post(message{kind: msgPushConfig})
		})
		if err := c.fsm.Event(ctx, eventActivate); err != nil {
			c.log.WithError(err).Debug("activate ignored")
		}
	case realtime.EventMessage:
		if c.State() != StateActive {
			return
		}
		c.handleUpstream(ev.Data)
	case realtime.EventError:
		c.r.opts.Metrics.failed(kindTransport)
		c.log.WithError(ev.Err).WithField("error_kind", kindTransport).Error("error in the realtime socket")
	case realtime.EventClose:
		c.log.Info("disconnected from the realtime API")
		if c.r.opts.HangupOnUpstreamClose {
			st := c.State()
			if st == StateInit || st == StateActive {
				c.log.Warn("closing media stream after upstream loss")
				_ = c.in.Close()
			}
		}
	}
}

func (c *Call) pushConfig() {
	if c.pushed || c.State() != StateActive || c.up == nil || c.up.State() != realtime.StateOpen {
		return
	}
	c.pushed = true

	settings := protocol.SessionSettings{
		Voice:        c.r.opts.Voice,
		Instructions: c.r.opts.Instructions(),
		Temperature:  c.r.opts.Temperature,
	}
	frame, err := protocol.EncodeSessionUpdate(settings)
	if err != nil {
		c.log.WithError(err).Error("encode session update")
		return
	}
	c.log.WithField("voice", settings.Voice).Debug("sending session update")
	if err := c.up.Send(frame); err != nil {
		c.r.opts.Metrics.failed(kindTransport)
		c.log.WithError(err).WithField("error_kind", kindTransport).Error("send session update")
	}
}

func (c *Call) handleUpstream(data []byte) {
	ev, err := protocol.DecodeUpstream(data)
	if err != nil {
		c.r.opts.Metrics.failed(kindParse)
		c.log.WithError(err).WithField("error_kind", kindParse).Error("error processing realtime message")
		return
	}
	if protocol.IsLogged(ev.Type()) {
		c.log.WithField("type", ev.Type()).Info("received event")
	}

	switch e := ev.(type) {
	case protocol.TranscriptionCompleted:
		c.sess.Append(SpeakerUser, e.Transcript)
		c.log.WithField("text", e.Transcript).Info("user")
	case protocol.ResponseDone:
		if !e.Found {
			c.r.opts.Metrics.failed(kindMissingData)
		}
		c.sess.Append(SpeakerAgent, e.Transcript)
		c.log.WithField("text", e.Transcript).Info("agent")
	case protocol.AudioDelta:
		c.forwardAudio(e.Delta)
	case protocol.SessionUpdated:
		c.log.Info("session updated successfully")
	case protocol.UpstreamError:
		c.log.WithFields(logrus.Fields{"code": e.Code, "message": e.Message}).Error("realtime API reported an error")
	case protocol.Observed:
	default:
		c.log.WithField("type", ev.Type()).Trace("ignored realtime event")
	}
}

func (c *Call) forwardAudio(delta string) {
	frame, err := protocol.EncodeOutboundMedia(c.sess.StreamHandle, delta)
	if errors.Is(err, protocol.ErrNoStreamHandle) {
		c.r.opts.Metrics.dropped("no_stream_handle")
		return
	}
	if err != nil {
		c.r.opts.Metrics.failed(kindParse)
		c.log.WithError(err).WithField("error_kind", kindParse).Warn("bad audio delta")
		return
	}
	if err := c.in.WriteMessage(websocket.TextMessage, frame); err != nil {
		c.r.opts.Metrics.failed(kindTransport)
		c.log.WithError(err).WithField("error_kind", kindTransport).Warn("write media to stream")
		return
	}
	c.r.opts.Metrics.relayed("outbound")
}

func (c *Call) teardown(ctx context.Context, reason string) {
	ctx = context.WithoutCancel(ctx)
	if err := c.fsm.Event(ctx, eventClose); err != nil {
		c.log.WithError(err).Debug("close ignored")
	}
	if c.up != nil && c.up.State() != realtime.StateClosed {
		_ = c.up.Close()
	}

	transcript := c.sess.TranscriptText()
	c.log.WithFields(logrus.Fields{"reason": reason, "lines": c.sess.Len()}).Info("client disconnected")
	c.log.WithField("transcript", transcript).Info("full transcript")

	c.handOff(transcript)
	c.r.opts.Store.Delete(c.sess.ID, c.sess)

	if err := c.fsm.Event(ctx, eventTerminate); err != nil {
		c.log.WithError(err).Debug("terminate ignored")
	}
	c.r.opts.Metrics.callEnded(time.Since(c.started).Seconds())
}

func (c *Call) handOff(transcript string) {
	if c.handedOff || c.r.opts.PostCall == nil {
		return
	}
	c.handedOff = true

	lines := make([]models.TranscriptLine, 0, c.sess.Len())
	for _, u := range c.sess.Transcript() {
		lines = append(lines, models.TranscriptLine{Speaker: string(u.Speaker), Text: u.Text})
	}
	pc := models.PostCall{
		SessionID:  c.sess.ID,
		CallSID:    c.sess.CallSID,
		StreamSID:  c.sess.StreamHandle,
		Transcript: transcript,
		Lines:      lines,
		WebhookURL: c.r.opts.WebhookURL,
		StartedAt:  c.started.UTC(),
		EndedAt:    time.Now().UTC(),
	}

	proc, timeout := c.r.opts.PostCall, c.r.opts.PostCallTimeout
	c.r.wg.Add(1)
	go func() {
		defer c.r.wg.Done()
		ctx, cancel := context.WithTimeout(context.Background(), timeout)
		defer cancel()
		proc.Process(ctx, pc)
	}()
}
