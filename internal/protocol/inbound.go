package protocol

import (
	"encoding/base64"
	"encoding/json"
	"errors"
	"fmt"
)

// Twilio media stream event tags.
const (
	TagConnected = "connected"
	TagStart     = "start"
	TagMedia     = "media"
	TagMark      = "mark"
	TagStop      = "stop"
)

var ErrNoStreamHandle = errors.New("protocol: stream handle not set")

// InboundEvent is one decoded message from the telephony media stream.
// Concrete types: StartEvent, MediaEvent, UnknownInbound.
type InboundEvent interface {
	Tag() string
}

type StartEvent struct {
	StreamSID string
	CallSID   string
}

func (StartEvent) Tag() string { return TagStart }

type MediaEvent struct {
	Payload string // base64, already in the negotiated codec
}

func (MediaEvent) Tag() string { return TagMedia }

// UnknownInbound carries any tag the relay does not act on (connected, mark, stop, ...).
type UnknownInbound struct {
	Event string
}

func (u UnknownInbound) Tag() string { return u.Event }

type inboundFrame struct {
	Event string `json:"event"`
	Start *struct {
		StreamSID string `json:"streamSid"`
		CallSID   string `json:"callSid"`
	} `json:"start"`
	Media *struct {
		Payload string `json:"payload"`
	} `json:"media"`
}

func DecodeInbound(data []byte) (InboundEvent, error) {
	var f inboundFrame
	if err := json.Unmarshal(data, &f); err != nil {
		return nil, fmt.Errorf("protocol: parse inbound: %w", err)
	}

	switch f.Event {
	case TagStart:
		if f.Start == nil {
			return nil, errors.New("protocol: start event without start body")
		}
		return StartEvent{StreamSID: f.Start.StreamSID, CallSID: f.Start.CallSID}, nil
	case TagMedia:
		if f.Media == nil {
			return nil, errors.New("protocol: media event without media body")
		}
		return MediaEvent{Payload: f.Media.Payload}, nil
	case "":
		return nil, errors.New("protocol: inbound message without event tag")
	default:
		return UnknownInbound{Event: f.Event}, nil
	}
}

type outboundMedia struct {
	Event     string `json:"event"`
	StreamSID string `json:"streamSid"`
	Media     struct {
		Payload string `json:"payload"`
	} `json:"media"`
}

// EncodeOutboundMedia frames an audio fragment for the telephony side.
// The payload is decoded and re-encoded so a corrupt fragment never reaches the provider.
func EncodeOutboundMedia(streamSID, payload string) ([]byte, error) {
	if streamSID == "" {
		return nil, ErrNoStreamHandle
	}
	raw, err := base64.StdEncoding.DecodeString(payload)
	if err != nil {
		return nil, fmt.Errorf("protocol: audio delta: %w", err)
	}

	m := outboundMedia{Event: TagMedia, StreamSID: streamSID}
	m.Media.Payload = base64.StdEncoding.EncodeToString(raw)
	return json.Marshal(m)
}
