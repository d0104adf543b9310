package protocol

import (
	"encoding/json"
	"errors"
	"fmt"
	"strings"
)

// Realtime API event types the relay reads or writes.
const (
	TypeSessionUpdate           = "session.update"
	TypeSessionCreated          = "session.created"
	TypeSessionUpdated          = "session.updated"
	TypeInputAudioBufferAppend  = "input_audio_buffer.append"
	TypeTranscriptionCompleted  = "conversation.item.input_audio_transcription.completed"
	TypeResponseDone            = "response.done"
	TypeResponseAudioDelta      = "response.audio.delta"
	TypeResponseContentDone     = "response.content.done"
	TypeResponseTextDone        = "response.text.done"
	TypeRateLimitsUpdated       = "rate_limits.updated"
	TypeInputAudioCommitted     = "input_audio_buffer.committed"
	TypeInputAudioSpeechStarted = "input_audio_buffer.speech_started"
	TypeInputAudioSpeechStopped = "input_audio_buffer.speech_stopped"
	TypeError                   = "error"
)

const AgentPlaceholder = "Agent message not found"

// LogEventTypes are logged verbatim when they arrive.
var LogEventTypes = map[string]struct{}{
	TypeResponseContentDone:     {},
	TypeRateLimitsUpdated:       {},
	TypeResponseDone:            {},
	TypeInputAudioCommitted:     {},
	TypeInputAudioSpeechStopped: {},
	TypeInputAudioSpeechStarted: {},
	TypeSessionCreated:          {},
	TypeResponseTextDone:        {},
	TypeTranscriptionCompleted:  {},
}

func IsLogged(typ string) bool {
	_, ok := LogEventTypes[typ]
	return ok
}

// UpstreamEvent is one decoded message from the realtime service.
type UpstreamEvent interface {
	Type() string
}

type TranscriptionCompleted struct {
	Transcript string // trimmed
}

func (TranscriptionCompleted) Type() string { return TypeTranscriptionCompleted }

// ResponseDone holds the agent transcript of a finished response.
// Found is false when no output content carried a transcript and
// Transcript holds AgentPlaceholder.
type ResponseDone struct {
	Transcript string
	Found      bool
}

func (ResponseDone) Type() string { return TypeResponseDone }

type AudioDelta struct {
	Delta string
}

func (AudioDelta) Type() string { return TypeResponseAudioDelta }

type SessionUpdated struct {
	Raw json.RawMessage
}

func (SessionUpdated) Type() string { return TypeSessionUpdated }

type UpstreamError struct {
	Code    string
	Message string
}

func (UpstreamError) Type() string { return TypeError }

// Observed is an allow-listed event that is only logged.
type Observed struct {
	EventType string
	Raw       json.RawMessage
}

func (o Observed) Type() string { return o.EventType }

type UnknownUpstream struct {
	EventType string
}

func (u UnknownUpstream) Type() string { return u.EventType }

type upstreamFrame struct {
	Type       string  `json:"type"`
	Transcript *string `json:"transcript"`
	Delta      string  `json:"delta"`
	Response   *struct {
		Output []struct {
			Content []struct {
				Transcript string `json:"transcript"`
			} `json:"content"`
		} `json:"output"`
	} `json:"response"`
	Error *struct {
		Code    string `json:"code"`
		Message string `json:"message"`
	} `json:"error"`
}

func DecodeUpstream(data []byte) (UpstreamEvent, error) {
	var f upstreamFrame
	if err := json.Unmarshal(data, &f); err != nil {
		return nil, fmt.Errorf("protocol: parse upstream: %w", err)
	}

	switch f.Type {
	case TypeTranscriptionCompleted:
		if f.Transcript == nil {
			return nil, errors.New("protocol: transcription event without transcript")
		}
		return TranscriptionCompleted{Transcript: strings.TrimSpace(*f.Transcript)}, nil
	case TypeResponseDone:
		return decodeResponseDone(&f), nil
	case TypeResponseAudioDelta:
		if f.Delta == "" {
			return nil, errors.New("protocol: audio delta without payload")
		}
		return AudioDelta{Delta: f.Delta}, nil
	case TypeSessionUpdated:
		return SessionUpdated{Raw: data}, nil
	case TypeError:
		ue := UpstreamError{}
		if f.Error != nil {
			ue.Code, ue.Message = f.Error.Code, f.Error.Message
		}
		return ue, nil
	case "":
		return nil, errors.New("protocol: upstream message without type")
	}

	if IsLogged(f.Type) {
		return Observed{EventType: f.Type, Raw: data}, nil
	}
	return UnknownUpstream{EventType: f.Type}, nil
}

func decodeResponseDone(f *upstreamFrame) ResponseDone {
	// Only the first output item carries the spoken reply.
	if f.Response != nil && len(f.Response.Output) > 0 {
		for _, c := range f.Response.Output[0].Content {
			if c.Transcript != "" {
				return ResponseDone{Transcript: c.Transcript, Found: true}
			}
		}
	}
	return ResponseDone{Transcript: AgentPlaceholder}
}

type appendAudio struct {
	Type  string `json:"type"`
	Audio string `json:"audio"`
}

func EncodeAppendAudio(payload string) ([]byte, error) {
	return json.Marshal(appendAudio{Type: TypeInputAudioBufferAppend, Audio: payload})
}
