package protocol

import "encoding/json"

// Defaults for the session configuration push.
const (
	AudioFormatG711ULaw = "g711_ulaw"
	VADServerVAD        = "server_vad"
	TranscriptionModel  = "whisper-1"
	DefaultVoice        = "alloy"
	DefaultTemperature  = 0.8
)

// SessionSettings is everything the configuration push needs. Instructions
// must be the system message current at push time.
type SessionSettings struct {
	Voice        string
	Instructions string
	Temperature  float64
}

type TurnDetection struct {
	Type string `json:"type"`
}

type TranscriptionConfig struct {
	Model string `json:"model"`
}

type SessionConfig struct {
	TurnDetection           TurnDetection       `json:"turn_detection"`
	InputAudioFormat        string              `json:"input_audio_format"`
	OutputAudioFormat       string              `json:"output_audio_format"`
	Voice                   string              `json:"voice"`
	Instructions            string              `json:"instructions"`
	Modalities              []string            `json:"modalities"`
	Temperature             float64             `json:"temperature"`
	InputAudioTranscription TranscriptionConfig `json:"input_audio_transcription"`
}

type SessionUpdate struct {
	Type    string        `json:"type"`
	Session SessionConfig `json:"session"`
}

func NewSessionUpdate(s SessionSettings) SessionUpdate {
	voice := s.Voice
	if voice == "" {
		voice = DefaultVoice
	}
	temp := s.Temperature
	if temp <= 0 {
		temp = DefaultTemperature
	}

	return SessionUpdate{
		Type: TypeSessionUpdate,
		Session: SessionConfig{
			TurnDetection:           TurnDetection{Type: VADServerVAD},
			InputAudioFormat:        AudioFormatG711ULaw,
			OutputAudioFormat:       AudioFormatG711ULaw,
			Voice:                   voice,
			Instructions:            s.Instructions,
			Modalities:              []string{"text", "audio"},
			Temperature:             temp,
			InputAudioTranscription: TranscriptionConfig{Model: TranscriptionModel},
		},
	}
}

func EncodeSessionUpdate(s SessionSettings) ([]byte, error) {
	return json.Marshal(NewSessionUpdate(s))
}
