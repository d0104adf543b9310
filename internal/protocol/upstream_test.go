package protocol

import (
	"encoding/json"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestDecodeUpstream_Transcription(t *testing.T) {
	ev, err := DecodeUpstream([]byte(`{"type":"conversation.item.input_audio_transcription.completed","transcript":"  I need a checkup \n"}`))
	require.NoError(t, err)
	assert.Equal(t, TranscriptionCompleted{Transcript: "I need a checkup"}, ev)

	_, err = DecodeUpstream([]byte(`{"type":"conversation.item.input_audio_transcription.completed"}`))
	assert.Error(t, err)
}

func TestDecodeUpstream_ResponseDone(t *testing.T) {
	tests := []struct {
		name  string
		in    string
		want  string
		found bool
	}{
		{
			name:  "first content",
			in:    `{"type":"response.done","response":{"output":[{"content":[{"transcript":"Hello, how can I help?"}]}]}}`,
			want:  "Hello, how can I help?",
			found: true,
		},
		{
			name:  "first transcript within first item",
			in:    `{"type":"response.done","response":{"output":[{"content":[{"transcript":""},{"transcript":"Second"}]}]}}`,
			want:  "Second",
			found: true,
		},
		{
			name: "later output items ignored",
			in:   `{"type":"response.done","response":{"output":[{"content":[]},{"content":[{"transcript":"Other"}]}]}}`,
			want: AgentPlaceholder,
		},
		{
			name: "no output",
			in:   `{"type":"response.done","response":{"output":[]}}`,
			want: AgentPlaceholder,
		},
		{
			name: "no response",
			in:   `{"type":"response.done"}`,
			want: AgentPlaceholder,
		},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			ev, err := DecodeUpstream([]byte(tt.in))
			require.NoError(t, err)
			rd, ok := ev.(ResponseDone)
			require.True(t, ok)
			assert.Equal(t, tt.want, rd.Transcript)
			assert.Equal(t, tt.found, rd.Found)
		})
	}
}

func TestDecodeUpstream_Others(t *testing.T) {
	ev, err := DecodeUpstream([]byte(`{"type":"response.audio.delta","delta":"QUJD"}`))
	require.NoError(t, err)
	assert.Equal(t, AudioDelta{Delta: "QUJD"}, ev)

	_, err = DecodeUpstream([]byte(`{"type":"response.audio.delta"}`))
	assert.Error(t, err)

	ev, err = DecodeUpstream([]byte(`{"type":"session.updated","session":{}}`))
	require.NoError(t, err)
	assert.IsType(t, SessionUpdated{}, ev)

	ev, err = DecodeUpstream([]byte(`{"type":"error","error":{"code":"invalid_api_key","message":"bad key"}}`))
	require.NoError(t, err)
	assert.Equal(t, UpstreamError{Code: "invalid_api_key", Message: "bad key"}, ev)

	ev, err = DecodeUpstream([]byte(`{"type":"rate_limits.updated"}`))
	require.NoError(t, err)
	assert.IsType(t, Observed{}, ev)
	assert.True(t, IsLogged(ev.Type()))

	ev, err = DecodeUpstream([]byte(`{"type":"response.output_item.added"}`))
	require.NoError(t, err)
	assert.Equal(t, UnknownUpstream{EventType: "response.output_item.added"}, ev)
	assert.False(t, IsLogged(ev.Type()))

	_, err = DecodeUpstream([]byte(`{}`))
	assert.Error(t, err)
	_, err = DecodeUpstream([]byte(`{"type":`))
	assert.Error(t, err)
}

func TestEncodeSessionUpdate(t *testing.T) {
	out, err := EncodeSessionUpdate(SessionSettings{Instructions: "Be brief."})
	require.NoError(t, err)

	var got SessionUpdate
	require.NoError(t, json.Unmarshal(out, &got))
	assert.Equal(t, TypeSessionUpdate, got.Type)
	assert.Equal(t, "Be brief.", got.Session.Instructions)
	assert.Equal(t, DefaultVoice, got.Session.Voice)
	assert.InDelta(t, DefaultTemperature, got.Session.Temperature, 1e-9)
	assert.Equal(t, VADServerVAD, got.Session.TurnDetection.Type)
	assert.Equal(t, AudioFormatG711ULaw, got.Session.InputAudioFormat)
	assert.Equal(t, AudioFormatG711ULaw, got.Session.OutputAudioFormat)
	assert.Equal(t, []string{"text", "audio"}, got.Session.Modalities)
	assert.Equal(t, TranscriptionModel, got.Session.InputAudioTranscription.Model)

	out, err = EncodeSessionUpdate(SessionSettings{Voice: "shimmer", Temperature: 0.6})
	require.NoError(t, err)
	require.NoError(t, json.Unmarshal(out, &got))
	assert.Equal(t, "shimmer", got.Session.Voice)
	assert.InDelta(t, 0.6, got.Session.Temperature, 1e-9)
}
