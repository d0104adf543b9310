package relay

import (
	"strings"
	"time"
)

type Speaker string

const (
	SpeakerUser  Speaker = "User"
	SpeakerAgent Speaker = "Agent"
)

type Utterance struct {
	Speaker Speaker `json:"speaker"`
	Text    string  `json:"text"`
}

// Session is the per-call state. It is owned by one Call and is not safe
// for concurrent mutation; the Store only guards the keyed lookup.
type Session struct {
	ID           string
	CallSID      string
	StreamHandle string
	CreatedAt    time.Time

	transcript []Utterance
	evicted    chan struct{}
}

func newSession(id string, now time.Time) *Session {
	return &Session{ID: id, CreatedAt: now, evicted: make(chan struct{})}
}

// Evicted is closed when the Store drops the session before its call ends.
func (s *Session) Evicted() <-chan struct{} { return s.evicted }

// Append adds one utterance to the end of the transcript; earlier lines are never rewritten.
func (s *Session) Append(sp Speaker, text string) {
	s.transcript = append(s.transcript, Utterance{Speaker: sp, Text: text})
}

func (s *Session) Transcript() []Utterance {
	out := make([]Utterance, len(s.transcript))
	copy(out, s.transcript)
	return out
}

func (s *Session) Len() int { return len(s.transcript) }

// TranscriptText renders "<Speaker>: <text>\n" per utterance.
func (s *Session) TranscriptText() string {
	var b strings.Builder
	for _, u := range s.transcript {
		b.WriteString(string(u.Speaker))
		b.WriteString(": ")
		b.WriteString(u.Text)
		b.WriteByte('\n')
	}
	return b.String()
}
