package config

import (
	"strings"
	"sync"
)

const DefaultSystemMessage = "You are an AI receptionist for Grewal Eye Institute (an eye hospital). " +
	"Your role is to politely and professionally assist clients in booking their appointments by gathering " +
	"essential details through a natural, conversational flow. Ask one question at a time to collect the " +
	"client's full name (and politely clarify if the name is unclear), their preferred appointment time " +
	"(appointments are only available between 11:00 AM and 2:00 PM; always assume slots are available), " +
	"and the type of service they require (such as a regular checkup or consultation for a specific issue). " +
	"Once you have all the information, confirm and clearly communicate the final appointment time to the " +
	"client. Do not ask for any other contact details, and do not check availability; assume it is always " +
	"open. Maintain a friendly and professional tone throughout, and use follow-up questions when needed " +
	"to ensure the information provided is complete and accurate."

// Instructions holds the process-wide system message. A Set only affects
// sessions whose configuration is pushed afterwards; live sessions keep theirs.
type Instructions struct {
	mu  sync.RWMutex
	msg string
}

func NewInstructions(initial string) *Instructions {
	if strings.TrimSpace(initial) == "" {
		initial = DefaultSystemMessage
	}
	return &Instructions{msg: initial}
}

func (i *Instructions) SystemMessage() string {
	i.mu.RLock()
	defer i.mu.RUnlock()
	return i.msg
}

// SetSystemMessage rejects blank messages and reports whether it stored msg.
func (i *Instructions) SetSystemMessage(msg string) bool {
	if strings.TrimSpace(msg) == "" {
		return false
	}
	i.mu.Lock()
	i.msg = msg
	i.mu.Unlock()
	return true
}
