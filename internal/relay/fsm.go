package relay

import (
	"context"

	"github.com/looplab/fsm"
)

type CallState string

const (
	StateInit       CallState = "init"
	StateActive     CallState = "active"
	StateClosing    CallState = "closing"
	StateTerminated CallState = "terminated"
)

const (
	eventActivate  = "activate"
	eventClose     = "close"
	eventTerminate = "terminate"
)

func newCallFSM(onChange func(from, to CallState)) *fsm.FSM {
	return fsm.NewFSM(
		string(StateInit),
		fsm.Events{
			{Name: eventActivate, Src: []string{string(StateInit)}, Dst: string(StateActive)},
			{Name: eventClose, Src: []string{string(StateInit), string(StateActive)}, Dst: string(StateClosing)},
			{Name: eventTerminate, Src: []string{string(StateClosing)}, Dst: string(StateTerminated)},
		},
		fsm.Callbacks{
			"enter_state": func(_ context.Context, e *fsm.Event) {
				if onChange != nil {
					onChange(CallState(e.Src), CallState(e.Dst))
				}
			},
		},
	)
}
