// Package debugger implements the trigger/step/trace server of spec.md
// §4.7: an ordered list of PC-indexed triggers, request/response queues
// replacing a synchronous REPL, and the pause/step/step-over/continue
// control flow the eZ80F92 machine driver's Tick/Paused/WaitResume hooks
// expect between instructions.
package debugger

import "github.com/agonite/agonite/pkg/cpu"

// PauseReason classifies why the CPU is currently paused, per spec.md §4.7.
type PauseReason int

const (
	ReasonNone PauseReason = iota
	ReasonDebuggerRequested
	ReasonOutOfBounds
	ReasonBreakpoint
	ReasonIOBreakpoint
)

func (r PauseReason) String() string {
	switch r {
	case ReasonDebuggerRequested:
		return "debugger-requested"
	case ReasonOutOfBounds:
		return "out-of-bounds-memory-access"
	case ReasonBreakpoint:
		return "hit-breakpoint"
	case ReasonIOBreakpoint:
		return "io-breakpoint"
	default:
		return "none"
	}
}

// ActionKind identifies one step of a Trigger's action list.
type ActionKind int

const (
	ActionPauseWithReason ActionKind = iota
	ActionGetState
	ActionLua
)

// Action is one step run when a Trigger fires.
type Action struct {
	Kind   ActionKind
	Reason PauseReason // meaningful for ActionPauseWithReason
	Script string      // meaningful for ActionLua
}

// Trigger fires when the CPU's PC equals Address; its Actions run in order.
// A classic breakpoint is the sugar spec.md §4.7 names:
// [pause-with-reason=Breakpoint, get-state].
type Trigger struct {
	Address uint32
	Once    bool
	Actions []Action
}

// Breakpoint returns the trigger spec.md §4.7 calls "breakpoint sugar".
func Breakpoint(addr uint32) Trigger {
	return Trigger{
		Address: addr,
		Actions: []Action{
			{Kind: ActionPauseWithReason, Reason: ReasonBreakpoint},
			{Kind: ActionGetState},
		},
	}
}

// RequestKind identifies a command arriving on the request queue.
type RequestKind int

const (
	ReqPing RequestKind = iota
	ReqPause
	ReqContinue
	ReqStep
	ReqStepOver
	ReqSetTrace
	ReqListTriggers
	ReqAddTrigger
	ReqDeleteTrigger
	ReqGetRegisters
	ReqGetState
	ReqGetMemory
	ReqDisassemble
)

// Request is one command sent to the server.
type Request struct {
	Kind    RequestKind
	Addr    uint32
	Len     int
	Trigger Trigger // ReqAddTrigger
	Index   int     // ReqDeleteTrigger
	Enable  bool    // ReqSetTrace
	ADL     bool    // not read: ReqDisassemble output does not depend on ADL mode
}

// ResponseKind identifies the shape of a value on the response queue.
type ResponseKind int

const (
	RespPong ResponseKind = iota
	RespPaused
	RespRegisters
	RespState
	RespMemory
	RespTriggers
	RespDisasm
	RespOK
)

// PausedEvent is emitted whenever the server transitions into a paused state.
type PausedEvent struct {
	PC     uint32
	Reason PauseReason
}

// StateSnapshot answers get-state: registers, a stack window, and a
// disassembly of the current instruction.
type StateSnapshot struct {
	Registers cpu.Registers
	Stack     []byte
	Disasm    string
}

// Response is one value sent back on the response queue.
type Response struct {
	Kind      ResponseKind
	Paused    *PausedEvent
	Registers cpu.Registers
	State     *StateSnapshot
	Memory    []byte
	Triggers  []Trigger
	Disasm    string
}

// MemoryPeeker is the subset of memmap.AddressSpace the debugger needs:
// byte reads plus the out-of-bounds latch.
type MemoryPeeker interface {
	Peek(addr uint32) byte
	OutOfBounds() (addr uint32, ok bool)
	ClearOutOfBounds()
}
