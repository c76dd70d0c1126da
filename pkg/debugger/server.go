package debugger

import (
	"sync"
	"sync/atomic"

	lua "github.com/yuin/gopher-lua"

	"github.com/agonite/agonite/pkg/cpu"
)

// Server is the trigger/step/trace debugger of spec.md §4.7. It satisfies
// the machine driver's Debugger interface (Tick/Paused/WaitResume) and
// separately exposes a request/response pair of channels for a front-end
// to drive it, in place of the teacher's synchronous bufio.Scanner REPL.
type Server struct {
	cpu *cpu.CPU
	mem MemoryPeeker

	mu       sync.Mutex
	triggers []Trigger

	pendingRepause   bool
	pauseRequested   bool
	trace            bool
	paused           atomic.Bool

	reqCh  chan Request
	respCh chan Response

	lua *lua.LState
}

// New returns a debugger server observing c over mem. Neither is copied;
// both must be the same instances the owning machine drives.
func New(c *cpu.CPU, mem MemoryPeeker) *Server {
	s := &Server{
		cpu:    c,
		mem:    mem,
		reqCh:  make(chan Request, 32),
		respCh: make(chan Response, 32),
		lua:    lua.NewState(),
	}
	return s
}

// Requests returns the channel a front-end sends commands on.
func (s *Server) Requests() chan<- Request { return s.reqCh }

// Events returns the channel a front-end receives responses/events on.
func (s *Server) Events() <-chan Response { return s.respCh }

// Paused reports whether the server currently holds the CPU paused.
func (s *Server) Paused() bool { return s.paused.Load() }

// AddBreakpoint installs the trigger sugar spec.md §4.7 describes for a
// classic breakpoint: the same effect as a ReqAddTrigger request carrying
// Breakpoint(addr), for the CLI's -b/--breakpoint flag.
func (s *Server) AddBreakpoint(addr uint32) {
	s.mu.Lock()
	s.triggers = append(s.triggers, Breakpoint(addr))
	s.mu.Unlock()
}

// Tick is called once per instruction, before execution, by the machine's
// main loop. It evaluates triggers at pc, services the out-of-bounds latch,
// drains any commands that do not require the CPU to be paused to answer,
// and reports whether the CPU should pause before running this instruction.
func (s *Server) Tick(pc uint32) bool {
	s.mu.Lock()
	defer s.mu.Unlock()

	if s.pendingRepause {
		s.pendingRepause = false
		s.emitPausedLocked(pc, ReasonDebuggerRequested)
		return true
	}

	if addr, ok := s.mem.OutOfBounds(); ok {
		s.mem.ClearOutOfBounds()
		s.emitPausedLocked(addr, ReasonOutOfBounds)
		return true
	}

	s.drainNonBlockingLocked()

	if s.pauseRequested {
		s.pauseRequested = false
		s.emitPausedLocked(pc, ReasonDebuggerRequested)
		return true
	}

	reason := ReasonNone
	for i := 0; i < len(s.triggers); i++ {
		t := s.triggers[i]
		if t.Address != pc {
			continue
		}
		for _, a := range t.Actions {
			switch a.Kind {
			case ActionPauseWithReason:
				reason = a.Reason
			case ActionGetState:
				s.respCh <- Response{Kind: RespState, State: s.snapshotStateLocked(pc)}
			case ActionLua:
				s.runLuaActionLocked(a.Script, pc)
			}
		}
		if t.Once {
			s.triggers = append(s.triggers[:i], s.triggers[i+1:]...)
			i--
		}
	}

	if reason != ReasonNone {
		s.emitPausedLocked(pc, reason)
		return true
	}
	return false
}

// WaitResume blocks the calling (CPU) thread, servicing debugger commands,
// until a continue/step/step-over command releases it.
func (s *Server) WaitResume() {
	s.paused.Store(true)
	defer s.paused.Store(false)

	for req := range s.reqCh {
		s.mu.Lock()
		resume := s.handleRequest(req)
		s.mu.Unlock()
		if resume {
			return
		}
	}
}

// drainNonBlockingLocked services every request queued while the CPU is
// running freely, without blocking. Called with s.mu held.
func (s *Server) drainNonBlockingLocked() {
	for {
		select {
		case req := <-s.reqCh:
			s.handleRequest(req)
		default:
			return
		}
	}
}

// handleRequest processes one request and reports whether it is a
// resume-class command (continue/step/step-over) that should unblock
// WaitResume. Query commands answer on respCh and return false.
func (s *Server) handleRequest(req Request) bool {
	switch req.Kind {
	case ReqPing:
		s.respCh <- Response{Kind: RespPong}
	case ReqPause:
		s.pauseRequested = true
		s.respCh <- Response{Kind: RespOK}
	case ReqContinue:
		return true
	case ReqStep:
		s.pendingRepause = true
		return true
	case ReqStepOver:
		s.installStepOverLocked()
		return true
	case ReqSetTrace:
		s.trace = req.Enable
		s.respCh <- Response{Kind: RespOK}
	case ReqListTriggers:
		out := make([]Trigger, len(s.triggers))
		copy(out, s.triggers)
		s.respCh <- Response{Kind: RespTriggers, Triggers: out}
	case ReqAddTrigger:
		s.triggers = append(s.triggers, req.Trigger)
		s.respCh <- Response{Kind: RespOK}
	case ReqDeleteTrigger:
		if req.Index >= 0 && req.Index < len(s.triggers) {
			s.triggers = append(s.triggers[:req.Index], s.triggers[req.Index+1:]...)
		}
		s.respCh <- Response{Kind: RespOK}
	case ReqGetRegisters:
		s.respCh <- Response{Kind: RespRegisters, Registers: s.cpu.GetRegisters()}
	case ReqGetState:
		s.respCh <- Response{Kind: RespState, State: s.snapshotStateLocked(s.cpu.FullAddr(s.cpu.PC()))}
	case ReqGetMemory:
		out := make([]byte, req.Len)
		for i := range out {
			out[i] = s.mem.Peek(req.Addr + uint32(i))
		}
		s.respCh <- Response{Kind: RespMemory, Memory: out}
	case ReqDisassemble:
		s.respCh <- Response{Kind: RespDisasm, Disasm: disassembleOne(s.mem, req.Addr)}
	}
	return false
}

// installStepOverLocked implements spec.md §4.7 step-over: if the
// instruction at the current PC is a CALL or RST (including eZ80 operand-size
// prefixes), install a one-shot trigger at the return address and let the
// CPU run; otherwise behave like a single step.
func (s *Server) installStepOverLocked() {
	pc := s.cpu.FullAddr(s.cpu.PC())
	length, isCallOrRst := classifyCallOrRst(s.mem, pc)
	if !isCallOrRst {
		s.pendingRepause = true
		return
	}
	s.triggers = append(s.triggers, Trigger{
		Address: pc + uint32(length),
		Once:    true,
		Actions: []Action{{Kind: ActionPauseWithReason, Reason: ReasonDebuggerRequested}},
	})
}

func (s *Server) emitPausedLocked(pc uint32, reason PauseReason) {
	s.respCh <- Response{Kind: RespPaused, Paused: &PausedEvent{PC: pc, Reason: reason}}
}

func (s *Server) snapshotStateLocked(pc uint32) *StateSnapshot {
	regs := s.cpu.GetRegisters()
	stack := make([]byte, 16)
	for i := range stack {
		stack[i] = s.mem.Peek(s.cpu.FullAddr(regs.SP) + uint32(i))
	}
	return &StateSnapshot{
		Registers: regs,
		Stack:     stack,
		Disasm:    disassembleOne(s.mem, pc),
	}
}

// runLuaActionLocked evaluates script with the current PC and register
// snapshot exposed as Lua globals, per spec.md §9's "small, swappable
// collaborator" guidance - grounded on the teacher's own embedded-Lua
// evaluator (pkg/meta/lua_evaluator.go), repurposed from compile-time code
// generation to runtime trigger scripting.
func (s *Server) runLuaActionLocked(script string, pc uint32) {
	regs := s.cpu.GetRegisters()
	L := s.lua
	L.SetGlobal("pc", lua.LNumber(pc))
	regsTable := L.NewTable()
	L.SetField(regsTable, "a", lua.LNumber(regs.A))
	L.SetField(regsTable, "bc", lua.LNumber(regs.BC))
	L.SetField(regsTable, "de", lua.LNumber(regs.DE))
	L.SetField(regsTable, "hl", lua.LNumber(regs.HL))
	L.SetField(regsTable, "sp", lua.LNumber(regs.SP))
	L.SetField(regsTable, "pc", lua.LNumber(regs.PC))
	L.SetGlobal("regs", regsTable)

	if err := L.DoString(script); err != nil {
		s.respCh <- Response{Kind: RespDisasm, Disasm: "lua action error: " + err.Error()}
	}
}
