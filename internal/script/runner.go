package script

import (
	"fmt"
)

// maxOpcount is the execution budget for a single run outside of
// benchmark mode; a script exceeding it is presumed runaway.
const maxOpcount = 500_000

// Handler executes one opcode against state.
type Handler func(state *State)

var handlers = map[Opcode]Handler{}

// Register binds a handler to opcode. Double-registration is a
// startup fault, matching the protocol registry's own invariant in
// §4.N: catching a colliding bind early beats silently shadowing one
// handler with another in a shared global map.
func Register(opcode Opcode, handler Handler) {
	if _, exists := handlers[opcode]; exists {
		panic(fmt.Sprintf("script: opcode %d already registered", opcode))
	}
	handlers[opcode] = handler
}

func init() {
	registerCoreOps()
	registerMathOps()
	registerPlayerOps()
}

// Execute drives state through opcodes until it leaves Running,
// either naturally (Finished/Suspended/...) or via Aborted on any
// fault: unknown opcode, pc out of range, opcount exceeded, or a
// handler panic. A handler panic is recovered and converted to an
// abort so one bad script can never take down the world loop.
func Execute(state *State, benchmark bool) Status {
	if state.Execution != Running {
		state.executionHistory = append(state.executionHistory, state.Execution)
		state.Execution = Running
	}

	opcodesLen := int32(len(state.Script.Opcodes))
	if state.PC >= opcodesLen || state.PC < -1 {
		state.Execution = Aborted
		return state.Execution
	}

	for state.Execution == Running {
		if !benchmark && state.Opcount > maxOpcount {
			state.Execution = Aborted
			return state.Execution
		}

		state.Opcount++
		state.PC++

		if state.PC >= opcodesLen {
			state.Execution = Aborted
			return state.Execution
		}

		opcode := state.Script.Opcodes[state.PC]
		handler, ok := handlers[opcode]
		if !ok {
			state.Execution = Aborted
			return state.Execution
		}

		if !runHandler(handler, state) {
			state.Execution = Aborted
			return state.Execution
		}
	}

	return state.Execution
}

func runHandler(handler Handler, state *State) (ok bool) {
	defer func() {
		if recover() != nil {
			ok = false
		}
	}()
	handler(state)
	return true
}

// Init builds a fresh state for script, binding selfEntity and
// targetEntity (if any) into the appropriate active-entity slot and
// setting the matching pointer bit, per §4.O's activation rule:
// target of the same concrete type as self goes to the "*2" slot;
// a different type goes to that type's primary slot.
func Init(file *File, self, target Entity, intArgs []int32, stringArgs []string) *State {
	s := New(file, intArgs, stringArgs)

	if self != nil {
		s.SelfEntity = self
		bindPrimary(s, self)
	}

	if target != nil {
		sameKind := self != nil && self.Kind() == target.Kind()
		if sameKind {
			bindSecondary(s, target)
		} else {
			bindPrimary(s, target)
		}
	}

	return s
}

// Entity is any of the four activatable script-visible entity kinds.
type Entity interface {
	Kind() EntityKind
}

// EntityKind discriminates which active-slot family an Entity binds
// into.
type EntityKind int

const (
	KindPlayer EntityKind = iota
	KindNPC
	KindLoc
	KindObj
)

func bindPrimary(s *State, e Entity) {
	switch e.Kind() {
	case KindPlayer:
		s.ActivePlayer = e
		s.PointerAdd(ActivePlayer)
	case KindNPC:
		s.ActiveNpc = e
		s.PointerAdd(ActiveNpc)
	case KindLoc:
		s.ActiveLoc = e
		s.PointerAdd(ActiveLoc)
	case KindObj:
		s.ActiveObj = e
		s.PointerAdd(ActiveObj)
	}
}

func bindSecondary(s *State, e Entity) {
	switch e.Kind() {
	case KindPlayer:
		s.ActivePlayer2 = e
		s.PointerAdd(ActivePlayer2)
	case KindNPC:
		s.ActiveNpc2 = e
		s.PointerAdd(ActiveNpc2)
	case KindLoc:
		s.ActiveLoc2 = e
		s.PointerAdd(ActiveLoc2)
	case KindObj:
		s.ActiveObj2 = e
		s.PointerAdd(ActiveObj2)
	}
}
