package script

import "fmt"

// Status is the current execution state of a script frame.
type Status int32

const (
	Aborted Status = -1
	Running Status = 0
	Finished Status = 1
	Suspended Status = 2
	PauseButton Status = 3
	CountDialog Status = 4
	NpcSuspended Status = 5
	WorldSuspended Status = 6
)

// gosubFrame snapshots the caller's script/pc/locals across a gosub.
type gosubFrame struct {
	script        *File
	pc            int32
	intLocals     []int32
	stringLocals  []string
}

// jumpFrame records a goto for debug traceback only.
type jumpFrame struct {
	script *File
	pc     int32
}

// State is one running (or suspended) script activation: the active
// script and program counter, both stacks, the gosub/jump frame
// stacks, locals, the active-entity pointer bitmask, and whichever
// entities the script is currently bound to.
type State struct {
	Script            *File
	Trigger           int32
	Execution         Status
	executionHistory  []Status
	PC                int32
	Opcount           int32

	frames   []gosubFrame
	fp       int
	debug    []jumpFrame
	debugFP  int

	intStack    []int32
	isp         int
	stringStack []string
	ssp         int

	IntLocals    []int32
	StringLocals []string

	pointers int32

	SelfEntity    any
	ActivePlayer  any
	ActivePlayer2 any
	ActiveNpc     any
	ActiveNpc2    any
	ActiveLoc     any
	ActiveLoc2    any
	ActiveObj     any
	ActiveObj2    any

	SplitPages    [][]string
	SplitMesanim  int32
}

// New creates a state bound to script, with int/string locals seeded
// from args (interpreted positionally: ints first, then strings, by
// the argument list's own type tags — callers pass already-split
// slices).
func New(file *File, intArgs []int32, stringArgs []string) *State {
	s := &State{
		Script:       file,
		Trigger:      file.Info.LookupKey & 0xFF,
		Execution:    Running,
		PC:           -1,
		IntLocals:    append([]int32(nil), intArgs...),
		StringLocals: append([]string(nil), stringArgs...),
		SplitMesanim: -1,
	}
	return s
}

// PointersSet replaces the pointer bitmask with exactly the given set.
func (s *State) PointersSet(pointers ...Pointer) {
	s.pointers = 0
	for _, p := range pointers {
		s.pointers |= 1 << uint(p)
	}
}

// PointerAdd sets one pointer bit.
func (s *State) PointerAdd(p Pointer) {
	s.pointers |= 1 << uint(p)
}

// PointerRemove clears one pointer bit.
func (s *State) PointerRemove(p Pointer) {
	s.pointers &^= 1 << uint(p)
}

// PointerGet reports whether a pointer bit is set.
func (s *State) PointerGet(p Pointer) bool {
	return s.pointers&(1<<uint(p)) != 0
}

// PointerCheck returns an error, listing every required pointer, when
// any of them is not currently bound.
func (s *State) PointerCheck(required ...Pointer) error {
	var missing int32
	for _, p := range required {
		if !s.PointerGet(p) {
			missing |= 1 << uint(p)
		}
	}
	if missing == 0 {
		return nil
	}
	return &MissingPointerError{Required: required, Have: s.pointers}
}

// GetActivePlayer returns ActivePlayer or ActivePlayer2 depending on
// whether the current instruction's int operand selects the primary
// (0) or secondary (nonzero) player slot.
func (s *State) GetActivePlayer() (any, error) {
	slot := s.ActivePlayer
	if s.GetIntOperand() != 0 {
		slot = s.ActivePlayer2
	}
	if slot == nil {
		return nil, fmt.Errorf("script: active player not bound")
	}
	return slot, nil
}

// SetActivePlayer installs player into the primary or secondary slot
// per the same int-operand selector as GetActivePlayer.
func (s *State) SetActivePlayer(player any) {
	if s.GetIntOperand() == 0 {
		s.ActivePlayer = player
	} else {
		s.ActivePlayer2 = player
	}
}

// GetIntOperand returns the current instruction's int operand.
func (s *State) GetIntOperand() int32 {
	return s.Script.IntOperands[s.PC]
}

// GetStringOperand returns the current instruction's string operand.
func (s *State) GetStringOperand() string {
	return s.Script.StringOperands[s.PC]
}

// PopInt pops the int stack, returning zero on underflow rather than
// panicking — a deliberately defensive departure from the original's
// unchecked decrement, since Go indexing panics on a negative index.
func (s *State) PopInt() int32 {
	if s.isp == 0 {
		return 0
	}
	s.isp--
	return s.intStack[s.isp]
}

// PopInts pops amount values, returning them in push order (oldest
// first).
func (s *State) PopInts(amount int) []int32 {
	out := make([]int32, amount)
	for i := amount - 1; i >= 0; i-- {
		out[i] = s.PopInt()
	}
	return out
}

// PushInt pushes value onto the int stack.
func (s *State) PushInt(value int32) {
	if s.isp < len(s.intStack) {
		s.intStack[s.isp] = value
	} else {
		s.intStack = append(s.intStack, value)
	}
	s.isp++
}

// PopString pops the string stack, returning "" on underflow.
func (s *State) PopString() string {
	if s.ssp == 0 {
		return ""
	}
	s.ssp--
	return s.stringStack[s.ssp]
}

// PopStrings pops amount values, oldest first.
func (s *State) PopStrings(amount int) []string {
	out := make([]string, amount)
	for i := amount - 1; i >= 0; i-- {
		out[i] = s.PopString()
	}
	return out
}

// PushString pushes value onto the string stack.
func (s *State) PushString(value string) {
	if s.ssp < len(s.stringStack) {
		s.stringStack[s.ssp] = value
	} else {
		s.stringStack = append(s.stringStack, value)
	}
	s.ssp++
}

// PopFrame restores the caller's script/pc/locals from the top gosub
// frame. At depth zero, the caller (execution loop) is responsible
// for finishing instead of calling this.
func (s *State) PopFrame() {
	s.fp--
	frame := s.frames[s.fp]
	s.PC = frame.pc
	s.Script = frame.script
	s.IntLocals = frame.intLocals
	s.StringLocals = frame.stringLocals
}

// Gosub snapshots the current frame and switches to proc, consuming
// proc's declared argument counts off the stacks into its locals.
func (s *State) Gosub(proc *File) {
	frame := gosubFrame{script: s.Script, pc: s.PC, intLocals: s.IntLocals, stringLocals: s.StringLocals}
	if s.fp >= len(s.frames) {
		s.frames = append(s.frames, frame)
	} else {
		s.frames[s.fp] = frame
	}
	s.fp++
	s.setupNewScript(proc)
}

// Goto stashes the current script/pc onto the debug-only jump stack,
// clears the gosub stack, and switches to label.
func (s *State) Goto(label *File) {
	frame := jumpFrame{script: s.Script, pc: s.PC}
	if s.debugFP >= len(s.debug) {
		s.debug = append(s.debug, frame)
	} else {
		s.debug[s.debugFP] = frame
	}
	s.debugFP++
	s.fp = 0
	s.frames = s.frames[:0]
	s.setupNewScript(label)
}

func (s *State) setupNewScript(file *File) {
	intLocals := make([]int32, file.IntLocalCount)
	stringLocals := make([]string, file.StringLocalCount)

	for i := int(file.IntArgCount) - 1; i >= 0; i-- {
		intLocals[i] = s.PopInt()
	}
	for i := int(file.StringArgCount) - 1; i >= 0; i-- {
		stringLocals[i] = s.PopString()
	}

	s.PC = -1
	s.Script = file
	s.IntLocals = intLocals
	s.StringLocals = stringLocals
}

// Reset clears execution position, stacks, locals and pointers so the
// state can be rerun from the top of its current script.
func (s *State) Reset() {
	s.PC = -1
	s.frames = s.frames[:0]
	s.fp = 0
	s.intStack = s.intStack[:0]
	s.isp = 0
	s.stringStack = s.stringStack[:0]
	s.ssp = 0
	s.IntLocals = nil
	s.StringLocals = nil
	s.pointers = 0
}

// MissingPointerError reports that a handler required pointers the
// current frame does not hold.
type MissingPointerError struct {
	Required []Pointer
	Have     int32
}

func (e *MissingPointerError) Error() string {
	msg := "script: missing required pointer("
	for i, p := range e.Required {
		if i > 0 {
			msg += ", "
		}
		msg += p.String()
	}
	return msg + ")"
}
