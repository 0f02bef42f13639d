package script

import "fmt"

// ProtectedPlayer is the subset of player state protected execution
// gates on: whether the player already holds protected access, and
// whether it is mid-pathing delay (either of which blocks acquiring
// protected access again without force).
type ProtectedPlayer interface {
	Entity
	Protected() bool
	SetProtected(bool)
	Delayed() bool
}

// ProtectedAccessDeniedError reports that a script could not acquire
// protected access because the player already held it or was delayed,
// and force was not set.
type ProtectedAccessDeniedError struct {
	Script string
}

func (e *ProtectedAccessDeniedError) Error() string {
	return fmt.Sprintf("script: cannot get protected access for script: %s", e.Script)
}

// RunScript executes state to completion (or suspension), optionally
// under protected access. When protect is set, player.protect is held
// for the duration of the run (barring force, acquiring it fails if
// the player is already protected or delayed) and the state's
// ProtectedActivePlayer/ProtectedActivePlayer2 pointer bits are
// cleared against whichever players they ended up bound to once the
// run completes, releasing protect on those too.
func RunScript(player ProtectedPlayer, state *State, protect, force, benchmark bool) (Status, error) {
	if !force && protect && (player.Protected() || player.Delayed()) {
		return state.Execution, &ProtectedAccessDeniedError{Script: state.Script.Name()}
	}

	if protect {
		state.PointerAdd(ProtectedActivePlayer)
		player.SetProtected(true)
	}

	status := Execute(state, benchmark)

	if protect {
		player.SetProtected(false)
	}

	releaseProtectedPointer(state, ProtectedActivePlayer, state.ActivePlayer)
	releaseProtectedPointer(state, ProtectedActivePlayer2, state.ActivePlayer2)

	return status, nil
}

func releaseProtectedPointer(state *State, pointer Pointer, bound any) {
	if !state.PointerGet(pointer) || bound == nil {
		return
	}
	state.PointerRemove(pointer)
	if p, ok := bound.(ProtectedPlayer); ok {
		p.SetProtected(false)
	}
}
