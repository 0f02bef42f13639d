package script

// Pointer identifies one "active entity" slot a script frame may hold
// a reference to. The VM tracks which are currently bound in a
// bitmask so handlers can assert a required pointer before touching
// the corresponding entity.
type Pointer int

const (
	ActivePlayer Pointer = iota
	ActivePlayer2
	ProtectedActivePlayer
	ProtectedActivePlayer2
	ActiveNpc
	ActiveNpc2
	ActiveLoc
	ActiveLoc2
	ActiveObj
	ActiveObj2
	lastPointer
)

func (p Pointer) String() string {
	switch p {
	case ActivePlayer:
		return "ActivePlayer"
	case ActivePlayer2:
		return "ActivePlayer2"
	case ProtectedActivePlayer:
		return "ProtectedActivePlayer"
	case ProtectedActivePlayer2:
		return "ProtectedActivePlayer2"
	case ActiveNpc:
		return "ActiveNpc"
	case ActiveNpc2:
		return "ActiveNpc2"
	case ActiveLoc:
		return "ActiveLoc"
	case ActiveLoc2:
		return "ActiveLoc2"
	case ActiveObj:
		return "ActiveObj"
	case ActiveObj2:
		return "ActiveObj2"
	default:
		return "Unknown"
	}
}

var (
	ActiveNpcPair       = [2]Pointer{ActiveNpc, ActiveNpc2}
	ActiveLocPair       = [2]Pointer{ActiveLoc, ActiveLoc2}
	ActiveObjPair       = [2]Pointer{ActiveObj, ActiveObj2}
	ActivePlayerPair    = [2]Pointer{ActivePlayer, ActivePlayer2}
	ProtectedPlayerPair = [2]Pointer{ProtectedActivePlayer, ProtectedActivePlayer2}
)
