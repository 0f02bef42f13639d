package script

import "log/slog"

// Messenger is the minimal capability player_ops handlers need from
// whatever concrete Player type the world package passes in as an
// active entity.
type Messenger interface {
	SendGameMessage(text string)
}

func registerPlayerOps() {
	Register(OpMes, checked(ActivePlayerPair[:], func(s *State) {
		message := s.PopString()
		player, err := s.GetActivePlayer()
		if err != nil {
			slog.Warn("script: mes with no active player", "error", err)
			return
		}
		if messenger, ok := player.(Messenger); ok {
			messenger.SendGameMessage(message)
		}
	}))
}

// checked wraps handler so it first verifies all required pointers
// are bound, logging and skipping execution rather than touching a
// missing entity if not.
func checked(required []Pointer, handler Handler) Handler {
	return func(s *State) {
		if err := s.PointerCheck(required...); err != nil {
			slog.Warn("script: pointer check failed", "error", err)
			return
		}
		handler(s)
	}
}
