package script

func registerCoreOps() {
	Register(OpPushConstantString, func(s *State) {
		s.PushString(s.GetStringOperand())
	})

	Register(OpReturn, func(s *State) {
		if s.fp == 0 {
			s.Execution = Finished
			return
		}
		s.PopFrame()
	})
}
