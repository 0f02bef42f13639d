package script

import (
	"math"
	"math/rand/v2"
)

func registerMathOps() {
	Register(OpAdd, func(s *State) {
		b := s.PopInt()
		a := s.PopInt()
		s.PushInt(a + b)
	})

	Register(OpSub, func(s *State) {
		b := s.PopInt()
		a := s.PopInt()
		s.PushInt(a - b)
	})

	Register(OpMultiply, func(s *State) {
		b := s.PopInt()
		a := s.PopInt()
		s.PushInt(a * b)
	})

	Register(OpDivide, func(s *State) {
		b := s.PopInt()
		a := s.PopInt()
		s.PushInt(a / b)
	})

	Register(OpRandom, func(s *State) {
		a := s.PopInt()
		if a <= 0 {
			s.PushInt(0)
			return
		}
		s.PushInt(randInt32(a))
	})

	Register(OpRandomInc, func(s *State) {
		a := s.PopInt()
		if a < 0 {
			s.PushInt(0)
			return
		}
		s.PushInt(randInt32(a + 1))
	})

	Register(OpInterpolate, func(s *State) {
		x := s.PopInt()
		x1 := s.PopInt()
		x0 := s.PopInt()
		y1 := s.PopInt()
		y0 := s.PopInt()

		var lerp int32
		if x1 == x0 {
			lerp = y0
		} else {
			lerp = y0 + ((y1-y0)*(x-x0))/(x1-x0)
		}
		s.PushInt(lerp)
	})

	Register(OpAddPercent, func(s *State) {
		percent := s.PopInt()
		num := s.PopInt()
		s.PushInt(((num * percent) / 100) + num)
	})

	Register(OpSetBit, func(s *State) {
		bit := s.PopInt()
		value := s.PopInt()
		s.PushInt(value | (1 << uint(bit)))
	})

	Register(OpClearBit, func(s *State) {
		bit := s.PopInt()
		value := s.PopInt()
		s.PushInt(value &^ (1 << uint(bit)))
	})

	Register(OpTestBit, func(s *State) {
		bit := s.PopInt()
		value := s.PopInt()
		if value&(1<<uint(bit)) != 0 {
			s.PushInt(1)
		} else {
			s.PushInt(0)
		}
	})

	Register(OpModulo, func(s *State) {
		v := s.PopInts(2)
		s.PushInt(v[0] % v[1])
	})

	Register(OpPow, func(s *State) {
		exponent := s.PopInt()
		base := s.PopInt()
		s.PushInt(int32(math.Pow(float64(base), float64(exponent))))
	})

	Register(OpInvPow, func(s *State) {
		n2 := s.PopInt()
		n1 := s.PopInt()

		if n1 == 0 || n2 == 0 {
			s.PushInt(0)
			return
		}

		switch n2 {
		case 1:
			s.PushInt(n1)
		case 2:
			s.PushInt(int32(math.Sqrt(float64(n1))))
		case 3:
			s.PushInt(int32(math.Cbrt(float64(n1))))
		case 4:
			s.PushInt(int32(math.Sqrt(math.Sqrt(float64(n1)))))
		default:
			s.PushInt(int32(math.Pow(float64(n1), 1.0/float64(n2))))
		}
	})

	Register(OpAnd, func(s *State) {
		v := s.PopInts(2)
		s.PushInt(v[0] & v[1])
	})

	Register(OpOr, func(s *State) {
		v := s.PopInts(2)
		s.PushInt(v[0] | v[1])
	})

	Register(OpMin, func(s *State) {
		v := s.PopInts(2)
		s.PushInt(minInt32(v[0], v[1]))
	})

	Register(OpMax, func(s *State) {
		v := s.PopInts(2)
		s.PushInt(maxInt32(v[0], v[1]))
	})

	Register(OpScale, func(s *State) {
		v := s.PopInts(3)
		s.PushInt((v[0] * v[1]) / v[2])
	})

	Register(OpBitCount, func(s *State) {
		s.PushInt(bitcount(s.PopInt()))
	})

	Register(OpToggleBit, func(s *State) {
		v := s.PopInts(2)
		s.PushInt(v[0] ^ (1 << uint(v[1])))
	})

	Register(OpSetBitRange, func(s *State) {
		v := s.PopInts(3)
		s.PushInt(setBitRange(v[0], v[1], v[2]))
	})

	Register(OpClearBitRange, func(s *State) {
		v := s.PopInts(3)
		s.PushInt(clearBitRange(v[0], v[1], v[2]))
	})

	Register(OpGetBitRange, func(s *State) {
		v := s.PopInts(3)
		s.PushInt(getBitRange(v[0], v[1], v[2]))
	})

	Register(OpSetBitRangeToInt, func(s *State) {
		v := s.PopInts(4)
		s.PushInt(setBitRangeToInt(v[0], v[1], v[2], v[3]))
	})

	Register(OpAbs, func(s *State) {
		v := s.PopInt()
		if v < 0 {
			v = -v
		}
		s.PushInt(v)
	})

	// SIN_DEG / COS_DEG / ATAN2_DEG have no bound handler yet; a
	// script reaching them aborts per the missing-handler rule.
}

func randInt32(bound int32) int32 {
	return int32(rand.Int32N(bound))
}

func minInt32(a, b int32) int32 {
	if a < b {
		return a
	}
	return b
}

func maxInt32(a, b int32) int32 {
	if a > b {
		return a
	}
	return b
}
