// rng.go - Deterministischer Zufallsstrom fuer die Gewichte
//
// xorshift32 mit den Shifts 13, 17, 5. Der Strom ist Teil des Formats:
// gleicher Seed ergibt auf jedem Host dieselben Gewichte.
package model

// zeroSeedState ersetzt den Zustand 0, auf dem xorshift stehen bleibt
const zeroSeedState uint32 = 0x9E3779B9

// WeightRange begrenzt alle initialisierten Gewichte auf [-WeightRange, WeightRange]
const WeightRange = 0.1

// Stream ist ein xorshift32-Generator (Shifts 13, 17, 5).
// Gleicher Seed ergibt auf jedem Host dieselbe Folge.
type Stream struct {
	state uint32
}

// NewStream reduziert seed auf 32 Bit
func NewStream(seed int64) *Stream {
	s := uint32(uint64(seed))
	if s == 0 {
		s = zeroSeedState
	}
	return &Stream{state: s}
}

// Next gibt den naechsten 32-Bit-Wert zurueck
func (s *Stream) Next() uint32 {
	x := s.state
	x ^= x << 13
	x ^= x >> 17
	x ^= x << 5
	s.state = x
	return x
}

// Float64 gibt einen Wert in [0, 1) zurueck
func (s *Stream) Float64() float64 {
	return float64(s.Next()) / (1 << 32)
}

// Weight gibt einen Wert in [-WeightRange, WeightRange) zurueck
func (s *Stream) Weight() float64 {
	return (2*s.Float64() - 1) * WeightRange
}

func (s *Stream) fill(n int, f func() float64) []float64 {
	out := make([]float64, n)
	for i := range out {
		out[i] = f()
	}
	return out
}
