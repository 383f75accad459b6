package bingo

import "math/bits"

// Call is one number drawn during the Calling phase. Sequence is the 0-based
// position in emission order.
type Call struct {
	Sequence int `json:"sequenceIndex"`
	Number   int `json:"number"`
}

// CallSet is a fixed-size bitset of called numbers. It is a value type, so a
// copy handed to a validator can never be mutated behind its back.
type CallSet struct {
	words [2]uint64
}

// NewCallSet returns a set holding the given numbers. Out-of-range values are
// ignored.
func NewCallSet(numbers ...int) CallSet {
	var s CallSet
	for _, n := range numbers {
		s.Add(n)
	}
	return s
}

// CallSetOf derives the called set from a call history, considering only the
// first upTo calls. A negative upTo means the whole history.
func CallSetOf(history []Call, upTo int) CallSet {
	if upTo < 0 || upTo > len(history) {
		upTo = len(history)
	}
	var s CallSet
	for _, c := range history[:upTo] {
		s.Add(c.Number)
	}
	return s
}

// Add marks n as called.
func (s *CallSet) Add(n int) {
	if !ValidNumber(n) {
		return
	}
	i := n - MinNumber
	s.words[i/64] |= 1 << (uint(i) % 64)
}

// Has reports whether n has been called.
func (s CallSet) Has(n int) bool {
	if !ValidNumber(n) {
		return false
	}
	i := n - MinNumber
	return s.words[i/64]&(1<<(uint(i)%64)) != 0
}

// Len returns how many numbers are in the set.
func (s CallSet) Len() int {
	return bits.OnesCount64(s.words[0]) + bits.OnesCount64(s.words[1])
}
