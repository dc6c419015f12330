package txtlog

import "sync"

// Sequence is the per-process record counter. The zero value starts at 0.
type Sequence struct {
	mu  sync.Mutex
	cur uint32
}

// Next assigns and returns the next sequence number.
func (s *Sequence) Next() uint32 {
	s.mu.Lock()
	defer s.mu.Unlock()
	v := s.cur
	s.cur++
	return v
}

// Current returns the number that the next assignment will receive, which is
// also the count of numbers assigned so far.
func (s *Sequence) Current() uint32 {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.cur
}

// Reserve calls fn with the number about to be assigned while holding the
// counter lock. The counter only advances when fn returns nil. The returned
// value is the counter after the call.
func (s *Sequence) Reserve(fn func(seq uint32) error) (uint32, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if err := fn(s.cur); err != nil {
		return s.cur, err
	}
	s.cur++
	return s.cur, nil
}
