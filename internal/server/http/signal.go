package http

import "sync/atomic"

// Signal is the shared stop flag every connection consults for its
// keep-alive decision. Once raised it never resets, so responses written
// after shutdown began all advertise Connection: close.
type Signal struct {
	stopped atomic.Bool
}

func NewSignal() *Signal {
	return new(Signal)
}

func (s *Signal) Stop() {
	s.stopped.Store(true)
}

func (s *Signal) Stopped() bool {
	return s.stopped.Load()
}
