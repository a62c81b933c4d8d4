package server

import "sync"

// reaper holds transports of closed connections until the next Tick, so a
// transport is never torn down from inside one of its own callbacks.
type reaper struct {
	mu      sync.Mutex
	pending []Transport
}

func (r *reaper) add(t Transport) {
	r.mu.Lock()
	r.pending = append(r.pending, t)
	r.mu.Unlock()
}

func (r *reaper) drain() []Transport {
	r.mu.Lock()
	defer r.mu.Unlock()

	pending := r.pending
	r.pending = nil
	return pending
}

func (r *reaper) len() int {
	r.mu.Lock()
	defer r.mu.Unlock()
	return len(r.pending)
}
