package core

import "sync"

// Fanout delivers frames to a dynamic set of sinks. The zero value is ready to use.
type Fanout struct {
	mu    sync.RWMutex
	next  int
	sinks map[int]func(Frame)
}

func (f *Fanout) Add(fn func(Frame)) (remove func()) {
	f.mu.Lock()
	defer f.mu.Unlock()
	if f.sinks == nil {
		f.sinks = make(map[int]func(Frame))
	}
	id := f.next
	f.next++
	f.sinks[id] = fn
	return func() {
		f.mu.Lock()
		delete(f.sinks, id)
		f.mu.Unlock()
	}
}

// Emit calls every sink outside the lock, so a sink may remove itself.
func (f *Fanout) Emit(fr Frame) {
	f.mu.RLock()
	fns := make([]func(Frame), 0, len(f.sinks))
	for _, fn := range f.sinks {
		fns = append(fns, fn)
	}
	f.mu.RUnlock()
	for _, fn := range fns {
		fn(fr)
	}
}

func (f *Fanout) Len() int {
	f.mu.RLock()
	defer f.mu.RUnlock()
	return len(f.sinks)
}
