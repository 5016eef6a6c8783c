package rtc

import (
	"sync"

	"github.com/dkeye/VoiceCall/internal/core"
)

// arrivals matches inbound tracks to the subscription waiting on their stream id.
type arrivals struct {
	mu      sync.Mutex
	waiting map[string]chan core.MediaStream
}

func newArrivals() *arrivals {
	return &arrivals{waiting: make(map[string]chan core.MediaStream)}
}

func (a *arrivals) expect(streamID string) <-chan core.MediaStream {
	a.mu.Lock()
	defer a.mu.Unlock()
	ch := make(chan core.MediaStream, 1)
	a.waiting[streamID] = ch
	return ch
}

// deliver hands s to its waiter. It reports false when nobody expects the stream.
func (a *arrivals) deliver(streamID string, s core.MediaStream) bool {
	a.mu.Lock()
	defer a.mu.Unlock()
	ch, ok := a.waiting[streamID]
	if !ok {
		return false
	}
	delete(a.waiting, streamID)
	ch <- s
	return true
}

func (a *arrivals) cancel(streamID string) {
	a.mu.Lock()
	defer a.mu.Unlock()
	delete(a.waiting, streamID)
}

func (a *arrivals) closeAll() {
	a.mu.Lock()
	defer a.mu.Unlock()
	for id, ch := range a.waiting {
		close(ch)
		delete(a.waiting, id)
	}
}

func (a *arrivals) pending() int {
	a.mu.Lock()
	defer a.mu.Unlock()
	return len(a.waiting)
}
