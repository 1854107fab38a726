package ws

import (
	"sync"

	"github.com/HsiangNianian/AMonItor/neurosdk/internal/protocol"
)

// outbox is an unbounded FIFO with a single consumer. push never blocks.
type outbox struct {
	mu    sync.Mutex
	items []protocol.Envelope
	ready chan struct{}
}

func newOutbox() *outbox {
	return &outbox{ready: make(chan struct{}, 1)}
}

func (o *outbox) push(env protocol.Envelope) {
	o.mu.Lock()
	o.items = append(o.items, env)
	o.mu.Unlock()
	o.signal()
}

// requeue puts unsent envelopes back in front of anything queued since.
func (o *outbox) requeue(envs []protocol.Envelope) {
	if len(envs) == 0 {
		return
	}
	o.mu.Lock()
	o.items = append(append([]protocol.Envelope(nil), envs...), o.items...)
	o.mu.Unlock()
	o.signal()
}

func (o *outbox) drain() []protocol.Envelope {
	o.mu.Lock()
	defer o.mu.Unlock()
	items := o.items
	o.items = nil
	return items
}

func (o *outbox) len() int {
	o.mu.Lock()
	defer o.mu.Unlock()
	return len(o.items)
}

func (o *outbox) signal() {
	select {
	case o.ready <- struct{}{}:
	default:
	}
}
