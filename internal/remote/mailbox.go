package remote

import "sync"

// mailbox delivers snapshots to fn one at a time, in push order, on its own goroutine.
// Pushing never blocks on fn.
type mailbox struct {
	fn func(Snapshot)

	mu     sync.Mutex
	queue  []Snapshot
	closed bool

	signal chan struct{}
	done   chan struct{}
	once   sync.Once
}

func newMailbox(fn func(Snapshot)) *mailbox {
	m := &mailbox{
		fn:     fn,
		signal: make(chan struct{}, 1),
		done:   make(chan struct{}),
	}
	go m.run()
	return m
}

func (m *mailbox) push(s Snapshot) {
	m.mu.Lock()
	if m.closed {
		m.mu.Unlock()
		return
	}
	m.queue = append(m.queue, s)
	m.mu.Unlock()

	select {
	case m.signal <- struct{}{}:
	default:
	}
}

func (m *mailbox) run() {
	for {
		select {
		case <-m.done:
			return
		case <-m.signal:
		}

		for {
			m.mu.Lock()
			if m.closed || len(m.queue) == 0 {
				m.mu.Unlock()
				break
			}
			s := m.queue[0]
			m.queue = m.queue[1:]
			m.mu.Unlock()

			m.fn(s)
		}
	}
}

// close drops anything still queued and stops delivery.
// A snapshot already handed to fn is not interrupted.
func (m *mailbox) close() {
	m.once.Do(func() {
		m.mu.Lock()
		m.closed = true
		m.queue = nil
		m.mu.Unlock()
		close(m.done)
	})
}
