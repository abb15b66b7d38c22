package provider

import (
	"sync"

	"github.com/aussiebroadwan/portal/internal/auth/domain"
)

// Broker fans session events out to subscribers. Each subscriber owns an
// unbounded FIFO drained by its own goroutine, so Publish never blocks on a
// slow consumer and per-subscriber order matches publish order.
type Broker struct {
	mu     sync.Mutex
	subs   map[*subscriber]struct{}
	closed bool
}

func NewBroker() *Broker {
	return &Broker{subs: make(map[*subscriber]struct{})}
}

// Subscribe registers a new subscriber. After Close the returned channel is
// already closed.
func (b *Broker) Subscribe() (<-chan domain.SessionEvent, Subscription) {
	s := &subscriber{
		broker: b,
		out:    make(chan domain.SessionEvent),
		signal: make(chan struct{}, 1),
		done:   make(chan struct{}),
	}

	b.mu.Lock()
	if b.closed {
		b.mu.Unlock()
		close(s.done)
		close(s.out)
		s.once.Do(func() {})
		return s.out, s
	}
	b.subs[s] = struct{}{}
	b.mu.Unlock()

	go s.pump()
	return s.out, s
}

// Publish queues ev for every current subscriber.
func (b *Broker) Publish(ev domain.SessionEvent) {
	b.mu.Lock()
	defer b.mu.Unlock()
	if b.closed {
		return
	}
	for s := range b.subs {
		s.push(ev)
	}
}

// Subscribers reports the number of live subscriptions.
func (b *Broker) Subscribers() int {
	b.mu.Lock()
	defer b.mu.Unlock()
	return len(b.subs)
}

// Close unsubscribes everyone. Later Publish calls are dropped.
func (b *Broker) Close() {
	b.mu.Lock()
	if b.closed {
		b.mu.Unlock()
		return
	}
	b.closed = true
	subs := make([]*subscriber, 0, len(b.subs))
	for s := range b.subs {
		subs = append(subs, s)
	}
	b.mu.Unlock()

	for _, s := range subs {
		s.Unsubscribe()
	}
}

func (b *Broker) remove(s *subscriber) {
	b.mu.Lock()
	delete(b.subs, s)
	b.mu.Unlock()
}

type subscriber struct {
	broker *Broker

	mu    sync.Mutex
	queue []domain.SessionEvent

	out    chan domain.SessionEvent
	signal chan struct{}
	done   chan struct{}
	once   sync.Once
}

func (s *subscriber) push(ev domain.SessionEvent) {
	s.mu.Lock()
	s.queue = append(s.queue, ev)
	s.mu.Unlock()

	select {
	case s.signal <- struct{}{}:
	default:
	}
}

func (s *subscriber) pump() {
	defer close(s.out)
	for {
		s.mu.Lock()
		if len(s.queue) == 0 {
			s.mu.Unlock()
			select {
			case <-s.signal:
				continue
			case <-s.done:
				return
			}
		}
		ev := s.queue[0]
		s.queue[0] = domain.SessionEvent{}
		s.queue = s.queue[1:]
		s.mu.Unlock()

		select {
		case s.out <- ev:
		case <-s.done:
			return
		}
	}
}

func (s *subscriber) Unsubscribe() {
	s.once.Do(func() {
		s.broker.remove(s)
		close(s.done)
	})
}
