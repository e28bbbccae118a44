// Package realtime fans newly inserted store rows out to in-process
// subscribers and, through optional sinks, to other service instances.
package realtime

import (
	"sync"

	"github.com/mmynk/zehem/internal/metrics"
	"github.com/mmynk/zehem/internal/storage"
)

// Event is one committed insert.
type Event struct {
	Collection string      `json:"collection"`
	Row        storage.Row `json:"row"`
}

// Sink receives every locally published event, e.g. to relay it to other
// instances. Forward must not block.
type Sink interface {
	Forward(Event)
}

// Broker is an in-process publish/subscribe hub keyed by collection.
type Broker struct {
	mu     sync.RWMutex
	nextID uint64
	subs   map[uint64]*Subscription
	sinks  []Sink
}

// NewBroker creates an empty broker.
func NewBroker() *Broker {
	return &Broker{subs: make(map[uint64]*Subscription)}
}

// Subscription is returned by Broker.Subscribe.
type Subscription struct {
	broker     *Broker
	id         uint64
	collection string
	filter     storage.Filter
	fn         func(storage.Row)
	once       sync.Once
}

// Cancel removes the subscription. Safe to call more than once.
func (s *Subscription) Cancel() {
	s.once.Do(func() {
		s.broker.mu.Lock()
		delete(s.broker.subs, s.id)
		n := len(s.broker.subs)
		s.broker.mu.Unlock()
		metrics.SetSubscribers(n)
	})
}

// Subscribe registers fn for rows inserted into collection that match filter.
func (b *Broker) Subscribe(collection string, filter storage.Filter, fn func(storage.Row)) *Subscription {
	b.mu.Lock()
	b.nextID++
	sub := &Subscription{
		broker:     b,
		id:         b.nextID,
		collection: collection,
		filter:     filter,
		fn:         fn,
	}
	b.subs[sub.id] = sub
	n := len(b.subs)
	b.mu.Unlock()
	metrics.SetSubscribers(n)
	return sub
}

// AddSink attaches a sink that sees every event passed to Publish.
func (b *Broker) AddSink(s Sink) {
	b.mu.Lock()
	b.sinks = append(b.sinks, s)
	b.mu.Unlock()
}

// Publish delivers events to local subscribers and forwards them to sinks.
func (b *Broker) Publish(events ...Event) {
	b.Deliver(events...)

	b.mu.RLock()
	sinks := append([]Sink(nil), b.sinks...)
	b.mu.RUnlock()
	for _, ev := range events {
		for _, s := range sinks {
			s.Forward(ev)
		}
	}
}

// Deliver hands events to local subscribers only. Relays use it for events
// that originated on another instance.
func (b *Broker) Deliver(events ...Event) {
	for _, ev := range events {
		for _, sub := range b.matching(ev) {
			sub.fn(ev.Row.Clone())
		}
	}
}

// Len returns the number of active subscriptions.
func (b *Broker) Len() int {
	b.mu.RLock()
	defer b.mu.RUnlock()
	return len(b.subs)
}

func (b *Broker) matching(ev Event) []*Subscription {
	b.mu.RLock()
	defer b.mu.RUnlock()

	var out []*Subscription
	for _, sub := range b.subs {
		if sub.collection == ev.Collection && sub.filter.Matches(ev.Row) {
			out = append(out, sub)
		}
	}
	return out
}
