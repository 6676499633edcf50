package store

import (
	"sync"

	"github.com/trollcity/wallsync/internal/wall"
)

const defaultSubscriberBuffer = 64

// Dispatcher is the in-process change feed for the wall table: every
// confirmed mutation publishes an insert/update event here and all feed
// views receive it. Delivery is at-least-once with no ordering
// guarantee; a subscriber that falls behind its buffer drops events and
// recovers through a full refresh.
type Dispatcher struct {
	mu          sync.RWMutex
	subscribers map[int64]*feedSubscriber
	nextID      int64
	bufferSize  int
}

type feedSubscriber struct {
	id     int64
	stream chan wall.ChangeEvent
}

// NewDispatcher returns an empty dispatcher.
func NewDispatcher() *Dispatcher {
	return &Dispatcher{
		subscribers: make(map[int64]*feedSubscriber),
		bufferSize:  defaultSubscriberBuffer,
	}
}

// Subscribe registers a buffered event stream. The returned cleanup must
// be called when the consumer goes away.
func (d *Dispatcher) Subscribe() (<-chan wall.ChangeEvent, func()) {
	subscriber := &feedSubscriber{
		stream: make(chan wall.ChangeEvent, d.bufferSize),
	}

	d.mu.Lock()
	d.nextID++
	subscriber.id = d.nextID
	d.subscribers[subscriber.id] = subscriber
	d.mu.Unlock()

	var once sync.Once
	cleanup := func() {
		once.Do(func() {
			d.mu.Lock()
			delete(d.subscribers, subscriber.id)
			d.mu.Unlock()
		})
	}
	return subscriber.stream, cleanup
}

// SubscribeToFeedChanges adapts Subscribe to the handler-callback shape
// the feed engine consumes.
func (d *Dispatcher) SubscribeToFeedChanges(handler func(wall.ChangeEvent)) (func(), error) {
	stream, cleanup := d.Subscribe()
	done := make(chan struct{})
	go func() {
		for {
			select {
			case event := <-stream:
				handler(event)
			case <-done:
				return
			}
		}
	}()

	var once sync.Once
	cancel := func() {
		once.Do(func() {
			cleanup()
			close(done)
		})
	}
	return cancel, nil
}

// Publish fans one change event out to every subscriber, dropping it for
// subscribers whose buffers are full.
func (d *Dispatcher) Publish(event wall.ChangeEvent) {
	if event.Patch.ID == "" {
		return
	}

	d.mu.RLock()
	copies := make([]*feedSubscriber, 0, len(d.subscribers))
	for _, subscriber := range d.subscribers {
		copies = append(copies, subscriber)
	}
	d.mu.RUnlock()

	for _, subscriber := range copies {
		select {
		case subscriber.stream <- event:
		default:
		}
	}
}

// SubscriberCount reports the number of live subscriptions, used to
// verify deterministic release in tests.
func (d *Dispatcher) SubscriberCount() int {
	d.mu.RLock()
	defer d.mu.RUnlock()
	return len(d.subscribers)
}
