package voice

import "sync"

type listener struct {
	id      uint64
	event   Event
	handler Handler
}

// Emitter is the subscription registry shared by Client implementations.
// Handlers run in registration order on the goroutine calling Emit.
type Emitter struct {
	mu        sync.Mutex
	nextID    uint64
	listeners []listener
}

func (e *Emitter) On(event Event, h Handler) Subscription {
	e.mu.Lock()
	defer e.mu.Unlock()

	e.nextID++
	e.listeners = append(e.listeners, listener{id: e.nextID, event: event, handler: h})
	return Subscription{id: e.nextID}
}

// Off is a no-op for unknown or already removed subscriptions.
func (e *Emitter) Off(sub Subscription) {
	e.mu.Lock()
	defer e.mu.Unlock()

	for i, l := range e.listeners {
		if l.id == sub.id {
			e.listeners = append(e.listeners[:i], e.listeners[i+1:]...)
			return
		}
	}
}

func (e *Emitter) Emit(event Event, payload interface{}) {
	e.mu.Lock()
	var handlers []Handler
	for _, l := range e.listeners {
		if l.event == event {
			handlers = append(handlers, l.handler)
		}
	}
	e.mu.Unlock()

	for _, h := range handlers {
		h(payload)
	}
}

// Len is the number of live subscriptions.
func (e *Emitter) Len() int {
	e.mu.Lock()
	defer e.mu.Unlock()
	return len(e.listeners)
}

func (e *Emitter) Reset() {
	e.mu.Lock()
	e.listeners = nil
	e.mu.Unlock()
}
