// SPDX-License-Identifier: Apache-2.0
// Copyright (c) 2025 Kaz Walker, Thermoquad

package link

import (
	"fmt"
	"sync"
	"sync/atomic"
	"time"

	"github.com/google/uuid"

	"github.com/Thermoquad/speedlink/pkg/dglab"
	"github.com/Thermoquad/speedlink/pkg/errors"
)

// EventType identifies what happened on the link.
type EventType int

const (
	EventOpened EventType = iota
	EventClosed
	EventCommandSent
	EventResponseReceived
	EventError
)

// String returns the event name.
func (t EventType) String() string {
	switch t {
	case EventOpened:
		return "connection-opened"
	case EventClosed:
		return "connection-closed"
	case EventCommandSent:
		return "command-sent"
	case EventResponseReceived:
		return "response-received"
	case EventError:
		return "error"
	default:
		return "unknown"
	}
}

// Event is a single observation published by the Manager.
type Event struct {
	Type  EventType
	Time  time.Time
	State State // state after the event

	// MessageType is the command type for EventCommandSent and the response
	// type for EventResponseReceived.
	MessageType string
	Raw         []byte

	// Message is set for structured responses, Legacy for B0/BF lines.
	Message dglab.Message
	Legacy  dglab.Command

	Err error
}

// String formats the event for logs and terminal output.
func (e Event) String() string {
	switch e.Type {
	case EventCommandSent, EventResponseReceived:
		return fmt.Sprintf("%s %s %s", e.Type, e.MessageType, e.Raw)
	case EventError:
		return fmt.Sprintf("%s: %v", e.Type, e.Err)
	default:
		return fmt.Sprintf("%s (%s)", e.Type, e.State)
	}
}

// Listener receives link events through callbacks. Listen adapts it onto a
// subscription.
type Listener interface {
	OnOpened(Event)
	OnClosed(Event)
	OnCommandSent(Event)
	OnResponseReceived(Event)
	OnError(Event)
}

// bus fans events out to subscribers without ever blocking the publisher.
type bus struct {
	mu          sync.Mutex
	subscribers map[string]chan Event
	dropped     atomic.Uint64
	closed      bool
}

func newBus() *bus {
	return &bus{subscribers: make(map[string]chan Event)}
}

func (b *bus) subscribe(buffer int) (string, chan Event) {
	if buffer < 0 {
		buffer = 0
	}
	id := uuid.NewString()
	ch := make(chan Event, buffer)
	b.mu.Lock()
	defer b.mu.Unlock()
	if b.closed {
		close(ch)
		return id, ch
	}
	b.subscribers[id] = ch
	return id, ch
}

func (b *bus) unsubscribe(id string) {
	b.mu.Lock()
	defer b.mu.Unlock()
	if ch, ok := b.subscribers[id]; ok {
		close(ch)
		delete(b.subscribers, id)
	}
}

func (b *bus) publish(ev Event) {
	b.mu.Lock()
	defer b.mu.Unlock()
	for _, ch := range b.subscribers {
		select {
		case ch <- ev:
		default:
			// slow subscriber; never block the link
			b.dropped.Add(1)
		}
	}
}

func (b *bus) close() {
	b.mu.Lock()
	defer b.mu.Unlock()
	b.closed = true
	for id, ch := range b.subscribers {
		close(ch)
		delete(b.subscribers, id)
	}
}

// Subscribe returns a channel receiving every subsequent event and a function
// that cancels the subscription and closes the channel. Events are dropped
// for a subscriber whose buffer is full.
func (m *Manager) Subscribe(buffer int) (<-chan Event, func()) {
	id, ch := m.bus.subscribe(buffer)
	var once sync.Once
	return ch, func() { once.Do(func() { m.bus.unsubscribe(id) }) }
}

// Listen dispatches events to l on a dedicated goroutine until the returned
// function is called. A panicking callback is recovered and reported as an
// error event.
func (m *Manager) Listen(l Listener) func() {
	ch, cancel := m.Subscribe(64)
	go func() {
		for ev := range ch {
			m.dispatch(l, ev)
		}
	}()
	return cancel
}

func (m *Manager) dispatch(l Listener, ev Event) {
	defer func() {
		if r := recover(); r != nil {
			err := errors.New(errors.TransportError, "listener panicked handling %s: %v", ev.Type, r)
			m.log.Err(err)
			if ev.Type != EventError {
				m.bus.publish(Event{Type: EventError, Time: m.clock.Now(), State: m.State(), Err: err})
			}
		}
	}()

	switch ev.Type {
	case EventOpened:
		l.OnOpened(ev)
	case EventClosed:
		l.OnClosed(ev)
	case EventCommandSent:
		l.OnCommandSent(ev)
	case EventResponseReceived:
		l.OnResponseReceived(ev)
	case EventError:
		l.OnError(ev)
	}
}
