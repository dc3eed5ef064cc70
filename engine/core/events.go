package core

import "sync"

// EventContext carries the small payload attached to a fired event.
type EventContext struct {
	Data struct {
		I32 [4]int32
		U32 [4]uint32
		U16 [8]uint16
	}
}

// System internal event codes. Application should use codes beyond 255.
type SystemEventCode int

const (
	// Shuts the application down on the next frame.
	EVENT_CODE_APPLICATION_QUIT SystemEventCode = 0x01

	// Keyboard key pressed.
	/* Context usage:
	 * u16 key_code = data.Data.U16[0];
	 */
	EVENT_CODE_KEY_PRESSED SystemEventCode = 0x02

	// Window iconified. Rendering pauses until EVENT_CODE_RESTORED.
	EVENT_CODE_MINIMIZED SystemEventCode = 0x03

	// Window restored from the iconified state.
	EVENT_CODE_RESTORED SystemEventCode = 0x04

	MAX_EVENT_CODE SystemEventCode = 0xFF
)

// This should be more than enough codes...
const MAX_MESSAGE_CODES = 16384

// Should return true if handled.
type FnOnEvent func(code SystemEventCode, sender interface{}, listener interface{}, data EventContext) bool

type registeredEvent struct {
	listener interface{}
	callback FnOnEvent
}

// EventBus dispatches events synchronously to the listeners registered for a code.
type EventBus struct {
	mu         sync.Mutex
	registered map[SystemEventCode][]*registeredEvent
}

func NewEventBus() *EventBus {
	return &EventBus{
		registered: make(map[SystemEventCode][]*registeredEvent),
	}
}

/**
 * Register to listen for when events are sent with the provided code. Events with duplicate
 * listener combos will not be registered again and will cause this to return false.
 */
func (b *EventBus) Register(code SystemEventCode, listener interface{}, onEvent FnOnEvent) bool {
	if code < 0 || code >= MAX_MESSAGE_CODES || onEvent == nil {
		return false
	}
	b.mu.Lock()
	defer b.mu.Unlock()
	for _, e := range b.registered[code] {
		if e.listener == listener {
			LogWarn("listener already registered for event code %d", code)
			return false
		}
	}
	b.registered[code] = append(b.registered[code], &registeredEvent{
		listener: listener,
		callback: onEvent,
	})
	return true
}

// Unregister removes the listener for the given code. Returns false if it was not registered.
func (b *EventBus) Unregister(code SystemEventCode, listener interface{}) bool {
	b.mu.Lock()
	defer b.mu.Unlock()
	events := b.registered[code]
	for i, e := range events {
		if e.listener == listener {
			b.registered[code] = append(events[:i], events[i+1:]...)
			return true
		}
	}
	return false
}

// Fire dispatches the event. Dispatch stops at the first listener that reports the event handled.
func (b *EventBus) Fire(code SystemEventCode, sender interface{}, context EventContext) bool {
	b.mu.Lock()
	events := make([]*registeredEvent, len(b.registered[code]))
	copy(events, b.registered[code])
	b.mu.Unlock()

	for _, e := range events {
		if e.callback(code, sender, e.listener, context) {
			return true
		}
	}
	return false
}

// Shutdown drops every registration.
func (b *EventBus) Shutdown() {
	b.mu.Lock()
	defer b.mu.Unlock()
	b.registered = make(map[SystemEventCode][]*registeredEvent)
}
