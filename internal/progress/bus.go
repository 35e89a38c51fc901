package progress

import (
	"sync"
	"time"
)

// Kind names the event types the engine publishes.
type Kind string

const (
	KindStageStarted       Kind = "stage_started"
	KindStageCompleted     Kind = "stage_completed"
	KindStageFailed        Kind = "stage_failed"
	KindSessionCompleted   Kind = "session_completed"
	KindSessionFailed      Kind = "session_failed"
	KindSessionInterrupted Kind = "session_interrupted"
	KindWarning            Kind = "warning"
)

// Event is one transient progress record for a session. StageIndex is 0 for
// session-level events.
type Event struct {
	SessionID       string    `json:"session_id"`
	StageIndex      int       `json:"stage_index,omitempty"`
	Stage           string    `json:"stage,omitempty"`
	Kind            Kind      `json:"kind"`
	Status          string    `json:"status,omitempty"`
	ProgressPercent float64   `json:"progress_percent"`
	Message         string    `json:"message,omitempty"`
	Timestamp       time.Time `json:"timestamp"`
}

// Terminal reports whether the event marks the end of its session's stream.
func (e Event) Terminal() bool {
	switch e.Kind {
	case KindSessionCompleted, KindSessionFailed, KindSessionInterrupted:
		return true
	default:
		return false
	}
}

type subscriber struct {
	ch      chan Event
	dropped uint64
}

// Bus is a per-session fan-out broadcaster. Publish never blocks: when a
// subscriber's buffer is full the oldest unread event is dropped and the drop
// counters increment.
type Bus struct {
	mu         sync.Mutex
	subs       map[string]map[*subscriber]struct{}
	bufferSize int
	dropped    uint64
}

// NewBus constructs a Bus with the given per-subscriber buffer size.
func NewBus(bufferSize int) *Bus {
	if bufferSize <= 0 {
		bufferSize = 64
	}
	return &Bus{
		subs:       make(map[string]map[*subscriber]struct{}),
		bufferSize: bufferSize,
	}
}

// Publish delivers an event to every subscriber of its session. Fire and
// forget; a missing timestamp is filled in.
func (b *Bus) Publish(evt Event) {
	if b == nil || evt.SessionID == "" {
		return
	}
	if evt.Timestamp.IsZero() {
		evt.Timestamp = time.Now().UTC()
	}

	b.mu.Lock()
	defer b.mu.Unlock()
	for sub := range b.subs[evt.SessionID] {
		for {
			select {
			case sub.ch <- evt:
			default:
				// Buffer full: evict the oldest unread event and retry.
				select {
				case <-sub.ch:
					sub.dropped++
					b.dropped++
				default:
				}
				continue
			}
			break
		}
	}
}

// Subscribe registers a live event feed for one session. The returned cancel
// func detaches the subscriber and closes its channel; it is safe to call
// more than once.
func (b *Bus) Subscribe(sessionID string) (<-chan Event, func()) {
	sub := &subscriber{ch: make(chan Event, b.bufferSize)}

	b.mu.Lock()
	set, ok := b.subs[sessionID]
	if !ok {
		set = make(map[*subscriber]struct{})
		b.subs[sessionID] = set
	}
	set[sub] = struct{}{}
	b.mu.Unlock()

	var once sync.Once
	cancel := func() {
		once.Do(func() {
			b.mu.Lock()
			if set, ok := b.subs[sessionID]; ok {
				delete(set, sub)
				if len(set) == 0 {
					delete(b.subs, sessionID)
				}
			}
			b.mu.Unlock()
			close(sub.ch)
		})
	}
	return sub.ch, cancel
}

// SubscriberCount reports the number of live subscribers for a session.
func (b *Bus) SubscriberCount(sessionID string) int {
	b.mu.Lock()
	defer b.mu.Unlock()
	return len(b.subs[sessionID])
}

// Dropped reports the total number of events discarded across all
// subscribers since the bus was created.
func (b *Bus) Dropped() uint64 {
	b.mu.Lock()
	defer b.mu.Unlock()
	return b.dropped
}
