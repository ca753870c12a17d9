package pipeline

import "sync"

// EventType enumerates the events a run emits.
type EventType string

const (
	EventStart    EventType = "start"
	EventStage    EventType = "stage"
	EventLog      EventType = "log"
	EventUpdate   EventType = "update"
	EventComplete EventType = "complete"
	// EventState is the synthetic full-state snapshot delivered to
	// subscribers that attach mid-run, so they can render current progress
	// without scrollback.
	EventState EventType = "state"
)

// Event is one entry in a run's ordered event stream. Payload must be
// JSON-serializable.
type Event struct {
	Type    EventType   `json:"type"`
	RunID   string      `json:"run_id"`
	Payload interface{} `json:"payload,omitempty"`
}

// LogPayload is the payload of a log event: one line of subprocess output,
// prefixed by channel.
type LogPayload struct {
	Stage   Stage  `json:"stage"`
	Channel string `json:"channel"`
	Line    string `json:"line"`
}

// StagePayload is the payload of a stage transition event.
type StagePayload struct {
	Stage Stage `json:"stage"`
}

// Broker is a typed pub/sub channel for one run's events. It is closed when
// the run completes, so server-sent-event connections do not leak listeners
// across runs. Delivery is best-effort broadcast: a subscriber whose buffer
// is full misses events rather than blocking the run.
type Broker struct {
	mu     sync.Mutex
	subs   map[int]chan Event
	nextID int
	closed bool
}

// NewBroker creates an open broker.
func NewBroker() *Broker {
	return &Broker{subs: make(map[int]chan Event)}
}

// Subscribe registers a subscriber with the given channel buffer. The cancel
// function removes the subscription; it is safe to call more than once.
func (b *Broker) Subscribe(buffer int) (<-chan Event, func()) {
	if buffer <= 0 {
		buffer = 64
	}
	ch := make(chan Event, buffer)

	b.mu.Lock()
	defer b.mu.Unlock()
	if b.closed {
		close(ch)
		return ch, func() {}
	}
	id := b.nextID
	b.nextID++
	b.subs[id] = ch

	var once sync.Once
	cancel := func() {
		once.Do(func() {
			b.mu.Lock()
			defer b.mu.Unlock()
			if c, ok := b.subs[id]; ok {
				delete(b.subs, id)
				close(c)
			}
		})
	}
	return ch, cancel
}

// Publish broadcasts an event to all subscribers, dropping it for any
// subscriber whose buffer is full.
func (b *Broker) Publish(e Event) {
	b.mu.Lock()
	defer b.mu.Unlock()
	if b.closed {
		return
	}
	for _, ch := range b.subs {
		select {
		case ch <- e:
		default:
		}
	}
}

// Close closes all subscriber channels. Publish becomes a no-op afterwards.
func (b *Broker) Close() {
	b.mu.Lock()
	defer b.mu.Unlock()
	if b.closed {
		return
	}
	b.closed = true
	for id, ch := range b.subs {
		delete(b.subs, id)
		close(ch)
	}
}
