// Package events is the scheduler's narrow event-publish abstraction,
// decoupling the scheduler and rule adapter from any specific transport.
package events

import (
	"encoding/json"
	"log"
	"sync"
	"time"
)

const (
	TopicTaskCompleted = "compute.task.completed"
	TopicTaskFailed    = "compute.task.failed"
	TopicRuleMatch     = "rules.match"
	TopicRulesLoaded   = "rules.loaded"
)

// Event is one published occurrence, the unit both Publisher
// implementations in this package deal in.
type Event struct {
	Topic     string    `json:"topic"`
	Payload   []byte    `json:"payload"`
	Timestamp time.Time `json:"timestamp"`
}

// Publisher is the only surface the scheduler and rule adapter depend on.
// Concrete transports (ZeroMQ, HTTP/WebSocket push, a message broker) are
// out of scope; this package only ships the two implementations the
// scheduler needs to function standalone.
type Publisher interface {
	Publish(topic string, payload any)
	Close()
}

// LogPublisher JSON-encodes every event to the structured logger. It is the
// default transport until a real message broker is wired in.
type LogPublisher struct {
	logger *log.Logger
}

// NewLogPublisher returns a LogPublisher writing through log.Default().
func NewLogPublisher() *LogPublisher {
	return &LogPublisher{logger: log.Default()}
}

func (p *LogPublisher) Publish(topic string, payload any) {
	data, err := json.Marshal(payload)
	if err != nil {
		p.logger.Printf("events: failed to marshal payload for topic %s: %v", topic, err)
		return
	}
	event := Event{Topic: topic, Payload: data, Timestamp: time.Now()}
	encoded, _ := json.Marshal(event)
	p.logger.Printf("[EVENTS] %s: %s", topic, string(encoded))
}

func (p *LogPublisher) Close() {}

// subscriber is one consumer's buffered inbox.
type subscriber struct {
	ch     chan Event
	topics map[string]bool // nil means "all topics"
}

// FanoutPublisher delivers events to every subscriber whose topic filter
// matches, each over its own buffered channel so a slow subscriber cannot
// block the publisher or other subscribers. A full subscriber channel drops
// the event rather than blocking — publish is always non-blocking.
type FanoutPublisher struct {
	mu          sync.RWMutex
	subscribers map[int]*subscriber
	nextID      int
	bufferSize  int
}

// NewFanoutPublisher returns a FanoutPublisher whose subscriber channels
// each buffer bufferSize events (default 64 if bufferSize <= 0).
func NewFanoutPublisher(bufferSize int) *FanoutPublisher {
	if bufferSize <= 0 {
		bufferSize = 64
	}
	return &FanoutPublisher{subscribers: make(map[int]*subscriber), bufferSize: bufferSize}
}

// Subscribe registers a new consumer. topics, if non-empty, restricts
// delivery to those topics; an empty topics list subscribes to everything.
// The returned channel is closed when Unsubscribe is called.
func (p *FanoutPublisher) Subscribe(topics ...string) (<-chan Event, func()) {
	p.mu.Lock()
	defer p.mu.Unlock()

	var filter map[string]bool
	if len(topics) > 0 {
		filter = make(map[string]bool, len(topics))
		for _, t := range topics {
			filter[t] = true
		}
	}

	id := p.nextID
	p.nextID++
	sub := &subscriber{ch: make(chan Event, p.bufferSize), topics: filter}
	p.subscribers[id] = sub

	unsubscribe := func() {
		p.mu.Lock()
		defer p.mu.Unlock()
		if s, ok := p.subscribers[id]; ok {
			close(s.ch)
			delete(p.subscribers, id)
		}
	}
	return sub.ch, unsubscribe
}

func (p *FanoutPublisher) Publish(topic string, payload any) {
	data, err := json.Marshal(payload)
	if err != nil {
		return
	}
	event := Event{Topic: topic, Payload: data, Timestamp: time.Now()}

	p.mu.RLock()
	defer p.mu.RUnlock()
	for _, sub := range p.subscribers {
		if sub.topics != nil && !sub.topics[topic] {
			continue
		}
		select {
		case sub.ch <- event:
		default:
			// subscriber is backed up; drop rather than block the publisher.
		}
	}
}

func (p *FanoutPublisher) Close() {
	p.mu.Lock()
	defer p.mu.Unlock()
	for id, sub := range p.subscribers {
		close(sub.ch)
		delete(p.subscribers, id)
	}
}
