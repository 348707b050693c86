// Package events provides a fire-and-forget NATS JetStream publisher for
// domain events. Consumers decode the same Event envelope.
package events

import (
	"encoding/json"
	"time"

	"github.com/google/uuid"
	"github.com/nats-io/nats.go"
	"go.uber.org/zap"
)

// Stream and subject names for comment events.
const (
	StreamName            = "ORATION"
	SubjectAll            = "oration.>"
	SubjectCommentCreated = "oration.comments.created"
)

// Event is the canonical envelope sent to all oration.* subjects.
type Event struct {
	EventID    string          `json:"event_id"`
	EventName  string          `json:"event_name"`
	OccurredAt time.Time       `json:"occurred_at"`
	Payload    json.RawMessage `json:"payload,omitempty"`
}

// Publisher publishes events to NATS JetStream.
// The zero value and a nil pointer are both safe no-op stubs.
type Publisher struct {
	js  nats.JetStreamContext
	log *zap.Logger
}

// New creates a Publisher using an existing JetStream context.
// Pass js=nil to get a no-op stub (useful in tests and without NATS).
func New(js nats.JetStreamContext, log *zap.Logger) *Publisher {
	if log == nil {
		log = zap.NewNop()
	}
	return &Publisher{js: js, log: log}
}

// Enabled reports whether events actually leave the process.
func (p *Publisher) Enabled() bool {
	return p != nil && p.js != nil
}

// NewEvent wraps payload in an Event envelope.
func NewEvent(eventName string, payload any) (Event, error) {
	raw, err := json.Marshal(payload)
	if err != nil {
		return Event{}, err
	}
	return Event{
		EventID:    uuid.NewString(),
		EventName:  eventName,
		OccurredAt: time.Now().UTC(),
		Payload:    raw,
	}, nil
}

// Publish sends an event asynchronously (fire-and-forget).
// Failures are logged as warnings and never surface to the caller.
// The publisher is safe to call with a nil receiver.
func (p *Publisher) Publish(subject, eventName string, payload any) {
	if !p.Enabled() {
		return
	}
	ev, err := NewEvent(eventName, payload)
	if err != nil {
		p.log.Warn("events: marshal payload failed", zap.String("event", eventName), zap.Error(err))
		return
	}
	data, err := json.Marshal(ev)
	if err != nil {
		p.log.Warn("events: marshal failed", zap.String("event", eventName), zap.Error(err))
		return
	}
	if _, err := p.js.PublishAsync(subject, data, nats.MsgId(ev.EventID)); err != nil {
		p.log.Warn("events: publish failed", zap.String("subject", subject), zap.Error(err))
		return
	}
	p.log.Debug("events: published", zap.String("subject", subject), zap.String("event_id", ev.EventID))
}

// EventCommentCreated names the event published for every new comment.
const EventCommentCreated = "comment.created"

// CommentCreated is the payload of EventCommentCreated.
type CommentCreated struct {
	CommentID  int64     `json:"comment_id"`
	ThreadID   int64     `json:"thread_id"`
	Parent     *int64    `json:"parent,omitempty"`
	URI        string    `json:"uri"`
	Title      string    `json:"title"`
	Host       string    `json:"host"`
	BlogName   string    `json:"blog_name"`
	Author     string    `json:"author"`
	Email      string    `json:"email,omitempty"`
	Website    string    `json:"website,omitempty"`
	Text       string    `json:"text"`
	IPHash     string    `json:"ip_hash,omitempty"`
	Recipients []string  `json:"recipients,omitempty"`
	Created    time.Time `json:"created"`
}
