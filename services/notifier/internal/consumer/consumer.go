// Package consumer turns comment.created events into notification mail.
package consumer

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/nats-io/nats.go"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
	"go.uber.org/zap"

	"github.com/example/oration/internal/platform/events"
)

// Durable is the JetStream consumer name.
const Durable = "oration_notifier"

var processed = promauto.NewCounterVec(prometheus.CounterOpts{
	Name: "oration_notifications_total",
	Help: "Notification events by outcome",
}, []string{"outcome"})

// Sender delivers one mail.
type Sender interface {
	Send(to []string, subject, body string) error
}

// Outcome tells the fetch loop how to settle a message.
type Outcome int

const (
	Ack  Outcome = iota // handled, or nothing to do
	Nak                 // retry later
	Term                // never deliverable
)

func (o Outcome) String() string {
	switch o {
	case Ack:
		return "ack"
	case Nak:
		return "nak"
	default:
		return "term"
	}
}

type Consumer struct {
	Mailer     Sender
	Enabled    bool
	Recipients []string
	BatchSize  int
	MaxWait    time.Duration
	Log        *zap.Logger
}

// Handle decodes one event envelope and mails it.
func (c *Consumer) Handle(data []byte) Outcome {
	var ev events.Event
	if err := json.Unmarshal(data, &ev); err != nil {
		c.Log.Warn("notifier: bad envelope", zap.Error(err))
		return Term
	}
	if ev.EventName != events.EventCommentCreated {
		c.Log.Debug("notifier: ignoring event", zap.String("event", ev.EventName))
		return Ack
	}
	var cc events.CommentCreated
	if err := json.Unmarshal(ev.Payload, &cc); err != nil {
		c.Log.Warn("notifier: bad payload", zap.String("event_id", ev.EventID), zap.Error(err))
		return Term
	}

	to := cc.Recipients
	if len(to) == 0 {
		to = c.Recipients
	}
	if !c.Enabled || len(to) == 0 {
		c.Log.Info("notifier: mail disabled, dropping",
			zap.String("event_id", ev.EventID), zap.Int64("comment_id", cc.CommentID))
		return Ack
	}

	subject, body := Format(cc)
	if err := c.Mailer.Send(to, subject, body); err != nil {
		c.Log.Warn("notifier: send failed", zap.String("event_id", ev.EventID), zap.Error(err))
		return Nak
	}
	c.Log.Info("notifier: mail sent", zap.String("event_id", ev.EventID), zap.Int64("comment_id", cc.CommentID))
	return Ack
}

// Format renders the mail for one new comment.
func Format(cc events.CommentCreated) (subject, body string) {
	blog := cc.BlogName
	if blog == "" {
		blog = cc.Host
	}
	title := cc.Title
	if title == "" {
		title = cc.URI
	}
	subject = fmt.Sprintf("[%s] New comment on %s", blog, title)

	var b strings.Builder
	fmt.Fprintf(&b, "%s wrote:\n\n%s\n\n", cc.Author, cc.Text)
	if cc.Email != "" {
		fmt.Fprintf(&b, "Email: %s\n", cc.Email)
	}
	if cc.Website != "" {
		fmt.Fprintf(&b, "Website: %s\n", cc.Website)
	}
	if cc.IPHash != "" {
		fmt.Fprintf(&b, "IP hash: %s\n", cc.IPHash)
	}
	fmt.Fprintf(&b, "Link: %s%s#comment-%d\n", strings.TrimRight(cc.Host, "/"), cc.URI, cc.CommentID)
	return subject, b.String()
}

// Run pull-consumes sub until ctx is cancelled.
func (c *Consumer) Run(ctx context.Context, sub *nats.Subscription) error {
	batch := c.BatchSize
	if batch <= 0 {
		batch = 20
	}
	wait := c.MaxWait
	if wait <= 0 {
		wait = 2 * time.Second
	}

	for {
		if err := ctx.Err(); err != nil {
			return nil
		}
		msgs, err := sub.Fetch(batch, nats.MaxWait(wait))
		if err != nil {
			if errors.Is(err, nats.ErrTimeout) || errors.Is(err, context.DeadlineExceeded) {
				continue
			}
			c.Log.Warn("notifier: fetch failed", zap.Error(err))
			select {
			case <-ctx.Done():
				return nil
			case <-time.After(time.Second):
			}
			continue
		}
		for _, m := range msgs {
			outcome := c.Handle(m.Data)
			processed.WithLabelValues(outcome.String()).Inc()
			if err := settle(m, outcome); err != nil {
				c.Log.Warn("notifier: settle failed", zap.String("outcome", outcome.String()), zap.Error(err))
			}
		}
	}
}

func settle(m *nats.Msg, o Outcome) error {
	switch o {
	case Ack:
		return m.Ack()
	case Nak:
		return m.NakWithDelay(30 * time.Second)
	default:
		return m.Term()
	}
}
