// Package notify announces new comments to the notifier service.
package notify

import (
	"context"
	"time"

	"github.com/example/oration/internal/platform/events"
	"github.com/example/oration/services/comments/internal/comments"
	"github.com/example/oration/services/comments/internal/identity"
	"github.com/example/oration/services/comments/internal/store"
)

// Publisher is satisfied by *events.Publisher.
type Publisher interface {
	Publish(subject, eventName string, payload any)
}

// Notifier publishes a comment.created event per new comment when
// enabled. It never fails the request that triggered it.
type Notifier struct {
	Pub        Publisher
	Enabled    bool
	Host       string
	BlogName   string
	Recipients []string
	Now        func() time.Time
}

func New(pub Publisher, enabled bool, host, blogName string, recipients []string) *Notifier {
	return &Notifier{
		Pub:        pub,
		Enabled:    enabled,
		Host:       host,
		BlogName:   blogName,
		Recipients: recipients,
		Now:        time.Now,
	}
}

// Notify publishes the event for comment c, submitted as sub to thread th.
func (n *Notifier) Notify(_ context.Context, th store.Thread, c comments.InsertedComment, sub comments.Submission, remoteIP string) {
	if n == nil || !n.Enabled || n.Pub == nil {
		return
	}
	ev := events.CommentCreated{
		CommentID:  c.ID,
		ThreadID:   th.ID,
		Parent:     c.Parent,
		URI:        th.URI,
		Title:      th.Title,
		Host:       n.Host,
		BlogName:   n.BlogName,
		Author:     "Anonymous",
		Email:      value(sub.Email),
		Website:    value(sub.Website),
		Text:       sub.Text,
		IPHash:     identity.HashIP(remoteIP),
		Recipients: n.Recipients,
		Created:    n.Now().UTC(),
	}
	if c.Author != nil {
		ev.Author = *c.Author
	}
	n.Pub.Publish(events.SubjectCommentCreated, events.EventCommentCreated, ev)
}

func value(s *string) string {
	if s == nil {
		return ""
	}
	return *s
}
