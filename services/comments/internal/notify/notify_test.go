package notify

import (
	"context"
	"testing"

	"github.com/example/oration/internal/platform/events"
	"github.com/example/oration/services/comments/internal/comments"
	"github.com/example/oration/services/comments/internal/store"
)

type recorder struct {
	subject, name string
	payload       any
	calls         int
}

func (r *recorder) Publish(subject, eventName string, payload any) {
	r.subject, r.name, r.payload = subject, eventName, payload
	r.calls++
}

func strp(s string) *string { return &s }

func TestNotifyPublishesEvent(t *testing.T) {
	rec := &recorder{}
	n := New(rec, true, "https://blog.example", "Blog", []string{"me@example.org"})
	th := store.Thread{ID: 4, URI: "/posts/a", Title: "A"}
	c := comments.InsertedComment{ID: 9, Author: strp("Jane")}

	n.Notify(context.Background(), th, c, comments.Submission{Text: "hello", Email: strp("j@x.org")}, "127.0.0.1")

	if rec.calls != 1 || rec.subject != events.SubjectCommentCreated || rec.name != events.EventCommentCreated {
		t.Fatalf("unexpected publish %+v", rec)
	}
	ev, ok := rec.payload.(events.CommentCreated)
	if !ok {
		t.Fatalf("unexpected payload type %T", rec.payload)
	}
	if ev.CommentID != 9 || ev.URI != "/posts/a" || ev.Author != "Jane" || ev.Text != "hello" {
		t.Fatalf("unexpected event %+v", ev)
	}
	if ev.IPHash == "" || ev.IPHash == "127.0.0.1" {
		t.Fatalf("ip must be hashed, got %q", ev.IPHash)
	}
	if len(ev.Recipients) != 1 || ev.Email != "j@x.org" {
		t.Fatalf("unexpected recipients/email %+v", ev)
	}
}

func TestNotifyDisabled(t *testing.T) {
	rec := &recorder{}
	New(rec, false, "", "", nil).Notify(context.Background(), store.Thread{}, comments.InsertedComment{}, comments.Submission{}, "")
	if rec.calls != 0 {
		t.Fatal("disabled notifier published")
	}
	var nilNotifier *Notifier
	nilNotifier.Notify(context.Background(), store.Thread{}, comments.InsertedComment{}, comments.Submission{}, "")
}

func TestNotifyAnonymousAuthor(t *testing.T) {
	rec := &recorder{}
	New(rec, true, "", "", nil).Notify(context.Background(), store.Thread{}, comments.InsertedComment{ID: 1}, comments.Submission{Text: "x"}, "")
	if ev := rec.payload.(events.CommentCreated); ev.Author != "Anonymous" || ev.IPHash != "" {
		t.Fatalf("unexpected event %+v", ev)
	}
}
