package comments

import (
	"context"
	"errors"
	"testing"
	"time"

	"github.com/example/oration/services/comments/internal/fault"
	"github.com/example/oration/services/comments/internal/identity"
	"github.com/example/oration/services/comments/internal/store"
	"github.com/example/oration/services/comments/internal/tree"
)

func strp(s string) *string { return &s }

type fixture struct {
	svc   *Service
	store *store.InMemoryStore
	tid   int64
	clock time.Time
}

func newFixture(t *testing.T) *fixture {
	t.Helper()
	st := store.NewInMemoryStore()
	th, err := st.CreateThread(context.Background(), "/post", "Post")
	if err != nil {
		t.Fatalf("create thread: %v", err)
	}
	f := &fixture{store: st, tid: th.ID, clock: time.Date(2024, 1, 1, 12, 0, 0, 0, time.UTC)}
	f.svc = NewService(st, nil, nil, 0)
	f.svc.Now = func() time.Time { return f.clock }
	return f
}

func (f *fixture) insert(t *testing.T, sub Submission, ip string, limit int) InsertedComment {
	t.Helper()
	c, err := f.svc.Insert(context.Background(), f.tid, sub, ip, limit)
	if err != nil {
		t.Fatalf("insert %q: %v", sub.Text, err)
	}
	return c
}

func TestEndToEndScenario(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()

	a := f.insert(t, Submission{Text: "hello", Author: strp("A")}, "127.0.0.1", 3)
	if a.Parent != nil || a.Author == nil || *a.Author != "A" {
		t.Fatalf("unexpected first comment %+v", a)
	}
	b := f.insert(t, Submission{Text: "hi back", Author: strp("B"), Parent: &a.ID}, "127.0.0.2", 3)
	if b.Parent == nil || *b.Parent != a.ID {
		t.Fatalf("expected reply to %d, got %+v", a.ID, b)
	}

	n, err := f.svc.Count(ctx, "/post")
	if err != nil || n != 2 {
		t.Fatalf("count=%d err=%v", n, err)
	}

	if err := f.svc.Vote(ctx, b.ID, "127.0.0.1", true); err != nil {
		t.Fatalf("vote: %v", err)
	}
	if err := f.svc.Vote(ctx, b.ID, "127.0.0.1", true); !errors.Is(err, fault.ErrAlreadyVoted) {
		t.Fatalf("expected AlreadyVoted, got %v", err)
	}

	roots, err := tree.NewAssembler(f.store, nil, nil).List(ctx, "/post")
	if err != nil {
		t.Fatalf("list: %v", err)
	}
	if len(roots) != 1 || roots[0].Text != "hello" || len(roots[0].Children) != 1 {
		t.Fatalf("unexpected tree %+v", roots)
	}
	if got := roots[0].Children[0]; got.Text != "hi back" || got.Votes != 1 {
		t.Fatalf("unexpected reply %+v", got)
	}
}

func TestInsertHashesIdentity(t *testing.T) {
	f := newFixture(t)
	c := f.insert(t, Submission{Text: "x", Email: strp("e@x.org")}, "10.0.0.1", 3)
	row, _ := f.store.Get(context.Background(), c.ID)
	if row.Hash != identity.Hash(nil, strp("e@x.org"), nil, nil) {
		t.Fatalf("hash not derived from profile: %q", row.Hash)
	}
	if c.Author == nil || *c.Author != "e@****.org" {
		t.Fatalf("expected obfuscated email author, got %v", c.Author)
	}

	anon := f.insert(t, Submission{Text: "y"}, "10.0.0.1", 3)
	row, _ = f.store.Get(context.Background(), anon.ID)
	if row.Hash != identity.HashIP("10.0.0.1") {
		t.Fatalf("anonymous hash should come from ip, got %q", row.Hash)
	}
}

func TestInsertRespectsNestingLimit(t *testing.T) {
	for limit := 0; limit <= 4; limit++ {
		f := newFixture(t)
		var parent *int64
		for i := 0; i < 6; i++ {
			c := f.insert(t, Submission{Text: "n", Author: strp("a"), Parent: parent}, "", limit)
			id := c.ID
			parent = &id

			var depth int
			_ = f.store.InTx(context.Background(), func(tx store.Tx) error {
				chain, _ := tx.Ancestors(context.Background(), id, 1000)
				depth = len(chain)
				return nil
			})
			max := limit + 1
			if depth > max {
				t.Fatalf("limit %d: comment %d at depth %d", limit, id, depth)
			}
		}
	}
}

func TestInsertInvalidParent(t *testing.T) {
	f := newFixture(t)
	missing := int64(42)
	_, err := f.svc.Insert(context.Background(), f.tid, Submission{Text: "x", Parent: &missing}, "", 3)
	if !errors.Is(err, store.ErrInvalidParent) || !errors.Is(err, fault.ErrStorageWrite) {
		t.Fatalf("expected invalid parent write error, got %v", err)
	}
}

func TestAuthorizeEdit(t *testing.T) {
	created := time.Date(2024, 1, 1, 12, 0, 0, 0, time.UTC)
	window := 5 * time.Minute

	if err := AuthorizeEdit("h", "h", created, nil, window, created.Add(time.Minute)); err != nil {
		t.Fatalf("expected ok, got %v", err)
	}
	if err := AuthorizeEdit("h", "x", created, nil, window, created.Add(time.Minute)); !errors.Is(err, fault.ErrUnauthorized) {
		t.Fatalf("hash mismatch should be unauthorized, got %v", err)
	}
	if err := AuthorizeEdit("h", "h", created, nil, window, created.Add(window)); !errors.Is(err, fault.ErrUnauthorized) {
		t.Fatalf("closed window should be unauthorized, got %v", err)
	}
	modified := created.Add(10 * time.Minute)
	if err := AuthorizeEdit("h", "h", created, &modified, window, modified.Add(time.Minute)); err != nil {
		t.Fatalf("window should restart at modification, got %v", err)
	}
	if err := AuthorizeEdit("", "", created, nil, window, created); !errors.Is(err, fault.ErrUnauthorized) {
		t.Fatalf("empty hash must never authorize, got %v", err)
	}
}

func TestUpdateAndAuthorize(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()
	c := f.insert(t, Submission{Text: "draft", Author: strp("A")}, "127.0.0.1", 3)
	hash := identity.Hash(strp("A"), nil, nil, nil)

	if err := f.svc.Authorize(ctx, c.ID, hash); err != nil {
		t.Fatalf("authorize: %v", err)
	}
	edits, err := f.svc.Update(ctx, c.ID, Edit{Text: "final", Author: strp("Ann")}, "127.0.0.1")
	if err != nil {
		t.Fatalf("update: %v", err)
	}
	if edits.Text != "final" || edits.Hash != identity.Hash(strp("Ann"), nil, nil, nil) {
		t.Fatalf("unexpected edits %+v", edits)
	}
	row, _ := f.store.Get(ctx, c.ID)
	if row.Modified == nil || row.Text != "final" {
		t.Fatalf("row not updated: %+v", row)
	}

	f.clock = f.clock.Add(10 * time.Minute)
	if err := f.svc.Authorize(ctx, c.ID, edits.Hash); !errors.Is(err, fault.ErrUnauthorized) {
		t.Fatalf("expected window to close, got %v", err)
	}
	if _, err := f.svc.Update(ctx, 999, Edit{Text: "x"}, ""); !errors.Is(err, fault.ErrNotFound) {
		t.Fatalf("expected NotFound, got %v", err)
	}
}

func TestDeleteTombstonesAndSweeps(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()

	root := f.insert(t, Submission{Text: "root", Author: strp("A")}, "", 3)
	reply := f.insert(t, Submission{Text: "reply", Author: strp("B"), Parent: &root.ID}, "", 3)

	if err := f.svc.Delete(ctx, root.ID); err != nil {
		t.Fatalf("delete root: %v", err)
	}
	row, err := f.store.Get(ctx, root.ID)
	if err != nil || row.Mode != store.ModeTombstoned || row.Text != "" || row.Author != nil {
		t.Fatalf("expected scrubbed tombstone, got %+v err=%v", row, err)
	}

	if err := f.svc.Delete(ctx, reply.ID); err != nil {
		t.Fatalf("delete reply: %v", err)
	}
	if _, err := f.store.Get(ctx, root.ID); !errors.Is(err, store.ErrNotFound) {
		t.Fatalf("childless tombstone should be swept, got %v", err)
	}
	if n, _ := f.svc.Count(ctx, "/post"); n != 0 {
		t.Fatalf("count=%d, want 0", n)
	}
	if err := f.svc.Delete(ctx, reply.ID); !errors.Is(err, fault.ErrNotFound) {
		t.Fatalf("expected NotFound, got %v", err)
	}
}

func TestVoteUnknownAndTombstoned(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()

	if err := f.svc.Vote(ctx, 77, "127.0.0.1", true); !errors.Is(err, fault.ErrNotFound) {
		t.Fatalf("expected NotFound, got %v", err)
	}
	root := f.insert(t, Submission{Text: "root"}, "", 3)
	f.insert(t, Submission{Text: "reply", Parent: &root.ID}, "", 3)
	_ = f.svc.Delete(ctx, root.ID)
	if err := f.svc.Vote(ctx, root.ID, "127.0.0.1", false); !errors.Is(err, fault.ErrNotFound) {
		t.Fatalf("expected NotFound on tombstone, got %v", err)
	}
}

func TestInsertIntoThreadCreatesThreadWithComment(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()

	missing := int64(99)
	_, _, err := f.svc.InsertIntoThread(ctx, store.Thread{URI: "/new", Title: "New"}, Submission{Text: "x", Parent: &missing}, "", 3)
	if !errors.Is(err, store.ErrInvalidParent) {
		t.Fatalf("expected invalid parent, got %v", err)
	}
	if _, err := f.store.Thread(ctx, "/new"); !errors.Is(err, store.ErrNotFound) {
		t.Fatalf("thread kept after failed insert, err=%v", err)
	}

	th, c, err := f.svc.InsertIntoThread(ctx, store.Thread{URI: "/new", Title: "New"}, Submission{Text: "first"}, "", 3)
	if err != nil {
		t.Fatalf("insert: %v", err)
	}
	if th.ID == 0 || th.ID == f.tid || th.URI != "/new" || th.Title != "New" {
		t.Fatalf("unexpected thread %+v", th)
	}
	if row, err := f.store.Get(ctx, c.ID); err != nil || row.ThreadID != th.ID {
		t.Fatalf("comment not attached to new thread: %+v err=%v", row, err)
	}
	if n, _ := f.svc.Count(ctx, "/new"); n != 1 {
		t.Fatalf("count = %d, want 1", n)
	}
}
