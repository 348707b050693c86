package store

import (
	"context"
	"errors"
	"testing"
	"time"
)

// Compile-time interface checks.
var (
	_ Store = (*InMemoryStore)(nil)
	_ Store = (*PostgresStore)(nil)
	_ Tx    = memTx{}
	_ Tx    = pgTx{}
)

func strp(s string) *string { return &s }

func seed(t *testing.T, s *InMemoryStore, uri string) Thread {
	t.Helper()
	th, err := s.CreateThread(context.Background(), uri, "title")
	if err != nil {
		t.Fatalf("create thread: %v", err)
	}
	return th
}

func insert(t *testing.T, s *InMemoryStore, tid int64, parent *int64, text string) int64 {
	t.Helper()
	var id int64
	err := s.InTx(context.Background(), func(tx Tx) error {
		var err error
		id, err = tx.Insert(context.Background(), NewComment{
			ThreadID: tid, Parent: parent, Created: time.Now().UTC(), Text: text, Author: strp("a"),
		})
		return err
	})
	if err != nil {
		t.Fatalf("insert %q: %v", text, err)
	}
	return id
}

func TestInMemoryStore_CreateThreadIsIdempotent(t *testing.T) {
	s := NewInMemoryStore()
	ctx := context.Background()

	a, _ := s.CreateThread(ctx, "/post", "first")
	b, _ := s.CreateThread(ctx, "/post", "second")
	if a.ID != b.ID || b.Title != "first" {
		t.Fatalf("expected existing thread back, got %+v then %+v", a, b)
	}
	if _, err := s.Thread(ctx, "/missing"); !errors.Is(err, ErrNotFound) {
		t.Fatalf("expected ErrNotFound, got %v", err)
	}
}

func TestInMemoryStore_InsertAndAncestors(t *testing.T) {
	s := NewInMemoryStore()
	th := seed(t, s, "/post")

	root := insert(t, s, th.ID, nil, "root")
	mid := insert(t, s, th.ID, &root, "mid")
	leaf := insert(t, s, th.ID, &mid, "leaf")

	var chain []int64
	_ = s.InTx(context.Background(), func(tx Tx) error {
		chain, _ = tx.Ancestors(context.Background(), leaf, 1000)
		return nil
	})
	if len(chain) != 3 || chain[0] != leaf || chain[2] != root {
		t.Fatalf("unexpected chain %v", chain)
	}

	_ = s.InTx(context.Background(), func(tx Tx) error {
		chain, _ = tx.Ancestors(context.Background(), leaf, 2)
		return nil
	})
	if len(chain) != 2 {
		t.Fatalf("expected capped chain of 2, got %v", chain)
	}
}

func TestInMemoryStore_InsertRejectsForeignParent(t *testing.T) {
	s := NewInMemoryStore()
	a := seed(t, s, "/a")
	b := seed(t, s, "/b")
	other := insert(t, s, a.ID, nil, "in a")

	err := s.InTx(context.Background(), func(tx Tx) error {
		_, err := tx.Insert(context.Background(), NewComment{ThreadID: b.ID, Parent: &other, Text: "x"})
		return err
	})
	if !errors.Is(err, ErrInvalidParent) {
		t.Fatalf("expected ErrInvalidParent, got %v", err)
	}
}

func TestInMemoryStore_RollbackOnError(t *testing.T) {
	s := NewInMemoryStore()
	th := seed(t, s, "/post")
	boom := errors.New("boom")

	err := s.InTx(context.Background(), func(tx Tx) error {
		if _, err := tx.Insert(context.Background(), NewComment{ThreadID: th.ID, Text: "lost"}); err != nil {
			return err
		}
		return boom
	})
	if !errors.Is(err, boom) {
		t.Fatalf("expected boom, got %v", err)
	}
	n, _ := s.Count(context.Background(), "/post")
	if n != 0 {
		t.Fatalf("expected rollback, count=%d", n)
	}
}

func TestInMemoryStore_CountAndRowsSkipPending(t *testing.T) {
	s := NewInMemoryStore()
	th := seed(t, s, "/post")
	ctx := context.Background()

	insert(t, s, th.ID, nil, "one")
	_ = s.InTx(ctx, func(tx Tx) error {
		_, err := tx.Insert(ctx, NewComment{ThreadID: th.ID, Text: "held", Mode: ModePending})
		return err
	})
	insert(t, s, th.ID, nil, "two")

	n, err := s.Count(ctx, "/post")
	if err != nil || n != 2 {
		t.Fatalf("count=%d err=%v, want 2", n, err)
	}
	rows, _ := s.Rows(ctx, "/post")
	if len(rows) != 2 || rows[0].Text != "one" || rows[1].Text != "two" {
		t.Fatalf("unexpected rows %+v", rows)
	}
	if n, _ := s.Count(ctx, "/nothing"); n != 0 {
		t.Fatalf("expected 0 for unknown thread, got %d", n)
	}
}

func TestInMemoryStore_TombstoneScrubsAndSweepCascades(t *testing.T) {
	s := NewInMemoryStore()
	th := seed(t, s, "/post")
	ctx := context.Background()

	root := insert(t, s, th.ID, nil, "root")
	mid := insert(t, s, th.ID, &root, "mid")
	leaf := insert(t, s, th.ID, &mid, "leaf")

	_ = s.InTx(ctx, func(tx Tx) error {
		if err := tx.Tombstone(ctx, root); err != nil {
			return err
		}
		return tx.Tombstone(ctx, mid)
	})
	c, _ := s.Get(ctx, root)
	if c.Mode != ModeTombstoned || c.Text != "" || c.Author != nil || c.Hash != "" {
		t.Fatalf("tombstone not scrubbed: %+v", c)
	}

	var removed int64
	err := s.InTx(ctx, func(tx Tx) error {
		if err := tx.Remove(ctx, leaf); err != nil {
			return err
		}
		var err error
		removed, err = tx.SweepTombstones(ctx, th.ID)
		return err
	})
	if err != nil {
		t.Fatalf("sweep: %v", err)
	}
	if removed != 2 {
		t.Fatalf("expected both tombstones swept, removed=%d", removed)
	}
	if n, _ := s.Count(ctx, "/post"); n != 0 {
		t.Fatalf("expected empty thread, count=%d", n)
	}
}

func TestInMemoryStore_VotersOnlyOnVisible(t *testing.T) {
	s := NewInMemoryStore()
	th := seed(t, s, "/post")
	ctx := context.Background()
	id := insert(t, s, th.ID, nil, "root")

	err := s.InTx(ctx, func(tx Tx) error {
		blob, err := tx.LoadVoters(ctx, id)
		if err != nil {
			return err
		}
		if blob != nil {
			t.Fatalf("expected nil blob, got %v", blob)
		}
		if err := tx.StoreVoters(ctx, id, []byte{1}); err != nil {
			return err
		}
		if err := tx.IncrementVotes(ctx, id, true); err != nil {
			return err
		}
		return tx.IncrementVotes(ctx, id, false)
	})
	if err != nil {
		t.Fatalf("vote tx: %v", err)
	}
	c, _ := s.Get(ctx, id)
	if c.Likes == nil || *c.Likes != 1 || c.Dislikes == nil || *c.Dislikes != 1 {
		t.Fatalf("unexpected tally %+v", c)
	}

	_ = s.InTx(ctx, func(tx Tx) error { return tx.Tombstone(ctx, id) })
	err = s.InTx(ctx, func(tx Tx) error {
		_, err := tx.LoadVoters(ctx, id)
		return err
	})
	if !errors.Is(err, ErrNotFound) {
		t.Fatalf("expected ErrNotFound on tombstone, got %v", err)
	}
}
