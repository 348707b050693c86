// Package comments implements the write side of the comment engine:
// inserting, editing, deleting and voting, with the edit authorization
// rules and per-thread cache invalidation.
package comments

import (
	"context"
	"crypto/subtle"
	"errors"
	"time"

	"go.uber.org/zap"

	"github.com/example/oration/services/comments/internal/cache"
	"github.com/example/oration/services/comments/internal/fault"
	"github.com/example/oration/services/comments/internal/identity"
	"github.com/example/oration/services/comments/internal/nesting"
	"github.com/example/oration/services/comments/internal/store"
	"github.com/example/oration/services/comments/internal/tree"
	"github.com/example/oration/services/comments/internal/votes"
)

// DefaultEditWindow is how long after creation or last edit a comment
// may still be changed by its author.
const DefaultEditWindow = 5 * time.Minute

// Submission is a new comment as received from a reader.
type Submission struct {
	Text    string
	Author  *string
	Email   *string
	Website *string
	Parent  *int64
}

// InsertedComment describes a freshly stored comment.
type InsertedComment struct {
	ID     int64   `json:"id"`
	Parent *int64  `json:"parent"`
	Author *string `json:"author"`
}

// Edit is the replacement content of an existing comment.
type Edit struct {
	Text    string
	Author  *string
	Email   *string
	Website *string
}

// CommentEdits describes a comment after an update.
type CommentEdits struct {
	ID     int64   `json:"id"`
	Author *string `json:"author"`
	Text   string  `json:"text"`
	Hash   string  `json:"hash"`
}

// Service coordinates the store, vote ledger and cache.
type Service struct {
	Store      store.Store
	Cache      cache.Cache
	Ledger     votes.Ledger
	EditWindow time.Duration
	Log        *zap.Logger
	Now        func() time.Time
}

func NewService(st store.Store, c cache.Cache, log *zap.Logger, editWindow time.Duration) *Service {
	if c == nil {
		c = cache.Noop{}
	}
	if log == nil {
		log = zap.NewNop()
	}
	if editWindow <= 0 {
		editWindow = DefaultEditWindow
	}
	return &Service{
		Store:      st,
		Cache:      c,
		Ledger:     votes.NewLedger(),
		EditWindow: editWindow,
		Log:        log,
		Now:        time.Now,
	}
}

// Count returns the number of non-pending comments of uri.
func (s *Service) Count(ctx context.Context, uri string) (int64, error) {
	gen, err := cache.Generation(ctx, s.Cache, uri)
	cached := err == nil
	if err != nil {
		s.Log.Warn("count cache generation read failed", zap.String("uri", uri), zap.Error(err))
	}
	key := cache.CountKey(uri, gen)

	var n int64
	if cached {
		if ok, err := s.Cache.Get(ctx, key, &n); err != nil {
			s.Log.Warn("count cache read failed", zap.String("uri", uri), zap.Error(err))
		} else if ok {
			return n, nil
		}
	}

	n, err = s.Store.Count(ctx, uri)
	if err != nil {
		return 0, fault.E(fault.KindStorageRead, "count", err)
	}
	if cached {
		if err := s.Cache.Set(ctx, key, n); err != nil {
			s.Log.Warn("count cache write failed", zap.String("uri", uri), zap.Error(err))
		}
	}
	return n, nil
}

// Insert stores sub in thread threadID. The requested parent is moved up
// the thread when replying to it would exceed nestingLimit.
func (s *Service) Insert(ctx context.Context, threadID int64, sub Submission, remoteIP string, nestingLimit int) (InsertedComment, error) {
	_, out, err := s.InsertIntoThread(ctx, store.Thread{ID: threadID}, sub, remoteIP, nestingLimit)
	return out, err
}

// InsertIntoThread is Insert for a thread that may not exist yet: a
// Thread with ID 0 is created from its URI and title in the same
// transaction, so a failed insert leaves no empty thread behind.
func (s *Service) InsertIntoThread(ctx context.Context, th store.Thread, sub Submission, remoteIP string, nestingLimit int) (store.Thread, InsertedComment, error) {
	const op = "insert"
	ip := optional(remoteIP)

	var out InsertedComment
	err := s.Store.InTx(ctx, func(tx store.Tx) error {
		if th.ID == 0 {
			created, err := tx.CreateThread(ctx, th.URI, th.Title)
			if err != nil {
				return fault.E(fault.KindStorageWrite, op, err)
			}
			th = created
		}

		parent, err := nesting.Resolve(ctx, tx, sub.Parent, nestingLimit)
		if err != nil {
			return fault.E(fault.KindStorageRead, op, err)
		}

		id, err := tx.Insert(ctx, store.NewComment{
			ThreadID:   th.ID,
			Parent:     parent,
			Created:    s.Now().UTC(),
			Mode:       store.ModeVisible,
			RemoteAddr: ip,
			Text:       sub.Text,
			Author:     sub.Author,
			Email:      sub.Email,
			Website:    sub.Website,
			Hash:       identity.Hash(sub.Author, sub.Email, sub.Website, ip),
		})
		if err != nil {
			return storageErr(fault.KindStorageWrite, op, err)
		}

		c, err := tx.Get(ctx, id)
		if errors.Is(err, store.ErrNotFound) {
			return fault.E(fault.KindInvariant, op, err)
		}
		if err != nil {
			return fault.E(fault.KindStorageRead, op, err)
		}
		out = InsertedComment{
			ID:     c.ID,
			Parent: c.Parent,
			Author: tree.DisplayAuthor(c.Author, c.Email, c.Website),
		}

		if th.URI == "" {
			th.URI, err = tx.ThreadURI(ctx, th.ID)
			return storageErr(fault.KindStorageRead, op, err)
		}
		return nil
	})
	if err != nil {
		return store.Thread{}, InsertedComment{}, err
	}

	s.invalidate(ctx, th.URI)
	s.Log.Info("comment inserted",
		zap.Int64("comment_id", out.ID),
		zap.Int64("thread_id", th.ID),
		zap.String("uri", th.URI))
	return th, out, nil
}

// Update replaces the content of comment id and rehashes its identity.
// Callers authorize first, see Authorize.
func (s *Service) Update(ctx context.Context, id int64, e Edit, remoteIP string) (CommentEdits, error) {
	const op = "update"
	ip := optional(remoteIP)

	var (
		out CommentEdits
		uri string
	)
	err := s.Store.InTx(ctx, func(tx store.Tx) error {
		c, err := tx.Get(ctx, id)
		if err != nil {
			return storageErr(fault.KindStorageRead, op, err)
		}
		if c.Mode == store.ModeTombstoned {
			return fault.E(fault.KindNotFound, op, nil)
		}

		hash := identity.Hash(e.Author, e.Email, e.Website, ip)
		if err := tx.Update(ctx, id, store.Edit{
			Text:     e.Text,
			Author:   e.Author,
			Email:    e.Email,
			Website:  e.Website,
			Hash:     hash,
			Modified: s.Now().UTC(),
		}); err != nil {
			return storageErr(fault.KindStorageWrite, op, err)
		}
		out = CommentEdits{
			ID:     id,
			Author: tree.DisplayAuthor(e.Author, e.Email, e.Website),
			Text:   e.Text,
			Hash:   hash,
		}

		uri, err = tx.ThreadURI(ctx, c.ThreadID)
		return storageErr(fault.KindStorageRead, op, err)
	})
	if err != nil {
		return CommentEdits{}, err
	}

	s.invalidate(ctx, uri)
	s.Log.Info("comment updated", zap.Int64("comment_id", id), zap.String("uri", uri))
	return out, nil
}

// AuthorizeEdit reports whether claimedHash may still change a comment
// stored with storedHash: the hashes must match and less than offset may
// have passed since the later of created and modified.
func AuthorizeEdit(storedHash, claimedHash string, created time.Time, modified *time.Time, offset time.Duration, now time.Time) error {
	const op = "authorize"
	if storedHash == "" || subtle.ConstantTimeCompare([]byte(storedHash), []byte(claimedHash)) != 1 {
		return fault.E(fault.KindUnauthorized, op, nil)
	}
	last := created
	if modified != nil && modified.After(last) {
		last = *modified
	}
	if now.Sub(last) >= offset {
		return fault.E(fault.KindUnauthorized, op, errors.New("edit window closed"))
	}
	return nil
}

// Authorize applies AuthorizeEdit to the stored comment id.
func (s *Service) Authorize(ctx context.Context, id int64, claimedHash string) error {
	c, err := s.Store.Get(ctx, id)
	if err != nil {
		return storageErr(fault.KindStorageRead, "authorize", err)
	}
	return AuthorizeEdit(c.Hash, claimedHash, c.Created, c.Modified, s.EditWindow, s.Now())
}

// Delete removes comment id, or tombstones it when replies still hang
// off it. Tombstones left without replies are removed afterwards.
func (s *Service) Delete(ctx context.Context, id int64) error {
	const op = "delete"

	var uri string
	err := s.Store.InTx(ctx, func(tx store.Tx) error {
		c, err := tx.Get(ctx, id)
		if err != nil {
			return storageErr(fault.KindStorageRead, op, err)
		}
		n, err := tx.CountChildren(ctx, id)
		if err != nil {
			return fault.E(fault.KindStorageRead, op, err)
		}
		if n == 0 {
			err = tx.Remove(ctx, id)
		} else {
			err = tx.Tombstone(ctx, id)
		}
		if err != nil {
			return storageErr(fault.KindStorageWrite, op, err)
		}
		swept, err := tx.SweepTombstones(ctx, c.ThreadID)
		if err != nil {
			return fault.E(fault.KindStorageWrite, op, err)
		}
		if swept > 0 {
			s.Log.Debug("tombstones swept", zap.Int64("thread_id", c.ThreadID), zap.Int64("count", swept))
		}

		uri, err = tx.ThreadURI(ctx, c.ThreadID)
		return storageErr(fault.KindStorageRead, op, err)
	})
	if err != nil {
		return err
	}

	s.invalidate(ctx, uri)
	s.Log.Info("comment deleted", zap.Int64("comment_id", id), zap.String("uri", uri))
	return nil
}

// Vote records a like (up) or dislike on comment id from remoteIP.
// A repeated vote from the same address fails with fault.ErrAlreadyVoted.
func (s *Service) Vote(ctx context.Context, id int64, remoteIP string, up bool) error {
	const op = "vote"

	var uri string
	err := s.Store.InTx(ctx, func(tx store.Tx) error {
		if err := s.Ledger.Vote(ctx, voterStore{tx: tx}, id, remoteIP, up); err != nil {
			return err
		}
		c, err := tx.Get(ctx, id)
		if err != nil {
			return storageErr(fault.KindStorageRead, op, err)
		}
		uri, err = tx.ThreadURI(ctx, c.ThreadID)
		return storageErr(fault.KindStorageRead, op, err)
	})
	if err != nil {
		return err
	}

	s.invalidate(ctx, uri)
	return nil
}

func (s *Service) invalidate(ctx context.Context, uri string) {
	if uri == "" {
		return
	}
	if err := cache.InvalidateThread(ctx, s.Cache, uri); err != nil {
		s.Log.Warn("cache invalidation failed", zap.String("uri", uri), zap.Error(err))
	}
}

// voterStore reports unknown comments to the ledger as fault.ErrNotFound.
type voterStore struct {
	tx store.Tx
}

func (v voterStore) LoadVoters(ctx context.Context, id int64) ([]byte, error) {
	blob, err := v.tx.LoadVoters(ctx, id)
	return blob, storageErr(fault.KindStorageRead, "load voters", err)
}

func (v voterStore) StoreVoters(ctx context.Context, id int64, blob []byte) error {
	return storageErr(fault.KindStorageWrite, "store voters", v.tx.StoreVoters(ctx, id, blob))
}

func (v voterStore) IncrementVotes(ctx context.Context, id int64, up bool) error {
	return storageErr(fault.KindStorageWrite, "increment votes", v.tx.IncrementVotes(ctx, id, up))
}

// storageErr wraps a store error as kind, or as NotFound for missing rows.
// A nil err stays nil.
func storageErr(kind fault.Kind, op string, err error) error {
	switch {
	case err == nil:
		return nil
	case errors.Is(err, store.ErrNotFound):
		return fault.E(fault.KindNotFound, op, err)
	default:
		return fault.E(kind, op, err)
	}
}

func optional(s string) *string {
	if s == "" {
		return nil
	}
	return &s
}
