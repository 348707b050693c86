package store

import (
	"context"
	"sort"
	"sync"
)

// InMemoryStore is a development-only in-memory implementation.
// Transactions are serialised and roll back by restoring a snapshot.
type InMemoryStore struct {
	mu          sync.Mutex
	comments    map[int64]Comment
	threads     map[int64]Thread
	byURI       map[string]int64
	nextComment int64
	nextThread  int64
}

func NewInMemoryStore() *InMemoryStore {
	return &InMemoryStore{
		comments: make(map[int64]Comment),
		threads:  make(map[int64]Thread),
		byURI:    make(map[string]int64),
	}
}

type memSnapshot struct {
	comments    map[int64]Comment
	threads     map[int64]Thread
	byURI       map[string]int64
	nextComment int64
	nextThread  int64
}

func (s *InMemoryStore) snapshot() memSnapshot {
	snap := memSnapshot{
		comments:    make(map[int64]Comment, len(s.comments)),
		threads:     make(map[int64]Thread, len(s.threads)),
		byURI:       make(map[string]int64, len(s.byURI)),
		nextComment: s.nextComment,
		nextThread:  s.nextThread,
	}
	for k, v := range s.comments {
		snap.comments[k] = v
	}
	for k, v := range s.threads {
		snap.threads[k] = v
	}
	for k, v := range s.byURI {
		snap.byURI[k] = v
	}
	return snap
}

func (s *InMemoryStore) restore(snap memSnapshot) {
	s.comments = snap.comments
	s.threads = snap.threads
	s.byURI = snap.byURI
	s.nextComment = snap.nextComment
	s.nextThread = snap.nextThread
}

func (s *InMemoryStore) InTx(ctx context.Context, fn func(Tx) error) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	snap := s.snapshot()
	if err := fn(memTx{s: s}); err != nil {
		s.restore(snap)
		return err
	}
	if err := ctx.Err(); err != nil {
		s.restore(snap)
		return err
	}
	return nil
}

func (s *InMemoryStore) Get(_ context.Context, id int64) (Comment, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	c, ok := s.comments[id]
	if !ok {
		return Comment{}, ErrNotFound
	}
	return c, nil
}

func (s *InMemoryStore) Count(_ context.Context, uri string) (int64, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	tid, ok := s.byURI[uri]
	if !ok {
		return 0, nil
	}
	var n int64
	for _, c := range s.comments {
		if c.ThreadID == tid && c.Mode != ModePending {
			n++
		}
	}
	return n, nil
}

func (s *InMemoryStore) Rows(_ context.Context, uri string) ([]Comment, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	tid, ok := s.byURI[uri]
	if !ok {
		return nil, nil
	}
	var out []Comment
	for _, c := range s.comments {
		if c.ThreadID == tid && (c.Mode == ModeVisible || c.Mode == ModeTombstoned) {
			out = append(out, c)
		}
	}
	sort.Slice(out, func(i, j int) bool { return out[i].ID < out[j].ID })
	return out, nil
}

func (s *InMemoryStore) Thread(_ context.Context, uri string) (Thread, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	tid, ok := s.byURI[uri]
	if !ok {
		return Thread{}, ErrNotFound
	}
	return s.threads[tid], nil
}

func (s *InMemoryStore) CreateThread(_ context.Context, uri, title string) (Thread, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.createThread(uri, title), nil
}

func (s *InMemoryStore) createThread(uri, title string) Thread {
	if tid, ok := s.byURI[uri]; ok {
		return s.threads[tid]
	}
	s.nextThread++
	t := Thread{ID: s.nextThread, URI: uri, Title: title}
	s.threads[t.ID] = t
	s.byURI[uri] = t.ID
	return t
}

func (s *InMemoryStore) Ping(context.Context) error { return nil }

// memTx runs with InMemoryStore.mu held.
type memTx struct {
	s *InMemoryStore
}

func (t memTx) Ancestors(_ context.Context, id int64, max int) ([]int64, error) {
	var chain []int64
	for len(chain) < max {
		c, ok := t.s.comments[id]
		if !ok {
			break
		}
		chain = append(chain, c.ID)
		if c.Parent == nil {
			break
		}
		id = *c.Parent
	}
	return chain, nil
}

func (t memTx) Insert(_ context.Context, nc NewComment) (int64, error) {
	if _, ok := t.s.threads[nc.ThreadID]; !ok {
		return 0, ErrNotFound
	}
	if nc.Parent != nil {
		p, ok := t.s.comments[*nc.Parent]
		if !ok || p.ThreadID != nc.ThreadID {
			return 0, ErrInvalidParent
		}
	}
	t.s.nextComment++
	c := Comment{
		ID:         t.s.nextComment,
		ThreadID:   nc.ThreadID,
		Parent:     nc.Parent,
		Created:    nc.Created,
		Mode:       nc.Mode,
		RemoteAddr: nc.RemoteAddr,
		Text:       nc.Text,
		Author:     nc.Author,
		Email:      nc.Email,
		Website:    nc.Website,
		Hash:       nc.Hash,
	}
	t.s.comments[c.ID] = c
	return c.ID, nil
}

func (t memTx) Get(_ context.Context, id int64) (Comment, error) {
	c, ok := t.s.comments[id]
	if !ok {
		return Comment{}, ErrNotFound
	}
	return c, nil
}

func (t memTx) Update(_ context.Context, id int64, e Edit) error {
	c, ok := t.s.comments[id]
	if !ok {
		return ErrNotFound
	}
	modified := e.Modified
	c.Text = e.Text
	c.Author = e.Author
	c.Email = e.Email
	c.Website = e.Website
	c.Hash = e.Hash
	c.Modified = &modified
	t.s.comments[id] = c
	return nil
}

func (t memTx) CountChildren(_ context.Context, id int64) (int64, error) {
	var n int64
	for _, c := range t.s.comments {
		if c.Parent != nil && *c.Parent == id {
			n++
		}
	}
	return n, nil
}

func (t memTx) Remove(_ context.Context, id int64) error {
	if _, ok := t.s.comments[id]; !ok {
		return ErrNotFound
	}
	delete(t.s.comments, id)
	return nil
}

func (t memTx) Tombstone(_ context.Context, id int64) error {
	c, ok := t.s.comments[id]
	if !ok {
		return ErrNotFound
	}
	t.s.comments[id] = Comment{
		ID:       c.ID,
		ThreadID: c.ThreadID,
		Parent:   c.Parent,
		Created:  c.Created,
		Modified: c.Modified,
		Mode:     ModeTombstoned,
	}
	return nil
}

func (t memTx) SweepTombstones(_ context.Context, threadID int64) (int64, error) {
	var removed int64
	for {
		parents := make(map[int64]bool)
		for _, c := range t.s.comments {
			if c.Parent != nil {
				parents[*c.Parent] = true
			}
		}
		var n int64
		for id, c := range t.s.comments {
			if c.ThreadID == threadID && c.Mode == ModeTombstoned && !parents[id] {
				delete(t.s.comments, id)
				n++
			}
		}
		if n == 0 {
			return removed, nil
		}
		removed += n
	}
}

func (t memTx) LoadVoters(_ context.Context, id int64) ([]byte, error) {
	c, ok := t.s.comments[id]
	if !ok || c.Mode != ModeVisible {
		return nil, ErrNotFound
	}
	return c.Voters, nil
}

func (t memTx) StoreVoters(_ context.Context, id int64, blob []byte) error {
	c, ok := t.s.comments[id]
	if !ok {
		return ErrNotFound
	}
	c.Voters = append([]byte(nil), blob...)
	t.s.comments[id] = c
	return nil
}

func (t memTx) IncrementVotes(_ context.Context, id int64, up bool) error {
	c, ok := t.s.comments[id]
	if !ok {
		return ErrNotFound
	}
	if up {
		c.Likes = incr(c.Likes)
	} else {
		c.Dislikes = incr(c.Dislikes)
	}
	t.s.comments[id] = c
	return nil
}

func (t memTx) ThreadURI(_ context.Context, threadID int64) (string, error) {
	th, ok := t.s.threads[threadID]
	if !ok {
		return "", ErrNotFound
	}
	return th.URI, nil
}

func (t memTx) CreateThread(_ context.Context, uri, title string) (Thread, error) {
	return t.s.createThread(uri, title), nil
}

func incr(v *int32) *int32 {
	n := int32(1)
	if v != nil {
		n = *v + 1
	}
	return &n
}
