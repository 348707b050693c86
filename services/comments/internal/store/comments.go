package store

import (
	"context"
	"errors"
	"time"
)

// Mode is the lifecycle state of a comment row.
type Mode int16

const (
	ModeVisible    Mode = 0
	ModePending    Mode = 1
	ModeTombstoned Mode = 2
)

var (
	ErrNotFound      = errors.New("store: not found")
	ErrInvalidParent = errors.New("store: parent is not a comment of this thread")
)

// Comment is a single comment row. Likes and Dislikes are nil until the
// first vote; Voters is the opaque ledger blob.
type Comment struct {
	ID         int64
	ThreadID   int64
	Parent     *int64
	Created    time.Time
	Modified   *time.Time
	Mode       Mode
	RemoteAddr *string
	Text       string
	Author     *string
	Email      *string
	Website    *string
	Hash       string
	Likes      *int32
	Dislikes   *int32
	Voters     []byte
}

// Thread is a blog post comments attach to.
type Thread struct {
	ID    int64
	URI   string
	Title string
}

// NewComment holds the columns written on insert.
type NewComment struct {
	ThreadID   int64
	Parent     *int64
	Created    time.Time
	Mode       Mode
	RemoteAddr *string
	Text       string
	Author     *string
	Email      *string
	Website    *string
	Hash       string
}

// Edit holds the columns rewritten by an update.
type Edit struct {
	Text     string
	Author   *string
	Email    *string
	Website  *string
	Hash     string
	Modified time.Time
}

// Tx is the set of row operations available inside a transaction.
type Tx interface {
	// Ancestors returns [id, parent(id), ..., root], at most max long.
	Ancestors(ctx context.Context, id int64, max int) ([]int64, error)
	Insert(ctx context.Context, c NewComment) (int64, error)
	Get(ctx context.Context, id int64) (Comment, error)
	Update(ctx context.Context, id int64, e Edit) error
	CountChildren(ctx context.Context, id int64) (int64, error)
	Remove(ctx context.Context, id int64) error
	// Tombstone marks id deleted and scrubs its personal data.
	Tombstone(ctx context.Context, id int64) error
	// SweepTombstones removes tombstones of thread that have no children,
	// repeating until none are left, and returns how many were removed.
	SweepTombstones(ctx context.Context, threadID int64) (int64, error)

	// LoadVoters locks the visible comment id and returns its voters blob.
	LoadVoters(ctx context.Context, id int64) ([]byte, error)
	StoreVoters(ctx context.Context, id int64, blob []byte) error
	IncrementVotes(ctx context.Context, id int64, up bool) error

	ThreadURI(ctx context.Context, threadID int64) (string, error)
	// CreateThread inserts a thread, returning the existing one on a uri clash.
	CreateThread(ctx context.Context, uri, title string) (Thread, error)
}

// Store defines the contract for comment persistence.
type Store interface {
	// InTx runs fn in one transaction, committing when fn returns nil.
	InTx(ctx context.Context, fn func(Tx) error) error
	Get(ctx context.Context, id int64) (Comment, error)
	// Count is the number of non-pending comments of the thread at uri.
	Count(ctx context.Context, uri string) (int64, error)
	// Rows returns the visible and tombstoned comments of uri by ascending id.
	Rows(ctx context.Context, uri string) ([]Comment, error)
	Thread(ctx context.Context, uri string) (Thread, error)
	// CreateThread inserts a thread, returning the existing one on a uri clash.
	CreateThread(ctx context.Context, uri, title string) (Thread, error)
	Ping(ctx context.Context) error
}
