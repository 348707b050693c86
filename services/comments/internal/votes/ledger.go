// Package votes keeps the per-comment like/dislike tally and the
// approximate record of which addresses already voted.
package votes

import (
	"context"

	"github.com/example/oration/services/comments/internal/fault"
)

// Default sizing of a fresh voters filter.
const (
	DefaultExpectedVoters    = 150
	DefaultFalsePositiveRate = 0.05
)

// VoterStore is the persistence a vote needs. Implementations are
// expected to run inside one transaction with the comment row locked.
// LoadVoters returns a nil blob for a comment nobody voted on yet.
type VoterStore interface {
	LoadVoters(ctx context.Context, id int64) ([]byte, error)
	StoreVoters(ctx context.Context, id int64, blob []byte) error
	IncrementVotes(ctx context.Context, id int64, up bool) error
}

// Ledger records votes, refusing a second vote from the same voter.
type Ledger struct {
	ExpectedVoters    uint
	FalsePositiveRate float64
}

// NewLedger returns a ledger with the default filter sizing.
func NewLedger() Ledger {
	return Ledger{ExpectedVoters: DefaultExpectedVoters, FalsePositiveRate: DefaultFalsePositiveRate}
}

// Vote counts one like (up) or dislike from voter on comment id.
// A voter already present in the filter gets fault.ErrAlreadyVoted and
// nothing is written.
func (l Ledger) Vote(ctx context.Context, s VoterStore, id int64, voter string, up bool) error {
	const op = "vote"

	blob, err := s.LoadVoters(ctx, id)
	if err != nil {
		return fault.E(fault.KindStorageRead, op, err)
	}

	var f *Filter
	if blob != nil {
		f = new(Filter)
		if err := f.UnmarshalBinary(blob); err != nil {
			return fault.E(fault.KindSerializationFailed, op, err)
		}
		if f.Test(voter) {
			return fault.E(fault.KindAlreadyVoted, op, nil)
		}
	} else {
		if f, err = l.newFilter(); err != nil {
			return fault.E(fault.KindSerializationFailed, op, err)
		}
	}

	f.Insert(voter)
	encoded, err := f.MarshalBinary()
	if err != nil {
		return fault.E(fault.KindSerializationFailed, op, err)
	}
	if err := s.StoreVoters(ctx, id, encoded); err != nil {
		return fault.E(fault.KindStorageWrite, op, err)
	}
	if err := s.IncrementVotes(ctx, id, up); err != nil {
		return fault.E(fault.KindStorageWrite, op, err)
	}
	return nil
}

func (l Ledger) newFilter() (*Filter, error) {
	n, p := l.ExpectedVoters, l.FalsePositiveRate
	if n == 0 {
		n = DefaultExpectedVoters
	}
	if p == 0 {
		p = DefaultFalsePositiveRate
	}
	return NewFilter(n, p)
}
