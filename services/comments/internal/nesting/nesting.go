// Package nesting enforces the maximum reply depth of a thread.
package nesting

import "context"

// MaxWalk caps ancestor walks so corrupted parent links cannot loop forever.
const MaxWalk = 1000

// AncestorLookup returns the chain [id, parent(id), ..., root], at most
// max entries long. An unknown id yields an empty chain.
type AncestorLookup interface {
	Ancestors(ctx context.Context, id int64, max int) ([]int64, error)
}

// Depth is the number of comments on the chain from id to its root,
// id included. Unknown ids have depth 0.
func Depth(ctx context.Context, lookup AncestorLookup, id int64) (int, error) {
	chain, err := lookup.Ancestors(ctx, id, MaxWalk)
	if err != nil {
		return 0, err
	}
	return len(chain), nil
}

// Resolve returns the parent a new reply to requested should attach to
// under limit. Replies whose parent sits deeper than limit are lifted to
// the ancestor at depth limit, which for well-formed threads is the
// requested comment's own parent. limit 0 flattens every reply to a root.
func Resolve(ctx context.Context, lookup AncestorLookup, requested *int64, limit int) (*int64, error) {
	if requested == nil {
		return nil, nil
	}
	if limit < 0 {
		limit = 0
	}
	chain, err := lookup.Ancestors(ctx, *requested, MaxWalk)
	if err != nil {
		return nil, err
	}
	depth := len(chain)
	if depth == 0 || depth <= limit {
		pid := *requested
		return &pid, nil
	}
	if limit == 0 {
		return nil, nil
	}
	pid := chain[depth-limit]
	return &pid, nil
}
