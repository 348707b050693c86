// Package tree rebuilds the nested reply structure of a thread for display.
package tree

import (
	"context"
	"sort"
	"strings"
	"time"

	"go.uber.org/zap"

	"github.com/example/oration/services/comments/internal/cache"
	"github.com/example/oration/services/comments/internal/fault"
	"github.com/example/oration/services/comments/internal/render"
	"github.com/example/oration/services/comments/internal/store"
)

// Node is one displayed comment with its replies in ascending id order.
type Node struct {
	ID       int64     `json:"id"`
	Text     string    `json:"text"`
	Rendered string    `json:"rendered"`
	Author   *string   `json:"author"`
	Hash     string    `json:"hash"`
	Created  time.Time `json:"created"`
	Children []*Node   `json:"children"`
	Votes    int32     `json:"votes"`
}

// RowSource loads the displayable rows of a thread ordered by id.
type RowSource interface {
	Rows(ctx context.Context, uri string) ([]store.Comment, error)
}

// Assembler serves thread trees, reading through Cache when set.
type Assembler struct {
	Rows  RowSource
	Cache cache.Cache
	Log   *zap.Logger
}

func NewAssembler(rows RowSource, c cache.Cache, log *zap.Logger) *Assembler {
	if c == nil {
		c = cache.Noop{}
	}
	if log == nil {
		log = zap.NewNop()
	}
	return &Assembler{Rows: rows, Cache: c, Log: log}
}

// List returns the root comments of uri with their nested replies.
// An unknown thread yields an empty list.
func (a *Assembler) List(ctx context.Context, uri string) ([]*Node, error) {
	gen, err := cache.Generation(ctx, a.Cache, uri)
	cached := err == nil
	if err != nil {
		a.Log.Warn("tree cache generation read failed", zap.String("uri", uri), zap.Error(err))
	}
	key := cache.TreeKey(uri, gen)

	if cached {
		var nodes []*Node
		if ok, err := a.Cache.Get(ctx, key, &nodes); err != nil {
			a.Log.Warn("tree cache read failed", zap.String("uri", uri), zap.Error(err))
		} else if ok {
			return nodes, nil
		}
	}

	rows, err := a.Rows.Rows(ctx, uri)
	if err != nil {
		return nil, fault.E(fault.KindStorageRead, "list", err)
	}
	nodes := Build(rows)

	if cached {
		if err := a.Cache.Set(ctx, key, nodes); err != nil {
			a.Log.Warn("tree cache write failed", zap.String("uri", uri), zap.Error(err))
		}
	}
	return nodes, nil
}

// Build assembles rows into a forest. Rows whose parent is not among
// rows are dropped along with their replies. Each row appears at most once
// even if parent links are cyclic.
func Build(rows []store.Comment) []*Node {
	byID := make(map[int64]store.Comment, len(rows))
	children := make(map[int64][]int64)
	var roots []int64
	for _, r := range rows {
		byID[r.ID] = r
		if r.Parent == nil {
			roots = append(roots, r.ID)
			continue
		}
		children[*r.Parent] = append(children[*r.Parent], r.ID)
	}
	sortIDs(roots)
	for _, ids := range children {
		sortIDs(ids)
	}

	visited := make(map[int64]bool, len(rows))
	out := make([]*Node, 0, len(roots))
	var stack []*Node
	for _, id := range roots {
		n := newNode(byID[id])
		visited[id] = true
		out = append(out, n)
		stack = append(stack, n)
	}

	for len(stack) > 0 {
		n := stack[len(stack)-1]
		stack = stack[:len(stack)-1]
		for _, cid := range children[n.ID] {
			if visited[cid] {
				continue
			}
			visited[cid] = true
			child := newNode(byID[cid])
			n.Children = append(n.Children, child)
			stack = append(stack, child)
		}
	}
	return out
}

func newNode(c store.Comment) *Node {
	n := &Node{
		ID:       c.ID,
		Text:     c.Text,
		Rendered: render.Markdown(c.Text),
		Author:   DisplayAuthor(c.Author, c.Email, c.Website),
		Hash:     c.Hash,
		Created:  c.Created,
		Children: []*Node{},
		Votes:    deref(c.Likes) - deref(c.Dislikes),
	}
	if c.Mode == store.ModeTombstoned {
		n.Rendered = ""
	}
	return n
}

// DisplayAuthor picks the public name of a commenter: the author, else
// the obfuscated email, else the website, else nil.
func DisplayAuthor(author, email, website *string) *string {
	switch {
	case author != nil && *author != "":
		return author
	case email != nil && *email != "":
		s := ObfuscateEmail(*email)
		return &s
	case website != nil && *website != "":
		return website
	default:
		return nil
	}
}

// ObfuscateEmail keeps the local part and top-level label of an address:
// "jane@mail.example.org" becomes "jane@****.org".
func ObfuscateEmail(email string) string {
	at := strings.LastIndex(email, "@")
	if at < 0 {
		return email + "@****"
	}
	local, domain := email[:at], email[at+1:]
	dot := strings.LastIndex(domain, ".")
	if dot < 0 || dot == len(domain)-1 {
		return local + "@****"
	}
	return local + "@****." + domain[dot+1:]
}

func sortIDs(ids []int64) {
	sort.Slice(ids, func(i, j int) bool { return ids[i] < ids[j] })
}

func deref(v *int32) int32 {
	if v == nil {
		return 0
	}
	return *v
}
