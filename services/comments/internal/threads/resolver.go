// Package threads maps blog post paths to comment threads, creating a
// thread the first time a post that really exists is commented on.
package threads

import (
	"context"
	"errors"
	"fmt"
	"io"
	"net/http"
	"strings"
	"time"

	"github.com/sony/gobreaker"
	"go.uber.org/zap"

	"github.com/example/oration/services/comments/internal/fault"
	"github.com/example/oration/services/comments/internal/store"
)

// ThreadStore is the thread persistence the resolver needs.
type ThreadStore interface {
	Thread(ctx context.Context, uri string) (store.Thread, error)
	CreateThread(ctx context.Context, uri, title string) (store.Thread, error)
}

type Resolver struct {
	Store      ThreadStore
	HTTPClient *http.Client
	CB         *gobreaker.CircuitBreaker
	Log        *zap.Logger
}

// Option configures the Resolver.
type Option func(*Resolver)

func WithCircuitBreaker(cb *gobreaker.CircuitBreaker) Option {
	return func(r *Resolver) { r.CB = cb }
}

func WithLogger(log *zap.Logger) Option {
	return func(r *Resolver) { r.Log = log }
}

func WithHTTPClient(c *http.Client) Option {
	return func(r *Resolver) { r.HTTPClient = c }
}

func New(st ThreadStore, opts ...Option) *Resolver {
	r := &Resolver{
		Store:      st,
		HTTPClient: &http.Client{Timeout: 5 * time.Second},
		Log:        zap.NewNop(),
	}
	for _, o := range opts {
		o(r)
	}
	return r
}

// Resolve returns the thread of path. Unknown paths are checked against
// host first and must answer with a 2xx status, otherwise the result is
// fault.ErrPathCheckFailed. A checked path without a thread yields a
// Thread with ID 0, ready to be created in the transaction that stores
// its first comment.
func (r *Resolver) Resolve(ctx context.Context, host, title, path string) (store.Thread, error) {
	const op = "resolve thread"

	th, err := r.Store.Thread(ctx, path)
	if err == nil {
		return th, nil
	}
	if !errors.Is(err, store.ErrNotFound) {
		return store.Thread{}, fault.E(fault.KindStorageRead, op, err)
	}

	target := strings.TrimRight(host, "/") + "/" + strings.TrimLeft(path, "/")
	if err := r.check(ctx, target); err != nil {
		r.Log.Info("path check failed", zap.String("url", target), zap.Error(err))
		return store.Thread{}, fault.E(fault.KindPathCheckFailed, op, err)
	}

	if title == "" {
		title = path
	}
	return store.Thread{URI: path, Title: title}, nil
}

// ResolveOrCreate is Resolve followed by creating the thread when it is new.
func (r *Resolver) ResolveOrCreate(ctx context.Context, host, title, path string) (store.Thread, error) {
	th, err := r.Resolve(ctx, host, title, path)
	if err != nil || th.ID != 0 {
		return th, err
	}
	th, err = r.Store.CreateThread(ctx, th.URI, th.Title)
	if err != nil {
		return store.Thread{}, fault.E(fault.KindStorageWrite, "create thread", err)
	}
	r.Log.Info("thread created", zap.Int64("thread_id", th.ID), zap.String("uri", th.URI))
	return th, nil
}

func (r *Resolver) check(ctx context.Context, url string) error {
	if r.CB == nil {
		return r.probe(ctx, url)
	}
	_, err := r.CB.Execute(func() (interface{}, error) {
		return nil, r.probe(ctx, url)
	})
	return err
}

// probe issues HEAD, falling back to GET for servers that refuse HEAD.
func (r *Resolver) probe(ctx context.Context, url string) error {
	status, err := r.do(ctx, http.MethodHead, url)
	if err != nil {
		return err
	}
	if status == http.StatusMethodNotAllowed || status == http.StatusNotImplemented {
		if status, err = r.do(ctx, http.MethodGet, url); err != nil {
			return err
		}
	}
	if status < 200 || status > 299 {
		return fmt.Errorf("%s answered %d", url, status)
	}
	return nil
}

func (r *Resolver) do(ctx context.Context, method, url string) (int, error) {
	req, err := http.NewRequestWithContext(ctx, method, url, nil)
	if err != nil {
		return 0, err
	}
	resp, err := r.HTTPClient.Do(req)
	if err != nil {
		return 0, err
	}
	defer resp.Body.Close()
	_, _ = io.Copy(io.Discard, io.LimitReader(resp.Body, 64<<10))
	return resp.StatusCode, nil
}
