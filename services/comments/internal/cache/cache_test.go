package cache

import (
	"context"
	"testing"
	"time"

	"github.com/alicebob/miniredis/v2"
)

func newTestCache(t *testing.T) (*RedisCache, *miniredis.Miniredis) {
	t.Helper()
	mr := miniredis.RunT(t)
	c, err := NewRedisCache("redis://"+mr.Addr(), time.Minute)
	if err != nil {
		t.Fatalf("new cache: %v", err)
	}
	t.Cleanup(func() { _ = c.Close() })
	return c, mr
}

func TestRedisCache_SetGet(t *testing.T) {
	c, mr := newTestCache(t)
	ctx := context.Background()

	if err := c.Set(ctx, CountKey("/post", 0), int64(7)); err != nil {
		t.Fatalf("set: %v", err)
	}
	var n int64
	ok, err := c.Get(ctx, CountKey("/post", 0), &n)
	if err != nil || !ok || n != 7 {
		t.Fatalf("get: ok=%v n=%d err=%v", ok, n, err)
	}

	mr.FastForward(2 * time.Minute)
	ok, _ = c.Get(ctx, CountKey("/post", 0), &n)
	if ok {
		t.Fatal("expected entry to expire")
	}
}

func TestRedisCache_MissAndInvalidate(t *testing.T) {
	c, mr := newTestCache(t)
	ctx := context.Background()

	var v []string
	ok, err := c.Get(ctx, TreeKey("/none", 0), &v)
	if err != nil || ok {
		t.Fatalf("expected clean miss, ok=%v err=%v", ok, err)
	}

	gen, err := Generation(ctx, c, "/post")
	if err != nil || gen != 0 {
		t.Fatalf("fresh generation = %d, err=%v", gen, err)
	}
	_ = c.Set(ctx, CountKey("/post", gen), 1)
	_ = c.Set(ctx, TreeKey("/post", gen), []string{"x"})
	if err := InvalidateThread(ctx, c, "/post"); err != nil {
		t.Fatalf("invalidate: %v", err)
	}

	next, err := Generation(ctx, c, "/post")
	if err != nil || next != gen+1 {
		t.Fatalf("generation after invalidate = %d, err=%v", next, err)
	}
	if ok, _ := c.Get(ctx, TreeKey("/post", next), &v); ok {
		t.Fatal("tree still cached")
	}
	var n int
	if ok, _ := c.Get(ctx, CountKey("/post", next), &n); ok {
		t.Fatal("count still cached")
	}

	mr.FastForward(time.Hour)
	if got, _ := Generation(ctx, c, "/post"); got != next {
		t.Fatalf("generation counter expired: %d", got)
	}
}

func TestCountAndTreeKeysDependOnGeneration(t *testing.T) {
	if CountKey("/p", 1) == CountKey("/p", 2) || TreeKey("/p", 1) == TreeKey("/p", 2) {
		t.Fatal("keys must differ across generations")
	}
	if CountKey("/p", 1) == TreeKey("/p", 1) {
		t.Fatal("count and tree keys collide")
	}
}

func TestNoopAlwaysMisses(t *testing.T) {
	var c Cache = Noop{}
	_ = c.Set(context.Background(), "k", 1)
	var n int
	if ok, err := c.Get(context.Background(), "k", &n); ok || err != nil {
		t.Fatalf("noop returned ok=%v err=%v", ok, err)
	}
	if gen, err := Generation(context.Background(), c, "/post"); gen != 0 || err != nil {
		t.Fatalf("noop generation=%d err=%v", gen, err)
	}
}
