package redis

import (
	"context"
	"net"
	"testing"
	"time"

	"github.com/alicebob/miniredis/v2"
	goredis "github.com/redis/go-redis/v9"

	"github.com/kirillkom/floraqa/internal/core/domain"
)

func unreachableClient(t *testing.T) *goredis.Client {
	t.Helper()
	ln, err := net.Listen("tcp", "127.0.0.1:0")
	if err != nil {
		t.Fatalf("listen: %v", err)
	}
	addr := ln.Addr().String()
	_ = ln.Close()

	client := goredis.NewClient(&goredis.Options{
		Addr:        addr,
		DialTimeout: 100 * time.Millisecond,
		MaxRetries:  -1,
	})
	t.Cleanup(func() { _ = client.Close() })
	return client
}

func TestCacheDegradesToMissWhenRedisDown(t *testing.T) {
	c := New(unreachableClient(t), "", 0, 0)
	ctx := context.Background()

	c.Set(ctx, "k", []domain.SearchHit{{Score: 1}})
	if _, ok := c.Get(ctx, "k"); ok {
		t.Fatalf("expected miss when redis is unreachable")
	}
	c.Clear(ctx)
}

func TestNewDefaults(t *testing.T) {
	c := New(nil, "", 0, 0)
	if c.prefix != "floraqa:stage:" || c.capacity != 1000 || c.ttl != defaultTTL {
		t.Fatalf("unexpected defaults %+v", c)
	}
	if c.countKey() != "floraqa:stage:count" {
		t.Fatalf("unexpected count key %q", c.countKey())
	}
}

func newMiniredisCache(t *testing.T, capacity int) (*Cache, *miniredis.Miniredis) {
	t.Helper()
	mr := miniredis.RunT(t)
	client := goredis.NewClient(&goredis.Options{Addr: mr.Addr()})
	t.Cleanup(func() { _ = client.Close() })
	return New(client, "qa:", capacity, time.Minute), mr
}

func TestCacheRoundTripKeepsHits(t *testing.T) {
	c, mr := newMiniredisCache(t, 10)
	ctx := context.Background()
	hits := []domain.SearchHit{{
		Chunk: domain.KnowledgeChunk{ID: "gung#medicinal", EntityKey: "gung", DisplayName: "Gừng", Position: 3},
		Score: 0.82,
	}}

	if _, ok := c.Get(ctx, "dense:abc"); ok {
		t.Fatalf("expected miss before set")
	}
	c.Set(ctx, "dense:abc", hits)

	got, ok := c.Get(ctx, "dense:abc")
	if !ok || len(got) != 1 {
		t.Fatalf("expected cached hit, got ok=%v hits=%v", ok, got)
	}
	if got[0].Chunk.ID != "gung#medicinal" || got[0].Chunk.DisplayName != "Gừng" || got[0].Score != 0.82 {
		t.Fatalf("unexpected cached hit %+v", got[0])
	}
	if ttl := mr.TTL("qa:dense:abc"); ttl != time.Minute {
		t.Fatalf("expected entry ttl 1m, got %s", ttl)
	}
}

func TestCacheStopsStoringAtCapacityUntilClear(t *testing.T) {
	c, mr := newMiniredisCache(t, 2)
	ctx := context.Background()
	hit := []domain.SearchHit{{Score: 1}}

	for _, key := range []string{"a", "b", "c"} {
		c.Set(ctx, key, hit)
	}
	if _, ok := c.Get(ctx, "b"); !ok {
		t.Fatalf("expected entry within capacity")
	}
	if _, ok := c.Get(ctx, "c"); ok {
		t.Fatalf("expected entry beyond capacity dropped")
	}
	if count, _ := mr.Get("qa:count"); count != "3" {
		t.Fatalf("expected insert counter 3, got %q", count)
	}

	if err := mr.Set("other:keep", "1"); err != nil {
		t.Fatalf("seed foreign key: %v", err)
	}
	c.Clear(ctx)
	for _, key := range []string{"qa:a", "qa:b", "qa:count"} {
		if mr.Exists(key) {
			t.Fatalf("expected %s removed by clear", key)
		}
	}
	if !mr.Exists("other:keep") {
		t.Fatalf("clear must leave keys outside the prefix")
	}

	c.Set(ctx, "c", hit)
	if _, ok := c.Get(ctx, "c"); !ok {
		t.Fatalf("expected counter reset after clear")
	}
	if count, _ := mr.Get("qa:count"); count != "1" {
		t.Fatalf("expected insert counter 1 after clear, got %q", count)
	}
}
