package sqlstore

import (
	"context"
	"errors"
	"strings"
	"sync"
	"testing"

	repositorycache "github.com/goliatone/go-repository-cache/cache"

	"github.com/osmi-labs/cardlink/core"
)

func newSubscriberCacheService(t *testing.T) repositorycache.CacheService {
	t.Helper()
	service, err := repositorycache.NewCacheService(repositorycache.DefaultConfig())
	if err != nil {
		t.Fatalf("new cache service: %v", err)
	}
	return service
}

type countingSubscriberStore struct {
	mu   sync.Mutex
	base core.SubscriberStore
	gets int
}

func (s *countingSubscriberStore) UpsertIdentity(ctx context.Context, sub core.Subscriber) error {
	return s.base.UpsertIdentity(ctx, sub)
}

func (s *countingSubscriberStore) Get(ctx context.Context, subUUID string) (core.Subscriber, error) {
	s.mu.Lock()
	s.gets++
	s.mu.Unlock()
	return s.base.Get(ctx, subUUID)
}

func (s *countingSubscriberStore) BonusGranted(ctx context.Context, subUUID string) (bool, error) {
	return s.base.BonusGranted(ctx, subUUID)
}

func (s *countingSubscriberStore) ClaimBonus(ctx context.Context, subUUID string) (bool, error) {
	return s.base.ClaimBonus(ctx, subUUID)
}

func (s *countingSubscriberStore) ReleaseBonus(ctx context.Context, subUUID string) error {
	return s.base.ReleaseBonus(ctx, subUUID)
}

func (s *countingSubscriberStore) getCount() int {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.gets
}

func TestSubscriberCacheKey(t *testing.T) {
	key, err := SubscriberCacheKey("  u1  ")
	if err != nil {
		t.Fatalf("cache key: %v", err)
	}
	if key != "cardlink::subscriber::v1::u1" {
		t.Fatalf("unexpected key %q", key)
	}

	key, err = SubscriberCacheKey("uuid/with slash")
	if err != nil {
		t.Fatalf("cache key: %v", err)
	}
	if strings.Contains(key, "/") || strings.Contains(key, " ") {
		t.Fatalf("key must be escaped, got %q", key)
	}

	if _, err := SubscriberCacheKey("   "); err == nil {
		t.Fatalf("expected error for blank uuid")
	}
}

func TestCachedSubscriberStoreCachesReads(t *testing.T) {
	factory := newFactory(t)
	counting := &countingSubscriberStore{base: factory.subscriberStore}
	cached, err := NewCachedSubscriberStore(counting, newSubscriberCacheService(t))
	if err != nil {
		t.Fatalf("new cached store: %v", err)
	}
	ctx := context.Background()

	if err := cached.UpsertIdentity(ctx, core.Subscriber{UUID: "u1", Email: "jane@example.com"}); err != nil {
		t.Fatalf("upsert: %v", err)
	}

	for i := 0; i < 3; i++ {
		sub, getErr := cached.Get(ctx, "u1")
		if getErr != nil {
			t.Fatalf("get %d: %v", i, getErr)
		}
		if sub.Email != "jane@example.com" {
			t.Fatalf("unexpected subscriber: %+v", sub)
		}
	}
	if counting.getCount() != 1 {
		t.Fatalf("repeated reads must hit the cache, base saw %d gets", counting.getCount())
	}
}

func TestCachedSubscriberStoreClaimSeesLiveRow(t *testing.T) {
	factory := newFactory(t)
	cached, err := NewCachedSubscriberStore(factory.subscriberStore, newSubscriberCacheService(t))
	if err != nil {
		t.Fatalf("new cached store: %v", err)
	}
	ctx := context.Background()

	if err := cached.UpsertIdentity(ctx, core.Subscriber{UUID: "u1", Email: "jane@example.com"}); err != nil {
		t.Fatalf("upsert: %v", err)
	}

	// Warm the cache, then claim: the claim must bypass it and the next
	// read must observe the flipped flag.
	if _, err := cached.Get(ctx, "u1"); err != nil {
		t.Fatalf("warm read: %v", err)
	}
	claimed, err := cached.ClaimBonus(ctx, "u1")
	if err != nil || !claimed {
		t.Fatalf("first claim must win: %v %v", claimed, err)
	}
	claimed, err = cached.ClaimBonus(ctx, "u1")
	if err != nil || claimed {
		t.Fatalf("second claim must lose: %v %v", claimed, err)
	}

	granted, err := cached.BonusGranted(ctx, "u1")
	if err != nil || !granted {
		t.Fatalf("granted flag must be visible after the claim: %v %v", granted, err)
	}

	if err := cached.ReleaseBonus(ctx, "u1"); err != nil {
		t.Fatalf("release: %v", err)
	}
	granted, err = cached.BonusGranted(ctx, "u1")
	if err != nil || granted {
		t.Fatalf("release must invalidate the cached entry: %v %v", granted, err)
	}
}

func TestCachedSubscriberStoreMissingSubscriber(t *testing.T) {
	factory := newFactory(t)
	cached, err := NewCachedSubscriberStore(factory.subscriberStore, newSubscriberCacheService(t))
	if err != nil {
		t.Fatalf("new cached store: %v", err)
	}

	if _, err := cached.Get(context.Background(), "missing"); !errors.Is(err, core.ErrSubscriberNotFound) {
		t.Fatalf("expected ErrSubscriberNotFound, got %v", err)
	}
	granted, err := cached.BonusGranted(context.Background(), "missing")
	if err != nil || granted {
		t.Fatalf("missing subscriber reads as not granted: %v %v", granted, err)
	}
}

func TestNewCachedSubscriberStoreValidation(t *testing.T) {
	if _, err := NewCachedSubscriberStore(nil, newSubscriberCacheService(t)); err == nil {
		t.Fatalf("expected error for nil base store")
	}
	factory := newFactory(t)
	if _, err := NewCachedSubscriberStore(factory.subscriberStore, nil); err == nil {
		t.Fatalf("expected error for nil cache service")
	}
}
