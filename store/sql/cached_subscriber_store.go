package sqlstore

import (
	"context"
	"errors"
	"fmt"
	"net/url"
	"strings"

	repositorycache "github.com/goliatone/go-repository-cache/cache"
	"github.com/osmi-labs/cardlink/core"
)

const subscriberCacheKeyPrefix = "cardlink::subscriber::v1"

// CachedSubscriberStore fronts subscriber reads with a cache. Writes go
// straight to the base store and invalidate the cached entry, so the bonus
// claim path always sees the database row.
type CachedSubscriberStore struct {
	base  core.SubscriberStore
	cache repositorycache.CacheService
}

func NewCachedSubscriberStore(
	base core.SubscriberStore,
	cacheService repositorycache.CacheService,
) (*CachedSubscriberStore, error) {
	if base == nil {
		return nil, fmt.Errorf("sqlstore: base subscriber store is required")
	}
	if cacheService == nil {
		return nil, fmt.Errorf("sqlstore: subscriber cache service is required")
	}
	return &CachedSubscriberStore{base: base, cache: cacheService}, nil
}

// SubscriberCacheKey returns the deterministic cache key for subscriber
// reads: cardlink::subscriber::v1::<uuid> with the uuid URL-path escaped.
func SubscriberCacheKey(subUUID string) (string, error) {
	subUUID = strings.TrimSpace(subUUID)
	if subUUID == "" {
		return "", fmt.Errorf("sqlstore: subscriber uuid is required")
	}
	return subscriberCacheKeyPrefix + "::" + url.PathEscape(subUUID), nil
}

func (s *CachedSubscriberStore) UpsertIdentity(ctx context.Context, sub core.Subscriber) error {
	if s == nil || s.base == nil || s.cache == nil {
		return fmt.Errorf("sqlstore: cached subscriber store is not configured")
	}
	if err := s.base.UpsertIdentity(ctx, sub); err != nil {
		return err
	}
	return s.invalidate(ctx, sub.UUID)
}

func (s *CachedSubscriberStore) Get(ctx context.Context, subUUID string) (core.Subscriber, error) {
	if s == nil || s.base == nil || s.cache == nil {
		return core.Subscriber{}, fmt.Errorf("sqlstore: cached subscriber store is not configured")
	}
	cacheKey, err := SubscriberCacheKey(subUUID)
	if err != nil {
		return core.Subscriber{}, err
	}
	return repositorycache.GetOrFetch(ctx, s.cache, cacheKey, func(ctx context.Context) (core.Subscriber, error) {
		return s.base.Get(ctx, subUUID)
	})
}

func (s *CachedSubscriberStore) BonusGranted(ctx context.Context, subUUID string) (bool, error) {
	sub, err := s.Get(ctx, subUUID)
	if errors.Is(err, core.ErrSubscriberNotFound) {
		return false, nil
	}
	if err != nil {
		return false, err
	}
	return sub.BonusGranted, nil
}

// ClaimBonus bypasses the cache: the claim must observe the live row.
func (s *CachedSubscriberStore) ClaimBonus(ctx context.Context, subUUID string) (bool, error) {
	if s == nil || s.base == nil || s.cache == nil {
		return false, fmt.Errorf("sqlstore: cached subscriber store is not configured")
	}
	claimed, err := s.base.ClaimBonus(ctx, subUUID)
	if err != nil {
		return false, err
	}
	if err := s.invalidate(ctx, subUUID); err != nil {
		return claimed, err
	}
	return claimed, nil
}

func (s *CachedSubscriberStore) ReleaseBonus(ctx context.Context, subUUID string) error {
	if s == nil || s.base == nil || s.cache == nil {
		return fmt.Errorf("sqlstore: cached subscriber store is not configured")
	}
	if err := s.base.ReleaseBonus(ctx, subUUID); err != nil {
		return err
	}
	return s.invalidate(ctx, subUUID)
}

func (s *CachedSubscriberStore) invalidate(ctx context.Context, subUUID string) error {
	cacheKey, err := SubscriberCacheKey(subUUID)
	if err != nil {
		return err
	}
	return s.cache.Delete(ctx, cacheKey)
}

var _ core.SubscriberStore = (*CachedSubscriberStore)(nil)
