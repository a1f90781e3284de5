package rolecache_test

import (
	"context"
	"errors"
	"testing"
	"time"

	"github.com/alicebob/miniredis/v2"

	"cmms/internal/domain"
	"cmms/internal/rolecache"
)

var errUnknown = errors.New("unknown staff")

type countingSource struct {
	levels map[string]domain.RoleLevel
	calls  int
}

func (s *countingSource) RoleLevel(_ context.Context, id string) (domain.RoleLevel, error) {
	s.calls++
	level, ok := s.levels[id]
	if !ok {
		return 0, errUnknown
	}
	return level, nil
}

func setupCache(t *testing.T, ttl time.Duration) (*rolecache.Cache, *countingSource, *miniredis.Miniredis) {
	t.Helper()
	s := miniredis.RunT(t)
	src := &countingSource{levels: map[string]domain.RoleLevel{"mgr": domain.RoleMidLevelManager}}
	cache, err := rolecache.New("redis://"+s.Addr(), src, ttl)
	if err != nil {
		t.Fatalf("new cache: %v", err)
	}
	t.Cleanup(func() { cache.Close() })
	return cache, src, s
}

func TestReadThrough(t *testing.T) {
	cache, src, s := setupCache(t, time.Minute)
	ctx := context.Background()
	for i := 0; i < 3; i++ {
		level, err := cache.RoleLevel(ctx, "mgr")
		if err != nil || level != domain.RoleMidLevelManager {
			t.Fatalf("lookup %d: %d %v", i, level, err)
		}
	}
	if src.calls != 1 {
		t.Fatalf("expected one source call, got %d", src.calls)
	}
	if got, _ := s.Get("cmms:role:mgr"); got != "2" {
		t.Fatalf("unexpected cached value %q", got)
	}
}

func TestExpiryAndInvalidate(t *testing.T) {
	cache, src, s := setupCache(t, time.Minute)
	ctx := context.Background()
	if _, err := cache.RoleLevel(ctx, "mgr"); err != nil {
		t.Fatalf("lookup: %v", err)
	}
	s.FastForward(2 * time.Minute)
	if _, err := cache.RoleLevel(ctx, "mgr"); err != nil {
		t.Fatalf("lookup after expiry: %v", err)
	}
	if src.calls != 2 {
		t.Fatalf("expected refetch after ttl, got %d calls", src.calls)
	}
	src.levels["mgr"] = domain.RoleExecutiveOfficer
	if err := cache.Invalidate(ctx, "mgr"); err != nil {
		t.Fatalf("invalidate: %v", err)
	}
	level, err := cache.RoleLevel(ctx, "mgr")
	if err != nil || level != domain.RoleExecutiveOfficer {
		t.Fatalf("expected new level after invalidate, got %d %v", level, err)
	}
}

func TestSourceErrorsAreNotCached(t *testing.T) {
	cache, src, s := setupCache(t, time.Minute)
	ctx := context.Background()
	if _, err := cache.RoleLevel(ctx, "ghost"); !errors.Is(err, errUnknown) {
		t.Fatalf("expected source error, got %v", err)
	}
	if s.Exists("cmms:role:ghost") {
		t.Fatalf("error result was cached")
	}
	src.levels["ghost"] = domain.RoleBaseLevelWorker
	if level, err := cache.RoleLevel(ctx, "ghost"); err != nil || level != domain.RoleBaseLevelWorker {
		t.Fatalf("lookup after creation: %d %v", level, err)
	}
}

func TestRedisDownFallsThrough(t *testing.T) {
	cache, src, s := setupCache(t, time.Minute)
	s.Close()
	level, err := cache.RoleLevel(context.Background(), "mgr")
	if err != nil || level != domain.RoleMidLevelManager {
		t.Fatalf("expected source answer, got %d %v", level, err)
	}
	if src.calls != 1 {
		t.Fatalf("expected source call, got %d", src.calls)
	}
}

func TestNewRejectsBadURL(t *testing.T) {
	if _, err := rolecache.New("not-a-url", &countingSource{}, 0); err == nil {
		t.Fatalf("expected parse error")
	}
}
