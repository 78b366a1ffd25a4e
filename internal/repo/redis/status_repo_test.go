package redis

import (
	"context"
	"testing"
	"time"

	"github.com/alicebob/miniredis/v2"
	goredis "github.com/redis/go-redis/v9"

	paysvc "github.com/YOLOVibeCode/fieldview-live-sub002/internal/services/payments"
)

func newMiniRedisClient(t *testing.T) (*miniredis.Miniredis, *goredis.Client) {
	t.Helper()

	mr, err := miniredis.Run()
	if err != nil {
		t.Fatalf("run miniredis: %v", err)
	}

	client := goredis.NewClient(&goredis.Options{
		Addr: mr.Addr(),
	})

	return mr, client
}

func TestStatusRepoRoundTrip(t *testing.T) {
	mr, client := newMiniRedisClient(t)
	defer mr.Close()
	defer func() { _ = client.Close() }()

	repo := NewStatusRepo(client, time.Minute, nil)
	ctx := context.Background()

	if _, ok := repo.GetStatus(ctx, "pur-1"); ok {
		t.Fatalf("expected miss on empty cache")
	}

	repo.SetStatus(ctx, "pur-1", paysvc.StatusSnapshot{
		Status:           "paid",
		EntitlementToken: "ent_abc",
	})

	snap, ok := repo.GetStatus(ctx, "pur-1")
	if !ok {
		t.Fatalf("expected hit after set")
	}
	if snap.Status != "paid" || snap.EntitlementToken != "ent_abc" {
		t.Fatalf("unexpected snapshot: %+v", snap)
	}
}

func TestStatusRepoInvalidate(t *testing.T) {
	mr, client := newMiniRedisClient(t)
	defer mr.Close()
	defer func() { _ = client.Close() }()

	repo := NewStatusRepo(client, time.Minute, nil)
	ctx := context.Background()

	repo.SetStatus(ctx, "pur-1", paysvc.StatusSnapshot{Status: "created"})
	repo.Invalidate(ctx, "pur-1")

	if _, ok := repo.GetStatus(ctx, "pur-1"); ok {
		t.Fatalf("expected miss after invalidate")
	}
}

func TestStatusRepoEntriesExpire(t *testing.T) {
	mr, client := newMiniRedisClient(t)
	defer mr.Close()
	defer func() { _ = client.Close() }()

	repo := NewStatusRepo(client, 10*time.Second, nil)
	ctx := context.Background()

	repo.SetStatus(ctx, "pur-1", paysvc.StatusSnapshot{Status: "created"})
	mr.FastForward(11 * time.Second)

	if _, ok := repo.GetStatus(ctx, "pur-1"); ok {
		t.Fatalf("expected miss after ttl expiry")
	}
}
