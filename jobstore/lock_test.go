package jobstore

import (
	"context"
	"testing"
	"time"

	"github.com/alicebob/miniredis/v2"
	"github.com/redis/go-redis/v9"
)

func newTestLocker(t *testing.T) *Locker {
	t.Helper()
	mr, err := miniredis.Run()
	if err != nil {
		t.Fatal(err)
	}
	t.Cleanup(mr.Close)
	client := redis.NewClient(&redis.Options{Addr: mr.Addr()})
	return NewLocker(client, time.Minute)
}

func TestLockerAcquireAndRelease(t *testing.T) {
	locker := newTestLocker(t)
	ctx := context.Background()

	lease, ok, err := locker.Acquire(ctx, "job1")
	if err != nil {
		t.Fatal(err)
	}
	if !ok {
		t.Fatal("expected to acquire an uncontended lock")
	}

	if _, ok, err := locker.Acquire(ctx, "job1"); err != nil || ok {
		t.Fatalf("expected second acquire to fail, got ok=%v err=%v", ok, err)
	}

	if err := lease.Release(ctx); err != nil {
		t.Fatal(err)
	}

	if _, ok, err := locker.Acquire(ctx, "job1"); err != nil || !ok {
		t.Fatalf("expected to reacquire after release, got ok=%v err=%v", ok, err)
	}
}

func TestNilLockerAlwaysSucceeds(t *testing.T) {
	var locker *Locker
	lease, ok, err := locker.Acquire(context.Background(), "job1")
	if err != nil || !ok {
		t.Fatalf("expected nil locker to always succeed, got ok=%v err=%v", ok, err)
	}
	if err := lease.Release(context.Background()); err != nil {
		t.Fatal(err)
	}
}
