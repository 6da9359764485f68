//go:build integration

package lock

import (
	"context"
	"errors"
	"os"
	"testing"
	"time"
)

func TestRedisLockExcludesSecondHolder(t *testing.T) {
	addr := os.Getenv("REDIS_ADDRESS")
	if addr == "" {
		t.Skip("REDIS_ADDRESS not set")
	}

	ctx := context.Background()
	r, rdb, err := Dial(ctx, addr, 2*time.Second, nil)
	if err != nil {
		t.Fatalf("dial: %v", err)
	}
	defer rdb.Close()

	key := UserKey("integration-" + time.Now().Format("150405.000"))
	unlock, err := r.Lock(ctx, key)
	if err != nil {
		t.Fatalf("first lock: %v", err)
	}

	wctx, cancel := context.WithTimeout(ctx, 200*time.Millisecond)
	defer cancel()
	if _, err := r.Lock(wctx, key); !errors.Is(err, ErrNotObtained) {
		t.Fatalf("expected ErrNotObtained, got %v", err)
	}

	unlock()
	second, err := r.Lock(ctx, key)
	if err != nil {
		t.Fatalf("lock after release: %v", err)
	}
	second()
}
