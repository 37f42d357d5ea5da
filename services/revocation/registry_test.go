package revocation

import (
	"context"
	"fmt"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"go.uber.org/zap"
)

func TestRegistry_AddContains(t *testing.T) {
	r := NewRegistry()
	exp := time.Now().Add(time.Hour)

	assert.False(t, r.Contains("jti-1"))
	r.Add("jti-1", exp)
	assert.True(t, r.Contains("jti-1"))
	assert.False(t, r.Contains("jti-2"))
	assert.Equal(t, 1, r.Len())
}

func TestRegistry_Prune(t *testing.T) {
	r := NewRegistry()
	now := time.Date(2026, 1, 1, 12, 0, 0, 0, time.UTC)

	r.Add("expired", now.Add(-time.Minute))
	r.Add("boundary", now)
	r.Add("live", now.Add(time.Minute))
	r.Add("forever", time.Time{})

	removed := r.Prune(now)

	assert.Equal(t, 2, removed)
	assert.False(t, r.Contains("expired"))
	assert.False(t, r.Contains("boundary"))
	assert.True(t, r.Contains("live"))
	assert.True(t, r.Contains("forever"))
}

func TestRegistry_AddKeepsLongestExpiry(t *testing.T) {
	r := NewRegistry()
	now := time.Date(2026, 1, 1, 12, 0, 0, 0, time.UTC)

	r.Add("jti", now.Add(time.Hour))
	r.Add("jti", now.Add(time.Minute))
	r.Prune(now.Add(30 * time.Minute))

	assert.True(t, r.Contains("jti"))
}

func TestRegistry_AddVisibleToLaterReaders(t *testing.T) {
	r := NewRegistry()
	var wg sync.WaitGroup

	for i := 0; i < 64; i++ {
		jti := fmt.Sprintf("jti-%d", i)
		r.Add(jti, time.Now().Add(time.Hour))

		wg.Add(1)
		go func() {
			defer wg.Done()
			assert.True(t, r.Contains(jti))
		}()
	}
	wg.Wait()
}

func TestRegistry_StartPruner(t *testing.T) {
	r := NewRegistry()
	now := time.Date(2026, 1, 1, 12, 0, 0, 0, time.UTC)
	r.Add("old", now.Add(-time.Hour))

	ctx, cancel := context.WithCancel(context.Background())
	done := r.StartPruner(ctx, 5*time.Millisecond, func() time.Time { return now }, zap.NewNop())

	assert.Eventually(t, func() bool { return !r.Contains("old") }, time.Second, 5*time.Millisecond)

	cancel()
	select {
	case <-done:
	case <-time.After(time.Second):
		t.Fatal("pruner did not stop")
	}
}

func TestRegistry_StartPrunerDisabled(t *testing.T) {
	r := NewRegistry()
	done := r.StartPruner(context.Background(), 0, time.Now, zap.NewNop())

	select {
	case <-done:
	default:
		t.Fatal("disabled pruner should be closed immediately")
	}
}
