package cache

import (
	"context"
	"errors"
	"sync"
	"sync/atomic"
	"testing"
	"time"
)

func TestLRUEvictsLeastRecentlyUsed(t *testing.T) {
	c := NewLRU[string](2, time.Minute)
	c.Set("a", "1")
	c.Set("b", "2")
	c.Get("a")
	c.Set("c", "3")

	if _, ok := c.Get("b"); ok {
		t.Fatalf("b should have been evicted")
	}
	if v, ok := c.Get("a"); !ok || v != "1" {
		t.Fatalf("a = %q, %v", v, ok)
	}
	if c.Size() != 2 {
		t.Fatalf("size = %d", c.Size())
	}
}

func TestLRUExpiry(t *testing.T) {
	now := time.Date(2024, 3, 5, 12, 0, 0, 0, time.UTC)
	c := NewLRU[int](10, time.Minute)
	c.now = func() time.Time { return now }
	c.Set("a", 1)
	c.Set("b", 2)

	now = now.Add(2 * time.Minute)
	c.Set("c", 3)
	if n := c.CleanExpired(); n != 2 {
		t.Fatalf("cleaned %d, want 2", n)
	}
	if _, ok := c.Get("c"); !ok {
		t.Fatalf("fresh entry removed")
	}
}

func TestLRUWeightBound(t *testing.T) {
	c := NewLRU[[]byte](100, time.Minute).WithWeight(func(b []byte) int { return len(b) }, 10)
	c.Set("a", make([]byte, 4))
	c.Set("b", make([]byte, 4))
	c.Set("c", make([]byte, 4))
	if _, ok := c.Get("a"); ok {
		t.Fatalf("a should be evicted by weight")
	}
	c.Set("huge", make([]byte, 11))
	if _, ok := c.Get("huge"); ok {
		t.Fatalf("oversized value cached")
	}
	if c.Size() != 2 {
		t.Fatalf("size = %d", c.Size())
	}
}

func TestLoaderCollapsesConcurrentMisses(t *testing.T) {
	l := NewLoader[string](NewLRU[string](10, time.Minute))
	var calls int32
	release := make(chan struct{})
	load := func(context.Context) (string, error) {
		atomic.AddInt32(&calls, 1)
		<-release
		return "v", nil
	}

	var wg sync.WaitGroup
	for i := 0; i < 5; i++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			if v, err := l.Get(context.Background(), "k", load); err != nil || v != "v" {
				t.Errorf("Get = %q, %v", v, err)
			}
		}()
	}
	time.Sleep(20 * time.Millisecond)
	close(release)
	wg.Wait()

	if n := atomic.LoadInt32(&calls); n != 1 {
		t.Fatalf("load called %d times", n)
	}
}

func TestLoaderDoesNotCacheErrors(t *testing.T) {
	l := NewLoader[int](NewLRU[int](10, time.Minute))
	boom := errors.New("boom")
	if _, err := l.Get(context.Background(), "k", func(context.Context) (int, error) { return 0, boom }); !errors.Is(err, boom) {
		t.Fatalf("want boom, got %v", err)
	}
	v, err := l.Get(context.Background(), "k", func(context.Context) (int, error) { return 7, nil })
	if err != nil || v != 7 {
		t.Fatalf("Get = %d, %v", v, err)
	}
}

func TestManagerStopWithoutStart(t *testing.T) {
	m := NewManager()
	m.Stop()
	c := NewLRU[int](1, time.Nanosecond)
	m.Register(c)
	c.Set("a", 1)
	time.Sleep(time.Millisecond)
	if n := m.Sweep(); n != 1 {
		t.Fatalf("swept %d", n)
	}
}
