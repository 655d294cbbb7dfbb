package frontier

import (
	"context"
	"errors"
	"fmt"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/require"
)

func TestFrontierFIFOAndDuplicates(t *testing.T) {
	t.Parallel()

	f := New()
	f.Push("a")
	f.Push("b")
	f.Push("a")
	require.Equal(t, 3, f.Len())

	for _, want := range []string{"a", "b", "a"} {
		got, err := f.Pop(context.Background(), time.Second)
		require.NoError(t, err)
		require.Equal(t, want, got)
	}
	require.Zero(t, f.Len())
}

func TestFrontierPopWaitsForPush(t *testing.T) {
	t.Parallel()

	f := New()
	result := make(chan string, 1)
	go func() {
		url, err := f.Pop(context.Background(), 5*time.Second)
		if err != nil {
			result <- err.Error()
			return
		}
		result <- url
	}()

	time.Sleep(20 * time.Millisecond)
	f.Push("https://example.com")

	select {
	case got := <-result:
		require.Equal(t, "https://example.com", got)
	case <-time.After(time.Second):
		t.Fatal("pop did not return pushed url")
	}
}

func TestFrontierPopIdleTimeout(t *testing.T) {
	t.Parallel()

	f := New()
	start := time.Now()
	_, err := f.Pop(context.Background(), 30*time.Millisecond)
	require.ErrorIs(t, err, ErrIdle)
	require.GreaterOrEqual(t, time.Since(start), 30*time.Millisecond)
}

func TestFrontierPopCanceled(t *testing.T) {
	t.Parallel()

	f := New()
	ctx, cancel := context.WithCancel(context.Background())
	cancel()
	_, err := f.Pop(ctx, time.Second)
	require.Error(t, err)
	require.True(t, errors.Is(err, context.Canceled))
	require.Equal(t, "pop canceled: context canceled", err.Error())
}

func TestFrontierClose(t *testing.T) {
	t.Parallel()

	f := New()
	f.Push("left-over")
	f.Close()
	f.Push("ignored")

	got, err := f.Pop(context.Background(), time.Second)
	require.NoError(t, err)
	require.Equal(t, "left-over", got)

	_, err = f.Pop(context.Background(), time.Second)
	require.ErrorIs(t, err, ErrClosed)
}

func TestFrontierConcurrentPushes(t *testing.T) {
	t.Parallel()

	f := New()
	var wg sync.WaitGroup
	for i := 0; i < 8; i++ {
		wg.Add(1)
		go func(i int) {
			defer wg.Done()
			for j := 0; j < 50; j++ {
				f.Push(fmt.Sprintf("u-%d-%d", i, j))
			}
		}(i)
	}
	wg.Wait()
	require.Equal(t, 400, f.Len())
}

func TestVisitedSetTryMarkOnce(t *testing.T) {
	t.Parallel()

	s := NewVisitedSet()
	var (
		wg   sync.WaitGroup
		mu   sync.Mutex
		wins int
	)
	for i := 0; i < 16; i++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			if s.TryMark("https://example.com") {
				mu.Lock()
				wins++
				mu.Unlock()
			}
		}()
	}
	wg.Wait()

	require.Equal(t, 1, wins)
	require.True(t, s.Contains("https://example.com"))
	require.False(t, s.Contains("https://example.com/"))
	require.Equal(t, 1, s.Len())
}

func TestVisitedSetSnapshotSorted(t *testing.T) {
	t.Parallel()

	s := NewVisitedSet()
	for _, u := range []string{"c", "a", "b"} {
		s.TryMark(u)
	}
	require.Equal(t, []string{"a", "b", "c"}, s.Snapshot())
}
