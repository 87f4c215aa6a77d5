package statsrecorder

import (
	"context"
	"errors"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/undefined7887/shortlink/internal/logger"
)

type countingKeeper struct {
	mu           sync.Mutex
	counts       map[string]int64
	lastAccessAt map[string]time.Time
	failuresLeft int
}

func newCountingKeeper(failuresLeft int) *countingKeeper {
	return &countingKeeper{
		counts:       map[string]int64{},
		lastAccessAt: map[string]time.Time{},
		failuresLeft: failuresLeft,
	}
}

func (k *countingKeeper) RecordAccess(ctx context.Context, linkID string, count int64, accessedAt time.Time) error {
	k.mu.Lock()
	defer k.mu.Unlock()

	if k.failuresLeft > 0 {
		k.failuresLeft--
		return errors.New("storage unavailable")
	}

	k.counts[linkID] += count
	k.lastAccessAt[linkID] = accessedAt

	return nil
}

func (k *countingKeeper) count(linkID string) int64 {
	k.mu.Lock()
	defer k.mu.Unlock()

	return k.counts[linkID]
}

func TestMain(m *testing.M) {
	if err := logger.Init("debug"); err != nil {
		panic(err)
	}
	m.Run()
}

func TestRecorderCoalescesAccesses(t *testing.T) {
	keeper := newCountingKeeper(0)
	recorder := New(keeper, 64, 10*time.Millisecond)

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()
	recorder.Run(ctx)

	for i := 0; i < 5; i++ {
		recorder.Enqueue("a", time.Now())
	}
	for i := 0; i < 3; i++ {
		recorder.Enqueue("b", time.Now())
	}

	require.Eventually(t, func() bool {
		return keeper.count("a") == 5 && keeper.count("b") == 3
	}, time.Second, 10*time.Millisecond)
}

func TestRecorderRetriesFailedFlush(t *testing.T) {
	keeper := newCountingKeeper(2)
	recorder := New(keeper, 64, 10*time.Millisecond)

	var errCount int
	var errMu sync.Mutex
	recorder.ListenErrors(func(err error) {
		errMu.Lock()
		errCount++
		errMu.Unlock()
	})

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()
	recorder.Run(ctx)

	recorder.Enqueue("a", time.Now())

	// Two flushes fail, the batch stays, the third one lands: still exactly once.
	require.Eventually(t, func() bool {
		return keeper.count("a") == 1
	}, time.Second, 10*time.Millisecond)

	errMu.Lock()
	defer errMu.Unlock()
	assert.GreaterOrEqual(t, errCount, 2)
}

func TestRecorderFlushesOnStop(t *testing.T) {
	keeper := newCountingKeeper(0)
	recorder := New(keeper, 64, time.Hour) // ticker never fires during the test

	ctx, cancel := context.WithCancel(context.Background())
	recorder.Run(ctx)

	recorder.Enqueue("a", time.Now())
	recorder.Enqueue("a", time.Now())

	cancel()

	require.Eventually(t, func() bool {
		return keeper.count("a") == 2
	}, time.Second, 10*time.Millisecond)
}

func TestRecorderKeepsLatestAccessTime(t *testing.T) {
	keeper := newCountingKeeper(0)
	recorder := New(keeper, 64, 10*time.Millisecond)

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()
	recorder.Run(ctx)

	earlier := time.Now()
	later := earlier.Add(time.Minute)
	recorder.Enqueue("a", later)
	recorder.Enqueue("a", earlier)

	require.Eventually(t, func() bool {
		return keeper.count("a") == 2
	}, time.Second, 10*time.Millisecond)

	keeper.mu.Lock()
	defer keeper.mu.Unlock()
	assert.Equal(t, later, keeper.lastAccessAt["a"])
}
