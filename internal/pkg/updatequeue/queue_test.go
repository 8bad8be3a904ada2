package updatequeue

import (
	"context"
	"errors"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func update(providerID string, entryID int64) AnimeListUpdateRequest {
	return AnimeListUpdateRequest{ProviderID: providerID, EntryID: entryID}
}

func TestWorkerDispatchesInFIFOOrder(t *testing.T) {
	queue := newQueue(QueueCapacity, time.Millisecond)

	var mu sync.Mutex
	var seen []int64
	done := make(chan struct{})
	queue.RegisterRoutine("myanimelist", func(ctx context.Context, u AnimeListUpdateRequest) error {
		mu.Lock()
		seen = append(seen, u.EntryID)
		if len(seen) == 5 {
			close(done)
		}
		mu.Unlock()
		return nil
	})

	for i := int64(1); i <= 5; i++ {
		require.NoError(t, queue.Enqueue(update("myanimelist", i)))
	}

	queue.Start()
	defer queue.Stop()

	select {
	case <-done:
	case <-time.After(2 * time.Second):
		t.Fatal("worker did not drain the queue")
	}

	mu.Lock()
	defer mu.Unlock()
	assert.Equal(t, []int64{1, 2, 3, 4, 5}, seen)
}

func TestWorkerPacesDispatches(t *testing.T) {
	interval := 50 * time.Millisecond
	queue := newQueue(QueueCapacity, interval)

	var mu sync.Mutex
	var stamps []time.Time
	done := make(chan struct{})
	queue.RegisterRoutine("anilist", func(ctx context.Context, u AnimeListUpdateRequest) error {
		mu.Lock()
		stamps = append(stamps, time.Now())
		if len(stamps) == 3 {
			close(done)
		}
		mu.Unlock()
		return nil
	})

	for i := int64(1); i <= 3; i++ {
		require.NoError(t, queue.Enqueue(update("anilist", i)))
	}

	queue.Start()
	defer queue.Stop()

	select {
	case <-done:
	case <-time.After(2 * time.Second):
		t.Fatal("worker did not drain the queue")
	}

	mu.Lock()
	defer mu.Unlock()
	for i := 1; i < len(stamps); i++ {
		assert.GreaterOrEqual(t, stamps[i].Sub(stamps[i-1]), interval)
	}
}

func TestEnqueueBlocksWhenFull(t *testing.T) {
	queue := newQueue(2, time.Millisecond)
	queue.RegisterRoutine("myanimelist", func(ctx context.Context, u AnimeListUpdateRequest) error {
		return nil
	})

	require.NoError(t, queue.Enqueue(update("myanimelist", 1)))
	require.NoError(t, queue.Enqueue(update("myanimelist", 2)))

	accepted := make(chan struct{})
	go func() {
		_ = queue.Enqueue(update("myanimelist", 3))
		close(accepted)
	}()

	select {
	case <-accepted:
		t.Fatal("enqueue into a full queue should suspend")
	case <-time.After(100 * time.Millisecond):
	}

	// Starting the worker frees a slot and unblocks the producer.
	queue.Start()
	defer queue.Stop()

	select {
	case <-accepted:
	case <-time.After(2 * time.Second):
		t.Fatal("enqueue never unblocked after the worker drained")
	}
}

func TestStopReleasesParkedProducer(t *testing.T) {
	queue := newQueue(1, time.Millisecond)

	require.NoError(t, queue.Enqueue(update("myanimelist", 1)))

	result := make(chan error, 1)
	go func() {
		result <- queue.Enqueue(update("myanimelist", 2))
	}()

	// Let the producer park on the full channel before stopping.
	time.Sleep(50 * time.Millisecond)

	stopped := make(chan struct{})
	go func() {
		queue.Stop()
		close(stopped)
	}()

	select {
	case <-stopped:
	case <-time.After(2 * time.Second):
		t.Fatal("stop waited behind a parked producer")
	}

	select {
	case err := <-result:
		assert.ErrorIs(t, err, ErrUnavailable)
	case <-time.After(2 * time.Second):
		t.Fatal("parked producer was never released")
	}
}

func TestStartIsNotBlockedByParkedProducer(t *testing.T) {
	queue := newQueue(1, time.Millisecond)

	drained := make(chan int64, 4)
	queue.RegisterRoutine("myanimelist", func(ctx context.Context, u AnimeListUpdateRequest) error {
		drained <- u.EntryID
		return nil
	})

	require.NoError(t, queue.Enqueue(update("myanimelist", 1)))

	accepted := make(chan error, 1)
	go func() {
		accepted <- queue.Enqueue(update("myanimelist", 2))
	}()

	time.Sleep(50 * time.Millisecond)

	started := make(chan struct{})
	go func() {
		queue.Start()
		close(started)
	}()

	select {
	case <-started:
	case <-time.After(2 * time.Second):
		t.Fatal("start waited behind a parked producer")
	}

	select {
	case err := <-accepted:
		require.NoError(t, err)
	case <-time.After(2 * time.Second):
		t.Fatal("producer never unblocked after the worker drained")
	}

	queue.Stop()
	assert.Equal(t, int64(1), <-drained)
	assert.Equal(t, int64(2), <-drained)
}

func TestEnqueueAfterStop(t *testing.T) {
	queue := newQueue(QueueCapacity, time.Millisecond)
	queue.Start()
	queue.Stop()

	err := queue.Enqueue(update("myanimelist", 1))
	assert.ErrorIs(t, err, ErrUnavailable)
}

func TestWorkerSurvivesFailures(t *testing.T) {
	queue := newQueue(QueueCapacity, time.Millisecond)

	done := make(chan int64, 1)
	queue.RegisterRoutine("anilist", func(ctx context.Context, u AnimeListUpdateRequest) error {
		if u.EntryID == 1 {
			return errors.New("remote rejected the update")
		}
		done <- u.EntryID
		return nil
	})

	// Unknown provider, failing update, then a healthy one.
	require.NoError(t, queue.Enqueue(update("unknown", 7)))
	require.NoError(t, queue.Enqueue(update("anilist", 1)))
	require.NoError(t, queue.Enqueue(update("anilist", 2)))

	queue.Start()
	defer queue.Stop()

	select {
	case id := <-done:
		assert.Equal(t, int64(2), id)
	case <-time.After(2 * time.Second):
		t.Fatal("worker stopped after a failed dispatch")
	}
}

func TestHasChanges(t *testing.T) {
	assert.False(t, update("myanimelist", 1).HasChanges())

	score := 8
	withScore := update("myanimelist", 1)
	withScore.UserScore = &score
	assert.True(t, withScore.HasChanges())
}
