package updatequeue

import (
	"context"
	"errors"
	"sync"
	"time"

	"github.com/gofiber/fiber/v2/log"
)

const (
	// QueueCapacity bounds how many updates may be waiting; a full queue
	// applies backpressure to producers instead of growing without limit.
	QueueCapacity = 256

	// UpdateInterval is the pause after every dispatch, giving a floor of
	// roughly one outbound request per second regardless of UI burst rate.
	UpdateInterval = 1000 * time.Millisecond
)

// ErrUnavailable is returned by Enqueue once the queue has been stopped.
var ErrUnavailable = errors.New("update queue is unavailable")

// UpdateFunc performs one list update against a provider's API.
type UpdateFunc func(ctx context.Context, update AnimeListUpdateRequest) error

// Queue serialises list mutations: a bounded FIFO channel drained by a single
// worker that dispatches each update to its provider's routine and paces
// dispatches at UpdateInterval.
type Queue struct {
	updates  chan AnimeListUpdateRequest
	quit     chan struct{}
	routines map[string]UpdateFunc
	interval time.Duration

	mu      sync.Mutex
	running bool
	closed  bool
	wg      sync.WaitGroup
}

// NewQueue creates an update queue. Register provider routines before Start.
func NewQueue() *Queue {
	return newQueue(QueueCapacity, UpdateInterval)
}

func newQueue(capacity int, interval time.Duration) *Queue {
	return &Queue{
		updates:  make(chan AnimeListUpdateRequest, capacity),
		quit:     make(chan struct{}),
		routines: make(map[string]UpdateFunc),
		interval: interval,
	}
}

// RegisterRoutine binds a provider ID to its update routine. Not safe to call
// after Start.
func (q *Queue) RegisterRoutine(providerID string, routine UpdateFunc) {
	q.routines[providerID] = routine
}

// Start spawns the single consumer worker.
func (q *Queue) Start() {
	q.mu.Lock()
	defer q.mu.Unlock()

	if q.running || q.closed {
		return
	}
	q.running = true

	log.Info("[UpdateQueue] Starting worker")
	q.wg.Add(1)
	go q.worker()
}

// Stop closes the queue and waits for the worker to drain what was already
// accepted. Enqueue returns ErrUnavailable afterwards; producers parked on a
// full queue are released with ErrUnavailable.
func (q *Queue) Stop() {
	q.mu.Lock()
	if q.closed {
		q.mu.Unlock()
		return
	}
	q.closed = true
	close(q.quit)
	q.mu.Unlock()

	q.wg.Wait()
	log.Info("[UpdateQueue] Worker stopped")
}

// Enqueue accepts an update for dispatch. When the queue is full the call
// suspends until the worker drains a slot; when the queue has been stopped it
// returns ErrUnavailable.
func (q *Queue) Enqueue(update AnimeListUpdateRequest) error {
	q.mu.Lock()
	closed := q.closed
	q.mu.Unlock()
	if closed {
		return ErrUnavailable
	}

	// The lock is not held across the send: a producer parked on a full
	// queue must never stall Start or Stop. Stop wakes parked producers by
	// closing quit; the updates channel itself is never closed.
	select {
	case q.updates <- update:
		return nil
	case <-q.quit:
		return ErrUnavailable
	}
}

// Len reports how many updates are waiting.
func (q *Queue) Len() int {
	return len(q.updates)
}

func (q *Queue) worker() {
	defer q.wg.Done()

	ctx := context.Background()
	for {
		select {
		case update := <-q.updates:
			q.dispatch(ctx, update)
			time.Sleep(q.interval)
		case <-q.quit:
			// Drain what was accepted before the stop, then exit.
			for {
				select {
				case update := <-q.updates:
					q.dispatch(ctx, update)
					time.Sleep(q.interval)
				default:
					return
				}
			}
		}
	}
}

// dispatch runs one update. Errors are logged with provider and entry ID and
// the loop continues; a failed update is not re-enqueued.
func (q *Queue) dispatch(ctx context.Context, update AnimeListUpdateRequest) {
	routine, ok := q.routines[update.ProviderID]
	if !ok {
		log.Errorf("[UpdateQueue] No update routine for provider %s (entry %d)", update.ProviderID, update.EntryID)
		return
	}

	if err := routine(ctx, update); err != nil {
		log.Errorf("[UpdateQueue] Update failed for provider %s entry %d: %v", update.ProviderID, update.EntryID, err)
		return
	}

	log.Debugf("[UpdateQueue] Updated provider %s entry %d", update.ProviderID, update.EntryID)
}
