package events

import (
	"sync"

	"github.com/gofiber/fiber/v2/log"
	"github.com/google/uuid"
)

const subscriberBuffer = 16

// Event is a fire-and-forget notification for the UI, e.g.
// "myanimelist-auth-callback" or "anilist-auth-failed".
type Event struct {
	Name string `json:"name"`
}

// Bus fans events out to all current subscribers. Delivery is best-effort: a
// subscriber that stops draining its channel loses events instead of blocking
// the emitter.
type Bus struct {
	mu   sync.RWMutex
	subs map[string]chan Event
}

func NewBus() *Bus {
	return &Bus{subs: make(map[string]chan Event)}
}

func (b *Bus) Emit(name string) {
	b.mu.RLock()
	defer b.mu.RUnlock()

	for id, ch := range b.subs {
		select {
		case ch <- Event{Name: name}:
		default:
			log.Warnf("[Events] Dropping event %s for slow subscriber %s", name, id)
		}
	}
}

func (b *Bus) Subscribe() (string, <-chan Event) {
	id := uuid.New().String()
	ch := make(chan Event, subscriberBuffer)

	b.mu.Lock()
	b.subs[id] = ch
	b.mu.Unlock()

	return id, ch
}

func (b *Bus) Unsubscribe(id string) {
	b.mu.Lock()
	defer b.mu.Unlock()

	if ch, ok := b.subs[id]; ok {
		delete(b.subs, id)
		close(ch)
	}
}
