package station

import (
	"sync"

	"github.com/rs/zerolog"

	"weighbridge-service/internal/domain/weighing"
)

// statusBroadcaster fans out phase transitions to independent listeners.
// Each subscriber gets its own buffered channel; publishes happen in
// transition order. A listener that stops draining loses changes (logged)
// rather than stalling the detector.
type statusBroadcaster struct {
	mu   sync.Mutex
	subs map[int]chan weighing.StatusChange
	next int
	log  zerolog.Logger
}

func newStatusBroadcaster(log zerolog.Logger) *statusBroadcaster {
	return &statusBroadcaster{
		subs: make(map[int]chan weighing.StatusChange),
		log:  log,
	}
}

// Subscribe registers a listener. The returned cancel func must be called to
// release the channel.
func (b *statusBroadcaster) Subscribe() (<-chan weighing.StatusChange, func()) {
	b.mu.Lock()
	defer b.mu.Unlock()
	id := b.next
	b.next++
	ch := make(chan weighing.StatusChange, 64)
	b.subs[id] = ch
	cancel := func() {
		b.mu.Lock()
		defer b.mu.Unlock()
		if c, ok := b.subs[id]; ok {
			delete(b.subs, id)
			close(c)
		}
	}
	return ch, cancel
}

func (b *statusBroadcaster) Publish(change weighing.StatusChange) {
	b.mu.Lock()
	defer b.mu.Unlock()
	for id, ch := range b.subs {
		select {
		case ch <- change:
		default:
			b.log.Warn().Int("subscriber", id).
				Str("to", string(change.To)).
				Msg("status subscriber lagging, change dropped")
		}
	}
}
