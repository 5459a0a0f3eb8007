package rpc

import (
	"log/slog"
	"sync"

	"nftsettle/core/events"
	"nftsettle/core/types"
	"nftsettle/storage"
)

// Journal persists emitted events for subscriber backfill.
type Journal interface {
	EventAppend(evt *types.Event) (uint64, error)
	EventsSince(from uint64) ([]storage.StoredEvent, error)
}

// Feed journals every engine event and fans it out to live subscribers. It is
// wired into the engines as their emitter.
type Feed struct {
	mu      sync.Mutex
	journal Journal
	logger  *slog.Logger
	nextSub uint64
	subs    map[uint64]chan storage.StoredEvent
}

// NewFeed returns a feed backed by the given journal. A nil journal disables
// persistence but live delivery still works.
func NewFeed(journal Journal, logger *slog.Logger) *Feed {
	if logger == nil {
		logger = slog.Default()
	}
	return &Feed{
		journal: journal,
		logger:  logger,
		subs:    make(map[uint64]chan storage.StoredEvent),
	}
}

// Emit implements events.Emitter. Events without a payload are counted but
// not journaled or broadcast.
func (f *Feed) Emit(evt events.Event) {
	if evt == nil {
		return
	}
	metrics().events.WithLabelValues(evt.EventType()).Inc()

	payload, ok := evt.(events.Payload)
	if !ok {
		return
	}
	raw := payload.Event()
	if raw == nil {
		return
	}

	stored := storage.StoredEvent{Event: raw.Clone()}
	if f.journal != nil {
		seq, err := f.journal.EventAppend(raw)
		if err != nil {
			f.logger.Error("event journal append failed", "type", raw.Type, "error", err)
		} else {
			stored.Seq = seq
		}
	}

	f.mu.Lock()
	defer f.mu.Unlock()
	for id, sub := range f.subs {
		select {
		case sub <- stored:
		default:
			// Slow subscriber: drop the live update. Backfill via
			// EventsSince covers the gap.
			f.logger.Warn("event subscriber lagging, dropping update", "subscriber", id, "type", raw.Type)
		}
	}
}

// Subscribe registers a live event channel. The returned cancel func must be
// called when the subscriber goes away.
func (f *Feed) Subscribe() (<-chan storage.StoredEvent, func()) {
	f.mu.Lock()
	defer f.mu.Unlock()
	id := f.nextSub
	f.nextSub++
	ch := make(chan storage.StoredEvent, 64)
	f.subs[id] = ch
	metrics().wsClients.Inc()
	return ch, func() {
		f.mu.Lock()
		defer f.mu.Unlock()
		if _, ok := f.subs[id]; ok {
			delete(f.subs, id)
			metrics().wsClients.Dec()
		}
	}
}

// Backlog returns journaled events with sequence >= from.
func (f *Feed) Backlog(from uint64) ([]storage.StoredEvent, error) {
	if f.journal == nil {
		return nil, nil
	}
	return f.journal.EventsSince(from)
}
