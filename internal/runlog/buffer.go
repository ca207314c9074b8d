// Package runlog carries the user-visible log stream of sync executions.
//
// Each execution writes through its own Recorder. Recorders forward events to
// the orchestrator's Buffer by sending on a channel; only the Buffer's own
// goroutine touches the stored events.
package runlog

import (
	"sync"

	"github.com/dvloznov/ledger-sync/internal/domain"
)

// DefaultCapacity is the number of events the Buffer keeps.
const DefaultCapacity = 1000

// Buffer is an append-only, size-bounded log of recent events from all
// executions. When full, the oldest events are dropped.
type Buffer struct {
	in       chan domain.LogEvent
	reqs     chan recentRequest
	done     chan struct{}
	stopped  chan struct{}
	capacity int
	once     sync.Once
}

type recentRequest struct {
	limit     int
	profileID string
	reply     chan []domain.LogEvent
}

// NewBuffer starts a buffer holding at most capacity events.
func NewBuffer(capacity int) *Buffer {
	if capacity <= 0 {
		capacity = DefaultCapacity
	}
	b := &Buffer{
		in:       make(chan domain.LogEvent, 256),
		reqs:     make(chan recentRequest),
		done:     make(chan struct{}),
		stopped:  make(chan struct{}),
		capacity: capacity,
	}
	go b.loop()
	return b
}

func (b *Buffer) loop() {
	defer close(b.stopped)

	ring := make([]domain.LogEvent, 0, b.capacity)
	appendEvent := func(e domain.LogEvent) {
		if len(ring) == b.capacity {
			copy(ring, ring[1:])
			ring = ring[:len(ring)-1]
		}
		ring = append(ring, e)
	}

	for {
		select {
		case e := <-b.in:
			appendEvent(e)
		case req := <-b.reqs:
			// Drain pending events first so a reader sees everything
			// published before its request.
			for drained := false; !drained; {
				select {
				case e := <-b.in:
					appendEvent(e)
				default:
					drained = true
				}
			}
			req.reply <- filterRecent(ring, req.profileID, req.limit)
		case <-b.done:
			return
		}
	}
}

func filterRecent(ring []domain.LogEvent, profileID string, limit int) []domain.LogEvent {
	var out []domain.LogEvent
	for i := len(ring) - 1; i >= 0; i-- {
		if profileID != "" && ring[i].ProfileID != profileID {
			continue
		}
		out = append(out, ring[i])
		if limit > 0 && len(out) == limit {
			break
		}
	}
	// restore chronological order
	for i, j := 0, len(out)-1; i < j; i, j = i+1, j-1 {
		out[i], out[j] = out[j], out[i]
	}
	return out
}

// Publish sends an event to the buffer. It never blocks once the buffer is closed.
func (b *Buffer) Publish(e domain.LogEvent) {
	select {
	case b.in <- e:
	case <-b.done:
	}
}

// Recent returns up to limit of the most recent events, oldest first.
// A non-empty profileID restricts the result to that profile. limit <= 0
// returns everything retained.
func (b *Buffer) Recent(limit int, profileID string) []domain.LogEvent {
	req := recentRequest{limit: limit, profileID: profileID, reply: make(chan []domain.LogEvent, 1)}
	select {
	case b.reqs <- req:
		return <-req.reply
	case <-b.stopped:
		return nil
	}
}

// Close stops the buffer goroutine.
func (b *Buffer) Close() {
	b.once.Do(func() { close(b.done) })
	<-b.stopped
}
