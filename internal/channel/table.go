package channel

import (
	"fmt"
	"sync"

	"github.com/sdrcore/fastconv/internal/coreerr"
)

// DefaultMaxChannels is the channel table's default bound (spec §5:
// "a global table (fixed max size, default 2000)").
const DefaultMaxChannels = 2000

// Table is the process-wide channel table: a bounded, stream-ID-keyed
// set of channels, protected by a single mutex held only across
// creation and lookup (spec §5 "Channel table: ... protected by a
// global mutex for creation/lookup only").
type Table struct {
	mu      sync.Mutex
	max     int
	byID    map[string]*Channel
}

// NewTable builds a table bounded at max entries; max<=0 uses
// DefaultMaxChannels.
func NewTable(max int) *Table {
	if max <= 0 {
		max = DefaultMaxChannels
	}
	return &Table{max: max, byID: make(map[string]*Channel)}
}

// Create registers a new channel, failing with resource-exhaustion if
// the table is full or invalid-config if the stream ID is already
// taken (spec §7: "duplicate stream ID" is invalid-config; "channel
// table full" is resource-exhaustion).
func (t *Table) Create(ch *Channel) error {
	t.mu.Lock()
	defer t.mu.Unlock()
	if _, exists := t.byID[ch.StreamID()]; exists {
		return fmt.Errorf("channel: duplicate stream id %q: %w", ch.StreamID(), coreerr.ErrInvalidConfig)
	}
	if len(t.byID) >= t.max {
		return fmt.Errorf("channel: table full at %d entries: %w", t.max, coreerr.ErrResourceExhaustion)
	}
	t.byID[ch.StreamID()] = ch
	return nil
}

// Lookup returns the channel for streamID, if any.
func (t *Table) Lookup(streamID string) (*Channel, bool) {
	t.mu.Lock()
	defer t.mu.Unlock()
	ch, ok := t.byID[streamID]
	return ch, ok
}

// Destroy removes a channel from the table and requests its loop
// terminate (spec §5 "Closing a channel: set its terminate, broadcast
// its condition, wait for the thread to exit, then destroy its filter
// and free its resources" — the wait-for-exit and filter teardown are
// the caller's responsibility once Terminate is requested, since only
// the owning goroutine can safely release the filter).
func (t *Table) Destroy(streamID string) {
	t.mu.Lock()
	ch, ok := t.byID[streamID]
	delete(t.byID, streamID)
	t.mu.Unlock()
	if ok {
		ch.Terminate()
	}
}

// Len reports the current channel count.
func (t *Table) Len() int {
	t.mu.Lock()
	defer t.mu.Unlock()
	return len(t.byID)
}

// StreamIDs returns a snapshot of every registered stream ID, e.g. for
// a broadcast status poll.
func (t *Table) StreamIDs() []string {
	t.mu.Lock()
	defer t.mu.Unlock()
	ids := make([]string, 0, len(t.byID))
	for id := range t.byID {
		ids = append(ids, id)
	}
	return ids
}
