package channel

import (
	"math"
	"time"

	"github.com/sdrcore/fastconv/internal/proto"
)

// BroadcastStreamID is the sentinel stream ID meaning "every channel"
// (spec §4.10: "serves broadcast polls by scheduling staggered status
// emissions").
const BroadcastStreamID = ""

// Dispatcher classifies incoming command packets by target stream ID
// and either places the decoded command into that channel's inbox, or
// — for a broadcast poll — schedules a staggered status emission
// across every registered channel (spec §4.10).
type Dispatcher struct {
	table *Table

	// StatusInterval spreads a broadcast poll's response burst over
	// several block times rather than emitting every channel's status
	// in the same instant.
	StatusInterval time.Duration

	// Emit is called once per channel to produce and send its status
	// packet; the caller owns the actual socket send.
	Emit func(ch *Channel)
}

// NewDispatcher builds a dispatcher over table, staggering broadcast
// responses by interval (default 5ms if zero).
func NewDispatcher(table *Table, interval time.Duration) *Dispatcher {
	if interval <= 0 {
		interval = 5 * time.Millisecond
	}
	return &Dispatcher{table: table, StatusInterval: interval}
}

// HandlePacket decodes one incoming TLV command packet and dispatches
// it: a named stream ID is routed (and created, if unknown) to that
// channel's inbox; the broadcast sentinel schedules a staggered poll
// across every channel currently in the table.
func (d *Dispatcher) HandlePacket(data []byte, create func(streamID string) (*Channel, error)) error {
	streamID, cmd, err := DecodeCommand(data)
	if err != nil {
		return err
	}

	if streamID == BroadcastStreamID {
		d.schedulePoll()
		return nil
	}

	ch, ok := d.table.Lookup(streamID)
	if !ok {
		if create == nil {
			return nil
		}
		ch, err = create(streamID)
		if err != nil {
			return err
		}
		if err := d.table.Create(ch); err != nil {
			return err
		}
	}
	ch.Submit(cmd)
	return nil
}

// schedulePoll spreads one status emission per channel over
// StatusInterval-spaced ticks, so a broadcast poll doesn't produce a
// simultaneous response burst from every channel.
func (d *Dispatcher) schedulePoll() {
	if d.Emit == nil {
		return
	}
	ids := d.table.StreamIDs()
	for i, id := range ids {
		ch, ok := d.table.Lookup(id)
		if !ok {
			continue
		}
		delay := time.Duration(i) * d.StatusInterval
		time.AfterFunc(delay, func() { d.Emit(ch) })
	}
}

// EncodeStatus renders a channel's current state as a STATUS-kind TLV
// packet, echoing tag and reporting the stream ID, baseband power in
// dB, the noise-density estimate and the block-drop count (spec §4.10
// "Responses: status packets ... sent ... after each command, after
// scheduled broadcast polls, and optionally at a periodic interval").
func EncodeStatus(ch *Channel, tag uint64) []byte {
	powerDB := 10 * math.Log10(math.Max(ch.BasebandPower(), 1e-20))
	e := proto.NewEncoder()
	e.PutUint(fieldTag, tag)
	e.PutString(fieldStreamID, ch.StreamID())
	e.PutFloat64(fieldStatusPowerDB, powerDB)
	e.PutFloat64(fieldStatusN0, ch.N0())
	e.PutUint(fieldStatusDrops, ch.BlockDrops())
	return e.Finish(proto.KindStatus)
}
