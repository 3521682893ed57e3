package fastconv

import "github.com/sdrcore/fastconv/internal/iir"

// notchEntry is one entry in the ordered notch list (spec §3 "Notch
// filter list"): a target bin index and an adaptive spur tracker.
type notchEntry struct {
	bin   int
	notch *iir.Notch
}

// NotchList is the ordered, DC-terminated sequence of adaptive spur
// notches applied to every forward-FFT output before any channel sees
// it. The sentinel (bin index 0, the DC entry) always exists and is
// never removed — it anchors the list exactly as spec §3 describes
// ("List terminates with a bin-index-zero entry (the DC entry)").
type NotchList struct {
	entries []notchEntry
}

// NewNotchList builds an empty list, pre-seeded with the DC sentinel.
func NewNotchList(adaptRate float64) *NotchList {
	return &NotchList{entries: []notchEntry{{bin: 0, notch: iir.NewNotch(adaptRate)}}}
}

// Add appends a tracked bin ahead of the DC sentinel.
func (l *NotchList) Add(bin int, adaptRate float64) {
	entry := notchEntry{bin: bin, notch: iir.NewNotch(adaptRate)}
	l.entries = append(l.entries[:len(l.entries)-1], entry, l.entries[len(l.entries)-1])
}

// Apply updates every tracked bin's spur estimate from snapshot and
// subtracts the tracked estimate from that bin, in place.
func (l *NotchList) Apply(snapshot []complex128) {
	for _, e := range l.entries {
		if e.bin < 0 || e.bin >= len(snapshot) {
			continue
		}
		e.notch.Update(snapshot[e.bin])
		snapshot[e.bin] -= e.notch.Estimate()
	}
}
