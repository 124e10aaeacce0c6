package capture

import "time"

// Marker decides which rows carry a time marker. The first row is always
// marked; after that one row is marked each time a boundary is crossed.
type Marker struct {
	interval time.Duration
	align    bool
	next     time.Time
	started  bool
}

// NewMarker returns a marker firing every interval. With align set the
// boundaries fall on wall-clock multiples of interval. A zero interval
// disables markers.
func NewMarker(interval time.Duration, align bool) *Marker {
	return &Marker{interval: interval, align: align}
}

// Due reports whether the row committed at now should be marked
func (m *Marker) Due(now time.Time) bool {
	if m.interval <= 0 {
		return false
	}
	if !m.started {
		m.started = true
		base := now
		if m.align {
			base = now.Truncate(m.interval)
		}
		m.next = base.Add(m.interval)
		return true
	}
	if now.Before(m.next) {
		return false
	}
	// Skip boundaries missed during a stall without drifting the grid
	for !now.Before(m.next) {
		m.next = m.next.Add(m.interval)
	}
	return true
}
