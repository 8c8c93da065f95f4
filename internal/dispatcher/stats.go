package dispatcher

import "snaptrigger/internal/serializer"

// Stats is a point-in-time view of dispatch counters and lane state.
type Stats struct {
	Outcomes  map[string]int64
	Lanes     []serializer.LaneState
	Discarded int64
}

// Stats returns outcome counters since construction and the current lanes.
func (d *Dispatcher) Stats() Stats {
	s := Stats{Outcomes: make(map[string]int64, numOutcomes)}
	for o := range numOutcomes {
		s.Outcomes[o.String()] = d.counts[o].Load()
	}
	if ser := d.serializer.Load(); ser != nil {
		s.Lanes = ser.Snapshot()
		s.Discarded = ser.Discarded()
	}
	return s
}

// Count returns how many triggers ended with outcome o.
func (d *Dispatcher) Count(o Outcome) int64 {
	if o < 0 || o >= numOutcomes {
		return 0
	}
	return d.counts[o].Load()
}
