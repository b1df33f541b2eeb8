package availability

import "time"

type Interval struct {
	Start time.Time
	End   time.Time
}

func (i Interval) overlaps(o Interval) bool {
	// Half-open: [a,b) overlaps [c,d) iff a < d && c < b.
	return i.Start.Before(o.End) && o.Start.Before(i.End)
}

// Plan lays candidate slots of length Duration every Step across [Start, End).
type Plan struct {
	Start    time.Time
	End      time.Time
	Duration time.Duration
	Step     time.Duration
}

// Layout returns the plan's intervals that start at or after now and do not overlap any taken
// interval. Intervals must be in one location.
func Layout(p Plan, taken []Interval, now time.Time) []Interval {
	if p.Duration <= 0 || p.Step <= 0 {
		return nil
	}
	if !p.End.After(p.Start) || p.Start.Add(p.Duration).After(p.End) {
		return nil
	}

	var out []Interval
	for t := p.Start; !t.Add(p.Duration).After(p.End); t = t.Add(p.Step) {
		if t.Before(now) {
			continue
		}
		candidate := Interval{Start: t, End: t.Add(p.Duration)}
		if !overlapsAny(candidate, taken) {
			out = append(out, candidate)
		}
	}
	return out
}

func overlapsAny(c Interval, taken []Interval) bool {
	for _, b := range taken {
		if c.overlaps(b) {
			return true
		}
	}
	return false
}
