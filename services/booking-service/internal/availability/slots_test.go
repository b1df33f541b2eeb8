package availability

import (
	"testing"
	"time"
)

func TestLayoutSkipsTakenIntervals(t *testing.T) {
	day := time.Date(2026, 3, 2, 0, 0, 0, 0, time.UTC)
	plan := Plan{
		Start:    day.Add(9 * time.Hour),
		End:      day.Add(10 * time.Hour),
		Duration: 15 * time.Minute,
		Step:     15 * time.Minute,
	}
	taken := []Interval{{Start: day.Add(9*time.Hour + 15*time.Minute), End: day.Add(9*time.Hour + 45*time.Minute)}}

	got := Layout(plan, taken, day)
	if len(got) != 2 {
		t.Fatalf("expected 2 intervals, got %d", len(got))
	}
	if !got[0].Start.Equal(day.Add(9*time.Hour)) || !got[0].End.Equal(day.Add(9*time.Hour+15*time.Minute)) {
		t.Fatalf("unexpected first interval %+v", got[0])
	}
	if !got[1].Start.Equal(day.Add(9*time.Hour + 45*time.Minute)) {
		t.Fatalf("expected second interval at 09:45, got %s", got[1].Start.Format(time.RFC3339))
	}
}

func TestLayoutSkipsPast(t *testing.T) {
	day := time.Date(2026, 3, 2, 0, 0, 0, 0, time.UTC)
	plan := Plan{Start: day.Add(9 * time.Hour), End: day.Add(10 * time.Hour), Duration: 15 * time.Minute, Step: 15 * time.Minute}

	got := Layout(plan, nil, day.Add(9*time.Hour+31*time.Minute))
	if len(got) != 1 || !got[0].Start.Equal(day.Add(9*time.Hour+45*time.Minute)) {
		t.Fatalf("expected only 09:45, got %+v", got)
	}
}

func TestLayoutRejectsDegeneratePlans(t *testing.T) {
	day := time.Date(2026, 3, 2, 9, 0, 0, 0, time.UTC)
	cases := []Plan{
		{Start: day, End: day.Add(time.Hour), Duration: 0, Step: time.Minute},
		{Start: day, End: day, Duration: time.Minute, Step: time.Minute},
		{Start: day, End: day.Add(30 * time.Minute), Duration: time.Hour, Step: time.Hour},
	}
	for i, p := range cases {
		if got := Layout(p, nil, time.Time{}); got != nil {
			t.Fatalf("case %d: expected nil, got %+v", i, got)
		}
	}
}
