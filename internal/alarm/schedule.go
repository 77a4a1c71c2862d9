package alarm

import "time"

// periodicSchedule is a cron.Schedule anchored at first and repeating every
// period. Slots missed while nothing was running are skipped, not replayed.
type periodicSchedule struct {
	first time.Time
	every time.Duration
}

func (p periodicSchedule) Next(t time.Time) time.Time {
	if t.Before(p.first) {
		return p.first
	}
	n := t.Sub(p.first)/p.every + 1
	return p.first.Add(n * p.every)
}
