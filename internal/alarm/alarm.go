// Package alarm provides named, persisted alarms.
//
// At most one alarm exists per name: creating an alarm replaces any alarm of
// the same name. Alarms are stored in the local store, so a CLI process can
// clear or replace the alarm a running daemon has armed. The daemon notices
// through its periodic sync and by re-reading the record whenever a timer fires.
package alarm

import (
	"errors"
	"fmt"
	"sync/atomic"
	"time"

	"reviewbadge/internal/storage"
)

// ErrNotFound is returned by Get when no alarm has that name.
var ErrNotFound = storage.ErrNotFound

// Info describes when an alarm should fire.
//
// With Period == 0 the alarm is one-shot: it fires at When, or after Delay if
// When is zero. With Period > 0 it repeats every Period; the first fire comes
// after Delay, which defaults to Period.
type Info struct {
	When   time.Time
	Delay  time.Duration
	Period time.Duration
}

// Alarm is a scheduled alarm as seen by callers and carried by alarm.fired events.
type Alarm struct {
	Name          string
	ScheduledTime time.Time
	Period        time.Duration
	Generation    int64
}

// Repeating reports whether the alarm has a period.
func (a Alarm) Repeating() bool { return a.Period > 0 }

func (a Alarm) String() string {
	if a.Repeating() {
		return fmt.Sprintf("%s every %s (next %s)", a.Name, a.Period, a.ScheduledTime.Format(time.RFC3339))
	}
	return fmt.Sprintf("%s at %s", a.Name, a.ScheduledTime.Format(time.RFC3339))
}

func fromRecord(r storage.AlarmRecord) Alarm {
	return Alarm{Name: r.Name, ScheduledTime: r.ScheduledAt, Period: r.Period, Generation: r.Generation}
}

func (a Alarm) record() storage.AlarmRecord {
	return storage.AlarmRecord{Name: a.Name, ScheduledAt: a.ScheduledTime, Period: a.Period, Generation: a.Generation}
}

// resolve turns Info into the first fire time.
func resolve(info Info, now time.Time) (time.Time, time.Duration, error) {
	switch {
	case info.Period < 0 || info.Delay < 0:
		return time.Time{}, 0, errors.New("alarm: negative period or delay")
	case info.Period > 0:
		d := info.Delay
		if d == 0 {
			d = info.Period
		}
		return now.Add(d), info.Period, nil
	case !info.When.IsZero():
		return info.When, 0, nil
	case info.Delay > 0:
		return now.Add(info.Delay), 0, nil
	default:
		return time.Time{}, 0, errors.New("alarm: one of when, delay or period is required")
	}
}

var lastGeneration atomic.Int64

// newGeneration returns a value unique within the process and, being clock
// based, practically unique across processes sharing the store.
func newGeneration() int64 {
	for {
		prev := lastGeneration.Load()
		next := time.Now().UnixNano()
		if next <= prev {
			next = prev + 1
		}
		if lastGeneration.CompareAndSwap(prev, next) {
			return next
		}
	}
}
