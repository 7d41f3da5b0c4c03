package recurrence

import (
	"time"
)

// MaxInstances caps how many concrete windows one recurring pattern may
// expand into, bounding worst-case work per request.
const MaxInstances = 365

// Pattern describes a simple weekly recurrence: the window repeats on the
// given weekdays until (and including) the Until date.
type Pattern struct {
	Weekdays []time.Weekday `json:"weekdays"`
	Until    time.Time      `json:"until"`
}

// Instance is one concrete start/end window produced by expansion.
type Instance struct {
	Start time.Time `json:"start"`
	End   time.Time `json:"end"`
}

// Expander turns a pattern plus a seed window into concrete instances.
// Implementations must honor maxCount.
type Expander interface {
	Expand(p Pattern, start, end time.Time, maxCount int) []Instance
}

// Weekly is the default Expander: day-by-day walk from the seed window's
// date to the pattern's end date, emitting an instance on every allowed
// weekday with the seed window's time-of-day carried over.
type Weekly struct{}

// Expand implements Expander.
func (Weekly) Expand(p Pattern, start, end time.Time, maxCount int) []Instance {
	if maxCount <= 0 || maxCount > MaxInstances {
		maxCount = MaxInstances
	}
	if !end.After(start) || p.Until.Before(start) {
		return nil
	}

	allowed := make(map[time.Weekday]bool, len(p.Weekdays))
	for _, wd := range p.Weekdays {
		allowed[wd] = true
	}
	if len(allowed) == 0 {
		return nil
	}

	duration := end.Sub(start)
	loc := start.Location()
	last := dateOf(p.Until, loc)

	var instances []Instance
	for day := dateOf(start, loc); !day.After(last); day = day.AddDate(0, 0, 1) {
		if !allowed[day.Weekday()] {
			continue
		}
		instanceStart := time.Date(day.Year(), day.Month(), day.Day(),
			start.Hour(), start.Minute(), start.Second(), 0, loc)
		instances = append(instances, Instance{Start: instanceStart, End: instanceStart.Add(duration)})
		if len(instances) >= maxCount {
			break
		}
	}
	return instances
}

func dateOf(t time.Time, loc *time.Location) time.Time {
	return time.Date(t.Year(), t.Month(), t.Day(), 0, 0, 0, 0, loc)
}
