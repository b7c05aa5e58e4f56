package registry

import (
	"sort"
	"time"
)

// Timing is the accumulated dispatch cost attributed to one responsible name.
// Total is exclusive: time spent in nested dispatches is charged to the
// nested name, not the enclosing one.
type Timing struct {
	Name        string
	Invocations int64
	Total       time.Duration
}

type timerFrame struct {
	name    string
	resumed time.Time
}

// timingTracker charges elapsed time to the innermost running timer. Starting a
// nested timer pauses its parent; stopping it resumes the parent.
type timingTracker struct {
	now   func() time.Time
	stats map[string]*Timing
	stack []timerFrame
}

func newTimingTracker(now func() time.Time) *timingTracker {
	return &timingTracker{
		now:   now,
		stats: make(map[string]*Timing),
	}
}

func (t *timingTracker) start(name string) {
	now := t.now()
	if n := len(t.stack); n > 0 {
		t.charge(&t.stack[n-1], now)
	}
	t.stack = append(t.stack, timerFrame{name: name, resumed: now})
	t.entry(name).Invocations++
}

func (t *timingTracker) stop() {
	n := len(t.stack)
	if n == 0 {
		return
	}
	now := t.now()
	t.charge(&t.stack[n-1], now)
	t.stack = t.stack[:n-1]
	if n > 1 {
		t.stack[n-2].resumed = now
	}
}

func (t *timingTracker) charge(frame *timerFrame, now time.Time) {
	t.entry(frame.name).Total += now.Sub(frame.resumed)
	frame.resumed = now
}

func (t *timingTracker) entry(name string) *Timing {
	s, ok := t.stats[name]
	if !ok {
		s = &Timing{Name: name}
		t.stats[name] = s
	}
	return s
}

// snapshot returns copies sorted by total time descending, then name.
func (t *timingTracker) snapshot() []Timing {
	out := make([]Timing, 0, len(t.stats))
	for _, s := range t.stats {
		out = append(out, *s)
	}
	sort.Slice(out, func(i, j int) bool {
		if out[i].Total != out[j].Total {
			return out[i].Total > out[j].Total
		}
		return out[i].Name < out[j].Name
	})
	return out
}

func (t *timingTracker) reset() {
	t.stats = make(map[string]*Timing)
	t.stack = t.stack[:0]
}
