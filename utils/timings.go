package utils

import (
	"fmt"
	"io"
	"strings"
	"time"
)

// TimerSink receives named, possibly nested, timing spans. Components call
// Start and Stop in matched pairs.
type TimerSink interface {
	Start(name string)
	Stop(name string)
}

type NopTimers struct{}

func (NopTimers) Start(string) {}
func (NopTimers) Stop(string)  {}

type Timer struct {
	Name    string
	Depth   int // Nesting depth when first started
	Calls   int
	Elapsed time.Duration
	started time.Time
	running bool
}

// Timings accumulates wall time per span name. It is not safe for
// concurrent use, each rank keeps its own.
type Timings struct {
	timers map[string]*Timer
	order  []string
	depth  int
}

func NewTimings() *Timings {
	return &Timings{
		timers: make(map[string]*Timer),
	}
}

func (tm *Timings) Start(name string) {
	t, ok := tm.timers[name]
	if !ok {
		t = &Timer{Name: name, Depth: tm.depth}
		tm.timers[name] = t
		tm.order = append(tm.order, name)
	}
	if t.running {
		return
	}
	t.running = true
	t.started = time.Now()
	tm.depth++
}

func (tm *Timings) Stop(name string) {
	t, ok := tm.timers[name]
	if !ok || !t.running {
		return
	}
	t.Elapsed += time.Since(t.started)
	t.Calls++
	t.running = false
	tm.depth--
}

// Get returns the timer for name, nil if it was never started.
func (tm *Timings) Get(name string) *Timer {
	return tm.timers[name]
}

// Running lists the spans started and not yet stopped.
func (tm *Timings) Running() (names []string) {
	for _, name := range tm.order {
		if tm.timers[name].running {
			names = append(names, name)
		}
	}
	return
}

// Names lists span names in order of first use.
func (tm *Timings) Names() []string {
	return append([]string(nil), tm.order...)
}

func (tm *Timings) Print(w io.Writer) {
	for _, name := range tm.order {
		t := tm.timers[name]
		fmt.Fprintf(w, "%-32s %6d calls %12.6f s\n",
			strings.Repeat("  ", t.Depth)+t.Name, t.Calls, t.Elapsed.Seconds())
	}
}
