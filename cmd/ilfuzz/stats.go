package main

import (
	"fmt"
	"io"
	"sync/atomic"

	"ilfuzz/internal/events"
)

// progressReporter listens on the event dispatcher and prints a summary
// line periodically, plus one line immediately for every crash found —
// the CLI's stand-in for Fuzzilli's console UI.
type progressReporter struct {
	out io.Writer

	executed    atomic.Int64
	valid       atomic.Int64
	interesting atomic.Int64
	crashes     atomic.Int64
	timeouts    atomic.Int64
}

func newProgressReporter(out io.Writer) *progressReporter {
	return &progressReporter{out: out}
}

func (p *progressReporter) attach(d *events.Dispatcher) {
	d.On(events.PostExecute, func(any) {
		n := p.executed.Add(1)
		if n%100 == 0 {
			p.printSummary(n)
		}
	})
	d.On(events.ValidProgramFound, func(any) { p.valid.Add(1) })
	d.On(events.InterestingProgramFound, func(any) { p.interesting.Add(1) })
	d.On(events.TimeOutFound, func(any) { p.timeouts.Add(1) })
	d.On(events.CrashFound, func(payload any) {
		n := p.crashes.Add(1)
		crash, _ := payload.(*events.CrashPayload)
		if crash != nil {
			fmt.Fprintf(p.out, "crash #%d found (behaviour=%s, unique=%v)\n", n, crash.Behaviour, crash.IsUnique)
		}
	})
}

func (p *progressReporter) printSummary(executed int64) {
	fmt.Fprintf(p.out, "executed=%d valid=%d interesting=%d crashes=%d timeouts=%d\n",
		executed, p.valid.Load(), p.interesting.Load(), p.crashes.Load(), p.timeouts.Load())
}
