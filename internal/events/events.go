// Package events implements the fuzzer's closed event enumeration and
// synchronous dispatcher (spec.md §6.6, §5). Every cross-component
// notification — execution bracketing, corpus additions, crashes,
// log lines — flows through here instead of direct calls, so
// statistics, logging, and the CLI's progress reporting can all
// observe the same stream without the core depending on them.
package events

import "ilfuzz/internal/il"

// Name is the closed set of event kinds a Dispatcher carries.
type Name string

const (
	Initialized           Name = "Initialized"
	Shutdown               Name = "Shutdown"
	ShutdownComplete       Name = "ShutdownComplete"
	PreExecute              Name = "PreExecute"
	PostExecute             Name = "PostExecute"
	ProgramGenerated        Name = "ProgramGenerated"
	ValidProgramFound       Name = "ValidProgramFound"
	InvalidProgramFound     Name = "InvalidProgramFound"
	TimeOutFound            Name = "TimeOutFound"
	InterestingProgramFound Name = "InterestingProgramFound"
	CrashFound              Name = "CrashFound"
	Log                     Name = "Log"
)

// CrashBehaviour classifies a crash's reproducibility across replays.
type CrashBehaviour string

const (
	Deterministic CrashBehaviour = "deterministic"
	Flaky         CrashBehaviour = "flaky"
)

// LogLevel mirrors the categorized logger's levels for Log event
// payloads raised by components that don't write directly to a
// logging.Logger (e.g. the engine reporting through the event bus).
type LogLevel string

const (
	LevelDebug LogLevel = "debug"
	LevelInfo  LogLevel = "info"
	LevelWarn  LogLevel = "warn"
	LevelError LogLevel = "error"
)

// InterestingProgramPayload is InterestingProgramFound's payload.
type InterestingProgramPayload struct {
	Program il.Program
	Origin  string
}

// CrashPayload is CrashFound's payload.
type CrashPayload struct {
	Program   il.Program
	Behaviour CrashBehaviour
	IsUnique  bool
	Origin    string
}

// LogPayload is Log's payload.
type LogPayload struct {
	Origin  string
	Level   LogLevel
	Label   string
	Message string
}

// Listener receives one event's payload. The payload's concrete type
// depends on the event Name: il.Program for PreExecute/
// ProgramGenerated/ValidProgramFound/InvalidProgramFound/TimeOutFound,
// execution.Execution for PostExecute, *InterestingProgramPayload,
// *CrashPayload, *LogPayload, the reason string for Shutdown/
// ShutdownComplete, or nil for Initialized.
type Listener func(payload any)

// Dispatcher is the synchronous, re-entrancy-tolerant event bus
// (spec.md §5): "listeners run to completion before the dispatcher
// returns", and a listener may itself call Dispatch to raise further
// events without deadlocking.
type Dispatcher struct {
	listeners map[Name][]Listener
}

// New returns an empty Dispatcher.
func New() *Dispatcher {
	return &Dispatcher{listeners: make(map[Name][]Listener)}
}

// On registers listener for name. Registration order is dispatch
// order (spec.md §5's ordering guarantee).
func (d *Dispatcher) On(name Name, listener Listener) {
	d.listeners[name] = append(d.listeners[name], listener)
}

// Dispatch invokes every listener registered for name, in registration
// order, passing payload unchanged. Dispatch may be called reentrantly
// from within a listener: because listeners are read from the map
// fresh at each call (not held across a blocking operation) and this
// package is used exclusively from the scheduler's single task stream,
// no locking is required — spec.md's concurrency model guarantees
// Dispatch is never called from two goroutines at once.
func (d *Dispatcher) Dispatch(name Name, payload any) {
	for _, listener := range d.listeners[name] {
		listener(payload)
	}
}
