// Package scheduler implements the Scheduler/Orchestrator (spec.md
// §4.7): the single logical task stream that sequences one fuzzing
// iteration and all of its downstream effects (execution, evaluation,
// the determinism check, minimization, corpus insertion, crash
// reporting) in the prescribed order.
package scheduler

import (
	"context"
	"math/rand"
	"time"

	"golang.org/x/sync/errgroup"

	"ilfuzz/internal/coverage"
	"ilfuzz/internal/engine"
	"ilfuzz/internal/events"
	"ilfuzz/internal/execution"
	"ilfuzz/internal/il"
	"ilfuzz/internal/lifter"
	"ilfuzz/internal/logging"
	"ilfuzz/internal/minimizer"
)

// Executor is the slice of the Runner the scheduler drives directly.
type Executor interface {
	Run(ctx context.Context, script string, timeout time.Duration) (execution.Execution, error)
}

// Evaluator is the slice of the Coverage Evaluator the scheduler
// drives directly (PreExecute/PostExecute hooks are the scheduler's
// responsibility per spec.md §4.4).
type Evaluator interface {
	PreExecute()
	Evaluate(exec execution.Execution) (coverage.ProgramAspects, bool)
	EvaluateCrash(exec execution.Execution) (coverage.ProgramAspects, bool)
	ComputeAspectIntersection(program il.Program, aspects coverage.ProgramAspects) (coverage.ProgramAspects, bool)
}

// Corpus is the slice of the Corpus the scheduler drives directly.
type Corpus interface {
	engine.CorpusView
	Add(program il.Program, aspects coverage.ProgramAspects) bool
}

// Lifter renders a candidate Program to the source text the Executor
// runs.
type Lifter interface {
	Lift(p il.Program, opts lifter.Options) (string, error)
}

// Config bounds the scheduler's per-iteration behavior (spec.md §4.7).
type Config struct {
	ExecutionTimeout time.Duration
	// DeterminismMinAttempts/MaxAttempts bound the determinism check:
	// stop at the first run that leaves the non-empty aspect subset
	// unchanged once at least MinAttempts runs have been made (an
	// earlier convergence does not stop it), give up after MaxAttempts.
	DeterminismMinAttempts int
	DeterminismMaxAttempts int
	// InitialGenerationRounds is N in spec.md §4.7's "substitute the
	// engine with a purely generative one until N=100 consecutive
	// iterations fail to produce a new interesting sample".
	InitialGenerationRounds int
}

// Scheduler sequences fuzzing iterations on a single logical task
// stream (spec.md §5: single-threaded cooperative). The zero value is
// not usable; construct with New.
type Scheduler struct {
	engine    *engine.Engine
	corpus    Corpus
	runner    Executor
	evaluator Evaluator
	minimizer *minimizer.Minimizer
	lift      Lifter
	dispatcher *events.Dispatcher
	cfg       Config
	rng       *rand.Rand

	generativePhase      bool
	consecutiveNoNewFind int

	shutdown bool
}

// New constructs a Scheduler wired to its collaborators. Callers own
// the lifecycle of everything passed in (runner.Shutdown, etc.).
func New(eng *engine.Engine, corp Corpus, runner Executor, evaluator Evaluator, min *minimizer.Minimizer, lift Lifter, dispatcher *events.Dispatcher, cfg Config) *Scheduler {
	return &Scheduler{
		engine:          eng,
		corpus:          corp,
		runner:          runner,
		evaluator:       evaluator,
		minimizer:       min,
		lift:            lift,
		dispatcher:      dispatcher,
		cfg:             cfg,
		rng:             rand.New(rand.NewSource(1)),
		generativePhase: true,
	}
}

// RunIteration sequences one fuzzing iteration per spec.md §4.7's
// numbered steps. Every long-running sub-task it starts (determinism
// replay, minimization) joins a per-iteration errgroup; RunIteration
// does not return until that group is empty, satisfying "the scheduler
// joins minimization's completion before the next iteration starts."
func (s *Scheduler) RunIteration(ctx context.Context) error {
	if s.shutdown {
		return nil
	}

	candidate, err := s.produceCandidate()
	if err != nil {
		logging.Get(logging.CategoryScheduler).Debug("candidate production discarded: %v", err)
		return nil
	}

	script, err := s.lift.Lift(candidate, lifter.Options{})
	if err != nil {
		return nil
	}

	s.dispatcher.Dispatch(events.PreExecute, candidate)
	s.evaluator.PreExecute()
	exec, err := s.runner.Run(ctx, script, s.cfg.ExecutionTimeout)
	s.dispatcher.Dispatch(events.PostExecute, exec)
	if err != nil {
		return nil
	}

	g, gctx := errgroup.WithContext(ctx)

	switch exec.Outcome {
	case execution.Succeeded:
		s.handleSuccess(gctx, g, candidate, exec)
	case execution.Crashed:
		s.handleCrash(gctx, g, candidate)
	case execution.TimedOut:
		s.dispatcher.Dispatch(events.TimeOutFound, candidate)
	default:
		s.dispatcher.Dispatch(events.InvalidProgramFound, candidate)
	}

	return g.Wait()
}

// produceCandidate runs the engine in whichever mode spec.md §4.7 step
// 1 calls for: generative while the initial-corpus-generation phase is
// active (or the corpus is simply empty), mutational otherwise.
func (s *Scheduler) produceCandidate() (il.Program, error) {
	if s.generativePhase || s.corpus.IsEmpty() {
		p, err := s.engine.GenerateProgram(s.rng)
		if err == nil {
			s.dispatcher.Dispatch(events.ProgramGenerated, p)
		}
		return p, err
	}
	return s.engine.FuzzOne(s.rng, s.corpus)
}

// handleSuccess implements spec.md §4.7 step 3: the determinism check,
// then minimize-and-insert, run inside the iteration's dispatch group.
func (s *Scheduler) handleSuccess(ctx context.Context, g *errgroup.Group, candidate il.Program, exec execution.Execution) {
	aspects, ok := s.evaluator.Evaluate(exec)
	if !ok || aspects.IsEmpty() {
		s.consecutiveNoNewFind++
		s.maybeEndInitialPhase()
		return
	}

	g.Go(func() error {
		stable, ok := s.checkDeterminism(ctx, candidate, aspects)
		if !ok {
			s.consecutiveNoNewFind++
			s.maybeEndInitialPhase()
			return nil
		}
		s.consecutiveNoNewFind = 0
		s.maybeEndInitialPhase()

		s.dispatcher.Dispatch(events.ValidProgramFound, candidate)
		s.dispatcher.Dispatch(events.InterestingProgramFound, &events.InterestingProgramPayload{Program: candidate, Origin: "fuzzOne"})

		minimized := s.minimizer.Minimize(ctx, candidate, stable)
		s.corpus.Add(minimized, stable)
		return nil
	})
}

// checkDeterminism re-executes candidate up to MaxAttempts times,
// intersecting aspects each time, and reports the stable subset from
// the first run that leaves the non-empty intersection unchanged once
// at least MinAttempts runs have been made (spec.md §4.7 step 3). ok is
// false if convergence never happens.
func (s *Scheduler) checkDeterminism(ctx context.Context, candidate il.Program, aspects coverage.ProgramAspects) (coverage.ProgramAspects, bool) {
	script, err := s.lift.Lift(candidate, lifter.Options{})
	if err != nil {
		return coverage.ProgramAspects{}, false
	}

	current := aspects
	for attempt := 0; attempt < s.cfg.DeterminismMaxAttempts; attempt++ {
		s.evaluator.PreExecute()
		exec, err := s.runner.Run(ctx, script, s.cfg.ExecutionTimeout)
		if err != nil || exec.Outcome != execution.Succeeded {
			return coverage.ProgramAspects{}, false
		}
		next, ok := s.evaluator.ComputeAspectIntersection(candidate, current)
		if !ok || next.IsEmpty() {
			return coverage.ProgramAspects{}, false
		}
		didConverge := next.Equal(current)
		current = next
		if didConverge && attempt+1 >= s.cfg.DeterminismMinAttempts {
			return current, true
		}
	}
	return coverage.ProgramAspects{}, false
}

// handleCrash implements spec.md §4.7 step 4: minimize, re-execute,
// re-evaluate as a crash, then dispatch CrashFound.
func (s *Scheduler) handleCrash(ctx context.Context, g *errgroup.Group, candidate il.Program) {
	g.Go(func() error {
		minimized := s.minimizer.MinimizeCrash(ctx, candidate)

		script, err := s.lift.Lift(minimized, lifter.Options{})
		if err != nil {
			return nil
		}
		s.evaluator.PreExecute()
		exec, err := s.runner.Run(ctx, script, s.cfg.ExecutionTimeout)
		if err != nil {
			return nil
		}

		behaviour := events.Flaky
		isUnique := false
		if exec.Outcome == execution.Crashed {
			behaviour = events.Deterministic
			if _, ok := s.evaluator.EvaluateCrash(exec); ok {
				isUnique = true
			}
		}
		s.dispatcher.Dispatch(events.CrashFound, &events.CrashPayload{
			Program:   minimized,
			Behaviour: behaviour,
			IsUnique:  isUnique,
			Origin:    "fuzzOne",
		})
		return nil
	})
}

// maybeEndInitialPhase implements spec.md §4.7's initial-corpus-
// generation rule: once InitialGenerationRounds consecutive iterations
// fail to produce a new interesting sample, fall back to the
// configured (generative-or-mutational) engine selection in
// produceCandidate.
func (s *Scheduler) maybeEndInitialPhase() {
	if s.generativePhase && s.consecutiveNoNewFind >= s.cfg.InitialGenerationRounds {
		s.generativePhase = false
	}
}

// Shutdown implements spec.md §4.7/§5's shutdown(reason): stops future
// iterations from starting and dispatches Shutdown/ShutdownComplete.
// In-flight work started by the current RunIteration is allowed to
// complete (RunIteration's own errgroup.Wait already blocks on it).
func (s *Scheduler) Shutdown(reason string) {
	s.shutdown = true
	s.dispatcher.Dispatch(events.Shutdown, reason)
	s.dispatcher.Dispatch(events.ShutdownComplete, reason)
}
