package main

import (
	"context"
	"fmt"
	"os"
	"os/signal"
	"syscall"

	"github.com/google/uuid"
	"github.com/spf13/cobra"

	"ilfuzz/internal/config"
	"ilfuzz/internal/corpus"
	"ilfuzz/internal/coverage"
	"ilfuzz/internal/engine"
	"ilfuzz/internal/events"
	"ilfuzz/internal/lifter"
	"ilfuzz/internal/minimizer"
	"ilfuzz/internal/reprl"
	"ilfuzz/internal/scheduler"
)

var (
	iterations int
	targetOverride string
)

var runCmd = &cobra.Command{
	Use:   "run",
	Short: "run the fuzzer against the configured target",
	RunE:  runFuzzer,
}

func init() {
	runCmd.Flags().IntVar(&iterations, "iterations", 0, "number of iterations to run (0 = until interrupted)")
	runCmd.Flags().StringVar(&targetOverride, "target", "", "override target.binary_path from the config file")
}

func runFuzzer(cmd *cobra.Command, args []string) error {
	cfg, err := config.Load(configPath)
	if err != nil {
		return err
	}
	if targetOverride != "" {
		cfg.Target.BinaryPath = targetOverride
	}
	if cfg.Logging.WorkDir == "." {
		cfg.Logging.WorkDir = workDir
	}
	if err := cfg.Validate(); err != nil {
		return err
	}

	ctx, cancel := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer cancel()

	shmID := fmt.Sprintf("ilfuzz-%d-%s", os.Getpid(), uuid.NewString())
	region, err := coverage.NewRegion(shmID, cfg.Target.NumEdges)
	if err != nil {
		return fmt.Errorf("allocate coverage region: %w", err)
	}
	defer region.Close()
	evaluator := coverage.NewEvaluator(region)

	runner := reprl.New(reprl.Options{
		BinaryPath:            cfg.Target.BinaryPath,
		Args:                  cfg.Target.Args,
		MaxExecsBeforeRespawn: cfg.Target.MaxExecsBeforeRespawn,
		ShmID:                 shmID,
	})
	if err := runner.Initialize(ctx); err != nil {
		return fmt.Errorf("start target: %w", err)
	}
	defer runner.Shutdown()

	lift := lifter.Stub{}
	eng := engine.New(cfg.Engine.MaxProgramSize, cfg.Engine.MinMutationsPerSample, cfg.Engine.MaxMutationsPerSample, cfg.Engine.CodeGenWeight)
	corp := corpus.New(cfg.Corpus.MaxSize, cfg.Corpus.MinMutationsPerProgram)
	min := minimizer.New(runner, evaluator, lift, cfg.Engine.MinimizationLimit, cfg.Target.ExecutionTimeout)
	dispatcher := events.New()

	stats := newProgressReporter(cmd.OutOrStdout())
	stats.attach(dispatcher)

	if cfg.Corpus.ImportPath != "" {
		if n, err := importCorpusFile(corp, cfg.Corpus.ImportPath); err != nil {
			fmt.Fprintf(cmd.ErrOrStderr(), "warning: corpus import failed: %v\n", err)
		} else {
			fmt.Fprintf(cmd.OutOrStdout(), "imported %d programs from %s (%d skipped)\n", corp.Size(), cfg.Corpus.ImportPath, n)
		}
	}

	sched := scheduler.New(eng, corp, runner, evaluator, min, lift, dispatcher, scheduler.Config{
		ExecutionTimeout:        cfg.Target.ExecutionTimeout,
		DeterminismMinAttempts:  cfg.Determinism.MinAttempts,
		DeterminismMaxAttempts:  cfg.Determinism.MaxAttempts,
		InitialGenerationRounds: cfg.Engine.NumInitialSamples,
	})

	for i := 0; iterations == 0 || i < iterations; i++ {
		select {
		case <-ctx.Done():
			sched.Shutdown("interrupted")
			return exportOnExit(cmd, corp, cfg)
		default:
		}
		if err := sched.RunIteration(ctx); err != nil {
			fmt.Fprintf(cmd.ErrOrStderr(), "iteration %d: %v\n", i, err)
		}
	}
	sched.Shutdown("iteration limit reached")
	return exportOnExit(cmd, corp, cfg)
}

func exportOnExit(cmd *cobra.Command, corp *corpus.Corpus, cfg *config.Config) error {
	if cfg.Corpus.ExportPath == "" {
		return nil
	}
	if err := os.WriteFile(cfg.Corpus.ExportPath, corp.ExportState(), 0o644); err != nil {
		return fmt.Errorf("export corpus: %w", err)
	}
	fmt.Fprintf(cmd.OutOrStdout(), "exported %d programs to %s\n", corp.Size(), cfg.Corpus.ExportPath)
	return nil
}
