// Package main implements the ilfuzz CLI — the command-line front end
// over the fuzzer core (internal/engine, internal/corpus,
// internal/scheduler, ...). The entry point and root command live here;
// each subcommand gets its own cmd_*.go file.
//
// # File Index
//
//   - main.go        - entry point, rootCmd, global flags, PersistentPreRunE/PostRun
//   - cmd_run.go     - runCmd, wires Engine/Runner/Evaluator/Minimizer/Corpus/Scheduler
//   - cmd_corpus.go  - corpusCmd, import/export/stat subcommands
//   - cmd_version.go - versionCmd, build metadata
package main

import (
	"fmt"
	"os"

	"github.com/spf13/cobra"
	"go.uber.org/zap"
	"go.uber.org/zap/zapcore"

	"ilfuzz/internal/logging"
)

var (
	verbose    bool
	configPath string
	workDir    string

	logger *zap.Logger
)

var rootCmd = &cobra.Command{
	Use:   "ilfuzz",
	Short: "ilfuzz - a coverage-guided mutational fuzzer for dynamic-language interpreters",
	Long: `ilfuzz mutates and generates small intermediate-language programs,
lifts them to the target language, runs them against an instrumented
interpreter over a persistent REPRL child process, and keeps anything
that discovers new coverage or crashes the target.`,
	PersistentPreRunE: func(cmd *cobra.Command, args []string) error {
		zcfg := zap.NewProductionConfig()
		if verbose {
			zcfg.Level = zap.NewAtomicLevelAt(zapcore.DebugLevel)
		}
		var err error
		logger, err = zcfg.Build()
		if err != nil {
			return fmt.Errorf("initialize logger: %w", err)
		}

		if err := logging.Initialize(workDir, verbose); err != nil {
			fmt.Fprintf(os.Stderr, "warning: failed to initialize file logging: %v\n", err)
		}
		return nil
	},
	PersistentPostRun: func(cmd *cobra.Command, args []string) {
		if logger != nil {
			_ = logger.Sync()
		}
		logging.CloseAll()
	},
}

func init() {
	rootCmd.PersistentFlags().BoolVarP(&verbose, "verbose", "v", false, "enable debug logging (zap + per-category file logs)")
	rootCmd.PersistentFlags().StringVarP(&configPath, "config", "c", "ilfuzz.yaml", "path to the YAML run configuration")
	rootCmd.PersistentFlags().StringVarP(&workDir, "work-dir", "w", ".", "directory for per-category debug logs")

	rootCmd.AddCommand(runCmd, corpusCmd, versionCmd)
}

func main() {
	if err := rootCmd.Execute(); err != nil {
		fmt.Fprintln(os.Stderr, err)
		os.Exit(1)
	}
}
