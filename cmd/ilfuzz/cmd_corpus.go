package main

import (
	"encoding/binary"
	"fmt"
	"os"

	"github.com/spf13/cobra"

	"ilfuzz/internal/config"
	"ilfuzz/internal/corpus"
)

var corpusCmd = &cobra.Command{
	Use:   "corpus",
	Short: "inspect and move corpus snapshot files",
}

var corpusImportCmd = &cobra.Command{
	Use:   "import <snapshot-file>",
	Short: "load a corpus snapshot and report how many programs it holds",
	Args:  cobra.ExactArgs(1),
	RunE: func(cmd *cobra.Command, args []string) error {
		cfg, err := config.Load(configPath)
		if err != nil {
			return err
		}
		c := corpus.New(cfg.Corpus.MaxSize, cfg.Corpus.MinMutationsPerProgram)
		n, err := importCorpusFile(c, args[0])
		if err != nil {
			return err
		}
		fmt.Fprintf(cmd.OutOrStdout(), "loaded %d programs (%d skipped as malformed/duplicate)\n", c.Size(), n)
		return nil
	},
}

var corpusExportCmd = &cobra.Command{
	Use:   "export <output-file> <input-snapshot>...",
	Short: "merge one or more corpus snapshots (deduplicating) into one output file",
	Args:  cobra.MinimumNArgs(2),
	RunE: func(cmd *cobra.Command, args []string) error {
		cfg, err := config.Load(configPath)
		if err != nil {
			return err
		}
		c := corpus.New(cfg.Corpus.MaxSize, cfg.Corpus.MinMutationsPerProgram)
		var total int
		var count uint32
		var body []byte
		for _, in := range args[1:] {
			tmp := corpus.New(cfg.Corpus.MaxSize, cfg.Corpus.MinMutationsPerProgram)
			n, err := importCorpusFile(tmp, in)
			if err != nil {
				return err
			}
			total += n
			snap := tmp.ExportState()
			count += binary.LittleEndian.Uint32(snap)
			body = append(body, snap[4:]...)
		}
		n, err := c.ImportState(append(binary.LittleEndian.AppendUint32(nil, count), body...))
		if err != nil {
			return err
		}
		total += n
		if err := os.WriteFile(args[0], c.ExportState(), 0o644); err != nil {
			return fmt.Errorf("write %s: %w", args[0], err)
		}
		fmt.Fprintf(cmd.OutOrStdout(), "merged %d programs into %s (%d skipped as malformed/duplicate)\n", c.Size(), args[0], total)
		return nil
	},
}

var corpusStatCmd = &cobra.Command{
	Use:   "stat <snapshot-file>",
	Short: "print how many programs a corpus snapshot file holds",
	Args:  cobra.ExactArgs(1),
	RunE: func(cmd *cobra.Command, args []string) error {
		cfg, err := config.Load(configPath)
		if err != nil {
			return err
		}
		c := corpus.New(cfg.Corpus.MaxSize, cfg.Corpus.MinMutationsPerProgram)
		skipped, err := importCorpusFile(c, args[0])
		if err != nil {
			return err
		}
		fmt.Fprintf(cmd.OutOrStdout(), "programs=%d skipped=%d\n", c.Size(), skipped)
		return nil
	},
}

func init() {
	corpusCmd.AddCommand(corpusImportCmd, corpusExportCmd, corpusStatCmd)
}

// importCorpusFile reads path and loads it into c, returning the number
// of entries ImportState skipped as malformed or duplicate.
func importCorpusFile(c *corpus.Corpus, path string) (int, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return 0, fmt.Errorf("read %s: %w", path, err)
	}
	return c.ImportState(data)
}
