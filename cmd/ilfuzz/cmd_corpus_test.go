package main

import (
	"os"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/require"

	"ilfuzz/internal/builder"
	"ilfuzz/internal/corpus"
	"ilfuzz/internal/coverage"
	"ilfuzz/internal/il"
)

func TestImportCorpusFileRoundTrips(t *testing.T) {
	b := builder.New()
	_, err := b.Emit(il.Operation{Op: il.LoadInteger, IntValue: 7}, nil)
	require.NoError(t, err)
	program, err := b.Finalize()
	require.NoError(t, err)

	src := corpus.New(10, 1)
	require.True(t, src.Add(program, coverage.NewProgramAspects([]uint32{1})))

	path := filepath.Join(t.TempDir(), "snapshot.bin")
	require.NoError(t, os.WriteFile(path, src.ExportState(), 0o644))

	dst := corpus.New(10, 1)
	skipped, err := importCorpusFile(dst, path)
	require.NoError(t, err)
	require.Equal(t, 0, skipped)
	require.Equal(t, 1, dst.Size())
}

func TestImportCorpusFileMissingPath(t *testing.T) {
	dst := corpus.New(10, 1)
	_, err := importCorpusFile(dst, filepath.Join(t.TempDir(), "missing.bin"))
	require.Error(t, err)
}
