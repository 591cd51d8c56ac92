package main

import (
	"testing"

	"github.com/stretchr/testify/require"
)

func TestRootCommandRegistersSubcommands(t *testing.T) {
	names := make(map[string]bool)
	for _, c := range rootCmd.Commands() {
		names[c.Name()] = true
	}
	require.True(t, names["run"])
	require.True(t, names["corpus"])
	require.True(t, names["version"])
}

func TestCorpusCommandRegistersSubcommands(t *testing.T) {
	names := make(map[string]bool)
	for _, c := range corpusCmd.Commands() {
		names[c.Name()] = true
	}
	require.True(t, names["import"])
	require.True(t, names["export"])
	require.True(t, names["stat"])
}
