package main

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestRootCommand_HasSubcommands(t *testing.T) {
	cmds := rootCmd.Commands()

	names := make(map[string]bool)
	for _, c := range cmds {
		names[c.Name()] = true
	}

	expected := []string{"ingest", "serve", "records", "sync", "runs"}
	for _, name := range expected {
		assert.True(t, names[name], "expected subcommand %q not found", name)
	}
}

func TestRootCommand_Metadata(t *testing.T) {
	assert.Equal(t, "intake-cli", rootCmd.Use)
	assert.NotEmpty(t, rootCmd.Short)
	assert.NotEmpty(t, rootCmd.Long)
}

func TestIngestCommand_Flags(t *testing.T) {
	require.NotNil(t, ingestCmd.Flags().Lookup("text"))
	require.NotNil(t, ingestCmd.Flags().Lookup("auto"))
	require.NotNil(t, ingestCmd.Flags().Lookup("force"))
}

func TestServeCommand_Flags(t *testing.T) {
	require.NotNil(t, serveCmd.Flags().Lookup("port"))
	require.NotNil(t, serveCmd.Flags().Lookup("sync"))
}

func TestSyncCommand_Subcommands(t *testing.T) {
	names := make(map[string]bool)
	for _, c := range syncCmd.Commands() {
		names[c.Name()] = true
	}
	assert.True(t, names["pull"])
	assert.True(t, names["push"])
}
