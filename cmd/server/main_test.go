package main

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestRootCmd_InMemoryFlag(t *testing.T) {
	tests := []struct {
		name    string
		args    []string
		command string
	}{
		{"root", []string{"--in-memory"}, "scan-hub"},
		{"serve", []string{"serve", "--in-memory"}, "serve"},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			flagInMemory = false
			t.Cleanup(func() { flagInMemory = false })

			cmd, rest, err := newRootCmd().Find(tt.args)
			require.NoError(t, err)
			assert.Equal(t, tt.command, cmd.Name())
			require.NoError(t, cmd.ParseFlags(rest))
			assert.True(t, flagInMemory)
		})
	}
}

func TestRootCmd_MigrateRejectsInMemory(t *testing.T) {
	cmd, rest, err := newRootCmd().Find([]string{"migrate", "--in-memory"})
	require.NoError(t, err)
	assert.Error(t, cmd.ParseFlags(rest))
}
