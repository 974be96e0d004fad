package main

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/kevin07696/payment-gateway/internal/queue"
)

func TestParseState(t *testing.T) {
	state, err := parseState(" Failed ")
	require.NoError(t, err)
	assert.Equal(t, queue.StateFailed, state)

	_, err = parseState("done")
	assert.Error(t, err)
}

func TestTruncate(t *testing.T) {
	assert.Equal(t, "short", truncate("short", 10))
	assert.Equal(t, "abcdefg...", truncate("abcdefghijklmnop", 10))
}

func TestRootCommands(t *testing.T) {
	jobs := jobsCmd()
	names := make([]string, 0)
	for _, c := range jobs.Commands() {
		names = append(names, c.Name())
	}
	assert.ElementsMatch(t, []string{"list", "get"}, names)

	list := jobsListCmd()
	state, err := list.Flags().GetString("state")
	require.NoError(t, err)
	assert.Equal(t, "failed", state)
}
