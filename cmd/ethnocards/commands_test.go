package main

import (
	"bytes"
	"io"
	"log/slog"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"EthnoCards/internal/config"
)

func TestSplitNames(t *testing.T) {
	assert.Equal(t, []string{"Withania somnifera", "Rhodiola rosea"}, splitNames(" Withania somnifera, ,Rhodiola rosea "))
	assert.Nil(t, splitNames(""))
}

func TestCommandTree(t *testing.T) {
	root := newRootCmd(config.Config{}, slog.New(slog.NewTextHandler(io.Discard, nil)))

	for _, path := range [][]string{
		{"enrich"},
		{"post"},
		{"serve"},
		{"candidates", "add"},
		{"candidates", "reconcile"},
		{"candidates", "release-stale"},
		{"cards", "set-cooldown"},
		{"cards", "count"},
	} {
		cmd, _, err := root.Find(path)
		require.NoError(t, err, path)
		assert.Equal(t, path[len(path)-1], cmd.Name())
	}

	reconcile, _, err := root.Find([]string{"candidates", "reconcile"})
	require.NoError(t, err)
	assert.NotNil(t, reconcile.Flags().Lookup("apply"))
}

func TestPrintJSONKeepsURLs(t *testing.T) {
	var buf bytes.Buffer
	require.NoError(t, printJSON(&buf, map[string]string{"url": "https://x.org/?a=1&b=2"}))
	assert.Contains(t, buf.String(), "https://x.org/?a=1&b=2")
}
