package main

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestRootRegistersSubcommands(t *testing.T) {
	names := make(map[string]bool)
	for _, c := range rootCmd.Commands() {
		names[c.Name()] = true
	}
	for _, want := range []string{"build", "tiles", "serve"} {
		assert.True(t, names[want], "missing subcommand %q", want)
	}
}

func TestBuildFlags(t *testing.T) {
	for _, flag := range []string{
		"bucket", "prefix", "core-key", "extract-key", "simplify-m",
		"skip-geometry", "no-upload", "out-core", "out-extract", "concurrency",
	} {
		require.NotNil(t, buildCmd.Flags().Lookup(flag), "missing flag --%s", flag)
	}
}

func TestTilesFlags(t *testing.T) {
	for _, flag := range []string{
		"geojson-in", "catalog", "include", "out-dir", "layer-name",
		"min-zoom", "max-zoom", "skip-extract", "keep-temp", "no-upload",
		"upload-prefix",
	} {
		require.NotNil(t, tilesCmd.Flags().Lookup(flag), "missing flag --%s", flag)
	}
}

func TestServeFlags(t *testing.T) {
	for _, flag := range []string{"port", "tiles-dir", "catalog", "cache-size", "cache-ttl"} {
		require.NotNil(t, serveCmd.Flags().Lookup(flag), "missing flag --%s", flag)
	}
}
