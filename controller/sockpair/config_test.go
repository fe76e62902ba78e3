package main

import (
	"flag"
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/stretchr/testify/require"
)

func TestLoadConfig(t *testing.T) {
	path := filepath.Join(t.TempDir(), "pair.yaml")
	data := []byte("role: client\naddress: 10.0.0.2:9000\naccept_timeout: 5s\nmax_frame_bytes: 4096\n")
	require.NoError(t, os.WriteFile(path, data, 0644))

	cfg, err := LoadConfig(path)
	require.NoError(t, err)
	require.Equal(t, "client", cfg.Role)
	require.Equal(t, "10.0.0.2:9000", cfg.Address)
	require.Equal(t, 5*time.Second, cfg.AcceptTimeout)
	require.Equal(t, 4096, cfg.MaxFrameBytes)
	require.Equal(t, DefaultConfig().Hash, cfg.Hash)

	flags := flag.NewFlagSet("test", flag.ContinueOnError)
	cfg.AddFlags(flags)
	require.NoError(t, flags.Parse([]string{"-role", "server", "-ids64"}))
	require.Equal(t, "server", cfg.Role)
	require.True(t, cfg.Use64BitIDs)

	s := cfg.Communicator()
	require.Equal(t, 4096, s.MaxFrameBytes)
	require.True(t, s.Use64BitIDs)
}

func TestLoadConfigMissing(t *testing.T) {
	_, err := LoadConfig(filepath.Join(t.TempDir(), "missing.yaml"))
	require.Error(t, err)
}
