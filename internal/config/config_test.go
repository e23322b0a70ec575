package config

import (
	"os"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/require"
)

func TestLoadOverlay(t *testing.T) {
	dir := t.TempDir()
	path := filepath.Join(dir, "rudpfile.toml")
	body := `
listen_addr = "0.0.0.0:9000"
loss_rate = 0.05
loss_seed = 42
log_level = "debug"
`
	require.NoError(t, os.WriteFile(path, []byte(body), 0644))

	f, err := Load(path)
	require.NoError(t, err)
	require.Equal(t, "0.0.0.0:9000", StringOr(f.ListenAddr, ""))
	require.InDelta(t, 0.05, Float64Or(f.LossRate, 0), 1e-9)
	require.Equal(t, int64(42), Int64Or(f.LossSeed, 0))
	require.Equal(t, "debug", StringOr(f.LogLevel, ""))
}

func TestFallbacksWhenFieldAbsent(t *testing.T) {
	dir := t.TempDir()
	path := filepath.Join(dir, "empty.toml")
	require.NoError(t, os.WriteFile(path, []byte(""), 0644))

	f, err := Load(path)
	require.NoError(t, err)
	require.Equal(t, "127.0.0.1:9000", StringOr(f.ListenAddr, "127.0.0.1:9000"))
	require.Equal(t, int64(0), Int64Or(f.LossSeed, 0))
}
