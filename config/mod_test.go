package config

import (
	"io/ioutil"
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/stretchr/testify/require"
)

func TestTss_GracePeriod(t *testing.T) {
	tss := Tss{
		BootstrapGracePeriod:  time.Minute,
		TransitionGracePeriod: time.Second,
	}

	require.Equal(t, time.Minute, tss.GracePeriod(true))
	require.Equal(t, time.Second, tss.GracePeriod(false))
}

func TestParse(t *testing.T) {
	data := []byte(`
tss:
  transitionGracePeriod: 10s
executorSize: 4
logLevel: debug
`)

	cfg, err := Parse(data)
	require.NoError(t, err)
	require.Equal(t, defaultBootstrapGracePeriod, cfg.Tss.BootstrapGracePeriod)
	require.Equal(t, 10*time.Second, cfg.Tss.TransitionGracePeriod)
	require.Equal(t, 4, cfg.ExecutorSize)
	require.Equal(t, defaultDatabasePath, cfg.DatabasePath)
	require.Equal(t, "debug", cfg.LogLevel)

	_, err = Parse([]byte("unknown: 1"))
	require.Error(t, err)
	require.Contains(t, err.Error(), "couldn't unmarshal config: ")

	_, err = Parse([]byte("executorSize: -1"))
	require.EqualError(t, err, "invalid config: negative executor size: -1")

	_, err = Parse([]byte("databasePath: ''"))
	require.EqualError(t, err, "invalid config: missing database path")
}

func TestConfig_Validate(t *testing.T) {
	cfg := Default()
	require.NoError(t, cfg.Validate())

	cfg.Tss.BootstrapGracePeriod = -time.Second
	require.EqualError(t, cfg.Validate(), "negative bootstrap grace period: -1s")

	cfg = Default()
	cfg.Tss.TransitionGracePeriod = -time.Second
	require.EqualError(t, cfg.Validate(), "negative transition grace period: -1s")

	cfg = Default()
	cfg.VerificationCacheSize = -1
	require.EqualError(t, cfg.Validate(), "negative verification cache size: -1")
}

func TestConfig_MarshalRoundTrip(t *testing.T) {
	cfg := Default()
	cfg.ExecutorSize = 2

	data, err := cfg.Marshal()
	require.NoError(t, err)

	parsed, err := Parse(data)
	require.NoError(t, err)
	require.Equal(t, cfg, parsed)
}

func TestLoad(t *testing.T) {
	dir, err := ioutil.TempDir(os.TempDir(), "history-config")
	require.NoError(t, err)

	defer os.RemoveAll(dir)

	path := filepath.Join(dir, "config.yml")
	err = ioutil.WriteFile(path, []byte("databasePath: /tmp/node.db"), os.ModePerm)
	require.NoError(t, err)

	cfg, err := Load(path)
	require.NoError(t, err)
	require.Equal(t, "/tmp/node.db", cfg.DatabasePath)

	_, err = Load(filepath.Join(dir, "missing.yml"))
	require.Error(t, err)
	require.Contains(t, err.Error(), "couldn't read config file: ")
}
