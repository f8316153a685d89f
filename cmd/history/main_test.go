package main

import (
	"bytes"
	"os"
	"path/filepath"
	"strings"
	"testing"

	"github.com/stretchr/testify/require"

	"github.com/joshmarinacci/hiero-consensus-node-sub002/internal/sim"
)

func TestQuorum(t *testing.T) {
	out := new(bytes.Buffer)

	err := newApp(out).Run([]string{"history", "--log-level", "warn", "quorum",
		"--node", "1=40", "--node", "2=30", "--node", "3=20", "--node", "4=10"})
	require.NoError(t, err)

	lines := strings.Split(strings.TrimSpace(out.String()), "\n")
	require.Len(t, lines, 5)
	require.Equal(t, "total weight: 100", lines[0])
	require.Equal(t, "strong minority: [1] weight 40", lines[1])
	require.Equal(t, "majority: [1 3] weight 60", lines[2])
	require.Equal(t, "super-majority: [1 2] weight 70", lines[3])
	require.Equal(t, "sub strong minority: [2] weight 30", lines[4])
}

func TestQuorum_NoPartition(t *testing.T) {
	out := new(bytes.Buffer)

	err := newApp(out).Run([]string{"history", "quorum", "--node", "1=100", "--node", "2=100"})
	require.NoError(t, err)
	require.Contains(t, out.String(), "strong minority: strong minority: no valid partition found")
}

func TestQuorum_MalformedNode(t *testing.T) {
	err := newApp(new(bytes.Buffer)).Run([]string{"history", "quorum", "--node", "1"})
	require.EqualError(t, err, "invalid node flag: malformed node '1'")

	err = newApp(new(bytes.Buffer)).Run([]string{"history", "quorum", "--node", "a=1"})
	require.Error(t, err)
	require.Contains(t, err.Error(), "invalid node flag: malformed node id 'a': ")
}

func TestSimulateAndInspect(t *testing.T) {
	dir := t.TempDir()
	out := new(bytes.Buffer)

	err := newApp(out).Run([]string{"history", "--log-level", "warn", "--hash", "sha256",
		"simulate", "--nodes", "4", "--transitions", "2", "--dir", dir})
	require.NoError(t, err)

	lines := strings.Split(strings.TrimSpace(out.String()), "\n")
	require.Len(t, lines, 3)
	require.True(t, strings.HasPrefix(lines[0], "bootstrap [1 2 3 4]: proof "))
	require.Contains(t, lines[0], "kind list")
	require.True(t, strings.HasPrefix(lines[1], "transition 1 [1 2 3 5]: proof "))
	require.Contains(t, lines[1], "kind ledger")
	require.True(t, strings.HasPrefix(lines[2], "transition 2 [1 2 3 6]: proof "))

	out.Reset()

	err = newApp(out).Run([]string{"history", "inspect", "--db", sim.NodePath(dir, 1)})
	require.NoError(t, err)

	lines = strings.Split(strings.TrimSpace(out.String()), "\n")
	require.Len(t, lines, 4)
	require.True(t, strings.HasPrefix(lines[0], "ledger id: "))
	require.NotEqual(t, "ledger id: unknown", lines[0])
	require.True(t, strings.HasPrefix(lines[1], "construction 1: finished with proof "))
	require.True(t, strings.HasPrefix(lines[3], "construction 3 (active): finished with proof "))
}

func TestInspect_MissingDatabase(t *testing.T) {
	path := filepath.Join(t.TempDir(), "missing.db")

	err := newApp(new(bytes.Buffer)).Run([]string{"history", "inspect", "--db", path})
	require.Error(t, err)
	require.Contains(t, err.Error(), "couldn't find database: ")

	_, err = os.Stat(path)
	require.True(t, os.IsNotExist(err))
}

func TestSetup_Failures(t *testing.T) {
	err := newApp(new(bytes.Buffer)).Run([]string{"history", "--hash", "md5", "quorum", "--node", "1=1"})
	require.EqualError(t, err, "invalid hash flag: unknown hash algorithm 'md5'")

	err = newApp(new(bytes.Buffer)).Run([]string{"history", "--log-level", "loud", "quorum", "--node", "1=1"})
	require.Error(t, err)
	require.Contains(t, err.Error(), "couldn't set log level: ")

	path := filepath.Join(t.TempDir(), "config.yml")
	require.NoError(t, os.WriteFile(path, []byte("executorSize: -1\n"), 0600))

	err = newApp(new(bytes.Buffer)).Run([]string{"history", "--config", path, "quorum", "--node", "1=1"})
	require.Error(t, err)
	require.Contains(t, err.Error(), "couldn't load config: ")
}

func TestPrometheus(t *testing.T) {
	out := new(bytes.Buffer)

	err := newApp(out).Run([]string{"history", "--prometheus", "127.0.0.1:0",
		"quorum", "--node", "1=1"})
	require.NoError(t, err)
}
