// Copyright (C) 2019-2025, Lux Industries, Inc. All rights reserved.
// See the file LICENSE for licensing terms.

package config

import (
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/spf13/pflag"
	"github.com/stretchr/testify/require"
)

func TestDefaults(t *testing.T) {
	require := require.New(t)

	cfg := Default()
	require.Equal(uint16(8580), cfg.Port)
	require.Equal(int32(3), cfg.FloodingTTL)
	require.Equal(30*time.Minute, cfg.HeartbeatInterval)
	require.Equal(time.Minute, cfg.DuplicateValidity)
	require.Equal(5*time.Minute, cfg.PingInterval)
	require.Equal(32, cfg.MaxConnections)
	require.Equal(2, cfg.MiningThreads)
	require.True(cfg.LogCLI)
	require.True(cfg.LogFile)
}

func TestConfigFileAndFlagPrecedence(t *testing.T) {
	require := require.New(t)

	dataDir := t.TempDir()
	cfgFile := "" +
		"# node options\n" +
		"port=9001\n" +
		"flooding-ttl = 5\n" +
		"heartbeat=60000\n" +
		"connect=10.0.0.1:8580\n" +
		"connect=10.0.0.2:8580\n" +
		"\n"
	require.NoError(os.WriteFile(filepath.Join(dataDir, ConfigFileName), []byte(cfgFile), 0o600))

	fs := pflag.NewFlagSet("test", pflag.ContinueOnError)
	AddFlags(fs)
	require.NoError(fs.Parse([]string{
		"--data-dir", dataDir,
		"--port", "9002",
		"--threads-mining", "4",
	}))

	cfg, err := FromFlags(fs)
	require.NoError(err)

	// flags beat the file, the file beats the defaults
	require.Equal(dataDir, cfg.DataDir)
	require.Equal(uint16(9002), cfg.Port)
	require.Equal(int32(5), cfg.FloodingTTL)
	require.Equal(time.Minute, cfg.HeartbeatInterval)
	require.Equal(4, cfg.MiningThreads)
	require.Equal([]string{"10.0.0.1:8580", "10.0.0.2:8580"}, cfg.Connect)
	require.Equal(5*time.Minute, cfg.PingInterval)
}

func TestConfigFileRejectsUnknownKeys(t *testing.T) {
	require := require.New(t)

	dataDir := t.TempDir()
	require.NoError(os.WriteFile(
		filepath.Join(dataDir, ConfigFileName),
		[]byte("no-such-option=1\n"),
		0o600,
	))

	fs := pflag.NewFlagSet("test", pflag.ContinueOnError)
	AddFlags(fs)
	require.NoError(fs.Parse([]string{"--data-dir", dataDir}))

	_, err := FromFlags(fs)
	require.Error(err)
}

func TestMissingConfigFileIsFine(t *testing.T) {
	require := require.New(t)

	fs := pflag.NewFlagSet("test", pflag.ContinueOnError)
	AddFlags(fs)
	require.NoError(fs.Parse([]string{"--data-dir", t.TempDir()}))

	cfg, err := FromFlags(fs)
	require.NoError(err)
	require.Equal(Default().Port, cfg.Port)
}
