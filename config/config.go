// Copyright (C) 2019-2025, Lux Industries, Inc. All rights reserved.
// See the file LICENSE for licensing terms.

// Package config resolves the node options from defaults, the
// <dataDir>/config.cfg file and command-line flags, in that order of
// precedence.
package config

import (
	"bufio"
	"fmt"
	"os"
	"path/filepath"
	"strconv"
	"strings"
	"time"

	"github.com/spf13/pflag"
)

// Flag and config-file keys.
const (
	DataDirKey           = "data-dir"
	PortKey              = "port"
	FloodingTTLKey       = "flooding-ttl"
	HeartbeatKey         = "heartbeat"
	DuplicateValidityKey = "duplicate-validity"
	PingIntervalKey      = "ping-interval"
	MaxConnectionsKey    = "max-connections"
	MiningThreadsKey     = "threads-mining"
	LogCLIKey            = "log-cli"
	LogFileKey           = "log-file"
	ConnectKey           = "connect"
)

// ConfigFileName is looked up inside the data directory.
const ConfigFileName = "config.cfg"

// Config carries every node option.
type Config struct {
	DataDir string

	Port              uint16
	FloodingTTL       int32
	HeartbeatInterval time.Duration
	DuplicateValidity time.Duration
	PingInterval      time.Duration
	MaxConnections    int
	MiningThreads     int
	LogCLI            bool
	LogFile           bool
	// Connect lists host:port peers to dial at startup
	Connect []string
}

// Default returns the stock configuration.
func Default() Config {
	home, _ := os.UserHomeDir()
	return Config{
		DataDir:           filepath.Join(home, ".bitvote"),
		Port:              8580,
		FloodingTTL:       3,
		HeartbeatInterval: 30 * time.Minute,
		DuplicateValidity: 60 * time.Second,
		PingInterval:      5 * time.Minute,
		MaxConnections:    32,
		MiningThreads:     2,
		LogCLI:            true,
		LogFile:           true,
	}
}

// AddFlags declares every option on the flag set. Intervals are given in
// milliseconds, mirroring the config file.
func AddFlags(fs *pflag.FlagSet) {
	def := Default()
	fs.String(DataDirKey, def.DataDir, "Data directory of this node")
	fs.Uint16(PortKey, def.Port, "TCP port to listen on")
	fs.Int32(FloodingTTLKey, def.FloodingTTL, "Hops a flooded message travels")
	fs.Int64(HeartbeatKey, def.HeartbeatInterval.Milliseconds(), "Heartbeat interval in ms")
	fs.Int64(DuplicateValidityKey, def.DuplicateValidity.Milliseconds(), "Duplicate suppression window in ms")
	fs.Int64(PingIntervalKey, def.PingInterval.Milliseconds(), "Ping interval in ms")
	fs.Int(MaxConnectionsKey, def.MaxConnections, "Maximum number of peer connections")
	fs.Int(MiningThreadsKey, def.MiningThreads, "Number of mining threads")
	fs.Bool(LogCLIKey, def.LogCLI, "Log to the console")
	fs.Bool(LogFileKey, def.LogFile, "Log-file switch; parsed and stored, the node writes no log file")
	fs.StringSlice(ConnectKey, nil, "host:port peers to connect to at startup")
}

// FromFlags resolves the configuration: defaults, then the config file in
// the data directory, then explicitly set flags.
func FromFlags(fs *pflag.FlagSet) (Config, error) {
	cfg := Default()

	dataDir, err := fs.GetString(DataDirKey)
	if err != nil {
		return Config{}, err
	}
	if dataDir != "" {
		cfg.DataDir = dataDir
	}

	if err := cfg.loadFile(filepath.Join(cfg.DataDir, ConfigFileName)); err != nil {
		return Config{}, err
	}
	if err := cfg.applyFlags(fs); err != nil {
		return Config{}, err
	}
	return cfg, nil
}

// loadFile reads key=value options; missing file is fine.
func (c *Config) loadFile(path string) error {
	f, err := os.Open(path)
	if os.IsNotExist(err) {
		return nil
	}
	if err != nil {
		return err
	}
	defer f.Close()

	scanner := bufio.NewScanner(f)
	line := 0
	for scanner.Scan() {
		line++
		text := strings.TrimSpace(scanner.Text())
		if text == "" || strings.HasPrefix(text, "#") {
			continue
		}
		key, value, ok := strings.Cut(text, "=")
		if !ok {
			return fmt.Errorf("%s:%d: expected key=value", path, line)
		}
		if err := c.set(strings.TrimSpace(key), strings.TrimSpace(value)); err != nil {
			return fmt.Errorf("%s:%d: %w", path, line, err)
		}
	}
	return scanner.Err()
}

func (c *Config) set(key, value string) error {
	switch key {
	case PortKey:
		port, err := strconv.ParseUint(value, 10, 16)
		if err != nil {
			return err
		}
		c.Port = uint16(port)
	case FloodingTTLKey:
		ttl, err := strconv.ParseInt(value, 10, 32)
		if err != nil {
			return err
		}
		c.FloodingTTL = int32(ttl)
	case HeartbeatKey:
		return setMillis(&c.HeartbeatInterval, value)
	case DuplicateValidityKey:
		return setMillis(&c.DuplicateValidity, value)
	case PingIntervalKey:
		return setMillis(&c.PingInterval, value)
	case MaxConnectionsKey:
		n, err := strconv.Atoi(value)
		if err != nil {
			return err
		}
		c.MaxConnections = n
	case MiningThreadsKey:
		n, err := strconv.Atoi(value)
		if err != nil {
			return err
		}
		c.MiningThreads = n
	case LogCLIKey:
		b, err := strconv.ParseBool(value)
		if err != nil {
			return err
		}
		c.LogCLI = b
	case LogFileKey:
		b, err := strconv.ParseBool(value)
		if err != nil {
			return err
		}
		c.LogFile = b
	case ConnectKey:
		c.Connect = append(c.Connect, value)
	default:
		return fmt.Errorf("unknown option %q", key)
	}
	return nil
}

func setMillis(d *time.Duration, value string) error {
	ms, err := strconv.ParseInt(value, 10, 64)
	if err != nil {
		return err
	}
	*d = time.Duration(ms) * time.Millisecond
	return nil
}

// applyFlags overrides with every flag the user set explicitly.
func (c *Config) applyFlags(fs *pflag.FlagSet) error {
	var err error
	fs.Visit(func(f *pflag.Flag) {
		if err != nil {
			return
		}
		switch f.Name {
		case PortKey:
			var port uint16
			if port, err = fs.GetUint16(PortKey); err == nil {
				c.Port = port
			}
		case FloodingTTLKey:
			var ttl int32
			if ttl, err = fs.GetInt32(FloodingTTLKey); err == nil {
				c.FloodingTTL = ttl
			}
		case HeartbeatKey:
			err = flagMillis(fs, HeartbeatKey, &c.HeartbeatInterval)
		case DuplicateValidityKey:
			err = flagMillis(fs, DuplicateValidityKey, &c.DuplicateValidity)
		case PingIntervalKey:
			err = flagMillis(fs, PingIntervalKey, &c.PingInterval)
		case MaxConnectionsKey:
			var n int
			if n, err = fs.GetInt(MaxConnectionsKey); err == nil {
				c.MaxConnections = n
			}
		case MiningThreadsKey:
			var n int
			if n, err = fs.GetInt(MiningThreadsKey); err == nil {
				c.MiningThreads = n
			}
		case LogCLIKey:
			var b bool
			if b, err = fs.GetBool(LogCLIKey); err == nil {
				c.LogCLI = b
			}
		case LogFileKey:
			var b bool
			if b, err = fs.GetBool(LogFileKey); err == nil {
				c.LogFile = b
			}
		case ConnectKey:
			var peers []string
			if peers, err = fs.GetStringSlice(ConnectKey); err == nil {
				c.Connect = peers
			}
		}
	})
	return err
}

func flagMillis(fs *pflag.FlagSet, key string, d *time.Duration) error {
	ms, err := fs.GetInt64(key)
	if err != nil {
		return err
	}
	*d = time.Duration(ms) * time.Millisecond
	return nil
}
