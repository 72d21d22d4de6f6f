package main

import (
	"strings"
	"time"

	"github.com/knadh/koanf/parsers/yaml"
	"github.com/knadh/koanf/providers/env"
	"github.com/knadh/koanf/providers/file"
	"github.com/knadh/koanf/v2"

	"github.com/adwski/p2p-lobby/lobby"
)

const envPrefix = "LOBBY_"

// appConfig is the demo peer configuration. Sources merge in order
// defaults < yaml file < environment, with CLI flags applied on top by
// the caller.
type appConfig struct {
	Relay    string      `koanf:"relay"`
	PeerID   string      `koanf:"peer_id"`
	LogLevel string      `koanf:"log_level"`
	Lobby    lobbyConfig `koanf:"lobby"`
}

type lobbyConfig struct {
	Capture          bool          `koanf:"capture"`
	MaxCachedTables  int           `koanf:"max_cached_tables"`
	MaxTablesPerPeer int           `koanf:"max_tables_per_peer"`
	BeaconInterval   time.Duration `koanf:"beacon_interval"`
	JoinReplyTimeout time.Duration `koanf:"join_reply_timeout"`
}

func defaultConfig() appConfig {
	s := lobby.DefaultSettings()
	return appConfig{
		Relay:    "ws://127.0.0.1:8888",
		LogLevel: "info",
		Lobby: lobbyConfig{
			Capture:          s.CaptureTables,
			MaxCachedTables:  s.MaxCachedTables,
			MaxTablesPerPeer: s.MaxTablesPerPeer,
			BeaconInterval:   s.BeaconInterval,
			JoinReplyTimeout: s.JoinReplyTimeout,
		},
	}
}

// loadConfig merges the optional yaml file at path and LOBBY_*
// environment variables over the defaults.
func loadConfig(path string) (appConfig, error) {
	cfg := defaultConfig()

	k := koanf.New(".")
	if path != "" {
		if err := k.Load(file.Provider(path), yaml.Parser()); err != nil {
			return cfg, err
		}
	}
	// LOBBY_LOBBY_BEACON_INTERVAL -> lobby.beacon_interval
	transform := func(s string) string {
		s = strings.ToLower(strings.TrimPrefix(s, envPrefix))
		if cut, ok := strings.CutPrefix(s, "lobby_"); ok {
			return "lobby." + cut
		}
		return s
	}
	if err := k.Load(env.Provider(envPrefix, ".", transform), nil); err != nil {
		return cfg, err
	}
	if err := k.Unmarshal("", &cfg); err != nil {
		return cfg, err
	}
	return cfg, nil
}

func (c appConfig) settings() lobby.Settings {
	return lobby.Settings{
		CaptureTables:    c.Lobby.Capture,
		MaxCachedTables:  c.Lobby.MaxCachedTables,
		MaxTablesPerPeer: c.Lobby.MaxTablesPerPeer,
		BeaconInterval:   c.Lobby.BeaconInterval,
		JoinReplyTimeout: c.Lobby.JoinReplyTimeout,
	}
}
