// Copyright (c) 2026, the fetcharr contributors.
// SPDX-License-Identifier: GPL-2.0-or-later

package domain

// Config is the unmarshaled application configuration.
type Config struct {
	Version string

	Host string `mapstructure:"host"`
	Port int    `mapstructure:"port"`

	LogLevel      string `mapstructure:"logLevel"`
	LogPath       string `mapstructure:"logPath"`
	LogMaxSize    int    `mapstructure:"logMaxSize"`
	LogMaxBackups int    `mapstructure:"logMaxBackups"`

	MetricsEnabled bool `mapstructure:"metricsEnabled"`

	Jackett     JackettConfig     `mapstructure:"jackett"`
	Resolver    ResolverConfig    `mapstructure:"resolver"`
	QBittorrent QBittorrentConfig `mapstructure:"qbittorrent"`
}

// JackettConfig points the provider adapter at a Jackett instance.
type JackettConfig struct {
	URL            string `mapstructure:"url"`
	APIKey         string `mapstructure:"apiKey"`
	TimeoutSeconds int    `mapstructure:"timeoutSeconds"`
	MaxResults     int    `mapstructure:"maxResults"`
}

// ResolverConfig bounds the redirect walker and its cache.
type ResolverConfig struct {
	MaxHops           int `mapstructure:"maxHops"`
	HopTimeoutSeconds int `mapstructure:"hopTimeoutSeconds"`
	CacheSize         int `mapstructure:"cacheSize"`
	CacheTTLMinutes   int `mapstructure:"cacheTTLMinutes"`
}

// QBittorrentConfig holds credentials for the optional download hand-off.
type QBittorrentConfig struct {
	Host          string `mapstructure:"host"`
	Username      string `mapstructure:"username"`
	Password      string `mapstructure:"password"`
	Category      string `mapstructure:"category"`
	SavePath      string `mapstructure:"savePath"`
	TLSSkipVerify bool   `mapstructure:"tlsSkipVerify"`
}
