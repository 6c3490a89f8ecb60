package config

import "strings"

// Config is the root of config.yaml.
type Config struct {
	App       AppConfig      `yaml:"app"`
	Feed      FeedConfig     `yaml:"feed"`
	CoinCap   CoinCapConfig  `yaml:"coincap"`
	Binance   BinanceConfig  `yaml:"binance"`
	Sim       SimConfig      `yaml:"sim"`
	Recorder  RecorderConfig `yaml:"recorder"`
	EventLog  EventLogConfig `yaml:"eventlog"`
	Providers string         `yaml:"providers_path"`
}

type AppConfig struct {
	Env      string `yaml:"env"`
	LogLevel string `yaml:"log_level"`
	HTTPAddr string `yaml:"http_addr"`
	LogPath  string `yaml:"log_path"`
}

// FeedConfig tunes the failover engine. Zero values fall back to the
// engine's own defaults.
type FeedConfig struct {
	HistoryCapacity         int     `yaml:"history_capacity"`
	FailureThreshold        int     `yaml:"failure_threshold"`
	FetchTimeoutSeconds     float64 `yaml:"fetch_timeout_seconds"`
	BackoffInitialSeconds   float64 `yaml:"backoff_initial_seconds"`
	BackoffMaxSeconds       float64 `yaml:"backoff_max_seconds"`
	NoSourceCooldownSeconds float64 `yaml:"no_source_cooldown_seconds"`
	UpdateBuffer            int     `yaml:"update_buffer"`
}

type CoinCapConfig struct {
	APIKey            string `yaml:"api_key"`
	RESTBaseURL       string `yaml:"rest_base_url"`
	WSBaseURL         string `yaml:"ws_base_url"`
	TimeoutSeconds    int    `yaml:"timeout_seconds"`
	RequestsPerMinute int    `yaml:"requests_per_minute"`
}

type BinanceConfig struct {
	RESTBaseURL    string      `yaml:"rest_base_url"`
	TimeoutSeconds int         `yaml:"timeout_seconds"`
	Proxy          ProxyConfig `yaml:"proxy"`
}

type ProxyConfig struct {
	Enabled bool   `yaml:"enabled"`
	RESTURL string `yaml:"rest_url"`
	WSURL   string `yaml:"ws_url"`
}

func (p *ProxyConfig) normalize() {
	p.RESTURL = strings.TrimSpace(p.RESTURL)
	p.WSURL = strings.TrimSpace(p.WSURL)
	if p.RESTURL == "" && p.WSURL == "" {
		p.Enabled = false
	}
}

type SimConfig struct {
	IntervalMillis int `yaml:"interval_millis"`
}

type RecorderConfig struct {
	Enabled      bool   `yaml:"enabled"`
	Path         string `yaml:"path"`
	FlushSeconds int    `yaml:"flush_seconds"`
}

type EventLogConfig struct {
	Enabled bool   `yaml:"enabled"`
	Path    string `yaml:"path"`
}

// keySet tracks which field paths the config file set explicitly, so
// defaults never clobber a deliberate zero.
type keySet map[string]struct{}

func (k keySet) mark(path string) {
	path = strings.ToLower(strings.TrimSpace(path))
	if path == "" {
		return
	}
	k[path] = struct{}{}
}

func (k keySet) isSet(path string) bool {
	if len(k) == 0 {
		return false
	}
	path = strings.ToLower(strings.TrimSpace(path))
	if path == "" {
		return false
	}
	_, ok := k[path]
	return ok
}
