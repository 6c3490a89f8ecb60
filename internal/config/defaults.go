package config

import "strings"

const (
	defaultAppEnv        = "dev"
	defaultAppLogLevel   = "info"
	defaultAppHTTPAddr   = ":9980"
	defaultAppLogPath    = "data/logs/feedmux.log"
	defaultProvidersPath = "configs/providers.yaml"
	defaultRecorderPath  = "data/db/samples.db"
	defaultRecorderFlush = 30
	defaultEventLogPath  = "data/db/events.db"
	defaultCoinCapRPM    = 60
	defaultSimIntervalMS = 1000
)

func (c *Config) applyDefaults(keys keySet) {
	c.App.applyDefaults(keys)
	c.Recorder.applyDefaults(keys)
	c.EventLog.applyDefaults(keys)
	c.CoinCap.applyDefaults(keys)
	c.Binance.applyDefaults(keys)
	c.Sim.applyDefaults(keys)
	applyFieldDefaults(keys,
		stringFieldDefault("providers_path", &c.Providers, defaultProvidersPath),
	)
}

func (a *AppConfig) applyDefaults(keys keySet) {
	if a == nil {
		return
	}
	applyFieldDefaults(keys,
		stringFieldDefault("app.env", &a.Env, defaultAppEnv),
		stringFieldDefault("app.log_level", &a.LogLevel, defaultAppLogLevel),
		stringFieldDefault("app.http_addr", &a.HTTPAddr, defaultAppHTTPAddr),
		stringFieldDefault("app.log_path", &a.LogPath, defaultAppLogPath),
	)
}

func (r *RecorderConfig) applyDefaults(keys keySet) {
	if r == nil {
		return
	}
	applyFieldDefaults(keys,
		stringFieldDefault("recorder.path", &r.Path, defaultRecorderPath),
		fieldDefault{
			key:   "recorder.flush_seconds",
			need:  func() bool { return r.FlushSeconds <= 0 },
			apply: func() { r.FlushSeconds = defaultRecorderFlush },
		},
	)
}

func (e *EventLogConfig) applyDefaults(keys keySet) {
	if e == nil {
		return
	}
	applyFieldDefaults(keys,
		stringFieldDefault("eventlog.path", &e.Path, defaultEventLogPath),
	)
}

func (c *CoinCapConfig) applyDefaults(keys keySet) {
	if c == nil {
		return
	}
	applyFieldDefaults(keys,
		fieldDefault{
			key:   "coincap.requests_per_minute",
			need:  func() bool { return c.RequestsPerMinute <= 0 },
			apply: func() { c.RequestsPerMinute = defaultCoinCapRPM },
		},
	)
}

func (b *BinanceConfig) applyDefaults(keys keySet) {
	if b == nil {
		return
	}
	b.Proxy.normalize()
}

func (s *SimConfig) applyDefaults(keys keySet) {
	if s == nil {
		return
	}
	applyFieldDefaults(keys,
		fieldDefault{
			key:   "sim.interval_millis",
			need:  func() bool { return s.IntervalMillis <= 0 },
			apply: func() { s.IntervalMillis = defaultSimIntervalMS },
		},
	)
}

type fieldDefault struct {
	key   string
	need  func() bool
	apply func()
}

func applyFieldDefaults(keys keySet, defs ...fieldDefault) {
	for _, def := range defs {
		if def.apply == nil {
			continue
		}
		if def.key != "" && keys.isSet(def.key) {
			continue
		}
		if def.need != nil && !def.need() {
			continue
		}
		def.apply()
	}
}

func stringFieldDefault(key string, target *string, def string) fieldDefault {
	return fieldDefault{
		key: key,
		need: func() bool {
			return target != nil && strings.TrimSpace(*target) == ""
		},
		apply: func() {
			if target != nil {
				*target = def
			}
		},
	}
}
