package coincap

import (
	"strings"
	"time"
)

type Config struct {
	APIKey      string
	RESTBaseURL string
	WSBaseURL   string
	HTTPTimeout time.Duration

	// RequestsPerMinute caps REST calls across all symbols. CoinCap's free
	// tier allows 2500 credits per minute; stay well under it.
	RequestsPerMinute int

	Priority int
}

func (c *Config) withDefaults() Config {
	out := *c
	out.APIKey = strings.TrimSpace(out.APIKey)
	out.RESTBaseURL = strings.TrimSpace(out.RESTBaseURL)
	if out.RESTBaseURL == "" {
		out.RESTBaseURL = "https://rest.coincap.io/v3"
	}
	out.RESTBaseURL = strings.TrimRight(out.RESTBaseURL, "/")
	out.WSBaseURL = strings.TrimSpace(out.WSBaseURL)
	if out.WSBaseURL == "" {
		out.WSBaseURL = "wss://ws.coincap.io"
	}
	out.WSBaseURL = strings.TrimRight(out.WSBaseURL, "/")
	if out.HTTPTimeout <= 0 {
		out.HTTPTimeout = 10 * time.Second
	}
	if out.RequestsPerMinute <= 0 {
		out.RequestsPerMinute = 60
	}
	if out.Priority <= 0 {
		out.Priority = 1
	}
	return out
}
