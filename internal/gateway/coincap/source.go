package coincap

import (
	"context"
	"fmt"
	"io"
	"net/http"
	"net/url"
	"strings"
	"time"

	"github.com/gorilla/websocket"
	"github.com/shopspring/decimal"
	"github.com/tidwall/gjson"
	"golang.org/x/time/rate"

	"feedmux/internal/feed"
	"feedmux/internal/logger"
	symbolpkg "feedmux/internal/pkg/symbol"
)

const sourceID = "coincap"

// Source serves USD prices off the CoinCap v3 API. REST fetches are rate
// limited; live updates ride the /prices websocket.
type Source struct {
	cfg     Config
	client  *http.Client
	limiter *rate.Limiter
	dialer  *websocket.Dialer
}

func New(cfg Config) *Source {
	final := cfg.withDefaults()
	perSecond := rate.Limit(float64(final.RequestsPerMinute) / 60.0)
	return &Source{
		cfg:     final,
		client:  &http.Client{Timeout: final.HTTPTimeout},
		limiter: rate.NewLimiter(perSecond, final.RequestsPerMinute/6+1),
		dialer: &websocket.Dialer{
			HandshakeTimeout: final.HTTPTimeout,
		},
	}
}

func (s *Source) Descriptor() feed.Descriptor {
	return feed.Descriptor{
		ID:        sourceID,
		Priority:  s.cfg.Priority,
		Streaming: true,
	}
}

func (s *Source) Fetch(ctx context.Context, sym string) (feed.Sample, error) {
	slug := symbolpkg.CoinCap.ToProvider(sym)
	if slug == "" {
		return feed.Sample{}, feed.Permanentf("coincap: empty symbol")
	}
	if err := s.limiter.Wait(ctx); err != nil {
		return feed.Sample{}, err
	}

	endpoint := fmt.Sprintf("%s/assets/%s", s.cfg.RESTBaseURL, url.PathEscape(slug))
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, endpoint, nil)
	if err != nil {
		return feed.Sample{}, feed.Permanent(err)
	}
	req.Header.Set("Accept", "application/json")
	if s.cfg.APIKey != "" {
		req.Header.Set("Authorization", "Bearer "+s.cfg.APIKey)
	}

	resp, err := s.client.Do(req)
	if err != nil {
		return feed.Sample{}, feed.ClassifyNetErr(err)
	}
	defer resp.Body.Close()

	body, err := io.ReadAll(io.LimitReader(resp.Body, 1<<20))
	if err != nil {
		return feed.Sample{}, feed.ClassifyNetErr(err)
	}

	switch {
	case resp.StatusCode == http.StatusOK:
	case resp.StatusCode == http.StatusTooManyRequests:
		return feed.Sample{}, feed.Transientf("coincap: rate limited (%d)", resp.StatusCode)
	case resp.StatusCode == http.StatusUnauthorized,
		resp.StatusCode == http.StatusForbidden,
		resp.StatusCode == http.StatusNotFound:
		return feed.Sample{}, feed.Permanentf("coincap: %s for %s", resp.Status, slug)
	case resp.StatusCode >= 500:
		return feed.Sample{}, feed.Transientf("coincap: %s", resp.Status)
	default:
		return feed.Sample{}, feed.Transientf("coincap: unexpected status %s", resp.Status)
	}

	priceStr := gjson.GetBytes(body, "data.priceUsd").String()
	if priceStr == "" {
		return feed.Sample{}, feed.Transientf("coincap: no priceUsd for %s", slug)
	}
	price, err := decimal.NewFromString(priceStr)
	if err != nil {
		return feed.Sample{}, feed.Transientf("coincap: bad priceUsd %q for %s", priceStr, slug)
	}

	at := time.Now()
	if ts := gjson.GetBytes(body, "timestamp").Int(); ts > 0 {
		at = time.UnixMilli(ts)
	}
	return feed.Sample{
		Symbol: symbolpkg.Normalize(sym),
		Price:  price,
		Time:   at,
		Source: sourceID,
	}, nil
}

// OpenStream subscribes the /prices websocket for one asset. Messages are
// flat maps of slug to price string. The channel closes on the first read
// error; the caller owns reconnects.
func (s *Source) OpenStream(ctx context.Context, sym string) (<-chan feed.Sample, error) {
	slug := symbolpkg.CoinCap.ToProvider(sym)
	if slug == "" {
		return nil, feed.Permanentf("coincap: empty symbol")
	}
	canonical := symbolpkg.Normalize(sym)

	wsURL := fmt.Sprintf("%s/prices?assets=%s", s.cfg.WSBaseURL, url.QueryEscape(slug))
	header := http.Header{}
	if s.cfg.APIKey != "" {
		header.Set("Authorization", "Bearer "+s.cfg.APIKey)
	}
	conn, resp, err := s.dialer.DialContext(ctx, wsURL, header)
	if err != nil {
		if resp != nil {
			switch resp.StatusCode {
			case http.StatusUnauthorized, http.StatusForbidden:
				return nil, feed.Permanentf("coincap: websocket handshake rejected: %s", resp.Status)
			}
		}
		return nil, feed.ClassifyNetErr(err)
	}

	out := make(chan feed.Sample, 256)
	done := make(chan struct{})

	go func() {
		select {
		case <-ctx.Done():
			conn.Close()
		case <-done:
		}
	}()

	go func() {
		defer close(out)
		defer close(done)
		defer conn.Close()
		for {
			_, msg, err := conn.ReadMessage()
			if err != nil {
				if ctx.Err() == nil {
					logger.Warnf("[coincap] stream %s: %v", slug, err)
				}
				return
			}
			priceStr := gjson.GetBytes(msg, slug).String()
			if priceStr == "" {
				continue
			}
			price, err := decimal.NewFromString(strings.TrimSpace(priceStr))
			if err != nil || price.Sign() <= 0 {
				continue
			}
			sample := feed.Sample{
				Symbol: canonical,
				Price:  price,
				Time:   time.Now(),
				Source: sourceID,
			}
			select {
			case out <- sample:
			default:
				logger.Warnf("[coincap] price channel full, drop %s", canonical)
			}
		}
	}()
	return out, nil
}

func (s *Source) Close() error { return nil }
