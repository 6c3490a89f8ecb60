package binance

import (
	"context"
	"errors"
	"fmt"
	"net/http"
	"net/url"
	"strings"
	"time"

	"github.com/adshao/go-binance/v2/common"
	"github.com/adshao/go-binance/v2/futures"
	"github.com/shopspring/decimal"

	"feedmux/internal/feed"
	"feedmux/internal/logger"
	symbolpkg "feedmux/internal/pkg/symbol"
)

const sourceID = "binance"

// Binance REST error code for an unknown symbol.
const codeInvalidSymbol = -1121

// Source serves USD prices off Binance futures, REST for one-shot fetches
// and the aggTrade websocket stream for live updates.
type Source struct {
	cfg    Config
	client *futures.Client
}

func New(cfg Config) (*Source, error) {
	final := cfg.withDefaults()
	client := futures.NewClient("", "")
	client.BaseURL = final.RESTBaseURL
	httpClient := &http.Client{Timeout: final.HTTPTimeout}
	if final.ProxyEnabled && final.RESTProxyURL != "" {
		proxyURL, err := url.Parse(final.RESTProxyURL)
		if err != nil {
			return nil, fmt.Errorf("invalid REST proxy url: %w", err)
		}
		baseTransport, ok := http.DefaultTransport.(*http.Transport)
		if !ok || baseTransport == nil {
			return nil, fmt.Errorf("http DefaultTransport is not *http.Transport")
		}
		transport := baseTransport.Clone()
		transport.Proxy = http.ProxyURL(proxyURL)
		httpClient.Transport = transport
	}
	client.HTTPClient = httpClient
	if final.ProxyEnabled {
		wsProxy := final.WSProxyURL
		if wsProxy == "" {
			wsProxy = final.RESTProxyURL
		}
		if wsProxy != "" {
			futures.SetWsProxyUrl(wsProxy)
		}
	}
	return &Source{cfg: final, client: client}, nil
}

func (s *Source) Descriptor() feed.Descriptor {
	return feed.Descriptor{
		ID:        sourceID,
		Priority:  s.cfg.Priority,
		Streaming: true,
	}
}

func (s *Source) Fetch(ctx context.Context, sym string) (feed.Sample, error) {
	pair := symbolpkg.Binance.ToProvider(sym)
	if pair == "" {
		return feed.Sample{}, feed.Permanentf("binance: empty symbol")
	}
	prices, err := s.client.NewListPricesService().Symbol(pair).Do(ctx)
	if err != nil {
		return feed.Sample{}, classify(err)
	}
	if len(prices) == 0 {
		return feed.Sample{}, feed.Permanentf("binance: no price for %s", pair)
	}
	price, err := decimal.NewFromString(strings.TrimSpace(prices[0].Price))
	if err != nil {
		return feed.Sample{}, feed.Transientf("binance: bad price %q for %s", prices[0].Price, pair)
	}
	return feed.Sample{
		Symbol: symbolpkg.Normalize(sym),
		Price:  price,
		Time:   time.Now(),
		Source: sourceID,
	}, nil
}

// OpenStream connects one aggTrade websocket for sym. The returned channel
// closes when the connection drops or ctx ends; reconnecting is the
// caller's job.
func (s *Source) OpenStream(ctx context.Context, sym string) (<-chan feed.Sample, error) {
	pair := symbolpkg.Binance.ToProvider(sym)
	if pair == "" {
		return nil, feed.Permanentf("binance: empty symbol")
	}
	canonical := symbolpkg.Normalize(sym)
	out := make(chan feed.Sample, 256)

	handler := func(event *futures.WsAggTradeEvent) {
		sample, ok := convertAggTrade(canonical, event)
		if !ok {
			return
		}
		select {
		case out <- sample:
		default:
			logger.Warnf("[binance] aggTrade channel full, drop %s", canonical)
		}
	}
	errHandler := func(err error) {
		if err != nil {
			logger.Warnf("[binance] stream %s: %v", pair, err)
		}
	}

	doneC, stopC, err := futures.WsAggTradeServe(pair, handler, errHandler)
	if err != nil {
		return nil, classify(err)
	}

	go func() {
		defer close(out)
		select {
		case <-ctx.Done():
			close(stopC)
			<-doneC
		case <-doneC:
		}
	}()
	return out, nil
}

func (s *Source) Close() error { return nil }

func convertAggTrade(canonical string, ev *futures.WsAggTradeEvent) (feed.Sample, bool) {
	if ev == nil {
		return feed.Sample{}, false
	}
	price, err := decimal.NewFromString(strings.TrimSpace(ev.Price))
	if err != nil || price.Sign() <= 0 {
		return feed.Sample{}, false
	}
	return feed.Sample{
		Symbol: canonical,
		Price:  price,
		Time:   time.UnixMilli(ev.TradeTime),
		Source: sourceID,
	}, true
}

// classify sorts Binance API errors into the transient/permanent split.
// Unknown symbols and auth rejections are permanent; rate limits, bans and
// plain network failures retry.
func classify(err error) error {
	if err == nil {
		return nil
	}
	var apiErr *common.APIError
	if errors.As(err, &apiErr) {
		switch {
		case apiErr.Code == codeInvalidSymbol:
			return feed.Permanent(err)
		case apiErr.Code == -2014 || apiErr.Code == -2015:
			return feed.Permanent(err)
		default:
			return feed.Transient(err)
		}
	}
	return feed.ClassifyNetErr(err)
}
