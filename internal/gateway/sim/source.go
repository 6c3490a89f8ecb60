package sim

import (
	"context"
	"hash/fnv"
	"math/rand"
	"sync"
	"time"

	"github.com/shopspring/decimal"

	"feedmux/internal/feed"
	symbolpkg "feedmux/internal/pkg/symbol"
)

const sourceID = "sim"

// Source synthesizes a random walk per symbol. It never fails, which makes
// it the fallback of last resort in demo setups and the workhorse of
// integration tests.
type Source struct {
	priority int
	interval time.Duration

	mu     sync.Mutex
	prices map[string]decimal.Decimal
	rng    *rand.Rand
}

func New(priority int, interval time.Duration) *Source {
	if priority <= 0 {
		priority = 99
	}
	if interval <= 0 {
		interval = time.Second
	}
	return &Source{
		priority: priority,
		interval: interval,
		prices:   make(map[string]decimal.Decimal),
		rng:      rand.New(rand.NewSource(42)),
	}
}

func (s *Source) Descriptor() feed.Descriptor {
	return feed.Descriptor{
		ID:        sourceID,
		Priority:  s.priority,
		Streaming: true,
	}
}

func (s *Source) Fetch(ctx context.Context, sym string) (feed.Sample, error) {
	if err := ctx.Err(); err != nil {
		return feed.Sample{}, err
	}
	canonical := symbolpkg.Normalize(sym)
	return feed.Sample{
		Symbol: canonical,
		Price:  s.step(canonical),
		Time:   time.Now(),
		Source: sourceID,
	}, nil
}

func (s *Source) OpenStream(ctx context.Context, sym string) (<-chan feed.Sample, error) {
	canonical := symbolpkg.Normalize(sym)
	out := make(chan feed.Sample, 64)
	go func() {
		defer close(out)
		ticker := time.NewTicker(s.interval)
		defer ticker.Stop()
		for {
			select {
			case <-ctx.Done():
				return
			case <-ticker.C:
				sample := feed.Sample{
					Symbol: canonical,
					Price:  s.step(canonical),
					Time:   time.Now(),
					Source: sourceID,
				}
				select {
				case out <- sample:
				default:
				}
			}
		}
	}()
	return out, nil
}

func (s *Source) Close() error { return nil }

// step advances the walk for one symbol by up to ±0.5%.
func (s *Source) step(canonical string) decimal.Decimal {
	s.mu.Lock()
	defer s.mu.Unlock()
	price, ok := s.prices[canonical]
	if !ok {
		price = basePrice(canonical)
	}
	drift := decimal.NewFromFloat(1 + (s.rng.Float64()-0.5)/100)
	price = price.Mul(drift).Round(8)
	s.prices[canonical] = price
	return price
}

// basePrice derives a stable starting price from the symbol name so
// different assets do not all walk from the same point.
func basePrice(canonical string) decimal.Decimal {
	h := fnv.New32a()
	h.Write([]byte(canonical))
	base := 10 + int64(h.Sum32()%100000)
	return decimal.NewFromInt(base)
}
