package feed

import (
	"fmt"
	"sync"

	"github.com/google/uuid"

	"feedmux/internal/logger"
	"feedmux/internal/pkg/symbol"
)

// Aggregator is the consumer-facing entry point: subscribe to a symbol for
// pushed updates, or poll the latest price / recent history directly.
// The first subscriber for a symbol starts its feed; the last one leaving
// tears it down.
type Aggregator struct {
	ctrl    *Controller
	history *HistoryBuffer
	opts    Options

	// feedMu serializes feed lifecycle (start/stop) against subscription
	// churn. Never taken on the sample dispatch path.
	feedMu sync.Mutex

	subMu sync.RWMutex
	subs  map[string]map[string]*Subscription

	closed bool
}

// Subscription is one consumer's handle on a symbol's update stream.
// Updates arrives on C; the channel is buffered and slow consumers lose
// intermediate samples rather than stalling the feed.
type Subscription struct {
	ID     string
	Symbol string
	C      <-chan Sample

	ch        chan Sample
	agg       *Aggregator
	closeOnce sync.Once
}

func (s *Subscription) closeCh() {
	s.closeOnce.Do(func() { close(s.ch) })
}

// Cancel detaches the subscription. Equivalent to Aggregator.Unsubscribe.
func (s *Subscription) Cancel() {
	if s == nil || s.agg == nil {
		return
	}
	s.agg.Unsubscribe(s)
}

func NewAggregator(providers []Provider, opts Options) *Aggregator {
	opts = opts.withDefaults()
	history := NewHistoryBuffer(opts.HistoryCapacity)
	ctrl := NewController(providers, history, opts)
	agg := &Aggregator{
		ctrl:    ctrl,
		history: history,
		opts:    opts,
		subs:    make(map[string]map[string]*Subscription),
	}
	ctrl.SetPublisher(agg.dispatch)
	return agg
}

// Controller exposes the failover controller for health/mode queries.
func (a *Aggregator) Controller() *Controller { return a.ctrl }

// History exposes the rolling buffer for read-only consumers.
func (a *Aggregator) History() *HistoryBuffer { return a.history }

// SetEventSink forwards to the controller. Call before the first
// Subscribe.
func (a *Aggregator) SetEventSink(sink EventSink) { a.ctrl.SetEventSink(sink) }

// Subscribe registers a consumer for live updates on sym and starts the
// symbol's feed if it is the first subscriber.
func (a *Aggregator) Subscribe(sym string) (*Subscription, error) {
	canonical := symbol.Normalize(sym)
	if canonical == "" {
		return nil, fmt.Errorf("subscribe: invalid symbol %q", sym)
	}

	a.feedMu.Lock()
	defer a.feedMu.Unlock()
	if a.closed {
		return nil, fmt.Errorf("subscribe: aggregator closed")
	}

	sub := &Subscription{
		ID:     uuid.NewString(),
		Symbol: canonical,
		agg:    a,
		ch:     make(chan Sample, a.opts.UpdateBuffer),
	}
	sub.C = sub.ch

	a.subMu.Lock()
	group := a.subs[canonical]
	first := len(group) == 0
	if group == nil {
		group = make(map[string]*Subscription)
		a.subs[canonical] = group
	}
	group[sub.ID] = sub
	a.subMu.Unlock()

	if first {
		logger.Infof("[feed] first subscriber for %s, starting feed", canonical)
		a.ctrl.StartFeed(canonical)
	}
	return sub, nil
}

// Unsubscribe detaches sub; when the last subscriber for the symbol
// leaves, the feed task is stopped before returning.
func (a *Aggregator) Unsubscribe(sub *Subscription) {
	if sub == nil {
		return
	}
	a.feedMu.Lock()
	defer a.feedMu.Unlock()

	a.subMu.Lock()
	group, ok := a.subs[sub.Symbol]
	if !ok {
		a.subMu.Unlock()
		sub.closeCh()
		return
	}
	if _, ok := group[sub.ID]; !ok {
		a.subMu.Unlock()
		sub.closeCh()
		return
	}
	delete(group, sub.ID)
	empty := len(group) == 0
	if empty {
		delete(a.subs, sub.Symbol)
	}
	a.subMu.Unlock()

	sub.closeCh()
	if empty {
		logger.Infof("[feed] last subscriber left %s, stopping feed", sub.Symbol)
		a.ctrl.StopFeed(sub.Symbol)
	}
}

// LatestPrice returns the most recent sample for sym.
func (a *Aggregator) LatestPrice(sym string) (Sample, bool) {
	return a.history.Latest(symbol.Normalize(sym))
}

// History returns up to n recent samples for sym, oldest first.
func (a *Aggregator) RecentHistory(sym string, n int) []Sample {
	return a.history.Recent(symbol.Normalize(sym), n)
}

// SubscriberCount reports active subscriptions for sym.
func (a *Aggregator) SubscriberCount(sym string) int {
	a.subMu.RLock()
	defer a.subMu.RUnlock()
	return len(a.subs[symbol.Normalize(sym)])
}

// Close tears down every feed and subscription.
func (a *Aggregator) Close() {
	a.feedMu.Lock()
	defer a.feedMu.Unlock()
	if a.closed {
		return
	}
	a.closed = true

	a.subMu.Lock()
	for sym, group := range a.subs {
		for id, sub := range group {
			sub.closeCh()
			delete(group, id)
		}
		delete(a.subs, sym)
	}
	a.subMu.Unlock()

	a.ctrl.StopAll()
}

// dispatch fans a published sample out to the symbol's subscribers.
// Non-blocking sends: a full consumer buffer drops the sample for that
// consumer only.
func (a *Aggregator) dispatch(sample Sample) {
	a.subMu.RLock()
	defer a.subMu.RUnlock()
	for _, sub := range a.subs[sample.Symbol] {
		select {
		case sub.ch <- sample:
		default:
			logger.Debugf("[feed] subscriber %s for %s lagging, dropping update", sub.ID, sample.Symbol)
		}
	}
}
