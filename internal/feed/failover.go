package feed

import (
	"context"
	"sort"
	"sync"
	"time"

	"feedmux/internal/logger"
)

// Controller owns provider selection and health per subscribed symbol.
// Exactly one live feed (streaming session or polling loop) runs per
// symbol; when the active provider is demoted the controller re-selects
// from the remaining candidates, and when every candidate is exhausted the
// symbol sits in NoSource until a cooldown probe revives the top provider.
type Controller struct {
	providers []Provider
	opts      Options
	history   *HistoryBuffer

	events  EventSink
	publish func(Sample)

	mu    sync.Mutex
	feeds map[string]*symbolFeed
}

func NewController(providers []Provider, history *HistoryBuffer, opts Options) *Controller {
	ordered := append([]Provider(nil), providers...)
	sort.SliceStable(ordered, func(i, j int) bool {
		return ordered[i].Descriptor().Priority < ordered[j].Descriptor().Priority
	})
	return &Controller{
		providers: ordered,
		opts:      opts.withDefaults(),
		history:   history,
		feeds:     make(map[string]*symbolFeed),
	}
}

// SetEventSink wires a diagnostics sink. Call before the first StartFeed.
func (c *Controller) SetEventSink(sink EventSink) { c.events = sink }

// SetPublisher wires the downstream sample consumer. Call before the
// first StartFeed.
func (c *Controller) SetPublisher(fn func(Sample)) { c.publish = fn }

// StartFeed begins sourcing prices for symbol. No-op if a feed is already
// running.
func (c *Controller) StartFeed(symbol string) {
	c.mu.Lock()
	defer c.mu.Unlock()
	if _, ok := c.feeds[symbol]; ok {
		return
	}
	f := newSymbolFeed(c, symbol)
	c.feeds[symbol] = f
	ctx, cancel := context.WithCancel(context.Background())
	f.cancel = cancel
	go f.run(ctx)
}

// StopFeed tears down the feed for symbol and waits for its task to exit.
func (c *Controller) StopFeed(symbol string) {
	c.mu.Lock()
	f := c.feeds[symbol]
	delete(c.feeds, symbol)
	c.mu.Unlock()
	if f == nil {
		return
	}
	f.cancel()
	<-f.done
}

// StopAll tears down every running feed.
func (c *Controller) StopAll() {
	c.mu.Lock()
	feeds := make([]*symbolFeed, 0, len(c.feeds))
	for symbol, f := range c.feeds {
		feeds = append(feeds, f)
		delete(c.feeds, symbol)
	}
	c.mu.Unlock()
	for _, f := range feeds {
		f.cancel()
		<-f.done
	}
}

// States reports per-provider health for symbol, priority order.
func (c *Controller) States(symbol string) []Snapshot {
	c.mu.Lock()
	f := c.feeds[symbol]
	c.mu.Unlock()
	if f == nil {
		return nil
	}
	out := make([]Snapshot, 0, len(f.states))
	for _, st := range f.states {
		out = append(out, st.Snapshot())
	}
	return out
}

// Mode reports how symbol is currently sourced and by which provider.
func (c *Controller) Mode(symbol string) (Mode, string) {
	c.mu.Lock()
	f := c.feeds[symbol]
	c.mu.Unlock()
	if f == nil {
		return ModeIdle, ""
	}
	return f.currentMode()
}

// ActiveSymbols lists symbols with a running feed.
func (c *Controller) ActiveSymbols() []string {
	c.mu.Lock()
	defer c.mu.Unlock()
	out := make([]string, 0, len(c.feeds))
	for symbol := range c.feeds {
		out = append(out, symbol)
	}
	sort.Strings(out)
	return out
}

func (c *Controller) emit(ev Event) {
	if ev.Time.IsZero() {
		ev.Time = time.Now()
	}
	if c.events != nil {
		c.events.Record(ev)
	}
}

// symbolFeed is the per-symbol task. It owns the symbol's provider health
// and is the only writer into the history buffer for its symbol.
type symbolFeed struct {
	ctrl   *Controller
	symbol string
	states []*ProviderState

	cancel context.CancelFunc
	done   chan struct{}

	modeMu sync.Mutex
	mode   Mode
	active string
}

func newSymbolFeed(c *Controller, symbol string) *symbolFeed {
	f := &symbolFeed{
		ctrl:   c,
		symbol: symbol,
		done:   make(chan struct{}),
		mode:   ModeIdle,
	}
	f.states = make([]*ProviderState, len(c.providers))
	for i, p := range c.providers {
		desc := p.Descriptor()
		f.states[i] = newProviderState(desc, c.opts.FailureThreshold, func(from, to Health) {
			c.emit(Event{
				Symbol:   symbol,
				Provider: desc.ID,
				Kind:     EventHealthChange,
				Detail:   from.String() + " -> " + to.String(),
			})
		})
	}
	return f
}

func (f *symbolFeed) run(ctx context.Context) {
	defer close(f.done)
	defer f.setMode(ModeIdle, "")
	for ctx.Err() == nil {
		idx := f.selectProvider()
		if idx < 0 {
			if !f.waitAndProbe(ctx) {
				return
			}
			continue
		}
		p := f.ctrl.providers[idx]
		st := f.states[idx]
		desc := p.Descriptor()
		var err error
		if desc.Streaming {
			f.setMode(ModeStreaming, desc.ID)
			f.ctrl.emit(Event{Symbol: f.symbol, Provider: desc.ID, Kind: EventFeedSwitch, Detail: string(ModeStreaming)})
			err = newStreamingSession(p, f.symbol, st, f.ctrl.opts, f.deliver).Run(ctx)
		} else {
			f.setMode(ModePolling, desc.ID)
			f.ctrl.emit(Event{Symbol: f.symbol, Provider: desc.ID, Kind: EventFeedSwitch, Detail: string(ModePolling)})
			err = newPollingLoop(p, f.symbol, st, f.ctrl.opts, f.deliver).Run(ctx)
		}
		if ctx.Err() != nil {
			return
		}
		if err != nil {
			logger.Warnf("[feed] %s source %s failed over: %v", f.symbol, desc.ID, err)
		}
	}
}

// selectProvider applies the priority policy: the best streaming-capable
// provider that is not Unreachable, else the best provider of any kind,
// else none.
func (f *symbolFeed) selectProvider() int {
	for i, st := range f.states {
		if st.Descriptor().Streaming && st.Health() != Unreachable {
			return i
		}
	}
	for i, st := range f.states {
		if st.Health() != Unreachable {
			return i
		}
	}
	return -1
}

// waitAndProbe handles the exhausted state: wait out the cooldown, then
// give the top-priority provider exactly one fresh fetch. Returns false
// when the feed context ended.
func (f *symbolFeed) waitAndProbe(ctx context.Context) bool {
	f.setMode(ModeNoSource, "")
	f.ctrl.emit(Event{Symbol: f.symbol, Kind: EventNoSource})
	logger.Warnf("[feed] %s has no usable source, retrying top provider in %s", f.symbol, f.ctrl.opts.NoSourceCooldown)
	if !sleepWithContext(ctx, f.ctrl.opts.NoSourceCooldown) {
		return false
	}
	if len(f.states) == 0 {
		return ctx.Err() == nil
	}
	p := f.ctrl.providers[0]
	st := f.states[0]
	st.Reset()
	f.ctrl.emit(Event{Symbol: f.symbol, Provider: st.Descriptor().ID, Kind: EventRecovery})
	fetchCtx, cancel := context.WithTimeout(ctx, f.ctrl.opts.FetchTimeout)
	sample, err := p.Fetch(fetchCtx, f.symbol)
	cancel()
	if err != nil {
		if ctx.Err() != nil {
			return false
		}
		st.RecordPermanent(err)
		return true
	}
	if sample.Time.IsZero() {
		sample.Time = time.Now()
	}
	st.RecordSuccess(sample.Time)
	f.deliver(sample)
	return true
}

// deliver guards against stale samples, records history and publishes.
// Single entry point for the symbol's active session or loop.
func (f *symbolFeed) deliver(sample Sample) {
	if sample.Symbol == "" {
		sample.Symbol = f.symbol
	}
	if last, ok := f.ctrl.history.Latest(f.symbol); ok && !sample.Time.After(last.Time) {
		logger.Debugf("[feed] %s dropping out-of-order sample from %s (%s <= %s)",
			f.symbol, sample.Source, sample.Time.Format(time.RFC3339Nano), last.Time.Format(time.RFC3339Nano))
		f.ctrl.emit(Event{Symbol: f.symbol, Provider: sample.Source, Kind: EventSampleDrop, Detail: "out_of_order"})
		return
	}
	f.ctrl.history.Append(sample)
	if f.ctrl.publish != nil {
		f.ctrl.publish(sample)
	}
}

func (f *symbolFeed) setMode(mode Mode, provider string) {
	f.modeMu.Lock()
	f.mode = mode
	f.active = provider
	f.modeMu.Unlock()
}

func (f *symbolFeed) currentMode() (Mode, string) {
	f.modeMu.Lock()
	defer f.modeMu.Unlock()
	return f.mode, f.active
}
