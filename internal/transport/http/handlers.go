package feedhttp

import (
	"encoding/json"
	"net/http"
	"strconv"
	"strings"

	"github.com/gin-gonic/gin"

	"feedmux/internal/feed"
	"feedmux/internal/providers"
	"feedmux/internal/store/eventlog"
)

type handlers struct {
	agg      *feed.Aggregator
	events   *eventlog.Store
	registry *providers.Registry
}

func (h *handlers) symbols(c *gin.Context) {
	resp := gin.H{
		"active": h.agg.Controller().ActiveSymbols(),
	}
	if h.registry != nil {
		resp["configured"] = h.registry.Snapshot().Symbols
	}
	c.JSON(http.StatusOK, resp)
}

func (h *handlers) price(c *gin.Context) {
	sym := c.Param("symbol")
	latest, ok := h.agg.LatestPrice(sym)
	if !ok {
		c.JSON(http.StatusNotFound, gin.H{"error": "no price for symbol", "symbol": sym})
		return
	}
	mode, provider := h.agg.Controller().Mode(latest.Symbol)
	c.JSON(http.StatusOK, gin.H{
		"symbol":    latest.Symbol,
		"price":     latest.Price,
		"time":      latest.Time,
		"source":    latest.Source,
		"direction": h.direction(latest.Symbol),
		"mode":      mode,
		"provider":  provider,
	})
}

// direction compares the two most recent samples, mirroring the ticker UI
// arrows.
func (h *handlers) direction(sym string) string {
	recent := h.agg.RecentHistory(sym, 2)
	if len(recent) < 2 {
		return "flat"
	}
	switch recent[1].Price.Cmp(recent[0].Price) {
	case 1:
		return "up"
	case -1:
		return "down"
	default:
		return "flat"
	}
}

func (h *handlers) history(c *gin.Context) {
	sym := c.Param("symbol")
	limit := parseLimit(c.Query("limit"), 100)
	samples := h.agg.RecentHistory(sym, limit)
	c.JSON(http.StatusOK, gin.H{
		"symbol":  strings.ToUpper(strings.TrimSpace(sym)),
		"count":   len(samples),
		"samples": samples,
	})
}

func (h *handlers) providerStates(c *gin.Context) {
	sym := c.Param("symbol")
	states := h.agg.Controller().States(strings.ToUpper(strings.TrimSpace(sym)))
	if states == nil {
		c.JSON(http.StatusNotFound, gin.H{"error": "no feed for symbol", "symbol": sym})
		return
	}
	mode, provider := h.agg.Controller().Mode(strings.ToUpper(strings.TrimSpace(sym)))
	c.JSON(http.StatusOK, gin.H{
		"symbol":    strings.ToUpper(strings.TrimSpace(sym)),
		"mode":      mode,
		"provider":  provider,
		"providers": states,
	})
}

func (h *handlers) eventLog(c *gin.Context) {
	if h.events == nil {
		c.JSON(http.StatusServiceUnavailable, gin.H{"error": "event log disabled"})
		return
	}
	evs, err := h.events.Query(c.Request.Context(), eventlog.Query{
		Symbol: c.Query("symbol"),
		Kind:   c.Query("kind"),
		Limit:  parseLimit(c.Query("limit"), 100),
	})
	if err != nil {
		c.JSON(http.StatusInternalServerError, gin.H{"error": err.Error()})
		return
	}
	c.JSON(http.StatusOK, gin.H{"count": len(evs), "events": evs})
}

// stream pushes newline-delimited JSON samples until the client hangs up.
func (h *handlers) stream(c *gin.Context) {
	sub, err := h.agg.Subscribe(c.Param("symbol"))
	if err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": err.Error()})
		return
	}
	defer sub.Cancel()

	c.Header("Content-Type", "application/x-ndjson")
	c.Header("Cache-Control", "no-cache")
	c.Status(http.StatusOK)

	enc := json.NewEncoder(c.Writer)
	flusher, _ := c.Writer.(http.Flusher)
	ctx := c.Request.Context()
	for {
		select {
		case <-ctx.Done():
			return
		case sample, ok := <-sub.C:
			if !ok {
				return
			}
			if err := enc.Encode(sample); err != nil {
				return
			}
			if flusher != nil {
				flusher.Flush()
			}
		}
	}
}

func parseLimit(raw string, def int) int {
	if raw == "" {
		return def
	}
	n, err := strconv.Atoi(raw)
	if err != nil || n <= 0 {
		return def
	}
	return n
}
