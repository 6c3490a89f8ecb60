package feedhttp

import (
	"fmt"
	"math"
	"net/http"
	"strings"
	"time"

	"github.com/gin-gonic/gin"
	"github.com/go-echarts/go-echarts/v2/charts"
	"github.com/go-echarts/go-echarts/v2/opts"
	"github.com/go-echarts/go-echarts/v2/types"
	talib "github.com/markcheno/go-talib"
)

const (
	chartWidthPx  = 1200
	chartHeightPx = 520
	smaPeriod     = 20

	colorBackground = "#060c1b"
	colorText       = "#eceff4"
	colorTextDim    = "#9ca3af"
	colorPrice      = "#3b82f6"
	colorSMA        = "#fbbf24"
)

// chart renders the recent price history as an HTML line chart with an SMA
// overlay.
func (h *handlers) chart(c *gin.Context) {
	sym := strings.ToUpper(strings.TrimSpace(c.Param("symbol")))
	samples := h.agg.RecentHistory(sym, 200)
	if len(samples) == 0 {
		c.JSON(http.StatusNotFound, gin.H{"error": "no history for symbol", "symbol": sym})
		return
	}

	xAxis := make([]string, len(samples))
	prices := make([]float64, len(samples))
	priceData := make([]opts.LineData, len(samples))
	for i, s := range samples {
		xAxis[i] = s.Time.UTC().Format(time.TimeOnly)
		prices[i], _ = s.Price.Float64()
		priceData[i] = opts.LineData{Value: prices[i]}
	}

	line := charts.NewLine()
	line.SetGlobalOptions(
		charts.WithInitializationOpts(opts.Initialization{
			Theme:           types.ThemeWesteros,
			Width:           fmt.Sprintf("%dpx", chartWidthPx),
			Height:          fmt.Sprintf("%dpx", chartHeightPx),
			BackgroundColor: colorBackground,
			PageTitle:       sym + " feed",
		}),
		charts.WithTitleOpts(opts.Title{
			Title:         sym + " / USD",
			Subtitle:      fmt.Sprintf("%d samples, latest %s", len(samples), samples[len(samples)-1].Price),
			Left:          "left",
			TitleStyle:    &opts.TextStyle{Color: colorText, FontSize: 18},
			SubtitleStyle: &opts.TextStyle{Color: colorTextDim},
		}),
		charts.WithLegendOpts(opts.Legend{Show: opts.Bool(true), TextStyle: &opts.TextStyle{Color: colorText}}),
		charts.WithTooltipOpts(opts.Tooltip{Show: opts.Bool(true), Trigger: "axis"}),
		charts.WithXAxisOpts(opts.XAxis{
			Type:      "category",
			AxisLabel: &opts.AxisLabel{Color: colorTextDim},
		}),
		charts.WithYAxisOpts(opts.YAxis{
			Scale:     opts.Bool(true),
			AxisLabel: &opts.AxisLabel{Color: colorTextDim},
			SplitLine: &opts.SplitLine{Show: opts.Bool(true), LineStyle: &opts.LineStyle{Color: colorTextDim, Opacity: opts.Float(0.2)}},
		}),
	)
	line.SetXAxis(xAxis)
	line.AddSeries("Price", priceData,
		charts.WithLineStyleOpts(opts.LineStyle{Color: colorPrice, Width: 2}),
		charts.WithLineChartOpts(opts.LineChart{ShowSymbol: opts.Bool(false)}),
	)
	if sma := smaSeries(prices); sma != nil {
		line.AddSeries(fmt.Sprintf("SMA%d", smaPeriod), sma,
			charts.WithLineStyleOpts(opts.LineStyle{Color: colorSMA, Width: 2}),
			charts.WithLineChartOpts(opts.LineChart{ShowSymbol: opts.Bool(false)}),
		)
	}

	c.Header("Content-Type", "text/html; charset=utf-8")
	c.Status(http.StatusOK)
	if err := line.Render(c.Writer); err != nil {
		c.JSON(http.StatusInternalServerError, gin.H{"error": err.Error()})
	}
}

func smaSeries(prices []float64) []opts.LineData {
	if len(prices) < smaPeriod {
		return nil
	}
	sma := talib.Sma(prices, smaPeriod)
	out := make([]opts.LineData, len(sma))
	for i, v := range sma {
		if math.IsNaN(v) || v == 0 && i < smaPeriod-1 {
			out[i] = opts.LineData{Value: nil}
			continue
		}
		out[i] = opts.LineData{Value: v}
	}
	return out
}
