package symbol

import "strings"

// Binance quotes USD prices against USDT pairs without separators
// (e.g. BTCUSDT).
type BinanceConverter struct{}

func (BinanceConverter) ToProvider(code string) string {
	code = strings.ToUpper(strings.TrimSpace(code))
	if code == "" {
		return ""
	}
	return code + "USDT"
}

func (BinanceConverter) FromProvider(raw string) string {
	raw = strings.ToUpper(strings.TrimSpace(raw))
	for _, q := range quoteCurrencies {
		if strings.HasSuffix(raw, q) && len(raw) > len(q) {
			return raw[:len(raw)-len(q)]
		}
	}
	return raw
}

func (BinanceConverter) Format() Format {
	return FormatBinance
}

var Binance = BinanceConverter{}
