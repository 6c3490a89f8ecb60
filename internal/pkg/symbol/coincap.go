package symbol

import "strings"

// CoinCap addresses assets by slug ("bitcoin"), not code. The table covers
// the asset set the service ships with; unknown codes fall back to the
// lower-cased code, which matches CoinCap's convention for single-word
// assets.
var slugByCode = map[string]string{
	"BTC":   "bitcoin",
	"ETH":   "ethereum",
	"USDT":  "tether",
	"BNB":   "binance-coin",
	"XRP":   "xrp",
	"USDC":  "usd-coin",
	"SOL":   "solana",
	"TRX":   "tron",
	"DOGE":  "dogecoin",
	"ADA":   "cardano",
	"BCH":   "bitcoin-cash",
	"LINK":  "chainlink",
	"LEO":   "unus-sed-leo",
	"XMR":   "monero",
	"XLM":   "stellar",
	"ZEC":   "zcash",
	"LTC":   "litecoin",
	"SUI":   "sui",
}

var codeBySlug = func() map[string]string {
	out := make(map[string]string, len(slugByCode))
	for code, slug := range slugByCode {
		out[slug] = code
	}
	return out
}()

type CoinCapConverter struct{}

func (CoinCapConverter) ToProvider(code string) string {
	code = strings.ToUpper(strings.TrimSpace(code))
	if slug, ok := slugByCode[code]; ok {
		return slug
	}
	return strings.ToLower(code)
}

func (CoinCapConverter) FromProvider(raw string) string {
	raw = strings.ToLower(strings.TrimSpace(raw))
	if code, ok := codeBySlug[raw]; ok {
		return code
	}
	return strings.ToUpper(raw)
}

func (CoinCapConverter) Format() Format {
	return FormatCoinCap
}

var CoinCap = CoinCapConverter{}
