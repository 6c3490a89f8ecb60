package symbol

import "strings"

// Canonical form is the bare upper-case asset code ("BTC", "ETH").
// Provider-facing spellings (CoinCap slugs, Binance pairs) are handled by
// per-provider converters.

type Format string

const (
	FormatInternal Format = "internal"
	FormatCoinCap  Format = "coincap"
	FormatBinance  Format = "binance"
)

type Converter interface {
	ToProvider(code string) string

	FromProvider(raw string) string

	Format() Format
}

var quoteCurrencies = []string{"USDT", "BUSD", "USDC", "TUSD", "USD"}

// Normalize maps any accepted user spelling to the canonical asset code.
// Accepts bare codes ("btc"), pairs ("BTC/USDT", "BTC-USD") and CoinCap
// slugs ("bitcoin").
func Normalize(s string) string {
	s = strings.ToUpper(strings.TrimSpace(s))
	if s == "" {
		return ""
	}
	if idx := strings.Index(s, ":"); idx >= 0 {
		s = s[:idx]
	}
	for _, sep := range []string{"/", "-", "_"} {
		if parts := strings.SplitN(s, sep, 2); len(parts) == 2 {
			if isQuote(parts[1]) {
				return Normalize(parts[0])
			}
		}
	}
	if code, ok := codeBySlug[strings.ToLower(s)]; ok {
		return code
	}
	return s
}

func isQuote(s string) bool {
	s = strings.ToUpper(strings.TrimSpace(s))
	for _, q := range quoteCurrencies {
		if s == q {
			return true
		}
	}
	return false
}

func NormalizeList(symbols []string) []string {
	if len(symbols) == 0 {
		return nil
	}
	seen := make(map[string]struct{}, len(symbols))
	out := make([]string, 0, len(symbols))
	for _, s := range symbols {
		norm := Normalize(s)
		if norm == "" {
			continue
		}
		if _, ok := seen[norm]; ok {
			continue
		}
		seen[norm] = struct{}{}
		out = append(out, norm)
	}
	return out
}

func IsValid(s string) bool {
	return Normalize(s) != ""
}
