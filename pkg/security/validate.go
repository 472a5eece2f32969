package security

import (
	"regexp"
	"strings"
)

const maxEmailLength = 254

var emailRegex = regexp.MustCompile(`^[^\s@]+@[^\s@]+\.[^\s@]+$`)

// ValidateEmail reports whether the address is a plausible email no longer
// than the RFC 5321 path limit.
func ValidateEmail(email string) bool {
	return len(email) <= maxEmailLength && emailRegex.MatchString(email)
}

// SanitizeInput strips characters commonly used in injection payloads and
// trims surrounding whitespace. This is defense in depth for free-form
// fields that end up in logs or storage, not an HTML encoder.
func SanitizeInput(input string) string {
	replacer := strings.NewReplacer(
		"<", "",
		">", "",
		"'", "",
		`"`, "",
	)
	return strings.TrimSpace(replacer.Replace(input))
}

// Trade order bounds and whitelists
const MaxTradeAmount = 1_000_000

var validCurrencyPairs = map[string]bool{
	"EUR/USD": true,
	"GBP/USD": true,
	"USD/JPY": true,
	"AUD/USD": true,
	"USD/CAD": true,
	"NZD/USD": true,
}

var validOrderTypes = map[string]bool{
	"buy":   true,
	"sell":  true,
	"limit": true,
	"stop":  true,
}

// TradeRequest is the shape of an order submission checked before any
// network call is made.
type TradeRequest struct {
	Amount float64
	Pair   string
	Type   string
}

// TradeValidation holds the outcome of a trade request check.
type TradeValidation struct {
	Valid  bool
	Errors []string
}

// ValidateTradeRequest checks amount bounds and the currency pair and
// order type whitelists.
func ValidateTradeRequest(req TradeRequest) TradeValidation {
	var errs []string

	if req.Amount <= 0 {
		errs = append(errs, "invalid trade amount")
	}
	if req.Amount > MaxTradeAmount {
		errs = append(errs, "trade amount exceeds maximum limit")
	}
	if !validCurrencyPairs[req.Pair] {
		errs = append(errs, "invalid currency pair")
	}
	if !validOrderTypes[req.Type] {
		errs = append(errs, "invalid trade type")
	}

	return TradeValidation{Valid: len(errs) == 0, Errors: errs}
}
