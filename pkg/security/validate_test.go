package security

import (
	"strings"
	"testing"

	"github.com/stretchr/testify/assert"
)

func TestValidateEmail(t *testing.T) {
	tests := []struct {
		name  string
		email string
		valid bool
	}{
		{"valid", "client@meridian.example", true},
		{"valid subdomain", "a.b@mail.meridian.example", true},
		{"missing at", "clientmeridian.example", false},
		{"missing domain dot", "client@meridian", false},
		{"whitespace", "client @meridian.example", false},
		{"empty", "", false},
		{"too long", strings.Repeat("a", 250) + "@x.com", false},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			assert.Equal(t, tt.valid, ValidateEmail(tt.email))
		})
	}
}

func TestSanitizeInput(t *testing.T) {
	assert.Equal(t, "scriptalert(1)/script", SanitizeInput("<script>alert('1')</script>"))
	assert.Equal(t, "hello world", SanitizeInput(`  hello "world"  `))
	assert.Equal(t, "", SanitizeInput("   "))
}

func TestValidateTradeRequest(t *testing.T) {
	tests := []struct {
		name   string
		req    TradeRequest
		valid  bool
		errSub string
	}{
		{"valid buy", TradeRequest{Amount: 5000, Pair: "EUR/USD", Type: "buy"}, true, ""},
		{"valid stop", TradeRequest{Amount: 1, Pair: "USD/JPY", Type: "stop"}, true, ""},
		{"zero amount", TradeRequest{Amount: 0, Pair: "EUR/USD", Type: "buy"}, false, "invalid trade amount"},
		{"negative amount", TradeRequest{Amount: -10, Pair: "EUR/USD", Type: "sell"}, false, "invalid trade amount"},
		{"over limit", TradeRequest{Amount: 2_000_000, Pair: "EUR/USD", Type: "buy"}, false, "exceeds maximum"},
		{"bad pair", TradeRequest{Amount: 100, Pair: "BTC/USD", Type: "buy"}, false, "invalid currency pair"},
		{"bad type", TradeRequest{Amount: 100, Pair: "EUR/USD", Type: "short"}, false, "invalid trade type"},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			result := ValidateTradeRequest(tt.req)
			assert.Equal(t, tt.valid, result.Valid)
			if tt.errSub != "" {
				assert.NotEmpty(t, result.Errors)
				found := false
				for _, e := range result.Errors {
					if strings.Contains(e, tt.errSub) {
						found = true
					}
				}
				assert.True(t, found, "expected an error containing %q, got %v", tt.errSub, result.Errors)
			}
		})
	}
}
