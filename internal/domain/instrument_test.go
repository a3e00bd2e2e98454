package domain

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestParseInstrumentKey(t *testing.T) {
	k, err := ParseInstrumentKey("binance:BaseToken:BTC")
	require.NoError(t, err)
	assert.Equal(t, "binance", k.Venue())
	assert.Equal(t, ClassBaseToken, k.Class())
	assert.Equal(t, "BTC", k.Symbol())
}

func TestParseInstrumentKey_LSTClassKeepsSlash(t *testing.T) {
	k, err := ParseInstrumentKey("etherfi:LST/aToken:weETH")
	require.NoError(t, err)
	assert.Equal(t, ClassLSTAToken, k.Class())
	assert.Equal(t, "weETH", k.Symbol())
}

func TestInstrumentKey_Validate(t *testing.T) {
	cases := []struct {
		name    string
		raw     string
		wantErr bool
	}{
		{"valid base token", "binance:BaseToken:ETH", false},
		{"valid debt position", "aave:DebtPosition:USDC", false},
		{"unregistered venue", "ftx:BaseToken:BTC", true},
		{"unknown class", "binance:Option:BTC", true},
		{"missing segment", "binance:BTC", true},
		{"empty segment", "binance::BTC", true},
		{"empty string", "", true},
	}
	for _, tc := range cases {
		t.Run(tc.name, func(t *testing.T) {
			err := InstrumentKey(tc.raw).Validate()
			if tc.wantErr {
				assert.Error(t, err)
			} else {
				assert.NoError(t, err)
			}
		})
	}
}
