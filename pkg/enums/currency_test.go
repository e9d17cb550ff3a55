package enums

import (
	"encoding/json"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestParseCurrency(t *testing.T) {
	cases := map[string]Currency{
		"":      DefaultCurrency,
		"usd":   CurrencyUSD,
		" EUR ": CurrencyEUR,
		"Gbp":   CurrencyGBP,
		"cad\n": CurrencyCAD,
	}
	for in, want := range cases {
		got, err := ParseCurrency(in)
		require.NoError(t, err, "%q", in)
		assert.Equal(t, want, got)
	}

	_, err := ParseCurrency("jpy")
	assert.ErrorContains(t, err, "unsupported currency")
}

func TestCurrencyUnmarshalJSON(t *testing.T) {
	var body struct {
		Currency Currency `json:"currency"`
	}
	require.NoError(t, json.Unmarshal([]byte(`{"currency":"CAD"}`), &body))
	assert.Equal(t, CurrencyCAD, body.Currency)

	assert.Error(t, json.Unmarshal([]byte(`{"currency":"xyz"}`), &body))
}
