package stripe

import (
	"context"
	"net/http"
	"net/http/httptest"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"github.com/stripe/stripe-go/v84"

	"github.com/angelmondragon/storefront-backend/pkg/config"
)

func TestNewClientValidatesKeyForEnvironment(t *testing.T) {
	cases := []struct {
		name    string
		cfg     config.StripeConfig
		wantErr bool
		live    bool
	}{
		{name: "test key", cfg: config.StripeConfig{APIKey: "sk_test_123", Env: "test"}},
		{name: "default env", cfg: config.StripeConfig{APIKey: "rk_test_123"}},
		{name: "live key", cfg: config.StripeConfig{APIKey: "sk_live_123", Env: "LIVE"}, live: true},
		{name: "missing key", cfg: config.StripeConfig{Env: "test"}, wantErr: true},
		{name: "live key in test", cfg: config.StripeConfig{APIKey: "sk_live_123", Env: "test"}, wantErr: true},
		{name: "test key in live", cfg: config.StripeConfig{APIKey: "sk_test_123", Env: "live"}, wantErr: true},
		{name: "bad env", cfg: config.StripeConfig{APIKey: "sk_test_123", Env: "staging"}, wantErr: true},
	}
	for _, tc := range cases {
		t.Run(tc.name, func(t *testing.T) {
			client, err := NewClient(context.Background(), tc.cfg, nil)
			if tc.wantErr {
				require.Error(t, err)
				return
			}
			require.NoError(t, err)
			assert.Equal(t, tc.live, client.IsLive())
		})
	}
}

func TestClientUsesOwnKeyAndBaseURL(t *testing.T) {
	var gotAuth, gotPath string
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		gotAuth = r.Header.Get("Authorization")
		gotPath = r.URL.Path
		w.Header().Set("Content-Type", "application/json")
		_, _ = w.Write([]byte(`{"id":"pi_123","object":"payment_intent","status":"succeeded","amount":1099,"currency":"usd"}`))
	}))
	defer srv.Close()

	client, err := NewClient(context.Background(), config.StripeConfig{
		APIKey:     "sk_test_abc",
		APIBaseURL: srv.URL,
	}, nil)
	require.NoError(t, err)

	intent, err := client.Get(context.Background(), "pi_123", nil)
	require.NoError(t, err)

	assert.Equal(t, "Bearer sk_test_abc", gotAuth)
	assert.Equal(t, "/v1/payment_intents/pi_123", gotPath)
	assert.Equal(t, stripe.PaymentIntentStatusSucceeded, intent.Status)
	assert.Equal(t, int64(1099), intent.Amount)
}
