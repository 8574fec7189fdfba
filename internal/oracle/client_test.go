package oracle

import (
	"context"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	"github.com/stretchr/testify/require"
)

func TestNativePriceUSD(t *testing.T) {
	ts := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		require.Equal(t, http.MethodGet, r.Method)
		_, _ = w.Write([]byte(`{"solana":{"usd":142.37}}`))
	}))
	defer ts.Close()

	client := New("", ts.URL, "", 2*time.Second)
	price, err := client.NativePriceUSD(context.Background())
	require.NoError(t, err)
	require.InDelta(t, 142.37, price, 1e-9)
}

func TestNativePriceUSD_Missing(t *testing.T) {
	ts := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		_, _ = w.Write([]byte(`{}`))
	}))
	defer ts.Close()

	client := New("", ts.URL, "", 2*time.Second)
	_, err := client.NativePriceUSD(context.Background())
	require.Error(t, err)
}

func TestNativePriceUSD_BadStatus(t *testing.T) {
	ts := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusTooManyRequests)
	}))
	defer ts.Close()

	client := New("", ts.URL, "", 2*time.Second)
	_, err := client.NativePriceUSD(context.Background())
	require.Error(t, err)
}

func TestTokenFlags(t *testing.T) {
	const mint = "7xKXtg2CW87d97TXJSDpbD5jBkheTqA83TZRuJosgAsU"

	cases := []struct {
		name            string
		freezeAuthority string
		isMutable       bool
		wantFreezable   bool
		wantMutable     bool
	}{
		{"clean", "", false, false, false},
		{"freezable", "9yQ5P52x4xeGW2wJrRMyiFUDfLNkSKbcnURZJ2yhpump", false, true, false},
		{"mutable", "", true, false, true},
	}

	for _, tc := range cases {
		t.Run(tc.name, func(t *testing.T) {
			ts := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
				require.Equal(t, http.MethodPost, r.Method)
				require.Equal(t, "key123", r.URL.Query().Get("api-key"))

				var req metadataRequest
				require.NoError(t, json.NewDecoder(r.Body).Decode(&req))
				require.Equal(t, []string{mint}, req.MintAccounts)

				w.Header().Set("Content-Type", "application/json")
				_, _ = w.Write([]byte(metadataBody(mint, tc.freezeAuthority, tc.isMutable)))
			}))
			defer ts.Close()

			client := New(ts.URL, "", "key123", 2*time.Second)
			flags, err := client.TokenFlags(context.Background(), mint)
			require.NoError(t, err)
			require.Equal(t, tc.wantFreezable, flags.Freezable)
			require.Equal(t, tc.wantMutable, flags.MetadataMutable)
		})
	}
}

func metadataBody(mint, freezeAuthority string, isMutable bool) string {
	type info struct {
		FreezeAuthority string `json:"freezeAuthority"`
	}
	body := []map[string]any{{
		"account": mint,
		"onChainAccountInfo": map[string]any{
			"accountInfo": map[string]any{
				"data": map[string]any{"parsed": map[string]any{"info": info{FreezeAuthority: freezeAuthority}}},
			},
		},
		"onChainMetadata": map[string]any{"metadata": map[string]any{"isMutable": isMutable}},
	}}
	raw, _ := json.Marshal(body)
	return string(raw)
}

func TestTokenFlags_EmptyResponse(t *testing.T) {
	ts := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		_, _ = w.Write([]byte(`[]`))
	}))
	defer ts.Close()

	client := New(ts.URL, "", "", 2*time.Second)
	_, err := client.TokenFlags(context.Background(), "mint")
	require.Error(t, err)
}
