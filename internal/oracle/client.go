// Package oracle resolves the data the safety gate needs but the chain
// alone does not provide cheaply: a USD reference price for the native
// token and mutability flags for arbitrary mints.
package oracle

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"net/http"
	"time"

	"github.com/rayfire/sniper/internal/safety"
)

type Client struct {
	httpClient  *http.Client
	metadataURL string
	priceURL    string
	apiKey      string
}

func New(metadataURL, priceURL, apiKey string, timeout time.Duration) *Client {
	return &Client{
		httpClient: &http.Client{
			Timeout: timeout,
			Transport: &http.Transport{
				MaxIdleConns:        100,
				MaxIdleConnsPerHost: 100,
				IdleConnTimeout:     90 * time.Second,
			},
		},
		metadataURL: metadataURL,
		priceURL:    priceURL,
		apiKey:      apiKey,
	}
}

type priceResponse struct {
	Solana struct {
		USD float64 `json:"usd"`
	} `json:"solana"`
}

// NativePriceUSD returns the current USD reference price for the
// native token.
func (c *Client) NativePriceUSD(ctx context.Context) (float64, error) {
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, c.priceURL, nil)
	if err != nil {
		return 0, fmt.Errorf("build price request: %w", err)
	}

	resp, err := c.httpClient.Do(req)
	if err != nil {
		return 0, fmt.Errorf("fetch native price: %w", err)
	}
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusOK {
		return 0, fmt.Errorf("fetch native price: status %d", resp.StatusCode)
	}

	var out priceResponse
	if err := json.NewDecoder(resp.Body).Decode(&out); err != nil {
		return 0, fmt.Errorf("decode native price: %w", err)
	}
	if out.Solana.USD <= 0 {
		return 0, fmt.Errorf("native price missing from response")
	}
	return out.Solana.USD, nil
}

type metadataRequest struct {
	MintAccounts []string `json:"mintAccounts"`
}

type metadataItem struct {
	Account            string `json:"account"`
	OnChainAccountInfo struct {
		AccountInfo struct {
			Data struct {
				Parsed struct {
					Info struct {
						FreezeAuthority string `json:"freezeAuthority"`
					} `json:"info"`
				} `json:"parsed"`
			} `json:"data"`
		} `json:"accountInfo"`
	} `json:"onChainAccountInfo"`
	OnChainMetadata struct {
		Metadata struct {
			IsMutable bool `json:"isMutable"`
		} `json:"metadata"`
	} `json:"onChainMetadata"`
}

// TokenFlags fetches the safety-relevant mint properties for one mint.
func (c *Client) TokenFlags(ctx context.Context, mint string) (safety.TokenFlags, error) {
	body, err := json.Marshal(metadataRequest{MintAccounts: []string{mint}})
	if err != nil {
		return safety.TokenFlags{}, fmt.Errorf("encode metadata request: %w", err)
	}

	url := c.metadataURL
	if c.apiKey != "" {
		url = url + "?api-key=" + c.apiKey
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodPost, url, bytes.NewReader(body))
	if err != nil {
		return safety.TokenFlags{}, fmt.Errorf("build metadata request: %w", err)
	}
	req.Header.Set("Content-Type", "application/json")

	resp, err := c.httpClient.Do(req)
	if err != nil {
		return safety.TokenFlags{}, fmt.Errorf("fetch token metadata for %s: %w", mint, err)
	}
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusOK {
		return safety.TokenFlags{}, fmt.Errorf("fetch token metadata for %s: status %d", mint, resp.StatusCode)
	}

	var items []metadataItem
	if err := json.NewDecoder(resp.Body).Decode(&items); err != nil {
		return safety.TokenFlags{}, fmt.Errorf("decode token metadata for %s: %w", mint, err)
	}
	if len(items) == 0 {
		return safety.TokenFlags{}, fmt.Errorf("no metadata returned for %s", mint)
	}

	return safety.TokenFlags{
		Freezable:       items[0].OnChainAccountInfo.AccountInfo.Data.Parsed.Info.FreezeAuthority != "",
		MetadataMutable: items[0].OnChainMetadata.Metadata.IsMutable,
	}, nil
}
