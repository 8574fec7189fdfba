// Package jito submits signed transactions as atomic bundles through a
// block-engine relay, paying a tip for inclusion priority.
package jito

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"math/rand"
	"net/http"
	"strings"
	"time"

	"github.com/gagliardetto/solana-go"
	"github.com/gagliardetto/solana-go/programs/system"
	"github.com/mr-tron/base58"
)

// ErrNoLeader is the relay's transient "Bundle Dropped, no connected
// leader up soon" rejection. Callers treat it as a failed attempt, not
// something to retry inside the same attempt.
var ErrNoLeader = errors.New("no connected leader up soon")

var tipAccounts = []string{
	"96gYZGLnJYVFmbjzopPSU6QiEV5fGqZNyN9nmNhvrZU5",
	"HFqU5x63VTqvQss8hp11i4bVNa1xJZmCkrhGnVw6nNYS",
	"Cw8CFyM9FkoMi7K7Crf6HNQqf4uEMzpKw6QNghXLvLkY",
	"ADaUMid9yfUytqMBgopwjb2DTLSokTSzL1zt6iGPaS49",
	"DfXygSm4jCyNCybVYYK6DwvWqjKee8pbDmJGcLWNDXjh",
	"ADuUkR4vqLUMWXxW9gh6D6L8pMSawimctcNZ5pGwDcEt",
	"DttWaMuVvTiduZRnguLF7jNxTgiMBZ1hyAumKUiL2KRL",
	"3AVi9Tg9Uo68tJfuvoKvqKNWKkC5wPdSSdeBnizKZ6jT",
}

func RandomTipAccount() solana.PublicKey {
	return solana.MustPublicKeyFromBase58(tipAccounts[rand.Intn(len(tipAccounts))])
}

// NewTipInstruction builds the system transfer that pays the relay tip.
func NewTipInstruction(from solana.PublicKey, lamports uint64) solana.Instruction {
	return system.NewTransferInstruction(lamports, from, RandomTipAccount()).Build()
}

type Client struct {
	endpoint   string
	httpClient *http.Client
}

func New(endpoint string, timeout time.Duration) *Client {
	return &Client{
		endpoint:   endpoint,
		httpClient: &http.Client{Timeout: timeout},
	}
}

type bundleRequest struct {
	JSONRPC string `json:"jsonrpc"`
	ID      int    `json:"id"`
	Method  string `json:"method"`
	Params  []any  `json:"params"`
}

type bundleResponse struct {
	Result string `json:"result"`
	Error  *struct {
		Message string `json:"message"`
	} `json:"error"`
}

// SendBundle submits the signed transactions as one atomic bundle and
// returns the relay's bundle id.
func (c *Client) SendBundle(ctx context.Context, txs []*solana.Transaction) (string, error) {
	encoded := make([]string, 0, len(txs))
	for _, tx := range txs {
		raw, err := tx.MarshalBinary()
		if err != nil {
			return "", fmt.Errorf("serialize transaction: %w", err)
		}
		encoded = append(encoded, base58.Encode(raw))
	}

	payload, err := json.Marshal(bundleRequest{
		JSONRPC: "2.0",
		ID:      1,
		Method:  "sendBundle",
		Params:  []any{encoded},
	})
	if err != nil {
		return "", fmt.Errorf("encode bundle request: %w", err)
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodPost, c.endpoint, bytes.NewReader(payload))
	if err != nil {
		return "", fmt.Errorf("build bundle request: %w", err)
	}
	req.Header.Set("Content-Type", "application/json")

	resp, err := c.httpClient.Do(req)
	if err != nil {
		return "", fmt.Errorf("send bundle: %w", err)
	}
	defer resp.Body.Close()

	var out bundleResponse
	if err := json.NewDecoder(resp.Body).Decode(&out); err != nil {
		return "", fmt.Errorf("decode bundle response: %w", err)
	}

	if out.Error != nil {
		if strings.Contains(strings.ToLower(out.Error.Message), "no connected leader") {
			return "", fmt.Errorf("%w: %s", ErrNoLeader, out.Error.Message)
		}
		return "", fmt.Errorf("bundle rejected: %s", out.Error.Message)
	}
	if out.Result == "" {
		return "", fmt.Errorf("bundle response missing id")
	}

	return out.Result, nil
}
