package webhook

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"
	"time"

	"github.com/gagliardetto/solana-go"
	"github.com/gorilla/websocket"

	"github.com/rayfire/sniper/internal/config"
	"github.com/rayfire/sniper/internal/engine"
	"github.com/rayfire/sniper/internal/raydium"
	"github.com/rayfire/sniper/internal/safety"
)

const testRentLamports = 6_124_800

type blockingExecutor struct {
	release chan struct{}
}

func (e *blockingExecutor) Evaluate(ctx context.Context, event engine.PoolEvent) (*engine.TradePlan, error) {
	select {
	case <-e.release:
	case <-ctx.Done():
	}
	return nil, fmt.Errorf("%w: released", safety.ErrLiquidityTooLow)
}

func (e *blockingExecutor) ExecuteBuy(ctx context.Context, plan *engine.TradePlan) (*engine.BuyOutcome, error) {
	return nil, errors.New("unused")
}

func (e *blockingExecutor) ExecuteSell(ctx context.Context, pos engine.Position) (solana.Signature, error) {
	return solana.Signature{}, errors.New("unused")
}

func testLogger() *slog.Logger {
	return slog.New(slog.NewTextHandler(io.Discard, nil))
}

func newTestServer(t *testing.T) (*Server, *blockingExecutor) {
	t.Helper()
	exec := &blockingExecutor{release: make(chan struct{})}
	eng := engine.New(engine.Config{
		SellDelay:         time.Millisecond,
		SellRetryInterval: time.Millisecond,
		MaxSellAttempts:   1,
	}, exec, nil, testLogger())

	ctx, cancel := context.WithCancel(context.Background())
	done := make(chan struct{})
	go func() {
		_ = eng.Run(ctx)
		close(done)
	}()
	t.Cleanup(func() {
		cancel()
		<-done
	})

	cfg := config.SniperConfig{
		ListenAddr:              ":0",
		RaydiumPoolRentLamports: testRentLamports,
		PumpPoolRentLamports:    2_039_280,
	}
	return New(cfg, eng, testLogger()), exec
}

func webhookBody(mint, pool string, rent int64) string {
	payload := []map[string]any{{
		"tokenTransfers": []map[string]any{
			{"mint": raydium.WSOLMint.String()},
			{"mint": mint},
		},
		"accountData": []map[string]any{
			{"account": solana.NewWallet().PublicKey().String(), "nativeBalanceChange": -10_000},
			{"account": pool, "nativeBalanceChange": rent},
		},
	}}
	raw, _ := json.Marshal(payload)
	return string(raw)
}

func TestExtractEvent_SkipsNativeMint(t *testing.T) {
	mint := solana.NewWallet().PublicKey()
	pool := solana.NewWallet().PublicKey()

	var txs []txEnvelope
	if err := json.Unmarshal([]byte(webhookBody(mint.String(), pool.String(), testRentLamports)), &txs); err != nil {
		t.Fatal(err)
	}

	event, err := extractEvent(sourceRaydium, txs, testRentLamports)
	if err != nil {
		t.Fatalf("extract: %v", err)
	}
	if !event.Mint.Equals(mint) {
		t.Errorf("mint = %s, want %s (WSOL must be skipped)", event.Mint, mint)
	}
	if !event.PoolID.Equals(pool) {
		t.Errorf("pool = %s, want %s", event.PoolID, pool)
	}
	if event.Source != sourceRaydium {
		t.Errorf("source = %q", event.Source)
	}
}

func TestExtractEvent_NoRentMatch(t *testing.T) {
	mint := solana.NewWallet().PublicKey()
	pool := solana.NewWallet().PublicKey()

	var txs []txEnvelope
	if err := json.Unmarshal([]byte(webhookBody(mint.String(), pool.String(), 999)), &txs); err != nil {
		t.Fatal(err)
	}

	_, err := extractEvent(sourceRaydium, txs, testRentLamports)
	if !errors.Is(err, ErrMalformedEvent) {
		t.Errorf("expected ErrMalformedEvent, got %v", err)
	}
}

func TestExtractEvent_OnlyNativeTransfers(t *testing.T) {
	pool := solana.NewWallet().PublicKey()

	var txs []txEnvelope
	body := webhookBody(raydium.WSOLMint.String(), pool.String(), testRentLamports)
	if err := json.Unmarshal([]byte(body), &txs); err != nil {
		t.Fatal(err)
	}

	_, err := extractEvent(sourceRaydium, txs, testRentLamports)
	if !errors.Is(err, ErrMalformedEvent) {
		t.Errorf("expected ErrMalformedEvent, got %v", err)
	}
}

func TestHandleWebhook_MalformedJSON(t *testing.T) {
	server, _ := newTestServer(t)
	handler := server.handleWebhook(sourceRaydium, testRentLamports)

	rec := httptest.NewRecorder()
	handler(rec, httptest.NewRequest(http.MethodPost, "/webhooks/raydium", strings.NewReader("{not json")))

	if rec.Code != http.StatusBadRequest {
		t.Errorf("status = %d, want 400", rec.Code)
	}
}

func TestHandleWebhook_NoExtractableEvent(t *testing.T) {
	server, _ := newTestServer(t)
	handler := server.handleWebhook(sourceRaydium, testRentLamports)

	rec := httptest.NewRecorder()
	handler(rec, httptest.NewRequest(http.MethodPost, "/webhooks/raydium", strings.NewReader("[]")))

	if rec.Code != http.StatusBadRequest {
		t.Errorf("status = %d, want 400", rec.Code)
	}
}

func TestHandleWebhook_MethodNotAllowed(t *testing.T) {
	server, _ := newTestServer(t)
	handler := server.handleWebhook(sourceRaydium, testRentLamports)

	rec := httptest.NewRecorder()
	handler(rec, httptest.NewRequest(http.MethodGet, "/webhooks/raydium", nil))

	if rec.Code != http.StatusMethodNotAllowed {
		t.Errorf("status = %d, want 405", rec.Code)
	}
}

func TestHandleWebhook_AcceptedAndBusyBothAck(t *testing.T) {
	server, exec := newTestServer(t)
	defer close(exec.release)
	handler := server.handleWebhook(sourceRaydium, testRentLamports)

	body := webhookBody(solana.NewWallet().PublicKey().String(), solana.NewWallet().PublicKey().String(), testRentLamports)
	rec := httptest.NewRecorder()
	handler(rec, httptest.NewRequest(http.MethodPost, "/webhooks/raydium", strings.NewReader(body)))
	if rec.Code != http.StatusOK {
		t.Fatalf("first post status = %d, want 200", rec.Code)
	}
	if got := rec.Body.String(); got != "Received" {
		t.Errorf("body = %q, want %q", got, "Received")
	}

	// Engine busy: the drop is internal, the provider still gets a 200.
	body = webhookBody(solana.NewWallet().PublicKey().String(), solana.NewWallet().PublicKey().String(), testRentLamports)
	rec = httptest.NewRecorder()
	handler(rec, httptest.NewRequest(http.MethodPost, "/webhooks/raydium", strings.NewReader(body)))
	if rec.Code != http.StatusOK {
		t.Errorf("busy post status = %d, want 200", rec.Code)
	}
}

func TestWebsocketBroadcast(t *testing.T) {
	server, _ := newTestServer(t)

	ts := httptest.NewServer(http.HandlerFunc(server.handleWebsocket))
	defer ts.Close()

	url := "ws" + strings.TrimPrefix(ts.URL, "http") + "/ws"
	conn, _, err := websocket.DefaultDialer.Dial(url, nil)
	if err != nil {
		t.Fatalf("dial: %v", err)
	}
	defer conn.Close()

	// The handler registers the connection after the handshake; wait
	// until it shows up before broadcasting.
	deadline := time.Now().Add(5 * time.Second)
	for {
		server.mu.Lock()
		registered := len(server.conns) > 0
		server.mu.Unlock()
		if registered {
			break
		}
		if time.Now().After(deadline) {
			t.Fatal("connection never registered")
		}
		time.Sleep(time.Millisecond)
	}

	update := engine.Update{
		Mint:  solana.NewWallet().PublicKey().String(),
		State: engine.StateBought,
		At:    time.Now(),
	}
	server.broadcast(update)

	_ = conn.SetReadDeadline(time.Now().Add(5 * time.Second))
	var got engine.Update
	if err := conn.ReadJSON(&got); err != nil {
		t.Fatalf("read: %v", err)
	}
	if got.Mint != update.Mint || got.State != update.State {
		t.Errorf("got %+v, want mint=%s state=%s", got, update.Mint, update.State)
	}
}
