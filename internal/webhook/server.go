// Package webhook is the ingress: it turns enhanced-transaction
// webhook posts into validated pool events and streams trade
// transitions out over a websocket.
package webhook

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"log/slog"
	"net/http"
	"sync"
	"time"

	"github.com/gagliardetto/solana-go"
	"github.com/gorilla/websocket"

	"github.com/rayfire/sniper/internal/config"
	"github.com/rayfire/sniper/internal/engine"
	"github.com/rayfire/sniper/internal/raydium"
)

// ErrMalformedEvent marks a payload that decoded but carries no
// extractable pool event. Malformed posts change no engine state.
var ErrMalformedEvent = errors.New("malformed webhook event")

const (
	sourceRaydium = "raydium"
	sourcePump    = "pumpfun"
)

// txEnvelope is the enhanced-transaction shape the webhook provider
// posts: one array of these per notification.
type txEnvelope struct {
	TokenTransfers []struct {
		Mint string `json:"mint"`
	} `json:"tokenTransfers"`
	AccountData []struct {
		Account             string `json:"account"`
		NativeBalanceChange int64  `json:"nativeBalanceChange"`
	} `json:"accountData"`
}

type Server struct {
	cfg    config.SniperConfig
	engine *engine.Engine
	logger *slog.Logger

	mu    sync.Mutex
	conns map[*websocket.Conn]struct{}
}

var upgrader = websocket.Upgrader{
	ReadBufferSize:  1024,
	WriteBufferSize: 1024,
	CheckOrigin:     func(*http.Request) bool { return true },
}

func New(cfg config.SniperConfig, eng *engine.Engine, logger *slog.Logger) *Server {
	return &Server{
		cfg:    cfg,
		engine: eng,
		logger: logger,
		conns:  make(map[*websocket.Conn]struct{}),
	}
}

// Run serves until ctx is cancelled. It also pumps engine updates to
// every connected websocket client.
func (s *Server) Run(ctx context.Context) error {
	mux := http.NewServeMux()
	mux.HandleFunc("/healthz", s.handleHealth)
	mux.HandleFunc("/webhooks/raydium", s.handleWebhook(sourceRaydium, s.cfg.RaydiumPoolRentLamports))
	mux.HandleFunc("/webhooks/pumpfun", s.handleWebhook(sourcePump, s.cfg.PumpPoolRentLamports))
	mux.HandleFunc("/ws", s.handleWebsocket)

	server := &http.Server{
		Addr:         s.cfg.ListenAddr,
		Handler:      mux,
		ReadTimeout:  s.cfg.ReadTimeout,
		WriteTimeout: s.cfg.WriteTimeout,
		IdleTimeout:  s.cfg.IdleTimeout,
	}

	go s.pumpUpdates(ctx)

	errCh := make(chan error, 1)
	go func() {
		err := server.ListenAndServe()
		if errors.Is(err, http.ErrServerClosed) {
			errCh <- nil
			return
		}
		errCh <- err
	}()

	s.logger.Info("webhook server started", "listen_addr", s.cfg.ListenAddr)

	select {
	case <-ctx.Done():
		s.logger.Info("webhook server stopping")
		if err := server.Shutdown(context.Background()); err != nil {
			return fmt.Errorf("shutdown webhook server: %w", err)
		}
		return <-errCh
	case err := <-errCh:
		if err != nil {
			return fmt.Errorf("listen and serve: %w", err)
		}
		return nil
	}
}

type healthResponse struct {
	OK bool `json:"ok"`
}

type errorResponse struct {
	Error string `json:"error"`
}

func (s *Server) handleHealth(w http.ResponseWriter, r *http.Request) {
	s.respondJSON(w, http.StatusOK, healthResponse{OK: true})
}

func (s *Server) handleWebhook(source string, rentLamports int64) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		if r.Method != http.MethodPost {
			s.respondError(w, http.StatusMethodNotAllowed, "method not allowed")
			return
		}

		var txs []txEnvelope
		if err := json.NewDecoder(r.Body).Decode(&txs); err != nil {
			s.respondError(w, http.StatusBadRequest, "invalid payload")
			return
		}

		event, err := extractEvent(source, txs, rentLamports)
		if err != nil {
			s.logger.Warn("webhook rejected",
				"source", source,
				"err", err)
			s.respondError(w, http.StatusBadRequest, err.Error())
			return
		}

		accepted, err := s.engine.Submit(r.Context(), event)
		if err != nil {
			s.respondError(w, http.StatusServiceUnavailable, "engine unavailable")
			return
		}
		if !accepted {
			s.logger.Info("event dropped",
				"source", source,
				"mint", event.Mint.String())
		}

		// The provider only needs to know delivery succeeded; dropped
		// events are an internal decision, not a delivery failure.
		w.WriteHeader(http.StatusOK)
		_, _ = w.Write([]byte("Received"))
	}
}

// extractEvent pulls the traded mint and the pool account out of the
// notification. The pool account is identified by its exact creation
// rent deposit; the mint is the first transferred token that is not
// the wrapped native token.
func extractEvent(source string, txs []txEnvelope, rentLamports int64) (engine.PoolEvent, error) {
	for _, tx := range txs {
		var mint solana.PublicKey
		for _, transfer := range tx.TokenTransfers {
			pk, err := solana.PublicKeyFromBase58(transfer.Mint)
			if err != nil {
				continue
			}
			if pk.Equals(raydium.WSOLMint) {
				continue
			}
			mint = pk
			break
		}
		if mint.IsZero() {
			continue
		}

		for _, acct := range tx.AccountData {
			if acct.NativeBalanceChange != rentLamports {
				continue
			}
			poolID, err := solana.PublicKeyFromBase58(acct.Account)
			if err != nil {
				continue
			}
			return engine.PoolEvent{
				Source:     source,
				Mint:       mint,
				PoolID:     poolID,
				ReceivedAt: time.Now(),
			}, nil
		}
	}
	return engine.PoolEvent{}, fmt.Errorf("%w: no pool creation found in payload", ErrMalformedEvent)
}

func (s *Server) handleWebsocket(w http.ResponseWriter, r *http.Request) {
	conn, err := upgrader.Upgrade(w, r, nil)
	if err != nil {
		s.logger.Error("websocket upgrade failed", "err", err)
		return
	}

	s.mu.Lock()
	s.conns[conn] = struct{}{}
	s.mu.Unlock()

	// Reads are discarded; the socket exists to stream updates out.
	go func() {
		defer s.dropConn(conn)
		for {
			if _, _, err := conn.ReadMessage(); err != nil {
				return
			}
		}
	}()
}

func (s *Server) dropConn(conn *websocket.Conn) {
	s.mu.Lock()
	delete(s.conns, conn)
	s.mu.Unlock()
	_ = conn.Close()
}

func (s *Server) pumpUpdates(ctx context.Context) {
	for {
		select {
		case <-ctx.Done():
			return
		case update, ok := <-s.engine.Updates():
			if !ok {
				return
			}
			s.broadcast(update)
		}
	}
}

func (s *Server) broadcast(update engine.Update) {
	s.mu.Lock()
	conns := make([]*websocket.Conn, 0, len(s.conns))
	for conn := range s.conns {
		conns = append(conns, conn)
	}
	s.mu.Unlock()

	for _, conn := range conns {
		_ = conn.SetWriteDeadline(time.Now().Add(5 * time.Second))
		if err := conn.WriteJSON(update); err != nil {
			s.dropConn(conn)
		}
	}
}

func (s *Server) respondError(w http.ResponseWriter, code int, message string) {
	s.respondJSON(w, code, errorResponse{Error: message})
}

func (s *Server) respondJSON(w http.ResponseWriter, code int, payload any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(code)
	if err := json.NewEncoder(w).Encode(payload); err != nil {
		s.logger.Error("failed to write JSON response", "err", err)
	}
}
