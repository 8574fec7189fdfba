// Package engine owns the trade lifecycle: single-flight admission of
// pool events, the buy pipeline, and the bounded sell retry loop. All
// state lives in one coordinator goroutine; workers report back over a
// channel and never touch the intent map directly.
package engine

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"sync"
	"time"

	"github.com/gagliardetto/solana-go"

	"github.com/rayfire/sniper/internal/raydium"
	"github.com/rayfire/sniper/internal/safety"
)

// TradePlan is the output of evaluation: everything needed to build
// the buy without touching the chain again.
type TradePlan struct {
	Event PoolEvent
	Keys  *raydium.PoolKeys
	Quote raydium.Quote
}

// BuyOutcome reports a confirmed buy, including the token account the
// sell loop will later drain.
type BuyOutcome struct {
	Signature    solana.Signature
	TokenAccount solana.PublicKey
}

// Position is what the sell loop needs to exit a holding.
type Position struct {
	Mint         solana.PublicKey
	Keys         *raydium.PoolKeys
	TokenAccount solana.PublicKey
}

// Executor performs the chain-facing legs of a trade. The split
// between Evaluate and ExecuteBuy exists so the coordinator can record
// the evaluating→buying transition at the moment capital is committed.
type Executor interface {
	Evaluate(ctx context.Context, event PoolEvent) (*TradePlan, error)
	ExecuteBuy(ctx context.Context, plan *TradePlan) (*BuyOutcome, error)
	ExecuteSell(ctx context.Context, pos Position) (solana.Signature, error)
}

// Journal persists transitions. A nil Journal disables persistence.
type Journal interface {
	RecordTransition(ctx context.Context, u Update) error
}

type Config struct {
	SellDelay         time.Duration
	SellRetryInterval time.Duration
	MaxSellAttempts   int
}

type submitRequest struct {
	event PoolEvent
	reply chan bool
}

type transition struct {
	mint    solana.PublicKey
	state   State
	reason  string
	sig     solana.Signature
	plan    *TradePlan
	outcome *BuyOutcome
}

type Engine struct {
	cfg     Config
	exec    Executor
	journal Journal
	logger  *slog.Logger

	submits     chan submitRequest
	transitions chan transition
	updates     chan Update

	// Owned by the coordinator goroutine only.
	intents   map[solana.PublicKey]*TradeIntent
	accepting bool

	wg sync.WaitGroup
}

func New(cfg Config, exec Executor, journal Journal, logger *slog.Logger) *Engine {
	return &Engine{
		cfg:         cfg,
		exec:        exec,
		journal:     journal,
		logger:      logger,
		submits:     make(chan submitRequest),
		transitions: make(chan transition, 16),
		updates:     make(chan Update, 64),
		intents:     make(map[solana.PublicKey]*TradeIntent),
		accepting:   true,
	}
}

// Updates streams every state transition. The channel is closed when
// Run returns; slow consumers lose updates rather than stalling the
// coordinator.
func (e *Engine) Updates() <-chan Update {
	return e.updates
}

// Submit offers a pool event to the coordinator. It returns false when
// the event is dropped: another trade is in flight, or the same mint
// already has a live position.
func (e *Engine) Submit(ctx context.Context, event PoolEvent) (bool, error) {
	req := submitRequest{event: event, reply: make(chan bool, 1)}
	select {
	case e.submits <- req:
	case <-ctx.Done():
		return false, ctx.Err()
	}
	select {
	case ok := <-req.reply:
		return ok, nil
	case <-ctx.Done():
		return false, ctx.Err()
	}
}

// Run is the coordinator loop. It returns once ctx is cancelled and
// all workers have drained.
func (e *Engine) Run(ctx context.Context) error {
	e.logger.Info("trade engine started",
		slog.Duration("sell_delay", e.cfg.SellDelay),
		slog.Int("max_sell_attempts", e.cfg.MaxSellAttempts))

	for {
		select {
		case <-ctx.Done():
			e.wg.Wait()
			close(e.updates)
			e.logger.Info("trade engine stopped")
			return nil

		case req := <-e.submits:
			req.reply <- e.admit(ctx, req.event)

		case tr := <-e.transitions:
			e.apply(ctx, tr)
		}
	}
}

// admit decides synchronously whether the event starts a trade. At
// most one intent is in a non-terminal pre-bought state at any time.
func (e *Engine) admit(ctx context.Context, event PoolEvent) bool {
	if !e.accepting {
		e.logger.Info("event dropped, trade in flight",
			slog.String("mint", event.Mint.String()),
			slog.String("source", event.Source))
		return false
	}
	if prev, ok := e.intents[event.Mint]; ok && !prev.State.Terminal() {
		e.logger.Info("event dropped, mint already active",
			slog.String("mint", event.Mint.String()),
			slog.String("state", string(prev.State)))
		return false
	}

	now := time.Now()
	intent := &TradeIntent{
		Mint:      event.Mint,
		PoolID:    event.PoolID,
		Source:    event.Source,
		State:     StateEvaluating,
		CreatedAt: now,
		UpdatedAt: now,
	}
	e.intents[event.Mint] = intent
	e.accepting = false
	e.emit(ctx, intent)

	e.wg.Add(1)
	go e.runBuy(ctx, event)
	return true
}

// apply is the only place intent state changes. The admission gate is
// reopened exactly once per trade: when the buy leg ends, whatever way
// it ends. The sell leg runs outside the gate.
func (e *Engine) apply(ctx context.Context, tr transition) {
	intent, ok := e.intents[tr.mint]
	if !ok {
		e.logger.Warn("transition for unknown mint", slog.String("mint", tr.mint.String()))
		return
	}
	if intent.State.Terminal() {
		e.logger.Warn("transition after terminal state",
			slog.String("mint", tr.mint.String()),
			slog.String("state", string(intent.State)))
		return
	}

	buyLegEnded := (intent.State == StateEvaluating || intent.State == StateBuying) &&
		(tr.state == StateBought || tr.state.Terminal())

	intent.State = tr.state
	intent.Reason = tr.reason
	intent.UpdatedAt = time.Now()
	switch tr.state {
	case StateBought:
		intent.BuySignature = tr.sig
	case StateClosed:
		intent.SellSignature = tr.sig
	}
	e.emit(ctx, intent)

	if buyLegEnded {
		e.accepting = true
	}

	if tr.state == StateBought {
		pos := Position{
			Mint:         tr.mint,
			Keys:         tr.plan.Keys,
			TokenAccount: tr.outcome.TokenAccount,
		}
		e.wg.Add(1)
		go e.runSell(ctx, pos)
	}
}

func (e *Engine) emit(ctx context.Context, intent *TradeIntent) {
	u := Update{
		Mint:   intent.Mint.String(),
		Pool:   intent.PoolID.String(),
		Source: intent.Source,
		State:  intent.State,
		Reason: intent.Reason,
		At:     intent.UpdatedAt,
	}
	switch {
	case intent.State == StateBought && !intent.BuySignature.IsZero():
		u.Signature = intent.BuySignature.String()
	case intent.State == StateClosed && !intent.SellSignature.IsZero():
		u.Signature = intent.SellSignature.String()
	}

	e.logger.Info("trade transition",
		slog.String("mint", u.Mint),
		slog.String("state", string(u.State)),
		slog.String("reason", u.Reason))

	if e.journal != nil {
		if err := e.journal.RecordTransition(ctx, u); err != nil {
			e.logger.Warn("journal write failed", slog.Any("error", err))
		}
	}

	select {
	case e.updates <- u:
	default:
	}
}

func (e *Engine) report(ctx context.Context, tr transition) {
	select {
	case e.transitions <- tr:
	case <-ctx.Done():
	}
}

func (e *Engine) runBuy(ctx context.Context, event PoolEvent) {
	defer e.wg.Done()

	plan, err := e.exec.Evaluate(ctx, event)
	if err != nil {
		state := StateFailed
		if isPolicyRejection(err) {
			state = StateRejected
		}
		e.report(ctx, transition{mint: event.Mint, state: state, reason: err.Error()})
		return
	}

	e.report(ctx, transition{mint: event.Mint, state: StateBuying})

	outcome, err := e.exec.ExecuteBuy(ctx, plan)
	if err != nil {
		e.report(ctx, transition{mint: event.Mint, state: StateFailed, reason: err.Error()})
		return
	}

	e.report(ctx, transition{
		mint:    event.Mint,
		state:   StateBought,
		sig:     outcome.Signature,
		plan:    plan,
		outcome: outcome,
	})
}

func (e *Engine) runSell(ctx context.Context, pos Position) {
	defer e.wg.Done()

	select {
	case <-time.After(e.cfg.SellDelay):
	case <-ctx.Done():
		return
	}

	e.report(ctx, transition{mint: pos.Mint, state: StateSelling})

	for attempt := 1; ; attempt++ {
		sig, err := e.exec.ExecuteSell(ctx, pos)
		if err == nil {
			e.report(ctx, transition{mint: pos.Mint, state: StateClosed, sig: sig})
			return
		}
		if ctx.Err() != nil {
			return
		}

		e.logger.Warn("sell attempt failed",
			slog.String("mint", pos.Mint.String()),
			slog.Int("attempt", attempt),
			slog.Any("error", err))

		if e.cfg.MaxSellAttempts > 0 && attempt >= e.cfg.MaxSellAttempts {
			e.report(ctx, transition{
				mint:   pos.Mint,
				state:  StateFailed,
				reason: fmt.Sprintf("position unsold after %d attempts: %v", attempt, err),
			})
			return
		}

		select {
		case <-time.After(e.cfg.SellRetryInterval):
		case <-ctx.Done():
			return
		}
	}
}

// Policy rejections are deliberate refusals by the safety gate, as
// opposed to infrastructure or chain failures.
func isPolicyRejection(err error) bool {
	return errors.Is(err, safety.ErrInsufficientLiquidity) ||
		errors.Is(err, safety.ErrUnsafeToken) ||
		errors.Is(err, safety.ErrLiquidityTooLow)
}
