package engine

import (
	"errors"
	"time"

	"github.com/gagliardetto/solana-go"
)

var (
	ErrSubmissionFailed    = errors.New("transaction submission failed")
	ErrOnChainRejected     = errors.New("transaction rejected on chain")
	ErrConfirmationTimeout = errors.New("confirmation timed out")
)

// State is the lifecycle position of a trade intent. Terminal states
// are closed, rejected and failed; nothing transitions out of them.
type State string

const (
	StateEvaluating State = "evaluating"
	StateBuying     State = "buying"
	StateBought     State = "bought"
	StateSelling    State = "selling"
	StateClosed     State = "closed"
	StateRejected   State = "rejected"
	StateFailed     State = "failed"
)

func (s State) Terminal() bool {
	return s == StateClosed || s == StateRejected || s == StateFailed
}

// PoolEvent is one detected pool, already extracted and validated at
// the ingress.
type PoolEvent struct {
	Source     string
	Mint       solana.PublicKey
	PoolID     solana.PublicKey
	ReceivedAt time.Time
}

// TradeIntent tracks one mint through its whole lifecycle. Intents are
// owned exclusively by the coordinator goroutine; everything else sees
// them as Update snapshots.
type TradeIntent struct {
	Mint          solana.PublicKey
	PoolID        solana.PublicKey
	Source        string
	State         State
	Reason        string
	BuySignature  solana.Signature
	SellSignature solana.Signature
	CreatedAt     time.Time
	UpdatedAt     time.Time
}

// Update is the externally visible snapshot of a state transition,
// shaped for JSON streaming and journaling.
type Update struct {
	Mint      string    `json:"mint"`
	Pool      string    `json:"pool"`
	Source    string    `json:"source"`
	State     State     `json:"state"`
	Reason    string    `json:"reason,omitempty"`
	Signature string    `json:"signature,omitempty"`
	At        time.Time `json:"at"`
}
