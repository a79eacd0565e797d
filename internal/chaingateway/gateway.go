// Package chaingateway defines the contract the core depends on for every
// on-chain side effect (§6): collateral validation, fund freeze/unfreeze,
// deposits, and settlement batch submission. The core never talks to a real
// chain client directly — it is grounded on
// VictorVVedtion-perp-dex/offchain/matcher's TxSubmitter interface plus its
// MockSubmitter, generalized here to cover the full Chain Gateway surface.
package chaingateway

import (
	"context"
	"fmt"
	"sync"

	"github.com/hyperperp/matchcore/internal/chainscale"
)

// Gateway is the external Chain Gateway contract (§6). Every method is a
// suspension point; callers apply their own timeouts per §5.
type Gateway interface {
	// ValidateCollateral reports whether user has at least amount of
	// available collateral.
	ValidateCollateral(ctx context.Context, user string, amount int64) (bool, error)

	// FreezeFunds locks amount of user's collateral against marketID and
	// returns a transaction hash to confirm. reconciliationKey is a
	// deterministic identifier (§9 open question i) a sweeper could use to
	// replay or refund an interrupted freeze.
	FreezeFunds(ctx context.Context, user string, amount int64, marketID int64, reconciliationKey string) (txHash string, err error)

	// UnfreezeFunds releases amount of previously frozen collateral.
	UnfreezeFunds(ctx context.Context, user string, amount int64) (txHash string, err error)

	// Deposit credits amount of collateral to user.
	Deposit(ctx context.Context, user string, amount int64) (txHash string, err error)

	// SubmitBatch submits a settlement batch payload on-chain.
	SubmitBatch(ctx context.Context, payload chainscale.BatchPayload) (txHash string, err error)

	// WaitForConfirmation polls up to maxAttempts times for txHash to
	// confirm, returning whether it did.
	WaitForConfirmation(ctx context.Context, txHash string, maxAttempts int) (bool, error)
}

// MockGateway is an in-memory Gateway used by tests and local demo wiring.
// Every call succeeds deterministically unless SimulateFailure is set,
// mirroring VictorVVedtion-perp-dex's MockSubmitter.SetSimulateFailure.
type MockGateway struct {
	mu sync.Mutex

	SimulateFailure   bool
	SimulateNoConfirm bool
	Balances          map[string]int64
	Frozen            map[string]int64

	nextTx         int
	SubmittedBatches []chainscale.BatchPayload
}

// NewMockGateway returns a MockGateway with empty balances.
func NewMockGateway() *MockGateway {
	return &MockGateway{
		Balances: make(map[string]int64),
		Frozen:   make(map[string]int64),
	}
}

func (g *MockGateway) nextTxHash() string {
	g.nextTx++
	return fmt.Sprintf("0xmock%06d", g.nextTx)
}

func (g *MockGateway) ValidateCollateral(_ context.Context, user string, amount int64) (bool, error) {
	if g.SimulateFailure {
		return false, fmt.Errorf("chain gateway: simulated failure validating collateral")
	}
	g.mu.Lock()
	defer g.mu.Unlock()
	return g.Balances[user]-g.Frozen[user] >= amount, nil
}

func (g *MockGateway) FreezeFunds(_ context.Context, user string, amount int64, _ int64, _ string) (string, error) {
	if g.SimulateFailure {
		return "", fmt.Errorf("chain gateway: simulated failure freezing funds")
	}
	g.mu.Lock()
	defer g.mu.Unlock()
	g.Frozen[user] += amount
	return g.nextTxHash(), nil
}

func (g *MockGateway) UnfreezeFunds(_ context.Context, user string, amount int64) (string, error) {
	if g.SimulateFailure {
		return "", fmt.Errorf("chain gateway: simulated failure unfreezing funds")
	}
	g.mu.Lock()
	defer g.mu.Unlock()
	g.Frozen[user] -= amount
	if g.Frozen[user] < 0 {
		g.Frozen[user] = 0
	}
	return g.nextTxHash(), nil
}

func (g *MockGateway) Deposit(_ context.Context, user string, amount int64) (string, error) {
	if g.SimulateFailure {
		return "", fmt.Errorf("chain gateway: simulated failure on deposit")
	}
	g.mu.Lock()
	defer g.mu.Unlock()
	g.Balances[user] += amount
	return g.nextTxHash(), nil
}

func (g *MockGateway) SubmitBatch(_ context.Context, payload chainscale.BatchPayload) (string, error) {
	if g.SimulateFailure {
		return "", fmt.Errorf("chain gateway: simulated failure submitting batch")
	}
	g.mu.Lock()
	defer g.mu.Unlock()
	g.SubmittedBatches = append(g.SubmittedBatches, payload)
	return g.nextTxHash(), nil
}

func (g *MockGateway) WaitForConfirmation(_ context.Context, _ string, _ int) (bool, error) {
	if g.SimulateFailure {
		return false, fmt.Errorf("chain gateway: simulated failure confirming tx")
	}
	return !g.SimulateNoConfirm, nil
}
