package ledger

import (
	"context"

	"github.com/helapay/paystream/src/model"
	"github.com/holiman/uint256"
)

// Payer performs the outbound value transfer for a settled payout. The
// ledger treats every Send as potentially reentering it; all accounting
// state is mutated before Send is called and rolled back if it fails.
type Payer interface {
	Send(ctx context.Context, to model.Address, amount *uint256.Int) error
}

type Transaction struct {
	To     model.Address
	Amount *uint256.Int
}

// MockPayer records transfers instead of executing them.
type MockPayer struct {
	Transactions []*Transaction
}

func NewMockPayer() *MockPayer {
	return &MockPayer{}
}

func (mp *MockPayer) Send(ctx context.Context, to model.Address, amount *uint256.Int) error {
	mp.Transactions = append(mp.Transactions, &Transaction{
		To:     to,
		Amount: amount.Clone(),
	})
	return nil
}
