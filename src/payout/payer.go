package payout

import (
	"context"
	"time"

	"github.com/google/uuid"
	"github.com/helapay/paystream/src/model"
	"github.com/helapay/paystream/src/postgres"
	"github.com/holiman/uint256"
	"github.com/pkg/errors"
)

// PostgresPayer settles payouts by recording them on the transfers table.
// The demo has no real chain behind it; the table is the payout rail the
// off-ramp simulation reads from.
type PostgresPayer struct {
	source model.Address
}

func NewPostgresPayer(treasuryAddress model.Address) *PostgresPayer {
	return &PostgresPayer{source: treasuryAddress}
}

func (p *PostgresPayer) Send(ctx context.Context, to model.Address, amount *uint256.Int) error {
	err := postgres.PutTransfer(ctx, model.Transfer{
		Id:      uuid.NewString(),
		From:    p.source,
		To:      to,
		Amount:  amount.Dec(),
		Created: time.Now().UTC(),
	})
	return errors.Wrap(err, "failed settling transfer")
}
