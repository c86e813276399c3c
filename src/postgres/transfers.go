package postgres

import (
	"context"

	"github.com/helapay/paystream/src/model"
	"github.com/jackc/pgx/v5"
	"github.com/pkg/errors"
)

// PutTransfer records one outgoing value transfer on the payout rail.
func PutTransfer(ctx context.Context, t model.Transfer) error {
	return DoQuery(ctx, func(conn *pgx.Conn) error {
		_, err := conn.Exec(ctx,
			`INSERT INTO transfers(id, source, recipient, amount, created)
				VALUES ($1, $2, $3, $4::numeric, $5)
				ON CONFLICT DO NOTHING`,
			t.Id, string(t.From), string(t.To), t.Amount, t.Created)
		return errors.Wrap(err, "failed to insert transfer")
	})
}

func (History) TransfersForRecipient(ctx context.Context, recipient model.Address, limit int) ([]model.Transfer, error) {
	return GetTransfersForRecipient(ctx, recipient, limit)
}

// GetTransfersForRecipient lists a recipient's settled transfers, newest
// first.
func GetTransfersForRecipient(ctx context.Context, recipient model.Address, limit int) ([]model.Transfer, error) {
	var out []model.Transfer
	err := DoQuery(ctx, func(conn *pgx.Conn) error {
		rows, err := conn.Query(ctx,
			`SELECT id, source, recipient, amount::text, created
				FROM transfers WHERE recipient = $1 ORDER BY created DESC LIMIT $2`,
			string(recipient), limit)
		if err != nil {
			return errors.Wrap(err, "failed querying transfers")
		}
		defer rows.Close()
		for rows.Next() {
			var t model.Transfer
			var from, to string
			if err := rows.Scan(&t.Id, &from, &to, &t.Amount, &t.Created); err != nil {
				return errors.Wrap(err, "failed scanning transfer row")
			}
			t.From = model.Address(from)
			t.To = model.Address(to)
			out = append(out, t)
		}
		return rows.Err()
	})
	return out, err
}
