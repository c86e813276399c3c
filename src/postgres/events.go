package postgres

import (
	"context"

	"github.com/helapay/paystream/src/model"
	"github.com/jackc/pgx/v5"
	"github.com/pkg/errors"
)

// PutEvent appends a settlement event to the durable audit trail.
func PutEvent(ctx context.Context, ev model.Event) error {
	return DoQuery(ctx, func(conn *pgx.Conn) error {
		_, err := conn.Exec(ctx,
			`INSERT INTO events(id, ledger_id, type, actor, employee, amount, net, tax, tax_percent, reason, timestamp)
				VALUES ($1, $2, $3, $4, $5, $6::numeric, $7::numeric, $8::numeric, $9, $10, $11)
				ON CONFLICT DO NOTHING`,
			ev.Id, ev.LedgerId, string(ev.Type), string(ev.Actor), string(ev.Employee),
			orZero(ev.Amount), orZero(ev.Net), orZero(ev.Tax), ev.TaxPercent, ev.Reason, ev.Timestamp)
		return errors.Wrap(err, "failed to insert settlement event")
	})
}

// GetEventsForLedger replays a ledger's audit trail, oldest first.
func GetEventsForLedger(ctx context.Context, ledgerId string, limit int) ([]model.Event, error) {
	return getEvents(ctx,
		`SELECT id, ledger_id, type, actor, employee, amount::text, net::text, tax::text, tax_percent, reason, timestamp
			FROM events WHERE ledger_id = $1 ORDER BY timestamp ASC LIMIT $2`,
		ledgerId, limit)
}

// GetEventsForEmployee replays the events touching one employee, oldest
// first. This backs the dashboard's withdrawal-history view.
func GetEventsForEmployee(ctx context.Context, ledgerId string, employee model.Address, limit int) ([]model.Event, error) {
	return getEvents(ctx,
		`SELECT id, ledger_id, type, actor, employee, amount::text, net::text, tax::text, tax_percent, reason, timestamp
			FROM events WHERE ledger_id = $1 AND employee = $2 ORDER BY timestamp ASC LIMIT $3`,
		ledgerId, string(employee), limit)
}

func getEvents(ctx context.Context, query string, args ...any) ([]model.Event, error) {
	var out []model.Event
	err := DoQuery(ctx, func(conn *pgx.Conn) error {
		rows, err := conn.Query(ctx, query, args...)
		if err != nil {
			return errors.Wrap(err, "failed querying events")
		}
		defer rows.Close()
		for rows.Next() {
			var ev model.Event
			var evType, actor, employee string
			if err := rows.Scan(&ev.Id, &ev.LedgerId, &evType, &actor, &employee,
				&ev.Amount, &ev.Net, &ev.Tax, &ev.TaxPercent, &ev.Reason, &ev.Timestamp); err != nil {
				return errors.Wrap(err, "failed scanning event row")
			}
			ev.Type = model.EventType(evType)
			ev.Actor = model.Address(actor)
			ev.Employee = model.Address(employee)
			out = append(out, ev)
		}
		return rows.Err()
	})
	return out, err
}

func orZero(amount string) string {
	if amount == "" {
		return "0"
	}
	return amount
}

// EventRecorder adapts the audit trail to the ledger's event sink.
type EventRecorder struct{}

func (EventRecorder) Record(ctx context.Context, ev model.Event) error {
	return PutEvent(ctx, ev)
}

// History adapts the audit tables to the API's history store.
type History struct{}

func (History) EventsForLedger(ctx context.Context, ledgerId string, limit int) ([]model.Event, error) {
	return GetEventsForLedger(ctx, ledgerId, limit)
}

func (History) EventsForEmployee(ctx context.Context, ledgerId string, employee model.Address, limit int) ([]model.Event, error) {
	return GetEventsForEmployee(ctx, ledgerId, employee, limit)
}
