package model

type EventType string

const ( // needs to match `event_type` in pg
	EventDeposit              EventType = "deposit"
	EventStreamCreated        EventType = "stream_created"
	EventStreamPaused         EventType = "stream_paused"
	EventStreamResumed        EventType = "stream_resumed"
	EventStreamCancelled      EventType = "stream_cancelled"
	EventWithdrawal           EventType = "withdrawal"
	EventBonus                EventType = "bonus"
	EventTaxWithdrawal        EventType = "tax_withdrawal"
	EventOwnershipTransferred EventType = "ownership_transferred"
)

// Event is the append-only audit record emitted by every ledger mutation.
// Dashboards replay these to rebuild withdrawal history, so each event
// carries the full monetary split (gross/net/tax) as decimal base-unit
// strings rather than forcing observers to re-query state.
type Event struct {
	Id         string    `json:"id"`
	LedgerId   string    `json:"ledger_id"`
	Type       EventType `json:"type"`
	Actor      Address   `json:"actor,omitempty"`
	Employee   Address   `json:"employee,omitempty"`
	Amount     string    `json:"amount,omitempty"`
	Net        string    `json:"net,omitempty"`
	Tax        string    `json:"tax,omitempty"`
	TaxPercent uint64    `json:"tax_percent,omitempty"`
	Reason     string    `json:"reason,omitempty"`
	Timestamp  int64     `json:"timestamp"`
}
