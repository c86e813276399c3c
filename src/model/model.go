package model

import (
	"fmt"
	"time"

	"github.com/holiman/uint256"
)

// Address identifies a wallet on the payment rail. The settlement core only
// cares that it is non-empty and stable; checksumming is the client's job.
type Address string

const ZeroAddress = Address("")

// All monetary values are 18-decimal fixed-point base units (1 HLUSD = 1e18).
const AmountDecimals = 18

type StreamStatus string

const (
	StreamStatusActive    StreamStatus = "active"
	StreamStatusPaused    StreamStatus = "paused"
	StreamStatusCancelled StreamStatus = "cancelled"
)

// StreamInfo is the read-model view of a salary stream, polled by dashboards.
// Amounts are decimal strings of base units.
type StreamInfo struct {
	Employee      Address      `json:"employee"`
	RatePerSecond string       `json:"rate_per_second"`
	TaxPercent    uint64       `json:"tax_percent"`
	StartTime     int64        `json:"start_time"`
	LastWithdraw  int64        `json:"last_withdraw"`
	Status        StreamStatus `json:"status"`
}

// Transfer is one outgoing value transfer from a treasury to a recipient,
// recorded on the payout rail.
type Transfer struct {
	Id      string    `json:"id"`
	From    Address   `json:"from"`
	To      Address   `json:"to"`
	Amount  string    `json:"amount"`
	Created time.Time `json:"created"`
}

// ParseAmount parses a decimal base-unit string into an unsigned 256-bit
// amount. Rejects empty strings, signs, and anything over 256 bits.
func ParseAmount(s string) (*uint256.Int, error) {
	v, err := uint256.FromDecimal(s)
	if err != nil {
		return nil, fmt.Errorf("invalid amount %q: %w", s, err)
	}
	return v, nil
}
