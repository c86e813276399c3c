package ledger

import "fmt"

// Every operation either fully applies or fails with one of these; no
// partial effects survive a rejection.
var (
	ErrNotOwner             = fmt.Errorf("caller is not the ledger owner")
	ErrZeroAddress          = fmt.Errorf("address must not be empty")
	ErrZeroAmount           = fmt.Errorf("amount must be greater than zero")
	ErrZeroRate             = fmt.Errorf("rate per second must be greater than zero")
	ErrTaxOutOfRange        = fmt.Errorf("tax percent must be between 0 and 100")
	ErrStreamExists         = fmt.Errorf("a live stream already exists for this employee")
	ErrNoStream             = fmt.Errorf("no stream exists for this address")
	ErrStreamNotActive      = fmt.Errorf("stream is not active")
	ErrStreamActive         = fmt.Errorf("stream is already active")
	ErrNothingAccrued       = fmt.Errorf("nothing accrued to withdraw")
	ErrInsufficientTreasury = fmt.Errorf("treasury cannot cover the payout")
	ErrTaxVaultEmpty        = fmt.Errorf("tax vault is empty")
	ErrReentrantCall        = fmt.Errorf("reentrant call rejected")
	ErrAmountOverflow       = fmt.Errorf("amount arithmetic overflow")
)
