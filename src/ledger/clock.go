package ledger

import "time"

// Clock supplies the accrual timestamps in unix seconds. Accrual is lazy,
// computed on read as a function of elapsed time, so the tests swap in a
// manual clock instead of sleeping.
type Clock interface {
	Now() int64
}

type systemClock struct{}

func (systemClock) Now() int64 { return time.Now().Unix() }

func SystemClock() Clock { return systemClock{} }
