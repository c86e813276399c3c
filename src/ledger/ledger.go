package ledger

import (
	"context"
	"sync"

	"github.com/google/uuid"
	"github.com/helapay/paystream/src/model"
	"github.com/holiman/uint256"
	"github.com/pkg/errors"
	"go.uber.org/zap"
)

// EventSink receives every settlement event after the operation that emitted
// it has fully settled. Sink failures are logged and dropped; they never
// unwind a settled operation.
type EventSink interface {
	Record(ctx context.Context, event model.Event) error
}

// stream is one employee's salary stream. reserve holds entitlement banked
// by pause cycles; live accrual on top of it is rate * (now - lastWithdraw)
// while active.
type stream struct {
	rate         *uint256.Int
	taxPercent   uint64
	startTime    int64
	lastWithdraw int64
	reserve      *uint256.Int
	active       bool
	exists       bool
}

// defaultJournalCap bounds the in-memory event journal. Older events fall
// off the window; the durable trail lives in the sinks.
const defaultJournalCap = 4096

// Ledger is one organization's settlement state: treasury, salary streams,
// tax vault and bonus totals. All mutation goes through its methods; each
// call runs to completion atomically with respect to every other call.
type Ledger struct {
	mu   sync.Mutex
	cond *sync.Cond
	busy bool

	id         string
	owner      model.Address
	treasury   *uint256.Int
	taxVault   *uint256.Int
	bonusTotal *uint256.Int

	streams  map[model.Address]*stream
	registry []model.Address

	clock      Clock
	payer      Payer
	sinks      []EventSink
	events     []model.Event
	journalCap int
	logger     *zap.Logger
}

type Option func(*Ledger)

func WithClock(c Clock) Option {
	return func(l *Ledger) { l.clock = c }
}

func WithEventSink(s EventSink) Option {
	return func(l *Ledger) { l.sinks = append(l.sinks, s) }
}

// WithJournalCap overrides the in-memory journal window.
func WithJournalCap(n int) Option {
	return func(l *Ledger) { l.journalCap = n }
}

func New(owner model.Address, payer Payer, logger *zap.Logger, opts ...Option) (*Ledger, error) {
	if owner == model.ZeroAddress {
		return nil, ErrZeroAddress
	}
	id := uuid.NewString()
	l := &Ledger{
		id:         id,
		owner:      owner,
		treasury:   uint256.NewInt(0),
		taxVault:   uint256.NewInt(0),
		bonusTotal: uint256.NewInt(0),
		streams:    map[model.Address]*stream{},
		clock:      SystemClock(),
		payer:      payer,
		journalCap: defaultJournalCap,
		logger:     logger.Named("ledger").With(zap.String("ledger", id)),
	}
	l.cond = sync.NewCond(&l.mu)
	for _, opt := range opts {
		opt(l)
	}
	return l, nil
}

func (l *Ledger) Id() string { return l.id }

// reentryKey marks the context handed to Payer.Send, so a callback from
// inside the transfer is distinguishable from an ordinary concurrent caller.
type reentryKey struct{}

// enter serializes mutating operations. The busy flag stays set across the
// external transfer; a payer that calls back into a mutating method with the
// transfer's context gets ErrReentrantCall instead of reading stale
// accounting state, while unrelated concurrent callers wait their turn.
// The mutex is held on return.
func (l *Ledger) enter(ctx context.Context) error {
	l.mu.Lock()
	for l.busy {
		if ctx.Value(reentryKey{}) == l {
			l.mu.Unlock()
			return ErrReentrantCall
		}
		l.cond.Wait()
	}
	l.busy = true
	return nil
}

func (l *Ledger) exit() {
	l.busy = false
	l.cond.Broadcast()
	l.mu.Unlock()
}

// send releases the mutex around the external transfer so that reads stay
// serviceable, but keeps busy set so mutating reentry is rejected.
func (l *Ledger) send(ctx context.Context, to model.Address, amount *uint256.Int) error {
	ctx = context.WithValue(ctx, reentryKey{}, l)
	l.mu.Unlock()
	defer l.mu.Lock()
	return l.payer.Send(ctx, to, amount)
}

func (l *Ledger) emit(ctx context.Context, ev model.Event) {
	ev.Id = uuid.NewString()
	ev.LedgerId = l.id
	ev.Timestamp = l.clock.Now()
	l.events = append(l.events, ev)
	if l.journalCap > 0 && len(l.events) > l.journalCap {
		l.events = append([]model.Event(nil), l.events[len(l.events)-l.journalCap:]...)
	}
	for _, sink := range l.sinks {
		if err := sink.Record(ctx, ev); err != nil {
			l.logger.Error("failed recording settlement event",
				zap.String("type", string(ev.Type)), zap.Error(err))
		}
	}
}

// Deposit credits amount to the treasury. Anyone may fund the treasury.
func (l *Ledger) Deposit(ctx context.Context, from model.Address, amount *uint256.Int) error {
	if amount == nil || amount.IsZero() {
		return ErrZeroAmount
	}
	if err := l.enter(ctx); err != nil {
		return err
	}
	defer l.exit()
	next, overflow := new(uint256.Int).AddOverflow(l.treasury, amount)
	if overflow {
		return ErrAmountOverflow
	}
	l.treasury = next
	l.emit(ctx, model.Event{Type: model.EventDeposit, Actor: from, Amount: amount.Dec()})
	return nil
}

// CreateStream registers a per-second salary stream for employee. No
// solvency check is made against future payroll on purpose: the stream is a
// forward-looking promise and the employer is trusted to keep the treasury
// funded, rather than pre-escrowing total committed pay.
func (l *Ledger) CreateStream(ctx context.Context, caller, employee model.Address, ratePerSecond *uint256.Int, taxPercent uint64) error {
	if err := l.enter(ctx); err != nil {
		return err
	}
	defer l.exit()
	if caller != l.owner {
		return ErrNotOwner
	}
	if employee == model.ZeroAddress {
		return ErrZeroAddress
	}
	if ratePerSecond == nil || ratePerSecond.IsZero() {
		return ErrZeroRate
	}
	if taxPercent > 100 {
		return ErrTaxOutOfRange
	}
	prev, seen := l.streams[employee]
	if seen && prev.exists {
		return ErrStreamExists
	}
	now := l.clock.Now()
	l.streams[employee] = &stream{
		rate:         ratePerSecond.Clone(),
		taxPercent:   taxPercent,
		startTime:    now,
		lastWithdraw: now,
		reserve:      uint256.NewInt(0),
		active:       true,
		exists:       true,
	}
	if !seen {
		l.registry = append(l.registry, employee)
	}
	l.emit(ctx, model.Event{
		Type:       model.EventStreamCreated,
		Actor:      caller,
		Employee:   employee,
		Amount:     ratePerSecond.Dec(),
		TaxPercent: taxPercent,
	})
	l.logger.Info("stream created", zap.String("employee", string(employee)),
		zap.String("rate", ratePerSecond.Dec()), zap.Uint64("tax_percent", taxPercent))
	return nil
}

// PauseStream freezes accrual: the live entitlement is banked into the
// stream's reserve and the anchor advances, so no time-based entitlement is
// lost or double-counted across any number of pause/resume cycles.
func (l *Ledger) PauseStream(ctx context.Context, caller, employee model.Address) error {
	if err := l.enter(ctx); err != nil {
		return err
	}
	defer l.exit()
	if caller != l.owner {
		return ErrNotOwner
	}
	s, err := l.liveStream(employee)
	if err != nil {
		return err
	}
	if !s.active {
		return ErrStreamNotActive
	}
	frozen, err := l.accruedLocked(s)
	if err != nil {
		return err
	}
	s.reserve = frozen
	s.lastWithdraw = l.clock.Now()
	s.active = false
	l.emit(ctx, model.Event{
		Type:     model.EventStreamPaused,
		Actor:    caller,
		Employee: employee,
		Amount:   frozen.Dec(),
	})
	return nil
}

// ResumeStream restarts accrual from now; the banked reserve is untouched,
// so the paused interval contributes nothing.
func (l *Ledger) ResumeStream(ctx context.Context, caller, employee model.Address) error {
	if err := l.enter(ctx); err != nil {
		return err
	}
	defer l.exit()
	if caller != l.owner {
		return ErrNotOwner
	}
	s, err := l.liveStream(employee)
	if err != nil {
		return err
	}
	if s.active {
		return ErrStreamActive
	}
	s.lastWithdraw = l.clock.Now()
	s.active = true
	l.emit(ctx, model.Event{Type: model.EventStreamResumed, Actor: caller, Employee: employee})
	return nil
}

// CancelStream settles any outstanding accrual to the employee through the
// standard tax-splitting payout, then terminates the stream. Cancelled
// employees stay in the registry for enumeration.
func (l *Ledger) CancelStream(ctx context.Context, caller, employee model.Address) error {
	if err := l.enter(ctx); err != nil {
		return err
	}
	defer l.exit()
	if caller != l.owner {
		return ErrNotOwner
	}
	s, err := l.liveStream(employee)
	if err != nil {
		return err
	}
	gross, err := l.accruedLocked(s)
	if err != nil {
		return err
	}
	net, tax := uint256.NewInt(0), uint256.NewInt(0)
	if !gross.IsZero() {
		net, tax, err = l.payoutLocked(ctx, s, employee, gross)
		if err != nil {
			return err
		}
	}
	s.active = false
	s.exists = false
	s.reserve = uint256.NewInt(0)
	l.emit(ctx, model.Event{
		Type:     model.EventStreamCancelled,
		Actor:    caller,
		Employee: employee,
		Amount:   gross.Dec(),
		Net:      net.Dec(),
		Tax:      tax.Dec(),
	})
	l.logger.Info("stream cancelled", zap.String("employee", string(employee)),
		zap.String("settled", gross.Dec()))
	return nil
}

// Withdraw pays the caller their accrued entitlement, split into net and
// withheld tax. Returns the net and tax amounts actually settled.
func (l *Ledger) Withdraw(ctx context.Context, caller model.Address) (*uint256.Int, *uint256.Int, error) {
	if err := l.enter(ctx); err != nil {
		return nil, nil, err
	}
	defer l.exit()
	s, err := l.liveStream(caller)
	if err != nil {
		return nil, nil, err
	}
	gross, err := l.accruedLocked(s)
	if err != nil {
		return nil, nil, err
	}
	if gross.IsZero() {
		return nil, nil, ErrNothingAccrued
	}
	net, tax, err := l.payoutLocked(ctx, s, caller, gross)
	if err != nil {
		return nil, nil, err
	}
	l.emit(ctx, model.Event{
		Type:       model.EventWithdrawal,
		Employee:   caller,
		Amount:     gross.Dec(),
		Net:        net.Dec(),
		Tax:        tax.Dec(),
		TaxPercent: s.taxPercent,
	})
	l.logger.Info("withdrawal settled", zap.String("employee", string(caller)),
		zap.String("net", net.Dec()), zap.String("tax", tax.Dec()))
	return net, tax, nil
}

// payoutLocked settles gross for employee: deducts the treasury, credits the
// tax vault, resets the accrual anchor, then transfers the net amount. The
// state mutation strictly precedes the transfer (Checks-Effects-
// Interactions); if the transfer fails every mutation is undone, which is
// safe because busy is held for the whole call.
func (l *Ledger) payoutLocked(ctx context.Context, s *stream, employee model.Address, gross *uint256.Int) (*uint256.Int, *uint256.Int, error) {
	if l.treasury.Lt(gross) {
		return nil, nil, ErrInsufficientTreasury
	}
	net, tax, err := splitTax(gross, s.taxPercent)
	if err != nil {
		return nil, nil, err
	}
	vault, overflow := new(uint256.Int).AddOverflow(l.taxVault, tax)
	if overflow {
		return nil, nil, ErrAmountOverflow
	}

	prevTreasury, prevVault := l.treasury, l.taxVault
	prevReserve, prevAnchor := s.reserve, s.lastWithdraw
	l.treasury = new(uint256.Int).Sub(l.treasury, gross)
	l.taxVault = vault
	s.reserve = uint256.NewInt(0)
	s.lastWithdraw = l.clock.Now()

	if err := l.send(ctx, employee, net); err != nil {
		l.treasury, l.taxVault = prevTreasury, prevVault
		s.reserve, s.lastWithdraw = prevReserve, prevAnchor
		return nil, nil, errors.Wrap(err, "payout transfer failed")
	}
	return net, tax, nil
}

// splitTax computes the withholding split. Division truncates toward zero
// and the remainder always stays with the net amount, so net + tax == gross
// exactly.
func splitTax(gross *uint256.Int, taxPercent uint64) (*uint256.Int, *uint256.Int, error) {
	scaled, overflow := new(uint256.Int).MulOverflow(gross, uint256.NewInt(taxPercent))
	if overflow {
		return nil, nil, ErrAmountOverflow
	}
	tax := scaled.Div(scaled, uint256.NewInt(100))
	net := new(uint256.Int).Sub(gross, tax)
	return net, tax, nil
}

// SendBonus transfers a one-time, un-accrued amount from the treasury to an
// employee, independent of any stream state.
func (l *Ledger) SendBonus(ctx context.Context, caller, employee model.Address, amount *uint256.Int, reason string) error {
	if err := l.enter(ctx); err != nil {
		return err
	}
	defer l.exit()
	if caller != l.owner {
		return ErrNotOwner
	}
	if employee == model.ZeroAddress {
		return ErrZeroAddress
	}
	if amount == nil || amount.IsZero() {
		return ErrZeroAmount
	}
	if l.treasury.Lt(amount) {
		return ErrInsufficientTreasury
	}
	total, overflow := new(uint256.Int).AddOverflow(l.bonusTotal, amount)
	if overflow {
		return ErrAmountOverflow
	}

	prevTreasury, prevTotal := l.treasury, l.bonusTotal
	l.treasury = new(uint256.Int).Sub(l.treasury, amount)
	l.bonusTotal = total

	if err := l.send(ctx, employee, amount); err != nil {
		l.treasury, l.bonusTotal = prevTreasury, prevTotal
		return errors.Wrap(err, "bonus transfer failed")
	}
	l.emit(ctx, model.Event{
		Type:     model.EventBonus,
		Actor:    caller,
		Employee: employee,
		Amount:   amount.Dec(),
		Reason:   reason,
	})
	return nil
}

// WithdrawTax transfers the entire tax vault to the owner and zeroes it.
func (l *Ledger) WithdrawTax(ctx context.Context, caller model.Address) (*uint256.Int, error) {
	if err := l.enter(ctx); err != nil {
		return nil, err
	}
	defer l.exit()
	if caller != l.owner {
		return nil, ErrNotOwner
	}
	if l.taxVault.IsZero() {
		return nil, ErrTaxVaultEmpty
	}
	amount := l.taxVault
	l.taxVault = uint256.NewInt(0)
	if err := l.send(ctx, l.owner, amount); err != nil {
		l.taxVault = amount
		return nil, errors.Wrap(err, "tax withdrawal transfer failed")
	}
	l.emit(ctx, model.Event{Type: model.EventTaxWithdrawal, Actor: caller, Amount: amount.Dec()})
	return amount.Clone(), nil
}

func (l *Ledger) TransferOwnership(ctx context.Context, caller, newOwner model.Address) error {
	if err := l.enter(ctx); err != nil {
		return err
	}
	defer l.exit()
	if caller != l.owner {
		return ErrNotOwner
	}
	if newOwner == model.ZeroAddress {
		return ErrZeroAddress
	}
	l.owner = newOwner
	l.emit(ctx, model.Event{Type: model.EventOwnershipTransferred, Actor: caller, Employee: newOwner})
	return nil
}

// liveStream returns the stream for employee if one currently exists.
// Callers hold the mutex.
func (l *Ledger) liveStream(employee model.Address) (*stream, error) {
	s, ok := l.streams[employee]
	if !ok || !s.exists {
		return nil, ErrNoStream
	}
	return s, nil
}

// accruedLocked computes the current entitlement: the banked reserve plus,
// while active, rate * elapsed since the anchor. Callers hold the mutex.
func (l *Ledger) accruedLocked(s *stream) (*uint256.Int, error) {
	total := s.reserve.Clone()
	if !s.active {
		return total, nil
	}
	elapsed := l.clock.Now() - s.lastWithdraw
	if elapsed <= 0 {
		return total, nil
	}
	live, overflow := new(uint256.Int).MulOverflow(s.rate, uint256.NewInt(uint64(elapsed)))
	if overflow {
		return nil, ErrAmountOverflow
	}
	total, overflow = new(uint256.Int).AddOverflow(total, live)
	if overflow {
		return nil, ErrAmountOverflow
	}
	return total, nil
}

// Accrued reports the employee's current withdrawable entitlement. Returns
// zero for addresses with no live stream.
func (l *Ledger) Accrued(employee model.Address) (*uint256.Int, error) {
	l.mu.Lock()
	defer l.mu.Unlock()
	s, ok := l.streams[employee]
	if !ok || !s.exists {
		return uint256.NewInt(0), nil
	}
	return l.accruedLocked(s)
}

func (l *Ledger) Owner() model.Address {
	l.mu.Lock()
	defer l.mu.Unlock()
	return l.owner
}

func (l *Ledger) TreasuryBalance() *uint256.Int {
	l.mu.Lock()
	defer l.mu.Unlock()
	return l.treasury.Clone()
}

func (l *Ledger) TaxVaultBalance() *uint256.Int {
	l.mu.Lock()
	defer l.mu.Unlock()
	return l.taxVault.Clone()
}

func (l *Ledger) BonusTotal() *uint256.Int {
	l.mu.Lock()
	defer l.mu.Unlock()
	return l.bonusTotal.Clone()
}

// Employees enumerates every address that ever had a stream, in insertion
// order. Cancelled employees are not pruned.
func (l *Ledger) Employees() []model.Address {
	l.mu.Lock()
	defer l.mu.Unlock()
	out := make([]model.Address, len(l.registry))
	copy(out, l.registry)
	return out
}

func (l *Ledger) Stream(employee model.Address) (model.StreamInfo, error) {
	l.mu.Lock()
	defer l.mu.Unlock()
	s, ok := l.streams[employee]
	if !ok {
		return model.StreamInfo{}, ErrNoStream
	}
	status := model.StreamStatusCancelled
	if s.exists {
		if s.active {
			status = model.StreamStatusActive
		} else {
			status = model.StreamStatusPaused
		}
	}
	return model.StreamInfo{
		Employee:      employee,
		RatePerSecond: s.rate.Dec(),
		TaxPercent:    s.taxPercent,
		StartTime:     s.startTime,
		LastWithdraw:  s.lastWithdraw,
		Status:        status,
	}, nil
}

// Events returns the in-memory journal, oldest first. The journal is a
// bounded window; complete history lives in the sinks.
func (l *Ledger) Events() []model.Event {
	l.mu.Lock()
	defer l.mu.Unlock()
	out := make([]model.Event, len(l.events))
	copy(out, l.events)
	return out
}
