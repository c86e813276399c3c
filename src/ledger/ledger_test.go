package ledger

import (
	"context"
	"fmt"
	"testing"
	"time"

	"github.com/google/go-cmp/cmp"
	"github.com/google/go-cmp/cmp/cmpopts"
	"github.com/helapay/paystream/src/common"
	"github.com/helapay/paystream/src/model"
	"github.com/holiman/uint256"
	"github.com/pkg/errors"
	"go.uber.org/zap"
)

const (
	owner     = model.Address("0xowner")
	employeeA = model.Address("0xemployee_a")
	employeeB = model.Address("0xemployee_b")

	oneToken = uint64(1000000000000000000) // 1e18 base units
)

type fakeClock struct {
	now int64
}

func (c *fakeClock) Now() int64 { return c.now }

func (c *fakeClock) advance(seconds int64) { c.now += seconds }

func tokens(n uint64) *uint256.Int {
	return new(uint256.Int).Mul(uint256.NewInt(n), uint256.NewInt(oneToken))
}

func newTestLedger(t *testing.T) (*Ledger, *MockPayer, *fakeClock) {
	t.Helper()
	clock := &fakeClock{now: 1700000000}
	payer := NewMockPayer()
	l, err := New(owner, payer, common.ConfigureZap(zap.ErrorLevel), WithClock(clock))
	if err != nil {
		t.Fatal(err)
	}
	return l, payer, clock
}

func TestAccrualPerSecondPrecision(t *testing.T) {
	l, _, clock := newTestLedger(t)
	ctx := context.Background()

	if err := l.Deposit(ctx, owner, tokens(100)); err != nil {
		t.Fatal(err)
	}
	rate := uint256.NewInt(oneToken / 10000) // 0.0001 per second
	if err := l.CreateStream(ctx, owner, employeeA, rate, 0); err != nil {
		t.Fatal(err)
	}

	clock.advance(10)
	accrued, err := l.Accrued(employeeA)
	if err != nil {
		t.Fatal(err)
	}
	want := new(uint256.Int).Mul(rate, uint256.NewInt(10))
	if accrued.Cmp(want) != 0 {
		t.Fatalf("accrued %s, want %s", accrued.Dec(), want.Dec())
	}
}

func TestAccruedZeroForUnknownAddress(t *testing.T) {
	l, _, _ := newTestLedger(t)
	accrued, err := l.Accrued(employeeA)
	if err != nil {
		t.Fatal(err)
	}
	if !accrued.IsZero() {
		t.Fatalf("expected zero accrued for unknown address, got %s", accrued.Dec())
	}
}

func TestWithdrawSplitsTax(t *testing.T) {
	l, payer, clock := newTestLedger(t)
	ctx := context.Background()

	if err := l.Deposit(ctx, owner, tokens(100)); err != nil {
		t.Fatal(err)
	}
	if err := l.CreateStream(ctx, owner, employeeA, tokens(1), 10); err != nil {
		t.Fatal(err)
	}
	clock.advance(10)

	net, tax, err := l.Withdraw(ctx, employeeA)
	if err != nil {
		t.Fatal(err)
	}
	if net.Cmp(tokens(9)) != 0 {
		t.Fatalf("net %s, want %s", net.Dec(), tokens(9).Dec())
	}
	if tax.Cmp(tokens(1)) != 0 {
		t.Fatalf("tax %s, want %s", tax.Dec(), tokens(1).Dec())
	}
	if l.TaxVaultBalance().Cmp(tokens(1)) != 0 {
		t.Fatalf("tax vault %s, want %s", l.TaxVaultBalance().Dec(), tokens(1).Dec())
	}
	if l.TreasuryBalance().Cmp(tokens(90)) != 0 {
		t.Fatalf("treasury %s, want %s", l.TreasuryBalance().Dec(), tokens(90).Dec())
	}
	if len(payer.Transactions) != 1 || payer.Transactions[0].To != employeeA {
		t.Fatalf("expected a single transfer to %s, got %+v", employeeA, payer.Transactions)
	}
	if payer.Transactions[0].Amount.Cmp(tokens(9)) != 0 {
		t.Fatalf("transferred %s, want %s", payer.Transactions[0].Amount.Dec(), tokens(9).Dec())
	}
}

func TestTaxRoundingRemainderStaysWithNet(t *testing.T) {
	// 7 base units at 33%: tax truncates to 2, net keeps the remainder.
	net, tax, err := splitTax(uint256.NewInt(7), 33)
	if err != nil {
		t.Fatal(err)
	}
	if tax.Uint64() != 2 {
		t.Fatalf("tax %d, want 2", tax.Uint64())
	}
	if net.Uint64() != 5 {
		t.Fatalf("net %d, want 5", net.Uint64())
	}

	// net + tax == gross must hold exactly for awkward splits.
	for _, tc := range []struct {
		gross uint64
		pct   uint64
	}{
		{1, 1}, {1, 99}, {3, 50}, {99, 33}, {12345, 7}, {oneToken + 1, 13},
	} {
		gross := uint256.NewInt(tc.gross)
		net, tax, err := splitTax(gross, tc.pct)
		if err != nil {
			t.Fatal(err)
		}
		sum := new(uint256.Int).Add(net, tax)
		if sum.Cmp(gross) != 0 {
			t.Fatalf("gross %d pct %d: net %s + tax %s != gross", tc.gross, tc.pct, net.Dec(), tax.Dec())
		}
	}
}

func TestPauseFreezesAccrual(t *testing.T) {
	l, _, clock := newTestLedger(t)
	ctx := context.Background()

	rate := tokens(2)
	if err := l.CreateStream(ctx, owner, employeeA, rate, 0); err != nil {
		t.Fatal(err)
	}
	clock.advance(5)
	if err := l.PauseStream(ctx, owner, employeeA); err != nil {
		t.Fatal(err)
	}

	// A long paused gap contributes nothing.
	clock.advance(100)
	accrued, err := l.Accrued(employeeA)
	if err != nil {
		t.Fatal(err)
	}
	if accrued.Cmp(tokens(10)) != 0 {
		t.Fatalf("accrued %s while paused, want %s", accrued.Dec(), tokens(10).Dec())
	}

	if err := l.ResumeStream(ctx, owner, employeeA); err != nil {
		t.Fatal(err)
	}
	clock.advance(3)
	accrued, err = l.Accrued(employeeA)
	if err != nil {
		t.Fatal(err)
	}
	if accrued.Cmp(tokens(16)) != 0 {
		t.Fatalf("accrued %s after resume, want %s", accrued.Dec(), tokens(16).Dec())
	}
}

func TestPauseResumeCyclesLoseNothing(t *testing.T) {
	l, _, clock := newTestLedger(t)
	ctx := context.Background()

	rate := tokens(1)
	if err := l.CreateStream(ctx, owner, employeeA, rate, 0); err != nil {
		t.Fatal(err)
	}

	activeSeconds := int64(0)
	for i := 0; i < 4; i++ {
		clock.advance(7)
		activeSeconds += 7
		if err := l.PauseStream(ctx, owner, employeeA); err != nil {
			t.Fatal(err)
		}
		clock.advance(1000)
		if err := l.ResumeStream(ctx, owner, employeeA); err != nil {
			t.Fatal(err)
		}
	}
	clock.advance(2)
	activeSeconds += 2

	accrued, err := l.Accrued(employeeA)
	if err != nil {
		t.Fatal(err)
	}
	want := new(uint256.Int).Mul(rate, uint256.NewInt(uint64(activeSeconds)))
	if accrued.Cmp(want) != 0 {
		t.Fatalf("accrued %s over %d active seconds, want %s", accrued.Dec(), activeSeconds, want.Dec())
	}
}

func TestPauseResumeStateGuards(t *testing.T) {
	l, _, clock := newTestLedger(t)
	ctx := context.Background()

	if err := l.ResumeStream(ctx, owner, employeeA); !errors.Is(err, ErrNoStream) {
		t.Fatalf("expected ErrNoStream, got %v", err)
	}
	if err := l.CreateStream(ctx, owner, employeeA, tokens(1), 0); err != nil {
		t.Fatal(err)
	}
	if err := l.ResumeStream(ctx, owner, employeeA); !errors.Is(err, ErrStreamActive) {
		t.Fatalf("expected ErrStreamActive, got %v", err)
	}
	clock.advance(1)
	if err := l.PauseStream(ctx, owner, employeeA); err != nil {
		t.Fatal(err)
	}
	if err := l.PauseStream(ctx, owner, employeeA); !errors.Is(err, ErrStreamNotActive) {
		t.Fatalf("expected ErrStreamNotActive, got %v", err)
	}
}

func TestDoubleWithdrawYieldsNothing(t *testing.T) {
	l, _, clock := newTestLedger(t)
	ctx := context.Background()

	if err := l.Deposit(ctx, owner, tokens(100)); err != nil {
		t.Fatal(err)
	}
	if err := l.CreateStream(ctx, owner, employeeA, tokens(1), 10); err != nil {
		t.Fatal(err)
	}
	clock.advance(10)
	if _, _, err := l.Withdraw(ctx, employeeA); err != nil {
		t.Fatal(err)
	}
	if _, _, err := l.Withdraw(ctx, employeeA); !errors.Is(err, ErrNothingAccrued) {
		t.Fatalf("expected ErrNothingAccrued on immediate second withdraw, got %v", err)
	}
}

func TestWithdrawInsufficientTreasuryIsClean(t *testing.T) {
	l, payer, clock := newTestLedger(t)
	ctx := context.Background()

	if err := l.Deposit(ctx, owner, tokens(5)); err != nil {
		t.Fatal(err)
	}
	if err := l.CreateStream(ctx, owner, employeeA, tokens(1), 10); err != nil {
		t.Fatal(err)
	}
	clock.advance(10) // owed 10, treasury only holds 5

	_, _, err := l.Withdraw(ctx, employeeA)
	if !errors.Is(err, ErrInsufficientTreasury) {
		t.Fatalf("expected ErrInsufficientTreasury, got %v", err)
	}
	// No partial effects: nothing transferred, nothing deducted, accrual intact.
	if len(payer.Transactions) != 0 {
		t.Fatalf("expected no transfers, got %+v", payer.Transactions)
	}
	if l.TreasuryBalance().Cmp(tokens(5)) != 0 {
		t.Fatalf("treasury mutated to %s", l.TreasuryBalance().Dec())
	}
	accrued, err := l.Accrued(employeeA)
	if err != nil {
		t.Fatal(err)
	}
	if accrued.Cmp(tokens(10)) != 0 {
		t.Fatalf("accrual mutated to %s", accrued.Dec())
	}
}

type failingPayer struct {
	err error
}

func (fp *failingPayer) Send(ctx context.Context, to model.Address, amount *uint256.Int) error {
	return fp.err
}

func TestTransferFailureRollsBackState(t *testing.T) {
	clock := &fakeClock{now: 1700000000}
	payer := &failingPayer{err: fmt.Errorf("recipient rejected transfer")}
	l, err := New(owner, payer, common.ConfigureZap(zap.ErrorLevel), WithClock(clock))
	if err != nil {
		t.Fatal(err)
	}
	ctx := context.Background()

	if err := l.Deposit(ctx, owner, tokens(100)); err != nil {
		t.Fatal(err)
	}
	if err := l.CreateStream(ctx, owner, employeeA, tokens(1), 10); err != nil {
		t.Fatal(err)
	}
	clock.advance(10)

	if _, _, err := l.Withdraw(ctx, employeeA); err == nil {
		t.Fatal("expected withdrawal to fail")
	}
	if l.TreasuryBalance().Cmp(tokens(100)) != 0 {
		t.Fatalf("treasury not rolled back: %s", l.TreasuryBalance().Dec())
	}
	if !l.TaxVaultBalance().IsZero() {
		t.Fatalf("tax vault not rolled back: %s", l.TaxVaultBalance().Dec())
	}
	accrued, err := l.Accrued(employeeA)
	if err != nil {
		t.Fatal(err)
	}
	if accrued.Cmp(tokens(10)) != 0 {
		t.Fatalf("accrual not rolled back: %s", accrued.Dec())
	}
	if len(l.Events()) != 2 { // deposit + stream creation only
		t.Fatalf("unexpected events after failed withdrawal: %+v", l.Events())
	}
}

// reentrantPayer calls back into Withdraw from inside the transfer, the way
// a malicious receive() would.
type reentrantPayer struct {
	ledger   *Ledger
	received []*uint256.Int
	innerErr error
}

func (rp *reentrantPayer) Send(ctx context.Context, to model.Address, amount *uint256.Int) error {
	rp.received = append(rp.received, amount.Clone())
	if rp.innerErr == nil { // only reenter once
		_, _, rp.innerErr = rp.ledger.Withdraw(ctx, to)
	}
	return nil
}

func TestReentrantWithdrawRejected(t *testing.T) {
	clock := &fakeClock{now: 1700000000}
	payer := &reentrantPayer{}
	l, err := New(owner, payer, common.ConfigureZap(zap.ErrorLevel), WithClock(clock))
	if err != nil {
		t.Fatal(err)
	}
	payer.ledger = l
	ctx := context.Background()

	if err := l.Deposit(ctx, owner, tokens(100)); err != nil {
		t.Fatal(err)
	}
	if err := l.CreateStream(ctx, owner, employeeA, tokens(1), 0); err != nil {
		t.Fatal(err)
	}
	clock.advance(10)

	if _, _, err := l.Withdraw(ctx, employeeA); err != nil {
		t.Fatal(err)
	}
	if !errors.Is(payer.innerErr, ErrReentrantCall) {
		t.Fatalf("inner withdraw should be rejected as reentrant, got %v", payer.innerErr)
	}
	if len(payer.received) != 1 {
		t.Fatalf("employee was paid %d times, want 1", len(payer.received))
	}
	if payer.received[0].Cmp(tokens(10)) != 0 {
		t.Fatalf("paid %s, want single entitlement %s", payer.received[0].Dec(), tokens(10).Dec())
	}
	if l.TreasuryBalance().Cmp(tokens(90)) != 0 {
		t.Fatalf("treasury %s after reentrant attempt, want %s", l.TreasuryBalance().Dec(), tokens(90).Dec())
	}
}

// gatedPayer blocks its first Send until released, holding the transfer
// window open for concurrency tests.
type gatedPayer struct {
	entered chan struct{}
	release chan struct{}
	once    bool
}

func (gp *gatedPayer) Send(ctx context.Context, to model.Address, amount *uint256.Int) error {
	if !gp.once {
		gp.once = true
		close(gp.entered)
		<-gp.release
	}
	return nil
}

func TestConcurrentWriterWaitsDuringTransfer(t *testing.T) {
	clock := &fakeClock{now: 1700000000}
	payer := &gatedPayer{entered: make(chan struct{}), release: make(chan struct{})}
	l, err := New(owner, payer, common.ConfigureZap(zap.ErrorLevel), WithClock(clock))
	if err != nil {
		t.Fatal(err)
	}
	ctx := context.Background()

	if err := l.Deposit(ctx, owner, tokens(100)); err != nil {
		t.Fatal(err)
	}
	if err := l.CreateStream(ctx, owner, employeeA, tokens(1), 0); err != nil {
		t.Fatal(err)
	}
	clock.advance(10)

	withdrawErr := make(chan error, 1)
	go func() {
		_, _, err := l.Withdraw(ctx, employeeA)
		withdrawErr <- err
	}()
	<-payer.entered

	// A writer from another goroutine arriving mid-transfer must wait its
	// turn, not be mistaken for a reentrant callback.
	depositErr := make(chan error, 1)
	go func() {
		depositErr <- l.Deposit(ctx, owner, tokens(5))
	}()
	time.Sleep(10 * time.Millisecond)
	select {
	case err := <-depositErr:
		t.Fatalf("deposit finished inside the transfer window: %v", err)
	default:
	}

	close(payer.release)
	if err := <-withdrawErr; err != nil {
		t.Fatal(err)
	}
	if err := <-depositErr; err != nil {
		t.Fatalf("concurrent deposit rejected: %v", err)
	}
	// 100 - 10 withdrawn + 5 deposited.
	if l.TreasuryBalance().Cmp(tokens(95)) != 0 {
		t.Fatalf("treasury %s, want %s", l.TreasuryBalance().Dec(), tokens(95).Dec())
	}
}

func TestJournalWindowDropsOldest(t *testing.T) {
	clock := &fakeClock{now: 1700000000}
	l, err := New(owner, NewMockPayer(), common.ConfigureZap(zap.ErrorLevel),
		WithClock(clock), WithJournalCap(3))
	if err != nil {
		t.Fatal(err)
	}
	ctx := context.Background()

	for i := 1; i <= 5; i++ {
		if err := l.Deposit(ctx, owner, tokens(uint64(i))); err != nil {
			t.Fatal(err)
		}
	}
	events := l.Events()
	if len(events) != 3 {
		t.Fatalf("journal holds %d events, want 3", len(events))
	}
	// Oldest two fell off; the window starts at the third deposit.
	if events[0].Amount != tokens(3).Dec() || events[2].Amount != tokens(5).Dec() {
		t.Fatalf("journal window wrong: %+v", events)
	}
}

func TestCancelSettlesAccruedThenTerminates(t *testing.T) {
	l, payer, clock := newTestLedger(t)
	ctx := context.Background()

	if err := l.Deposit(ctx, owner, tokens(100)); err != nil {
		t.Fatal(err)
	}
	if err := l.CreateStream(ctx, owner, employeeA, tokens(1), 10); err != nil {
		t.Fatal(err)
	}
	clock.advance(10)

	if err := l.CancelStream(ctx, owner, employeeA); err != nil {
		t.Fatal(err)
	}
	// The outstanding 10 settled through the normal payout path: 9 net, 1 tax.
	if len(payer.Transactions) != 1 || payer.Transactions[0].Amount.Cmp(tokens(9)) != 0 {
		t.Fatalf("cancel settlement transfer wrong: %+v", payer.Transactions)
	}
	if l.TaxVaultBalance().Cmp(tokens(1)) != 0 {
		t.Fatalf("tax vault %s after cancel, want %s", l.TaxVaultBalance().Dec(), tokens(1).Dec())
	}

	// No double payment afterwards.
	accrued, err := l.Accrued(employeeA)
	if err != nil {
		t.Fatal(err)
	}
	if !accrued.IsZero() {
		t.Fatalf("accrued %s after cancel, want 0", accrued.Dec())
	}
	if _, _, err := l.Withdraw(ctx, employeeA); !errors.Is(err, ErrNoStream) {
		t.Fatalf("expected ErrNoStream after cancel, got %v", err)
	}

	info, err := l.Stream(employeeA)
	if err != nil {
		t.Fatal(err)
	}
	if info.Status != model.StreamStatusCancelled {
		t.Fatalf("stream status %s, want cancelled", info.Status)
	}
}

func TestCreateStreamValidation(t *testing.T) {
	l, _, _ := newTestLedger(t)
	ctx := context.Background()

	if err := l.CreateStream(ctx, employeeA, employeeB, tokens(1), 0); !errors.Is(err, ErrNotOwner) {
		t.Fatalf("expected ErrNotOwner, got %v", err)
	}
	if err := l.CreateStream(ctx, owner, model.ZeroAddress, tokens(1), 0); !errors.Is(err, ErrZeroAddress) {
		t.Fatalf("expected ErrZeroAddress, got %v", err)
	}
	if err := l.CreateStream(ctx, owner, employeeA, uint256.NewInt(0), 0); !errors.Is(err, ErrZeroRate) {
		t.Fatalf("expected ErrZeroRate, got %v", err)
	}
	if err := l.CreateStream(ctx, owner, employeeA, tokens(1), 101); !errors.Is(err, ErrTaxOutOfRange) {
		t.Fatalf("expected ErrTaxOutOfRange, got %v", err)
	}
	if err := l.CreateStream(ctx, owner, employeeA, tokens(1), 100); err != nil {
		t.Fatal(err)
	}
	if err := l.CreateStream(ctx, owner, employeeA, tokens(1), 0); !errors.Is(err, ErrStreamExists) {
		t.Fatalf("expected ErrStreamExists, got %v", err)
	}
}

func TestOwnerOnlyGuards(t *testing.T) {
	l, _, _ := newTestLedger(t)
	ctx := context.Background()

	if err := l.CreateStream(ctx, owner, employeeA, tokens(1), 0); err != nil {
		t.Fatal(err)
	}
	if err := l.PauseStream(ctx, employeeA, employeeA); !errors.Is(err, ErrNotOwner) {
		t.Fatalf("pause: expected ErrNotOwner, got %v", err)
	}
	if err := l.ResumeStream(ctx, employeeA, employeeA); !errors.Is(err, ErrNotOwner) {
		t.Fatalf("resume: expected ErrNotOwner, got %v", err)
	}
	if err := l.CancelStream(ctx, employeeA, employeeA); !errors.Is(err, ErrNotOwner) {
		t.Fatalf("cancel: expected ErrNotOwner, got %v", err)
	}
	if err := l.SendBonus(ctx, employeeA, employeeA, tokens(1), "nope"); !errors.Is(err, ErrNotOwner) {
		t.Fatalf("bonus: expected ErrNotOwner, got %v", err)
	}
	if _, err := l.WithdrawTax(ctx, employeeA); !errors.Is(err, ErrNotOwner) {
		t.Fatalf("tax: expected ErrNotOwner, got %v", err)
	}
	if err := l.TransferOwnership(ctx, employeeA, employeeA); !errors.Is(err, ErrNotOwner) {
		t.Fatalf("ownership: expected ErrNotOwner, got %v", err)
	}
}

func TestBonusLeavesAccrualAlone(t *testing.T) {
	l, payer, clock := newTestLedger(t)
	ctx := context.Background()

	if err := l.Deposit(ctx, owner, tokens(100)); err != nil {
		t.Fatal(err)
	}
	if err := l.CreateStream(ctx, owner, employeeB, tokens(1), 0); err != nil {
		t.Fatal(err)
	}
	clock.advance(3)

	if err := l.SendBonus(ctx, owner, employeeB, tokens(5), "spot bonus"); err != nil {
		t.Fatal(err)
	}
	if l.TreasuryBalance().Cmp(tokens(95)) != 0 {
		t.Fatalf("treasury %s, want %s", l.TreasuryBalance().Dec(), tokens(95).Dec())
	}
	if l.BonusTotal().Cmp(tokens(5)) != 0 {
		t.Fatalf("bonus total %s, want %s", l.BonusTotal().Dec(), tokens(5).Dec())
	}
	accrued, err := l.Accrued(employeeB)
	if err != nil {
		t.Fatal(err)
	}
	if accrued.Cmp(tokens(3)) != 0 {
		t.Fatalf("bonus disturbed accrual: %s, want %s", accrued.Dec(), tokens(3).Dec())
	}
	if len(payer.Transactions) != 1 || payer.Transactions[0].Amount.Cmp(tokens(5)) != 0 {
		t.Fatalf("bonus transfer wrong: %+v", payer.Transactions)
	}

	if err := l.SendBonus(ctx, owner, employeeB, tokens(1000), "too big"); !errors.Is(err, ErrInsufficientTreasury) {
		t.Fatalf("expected ErrInsufficientTreasury, got %v", err)
	}
}

func TestWithdrawTaxDrainsVault(t *testing.T) {
	l, payer, clock := newTestLedger(t)
	ctx := context.Background()

	if _, err := l.WithdrawTax(ctx, owner); !errors.Is(err, ErrTaxVaultEmpty) {
		t.Fatalf("expected ErrTaxVaultEmpty, got %v", err)
	}

	if err := l.Deposit(ctx, owner, tokens(100)); err != nil {
		t.Fatal(err)
	}
	if err := l.CreateStream(ctx, owner, employeeA, tokens(1), 50); err != nil {
		t.Fatal(err)
	}
	clock.advance(10)
	if _, _, err := l.Withdraw(ctx, employeeA); err != nil {
		t.Fatal(err)
	}

	amount, err := l.WithdrawTax(ctx, owner)
	if err != nil {
		t.Fatal(err)
	}
	if amount.Cmp(tokens(5)) != 0 {
		t.Fatalf("tax withdrawal %s, want %s", amount.Dec(), tokens(5).Dec())
	}
	if !l.TaxVaultBalance().IsZero() {
		t.Fatalf("vault not zeroed: %s", l.TaxVaultBalance().Dec())
	}
	last := payer.Transactions[len(payer.Transactions)-1]
	if last.To != owner || last.Amount.Cmp(tokens(5)) != 0 {
		t.Fatalf("vault payout wrong: %+v", last)
	}
}

func TestEmployeeRegistryOrderAndDedup(t *testing.T) {
	l, _, _ := newTestLedger(t)
	ctx := context.Background()

	if err := l.CreateStream(ctx, owner, employeeA, tokens(1), 0); err != nil {
		t.Fatal(err)
	}
	if err := l.CreateStream(ctx, owner, employeeB, tokens(1), 0); err != nil {
		t.Fatal(err)
	}
	if err := l.PauseStream(ctx, owner, employeeA); err != nil {
		t.Fatal(err)
	}
	if err := l.ResumeStream(ctx, owner, employeeA); err != nil {
		t.Fatal(err)
	}
	// Cancelling and re-streaming must not duplicate the registry entry.
	if err := l.CancelStream(ctx, owner, employeeA); err != nil {
		t.Fatal(err)
	}
	if err := l.CreateStream(ctx, owner, employeeA, tokens(2), 5); err != nil {
		t.Fatal(err)
	}

	want := []model.Address{employeeA, employeeB}
	if d := cmp.Diff(want, l.Employees()); d != "" {
		t.Fatalf("registry mismatch: %s", d)
	}
}

func TestDepositValidation(t *testing.T) {
	l, _, _ := newTestLedger(t)
	ctx := context.Background()

	if err := l.Deposit(ctx, employeeA, uint256.NewInt(0)); !errors.Is(err, ErrZeroAmount) {
		t.Fatalf("expected ErrZeroAmount, got %v", err)
	}
	if err := l.Deposit(ctx, employeeA, nil); !errors.Is(err, ErrZeroAmount) {
		t.Fatalf("expected ErrZeroAmount for nil, got %v", err)
	}
	// Deposits are open to anyone, not only the owner.
	if err := l.Deposit(ctx, employeeA, tokens(1)); err != nil {
		t.Fatal(err)
	}
}

func TestAccrualOverflowRejected(t *testing.T) {
	l, _, clock := newTestLedger(t)
	ctx := context.Background()

	huge := new(uint256.Int).SetAllOne()
	if err := l.CreateStream(ctx, owner, employeeA, huge, 0); err != nil {
		t.Fatal(err)
	}
	clock.advance(2)
	if _, err := l.Accrued(employeeA); !errors.Is(err, ErrAmountOverflow) {
		t.Fatalf("expected ErrAmountOverflow, got %v", err)
	}
	if _, _, err := l.Withdraw(ctx, employeeA); !errors.Is(err, ErrAmountOverflow) {
		t.Fatalf("expected ErrAmountOverflow on withdraw, got %v", err)
	}
}

func TestTransferOwnership(t *testing.T) {
	l, _, _ := newTestLedger(t)
	ctx := context.Background()

	newOwner := model.Address("0xnew_owner")
	if err := l.TransferOwnership(ctx, owner, newOwner); err != nil {
		t.Fatal(err)
	}
	if l.Owner() != newOwner {
		t.Fatalf("owner %s, want %s", l.Owner(), newOwner)
	}
	// Old owner lost the role, new owner gained it.
	if err := l.CreateStream(ctx, owner, employeeA, tokens(1), 0); !errors.Is(err, ErrNotOwner) {
		t.Fatalf("expected ErrNotOwner for old owner, got %v", err)
	}
	if err := l.CreateStream(ctx, newOwner, employeeA, tokens(1), 0); err != nil {
		t.Fatal(err)
	}
}

func TestEventJournalCarriesSplits(t *testing.T) {
	l, _, clock := newTestLedger(t)
	ctx := context.Background()

	if err := l.Deposit(ctx, owner, tokens(100)); err != nil {
		t.Fatal(err)
	}
	if err := l.CreateStream(ctx, owner, employeeA, tokens(1), 10); err != nil {
		t.Fatal(err)
	}
	clock.advance(10)
	if _, _, err := l.Withdraw(ctx, employeeA); err != nil {
		t.Fatal(err)
	}

	events := l.Events()
	if len(events) != 3 {
		t.Fatalf("expected 3 events, got %d", len(events))
	}
	got := events[2]
	want := model.Event{
		Type:       model.EventWithdrawal,
		Employee:   employeeA,
		Amount:     tokens(10).Dec(),
		Net:        tokens(9).Dec(),
		Tax:        tokens(1).Dec(),
		TaxPercent: 10,
	}
	ignore := cmpopts.IgnoreFields(model.Event{}, "Id", "LedgerId", "Timestamp")
	if d := cmp.Diff(want, got, ignore); d != "" {
		t.Fatalf("withdrawal event mismatch: %s", d)
	}
}
