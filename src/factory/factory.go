package factory

import (
	"sync"

	"github.com/helapay/paystream/src/ledger"
	"github.com/helapay/paystream/src/model"
	"go.uber.org/zap"
)

// Factory deploys one isolated settlement ledger per organization. It is a
// minimal clone-deployer: no state is shared between the ledgers it hands
// out, and it does no scheduling of its own.
type Factory struct {
	mu      sync.Mutex
	ledgers map[string]*ledger.Ledger
	order   []string

	payer  ledger.Payer
	opts   []ledger.Option
	logger *zap.Logger
}

func New(payer ledger.Payer, logger *zap.Logger, opts ...ledger.Option) *Factory {
	return &Factory{
		ledgers: map[string]*ledger.Ledger{},
		payer:   payer,
		opts:    opts,
		logger:  logger.Named("factory"),
	}
}

// Deploy creates a fresh ledger owned by owner and registers it under its id.
func (f *Factory) Deploy(owner model.Address) (*ledger.Ledger, error) {
	l, err := ledger.New(owner, f.payer, f.logger, f.opts...)
	if err != nil {
		return nil, err
	}
	f.mu.Lock()
	f.ledgers[l.Id()] = l
	f.order = append(f.order, l.Id())
	f.mu.Unlock()
	f.logger.Info("deployed ledger", zap.String("ledger", l.Id()), zap.String("owner", string(owner)))
	return l, nil
}

func (f *Factory) Get(id string) (*ledger.Ledger, bool) {
	f.mu.Lock()
	defer f.mu.Unlock()
	l, ok := f.ledgers[id]
	return l, ok
}

// Ids lists deployed ledgers in deployment order.
func (f *Factory) Ids() []string {
	f.mu.Lock()
	defer f.mu.Unlock()
	out := make([]string, len(f.order))
	copy(out, f.order)
	return out
}
