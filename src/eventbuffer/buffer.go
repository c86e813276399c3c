package eventbuffer

import (
	"context"
	"encoding/json"
	"sync"
	"time"

	"github.com/go-redis/redis/v8"
	"github.com/helapay/paystream/src/model"
	"github.com/pkg/errors"
	"go.uber.org/zap"
)

// Buffer keeps recent settlement events in per-ledger redis zsets scored by
// event timestamp, so dashboards polling every 10-15s read from redis instead
// of hammering postgres. Best-effort: the durable trail lives in the events
// table.
type Buffer struct {
	cache *redis.Client

	mu   sync.Mutex
	sets map[string]ZSet
}

func NewBuffer(cache *redis.Client) *Buffer {
	return &Buffer{
		cache: cache,
		sets:  map[string]ZSet{},
	}
}

func (b *Buffer) setFor(ledgerId string) ZSet {
	b.mu.Lock()
	defer b.mu.Unlock()
	set, ok := b.sets[ledgerId]
	if !ok {
		set = NewZSet(b.cache, "events_"+ledgerId)
		b.sets[ledgerId] = set
	}
	return set
}

func (b *Buffer) allSets() []ZSet {
	b.mu.Lock()
	defer b.mu.Unlock()
	out := make([]ZSet, 0, len(b.sets))
	for _, set := range b.sets {
		out = append(out, set)
	}
	return out
}

// Record implements the ledger's event sink.
func (b *Buffer) Record(ctx context.Context, ev model.Event) error {
	encoded, err := json.Marshal(ev)
	if err != nil {
		return errors.Wrap(err, "failed encoding event for buffer")
	}
	set := b.setFor(ev.LedgerId)
	return errors.Wrap(
		set.AddValuesWithScore(ctx, float64(ev.Timestamp), string(encoded)),
		"failed writing event to redis")
}

// Recent returns the ledger's events with timestamp >= since, oldest first.
func (b *Buffer) Recent(ctx context.Context, ledgerId string, since int64, limit int64) ([]model.Event, error) {
	set := b.setFor(ledgerId)
	raw, err := set.GetValuesByScore(ctx, since, time.Now().Unix()+1, limit)
	if err != nil {
		return nil, errors.Wrap(err, "failed reading event buffer")
	}
	out := make([]model.Event, 0, len(raw))
	for _, v := range raw {
		var ev model.Event
		if err := json.Unmarshal([]byte(v), &ev); err != nil {
			return nil, errors.Wrap(err, "failed decoding buffered event")
		}
		out = append(out, ev)
	}
	return out, nil
}

// StartPruner periodically drops buffered events older than keep.
func (b *Buffer) StartPruner(ctx context.Context, interval, keep time.Duration, logger *zap.Logger) {
	ticker := time.NewTicker(interval)
	logger = logger.Named("event_pruner")
	for {
		select {
		case <-ctx.Done():
			logger.Info("stopping event pruner, context cancelled")
			return
		case <-ticker.C:
			cutoff := time.Now().Add(-keep).Unix()
			var removed, remaining int64
			for _, set := range b.allSets() {
				n, err := set.RemoveByScore(ctx, 0, cutoff)
				if err != nil {
					logger.Error("failed pruning event buffer", zap.Error(err))
					continue
				}
				removed += n
				if count, err := set.Count(ctx); err == nil {
					remaining += count
				}
			}
			if removed > 0 {
				logger.Info("pruned event buffer",
					zap.Int64("removed", removed), zap.Int64("remaining", remaining))
			}
		}
	}
}
