package purchasing

import (
	"context"
	"encoding/json"
	"fmt"
	"strconv"
	"time"

	"github.com/redis/go-redis/v9"
	"github.com/shopspring/decimal"

	"github.com/procureflow/procureflow/internal/lifecycle"
)

// SnapshotStore caches the advisory remaining-quantity maps in Redis so list
// and editor screens can render without recomputing the walk. Entries are
// hints only; authorization always recomputes inside the transaction.
type SnapshotStore struct {
	client *redis.Client
	ttl    time.Duration
}

// NewSnapshotStore constructs a store. A zero ttl defaults to five minutes.
func NewSnapshotStore(client *redis.Client, ttl time.Duration) *SnapshotStore {
	if ttl <= 0 {
		ttl = 5 * time.Minute
	}
	return &SnapshotStore{client: client, ttl: ttl}
}

func snapshotKey(orderID int64, kind lifecycle.DocKind) string {
	return fmt.Sprintf("purchasing:order:%d:remaining:%s", orderID, kind)
}

// SetRemaining caches a remaining map for one consumer kind.
func (s *SnapshotStore) SetRemaining(ctx context.Context, orderID int64, kind lifecycle.DocKind, remaining map[int64]decimal.Decimal) error {
	payload := make(map[string]string, len(remaining))
	for lineID, qty := range remaining {
		payload[strconv.FormatInt(lineID, 10)] = qty.String()
	}
	raw, err := json.Marshal(payload)
	if err != nil {
		return fmt.Errorf("purchasing: marshal snapshot: %w", err)
	}
	if err := s.client.Set(ctx, snapshotKey(orderID, kind), raw, s.ttl).Err(); err != nil {
		return fmt.Errorf("purchasing: cache snapshot: %w", err)
	}
	return nil
}

// GetRemaining returns the cached map, or nil on a miss.
func (s *SnapshotStore) GetRemaining(ctx context.Context, orderID int64, kind lifecycle.DocKind) (map[int64]decimal.Decimal, error) {
	raw, err := s.client.Get(ctx, snapshotKey(orderID, kind)).Bytes()
	if err == redis.Nil {
		return nil, nil
	}
	if err != nil {
		return nil, fmt.Errorf("purchasing: read snapshot: %w", err)
	}
	var payload map[string]string
	if err := json.Unmarshal(raw, &payload); err != nil {
		return nil, fmt.Errorf("purchasing: decode snapshot: %w", err)
	}
	remaining := make(map[int64]decimal.Decimal, len(payload))
	for key, value := range payload {
		lineID, err := strconv.ParseInt(key, 10, 64)
		if err != nil {
			continue
		}
		qty, err := decimal.NewFromString(value)
		if err != nil {
			continue
		}
		remaining[lineID] = qty
	}
	return remaining, nil
}

// Invalidate drops every cached kind for the order. Called after any
// transition since one document's status change moves several ledgers.
func (s *SnapshotStore) Invalidate(ctx context.Context, orderID int64) error {
	keys := make([]string, 0, 4)
	for _, kind := range []lifecycle.DocKind{
		lifecycle.KindReceiving, lifecycle.KindBill, lifecycle.KindCreditNote, lifecycle.KindUnstock,
	} {
		keys = append(keys, snapshotKey(orderID, kind))
	}
	if err := s.client.Del(ctx, keys...).Err(); err != nil {
		return fmt.Errorf("purchasing: invalidate snapshot: %w", err)
	}
	return nil
}
