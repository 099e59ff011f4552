package jobs

import (
	"context"
	"encoding/json"
	"errors"
	"log/slog"
	"time"

	"github.com/hibiken/asynq"
	"github.com/jackc/pgx/v5/pgxpool"

	"github.com/procureflow/procureflow/internal/lifecycle"
	"github.com/procureflow/procureflow/internal/purchasing"
)

// SnapshotWarmupJob recomputes remaining-quantity snapshots for open orders
// so the first form load after a quiet period does not pay the aggregate
// query cost.
type SnapshotWarmupJob struct {
	Service   *purchasing.Service
	Snapshots *purchasing.SnapshotStore
	Pool      *pgxpool.Pool
	Logger    *slog.Logger
}

// NewSnapshotWarmupJob wires dependencies for the warmup handler.
func NewSnapshotWarmupJob(service *purchasing.Service, snapshots *purchasing.SnapshotStore, pool *pgxpool.Pool, logger *slog.Logger) *SnapshotWarmupJob {
	return &SnapshotWarmupJob{Service: service, Snapshots: snapshots, Pool: pool, Logger: logger}
}

// Handle processes TaskTypeSnapshotWarmup tasks.
func (j *SnapshotWarmupJob) Handle(ctx context.Context, t *asynq.Task) error {
	if j == nil || j.Service == nil || j.Snapshots == nil || j.Pool == nil {
		return errors.New("snapshot warmup: handler not configured")
	}
	var payload SnapshotWarmupPayload
	if err := json.Unmarshal(t.Payload(), &payload); err != nil {
		return asynq.SkipRetry
	}
	if payload.OrderLimit <= 0 {
		payload.OrderLimit = 200
	}

	logger := j.logger().With(slog.String("job", "snapshot_warmup"))
	started := time.Now()

	orderIDs, err := j.fetchOpenOrders(ctx, payload.OrderLimit)
	if err != nil {
		logger.Error("load open orders", slog.Any("error", err))
		return err
	}

	kinds := []lifecycle.DocKind{lifecycle.KindReceiving, lifecycle.KindBill, lifecycle.KindCreditNote}
	warmed := 0
	for _, orderID := range orderIDs {
		for _, kind := range kinds {
			remaining, err := j.Service.Remaining(ctx, orderID, kind, 0)
			if err != nil {
				logger.Error("compute remaining", slog.Int64("order_id", orderID), slog.String("kind", string(kind)), slog.Any("error", err))
				return err
			}
			if err := j.Snapshots.SetRemaining(ctx, orderID, kind, remaining); err != nil {
				logger.Warn("store snapshot", slog.Int64("order_id", orderID), slog.Any("error", err))
			}
		}
		warmed++
	}

	logger.Info("snapshot warmup completed", slog.Int("orders", warmed), slog.Duration("duration", time.Since(started)))
	return nil
}

func (j *SnapshotWarmupJob) fetchOpenOrders(ctx context.Context, limit int) ([]int64, error) {
	rows, err := j.Pool.Query(ctx,
		`SELECT id FROM purchase_orders
		 WHERE status <> 'CLOSED'
		 ORDER BY id DESC
		 LIMIT $1`,
		limit)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var ids []int64
	for rows.Next() {
		var id int64
		if err := rows.Scan(&id); err != nil {
			return nil, err
		}
		ids = append(ids, id)
	}
	return ids, rows.Err()
}

func (j *SnapshotWarmupJob) logger() *slog.Logger {
	if j.Logger != nil {
		return j.Logger
	}
	return slog.Default()
}
