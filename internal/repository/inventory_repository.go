package repository

import (
	"context"
	"sort"

	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgxpool"
	"github.com/salmaimassenda2023/order-service/internal/domain"
	"github.com/salmaimassenda2023/order-service/pkg/mylogger"
	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/trace"
	"go.uber.org/zap"
)

// InventoryRepository is the only component that reads or writes stock.
// Reserve and Release run inside the caller's transaction; the row locks
// taken by Reserve serialize concurrent batches touching the same product,
// while batches on disjoint products proceed in parallel.
type InventoryRepository interface {
	Reserve(ctx context.Context, tx pgx.Tx, requests []domain.ReservationRequest) ([]domain.ProductReservation, error)
	Release(ctx context.Context, tx pgx.Tx, productID, quantity int64) error
}

type inventoryRepo struct {
	pool   *pgxpool.Pool
	logger *zap.Logger
	tracer trace.Tracer
}

func NewInventoryRepository(pool *pgxpool.Pool, logger *zap.Logger) InventoryRepository {
	return &inventoryRepo{
		pool:   pool,
		logger: logger,
		tracer: otel.Tracer("inventory_repository"),
	}
}

// Reserve decrements stock for the whole batch or not at all. It locks the
// product rows in id order (stable lock order avoids deadlock between
// concurrent batches), decides against the locked quantities, then applies
// guarded decrements. Any absent product or shortfall rejects the batch
// before anything is written.
func (r *inventoryRepo) Reserve(ctx context.Context, tx pgx.Tx, requests []domain.ReservationRequest) ([]domain.ProductReservation, error) {
	ctx, span := r.tracer.Start(ctx, "InventoryRepository.Reserve")
	defer span.End()

	span.SetAttributes(
		attribute.Int("batch_size", len(requests)),
	)

	ids := make([]int64, 0, len(requests))
	seen := make(map[int64]bool, len(requests))
	for _, req := range requests {
		if !seen[req.ProductID] {
			seen[req.ProductID] = true
			ids = append(ids, req.ProductID)
		}
	}
	sort.Slice(ids, func(i, j int) bool { return ids[i] < ids[j] })

	query := `
		SELECT id, price, available_quantity
		FROM products
		WHERE id = ANY($1)
		ORDER BY id
		FOR UPDATE
	`

	rows, err := tx.Query(ctx, query, ids)
	if err != nil {
		span.RecordError(err)

		mylogger.Error(
			ctx,
			r.logger,
			"Failed to lock product rows",
			zap.Error(err),
		)

		return nil, err
	}
	defer rows.Close()

	prices := make(map[int64]int64, len(ids))
	remaining := make(map[int64]int64, len(ids))
	for rows.Next() {
		var id, price, available int64
		if err := rows.Scan(&id, &price, &available); err != nil {
			span.RecordError(err)

			return nil, err
		}

		prices[id] = price
		remaining[id] = available
	}
	if err := rows.Err(); err != nil {
		span.RecordError(err)

		return nil, err
	}
	rows.Close()

	// Decide against the locked snapshot. remaining tracks demand already
	// granted within this batch, so the same product listed twice cannot
	// slip past the check.
	reservations := make([]domain.ProductReservation, 0, len(requests))
	for _, req := range requests {
		available, ok := remaining[req.ProductID]
		if !ok {
			return nil, &domain.ProductNotFoundError{ProductID: req.ProductID}
		}

		if available < req.Quantity {
			mylogger.Warn(
				ctx,
				r.logger,
				"Insufficient stock",
				zap.Int64("product_id", req.ProductID),
				zap.Int64("requested", req.Quantity),
				zap.Int64("available", available),
			)

			return nil, &domain.InsufficientStockError{
				ProductID: req.ProductID,
				Requested: req.Quantity,
				Available: available,
			}
		}

		remaining[req.ProductID] = available - req.Quantity
		reservations = append(reservations, domain.ProductReservation{
			ProductID: req.ProductID,
			Quantity:  req.Quantity,
			UnitPrice: prices[req.ProductID],
		})
	}

	decrement := `
		UPDATE products
		SET available_quantity = available_quantity - $2, updated_at = NOW()
		WHERE id = $1 AND available_quantity >= $2
	`

	for _, res := range reservations {
		commandTag, err := tx.Exec(ctx, decrement, res.ProductID, res.Quantity)
		if err != nil {
			span.RecordError(err)

			mylogger.Error(
				ctx,
				r.logger,
				"Error decreasing stock",
				zap.Int64("product_id", res.ProductID),
				zap.Int64("quantity", res.Quantity),
				zap.Error(err),
			)

			return nil, err
		}

		// Cannot fire while we hold the row lock; kept as a guard so a
		// broken caller can never drive stock negative.
		if commandTag.RowsAffected() == 0 {
			return nil, &domain.InsufficientStockError{
				ProductID: res.ProductID,
				Requested: res.Quantity,
			}
		}
	}

	return reservations, nil
}

// Release restores quantity to a product, bounded by its provisioned
// ceiling. A duplicate compensation that would push stock past the ceiling
// is rejected with ErrReleaseExceedsCeiling instead of applied.
func (r *inventoryRepo) Release(ctx context.Context, tx pgx.Tx, productID, quantity int64) error {
	ctx, span := r.tracer.Start(ctx, "InventoryRepository.Release")
	defer span.End()

	span.SetAttributes(
		attribute.Int64("product_id", productID),
		attribute.Int64("quantity", quantity),
	)

	query := `
		UPDATE products
		SET available_quantity = available_quantity + $2, updated_at = NOW()
		WHERE id = $1 AND available_quantity + $2 <= total_quantity
	`

	commandTag, err := tx.Exec(ctx, query, productID, quantity)
	if err != nil {
		span.RecordError(err)

		mylogger.Error(
			ctx,
			r.logger,
			"Error releasing stock",
			zap.Int64("product_id", productID),
			zap.Int64("quantity", quantity),
			zap.Error(err),
		)

		return err
	}

	if commandTag.RowsAffected() == 0 {
		var exists bool
		if err := tx.QueryRow(ctx, `SELECT EXISTS (SELECT 1 FROM products WHERE id = $1)`, productID).Scan(&exists); err != nil {
			span.RecordError(err)

			return err
		}

		if !exists {
			return &domain.ProductNotFoundError{ProductID: productID}
		}

		return domain.ErrReleaseExceedsCeiling
	}

	return nil
}
