package repository

import (
	"context"
	"errors"
	"fmt"

	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgconn"
	"github.com/jackc/pgx/v5/pgxpool"
	"github.com/salmaimassenda2023/order-service/internal/domain"
	"github.com/salmaimassenda2023/order-service/pkg/mylogger"
	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/trace"
	"go.uber.org/zap"
)

type OrderRepository interface {
	Create(ctx context.Context, tx pgx.Tx, order *domain.Order) error
	GetByID(ctx context.Context, id int64) (*domain.Order, error)
	GetByReference(ctx context.Context, reference string) (*domain.Order, error)
	List(ctx context.Context) ([]domain.Order, error)
	SetStatus(ctx context.Context, tx pgx.Tx, orderID int64, status domain.OrderStatus) error
}

type orderRepo struct {
	pool   *pgxpool.Pool
	logger *zap.Logger
	tracer trace.Tracer
}

func NewOrderRepository(pool *pgxpool.Pool, logger *zap.Logger) OrderRepository {
	return &orderRepo{
		pool:   pool,
		logger: logger,
		tracer: otel.Tracer("order_repository"),
	}
}

// Create inserts the order row and every line inside the caller's
// transaction. A reference collision surfaces as ErrDuplicateReference;
// the unique index makes the duplicate check atomic with the insert even
// under concurrent creates carrying the same reference.
func (r *orderRepo) Create(ctx context.Context, tx pgx.Tx, order *domain.Order) error {
	ctx, span := r.tracer.Start(ctx, "OrderRepository.Create")
	defer span.End()

	span.SetAttributes(
		attribute.String("reference", order.Reference),
		attribute.Int("lines_count", len(order.Lines)),
	)

	queryOrder := `
		INSERT INTO orders (reference, customer_id, payment_method, status, total_amount, created_at, updated_at)
		VALUES ($1, $2, $3, $4, $5, NOW(), NOW())
		RETURNING id, created_at, updated_at
	`

	if err := tx.QueryRow(
		ctx,
		queryOrder,
		order.Reference,
		order.CustomerID,
		string(order.PaymentMethod),
		string(order.Status),
		order.TotalAmount,
	).Scan(
		&order.ID,
		&order.CreatedAt,
		&order.UpdatedAt,
	); err != nil {
		var pgError *pgconn.PgError
		if errors.As(err, &pgError) && pgError.Code == "23505" {
			mylogger.Warn(
				ctx,
				r.logger,
				"Order reference already exists",
				zap.String("reference", order.Reference),
			)

			return domain.ErrDuplicateReference
		}

		span.RecordError(err)

		mylogger.Error(
			ctx,
			r.logger,
			"Failed to insert order",
			zap.Error(err),
		)

		return err
	}

	queryLine := `
		INSERT INTO order_lines (order_id, product_id, quantity, unit_price)
		VALUES ($1, $2, $3, $4)
		RETURNING id
	`

	for i := range order.Lines {
		line := &order.Lines[i]
		line.OrderID = order.ID

		if err := tx.QueryRow(
			ctx,
			queryLine,
			order.ID,
			line.ProductID,
			line.Quantity,
			line.UnitPrice,
		).Scan(&line.ID); err != nil {
			span.RecordError(err)

			mylogger.Error(
				ctx,
				r.logger,
				"Failed to insert order line",
				zap.Int64("product_id", line.ProductID),
				zap.Error(err),
			)

			return fmt.Errorf("failed to insert order line: %w", err)
		}
	}

	return nil
}

func (r *orderRepo) GetByID(ctx context.Context, id int64) (*domain.Order, error) {
	ctx, span := r.tracer.Start(ctx, "OrderRepository.GetByID")
	defer span.End()

	span.SetAttributes(
		attribute.Int64("order_id", id),
	)

	query := `
		SELECT id, reference, customer_id, payment_method, status, total_amount, created_at, updated_at
		FROM orders
		WHERE id = $1
	`

	order, err := r.scanOrder(r.pool.QueryRow(ctx, query, id))
	if err != nil {
		return nil, err
	}

	order.Lines, err = r.linesOf(ctx, order.ID)
	if err != nil {
		span.RecordError(err)

		return nil, err
	}

	return order, nil
}

func (r *orderRepo) GetByReference(ctx context.Context, reference string) (*domain.Order, error) {
	ctx, span := r.tracer.Start(ctx, "OrderRepository.GetByReference")
	defer span.End()

	span.SetAttributes(
		attribute.String("reference", reference),
	)

	query := `
		SELECT id, reference, customer_id, payment_method, status, total_amount, created_at, updated_at
		FROM orders
		WHERE reference = $1
	`

	return r.scanOrder(r.pool.QueryRow(ctx, query, reference))
}

func (r *orderRepo) List(ctx context.Context) ([]domain.Order, error) {
	ctx, span := r.tracer.Start(ctx, "OrderRepository.List")
	defer span.End()

	query := `
		SELECT id, reference, customer_id, payment_method, status, total_amount, created_at, updated_at
		FROM orders
		ORDER BY id
	`

	rows, err := r.pool.Query(ctx, query)
	if err != nil {
		span.RecordError(err)

		mylogger.Error(
			ctx,
			r.logger,
			"Failed to query orders",
			zap.Error(err),
		)

		return nil, err
	}
	defer rows.Close()

	var orders []domain.Order
	for rows.Next() {
		var o domain.Order
		var method, status string
		if err := rows.Scan(
			&o.ID,
			&o.Reference,
			&o.CustomerID,
			&method,
			&status,
			&o.TotalAmount,
			&o.CreatedAt,
			&o.UpdatedAt,
		); err != nil {
			span.RecordError(err)

			return nil, err
		}

		o.PaymentMethod = domain.PaymentMethod(method)
		o.Status = domain.OrderStatus(status)
		orders = append(orders, o)
	}

	return orders, rows.Err()
}

func (r *orderRepo) SetStatus(ctx context.Context, tx pgx.Tx, orderID int64, status domain.OrderStatus) error {
	ctx, span := r.tracer.Start(ctx, "OrderRepository.SetStatus")
	defer span.End()

	span.SetAttributes(
		attribute.Int64("order_id", orderID),
		attribute.String("status", string(status)),
	)

	query := `
		UPDATE orders
		SET status = $1, updated_at = NOW()
		WHERE id = $2
	`

	commandTag, err := tx.Exec(ctx, query, string(status), orderID)
	if err != nil {
		span.RecordError(err)

		mylogger.Error(
			ctx,
			r.logger,
			"Failed to update order status",
			zap.Int64("order_id", orderID),
			zap.Error(err),
		)

		return fmt.Errorf("failed to update order status: %w", err)
	}

	if commandTag.RowsAffected() == 0 {
		return domain.ErrOrderNotFound
	}

	return nil
}

func (r *orderRepo) scanOrder(row pgx.Row) (*domain.Order, error) {
	var o domain.Order
	var method, status string

	err := row.Scan(
		&o.ID,
		&o.Reference,
		&o.CustomerID,
		&method,
		&status,
		&o.TotalAmount,
		&o.CreatedAt,
		&o.UpdatedAt,
	)
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return nil, domain.ErrOrderNotFound
		}

		return nil, err
	}

	o.PaymentMethod = domain.PaymentMethod(method)
	o.Status = domain.OrderStatus(status)

	return &o, nil
}

// linesOf returns the lines in insertion order, which is the order the
// client supplied them in.
func (r *orderRepo) linesOf(ctx context.Context, orderID int64) ([]domain.OrderLine, error) {
	query := `
		SELECT id, order_id, product_id, quantity, unit_price
		FROM order_lines
		WHERE order_id = $1
		ORDER BY id
	`

	rows, err := r.pool.Query(ctx, query, orderID)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var lines []domain.OrderLine
	for rows.Next() {
		var line domain.OrderLine
		if err := rows.Scan(
			&line.ID,
			&line.OrderID,
			&line.ProductID,
			&line.Quantity,
			&line.UnitPrice,
		); err != nil {
			return nil, err
		}

		lines = append(lines, line)
	}

	return lines, rows.Err()
}
