package service

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"sync"
	"time"

	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgxpool"
	"github.com/salmaimassenda2023/order-service/internal/client"
	"github.com/salmaimassenda2023/order-service/internal/domain"
	"github.com/salmaimassenda2023/order-service/internal/repository"
	"github.com/salmaimassenda2023/order-service/pkg/mylogger"
	outboxDomain "github.com/salmaimassenda2023/order-service/pkg/outbox/domain"
	"github.com/salmaimassenda2023/order-service/pkg/outbox/worker"
	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/trace"
	"go.uber.org/zap"
)

type PlaceOrderRequest struct {
	Reference     string
	CustomerID    string
	PaymentMethod domain.PaymentMethod
	Lines         []domain.ReservationRequest
}

// OrderService drives the order placement saga: customer verification,
// batch inventory reservation, atomic persistence, payment request and
// confirmation publication. Every exit path that follows a successful
// reservation either accepts the payment or releases the reservation.
type OrderService interface {
	PlaceOrder(ctx context.Context, req *PlaceOrderRequest) (int64, error)
	GetOrder(ctx context.Context, id int64) (*domain.Order, error)
	ListOrders(ctx context.Context) ([]domain.Order, error)
}

type orderService struct {
	pool          *pgxpool.Pool
	logger        *zap.Logger
	orderRepo     repository.OrderRepository
	inventoryRepo repository.InventoryRepository
	outboxRepo    worker.OutboxRepository
	customers     client.CustomerClient
	payments      client.PaymentClient
	stepTimeout   time.Duration
	topic         string
	tracer        trace.Tracer
}

func NewOrderService(
	pool *pgxpool.Pool,
	logger *zap.Logger,
	orderRepo repository.OrderRepository,
	inventoryRepo repository.InventoryRepository,
	outboxRepo worker.OutboxRepository,
	customers client.CustomerClient,
	payments client.PaymentClient,
	stepTimeout time.Duration,
	confirmationTopic string,
) OrderService {
	return &orderService{
		pool:          pool,
		logger:        logger,
		orderRepo:     orderRepo,
		inventoryRepo: inventoryRepo,
		outboxRepo:    outboxRepo,
		customers:     customers,
		payments:      payments,
		stepTimeout:   stepTimeout,
		topic:         confirmationTopic,
		tracer:        otel.Tracer("order_service"),
	}
}

func (s *orderService) PlaceOrder(ctx context.Context, req *PlaceOrderRequest) (int64, error) {
	ctx, span := s.tracer.Start(ctx, "OrderService.PlaceOrder")
	defer span.End()

	span.SetAttributes(
		attribute.String("reference", req.Reference),
		attribute.String("customer_id", req.CustomerID),
		attribute.Int("lines_count", len(req.Lines)),
	)

	state := domain.SagaReceived

	// Idempotency fast path: a reference we have already persisted is a
	// duplicate request. No side effects yet, nothing to compensate.
	if _, err := s.orderRepo.GetByReference(ctx, req.Reference); err == nil {
		return 0, s.fail(ctx, &state, domain.SagaDuplicateRequest, domain.ErrDuplicateReference, req.Reference)
	} else if !errors.Is(err, domain.ErrOrderNotFound) {
		return 0, s.fail(ctx, &state, domain.SagaAborted, &domain.UnavailableError{Dependency: "order-ledger", Err: err}, req.Reference)
	}

	// Customer lookup and reservation are independent; run them
	// concurrently and join before persisting.
	var (
		customer     *domain.CustomerSnapshot
		custErr      error
		reservations []domain.ProductReservation
		resErr       error
	)

	joinCtx, cancel := context.WithTimeout(ctx, s.stepTimeout)

	var wg sync.WaitGroup
	wg.Add(2)
	go func() {
		defer wg.Done()
		customer, custErr = s.customers.FindByID(joinCtx, req.CustomerID)
	}()
	go func() {
		defer wg.Done()
		reservations, resErr = s.reserve(joinCtx, req.Lines)
	}()
	wg.Wait()
	cancel()

	if custErr != nil {
		// The reservation may have won the race; unwind it before
		// terminating.
		if resErr == nil {
			s.releaseAll(ctx, req.Reference, reservations)
		}

		if errors.Is(custErr, domain.ErrCustomerNotFound) {
			return 0, s.fail(ctx, &state, domain.SagaCustomerNotFound, custErr, req.Reference)
		}

		return 0, s.fail(ctx, &state, domain.SagaAborted, custErr, req.Reference)
	}
	s.advance(ctx, &state, domain.SagaCustomerVerified, req.Reference)

	if resErr != nil {
		// The batch is all-or-nothing, so a failed reservation left no
		// partial state behind.
		var notFound *domain.ProductNotFoundError
		var short *domain.InsufficientStockError
		if errors.As(resErr, &notFound) || errors.As(resErr, &short) {
			return 0, s.fail(ctx, &state, domain.SagaInsufficientStock, resErr, req.Reference)
		}

		return 0, s.fail(ctx, &state, domain.SagaAborted, resErr, req.Reference)
	}
	s.advance(ctx, &state, domain.SagaInventoryReserved, req.Reference)

	order := &domain.Order{
		Reference:     req.Reference,
		CustomerID:    req.CustomerID,
		PaymentMethod: req.PaymentMethod,
		Status:        domain.OrderStatusPending,
	}
	order.BuildLines(reservations)

	if err := s.persist(ctx, order); err != nil {
		s.releaseAll(ctx, req.Reference, reservations)

		if errors.Is(err, domain.ErrDuplicateReference) {
			return 0, s.fail(ctx, &state, domain.SagaDuplicateRequest, err, req.Reference)
		}

		return 0, s.fail(ctx, &state, domain.SagaPersistenceFailed, err, req.Reference)
	}
	s.advance(ctx, &state, domain.SagaPersisted, req.Reference)

	payCtx, cancelPay := context.WithTimeout(ctx, s.stepTimeout)
	payErr := s.payments.RequestPayment(payCtx, domain.PaymentRequestRecord{
		Amount:         order.TotalAmount,
		PaymentMethod:  order.PaymentMethod,
		OrderID:        order.ID,
		OrderReference: order.Reference,
		Customer:       *customer,
	})
	cancelPay()

	if payErr != nil {
		// The order row stays, marked terminal, for audit. Only the
		// reservation is undone.
		s.markPaymentFailed(ctx, order.ID, req.Reference)
		s.releaseAll(ctx, req.Reference, reservations)

		var declined *domain.PaymentDeclinedError
		if errors.As(payErr, &declined) {
			return 0, s.fail(ctx, &state, domain.SagaPaymentDeclined, payErr, req.Reference)
		}

		return 0, s.fail(ctx, &state, domain.SagaAborted, payErr, req.Reference)
	}
	s.advance(ctx, &state, domain.SagaPaymentAccepted, req.Reference)

	// The order is placed once payment is accepted. Confirmation is a
	// best-effort downstream notification; its failure never turns a
	// placed order into an error.
	if err := s.confirm(ctx, order, customer, reservations); err != nil {
		mylogger.Error(
			ctx,
			s.logger,
			"Failed to record order confirmation, requires reconciliation",
			zap.Int64("order_id", order.ID),
			zap.String("reference", order.Reference),
			zap.Error(err),
		)
	} else {
		s.advance(ctx, &state, domain.SagaConfirmed, req.Reference)
	}

	return order.ID, nil
}

func (s *orderService) GetOrder(ctx context.Context, id int64) (*domain.Order, error) {
	ctx, span := s.tracer.Start(ctx, "OrderService.GetOrder")
	defer span.End()

	span.SetAttributes(
		attribute.Int64("order_id", id),
	)

	return s.orderRepo.GetByID(ctx, id)
}

func (s *orderService) ListOrders(ctx context.Context) ([]domain.Order, error) {
	ctx, span := s.tracer.Start(ctx, "OrderService.ListOrders")
	defer span.End()

	return s.orderRepo.List(ctx)
}

func (s *orderService) advance(ctx context.Context, state *domain.SagaState, to domain.SagaState, reference string) {
	mylogger.Debug(
		ctx,
		s.logger,
		"Saga transition",
		zap.String("reference", reference),
		zap.String("from", string(*state)),
		zap.String("to", string(to)),
	)

	*state = to
}

func (s *orderService) fail(ctx context.Context, state *domain.SagaState, terminal domain.SagaState, err error, reference string) error {
	mylogger.Warn(
		ctx,
		s.logger,
		"Saga terminated",
		zap.String("reference", reference),
		zap.String("from", string(*state)),
		zap.String("terminal", string(terminal)),
		zap.Error(err),
	)

	*state = terminal

	return &domain.SagaError{State: terminal, Err: err}
}

// reserve runs the all-or-nothing reservation batch in its own
// transaction, so it can commit independently of the order insert and be
// released later if a downstream step fails.
func (s *orderService) reserve(ctx context.Context, lines []domain.ReservationRequest) ([]domain.ProductReservation, error) {
	tx, err := s.pool.Begin(ctx)
	if err != nil {
		return nil, &domain.UnavailableError{Dependency: "inventory-store", Err: err}
	}
	defer func() {
		cleanupCtx := context.WithoutCancel(ctx)

		err := tx.Rollback(cleanupCtx)
		if err != nil && !errors.Is(err, pgx.ErrTxClosed) {
			mylogger.Warn(
				cleanupCtx,
				s.logger,
				"Error rolling back reservation transaction",
				zap.Error(err),
			)
		}
	}()

	reservations, err := s.inventoryRepo.Reserve(ctx, tx, lines)
	if err != nil {
		// Absent products and shortfalls are business outcomes; anything
		// else is the store failing and the caller may retry.
		var notFound *domain.ProductNotFoundError
		var short *domain.InsufficientStockError
		if errors.As(err, &notFound) || errors.As(err, &short) {
			return nil, err
		}

		return nil, &domain.UnavailableError{Dependency: "inventory-store", Err: err}
	}

	if err := tx.Commit(ctx); err != nil {
		return nil, &domain.UnavailableError{Dependency: "inventory-store", Err: err}
	}

	return reservations, nil
}

// releaseAll is the compensation path: it restores every reserved quantity
// in one transaction. It runs detached from the caller's cancellation so a
// cancelled saga still unwinds its reservation. A failure here does not
// mask the error that triggered compensation; it is logged for manual
// reconciliation instead of retried.
func (s *orderService) releaseAll(ctx context.Context, reference string, reservations []domain.ProductReservation) {
	ctx = context.WithoutCancel(ctx)

	releaseCtx, cancel := context.WithTimeout(ctx, s.stepTimeout)
	defer cancel()

	tx, err := s.pool.Begin(releaseCtx)
	if err != nil {
		s.logCompensationFailure(ctx, reference, reservations, err)
		return
	}
	defer func() {
		if err := tx.Rollback(releaseCtx); err != nil && !errors.Is(err, pgx.ErrTxClosed) {
			mylogger.Warn(
				ctx,
				s.logger,
				"Error rolling back release transaction",
				zap.Error(err),
			)
		}
	}()

	for _, res := range reservations {
		if err := s.inventoryRepo.Release(releaseCtx, tx, res.ProductID, res.Quantity); err != nil {
			s.logCompensationFailure(ctx, reference, reservations, err)
			return
		}
	}

	if err := tx.Commit(releaseCtx); err != nil {
		s.logCompensationFailure(ctx, reference, reservations, err)
		return
	}

	mylogger.Info(
		ctx,
		s.logger,
		"Reservation released",
		zap.String("reference", reference),
		zap.Int("products", len(reservations)),
	)
}

func (s *orderService) logCompensationFailure(ctx context.Context, reference string, reservations []domain.ProductReservation, err error) {
	mylogger.Error(
		ctx,
		s.logger,
		"Compensation failed, stock requires manual reconciliation",
		zap.String("reference", reference),
		zap.Int("products", len(reservations)),
		zap.Error(err),
	)
}

func (s *orderService) persist(ctx context.Context, order *domain.Order) error {
	persistCtx, cancel := context.WithTimeout(ctx, s.stepTimeout)
	defer cancel()

	tx, err := s.pool.Begin(persistCtx)
	if err != nil {
		return fmt.Errorf("failed to begin transaction: %w", err)
	}
	defer func() {
		cleanupCtx := context.WithoutCancel(ctx)

		err := tx.Rollback(cleanupCtx)
		if err != nil && !errors.Is(err, pgx.ErrTxClosed) {
			mylogger.Warn(
				cleanupCtx,
				s.logger,
				"Error rolling back order transaction",
				zap.Error(err),
			)
		}
	}()

	if err := s.orderRepo.Create(persistCtx, tx, order); err != nil {
		return err
	}

	if err := tx.Commit(persistCtx); err != nil {
		return fmt.Errorf("failed to commit order: %w", err)
	}

	return nil
}

func (s *orderService) markPaymentFailed(ctx context.Context, orderID int64, reference string) {
	ctx = context.WithoutCancel(ctx)

	markCtx, cancel := context.WithTimeout(ctx, s.stepTimeout)
	defer cancel()

	tx, err := s.pool.Begin(markCtx)
	if err != nil {
		mylogger.Error(
			ctx,
			s.logger,
			"Failed to mark order payment_failed",
			zap.Int64("order_id", orderID),
			zap.String("reference", reference),
			zap.Error(err),
		)
		return
	}
	defer func() {
		if err := tx.Rollback(markCtx); err != nil && !errors.Is(err, pgx.ErrTxClosed) {
			mylogger.Warn(
				ctx,
				s.logger,
				"Error rolling back status transaction",
				zap.Error(err),
			)
		}
	}()

	if err := s.orderRepo.SetStatus(markCtx, tx, orderID, domain.OrderStatusPaymentFailed); err != nil {
		mylogger.Error(
			ctx,
			s.logger,
			"Failed to mark order payment_failed",
			zap.Int64("order_id", orderID),
			zap.String("reference", reference),
			zap.Error(err),
		)
		return
	}

	if err := tx.Commit(markCtx); err != nil {
		mylogger.Error(
			ctx,
			s.logger,
			"Failed to commit payment_failed status",
			zap.Int64("order_id", orderID),
			zap.Error(err),
		)
	}
}

// confirm marks the order paid and enqueues the confirmation event in the
// same transaction. The outbox worker publishes it at-least-once from
// there.
func (s *orderService) confirm(ctx context.Context, order *domain.Order, customer *domain.CustomerSnapshot, reservations []domain.ProductReservation) error {
	confirmCtx, cancel := context.WithTimeout(context.WithoutCancel(ctx), s.stepTimeout)
	defer cancel()

	products := make([]domain.ReservedProduct, 0, len(reservations))
	for _, res := range reservations {
		products = append(products, domain.ReservedProduct{
			ProductID: res.ProductID,
			Quantity:  res.Quantity,
		})
	}

	event := domain.ConfirmationEvent{
		OrderReference: order.Reference,
		TotalAmount:    order.TotalAmount,
		PaymentMethod:  order.PaymentMethod,
		Customer:       *customer,
		Products:       products,
	}

	envelope := map[string]any{
		"event":   "OrderConfirmed",
		"payload": event,
	}

	payloadBytes, err := json.Marshal(envelope)
	if err != nil {
		return fmt.Errorf("failed to marshal confirmation: %w", err)
	}

	tx, err := s.pool.Begin(confirmCtx)
	if err != nil {
		return fmt.Errorf("failed to begin transaction: %w", err)
	}
	defer func() {
		if err := tx.Rollback(confirmCtx); err != nil && !errors.Is(err, pgx.ErrTxClosed) {
			mylogger.Warn(
				ctx,
				s.logger,
				"Error rolling back confirmation transaction",
				zap.Error(err),
			)
		}
	}()

	if err := s.orderRepo.SetStatus(confirmCtx, tx, order.ID, domain.OrderStatusPaid); err != nil {
		return err
	}

	outboxEvent := &outboxDomain.OutboxEvent{
		AggregateType: "Order",
		AggregateID:   order.Reference,
		EventType:     "OrderConfirmed",
		Payload:       payloadBytes,
		Topic:         s.topic,
	}

	if err := s.outboxRepo.SaveOutboxEvent(confirmCtx, tx, outboxEvent); err != nil {
		return fmt.Errorf("failed to save outbox event: %w", err)
	}

	return tx.Commit(confirmCtx)
}
