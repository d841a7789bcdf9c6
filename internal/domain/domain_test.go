package domain_test

import (
	"errors"
	"testing"

	"github.com/salmaimassenda2023/order-service/internal/domain"
	"github.com/stretchr/testify/require"
)

func TestBuildLines(t *testing.T) {
	order := &domain.Order{Reference: "REF-1"}

	order.BuildLines([]domain.ProductReservation{
		{ProductID: 1, Quantity: 2, UnitPrice: 100_000},
		{ProductID: 7, Quantity: 3, UnitPrice: 40_000},
	})

	require.Len(t, order.Lines, 2)
	require.Equal(t, int64(320_000), order.TotalAmount)

	// Lines keep the reservation order and carry the store's price.
	require.Equal(t, int64(1), order.Lines[0].ProductID)
	require.Equal(t, int64(100_000), order.Lines[0].UnitPrice)
	require.Equal(t, int64(7), order.Lines[1].ProductID)
}

func TestBuildLines_Empty(t *testing.T) {
	order := &domain.Order{}
	order.BuildLines(nil)

	require.Empty(t, order.Lines)
	require.Zero(t, order.TotalAmount)
}

func TestInsufficientStockError_ShortBy(t *testing.T) {
	err := &domain.InsufficientStockError{ProductID: 1, Requested: 5, Available: 2}

	require.Equal(t, int64(3), err.ShortBy())
	require.Contains(t, err.Error(), "short by 3")
}

func TestSagaError_Unwrap(t *testing.T) {
	inner := &domain.InsufficientStockError{ProductID: 1, Requested: 5, Available: 2}
	err := error(&domain.SagaError{State: domain.SagaInsufficientStock, Err: inner})

	var short *domain.InsufficientStockError
	require.True(t, errors.As(err, &short))
	require.Equal(t, int64(1), short.ProductID)

	wrapped := &domain.SagaError{State: domain.SagaDuplicateRequest, Err: domain.ErrDuplicateReference}
	require.True(t, errors.Is(wrapped, domain.ErrDuplicateReference))
}

func TestUnavailableError_Unwrap(t *testing.T) {
	inner := errors.New("connection refused")
	err := &domain.UnavailableError{Dependency: "payment-service", Err: inner}

	require.True(t, errors.Is(err, inner))
	require.Contains(t, err.Error(), "payment-service")
}
