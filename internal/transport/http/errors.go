package http

import (
	"errors"

	"github.com/gofiber/fiber/v2"
	"github.com/salmaimassenda2023/order-service/internal/domain"
)

// statusFromError maps the domain error taxonomy onto HTTP codes. The
// saga wraps its errors in SagaError, so unwrap happens through errors.Is
// and errors.As.
func statusFromError(err error) int {
	var notFound *domain.ProductNotFoundError
	var insufficient *domain.InsufficientStockError
	var declined *domain.PaymentDeclinedError
	var unavailable *domain.UnavailableError

	switch {
	case errors.Is(err, domain.ErrCustomerNotFound),
		errors.Is(err, domain.ErrOrderNotFound),
		errors.As(err, &notFound):
		return fiber.StatusNotFound
	case errors.Is(err, domain.ErrDuplicateReference),
		errors.As(err, &insufficient):
		return fiber.StatusConflict
	case errors.As(err, &declined):
		return fiber.StatusPaymentRequired
	case errors.As(err, &unavailable):
		return fiber.StatusServiceUnavailable
	default:
		return fiber.StatusInternalServerError
	}
}
