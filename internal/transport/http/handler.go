package http

import (
	"errors"

	"github.com/go-playground/validator/v10"
	"github.com/gofiber/fiber/v2"
	"github.com/salmaimassenda2023/order-service/internal/domain"
	"github.com/salmaimassenda2023/order-service/internal/service"
	"github.com/salmaimassenda2023/order-service/pkg/mylogger"
	"github.com/salmaimassenda2023/order-service/pkg/utils"
	"go.uber.org/zap"
)

type OrderHandler struct {
	service  service.OrderService
	logger   *zap.Logger
	validate *validator.Validate
}

func NewOrderHandler(service service.OrderService, logger *zap.Logger) *OrderHandler {
	return &OrderHandler{
		service:  service,
		logger:   logger,
		validate: validator.New(),
	}
}

type orderLineRequest struct {
	ProductID int64 `json:"product_id" validate:"required,gt=0"`
	Quantity  int64 `json:"quantity" validate:"required,gt=0"`
}

type createOrderRequest struct {
	Reference     string             `json:"reference" validate:"required"`
	CustomerID    string             `json:"customer_id" validate:"required"`
	PaymentMethod string             `json:"payment_method" validate:"required,oneof=CREDIT_CARD DEBIT_CARD PAYPAL BANK_TRANSFER"`
	Lines         []orderLineRequest `json:"lines" validate:"required,min=1,dive"`
}

func (h *OrderHandler) Create(c *fiber.Ctx) error {
	input := new(createOrderRequest)

	if err := c.BodyParser(input); err != nil {
		h.logger.Warn(
			"failed to parse body in create order",
			zap.Error(err),
		)

		return c.Status(fiber.StatusBadRequest).JSON(fiber.Map{
			"error": "error parsing body",
		})
	}

	if err := h.validate.Struct(input); err != nil {
		return c.Status(fiber.StatusBadRequest).JSON(fiber.Map{
			"errors": utils.FormatValidationError(err),
		})
	}

	lines := make([]domain.ReservationRequest, 0, len(input.Lines))
	for _, line := range input.Lines {
		lines = append(lines, domain.ReservationRequest{
			ProductID: line.ProductID,
			Quantity:  line.Quantity,
		})
	}

	orderID, err := h.service.PlaceOrder(c.UserContext(), &service.PlaceOrderRequest{
		Reference:     input.Reference,
		CustomerID:    input.CustomerID,
		PaymentMethod: domain.PaymentMethod(input.PaymentMethod),
		Lines:         lines,
	})
	if err != nil {
		httpCode := statusFromError(err)

		var sagaErr *domain.SagaError
		state := ""
		if errors.As(err, &sagaErr) {
			state = string(sagaErr.State)
		}

		mylogger.Warn(
			c.UserContext(),
			h.logger,
			"place order failed",
			zap.String("reference", input.Reference),
			zap.String("saga_state", state),
			zap.Int("http_code", httpCode),
			zap.Error(err),
		)

		return c.Status(httpCode).JSON(fiber.Map{
			"error": err.Error(),
			"state": state,
		})
	}

	mylogger.Info(
		c.UserContext(),
		h.logger,
		"order placed",
		zap.Int64("order_id", orderID),
		zap.String("reference", input.Reference),
	)

	return c.Status(fiber.StatusCreated).JSON(fiber.Map{
		"order_id": orderID,
		"status":   "success",
	})
}

func (h *OrderHandler) GetByID(c *fiber.Ctx) error {
	id, err := c.ParamsInt("id")
	if err != nil {
		return c.Status(fiber.StatusBadRequest).JSON(fiber.Map{
			"error": "invalid order id",
		})
	}

	order, err := h.service.GetOrder(c.UserContext(), int64(id))
	if err != nil {
		httpCode := statusFromError(err)

		if httpCode != fiber.StatusNotFound {
			mylogger.Warn(
				c.UserContext(),
				h.logger,
				"get order failed",
				zap.Int("order_id", id),
				zap.Error(err),
			)
		}

		return c.Status(httpCode).JSON(fiber.Map{
			"error": err.Error(),
		})
	}

	return c.JSON(toOrderResponse(order))
}

func (h *OrderHandler) List(c *fiber.Ctx) error {
	orders, err := h.service.ListOrders(c.UserContext())
	if err != nil {
		mylogger.Warn(
			c.UserContext(),
			h.logger,
			"list orders failed",
			zap.Error(err),
		)

		return c.Status(statusFromError(err)).JSON(fiber.Map{
			"error": err.Error(),
		})
	}

	result := make([]fiber.Map, 0, len(orders))
	for i := range orders {
		result = append(result, toOrderResponse(&orders[i]))
	}

	return c.JSON(fiber.Map{"orders": result})
}

func toOrderResponse(order *domain.Order) fiber.Map {
	lines := make([]fiber.Map, 0, len(order.Lines))
	for _, line := range order.Lines {
		lines = append(lines, fiber.Map{
			"id":         line.ID,
			"product_id": line.ProductID,
			"quantity":   line.Quantity,
			"unit_price": line.UnitPrice,
		})
	}

	return fiber.Map{
		"id":             order.ID,
		"reference":      order.Reference,
		"customer_id":    order.CustomerID,
		"payment_method": order.PaymentMethod,
		"status":         order.Status,
		"total_amount":   order.TotalAmount,
		"lines":          lines,
		"created_at":     order.CreatedAt,
	}
}
