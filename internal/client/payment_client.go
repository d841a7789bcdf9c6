package client

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"strings"
	"time"

	"github.com/google/uuid"
	"github.com/salmaimassenda2023/order-service/internal/domain"
	"github.com/salmaimassenda2023/order-service/pkg/utils"
	"github.com/sony/gobreaker"
	"go.opentelemetry.io/contrib/instrumentation/net/http/otelhttp"
	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/trace"
	"go.uber.org/zap"
)

// PaymentClient submits one payment request per persisted order. A decline
// is a business decision and comes back as PaymentDeclinedError; anything
// else that keeps the request from being answered is UnavailableError.
type PaymentClient interface {
	RequestPayment(ctx context.Context, record domain.PaymentRequestRecord) error
}

type paymentClient struct {
	baseURL    string
	httpClient *http.Client
	cb         *gobreaker.CircuitBreaker
	logger     *zap.Logger
	tracer     trace.Tracer
}

func NewPaymentClient(baseURL string, timeout time.Duration, logger *zap.Logger) PaymentClient {
	return &paymentClient{
		baseURL: baseURL,
		httpClient: &http.Client{
			Timeout:   timeout,
			Transport: otelhttp.NewTransport(http.DefaultTransport),
		},
		cb:     utils.NewBreaker("PaymentService", logger),
		logger: logger,
		tracer: otel.Tracer("payment_client"),
	}
}

// paymentResult carries a decline out of the breaker as a success: a
// declined card means the payment service is healthy.
type paymentResult struct {
	declined bool
	reason   string
}

func (c *paymentClient) RequestPayment(ctx context.Context, record domain.PaymentRequestRecord) error {
	ctx, span := c.tracer.Start(ctx, "PaymentClient.RequestPayment")
	defer span.End()

	span.SetAttributes(
		attribute.Int64("order_id", record.OrderID),
		attribute.String("order_reference", record.OrderReference),
		attribute.Int64("amount", record.Amount),
	)

	result, err := utils.ExecuteWithBreaker(c.cb, func() (paymentResult, error) {
		body, err := json.Marshal(record)
		if err != nil {
			return paymentResult{}, err
		}

		req, err := http.NewRequestWithContext(ctx, http.MethodPost, c.baseURL+"/api/v1/payments", bytes.NewReader(body))
		if err != nil {
			return paymentResult{}, err
		}
		req.Header.Set("Content-Type", "application/json")
		// The payment service deduplicates retried submissions by this
		// key, so it must be stable across retries of the same order.
		req.Header.Set("Idempotency-Key", uuid.NewSHA1(uuid.NameSpaceOID, []byte(record.OrderReference)).String())

		resp, err := c.httpClient.Do(req)
		if err != nil {
			return paymentResult{}, err
		}
		defer resp.Body.Close()

		switch {
		case resp.StatusCode >= 200 && resp.StatusCode < 300:
			return paymentResult{}, nil
		case resp.StatusCode == http.StatusPaymentRequired || resp.StatusCode == http.StatusUnprocessableEntity:
			return paymentResult{declined: true, reason: readReason(resp.Body)}, nil
		default:
			return paymentResult{}, fmt.Errorf("unexpected status %d", resp.StatusCode)
		}
	})

	if err != nil {
		span.RecordError(err)

		return &domain.UnavailableError{Dependency: "payment-service", Err: err}
	}

	if result.declined {
		return &domain.PaymentDeclinedError{OrderID: record.OrderID, Reason: result.reason}
	}

	return nil
}

func readReason(body io.Reader) string {
	raw, err := io.ReadAll(io.LimitReader(body, 512))
	if err != nil || len(raw) == 0 {
		return "declined by payment service"
	}

	var payload struct {
		Error  string `json:"error"`
		Reason string `json:"reason"`
	}
	if err := json.Unmarshal(raw, &payload); err == nil {
		if payload.Reason != "" {
			return payload.Reason
		}
		if payload.Error != "" {
			return payload.Error
		}
	}

	return strings.TrimSpace(string(raw))
}
