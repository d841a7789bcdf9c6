package client

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"net/http"
	"time"

	"github.com/salmaimassenda2023/order-service/internal/domain"
	"github.com/salmaimassenda2023/order-service/pkg/utils"
	"github.com/sony/gobreaker"
	"go.opentelemetry.io/contrib/instrumentation/net/http/otelhttp"
	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/trace"
	"go.uber.org/zap"
)

// CustomerClient is a read-only view of the customer directory.
type CustomerClient interface {
	FindByID(ctx context.Context, customerID string) (*domain.CustomerSnapshot, error)
}

type customerClient struct {
	baseURL    string
	httpClient *http.Client
	cb         *gobreaker.CircuitBreaker
	logger     *zap.Logger
	tracer     trace.Tracer
}

func NewCustomerClient(baseURL string, timeout time.Duration, logger *zap.Logger) CustomerClient {
	return &customerClient{
		baseURL: baseURL,
		httpClient: &http.Client{
			Timeout:   timeout,
			Transport: otelhttp.NewTransport(http.DefaultTransport),
		},
		cb:     utils.NewBreaker("CustomerDirectory", logger),
		logger: logger,
		tracer: otel.Tracer("customer_client"),
	}
}

// lookupResult keeps a 404 from counting as a breaker failure: an absent
// customer is a normal outcome, not a sign the directory is down.
type lookupResult struct {
	customer *domain.CustomerSnapshot
	notFound bool
}

func (c *customerClient) FindByID(ctx context.Context, customerID string) (*domain.CustomerSnapshot, error) {
	ctx, span := c.tracer.Start(ctx, "CustomerClient.FindByID")
	defer span.End()

	span.SetAttributes(
		attribute.String("customer_id", customerID),
	)

	result, err := utils.ExecuteWithBreaker(c.cb, func() (lookupResult, error) {
		req, err := http.NewRequestWithContext(ctx, http.MethodGet, c.baseURL+"/api/v1/customers/"+customerID, nil)
		if err != nil {
			return lookupResult{}, err
		}

		resp, err := c.httpClient.Do(req)
		if err != nil {
			return lookupResult{}, err
		}
		defer resp.Body.Close()

		switch {
		case resp.StatusCode == http.StatusNotFound:
			return lookupResult{notFound: true}, nil
		case resp.StatusCode != http.StatusOK:
			return lookupResult{}, fmt.Errorf("unexpected status %d", resp.StatusCode)
		}

		var customer domain.CustomerSnapshot
		if err := json.NewDecoder(resp.Body).Decode(&customer); err != nil {
			return lookupResult{}, fmt.Errorf("decoding customer: %w", err)
		}

		return lookupResult{customer: &customer}, nil
	})

	if err != nil {
		span.RecordError(err)

		if errors.Is(err, gobreaker.ErrOpenState) || errors.Is(err, gobreaker.ErrTooManyRequests) {
			c.logger.Warn("Customer directory circuit open")
		}

		return nil, &domain.UnavailableError{Dependency: "customer-directory", Err: err}
	}

	if result.notFound {
		return nil, domain.ErrCustomerNotFound
	}

	return result.customer, nil
}
