package repository_test

import (
	"context"
	"errors"
	"sync"
	"testing"

	_ "github.com/golang-migrate/migrate/v4/database/postgres"
	_ "github.com/golang-migrate/migrate/v4/source/file"
	"github.com/salmaimassenda2023/order-service/internal/domain"
	"github.com/salmaimassenda2023/order-service/internal/repository"
	"github.com/salmaimassenda2023/order-service/pkg/testsuite"
	"github.com/stretchr/testify/suite"
	"go.uber.org/zap"
)

type OrderRepoSuite struct {
	testsuite.BaseSuite

	repo repository.OrderRepository
}

func (s *OrderRepoSuite) SetupSuite() {
	s.BaseSuite.SetupInfrastructure("../../migrations")
}

func (s *OrderRepoSuite) TearDownSuite() {
	s.BaseSuite.TearDownInfrastructure()
}

func (s *OrderRepoSuite) SetupTest() {
	s.BaseSuite.TruncateTable("order_lines")
	s.BaseSuite.TruncateTable("orders")

	s.repo = repository.NewOrderRepository(s.DbPool, zap.NewNop())
}

func (s *OrderRepoSuite) create(ctx context.Context, order *domain.Order) error {
	tx, err := s.DbPool.Begin(ctx)
	if err != nil {
		return err
	}
	defer tx.Rollback(ctx) //nolint:errcheck

	if err := s.repo.Create(ctx, tx, order); err != nil {
		return err
	}

	return tx.Commit(ctx)
}

func (s *OrderRepoSuite) sampleOrder(reference string) *domain.Order {
	return &domain.Order{
		Reference:     reference,
		CustomerID:    "cust-1",
		PaymentMethod: domain.PaymentMethodCreditCard,
		Status:        domain.OrderStatusPending,
		TotalAmount:   12_500,
		Lines: []domain.OrderLine{
			{ProductID: 1, Quantity: 2, UnitPrice: 5_000},
			{ProductID: 7, Quantity: 1, UnitPrice: 2_500},
		},
	}
}

func (s *OrderRepoSuite) TestCreate_RoundTripKeepsLineOrder() {
	order := s.sampleOrder("REF-1")
	s.Require().NoError(s.create(s.Ctx, order))
	s.Require().NotZero(order.ID)

	got, err := s.repo.GetByID(s.Ctx, order.ID)
	s.Require().NoError(err)

	s.Require().Equal("REF-1", got.Reference)
	s.Require().Equal(domain.OrderStatusPending, got.Status)
	s.Require().Equal(int64(12_500), got.TotalAmount)
	s.Require().Len(got.Lines, 2)

	// Lines come back in the order the client supplied them.
	s.Require().Equal(int64(1), got.Lines[0].ProductID)
	s.Require().Equal(int64(2), got.Lines[0].Quantity)
	s.Require().Equal(int64(7), got.Lines[1].ProductID)
	s.Require().Equal(int64(1), got.Lines[1].Quantity)
}

func (s *OrderRepoSuite) TestCreate_DuplicateReference() {
	s.Require().NoError(s.create(s.Ctx, s.sampleOrder("REF-1")))

	err := s.create(s.Ctx, s.sampleOrder("REF-1"))
	s.Require().True(errors.Is(err, domain.ErrDuplicateReference))

	orders, err := s.repo.List(s.Ctx)
	s.Require().NoError(err)
	s.Require().Len(orders, 1)
}

func (s *OrderRepoSuite) TestCreate_ConcurrentSameReference() {
	results := make([]error, 2)

	var wg sync.WaitGroup
	wg.Add(2)
	for i := 0; i < 2; i++ {
		go func(i int) {
			defer wg.Done()
			results[i] = s.create(context.Background(), s.sampleOrder("REF-RACE"))
		}(i)
	}
	wg.Wait()

	var duplicates int
	for _, err := range results {
		if errors.Is(err, domain.ErrDuplicateReference) {
			duplicates++
		} else {
			s.Require().NoError(err)
		}
	}

	// Exactly one create wins the unique index.
	s.Require().Equal(1, duplicates)

	orders, err := s.repo.List(s.Ctx)
	s.Require().NoError(err)
	s.Require().Len(orders, 1)
}

func (s *OrderRepoSuite) TestGetByID_NotFound() {
	_, err := s.repo.GetByID(s.Ctx, 424242)
	s.Require().True(errors.Is(err, domain.ErrOrderNotFound))
}

func (s *OrderRepoSuite) TestGetByReference() {
	order := s.sampleOrder("REF-9")
	s.Require().NoError(s.create(s.Ctx, order))

	got, err := s.repo.GetByReference(s.Ctx, "REF-9")
	s.Require().NoError(err)
	s.Require().Equal(order.ID, got.ID)

	_, err = s.repo.GetByReference(s.Ctx, "REF-MISSING")
	s.Require().True(errors.Is(err, domain.ErrOrderNotFound))
}

func (s *OrderRepoSuite) TestSetStatus() {
	order := s.sampleOrder("REF-1")
	s.Require().NoError(s.create(s.Ctx, order))

	tx, err := s.DbPool.Begin(s.Ctx)
	s.Require().NoError(err)
	s.Require().NoError(s.repo.SetStatus(s.Ctx, tx, order.ID, domain.OrderStatusPaid))
	s.Require().NoError(tx.Commit(s.Ctx))

	got, err := s.repo.GetByID(s.Ctx, order.ID)
	s.Require().NoError(err)
	s.Require().Equal(domain.OrderStatusPaid, got.Status)

	tx, err = s.DbPool.Begin(s.Ctx)
	s.Require().NoError(err)
	err = s.repo.SetStatus(s.Ctx, tx, 424242, domain.OrderStatusPaid)
	s.Require().True(errors.Is(err, domain.ErrOrderNotFound))
	_ = tx.Rollback(s.Ctx)
}

func TestOrderRepoSuite(t *testing.T) {
	suite.Run(t, new(OrderRepoSuite))
}
