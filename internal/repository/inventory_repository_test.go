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

type InventorySuite struct {
	testsuite.BaseSuite

	repo repository.InventoryRepository
}

func (s *InventorySuite) SetupSuite() {
	s.BaseSuite.SetupInfrastructure("../../migrations")
}

func (s *InventorySuite) TearDownSuite() {
	s.BaseSuite.TearDownInfrastructure()
}

func (s *InventorySuite) SetupTest() {
	s.BaseSuite.TruncateTable("products")

	s.repo = repository.NewInventoryRepository(s.DbPool, zap.NewNop())
}

// reserve runs one batch in its own transaction, the way the saga does.
func (s *InventorySuite) reserve(ctx context.Context, requests []domain.ReservationRequest) ([]domain.ProductReservation, error) {
	tx, err := s.DbPool.Begin(ctx)
	if err != nil {
		return nil, err
	}
	defer tx.Rollback(ctx) //nolint:errcheck

	reservations, err := s.repo.Reserve(ctx, tx, requests)
	if err != nil {
		return nil, err
	}

	return reservations, tx.Commit(ctx)
}

func (s *InventorySuite) release(ctx context.Context, productID, quantity int64) error {
	tx, err := s.DbPool.Begin(ctx)
	if err != nil {
		return err
	}
	defer tx.Rollback(ctx) //nolint:errcheck

	if err := s.repo.Release(ctx, tx, productID, quantity); err != nil {
		return err
	}

	return tx.Commit(ctx)
}

func (s *InventorySuite) TestReserve_DecrementsStock() {
	s.SeedProduct(1, "Laptop", 100_000, 10)

	reservations, err := s.reserve(s.Ctx, []domain.ReservationRequest{
		{ProductID: 1, Quantity: 3},
	})
	s.Require().NoError(err)
	s.Require().Len(reservations, 1)
	s.Require().Equal(int64(1), reservations[0].ProductID)
	s.Require().Equal(int64(3), reservations[0].Quantity)
	s.Require().Equal(int64(100_000), reservations[0].UnitPrice)

	s.Require().Equal(int64(7), s.AvailableStock(1))
}

func (s *InventorySuite) TestReserve_InsufficientStock() {
	s.SeedProduct(1, "Laptop", 100_000, 2)

	_, err := s.reserve(s.Ctx, []domain.ReservationRequest{
		{ProductID: 1, Quantity: 5},
	})

	var short *domain.InsufficientStockError
	s.Require().ErrorAs(err, &short)
	s.Require().Equal(int64(1), short.ProductID)
	s.Require().Equal(int64(3), short.ShortBy())

	s.Require().Equal(int64(2), s.AvailableStock(1))
}

func (s *InventorySuite) TestReserve_UnknownProductRejectsBatch() {
	s.SeedProduct(1, "Laptop", 100_000, 10)

	_, err := s.reserve(s.Ctx, []domain.ReservationRequest{
		{ProductID: 1, Quantity: 3},
		{ProductID: 42, Quantity: 1},
	})

	var notFound *domain.ProductNotFoundError
	s.Require().ErrorAs(err, &notFound)
	s.Require().Equal(int64(42), notFound.ProductID)

	// All-or-nothing: the known product was not touched.
	s.Require().Equal(int64(10), s.AvailableStock(1))
}

func (s *InventorySuite) TestReserve_ShortfallRejectsWholeBatch() {
	s.SeedProduct(1, "Laptop", 100_000, 10)
	s.SeedProduct(2, "Mouse", 2_500, 1)

	_, err := s.reserve(s.Ctx, []domain.ReservationRequest{
		{ProductID: 1, Quantity: 3},
		{ProductID: 2, Quantity: 4},
	})

	var short *domain.InsufficientStockError
	s.Require().ErrorAs(err, &short)
	s.Require().Equal(int64(2), short.ProductID)

	s.Require().Equal(int64(10), s.AvailableStock(1))
	s.Require().Equal(int64(1), s.AvailableStock(2))
}

func (s *InventorySuite) TestReserve_SameProductTwiceInBatch() {
	s.SeedProduct(1, "Laptop", 100_000, 5)

	_, err := s.reserve(s.Ctx, []domain.ReservationRequest{
		{ProductID: 1, Quantity: 3},
		{ProductID: 1, Quantity: 3},
	})

	// Combined demand of 6 exceeds the 5 in stock even though each line
	// alone would fit.
	var short *domain.InsufficientStockError
	s.Require().ErrorAs(err, &short)
	s.Require().Equal(int64(5), s.AvailableStock(1))
}

func (s *InventorySuite) TestReserve_ConcurrentBatchesNeverOversell() {
	s.SeedProduct(1, "Laptop", 100_000, 10)

	results := make([]error, 2)

	var wg sync.WaitGroup
	wg.Add(2)
	for i := 0; i < 2; i++ {
		go func(i int) {
			defer wg.Done()
			_, results[i] = s.reserve(context.Background(), []domain.ReservationRequest{
				{ProductID: 1, Quantity: 6},
			})
		}(i)
	}
	wg.Wait()

	var succeeded, failed int
	for _, err := range results {
		if err == nil {
			succeeded++
			continue
		}

		failed++
		var short *domain.InsufficientStockError
		s.Require().ErrorAs(err, &short)
		s.Require().Equal(int64(2), short.ShortBy())
	}

	s.Require().Equal(1, succeeded)
	s.Require().Equal(1, failed)
	s.Require().Equal(int64(4), s.AvailableStock(1))
}

func (s *InventorySuite) TestReserve_DisjointProductsProceedInParallel() {
	s.SeedProduct(1, "Laptop", 100_000, 5)
	s.SeedProduct(2, "Mouse", 2_500, 5)

	var wg sync.WaitGroup
	results := make([]error, 2)

	wg.Add(2)
	go func() {
		defer wg.Done()
		_, results[0] = s.reserve(context.Background(), []domain.ReservationRequest{{ProductID: 1, Quantity: 5}})
	}()
	go func() {
		defer wg.Done()
		_, results[1] = s.reserve(context.Background(), []domain.ReservationRequest{{ProductID: 2, Quantity: 5}})
	}()
	wg.Wait()

	s.Require().NoError(results[0])
	s.Require().NoError(results[1])
	s.Require().Equal(int64(0), s.AvailableStock(1))
	s.Require().Equal(int64(0), s.AvailableStock(2))
}

func (s *InventorySuite) TestRelease_RestoresStock() {
	s.SeedProduct(1, "Laptop", 100_000, 10)

	_, err := s.reserve(s.Ctx, []domain.ReservationRequest{{ProductID: 1, Quantity: 4}})
	s.Require().NoError(err)
	s.Require().Equal(int64(6), s.AvailableStock(1))

	s.Require().NoError(s.release(s.Ctx, 1, 4))
	s.Require().Equal(int64(10), s.AvailableStock(1))
}

func (s *InventorySuite) TestRelease_NeverExceedsCeiling() {
	s.SeedProduct(1, "Laptop", 100_000, 10)

	_, err := s.reserve(s.Ctx, []domain.ReservationRequest{{ProductID: 1, Quantity: 4}})
	s.Require().NoError(err)

	s.Require().NoError(s.release(s.Ctx, 1, 4))

	// A duplicate compensation must be rejected, not applied.
	err = s.release(s.Ctx, 1, 4)
	s.Require().True(errors.Is(err, domain.ErrReleaseExceedsCeiling))
	s.Require().Equal(int64(10), s.AvailableStock(1))
}

func (s *InventorySuite) TestRelease_UnknownProduct() {
	err := s.release(s.Ctx, 42, 1)

	var notFound *domain.ProductNotFoundError
	s.Require().ErrorAs(err, &notFound)
}

func TestInventorySuite(t *testing.T) {
	suite.Run(t, new(InventorySuite))
}
