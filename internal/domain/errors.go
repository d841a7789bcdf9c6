package domain

import (
	"errors"
	"fmt"
)

var (
	ErrCustomerNotFound      = errors.New("customer not found")
	ErrOrderNotFound         = errors.New("order not found")
	ErrDuplicateReference    = errors.New("order reference already exists")
	ErrReleaseExceedsCeiling = errors.New("release would exceed provisioned stock")
)

type ProductNotFoundError struct {
	ProductID int64
}

func (e *ProductNotFoundError) Error() string {
	return fmt.Sprintf("product %d not found", e.ProductID)
}

// InsufficientStockError names the offending product and how short the
// stock is. The whole batch is rejected; nothing was reserved.
type InsufficientStockError struct {
	ProductID int64
	Requested int64
	Available int64
}

func (e *InsufficientStockError) ShortBy() int64 {
	return e.Requested - e.Available
}

func (e *InsufficientStockError) Error() string {
	return fmt.Sprintf(
		"insufficient stock for product %d: requested %d, available %d (short by %d)",
		e.ProductID, e.Requested, e.Available, e.ShortBy(),
	)
}

type PaymentDeclinedError struct {
	OrderID int64
	Reason  string
}

func (e *PaymentDeclinedError) Error() string {
	return fmt.Sprintf("payment declined for order %d: %s", e.OrderID, e.Reason)
}

// UnavailableError marks a downstream dependency as unreachable or timed
// out. The caller may retry the whole request.
type UnavailableError struct {
	Dependency string
	Err        error
}

func (e *UnavailableError) Error() string {
	return fmt.Sprintf("%s unavailable: %v", e.Dependency, e.Err)
}

func (e *UnavailableError) Unwrap() error {
	return e.Err
}
