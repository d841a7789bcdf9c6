package domain

import "time"

type OrderStatus string

const (
	OrderStatusPending OrderStatus = "pending"
	OrderStatusPaid    OrderStatus = "paid"
	// OrderStatusPaymentFailed is terminal. The order row is kept for
	// audit, never deleted.
	OrderStatusPaymentFailed OrderStatus = "payment_failed"
)

type PaymentMethod string

const (
	PaymentMethodCreditCard   PaymentMethod = "CREDIT_CARD"
	PaymentMethodDebitCard    PaymentMethod = "DEBIT_CARD"
	PaymentMethodPaypal       PaymentMethod = "PAYPAL"
	PaymentMethodBankTransfer PaymentMethod = "BANK_TRANSFER"
)

type Order struct {
	ID            int64         `db:"id"`
	Reference     string        `db:"reference"`
	CustomerID    string        `db:"customer_id"`
	PaymentMethod PaymentMethod `db:"payment_method"`
	Status        OrderStatus   `db:"status"`
	TotalAmount   int64         `db:"total_amount"`
	Lines         []OrderLine   `db:"lines"`

	CreatedAt time.Time `db:"created_at"`
	UpdatedAt time.Time `db:"updated_at"`
}

type OrderLine struct {
	ID        int64 `db:"id"`
	OrderID   int64 `db:"order_id"`
	ProductID int64 `db:"product_id"`
	Quantity  int64 `db:"quantity"`
	UnitPrice int64 `db:"unit_price"`
}

// BuildLines derives the order lines and total from the reservations the
// inventory store granted. Prices come from the reservation, not the client.
func (o *Order) BuildLines(reservations []ProductReservation) {
	o.Lines = make([]OrderLine, 0, len(reservations))

	var total int64
	for _, r := range reservations {
		o.Lines = append(o.Lines, OrderLine{
			ProductID: r.ProductID,
			Quantity:  r.Quantity,
			UnitPrice: r.UnitPrice,
		})
		total += r.UnitPrice * r.Quantity
	}

	o.TotalAmount = total
}
