package domain

// PaymentRequestRecord is sent once per order to the payment service.
type PaymentRequestRecord struct {
	Amount         int64            `json:"amount"`
	PaymentMethod  PaymentMethod    `json:"payment_method"`
	OrderID        int64            `json:"order_id"`
	OrderReference string           `json:"order_reference"`
	Customer       CustomerSnapshot `json:"customer"`
}

type ReservedProduct struct {
	ProductID int64 `json:"product_id"`
	Quantity  int64 `json:"quantity"`
}

// ConfirmationEvent announces a successfully placed order, at-least-once.
type ConfirmationEvent struct {
	OrderReference string            `json:"order_reference"`
	TotalAmount    int64             `json:"total_amount"`
	PaymentMethod  PaymentMethod     `json:"payment_method"`
	Customer       CustomerSnapshot  `json:"customer"`
	Products       []ReservedProduct `json:"products"`
}
