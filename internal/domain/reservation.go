package domain

// ReservationRequest asks the inventory store for a quantity of one product.
type ReservationRequest struct {
	ProductID int64 `json:"product_id"`
	Quantity  int64 `json:"quantity"`
}

// ProductReservation is the granted counterpart: quantity decremented from
// stock plus the unit price at reservation time. Transient; it only exists
// in the saga's working memory.
type ProductReservation struct {
	ProductID int64 `json:"product_id"`
	Quantity  int64 `json:"quantity"`
	UnitPrice int64 `json:"unit_price"`
}
