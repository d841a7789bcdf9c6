package domain

// SagaState tags where an order placement currently is. Each placement
// walks Received -> CustomerVerified -> InventoryReserved -> Persisted ->
// PaymentAccepted -> Confirmed; every failure terminates in one of the
// failure states below, after undoing whatever side effects exist.
type SagaState string

const (
	SagaReceived          SagaState = "received"
	SagaCustomerVerified  SagaState = "customer_verified"
	SagaInventoryReserved SagaState = "inventory_reserved"
	SagaPersisted         SagaState = "persisted"
	SagaPaymentAccepted   SagaState = "payment_accepted"
	SagaConfirmed         SagaState = "confirmed"

	SagaCustomerNotFound  SagaState = "customer_not_found"
	SagaInsufficientStock SagaState = "insufficient_stock"
	SagaDuplicateRequest  SagaState = "duplicate_request"
	SagaPersistenceFailed SagaState = "persistence_failed"
	SagaPaymentDeclined   SagaState = "payment_declined"
	SagaAborted           SagaState = "aborted"
)

// SagaError annotates a failure with the terminal state the placement
// ended in, so the caller knows which step failed and whether retrying
// makes sense.
type SagaError struct {
	State SagaState
	Err   error
}

func (e *SagaError) Error() string {
	return string(e.State) + ": " + e.Err.Error()
}

func (e *SagaError) Unwrap() error {
	return e.Err
}
