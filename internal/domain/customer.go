package domain

// CustomerSnapshot is a read-only copy of the customer fetched at order
// time. It lives only for the duration of one placement and is embedded
// into the payment request and the confirmation event.
type CustomerSnapshot struct {
	ID        string `json:"id"`
	FirstName string `json:"firstName"`
	LastName  string `json:"lastName"`
	Email     string `json:"email"`
	Address   string `json:"address"`
}
