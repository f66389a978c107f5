package ledger

// Account is the balance record of a single client.
type Account struct {
	Client ClientID

	// Available is the amount the client can withdraw.
	Available float32

	// Held is the amount frozen by open disputes.
	Held float32

	// Total is always Available + Held.
	Total float32

	// Locked is true once a chargeback has been applied. A locked account can
	// not be changed.
	Locked bool
}

// NewAccount returns the zero-balance record for the given client.
func NewAccount(id ClientID) Account {
	return Account{Client: id}
}

// Balance recomputes the total from the available and held amounts.
func (a *Account) Balance() {
	a.Total = a.Available + a.Held
}

// IsBalanced returns true if the total equals the sum of the available and held
// amounts.
func (a Account) IsBalanced() bool {
	return a.Total == a.Available+a.Held
}

// IsZero returns true if a is indistinguishable from an account that has never
// been referenced.
func (a Account) IsZero() bool {
	return a == NewAccount(a.Client)
}
