package ledger

import "fmt"

// Kind is the kind of a [Transaction].
type Kind uint8

const (
	// Deposit credits the client's available funds.
	Deposit Kind = iota + 1

	// Withdrawal debits the client's available funds.
	Withdrawal

	// Dispute moves the amount of an earlier transaction from the client's
	// available funds to their held funds.
	Dispute

	// Resolve releases the held amount of a disputed transaction back to the
	// client's available funds.
	Resolve

	// Chargeback removes the held amount of a disputed transaction and locks
	// the client's account.
	Chargeback
)

var kindNames = [...]string{
	Deposit:    "deposit",
	Withdrawal: "withdrawal",
	Dispute:    "dispute",
	Resolve:    "resolve",
	Chargeback: "chargeback",
}

// ParseKind returns the kind with the given name.
//
// Names are case-sensitive.
func ParseKind(name string) (Kind, error) {
	for k, n := range kindNames {
		if n != "" && n == name {
			return Kind(k), nil
		}
	}

	return 0, fmt.Errorf("%w: unrecognized transaction type %q", ErrInvalidTransaction, name)
}

// String returns the name of the kind as it appears in a transaction feed.
func (k Kind) String() string {
	if int(k) < len(kindNames) && kindNames[k] != "" {
		return kindNames[k]
	}
	return fmt.Sprintf("kind(%d)", uint8(k))
}

// IsReference returns true if transactions of this kind refer to an earlier
// deposit or withdrawal instead of carrying an amount of their own.
func (k Kind) IsReference() bool {
	return k == Dispute || k == Resolve || k == Chargeback
}

// ClientID uniquely identifies a client, and therefore their account.
type ClientID uint16

// Transaction is a single record from a transaction feed.
type Transaction struct {
	Kind   Kind
	Client ClientID

	// ID identifies the transaction. It is unique among accepted deposits and
	// withdrawals. Disputes, resolutions and chargebacks use it to refer to the
	// deposit or withdrawal they affect.
	ID string

	// Amount is the value of a deposit or withdrawal. It is only meaningful if
	// HasAmount is true.
	Amount    float32
	HasAmount bool
}

// WithAmount returns a copy of tx with the given amount.
func (tx Transaction) WithAmount(amount float32) Transaction {
	tx.Amount = amount
	tx.HasAmount = true
	return tx
}

func (tx Transaction) String() string {
	if tx.HasAmount {
		return fmt.Sprintf("%s #%s (client %d, amount %g)", tx.Kind, tx.ID, tx.Client, tx.Amount)
	}
	return fmt.Sprintf("%s #%s (client %d)", tx.Kind, tx.ID, tx.Client)
}
