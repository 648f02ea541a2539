package analysis

import (
	"github.com/brojonat/suilyzer/service/sui"
	"github.com/shopspring/decimal"
)

// ObjectKind is the lifecycle class of an object change.
type ObjectKind string

const (
	ObjectCreated ObjectKind = "created"
	ObjectMutated ObjectKind = "mutated"
	ObjectDeleted ObjectKind = "deleted"
	ObjectWrapped ObjectKind = "wrapped"
)

// ObjectChange is one object affected by a transaction.
type ObjectChange struct {
	ObjectID  string        `json:"object_id"`
	Kind      ObjectKind    `json:"kind"`
	TypeTag   string        `json:"type_tag"`
	Type      TypeTag       `json:"type"`
	Owner     *string       `json:"owner"`
	OwnerKind sui.OwnerKind `json:"owner_kind"`
	Version   *uint64       `json:"version"`
	Digest    *string       `json:"digest,omitempty"`
}

// BalanceChange is a signed balance delta in the coin's smallest unit.
// Decimals is the coin's unit-to-display exponent; scaling happens only when
// rendering.
type BalanceChange struct {
	Address  string          `json:"address"`
	CoinType string          `json:"coin_type"`
	Amount   decimal.Decimal `json:"amount"`
	Decimals int32           `json:"decimals"`
}

// Display renders the amount in display units with the coin symbol,
// e.g. "-0.5 SUI".
func (b BalanceChange) Display() string {
	return FormatAmount(b.Amount, b.Decimals) + " " + Symbol(b.CoinType)
}

// PackageCall is a Move package touched by the transaction. Module and
// Function are nil for published packages.
type PackageCall struct {
	PackageID string  `json:"package_id"`
	Module    *string `json:"module"`
	Function  *string `json:"function"`
}

// ChangeSet is the normalized form of a raw transaction record.
type ChangeSet struct {
	Digest         string          `json:"digest"`
	Sender         string          `json:"sender"`
	Status         string          `json:"status"`
	StatusError    *string         `json:"status_error,omitempty"`
	Checkpoint     *uint64         `json:"checkpoint,omitempty"`
	TimestampMs    *uint64         `json:"timestamp_ms,omitempty"`
	Objects        []ObjectChange  `json:"objects"` // record order
	BalanceChanges []BalanceChange `json:"balance_changes"`
	Packages       []PackageCall   `json:"packages"`
	GasUsed        string          `json:"gas_used"`
	EventsCount    int             `json:"events_count"`

	// Skipped counts raw entries the normalizer could not use, by reason.
	Skipped map[string]int `json:"skipped,omitempty"`
}

// ByKind returns the object changes of the given kind in record order.
// The result is never nil.
func (cs *ChangeSet) ByKind(kind ObjectKind) []ObjectChange {
	out := []ObjectChange{}
	for _, o := range cs.Objects {
		if o.Kind == kind {
			out = append(out, o)
		}
	}
	return out
}

func (cs *ChangeSet) skip(reason string) {
	if cs.Skipped == nil {
		cs.Skipped = make(map[string]int)
	}
	cs.Skipped[reason]++
}
