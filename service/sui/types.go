package sui

import (
	"bytes"
	"encoding/json"
	"fmt"
	"strconv"
)

// TransactionBlock is the payload returned by sui_getTransactionBlock.
// Every field is optional: fullnodes omit sections depending on the requested
// options, and older nodes encode some values differently. Consumers must
// check presence explicitly instead of assuming a field exists.
type TransactionBlock struct {
	Digest         *string              `json:"digest"`
	Transaction    *TransactionEnvelope `json:"transaction"`
	Effects        *Effects             `json:"effects"`
	ObjectChanges  []ObjectChange       `json:"objectChanges"`
	BalanceChanges []BalanceChange      `json:"balanceChanges"`
	Events         []json.RawMessage    `json:"events"`
	TimestampMs    *Quantity            `json:"timestampMs"`
	Checkpoint     *Quantity            `json:"checkpoint"`
}

// TransactionEnvelope wraps the signed transaction data.
type TransactionEnvelope struct {
	Data *TransactionData `json:"data"`
}

// TransactionData holds the sender and the programmable transaction.
type TransactionData struct {
	Sender      *string          `json:"sender"`
	Transaction *TransactionKind `json:"transaction"`
	GasData     *GasData         `json:"gasData"`
}

// GasData describes the gas payment of a transaction.
type GasData struct {
	Owner  *string   `json:"owner"`
	Price  *Quantity `json:"price"`
	Budget *Quantity `json:"budget"`
}

// TransactionKind is the kind-specific transaction body. Only programmable
// transactions carry commands; other kinds leave Transactions empty.
type TransactionKind struct {
	Kind         *string   `json:"kind"`
	Transactions []Command `json:"transactions"`
}

// Command is one step of a programmable transaction. Only MoveCall is
// modelled; other command variants decode to a Command with a nil MoveCall.
type Command struct {
	MoveCall *MoveCall `json:"MoveCall"`
}

// MoveCall is an invocation of a Move function.
type MoveCall struct {
	Package       *string  `json:"package"`
	Module        *string  `json:"module"`
	Function      *string  `json:"function"`
	TypeArguments []string `json:"type_arguments"`
}

// UnmarshalJSON tolerates commands encoded as bare strings (e.g. "MakeMoveVec")
// which some fullnode versions emit for argument-less variants.
func (c *Command) UnmarshalJSON(data []byte) error {
	data = bytes.TrimSpace(data)
	if len(data) == 0 || data[0] != '{' {
		*c = Command{}
		return nil
	}
	type alias Command
	var a alias
	if err := json.Unmarshal(data, &a); err != nil {
		return err
	}
	*c = Command(a)
	return nil
}

// Effects is the effects section of a transaction block.
type Effects struct {
	Status  *ExecutionStatus `json:"status"`
	GasUsed *GasCostSummary  `json:"gasUsed"`
}

// ExecutionStatus reports whether the transaction succeeded.
type ExecutionStatus struct {
	Status *string `json:"status"`
	Error  *string `json:"error"`
}

// GasCostSummary is denominated in MIST.
type GasCostSummary struct {
	ComputationCost         *Quantity `json:"computationCost"`
	StorageCost             *Quantity `json:"storageCost"`
	StorageRebate           *Quantity `json:"storageRebate"`
	NonRefundableStorageFee *Quantity `json:"nonRefundableStorageFee"`
}

// ObjectChange is one entry of the objectChanges section. Type carries the
// fullnode's own label: created, mutated, transferred, deleted, wrapped,
// unwrapped, unwrappedThenDeleted or published.
type ObjectChange struct {
	Type            *string   `json:"type"`
	Sender          *string   `json:"sender"`
	Owner           *Owner    `json:"owner"`
	Recipient       *Owner    `json:"recipient"`
	ObjectType      *string   `json:"objectType"`
	ObjectID        *string   `json:"objectId"`
	PackageID       *string   `json:"packageId"`
	Modules         []string  `json:"modules"`
	Version         *Quantity `json:"version"`
	PreviousVersion *Quantity `json:"previousVersion"`
	Digest          *string   `json:"digest"`
}

// BalanceChange is one entry of the balanceChanges section. Amount is a
// signed integer in the coin's smallest unit.
type BalanceChange struct {
	Owner    *Owner    `json:"owner"`
	CoinType *string   `json:"coinType"`
	Amount   *Quantity `json:"amount"`
}

// CoinMetadata is the subset of suix_getCoinMetadata we use.
type CoinMetadata struct {
	Decimals *int    `json:"decimals"`
	Symbol   *string `json:"symbol"`
	Name     *string `json:"name"`
}

// OwnerKind distinguishes the ownership variants an object can have.
type OwnerKind string

const (
	OwnerAddress   OwnerKind = "address"
	OwnerObject    OwnerKind = "object"
	OwnerShared    OwnerKind = "shared"
	OwnerImmutable OwnerKind = "immutable"
	OwnerUnknown   OwnerKind = "unknown"
)

// Owner is the decoded ownership of an object or balance. The RPC encodes it
// either as a bare string ("Immutable") or as a single-key object such as
// {"AddressOwner": "0x..."} or {"Shared": {"initial_shared_version": 3}}.
type Owner struct {
	Kind    OwnerKind
	Address string // set for address- and object-owned values
}

// UnmarshalJSON decodes every known owner variant. Unknown variants decode to
// OwnerUnknown rather than failing the whole record.
func (o *Owner) UnmarshalJSON(data []byte) error {
	data = bytes.TrimSpace(data)
	if bytes.Equal(data, []byte("null")) {
		*o = Owner{Kind: OwnerUnknown}
		return nil
	}

	if len(data) > 0 && data[0] == '"' {
		var s string
		if err := json.Unmarshal(data, &s); err != nil {
			return err
		}
		switch s {
		case "Immutable":
			*o = Owner{Kind: OwnerImmutable}
		default:
			*o = Owner{Kind: OwnerUnknown}
		}
		return nil
	}

	var raw map[string]json.RawMessage
	if err := json.Unmarshal(data, &raw); err != nil {
		return fmt.Errorf("decode owner: %w", err)
	}

	if v, ok := raw["AddressOwner"]; ok {
		var addr string
		if err := json.Unmarshal(v, &addr); err != nil {
			return fmt.Errorf("decode AddressOwner: %w", err)
		}
		*o = Owner{Kind: OwnerAddress, Address: addr}
		return nil
	}
	if v, ok := raw["ObjectOwner"]; ok {
		var id string
		if err := json.Unmarshal(v, &id); err != nil {
			return fmt.Errorf("decode ObjectOwner: %w", err)
		}
		*o = Owner{Kind: OwnerObject, Address: id}
		return nil
	}
	if v, ok := raw["ConsensusAddressOwner"]; ok {
		var inner struct {
			Owner string `json:"owner"`
		}
		if err := json.Unmarshal(v, &inner); err != nil {
			return fmt.Errorf("decode ConsensusAddressOwner: %w", err)
		}
		*o = Owner{Kind: OwnerAddress, Address: inner.Owner}
		return nil
	}
	if _, ok := raw["Shared"]; ok {
		*o = Owner{Kind: OwnerShared}
		return nil
	}
	if _, ok := raw["Immutable"]; ok {
		*o = Owner{Kind: OwnerImmutable}
		return nil
	}

	*o = Owner{Kind: OwnerUnknown}
	return nil
}

// Quantity is a numeric value the RPC encodes either as a JSON string
// ("1000") or as a JSON number. It keeps the textual form; parsing is left to
// the consumer so that out-of-range values can degrade instead of failing
// the decode of the whole record.
type Quantity string

// UnmarshalJSON accepts strings and numbers.
func (q *Quantity) UnmarshalJSON(data []byte) error {
	data = bytes.TrimSpace(data)
	if len(data) == 0 || bytes.Equal(data, []byte("null")) {
		*q = ""
		return nil
	}
	if data[0] == '"' {
		var s string
		if err := json.Unmarshal(data, &s); err != nil {
			return err
		}
		*q = Quantity(s)
		return nil
	}
	var n json.Number
	if err := json.Unmarshal(data, &n); err != nil {
		return fmt.Errorf("decode quantity: %w", err)
	}
	*q = Quantity(n.String())
	return nil
}

// Int64 parses the quantity as a signed 64-bit integer.
func (q Quantity) Int64() (int64, error) {
	return strconv.ParseInt(string(q), 10, 64)
}

// Uint64 parses the quantity as an unsigned 64-bit integer.
func (q Quantity) Uint64() (uint64, error) {
	return strconv.ParseUint(string(q), 10, 64)
}

// String returns the textual form.
func (q Quantity) String() string {
	return string(q)
}
