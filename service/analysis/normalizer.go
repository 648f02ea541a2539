package analysis

import (
	"fmt"

	"github.com/brojonat/suilyzer/service/sui"
	"github.com/shopspring/decimal"
)

// GasDecimals is the MIST-to-SUI exponent used to render gas.
const GasDecimals = 9

// Skip reasons reported in ChangeSet.Skipped.
const (
	SkipUnknownObjectLabel = "unknown_object_label"
	SkipMissingObjectID    = "missing_object_id"
	SkipMissingPackageID   = "missing_package_id"
	SkipBadAmount          = "unparseable_amount"
	SkipNonAddressBalance  = "non_address_balance_owner"
)

const defaultCoinType = "0x2::sui::SUI"

// knownDecimals covers coins whose metadata never needs a lookup.
var knownDecimals = map[string]int32{
	"0x2::sui::SUI": 9,
	"0x0000000000000000000000000000000000000000000000000000000000000002::sui::SUI": 9,
}

// KnownDecimals returns the decimals of a well-known coin type.
func KnownDecimals(coinType string) (int32, bool) {
	d, ok := knownDecimals[coinType]
	return d, ok
}

// objectLabels maps the fullnode's objectChanges labels to object kinds.
var objectLabels = map[string]ObjectKind{
	"created":              ObjectCreated,
	"mutated":              ObjectMutated,
	"transferred":          ObjectMutated,
	"deleted":              ObjectDeleted,
	"wrapped":              ObjectWrapped,
	"unwrapped":            ObjectCreated,
	"unwrappedThenDeleted": ObjectDeleted,
}

const publishedLabel = "published"

// PackageTypeTag is the type tag of the created object a publish reports.
const PackageTypeTag = "package"

// Normalize extracts the change-set from a raw transaction record.
// Missing optional data degrades to empty values. A record without a digest,
// sender or execution status fails with ErrMalformedRecord.
func Normalize(raw *sui.TransactionBlock) (*ChangeSet, error) {
	if raw == nil {
		return nil, fmt.Errorf("%w: empty record", ErrMalformedRecord)
	}

	cs := &ChangeSet{
		Objects:        []ObjectChange{},
		BalanceChanges: []BalanceChange{},
		Packages:       []PackageCall{},
		GasUsed:        "0",
		EventsCount:    len(raw.Events),
	}

	if raw.Digest == nil || *raw.Digest == "" {
		return nil, fmt.Errorf("%w: missing digest", ErrMalformedRecord)
	}
	cs.Digest = *raw.Digest

	var data *sui.TransactionData
	if raw.Transaction != nil {
		data = raw.Transaction.Data
	}
	if data == nil || data.Sender == nil || *data.Sender == "" {
		return nil, fmt.Errorf("%w: missing transaction.data.sender", ErrMalformedRecord)
	}
	cs.Sender = *data.Sender

	if raw.Effects == nil || raw.Effects.Status == nil || raw.Effects.Status.Status == nil {
		return nil, fmt.Errorf("%w: missing effects.status.status", ErrMalformedRecord)
	}
	cs.Status = *raw.Effects.Status.Status
	cs.StatusError = raw.Effects.Status.Error

	cs.Checkpoint = uintPtr(raw.Checkpoint)
	cs.TimestampMs = uintPtr(raw.TimestampMs)
	cs.GasUsed = FormatGas(raw.Effects.GasUsed)

	if data.Transaction != nil {
		for _, cmd := range data.Transaction.Transactions {
			mc := cmd.MoveCall
			if mc == nil || mc.Package == nil || *mc.Package == "" {
				continue
			}
			cs.addPackage(PackageCall{PackageID: *mc.Package, Module: mc.Module, Function: mc.Function})
		}
	}

	for _, oc := range raw.ObjectChanges {
		normalizeObjectChange(cs, oc)
	}

	for _, bc := range raw.BalanceChanges {
		normalizeBalanceChange(cs, bc)
	}

	return cs, nil
}

func normalizeObjectChange(cs *ChangeSet, oc sui.ObjectChange) {
	if oc.Type == nil {
		cs.skip(SkipUnknownObjectLabel)
		return
	}

	if *oc.Type == publishedLabel {
		if oc.PackageID == nil || *oc.PackageID == "" {
			cs.skip(SkipMissingPackageID)
			return
		}
		cs.addPackage(PackageCall{PackageID: *oc.PackageID})
		// A published package is also a new immutable object.
		cs.Objects = append(cs.Objects, ObjectChange{
			ObjectID:  *oc.PackageID,
			Kind:      ObjectCreated,
			TypeTag:   PackageTypeTag,
			Type:      TypeTag{Struct: PackageTypeTag},
			OwnerKind: sui.OwnerImmutable,
			Version:   uintPtr(oc.Version),
			Digest:    oc.Digest,
		})
		return
	}

	kind, ok := objectLabels[*oc.Type]
	if !ok {
		cs.skip(SkipUnknownObjectLabel)
		return
	}
	if oc.ObjectID == nil || *oc.ObjectID == "" {
		cs.skip(SkipMissingObjectID)
		return
	}

	change := ObjectChange{
		ObjectID:  *oc.ObjectID,
		Kind:      kind,
		OwnerKind: sui.OwnerUnknown,
		Version:   uintPtr(oc.Version),
		Digest:    oc.Digest,
	}
	if oc.ObjectType != nil {
		change.TypeTag = *oc.ObjectType
		change.Type = ParseTypeTag(*oc.ObjectType)
	}

	owner := oc.Owner
	if owner == nil {
		owner = oc.Recipient
	}
	if owner != nil {
		change.OwnerKind = owner.Kind
		if owner.Address != "" {
			addr := owner.Address
			change.Owner = &addr
		}
	}

	cs.Objects = append(cs.Objects, change)
}

func normalizeBalanceChange(cs *ChangeSet, bc sui.BalanceChange) {
	if bc.Owner == nil || bc.Owner.Kind != sui.OwnerAddress || bc.Owner.Address == "" {
		cs.skip(SkipNonAddressBalance)
		return
	}
	if bc.Amount == nil {
		cs.skip(SkipBadAmount)
		return
	}
	amount, err := decimal.NewFromString(bc.Amount.String())
	if err != nil || !amount.IsInteger() {
		cs.skip(SkipBadAmount)
		return
	}

	coinType := defaultCoinType
	if bc.CoinType != nil && *bc.CoinType != "" {
		coinType = *bc.CoinType
	}
	decimals, _ := KnownDecimals(coinType)

	cs.BalanceChanges = append(cs.BalanceChanges, BalanceChange{
		Address:  bc.Owner.Address,
		CoinType: coinType,
		Amount:   amount,
		Decimals: decimals,
	})
}

func (cs *ChangeSet) addPackage(p PackageCall) {
	for _, existing := range cs.Packages {
		if existing.PackageID == p.PackageID &&
			strEqual(existing.Module, p.Module) &&
			strEqual(existing.Function, p.Function) {
			return
		}
	}
	cs.Packages = append(cs.Packages, p)
}

// FormatGas renders computation + storage - rebate in SUI. Missing or
// unparseable components count as zero; missing gas data yields "0".
func FormatGas(g *sui.GasCostSummary) string {
	if g == nil {
		return "0"
	}
	total := quantity(g.ComputationCost).
		Add(quantity(g.StorageCost)).
		Sub(quantity(g.StorageRebate))
	return FormatAmount(total, GasDecimals)
}

// FormatAmount scales an amount in smallest units to display units with
// trailing zeros trimmed: 500000000 with 9 decimals is "0.5".
func FormatAmount(amount decimal.Decimal, decimals int32) string {
	return amount.Shift(-decimals).String()
}

func quantity(q *sui.Quantity) decimal.Decimal {
	if q == nil {
		return decimal.Zero
	}
	d, err := decimal.NewFromString(q.String())
	if err != nil {
		return decimal.Zero
	}
	return d
}

func uintPtr(q *sui.Quantity) *uint64 {
	if q == nil {
		return nil
	}
	v, err := q.Uint64()
	if err != nil {
		return nil
	}
	return &v
}

func strEqual(a, b *string) bool {
	if a == nil || b == nil {
		return a == b
	}
	return *a == *b
}
