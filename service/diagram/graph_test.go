package diagram

import (
	"encoding/json"
	"testing"

	"github.com/brojonat/suilyzer/service/analysis"
	"github.com/brojonat/suilyzer/service/sui"
	"github.com/shopspring/decimal"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func strp(s string) *string { return &s }

func object(id string, kind analysis.ObjectKind, typeTag string, owner *string, ownerKind sui.OwnerKind) analysis.ObjectChange {
	return analysis.ObjectChange{
		ObjectID:  id,
		Kind:      kind,
		TypeTag:   typeTag,
		Type:      analysis.ParseTypeTag(typeTag),
		Owner:     owner,
		OwnerKind: ownerKind,
	}
}

func balance(addr, coin string, amount int64, decimals int32) analysis.BalanceChange {
	return analysis.BalanceChange{Address: addr, CoinType: coin, Amount: decimal.NewFromInt(amount), Decimals: decimals}
}

// transferChangeSet is the canonical scenario: 0xA sends 0.5 SUI to 0xB,
// mutating its gas coin through 0x2::coin::transfer.
func transferChangeSet() *analysis.ChangeSet {
	return &analysis.ChangeSet{
		Digest: "d",
		Sender: "0xA",
		Status: "success",
		Objects: []analysis.ObjectChange{
			object("0xgas", analysis.ObjectMutated, "0x2::coin::Coin<0x2::sui::SUI>", strp("0xA"), sui.OwnerAddress),
		},
		BalanceChanges: []analysis.BalanceChange{
			balance("0xA", "0x2::sui::SUI", -500000000, 9),
			balance("0xB", "0x2::sui::SUI", 500000000, 9),
		},
		Packages: []analysis.PackageCall{
			{PackageID: "0x2", Module: strp("coin"), Function: strp("transfer")},
		},
		GasUsed: "0.5",
	}
}

func assertReferentialIntegrity(t *testing.T, g *Graph) {
	t.Helper()
	ids := make(map[string]bool, len(g.Nodes))
	for _, n := range g.Nodes {
		assert.False(t, ids[n.ID], "duplicate node %s", n.ID)
		ids[n.ID] = true
	}
	edgeIDs := make(map[string]bool, len(g.Edges))
	for _, e := range g.Edges {
		assert.True(t, ids[e.Source], "edge %s has unknown source", e.ID)
		assert.True(t, ids[e.Target], "edge %s has unknown target", e.ID)
		assert.False(t, edgeIDs[e.ID], "duplicate edge id %s", e.ID)
		edgeIDs[e.ID] = true
	}
}

func TestBuild_TransferScenario(t *testing.T) {
	g := Build(transferChangeSet(), "0xA")

	assert.ElementsMatch(t, []Node{
		{ID: "0xA", Label: "0xA", Kind: NodeAddress},
		{ID: "0xB", Label: "0xB", Kind: NodeAddress},
		{ID: "0x2", Label: "coin::transfer", Kind: NodePackage},
		{ID: "0xgas", Label: "Modified: Coin", Kind: NodeObject},
	}, g.Nodes)

	assert.Equal(t, []Edge{
		{ID: "0xA->0xB:transfer:0", Source: "0xA", Target: "0xB", Label: "-0.5 SUI", Kind: EdgeTransfer},
		{ID: "0xA->0xgas:mutation:0", Source: "0xA", Target: "0xgas", Label: "modified", Kind: EdgeMutation},
	}, g.Edges)

	assert.Equal(t, 0, g.Unresolved)
	assertReferentialIntegrity(t, g)
}

func TestBuild_Idempotent(t *testing.T) {
	cs := transferChangeSet()
	cs.Objects = append(cs.Objects,
		object("0xnew", analysis.ObjectCreated, "0xp::nft::Ticket", strp("0xC"), sui.OwnerAddress),
		object("0xold", analysis.ObjectDeleted, "0x2::kiosk::Item", nil, sui.OwnerUnknown),
	)

	first, err := json.Marshal(Build(cs, "0xA"))
	require.NoError(t, err)
	second, err := json.Marshal(Build(cs, "0xA"))
	require.NoError(t, err)

	assert.Equal(t, string(first), string(second))
}

func TestBuild_ParallelEdgesGetOrdinals(t *testing.T) {
	cs := &analysis.ChangeSet{
		Sender: "0xA",
		Objects: []analysis.ObjectChange{
			object("0x1", analysis.ObjectCreated, "0xp::m::S", strp("0xA"), sui.OwnerAddress),
		},
		BalanceChanges: []analysis.BalanceChange{
			balance("0xA", "0x2::sui::SUI", -3000000000, 9),
			balance("0xB", "0x2::sui::SUI", 1000000000, 9),
			balance("0xB", "0x2::sui::SUI", 2000000000, 9),
		},
	}

	g := Build(cs, "0xA")

	require.Len(t, g.Edges, 3)
	assert.Equal(t, "0xA->0xB:transfer:0", g.Edges[0].ID)
	assert.Equal(t, "-1 SUI", g.Edges[0].Label)
	assert.Equal(t, "0xA->0xB:transfer:1", g.Edges[1].ID)
	assert.Equal(t, "-2 SUI", g.Edges[1].Label)
	assert.Equal(t, "0xA->0x1:creation:0", g.Edges[2].ID)
	assertReferentialIntegrity(t, g)
}

func TestBuild_TransferSourceFallsBackToFirstDebit(t *testing.T) {
	cs := &analysis.ChangeSet{
		Sender: "0xS",
		BalanceChanges: []analysis.BalanceChange{
			balance("0xS", "0x2::sui::SUI", -1000, 9),
			balance("0xP", "0xu::usdc::USDC", -2500000, 6),
			balance("0xQ", "0xu::usdc::USDC", 2500000, 6),
			balance("0xR", "0xu::usdc::USDC", 0, 6),
		},
	}

	g := Build(cs, "0xS")

	require.Len(t, g.Edges, 1)
	assert.Equal(t, Edge{ID: "0xP->0xQ:transfer:0", Source: "0xP", Target: "0xQ", Label: "-2.5 USDC", Kind: EdgeTransfer}, g.Edges[0])
	assertReferentialIntegrity(t, g)
}

func TestBuild_CreditWithoutDebitComesFromSender(t *testing.T) {
	cs := &analysis.ChangeSet{
		Sender: "0xS",
		BalanceChanges: []analysis.BalanceChange{
			balance("0xS", "0x2::sui::SUI", 5, 0),
			balance("0xT", "0x2::sui::SUI", 7, 0),
		},
	}

	g := Build(cs, "0xS")

	require.Len(t, g.Edges, 1)
	assert.Equal(t, "0xS", g.Edges[0].Source)
	assert.Equal(t, "0xT", g.Edges[0].Target)
	assert.Equal(t, "-7 SUI", g.Edges[0].Label)
}

func TestBuild_ObjectActors(t *testing.T) {
	cs := &analysis.ChangeSet{
		Sender: "0xA",
		Packages: []analysis.PackageCall{
			{PackageID: "0xpkg", Module: strp("market")},
		},
		Objects: []analysis.ObjectChange{
			object("0x1", analysis.ObjectCreated, "0xpkg::market::Listing", strp("0xB"), sui.OwnerAddress),
			object("0x2", analysis.ObjectMutated, "0xpkg::market::Market", nil, sui.OwnerShared),
			object("0x3", analysis.ObjectWrapped, "0xother::x::Y", nil, sui.OwnerUnknown),
			object("0x4", analysis.ObjectDeleted, "", nil, sui.OwnerUnknown),
			object("0x5", analysis.ObjectMutated, "0xpkg::market::Inner", strp("0x2"), sui.OwnerObject),
		},
	}

	g := Build(cs, "0xA")

	assert.Equal(t, []Node{
		{ID: "0xA", Label: "0xA", Kind: NodeAddress},
		{ID: "0xpkg", Label: "market", Kind: NodePackage},
		{ID: "0xB", Label: "0xB", Kind: NodeAddress},
		{ID: "0x1", Label: "New: Listing", Kind: NodeObject},
		{ID: "0x2", Label: "Modified: Market", Kind: NodeObject},
		{ID: "0x3", Label: "Wrapped: Y", Kind: NodeObject},
		{ID: "0x4", Label: "Deleted: 0x4", Kind: NodeObject},
		{ID: "0x5", Label: "Modified: Inner", Kind: NodeObject},
	}, g.Nodes)

	assert.Equal(t, []Edge{
		{ID: "0xB->0x1:creation:0", Source: "0xB", Target: "0x1", Label: "created", Kind: EdgeCreation},
		{ID: "0xpkg->0x2:mutation:0", Source: "0xpkg", Target: "0x2", Label: "modified", Kind: EdgeMutation},
		{ID: "0xpkg->0x5:mutation:0", Source: "0xpkg", Target: "0x5", Label: "modified", Kind: EdgeMutation},
	}, g.Edges)

	assert.Equal(t, 2, g.Unresolved)
	assertReferentialIntegrity(t, g)
}

func TestBuild_FirstLabelWins(t *testing.T) {
	cs := &analysis.ChangeSet{
		Sender: "0xA",
		Packages: []analysis.PackageCall{
			{PackageID: "0xA"},
		},
	}

	g := Build(cs, "0xA")

	require.Len(t, g.Nodes, 1)
	assert.Equal(t, NodeAddress, g.Nodes[0].Kind)
}

func TestBuild_LongLabelsAreTruncated(t *testing.T) {
	addr := "0x1234567890abcdef1234567890abcdef"
	cs := &analysis.ChangeSet{
		Sender: addr,
		Objects: []analysis.ObjectChange{
			object("0x9", analysis.ObjectCreated, "0xp::m::AVeryLongStructNameThatKeepsGoing", strp(addr), sui.OwnerAddress),
		},
	}

	g := Build(cs, addr)

	require.Len(t, g.Nodes, 2)
	assert.Equal(t, "0x1234...cdef", g.Nodes[0].Label)
	assert.Equal(t, "New: AVeryLongStructNameT", g.Nodes[1].Label)
}

func TestTruncateAddress(t *testing.T) {
	assert.Equal(t, "0xA", TruncateAddress("0xA"))
	assert.Equal(t, "0x12345678901", TruncateAddress("0x12345678901"))
	assert.Equal(t, "0x1234...9012", TruncateAddress("0x123456789012"))
}

func TestBuild_PublishedPackage(t *testing.T) {
	cs := &analysis.ChangeSet{
		Digest: "d",
		Sender: "0xA",
		Status: "success",
		Objects: []analysis.ObjectChange{
			{ObjectID: "0xnew", Kind: analysis.ObjectCreated, TypeTag: analysis.PackageTypeTag,
				Type: analysis.TypeTag{Struct: analysis.PackageTypeTag}, OwnerKind: sui.OwnerImmutable},
			object("0xcap", analysis.ObjectCreated, "0x2::package::UpgradeCap", strp("0xA"), sui.OwnerAddress),
		},
		Packages: []analysis.PackageCall{{PackageID: "0xnew"}},
	}

	g := Build(cs, "0xA")

	assert.Equal(t, []Node{
		{ID: "0xA", Label: "0xA", Kind: NodeAddress},
		{ID: "0xnew", Label: "0xnew", Kind: NodePackage},
		{ID: "0xcap", Label: "New: UpgradeCap", Kind: NodeObject},
	}, g.Nodes)
	assert.Equal(t, []Edge{
		{ID: "0xA->0xnew:creation:0", Source: "0xA", Target: "0xnew", Label: "published", Kind: EdgeCreation},
		{ID: "0xA->0xcap:creation:0", Source: "0xA", Target: "0xcap", Label: "created", Kind: EdgeCreation},
	}, g.Edges)
	assert.Zero(t, g.Unresolved)
	assertReferentialIntegrity(t, g)
}
