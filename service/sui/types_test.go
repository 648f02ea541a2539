package sui

import (
	"encoding/json"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestOwner_UnmarshalJSON(t *testing.T) {
	tests := []struct {
		name string
		raw  string
		want Owner
	}{
		{"address owner", `{"AddressOwner":"0xa"}`, Owner{Kind: OwnerAddress, Address: "0xa"}},
		{"object owner", `{"ObjectOwner":"0xb"}`, Owner{Kind: OwnerObject, Address: "0xb"}},
		{"consensus owner", `{"ConsensusAddressOwner":{"owner":"0xc","start_version":7}}`, Owner{Kind: OwnerAddress, Address: "0xc"}},
		{"shared", `{"Shared":{"initial_shared_version":3}}`, Owner{Kind: OwnerShared}},
		{"immutable string", `"Immutable"`, Owner{Kind: OwnerImmutable}},
		{"null", `null`, Owner{Kind: OwnerUnknown}},
		{"unknown variant", `{"Future":{}}`, Owner{Kind: OwnerUnknown}},
		{"unknown string", `"Something"`, Owner{Kind: OwnerUnknown}},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			var o Owner
			require.NoError(t, json.Unmarshal([]byte(tt.raw), &o))
			assert.Equal(t, tt.want, o)
		})
	}
}

func TestQuantity_UnmarshalJSON(t *testing.T) {
	var v struct {
		A Quantity  `json:"a"`
		B Quantity  `json:"b"`
		C *Quantity `json:"c"`
	}
	require.NoError(t, json.Unmarshal([]byte(`{"a":"-500000000","b":1000,"c":null}`), &v))

	a, err := v.A.Int64()
	require.NoError(t, err)
	assert.Equal(t, int64(-500000000), a)

	b, err := v.B.Uint64()
	require.NoError(t, err)
	assert.Equal(t, uint64(1000), b)

	assert.Nil(t, v.C)
}

func TestTransactionBlock_DecodesFullnodePayload(t *testing.T) {
	raw := `{
		"digest": "8RBsoeyoRwajj86MZfZE6gMDJQVYGYcdSfx1zxqxNHbr",
		"transaction": {"data": {
			"sender": "0xa",
			"transaction": {"kind": "ProgrammableTransaction", "transactions": [
				{"SplitCoins": ["GasCoin", [{"Input": 0}]]},
				"MakeMoveVec",
				{"MoveCall": {"package": "0x2", "module": "coin", "function": "transfer", "type_arguments": ["0x2::sui::SUI"]}}
			]},
			"gasData": {"owner": "0xa", "price": "750", "budget": "5000000"}
		}},
		"effects": {
			"status": {"status": "success"},
			"gasUsed": {"computationCost": "1000000", "storageCost": "2000000", "storageRebate": "500000"}
		},
		"objectChanges": [
			{"type": "mutated", "sender": "0xa", "owner": {"AddressOwner": "0xa"}, "objectType": "0x2::coin::Coin<0x2::sui::SUI>", "objectId": "0xgas", "version": "12", "previousVersion": "11"},
			{"type": "published", "packageId": "0xpkg", "version": "1", "modules": ["m"]}
		],
		"balanceChanges": [
			{"owner": {"AddressOwner": "0xa"}, "coinType": "0x2::sui::SUI", "amount": "-500000000"}
		],
		"events": [{"id": {}}],
		"timestampMs": "1700000000000",
		"checkpoint": "123"
	}`

	var tx TransactionBlock
	require.NoError(t, json.Unmarshal([]byte(raw), &tx))

	require.NotNil(t, tx.Transaction)
	require.NotNil(t, tx.Transaction.Data)
	cmds := tx.Transaction.Data.Transaction.Transactions
	require.Len(t, cmds, 3)
	assert.Nil(t, cmds[0].MoveCall)
	assert.Nil(t, cmds[1].MoveCall)
	require.NotNil(t, cmds[2].MoveCall)
	assert.Equal(t, "coin", *cmds[2].MoveCall.Module)

	require.Len(t, tx.ObjectChanges, 2)
	assert.Equal(t, OwnerAddress, tx.ObjectChanges[0].Owner.Kind)
	assert.Equal(t, "0xpkg", *tx.ObjectChanges[1].PackageID)
	assert.Nil(t, tx.ObjectChanges[1].Owner)

	require.Len(t, tx.BalanceChanges, 1)
	assert.Equal(t, Quantity("-500000000"), *tx.BalanceChanges[0].Amount)
	assert.Len(t, tx.Events, 1)
	assert.Equal(t, Quantity("123"), *tx.Checkpoint)
}
