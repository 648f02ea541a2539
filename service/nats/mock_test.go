package nats

import (
	"context"
	"encoding/json"
	"errors"
	"io"
	"log/slog"
	"testing"
	"time"

	"github.com/brojonat/suilyzer/service/analyzer"
	"github.com/brojonat/suilyzer/service/cache"
	"github.com/brojonat/suilyzer/service/sui"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

const recordJSON = `{
	"digest": "8RBsoeyoRwajj86MZfZE6gMDJQVYGYcdSfx1zxqxNHbr",
	"transaction": {"data": {
		"sender": "0xA",
		"transaction": {"kind": "ProgrammableTransaction", "transactions": [
			{"MoveCall": {"package": "0x2", "module": "coin", "function": "transfer"}}
		]}
	}},
	"effects": {
		"status": {"status": "success"},
		"gasUsed": {"computationCost": "100000000", "storageCost": "450000000", "storageRebate": "50000000"}
	},
	"objectChanges": [
		{"type": "mutated", "sender": "0xA", "owner": {"AddressOwner": "0xA"}, "objectType": "0x2::coin::Coin<0x2::sui::SUI>", "objectId": "0xgas", "version": "7"}
	],
	"balanceChanges": [
		{"owner": {"AddressOwner": "0xA"}, "coinType": "0x2::sui::SUI", "amount": "-500000000"},
		{"owner": {"AddressOwner": "0xB"}, "coinType": "0x2::sui::SUI", "amount": "500000000"}
	]
}`

type staticFetcher struct{}

func (staticFetcher) GetTransactionBlock(ctx context.Context, digest string) (*sui.TransactionBlock, error) {
	var tx sui.TransactionBlock
	if err := json.Unmarshal([]byte(recordJSON), &tx); err != nil {
		return nil, err
	}
	return &tx, nil
}

func (staticFetcher) GetCoinMetadata(ctx context.Context, coinType string) (*sui.CoinMetadata, error) {
	return nil, nil
}

func newAnalyzerWithPublisher(p analyzer.Publisher) *analyzer.Analyzer {
	logger := slog.New(slog.NewTextHandler(io.Discard, nil))
	c := cache.New[*analyzer.Result](cache.Options{DefaultTTL: time.Hour})
	return analyzer.New(staticFetcher{}, nil, c, analyzer.Options{Publisher: p}, nil, logger)
}

func TestAnalyzer_PublishesCompletedAnalysis(t *testing.T) {
	pub := NewMockPublisher()
	a := newAnalyzerWithPublisher(pub)

	_, err := a.Analyze(context.Background(), "8RBsoeyoRwajj86MZfZE6gMDJQVYGYcdSfx1zxqxNHbr")
	require.NoError(t, err)

	events := pub.GetPublishedEvents()
	require.Len(t, events, 1)
	ev := events[0]
	assert.Equal(t, "8RBsoeyoRwajj86MZfZE6gMDJQVYGYcdSfx1zxqxNHbr", ev.Digest)
	assert.Equal(t, "0xA", ev.Sender)
	assert.Equal(t, "success", ev.Status)
	assert.Equal(t, "0.5", ev.GasUsed)
	assert.Equal(t, analyzer.SourceFallback, ev.SummarySource)
	assert.Equal(t, 1, ev.Mutated)
	assert.Equal(t, 2, ev.BalanceChanges)
	assert.Equal(t, []string{"0x2"}, ev.Packages)

	// Cache hits are not announced again.
	_, err = a.Analyze(context.Background(), "8RBsoeyoRwajj86MZfZE6gMDJQVYGYcdSfx1zxqxNHbr")
	require.NoError(t, err)
	assert.Equal(t, 1, pub.GetPublishedEventCount())
}

func TestAnalyzer_PublishFailureIsNotFatal(t *testing.T) {
	pub := NewMockPublisher()
	pub.SetPublishError(errors.New("nats unavailable"))
	a := newAnalyzerWithPublisher(pub)

	result, err := a.Analyze(context.Background(), "8RBsoeyoRwajj86MZfZE6gMDJQVYGYcdSfx1zxqxNHbr")
	require.NoError(t, err)
	assert.Equal(t, "0xA", result.Sender)
	assert.Equal(t, 0, pub.GetPublishedEventCount())
}
