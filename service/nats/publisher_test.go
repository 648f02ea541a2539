package nats

import (
	"context"
	"encoding/json"
	"errors"
	"testing"
	"time"

	"github.com/brojonat/suilyzer/service/analysis"
	"github.com/brojonat/suilyzer/service/analyzer"
	"github.com/brojonat/suilyzer/service/diagram"
	"github.com/nats-io/nats.go/jetstream"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func strPtr(s string) *string { return &s }

func sampleResult() *analyzer.Result {
	checkpoint := uint64(1234)
	return &analyzer.Result{
		Digest:        "8RBsoeyoRwajj86MZfZE6gMDJQVYGYcdSfx1zxqxNHbr",
		Sender:        "0xA",
		Status:        "success",
		Checkpoint:    &checkpoint,
		Summary:       "0xA sent 0.5 SUI to 0xB.",
		SummarySource: analyzer.SourceModel,
		Diagram: &diagram.Graph{
			Nodes: []diagram.Node{{ID: "0xA"}, {ID: "0xB"}, {ID: "0xgas"}},
			Edges: []diagram.Edge{{ID: "0xA->0xB:transfer:0"}, {ID: "0xA->0xgas:mutation:1"}},
		},
		Objects: analyzer.Objects{
			Created: []analysis.ObjectChange{{ObjectID: "0x1"}},
			Mutated: []analysis.ObjectChange{{ObjectID: "0xgas"}, {ObjectID: "0x2"}},
		},
		Packages: []analysis.PackageCall{
			{PackageID: "0x2", Module: strPtr("coin"), Function: strPtr("transfer")},
			{PackageID: "0x2", Module: strPtr("pay"), Function: strPtr("split")},
			{PackageID: "0xdee9", Module: strPtr("clob"), Function: strPtr("swap")},
		},
		BalanceChanges: []analysis.BalanceChange{{Address: "0xA"}, {Address: "0xB"}},
		GasUsed:        "0.5",
		AnalyzedAt:     time.Date(2025, 1, 2, 3, 4, 5, 0, time.UTC),
	}
}

func TestFromResult(t *testing.T) {
	event := FromResult(sampleResult())

	assert.Equal(t, "8RBsoeyoRwajj86MZfZE6gMDJQVYGYcdSfx1zxqxNHbr", event.Digest)
	assert.Equal(t, "0xA", event.Sender)
	assert.Equal(t, "success", event.Status)
	require.NotNil(t, event.Checkpoint)
	assert.Equal(t, uint64(1234), *event.Checkpoint)
	assert.Equal(t, analyzer.SourceModel, event.SummarySource)
	assert.Equal(t, 3, event.NodeCount)
	assert.Equal(t, 2, event.EdgeCount)
	assert.Equal(t, 1, event.Created)
	assert.Equal(t, 2, event.Mutated)
	assert.Equal(t, 0, event.Deleted)
	assert.Equal(t, 0, event.Wrapped)
	assert.Equal(t, 2, event.BalanceChanges)
	assert.Equal(t, []string{"0x2", "0xdee9"}, event.Packages)
	assert.False(t, event.PublishedAt.IsZero())
}

func TestFromResult_NoDiagram(t *testing.T) {
	r := sampleResult()
	r.Diagram = nil
	r.Packages = nil

	event := FromResult(r)
	assert.Equal(t, 0, event.NodeCount)
	assert.Equal(t, 0, event.EdgeCount)
	assert.Empty(t, event.Packages)

	data, err := json.Marshal(event)
	require.NoError(t, err)
	assert.NotContains(t, string(data), `"packages"`)
}

func TestSubject(t *testing.T) {
	assert.Equal(t, "analyses.abc", Subject("abc"))
}

func TestStreamConfig(t *testing.T) {
	cfg := StreamConfig()
	assert.Equal(t, StreamName, cfg.Name)
	assert.Equal(t, []string{"analyses.*"}, cfg.Subjects)
	assert.Equal(t, jetstream.LimitsPolicy, cfg.Retention)
	assert.Equal(t, StreamRetention, cfg.MaxAge)
}

func TestMockPublisher(t *testing.T) {
	ctx := context.Background()
	var _ Publisher = NewMockPublisher()
	var _ analyzer.Publisher = NewMockPublisher()

	m := NewMockPublisher()
	require.NoError(t, m.PublishAnalysis(ctx, sampleResult()))
	assert.Equal(t, 1, m.GetPublishedEventCount())
	assert.Equal(t, "0xA", m.GetPublishedEvents()[0].Sender)

	m.SetPublishError(errors.New("nats down"))
	assert.EqualError(t, m.PublishAnalysis(ctx, sampleResult()), "nats down")
	assert.Equal(t, 1, m.GetPublishedEventCount())

	require.NoError(t, m.Close())
	assert.True(t, m.IsClosed())

	m.Reset()
	assert.Equal(t, 0, m.GetPublishedEventCount())
	assert.False(t, m.IsClosed())
	require.NoError(t, m.PublishAnalysis(ctx, sampleResult()))
}
