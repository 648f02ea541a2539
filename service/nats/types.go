package nats

import (
	"time"

	"github.com/brojonat/suilyzer/service/analyzer"
)

// AnalysisEvent represents a completed analysis published to NATS.
// This is published to the subject "analyses.{digest}" in JetStream.
type AnalysisEvent struct {
	// Transaction identifiers
	Digest     string  `json:"digest"`
	Sender     string  `json:"sender"`
	Status     string  `json:"status"`
	Checkpoint *uint64 `json:"checkpoint,omitempty"`

	// Analysis outcome
	Summary       string `json:"summary"`
	SummarySource string `json:"summary_source"`
	GasUsed       string `json:"gas_used"`

	// Shape of the change set
	NodeCount      int      `json:"node_count"`
	EdgeCount      int      `json:"edge_count"`
	Created        int      `json:"created"`
	Mutated        int      `json:"mutated"`
	Deleted        int      `json:"deleted"`
	Wrapped        int      `json:"wrapped"`
	BalanceChanges int      `json:"balance_changes"`
	Packages       []string `json:"packages,omitempty"`

	// Timing information
	AnalyzedAt  time.Time `json:"analyzed_at"`
	PublishedAt time.Time `json:"published_at"`
}

// FromResult converts an analysis result to an AnalysisEvent for publishing.
func FromResult(r *analyzer.Result) *AnalysisEvent {
	event := &AnalysisEvent{
		Digest:         r.Digest,
		Sender:         r.Sender,
		Status:         r.Status,
		Checkpoint:     r.Checkpoint,
		Summary:        r.Summary,
		SummarySource:  r.SummarySource,
		GasUsed:        r.GasUsed,
		Created:        len(r.Objects.Created),
		Mutated:        len(r.Objects.Mutated),
		Deleted:        len(r.Objects.Deleted),
		Wrapped:        len(r.Objects.Wrapped),
		BalanceChanges: len(r.BalanceChanges),
		AnalyzedAt:     r.AnalyzedAt,
		PublishedAt:    time.Now().UTC(),
	}

	if r.Diagram != nil {
		event.NodeCount = len(r.Diagram.Nodes)
		event.EdgeCount = len(r.Diagram.Edges)
	}

	seen := make(map[string]bool)
	for _, p := range r.Packages {
		if seen[p.PackageID] {
			continue
		}
		seen[p.PackageID] = true
		event.Packages = append(event.Packages, p.PackageID)
	}

	return event
}

// Subject returns the JetStream subject an event for digest is published to.
func Subject(digest string) string {
	return SubjectPrefix + digest
}
