package analyzer

import (
	"time"

	"github.com/brojonat/suilyzer/service/analysis"
	"github.com/brojonat/suilyzer/service/diagram"
)

// Summary sources.
const (
	SourceModel    = "model"
	SourceFallback = "fallback"
)

// Result is the complete analysis of one transaction. Results are shared
// between callers through the cache and must not be modified.
type Result struct {
	Digest         string                   `json:"digest"`
	Sender         string                   `json:"sender"`
	Status         string                   `json:"status"`
	StatusError    *string                  `json:"status_error,omitempty"`
	Checkpoint     *uint64                  `json:"checkpoint,omitempty"`
	TimestampMs    *uint64                  `json:"timestamp_ms,omitempty"`
	Summary        string                   `json:"summary"`
	SummarySource  string                   `json:"summary_source"`
	Diagram        *diagram.Graph           `json:"diagram"`
	Objects        Objects                  `json:"objects"`
	Packages       []analysis.PackageCall   `json:"packages"`
	BalanceChanges []analysis.BalanceChange `json:"balance_changes"`
	GasUsed        string                   `json:"gas_used"`
	EventsCount    int                      `json:"events_count"`
	AnalyzedAt     time.Time                `json:"analyzed_at"`
}

// Objects groups object changes by kind. Every object change appears in
// exactly one group.
type Objects struct {
	Created []analysis.ObjectChange `json:"created"`
	Mutated []analysis.ObjectChange `json:"mutated"`
	Deleted []analysis.ObjectChange `json:"deleted"`
	Wrapped []analysis.ObjectChange `json:"wrapped"`
}

func newResult(cs *analysis.ChangeSet, graph *diagram.Graph, summary, source string, at time.Time) *Result {
	return &Result{
		Digest:        cs.Digest,
		Sender:        cs.Sender,
		Status:        cs.Status,
		StatusError:   cs.StatusError,
		Checkpoint:    cs.Checkpoint,
		TimestampMs:   cs.TimestampMs,
		Summary:       summary,
		SummarySource: source,
		Diagram:       graph,
		Objects: Objects{
			Created: cs.ByKind(analysis.ObjectCreated),
			Mutated: cs.ByKind(analysis.ObjectMutated),
			Deleted: cs.ByKind(analysis.ObjectDeleted),
			Wrapped: cs.ByKind(analysis.ObjectWrapped),
		},
		Packages:       cs.Packages,
		BalanceChanges: cs.BalanceChanges,
		GasUsed:        cs.GasUsed,
		EventsCount:    cs.EventsCount,
		AnalyzedAt:     at,
	}
}
