// Package summarizer produces plain-English explanations of change-sets.
package summarizer

import (
	"context"
	"errors"

	"github.com/brojonat/suilyzer/service/analysis"
)

// Summarizer explains a change-set in prose.
type Summarizer interface {
	Summarize(ctx context.Context, cs *analysis.ChangeSet) (string, error)
}

// ErrNotConfigured is returned when no language model is configured.
var ErrNotConfigured = errors.New("summarizer not configured")
