// Package analyzer runs the analysis pipeline: cache lookup, fetch,
// normalization, graph building, summarization and caching.
package analyzer

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"strings"
	"sync"
	"time"

	"github.com/brojonat/suilyzer/service/analysis"
	"github.com/brojonat/suilyzer/service/cache"
	"github.com/brojonat/suilyzer/service/diagram"
	"github.com/brojonat/suilyzer/service/metrics"
	"github.com/brojonat/suilyzer/service/sui"
	"github.com/brojonat/suilyzer/service/summarizer"
	"golang.org/x/sync/singleflight"
)

// Fetcher supplies raw transaction records.
type Fetcher interface {
	GetTransactionBlock(ctx context.Context, digest string) (*sui.TransactionBlock, error)
	GetCoinMetadata(ctx context.Context, coinType string) (*sui.CoinMetadata, error)
}

// Journal records completed analyses.
type Journal interface {
	RecordAnalysis(ctx context.Context, r *Result) error
}

// Publisher announces completed analyses.
type Publisher interface {
	PublishAnalysis(ctx context.Context, r *Result) error
}

// Options configures an Analyzer. Zero values select defaults.
type Options struct {
	AnalysisTimeout   time.Duration
	SummarizerTimeout time.Duration
	Journal           Journal
	Publisher         Publisher
	Now               func() time.Time
}

const (
	defaultAnalysisTimeout   = 60 * time.Second
	defaultSummarizerTimeout = 20 * time.Second
)

// Analyzer orchestrates analyses. It is safe for concurrent use.
type Analyzer struct {
	fetcher    Fetcher
	summarizer summarizer.Summarizer
	cache      *cache.Cache[*Result]
	journal    Journal
	publisher  Publisher
	metrics    *metrics.Metrics
	logger     *slog.Logger
	now        func() time.Time

	analysisTimeout   time.Duration
	summarizerTimeout time.Duration

	flights singleflight.Group

	decimalsMu sync.Mutex
	decimals   map[string]int32
}

// New creates an Analyzer. The summarizer may be nil, in which case every
// result carries a fallback summary. If metrics is nil, no metrics will be
// recorded.
func New(fetcher Fetcher, s summarizer.Summarizer, c *cache.Cache[*Result], opts Options, m *metrics.Metrics, logger *slog.Logger) *Analyzer {
	a := &Analyzer{
		fetcher:           fetcher,
		summarizer:        s,
		cache:             c,
		journal:           opts.Journal,
		publisher:         opts.Publisher,
		metrics:           m,
		logger:            logger,
		now:               opts.Now,
		analysisTimeout:   opts.AnalysisTimeout,
		summarizerTimeout: opts.SummarizerTimeout,
		decimals:          make(map[string]int32),
	}
	if a.now == nil {
		a.now = time.Now
	}
	if a.analysisTimeout <= 0 {
		a.analysisTimeout = defaultAnalysisTimeout
	}
	if a.summarizerTimeout <= 0 {
		a.summarizerTimeout = defaultSummarizerTimeout
	}
	return a
}

// Analyze returns the analysis of digest, from the cache when possible.
// Concurrent misses for the same digest share one computation. The
// computation is not tied to ctx: a caller that gives up receives ctx.Err()
// while the result is still cached for later callers.
func (a *Analyzer) Analyze(ctx context.Context, digest string) (*Result, error) {
	start := time.Now()
	digest = strings.TrimSpace(digest)

	if err := sui.ValidateDigest(digest); err != nil {
		err = fmt.Errorf("%w: %v", analysis.ErrInvalidInput, err)
		a.recordOutcome(err, "computed", start)
		return nil, err
	}

	if r, ok := a.cache.Get(digest); ok {
		if a.metrics != nil {
			a.metrics.RecordCacheLookup(true)
		}
		a.logger.DebugContext(ctx, "cache hit", "digest", digest)
		a.recordOutcome(nil, "cache", start)
		return r, nil
	}
	if a.metrics != nil {
		a.metrics.RecordCacheLookup(false)
	}

	flight := a.flights.DoChan(digest, func() (interface{}, error) {
		fctx, cancel := context.WithTimeout(context.WithoutCancel(ctx), a.analysisTimeout)
		defer cancel()
		return a.compute(fctx, digest)
	})

	select {
	case <-ctx.Done():
		a.logger.InfoContext(ctx, "caller abandoned analysis, computation continues",
			"digest", digest,
			"error", ctx.Err(),
		)
		a.recordOutcome(ctx.Err(), "computed", start)
		return nil, ctx.Err()
	case res := <-flight:
		if res.Shared && a.metrics != nil {
			a.metrics.RecordAnalysisCoalesced()
		}
		a.recordOutcome(res.Err, "computed", start)
		if res.Err != nil {
			return nil, res.Err
		}
		return res.Val.(*Result), nil
	}
}

// compute runs the miss path. The cache is only written once the result is
// complete.
func (a *Analyzer) compute(ctx context.Context, digest string) (*Result, error) {
	// A flight that finished between our cache miss and joining the group
	// has already stored its result.
	if r, ok := a.cache.Get(digest); ok {
		return r, nil
	}

	raw, err := a.fetcher.GetTransactionBlock(ctx, digest)
	if err != nil {
		switch {
		case errors.Is(err, sui.ErrNotFound):
			return nil, fmt.Errorf("%w: %s", analysis.ErrNotFound, digest)
		case errors.Is(err, context.DeadlineExceeded):
			return nil, fmt.Errorf("%w: fetch transaction: %v", analysis.ErrTimeout, err)
		default:
			a.logger.ErrorContext(ctx, "failed to fetch transaction", "digest", digest, "error", err)
			return nil, fmt.Errorf("%w: fetch transaction: %v", analysis.ErrUpstream, err)
		}
	}

	cs, err := analysis.Normalize(raw)
	if err != nil {
		a.logger.WarnContext(ctx, "failed to normalize transaction", "digest", digest, "error", err)
		return nil, err
	}
	for reason, n := range cs.Skipped {
		a.logger.WarnContext(ctx, "skipped raw entries", "digest", digest, "reason", reason, "count", n)
		if a.metrics != nil {
			a.metrics.RecordNormalizeSkipped(reason, n)
		}
	}

	a.enrichDecimals(ctx, cs)

	graph := diagram.Build(cs, cs.Sender)
	if a.metrics != nil {
		a.metrics.RecordGraph(len(graph.Nodes), len(graph.Edges), graph.Unresolved)
	}
	if graph.Unresolved > 0 {
		a.logger.DebugContext(ctx, "objects without a resolvable actor",
			"digest", digest,
			"unresolved", graph.Unresolved,
		)
	}

	summary, source := a.summarize(ctx, cs)

	result := newResult(cs, graph, summary, source, a.now().UTC())
	a.cache.Set(digest, result, 0)

	a.logger.InfoContext(ctx, "analysis complete",
		"digest", digest,
		"nodes", len(graph.Nodes),
		"edges", len(graph.Edges),
		"summary_source", source,
	)

	a.announce(ctx, result)
	return result, nil
}

// summarize falls back to the templated summary on any summarizer failure.
func (a *Analyzer) summarize(ctx context.Context, cs *analysis.ChangeSet) (string, string) {
	if a.summarizer == nil {
		return summarizer.FallbackSummary(cs), SourceFallback
	}

	sctx, cancel := context.WithTimeout(ctx, a.summarizerTimeout)
	defer cancel()

	start := time.Now()
	text, err := a.summarizer.Summarize(sctx, cs)
	duration := time.Since(start).Seconds()

	status := "success"
	switch {
	case err == nil && strings.TrimSpace(text) == "":
		err = fmt.Errorf("%w: empty summary", analysis.ErrUpstream)
		status = "error"
	case errors.Is(err, summarizer.ErrNotConfigured):
		status = "disabled"
	case analysis.KindOf(err) == analysis.Timeout:
		status = "timeout"
	case err != nil:
		status = "error"
	}
	if a.metrics != nil {
		a.metrics.RecordSummarizerCall(status, duration)
	}

	if err != nil {
		if status != "disabled" {
			a.logger.WarnContext(ctx, "summarizer failed, using fallback summary",
				"digest", cs.Digest,
				"error", err,
			)
		}
		return summarizer.FallbackSummary(cs), SourceFallback
	}
	return text, SourceModel
}

// enrichDecimals resolves decimals of coins missing from the known table.
// Lookups are memoized; failures leave the decimals at zero.
func (a *Analyzer) enrichDecimals(ctx context.Context, cs *analysis.ChangeSet) {
	for i := range cs.BalanceChanges {
		bc := &cs.BalanceChanges[i]
		if _, ok := analysis.KnownDecimals(bc.CoinType); ok {
			continue
		}
		d, ok := a.coinDecimals(ctx, bc.CoinType)
		if ok {
			bc.Decimals = d
		}
	}
}

func (a *Analyzer) coinDecimals(ctx context.Context, coinType string) (int32, bool) {
	a.decimalsMu.Lock()
	d, ok := a.decimals[coinType]
	a.decimalsMu.Unlock()
	if ok {
		return d, true
	}

	md, err := a.fetcher.GetCoinMetadata(ctx, coinType)
	if err != nil {
		a.logger.WarnContext(ctx, "failed to fetch coin metadata", "coin_type", coinType, "error", err)
		return 0, false
	}
	if md != nil && md.Decimals != nil {
		d = int32(*md.Decimals)
	}

	a.decimalsMu.Lock()
	a.decimals[coinType] = d
	a.decimalsMu.Unlock()
	return d, true
}

// announce journals and publishes a result. Failures are logged only.
func (a *Analyzer) announce(ctx context.Context, r *Result) {
	if a.journal != nil {
		if err := a.journal.RecordAnalysis(ctx, r); err != nil {
			a.logger.WarnContext(ctx, "failed to journal analysis", "digest", r.Digest, "error", err)
		}
	}
	if a.publisher != nil {
		if err := a.publisher.PublishAnalysis(ctx, r); err != nil {
			a.logger.WarnContext(ctx, "failed to publish analysis", "digest", r.Digest, "error", err)
		}
	}
}

func (a *Analyzer) recordOutcome(err error, source string, start time.Time) {
	if a.metrics == nil {
		return
	}
	outcome := "success"
	if err != nil {
		outcome = string(analysis.KindOf(err))
	}
	a.metrics.RecordAnalysis(outcome, source, time.Since(start).Seconds())
}

// Invalidate drops the cached analysis of digest. Unknown digests are a no-op.
func (a *Analyzer) Invalidate(digest string) bool {
	removed := a.cache.Delete(strings.TrimSpace(digest))
	if removed {
		a.logger.Info("invalidated cached analysis", "digest", digest)
	}
	return removed
}

// ClearCache drops every cached analysis and returns how many were held.
func (a *Analyzer) ClearCache() int {
	n := a.cache.Clear()
	if a.metrics != nil {
		a.metrics.SetCacheEntries(0)
	}
	a.logger.Info("cleared analysis cache", "entries", n)
	return n
}

// CacheStats reports the live cache size and configuration.
func (a *Analyzer) CacheStats() cache.Stats {
	stats := a.cache.Stats()
	if a.metrics != nil {
		a.metrics.SetCacheEntries(stats.Count)
	}
	return stats
}
