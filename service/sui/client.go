package sui

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"net/http"
	"net/url"
	"strings"
	"time"

	"github.com/brojonat/suilyzer/service/metrics"
	"github.com/cenkalti/backoff/v4"
	"github.com/gagliardetto/solana-go/rpc/jsonrpc"
	"golang.org/x/time/rate"
)

// ErrNotFound is returned when the fullnode has no record of a transaction.
var ErrNotFound = errors.New("transaction not found")

const (
	methodGetTransactionBlock = "sui_getTransactionBlock"
	methodGetCoinMetadata     = "suix_getCoinMetadata"
)

// ClientOptions tunes retries and rate limiting of the Client.
type ClientOptions struct {
	// MaxRetries is the number of retries after the first attempt for
	// transient failures. RPC-level errors are never retried.
	MaxRetries int
	// RetryDelay is the initial backoff delay.
	RetryDelay time.Duration
	// RateLimit caps outgoing requests per second. Zero disables limiting.
	RateLimit float64
}

// Client fetches transaction data from a Sui fullnode.
// It wraps the RPC transport with domain-specific operations.
type Client struct {
	rpc        RPCCaller
	limiter    *rate.Limiter
	maxRetries int
	retryDelay time.Duration
	logger     *slog.Logger
	metrics    *metrics.Metrics
	endpoint   string // RPC endpoint identifier for metrics (e.g., "mainnet" or the rpc host)
}

// NewClient creates a new Sui client.
// If metrics is nil, no metrics will be recorded.
func NewClient(caller RPCCaller, endpoint string, opts ClientOptions, m *metrics.Metrics, logger *slog.Logger) *Client {
	var limiter *rate.Limiter
	if opts.RateLimit > 0 {
		burst := int(opts.RateLimit)
		if burst < 1 {
			burst = 1
		}
		limiter = rate.NewLimiter(rate.Limit(opts.RateLimit), burst)
	}
	if opts.RetryDelay <= 0 {
		opts.RetryDelay = 500 * time.Millisecond
	}
	if opts.MaxRetries < 0 {
		opts.MaxRetries = 0
	}
	return &Client{
		rpc:        caller,
		limiter:    limiter,
		maxRetries: opts.MaxRetries,
		retryDelay: opts.RetryDelay,
		logger:     logger,
		metrics:    m,
		endpoint:   endpoint,
	}
}

// GetTransactionBlock fetches a transaction with input, effects, events,
// object changes and balance changes. Returns ErrNotFound if the fullnode
// does not know the digest.
func (c *Client) GetTransactionBlock(ctx context.Context, digest string) (*TransactionBlock, error) {
	params := []interface{}{
		digest,
		map[string]bool{
			"showInput":          true,
			"showRawInput":       false,
			"showEffects":        true,
			"showEvents":         true,
			"showObjectChanges":  true,
			"showBalanceChanges": true,
		},
	}

	var out *TransactionBlock
	if err := c.call(ctx, methodGetTransactionBlock, params, &out); err != nil {
		return nil, err
	}
	if out == nil {
		return nil, fmt.Errorf("%w: %s", ErrNotFound, digest)
	}

	c.logger.DebugContext(ctx, "fetched transaction block",
		"digest", digest,
		"object_changes", len(out.ObjectChanges),
		"balance_changes", len(out.BalanceChanges),
	)
	return out, nil
}

// GetCoinMetadata fetches metadata for a coin type. The fullnode answers
// null for unknown coins, which yields nil without an error.
func (c *Client) GetCoinMetadata(ctx context.Context, coinType string) (*CoinMetadata, error) {
	var out *CoinMetadata
	if err := c.call(ctx, methodGetCoinMetadata, []interface{}{coinType}, &out); err != nil {
		return nil, err
	}
	return out, nil
}

// call performs a JSON-RPC call with rate limiting and exponential backoff.
// Transport failures are retried; RPC-level errors are returned immediately.
func (c *Client) call(ctx context.Context, method string, params []interface{}, out interface{}) error {
	attempt := 0
	operation := func() error {
		attempt++
		if c.limiter != nil {
			if err := c.limiter.Wait(ctx); err != nil {
				return backoff.Permanent(err)
			}
		}

		start := time.Now()
		err := c.rpc.CallForInto(ctx, out, method, params)
		duration := time.Since(start).Seconds()

		status := "success"
		if err != nil {
			status = "error"
		}
		if c.metrics != nil {
			c.metrics.RecordRPCCall(method, status, c.endpoint, duration)
		}

		if err == nil {
			return nil
		}
		return classifyRPCError(err)
	}

	notify := func(err error, wait time.Duration) {
		reason := "timeout_or_error"
		if isRateLimited(err) {
			reason = "rate_limit"
			if c.metrics != nil {
				c.metrics.RecordRateLimitHit(c.endpoint)
			}
		}
		c.logger.WarnContext(ctx, "rpc call failed, retrying",
			"method", method,
			"attempt", attempt,
			"error", err,
			"backoff_seconds", wait.Seconds(),
		)
		if c.metrics != nil {
			c.metrics.RecordRPCRetry(method, reason)
		}
	}

	policy := backoff.NewExponentialBackOff()
	policy.InitialInterval = c.retryDelay
	policy.MaxInterval = 8 * c.retryDelay

	err := backoff.RetryNotify(operation,
		backoff.WithContext(backoff.WithMaxRetries(policy, uint64(c.maxRetries)), ctx),
		notify,
	)
	if err != nil {
		c.logger.ErrorContext(ctx, "rpc call failed",
			"method", method,
			"attempts", attempt,
			"error", err,
		)
		return fmt.Errorf("%s: %w", method, err)
	}
	return nil
}

// classifyRPCError marks errors that retrying cannot fix as permanent.
// Transport errors are redacted; only RPC error codes and messages are kept.
func classifyRPCError(err error) error {
	var rpcErr *jsonrpc.RPCError
	if errors.As(err, &rpcErr) {
		if isMissingTransaction(rpcErr.Message) {
			return backoff.Permanent(fmt.Errorf("%w: %s", ErrNotFound, rpcErr.Message))
		}
		return backoff.Permanent(fmt.Errorf("rpc error %d: %s", rpcErr.Code, rpcErr.Message))
	}

	err = redact(err)
	if errors.Is(err, context.Canceled) || errors.Is(err, context.DeadlineExceeded) {
		return backoff.Permanent(err)
	}
	var httpErr *jsonrpc.HTTPError
	if errors.As(err, &httpErr) && httpErr.Code >= 400 && httpErr.Code < 500 &&
		httpErr.Code != http.StatusTooManyRequests && httpErr.Code != http.StatusRequestTimeout {
		return backoff.Permanent(err)
	}
	return err
}

// isMissingTransaction matches the fullnode's reply for an unknown digest.
// Other "not found" errors, such as JSON-RPC "Method not found", are failures.
func isMissingTransaction(msg string) bool {
	return strings.Contains(strings.ToLower(msg), "could not find the referenced transaction")
}

func isRateLimited(err error) bool {
	var httpErr *jsonrpc.HTTPError
	return errors.As(err, &httpErr) && httpErr.Code == http.StatusTooManyRequests
}

// transportError hides the text of a transport failure. The jsonrpc client
// puts the endpoint URL, which may carry an API key, in its messages.
type transportError struct {
	msg string
	err error
}

func (e *transportError) Error() string { return e.msg }
func (e *transportError) Unwrap() error { return e.err }

func redact(err error) error {
	var httpErr *jsonrpc.HTTPError
	if errors.As(err, &httpErr) {
		return &transportError{msg: fmt.Sprintf("http status %d", httpErr.Code), err: err}
	}
	var urlErr *url.Error
	if errors.As(err, &urlErr) {
		return &transportError{msg: "transport: " + urlErr.Err.Error(), err: err}
	}
	switch {
	case errors.Is(err, context.DeadlineExceeded):
		return &transportError{msg: context.DeadlineExceeded.Error(), err: err}
	case errors.Is(err, context.Canceled):
		return &transportError{msg: context.Canceled.Error(), err: err}
	}
	return &transportError{msg: "invalid rpc response", err: err}
}
