package sui

import (
	"context"
	"net/http"
	"time"

	"github.com/gagliardetto/solana-go/rpc/jsonrpc"
)

// RPCCaller is the JSON-RPC transport the Client needs.
// This allows us to mock the RPC layer in tests without hitting real fullnodes.
type RPCCaller interface {
	CallForInto(ctx context.Context, out interface{}, method string, params []interface{}) error
}

// NewRPCCaller creates a JSON-RPC 2.0 transport for a Sui fullnode.
// The solana-go jsonrpc client is chain agnostic; we only use its transport.
// For premium endpoints that require API keys, include the key in the URL.
func NewRPCCaller(rpcURL string, timeout time.Duration) RPCCaller {
	return jsonrpc.NewClientWithOpts(rpcURL, &jsonrpc.RPCClientOpts{
		HTTPClient: &http.Client{Timeout: timeout},
	})
}
