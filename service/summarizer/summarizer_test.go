package summarizer

import (
	"context"
	"encoding/json"
	"errors"
	"io"
	"log/slog"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"
	"time"

	"github.com/brojonat/suilyzer/service/analysis"
	"github.com/brojonat/suilyzer/service/diagram"
	"github.com/shopspring/decimal"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func strp(s string) *string { return &s }

func testLogger() *slog.Logger {
	return slog.New(slog.NewTextHandler(io.Discard, nil))
}

func transferChangeSet() *analysis.ChangeSet {
	return &analysis.ChangeSet{
		Digest: "8RBsoeyoRwajj86MZfZE6gMDJQVYGYcdSfx1zxqxNHbr",
		Sender: "0xA",
		Status: "success",
		Objects: []analysis.ObjectChange{
			{ObjectID: "0xgas", Kind: analysis.ObjectMutated, TypeTag: "0x2::coin::Coin<0x2::sui::SUI>"},
		},
		BalanceChanges: []analysis.BalanceChange{
			{Address: "0xA", CoinType: "0x2::sui::SUI", Amount: decimal.NewFromInt(-500000000), Decimals: 9},
			{Address: "0xB", CoinType: "0x2::sui::SUI", Amount: decimal.NewFromInt(500000000), Decimals: 9},
		},
		Packages: []analysis.PackageCall{
			{PackageID: "0x2", Module: strp("coin"), Function: strp("transfer")},
		},
		GasUsed: "0.5",
	}
}

// generateRequest is the subset of the generateContent body the tests inspect.
type generateRequest struct {
	Contents []struct {
		Parts []struct {
			Text string `json:"text"`
		} `json:"parts"`
	} `json:"contents"`
}

func newTestGemini(t *testing.T, key, baseURL string, timeout time.Duration) *GeminiClient {
	t.Helper()
	g, err := NewGeminiClient(context.Background(), key, "m", baseURL, timeout, testLogger())
	require.NoError(t, err)
	return g
}

func TestGeminiClient_Summarize(t *testing.T) {
	var gotPath, gotQueryKey, gotHeaderKey string
	var gotBody generateRequest
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		gotPath = r.URL.Path
		gotQueryKey = r.URL.Query().Get("key")
		gotHeaderKey = r.Header.Get("x-goog-api-key")
		assert.NoError(t, json.NewDecoder(r.Body).Decode(&gotBody))
		w.Header().Set("Content-Type", "application/json")
		_, _ = w.Write([]byte(`{"candidates":[{"content":{"role":"model","parts":[{"text":"  0xA sent 0.5 SUI to 0xB.\n"}]}}]}`))
	}))
	defer srv.Close()

	g, err := NewGeminiClient(context.Background(), "secret", "gemini-1.5-flash", srv.URL, time.Second, testLogger())
	require.NoError(t, err)
	text, err := g.Summarize(context.Background(), transferChangeSet())
	require.NoError(t, err)

	assert.Equal(t, "0xA sent 0.5 SUI to 0xB.", text)
	assert.Equal(t, "/v1beta/models/gemini-1.5-flash:generateContent", gotPath)
	assert.Equal(t, "secret", gotHeaderKey)
	assert.Empty(t, gotQueryKey, "the key must not travel in the URL")
	require.Len(t, gotBody.Contents, 1)
	require.Len(t, gotBody.Contents[0].Parts, 1)
	assert.Contains(t, gotBody.Contents[0].Parts[0].Text, `"amount":"0.5 SUI"`)
	assert.Contains(t, gotBody.Contents[0].Parts[0].Text, `"gas_used_sui":"0.5"`)
}

func TestGeminiClient_StripsCodeFences(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.Header().Set("Content-Type", "application/json")
		_, _ = w.Write([]byte("{\"candidates\":[{\"content\":{\"parts\":[{\"text\":\"```text\\nA transfer.\\n```\"}]}}]}"))
	}))
	defer srv.Close()

	g := newTestGemini(t, "k", srv.URL, time.Second)
	text, err := g.Summarize(context.Background(), transferChangeSet())
	require.NoError(t, err)
	assert.Equal(t, "A transfer.", text)
}

func TestGeminiClient_Errors(t *testing.T) {
	tests := []struct {
		name    string
		status  int
		body    string
		wantErr error
	}{
		{"server error", http.StatusInternalServerError, `{"error":{"code":500,"message":"boom"}}`, analysis.ErrUpstream},
		{"rate limited", http.StatusTooManyRequests, `{}`, analysis.ErrUpstream},
		{"no candidates", http.StatusOK, `{"candidates":[]}`, analysis.ErrUpstream},
		{"empty text", http.StatusOK, `{"candidates":[{"content":{"parts":[{"text":"   "}]}}]}`, analysis.ErrUpstream},
		{"garbage", http.StatusOK, `not json`, analysis.ErrUpstream},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
				w.WriteHeader(tt.status)
				_, _ = w.Write([]byte(tt.body))
			}))
			defer srv.Close()

			g := newTestGemini(t, "k", srv.URL, time.Second)
			_, err := g.Summarize(context.Background(), transferChangeSet())
			assert.ErrorIs(t, err, tt.wantErr)
		})
	}
}

func TestGeminiClient_TransportErrorDoesNotLeakKey(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		hj, ok := w.(http.Hijacker)
		if !ok {
			w.WriteHeader(http.StatusInternalServerError)
			return
		}
		conn, _, err := hj.Hijack()
		if err == nil {
			conn.Close()
		}
	}))
	defer srv.Close()

	g := newTestGemini(t, "GEMINI-SECRET-KEY", srv.URL, time.Second)
	_, err := g.Summarize(context.Background(), transferChangeSet())
	require.Error(t, err)
	assert.ErrorIs(t, err, analysis.ErrUpstream)
	assert.NotContains(t, err.Error(), "GEMINI-SECRET-KEY")
}

func TestGeminiClient_Timeout(t *testing.T) {
	release := make(chan struct{})
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		select {
		case <-release:
		case <-r.Context().Done():
		}
	}))
	defer srv.Close()
	defer close(release)

	g := newTestGemini(t, "k", srv.URL, 50*time.Millisecond)
	_, err := g.Summarize(context.Background(), transferChangeSet())
	assert.ErrorIs(t, err, analysis.ErrTimeout)
}

func TestGeminiClient_NotConfigured(t *testing.T) {
	g := newTestGemini(t, "", "", time.Second)
	_, err := g.Summarize(context.Background(), transferChangeSet())
	assert.True(t, errors.Is(err, ErrNotConfigured))
}

func TestFallbackSummary(t *testing.T) {
	got := FallbackSummary(transferChangeSet())

	assert.Equal(t,
		"Transaction 8RBsoe...NHbr sent by 0xA succeeded. 0xB received 0.5 SUI. It modified 1 object. It used coin::transfer in package 0x2. Gas used: 0.5 SUI.",
		got)
}

func TestFallbackSummary_Failure(t *testing.T) {
	cs := &analysis.ChangeSet{Digest: "d", Sender: "0xA", Status: "failure", StatusError: strp("InsufficientGas"), GasUsed: "0"}

	got := FallbackSummary(cs)

	assert.Equal(t, "Transaction d sent by 0xA failed (InsufficientGas). Gas used: 0 SUI.", got)
}

func TestFallbackSummary_ManyTransfers(t *testing.T) {
	cs := &analysis.ChangeSet{Digest: "d", Sender: "0xA", Status: "success", GasUsed: "0"}
	for _, addr := range []string{"0x1", "0x2", "0x3", "0x4", "0x5"} {
		cs.BalanceChanges = append(cs.BalanceChanges, analysis.BalanceChange{
			Address: addr, CoinType: "0x2::sui::SUI", Amount: decimal.NewFromInt(1000000000), Decimals: 9,
		})
	}
	cs.Objects = []analysis.ObjectChange{
		{ObjectID: "o1", Kind: analysis.ObjectCreated},
		{ObjectID: "o2", Kind: analysis.ObjectCreated},
		{ObjectID: "o3", Kind: analysis.ObjectDeleted},
	}

	got := FallbackSummary(cs)

	assert.True(t, strings.Contains(got, "0x1 received 1 SUI, 0x2 received 1 SUI, 0x3 received 1 SUI and 2 more."), got)
	assert.Contains(t, got, "It created 2 objects and deleted 1 object.")
}

func TestFallbackSummary_TruncatesLikeDiagramLabels(t *testing.T) {
	sender := "0x1234567890abcdef1234567890abcdef"
	cs := &analysis.ChangeSet{Digest: "d", Sender: sender, Status: "success", GasUsed: "0"}

	got := FallbackSummary(cs)

	assert.Contains(t, got, "sent by "+diagram.TruncateAddress(sender)+" succeeded.")
	assert.Contains(t, got, "0x1234...cdef")
}
