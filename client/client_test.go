package client

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	natspkg "github.com/brojonat/suilyzer/service/nats"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

const testDigest = "8RBsoeyoRwajj86MZfZE6gMDJQVYGYcdSfx1zxqxNHbr"

func TestAnalyze_Success(t *testing.T) {
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		assert.Equal(t, "POST", r.Method)
		assert.Equal(t, "/api/v1/analyze", r.URL.Path)
		assert.Equal(t, "application/json", r.Header.Get("Content-Type"))

		var body map[string]string
		require.NoError(t, json.NewDecoder(r.Body).Decode(&body))
		assert.Equal(t, testDigest, body["digest"])

		w.Header().Set("Content-Type", "application/json")
		fmt.Fprintf(w, `{
			"digest": %q,
			"sender": "0xA",
			"status": "success",
			"summary": "0xA sent 0.5 SUI to 0xB.",
			"summary_source": "model",
			"diagram": {"nodes": [{"id": "0xA", "label": "0xA", "type": "address"}], "edges": [], "unresolved": 0},
			"objects": {"created": [], "mutated": [{"object_id": "0xgas", "kind": "mutated"}], "deleted": [], "wrapped": []},
			"packages": [{"package_id": "0x2", "module": "coin", "function": "transfer"}],
			"balance_changes": [{"address": "0xB", "coin_type": "0x2::sui::SUI", "amount": "500000000", "decimals": 9}],
			"gas_used": "0.5",
			"events_count": 1,
			"analyzed_at": "2025-01-02T03:04:05Z"
		}`, testDigest)
	}))
	defer server.Close()

	client := NewClient(server.URL, nil, nil)
	result, err := client.Analyze(context.Background(), testDigest)
	require.NoError(t, err)

	assert.Equal(t, testDigest, result.Digest)
	assert.Equal(t, "model", result.SummarySource)
	require.NotNil(t, result.Diagram)
	assert.Len(t, result.Diagram.Nodes, 1)
	require.Len(t, result.Objects.Mutated, 1)
	assert.Equal(t, "0xgas", result.Objects.Mutated[0].ObjectID)
	require.Len(t, result.BalanceChanges, 1)
	assert.Equal(t, "500000000", result.BalanceChanges[0].Amount.String())
	assert.Equal(t, "0x2", result.Packages[0].PackageID)
	assert.Equal(t, time.Date(2025, 1, 2, 3, 4, 5, 0, time.UTC), result.AnalyzedAt)
}

func TestAnalyze_ServerError(t *testing.T) {
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.Header().Set("Content-Type", "application/json")
		w.WriteHeader(http.StatusNotFound)
		json.NewEncoder(w).Encode(map[string]string{
			"error":  "not_found",
			"detail": "not found: " + testDigest,
		})
	}))
	defer server.Close()

	client := NewClient(server.URL, nil, nil)
	_, err := client.Analyze(context.Background(), testDigest)
	require.Error(t, err)
	assert.True(t, IsNotFound(err))

	var apiErr *APIError
	require.True(t, errors.As(err, &apiErr))
	assert.Equal(t, "not_found", apiErr.Kind)
	assert.Contains(t, err.Error(), testDigest)
}

func TestAnalyze_NonJSONError(t *testing.T) {
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		http.Error(w, "bad gateway", http.StatusBadGateway)
	}))
	defer server.Close()

	client := NewClient(server.URL, nil, nil)
	_, err := client.Analyze(context.Background(), testDigest)
	require.Error(t, err)
	assert.False(t, IsNotFound(err))
	assert.Contains(t, err.Error(), "502")
	assert.Contains(t, err.Error(), "bad gateway")
}

func TestAnalyzeRaw(t *testing.T) {
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.Write([]byte(`{"digest":"abc","extra":true}`))
	}))
	defer server.Close()

	raw, err := NewClient(server.URL, nil, nil).AnalyzeRaw(context.Background(), "abc")
	require.NoError(t, err)
	assert.JSONEq(t, `{"digest":"abc","extra":true}`, string(raw))
}

func TestInvalidate(t *testing.T) {
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		assert.Equal(t, "DELETE", r.Method)
		assert.Equal(t, "/api/v1/cache/"+testDigest, r.URL.Path)
		w.Write([]byte(`{"message":"Cache cleared for ` + testDigest + `"}`))
	}))
	defer server.Close()

	msg, err := NewClient(server.URL+"/", nil, nil).Invalidate(context.Background(), testDigest)
	require.NoError(t, err)
	assert.Equal(t, "Cache cleared for "+testDigest, msg)
}

func TestClearCache(t *testing.T) {
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		assert.Equal(t, "DELETE", r.Method)
		assert.Equal(t, "/api/v1/cache", r.URL.Path)
		w.Write([]byte(`{"message":"Cleared 4 cached transactions"}`))
	}))
	defer server.Close()

	msg, err := NewClient(server.URL, nil, nil).ClearCache(context.Background())
	require.NoError(t, err)
	assert.Equal(t, "Cleared 4 cached transactions", msg)
}

func TestHealth(t *testing.T) {
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		assert.Equal(t, "/health", r.URL.Path)
		w.Write([]byte(`{"status":"healthy","cache_size":2,"cache_ttl_seconds":3600,"cache_max_entries":100,"rpc_url":"https://rpc.example"}`))
	}))
	defer server.Close()

	h, err := NewClient(server.URL, nil, nil).Health(context.Background())
	require.NoError(t, err)
	assert.Equal(t, "healthy", h.Status)
	assert.Equal(t, 2, h.CacheSize)
	assert.Equal(t, float64(3600), h.CacheTTLSeconds)
	assert.Equal(t, "https://rpc.example", h.RPCURL)
}

func TestListAnalyses(t *testing.T) {
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		assert.Equal(t, "/api/v1/analyses", r.URL.Path)
		assert.Equal(t, "0xA", r.URL.Query().Get("sender"))
		assert.Equal(t, "5", r.URL.Query().Get("limit"))
		assert.Equal(t, "", r.URL.Query().Get("offset"))
		w.Write([]byte(`{"analyses":[{"digest":"d1","sender":"0xA","node_count":3},{"digest":"d2","sender":"0xA"}],"count":2}`))
	}))
	defer server.Close()

	records, err := NewClient(server.URL, nil, nil).ListAnalyses(context.Background(), ListOptions{Sender: "0xA", Limit: 5})
	require.NoError(t, err)
	require.Len(t, records, 2)
	assert.Equal(t, "d1", records[0].Digest)
	assert.Equal(t, int32(3), records[0].NodeCount)
}

func TestGetAnalysis_NotFound(t *testing.T) {
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusNotFound)
		w.Write([]byte(`{"error":"analysis not found"}`))
	}))
	defer server.Close()

	_, err := NewClient(server.URL, nil, nil).GetAnalysis(context.Background(), testDigest)
	assert.True(t, IsNotFound(err))
}

func TestStream(t *testing.T) {
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		assert.Equal(t, "/api/v1/stream/analyses", r.URL.Path)
		assert.Equal(t, testDigest, r.URL.Query().Get("digest"))

		w.Header().Set("Content-Type", "text/event-stream")
		flusher, ok := w.(http.Flusher)
		require.True(t, ok)

		fmt.Fprintf(w, "event: connected\ndata: {\"subject\":\"analyses.%s\"}\n\n", testDigest)
		fmt.Fprintf(w, ": keepalive\n\n")
		fmt.Fprintf(w, "event: analysis\ndata: not-json\n\n")

		data, _ := json.Marshal(natspkg.AnalysisEvent{Digest: testDigest, Sender: "0xA", NodeCount: 3})
		fmt.Fprintf(w, "event: analysis\ndata: %s\n\n", data)
		flusher.Flush()
	}))
	defer server.Close()

	var events []*natspkg.AnalysisEvent
	err := NewClient(server.URL, nil, nil).Stream(context.Background(), testDigest, func(ev *natspkg.AnalysisEvent) error {
		events = append(events, ev)
		return nil
	})
	require.NoError(t, err)
	require.Len(t, events, 1)
	assert.Equal(t, testDigest, events[0].Digest)
	assert.Equal(t, 3, events[0].NodeCount)
}

func TestStream_StopsOnCallbackError(t *testing.T) {
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.Header().Set("Content-Type", "text/event-stream")
		for i := 0; i < 3; i++ {
			fmt.Fprintf(w, "event: analysis\ndata: {\"digest\":\"d%d\"}\n\n", i)
		}
	}))
	defer server.Close()

	stop := errors.New("stop")
	calls := 0
	err := NewClient(server.URL, nil, nil).Stream(context.Background(), "", func(ev *natspkg.AnalysisEvent) error {
		calls++
		return stop
	})
	assert.ErrorIs(t, err, stop)
	assert.Equal(t, 1, calls)
}

func TestStream_ContextCancelled(t *testing.T) {
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.Header().Set("Content-Type", "text/event-stream")
		w.(http.Flusher).Flush()
		<-r.Context().Done()
	}))
	defer server.Close()

	ctx, cancel := context.WithTimeout(context.Background(), 100*time.Millisecond)
	defer cancel()

	err := NewClient(server.URL, nil, nil).Stream(ctx, "", func(*natspkg.AnalysisEvent) error { return nil })
	assert.ErrorIs(t, err, context.DeadlineExceeded)
}
