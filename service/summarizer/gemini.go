package summarizer

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"log/slog"
	"net/http"
	"net/url"
	"strings"
	"time"

	"github.com/brojonat/suilyzer/service/analysis"
	"google.golang.org/genai"
)

const maxErrorMessage = 512

const promptPreamble = `You are an expert at explaining Sui blockchain transactions to non-technical users.
Explain the transaction below in plain English in 3-5 sentences. Focus on what was sent,
what changed and who was involved. Mention the gas cost in user-friendly terms.
Do not use markdown. Return only the explanation.

Transaction:
`

// GeminiClient summarizes change-sets with the Gemini generateContent API.
type GeminiClient struct {
	client *genai.Client
	model  string
	logger *slog.Logger
}

// NewGeminiClient creates a Gemini client. An empty apiKey yields a client
// whose Summarize always returns ErrNotConfigured. An empty baseURL selects
// the public Generative Language endpoint.
func NewGeminiClient(ctx context.Context, apiKey, model, baseURL string, timeout time.Duration, logger *slog.Logger) (*GeminiClient, error) {
	g := &GeminiClient{model: model, logger: logger}
	if apiKey == "" {
		return g, nil
	}

	client, err := genai.NewClient(ctx, &genai.ClientConfig{
		APIKey:     apiKey,
		Backend:    genai.BackendGeminiAPI,
		HTTPClient: &http.Client{Timeout: timeout},
		HTTPOptions: genai.HTTPOptions{
			BaseURL:    baseURL,
			APIVersion: "v1beta",
		},
	})
	if err != nil {
		// The config carries the key; keep it out of the message.
		return nil, errors.New("failed to create gemini client")
	}
	g.client = client
	return g, nil
}

// Summarize asks the model for an explanation. Transport failures wrap
// analysis.ErrUpstream; deadlines wrap analysis.ErrTimeout.
func (g *GeminiClient) Summarize(ctx context.Context, cs *analysis.ChangeSet) (string, error) {
	if g.client == nil {
		return "", ErrNotConfigured
	}

	payload, err := json.Marshal(slim(cs))
	if err != nil {
		return "", fmt.Errorf("marshal change-set: %w", err)
	}

	resp, err := g.client.Models.GenerateContent(ctx, g.model,
		genai.Text(promptPreamble+string(payload)), nil)
	if err != nil {
		return "", classifyGeminiError(ctx, err)
	}

	text := cleanText(resp.Text())
	if text == "" {
		return "", fmt.Errorf("%w: gemini returned no text", analysis.ErrUpstream)
	}

	g.logger.DebugContext(ctx, "generated summary",
		"digest", cs.Digest,
		"model", g.model,
		"chars", len(text),
	)
	return text, nil
}

// classifyGeminiError maps SDK errors onto the analysis taxonomy.
func classifyGeminiError(ctx context.Context, err error) error {
	if isTimeout(ctx, err) {
		return fmt.Errorf("%w: gemini request: %v", analysis.ErrTimeout, err)
	}
	var apiErr genai.APIError
	if errors.As(err, &apiErr) {
		msg := apiErr.Message
		if len(msg) > maxErrorMessage {
			msg = msg[:maxErrorMessage]
		}
		return fmt.Errorf("%w: gemini returned status %d: %s", analysis.ErrUpstream, apiErr.Code, msg)
	}
	return fmt.Errorf("%w: gemini request: %v", analysis.ErrUpstream, err)
}

// cleanText strips surrounding whitespace and markdown code fences.
func cleanText(s string) string {
	s = strings.TrimSpace(s)
	if strings.HasPrefix(s, "```") {
		lines := strings.Split(s, "\n")
		if len(lines) > 2 {
			s = strings.Join(lines[1:len(lines)-1], "\n")
		}
		s = strings.TrimSpace(s)
	}
	return s
}

func isTimeout(ctx context.Context, err error) bool {
	if errors.Is(err, context.DeadlineExceeded) || errors.Is(ctx.Err(), context.DeadlineExceeded) {
		return true
	}
	var ue *url.Error
	return errors.As(err, &ue) && ue.Timeout()
}

// slimChangeSet is the model's view of a change-set: display amounts instead
// of raw units and no diagnostics.
type slimChangeSet struct {
	Digest   string                 `json:"digest"`
	Sender   string                 `json:"sender"`
	Status   string                 `json:"status"`
	Error    *string                `json:"error,omitempty"`
	GasUsed  string                 `json:"gas_used_sui"`
	Objects  []slimObject           `json:"objects"`
	Balances []slimBalance          `json:"balance_changes"`
	Packages []analysis.PackageCall `json:"packages"`
	Events   int                    `json:"events_count"`
}

type slimObject struct {
	ObjectID string  `json:"object_id"`
	Kind     string  `json:"kind"`
	Type     string  `json:"type"`
	Owner    *string `json:"owner,omitempty"`
}

type slimBalance struct {
	Address string `json:"address"`
	Amount  string `json:"amount"`
}

func slim(cs *analysis.ChangeSet) slimChangeSet {
	s := slimChangeSet{
		Digest:   cs.Digest,
		Sender:   cs.Sender,
		Status:   cs.Status,
		Error:    cs.StatusError,
		GasUsed:  cs.GasUsed,
		Objects:  make([]slimObject, 0, len(cs.Objects)),
		Balances: make([]slimBalance, 0, len(cs.BalanceChanges)),
		Packages: cs.Packages,
		Events:   cs.EventsCount,
	}
	for _, o := range cs.Objects {
		s.Objects = append(s.Objects, slimObject{ObjectID: o.ObjectID, Kind: string(o.Kind), Type: o.TypeTag, Owner: o.Owner})
	}
	for _, b := range cs.BalanceChanges {
		s.Balances = append(s.Balances, slimBalance{Address: b.Address, Amount: b.Display()})
	}
	return s
}
