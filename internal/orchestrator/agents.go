package orchestrator

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"strings"
	"time"

	"github.com/wealthops/wealthops-backend/internal/copilot"
	"github.com/wealthops/wealthops-backend/internal/pkg/httpx"
	"github.com/wealthops/wealthops-backend/internal/platform/logger"
)

const defaultAgentTimeout = 30 * time.Second

// NL2SQLRequest is the payload for the NL2SQL agent's query endpoint.
type NL2SQLRequest struct {
	Query       string `json:"query"`
	HouseholdID string `json:"household_id,omitempty"`
	AccountID   string `json:"account_id,omitempty"`
	SchemaHint  string `json:"schema_hint,omitempty"`
}

type NL2SQLResponse struct {
	SQLQuery        string           `json:"sql_query"`
	Results         []map[string]any `json:"results"`
	TablesUsed      []string         `json:"tables_used"`
	RowCount        int              `json:"row_count"`
	ExecutionTimeMs int              `json:"execution_time_ms"`
}

// VectorSearchRequest is the payload for the vector agent's CRM search.
type VectorSearchRequest struct {
	Query       string `json:"query"`
	HouseholdID string `json:"household_id,omitempty"`
	AccountID   string `json:"account_id,omitempty"`
	TopK        int    `json:"top_k"`
}

type VectorSearchResult struct {
	ID       string         `json:"id"`
	Text     string         `json:"text"`
	Score    float64        `json:"score"`
	Metadata map[string]any `json:"metadata,omitempty"`
}

type VectorSearchResponse struct {
	Results     []VectorSearchResult `json:"results"`
	TotalFound  int                  `json:"total_found"`
	QueryTimeMs int                  `json:"query_time_ms"`
}

// AgentResult is one specialist agent's contribution to a query. A failed
// call carries Err; the composer degrades gracefully instead of aborting.
type AgentResult struct {
	Agent  AgentName
	NL2SQL *NL2SQLResponse
	Vector *VectorSearchResponse
	KPIs   map[string]any
	Err    error
}

// AgentClients fans a query out to the downstream agents over HTTP.
type AgentClients struct {
	log    *logger.Logger
	client *http.Client

	nl2sqlURL string
	vectorURL string
	apiURL    string
}

type AgentClientsConfig struct {
	NL2SQLAgentURL string
	VectorAgentURL string
	APIAgentURL    string
	Timeout        time.Duration
	HTTPClient     *http.Client
}

func NewAgentClients(cfg AgentClientsConfig, log *logger.Logger) *AgentClients {
	if log == nil {
		log = logger.NewNop()
	}
	timeout := cfg.Timeout
	if timeout <= 0 {
		timeout = defaultAgentTimeout
	}
	client := cfg.HTTPClient
	if client == nil {
		client = &http.Client{Timeout: timeout}
	}
	return &AgentClients{
		log:       log.With("component", "AgentClients"),
		client:    client,
		nl2sqlURL: strings.TrimRight(strings.TrimSpace(cfg.NL2SQLAgentURL), "/"),
		vectorURL: strings.TrimRight(strings.TrimSpace(cfg.VectorAgentURL), "/"),
		apiURL:    strings.TrimRight(strings.TrimSpace(cfg.APIAgentURL), "/"),
	}
}

// Query dispatches to the named agent and returns its result. Errors are
// embedded in the AgentResult, not returned, so one failing agent never
// sinks the whole fan-out.
func (c *AgentClients) Query(ctx context.Context, agent AgentName, req copilot.QueryRequest) AgentResult {
	switch agent {
	case AgentNL2SQL:
		resp, err := c.queryNL2SQL(ctx, req)
		return AgentResult{Agent: agent, NL2SQL: resp, Err: err}
	case AgentVector:
		resp, err := c.searchVector(ctx, req)
		return AgentResult{Agent: agent, Vector: resp, Err: err}
	case AgentAPI:
		kpis, err := c.fetchKPIs(ctx, req)
		return AgentResult{Agent: agent, KPIs: kpis, Err: err}
	default:
		return AgentResult{Agent: agent, Err: fmt.Errorf("unknown agent %q", agent)}
	}
}

func (c *AgentClients) queryNL2SQL(ctx context.Context, req copilot.QueryRequest) (*NL2SQLResponse, error) {
	if c.nl2sqlURL == "" {
		return nil, fmt.Errorf("nl2sql agent not configured")
	}
	var out NL2SQLResponse
	err := c.postJSON(ctx, c.nl2sqlURL+"/query", NL2SQLRequest{
		Query:       req.Query,
		HouseholdID: scopedHousehold(req),
		AccountID:   req.AccountID,
	}, &out)
	if err != nil {
		return nil, err
	}
	return &out, nil
}

func (c *AgentClients) searchVector(ctx context.Context, req copilot.QueryRequest) (*VectorSearchResponse, error) {
	if c.vectorURL == "" {
		return nil, fmt.Errorf("vector agent not configured")
	}
	var out VectorSearchResponse
	err := c.postJSON(ctx, c.vectorURL+"/search", VectorSearchRequest{
		Query:       req.Query,
		HouseholdID: scopedHousehold(req),
		AccountID:   req.AccountID,
		TopK:        5,
	}, &out)
	if err != nil {
		return nil, err
	}
	return &out, nil
}

func (c *AgentClients) fetchKPIs(ctx context.Context, req copilot.QueryRequest) (map[string]any, error) {
	if c.apiURL == "" {
		return nil, fmt.Errorf("api agent not configured")
	}
	household := scopedHousehold(req)
	if household == "" {
		return nil, fmt.Errorf("api agent requires a household scope")
	}
	url := fmt.Sprintf("%s/plan-performance/households/%s/kpis", c.apiURL, household)

	httpReq, err := http.NewRequestWithContext(ctx, http.MethodGet, url, nil)
	if err != nil {
		return nil, err
	}
	resp, err := c.client.Do(httpReq)
	if err != nil {
		return nil, err
	}
	raw, readErr := io.ReadAll(resp.Body)
	_ = resp.Body.Close()
	if readErr != nil {
		return nil, readErr
	}
	if resp.StatusCode < 200 || resp.StatusCode >= 300 {
		return nil, &httpx.StatusError{StatusCode: resp.StatusCode, Status: resp.Status, Body: string(raw)}
	}
	var out map[string]any
	if err := json.Unmarshal(raw, &out); err != nil {
		return nil, fmt.Errorf("decode kpis: %w", err)
	}
	return out, nil
}

func (c *AgentClients) postJSON(ctx context.Context, url string, body, out any) error {
	raw, err := json.Marshal(body)
	if err != nil {
		return err
	}
	httpReq, err := http.NewRequestWithContext(ctx, http.MethodPost, url, bytes.NewReader(raw))
	if err != nil {
		return err
	}
	httpReq.Header.Set("Content-Type", "application/json")

	resp, err := c.client.Do(httpReq)
	if err != nil {
		return err
	}
	respBody, readErr := io.ReadAll(resp.Body)
	_ = resp.Body.Close()
	if readErr != nil {
		return readErr
	}
	if resp.StatusCode < 200 || resp.StatusCode >= 300 {
		return &httpx.StatusError{StatusCode: resp.StatusCode, Status: resp.Status, Body: string(respBody)}
	}
	if out == nil {
		return nil
	}
	if err := json.Unmarshal(respBody, out); err != nil {
		return fmt.Errorf("decode agent response: %w", err)
	}
	return nil
}

// scopedHousehold strips the cross-household sentinel so downstream
// agents only see a real household identifier.
func scopedHousehold(req copilot.QueryRequest) string {
	h := strings.TrimSpace(req.HouseholdID)
	if h == "" || strings.EqualFold(h, "general") {
		return ""
	}
	return h
}
