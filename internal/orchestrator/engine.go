package orchestrator

import (
	"context"
	"encoding/json"
	"fmt"
	"time"

	"github.com/google/uuid"

	"github.com/wealthops/wealthops-backend/internal/copilot"
	"github.com/wealthops/wealthops-backend/internal/observability"
	"github.com/wealthops/wealthops-backend/internal/platform/logger"
)

// Update is one streaming progress frame. Type is "status", "partial",
// "complete" or "error"; Content is display text, except for "complete"
// where it is the final QueryResult encoded as JSON.
type Update struct {
	Type    string `json:"type"`
	Content string `json:"content"`
	Agent   string `json:"agent,omitempty"`
}

// Engine runs the copilot query pipeline: detect intent, fan the question
// out to the specialist agents, compose the final answer.
type Engine struct {
	log     *logger.Logger
	router  *IntentRouter
	agents  *AgentClients
	store   *Store
	broker  Broker
	metrics *observability.Metrics
}

func NewEngine(log *logger.Logger, agents *AgentClients, store *Store, broker Broker, metrics *observability.Metrics) *Engine {
	if log == nil {
		log = logger.NewNop()
	}
	if broker == nil {
		broker = NewLocalBroker(log)
	}
	return &Engine{
		log:     log.With("component", "Engine"),
		router:  NewIntentRouter(),
		agents:  agents,
		store:   store,
		broker:  broker,
		metrics: metrics,
	}
}

// ProcessStreaming runs the pipeline, emitting progress updates along the
// way and a terminal "complete" update carrying the composed result. The
// pipeline itself never fails terminally: agent errors degrade to status
// updates and the composer works with whatever arrived.
func (e *Engine) ProcessStreaming(ctx context.Context, req copilot.QueryRequest, emit func(Update)) copilot.QueryResult {
	start := time.Now()
	correlationID := uuid.NewString()
	log := e.log.With("correlation_id", correlationID)

	emit(Update{Type: "status", Content: "Analyzing your question", Agent: "orchestrator"})

	intent := e.router.Detect(req.Query)
	emit(Update{Type: "status", Content: fmt.Sprintf("Detected intent: %s", intent), Agent: "orchestrator"})

	targets := e.router.Route(intent)
	emit(Update{Type: "status", Content: fmt.Sprintf("Routing to %d agent(s)", len(targets)), Agent: "orchestrator"})

	// Launch every agent call up front, then collect in routing order so
	// the status narrative stays stable.
	type pending struct {
		agent AgentName
		ch    chan AgentResult
	}
	calls := make([]pending, 0, len(targets))
	for _, agent := range targets {
		p := pending{agent: agent, ch: make(chan AgentResult, 1)}
		calls = append(calls, p)

		e.broker.Publish(ctx, Envelope{
			CorrelationID: correlationID,
			FromAgent:     "orchestrator",
			ToAgent:       string(agent),
			Intent:        string(intent),
			Query:         req.Query,
			HouseholdID:   req.HouseholdID,
		})

		go func(p pending) {
			callStart := time.Now()
			res := e.agents.Query(ctx, p.agent, req)
			e.metrics.ObserveAgentCall(string(p.agent), res.Err != nil, time.Since(callStart))
			p.ch <- res
		}(p)
	}

	results := make([]AgentResult, 0, len(calls))
	for _, p := range calls {
		emit(Update{Type: "status", Content: fmt.Sprintf("Waiting for %s...", p.agent), Agent: string(p.agent)})
		res := <-p.ch
		if res.Err != nil {
			log.Warn("agent call failed, continuing",
				"agent", string(p.agent),
				"error", res.Err.Error(),
			)
			emit(Update{Type: "status", Content: fmt.Sprintf("%s unavailable, continuing", p.agent), Agent: string(p.agent)})
		} else {
			emit(Update{Type: "partial", Content: fmt.Sprintf("Received response from %s", p.agent), Agent: string(p.agent)})
		}
		results = append(results, res)
	}

	emit(Update{Type: "status", Content: "Composing final response", Agent: "orchestrator"})

	result := compose(intent, req, results)
	result.ExecutionTimeMs = int(time.Since(start).Milliseconds())
	e.metrics.ObserveQuery(string(intent), time.Since(start))

	if e.store != nil {
		if err := e.store.RecordQuery(ctx, correlationID, req, intent, result); err != nil {
			log.Warn("audit record failed", "error", err.Error())
		}
	}

	raw, err := json.Marshal(result)
	if err != nil {
		log.Error("encode final result", "error", err.Error())
		emit(Update{Type: "error", Content: "internal encoding failure", Agent: "orchestrator"})
		return result
	}
	emit(Update{Type: "complete", Content: string(raw), Agent: "orchestrator"})
	return result
}

// ProcessSync runs the same pipeline without a progress stream.
func (e *Engine) ProcessSync(ctx context.Context, req copilot.QueryRequest) copilot.QueryResult {
	return e.ProcessStreaming(ctx, req, func(Update) {})
}
