package orchestrator

import (
	"sort"
	"strings"
)

// Intent is the detected purpose of an advisor question.
type Intent string

const (
	IntentTopCash     Intent = "top_cash"
	IntentCRMPOI      Intent = "crm_poi"
	IntentCustodial18 Intent = "custodial_18"
	IntentRecon       Intent = "recon"
	IntentExecSummary Intent = "exec_summary"
	IntentMissingBen  Intent = "missing_ben"
	IntentRMD         Intent = "rmd"
	IntentIRAReminder Intent = "ira_reminder"
	IntentPerfSummary Intent = "perf_summary"
)

// AgentName identifies a downstream specialist agent.
type AgentName string

const (
	AgentNL2SQL AgentName = "nl2sql"
	AgentVector AgentName = "vector"
	AgentAPI    AgentName = "api"
)

// IntentRouter scores a query against keyword patterns and maps the
// winning intent onto the agents that should answer it.
type IntentRouter struct {
	patterns map[Intent][]string
	routing  map[Intent][]AgentName
}

func NewIntentRouter() *IntentRouter {
	return &IntentRouter{
		patterns: map[Intent][]string{
			IntentTopCash: {
				"top cash", "highest cash", "cash balance", "most cash",
				"cash positions", "cash position", "liquid funds", "available cash",
			},
			IntentCRMPOI: {
				"crm notes", "points of interest", "client notes", "advisor notes",
				"conversation history", "meeting notes", "discussion points",
			},
			IntentCustodial18: {
				"turned 18", "custodial", "age of majority", "minor account",
				"transition", "adult account", "custody transfer",
			},
			IntentRecon: {
				"allocation", "mismatch", "drift", "rebalance", "target allocation",
				"asset allocation", "portfolio drift", "out of range",
			},
			IntentExecSummary: {
				"executive summary", "summary", "overview", "report summary",
				"household summary", "client summary", "portfolio summary",
			},
			IntentMissingBen: {
				"missing beneficiary", "beneficiary", "no beneficiary",
				"beneficiary information", "estate planning",
			},
			IntentRMD: {
				"rmd", "required minimum distribution", "distribution deadline",
				"withdrawal required", "mandatory distribution",
			},
			IntentIRAReminder: {
				"ira contribution", "contribution reminder", "ytd contribution",
				"annual contribution", "contribution limit", "no contributions",
			},
			IntentPerfSummary: {
				"performance", "returns", "gain", "loss", "qoq", "qtd", "ytd",
				"performance summary", "investment performance",
			},
		},
		routing: map[Intent][]AgentName{
			IntentTopCash:     {AgentNL2SQL},
			IntentCRMPOI:      {AgentVector},
			IntentCustodial18: {AgentNL2SQL, AgentVector},
			IntentRecon:       {AgentNL2SQL, AgentAPI},
			IntentExecSummary: {AgentNL2SQL, AgentVector, AgentAPI},
			IntentMissingBen:  {AgentNL2SQL},
			IntentRMD:         {AgentNL2SQL},
			IntentIRAReminder: {AgentNL2SQL},
			IntentPerfSummary: {AgentNL2SQL, AgentAPI},
		},
	}
}

// Detect returns the highest-scoring intent for the query. General
// questions with no keyword hits default to an executive summary.
func (r *IntentRouter) Detect(query string) Intent {
	q := strings.ToLower(query)

	best := IntentExecSummary
	bestScore := 0

	intents := make([]Intent, 0, len(r.patterns))
	for intent := range r.patterns {
		intents = append(intents, intent)
	}
	// Stable iteration so keyword ties resolve the same way every time.
	sort.Slice(intents, func(i, j int) bool { return intents[i] < intents[j] })

	for _, intent := range intents {
		score := 0
		for _, kw := range r.patterns[intent] {
			if strings.Contains(q, kw) {
				score++
			}
		}
		if score > bestScore {
			best = intent
			bestScore = score
		}
	}
	return best
}

// Route returns the agents that should handle the intent.
func (r *IntentRouter) Route(intent Intent) []AgentName {
	if agents, ok := r.routing[intent]; ok {
		return agents
	}
	return []AgentName{AgentNL2SQL}
}
