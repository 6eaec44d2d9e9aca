package copilot

import (
	"time"

	"github.com/google/uuid"
)

type Role string

const (
	RoleUser      Role = "user"
	RoleAssistant Role = "assistant"
	RoleSystem    Role = "system"
)

// Citation points at the data a copilot answer was derived from,
// e.g. "sql:households" or "search:crm-notes:abc123".
type Citation struct {
	Source      string   `json:"source"`
	Description string   `json:"description"`
	Confidence  *float64 `json:"confidence,omitempty"`
}

// Message is one entry in the chat transcript. A Message is treated as a
// value: updates replace the whole entry in the transcript rather than
// mutating a shared pointer, so renderers can observe it at any time.
type Message struct {
	ID        string    `json:"id"`
	Role      Role      `json:"role"`
	Text      string    `json:"text"`
	CreatedAt time.Time `json:"created_at"`

	// Streaming is true only for the assistant placeholder of an
	// in-flight query. Finalization flips it to false, permanently.
	Streaming bool `json:"streaming"`

	Citations       []Citation `json:"citations,omitempty"`
	GeneratedQuery  string     `json:"generated_query,omitempty"`
	ExecutionTimeMs int        `json:"execution_time_ms,omitempty"`
	AgentsInvoked   []string   `json:"agents_invoked,omitempty"`
}

func newMessage(role Role, text string) Message {
	return Message{
		ID:        uuid.NewString(),
		Role:      role,
		Text:      text,
		CreatedAt: time.Now().UTC(),
	}
}

// QueryRequest is the outbound payload for both orchestrator query endpoints.
type QueryRequest struct {
	Query       string         `json:"query"`
	HouseholdID string         `json:"household_id,omitempty"`
	AccountID   string         `json:"account_id,omitempty"`
	UserContext map[string]any `json:"user_context,omitempty"`
}

// QueryResult is the orchestrator's finalized answer.
type QueryResult struct {
	Answer          string     `json:"answer"`
	Citations       []Citation `json:"citations"`
	SQLGenerated    string     `json:"sql_generated,omitempty"`
	ExecutionTimeMs int        `json:"execution_time_ms"`
	AgentCalls      []string   `json:"agent_calls"`
}

// ServiceStatus is a point-in-time reachability snapshot of the two
// backend services the copilot depends on. It is replaced wholesale on
// every refresh, never field-by-field.
type ServiceStatus struct {
	Orchestrator bool `json:"orchestrator"`
	NL2SQL       bool `json:"nl2sql"`
}

// streamEvent is one decoded SSE frame from the streaming query endpoint.
// Unknown Type values are ignored for forward compatibility.
type streamEvent struct {
	Type    string `json:"type"`
	Content string `json:"content"`
}

// Notifier is the observer contract the session publishes state changes
// through. Any renderer (web bridge, terminal, test harness) can subscribe
// without the session depending on a UI framework.
type Notifier interface {
	TranscriptChanged(messages []Message)
	StatusChanged(status ServiceStatus)
}
