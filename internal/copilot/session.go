package copilot

import (
	"context"
	"fmt"
	"net/http"
	"strings"
	"sync"
	"time"

	"github.com/google/uuid"

	"github.com/wealthops/wealthops-backend/internal/platform/logger"
)

const (
	defaultHealthTimeout  = 3 * time.Second
	defaultHealthInterval = 30 * time.Second
)

// Config carries everything a session needs up front. Base URLs are
// injected here rather than read from the environment at use sites, so
// tests and embedders can point a session anywhere.
type Config struct {
	OrchestratorURL string
	NL2SQLAgentURL  string

	// HouseholdID narrows every query to one client household.
	// Empty means cross-household ("general").
	HouseholdID string

	// HTTPClient is optional; the query calls are deliberately not
	// time-bounded (the fallback path handles failure), so the default
	// client has no timeout.
	HTTPClient *http.Client

	HealthTimeout  time.Duration
	HealthInterval time.Duration
}

// Session owns the chat transcript for one open copilot panel. It issues
// each submitted question to the orchestrator with a streaming-first /
// sync-fallback protocol and keeps the transcript consistent for any
// observer at any point in time.
type Session struct {
	cfg    Config
	log    *logger.Logger
	client *http.Client
	health *HealthMonitor

	mu         sync.Mutex
	transcript []Message
	busy       bool
	notifier   Notifier
}

func NewSession(cfg Config, log *logger.Logger, notifier Notifier) *Session {
	if log == nil {
		log = logger.NewNop()
	}
	cfg.OrchestratorURL = strings.TrimRight(strings.TrimSpace(cfg.OrchestratorURL), "/")
	cfg.NL2SQLAgentURL = strings.TrimRight(strings.TrimSpace(cfg.NL2SQLAgentURL), "/")
	if cfg.HealthTimeout <= 0 {
		cfg.HealthTimeout = defaultHealthTimeout
	}
	if cfg.HealthInterval <= 0 {
		cfg.HealthInterval = defaultHealthInterval
	}
	client := cfg.HTTPClient
	if client == nil {
		client = &http.Client{}
	}

	s := &Session{
		cfg:      cfg,
		log:      log.With("component", "CopilotSession"),
		client:   client,
		notifier: notifier,
	}
	s.health = newHealthMonitor(healthConfig{
		orchestratorURL: cfg.OrchestratorURL,
		nl2sqlURL:       cfg.NL2SQLAgentURL,
		timeout:         cfg.HealthTimeout,
		interval:        cfg.HealthInterval,
		client:          client,
	}, s.log, func(st ServiceStatus) {
		if notifier != nil {
			notifier.StatusChanged(st)
		}
	})
	s.seedLocked()
	return s
}

// Transcript returns a copy of the current transcript.
func (s *Session) Transcript() []Message {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.snapshotLocked()
}

// Busy reports whether a submitted query is still in flight.
func (s *Session) Busy() bool {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.busy
}

// SubmitQuery sends one user question through the streaming-first /
// sync-fallback protocol. Blank input is a no-op. The returned Message is
// the finalized assistant answer (or error message); it is always
// non-streaming by the time SubmitQuery returns.
func (s *Session) SubmitQuery(ctx context.Context, text string) *Message {
	trimmed := strings.TrimSpace(text)
	if trimmed == "" {
		return nil
	}

	userMsg := newMessage(RoleUser, trimmed)
	placeholder := newMessage(RoleAssistant, "")
	placeholder.Streaming = true
	placeholder.Citations = []Citation{}

	s.mu.Lock()
	s.transcript = append(s.transcript, userMsg, placeholder)
	s.busy = true
	s.mu.Unlock()
	s.notifyTranscript()

	defer func() {
		s.mu.Lock()
		s.busy = false
		s.mu.Unlock()
		s.notifyTranscript()
	}()

	req := s.buildRequest(trimmed)

	result, streamErr := s.streamQuery(ctx, req, placeholder.ID)
	if result == nil {
		if streamErr != nil {
			s.log.Debug("streaming attempt failed, falling back to sync",
				"session_id", stringContext(req, "session_id"),
				"error", streamErr.Error(),
			)
		}
		var syncErr error
		result, syncErr = s.syncQuery(ctx, req)
		if result == nil {
			reason := "no response"
			if syncErr != nil {
				reason = syncErr.Error()
			}
			errText := fmt.Sprintf(
				"I couldn't reach the copilot orchestrator at %s (%s). Please try again in a moment.",
				s.cfg.OrchestratorURL, reason,
			)
			return s.finalize(placeholder.ID, func(m *Message) {
				m.Text = errText
				m.Citations = []Citation{}
			})
		}
	}

	return s.finalize(placeholder.ID, func(m *Message) {
		m.Text = result.Answer
		m.Citations = result.Citations
		if m.Citations == nil {
			m.Citations = []Citation{}
		}
		m.GeneratedQuery = result.SQLGenerated
		m.ExecutionTimeMs = result.ExecutionTimeMs
		m.AgentsInvoked = result.AgentCalls
	})
}

// Reset replaces the transcript with a single fresh seeded assistant
// message and clears the busy flag. An in-flight SubmitQuery is not
// cancelled; its eventual finalization targets a message that no longer
// exists and is dropped by the ID guard in finalize.
func (s *Session) Reset() {
	s.mu.Lock()
	s.transcript = nil
	s.busy = false
	s.seedLocked()
	s.mu.Unlock()
	s.notifyTranscript()
}

// StartHealthChecks begins the periodic backend health polling: one probe
// immediately, then one per interval until StopHealthChecks.
func (s *Session) StartHealthChecks() { s.health.Start() }

// StopHealthChecks tears the poller down. Safe to call multiple times.
func (s *Session) StopHealthChecks() { s.health.Stop() }

// RefreshServiceStatus probes both backends once and returns the snapshot.
// It never fails; an unreachable service simply reads false.
func (s *Session) RefreshServiceStatus(ctx context.Context) ServiceStatus {
	return s.health.Refresh(ctx)
}

// ServiceStatus returns the most recent health snapshot.
func (s *Session) ServiceStatus() ServiceStatus { return s.health.Status() }

func (s *Session) buildRequest(query string) QueryRequest {
	household := strings.TrimSpace(s.cfg.HouseholdID)
	if household == "" {
		household = "general"
	}
	return QueryRequest{
		Query:       query,
		HouseholdID: household,
		UserContext: map[string]any{
			"timestamp":  time.Now().UTC().Format(time.RFC3339),
			"session_id": uuid.NewString(),
		},
	}
}

func (s *Session) seedLocked() {
	seed := newMessage(RoleAssistant, seedText(s.cfg.HouseholdID))
	s.transcript = append(s.transcript, seed)
}

func seedText(householdID string) string {
	householdID = strings.TrimSpace(householdID)
	if householdID != "" {
		return fmt.Sprintf(
			"Hi, I'm the WealthOps copilot. Ask me about household %s: portfolios, cash positions, RMD deadlines, or CRM notes.",
			householdID,
		)
	}
	return "Hi, I'm the WealthOps copilot. Ask me about your book of business: cash positions, RMD deadlines, allocations, or CRM notes."
}

// updateStreamingText overwrites the visible text of the placeholder
// identified by id, provided it still exists and is still streaming.
// Each update replaces the previous text; nothing is concatenated.
func (s *Session) updateStreamingText(id, text string) {
	s.mu.Lock()
	updated := false
	for i := range s.transcript {
		if s.transcript[i].ID == id && s.transcript[i].Streaming {
			msg := s.transcript[i]
			msg.Text = text
			s.transcript[i] = msg
			updated = true
			break
		}
	}
	s.mu.Unlock()
	if updated {
		s.notifyTranscript()
	}
}

// finalize applies the terminal mutation to the message identified by id
// and flips Streaming off. If the message is gone (the session was reset
// while the query was in flight) the result is dropped rather than
// resurrected into the new transcript.
func (s *Session) finalize(id string, apply func(m *Message)) *Message {
	s.mu.Lock()
	var done *Message
	for i := range s.transcript {
		if s.transcript[i].ID == id {
			msg := s.transcript[i]
			apply(&msg)
			msg.Streaming = false
			s.transcript[i] = msg
			cp := msg
			done = &cp
			break
		}
	}
	s.mu.Unlock()
	if done == nil {
		s.log.Debug("finalization target no longer in transcript, dropping result", "message_id", id)
		return nil
	}
	s.notifyTranscript()
	return done
}

func (s *Session) snapshotLocked() []Message {
	out := make([]Message, len(s.transcript))
	copy(out, s.transcript)
	return out
}

func (s *Session) notifyTranscript() {
	if s.notifier == nil {
		return
	}
	s.mu.Lock()
	snap := s.snapshotLocked()
	s.mu.Unlock()
	s.notifier.TranscriptChanged(snap)
}

func stringContext(req QueryRequest, key string) string {
	if req.UserContext == nil {
		return ""
	}
	if v, ok := req.UserContext[key].(string); ok {
		return v
	}
	return ""
}
