package copilot

import (
	"context"
	"encoding/json"
	"fmt"
	"net/http"
	"net/http/httptest"
	"strings"
	"sync"
	"sync/atomic"
	"testing"

	"github.com/wealthops/wealthops-backend/internal/platform/logger"
)

type recordingNotifier struct {
	mu        sync.Mutex
	snapshots [][]Message
	statuses  []ServiceStatus
}

func (n *recordingNotifier) TranscriptChanged(messages []Message) {
	n.mu.Lock()
	defer n.mu.Unlock()
	n.snapshots = append(n.snapshots, messages)
}

func (n *recordingNotifier) StatusChanged(status ServiceStatus) {
	n.mu.Lock()
	defer n.mu.Unlock()
	n.statuses = append(n.statuses, status)
}

func (n *recordingNotifier) allSnapshots() [][]Message {
	n.mu.Lock()
	defer n.mu.Unlock()
	out := make([][]Message, len(n.snapshots))
	copy(out, n.snapshots)
	return out
}

func countStreaming(messages []Message) int {
	n := 0
	for _, m := range messages {
		if m.Streaming {
			n++
		}
	}
	return n
}

func writeFrame(t *testing.T, w http.ResponseWriter, payload string) {
	t.Helper()
	if _, err := fmt.Fprintf(w, "data: %s\n\n", payload); err != nil {
		t.Errorf("write frame: %v", err)
	}
	if f, ok := w.(http.Flusher); ok {
		f.Flush()
	}
}

func completeFrame(t *testing.T, result QueryResult) string {
	t.Helper()
	inner, err := json.Marshal(result)
	if err != nil {
		t.Fatalf("marshal result: %v", err)
	}
	frame, err := json.Marshal(streamEvent{Type: "complete", Content: string(inner)})
	if err != nil {
		t.Fatalf("marshal frame: %v", err)
	}
	return string(frame)
}

type orchestratorStub struct {
	streamCalls int64
	syncCalls   int64

	stream func(t *testing.T, w http.ResponseWriter, r *http.Request)
	sync   func(t *testing.T, w http.ResponseWriter, r *http.Request)
}

func (o *orchestratorStub) handler(t *testing.T) http.Handler {
	mux := http.NewServeMux()
	mux.HandleFunc("/copilot/query/stream", func(w http.ResponseWriter, r *http.Request) {
		atomic.AddInt64(&o.streamCalls, 1)
		w.Header().Set("Content-Type", "text/event-stream")
		o.stream(t, w, r)
	})
	mux.HandleFunc("/copilot/query", func(w http.ResponseWriter, r *http.Request) {
		atomic.AddInt64(&o.syncCalls, 1)
		o.sync(t, w, r)
	})
	return mux
}

func newTestSession(t *testing.T, stub *orchestratorStub, notifier Notifier) (*Session, *httptest.Server) {
	t.Helper()
	srv := httptest.NewServer(stub.handler(t))
	t.Cleanup(srv.Close)
	s := NewSession(Config{
		OrchestratorURL: srv.URL,
		NL2SQLAgentURL:  srv.URL,
	}, logger.NewNop(), notifier)
	return s, srv
}

func TestSubmitQueryBlankInputIsNoOp(t *testing.T) {
	stub := &orchestratorStub{
		stream: func(t *testing.T, w http.ResponseWriter, r *http.Request) {
			t.Error("streaming endpoint should not be called")
		},
		sync: func(t *testing.T, w http.ResponseWriter, r *http.Request) {
			t.Error("sync endpoint should not be called")
		},
	}
	s, _ := newTestSession(t, stub, nil)

	if got := s.SubmitQuery(context.Background(), ""); got != nil {
		t.Fatalf("empty query: want=nil got=%+v", got)
	}
	if got := s.SubmitQuery(context.Background(), "   "); got != nil {
		t.Fatalf("whitespace query: want=nil got=%+v", got)
	}

	transcript := s.Transcript()
	if len(transcript) != 1 {
		t.Fatalf("transcript length: want=1 got=%d", len(transcript))
	}
	if atomic.LoadInt64(&stub.streamCalls) != 0 || atomic.LoadInt64(&stub.syncCalls) != 0 {
		t.Fatalf("network calls: want=0 got stream=%d sync=%d", stub.streamCalls, stub.syncCalls)
	}
}

func TestSubmitQueryStreamingSuccess(t *testing.T) {
	result := QueryResult{
		Answer:          "42",
		Citations:       []Citation{},
		ExecutionTimeMs: 10,
		AgentCalls:      []string{"nl2sql"},
	}
	stub := &orchestratorStub{
		stream: func(t *testing.T, w http.ResponseWriter, r *http.Request) {
			writeFrame(t, w, `{"type":"status","content":"Detecting intent"}`)
			writeFrame(t, w, completeFrame(t, result))
		},
		sync: func(t *testing.T, w http.ResponseWriter, r *http.Request) {
			t.Error("sync endpoint should not be called on streaming success")
		},
	}
	notifier := &recordingNotifier{}
	s, _ := newTestSession(t, stub, notifier)

	final := s.SubmitQuery(context.Background(), "hello")
	if final == nil {
		t.Fatal("final message: want non-nil")
	}
	if final.Text != "42" {
		t.Fatalf("final text: want=%q got=%q", "42", final.Text)
	}
	if final.Streaming {
		t.Fatal("final message still streaming")
	}
	if final.ExecutionTimeMs != 10 {
		t.Fatalf("execution time: want=10 got=%d", final.ExecutionTimeMs)
	}
	if len(final.AgentsInvoked) != 1 || final.AgentsInvoked[0] != "nl2sql" {
		t.Fatalf("agents invoked: want=[nl2sql] got=%v", final.AgentsInvoked)
	}
	if atomic.LoadInt64(&stub.syncCalls) != 0 {
		t.Fatalf("sync calls: want=0 got=%d", stub.syncCalls)
	}

	// Exactly one streaming placeholder right after submission, zero once
	// the call has settled.
	snapshots := notifier.allSnapshots()
	if len(snapshots) == 0 {
		t.Fatal("no transcript notifications observed")
	}
	if got := countStreaming(snapshots[0]); got != 1 {
		t.Fatalf("streaming messages after append: want=1 got=%d", got)
	}
	if got := countStreaming(snapshots[len(snapshots)-1]); got != 0 {
		t.Fatalf("streaming messages after settle: want=0 got=%d", got)
	}

	// Status updates overwrite the placeholder text with an ellipsis marker.
	sawStatus := false
	for _, snap := range snapshots {
		for _, m := range snap {
			if m.Streaming && m.Text == "Detecting intent..." {
				sawStatus = true
			}
		}
	}
	if !sawStatus {
		t.Fatal("status update never rendered on the placeholder")
	}
}

func TestSubmitQueryFallsBackOnStreamFailure(t *testing.T) {
	result := QueryResult{Answer: "ok", Citations: []Citation{}, ExecutionTimeMs: 5, AgentCalls: []string{}}
	stub := &orchestratorStub{
		stream: func(t *testing.T, w http.ResponseWriter, r *http.Request) {
			w.WriteHeader(http.StatusInternalServerError)
		},
		sync: func(t *testing.T, w http.ResponseWriter, r *http.Request) {
			w.Header().Set("Content-Type", "application/json")
			_ = json.NewEncoder(w).Encode(result)
		},
	}
	s, _ := newTestSession(t, stub, nil)

	final := s.SubmitQuery(context.Background(), "hello")
	if final == nil {
		t.Fatal("final message: want non-nil")
	}
	if final.Text != "ok" {
		t.Fatalf("final text: want=%q got=%q", "ok", final.Text)
	}
	if got := atomic.LoadInt64(&stub.syncCalls); got != 1 {
		t.Fatalf("sync calls: want=1 got=%d", got)
	}
}

func TestSubmitQueryTotalFailureNamesOrchestrator(t *testing.T) {
	stub := &orchestratorStub{
		stream: func(t *testing.T, w http.ResponseWriter, r *http.Request) {
			w.WriteHeader(http.StatusInternalServerError)
		},
		sync: func(t *testing.T, w http.ResponseWriter, r *http.Request) {
			w.WriteHeader(http.StatusInternalServerError)
		},
	}
	s, srv := newTestSession(t, stub, nil)

	final := s.SubmitQuery(context.Background(), "hello")
	if final == nil {
		t.Fatal("final message: want non-nil")
	}
	if final.Text == "" {
		t.Fatal("final text empty on total failure")
	}
	if !strings.Contains(final.Text, srv.URL) {
		t.Fatalf("final text should name the orchestrator base URL %q, got %q", srv.URL, final.Text)
	}
	if final.Streaming {
		t.Fatal("final message still streaming")
	}
}

func TestSubmitQueryToleratesMalformedFrames(t *testing.T) {
	result := QueryResult{Answer: "fine", Citations: []Citation{}, ExecutionTimeMs: 7, AgentCalls: []string{}}
	stub := &orchestratorStub{
		stream: func(t *testing.T, w http.ResponseWriter, r *http.Request) {
			writeFrame(t, w, `{not json at all`)
			writeFrame(t, w, completeFrame(t, result))
		},
		sync: func(t *testing.T, w http.ResponseWriter, r *http.Request) {
			t.Error("sync endpoint should not be called")
		},
	}
	s, _ := newTestSession(t, stub, nil)

	final := s.SubmitQuery(context.Background(), "hello")
	if final == nil {
		t.Fatal("final message: want non-nil")
	}
	if final.Text != "fine" {
		t.Fatalf("final text: want=%q got=%q", "fine", final.Text)
	}
}

func TestSubmitQueryIgnoresUnknownEventTypes(t *testing.T) {
	result := QueryResult{Answer: "done", Citations: []Citation{}, ExecutionTimeMs: 3, AgentCalls: []string{}}
	stub := &orchestratorStub{
		stream: func(t *testing.T, w http.ResponseWriter, r *http.Request) {
			writeFrame(t, w, `{"type":"partial","content":"half-baked"}`)
			writeFrame(t, w, `{"type":"telemetry","content":"ignored"}`)
			writeFrame(t, w, completeFrame(t, result))
		},
		sync: func(t *testing.T, w http.ResponseWriter, r *http.Request) {
			t.Error("sync endpoint should not be called")
		},
	}
	s, _ := newTestSession(t, stub, nil)

	final := s.SubmitQuery(context.Background(), "hello")
	if final == nil || final.Text != "done" {
		t.Fatalf("final: want text=done got=%+v", final)
	}
}

func TestSubmitQueryStreamWithoutCompleteFallsBack(t *testing.T) {
	// The §8 end-to-end scenario: household scope set, stream emits a
	// status update then closes without a terminal frame, sync fallback
	// supplies the real answer.
	conf := 0.9
	result := QueryResult{
		Answer: "$425,000",
		Citations: []Citation{
			{Source: "Accounts", Description: "HH001 cash accounts", Confidence: &conf},
		},
		ExecutionTimeMs: 120,
		AgentCalls:      []string{"nl2sql_agent"},
	}
	var gotRequest QueryRequest
	stub := &orchestratorStub{
		stream: func(t *testing.T, w http.ResponseWriter, r *http.Request) {
			writeFrame(t, w, `{"type":"status","content":"Querying accounts"}`)
		},
		sync: func(t *testing.T, w http.ResponseWriter, r *http.Request) {
			if err := json.NewDecoder(r.Body).Decode(&gotRequest); err != nil {
				t.Errorf("decode request: %v", err)
			}
			w.Header().Set("Content-Type", "application/json")
			_ = json.NewEncoder(w).Encode(result)
		},
	}
	srv := httptest.NewServer(stub.handler(t))
	t.Cleanup(srv.Close)
	s := NewSession(Config{
		OrchestratorURL: srv.URL,
		NL2SQLAgentURL:  srv.URL,
		HouseholdID:     "HH001",
	}, logger.NewNop(), nil)

	final := s.SubmitQuery(context.Background(), "What is the cash position?")
	if final == nil {
		t.Fatal("final message: want non-nil")
	}
	if final.Text != "$425,000" {
		t.Fatalf("final text: want=%q got=%q", "$425,000", final.Text)
	}
	if len(final.Citations) != 1 || final.Citations[0].Source != "Accounts" {
		t.Fatalf("citations: want one Accounts citation, got %+v", final.Citations)
	}
	if final.ExecutionTimeMs != 120 {
		t.Fatalf("execution time: want=120 got=%d", final.ExecutionTimeMs)
	}
	if gotRequest.HouseholdID != "HH001" {
		t.Fatalf("household scope: want=HH001 got=%q", gotRequest.HouseholdID)
	}
	if gotRequest.UserContext["timestamp"] == nil || gotRequest.UserContext["session_id"] == nil {
		t.Fatalf("user context missing timestamp/session_id: %+v", gotRequest.UserContext)
	}
}

func TestResetDropsLateFinalization(t *testing.T) {
	release := make(chan struct{})
	streaming := make(chan struct{})
	result := QueryResult{Answer: "late", Citations: []Citation{}, ExecutionTimeMs: 1, AgentCalls: []string{}}
	stub := &orchestratorStub{
		stream: func(t *testing.T, w http.ResponseWriter, r *http.Request) {
			writeFrame(t, w, `{"type":"status","content":"working"}`)
			close(streaming)
			<-release
			// Stream ends without a complete frame, forcing the sync
			// fallback after the session has been reset.
		},
		sync: func(t *testing.T, w http.ResponseWriter, r *http.Request) {
			w.Header().Set("Content-Type", "application/json")
			_ = json.NewEncoder(w).Encode(result)
		},
	}
	s, _ := newTestSession(t, stub, nil)

	done := make(chan *Message, 1)
	go func() {
		done <- s.SubmitQuery(context.Background(), "slow question")
	}()

	<-streaming
	s.Reset()
	close(release)

	final := <-done
	if final != nil {
		t.Fatalf("late finalization should be dropped, got %+v", final)
	}

	transcript := s.Transcript()
	if len(transcript) != 1 {
		t.Fatalf("transcript after reset: want=1 message got=%d", len(transcript))
	}
	if transcript[0].Role != RoleAssistant || transcript[0].Streaming {
		t.Fatalf("seed message malformed: %+v", transcript[0])
	}
	for _, m := range transcript {
		if m.Text == "late" {
			t.Fatal("discarded placeholder resurrected into new transcript")
		}
	}
}

func TestResetIdempotent(t *testing.T) {
	stub := &orchestratorStub{
		stream: func(t *testing.T, w http.ResponseWriter, r *http.Request) {},
		sync:   func(t *testing.T, w http.ResponseWriter, r *http.Request) {},
	}
	s, _ := newTestSession(t, stub, nil)

	s.Reset()
	first := s.Transcript()
	s.Reset()
	second := s.Transcript()

	if len(first) != 1 || len(second) != 1 {
		t.Fatalf("transcript lengths after resets: want=1,1 got=%d,%d", len(first), len(second))
	}
	if s.Busy() {
		t.Fatal("busy flag set after reset")
	}
}
