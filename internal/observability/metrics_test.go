package observability

import (
	"bytes"
	"strings"
	"testing"
	"time"
)

func TestMetricsWritePrometheus(t *testing.T) {
	m := NewMetrics()
	m.ObserveAPI("POST", "/copilot/query", "200", 120*time.Millisecond)
	m.ObserveQuery("top_cash", 850*time.Millisecond)
	m.ObserveAgentCall("nl2sql", false, 400*time.Millisecond)
	m.ObserveAgentCall("vector", true, 50*time.Millisecond)

	var buf bytes.Buffer
	if err := m.WritePrometheus(&buf); err != nil {
		t.Fatalf("write: %v", err)
	}
	out := buf.String()

	for _, want := range []string{
		`wealthops_api_requests_total{method="POST",route="/copilot/query",status="200"} 1`,
		`wealthops_queries_total{intent="top_cash"} 1`,
		`wealthops_agent_calls_total{agent="nl2sql",status="ok"} 1`,
		`wealthops_agent_calls_total{agent="vector",status="error"} 1`,
		`wealthops_query_duration_seconds_count{intent="top_cash"} 1`,
	} {
		if !strings.Contains(out, want) {
			t.Fatalf("missing metric line %q in:\n%s", want, out)
		}
	}
}

func TestMetricsNilReceiverIsSafe(t *testing.T) {
	var m *Metrics
	m.ObserveAPI("GET", "/health", "200", time.Millisecond)
	m.ObserveQuery("exec_summary", time.Second)
	m.ObserveAgentCall("api", false, time.Millisecond)
	m.APIInflightInc()
	m.APIInflightDec()
	if err := m.WritePrometheus(&bytes.Buffer{}); err != nil {
		t.Fatalf("nil write: %v", err)
	}
}

func TestHistogramBucketCounts(t *testing.T) {
	h := NewHistogramVec("test_latency", "test", []string{"op"}, []float64{0.1, 1})
	h.Observe(0.05, "read")
	h.Observe(0.5, "read")
	h.Observe(5, "read")

	var buf bytes.Buffer
	if err := h.WritePrometheus(&buf); err != nil {
		t.Fatalf("write: %v", err)
	}
	out := buf.String()
	for _, want := range []string{
		`test_latency_bucket{op="read",le="0.1"} 1`,
		`test_latency_bucket{op="read",le="1"} 2`,
		`test_latency_bucket{op="read",le="+Inf"} 3`,
		`test_latency_count{op="read"} 3`,
	} {
		if !strings.Contains(out, want) {
			t.Fatalf("missing %q in:\n%s", want, out)
		}
	}
}
