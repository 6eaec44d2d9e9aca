package copilot

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"net/http"

	"github.com/wealthops/wealthops-backend/internal/pkg/httpx"
)

// streamQuery runs the streaming sub-protocol against the orchestrator.
// Any failure here (transport, non-OK status, missing body, a stream that
// ends without a terminal "complete" frame) returns a nil result so the
// caller can fall back to the synchronous endpoint; nothing is surfaced
// to the user at this stage.
func (s *Session) streamQuery(ctx context.Context, req QueryRequest, placeholderID string) (*QueryResult, error) {
	body, err := json.Marshal(req)
	if err != nil {
		return nil, err
	}

	httpReq, err := http.NewRequestWithContext(ctx, http.MethodPost, s.cfg.OrchestratorURL+"/copilot/query/stream", bytes.NewReader(body))
	if err != nil {
		return nil, err
	}
	httpReq.Header.Set("Content-Type", "application/json")
	httpReq.Header.Set("Accept", "text/event-stream")

	resp, err := s.client.Do(httpReq)
	if err != nil {
		return nil, err
	}
	if resp.Body == nil {
		return nil, errors.New("streaming response has no body")
	}
	defer resp.Body.Close()

	if resp.StatusCode < 200 || resp.StatusCode >= 300 {
		raw, _ := io.ReadAll(io.LimitReader(resp.Body, 4096))
		return nil, &httpx.StatusError{StatusCode: resp.StatusCode, Status: resp.Status, Body: string(raw)}
	}

	var result *QueryResult
	err = scanSSE(resp.Body, func(_, data string) error {
		var ev streamEvent
		if err := json.Unmarshal([]byte(data), &ev); err != nil {
			// Malformed individual frames must not abort an otherwise
			// healthy stream.
			s.log.Debug("skipping malformed stream frame", "error", err.Error())
			return nil
		}
		switch ev.Type {
		case "status":
			s.updateStreamingText(placeholderID, ev.Content+"...")
		case "complete":
			var qr QueryResult
			if err := json.Unmarshal([]byte(ev.Content), &qr); err != nil {
				return fmt.Errorf("decode final result: %w", err)
			}
			result = &qr
			return errStopStream
		default:
			// Unknown event types ("partial", "error", future additions)
			// are ignored for forward compatibility.
		}
		return nil
	})
	if errors.Is(err, errStopStream) {
		err = nil
	}
	if err != nil {
		return nil, err
	}
	if result == nil {
		return nil, errors.New("stream ended without a final result")
	}
	return result, nil
}

// syncQuery runs the synchronous sub-protocol. A failure here is terminal
// for the query; the caller turns it into the user-visible error message.
func (s *Session) syncQuery(ctx context.Context, req QueryRequest) (*QueryResult, error) {
	body, err := json.Marshal(req)
	if err != nil {
		return nil, err
	}

	httpReq, err := http.NewRequestWithContext(ctx, http.MethodPost, s.cfg.OrchestratorURL+"/copilot/query", bytes.NewReader(body))
	if err != nil {
		return nil, err
	}
	httpReq.Header.Set("Content-Type", "application/json")

	resp, err := s.client.Do(httpReq)
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

	var qr QueryResult
	if err := json.Unmarshal(raw, &qr); err != nil {
		return nil, fmt.Errorf("decode query result: %w", err)
	}
	return &qr, nil
}
