package mcpadapter

import (
	"context"
	"encoding/json"
	"errors"
	"strings"
	"testing"

	"github.com/mark3labs/mcp-go/mcp"

	"github.com/kirillkom/floraqa/internal/core/domain"
)

type answerServiceFake struct {
	last     domain.AnswerRequest
	resetIDs []string
	err      error
}

func (f *answerServiceFake) Answer(_ context.Context, req domain.AnswerRequest) (*domain.AnswerResult, error) {
	f.last = req
	if f.err != nil {
		return nil, f.err
	}
	return &domain.AnswerResult{Answer: "Gừng giúp ấm bụng.", SessionID: "s-1", Route: domain.RouteRetrieval}, nil
}

func (f *answerServiceFake) ResetSession(_ context.Context, sessionID string) error {
	f.resetIDs = append(f.resetIDs, sessionID)
	return nil
}

func (f *answerServiceFake) SessionStats() domain.SessionStats {
	return domain.SessionStats{ActiveSessions: 2, SessionTimeoutMinutes: 60}
}

func callRequest(name string, args map[string]any) mcp.CallToolRequest {
	var req mcp.CallToolRequest
	req.Params.Name = name
	req.Params.Arguments = args
	return req
}

func resultText(t *testing.T, res *mcp.CallToolResult) string {
	t.Helper()
	if res == nil || len(res.Content) == 0 {
		t.Fatalf("expected tool content, got %+v", res)
	}
	text, ok := res.Content[0].(mcp.TextContent)
	if !ok {
		t.Fatalf("expected text content, got %T", res.Content[0])
	}
	return text.Text
}

func TestHandleAnswerPassesArguments(t *testing.T) {
	svc := &answerServiceFake{}
	s := New(svc)

	res, err := s.handleAnswer(context.Background(), callRequest("answer", map[string]any{
		"question":   "Gừng có tác dụng gì?",
		"label":      "Gừng",
		"session_id": "s-1",
	}))
	if err != nil {
		t.Fatalf("handleAnswer() error = %v", err)
	}
	if res.IsError {
		t.Fatalf("unexpected tool error: %s", resultText(t, res))
	}
	if svc.last.Label != "Gừng" || svc.last.SessionID != "s-1" {
		t.Fatalf("unexpected request %+v", svc.last)
	}

	var payload map[string]any
	if err := json.Unmarshal([]byte(resultText(t, res)), &payload); err != nil {
		t.Fatalf("decode tool result: %v", err)
	}
	if payload["answer"] != "Gừng giúp ấm bụng." || payload["session_id"] != "s-1" {
		t.Fatalf("unexpected payload %v", payload)
	}
}

func TestHandleAnswerRequiresQuestion(t *testing.T) {
	res, err := New(&answerServiceFake{}).handleAnswer(context.Background(), callRequest("answer", map[string]any{}))
	if err != nil {
		t.Fatalf("handleAnswer() error = %v", err)
	}
	if !res.IsError {
		t.Fatalf("expected tool error for missing question")
	}
}

func TestHandleAnswerHidesInternalErrors(t *testing.T) {
	svc := &answerServiceFake{err: errors.New("disk exploded")}
	res, err := New(svc).handleAnswer(context.Background(), callRequest("answer", map[string]any{"question": "q"}))
	if err != nil {
		t.Fatalf("handleAnswer() error = %v", err)
	}
	if !res.IsError || strings.Contains(resultText(t, res), "disk") {
		t.Fatalf("expected opaque tool error, got %q", resultText(t, res))
	}
}

func TestHandleResetAndStats(t *testing.T) {
	svc := &answerServiceFake{}
	s := New(svc)

	res, err := s.handleReset(context.Background(), callRequest("reset_conversation", map[string]any{"session_id": "abc"}))
	if err != nil || res.IsError {
		t.Fatalf("handleReset() = %+v, %v", res, err)
	}
	if len(svc.resetIDs) != 1 || svc.resetIDs[0] != "abc" {
		t.Fatalf("expected reset of abc, got %v", svc.resetIDs)
	}

	res, err = s.handleSessionStats(context.Background(), callRequest("session_stats", nil))
	if err != nil {
		t.Fatalf("handleSessionStats() error = %v", err)
	}
	var stats domain.SessionStats
	if err := json.Unmarshal([]byte(resultText(t, res)), &stats); err != nil {
		t.Fatalf("decode stats: %v", err)
	}
	if stats.ActiveSessions != 2 {
		t.Fatalf("unexpected stats %+v", stats)
	}
}
