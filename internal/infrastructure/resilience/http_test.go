package resilience

import (
	"context"
	"errors"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"

	"github.com/sony/gobreaker/v2"

	"github.com/kirillkom/floraqa/internal/core/domain"
)

func TestClassifyHTTP(t *testing.T) {
	if c := ClassifyHTTP(&StatusError{StatusCode: http.StatusServiceUnavailable}); !c.Retryable || !c.RecordFailure {
		t.Fatalf("503 must be retryable, got %+v", c)
	}
	if c := ClassifyHTTP(&StatusError{StatusCode: http.StatusBadRequest}); c.Retryable || c.RecordFailure {
		t.Fatalf("400 must be permanent and not counted, got %+v", c)
	}
	if c := ClassifyHTTP(context.Canceled); c.Retryable || c.RecordFailure {
		t.Fatalf("cancellation must not be retried, got %+v", c)
	}
	if c := ClassifyHTTP(gobreaker.ErrOpenState); !c.Retryable {
		t.Fatalf("open circuit must be transient, got %+v", c)
	}
	if c := ClassifyHTTP(errors.New("decode")); c.Retryable || !c.RecordFailure {
		t.Fatalf("unknown errors count but do not retry, got %+v", c)
	}
}

func TestNewStatusErrorKeepsBody(t *testing.T) {
	rec := httptest.NewRecorder()
	http.Error(rec, "quota exceeded", http.StatusTooManyRequests)

	err := NewStatusError("gemini", "generate", rec.Result())
	if err.StatusCode != http.StatusTooManyRequests {
		t.Fatalf("unexpected status code %d", err.StatusCode)
	}
	if !strings.Contains(err.Error(), "gemini generate status") || !strings.Contains(err.Error(), "quota exceeded") {
		t.Fatalf("unexpected message %q", err.Error())
	}
}

func TestWrapTemporary(t *testing.T) {
	err := WrapTemporary("embed", &StatusError{StatusCode: http.StatusBadGateway}, ClassifyHTTP)
	if !domain.IsKind(err, domain.ErrTemporary) {
		t.Fatalf("expected temporary kind, got %v", err)
	}
	permanent := &StatusError{StatusCode: http.StatusUnauthorized}
	if err := WrapTemporary("embed", permanent, ClassifyHTTP); domain.IsKind(err, domain.ErrTemporary) {
		t.Fatalf("401 must not become temporary")
	}
	if WrapTemporary("embed", nil, ClassifyHTTP) != nil {
		t.Fatalf("nil must stay nil")
	}
}
