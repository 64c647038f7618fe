package httpadapter

import (
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"net/http"
	"regexp"
	"strings"

	"github.com/kirillkom/floraqa/internal/core/domain"
)

const maxRequestBody = 1 << 20

// labelConfidence matches classifier labels such as "Ngải cứu (97.25%)".
var labelConfidence = regexp.MustCompile(`^(.+?)\s\(\d+\.\d+%\)$`)

func stripLabelConfidence(label string) string {
	label = strings.TrimSpace(label)
	if m := labelConfidence.FindStringSubmatch(label); m != nil {
		return m[1]
	}
	return label
}

type qaRequest struct {
	Question  string `json:"question"`
	Label     string `json:"label,omitempty"`
	SessionID string `json:"session_id,omitempty"`
}

type resetRequest struct {
	SessionID string `json:"session_id,omitempty"`
}

type resetResponse struct {
	Status    string  `json:"status"`
	Message   string  `json:"message"`
	SessionID *string `json:"session_id"`
}

func (rt *Router) answer(w http.ResponseWriter, r *http.Request) {
	var req qaRequest
	if err := decodeBody(r, &req, false); err != nil {
		writeError(w, r, err)
		return
	}
	if strings.TrimSpace(req.Question) == "" {
		writeError(w, r, domain.WrapError(domain.ErrInvalidInput, "answer", errors.New("question is required")))
		return
	}

	result, err := rt.answers.Answer(r.Context(), domain.AnswerRequest{
		Question:  req.Question,
		Label:     stripLabelConfidence(req.Label),
		SessionID: req.SessionID,
	})
	if err != nil {
		slog.Error("answer_failed", "request_id", requestIDFromContext(r.Context()), "error", err)
		writeError(w, r, err)
		return
	}
	annotateRequest(r.Context(),
		"session_id", shortID(result.SessionID),
		"answer_route", string(result.Route),
		"labeled", req.Label != "",
	)
	writeJSON(w, http.StatusOK, result)
}

func (rt *Router) resetConversation(w http.ResponseWriter, r *http.Request) {
	var req resetRequest
	if err := decodeBody(r, &req, true); err != nil {
		writeError(w, r, err)
		return
	}

	sessionID := strings.TrimSpace(req.SessionID)
	if sessionID == "" {
		writeJSON(w, http.StatusOK, resetResponse{
			Status:  "info",
			Message: "No session ID provided. Sessions are managed automatically.",
		})
		return
	}
	if err := rt.answers.ResetSession(r.Context(), sessionID); err != nil {
		writeError(w, r, err)
		return
	}
	annotateRequest(r.Context(), "session_id", shortID(sessionID))
	writeJSON(w, http.StatusOK, resetResponse{
		Status:    "success",
		Message:   fmt.Sprintf("Conversation history for session %s has been reset.", shortID(sessionID)),
		SessionID: &sessionID,
	})
}

func (rt *Router) sessionStats(w http.ResponseWriter, _ *http.Request) {
	writeJSON(w, http.StatusOK, rt.answers.SessionStats())
}

func (rt *Router) listPlants(w http.ResponseWriter, _ *http.Request) {
	if rt.records == nil {
		writeJSON(w, http.StatusOK, []domain.MetadataRecord{})
		return
	}
	records := rt.records.List()
	if records == nil {
		records = []domain.MetadataRecord{}
	}
	writeJSON(w, http.StatusOK, records)
}

// decodeBody reads a JSON body. An empty body is accepted when allowEmpty is set.
func decodeBody(r *http.Request, dst any, allowEmpty bool) error {
	dec := json.NewDecoder(io.LimitReader(r.Body, maxRequestBody))
	if err := dec.Decode(dst); err != nil {
		if errors.Is(err, io.EOF) && allowEmpty {
			return nil
		}
		return domain.WrapError(domain.ErrInvalidInput, "decode request", errors.New("invalid json"))
	}
	return nil
}

func shortID(id string) string {
	if len(id) <= 8 {
		return id
	}
	return id[:8] + "..."
}
