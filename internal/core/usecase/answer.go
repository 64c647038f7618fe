package usecase

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"strings"

	"github.com/kirillkom/floraqa/internal/core/domain"
	"github.com/kirillkom/floraqa/internal/core/ports"
	"github.com/kirillkom/floraqa/internal/rules"
)

const defaultTemperature = 0.3

// AnswerConfig tunes generation. Temperature 0 is passed through; a negative
// temperature selects the default.
type AnswerConfig struct {
	TopK        int
	Temperature float64
}

func DefaultAnswerConfig() AnswerConfig {
	return AnswerConfig{TopK: 5, Temperature: defaultTemperature}
}

// AnswerUseCase runs one pass of the answer state machine per request:
// reset check, meta check, route, generate, record.
type AnswerUseCase struct {
	sessions   *SessionManager
	searcher   ports.HybridSearcher
	metadata   ports.MetadataStore
	generator  ports.Generator
	classifier *QuestionClassifier
	prompts    PromptSet
	rules      rules.Set
	observer   ports.AnswerObserver
	cfg        AnswerConfig
}

func NewAnswerUseCase(
	sessions *SessionManager,
	searcher ports.HybridSearcher,
	metadata ports.MetadataStore,
	generator ports.Generator,
	ruleSet rules.Set,
	prompts PromptSet,
	observer ports.AnswerObserver,
	cfg AnswerConfig,
) *AnswerUseCase {
	if cfg.TopK <= 0 {
		cfg.TopK = 5
	}
	if cfg.Temperature < 0 {
		cfg.Temperature = defaultTemperature
	}
	return &AnswerUseCase{
		sessions:   sessions,
		searcher:   searcher,
		metadata:   metadata,
		generator:  generator,
		classifier: NewQuestionClassifier(ruleSet.MedicalKeywords),
		prompts:    prompts,
		rules:      ruleSet,
		observer:   observer,
		cfg:        cfg,
	}
}

// plan is the routing decision for one request.
type plan struct {
	route     domain.Route
	request   domain.GenerationRequest
	retrieved int
}

func (uc *AnswerUseCase) Answer(ctx context.Context, req domain.AnswerRequest) (*domain.AnswerResult, error) {
	question := strings.TrimSpace(req.Question)
	if question == "" {
		return nil, domain.WrapError(domain.ErrInvalidInput, "answer", errors.New("question is required"))
	}
	label := strings.TrimSpace(req.Label)

	session := uc.sessions.GetOrCreate(req.SessionID)
	session.Lock()
	defer session.Unlock()
	conversation := session.Conversation()

	if strings.EqualFold(domain.NormalizeName(question), uc.rules.ResetKeyword) {
		conversation.Reset()
		reply := uc.rules.Replies.ResetConfirmation
		conversation.AddTurn(domain.RoleAssistant, reply)
		return uc.finish(session.ID, reply, domain.RouteReset, 0, false), nil
	}

	conversation.AddTurn(domain.RoleUser, question)

	if reply, ok := conversation.HandleMeta(question); ok {
		conversation.AddTurn(domain.RoleAssistant, reply)
		return uc.finish(session.ID, reply, domain.RouteMeta, 0, false), nil
	}

	p := uc.route(ctx, question, label)
	p.request.History = conversation.History()
	p.request.Temperature = uc.cfg.Temperature

	reply, err := uc.generator.Generate(ctx, p.request)
	failed := false
	if err != nil {
		failed = true
		slog.Error("answer_generation_failed",
			"session_id", session.ID,
			"route", p.route,
			"error", err,
		)
		reply = uc.rules.Replies.GenerationApology
	}

	conversation.AddTurn(domain.RoleAssistant, reply)
	return uc.finish(session.ID, reply, p.route, p.retrieved, failed), nil
}

// route picks the context and template for generation. Labeled non-medical
// questions go straight to the record store; everything else tries retrieval
// first and falls back only when it comes back empty.
func (uc *AnswerUseCase) route(ctx context.Context, question, label string) plan {
	medical := uc.classifier.IsMedical(question)
	if label != "" && !medical {
		return uc.lookupPlan(question, label)
	}

	hits, err := uc.searcher.HybridSearch(ctx, question, uc.cfg.TopK)
	if err != nil {
		slog.Warn("answer_retrieval_failed", "error", err)
		hits = nil
	}
	if len(hits) > 0 {
		contextText := uc.searcher.BuildContext(hits)
		instruction := uc.prompts.GeneralWithContext(contextText)
		if medical {
			instruction = uc.prompts.MedicalWithContext(contextText)
		}
		return plan{
			route:     domain.RouteRetrieval,
			retrieved: len(hits),
			request: domain.GenerationRequest{
				Query:             question,
				SystemInstruction: instruction,
				AllowWebSearch:    false,
			},
		}
	}

	if label != "" {
		return uc.lookupPlan(question, label)
	}
	return uc.webPlan(question, domain.RouteWebGeneral)
}

func (uc *AnswerUseCase) lookupPlan(question, label string) plan {
	if uc.metadata != nil {
		if record, ok := uc.metadata.Lookup(label); ok {
			return plan{
				route: domain.RouteLookup,
				request: domain.GenerationRequest{
					Query:             question,
					SystemInstruction: uc.prompts.LabeledWithRecord(uc.metadata.RenderContext(record)),
					AllowWebSearch:    false,
				},
			}
		}
	}
	return uc.webPlan(fmt.Sprintf(uc.rules.Replies.LabelWebQuery, label, question), domain.RouteWebLabel)
}

func (uc *AnswerUseCase) webPlan(query string, route domain.Route) plan {
	return plan{
		route: route,
		request: domain.GenerationRequest{
			Query:             query,
			SystemInstruction: uc.prompts.GeneralNoSubject(),
			AllowWebSearch:    true,
		},
	}
}

func (uc *AnswerUseCase) finish(sessionID, reply string, route domain.Route, retrieved int, failed bool) *domain.AnswerResult {
	slog.Info("answer_route",
		"session_id", sessionID,
		"route", route,
		"retrieved_chunks", retrieved,
		"generation_failed", failed,
	)
	if uc.observer != nil {
		uc.observer.RecordAnswer(route, retrieved, failed)
	}
	return &domain.AnswerResult{Answer: reply, SessionID: sessionID, Route: route}
}

// ResetSession clears the conversation of sessionID, creating the session on
// first reference.
func (uc *AnswerUseCase) ResetSession(_ context.Context, sessionID string) error {
	sessionID = strings.TrimSpace(sessionID)
	if sessionID == "" {
		return domain.WrapError(domain.ErrInvalidInput, "reset session", errors.New("session_id is required"))
	}
	session := uc.sessions.GetOrCreate(sessionID)
	session.Lock()
	session.Conversation().Reset()
	session.Unlock()
	slog.Info("session_reset", "session_id", sessionID)
	return nil
}

func (uc *AnswerUseCase) SessionStats() domain.SessionStats {
	return domain.SessionStats{
		ActiveSessions:        uc.sessions.Count(),
		SessionTimeoutMinutes: int(uc.sessions.Timeout().Minutes()),
	}
}
