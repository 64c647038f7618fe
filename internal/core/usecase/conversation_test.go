package usecase

import (
	"fmt"
	"strings"
	"testing"

	"github.com/kirillkom/floraqa/internal/core/domain"
	"github.com/kirillkom/floraqa/internal/rules"
)

type subjectFinderFake struct {
	records []domain.MetadataRecord
}

func (f subjectFinderFake) FindSubjects(text string) []domain.MetadataRecord {
	lower := strings.ToLower(text)
	var out []domain.MetadataRecord
	for _, rec := range f.records {
		if strings.Contains(lower, strings.ToLower(rec.ScientificName())) ||
			(rec.VietnameseName() != "" && strings.Contains(lower, strings.ToLower(rec.VietnameseName()))) {
			out = append(out, rec)
		}
	}
	return out
}

func newTestConversation(maxHistory int) *Conversation {
	finder := subjectFinderFake{records: []domain.MetadataRecord{{
		Key: "Artemisia vulgaris",
		Fields: map[string]string{
			domain.FieldScientificName: "Artemisia vulgaris",
			domain.FieldVietnameseName: "Ngải cứu",
		},
	}}}
	return NewConversation(maxHistory, NewMetaMatcher(rules.Default(), finder))
}

func TestConversationTurnCountNeverExceedsLimit(t *testing.T) {
	conv := newTestConversation(3)
	for i := 0; i < 25; i++ {
		conv.AddTurn(domain.RoleUser, fmt.Sprintf("q%d", i))
		if conv.Len() > 6 {
			t.Fatalf("turn count %d exceeds limit after user turn %d", conv.Len(), i)
		}
		conv.AddTurn(domain.RoleAssistant, fmt.Sprintf("a%d", i))
		if conv.Len() > 6 {
			t.Fatalf("turn count %d exceeds limit after assistant turn %d", conv.Len(), i)
		}
	}

	turns := conv.turns
	if turns[len(turns)-1].Text != "a24" {
		t.Fatalf("expected newest turn retained, got %q", turns[len(turns)-1].Text)
	}
	if turns[0].Role != domain.RoleUser {
		t.Fatalf("expected trimming to keep user/assistant pairs aligned, first role %q", turns[0].Role)
	}
}

func TestConversationHistoryExcludesCurrentQuestion(t *testing.T) {
	conv := newTestConversation(10)
	conv.AddTurn(domain.RoleUser, "q1")
	conv.AddTurn(domain.RoleAssistant, "a1")
	conv.AddTurn(domain.RoleUser, "q2")

	history := conv.History()
	if len(history) != 2 || history[1].Text != "a1" {
		t.Fatalf("unexpected history: %+v", history)
	}
}

func TestHandleMetaRepeatsPreviousQuestion(t *testing.T) {
	conv := newTestConversation(10)
	conv.AddTurn(domain.RoleUser, "Cây X có độc không?")
	conv.AddTurn(domain.RoleAssistant, "Có, cần thận trọng.")
	conv.AddTurn(domain.RoleUser, "lặp lại câu hỏi")

	reply, ok := conv.HandleMeta("lặp lại câu hỏi")
	if !ok {
		t.Fatalf("expected meta intent to be recognized")
	}
	if !strings.Contains(reply, "Cây X có độc không?") {
		t.Fatalf("expected reply to embed previous question, got %q", reply)
	}
}

func TestHandleMetaRepeatWithoutHistory(t *testing.T) {
	conv := newTestConversation(10)
	conv.AddTurn(domain.RoleUser, "Lặp lại câu hỏi giúp tôi")

	reply, ok := conv.HandleMeta("Lặp lại câu hỏi giúp tôi")
	if !ok || reply != rules.Default().Replies.RepeatMissing {
		t.Fatalf("expected fixed missing reply, got %q ok=%v", reply, ok)
	}
}

func TestHandleMetaNamesSubjectOfPreviousAnswer(t *testing.T) {
	conv := newTestConversation(10)
	conv.AddTurn(domain.RoleUser, "Cây gì trị đau bụng?")
	conv.AddTurn(domain.RoleAssistant, "Ngải cứu thường được dùng.")
	conv.AddTurn(domain.RoleUser, "Cây nào trong câu trả lời trước?")

	reply, ok := conv.HandleMeta("Cây nào trong câu trả lời trước?")
	if !ok {
		t.Fatalf("expected subject meta intent")
	}
	if !strings.Contains(reply, "Ngải cứu") || !strings.Contains(reply, "Artemisia vulgaris") {
		t.Fatalf("unexpected subject reply: %q", reply)
	}
}

func TestHandleMetaSubjectWithoutPreviousAnswer(t *testing.T) {
	conv := newTestConversation(10)
	conv.AddTurn(domain.RoleUser, "tên cây vừa rồi là gì")

	reply, ok := conv.HandleMeta("tên cây vừa rồi là gì")
	if !ok || reply != rules.Default().Replies.SubjectNoAnswer {
		t.Fatalf("expected no-answer reply, got %q ok=%v", reply, ok)
	}
}

func TestHandleMetaIgnoresOrdinaryQuestions(t *testing.T) {
	conv := newTestConversation(10)
	conv.AddTurn(domain.RoleUser, "Cây này mọc ở đâu?")
	if _, ok := conv.HandleMeta("Cây này mọc ở đâu?"); ok {
		t.Fatalf("ordinary question must not be treated as meta")
	}
}

func TestConversationResetClearsTurns(t *testing.T) {
	conv := newTestConversation(10)
	conv.AddTurn(domain.RoleUser, "q")
	conv.Reset()
	if conv.Len() != 0 {
		t.Fatalf("expected empty conversation after reset")
	}
}
