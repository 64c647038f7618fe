package usecase

import (
	"fmt"
	"strings"

	"github.com/kirillkom/floraqa/internal/core/domain"
	"github.com/kirillkom/floraqa/internal/core/ports"
	"github.com/kirillkom/floraqa/internal/rules"
)

const defaultMaxHistory = 10

// MetaMatcher recognizes questions about the conversation itself and answers
// them from history. It is immutable and shared by all conversations.
type MetaMatcher struct {
	meta    rules.Meta
	replies rules.Replies
	finder  ports.SubjectFinder
}

func NewMetaMatcher(set rules.Set, finder ports.SubjectFinder) *MetaMatcher {
	return &MetaMatcher{
		meta:    set.Meta,
		replies: set.Replies,
		finder:  finder,
	}
}

// Conversation is one session's ordered turn list. It is not safe for
// concurrent use; callers hold the owning session's lock.
type Conversation struct {
	maxHistory int
	turns      []domain.Turn
	meta       *MetaMatcher
}

func NewConversation(maxHistory int, meta *MetaMatcher) *Conversation {
	if maxHistory <= 0 {
		maxHistory = defaultMaxHistory
	}
	return &Conversation{
		maxHistory: maxHistory,
		meta:       meta,
	}
}

// AddTurn appends a turn and drops the oldest pair while the list exceeds
// twice the history limit.
func (c *Conversation) AddTurn(role domain.Role, text string) {
	c.turns = append(c.turns, domain.Turn{Role: role, Text: text})
	limit := 2 * c.maxHistory
	for len(c.turns) > limit {
		drop := 2
		if len(c.turns) < drop {
			drop = len(c.turns)
		}
		c.turns = append([]domain.Turn(nil), c.turns[drop:]...)
	}
}

// History returns prior context for generation: every turn except the most
// recently added user turn.
func (c *Conversation) History() []domain.Turn {
	prior := c.priorTurns()
	out := make([]domain.Turn, len(prior))
	copy(out, prior)
	return out
}

func (c *Conversation) Len() int {
	return len(c.turns)
}

func (c *Conversation) Reset() {
	c.turns = nil
}

// HandleMeta answers "repeat my previous question" and "which subject was in
// your previous answer" directly from history. The current question is
// expected to be the most recent user turn.
func (c *Conversation) HandleMeta(question string) (string, bool) {
	if c.meta == nil {
		return "", false
	}
	q := strings.ToLower(domain.NormalizeName(question))
	if q == "" {
		return "", false
	}
	prior := c.priorTurns()

	if containsAny(q, c.meta.meta.RepeatPhrases) {
		for i := len(prior) - 1; i >= 0 && i >= len(prior)-2; i-- {
			if prior[i].Role == domain.RoleUser {
				return fmt.Sprintf(c.meta.replies.RepeatFound, prior[i].Text), true
			}
		}
		return c.meta.replies.RepeatMissing, true
	}

	if containsAny(q, c.meta.meta.SubjectPhrases) && containsAny(q, c.meta.meta.PreviousAnswerPhrases) {
		if len(prior) == 0 || prior[len(prior)-1].Role != domain.RoleAssistant {
			return c.meta.replies.SubjectNoAnswer, true
		}
		if c.meta.finder != nil {
			subjects := c.meta.finder.FindSubjects(prior[len(prior)-1].Text)
			if len(subjects) > 0 {
				sci := subjects[0].ScientificName()
				vi := subjects[0].VietnameseName()
				if vi == "" {
					vi = sci
				}
				return fmt.Sprintf(c.meta.replies.SubjectFound, vi, sci), true
			}
		}
		return c.meta.replies.SubjectUnknown, true
	}

	return "", false
}

func (c *Conversation) priorTurns() []domain.Turn {
	if n := len(c.turns); n > 0 && c.turns[n-1].Role == domain.RoleUser {
		return c.turns[:n-1]
	}
	return c.turns
}

func containsAny(text string, phrases []string) bool {
	for _, phrase := range phrases {
		if phrase != "" && strings.Contains(text, phrase) {
			return true
		}
	}
	return false
}
