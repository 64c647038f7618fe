package usecase

import (
	"strings"

	"github.com/kirillkom/floraqa/internal/core/domain"
)

// QuestionClassifier tags questions as medical when any vocabulary term occurs
// as a substring of the lowercased question.
type QuestionClassifier struct {
	keywords []string
}

func NewQuestionClassifier(keywords []string) *QuestionClassifier {
	normalized := make([]string, 0, len(keywords))
	for _, kw := range keywords {
		kw = strings.ToLower(domain.NormalizeName(kw))
		if kw != "" {
			normalized = append(normalized, kw)
		}
	}
	return &QuestionClassifier{keywords: normalized}
}

func (c *QuestionClassifier) IsMedical(question string) bool {
	q := strings.ToLower(domain.NormalizeName(question))
	if q == "" {
		return false
	}
	for _, kw := range c.keywords {
		if strings.Contains(q, kw) {
			return true
		}
	}
	return false
}
