package ports

import (
	"context"

	"github.com/kirillkom/floraqa/internal/core/domain"
)

// AnswerService is the inbound contract of the conversational QA core.
type AnswerService interface {
	Answer(ctx context.Context, req domain.AnswerRequest) (*domain.AnswerResult, error)
	ResetSession(ctx context.Context, sessionID string) error
	SessionStats() domain.SessionStats
}

// IndexRebuilder rebuilds or reloads the corpus index.
type IndexRebuilder interface {
	Rebuild(ctx context.Context) error
	Reload(ctx context.Context) error
}

// RecordReader is the read model for structured metadata records.
type RecordReader interface {
	List() []domain.MetadataRecord
}
