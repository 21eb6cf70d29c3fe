package core

import (
	"context"

	"github.com/medforge/contentgen/internal/domain/model"
	"github.com/medforge/contentgen/internal/observability/notify"
)

// Generator produces a GenerationResult for one mode.
type Generator interface {
	Generate(ctx context.Context, mode model.Mode, gc model.GenerationContext) (*model.GenerationResult, error)
}

// PipelineRunner executes a planned list of modes for one topic.
type PipelineRunner interface {
	Run(ctx context.Context, topicID string, modes []model.Mode) (model.JobResult, error)
}

// JobFailureNotifier fans out failure notifications.
type JobFailureNotifier interface {
	NotifyJobFailure(ctx context.Context, payload notify.JobFailurePayload)
}
