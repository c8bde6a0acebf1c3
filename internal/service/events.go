package service

import (
	"context"

	"carrental/internal/queue"
)

// EventPublisher delivers outcome events after a transition commits.
type EventPublisher interface {
	PublishRentalOutcome(ctx context.Context, event queue.RentalOutcomeEvent) error
}

var _ EventPublisher = (*queue.Publisher)(nil)
