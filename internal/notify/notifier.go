package notify

import (
	"context"

	"github.com/rs/zerolog"

	"github.com/Awaisee01/fund-sub001/internal/models"
	"github.com/Awaisee01/fund-sub001/internal/queue"
)

const TaskNotify = "notify"

type TaskPublisher interface {
	Publish(ctx context.Context, task queue.Task) error
}

// Notifier queues the operator email for a stored lead. It never fails the
// caller.
type Notifier struct {
	publisher TaskPublisher
	logger    zerolog.Logger
}

func NewNotifier(publisher TaskPublisher, logger zerolog.Logger) *Notifier {
	return &Notifier{publisher: publisher, logger: logger}
}

func (n *Notifier) Notify(ctx context.Context, lead models.Lead) {
	task, err := queue.NewTask(TaskNotify, SummaryFromLead(lead))
	if err != nil {
		n.logger.Error().Err(err).Str("lead_id", lead.ID).Msg("build notify task")
		return
	}
	if err := n.publisher.Publish(ctx, task); err != nil {
		n.logger.Warn().Err(err).Str("lead_id", lead.ID).Msg("queue lead notification failed")
	}
}
