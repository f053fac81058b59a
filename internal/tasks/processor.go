package tasks

import (
	"context"
	"errors"
	"fmt"

	"github.com/rs/zerolog"

	"github.com/Awaisee01/fund-sub001/internal/notify"
	"github.com/Awaisee01/fund-sub001/internal/queue"
	"github.com/Awaisee01/fund-sub001/internal/tracking"
)

type ConversionDeliverer interface {
	Deliver(ctx context.Context, task tracking.ConversionTask) (tracking.Ack, error)
}

type LeadMailer interface {
	SendLeadNotification(ctx context.Context, summary notify.LeadSummary) error
}

// Processor executes detached tasks read from the task stream. A returned
// error leaves the message pending for redelivery.
type Processor struct {
	conversions ConversionDeliverer
	mailer      LeadMailer
	logger      zerolog.Logger
}

func NewProcessor(conversions ConversionDeliverer, mailer LeadMailer, logger zerolog.Logger) *Processor {
	return &Processor{
		conversions: conversions,
		mailer:      mailer,
		logger:      logger,
	}
}

func (p *Processor) Handle(ctx context.Context, task queue.Task) error {
	switch task.Type {
	case tracking.TaskConversion:
		return p.handleConversion(ctx, task)
	case notify.TaskNotify:
		return p.handleNotify(ctx, task)
	default:
		p.logger.Warn().Str("type", task.Type).Msg("unknown task type")
		return nil
	}
}

func (p *Processor) handleConversion(ctx context.Context, task queue.Task) error {
	var payload tracking.ConversionTask
	if err := task.Decode(&payload); err != nil {
		p.logger.Error().Err(err).Msg("discarding undecodable conversion task")
		return nil
	}

	ack, err := p.conversions.Deliver(ctx, payload)
	if errors.Is(err, tracking.ErrNotConfigured) {
		p.logger.Debug().Msg("conversions api not configured, skipping")
		return nil
	}
	if err != nil {
		return fmt.Errorf("deliver conversion: %w", err)
	}

	p.logger.Info().
		Int("events_received", ack.EventsReceived).
		Str("fbtrace_id", ack.FBTraceID).
		Int("attempt", task.Attempt).
		Msg("conversion delivered")
	return nil
}

func (p *Processor) handleNotify(ctx context.Context, task queue.Task) error {
	var summary notify.LeadSummary
	if err := task.Decode(&summary); err != nil {
		p.logger.Error().Err(err).Msg("discarding undecodable notify task")
		return nil
	}

	err := p.mailer.SendLeadNotification(ctx, summary)
	if errors.Is(err, notify.ErrNotConfigured) {
		p.logger.Warn().Str("lead_id", summary.LeadID).Msg("email not configured, lead notification skipped")
		return nil
	}
	if err != nil {
		return fmt.Errorf("send lead notification: %w", err)
	}

	p.logger.Info().Str("lead_id", summary.LeadID).Int("attempt", task.Attempt).Msg("lead notification sent")
	return nil
}
