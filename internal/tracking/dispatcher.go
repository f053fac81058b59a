// Package tracking fans conversion events out to the browser pixel and the
// server-side conversions API under one shared event id.
package tracking

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/google/uuid"
	"github.com/rs/zerolog"

	"github.com/Awaisee01/fund-sub001/internal/models"
	"github.com/Awaisee01/fund-sub001/internal/queue"
)

const (
	TaskConversion = "conversion"

	EventLead        = "Lead"
	EventPageView    = "PageView"
	EventViewContent = "ViewContent"

	actionSourceWebsite = "website"
)

var ErrMissingEventName = errors.New("event name is required")

type TaskPublisher interface {
	Publish(ctx context.Context, task queue.Task) error
}

// Meta is request context attached to an event.
type Meta struct {
	EventID     string
	SourceURL   string
	ClientIP    string
	UserAgent   string
	FBP         string
	FBC         string
	Attribution models.Attribution
}

// PixelEvent is what the browser fires through the client pixel. EventID is
// the same id sent server-side, so the platform counts the pair once.
type PixelEvent struct {
	Name       string         `json:"name"`
	EventID    string         `json:"eventId"`
	CustomData map[string]any `json:"customData,omitempty"`
}

// ConversionTask is the payload of a detached conversion delivery.
type ConversionTask struct {
	Events []ServerEvent `json:"events"`
}

type Dispatcher struct {
	enabled   bool
	publisher TaskPublisher
	deduper   Deduper
	sender    EventSender
	logger    zerolog.Logger
	now       func() time.Time
}

func NewDispatcher(enabled bool, publisher TaskPublisher, deduper Deduper, sender EventSender, logger zerolog.Logger) *Dispatcher {
	return &Dispatcher{
		enabled:   enabled,
		publisher: publisher,
		deduper:   deduper,
		sender:    sender,
		logger:    logger,
		now:       time.Now,
	}
}

func (d *Dispatcher) WithClock(now func() time.Time) *Dispatcher {
	d.now = now
	return d
}

// TrackEvent merges attribution into customData, assigns the shared event id
// and queues the hashed server event. The returned PixelEvent is always
// usable; delivery failures are logged and never returned.
func (d *Dispatcher) TrackEvent(ctx context.Context, name string, user UserData, customData map[string]any, meta Meta) PixelEvent {
	custom := mergeAttribution(customData, meta.Attribution)
	eventID := meta.EventID
	if eventID == "" {
		eventID = uuid.NewString()
	}
	pixel := PixelEvent{Name: name, EventID: eventID, CustomData: custom}

	if !d.enabled {
		return pixel
	}

	logger := d.logger.With().Str("event", name).Str("event_id", eventID).Logger()

	claimed, err := d.claim(ctx, name, eventID)
	if err != nil {
		logger.Warn().Err(err).Msg("tracking dedupe unavailable")
		return pixel
	}
	if !claimed {
		logger.Debug().Msg("server event already dispatched")
		return pixel
	}

	task, err := queue.NewTask(TaskConversion, ConversionTask{
		Events: []ServerEvent{d.serverEvent(name, eventID, user, custom, meta)},
	})
	if err != nil {
		logger.Error().Err(err).Msg("build conversion task")
		return pixel
	}
	if err := d.publisher.Publish(ctx, task); err != nil {
		logger.Warn().Err(err).Msg("queue conversion event failed")
		d.release(ctx, name, eventID)
	}
	return pixel
}

// RelayRequest is a browser-originated conversions request. PII is raw and
// is hashed before it leaves this process.
type RelayRequest struct {
	EventName  string
	User       UserData
	CustomData map[string]any
	Meta       Meta
}

// Relay sends one event synchronously and returns the platform acknowledgement.
func (d *Dispatcher) Relay(ctx context.Context, req RelayRequest) (Ack, error) {
	if req.EventName == "" {
		return Ack{}, ErrMissingEventName
	}
	if !d.enabled {
		return Ack{}, ErrNotConfigured
	}

	eventID := req.Meta.EventID
	if eventID == "" {
		eventID = uuid.NewString()
	}

	claimed, err := d.claim(ctx, req.EventName, eventID)
	if err != nil {
		return Ack{}, fmt.Errorf("dedupe event: %w", err)
	}
	if !claimed {
		return Ack{Duplicate: true}, nil
	}

	custom := mergeAttribution(req.CustomData, req.Meta.Attribution)
	event := d.serverEvent(req.EventName, eventID, req.User, custom, req.Meta)
	ack, err := d.sender.Send(ctx, []ServerEvent{event})
	if err != nil {
		d.release(ctx, req.EventName, eventID)
		return Ack{}, err
	}
	return ack, nil
}

// Deliver is used by the worker to send a queued batch.
func (d *Dispatcher) Deliver(ctx context.Context, task ConversionTask) (Ack, error) {
	if len(task.Events) == 0 {
		return Ack{}, nil
	}
	return d.sender.Send(ctx, task.Events)
}

func (d *Dispatcher) claim(ctx context.Context, name, eventID string) (bool, error) {
	if d.deduper == nil {
		return true, nil
	}
	return d.deduper.Claim(ctx, name, eventID)
}

func (d *Dispatcher) release(ctx context.Context, name, eventID string) {
	if d.deduper == nil {
		return
	}
	if err := d.deduper.Release(ctx, name, eventID); err != nil {
		d.logger.Warn().Err(err).Str("event_id", eventID).Msg("release dedupe key failed")
	}
}

func (d *Dispatcher) serverEvent(name, eventID string, user UserData, custom map[string]any, meta Meta) ServerEvent {
	hashedUser := user.Hash()
	hashedUser.ClientIPAddress = meta.ClientIP
	hashedUser.ClientUserAgent = meta.UserAgent
	hashedUser.FBP = meta.FBP
	hashedUser.FBC = meta.FBC

	return ServerEvent{
		EventName:      name,
		EventTime:      eventTime(d.now()),
		EventID:        eventID,
		EventSourceURL: meta.SourceURL,
		ActionSource:   actionSourceWebsite,
		UserData:       hashedUser,
		CustomData:     custom,
	}
}

// mergeAttribution copies customData and adds the captured utm_* values
// without overwriting keys the caller set.
func mergeAttribution(customData map[string]any, attr models.Attribution) map[string]any {
	utm := attr.UTM()
	if len(customData) == 0 && len(utm) == 0 {
		return nil
	}
	out := make(map[string]any, len(customData)+len(utm))
	for k, v := range customData {
		out[k] = v
	}
	for k, v := range utm {
		if _, ok := out[k]; !ok {
			out[k] = v
		}
	}
	return out
}
