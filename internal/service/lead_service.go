package service

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/google/uuid"
	"github.com/rs/zerolog"

	"github.com/Awaisee01/fund-sub001/internal/ids"
	"github.com/Awaisee01/fund-sub001/internal/models"
	"github.com/Awaisee01/fund-sub001/internal/ratelimit"
	"github.com/Awaisee01/fund-sub001/internal/tracking"
	"github.com/Awaisee01/fund-sub001/internal/validation"
)

// ValidationError carries field-level messages the user can correct.
type ValidationError struct {
	Fields []validation.FieldError
}

func (e *ValidationError) Error() string {
	if len(e.Fields) == 0 {
		return "validation failed"
	}
	parts := make([]string, 0, len(e.Fields))
	for _, f := range e.Fields {
		parts = append(parts, f.Field+": "+f.Message)
	}
	return "validation failed: " + strings.Join(parts, "; ")
}

type LeadService struct {
	leads    LeadStore
	sessions VisitorSessionStore
	limiter  ratelimit.Limiter
	guard    ratelimit.SubmissionGuard
	tracker  EventTracker
	notifier LeadNotifier
	log      zerolog.Logger
	now      func() time.Time
}

func NewLeadService(
	leads LeadStore,
	sessions VisitorSessionStore,
	limiter ratelimit.Limiter,
	guard ratelimit.SubmissionGuard,
	tracker EventTracker,
	notifier LeadNotifier,
	log zerolog.Logger,
) *LeadService {
	return &LeadService{
		leads:    leads,
		sessions: sessions,
		limiter:  limiter,
		guard:    guard,
		tracker:  tracker,
		notifier: notifier,
		log:      log,
		now:      time.Now,
	}
}

func (s *LeadService) WithClock(now func() time.Time) *LeadService {
	s.now = now
	return s
}

type SubmitInput struct {
	Submission validation.Submission
	VisitorID  string
	SessionID  string
	// RateKey is the limiter identifier for this caller.
	RateKey string
	// FormKey identifies the form instance for the submission guard. When
	// empty it is derived from the service type and visitor.
	FormKey   string
	EventID   string
	ClientIP  string
	UserAgent string
	SourceURL string
	FBP       string
	FBC       string
}

type SubmitResult struct {
	Lead  models.Lead
	Pixel tracking.PixelEvent
}

// Submit validates, cleans and stores a public form submission, then fires
// the best-effort side effects. Only a storage failure fails the call after
// the guards pass.
func (s *LeadService) Submit(ctx context.Context, input SubmitInput) (SubmitResult, error) {
	if res := validation.Validate(input.Submission); !res.IsValid {
		return SubmitResult{}, &ValidationError{Fields: res.Errors}
	}

	sub := validation.SanitizeSubmission(input.Submission)
	if res := validation.Validate(sub); !res.IsValid {
		return SubmitResult{}, &ValidationError{Fields: res.Errors}
	}

	serviceType := models.ServiceType(sub.ServiceType)
	formData, fieldErrs, err := validation.NormalizeFormData(serviceType, sub.FormData)
	if err != nil {
		return SubmitResult{}, err
	}
	if len(fieldErrs) > 0 {
		return SubmitResult{}, &ValidationError{Fields: fieldErrs}
	}

	if err := s.guard.Check(ctx, s.formKey(input, serviceType)); err != nil {
		if errors.Is(err, ratelimit.ErrTooSoon) || errors.Is(err, ratelimit.ErrTooManyAttempts) {
			return SubmitResult{}, err
		}
		s.log.Warn().Err(err).Msg("submission guard unavailable")
	}

	rateKey := input.RateKey
	if rateKey == "" {
		rateKey = "form_submission"
	}
	allowed, err := s.limiter.Allow(ctx, rateKey)
	if err != nil {
		s.log.Warn().Err(err).Str("key", rateKey).Msg("rate limiter unavailable")
	} else if !allowed {
		return SubmitResult{}, ratelimit.ErrRateLimited
	}

	eventID := input.EventID
	if eventID == "" {
		eventID = uuid.NewString()
	}

	lead := models.Lead{
		ID:              ids.New(),
		Name:            sub.Name,
		Email:           optional(strings.ToLower(sub.Email)),
		Phone:           optional(sub.Phone),
		Postcode:        optional(validation.NormalizePostcode(sub.Postcode)),
		Address:         optional(sub.Address),
		ServiceType:     serviceType,
		FormData:        formData,
		Attribution:     sub.Attribution,
		VisitorID:       optional(input.VisitorID),
		SessionID:       optional(input.SessionID),
		TrackingEventID: &eventID,
		Status:          models.LeadStatusNew,
	}
	if lead.Attribution.UserAgent == "" {
		lead.Attribution.UserAgent = input.UserAgent
	}

	if err := s.leads.Create(ctx, &lead); err != nil {
		return SubmitResult{}, fmt.Errorf("store lead: %w", err)
	}

	logger := s.log.With().Str("lead_id", lead.ID).Str("service_type", string(serviceType)).Logger()
	logger.Info().Msg("lead stored")

	if input.SessionID != "" {
		if err := s.sessions.MarkConverted(ctx, input.SessionID); err != nil {
			logger.Warn().Err(err).Str("session_id", input.SessionID).Msg("mark session converted failed")
		}
	}

	first, last := tracking.SplitName(lead.Name)
	pixel := s.tracker.TrackEvent(ctx, tracking.EventLead,
		tracking.UserData{
			Email:      sub.Email,
			Phone:      sub.Phone,
			FirstName:  first,
			LastName:   last,
			Postcode:   sub.Postcode,
			Country:    "gb",
			ExternalID: input.VisitorID,
		},
		map[string]any{
			"content_name":     string(serviceType),
			"content_category": "lead_form",
			"lead_id":          lead.ID,
		},
		tracking.Meta{
			EventID:     eventID,
			SourceURL:   input.SourceURL,
			ClientIP:    input.ClientIP,
			UserAgent:   input.UserAgent,
			FBP:         input.FBP,
			FBC:         input.FBC,
			Attribution: lead.Attribution,
		},
	)

	s.notifier.Notify(ctx, lead)

	return SubmitResult{Lead: lead, Pixel: pixel}, nil
}

func (s *LeadService) formKey(input SubmitInput, serviceType models.ServiceType) string {
	if input.FormKey != "" {
		return input.FormKey
	}
	who := input.VisitorID
	if who == "" {
		who = input.ClientIP
	}
	return string(serviceType) + ":" + who
}

func optional(s string) *string {
	s = strings.TrimSpace(s)
	if s == "" {
		return nil
	}
	return &s
}
