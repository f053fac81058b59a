package service

import (
	"context"
	"errors"
	"time"

	"github.com/rs/zerolog"

	"github.com/Awaisee01/fund-sub001/internal/ids"
	"github.com/Awaisee01/fund-sub001/internal/models"
	"github.com/Awaisee01/fund-sub001/internal/repository"
)

const DefaultInactivityTimeout = 30 * time.Minute

var ErrSessionExpired = errors.New("visitor session expired")

// VisitorSessionService tracks anonymous browsing sessions. A visitor has at
// most one open session; one idle longer than the inactivity timeout is
// closed and replaced.
type VisitorSessionService struct {
	sessions VisitorSessionStore
	timeout  time.Duration
	log      zerolog.Logger
	now      func() time.Time
}

func NewVisitorSessionService(sessions VisitorSessionStore, timeout time.Duration, log zerolog.Logger) *VisitorSessionService {
	if timeout <= 0 {
		timeout = DefaultInactivityTimeout
	}
	return &VisitorSessionService{sessions: sessions, timeout: timeout, log: log, now: time.Now}
}

func (s *VisitorSessionService) WithClock(now func() time.Time) *VisitorSessionService {
	s.now = now
	return s
}

type StartSessionInput struct {
	VisitorID   string
	SessionID   string
	LandingPage string
	Attribution models.Attribution
}

type StartSessionResult struct {
	Session models.VisitorSession
	Resumed bool
}

// Start resumes the caller's open session or begins a new one. A visitor id
// is minted when the browser has none yet.
func (s *VisitorSessionService) Start(ctx context.Context, input StartSessionInput) (StartSessionResult, error) {
	now := s.now()
	visitorID := input.VisitorID
	if visitorID == "" {
		visitorID = ids.New()
	}

	if input.VisitorID != "" {
		resumed, ok, err := s.resume(ctx, visitorID, input.SessionID, now)
		if err != nil {
			return StartSessionResult{}, err
		}
		if ok {
			return StartSessionResult{Session: resumed, Resumed: true}, nil
		}
	}

	session := models.VisitorSession{
		ID:             ids.New(),
		VisitorID:      visitorID,
		StartedAt:      now,
		LastActivityAt: now,
		PagesVisited:   1,
		LandingPage:    input.LandingPage,
		Attribution:    input.Attribution,
	}
	if err := s.sessions.Create(ctx, &session); err != nil {
		if !repository.IsConstraint(err) {
			return StartSessionResult{}, err
		}
		// Another tab opened a session for this visitor first; join it.
		joined, ok, rerr := s.resume(ctx, visitorID, "", now)
		if rerr != nil {
			return StartSessionResult{}, rerr
		}
		if !ok {
			return StartSessionResult{}, err
		}
		return StartSessionResult{Session: joined, Resumed: true}, nil
	}
	return StartSessionResult{Session: session}, nil
}

func (s *VisitorSessionService) resume(ctx context.Context, visitorID, sessionID string, now time.Time) (models.VisitorSession, bool, error) {
	open, err := s.sessions.FindOpenByVisitor(ctx, visitorID)
	if errors.Is(err, repository.ErrSessionNotFound) {
		return models.VisitorSession{}, false, nil
	}
	if err != nil {
		return models.VisitorSession{}, false, err
	}

	if open.Open(now, s.timeout) && (sessionID == "" || sessionID == open.ID) {
		if err := s.sessions.Touch(ctx, open.ID, now); err != nil {
			return models.VisitorSession{}, false, err
		}
		open.LastActivityAt = now
		return open, true, nil
	}

	// Stale or superseded: close it at its last activity so the new one can open.
	if err := s.sessions.End(ctx, open.ID, open.LastActivityAt); err != nil {
		return models.VisitorSession{}, false, err
	}
	return models.VisitorSession{}, false, nil
}

func (s *VisitorSessionService) active(ctx context.Context, id string) (models.VisitorSession, error) {
	session, err := s.sessions.GetByID(ctx, id)
	if err != nil {
		return models.VisitorSession{}, err
	}
	if !session.Open(s.now(), s.timeout) {
		return models.VisitorSession{}, ErrSessionExpired
	}
	return session, nil
}

func (s *VisitorSessionService) Heartbeat(ctx context.Context, id string) error {
	if _, err := s.active(ctx, id); err != nil {
		return err
	}
	return s.sessions.Touch(ctx, id, s.now())
}

func (s *VisitorSessionService) PageView(ctx context.Context, id string) error {
	if _, err := s.active(ctx, id); err != nil {
		return err
	}
	return s.sessions.IncrementPages(ctx, id, s.now())
}

// End closes the session. Ending an already closed session is a no-op.
func (s *VisitorSessionService) End(ctx context.Context, id string) error {
	if _, err := s.sessions.GetByID(ctx, id); err != nil {
		return err
	}
	return s.sessions.End(ctx, id, s.now())
}

func (s *VisitorSessionService) MarkConverted(ctx context.Context, id string) error {
	return s.sessions.MarkConverted(ctx, id)
}

// CloseIdle ends every session idle past the inactivity timeout.
func (s *VisitorSessionService) CloseIdle(ctx context.Context) (int64, error) {
	closed, err := s.sessions.EndIdle(ctx, s.now().Add(-s.timeout))
	if err != nil {
		return 0, err
	}
	if closed > 0 {
		s.log.Info().Int64("closed", closed).Msg("idle visitor sessions closed")
	}
	return closed, nil
}
