package models

import "time"

type VisitorSession struct {
	ID             string
	VisitorID      string
	StartedAt      time.Time
	LastActivityAt time.Time
	EndedAt        *time.Time
	PagesVisited   int
	LandingPage    string
	Attribution    Attribution
	Converted      bool
}

// Open reports whether the session has not been closed and has seen activity
// within timeout.
func (s VisitorSession) Open(now time.Time, timeout time.Duration) bool {
	if s.EndedAt != nil {
		return false
	}
	return now.Sub(s.LastActivityAt) <= timeout
}
