package repository

import (
	"context"
	"errors"
	"fmt"
	"net"

	"github.com/jackc/pgx/v5/pgconn"
)

var (
	ErrLeadNotFound    = errors.New("lead not found")
	ErrSessionNotFound = errors.New("session not found")
	ErrAdminNotFound   = errors.New("admin not found")
)

type ErrorKind string

const (
	// KindConstraint means the store rejected the write: a check, unique or
	// not-null constraint, or a malformed value.
	KindConstraint ErrorKind = "constraint"
	// KindUnavailable means the store could not be reached in time.
	KindUnavailable ErrorKind = "unavailable"
	KindUnknown     ErrorKind = "unknown"
)

type DatabaseError struct {
	Kind ErrorKind
	Op   string
	Err  error
}

func (e *DatabaseError) Error() string {
	return fmt.Sprintf("%s: %s: %v", e.Op, e.Kind, e.Err)
}

func (e *DatabaseError) Unwrap() error {
	return e.Err
}

func IsConstraint(err error) bool {
	var dbErr *DatabaseError
	return errors.As(err, &dbErr) && dbErr.Kind == KindConstraint
}

func IsUnavailable(err error) bool {
	var dbErr *DatabaseError
	return errors.As(err, &dbErr) && dbErr.Kind == KindUnavailable
}

// wrapErr classifies err for op. nil stays nil and sentinel not-found errors
// pass through untouched.
func wrapErr(op string, err error) error {
	if err == nil {
		return nil
	}
	if errors.Is(err, ErrLeadNotFound) || errors.Is(err, ErrSessionNotFound) || errors.Is(err, ErrAdminNotFound) {
		return err
	}
	return &DatabaseError{Kind: classify(err), Op: op, Err: err}
}

func classify(err error) ErrorKind {
	var pgErr *pgconn.PgError
	if errors.As(err, &pgErr) {
		if len(pgErr.Code) < 2 {
			return KindUnknown
		}
		switch pgErr.Code[:2] {
		case "22", "23":
			return KindConstraint
		case "08", "53", "57":
			return KindUnavailable
		}
		return KindUnknown
	}

	var connectErr *pgconn.ConnectError
	if errors.As(err, &connectErr) {
		return KindUnavailable
	}
	var netErr net.Error
	if errors.As(err, &netErr) {
		return KindUnavailable
	}
	if errors.Is(err, context.DeadlineExceeded) || pgconn.Timeout(err) {
		return KindUnavailable
	}
	return KindUnknown
}
