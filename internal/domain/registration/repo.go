package registration

import (
	"context"
	"time"
)

type Repository interface {
	// LockEmail holds a transaction-scoped lock on email. It serializes
	// callers even when no token row exists yet.
	LockEmail(ctx context.Context, email string) error
	// PurgeExpired deletes staging rows and unverified tokens created at or
	// before cutoff.
	PurgeExpired(ctx context.Context, cutoff time.Time) error
	// LockToken returns the token row for email locked FOR UPDATE, or nil
	// when there is none.
	LockToken(ctx context.Context, email string) (*Token, error)
	UpsertToken(ctx context.Context, email, code string, now time.Time) error
	MarkVerified(ctx context.Context, email string, now time.Time) error
	DeleteToken(ctx context.Context, email string) error

	// LockStaging returns the staging row locked FOR UPDATE, or nil.
	LockStaging(ctx context.Context, email string) (*Staging, error)
	UpsertStaging(ctx context.Context, s *Staging) error
	DeleteStaging(ctx context.Context, email string) error
}
