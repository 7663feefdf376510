package store

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/confseat/confseat/internal/domain"
	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgconn"
	"github.com/jackc/pgx/v5/pgxpool"
)

const (
	lockMaxRetries = 3
	initialBackoff = 100 * time.Millisecond
)

// Tx is the set of statements available inside a conference-locked
// transaction. Every mutation that touches a conference's slots or
// waitlist goes through these.
type Tx interface {
	BookingForUpdate(ctx context.Context, bookingID int64) (domain.Booking, error)
	HasActiveBooking(ctx context.Context, userID string, confID int64) (bool, error)
	HasBlockingOverlap(ctx context.Context, userID string, start, end time.Time) (bool, error)
	CountStatus(ctx context.Context, confID int64, status string) (int64, error)
	MaxWaitlistPosition(ctx context.Context, confID int64) (int32, error)
	InsertBooking(ctx context.Context, b domain.Booking) (domain.Booking, error)
	AddAvailableSlots(ctx context.Context, confID int64, delta int32) error
	NextWaitlisted(ctx context.Context, confID int64) (*domain.Booking, error)
	MarkConfirmationPending(ctx context.Context, bookingID int64, deadline time.Time) error
	MarkWaitlistedTail(ctx context.Context, bookingID int64, position int32) error
	MarkConfirmed(ctx context.Context, bookingID int64) error
	MarkCanceled(ctx context.Context, bookingID int64, at time.Time) error
	CancelOverlappingWaitlisted(ctx context.Context, userID string, start, end time.Time, excludeConfID int64, at time.Time) (int64, error)
	CancelPreStart(ctx context.Context, confID int64, at time.Time) (int64, error)
}

type Store struct {
	Pool *pgxpool.Pool
}

func New(pool *pgxpool.Pool) *Store {
	return &Store{Pool: pool}
}

// Open builds a pgx pool with the configured bounds.
func Open(ctx context.Context, databaseURL string, maxConns, minIdle int32) (*pgxpool.Pool, error) {
	pc, err := pgxpool.ParseConfig(databaseURL)
	if err != nil {
		return nil, err
	}
	pc.MaxConns = maxConns
	pc.MinIdleConns = minIdle
	return pgxpool.NewWithConfig(ctx, pc)
}

// WithConferenceLock runs fn inside a transaction that holds an exclusive
// row lock on the conference, serializing all slot/waitlist mutations for
// it. Serialization failures are retried with exponential backoff.
func (s *Store) WithConferenceLock(ctx context.Context, confID int64, fn func(tx Tx, conf domain.Conference) error) error {
	return withRetry(func() error {
		return s.runLocked(ctx, confID, fn)
	})
}

func withRetry(op func() error) error {
	backoff := initialBackoff
	var err error
	for attempt := 0; attempt < lockMaxRetries; attempt++ {
		err = op()
		if !isRetryable(err) {
			return err
		}
		time.Sleep(backoff)
		backoff *= 2
	}
	return fmt.Errorf("conference transaction failed after retries: %w", err)
}

func (s *Store) runLocked(ctx context.Context, confID int64, fn func(tx Tx, conf domain.Conference) error) error {
	tx, err := s.Pool.BeginTx(ctx, pgx.TxOptions{})
	if err != nil {
		return err
	}
	defer tx.Rollback(ctx)

	conf, err := conferenceForUpdate(ctx, tx, confID)
	if err != nil {
		return err
	}

	if err := fn(&queries{tx: tx}, conf); err != nil {
		return err
	}
	return tx.Commit(ctx)
}

func conferenceForUpdate(ctx context.Context, tx pgx.Tx, confID int64) (domain.Conference, error) {
	row := tx.QueryRow(ctx, `
		SELECT conference_id, name, location, start_timestamp, end_timestamp, total_slots, available_slots, created_at
		FROM conferences
		WHERE conference_id = $1
		FOR UPDATE`, confID)
	return scanConference(row)
}

func isRetryable(err error) bool {
	var pgErr *pgconn.PgError
	if errors.As(err, &pgErr) {
		// serialization_failure / deadlock_detected
		return pgErr.Code == "40001" || pgErr.Code == "40P01"
	}
	return false
}

// mapError normalizes driver errors into domain sentinels.
func mapError(err error) error {
	if err == nil {
		return nil
	}
	if errors.Is(err, pgx.ErrNoRows) {
		return domain.ErrNotFound
	}
	var pgErr *pgconn.PgError
	if errors.As(err, &pgErr) && pgErr.Code == "23505" {
		return domain.ErrDuplicate
	}
	return err
}
