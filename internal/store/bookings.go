package store

import (
	"context"
	"errors"
	"time"

	"github.com/confseat/confseat/internal/domain"
	"github.com/jackc/pgx/v5"
)

const bookingColumns = `booking_id, conference_id, user_id, status, created_at, waitlist_position, can_confirm, confirmation_deadline, canceled_at`

func (s *Store) GetBooking(ctx context.Context, id int64) (domain.Booking, error) {
	row := s.Pool.QueryRow(ctx, `SELECT `+bookingColumns+` FROM bookings WHERE booking_id = $1`, id)
	b, err := scanBooking(row)
	return b, mapError(err)
}

func (s *Store) ListConferenceBookings(ctx context.Context, confID int64) ([]domain.Booking, error) {
	rows, err := s.Pool.Query(ctx, `
		SELECT `+bookingColumns+`
		FROM bookings
		WHERE conference_id = $1
		ORDER BY created_at, booking_id`, confID)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var out []domain.Booking
	for rows.Next() {
		b, err := scanBooking(rows)
		if err != nil {
			return nil, err
		}
		out = append(out, b)
	}
	return out, rows.Err()
}

// queries implements Tx on top of an open pgx transaction.
type queries struct {
	tx pgx.Tx
}

func (q *queries) BookingForUpdate(ctx context.Context, bookingID int64) (domain.Booking, error) {
	row := q.tx.QueryRow(ctx, `SELECT `+bookingColumns+` FROM bookings WHERE booking_id = $1 FOR UPDATE`, bookingID)
	b, err := scanBooking(row)
	return b, mapError(err)
}

func (q *queries) HasActiveBooking(ctx context.Context, userID string, confID int64) (bool, error) {
	var exists bool
	err := q.tx.QueryRow(ctx, `
		SELECT EXISTS (
			SELECT 1 FROM bookings
			WHERE user_id = $1 AND conference_id = $2 AND status <> $3
		)`, userID, confID, domain.StatusCanceled).Scan(&exists)
	return exists, err
}

// HasBlockingOverlap reports whether the user holds a Confirmed or
// ConfirmationPending booking on any conference whose [start, end)
// interval intersects the given one.
func (q *queries) HasBlockingOverlap(ctx context.Context, userID string, start, end time.Time) (bool, error) {
	var exists bool
	err := q.tx.QueryRow(ctx, `
		SELECT EXISTS (
			SELECT 1
			FROM bookings b
			JOIN conferences c ON c.conference_id = b.conference_id
			WHERE b.user_id = $1
			  AND b.status IN ($2, $3)
			  AND c.start_timestamp < $5
			  AND c.end_timestamp > $4
		)`, userID, domain.StatusConfirmed, domain.StatusConfirmationPending, start, end).Scan(&exists)
	return exists, err
}

func (q *queries) CountStatus(ctx context.Context, confID int64, status string) (int64, error) {
	var n int64
	err := q.tx.QueryRow(ctx, `SELECT count(*) FROM bookings WHERE conference_id = $1 AND status = $2`, confID, status).Scan(&n)
	return n, err
}

func (q *queries) MaxWaitlistPosition(ctx context.Context, confID int64) (int32, error) {
	var max int32
	err := q.tx.QueryRow(ctx, `
		SELECT COALESCE(max(waitlist_position), 0)
		FROM bookings
		WHERE conference_id = $1 AND status = $2`, confID, domain.StatusWaitlisted).Scan(&max)
	return max, err
}

func (q *queries) InsertBooking(ctx context.Context, b domain.Booking) (domain.Booking, error) {
	row := q.tx.QueryRow(ctx, `
		INSERT INTO bookings (conference_id, user_id, status, waitlist_position, can_confirm, confirmation_deadline)
		VALUES ($1, $2, $3, $4, $5, $6)
		RETURNING `+bookingColumns,
		b.ConferenceID, b.UserID, b.Status, b.WaitlistPosition, b.CanConfirm, b.ConfirmationDeadline)
	created, err := scanBooking(row)
	return created, mapError(err)
}

func (q *queries) AddAvailableSlots(ctx context.Context, confID int64, delta int32) error {
	tag, err := q.tx.Exec(ctx, `
		UPDATE conferences
		SET available_slots = available_slots + $2
		WHERE conference_id = $1
		  AND available_slots + $2 BETWEEN 0 AND total_slots`, confID, delta)
	if err != nil {
		return err
	}
	if tag.RowsAffected() == 0 {
		return errors.New("available_slots adjustment out of range")
	}
	return nil
}

func (q *queries) NextWaitlisted(ctx context.Context, confID int64) (*domain.Booking, error) {
	row := q.tx.QueryRow(ctx, `
		SELECT `+bookingColumns+`
		FROM bookings
		WHERE conference_id = $1 AND status = $2
		ORDER BY waitlist_position ASC
		LIMIT 1`, confID, domain.StatusWaitlisted)
	b, err := scanBooking(row)
	if errors.Is(err, pgx.ErrNoRows) {
		return nil, nil
	}
	if err != nil {
		return nil, err
	}
	return &b, nil
}

func (q *queries) MarkConfirmationPending(ctx context.Context, bookingID int64, deadline time.Time) error {
	_, err := q.tx.Exec(ctx, `
		UPDATE bookings
		SET status = $2, can_confirm = TRUE, confirmation_deadline = $3, waitlist_position = NULL
		WHERE booking_id = $1`, bookingID, domain.StatusConfirmationPending, deadline)
	return err
}

func (q *queries) MarkWaitlistedTail(ctx context.Context, bookingID int64, position int32) error {
	_, err := q.tx.Exec(ctx, `
		UPDATE bookings
		SET status = $2, can_confirm = FALSE, confirmation_deadline = NULL, waitlist_position = $3
		WHERE booking_id = $1`, bookingID, domain.StatusWaitlisted, position)
	return err
}

func (q *queries) MarkConfirmed(ctx context.Context, bookingID int64) error {
	_, err := q.tx.Exec(ctx, `
		UPDATE bookings
		SET status = $2, can_confirm = FALSE, confirmation_deadline = NULL, waitlist_position = NULL
		WHERE booking_id = $1`, bookingID, domain.StatusConfirmed)
	return err
}

func (q *queries) MarkCanceled(ctx context.Context, bookingID int64, at time.Time) error {
	_, err := q.tx.Exec(ctx, `
		UPDATE bookings
		SET status = $2, canceled_at = $3, can_confirm = FALSE, confirmation_deadline = NULL, waitlist_position = NULL
		WHERE booking_id = $1`, bookingID, domain.StatusCanceled, at)
	return err
}

// CancelOverlappingWaitlisted cancels the user's Waitlisted bookings on
// conferences overlapping [start, end), excluding the conference that
// just confirmed. Keeps the user free of queue entries they can no
// longer use.
func (q *queries) CancelOverlappingWaitlisted(ctx context.Context, userID string, start, end time.Time, excludeConfID int64, at time.Time) (int64, error) {
	tag, err := q.tx.Exec(ctx, `
		UPDATE bookings
		SET status = $6, canceled_at = $5, can_confirm = FALSE, confirmation_deadline = NULL, waitlist_position = NULL
		WHERE user_id = $1
		  AND status = $7
		  AND conference_id <> $2
		  AND conference_id IN (
			SELECT conference_id FROM conferences
			WHERE start_timestamp < $4 AND end_timestamp > $3
		  )`, userID, excludeConfID, start, end, at, domain.StatusCanceled, domain.StatusWaitlisted)
	if err != nil {
		return 0, err
	}
	return tag.RowsAffected(), nil
}

// CancelPreStart cancels every Waitlisted and ConfirmationPending booking
// of the conference. available_slots is left untouched: offers and the
// waitlist stop counting toward capacity once the conference has begun.
func (q *queries) CancelPreStart(ctx context.Context, confID int64, at time.Time) (int64, error) {
	tag, err := q.tx.Exec(ctx, `
		UPDATE bookings
		SET status = $4, canceled_at = $3, can_confirm = FALSE, confirmation_deadline = NULL, waitlist_position = NULL
		WHERE conference_id = $1
		  AND status IN ($2, $5)`,
		confID, domain.StatusWaitlisted, at, domain.StatusCanceled, domain.StatusConfirmationPending)
	if err != nil {
		return 0, err
	}
	return tag.RowsAffected(), nil
}

func scanBooking(row pgx.Row) (domain.Booking, error) {
	var b domain.Booking
	err := row.Scan(&b.ID, &b.ConferenceID, &b.UserID, &b.Status, &b.CreatedAt, &b.WaitlistPosition, &b.CanConfirm, &b.ConfirmationDeadline, &b.CanceledAt)
	return b, err
}
