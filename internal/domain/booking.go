package domain

import "time"

// Booking status values as they appear on the wire and in the database.
const (
	StatusConfirmed           = "CONFIRMED"
	StatusWaitlisted          = "WAITLISTED"
	StatusCanceled            = "CANCELED"
	StatusConfirmationPending = "ConfirmationPending"
)

type User struct {
	UserID string
	Topics []string
}

type Conference struct {
	ID             int64
	Name           string
	Location       string
	StartTimestamp time.Time
	EndTimestamp   time.Time
	TotalSlots     int32
	AvailableSlots int32
	CreatedAt      time.Time
}

// StartedBy reports whether the conference has started at the given instant.
// The start instant itself counts as started.
func (c Conference) StartedBy(now time.Time) bool {
	return !now.Before(c.StartTimestamp)
}

type Booking struct {
	ID                   int64
	ConferenceID         int64
	UserID               string
	Status               string
	CreatedAt            time.Time
	WaitlistPosition     *int32
	CanConfirm           bool
	ConfirmationDeadline *time.Time
	CanceledAt           *time.Time
}

// Blocks reports whether this booking holds (or reserves) a seat, which
// makes it block further bookings of the same user on overlapping
// conferences. Waitlisted bookings do not block.
func (b Booking) Blocks() bool {
	return b.Status == StatusConfirmed || b.Status == StatusConfirmationPending
}

// Overlaps reports whether two half-open intervals [aStart, aEnd) and
// [bStart, bEnd) intersect. Back-to-back conferences do not overlap.
func Overlaps(aStart, aEnd, bStart, bEnd time.Time) bool {
	return aStart.Before(bEnd) && bStart.Before(aEnd)
}
