package bus

import "time"

// Messages carry the minimum identifiers needed to re-read authoritative
// state from the store. EventID is for log correlation only.

type SlotFreedMessage struct {
	EventID      string `json:"event_id"`
	ConferenceID int64  `json:"conference_id"`
}

type ConfirmationExpiredMessage struct {
	EventID      string    `json:"event_id"`
	BookingID    int64     `json:"booking_id"`
	ConferenceID int64     `json:"conference_id"`
	Deadline     time.Time `json:"deadline"`
}

type ConferenceStartMessage struct {
	EventID        string    `json:"event_id"`
	ConferenceID   int64     `json:"conference_id"`
	ConferenceName string    `json:"conference_name"`
	StartTimestamp time.Time `json:"start_timestamp"`
}
