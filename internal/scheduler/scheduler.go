// Package scheduler contains the booking state machine: the atomic
// admission decision, the waitlist promotion engine, confirmation-window
// cycling, the cancellation cascade, and the conference-start sweep.
//
// The scheduler holds no authoritative state. Every mutation runs inside
// a store transaction that locks the conference row, and bus messages
// are only hints to act: each handler re-reads state before deciding, so
// redelivery is harmless.
package scheduler

import (
	"context"
	"errors"
	"time"

	"github.com/confseat/confseat/internal/domain"
	"github.com/confseat/confseat/internal/store"
	"github.com/rs/zerolog/log"
)

// Store is the persistence surface the scheduler needs.
type Store interface {
	CreateUser(ctx context.Context, userID string, topics []string) error
	GetUser(ctx context.Context, userID string) (domain.User, error)
	CreateConference(ctx context.Context, conf domain.Conference, topics []string) (domain.Conference, error)
	GetConferenceByName(ctx context.Context, name string) (domain.Conference, error)
	GetConferenceByID(ctx context.Context, id int64) (domain.Conference, error)
	GetBooking(ctx context.Context, id int64) (domain.Booking, error)
	ListConferenceBookings(ctx context.Context, confID int64) ([]domain.Booking, error)
	WithConferenceLock(ctx context.Context, confID int64, fn func(tx store.Tx, conf domain.Conference) error) error
}

// Publisher is the bus surface the scheduler needs. The store commit
// always happens first; a failed publish is logged and tolerated because
// consumers derive truth from the store.
type Publisher interface {
	PublishSlotFreed(ctx context.Context, confID int64) error
	PublishConfirmationTimer(ctx context.Context, bookingID, confID int64, deadline time.Time) error
	PublishConferenceStart(ctx context.Context, confID int64, name string, startTS time.Time) error
}

type Scheduler struct {
	store  Store
	bus    Publisher
	window time.Duration
	now    func() time.Time
}

func New(st Store, bus Publisher, window time.Duration) *Scheduler {
	return &Scheduler{
		store:  st,
		bus:    bus,
		window: window,
		now:    time.Now,
	}
}

// canAdmitDirect is the bypass-protection rule: a new booking may only
// be admitted Confirmed when a slot is free AND nobody holds an
// outstanding offer AND nobody is waiting. Otherwise it joins the tail.
func canAdmitDirect(availableSlots int32, pending, waitlisted int64) bool {
	return availableSlots > 0 && pending == 0 && waitlisted == 0
}

// RegisterUser stores a new user with its interest topics.
func (s *Scheduler) RegisterUser(ctx context.Context, userID string, topics []string) error {
	return s.store.CreateUser(ctx, userID, topics)
}

// CreateConference stores the conference and schedules its start event
// on the bus so any worker can run the sweep when it begins.
func (s *Scheduler) CreateConference(ctx context.Context, conf domain.Conference, topics []string) error {
	created, err := s.store.CreateConference(ctx, conf, topics)
	if err != nil {
		return err
	}
	if err := s.bus.PublishConferenceStart(ctx, created.ID, created.Name, created.StartTimestamp); err != nil {
		// The admission precondition (now < start) still refuses late
		// bookings; only the sweep of pre-start leftovers is delayed
		// until the message can be republished.
		log.Error().Err(err).Str("conference", created.Name).Msg("failed to schedule conference start event")
	}
	return nil
}

// Book admits a booking request: Confirmed when the bypass-protection
// rule allows it, Waitlisted at the tail otherwise.
func (s *Scheduler) Book(ctx context.Context, userID, conferenceName string) (domain.Booking, error) {
	if _, err := s.store.GetUser(ctx, userID); err != nil {
		return domain.Booking{}, err
	}
	conf, err := s.store.GetConferenceByName(ctx, conferenceName)
	if err != nil {
		return domain.Booking{}, err
	}

	var booked domain.Booking
	err = s.store.WithConferenceLock(ctx, conf.ID, func(tx store.Tx, conf domain.Conference) error {
		now := s.now()
		if conf.StartedBy(now) {
			return domain.ErrConferenceStarted
		}

		active, err := tx.HasActiveBooking(ctx, userID, conf.ID)
		if err != nil {
			return err
		}
		if active {
			return domain.ErrDuplicate
		}

		blocked, err := tx.HasBlockingOverlap(ctx, userID, conf.StartTimestamp, conf.EndTimestamp)
		if err != nil {
			return err
		}
		if blocked {
			return domain.ErrOverlap
		}

		pending, err := tx.CountStatus(ctx, conf.ID, domain.StatusConfirmationPending)
		if err != nil {
			return err
		}
		waiting, err := tx.CountStatus(ctx, conf.ID, domain.StatusWaitlisted)
		if err != nil {
			return err
		}

		if canAdmitDirect(conf.AvailableSlots, pending, waiting) {
			booked, err = tx.InsertBooking(ctx, domain.Booking{
				ConferenceID: conf.ID,
				UserID:       userID,
				Status:       domain.StatusConfirmed,
			})
			if err != nil {
				return err
			}
			if err := tx.AddAvailableSlots(ctx, conf.ID, -1); err != nil {
				return err
			}
			// A confirmed seat makes the user's waitlist entries on
			// overlapping conferences useless.
			_, err = tx.CancelOverlappingWaitlisted(ctx, userID, conf.StartTimestamp, conf.EndTimestamp, conf.ID, now)
			return err
		}

		max, err := tx.MaxWaitlistPosition(ctx, conf.ID)
		if err != nil {
			return err
		}
		pos := max + 1
		booked, err = tx.InsertBooking(ctx, domain.Booking{
			ConferenceID:     conf.ID,
			UserID:           userID,
			Status:           domain.StatusWaitlisted,
			WaitlistPosition: &pos,
		})
		return err
	})
	if err != nil {
		return domain.Booking{}, err
	}

	log.Info().
		Int64("booking_id", booked.ID).
		Str("user_id", userID).
		Str("conference", conferenceName).
		Str("status", booked.Status).
		Msg("booking admitted")
	return booked, nil
}

// Confirm turns an outstanding offer into a Confirmed booking. Ownership
// is checked before any state is revealed.
func (s *Scheduler) Confirm(ctx context.Context, bookingID int64, userID string) error {
	b, err := s.store.GetBooking(ctx, bookingID)
	if err != nil {
		return err
	}
	if b.UserID != userID {
		return domain.ErrAccessDenied
	}

	var expired bool
	err = s.store.WithConferenceLock(ctx, b.ConferenceID, func(tx store.Tx, conf domain.Conference) error {
		cur, err := tx.BookingForUpdate(ctx, bookingID)
		if err != nil {
			return err
		}
		if cur.Status != domain.StatusConfirmationPending || !cur.CanConfirm {
			return domain.ErrInvalidState
		}

		now := s.now()
		if conf.StartedBy(now) {
			return domain.ErrConferenceStarted
		}
		if cur.ConfirmationDeadline != nil && now.After(*cur.ConfirmationDeadline) {
			// The window elapsed but the expiry event has not been
			// processed yet: cycle the offer to the tail here.
			if err := s.cycleToTail(ctx, tx, conf.ID, bookingID); err != nil {
				return err
			}
			expired = true
			return nil
		}

		if err := tx.MarkConfirmed(ctx, bookingID); err != nil {
			return err
		}
		// Slot accounting is untouched: the offer already held the slot.
		_, err = tx.CancelOverlappingWaitlisted(ctx, userID, conf.StartTimestamp, conf.EndTimestamp, conf.ID, now)
		return err
	})
	if err != nil {
		return err
	}

	if expired {
		if perr := s.Promote(ctx, b.ConferenceID); perr != nil {
			log.Error().Err(perr).Int64("conference_id", b.ConferenceID).Msg("promotion after inline expiry failed")
		}
		return domain.ErrExpired
	}

	log.Info().Int64("booking_id", bookingID).Str("user_id", userID).Msg("booking confirmed")
	return nil
}

// Cancel cancels a booking. A Confirmed or ConfirmationPending
// cancellation frees the slot and nudges the promotion engine through
// the bus; a Waitlisted cancellation just leaves the queue (positions of
// the remaining waiters are not compacted).
func (s *Scheduler) Cancel(ctx context.Context, bookingID int64) error {
	b, err := s.store.GetBooking(ctx, bookingID)
	if err != nil {
		return err
	}

	var freedSlot bool
	err = s.store.WithConferenceLock(ctx, b.ConferenceID, func(tx store.Tx, conf domain.Conference) error {
		cur, err := tx.BookingForUpdate(ctx, bookingID)
		if err != nil {
			return err
		}
		switch cur.Status {
		case domain.StatusCanceled:
			return domain.ErrAlreadyCanceled
		case domain.StatusConfirmed, domain.StatusConfirmationPending:
			if err := tx.MarkCanceled(ctx, bookingID, s.now()); err != nil {
				return err
			}
			if err := tx.AddAvailableSlots(ctx, conf.ID, 1); err != nil {
				return err
			}
			freedSlot = true
			return nil
		default: // Waitlisted
			return tx.MarkCanceled(ctx, bookingID, s.now())
		}
	})
	if err != nil {
		return err
	}

	log.Info().Int64("booking_id", bookingID).Bool("slot_freed", freedSlot).Msg("booking canceled")

	if freedSlot {
		if err := s.bus.PublishSlotFreed(ctx, b.ConferenceID); err != nil {
			log.Error().Err(err).Int64("conference_id", b.ConferenceID).Msg("failed to publish slot freed event")
		}
	}
	return nil
}

// BookingStatus returns the booking together with its conference name.
func (s *Scheduler) BookingStatus(ctx context.Context, bookingID int64) (domain.Booking, string, error) {
	b, err := s.store.GetBooking(ctx, bookingID)
	if err != nil {
		return domain.Booking{}, "", err
	}
	conf, err := s.store.GetConferenceByID(ctx, b.ConferenceID)
	if err != nil {
		return domain.Booking{}, "", err
	}
	return b, conf.Name, nil
}

// ConferenceBookings lists all bookings of the conference.
func (s *Scheduler) ConferenceBookings(ctx context.Context, name string) ([]domain.Booking, error) {
	conf, err := s.store.GetConferenceByName(ctx, name)
	if err != nil {
		return nil, err
	}
	return s.store.ListConferenceBookings(ctx, conf.ID)
}

// Promote moves the FIFO head of the waitlist to ConfirmationPending,
// reserving the freed slot for it, and schedules the expiry timer.
// Exactly one waiter is promoted per freed slot because the decrement
// commits in the same conference-locked transaction as the status flip.
func (s *Scheduler) Promote(ctx context.Context, confID int64) error {
	var offered *domain.Booking
	var deadline time.Time
	err := s.store.WithConferenceLock(ctx, confID, func(tx store.Tx, conf domain.Conference) error {
		if conf.AvailableSlots <= 0 {
			return nil
		}
		next, err := tx.NextWaitlisted(ctx, conf.ID)
		if err != nil {
			return err
		}
		if next == nil {
			return nil
		}
		deadline = s.now().Add(s.window)
		if err := tx.MarkConfirmationPending(ctx, next.ID, deadline); err != nil {
			return err
		}
		if err := tx.AddAvailableSlots(ctx, conf.ID, -1); err != nil {
			return err
		}
		offered = next
		return nil
	})
	if err != nil || offered == nil {
		return err
	}

	log.Info().
		Int64("booking_id", offered.ID).
		Int64("conference_id", confID).
		Time("deadline", deadline).
		Msg("waitlist head promoted to confirmation pending")

	if err := s.bus.PublishConfirmationTimer(ctx, offered.ID, confID, deadline); err != nil {
		// The deadline is still enforced by the confirm path, which
		// cycles the stale offer inline.
		log.Error().Err(err).Int64("booking_id", offered.ID).Msg("failed to schedule confirmation expiry")
	}
	return nil
}

// HandleExpiry processes a confirmation-window expiry event: if the
// booking still holds an offer whose deadline has passed, it moves to
// the tail of the waitlist, the slot is released, and the next waiter
// is promoted. Replays and late events are acknowledged as no-ops; the
// deadline re-check protects a fresh offer the same booking may have
// received since the message was scheduled.
func (s *Scheduler) HandleExpiry(ctx context.Context, bookingID int64) error {
	b, err := s.store.GetBooking(ctx, bookingID)
	if errors.Is(err, domain.ErrNotFound) {
		return nil
	}
	if err != nil {
		return err
	}
	if b.Status != domain.StatusConfirmationPending {
		return nil
	}

	var cycled bool
	err = s.store.WithConferenceLock(ctx, b.ConferenceID, func(tx store.Tx, conf domain.Conference) error {
		cur, err := tx.BookingForUpdate(ctx, bookingID)
		if err != nil {
			return err
		}
		if cur.Status != domain.StatusConfirmationPending {
			return nil
		}
		if cur.ConfirmationDeadline == nil || !s.now().After(*cur.ConfirmationDeadline) {
			return nil
		}
		if err := s.cycleToTail(ctx, tx, conf.ID, bookingID); err != nil {
			return err
		}
		cycled = true
		return nil
	})
	if err != nil || !cycled {
		return err
	}

	log.Info().Int64("booking_id", bookingID).Msg("confirmation window expired, offer cycled to waitlist tail")
	return s.Promote(ctx, b.ConferenceID)
}

// HandleConferenceStart sweeps a conference at its start time: every
// booking still Waitlisted or ConfirmationPending is canceled. The
// admission precondition keeps late bookers out afterwards.
func (s *Scheduler) HandleConferenceStart(ctx context.Context, confID int64) error {
	if _, err := s.store.GetConferenceByID(ctx, confID); err != nil {
		if errors.Is(err, domain.ErrNotFound) {
			return nil
		}
		return err
	}

	var swept int64
	err := s.store.WithConferenceLock(ctx, confID, func(tx store.Tx, conf domain.Conference) error {
		n, err := tx.CancelPreStart(ctx, conf.ID, s.now())
		swept = n
		return err
	})
	if err != nil {
		return err
	}
	if swept > 0 {
		log.Info().Int64("conference_id", confID).Int64("canceled", swept).Msg("conference started, pre-start bookings swept")
	}
	return nil
}

// cycleToTail moves a ConfirmationPending booking back to the end of the
// waitlist and releases the slot its offer was holding.
func (s *Scheduler) cycleToTail(ctx context.Context, tx store.Tx, confID, bookingID int64) error {
	max, err := tx.MaxWaitlistPosition(ctx, confID)
	if err != nil {
		return err
	}
	if err := tx.MarkWaitlistedTail(ctx, bookingID, max+1); err != nil {
		return err
	}
	return tx.AddAvailableSlots(ctx, confID, 1)
}
