package scheduler

import (
	"context"
	"errors"
	"time"

	"github.com/confseat/confseat/internal/domain"
	"github.com/confseat/confseat/internal/store"
)

// memStore is an in-memory Store plus store.Tx implementation so the
// engine can be exercised without Postgres. The lock callback runs
// directly; tests are single-goroutine.
type memStore struct {
	users       map[string]domain.User
	confs       map[int64]*domain.Conference
	bookings    map[int64]*domain.Booking
	nextConf    int64
	nextBooking int64
}

func newMemStore() *memStore {
	return &memStore{
		users:    make(map[string]domain.User),
		confs:    make(map[int64]*domain.Conference),
		bookings: make(map[int64]*domain.Booking),
	}
}

func (m *memStore) CreateUser(_ context.Context, userID string, topics []string) error {
	if _, ok := m.users[userID]; ok {
		return domain.ErrDuplicate
	}
	m.users[userID] = domain.User{UserID: userID, Topics: topics}
	return nil
}

func (m *memStore) GetUser(_ context.Context, userID string) (domain.User, error) {
	u, ok := m.users[userID]
	if !ok {
		return domain.User{}, domain.ErrNotFound
	}
	return u, nil
}

func (m *memStore) CreateConference(_ context.Context, conf domain.Conference, _ []string) (domain.Conference, error) {
	for _, c := range m.confs {
		if c.Name == conf.Name {
			return domain.Conference{}, domain.ErrDuplicate
		}
	}
	m.nextConf++
	conf.ID = m.nextConf
	m.confs[conf.ID] = &conf
	return conf, nil
}

func (m *memStore) GetConferenceByName(_ context.Context, name string) (domain.Conference, error) {
	for _, c := range m.confs {
		if c.Name == name {
			return *c, nil
		}
	}
	return domain.Conference{}, domain.ErrNotFound
}

func (m *memStore) GetConferenceByID(_ context.Context, id int64) (domain.Conference, error) {
	c, ok := m.confs[id]
	if !ok {
		return domain.Conference{}, domain.ErrNotFound
	}
	return *c, nil
}

func (m *memStore) GetBooking(_ context.Context, id int64) (domain.Booking, error) {
	b, ok := m.bookings[id]
	if !ok {
		return domain.Booking{}, domain.ErrNotFound
	}
	return *b, nil
}

func (m *memStore) ListConferenceBookings(_ context.Context, confID int64) ([]domain.Booking, error) {
	var out []domain.Booking
	for id := int64(1); id <= m.nextBooking; id++ {
		if b, ok := m.bookings[id]; ok && b.ConferenceID == confID {
			out = append(out, *b)
		}
	}
	return out, nil
}

func (m *memStore) WithConferenceLock(_ context.Context, confID int64, fn func(tx store.Tx, conf domain.Conference) error) error {
	c, ok := m.confs[confID]
	if !ok {
		return domain.ErrNotFound
	}
	return fn(&memTx{m}, *c)
}

type memTx struct {
	s *memStore
}

func (t *memTx) BookingForUpdate(_ context.Context, bookingID int64) (domain.Booking, error) {
	b, ok := t.s.bookings[bookingID]
	if !ok {
		return domain.Booking{}, domain.ErrNotFound
	}
	return *b, nil
}

func (t *memTx) HasActiveBooking(_ context.Context, userID string, confID int64) (bool, error) {
	for _, b := range t.s.bookings {
		if b.UserID == userID && b.ConferenceID == confID && b.Status != domain.StatusCanceled {
			return true, nil
		}
	}
	return false, nil
}

func (t *memTx) HasBlockingOverlap(_ context.Context, userID string, start, end time.Time) (bool, error) {
	for _, b := range t.s.bookings {
		if b.UserID != userID || !b.Blocks() {
			continue
		}
		c := t.s.confs[b.ConferenceID]
		if domain.Overlaps(c.StartTimestamp, c.EndTimestamp, start, end) {
			return true, nil
		}
	}
	return false, nil
}

func (t *memTx) CountStatus(_ context.Context, confID int64, status string) (int64, error) {
	var n int64
	for _, b := range t.s.bookings {
		if b.ConferenceID == confID && b.Status == status {
			n++
		}
	}
	return n, nil
}

func (t *memTx) MaxWaitlistPosition(_ context.Context, confID int64) (int32, error) {
	var max int32
	for _, b := range t.s.bookings {
		if b.ConferenceID == confID && b.Status == domain.StatusWaitlisted && b.WaitlistPosition != nil && *b.WaitlistPosition > max {
			max = *b.WaitlistPosition
		}
	}
	return max, nil
}

func (t *memTx) InsertBooking(_ context.Context, b domain.Booking) (domain.Booking, error) {
	t.s.nextBooking++
	b.ID = t.s.nextBooking
	b.CreatedAt = time.Now()
	t.s.bookings[b.ID] = &b
	return b, nil
}

func (t *memTx) AddAvailableSlots(_ context.Context, confID int64, delta int32) error {
	c := t.s.confs[confID]
	next := c.AvailableSlots + delta
	if next < 0 || next > c.TotalSlots {
		return errors.New("available_slots adjustment out of range")
	}
	c.AvailableSlots = next
	return nil
}

func (t *memTx) NextWaitlisted(_ context.Context, confID int64) (*domain.Booking, error) {
	var head *domain.Booking
	for _, b := range t.s.bookings {
		if b.ConferenceID != confID || b.Status != domain.StatusWaitlisted {
			continue
		}
		if head == nil || *b.WaitlistPosition < *head.WaitlistPosition {
			head = b
		}
	}
	if head == nil {
		return nil, nil
	}
	cp := *head
	return &cp, nil
}

func (t *memTx) MarkConfirmationPending(_ context.Context, bookingID int64, deadline time.Time) error {
	b := t.s.bookings[bookingID]
	b.Status = domain.StatusConfirmationPending
	b.CanConfirm = true
	d := deadline
	b.ConfirmationDeadline = &d
	b.WaitlistPosition = nil
	return nil
}

func (t *memTx) MarkWaitlistedTail(_ context.Context, bookingID int64, position int32) error {
	b := t.s.bookings[bookingID]
	b.Status = domain.StatusWaitlisted
	b.CanConfirm = false
	b.ConfirmationDeadline = nil
	p := position
	b.WaitlistPosition = &p
	return nil
}

func (t *memTx) MarkConfirmed(_ context.Context, bookingID int64) error {
	b := t.s.bookings[bookingID]
	b.Status = domain.StatusConfirmed
	b.CanConfirm = false
	b.ConfirmationDeadline = nil
	b.WaitlistPosition = nil
	return nil
}

func (t *memTx) MarkCanceled(_ context.Context, bookingID int64, at time.Time) error {
	b := t.s.bookings[bookingID]
	b.Status = domain.StatusCanceled
	b.CanConfirm = false
	b.ConfirmationDeadline = nil
	b.WaitlistPosition = nil
	ts := at
	b.CanceledAt = &ts
	return nil
}

func (t *memTx) CancelOverlappingWaitlisted(ctx context.Context, userID string, start, end time.Time, excludeConfID int64, at time.Time) (int64, error) {
	var n int64
	for id, b := range t.s.bookings {
		if b.UserID != userID || b.Status != domain.StatusWaitlisted || b.ConferenceID == excludeConfID {
			continue
		}
		c := t.s.confs[b.ConferenceID]
		if domain.Overlaps(c.StartTimestamp, c.EndTimestamp, start, end) {
			if err := t.MarkCanceled(ctx, id, at); err != nil {
				return n, err
			}
			n++
		}
	}
	return n, nil
}

func (t *memTx) CancelPreStart(ctx context.Context, confID int64, at time.Time) (int64, error) {
	var n int64
	for id, b := range t.s.bookings {
		if b.ConferenceID != confID {
			continue
		}
		if b.Status == domain.StatusWaitlisted || b.Status == domain.StatusConfirmationPending {
			if err := t.MarkCanceled(ctx, id, at); err != nil {
				return n, err
			}
			n++
		}
	}
	return n, nil
}

type timerMsg struct {
	bookingID int64
	confID    int64
	deadline  time.Time
}

// fakeBus records what the engine publishes.
type fakeBus struct {
	slotFreed []int64
	timers    []timerMsg
	starts    []int64
}

func (f *fakeBus) PublishSlotFreed(_ context.Context, confID int64) error {
	f.slotFreed = append(f.slotFreed, confID)
	return nil
}

func (f *fakeBus) PublishConfirmationTimer(_ context.Context, bookingID, confID int64, deadline time.Time) error {
	f.timers = append(f.timers, timerMsg{bookingID: bookingID, confID: confID, deadline: deadline})
	return nil
}

func (f *fakeBus) PublishConferenceStart(_ context.Context, confID int64, _ string, _ time.Time) error {
	f.starts = append(f.starts, confID)
	return nil
}
