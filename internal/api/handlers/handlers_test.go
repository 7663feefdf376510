package handlers

import (
	"context"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"
	"time"

	"github.com/confseat/confseat/internal/domain"
	"github.com/gin-gonic/gin"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

// fakeService returns canned results so the HTTP layer can be tested in
// isolation.
type fakeService struct {
	registerErr   error
	createConfErr error
	bookResult    domain.Booking
	bookErr       error
	confirmErr    error
	cancelErr     error
	statusBooking domain.Booking
	statusConf    string
	statusErr     error
	listResult    []domain.Booking
	listErr       error

	gotConference domain.Conference
}

func (f *fakeService) RegisterUser(context.Context, string, []string) error { return f.registerErr }

func (f *fakeService) CreateConference(_ context.Context, conf domain.Conference, _ []string) error {
	f.gotConference = conf
	return f.createConfErr
}

func (f *fakeService) Book(context.Context, string, string) (domain.Booking, error) {
	return f.bookResult, f.bookErr
}

func (f *fakeService) Confirm(context.Context, int64, string) error { return f.confirmErr }
func (f *fakeService) Cancel(context.Context, int64) error          { return f.cancelErr }

func (f *fakeService) BookingStatus(context.Context, int64) (domain.Booking, string, error) {
	return f.statusBooking, f.statusConf, f.statusErr
}

func (f *fakeService) ConferenceBookings(context.Context, string) ([]domain.Booking, error) {
	return f.listResult, f.listErr
}

func newTestRouter(svc Service) *gin.Engine {
	gin.SetMode(gin.TestMode)
	r := gin.New()
	h := New(svc)
	r.POST("/user", h.AddUser)
	r.POST("/conference", h.AddConference)
	r.POST("/book", h.Book)
	r.GET("/booking/:id", h.GetBookingStatus)
	r.POST("/confirm", h.Confirm)
	r.POST("/cancel", h.Cancel)
	r.GET("/conference/:name/bookings", h.GetConferenceBookings)
	return r
}

func do(t *testing.T, r *gin.Engine, method, path, body string) *httptest.ResponseRecorder {
	t.Helper()
	req := httptest.NewRequest(method, path, strings.NewReader(body))
	req.Header.Set("Content-Type", "application/json")
	w := httptest.NewRecorder()
	r.ServeHTTP(w, req)
	return w
}

func messageOf(t *testing.T, w *httptest.ResponseRecorder) string {
	t.Helper()
	var resp struct {
		Message string `json:"message"`
	}
	require.NoError(t, json.Unmarshal(w.Body.Bytes(), &resp))
	return resp.Message
}

func TestAddUser(t *testing.T) {
	svc := &fakeService{}
	r := newTestRouter(svc)

	w := do(t, r, http.MethodPost, "/user", `{"user_id":"alice","topics":["golang"]}`)
	assert.Equal(t, http.StatusCreated, w.Code)
	assert.Equal(t, "User added successfully", messageOf(t, w))
}

func TestAddUserValidation(t *testing.T) {
	r := newTestRouter(&fakeService{})

	cases := map[string]string{
		"special chars in id": `{"user_id":"al!ce","topics":["golang"]}`,
		"no topics":           `{"user_id":"alice","topics":[]}`,
		"bad topic":           `{"user_id":"alice","topics":["go-lang"]}`,
		"missing id":          `{"topics":["golang"]}`,
	}
	for name, body := range cases {
		t.Run(name, func(t *testing.T) {
			w := do(t, r, http.MethodPost, "/user", body)
			assert.Equal(t, http.StatusBadRequest, w.Code)
		})
	}
}

func TestAddUserDuplicate(t *testing.T) {
	r := newTestRouter(&fakeService{registerErr: domain.ErrDuplicate})

	w := do(t, r, http.MethodPost, "/user", `{"user_id":"alice","topics":["golang"]}`)
	assert.Equal(t, http.StatusBadRequest, w.Code)
	assert.Equal(t, "User already exists", messageOf(t, w))
}

func TestAddConference(t *testing.T) {
	svc := &fakeService{}
	r := newTestRouter(svc)

	w := do(t, r, http.MethodPost, "/conference", `{
		"name": "GopherCon",
		"location": "Berlin",
		"start": "2026-09-01 10:00:00",
		"end": "2026-09-01 18:00:00",
		"slots": 100,
		"topics": ["golang"]
	}`)
	require.Equal(t, http.StatusCreated, w.Code)
	assert.Equal(t, "conference added successfully", messageOf(t, w))

	assert.Equal(t, time.Date(2026, 9, 1, 10, 0, 0, 0, time.UTC), svc.gotConference.StartTimestamp)
	assert.Equal(t, int32(100), svc.gotConference.TotalSlots)
	assert.Equal(t, int32(100), svc.gotConference.AvailableSlots)
}

func TestAddConferenceValidation(t *testing.T) {
	r := newTestRouter(&fakeService{})

	cases := map[string]struct {
		body string
		msg  string
	}{
		"bad timestamp": {
			body: `{"name":"GopherCon","location":"Berlin","start":"2026/09/01 10:00:00","end":"2026-09-01 18:00:00","slots":10,"topics":["golang"]}`,
			msg:  "start timestamp not in correct format",
		},
		"end before start": {
			body: `{"name":"GopherCon","location":"Berlin","start":"2026-09-01 18:00:00","end":"2026-09-01 10:00:00","slots":10,"topics":["golang"]}`,
			msg:  "Start timestamp must be before end timestamp",
		},
		"too long": {
			body: `{"name":"GopherCon","location":"Berlin","start":"2026-09-01 10:00:00","end":"2026-09-02 10:00:00","slots":10,"topics":["golang"]}`,
			msg:  "Duration should not exceed 12 hours",
		},
		"zero slots": {
			body: `{"name":"GopherCon","location":"Berlin","start":"2026-09-01 10:00:00","end":"2026-09-01 18:00:00","slots":0,"topics":["golang"]}`,
			msg:  "Available slots must be greater than 0",
		},
		"bad name": {
			body: `{"name":"Gopher_Con","location":"Berlin","start":"2026-09-01 10:00:00","end":"2026-09-01 18:00:00","slots":10,"topics":["golang"]}`,
			msg:  "name should be Alphanumeric String. Spaces are the only special character allowed",
		},
	}
	for name, tc := range cases {
		t.Run(name, func(t *testing.T) {
			w := do(t, r, http.MethodPost, "/conference", tc.body)
			assert.Equal(t, http.StatusBadRequest, w.Code)
			assert.Equal(t, tc.msg, messageOf(t, w))
		})
	}
}

func TestBookConfirmed(t *testing.T) {
	r := newTestRouter(&fakeService{
		bookResult: domain.Booking{ID: 7, Status: domain.StatusConfirmed},
	})

	w := do(t, r, http.MethodPost, "/book", `{"user_id":"alice","name":"GopherCon"}`)
	require.Equal(t, http.StatusCreated, w.Code)

	var resp BookResponse
	require.NoError(t, json.Unmarshal(w.Body.Bytes(), &resp))
	assert.Equal(t, int64(7), resp.BookingID)
	assert.Equal(t, domain.StatusConfirmed, resp.Status)
	assert.Equal(t, "Booking confirmed successfully", resp.Message)
	assert.Nil(t, resp.WaitlistPosition)
}

func TestBookWaitlisted(t *testing.T) {
	pos := int32(3)
	r := newTestRouter(&fakeService{
		bookResult: domain.Booking{ID: 8, Status: domain.StatusWaitlisted, WaitlistPosition: &pos},
	})

	w := do(t, r, http.MethodPost, "/book", `{"user_id":"alice","name":"GopherCon"}`)
	require.Equal(t, http.StatusCreated, w.Code)

	var resp BookResponse
	require.NoError(t, json.Unmarshal(w.Body.Bytes(), &resp))
	assert.Equal(t, "Added to waitlist", resp.Message)
	require.NotNil(t, resp.WaitlistPosition)
	assert.Equal(t, int32(3), *resp.WaitlistPosition)
}

func TestBookErrors(t *testing.T) {
	cases := map[string]struct {
		err error
		msg string
	}{
		"not found": {domain.ErrNotFound, "User or conference not found"},
		"duplicate": {domain.ErrDuplicate, "User already has an active booking for this conference"},
		"started":   {domain.ErrConferenceStarted, "Cannot book conference that has already started"},
		"overlap":   {domain.ErrOverlap, "User has an overlapping conference booking"},
	}
	for name, tc := range cases {
		t.Run(name, func(t *testing.T) {
			r := newTestRouter(&fakeService{bookErr: tc.err})
			w := do(t, r, http.MethodPost, "/book", `{"user_id":"alice","name":"GopherCon"}`)
			assert.Equal(t, http.StatusBadRequest, w.Code)
			assert.Equal(t, tc.msg, messageOf(t, w))
		})
	}
}

func TestBookValidation(t *testing.T) {
	r := newTestRouter(&fakeService{})

	cases := map[string]struct {
		body string
		msg  string
	}{
		"special chars in user id": {
			body: `{"user_id":"al!ce","name":"GopherCon"}`,
			msg:  "UserID should be Alphanumeric with no special characters",
		},
		"special chars in name": {
			body: `{"user_id":"alice","name":"Gopher_Con"}`,
			msg:  "name should be Alphanumeric String. Spaces are the only special character allowed",
		},
	}
	for name, tc := range cases {
		t.Run(name, func(t *testing.T) {
			w := do(t, r, http.MethodPost, "/book", tc.body)
			assert.Equal(t, http.StatusBadRequest, w.Code)
			assert.Equal(t, tc.msg, messageOf(t, w))
		})
	}
}

func TestGetBookingStatus(t *testing.T) {
	deadline := time.Date(2026, 9, 1, 10, 0, 10, 0, time.UTC)
	r := newTestRouter(&fakeService{
		statusBooking: domain.Booking{
			ID:                   5,
			Status:               domain.StatusConfirmationPending,
			CanConfirm:           true,
			ConfirmationDeadline: &deadline,
		},
		statusConf: "GopherCon",
	})

	w := do(t, r, http.MethodGet, "/booking/5", "")
	require.Equal(t, http.StatusOK, w.Code)

	var resp BookingStatusResponse
	require.NoError(t, json.Unmarshal(w.Body.Bytes(), &resp))
	assert.Equal(t, int64(5), resp.BookingID)
	assert.Equal(t, "GopherCon", resp.ConferenceName)
	assert.True(t, resp.CanConfirm)
	require.NotNil(t, resp.ConfirmationDeadline)
	assert.True(t, deadline.Equal(*resp.ConfirmationDeadline))
}

func TestGetBookingStatusNotFound(t *testing.T) {
	r := newTestRouter(&fakeService{statusErr: domain.ErrNotFound})

	w := do(t, r, http.MethodGet, "/booking/99", "")
	assert.Equal(t, http.StatusNotFound, w.Code)
	assert.Equal(t, "Booking not found", messageOf(t, w))
}

func TestGetBookingStatusBadID(t *testing.T) {
	r := newTestRouter(&fakeService{})

	w := do(t, r, http.MethodGet, "/booking/abc", "")
	assert.Equal(t, http.StatusBadRequest, w.Code)
}

func TestConfirm(t *testing.T) {
	r := newTestRouter(&fakeService{})

	w := do(t, r, http.MethodPost, "/confirm", `{"booking_id":5,"user_id":"alice"}`)
	assert.Equal(t, http.StatusOK, w.Code)
	assert.Equal(t, "Booking confirmed successfully", messageOf(t, w))
}

func TestConfirmErrors(t *testing.T) {
	cases := map[string]struct {
		err error
		msg string
	}{
		"access denied": {domain.ErrAccessDenied, "Access denied: booking belongs to another user"},
		"invalid state": {domain.ErrInvalidState, "Booking is not in confirmation pending state"},
		"expired":       {domain.ErrExpired, "Confirmation deadline has expired"},
		"started":       {domain.ErrConferenceStarted, "Cannot confirm booking for a conference that has already started"},
		"not found":     {domain.ErrNotFound, "Booking not found"},
	}
	for name, tc := range cases {
		t.Run(name, func(t *testing.T) {
			r := newTestRouter(&fakeService{confirmErr: tc.err})
			w := do(t, r, http.MethodPost, "/confirm", `{"booking_id":5,"user_id":"alice"}`)
			assert.Equal(t, http.StatusBadRequest, w.Code)
			assert.Equal(t, tc.msg, messageOf(t, w))
		})
	}
}

func TestCancel(t *testing.T) {
	r := newTestRouter(&fakeService{})

	w := do(t, r, http.MethodPost, "/cancel", `{"booking_id":5}`)
	assert.Equal(t, http.StatusOK, w.Code)
	assert.Equal(t, "Booking canceled successfully", messageOf(t, w))
}

func TestCancelErrors(t *testing.T) {
	r := newTestRouter(&fakeService{cancelErr: domain.ErrNotFound})
	w := do(t, r, http.MethodPost, "/cancel", `{"booking_id":5}`)
	assert.Equal(t, http.StatusNotFound, w.Code)

	r = newTestRouter(&fakeService{cancelErr: domain.ErrAlreadyCanceled})
	w = do(t, r, http.MethodPost, "/cancel", `{"booking_id":5}`)
	assert.Equal(t, http.StatusBadRequest, w.Code)
	assert.Equal(t, "Booking is already canceled", messageOf(t, w))
}

func TestGetConferenceBookings(t *testing.T) {
	pos := int32(1)
	r := newTestRouter(&fakeService{
		listResult: []domain.Booking{
			{ID: 1, UserID: "alice", Status: domain.StatusConfirmed},
			{ID: 2, UserID: "bob", Status: domain.StatusWaitlisted, WaitlistPosition: &pos},
		},
	})

	w := do(t, r, http.MethodGet, "/conference/GopherCon/bookings", "")
	require.Equal(t, http.StatusOK, w.Code)

	var resp []ConferenceBookingResponse
	require.NoError(t, json.Unmarshal(w.Body.Bytes(), &resp))
	require.Len(t, resp, 2)
	assert.Equal(t, "alice", resp[0].UserID)
	require.NotNil(t, resp[1].WaitlistPosition)
	assert.Equal(t, int32(1), *resp[1].WaitlistPosition)
}

func TestGetConferenceBookingsNotFound(t *testing.T) {
	r := newTestRouter(&fakeService{listErr: domain.ErrNotFound})

	w := do(t, r, http.MethodGet, "/conference/NoSuchCon/bookings", "")
	assert.Equal(t, http.StatusNotFound, w.Code)
	assert.Equal(t, "Conference not found", messageOf(t, w))
}
