package handlers

import (
	"context"
	"errors"
	"net/http"
	"strconv"
	"time"

	"github.com/confseat/confseat/internal/domain"
	"github.com/gin-gonic/gin"
	"github.com/rs/zerolog/log"
)

// Service is the scheduler surface the handlers call.
type Service interface {
	RegisterUser(ctx context.Context, userID string, topics []string) error
	CreateConference(ctx context.Context, conf domain.Conference, topics []string) error
	Book(ctx context.Context, userID, conferenceName string) (domain.Booking, error)
	Confirm(ctx context.Context, bookingID int64, userID string) error
	Cancel(ctx context.Context, bookingID int64) error
	BookingStatus(ctx context.Context, bookingID int64) (domain.Booking, string, error)
	ConferenceBookings(ctx context.Context, name string) ([]domain.Booking, error)
}

type Handler struct {
	svc Service
}

func New(svc Service) *Handler {
	return &Handler{svc: svc}
}

type AddUserRequest struct {
	UserID string   `json:"user_id" binding:"required"`
	Topics []string `json:"topics"`
}

type AddConferenceRequest struct {
	Name     string   `json:"name" binding:"required"`
	Location string   `json:"location" binding:"required"`
	Start    string   `json:"start" binding:"required"`
	End      string   `json:"end" binding:"required"`
	Slots    int32    `json:"slots"`
	Topics   []string `json:"topics"`
}

type BookRequest struct {
	UserID string `json:"user_id" binding:"required"`
	Name   string `json:"name" binding:"required"`
}

type BookResponse struct {
	BookingID        int64  `json:"booking_id"`
	Status           string `json:"status"`
	Message          string `json:"message"`
	WaitlistPosition *int32 `json:"waitlist_position"`
}

type ConfirmRequest struct {
	BookingID int64  `json:"booking_id" binding:"required"`
	UserID    string `json:"user_id" binding:"required"`
}

type CancelRequest struct {
	BookingID int64 `json:"booking_id" binding:"required"`
}

type BookingStatusResponse struct {
	BookingID            int64      `json:"booking_id"`
	Status               string     `json:"status"`
	ConferenceName       string     `json:"conference_name"`
	CanConfirm           bool       `json:"can_confirm"`
	ConfirmationDeadline *time.Time `json:"confirmation_deadline"`
	WaitlistPosition     *int32     `json:"waitlist_position"`
}

type ConferenceBookingResponse struct {
	BookingID            int64      `json:"booking_id"`
	UserID               string     `json:"user_id"`
	Status               string     `json:"status"`
	CreatedAt            time.Time  `json:"created_at"`
	WaitlistPosition     *int32     `json:"waitlist_position"`
	CanConfirm           bool       `json:"can_confirm"`
	ConfirmationDeadline *time.Time `json:"confirmation_deadline"`
	CanceledAt           *time.Time `json:"canceled_at"`
}

func message(c *gin.Context, status int, msg string) {
	c.JSON(status, gin.H{"message": msg})
}

func (h *Handler) AddUser(c *gin.Context) {
	var req AddUserRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		message(c, http.StatusBadRequest, "Invalid input: "+err.Error())
		return
	}
	if !userIDRe.MatchString(req.UserID) {
		message(c, http.StatusBadRequest, "UserID should be Alphanumeric with no special characters")
		return
	}
	if msg, ok := validTopics(req.Topics, maxUserTopics); !ok {
		message(c, http.StatusBadRequest, msg)
		return
	}

	if err := h.svc.RegisterUser(c.Request.Context(), req.UserID, req.Topics); err != nil {
		if errors.Is(err, domain.ErrDuplicate) {
			message(c, http.StatusBadRequest, "User already exists")
			return
		}
		log.Error().Err(err).Str("user_id", req.UserID).Msg("failed to add user")
		message(c, http.StatusInternalServerError, "Failed to add user")
		return
	}
	message(c, http.StatusCreated, "User added successfully")
}

func (h *Handler) AddConference(c *gin.Context) {
	var req AddConferenceRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		message(c, http.StatusBadRequest, "Invalid input: "+err.Error())
		return
	}
	if !labelRe.MatchString(req.Name) {
		message(c, http.StatusBadRequest, "name should be Alphanumeric String. Spaces are the only special character allowed")
		return
	}
	if !labelRe.MatchString(req.Location) {
		message(c, http.StatusBadRequest, "location should be Alphanumeric String. Spaces are the only special character allowed")
		return
	}
	if msg, ok := validTopics(req.Topics, maxConferenceTopics); !ok {
		message(c, http.StatusBadRequest, msg)
		return
	}

	start, err := parseTimestamp(req.Start)
	if err != nil {
		message(c, http.StatusBadRequest, "start timestamp not in correct format")
		return
	}
	end, err := parseTimestamp(req.End)
	if err != nil {
		message(c, http.StatusBadRequest, "end timestamp not in correct format")
		return
	}
	if !start.Before(end) {
		message(c, http.StatusBadRequest, "Start timestamp must be before end timestamp")
		return
	}
	if end.Sub(start) > maxDuration {
		message(c, http.StatusBadRequest, "Duration should not exceed 12 hours")
		return
	}
	if req.Slots <= 0 {
		message(c, http.StatusBadRequest, "Available slots must be greater than 0")
		return
	}

	conf := domain.Conference{
		Name:           req.Name,
		Location:       req.Location,
		StartTimestamp: start,
		EndTimestamp:   end,
		TotalSlots:     req.Slots,
		AvailableSlots: req.Slots,
	}
	if err := h.svc.CreateConference(c.Request.Context(), conf, req.Topics); err != nil {
		if errors.Is(err, domain.ErrDuplicate) {
			message(c, http.StatusBadRequest, "conference already exists")
			return
		}
		log.Error().Err(err).Str("conference", req.Name).Msg("failed to add conference")
		message(c, http.StatusInternalServerError, "Failed to add conference")
		return
	}
	message(c, http.StatusCreated, "conference added successfully")
}

func (h *Handler) Book(c *gin.Context) {
	var req BookRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		message(c, http.StatusBadRequest, "Invalid input: "+err.Error())
		return
	}
	if !userIDRe.MatchString(req.UserID) {
		message(c, http.StatusBadRequest, "UserID should be Alphanumeric with no special characters")
		return
	}
	if !labelRe.MatchString(req.Name) {
		message(c, http.StatusBadRequest, "name should be Alphanumeric String. Spaces are the only special character allowed")
		return
	}

	b, err := h.svc.Book(c.Request.Context(), req.UserID, req.Name)
	if err != nil {
		switch {
		case errors.Is(err, domain.ErrNotFound):
			message(c, http.StatusBadRequest, "User or conference not found")
		case errors.Is(err, domain.ErrDuplicate):
			message(c, http.StatusBadRequest, "User already has an active booking for this conference")
		case errors.Is(err, domain.ErrConferenceStarted):
			message(c, http.StatusBadRequest, "Cannot book conference that has already started")
		case errors.Is(err, domain.ErrOverlap):
			message(c, http.StatusBadRequest, "User has an overlapping conference booking")
		default:
			log.Error().Err(err).Str("user_id", req.UserID).Str("conference", req.Name).Msg("failed to book conference")
			message(c, http.StatusInternalServerError, "Failed to book conference")
		}
		return
	}

	msg := "Added to waitlist"
	if b.Status == domain.StatusConfirmed {
		msg = "Booking confirmed successfully"
	}
	c.JSON(http.StatusCreated, BookResponse{
		BookingID:        b.ID,
		Status:           b.Status,
		Message:          msg,
		WaitlistPosition: b.WaitlistPosition,
	})
}

func (h *Handler) GetBookingStatus(c *gin.Context) {
	id, err := strconv.ParseInt(c.Param("id"), 10, 64)
	if err != nil {
		message(c, http.StatusBadRequest, "Invalid booking id")
		return
	}

	b, confName, err := h.svc.BookingStatus(c.Request.Context(), id)
	if err != nil {
		if errors.Is(err, domain.ErrNotFound) {
			message(c, http.StatusNotFound, "Booking not found")
			return
		}
		log.Error().Err(err).Int64("booking_id", id).Msg("failed to get booking status")
		message(c, http.StatusInternalServerError, "Failed to get booking status")
		return
	}

	c.JSON(http.StatusOK, BookingStatusResponse{
		BookingID:            b.ID,
		Status:               b.Status,
		ConferenceName:       confName,
		CanConfirm:           b.CanConfirm,
		ConfirmationDeadline: b.ConfirmationDeadline,
		WaitlistPosition:     b.WaitlistPosition,
	})
}

func (h *Handler) Confirm(c *gin.Context) {
	var req ConfirmRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		message(c, http.StatusBadRequest, "Invalid input: "+err.Error())
		return
	}

	if err := h.svc.Confirm(c.Request.Context(), req.BookingID, req.UserID); err != nil {
		switch {
		case errors.Is(err, domain.ErrNotFound):
			message(c, http.StatusBadRequest, "Booking not found")
		case errors.Is(err, domain.ErrAccessDenied):
			message(c, http.StatusBadRequest, "Access denied: booking belongs to another user")
		case errors.Is(err, domain.ErrInvalidState):
			message(c, http.StatusBadRequest, "Booking is not in confirmation pending state")
		case errors.Is(err, domain.ErrExpired):
			message(c, http.StatusBadRequest, "Confirmation deadline has expired")
		case errors.Is(err, domain.ErrConferenceStarted):
			message(c, http.StatusBadRequest, "Cannot confirm booking for a conference that has already started")
		default:
			log.Error().Err(err).Int64("booking_id", req.BookingID).Msg("failed to confirm booking")
			message(c, http.StatusInternalServerError, "Failed to confirm booking")
		}
		return
	}
	message(c, http.StatusOK, "Booking confirmed successfully")
}

func (h *Handler) Cancel(c *gin.Context) {
	var req CancelRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		message(c, http.StatusBadRequest, "Invalid input: "+err.Error())
		return
	}

	if err := h.svc.Cancel(c.Request.Context(), req.BookingID); err != nil {
		switch {
		case errors.Is(err, domain.ErrNotFound):
			message(c, http.StatusNotFound, "Booking not found")
		case errors.Is(err, domain.ErrAlreadyCanceled):
			message(c, http.StatusBadRequest, "Booking is already canceled")
		default:
			log.Error().Err(err).Int64("booking_id", req.BookingID).Msg("failed to cancel booking")
			message(c, http.StatusInternalServerError, "Failed to cancel booking")
		}
		return
	}
	message(c, http.StatusOK, "Booking canceled successfully")
}

func (h *Handler) GetConferenceBookings(c *gin.Context) {
	name := c.Param("name")

	bookings, err := h.svc.ConferenceBookings(c.Request.Context(), name)
	if err != nil {
		if errors.Is(err, domain.ErrNotFound) {
			message(c, http.StatusNotFound, "Conference not found")
			return
		}
		log.Error().Err(err).Str("conference", name).Msg("failed to get conference bookings")
		message(c, http.StatusInternalServerError, "Failed to get conference bookings")
		return
	}

	out := make([]ConferenceBookingResponse, 0, len(bookings))
	for _, b := range bookings {
		out = append(out, ConferenceBookingResponse{
			BookingID:            b.ID,
			UserID:               b.UserID,
			Status:               b.Status,
			CreatedAt:            b.CreatedAt,
			WaitlistPosition:     b.WaitlistPosition,
			CanConfirm:           b.CanConfirm,
			ConfirmationDeadline: b.ConfirmationDeadline,
			CanceledAt:           b.CanceledAt,
		})
	}
	c.JSON(http.StatusOK, out)
}
