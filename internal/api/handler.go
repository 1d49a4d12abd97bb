// Package api exposes the bot-facing HTTP surface for creating, listing
// and cancelling reminders.
package api

import (
	"context"
	"encoding/json"
	"errors"
	"net/http"
	"strconv"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/google/uuid"
	"go.uber.org/zap"

	"github.com/secondmind/notify/internal/db"
	"github.com/secondmind/notify/internal/metrics"
	"github.com/secondmind/notify/internal/redis"
	"github.com/secondmind/notify/internal/timeparse"
)

// Scheduler is the scheduling surface the API drives.
type Scheduler interface {
	Schedule(ctx context.Context, rec *db.NotificationRecord) error
	Cancel(ctx context.Context, id string) error
}

// NotificationStore is the read surface for listing and fetching records.
type NotificationStore interface {
	GetNotification(ctx context.Context, id string) (*db.NotificationRecord, error)
	ListNotificationsByUser(ctx context.Context, userID string, limit, offset int) ([]*db.NotificationRecord, error)
	GetUserTimezone(ctx context.Context, userID string) string
}

// ReminderRequest is the incoming body for POST /v1/reminders. Exactly one
// of At (RFC3339) or When (natural language phrase) sets the fire time.
type ReminderRequest struct {
	UserID    string `json:"user_id"`
	Title     string `json:"title,omitempty"`
	Message   string `json:"message"`
	At        string `json:"at,omitempty"`
	When      string `json:"when,omitempty"`
	Recurring string `json:"recurring,omitempty"`
}

// ReminderResponse is returned after creating a reminder.
type ReminderResponse struct {
	ID            string    `json:"id"`
	ScheduledTime time.Time `json:"scheduled_time"`
}

// ErrorResponse represents an error in problem+json format.
type ErrorResponse struct {
	Type   string `json:"type"`
	Title  string `json:"title"`
	Status int    `json:"status"`
	Detail string `json:"detail,omitempty"`
}

// Handler holds dependencies for API handlers.
type Handler struct {
	logger      *zap.Logger
	sched       Scheduler
	store       NotificationStore
	idempotency *redis.IdempotencyService // nil if Redis not configured
}

// NewHandler creates a new API handler. idempotency may be nil.
func NewHandler(logger *zap.Logger, sched Scheduler, store NotificationStore, idempotency *redis.IdempotencyService) *Handler {
	return &Handler{
		logger:      logger,
		sched:       sched,
		store:       store,
		idempotency: idempotency,
	}
}

// CreateReminder handles POST /v1/reminders. Invalid input, unparsable
// phrases and past times are rejected before anything is persisted.
// Supports the Idempotency-Key header for safe retries.
func (h *Handler) CreateReminder(w http.ResponseWriter, r *http.Request) {
	ctx := r.Context()

	idempotencyKey := r.Header.Get("Idempotency-Key")

	var req ReminderRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		h.writeError(w, http.StatusBadRequest, "invalid_request", "Malformed JSON body", err.Error())
		return
	}

	if req.UserID == "" || req.Message == "" {
		h.writeError(w, http.StatusBadRequest, "invalid_request", "Missing required fields", "user_id and message are required")
		return
	}
	if req.At == "" && req.When == "" {
		h.writeError(w, http.StatusBadRequest, "invalid_request", "Missing time", "either at (RFC3339) or when (phrase) is required")
		return
	}

	// Parse phrases on the user's clock so "at 3pm" means their 3pm.
	now := time.Now().In(h.userLocation(ctx, req.UserID))
	scheduledAt, recurring, ok := h.resolveTime(&req, now)
	if !ok {
		h.writeError(w, http.StatusBadRequest, "invalid_request", "Unparsable time",
			"could not understand the requested time")
		return
	}

	if err := timeparse.Validate(scheduledAt, now); err != nil {
		switch {
		case errors.Is(err, timeparse.ErrPastTime):
			h.writeError(w, http.StatusBadRequest, "invalid_request", "Time is in the past", "")
		case errors.Is(err, timeparse.ErrTooFarOut):
			h.writeError(w, http.StatusBadRequest, "invalid_request", "Time is too far in the future", "")
		default:
			h.writeError(w, http.StatusBadRequest, "invalid_request", "Invalid time", err.Error())
		}
		return
	}

	if idempotencyKey != "" && h.idempotency != nil {
		cached, err := h.idempotency.CheckOrReserve(ctx, req.UserID, idempotencyKey)
		if err != nil {
			if errors.Is(err, redis.ErrDuplicateRequest) {
				h.writeError(w, http.StatusConflict, "duplicate_request",
					"Request is already being processed",
					"Another request with this idempotency key is in progress")
				return
			}
			h.logger.Warn("idempotency check failed, proceeding",
				zap.Error(err),
				zap.String("idempotency_key", idempotencyKey),
			)
		} else if cached != nil {
			metrics.RecordIdempotencyHit()
			w.Header().Set("Content-Type", "application/json")
			w.Header().Set("X-Idempotency-Replayed", "true")
			w.WriteHeader(cached.StatusCode)
			_ = json.NewEncoder(w).Encode(ReminderResponse{ID: cached.NotificationID, ScheduledTime: scheduledAt})
			return
		}
	}

	rec := &db.NotificationRecord{
		ID:               uuid.New().String(),
		UserID:           req.UserID,
		Title:            req.Title,
		Message:          req.Message,
		NotificationType: db.TypeReminder,
		ScheduledTime:    scheduledAt.UTC(),
		IsActive:         true,
	}
	if recurring != "" {
		rec.RecurringPattern = &recurring
	}

	if err := h.sched.Schedule(ctx, rec); err != nil {
		h.logger.Error("failed to schedule reminder",
			zap.Error(err),
			zap.String("user_id", req.UserID),
		)
		h.writeError(w, http.StatusInternalServerError, "schedule_error", "Failed to schedule reminder", "")
		return
	}

	h.logger.Info("reminder created",
		zap.String("id", rec.ID),
		zap.String("user_id", req.UserID),
		zap.Time("scheduled_time", rec.ScheduledTime),
	)

	if idempotencyKey != "" && h.idempotency != nil {
		result := &redis.IdempotencyResult{
			NotificationID: rec.ID,
			StatusCode:     http.StatusCreated,
		}
		if err := h.idempotency.Store(ctx, req.UserID, idempotencyKey, result); err != nil {
			h.logger.Warn("failed to store idempotency result",
				zap.Error(err),
				zap.String("idempotency_key", idempotencyKey),
			)
		}
	}

	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(http.StatusCreated)
	_ = json.NewEncoder(w).Encode(ReminderResponse{ID: rec.ID, ScheduledTime: rec.ScheduledTime})
}

func (h *Handler) userLocation(ctx context.Context, userID string) *time.Location {
	loc, err := time.LoadLocation(h.store.GetUserTimezone(ctx, userID))
	if err != nil {
		return time.UTC
	}
	return loc
}

// resolveTime turns the request's at/when fields into an absolute instant
// plus any detected recurrence tag. An explicit At wins over When.
func (h *Handler) resolveTime(req *ReminderRequest, now time.Time) (time.Time, string, bool) {
	if req.At != "" {
		at, err := time.Parse(time.RFC3339, req.At)
		if err != nil {
			return time.Time{}, "", false
		}
		return at, req.Recurring, true
	}

	result, ok := timeparse.Parse(req.When, now)
	if !ok {
		return time.Time{}, "", false
	}

	recurring := req.Recurring
	if recurring == "" {
		recurring = result.Recurrence
	}

	return result.At, recurring, true
}

// GetNotification handles GET /v1/notifications/{id}.
func (h *Handler) GetNotification(w http.ResponseWriter, r *http.Request) {
	ctx := r.Context()

	id := chi.URLParam(r, "id")
	if id == "" {
		h.writeError(w, http.StatusBadRequest, "invalid_request", "Missing notification ID", "")
		return
	}

	rec, err := h.store.GetNotification(ctx, id)
	if errors.Is(err, db.ErrNotFound) {
		h.writeError(w, http.StatusNotFound, "not_found", "Notification not found", "")
		return
	}
	if err != nil {
		h.logger.Error("failed to get notification",
			zap.Error(err),
			zap.String("id", id),
		)
		h.writeError(w, http.StatusInternalServerError, "database_error", "Failed to get notification", "")
		return
	}

	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(http.StatusOK)
	_ = json.NewEncoder(w).Encode(rec)
}

// ListNotifications handles GET /v1/notifications?user_id=xxx&limit=20&offset=0.
func (h *Handler) ListNotifications(w http.ResponseWriter, r *http.Request) {
	ctx := r.Context()

	userID := r.URL.Query().Get("user_id")
	if userID == "" {
		h.writeError(w, http.StatusBadRequest, "invalid_request", "Missing user_id", "user_id query parameter is required")
		return
	}

	limit := 20
	offset := 0

	if limitStr := r.URL.Query().Get("limit"); limitStr != "" {
		if l, err := strconv.Atoi(limitStr); err == nil && l > 0 && l <= 100 {
			limit = l
		}
	}
	if offsetStr := r.URL.Query().Get("offset"); offsetStr != "" {
		if o, err := strconv.Atoi(offsetStr); err == nil && o >= 0 {
			offset = o
		}
	}

	records, err := h.store.ListNotificationsByUser(ctx, userID, limit, offset)
	if err != nil {
		h.logger.Error("failed to list notifications",
			zap.Error(err),
			zap.String("user_id", userID),
		)
		h.writeError(w, http.StatusInternalServerError, "database_error", "Failed to list notifications", "")
		return
	}

	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(http.StatusOK)
	_ = json.NewEncoder(w).Encode(map[string]interface{}{
		"data":   records,
		"limit":  limit,
		"offset": offset,
		"count":  len(records),
	})
}

// CancelNotification handles POST /v1/notifications/{id}/cancel.
func (h *Handler) CancelNotification(w http.ResponseWriter, r *http.Request) {
	ctx := r.Context()

	id := chi.URLParam(r, "id")
	if id == "" {
		h.writeError(w, http.StatusBadRequest, "invalid_request", "Missing notification ID", "")
		return
	}

	err := h.sched.Cancel(ctx, id)
	if errors.Is(err, db.ErrNotFound) {
		h.writeError(w, http.StatusNotFound, "not_found", "Notification not found", "")
		return
	}
	if err != nil {
		h.logger.Error("failed to cancel notification",
			zap.Error(err),
			zap.String("id", id),
		)
		h.writeError(w, http.StatusInternalServerError, "cancel_error", "Failed to cancel notification", "")
		return
	}

	h.logger.Info("notification cancelled via API", zap.String("id", id))

	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(http.StatusOK)
	_ = json.NewEncoder(w).Encode(map[string]string{
		"id":     id,
		"status": "cancelled",
	})
}

func (h *Handler) writeError(w http.ResponseWriter, status int, errType, title, detail string) {
	w.Header().Set("Content-Type", "application/problem+json")
	w.WriteHeader(status)

	_ = json.NewEncoder(w).Encode(ErrorResponse{
		Type:   errType,
		Title:  title,
		Status: status,
		Detail: detail,
	})
}
