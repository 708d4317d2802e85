// Package support keeps a short conversation between each customer and the
// shop. Customer messages get an automatic reply; admins can answer any
// customer and purge messages past their retention window.
package support

import (
	"context"
	"encoding/json"
	"log/slog"
	"math/rand/v2"
	"net/http"
	"strings"
	"time"
	"unicode/utf8"

	"github.com/google/uuid"

	"github.com/joao-fontenele/shopledger/internal/domain"
	"github.com/joao-fontenele/shopledger/internal/identity"
)

const (
	MaxMessageLength = 2000
	Retention        = 24 * time.Hour
)

var DefaultReplies = []string{
	"Thanks for reaching out! A member of our team will get back to you shortly.",
	"We have received your message and will reply as soon as possible.",
	"Thank you for contacting us. Our support team is looking into it.",
}

type Store interface {
	Create(ctx context.Context, msg *domain.SupportMessage) error
	ListForUser(ctx context.Context, userID string) ([]domain.SupportMessage, error)
	DeleteOlderThan(ctx context.Context, cutoff time.Time) (int64, error)
}

type Handler struct {
	store   Store
	logger  *slog.Logger
	replies []string
	pick    func(n int) int
	now     func() time.Time
}

type Option func(*Handler)

// WithReplies replaces the auto-reply pool and how a reply is picked from it.
func WithReplies(replies []string, pick func(n int) int) Option {
	return func(h *Handler) {
		h.replies = replies
		h.pick = pick
	}
}

func WithClock(now func() time.Time) Option {
	return func(h *Handler) {
		h.now = now
	}
}

func NewHandler(store Store, logger *slog.Logger, opts ...Option) *Handler {
	h := &Handler{
		store:   store,
		logger:  logger,
		replies: DefaultReplies,
		pick:    rand.IntN,
		now:     time.Now,
	}
	for _, opt := range opts {
		opt(h)
	}
	return h
}

// HandleList returns the caller's conversation. Admins may read any
// customer's with ?user_id=.
func (h *Handler) HandleList(w http.ResponseWriter, r *http.Request) {
	caller, _ := identity.FromContext(r.Context())
	userID := caller.UserID
	if other := strings.TrimSpace(r.URL.Query().Get("user_id")); other != "" && other != userID {
		if !caller.IsAdmin() {
			h.writeError(w, http.StatusForbidden, "admin role required")
			return
		}
		userID = other
	}

	messages, err := h.store.ListForUser(r.Context(), userID)
	if err != nil {
		h.logger.Error("failed to list support messages", "error", err, "user_id", userID)
		h.writeError(w, http.StatusInternalServerError, "internal server error")
		return
	}

	h.writeJSON(w, http.StatusOK, messages)
}

type postRequest struct {
	Message string `json:"message"`
	UserID  string `json:"user_id"`
}

// HandlePost records a message. A customer message is answered from the
// reply pool; an admin message addressed to user_id is stored as the shop's
// side of that customer's conversation.
func (h *Handler) HandlePost(w http.ResponseWriter, r *http.Request) {
	var req postRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		h.writeError(w, http.StatusBadRequest, "invalid request body")
		return
	}
	text := strings.TrimSpace(req.Message)
	if text == "" {
		h.writeError(w, http.StatusBadRequest, "message is required")
		return
	}
	if utf8.RuneCountInString(text) > MaxMessageLength {
		h.writeError(w, http.StatusBadRequest, "message is too long")
		return
	}

	caller, _ := identity.FromContext(r.Context())
	msg := &domain.SupportMessage{
		ID:      uuid.New().String(),
		UserID:  caller.UserID,
		Message: text,
	}

	if target := strings.TrimSpace(req.UserID); target != "" && target != caller.UserID {
		if !caller.IsAdmin() {
			h.writeError(w, http.StatusForbidden, "admin role required")
			return
		}
		msg.UserID = target
		msg.FromAdmin = true
	} else if len(h.replies) > 0 {
		reply := h.replies[h.pick(len(h.replies))]
		msg.Response = &reply
	}

	if err := h.store.Create(r.Context(), msg); err != nil {
		h.logger.Error("failed to save support message", "error", err, "user_id", msg.UserID)
		h.writeError(w, http.StatusInternalServerError, "internal server error")
		return
	}

	h.logger.Info("support message saved", "message_id", msg.ID, "user_id", msg.UserID, "from_admin", msg.FromAdmin)
	h.writeJSON(w, http.StatusCreated, msg)
}

// HandleClearExpired deletes every message older than Retention. Route it
// behind identity.RequireAdmin.
func (h *Handler) HandleClearExpired(w http.ResponseWriter, r *http.Request) {
	cutoff := h.now().Add(-Retention)

	deleted, err := h.store.DeleteOlderThan(r.Context(), cutoff)
	if err != nil {
		h.logger.Error("failed to clear expired support messages", "error", err)
		h.writeError(w, http.StatusInternalServerError, "internal server error")
		return
	}

	h.logger.Info("expired support messages cleared", "deleted", deleted, "cutoff", cutoff)
	h.writeJSON(w, http.StatusOK, map[string]int64{"deleted": deleted})
}

func (h *Handler) writeJSON(w http.ResponseWriter, status int, data any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	if err := json.NewEncoder(w).Encode(data); err != nil {
		h.logger.Error("failed to encode response", "error", err)
	}
}

func (h *Handler) writeError(w http.ResponseWriter, status int, message string) {
	h.writeJSON(w, status, map[string]string{"error": message})
}
