package notifications

import (
	"encoding/json"
	"net/http"
	"strconv"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/go-chi/chi/v5/middleware"

	"delivery-platform/internal/shared/logger"
	"delivery-platform/internal/shared/metrics"
)

// Handler exposes the in-app feed and the delivery stats over HTTP.
type Handler struct {
	svc    *Service
	logger *logger.Logger
}

// NewHandler constructs the HTTP handler.
func NewHandler(svc *Service, log *logger.Logger) *Handler {
	return &Handler{svc: svc, logger: log}
}

// Routes builds the chi router.
func (h *Handler) Routes() http.Handler {
	r := chi.NewRouter()
	r.Use(middleware.Recoverer)

	r.Get("/health", func(w http.ResponseWriter, r *http.Request) {
		writeJSON(w, http.StatusOK, map[string]string{"status": "ok"})
	})
	r.Method(http.MethodGet, "/metrics", metrics.Handler())

	r.Route("/notifications", func(r chi.Router) {
		r.Get("/{recipient}", h.list)
		r.Get("/{recipient}/unread-count", h.unreadCount)
		r.Post("/{recipient}/read-all", h.markAllRead)
		r.Post("/read/{id}", h.markRead)
	})
	r.Get("/stats/deliveries", h.deliveryStats)

	return r
}

type notificationResponse struct {
	NotificationID string          `json:"notification_id"`
	Template       string          `json:"template"`
	Payload        json.RawMessage `json:"payload"`
	Status         string          `json:"status"`
	CreatedAt      time.Time       `json:"created_at"`
	ReadAt         *time.Time      `json:"read_at,omitempty"`
}

func (h *Handler) list(w http.ResponseWriter, r *http.Request) {
	limit, _ := strconv.Atoi(r.URL.Query().Get("limit"))

	items, err := h.svc.ListInApp(r.Context(), chi.URLParam(r, "recipient"), limit)
	if err != nil {
		h.logger.Error(r.Context(), "request_failed", "Failed to list notifications", err)
		writeError(w, http.StatusInternalServerError, "internal error")
		return
	}

	out := make([]notificationResponse, 0, len(items))
	for _, n := range items {
		out = append(out, notificationResponse{
			NotificationID: n.NotificationID,
			Template:       n.Template,
			Payload:        json.RawMessage(n.Payload),
			Status:         string(n.Status),
			CreatedAt:      n.CreatedAt,
			ReadAt:         n.ReadAt,
		})
	}
	writeJSON(w, http.StatusOK, out)
}

func (h *Handler) unreadCount(w http.ResponseWriter, r *http.Request) {
	n, err := h.svc.UnreadCount(r.Context(), chi.URLParam(r, "recipient"))
	if err != nil {
		h.logger.Error(r.Context(), "request_failed", "Failed to count unread notifications", err)
		writeError(w, http.StatusInternalServerError, "internal error")
		return
	}
	writeJSON(w, http.StatusOK, map[string]int64{"unread": n})
}

func (h *Handler) markRead(w http.ResponseWriter, r *http.Request) {
	applied, err := h.svc.MarkRead(r.Context(), chi.URLParam(r, "id"))
	if err != nil {
		h.logger.Error(r.Context(), "request_failed", "Failed to mark notification read", err)
		writeError(w, http.StatusInternalServerError, "internal error")
		return
	}
	writeJSON(w, http.StatusOK, map[string]bool{"applied": applied})
}

func (h *Handler) markAllRead(w http.ResponseWriter, r *http.Request) {
	updated, err := h.svc.MarkAllRead(r.Context(), chi.URLParam(r, "recipient"))
	if err != nil {
		h.logger.Error(r.Context(), "request_failed", "Failed to mark notifications read", err)
		writeError(w, http.StatusInternalServerError, "internal error")
		return
	}
	writeJSON(w, http.StatusOK, map[string]int64{"updated": updated})
}

func (h *Handler) deliveryStats(w http.ResponseWriter, r *http.Request) {
	since := time.Now().UTC().AddDate(0, 0, -7)
	if raw := r.URL.Query().Get("since"); raw != "" {
		parsed, err := time.Parse("2006-01-02", raw)
		if err != nil {
			writeError(w, http.StatusBadRequest, "since must be YYYY-MM-DD")
			return
		}
		since = parsed
	}

	stats, err := h.svc.DeliveryStats(r.Context(), since)
	if err != nil {
		h.logger.Error(r.Context(), "request_failed", "Failed to load delivery stats", err)
		writeError(w, http.StatusInternalServerError, "internal error")
		return
	}

	type statResponse struct {
		Channel string `json:"channel"`
		Status  string `json:"status"`
		Count   int64  `json:"count"`
	}
	out := make([]statResponse, 0, len(stats))
	for _, s := range stats {
		out = append(out, statResponse{Channel: string(s.Channel), Status: string(s.Status), Count: s.Count})
	}
	writeJSON(w, http.StatusOK, out)
}

func writeJSON(w http.ResponseWriter, status int, body any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	_ = json.NewEncoder(w).Encode(body)
}

func writeError(w http.ResponseWriter, status int, msg string) {
	writeJSON(w, status, map[string]string{"error": msg})
}
