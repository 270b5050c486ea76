package orderservice

import (
	"context"
	"encoding/json"
	"errors"
	"net/http"
	"strconv"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/go-chi/chi/v5/middleware"
	"github.com/google/uuid"
	"github.com/jackc/pgx/v5"

	"delivery-platform/internal/domain/orders"
	"delivery-platform/internal/ports"
	"delivery-platform/internal/shared/logger"
	"delivery-platform/internal/shared/metrics"
)

// Handler exposes the order service over HTTP.
type Handler struct {
	svc     ports.OrderService
	flows   ports.OrderFlows
	logger  *logger.Logger
	ping    func(ctx context.Context) error
	secret  string
	metrics *metrics.Metrics
}

// NewHandler constructs the HTTP handler. ping reports DB health; secret
// enables the capability check on mutating routes (empty disables it).
func NewHandler(svc ports.OrderService, flows ports.OrderFlows, log *logger.Logger,
	ping func(ctx context.Context) error, secret string, m *metrics.Metrics) *Handler {
	return &Handler{svc: svc, flows: flows, logger: log, ping: ping, secret: secret, metrics: m}
}

// Routes builds the chi router.
func (h *Handler) Routes() http.Handler {
	r := chi.NewRouter()
	r.Use(middleware.Recoverer)
	r.Use(h.correlation)
	r.Use(h.countRequests)

	r.Get("/health", h.health)
	r.Method(http.MethodGet, "/metrics", metrics.Handler())
	r.Get("/stats/events", h.eventStats)

	r.Route("/orders", func(r chi.Router) {
		r.Get("/{number}", h.getOrder)
		r.Get("/{number}/events", h.getEvents)

		r.Group(func(r chi.Router) {
			r.Use(RequireCapability(h.secret, "orders:write"))
			r.Post("/", h.placeOrder)
			r.Post("/{number}/transition", h.transition)
			r.Post("/{number}/cancel", h.cancel)
			r.Post("/{number}/confirm", h.confirm)
			r.Post("/{number}/dispatch", h.dispatch)
		})
	})

	return r
}

// countRequests records one counter increment per served request, labelled
// with the matched route pattern and response status.
func (h *Handler) countRequests(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if h.metrics == nil {
			next.ServeHTTP(w, r)
			return
		}
		ww := middleware.NewWrapResponseWriter(w, r.ProtoMajor)
		next.ServeHTTP(ww, r)
		pattern := chi.RouteContext(r.Context()).RoutePattern()
		h.metrics.HTTPRequests.WithLabelValues(pattern, strconv.Itoa(ww.Status())).Inc()
	})
}

// correlation propagates X-Correlation-Id, minting one when absent.
func (h *Handler) correlation(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		id := r.Header.Get("X-Correlation-Id")
		if id == "" {
			id = uuid.NewString()
		}
		w.Header().Set("X-Correlation-Id", id)
		next.ServeHTTP(w, r.WithContext(h.logger.WithCorrelationID(r.Context(), id)))
	})
}

func (h *Handler) health(w http.ResponseWriter, r *http.Request) {
	ctx, cancel := context.WithTimeout(r.Context(), 3*time.Second)
	defer cancel()

	if err := h.ping(ctx); err != nil {
		writeJSON(w, http.StatusServiceUnavailable, map[string]string{"status": "unhealthy", "reason": "database unreachable"})
		return
	}
	writeJSON(w, http.StatusOK, map[string]string{"status": "ok"})
}

type itemRequest struct {
	Name      string  `json:"name"`
	Quantity  int     `json:"quantity"`
	UnitPrice float64 `json:"unit_price"`
}

type createOrderRequest struct {
	CustomerID   string        `json:"customer_id"`
	RestaurantID string        `json:"restaurant_id"`
	Items        []itemRequest `json:"items"`
	Tax          float64       `json:"tax"`
	DeliveryFee  float64       `json:"delivery_fee"`
	Tip          float64       `json:"tip"`
	Discount     float64       `json:"discount"`
}

type transitionRequest struct {
	To              string  `json:"to"`
	Actor           string  `json:"actor"`
	ExpectedVersion int64   `json:"expected_version"`
	PaymentID       *string `json:"payment_id,omitempty"`
	DriverID        *string `json:"driver_id,omitempty"`
	Reason          *string `json:"reason,omitempty"`
}

type cancelRequest struct {
	Actor           string  `json:"actor"`
	ExpectedVersion int64   `json:"expected_version"`
	Reason          *string `json:"reason,omitempty"`
}

type orderResponse struct {
	Number        string     `json:"order_number"`
	Status        string     `json:"status"`
	Version       int64      `json:"version"`
	CorrelationID string     `json:"correlation_id"`
	Subtotal      float64    `json:"subtotal"`
	Tax           float64    `json:"tax"`
	DeliveryFee   float64    `json:"delivery_fee"`
	Tip           float64    `json:"tip"`
	Discount      float64    `json:"discount"`
	Total         float64    `json:"total"`
	DriverID      *string    `json:"driver_id,omitempty"`
	CreatedAt     time.Time  `json:"created_at"`
	ConfirmedAt   *time.Time `json:"confirmed_at,omitempty"`
	CancelledAt   *time.Time `json:"cancelled_at,omitempty"`
	DeliveredAt   *time.Time `json:"delivered_at,omitempty"`
}

func (h *Handler) placeOrder(w http.ResponseWriter, r *http.Request) {
	var req createOrderRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		writeError(w, http.StatusBadRequest, "invalid JSON body")
		return
	}

	cmd := ports.CreateOrderCommand{
		CustomerID:   req.CustomerID,
		RestaurantID: req.RestaurantID,
		Tax:          orders.NewMoneyFromFloat2(req.Tax),
		DeliveryFee:  orders.NewMoneyFromFloat2(req.DeliveryFee),
		Tip:          orders.NewMoneyFromFloat2(req.Tip),
		Discount:     orders.NewMoneyFromFloat2(req.Discount),
	}
	for _, it := range req.Items {
		cmd.Items = append(cmd.Items, ports.ItemInput{
			Name:      it.Name,
			Quantity:  it.Quantity,
			UnitPrice: orders.NewMoneyFromFloat2(it.UnitPrice),
		})
	}

	view, err := h.svc.PlaceOrder(r.Context(), cmd)
	if err != nil {
		h.writeServiceError(w, r, err)
		return
	}
	writeJSON(w, http.StatusCreated, toResponse(view))
}

func (h *Handler) transition(w http.ResponseWriter, r *http.Request) {
	var req transitionRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		writeError(w, http.StatusBadRequest, "invalid JSON body")
		return
	}

	view, err := h.svc.Transition(r.Context(), ports.TransitionCommand{
		Number:          chi.URLParam(r, "number"),
		To:              orders.OrderStatus(req.To),
		Actor:           req.Actor,
		ExpectedVersion: req.ExpectedVersion,
		PaymentID:       req.PaymentID,
		DriverID:        req.DriverID,
		Reason:          req.Reason,
	})
	if err != nil {
		h.writeServiceError(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, toResponse(view))
}

func (h *Handler) cancel(w http.ResponseWriter, r *http.Request) {
	var req cancelRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		writeError(w, http.StatusBadRequest, "invalid JSON body")
		return
	}

	view, err := h.svc.Transition(r.Context(), ports.TransitionCommand{
		Number:          chi.URLParam(r, "number"),
		To:              orders.StatusCancelled,
		Actor:           req.Actor,
		ExpectedVersion: req.ExpectedVersion,
		Reason:          req.Reason,
	})
	if err != nil {
		h.writeServiceError(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, toResponse(view))
}

// confirm runs the payment saga and returns the refreshed order.
func (h *Handler) confirm(w http.ResponseWriter, r *http.Request) {
	number := chi.URLParam(r, "number")
	if err := h.flows.Confirm(r.Context(), number); err != nil {
		h.writeServiceError(w, r, err)
		return
	}

	view, err := h.svc.GetOrder(r.Context(), number)
	if err != nil {
		h.writeServiceError(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, toResponse(view))
}

// dispatch runs the driver-assignment saga and returns the refreshed order.
func (h *Handler) dispatch(w http.ResponseWriter, r *http.Request) {
	number := chi.URLParam(r, "number")
	if err := h.flows.Dispatch(r.Context(), number); err != nil {
		h.writeServiceError(w, r, err)
		return
	}

	view, err := h.svc.GetOrder(r.Context(), number)
	if err != nil {
		h.writeServiceError(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, toResponse(view))
}

func (h *Handler) getOrder(w http.ResponseWriter, r *http.Request) {
	view, err := h.svc.GetOrder(r.Context(), chi.URLParam(r, "number"))
	if err != nil {
		h.writeServiceError(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, toResponse(view))
}

type eventResponse struct {
	EventID   string    `json:"event_id"`
	Type      string    `json:"event_type"`
	EventTime time.Time `json:"event_time"`
	Processed bool      `json:"processed"`
}

func (h *Handler) getEvents(w http.ResponseWriter, r *http.Request) {
	evs, err := h.svc.OrderEvents(r.Context(), chi.URLParam(r, "number"))
	if err != nil {
		h.writeServiceError(w, r, err)
		return
	}
	out := make([]eventResponse, 0, len(evs))
	for _, ev := range evs {
		out = append(out, eventResponse{EventID: ev.EventID, Type: ev.Type, EventTime: ev.EventTime, Processed: ev.Processed})
	}
	writeJSON(w, http.StatusOK, out)
}

func (h *Handler) eventStats(w http.ResponseWriter, r *http.Request) {
	since := time.Now().UTC().AddDate(0, 0, -1)
	if raw := r.URL.Query().Get("since"); raw != "" {
		parsed, err := time.Parse("2006-01-02", raw)
		if err != nil {
			writeError(w, http.StatusBadRequest, "since must be YYYY-MM-DD")
			return
		}
		since = parsed
	}

	counts, err := h.svc.EventVolume(r.Context(), since)
	if err != nil {
		h.writeServiceError(w, r, err)
		return
	}

	type countResponse struct {
		Type  string `json:"event_type"`
		Count int64  `json:"count"`
	}
	out := make([]countResponse, 0, len(counts))
	for _, c := range counts {
		out = append(out, countResponse{Type: c.Type, Count: c.Count})
	}
	writeJSON(w, http.StatusOK, out)
}

// writeServiceError maps domain errors onto HTTP statuses.
func (h *Handler) writeServiceError(w http.ResponseWriter, r *http.Request, err error) {
	var invalid *orders.InvalidTransitionError
	switch {
	case errors.Is(err, pgx.ErrNoRows):
		writeError(w, http.StatusNotFound, "order not found")
	case errors.Is(err, orders.ErrVersionConflict):
		writeError(w, http.StatusConflict, err.Error())
	case errors.As(err, &invalid):
		writeError(w, http.StatusUnprocessableEntity, invalid.Error())
	default:
		h.logger.Error(r.Context(), "request_failed", "Request failed", err)
		writeError(w, http.StatusInternalServerError, "internal error")
	}
}

func toResponse(v ports.OrderView) orderResponse {
	return orderResponse{
		Number:        v.Number,
		Status:        string(v.Status),
		Version:       v.Version,
		CorrelationID: v.CorrelationID,
		Subtotal:      v.Subtotal.ToFloat2(),
		Tax:           v.Tax.ToFloat2(),
		DeliveryFee:   v.DeliveryFee.ToFloat2(),
		Tip:           v.Tip.ToFloat2(),
		Discount:      v.Discount.ToFloat2(),
		Total:         v.Total.ToFloat2(),
		DriverID:      v.DriverID,
		CreatedAt:     v.CreatedAt,
		ConfirmedAt:   v.ConfirmedAt,
		CancelledAt:   v.CancelledAt,
		DeliveredAt:   v.DeliveredAt,
	}
}

func writeJSON(w http.ResponseWriter, status int, body any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	_ = json.NewEncoder(w).Encode(body)
}

func writeError(w http.ResponseWriter, status int, msg string) {
	writeJSON(w, status, map[string]string{"error": msg})
}
