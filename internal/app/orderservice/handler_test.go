package orderservice

import (
	"context"
	"fmt"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"
	"time"

	"github.com/golang-jwt/jwt/v5"
	"github.com/jackc/pgx/v5"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/testutil"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"delivery-platform/internal/domain/orders"
	"delivery-platform/internal/ports"
	"delivery-platform/internal/shared/logger"
	"delivery-platform/internal/shared/metrics"
)

type stubOrderService struct {
	ports.OrderService

	view   ports.OrderView
	counts []ports.EventTypeCount
	err    error
}

func (s *stubOrderService) PlaceOrder(ctx context.Context, cmd ports.CreateOrderCommand) (ports.OrderView, error) {
	return s.view, s.err
}

func (s *stubOrderService) Transition(ctx context.Context, cmd ports.TransitionCommand) (ports.OrderView, error) {
	return s.view, s.err
}

func (s *stubOrderService) GetOrder(ctx context.Context, number string) (ports.OrderView, error) {
	return s.view, s.err
}

func (s *stubOrderService) EventVolume(ctx context.Context, since time.Time) ([]ports.EventTypeCount, error) {
	return s.counts, s.err
}

type stubFlows struct {
	confirmed  []string
	dispatched []string
	err        error
}

func (s *stubFlows) Confirm(ctx context.Context, number string) error {
	if s.err != nil {
		return s.err
	}
	s.confirmed = append(s.confirmed, number)
	return nil
}

func (s *stubFlows) Dispatch(ctx context.Context, number string) error {
	if s.err != nil {
		return s.err
	}
	s.dispatched = append(s.dispatched, number)
	return nil
}

func newTestHandler(svc ports.OrderService, secret string) http.Handler {
	h := NewHandler(svc, &stubFlows{}, logger.NewLogger("handler-test"),
		func(ctx context.Context) error { return nil }, secret, nil)
	return h.Routes()
}

func TestGetOrderNotFound(t *testing.T) {
	handler := newTestHandler(&stubOrderService{err: pgx.ErrNoRows}, "")

	rec := httptest.NewRecorder()
	handler.ServeHTTP(rec, httptest.NewRequest(http.MethodGet, "/orders/ORD_X", nil))

	assert.Equal(t, http.StatusNotFound, rec.Code)
}

func TestTransitionConflictMapsTo409(t *testing.T) {
	handler := newTestHandler(&stubOrderService{err: orders.ErrVersionConflict}, "")

	rec := httptest.NewRecorder()
	req := httptest.NewRequest(http.MethodPost, "/orders/ORD_X/transition",
		strings.NewReader(`{"to":"CONFIRMED","actor":"saga","expected_version":2}`))
	handler.ServeHTTP(rec, req)

	assert.Equal(t, http.StatusConflict, rec.Code)
}

func TestTransitionInvalidEdgeMapsTo422(t *testing.T) {
	handler := newTestHandler(&stubOrderService{
		err: &orders.InvalidTransitionError{From: orders.StatusPending, To: orders.StatusDelivered},
	}, "")

	rec := httptest.NewRecorder()
	req := httptest.NewRequest(http.MethodPost, "/orders/ORD_X/transition",
		strings.NewReader(`{"to":"DELIVERED","actor":"driver"}`))
	handler.ServeHTTP(rec, req)

	assert.Equal(t, http.StatusUnprocessableEntity, rec.Code)
	assert.Contains(t, rec.Body.String(), "invalid transition")
}

func TestPlaceOrderBadJSON(t *testing.T) {
	handler := newTestHandler(&stubOrderService{}, "")

	rec := httptest.NewRecorder()
	req := httptest.NewRequest(http.MethodPost, "/orders/", strings.NewReader("{"))
	handler.ServeHTTP(rec, req)

	assert.Equal(t, http.StatusBadRequest, rec.Code)
}

func TestCorrelationHeaderEchoed(t *testing.T) {
	handler := newTestHandler(&stubOrderService{}, "")

	rec := httptest.NewRecorder()
	req := httptest.NewRequest(http.MethodGet, "/orders/ORD_X", nil)
	req.Header.Set("X-Correlation-Id", "corr-42")
	handler.ServeHTTP(rec, req)

	assert.Equal(t, "corr-42", rec.Header().Get("X-Correlation-Id"))
}

func TestConfirmRunsFlowAndReturnsOrder(t *testing.T) {
	flows := &stubFlows{}
	h := NewHandler(&stubOrderService{view: ports.OrderView{Number: "ORD_X", Status: orders.StatusConfirmed}},
		flows, logger.NewLogger("handler-test"),
		func(ctx context.Context) error { return nil }, "", nil)
	handler := h.Routes()

	rec := httptest.NewRecorder()
	handler.ServeHTTP(rec, httptest.NewRequest(http.MethodPost, "/orders/ORD_X/confirm", nil))

	assert.Equal(t, http.StatusOK, rec.Code)
	assert.Equal(t, []string{"ORD_X"}, flows.confirmed)
	assert.Contains(t, rec.Body.String(), `"CONFIRMED"`)
}

func TestDispatchFlowConflictMapsTo409(t *testing.T) {
	flows := &stubFlows{err: fmt.Errorf("saga step out_for_delivery: %w", orders.ErrVersionConflict)}
	h := NewHandler(&stubOrderService{}, flows, logger.NewLogger("handler-test"),
		func(ctx context.Context) error { return nil }, "", nil)
	handler := h.Routes()

	rec := httptest.NewRecorder()
	handler.ServeHTTP(rec, httptest.NewRequest(http.MethodPost, "/orders/ORD_X/dispatch", nil))

	assert.Equal(t, http.StatusConflict, rec.Code)
}

func TestRequestCounterTracksRouteAndStatus(t *testing.T) {
	m := metrics.New(prometheus.NewRegistry())
	h := NewHandler(&stubOrderService{err: pgx.ErrNoRows}, &stubFlows{},
		logger.NewLogger("handler-test"),
		func(ctx context.Context) error { return nil }, "", m)
	handler := h.Routes()

	rec := httptest.NewRecorder()
	handler.ServeHTTP(rec, httptest.NewRequest(http.MethodGet, "/orders/ORD_X", nil))

	got := testutil.ToFloat64(m.HTTPRequests.WithLabelValues("/orders/{number}", "404"))
	assert.Equal(t, 1.0, got)
}

func TestEventStats(t *testing.T) {
	handler := newTestHandler(&stubOrderService{counts: []ports.EventTypeCount{
		{Type: "order.created", Count: 12},
	}}, "")

	rec := httptest.NewRecorder()
	handler.ServeHTTP(rec, httptest.NewRequest(http.MethodGet, "/stats/events?since=2026-08-31", nil))

	assert.Equal(t, http.StatusOK, rec.Code)
	assert.Contains(t, rec.Body.String(), `"order.created"`)
	assert.Contains(t, rec.Body.String(), `"count":12`)
}

func TestEventStatsBadSince(t *testing.T) {
	handler := newTestHandler(&stubOrderService{}, "")

	rec := httptest.NewRecorder()
	handler.ServeHTTP(rec, httptest.NewRequest(http.MethodGet, "/stats/events?since=yesterday", nil))

	assert.Equal(t, http.StatusBadRequest, rec.Code)
}

func signedToken(t *testing.T, secret string, caps []string) string {
	t.Helper()
	token := jwt.NewWithClaims(jwt.SigningMethodHS256, jwt.MapClaims{
		"sub":  "svc-test",
		"caps": caps,
		"exp":  time.Now().Add(time.Hour).Unix(),
	})
	signed, err := token.SignedString([]byte(secret))
	require.NoError(t, err)
	return signed
}

func TestMutationRequiresToken(t *testing.T) {
	handler := newTestHandler(&stubOrderService{}, "test-secret")

	rec := httptest.NewRecorder()
	req := httptest.NewRequest(http.MethodPost, "/orders/ORD_X/cancel",
		strings.NewReader(`{"actor":"customer"}`))
	handler.ServeHTTP(rec, req)
	assert.Equal(t, http.StatusUnauthorized, rec.Code)
}

func TestMutationRequiresCapability(t *testing.T) {
	handler := newTestHandler(&stubOrderService{}, "test-secret")

	rec := httptest.NewRecorder()
	req := httptest.NewRequest(http.MethodPost, "/orders/ORD_X/cancel",
		strings.NewReader(`{"actor":"customer"}`))
	req.Header.Set("Authorization", "Bearer "+signedToken(t, "test-secret", []string{"orders:read"}))
	handler.ServeHTTP(rec, req)
	assert.Equal(t, http.StatusForbidden, rec.Code)
}

func TestMutationWithCapabilitySucceeds(t *testing.T) {
	handler := newTestHandler(&stubOrderService{view: ports.OrderView{Number: "ORD_X", Status: orders.StatusCancelled}}, "test-secret")

	rec := httptest.NewRecorder()
	req := httptest.NewRequest(http.MethodPost, "/orders/ORD_X/cancel",
		strings.NewReader(`{"actor":"customer"}`))
	req.Header.Set("Authorization", "Bearer "+signedToken(t, "test-secret", []string{"orders:write"}))
	handler.ServeHTTP(rec, req)
	assert.Equal(t, http.StatusOK, rec.Code)

	// reads stay open
	rec = httptest.NewRecorder()
	handler.ServeHTTP(rec, httptest.NewRequest(http.MethodGet, "/orders/ORD_X", nil))
	assert.Equal(t, http.StatusOK, rec.Code)
}
