package orderstore

import (
	"encoding/json"
	"net/http"
	"strconv"
	"time"

	"github.com/google/uuid"
	"go.uber.org/zap"

	"github.com/swifttrack/core/internal/domain"
	"github.com/swifttrack/core/internal/metrics"
)

// Server exposes the Order Store over HTTP: plain CRUD for the saga's
// idempotence probe and list/detail views, plus the driver-initiated
// status PATCH that folds §4.5's DELIVERY_ATTEMPTED escalation rule in.
type Server struct {
	store   *Store
	logger  *zap.Logger
	metrics *metrics.HTTP
}

// NewServer wires a Store into an http.ServeMux using Go 1.22+
// method+pattern routing, the way the teacher's gateway routes.
func NewServer(store *Store, logger *zap.Logger, m *metrics.HTTP) *http.ServeMux {
	s := &Server{store: store, logger: logger, metrics: m}

	mux := http.NewServeMux()
	mux.Handle("POST /api/orders", s.instrument("/api/orders", s.handleCreate))
	mux.Handle("GET /api/orders", s.instrument("/api/orders", s.handleList))
	mux.Handle("GET /api/orders/{id}", s.instrument("/api/orders/{id}", s.handleGet))
	mux.Handle("PATCH /api/orders/{id}/status", s.instrument("/api/orders/{id}/status", s.handlePatchStatus))
	mux.HandleFunc("GET /healthz", s.handleHealthz)
	return mux
}

// instrument stamps the response with a fresh X-Request-ID and an
// X-Correlation-ID (forwarded from the request if present, else fresh),
// and records request count and latency under the route pattern
// (not the expanded path, to keep cardinality bounded), the way the
// teacher's HTTPMetrics.RecordHTTPRequest does.
func (s *Server) instrument(pattern string, next http.HandlerFunc) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		start := time.Now()
		correlationID := r.Header.Get("X-Correlation-ID")
		if correlationID == "" {
			correlationID = uuid.NewString()
		}
		w.Header().Set("X-Request-ID", uuid.NewString())
		w.Header().Set("X-Correlation-ID", correlationID)
		rec := &statusRecorder{ResponseWriter: w, status: http.StatusOK}
		next(rec, r)
		if s.metrics != nil {
			s.metrics.Record(r.Method, pattern, strconv.Itoa(rec.status), time.Since(start))
		}
	})
}

type statusRecorder struct {
	http.ResponseWriter
	status int
}

func (r *statusRecorder) WriteHeader(status int) {
	r.status = status
	r.ResponseWriter.WriteHeader(status)
}

type createOrderRequest struct {
	ClientID        string          `json:"client_id"`
	PickupAddress   string          `json:"pickup_address"`
	DeliveryAddress string          `json:"delivery_address"`
	PackageDetails  domain.Document `json:"package_details"`
}

func (s *Server) handleCreate(w http.ResponseWriter, r *http.Request) {
	var req createOrderRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		writeError(w, http.StatusBadRequest, "invalid request body")
		return
	}
	if req.ClientID == "" || req.PickupAddress == "" || req.DeliveryAddress == "" {
		writeError(w, http.StatusBadRequest, "client_id, pickup_address, delivery_address are required")
		return
	}

	order, err := s.store.Create(r.Context(), req.ClientID, req.PickupAddress, req.DeliveryAddress, req.PackageDetails)
	if err != nil {
		s.logger.Error("create order failed", zap.Error(err))
		writeError(w, http.StatusInternalServerError, "failed to create order")
		return
	}

	writeJSON(w, http.StatusCreated, order)
}

func (s *Server) handleGet(w http.ResponseWriter, r *http.Request) {
	id := r.PathValue("id")
	order, err := s.store.Get(r.Context(), id)
	if err != nil {
		s.logger.Error("get order failed", zap.String("order_id", id), zap.Error(err))
		writeError(w, http.StatusInternalServerError, "failed to load order")
		return
	}
	if order == nil {
		writeError(w, http.StatusNotFound, "order not found")
		return
	}
	writeJSON(w, http.StatusOK, order)
}

func (s *Server) handleList(w http.ResponseWriter, r *http.Request) {
	q := r.URL.Query()
	filters := ListFilters{
		ClientID:         q.Get("client_id"),
		PickupDriverID:   q.Get("pickup_driver_id"),
		DeliveryDriverID: q.Get("delivery_driver_id"),
		DriverIDAny:      q.Get("driver_id_any"),
		Status:           domain.Status(q.Get("status")),
	}

	limit := 50
	offset := 0
	if v, err := strconv.Atoi(q.Get("limit")); err == nil && v > 0 {
		limit = v
	}
	if v, err := strconv.Atoi(q.Get("offset")); err == nil && v >= 0 {
		offset = v
	}

	orders, total, err := s.store.List(r.Context(), filters, limit, offset)
	if err != nil {
		s.logger.Error("list orders failed", zap.Error(err))
		writeError(w, http.StatusInternalServerError, "failed to list orders")
		return
	}

	writeJSON(w, http.StatusOK, map[string]any{
		"orders": orders,
		"total":  total,
		"limit":  limit,
		"offset": offset,
	})
}

type patchStatusRequest struct {
	Status           domain.Status   `json:"status"`
	Details          string          `json:"details"`
	DeliveryNotes    *string         `json:"delivery_notes,omitempty"`
	ProofOfDelivery  domain.Document `json:"proof_of_delivery,omitempty"`
	DeliveryDriverID *string         `json:"delivery_driver_id,omitempty"`
}

// handlePatchStatus is the driver-initiated transition entry point of
// spec.md §4.5: on DELIVERY_ATTEMPTED it increments delivery_attempts and,
// if that reaches max_delivery_attempts, rewrites the target status to
// FAILED instead.
func (s *Server) handlePatchStatus(w http.ResponseWriter, r *http.Request) {
	id := r.PathValue("id")

	var req patchStatusRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		writeError(w, http.StatusBadRequest, "invalid request body")
		return
	}
	if req.Status == "" {
		writeError(w, http.StatusBadRequest, "status is required")
		return
	}

	current, err := s.store.Get(r.Context(), id)
	if err != nil {
		s.logger.Error("get order for patch failed", zap.String("order_id", id), zap.Error(err))
		writeError(w, http.StatusInternalServerError, "failed to load order")
		return
	}
	if current == nil {
		writeError(w, http.StatusNotFound, "order not found")
		return
	}

	targetStatus := req.Status
	extra := &domain.TransitionFields{
		DeliveryNotes:    req.DeliveryNotes,
		ProofOfDelivery:  req.ProofOfDelivery,
		DeliveryDriverID: req.DeliveryDriverID,
	}

	if targetStatus == domain.StatusDeliveryAttempt {
		attempts := current.DeliveryAttempts + 1
		extra.DeliveryAttempts = &attempts
		if attempts >= current.MaxDeliveryAttempts {
			targetStatus = domain.StatusFailed
		}
	}

	order, err := s.store.Transition(r.Context(), id, targetStatus, req.Details, extra)
	if err != nil {
		s.logger.Error("transition failed", zap.String("order_id", id), zap.Error(err))
		writeError(w, http.StatusInternalServerError, "failed to transition order")
		return
	}
	if order == nil {
		writeError(w, http.StatusNotFound, "order not found")
		return
	}

	writeJSON(w, http.StatusOK, order)
}

func (s *Server) handleHealthz(w http.ResponseWriter, r *http.Request) {
	writeJSON(w, http.StatusOK, map[string]string{"status": "ok"})
}

func writeJSON(w http.ResponseWriter, status int, body any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	_ = json.NewEncoder(w).Encode(body)
}

func writeError(w http.ResponseWriter, status int, message string) {
	writeJSON(w, status, map[string]string{"error": message})
}
