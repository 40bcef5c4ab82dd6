// Package saga drives an order through CMS → WMS → ROS, with an
// idempotence probe that skips steps already reflected in the order's
// status, and reverse-order compensation on failure.
package saga

import (
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"time"

	"go.uber.org/zap"

	"github.com/swifttrack/core/internal/domain"
	"github.com/swifttrack/core/internal/metrics"
	"github.com/swifttrack/core/internal/saga/ros"
)

// CMSClient is the subset of cms.Client the orchestrator drives.
type CMSClient interface {
	Register(ctx context.Context, orderID, clientID, pickup, delivery string) (string, error)
	Cancel(ctx context.Context, orderID, clientID string) error
}

// WMSClient is the subset of wms.Client the orchestrator drives.
type WMSClient interface {
	AddPackage(ctx context.Context, orderID, detailsJSON string) (string, error)
	CancelPackage(ctx context.Context, orderID string) error
}

// ROSClient is the subset of ros.Client the orchestrator drives.
type ROSClient interface {
	Optimize(ctx context.Context, orderID, deliveryAddress string) (*ros.OptimizeResponse, error)
}

// Step names, used both as SagaResult bookkeeping and as metric labels.
const (
	StepCMSRegistered  = "CMS_REGISTERED"
	StepWMSReceived    = "WMS_RECEIVED"
	StepRouteOptimized = "ROUTE_OPTIMIZED"
)

// OrderInput is the subset of order.created's body the saga needs.
type OrderInput struct {
	OrderID         string          `json:"order_id"`
	ClientID        string          `json:"client_id"`
	PickupAddress   string          `json:"pickup_address"`
	DeliveryAddress string          `json:"delivery_address"`
	PackageDetails  domain.Document `json:"package_details"`
}

// Result is the saga's output: what succeeded, what was skipped, and
// what failed.
type Result struct {
	Success        bool
	OrderID        string
	CMSReference   string
	WMSReference   string
	RouteID        string
	Error          string
	CompletedSteps []string
	SkippedSteps   []string
}

// OrderStatusProbe is the Order Store's HTTP interface as seen by the
// saga's idempotence probe.
type OrderStatusProbe interface {
	CurrentStatus(ctx context.Context, orderID string) (domain.Status, error)
}

// HTTPStatusProbe implements OrderStatusProbe against the Order Store's
// GET /api/orders/{id}.
type HTTPStatusProbe struct {
	BaseURL string
	Client  *http.Client
}

// NewHTTPStatusProbe builds a probe with a 30s client timeout, per
// spec.md §5.
func NewHTTPStatusProbe(baseURL string) *HTTPStatusProbe {
	return &HTTPStatusProbe{BaseURL: baseURL, Client: &http.Client{Timeout: 30 * time.Second}}
}

type orderStatusResponse struct {
	Status domain.Status `json:"status"`
}

// CurrentStatus fetches the order's current status for the idempotence
// probe.
func (p *HTTPStatusProbe) CurrentStatus(ctx context.Context, orderID string) (domain.Status, error) {
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, p.BaseURL+"/api/orders/"+orderID, nil)
	if err != nil {
		return "", fmt.Errorf("saga: build status probe request: %w", err)
	}
	resp, err := p.Client.Do(req)
	if err != nil {
		return "", fmt.Errorf("saga: status probe request failed: %w", err)
	}
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusOK {
		return "", fmt.Errorf("saga: status probe returned %d", resp.StatusCode)
	}

	raw, err := io.ReadAll(resp.Body)
	if err != nil {
		return "", fmt.Errorf("saga: read status probe response: %w", err)
	}

	var parsed orderStatusResponse
	if err := json.Unmarshal(raw, &parsed); err != nil {
		return "", fmt.Errorf("saga: parse status probe response: %w", err)
	}
	return parsed.Status, nil
}

// Orchestrator executes the three-step saga against the CMS, WMS, and
// ROS transport clients.
type Orchestrator struct {
	cms     CMSClient
	wms     WMSClient
	ros     ROSClient
	probe   OrderStatusProbe
	logger  *zap.Logger
	metrics *metrics.External
	bizm    *metrics.Business
}

// New builds an Orchestrator from its three downstream clients and a
// status probe.
func New(cmsClient CMSClient, wmsClient WMSClient, rosClient ROSClient, probe OrderStatusProbe, logger *zap.Logger, externalMetrics *metrics.External, businessMetrics *metrics.Business) *Orchestrator {
	return &Orchestrator{
		cms:     cmsClient,
		wms:     wmsClient,
		ros:     rosClient,
		probe:   probe,
		logger:  logger,
		metrics: externalMetrics,
		bizm:    businessMetrics,
	}
}

// Run executes the saga for one order.created delivery. It is safe to
// call more than once for the same order_id: the idempotence probe
// ensures a redelivery skips already-completed steps.
func (o *Orchestrator) Run(ctx context.Context, in OrderInput) Result {
	result := Result{OrderID: in.OrderID}

	currentStatus, err := o.probe.CurrentStatus(ctx, in.OrderID)
	if err != nil {
		o.logger.Warn("idempotence probe failed, proceeding as if fresh", zap.String("order_id", in.OrderID), zap.Error(err))
		currentStatus = ""
	}
	prefixIndex := domain.PrefixIndex(currentStatus)

	// Step 1: CMS Register.
	if o.shouldSkip(prefixIndex, 1) {
		result.CompletedSteps = append(result.CompletedSteps, StepCMSRegistered)
		result.SkippedSteps = append(result.SkippedSteps, StepCMSRegistered)
	} else {
		start := time.Now()
		ref, err := o.cms.Register(ctx, in.OrderID, in.ClientID, in.PickupAddress, in.DeliveryAddress)
		o.recordExternal("cms", "register", err, start)
		if err != nil {
			result.Error = err.Error()
			o.bizm.SagaStepsFailed.WithLabelValues(StepCMSRegistered).Inc()
			// Nothing downstream has been touched: no compensation.
			return result
		}
		result.CMSReference = ref
		result.CompletedSteps = append(result.CompletedSteps, StepCMSRegistered)
	}

	// Step 2: WMS Add.
	if o.shouldSkip(prefixIndex, 2) {
		result.CompletedSteps = append(result.CompletedSteps, StepWMSReceived)
		result.SkippedSteps = append(result.SkippedSteps, StepWMSReceived)
	} else {
		detailsJSON, _ := json.Marshal(in.PackageDetails)
		start := time.Now()
		ref, err := o.wms.AddPackage(ctx, in.OrderID, string(detailsJSON))
		o.recordExternal("wms", "add_package", err, start)
		if err != nil {
			result.Error = err.Error()
			o.bizm.SagaStepsFailed.WithLabelValues(StepWMSReceived).Inc()
			o.compensateCMS(ctx, in.OrderID, in.ClientID)
			return result
		}
		result.WMSReference = ref
		result.CompletedSteps = append(result.CompletedSteps, StepWMSReceived)
	}

	// Step 3: ROS Optimise.
	if o.shouldSkip(prefixIndex, 3) {
		result.CompletedSteps = append(result.CompletedSteps, StepRouteOptimized)
		result.SkippedSteps = append(result.SkippedSteps, StepRouteOptimized)
	} else {
		start := time.Now()
		optimized, err := o.ros.Optimize(ctx, in.OrderID, in.DeliveryAddress)
		o.recordExternal("ros", "optimize", err, start)
		if err != nil {
			result.Error = err.Error()
			o.bizm.SagaStepsFailed.WithLabelValues(StepRouteOptimized).Inc()
			o.compensateWMS(ctx, in.OrderID)
			o.compensateCMS(ctx, in.OrderID, in.ClientID)
			return result
		}
		result.RouteID = optimized.RouteID
		result.CompletedSteps = append(result.CompletedSteps, StepRouteOptimized)
	}

	result.Success = true
	return result
}

// shouldSkip reports whether step (1-indexed position in the prefix:
// CMS=1, WMS=2, ROS=3) is already reflected by the order's current
// status. An unknown status (prefixIndex == -1) disables skipping.
func (o *Orchestrator) shouldSkip(prefixIndex, step int) bool {
	if prefixIndex < 0 {
		return false
	}
	return prefixIndex >= step
}

// compensateCMS issues the CMS cancel. Failures are logged but never
// override the original error already recorded on the result.
func (o *Orchestrator) compensateCMS(ctx context.Context, orderID, clientID string) {
	start := time.Now()
	err := o.cms.Cancel(ctx, orderID, clientID)
	o.recordExternal("cms", "cancel", err, start)
	status := "ok"
	if err != nil {
		status = "error"
		o.logger.Error("cms compensation failed", zap.String("order_id", orderID), zap.Error(err))
	}
	o.bizm.SagaCompensations.WithLabelValues("cms", status).Inc()
}

// compensateWMS issues the WMS cancel package command.
func (o *Orchestrator) compensateWMS(ctx context.Context, orderID string) {
	start := time.Now()
	err := o.wms.CancelPackage(ctx, orderID)
	o.recordExternal("wms", "cancel_package", err, start)
	status := "ok"
	if err != nil {
		status = "error"
		o.logger.Error("wms compensation failed", zap.String("order_id", orderID), zap.Error(err))
	}
	o.bizm.SagaCompensations.WithLabelValues("wms", status).Inc()
}

func (o *Orchestrator) recordExternal(system, operation string, err error, start time.Time) {
	status := "ok"
	if err != nil {
		status = "error"
	}
	o.metrics.Record(system, operation, status, time.Since(start))
}
