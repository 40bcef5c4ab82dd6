package saga

import (
	"context"
	"errors"
	"testing"

	"go.uber.org/zap"

	"github.com/swifttrack/core/internal/domain"
	"github.com/swifttrack/core/internal/metrics"
	"github.com/swifttrack/core/internal/saga/ros"
)

type fakeCMS struct {
	registerRef string
	registerErr error
	cancelErr   error
	cancelled   bool
}

func (f *fakeCMS) Register(ctx context.Context, orderID, clientID, pickup, delivery string) (string, error) {
	if f.registerErr != nil {
		return "", f.registerErr
	}
	return f.registerRef, nil
}

func (f *fakeCMS) Cancel(ctx context.Context, orderID, clientID string) error {
	f.cancelled = true
	return f.cancelErr
}

type fakeWMS struct {
	addRef    string
	addErr    error
	cancelErr error
	cancelled bool
}

func (f *fakeWMS) AddPackage(ctx context.Context, orderID, detailsJSON string) (string, error) {
	if f.addErr != nil {
		return "", f.addErr
	}
	return f.addRef, nil
}

func (f *fakeWMS) CancelPackage(ctx context.Context, orderID string) error {
	f.cancelled = true
	return f.cancelErr
}

type fakeROS struct {
	routeID string
	err     error
}

func (f *fakeROS) Optimize(ctx context.Context, orderID, deliveryAddress string) (*ros.OptimizeResponse, error) {
	if f.err != nil {
		return nil, f.err
	}
	return &ros.OptimizeResponse{RouteID: f.routeID}, nil
}

type fakeProbe struct {
	status domain.Status
	err    error
}

func (f fakeProbe) CurrentStatus(ctx context.Context, orderID string) (domain.Status, error) {
	return f.status, f.err
}

func testOrchestrator(t *testing.T, cmsClient CMSClient, wmsClient WMSClient, rosClient ROSClient, probe OrderStatusProbe, serviceName string) *Orchestrator {
	t.Helper()
	logger := zap.NewNop()
	return New(cmsClient, wmsClient, rosClient, probe, logger, metrics.NewExternal(serviceName), metrics.NewBusiness(serviceName))
}

func TestRunHappyPathCompletesAllThreeSteps(t *testing.T) {
	cmsClient := &fakeCMS{registerRef: "CMS-1"}
	wmsClient := &fakeWMS{addRef: "WMS-1"}
	rosClient := &fakeROS{routeID: "RT-1"}
	probe := fakeProbe{status: domain.StatusPending}

	o := testOrchestrator(t, cmsClient, wmsClient, rosClient, probe, "test-happy-path")
	result := o.Run(context.Background(), OrderInput{OrderID: "order-1", ClientID: "client1"})

	if !result.Success {
		t.Fatalf("expected success, got error %q", result.Error)
	}
	if result.CMSReference != "CMS-1" || result.WMSReference != "WMS-1" || result.RouteID != "RT-1" {
		t.Errorf("references not captured: %+v", result)
	}
	if len(result.SkippedSteps) != 0 {
		t.Errorf("expected no skipped steps, got %v", result.SkippedSteps)
	}
	if len(result.CompletedSteps) != 3 {
		t.Errorf("expected 3 completed steps, got %v", result.CompletedSteps)
	}
}

func TestRunWMSFailureCompensatesCMSOnly(t *testing.T) {
	cmsClient := &fakeCMS{registerRef: "CMS-1"}
	wmsClient := &fakeWMS{addErr: errors.New("connection refused")}
	rosClient := &fakeROS{}
	probe := fakeProbe{status: domain.StatusPending}

	o := testOrchestrator(t, cmsClient, wmsClient, rosClient, probe, "test-wms-failure")
	result := o.Run(context.Background(), OrderInput{OrderID: "order-2", ClientID: "client1"})

	if result.Success {
		t.Fatal("expected failure")
	}
	if !cmsClient.cancelled {
		t.Error("expected CMS to be compensated")
	}
	if wmsClient.cancelled {
		t.Error("WMS was never registered, should not be compensated")
	}
	if result.WMSReference != "" {
		t.Error("wms_reference should remain unset")
	}
}

func TestRunROSFailureCompensatesWMSThenCMS(t *testing.T) {
	cmsClient := &fakeCMS{registerRef: "CMS-1"}
	wmsClient := &fakeWMS{addRef: "WMS-1"}
	rosClient := &fakeROS{err: errors.New("ros unavailable")}
	probe := fakeProbe{status: domain.StatusPending}

	o := testOrchestrator(t, cmsClient, wmsClient, rosClient, probe, "test-ros-failure")
	result := o.Run(context.Background(), OrderInput{OrderID: "order-3", ClientID: "client1"})

	if result.Success {
		t.Fatal("expected failure")
	}
	if !wmsClient.cancelled || !cmsClient.cancelled {
		t.Error("expected both WMS and CMS to be compensated")
	}
}

func TestRunCMSFailureCompensatesNothing(t *testing.T) {
	cmsClient := &fakeCMS{registerErr: errors.New("cms down")}
	wmsClient := &fakeWMS{}
	rosClient := &fakeROS{}
	probe := fakeProbe{status: domain.StatusPending}

	o := testOrchestrator(t, cmsClient, wmsClient, rosClient, probe, "test-cms-failure")
	result := o.Run(context.Background(), OrderInput{OrderID: "order-4", ClientID: "client1"})

	if result.Success {
		t.Fatal("expected failure")
	}
	if cmsClient.cancelled || wmsClient.cancelled {
		t.Error("nothing downstream was touched, nothing should be compensated")
	}
}

func TestRunRedeliveryAtWMSReceivedSkipsCMSAndWMS(t *testing.T) {
	cmsClient := &fakeCMS{}
	wmsClient := &fakeWMS{}
	rosClient := &fakeROS{routeID: "RT-2"}
	probe := fakeProbe{status: domain.StatusWMSReceived}

	o := testOrchestrator(t, cmsClient, wmsClient, rosClient, probe, "test-redelivery")
	result := o.Run(context.Background(), OrderInput{OrderID: "order-5", ClientID: "client1"})

	if !result.Success {
		t.Fatalf("expected success, got %q", result.Error)
	}
	if len(result.SkippedSteps) != 2 {
		t.Errorf("expected CMS and WMS skipped, got %v", result.SkippedSteps)
	}
	if result.RouteID != "RT-2" {
		t.Error("ROS should still have run")
	}
}

func TestRunUnknownStatusDisablesSkipping(t *testing.T) {
	cmsClient := &fakeCMS{registerRef: "CMS-3"}
	wmsClient := &fakeWMS{addRef: "WMS-3"}
	rosClient := &fakeROS{routeID: "RT-3"}
	probe := fakeProbe{status: domain.StatusFailed}

	o := testOrchestrator(t, cmsClient, wmsClient, rosClient, probe, "test-unknown-status")
	result := o.Run(context.Background(), OrderInput{OrderID: "order-6", ClientID: "client1"})

	if !result.Success {
		t.Fatalf("expected success, got %q", result.Error)
	}
	if len(result.SkippedSteps) != 0 {
		t.Errorf("FAILED is outside the prefix, nothing should be skipped, got %v", result.SkippedSteps)
	}
}
