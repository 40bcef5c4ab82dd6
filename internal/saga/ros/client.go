// Package ros is the REST client for the Route Optimisation System. The
// request/response shaping follows the prepareRequest/performSingleHttpRequest
// decomposition used elsewhere in the reference corpus for JSON HTTP
// calls, minus any internal retry loop: retries for saga steps are the
// broker's job (ConsumeWithRetry), not this client's.
package ros

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"time"
)

const requestTimeout = 30 * time.Second

const depotAddress = "SwiftLogistics Warehouse, Colombo 10"

// Client talks REST to a ROS endpoint.
type Client struct {
	baseURL string
	http    *http.Client
}

// New builds a Client against baseURL (e.g. "http://ros-stub:8083").
func New(baseURL string) *Client {
	return &Client{
		baseURL: baseURL,
		http:    &http.Client{Timeout: requestTimeout},
	}
}

type deliveryPoint struct {
	OrderID  string `json:"order_id"`
	Address  string `json:"address"`
	Priority string `json:"priority"`
}

type optimizeRequest struct {
	DeliveryPoints []deliveryPoint `json:"delivery_points"`
	VehicleID      string          `json:"vehicle_id"`
	DepotAddress   string          `json:"depot_address"`
}

// OptimizeResponse is the subset of the ROS response the saga needs;
// total_distance_km/estimated_duration_min/stops are carried through for
// callers that want them but aren't otherwise interpreted here.
type OptimizeResponse struct {
	RouteID              string  `json:"route_id"`
	TotalDistanceKm      float64 `json:"total_distance_km"`
	EstimatedDurationMin float64 `json:"estimated_duration_min"`
	Stops                []any   `json:"stops"`
}

// Optimize posts a single-order route request and returns the parsed
// response.
func (c *Client) Optimize(ctx context.Context, orderID, deliveryAddress string) (*OptimizeResponse, error) {
	reqBody := optimizeRequest{
		DeliveryPoints: []deliveryPoint{{OrderID: orderID, Address: deliveryAddress, Priority: "normal"}},
		VehicleID:      "VH-001",
		DepotAddress:   depotAddress,
	}

	req, err := c.prepareRequest(ctx, "/api/routes/optimize", reqBody)
	if err != nil {
		return nil, err
	}

	resp, err := c.performRequest(req)
	if err != nil {
		return nil, err
	}
	defer resp.Body.Close()

	raw, err := io.ReadAll(resp.Body)
	if err != nil {
		return nil, fmt.Errorf("ros: read response: %w", err)
	}

	var parsed OptimizeResponse
	if err := json.Unmarshal(raw, &parsed); err != nil {
		return nil, fmt.Errorf("ros: parse response: %w", err)
	}
	if parsed.RouteID == "" {
		return nil, fmt.Errorf("ros: response missing route_id")
	}
	return &parsed, nil
}

func (c *Client) prepareRequest(ctx context.Context, path string, data any) (*http.Request, error) {
	payload, err := json.Marshal(data)
	if err != nil {
		return nil, fmt.Errorf("ros: marshal request: %w", err)
	}
	req, err := http.NewRequestWithContext(ctx, http.MethodPost, c.baseURL+path, bytes.NewReader(payload))
	if err != nil {
		return nil, fmt.Errorf("ros: build request: %w", err)
	}
	req.Header.Set("Content-Type", "application/json")
	return req, nil
}

func (c *Client) performRequest(req *http.Request) (*http.Response, error) {
	resp, err := c.http.Do(req)
	if err != nil {
		return nil, fmt.Errorf("ros: request failed: %w", err)
	}
	if resp.StatusCode < 200 || resp.StatusCode >= 300 {
		raw, _ := io.ReadAll(resp.Body)
		resp.Body.Close()
		return nil, fmt.Errorf("ros: status %d: %s", resp.StatusCode, string(raw))
	}
	return resp, nil
}
