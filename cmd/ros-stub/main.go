// Command ros-stub is a mock Route Optimisation System. Its internals
// are irrelevant (spec.md §1 Non-goals); it exists so the saga's ROS
// client has a real REST endpoint to drive end to end.
package main

import (
	"encoding/json"
	"fmt"
	"log"
	"math/rand"
	"net/http"
	"os"
)

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

type stop struct {
	OrderID string `json:"order_id"`
	Address string `json:"address"`
	Seq     int    `json:"seq"`
}

type optimizeResponse struct {
	RouteID              string  `json:"route_id"`
	TotalDistanceKm      float64 `json:"total_distance_km"`
	EstimatedDurationMin float64 `json:"estimated_duration_min"`
	Stops                []stop  `json:"stops"`
}

func handleOptimize(w http.ResponseWriter, r *http.Request) {
	var req optimizeRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		http.Error(w, "malformed request", http.StatusBadRequest)
		return
	}
	if len(req.DeliveryPoints) == 0 {
		http.Error(w, "delivery_points required", http.StatusBadRequest)
		return
	}

	stops := make([]stop, len(req.DeliveryPoints))
	for i, p := range req.DeliveryPoints {
		stops[i] = stop{OrderID: p.OrderID, Address: p.Address, Seq: i + 1}
	}

	resp := optimizeResponse{
		RouteID:              fmt.Sprintf("RT-%08X", rand.Uint32()),
		TotalDistanceKm:      12.4 * float64(len(stops)),
		EstimatedDurationMin: 18 * float64(len(stops)),
		Stops:                stops,
	}

	w.Header().Set("Content-Type", "application/json")
	json.NewEncoder(w).Encode(resp)
}

func main() {
	addr := os.Getenv("ROS_STUB_ADDR")
	if addr == "" {
		addr = ":8083"
	}
	mux := http.NewServeMux()
	mux.HandleFunc("/api/routes/optimize", handleOptimize)
	log.Printf("ros-stub listening on %s", addr)
	log.Fatal(http.ListenAndServe(addr, mux))
}
