package alloc

import "time"

// Priority of a booking. Unknown values score like medium but queue like low in a batch.
type Priority string

const (
	PriorityHigh   Priority = "high"
	PriorityMedium Priority = "medium"
	PriorityLow    Priority = "low"
)

// VehicleStatus as reported by the fleet.
type VehicleStatus string

const (
	VehicleAvailable   VehicleStatus = "available"
	VehicleInUse       VehicleStatus = "in_use"
	VehicleMaintenance VehicleStatus = "maintenance"
)

// DepartmentExecutive bookings always need a full-size vehicle.
const DepartmentExecutive = "Executive"

// Booking is a ride request as seen by the engine.
type Booking struct {
	ID             string
	PickupLocation string
	DropLocation   string
	RequestedTime  time.Time
	Priority       Priority
	Department     string
}

// Driver is a candidate driver. Zero EfficiencyScore and Rating mean "not recorded"
// and fall back to the engine defaults.
type Driver struct {
	ID              string
	Name            string
	CurrentLocation string
	EfficiencyScore float64
	Rating          float64
	TotalRides      int
}

// Vehicle is a candidate vehicle. Zero SeatingCapacity and FuelLevel fall back to defaults.
type Vehicle struct {
	ID              string
	Number          string
	SeatingCapacity int
	FuelLevel       float64
	AssignedDriver  string // pinned driver id, empty when the vehicle floats
	Status          VehicleStatus
}

// TrafficData is passed through untouched; no factor reads it yet.
type TrafficData map[string]any

// Assignment is a selected driver/vehicle pair.
type Assignment struct {
	Driver  Driver
	Vehicle Vehicle
}

// Result of allocating a single booking. Assignment is nil when nothing could be assigned.
type Result struct {
	Assignment *Assignment
	Score      float64
	Reason     string
}

// BulkItem is the outcome for one booking of a batch.
type BulkItem struct {
	BookingID  string
	Assignment *Assignment
	Score      float64
	Reason     string
}

// Summary aggregates a batch.
type Summary struct {
	Total       int     `json:"total"`
	Successful  int     `json:"successful"`
	Failed      int     `json:"failed"`
	SuccessRate float64 `json:"successRate"`
}

// BulkResult holds per-booking outcomes in processing order.
type BulkResult struct {
	Results []BulkItem
	Summary Summary
}

// Suggestion is a qualitative fleet recommendation.
type Suggestion struct {
	Type           string `json:"type"`
	Priority       string `json:"priority"`
	Message        string `json:"message"`
	Recommendation string `json:"recommendation"`
}
