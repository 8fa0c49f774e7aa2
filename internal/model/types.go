package model

import (
    "time"

    "cabdispatch/internal/alloc"
)

// Persisted records. The allocation engine sees them through the Alloc* conversions.

type BookingStatus string

const (
    BookingPending   BookingStatus = "pending"
    BookingAssigned  BookingStatus = "assigned"
    BookingCancelled BookingStatus = "cancelled"
    BookingCompleted BookingStatus = "completed"
)

type DriverStatus string

const (
    DriverAvailable DriverStatus = "available"
    DriverBusy      DriverStatus = "busy"
    DriverOffline   DriverStatus = "offline"
)

type Booking struct {
    ID             string        `json:"id" bson:"_id"`
    EmployeeID     string        `json:"employeeId,omitempty" bson:"employee_id,omitempty"`
    PickupLocation string        `json:"pickupLocation" bson:"pickup_location"`
    DropLocation   string        `json:"dropLocation" bson:"drop_location"`
    RequestedTime  time.Time     `json:"requestedTime" bson:"requested_time"`
    Priority       string        `json:"priority" bson:"priority"`
    Department     string        `json:"department,omitempty" bson:"department,omitempty"`
    Status         BookingStatus `json:"status" bson:"status"`
    DriverID       string        `json:"driverId,omitempty" bson:"driver_id,omitempty"`
    VehicleID      string        `json:"vehicleId,omitempty" bson:"vehicle_id,omitempty"`
    Score          float64       `json:"score,omitempty" bson:"score,omitempty"`
    CreatedAt      time.Time     `json:"createdAt" bson:"created_at"`
    UpdatedAt      time.Time     `json:"updatedAt" bson:"updated_at"`
}

type Driver struct {
    ID              string       `json:"id" bson:"_id"`
    Name            string       `json:"name" bson:"name"`
    Phone           string       `json:"phone,omitempty" bson:"phone,omitempty"`
    CurrentLocation string       `json:"currentLocation" bson:"current_location"`
    EfficiencyScore float64      `json:"efficiencyScore,omitempty" bson:"efficiency_score"`
    Rating          float64      `json:"rating,omitempty" bson:"rating"`
    TotalRides      int          `json:"totalRides" bson:"total_rides"`
    Status          DriverStatus `json:"status" bson:"status"`
    UpdatedAt       time.Time    `json:"updatedAt" bson:"updated_at"`
}

type Vehicle struct {
    ID              string              `json:"id" bson:"_id"`
    Number          string              `json:"number" bson:"number"`
    Model           string              `json:"model,omitempty" bson:"model,omitempty"`
    SeatingCapacity int                 `json:"seatingCapacity,omitempty" bson:"seating_capacity"`
    FuelLevel       float64             `json:"fuelLevel,omitempty" bson:"fuel_level"`
    AssignedDriver  string              `json:"assignedDriver,omitempty" bson:"assigned_driver,omitempty"`
    Status          alloc.VehicleStatus `json:"status" bson:"status"`
    UpdatedAt       time.Time           `json:"updatedAt" bson:"updated_at"`
}

// BookingIn is the body of POST /v1/bookings.
type BookingIn struct {
    PickupLocation string     `json:"pickupLocation"`
    DropLocation   string     `json:"dropLocation"`
    RequestedTime  *time.Time `json:"requestedTime,omitempty"`
    Priority       string     `json:"priority,omitempty"`
    Department     string     `json:"department,omitempty"`
}

type AllocateRequest struct {
    Traffic map[string]any `json:"trafficData,omitempty"`
}

type BulkAllocateRequest struct {
    BookingIDs []string       `json:"bookingIds,omitempty"`
    Traffic    map[string]any `json:"trafficData,omitempty"`
}

// AllocationOutcome is returned by the single-booking allocate endpoint.
type AllocationOutcome struct {
    Booking Booking  `json:"booking"`
    Driver  *Driver  `json:"driver,omitempty"`
    Vehicle *Vehicle `json:"vehicle,omitempty"`
    Score   float64  `json:"score"`
    Reason  string   `json:"reason"`
}

func (b Booking) Alloc() alloc.Booking {
    return alloc.Booking{
        ID:             b.ID,
        PickupLocation: b.PickupLocation,
        DropLocation:   b.DropLocation,
        RequestedTime:  b.RequestedTime,
        Priority:       alloc.Priority(b.Priority),
        Department:     b.Department,
    }
}

func (d Driver) Alloc() alloc.Driver {
    return alloc.Driver{
        ID:              d.ID,
        Name:            d.Name,
        CurrentLocation: d.CurrentLocation,
        EfficiencyScore: d.EfficiencyScore,
        Rating:          d.Rating,
        TotalRides:      d.TotalRides,
    }
}

func (v Vehicle) Alloc() alloc.Vehicle {
    return alloc.Vehicle{
        ID:              v.ID,
        Number:          v.Number,
        SeatingCapacity: v.SeatingCapacity,
        FuelLevel:       v.FuelLevel,
        AssignedDriver:  v.AssignedDriver,
        Status:          v.Status,
    }
}

func AllocBookings(in []Booking) []alloc.Booking {
    out := make([]alloc.Booking, len(in))
    for i, b := range in { out[i] = b.Alloc() }
    return out
}

func AllocDrivers(in []Driver) []alloc.Driver {
    out := make([]alloc.Driver, len(in))
    for i, d := range in { out[i] = d.Alloc() }
    return out
}

func AllocVehicles(in []Vehicle) []alloc.Vehicle {
    out := make([]alloc.Vehicle, len(in))
    for i, v := range in { out[i] = v.Alloc() }
    return out
}
