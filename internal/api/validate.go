package api

import (
	"fmt"
	"strings"

	"cabdispatch/internal/alloc"
	"cabdispatch/internal/model"
)

func validateBookingIn(in *model.BookingIn) error {
	in.PickupLocation = strings.TrimSpace(in.PickupLocation)
	in.DropLocation = strings.TrimSpace(in.DropLocation)
	if in.PickupLocation == "" {
		return fmt.Errorf("pickupLocation is required")
	}
	if in.DropLocation == "" {
		return fmt.Errorf("dropLocation is required")
	}
	if in.RequestedTime != nil && in.RequestedTime.IsZero() {
		return fmt.Errorf("requestedTime must be a valid timestamp")
	}
	in.Priority = strings.ToLower(strings.TrimSpace(in.Priority))
	switch alloc.Priority(in.Priority) {
	case "":
		in.Priority = string(alloc.PriorityMedium)
	case alloc.PriorityHigh, alloc.PriorityMedium, alloc.PriorityLow:
	default:
		return fmt.Errorf("invalid priority: %s (allowed: high,medium,low)", in.Priority)
	}
	return nil
}

func validateDriver(d *model.Driver) error {
	if strings.TrimSpace(d.Name) == "" {
		return fmt.Errorf("name is required")
	}
	if d.EfficiencyScore < 0 || d.EfficiencyScore > 100 {
		return fmt.Errorf("efficiencyScore must be within 0..100")
	}
	if d.Rating < 0 || d.Rating > 5 {
		return fmt.Errorf("rating must be within 0..5")
	}
	if d.TotalRides < 0 {
		return fmt.Errorf("totalRides must be >= 0")
	}
	switch d.Status {
	case "", model.DriverAvailable, model.DriverBusy, model.DriverOffline:
	default:
		return fmt.Errorf("invalid status: %s", d.Status)
	}
	return nil
}

func validateVehicle(v *model.Vehicle) error {
	if strings.TrimSpace(v.Number) == "" {
		return fmt.Errorf("number is required")
	}
	if v.SeatingCapacity < 0 {
		return fmt.Errorf("seatingCapacity must be >= 0")
	}
	if v.FuelLevel < 0 || v.FuelLevel > 100 {
		return fmt.Errorf("fuelLevel must be within 0..100")
	}
	switch v.Status {
	case "", alloc.VehicleAvailable, alloc.VehicleInUse, alloc.VehicleMaintenance:
	default:
		return fmt.Errorf("invalid status: %s", v.Status)
	}
	return nil
}
