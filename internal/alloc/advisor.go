package alloc

import "fmt"

// Advisor thresholds.
const (
	PeakDriverRatio       = 0.8
	DuplicateRouteShare   = 0.3
	MinVehicleUtilization = 0.6
)

// Suggestion types and priorities.
const (
	SuggestionCapacity    = "capacity"
	SuggestionEfficiency  = "efficiency"
	SuggestionUtilization = "utilization"

	SuggestionHigh   = "high"
	SuggestionMedium = "medium"
	SuggestionLow    = "low"
)

// HourlyDemand counts bookings per hour of day in the engine's time zone.
func (e *Engine) HourlyDemand(bookings []Booking) [24]int {
	var hours [24]int
	for _, b := range bookings {
		hours[b.RequestedTime.In(e.loc).Hour()]++
	}
	return hours
}

// GenerateOptimizationSuggestions inspects historical bookings and the current fleet.
func (e *Engine) GenerateOptimizationSuggestions(bookings []Booking, drivers []Driver, vehicles []Vehicle) []Suggestion {
	out := []Suggestion{}

	hours := e.HourlyDemand(bookings)
	peakHour, peak := 0, 0
	for h, n := range hours {
		if n > peak {
			peakHour, peak = h, n
		}
	}
	if float64(peak) > PeakDriverRatio*float64(len(drivers)) {
		out = append(out, Suggestion{
			Type:           SuggestionCapacity,
			Priority:       SuggestionHigh,
			Message:        fmt.Sprintf("Peak demand of %d bookings at %02d:00 exceeds %d%% of the %d registered drivers", peak, peakHour, int(PeakDriverRatio*100), len(drivers)),
			Recommendation: fmt.Sprintf("Schedule additional drivers around %02d:00", peakHour),
		})
	}

	if len(bookings) > 0 {
		type route struct{ pickup, drop string }
		counts := map[route]int{}
		for _, b := range bookings {
			counts[route{b.PickupLocation, b.DropLocation}]++
		}
		repeated := 0
		for _, n := range counts {
			if n > 1 {
				repeated += n
			}
		}
		share := float64(repeated) / float64(len(bookings))
		if share > DuplicateRouteShare {
			out = append(out, Suggestion{
				Type:           SuggestionEfficiency,
				Priority:       SuggestionMedium,
				Message:        fmt.Sprintf("%.0f%% of bookings share a pickup and drop with another booking", share*100),
				Recommendation: "Enable ride sharing on recurring routes",
			})
		}
	}

	if len(vehicles) > 0 {
		inUse := 0
		for _, v := range vehicles {
			if v.Status == VehicleInUse {
				inUse++
			}
		}
		util := float64(inUse) / float64(len(vehicles))
		if util < MinVehicleUtilization {
			out = append(out, Suggestion{
				Type:           SuggestionUtilization,
				Priority:       SuggestionLow,
				Message:        fmt.Sprintf("Vehicle utilization is %.0f%% (%d of %d in use)", util*100, inUse, len(vehicles)),
				Recommendation: "Reduce fleet size or expand the service area",
			})
		}
	}
	return out
}
