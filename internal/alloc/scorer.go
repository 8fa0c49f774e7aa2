package alloc

import (
	"fmt"
	"math"
	"strings"
)

const (
	defaultEfficiency = 75.0
	defaultRating     = 4.0
	defaultCapacity   = 4
	defaultFuel       = 50.0

	fuelFloor           = 20.0
	capacityFloor       = 60.0
	priorityBase        = 80.0
	veteranBonus        = 15.0
	veteranRides        = 100
	waitBase            = 70.0
	waitPointsPerMinute = 2.0
)

// Breakdown is the per-factor score of a candidate pair, each clamped to 0..100.
// WaitTime drops below 70 for future-dated requests.
type Breakdown struct {
	Distance   float64 `json:"distance"`
	Efficiency float64 `json:"efficiency"`
	Rating     float64 `json:"rating"`
	Capacity   float64 `json:"capacity"`
	Fuel       float64 `json:"fuel"`
	Priority   float64 `json:"priority"`
	WaitTime   float64 `json:"waitTime"`
	Total      float64 `json:"total"`
}

// Score computes the combined assignment score for a triple.
func (e *Engine) Score(b Booking, d Driver, v Vehicle, traffic TrafficData) (float64, error) {
	bd, err := e.Breakdown(b, d, v, traffic)
	if err != nil {
		return 0, err
	}
	return bd.Total, nil
}

// Breakdown computes every factor and the weighted total rounded to two decimals.
func (e *Engine) Breakdown(b Booking, d Driver, v Vehicle, _ TrafficData) (Breakdown, error) {
	if b.RequestedTime.IsZero() {
		return Breakdown{}, fmt.Errorf("%w: booking %q has no requested time", ErrInvalidBooking, b.ID)
	}
	bd := Breakdown{
		Distance:   e.distanceScore(b.PickupLocation, d.CurrentLocation),
		Efficiency: efficiencyScore(d),
		Rating:     ratingScore(d),
		Capacity:   capacityScore(b, v),
		Fuel:       fuelScore(v),
		Priority:   priorityScore(b, d),
		WaitTime:   e.waitScore(b),
	}
	w := e.weights
	total := w.Distance*bd.Distance +
		w.Efficiency*bd.Efficiency +
		w.Rating*bd.Rating +
		w.Capacity*bd.Capacity +
		w.Fuel*bd.Fuel +
		w.Priority*bd.Priority +
		w.WaitTime*bd.WaitTime
	bd.Total = round2(total)
	return bd, nil
}

// distanceScore approximates proximity from shared location words. Without any overlap it
// falls back to a uniform value in [30,70).
func (e *Engine) distanceScore(pickup, driverLocation string) float64 {
	driverWords := map[string]struct{}{}
	for _, w := range strings.Fields(strings.ToLower(driverLocation)) {
		driverWords[w] = struct{}{}
	}
	common := 0
	for _, w := range strings.Fields(strings.ToLower(pickup)) {
		if _, ok := driverWords[w]; ok {
			common++
		}
	}
	if common > 0 {
		return math.Min(100, 80+5*float64(common))
	}
	return 30 + 40*e.rng.Float64()
}

func efficiencyScore(d Driver) float64 {
	if d.EfficiencyScore == 0 {
		return defaultEfficiency
	}
	return clamp100(d.EfficiencyScore)
}

func ratingScore(d Driver) float64 {
	r := d.Rating
	if r == 0 {
		r = defaultRating
	}
	return clamp100(r / 5 * 100)
}

// RequiredCapacity is the minimum seat count a booking needs.
func RequiredCapacity(b Booking) int {
	if b.Priority == PriorityHigh || strings.EqualFold(b.Department, DepartmentExecutive) {
		return 4
	}
	return 2
}

func capacityScore(b Booking, v Vehicle) float64 {
	capacity := v.SeatingCapacity
	if capacity == 0 {
		capacity = defaultCapacity
	}
	required := RequiredCapacity(b)
	if capacity < required {
		return 0
	}
	return math.Max(capacityFloor, 100-10*float64(capacity-required))
}

func fuelScore(v Vehicle) float64 {
	fuel := v.FuelLevel
	if fuel == 0 {
		fuel = defaultFuel
	}
	return clamp100(math.Max(fuelFloor, fuel))
}

func priorityMultiplier(p Priority) float64 {
	switch p {
	case PriorityHigh:
		return 1.2
	case PriorityLow:
		return 0.8
	default:
		return 1.0
	}
}

func priorityScore(b Booking, d Driver) float64 {
	score := priorityBase * priorityMultiplier(b.Priority)
	if b.Priority == PriorityHigh && d.TotalRides > veteranRides {
		score += veteranBonus
	}
	return math.Min(100, score)
}

func (e *Engine) waitScore(b Booking) float64 {
	minutes := e.now().Sub(b.RequestedTime).Minutes()
	return clamp100(waitBase + waitPointsPerMinute*minutes)
}

func clamp100(x float64) float64 {
	return math.Max(0, math.Min(100, x))
}

func round2(x float64) float64 {
	return math.Round(x*100) / 100
}
