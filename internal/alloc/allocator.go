package alloc

const (
	ReasonNoResources  = "No available resources"
	ReasonNoCompatible = "No compatible driver-vehicle pair"
	ReasonAllocated    = "Optimal allocation"
)

// AllocateOptimal picks the highest scoring driver/vehicle pair for one booking.
// Drivers are iterated in the outer loop and vehicles in the inner loop, both in input
// order; the first pair reaching the maximum wins. A vehicle pinned to a driver is only
// paired with that driver.
func (e *Engine) AllocateOptimal(b Booking, drivers []Driver, vehicles []Vehicle, traffic TrafficData) (Result, error) {
	return e.allocate(b, drivers, vehicles, nil, nil, traffic)
}

// allocate is AllocateOptimal over pools with optional tombstone masks; a true entry
// marks a consumed resource.
func (e *Engine) allocate(b Booking, drivers []Driver, vehicles []Vehicle, driverGone, vehicleGone []bool, traffic TrafficData) (Result, error) {
	if live(driverGone, len(drivers)) == 0 || live(vehicleGone, len(vehicles)) == 0 {
		return Result{Reason: ReasonNoResources}, nil
	}
	bestD, bestV := -1, -1
	bestScore := 0.0
	for di := range drivers {
		if gone(driverGone, di) {
			continue
		}
		d := drivers[di]
		for vi := range vehicles {
			if gone(vehicleGone, vi) {
				continue
			}
			v := vehicles[vi]
			if v.AssignedDriver != "" && v.AssignedDriver != d.ID {
				continue
			}
			score, err := e.Score(b, d, v, traffic)
			if err != nil {
				return Result{}, err
			}
			if bestD < 0 || score > bestScore {
				bestD, bestV, bestScore = di, vi, score
			}
		}
	}
	if bestD < 0 {
		return Result{Reason: ReasonNoCompatible}, nil
	}
	return Result{
		Assignment: &Assignment{Driver: drivers[bestD], Vehicle: vehicles[bestV]},
		Score:      bestScore,
		Reason:     ReasonAllocated,
	}, nil
}

func gone(mask []bool, i int) bool { return mask != nil && mask[i] }

func live(mask []bool, n int) int {
	if mask == nil {
		return n
	}
	c := 0
	for _, g := range mask {
		if !g {
			c++
		}
	}
	return c
}
