package alloc

import (
	"fmt"
	"sort"
)

// BulkStrategy allocates a batch of bookings against shared pools. Implementations must not
// mutate the caller's slices and must never hand the same driver or vehicle id to two bookings.
type BulkStrategy interface {
	Allocate(e *Engine, bookings []Booking, drivers []Driver, vehicles []Vehicle, traffic TrafficData) (BulkResult, error)
}

// BulkAllocate runs the engine's batch strategy (greedy unless replaced).
func (e *Engine) BulkAllocate(bookings []Booking, drivers []Driver, vehicles []Vehicle, traffic TrafficData) (BulkResult, error) {
	return e.bulk.Allocate(e, bookings, drivers, vehicles, traffic)
}

// GreedyBulk serves bookings by priority then wait time, each taking the best pair left.
// Earlier bookings get first pick; there is no backtracking.
type GreedyBulk struct{}

func (GreedyBulk) Allocate(e *Engine, bookings []Booking, drivers []Driver, vehicles []Vehicle, traffic TrafficData) (BulkResult, error) {
	queue := append([]Booking(nil), bookings...)
	SortByUrgency(queue)

	driverGone := make([]bool, len(drivers))
	vehicleGone := make([]bool, len(vehicles))
	out := BulkResult{Results: make([]BulkItem, 0, len(queue))}
	for _, b := range queue {
		res, err := e.allocate(b, drivers, vehicles, driverGone, vehicleGone, traffic)
		if err != nil {
			out.Summary = summarize(out.Results, len(queue))
			return out, fmt.Errorf("allocate booking %s: %w", b.ID, err)
		}
		out.Results = append(out.Results, BulkItem{BookingID: b.ID, Assignment: res.Assignment, Score: res.Score, Reason: res.Reason})
		if res.Assignment != nil {
			tombstone(driverGone, len(drivers), func(i int) bool { return drivers[i].ID == res.Assignment.Driver.ID })
			tombstone(vehicleGone, len(vehicles), func(i int) bool { return vehicles[i].ID == res.Assignment.Vehicle.ID })
		}
	}
	out.Summary = summarize(out.Results, len(queue))
	return out, nil
}

// PriorityWeight orders bookings in a batch: high 3, medium 2, everything else 1.
func PriorityWeight(p Priority) int {
	switch p {
	case PriorityHigh:
		return 3
	case PriorityMedium:
		return 2
	default:
		return 1
	}
}

// SortByUrgency orders bookings by priority weight, then oldest request first. Equal keys keep
// their input order.
func SortByUrgency(bookings []Booking) {
	sort.SliceStable(bookings, func(i, j int) bool {
		pi, pj := PriorityWeight(bookings[i].Priority), PriorityWeight(bookings[j].Priority)
		if pi != pj {
			return pi > pj
		}
		return bookings[i].RequestedTime.Before(bookings[j].RequestedTime)
	})
}

func tombstone(mask []bool, n int, match func(int) bool) {
	for i := 0; i < n; i++ {
		if match(i) {
			mask[i] = true
		}
	}
}

// summarize counts outcomes. total is the batch size, so bookings never reached after an
// error count as failed.
func summarize(items []BulkItem, total int) Summary {
	s := Summary{Total: total}
	for _, it := range items {
		if it.Assignment != nil {
			s.Successful++
		}
	}
	s.Failed = total - s.Successful
	if total > 0 {
		s.SuccessRate = float64(s.Successful) / float64(total)
	}
	return s
}
