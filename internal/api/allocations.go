package api

import (
    "errors"
    "net/http"

    "github.com/sirupsen/logrus"

    "cabdispatch/internal/alloc"
    "cabdispatch/internal/auth"
    "cabdispatch/internal/metrics"
    "cabdispatch/internal/model"
    "cabdispatch/internal/store"
)

type bulkItemOut struct {
    BookingID string  `json:"bookingId"`
    DriverID  string  `json:"driverId,omitempty"`
    VehicleID string  `json:"vehicleId,omitempty"`
    Score     float64 `json:"score"`
    Reason    string  `json:"reason"`
}

type skippedBooking struct {
    BookingID string `json:"bookingId"`
    Reason    string `json:"reason"`
}

type bulkResponse struct {
    Results []bulkItemOut    `json:"results"`
    Summary alloc.Summary    `json:"summary"`
    Skipped []skippedBooking `json:"skipped"`
}

// BulkAllocateHandler handles POST /v1/allocations/bulk
func (s *Server) BulkAllocateHandler(w http.ResponseWriter, r *http.Request) {
    if r.Method != http.MethodPost { w.WriteHeader(http.StatusMethodNotAllowed); return }
    if _, ok := s.require(w, r, auth.RoleAdmin); !ok { return }
    var req model.BulkAllocateRequest
    if err := s.readOptionalJSON(w, r, &req); err != nil {
        writeProblem(w, http.StatusBadRequest, "Invalid JSON", err.Error(), r.URL.Path)
        return
    }
    ctx := r.Context()

    s.allocMu.Lock()
    defer s.allocMu.Unlock()

    resp := bulkResponse{Results: []bulkItemOut{}, Skipped: []skippedBooking{}}
    var batch []model.Booking
    if len(req.BookingIDs) == 0 {
        pending, err := store.ListAll(ctx, s.Store, string(model.BookingPending))
        if err != nil { s.writeError(w, r, "List bookings failed", err); return }
        batch = pending
    } else {
        seen := map[string]bool{}
        for _, id := range req.BookingIDs {
            if seen[id] { continue }
            seen[id] = true
            b, err := s.Store.GetBooking(ctx, id)
            switch {
            case errors.Is(err, store.ErrNotFound):
                resp.Skipped = append(resp.Skipped, skippedBooking{BookingID: id, Reason: "not found"})
            case err != nil:
                s.writeError(w, r, "Load booking failed", err)
                return
            case b.Status != model.BookingPending:
                resp.Skipped = append(resp.Skipped, skippedBooking{BookingID: id, Reason: "booking is " + string(b.Status)})
            default:
                batch = append(batch, b)
            }
        }
    }

    drivers, vehicles, err := s.availableFleet(ctx)
    if err != nil { s.writeError(w, r, "Load fleet failed", err); return }
    res, err := s.Engine.BulkAllocate(model.AllocBookings(batch), model.AllocDrivers(drivers), model.AllocVehicles(vehicles), alloc.TrafficData(req.Traffic))
    if err != nil {
        // Nothing has been persisted yet; the whole batch is rejected.
        s.writeError(w, r, "Bulk allocation failed", err)
        return
    }

    successful := 0
    for _, item := range res.Results {
        out := bulkItemOut{BookingID: item.BookingID, Score: item.Score, Reason: item.Reason}
        if item.Assignment != nil {
            dID, vID := item.Assignment.Driver.ID, item.Assignment.Vehicle.ID
            if _, err := s.Store.AssignBooking(ctx, item.BookingID, dID, vID, item.Score); err != nil {
                s.Log.WithError(err).WithField("bookingId", item.BookingID).Warn("persist bulk assignment failed")
                out.Score, out.Reason = 0, "Persist failed: "+err.Error()
            } else {
                out.DriverID, out.VehicleID = dID, vID
                successful++
                s.publish(EventBookingAssigned, map[string]any{"bookingId": item.BookingID, "driverId": dID, "vehicleId": vID, "score": item.Score})
            }
        }
        metrics.ObserveAllocation("bulk", out.DriverID != "", out.Score)
        resp.Results = append(resp.Results, out)
    }
    resp.Summary = alloc.Summary{Total: res.Summary.Total, Successful: successful, Failed: res.Summary.Total - successful}
    if resp.Summary.Total > 0 {
        resp.Summary.SuccessRate = float64(successful) / float64(resp.Summary.Total)
    }

    s.Log.WithFields(logrus.Fields{"total": resp.Summary.Total, "successful": successful, "skipped": len(resp.Skipped)}).Info("bulk allocation done")
    s.publish(EventBulkCompleted, map[string]any{
        "total": resp.Summary.Total, "successful": resp.Summary.Successful,
        "failed": resp.Summary.Failed, "successRate": resp.Summary.SuccessRate,
    })
    writeJSON(w, http.StatusOK, resp)
}

// SuggestionsHandler handles GET /v1/fleet/suggestions
func (s *Server) SuggestionsHandler(w http.ResponseWriter, r *http.Request) {
    if r.Method != http.MethodGet { w.WriteHeader(http.StatusMethodNotAllowed); return }
    if _, ok := s.require(w, r, auth.RoleAdmin); !ok { return }
    ctx := r.Context()
    bookings, err := store.ListAll(ctx, s.Store, "")
    if err != nil { s.writeError(w, r, "List bookings failed", err); return }
    drivers, err := s.Store.ListDrivers(ctx, "")
    if err != nil { s.writeError(w, r, "List drivers failed", err); return }
    vehicles, err := s.Store.ListVehicles(ctx, "")
    if err != nil { s.writeError(w, r, "List vehicles failed", err); return }

    ab := model.AllocBookings(bookings)
    suggestions := s.Engine.GenerateOptimizationSuggestions(ab, model.AllocDrivers(drivers), model.AllocVehicles(vehicles))
    for _, sg := range suggestions {
        metrics.FleetSuggestions.WithLabelValues(sg.Type).Inc()
    }
    writeJSON(w, http.StatusOK, map[string]any{
        "suggestions":  suggestions,
        "hourlyDemand": s.Engine.HourlyDemand(ab),
    })
}

// AllocatorConfigHandler returns the effective scoring configuration.
func (s *Server) AllocatorConfigHandler(w http.ResponseWriter, r *http.Request) {
    if r.Method != http.MethodGet { w.WriteHeader(http.StatusMethodNotAllowed); return }
    tz := s.Config.Allocation.Timezone
    if tz == "" { tz = "Local" }
    writeJSON(w, http.StatusOK, map[string]any{
        "weights":      s.Engine.Weights(),
        "timezone":     tz,
        "bulkStrategy": "greedy",
    })
}
