package api

import (
    "context"
    "fmt"
    "net/http"
    "strings"
    "time"

    "github.com/sirupsen/logrus"

    "cabdispatch/internal/alloc"
    "cabdispatch/internal/auth"
    "cabdispatch/internal/metrics"
    "cabdispatch/internal/model"
)

// BookingsHandler handles POST/GET /v1/bookings
func (s *Server) BookingsHandler(w http.ResponseWriter, r *http.Request) {
    if r.URL.Path != "/v1/bookings" { writeProblem(w, 404, "Not Found", "", r.URL.Path); return }
    switch r.Method {
    case http.MethodPost:
        p, ok := s.require(w, r, auth.RoleEmployee, auth.RoleAdmin)
        if !ok { return }
        var in model.BookingIn
        if err := s.readJSON(w, r, &in); err != nil {
            writeProblem(w, http.StatusBadRequest, "Invalid JSON", err.Error(), r.URL.Path)
            return
        }
        if err := validateBookingIn(&in); err != nil {
            writeProblem(w, http.StatusBadRequest, "Invalid booking", err.Error(), r.URL.Path)
            return
        }
        requested := time.Now().UTC()
        if in.RequestedTime != nil { requested = in.RequestedTime.UTC() }
        b, err := s.Store.CreateBooking(r.Context(), model.Booking{
            EmployeeID:     p.Subject,
            PickupLocation: in.PickupLocation,
            DropLocation:   in.DropLocation,
            RequestedTime:  requested,
            Priority:       in.Priority,
            Department:     in.Department,
        })
        if err != nil { s.writeError(w, r, "Create booking failed", err); return }
        s.publish(EventBookingCreated, map[string]any{"bookingId": b.ID, "priority": b.Priority, "pickupLocation": b.PickupLocation})
        writeJSON(w, http.StatusCreated, b)
    case http.MethodGet:
        if _, ok := s.require(w, r, auth.RoleAdmin); !ok { return }
        q := r.URL.Query()
        limit := 100
        if v := q.Get("limit"); v != "" { fmt.Sscanf(v, "%d", &limit) }
        items, next, err := s.Store.ListBookings(r.Context(), q.Get("status"), q.Get("cursor"), limit)
        if err != nil { s.writeError(w, r, "List bookings failed", err); return }
        writeJSON(w, http.StatusOK, map[string]any{"items": items, "nextCursor": next})
    default:
        w.WriteHeader(http.StatusMethodNotAllowed)
    }
}

// BookingByIDHandler handles GET /v1/bookings/{id} and POST /v1/bookings/{id}/{allocate,cancel,complete}
func (s *Server) BookingByIDHandler(w http.ResponseWriter, r *http.Request) {
    path := r.URL.Path
    rest := strings.TrimPrefix(path, "/v1/bookings/")
    if rest == path || rest == "" {
        writeProblem(w, http.StatusNotFound, "Not Found", "missing id", path)
        return
    }
    parts := strings.Split(rest, "/")
    id := parts[0]
    if len(parts) == 1 {
        if r.Method != http.MethodGet { w.WriteHeader(http.StatusMethodNotAllowed); return }
        p, ok := s.require(w, r, auth.RoleAdmin, auth.RoleEmployee, auth.RoleDriver)
        if !ok { return }
        b, err := s.Store.GetBooking(r.Context(), id)
        if err != nil { s.writeError(w, r, "Booking not found", err); return }
        if !canView(p, b) {
            writeProblem(w, http.StatusForbidden, "Forbidden", "not authorized for booking", path)
            return
        }
        writeJSON(w, http.StatusOK, b)
        return
    }
    if len(parts) != 2 { writeProblem(w, 404, "Not Found", "", path); return }
    if r.Method != http.MethodPost { w.WriteHeader(http.StatusMethodNotAllowed); return }
    switch parts[1] {
    case "allocate":
        s.allocateBooking(w, r, id)
    case "cancel":
        p, ok := s.require(w, r, auth.RoleEmployee, auth.RoleAdmin)
        if !ok { return }
        if !p.IsAdmin() && !s.ownsBooking(r.Context(), w, r, id, func(b model.Booking) bool { return b.EmployeeID == p.Subject }) {
            return
        }
        b, err := s.Store.CancelBooking(r.Context(), id)
        if err != nil { s.writeError(w, r, "Cancel booking failed", err); return }
        s.publish(EventBookingCancelled, map[string]any{"bookingId": b.ID, "driverId": b.DriverID, "vehicleId": b.VehicleID})
        writeJSON(w, http.StatusOK, b)
    case "complete":
        p, ok := s.require(w, r, auth.RoleDriver, auth.RoleAdmin)
        if !ok { return }
        if !p.IsAdmin() && !s.ownsBooking(r.Context(), w, r, id, func(b model.Booking) bool { return b.DriverID == p.Subject }) {
            return
        }
        b, err := s.Store.CompleteBooking(r.Context(), id)
        if err != nil { s.writeError(w, r, "Complete booking failed", err); return }
        s.publish(EventBookingCompleted, map[string]any{"bookingId": b.ID, "driverId": b.DriverID, "vehicleId": b.VehicleID})
        writeJSON(w, http.StatusOK, b)
    default:
        writeProblem(w, 404, "Not Found", "unknown action "+parts[1], path)
    }
}

func canView(p Principal, b model.Booking) bool {
    switch p.Role {
    case auth.RoleAdmin:
        return true
    case auth.RoleEmployee:
        return p.Subject != "" && b.EmployeeID == p.Subject
    case auth.RoleDriver:
        return p.Subject != "" && b.DriverID == p.Subject
    }
    return false
}

// ownsBooking loads the booking and writes the problem response when match rejects it.
func (s *Server) ownsBooking(ctx context.Context, w http.ResponseWriter, r *http.Request, id string, match func(model.Booking) bool) bool {
    b, err := s.Store.GetBooking(ctx, id)
    if err != nil { s.writeError(w, r, "Booking not found", err); return false }
    if !match(b) {
        writeProblem(w, http.StatusForbidden, "Forbidden", "not authorized for booking", r.URL.Path)
        return false
    }
    return true
}

func (s *Server) allocateBooking(w http.ResponseWriter, r *http.Request, id string) {
    if _, ok := s.require(w, r, auth.RoleAdmin); !ok { return }
    var req model.AllocateRequest
    if err := s.readOptionalJSON(w, r, &req); err != nil {
        writeProblem(w, http.StatusBadRequest, "Invalid JSON", err.Error(), r.URL.Path)
        return
    }
    ctx := r.Context()

    s.allocMu.Lock()
    defer s.allocMu.Unlock()

    b, err := s.Store.GetBooking(ctx, id)
    if err != nil { s.writeError(w, r, "Booking not found", err); return }
    if b.Status != model.BookingPending {
        writeProblem(w, http.StatusConflict, "Booking not pending", "booking is "+string(b.Status), r.URL.Path)
        return
    }
    drivers, vehicles, err := s.availableFleet(ctx)
    if err != nil { s.writeError(w, r, "Load fleet failed", err); return }

    res, err := s.Engine.AllocateOptimal(b.Alloc(), model.AllocDrivers(drivers), model.AllocVehicles(vehicles), alloc.TrafficData(req.Traffic))
    if err != nil { s.writeError(w, r, "Allocation failed", err); return }
    metrics.ObserveAllocation("single", res.Assignment != nil, res.Score)

    out := model.AllocationOutcome{Booking: b, Score: res.Score, Reason: res.Reason}
    if res.Assignment == nil {
        s.Log.WithField("bookingId", id).WithField("reason", res.Reason).Info("booking left unassigned")
        writeJSON(w, http.StatusOK, out)
        return
    }
    d, v := findDriver(drivers, res.Assignment.Driver.ID), findVehicle(vehicles, res.Assignment.Vehicle.ID)
    assigned, err := s.Store.AssignBooking(ctx, id, d.ID, v.ID, res.Score)
    if err != nil { s.writeError(w, r, "Persist assignment failed", err); return }
    d.Status, v.Status = model.DriverBusy, alloc.VehicleInUse
    out.Booking, out.Driver, out.Vehicle = assigned, d, v
    s.Log.WithFields(logrus.Fields{"bookingId": id, "driverId": d.ID, "vehicleId": v.ID, "score": res.Score}).Info("booking assigned")
    s.publish(EventBookingAssigned, map[string]any{"bookingId": id, "driverId": d.ID, "vehicleId": v.ID, "score": res.Score})
    writeJSON(w, http.StatusOK, out)
}

// availableFleet returns the drivers and vehicles the engine may pick from.
func (s *Server) availableFleet(ctx context.Context) ([]model.Driver, []model.Vehicle, error) {
    drivers, err := s.Store.ListDrivers(ctx, string(model.DriverAvailable))
    if err != nil { return nil, nil, err }
    vehicles, err := s.Store.ListVehicles(ctx, string(alloc.VehicleAvailable))
    if err != nil { return nil, nil, err }
    return drivers, vehicles, nil
}

func findDriver(ds []model.Driver, id string) *model.Driver {
    for i := range ds {
        if ds[i].ID == id { d := ds[i]; return &d }
    }
    return &model.Driver{ID: id}
}

func findVehicle(vs []model.Vehicle, id string) *model.Vehicle {
    for i := range vs {
        if vs[i].ID == id { v := vs[i]; return &v }
    }
    return &model.Vehicle{ID: id}
}
