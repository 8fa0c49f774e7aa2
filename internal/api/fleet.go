package api

import (
    "net/http"

    "cabdispatch/internal/auth"
    "cabdispatch/internal/model"
)

// DriversHandler handles GET/POST /v1/drivers
func (s *Server) DriversHandler(w http.ResponseWriter, r *http.Request) {
    if _, ok := s.require(w, r, auth.RoleAdmin); !ok { return }
    switch r.Method {
    case http.MethodGet:
        items, err := s.Store.ListDrivers(r.Context(), r.URL.Query().Get("status"))
        if err != nil { s.writeError(w, r, "List drivers failed", err); return }
        writeJSON(w, http.StatusOK, map[string]any{"items": items})
    case http.MethodPost:
        var d model.Driver
        if err := s.readJSON(w, r, &d); err != nil {
            writeProblem(w, http.StatusBadRequest, "Invalid JSON", err.Error(), r.URL.Path)
            return
        }
        if err := validateDriver(&d); err != nil {
            writeProblem(w, http.StatusBadRequest, "Invalid driver", err.Error(), r.URL.Path)
            return
        }
        saved, err := s.Store.UpsertDriver(r.Context(), d)
        if err != nil { s.writeError(w, r, "Save driver failed", err); return }
        s.publish(EventDriverUpdated, map[string]any{"driverId": saved.ID, "status": saved.Status, "location": saved.CurrentLocation})
        writeJSON(w, http.StatusOK, saved)
    default:
        w.WriteHeader(http.StatusMethodNotAllowed)
    }
}

// VehiclesHandler handles GET/POST /v1/vehicles
func (s *Server) VehiclesHandler(w http.ResponseWriter, r *http.Request) {
    if _, ok := s.require(w, r, auth.RoleAdmin); !ok { return }
    switch r.Method {
    case http.MethodGet:
        items, err := s.Store.ListVehicles(r.Context(), r.URL.Query().Get("status"))
        if err != nil { s.writeError(w, r, "List vehicles failed", err); return }
        writeJSON(w, http.StatusOK, map[string]any{"items": items})
    case http.MethodPost:
        var v model.Vehicle
        if err := s.readJSON(w, r, &v); err != nil {
            writeProblem(w, http.StatusBadRequest, "Invalid JSON", err.Error(), r.URL.Path)
            return
        }
        if err := validateVehicle(&v); err != nil {
            writeProblem(w, http.StatusBadRequest, "Invalid vehicle", err.Error(), r.URL.Path)
            return
        }
        saved, err := s.Store.UpsertVehicle(r.Context(), v)
        if err != nil { s.writeError(w, r, "Save vehicle failed", err); return }
        s.publish(EventVehicleUpdated, map[string]any{"vehicleId": saved.ID, "status": saved.Status, "fuelLevel": saved.FuelLevel})
        writeJSON(w, http.StatusOK, saved)
    default:
        w.WriteHeader(http.StatusMethodNotAllowed)
    }
}
