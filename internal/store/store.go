package store

import (
    "context"
    "errors"

    "cabdispatch/internal/model"
)

// Store is the persistence interface used by the API server.
type Store interface {
    // Bookings
    CreateBooking(ctx context.Context, b model.Booking) (model.Booking, error)
    GetBooking(ctx context.Context, id string) (model.Booking, error)
    ListBookings(ctx context.Context, status, cursor string, limit int) (items []model.Booking, nextCursor string, err error)

    // Lifecycle. AssignBooking marks the driver busy and the vehicle in_use; cancel and
    // complete release them again.
    AssignBooking(ctx context.Context, id, driverID, vehicleID string, score float64) (model.Booking, error)
    CancelBooking(ctx context.Context, id string) (model.Booking, error)
    CompleteBooking(ctx context.Context, id string) (model.Booking, error)

    // Fleet
    UpsertDriver(ctx context.Context, d model.Driver) (model.Driver, error)
    ListDrivers(ctx context.Context, status string) ([]model.Driver, error)
    UpsertVehicle(ctx context.Context, v model.Vehicle) (model.Vehicle, error)
    ListVehicles(ctx context.Context, status string) ([]model.Vehicle, error)

    Ping(ctx context.Context) error
    Close() error
}

var (
    ErrNotFound = errors.New("not found")
    // ErrConflict reports a lifecycle transition the current state does not allow.
    ErrConflict = errors.New("conflict")
)

const (
    defaultPageSize = 100
    maxPageSize     = 500
)

func pageSize(limit int) int {
    if limit <= 0 || limit > maxPageSize { return defaultPageSize }
    return limit
}

// ListAll pages through every booking with the given status.
func ListAll(ctx context.Context, s Store, status string) ([]model.Booking, error) {
    var out []model.Booking
    cursor := ""
    for {
        items, next, err := s.ListBookings(ctx, status, cursor, maxPageSize)
        if err != nil { return nil, err }
        out = append(out, items...)
        if next == "" { return out, nil }
        cursor = next
    }
}
