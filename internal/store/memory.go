package store

import (
    "context"
    "fmt"
    "sort"
    "sync"
    "time"

    "github.com/google/uuid"

    "cabdispatch/internal/alloc"
    "cabdispatch/internal/model"
)

// Memory is a simple in-memory store used when no database is configured.
type Memory struct {
    mu       sync.Mutex
    bookings map[string]model.Booking // id -> booking
    order    []string                 // booking ids in creation order
    drivers  map[string]model.Driver
    vehicles map[string]model.Vehicle
    now      func() time.Time
}

func NewMemory() *Memory {
    return &Memory{
        bookings: map[string]model.Booking{},
        drivers:  map[string]model.Driver{},
        vehicles: map[string]model.Vehicle{},
        now:      func() time.Time { return time.Now().UTC() },
    }
}

func (m *Memory) CreateBooking(ctx context.Context, b model.Booking) (model.Booking, error) {
    m.mu.Lock(); defer m.mu.Unlock()
    b.ID = uuid.New().String()
    b.Status = model.BookingPending
    b.DriverID, b.VehicleID, b.Score = "", "", 0
    b.CreatedAt = m.now()
    b.UpdatedAt = b.CreatedAt
    m.bookings[b.ID] = b
    m.order = append(m.order, b.ID)
    return b, nil
}

func (m *Memory) GetBooking(ctx context.Context, id string) (model.Booking, error) {
    m.mu.Lock(); defer m.mu.Unlock()
    b, ok := m.bookings[id]
    if !ok { return model.Booking{}, ErrNotFound }
    return b, nil
}

func (m *Memory) ListBookings(ctx context.Context, status, cursor string, limit int) ([]model.Booking, string, error) {
    m.mu.Lock(); defer m.mu.Unlock()
    limit = pageSize(limit)
    start := 0
    if cursor != "" {
        for i, id := range m.order {
            if id == cursor { start = i + 1; break }
        }
    }
    out := []model.Booking{}
    var next string
    for i := start; i < len(m.order) && len(out) < limit; i++ {
        b := m.bookings[m.order[i]]
        if status == "" || string(b.Status) == status { out = append(out, b) }
        next = m.order[i]
    }
    if len(out) < limit { next = "" }
    return out, next, nil
}

func (m *Memory) AssignBooking(ctx context.Context, id, driverID, vehicleID string, score float64) (model.Booking, error) {
    m.mu.Lock(); defer m.mu.Unlock()
    b, ok := m.bookings[id]
    if !ok { return model.Booking{}, ErrNotFound }
    d, ok := m.drivers[driverID]
    if !ok { return model.Booking{}, fmt.Errorf("driver %s: %w", driverID, ErrNotFound) }
    v, ok := m.vehicles[vehicleID]
    if !ok { return model.Booking{}, fmt.Errorf("vehicle %s: %w", vehicleID, ErrNotFound) }
    if b.Status != model.BookingPending {
        return model.Booking{}, fmt.Errorf("booking is %s: %w", b.Status, ErrConflict)
    }
    if d.Status != model.DriverAvailable {
        return model.Booking{}, fmt.Errorf("driver %s is %s: %w", driverID, d.Status, ErrConflict)
    }
    if v.Status != alloc.VehicleAvailable {
        return model.Booking{}, fmt.Errorf("vehicle %s is %s: %w", vehicleID, v.Status, ErrConflict)
    }
    now := m.now()
    d.Status, d.UpdatedAt = model.DriverBusy, now
    v.Status, v.UpdatedAt = alloc.VehicleInUse, now
    b.Status, b.DriverID, b.VehicleID, b.Score, b.UpdatedAt = model.BookingAssigned, driverID, vehicleID, score, now
    m.drivers[driverID] = d
    m.vehicles[vehicleID] = v
    m.bookings[id] = b
    return b, nil
}

func (m *Memory) CancelBooking(ctx context.Context, id string) (model.Booking, error) {
    m.mu.Lock(); defer m.mu.Unlock()
    b, ok := m.bookings[id]
    if !ok { return model.Booking{}, ErrNotFound }
    if b.Status != model.BookingPending && b.Status != model.BookingAssigned {
        return model.Booking{}, fmt.Errorf("booking is %s: %w", b.Status, ErrConflict)
    }
    if b.Status == model.BookingAssigned { m.release(b, false) }
    b.Status, b.UpdatedAt = model.BookingCancelled, m.now()
    m.bookings[id] = b
    return b, nil
}

func (m *Memory) CompleteBooking(ctx context.Context, id string) (model.Booking, error) {
    m.mu.Lock(); defer m.mu.Unlock()
    b, ok := m.bookings[id]
    if !ok { return model.Booking{}, ErrNotFound }
    if b.Status != model.BookingAssigned {
        return model.Booking{}, fmt.Errorf("booking is %s: %w", b.Status, ErrConflict)
    }
    m.release(b, true)
    b.Status, b.UpdatedAt = model.BookingCompleted, m.now()
    m.bookings[id] = b
    return b, nil
}

// release frees the booking's driver and vehicle. Caller holds m.mu.
func (m *Memory) release(b model.Booking, completed bool) {
    now := m.now()
    if d, ok := m.drivers[b.DriverID]; ok {
        if d.Status == model.DriverBusy { d.Status = model.DriverAvailable }
        if completed { d.TotalRides++ }
        d.UpdatedAt = now
        m.drivers[b.DriverID] = d
    }
    if v, ok := m.vehicles[b.VehicleID]; ok {
        if v.Status == alloc.VehicleInUse { v.Status = alloc.VehicleAvailable }
        v.UpdatedAt = now
        m.vehicles[b.VehicleID] = v
    }
}

func (m *Memory) UpsertDriver(ctx context.Context, d model.Driver) (model.Driver, error) {
    m.mu.Lock(); defer m.mu.Unlock()
    if d.ID == "" { d.ID = uuid.New().String() }
    if d.Status == "" {
        d.Status = model.DriverAvailable
        if prev, ok := m.drivers[d.ID]; ok { d.Status = prev.Status }
    }
    d.UpdatedAt = m.now()
    m.drivers[d.ID] = d
    return d, nil
}

func (m *Memory) ListDrivers(ctx context.Context, status string) ([]model.Driver, error) {
    m.mu.Lock(); defer m.mu.Unlock()
    out := []model.Driver{}
    for _, d := range m.drivers {
        if status == "" || string(d.Status) == status { out = append(out, d) }
    }
    sort.Slice(out, func(i, j int) bool { return out[i].ID < out[j].ID })
    return out, nil
}

func (m *Memory) UpsertVehicle(ctx context.Context, v model.Vehicle) (model.Vehicle, error) {
    m.mu.Lock(); defer m.mu.Unlock()
    if v.ID == "" { v.ID = uuid.New().String() }
    if v.Status == "" {
        v.Status = alloc.VehicleAvailable
        if prev, ok := m.vehicles[v.ID]; ok { v.Status = prev.Status }
    }
    v.UpdatedAt = m.now()
    m.vehicles[v.ID] = v
    return v, nil
}

func (m *Memory) ListVehicles(ctx context.Context, status string) ([]model.Vehicle, error) {
    m.mu.Lock(); defer m.mu.Unlock()
    out := []model.Vehicle{}
    for _, v := range m.vehicles {
        if status == "" || string(v.Status) == status { out = append(out, v) }
    }
    sort.Slice(out, func(i, j int) bool { return out[i].ID < out[j].ID })
    return out, nil
}

func (m *Memory) Ping(ctx context.Context) error { return nil }

func (m *Memory) Close() error { return nil }
