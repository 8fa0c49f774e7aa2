package store

import (
    "context"
    "errors"
    "testing"
    "time"

    "github.com/stretchr/testify/assert"
    "github.com/stretchr/testify/require"

    "cabdispatch/internal/alloc"
    "cabdispatch/internal/model"
)

func seedFleet(t *testing.T, s Store) (model.Driver, model.Vehicle) {
    t.Helper()
    ctx := context.Background()
    d, err := s.UpsertDriver(ctx, model.Driver{Name: "Ravi", CurrentLocation: "Sector 5", Rating: 4.5})
    require.NoError(t, err)
    v, err := s.UpsertVehicle(ctx, model.Vehicle{Number: "KA-01-1234", SeatingCapacity: 4, FuelLevel: 70})
    require.NoError(t, err)
    return d, v
}

func newBooking(t *testing.T, s Store) model.Booking {
    t.Helper()
    b, err := s.CreateBooking(context.Background(), model.Booking{
        PickupLocation: "Sector 5 Gate",
        DropLocation:   "HQ",
        RequestedTime:  time.Now().Add(-5 * time.Minute),
        Priority:       "high",
    })
    require.NoError(t, err)
    return b
}

func TestMemoryUpsertDefaults(t *testing.T) {
    s := NewMemory()
    d, v := seedFleet(t, s)
    assert.NotEmpty(t, d.ID)
    assert.Equal(t, model.DriverAvailable, d.Status)
    assert.NotEmpty(t, v.ID)
    assert.Equal(t, alloc.VehicleAvailable, v.Status)

    // An upsert without status keeps the current one.
    ctx := context.Background()
    d.Status = model.DriverOffline
    _, err := s.UpsertDriver(ctx, d)
    require.NoError(t, err)
    d.Status = ""
    d.CurrentLocation = "Sector 9"
    got, err := s.UpsertDriver(ctx, d)
    require.NoError(t, err)
    assert.Equal(t, model.DriverOffline, got.Status)
    assert.Equal(t, "Sector 9", got.CurrentLocation)
}

func TestMemoryBookingLifecycle(t *testing.T) {
    ctx := context.Background()
    s := NewMemory()
    d, v := seedFleet(t, s)
    b := newBooking(t, s)
    assert.Equal(t, model.BookingPending, b.Status)

    got, err := s.AssignBooking(ctx, b.ID, d.ID, v.ID, 88.5)
    require.NoError(t, err)
    assert.Equal(t, model.BookingAssigned, got.Status)
    assert.Equal(t, 88.5, got.Score)

    busy, err := s.ListDrivers(ctx, string(model.DriverBusy))
    require.NoError(t, err)
    require.Len(t, busy, 1)
    inUse, err := s.ListVehicles(ctx, string(alloc.VehicleInUse))
    require.NoError(t, err)
    require.Len(t, inUse, 1)

    // Resources are taken.
    other := newBooking(t, s)
    _, err = s.AssignBooking(ctx, other.ID, d.ID, v.ID, 50)
    assert.ErrorIs(t, err, ErrConflict)

    got, err = s.CompleteBooking(ctx, b.ID)
    require.NoError(t, err)
    assert.Equal(t, model.BookingCompleted, got.Status)

    drivers, err := s.ListDrivers(ctx, string(model.DriverAvailable))
    require.NoError(t, err)
    require.Len(t, drivers, 1)
    assert.Equal(t, 1, drivers[0].TotalRides)

    _, err = s.CompleteBooking(ctx, b.ID)
    assert.ErrorIs(t, err, ErrConflict)
    _, err = s.CancelBooking(ctx, b.ID)
    assert.ErrorIs(t, err, ErrConflict)
}

func TestMemoryCancelReleasesResources(t *testing.T) {
    ctx := context.Background()
    s := NewMemory()
    d, v := seedFleet(t, s)
    b := newBooking(t, s)
    _, err := s.AssignBooking(ctx, b.ID, d.ID, v.ID, 70)
    require.NoError(t, err)

    got, err := s.CancelBooking(ctx, b.ID)
    require.NoError(t, err)
    assert.Equal(t, model.BookingCancelled, got.Status)

    vs, err := s.ListVehicles(ctx, string(alloc.VehicleAvailable))
    require.NoError(t, err)
    assert.Len(t, vs, 1)
    ds, err := s.ListDrivers(ctx, string(model.DriverAvailable))
    require.NoError(t, err)
    require.Len(t, ds, 1)
    assert.Equal(t, 0, ds[0].TotalRides)
}

func TestMemoryNotFound(t *testing.T) {
    ctx := context.Background()
    s := NewMemory()
    _, err := s.GetBooking(ctx, "missing")
    assert.ErrorIs(t, err, ErrNotFound)
    _, err = s.CancelBooking(ctx, "missing")
    assert.ErrorIs(t, err, ErrNotFound)

    b := newBooking(t, s)
    _, err = s.AssignBooking(ctx, b.ID, "ghost", "ghost", 1)
    assert.True(t, errors.Is(err, ErrNotFound))
}

func TestMemoryListPaging(t *testing.T) {
    ctx := context.Background()
    s := NewMemory()
    for i := 0; i < 5; i++ {
        newBooking(t, s)
    }
    page, next, err := s.ListBookings(ctx, "", "", 2)
    require.NoError(t, err)
    assert.Len(t, page, 2)
    require.NotEmpty(t, next)

    seen := len(page)
    for next != "" {
        page, next, err = s.ListBookings(ctx, "", next, 2)
        require.NoError(t, err)
        seen += len(page)
    }
    assert.Equal(t, 5, seen)

    all, err := ListAll(ctx, s, string(model.BookingPending))
    require.NoError(t, err)
    assert.Len(t, all, 5)
}

func TestMemoryContract(t *testing.T) {
    runContract(t, NewMemory())
}
