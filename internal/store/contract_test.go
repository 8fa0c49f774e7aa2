package store

import (
    "context"
    "testing"
    "time"

    "github.com/stretchr/testify/assert"
    "github.com/stretchr/testify/require"

    "cabdispatch/internal/model"
)

// runContract exercises behaviour every backend must share.
func runContract(t *testing.T, s Store) {
    t.Helper()
    ctx := context.Background()
    require.NoError(t, s.Ping(ctx))

    d, err := s.UpsertDriver(ctx, model.Driver{Name: "Contract Driver", CurrentLocation: "Ring Road"})
    require.NoError(t, err)
    require.Equal(t, model.DriverAvailable, d.Status)
    v, err := s.UpsertVehicle(ctx, model.Vehicle{Number: "CT-0001", SeatingCapacity: 4})
    require.NoError(t, err)

    b, err := s.CreateBooking(ctx, model.Booking{
        PickupLocation: "Ring Road",
        DropLocation:   "Campus",
        RequestedTime:  time.Now().UTC().Add(-time.Minute).Truncate(time.Millisecond),
        Priority:       "medium",
    })
    require.NoError(t, err)
    require.Equal(t, model.BookingPending, b.Status)

    got, err := s.GetBooking(ctx, b.ID)
    require.NoError(t, err)
    assert.Equal(t, b.PickupLocation, got.PickupLocation)

    assigned, err := s.AssignBooking(ctx, b.ID, d.ID, v.ID, 72.25)
    require.NoError(t, err)
    assert.Equal(t, model.BookingAssigned, assigned.Status)
    assert.Equal(t, d.ID, assigned.DriverID)
    assert.Equal(t, v.ID, assigned.VehicleID)

    _, err = s.AssignBooking(ctx, b.ID, d.ID, v.ID, 72.25)
    assert.ErrorIs(t, err, ErrConflict)

    done, err := s.CompleteBooking(ctx, b.ID)
    require.NoError(t, err)
    assert.Equal(t, model.BookingCompleted, done.Status)

    _, err = s.CancelBooking(ctx, b.ID)
    assert.ErrorIs(t, err, ErrConflict)
}
