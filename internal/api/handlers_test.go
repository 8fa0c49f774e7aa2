package api

import (
    "bytes"
    "context"
    "encoding/json"
    "net/http"
    "net/http/httptest"
    "testing"
    "time"

    "github.com/stretchr/testify/assert"
    "github.com/stretchr/testify/require"

    "cabdispatch/internal/alloc"
    "cabdispatch/internal/config"
    "cabdispatch/internal/logging"
    "cabdispatch/internal/model"
    "cabdispatch/internal/store"
    "cabdispatch/internal/webhooks"
)

func newTestServer(t *testing.T, tweak ...func(*config.Config)) *Server {
    t.Helper()
    cfg, err := config.Load("")
    require.NoError(t, err)
    cfg.Auth.Mode = "dev"
    cfg.RateLimit.RPS = 0
    for _, f := range tweak { f(cfg) }
    engine, err := alloc.NewEngine(alloc.WithSeed(7), alloc.WithLocation(time.UTC))
    require.NoError(t, err)
    return newServer(cfg, logging.Discard(), store.NewMemory(), NewBroker(), engine)
}

// do sends a request through the full middleware chain. hdr holds header pairs.
func do(t *testing.T, s *Server, method, path string, body any, hdr ...string) *httptest.ResponseRecorder {
    t.Helper()
    var buf bytes.Buffer
    switch b := body.(type) {
    case nil:
    case string:
        buf.WriteString(b)
    default:
        require.NoError(t, json.NewEncoder(&buf).Encode(b))
    }
    req := httptest.NewRequest(method, path, &buf)
    req.Header.Set("Content-Type", "application/json")
    for i := 0; i+1 < len(hdr); i += 2 { req.Header.Set(hdr[i], hdr[i+1]) }
    rr := httptest.NewRecorder()
    s.Handler().ServeHTTP(rr, req)
    return rr
}

func decode[T any](t *testing.T, rr *httptest.ResponseRecorder) T {
    t.Helper()
    var v T
    require.NoError(t, json.Unmarshal(rr.Body.Bytes(), &v), rr.Body.String())
    return v
}

func seedFleet(t *testing.T, s *Server, n int) {
    t.Helper()
    locations := []string{"Sector 5 Depot", "Airport Road", "MG Road"}
    for i := 0; i < n; i++ {
        id := string(rune('1' + i))
        rr := do(t, s, http.MethodPost, "/v1/drivers", model.Driver{ID: "d-" + id, Name: "Driver " + id, CurrentLocation: locations[i%len(locations)], EfficiencyScore: 80, Rating: 4.5})
        require.Equal(t, http.StatusOK, rr.Code, rr.Body.String())
        rr = do(t, s, http.MethodPost, "/v1/vehicles", model.Vehicle{ID: "v-" + id, Number: "KA01-" + id, SeatingCapacity: 4, FuelLevel: 70})
        require.Equal(t, http.StatusOK, rr.Code, rr.Body.String())
    }
}

func createBooking(t *testing.T, s *Server, employee, priority string) model.Booking {
    t.Helper()
    in := map[string]any{"pickupLocation": "Sector 5 Gate", "dropLocation": "Tech Park", "priority": priority}
    rr := do(t, s, http.MethodPost, "/v1/bookings", in, "X-Role", "employee", "X-User-Id", employee)
    require.Equal(t, http.StatusCreated, rr.Code, rr.Body.String())
    return decode[model.Booking](t, rr)
}

func TestHealthReady(t *testing.T) {
    s := newTestServer(t)
    assert.Equal(t, http.StatusOK, do(t, s, http.MethodGet, "/healthz", nil).Code)
    assert.Equal(t, http.StatusOK, do(t, s, http.MethodGet, "/readyz", nil).Code)
}

func TestCreateBooking(t *testing.T) {
    s := newTestServer(t)
    b := createBooking(t, s, "emp-1", "")
    assert.NotEmpty(t, b.ID)
    assert.Equal(t, model.BookingPending, b.Status)
    assert.Equal(t, "medium", b.Priority)
    assert.Equal(t, "emp-1", b.EmployeeID)
    assert.False(t, b.RequestedTime.IsZero())

    rr := do(t, s, http.MethodGet, "/v1/bookings?status=pending", nil)
    require.Equal(t, http.StatusOK, rr.Code)
    page := decode[struct {
        Items      []model.Booking `json:"items"`
        NextCursor string          `json:"nextCursor"`
    }](t, rr)
    require.Len(t, page.Items, 1)
    assert.Equal(t, b.ID, page.Items[0].ID)
}

func TestCreateBookingRejectsBadInput(t *testing.T) {
    s := newTestServer(t)
    emp := []string{"X-Role", "employee", "X-User-Id", "emp-1"}
    cases := map[string]string{
        "unknown field":   `{"pickupLocation":"A","dropLocation":"B","surge":2}`,
        "trailing data":   `{"pickupLocation":"A","dropLocation":"B"} {}`,
        "missing pickup":  `{"dropLocation":"B"}`,
        "bad priority":    `{"pickupLocation":"A","dropLocation":"B","priority":"urgent"}`,
        "not json":        `pickup=A`,
    }
    for name, body := range cases {
        t.Run(name, func(t *testing.T) {
            rr := do(t, s, http.MethodPost, "/v1/bookings", body, emp...)
            assert.Equal(t, http.StatusBadRequest, rr.Code, rr.Body.String())
            assert.Equal(t, "application/problem+json", rr.Header().Get("Content-Type"))
        })
    }
}

func TestRoleChecks(t *testing.T) {
    s := newTestServer(t)
    b := createBooking(t, s, "emp-1", "low")

    assert.Equal(t, http.StatusForbidden, do(t, s, http.MethodGet, "/v1/bookings", nil, "X-Role", "employee").Code)
    assert.Equal(t, http.StatusForbidden, do(t, s, http.MethodPost, "/v1/bookings/"+b.ID+"/allocate", nil, "X-Role", "employee").Code)
    assert.Equal(t, http.StatusForbidden, do(t, s, http.MethodGet, "/v1/bookings/"+b.ID, nil, "X-Role", "employee", "X-User-Id", "emp-2").Code)
    assert.Equal(t, http.StatusOK, do(t, s, http.MethodGet, "/v1/bookings/"+b.ID, nil, "X-Role", "employee", "X-User-Id", "emp-1").Code)
    assert.Equal(t, http.StatusForbidden, do(t, s, http.MethodPost, "/v1/bookings/"+b.ID+"/cancel", nil, "X-Role", "employee", "X-User-Id", "emp-2").Code)
    assert.Equal(t, http.StatusForbidden, do(t, s, http.MethodGet, "/v1/drivers", nil, "X-Role", "driver").Code)
}

func TestBearerTokens(t *testing.T) {
    s := newTestServer(t, func(c *config.Config) { c.Auth.Mode = "hmac"; c.Auth.HMACSecret = "s3cret" })
    assert.Equal(t, http.StatusUnauthorized, do(t, s, http.MethodGet, "/v1/drivers", nil).Code)
    assert.Equal(t, http.StatusUnauthorized, do(t, s, http.MethodGet, "/v1/drivers", nil, "X-Role", "admin").Code)
    assert.Equal(t, http.StatusUnauthorized, do(t, s, http.MethodGet, "/v1/drivers", nil, "Authorization", "Bearer admin:ops").Code)

    dev := newTestServer(t)
    assert.Equal(t, http.StatusOK, do(t, dev, http.MethodGet, "/v1/drivers", nil, "Authorization", "Bearer admin:ops").Code)
    assert.Equal(t, http.StatusForbidden, do(t, dev, http.MethodGet, "/v1/drivers", nil, "Authorization", "Bearer driver:d-1").Code)
}

func TestAllocateAndComplete(t *testing.T) {
    s := newTestServer(t)
    seedFleet(t, s, 1)
    b := createBooking(t, s, "emp-1", "high")

    events := s.Broker.Subscribe(FleetTopic)
    defer s.Broker.Unsubscribe(FleetTopic, events)

    rr := do(t, s, http.MethodPost, "/v1/bookings/"+b.ID+"/allocate", nil)
    require.Equal(t, http.StatusOK, rr.Code, rr.Body.String())
    out := decode[model.AllocationOutcome](t, rr)
    require.NotNil(t, out.Driver)
    require.NotNil(t, out.Vehicle)
    assert.Equal(t, "d-1", out.Driver.ID)
    assert.Equal(t, "v-1", out.Vehicle.ID)
    assert.Equal(t, alloc.ReasonAllocated, out.Reason)
    assert.Greater(t, out.Score, 0.0)
    assert.Equal(t, model.BookingAssigned, out.Booking.Status)
    assert.Equal(t, out.Score, out.Booking.Score)

    select {
    case evt := <-events:
        assert.Equal(t, EventBookingAssigned, evt.Type)
        assert.Equal(t, b.ID, evt.Data["bookingId"])
    case <-time.After(time.Second):
        t.Fatal("no booking.assigned event")
    }

    // allocating twice conflicts
    assert.Equal(t, http.StatusConflict, do(t, s, http.MethodPost, "/v1/bookings/"+b.ID+"/allocate", nil).Code)

    // only the assigned driver may complete
    assert.Equal(t, http.StatusForbidden, do(t, s, http.MethodPost, "/v1/bookings/"+b.ID+"/complete", nil, "X-Role", "driver", "X-User-Id", "d-9").Code)
    rr = do(t, s, http.MethodPost, "/v1/bookings/"+b.ID+"/complete", nil, "X-Role", "driver", "X-User-Id", "d-1")
    require.Equal(t, http.StatusOK, rr.Code, rr.Body.String())
    assert.Equal(t, model.BookingCompleted, decode[model.Booking](t, rr).Status)

    drivers, err := s.Store.ListDrivers(context.Background(), "")
    require.NoError(t, err)
    require.Len(t, drivers, 1)
    assert.Equal(t, 1, drivers[0].TotalRides)
    assert.Equal(t, model.DriverAvailable, drivers[0].Status)
}

func TestAllocateWithoutFleet(t *testing.T) {
    s := newTestServer(t)
    b := createBooking(t, s, "emp-1", "medium")

    rr := do(t, s, http.MethodPost, "/v1/bookings/"+b.ID+"/allocate", `{"trafficData":{"congestion":"high"}}`)
    require.Equal(t, http.StatusOK, rr.Code, rr.Body.String())
    out := decode[model.AllocationOutcome](t, rr)
    assert.Nil(t, out.Driver)
    assert.Equal(t, alloc.ReasonNoResources, out.Reason)
    assert.Equal(t, 0.0, out.Score)

    got, err := s.Store.GetBooking(context.Background(), b.ID)
    require.NoError(t, err)
    assert.Equal(t, model.BookingPending, got.Status)
}

func TestCancelReleasesFleet(t *testing.T) {
    s := newTestServer(t)
    seedFleet(t, s, 1)
    b := createBooking(t, s, "emp-1", "low")
    require.Equal(t, http.StatusOK, do(t, s, http.MethodPost, "/v1/bookings/"+b.ID+"/allocate", nil).Code)

    rr := do(t, s, http.MethodPost, "/v1/bookings/"+b.ID+"/cancel", nil, "X-Role", "employee", "X-User-Id", "emp-1")
    require.Equal(t, http.StatusOK, rr.Code, rr.Body.String())

    vehicles, err := s.Store.ListVehicles(context.Background(), string(alloc.VehicleAvailable))
    require.NoError(t, err)
    assert.Len(t, vehicles, 1)

    assert.Equal(t, http.StatusConflict, do(t, s, http.MethodPost, "/v1/bookings/"+b.ID+"/cancel", nil).Code)
    assert.Equal(t, http.StatusConflict, do(t, s, http.MethodPost, "/v1/bookings/"+b.ID+"/allocate", nil).Code)
}

func TestBookingNotFound(t *testing.T) {
    s := newTestServer(t)
    assert.Equal(t, http.StatusNotFound, do(t, s, http.MethodGet, "/v1/bookings/nope", nil).Code)
    assert.Equal(t, http.StatusNotFound, do(t, s, http.MethodPost, "/v1/bookings/nope/allocate", nil).Code)
    assert.Equal(t, http.StatusNotFound, do(t, s, http.MethodPost, "/v1/bookings/nope/teleport", nil).Code)
}

type bulkResp struct {
    Results []struct {
        BookingID string  `json:"bookingId"`
        DriverID  string  `json:"driverId"`
        VehicleID string  `json:"vehicleId"`
        Score     float64 `json:"score"`
        Reason    string  `json:"reason"`
    } `json:"results"`
    Summary alloc.Summary `json:"summary"`
    Skipped []struct {
        BookingID string `json:"bookingId"`
        Reason    string `json:"reason"`
    } `json:"skipped"`
}

func TestBulkAllocatePending(t *testing.T) {
    s := newTestServer(t)
    seedFleet(t, s, 2)
    low := createBooking(t, s, "emp-1", "low")
    high := createBooking(t, s, "emp-2", "high")
    createBooking(t, s, "emp-3", "medium")

    rr := do(t, s, http.MethodPost, "/v1/allocations/bulk", nil)
    require.Equal(t, http.StatusOK, rr.Code, rr.Body.String())
    res := decode[bulkResp](t, rr)

    require.Len(t, res.Results, 3)
    assert.Equal(t, high.ID, res.Results[0].BookingID)
    assert.Equal(t, low.ID, res.Results[2].BookingID)
    assert.Equal(t, alloc.ReasonNoResources, res.Results[2].Reason)
    assert.Equal(t, 3, res.Summary.Total)
    assert.Equal(t, 2, res.Summary.Successful)
    assert.Equal(t, 1, res.Summary.Failed)
    assert.InDelta(t, 2.0/3.0, res.Summary.SuccessRate, 1e-9)
    assert.NotEqual(t, res.Results[0].DriverID, res.Results[1].DriverID)
    assert.NotEqual(t, res.Results[0].VehicleID, res.Results[1].VehicleID)

    pending, err := store.ListAll(context.Background(), s.Store, string(model.BookingPending))
    require.NoError(t, err)
    require.Len(t, pending, 1)
    assert.Equal(t, low.ID, pending[0].ID)
}

func TestBulkAllocateReportsSkipped(t *testing.T) {
    s := newTestServer(t)
    seedFleet(t, s, 1)
    a := createBooking(t, s, "emp-1", "medium")
    c := createBooking(t, s, "emp-2", "medium")
    require.Equal(t, http.StatusOK, do(t, s, http.MethodPost, "/v1/bookings/"+c.ID+"/cancel", nil).Code)

    rr := do(t, s, http.MethodPost, "/v1/allocations/bulk", map[string]any{"bookingIds": []string{a.ID, c.ID, "ghost", a.ID}})
    require.Equal(t, http.StatusOK, rr.Code, rr.Body.String())
    res := decode[bulkResp](t, rr)

    require.Len(t, res.Results, 1)
    assert.Equal(t, a.ID, res.Results[0].BookingID)
    assert.Equal(t, alloc.Summary{Total: 1, Successful: 1, Failed: 0, SuccessRate: 1}, res.Summary)
    require.Len(t, res.Skipped, 2)
    assert.Equal(t, c.ID, res.Skipped[0].BookingID)
    assert.Equal(t, "booking is cancelled", res.Skipped[0].Reason)
    assert.Equal(t, "ghost", res.Skipped[1].BookingID)
}

func TestBulkAllocateEmpty(t *testing.T) {
    s := newTestServer(t)
    rr := do(t, s, http.MethodPost, "/v1/allocations/bulk", `{}`)
    require.Equal(t, http.StatusOK, rr.Code, rr.Body.String())
    res := decode[bulkResp](t, rr)
    assert.Empty(t, res.Results)
    assert.Equal(t, alloc.Summary{}, res.Summary)
}

func TestFleetSuggestions(t *testing.T) {
    s := newTestServer(t)
    seedFleet(t, s, 1)
    // four bookings at the same hour and route against one driver
    for i := 0; i < 4; i++ { createBooking(t, s, "emp-1", "medium") }

    rr := do(t, s, http.MethodGet, "/v1/fleet/suggestions", nil)
    require.Equal(t, http.StatusOK, rr.Code, rr.Body.String())
    body := decode[struct {
        Suggestions  []alloc.Suggestion `json:"suggestions"`
        HourlyDemand []int              `json:"hourlyDemand"`
    }](t, rr)
    require.Len(t, body.HourlyDemand, 24)
    types := map[string]bool{}
    for _, sg := range body.Suggestions { types[sg.Type] = true }
    assert.True(t, types[alloc.SuggestionCapacity])
    assert.True(t, types[alloc.SuggestionEfficiency])
    assert.True(t, types[alloc.SuggestionUtilization])
}

func TestFleetUpsertValidation(t *testing.T) {
    s := newTestServer(t)
    assert.Equal(t, http.StatusBadRequest, do(t, s, http.MethodPost, "/v1/drivers", `{"name":"A","rating":7}`).Code)
    assert.Equal(t, http.StatusBadRequest, do(t, s, http.MethodPost, "/v1/vehicles", `{"number":"X","status":"parked"}`).Code)

    rr := do(t, s, http.MethodPost, "/v1/vehicles", `{"number":"KA01","seatingCapacity":7}`)
    require.Equal(t, http.StatusOK, rr.Code, rr.Body.String())
    v := decode[model.Vehicle](t, rr)
    assert.NotEmpty(t, v.ID)
    assert.Equal(t, alloc.VehicleAvailable, v.Status)
}

func TestAllocatorConfig(t *testing.T) {
    s := newTestServer(t)
    rr := do(t, s, http.MethodGet, "/v1/allocator/config", nil)
    require.Equal(t, http.StatusOK, rr.Code)
    body := decode[struct {
        Weights alloc.Weights `json:"weights"`
    }](t, rr)
    assert.Equal(t, alloc.DefaultWeights(), body.Weights)
}

func TestOpenAPIJSON(t *testing.T) {
    s := newTestServer(t)
    rr := do(t, s, http.MethodGet, "/openapi.json", nil)
    require.Equal(t, http.StatusOK, rr.Code)
    doc := decode[map[string]any](t, rr)
    paths, ok := doc["paths"].(map[string]any)
    require.True(t, ok)
    assert.Contains(t, paths, "/v1/allocations/bulk")
}

func TestRateLimit(t *testing.T) {
    s := newTestServer(t, func(c *config.Config) { c.RateLimit.RPS = 0.001; c.RateLimit.Burst = 1 })
    assert.Equal(t, http.StatusOK, do(t, s, http.MethodGet, "/healthz", nil).Code)
    assert.Equal(t, http.StatusTooManyRequests, do(t, s, http.MethodGet, "/healthz", nil).Code)
    // a different client has its own bucket
    assert.Equal(t, http.StatusOK, do(t, s, http.MethodGet, "/healthz", nil, "X-Forwarded-For", "10.0.0.9").Code)
}

func TestMetricsPath(t *testing.T) {
    assert.Equal(t, "/v1/bookings", metricsPath("/v1/bookings"))
    assert.Equal(t, "/v1/bookings/{id}", metricsPath("/v1/bookings/abc"))
    assert.Equal(t, "/v1/bookings/{id}/allocate", metricsPath("/v1/bookings/abc/allocate"))
}

func TestMetricsEndpoint(t *testing.T) {
    s := newTestServer(t)
    do(t, s, http.MethodGet, "/healthz", nil)
    rr := do(t, s, http.MethodGet, "/metrics", nil)
    require.Equal(t, http.StatusOK, rr.Code)
    assert.Contains(t, rr.Body.String(), "http_requests_total")
}

func TestEventsReachWebhooks(t *testing.T) {
    s := newTestServer(t)
    s.Hooks = webhooks.NewNotifier([]string{"http://hooks.invalid/cabs"}, "", 1, s.Log)
    createBooking(t, s, "emp-1", "low")
    seedFleet(t, s, 1)
    // booking.created, driver.updated, vehicle.updated
    assert.Equal(t, 3, s.Hooks.Pending())
}
