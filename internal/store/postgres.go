package store

import (
    "context"
    "database/sql"
    _ "embed"
    "errors"
    "fmt"

    "github.com/google/uuid"
    _ "github.com/jackc/pgx/v5/stdlib"

    "cabdispatch/internal/alloc"
    "cabdispatch/internal/model"
)

//go:embed schema.sql
var schemaSQL string

type Postgres struct {
    db *sql.DB
}

func NewPostgres(dsn string) (*Postgres, error) {
    db, err := sql.Open("pgx", dsn)
    if err != nil {
        return nil, err
    }
    if err := db.Ping(); err != nil {
        _ = db.Close()
        return nil, err
    }
    return &Postgres{db: db}, nil
}

// Migrate applies the embedded schema. Statements are idempotent.
func (p *Postgres) Migrate(ctx context.Context) error {
    if _, err := p.db.ExecContext(ctx, schemaSQL); err != nil {
        return fmt.Errorf("apply schema: %w", err)
    }
    return nil
}

func (p *Postgres) Ping(ctx context.Context) error { return p.db.PingContext(ctx) }

func (p *Postgres) Close() error { return p.db.Close() }

const bookingCols = `id::text, employee_id, pickup_location, drop_location, requested_time, priority, department, status, driver_id, vehicle_id, score, created_at, updated_at`

type rowScanner interface{ Scan(dest ...any) error }

func scanBooking(row rowScanner) (model.Booking, error) {
    var b model.Booking
    var emp, dept, driverID, vehicleID sql.NullString
    var score sql.NullFloat64
    var status string
    if err := row.Scan(&b.ID, &emp, &b.PickupLocation, &b.DropLocation, &b.RequestedTime, &b.Priority, &dept, &status, &driverID, &vehicleID, &score, &b.CreatedAt, &b.UpdatedAt); err != nil {
        return b, err
    }
    b.EmployeeID, b.Department = emp.String, dept.String
    b.DriverID, b.VehicleID, b.Score = driverID.String, vehicleID.String, score.Float64
    b.Status = model.BookingStatus(status)
    return b, nil
}

func (p *Postgres) CreateBooking(ctx context.Context, b model.Booking) (model.Booking, error) {
    id := uuid.New()
    row := p.db.QueryRowContext(ctx, `INSERT INTO bookings (id, employee_id, pickup_location, drop_location, requested_time, priority, department, status)
        VALUES ($1,$2,$3,$4,$5,$6,$7,'pending') RETURNING `+bookingCols,
        id, nullIfEmpty(b.EmployeeID), b.PickupLocation, b.DropLocation, b.RequestedTime, b.Priority, nullIfEmpty(b.Department))
    return scanBooking(row)
}

func (p *Postgres) GetBooking(ctx context.Context, id string) (model.Booking, error) {
    return p.getBooking(ctx, p.db, id, false)
}

type querier interface {
    QueryRowContext(ctx context.Context, query string, args ...any) *sql.Row
}

func (p *Postgres) getBooking(ctx context.Context, q querier, id string, lock bool) (model.Booking, error) {
    if _, err := uuid.Parse(id); err != nil { return model.Booking{}, ErrNotFound }
    query := `SELECT ` + bookingCols + ` FROM bookings WHERE id=$1`
    if lock { query += ` FOR UPDATE` }
    b, err := scanBooking(q.QueryRowContext(ctx, query, id))
    if errors.Is(err, sql.ErrNoRows) { return b, ErrNotFound }
    return b, err
}

func (p *Postgres) ListBookings(ctx context.Context, status, cursor string, limit int) ([]model.Booking, string, error) {
    limit = pageSize(limit)
    // Cursor is the last id text of the previous page.
    var rows *sql.Rows
    var err error
    switch {
    case status != "" && cursor != "":
        rows, err = p.db.QueryContext(ctx, `SELECT `+bookingCols+` FROM bookings WHERE status=$1 AND id::text > $2 ORDER BY id::text LIMIT $3`, status, cursor, limit)
    case status != "":
        rows, err = p.db.QueryContext(ctx, `SELECT `+bookingCols+` FROM bookings WHERE status=$1 ORDER BY id::text LIMIT $2`, status, limit)
    case cursor != "":
        rows, err = p.db.QueryContext(ctx, `SELECT `+bookingCols+` FROM bookings WHERE id::text > $1 ORDER BY id::text LIMIT $2`, cursor, limit)
    default:
        rows, err = p.db.QueryContext(ctx, `SELECT `+bookingCols+` FROM bookings ORDER BY id::text LIMIT $1`, limit)
    }
    if err != nil { return nil, "", err }
    defer rows.Close()
    out := []model.Booking{}
    var last string
    for rows.Next() {
        b, err := scanBooking(rows)
        if err != nil { return nil, "", err }
        out = append(out, b)
        last = b.ID
    }
    if err := rows.Err(); err != nil { return nil, "", err }
    var next string
    if len(out) == limit { next = last }
    return out, next, nil
}

func (p *Postgres) AssignBooking(ctx context.Context, id, driverID, vehicleID string, score float64) (model.Booking, error) {
    tx, err := p.db.BeginTx(ctx, nil)
    if err != nil { return model.Booking{}, err }
    defer func() { _ = tx.Rollback() }()

    b, err := p.getBooking(ctx, tx, id, true)
    if err != nil { return b, err }
    if b.Status != model.BookingPending {
        return model.Booking{}, fmt.Errorf("booking is %s: %w", b.Status, ErrConflict)
    }
    if err := lockStatus(ctx, tx, `SELECT status FROM drivers WHERE id=$1 FOR UPDATE`, driverID, string(model.DriverAvailable), "driver"); err != nil {
        return model.Booking{}, err
    }
    if err := lockStatus(ctx, tx, `SELECT status FROM vehicles WHERE id=$1 FOR UPDATE`, vehicleID, string(alloc.VehicleAvailable), "vehicle"); err != nil {
        return model.Booking{}, err
    }
    if _, err := tx.ExecContext(ctx, `UPDATE drivers SET status='busy', updated_at=now() WHERE id=$1`, driverID); err != nil {
        return model.Booking{}, err
    }
    if _, err := tx.ExecContext(ctx, `UPDATE vehicles SET status='in_use', updated_at=now() WHERE id=$1`, vehicleID); err != nil {
        return model.Booking{}, err
    }
    row := tx.QueryRowContext(ctx, `UPDATE bookings SET status='assigned', driver_id=$2, vehicle_id=$3, score=$4, updated_at=now() WHERE id=$1 RETURNING `+bookingCols,
        id, driverID, vehicleID, score)
    b, err = scanBooking(row)
    if err != nil { return b, err }
    return b, tx.Commit()
}

func lockStatus(ctx context.Context, tx *sql.Tx, query, id, want, kind string) error {
    var status string
    err := tx.QueryRowContext(ctx, query, id).Scan(&status)
    if errors.Is(err, sql.ErrNoRows) { return fmt.Errorf("%s %s: %w", kind, id, ErrNotFound) }
    if err != nil { return err }
    if status != want { return fmt.Errorf("%s %s is %s: %w", kind, id, status, ErrConflict) }
    return nil
}

func (p *Postgres) CancelBooking(ctx context.Context, id string) (model.Booking, error) {
    return p.finish(ctx, id, model.BookingCancelled)
}

func (p *Postgres) CompleteBooking(ctx context.Context, id string) (model.Booking, error) {
    return p.finish(ctx, id, model.BookingCompleted)
}

// finish moves a booking to a terminal status and releases its driver and vehicle.
func (p *Postgres) finish(ctx context.Context, id string, to model.BookingStatus) (model.Booking, error) {
    tx, err := p.db.BeginTx(ctx, nil)
    if err != nil { return model.Booking{}, err }
    defer func() { _ = tx.Rollback() }()

    b, err := p.getBooking(ctx, tx, id, true)
    if err != nil { return b, err }
    allowed := b.Status == model.BookingAssigned || (to == model.BookingCancelled && b.Status == model.BookingPending)
    if !allowed {
        return model.Booking{}, fmt.Errorf("booking is %s: %w", b.Status, ErrConflict)
    }
    if b.Status == model.BookingAssigned {
        rides := 0
        if to == model.BookingCompleted { rides = 1 }
        if _, err := tx.ExecContext(ctx, `UPDATE drivers SET status=CASE WHEN status='busy' THEN 'available' ELSE status END, total_rides=total_rides+$2, updated_at=now() WHERE id=$1`, b.DriverID, rides); err != nil {
            return model.Booking{}, err
        }
        if _, err := tx.ExecContext(ctx, `UPDATE vehicles SET status=CASE WHEN status='in_use' THEN 'available' ELSE status END, updated_at=now() WHERE id=$1`, b.VehicleID); err != nil {
            return model.Booking{}, err
        }
    }
    row := tx.QueryRowContext(ctx, `UPDATE bookings SET status=$2, updated_at=now() WHERE id=$1 RETURNING `+bookingCols, id, string(to))
    b, err = scanBooking(row)
    if err != nil { return b, err }
    return b, tx.Commit()
}

func (p *Postgres) UpsertDriver(ctx context.Context, d model.Driver) (model.Driver, error) {
    if d.ID == "" { d.ID = uuid.New().String() }
    var status string
    err := p.db.QueryRowContext(ctx, `INSERT INTO drivers (id, name, phone, current_location, efficiency_score, rating, total_rides, status, updated_at)
        VALUES ($1,$2,$3,$4,$5,$6,$7,COALESCE($8,'available'),now())
        ON CONFLICT (id) DO UPDATE SET name=EXCLUDED.name, phone=EXCLUDED.phone, current_location=EXCLUDED.current_location,
            efficiency_score=EXCLUDED.efficiency_score, rating=EXCLUDED.rating, total_rides=EXCLUDED.total_rides,
            status=COALESCE($8, drivers.status), updated_at=now()
        RETURNING status, updated_at`,
        d.ID, d.Name, nullIfEmpty(d.Phone), d.CurrentLocation, d.EfficiencyScore, d.Rating, d.TotalRides, nullIfEmpty(string(d.Status))).Scan(&status, &d.UpdatedAt)
    if err != nil { return d, err }
    d.Status = model.DriverStatus(status)
    return d, nil
}

func (p *Postgres) ListDrivers(ctx context.Context, status string) ([]model.Driver, error) {
    rows, err := p.db.QueryContext(ctx, `SELECT id, name, phone, current_location, efficiency_score, rating, total_rides, status, updated_at
        FROM drivers WHERE ($1 = '' OR status = $1) ORDER BY id`, status)
    if err != nil { return nil, err }
    defer rows.Close()
    out := []model.Driver{}
    for rows.Next() {
        var d model.Driver
        var phone sql.NullString
        var st string
        if err := rows.Scan(&d.ID, &d.Name, &phone, &d.CurrentLocation, &d.EfficiencyScore, &d.Rating, &d.TotalRides, &st, &d.UpdatedAt); err != nil {
            return nil, err
        }
        d.Phone, d.Status = phone.String, model.DriverStatus(st)
        out = append(out, d)
    }
    return out, rows.Err()
}

func (p *Postgres) UpsertVehicle(ctx context.Context, v model.Vehicle) (model.Vehicle, error) {
    if v.ID == "" { v.ID = uuid.New().String() }
    var status string
    err := p.db.QueryRowContext(ctx, `INSERT INTO vehicles (id, number, model, seating_capacity, fuel_level, assigned_driver, status, updated_at)
        VALUES ($1,$2,$3,$4,$5,$6,COALESCE($7,'available'),now())
        ON CONFLICT (id) DO UPDATE SET number=EXCLUDED.number, model=EXCLUDED.model, seating_capacity=EXCLUDED.seating_capacity,
            fuel_level=EXCLUDED.fuel_level, assigned_driver=EXCLUDED.assigned_driver,
            status=COALESCE($7, vehicles.status), updated_at=now()
        RETURNING status, updated_at`,
        v.ID, v.Number, nullIfEmpty(v.Model), v.SeatingCapacity, v.FuelLevel, nullIfEmpty(v.AssignedDriver), nullIfEmpty(string(v.Status))).Scan(&status, &v.UpdatedAt)
    if err != nil { return v, err }
    v.Status = alloc.VehicleStatus(status)
    return v, nil
}

func (p *Postgres) ListVehicles(ctx context.Context, status string) ([]model.Vehicle, error) {
    rows, err := p.db.QueryContext(ctx, `SELECT id, number, model, seating_capacity, fuel_level, assigned_driver, status, updated_at
        FROM vehicles WHERE ($1 = '' OR status = $1) ORDER BY id`, status)
    if err != nil { return nil, err }
    defer rows.Close()
    out := []model.Vehicle{}
    for rows.Next() {
        var v model.Vehicle
        var mdl, assigned sql.NullString
        var st string
        if err := rows.Scan(&v.ID, &v.Number, &mdl, &v.SeatingCapacity, &v.FuelLevel, &assigned, &st, &v.UpdatedAt); err != nil {
            return nil, err
        }
        v.Model, v.AssignedDriver, v.Status = mdl.String, assigned.String, alloc.VehicleStatus(st)
        out = append(out, v)
    }
    return out, rows.Err()
}

func nullIfEmpty(s string) any { if s == "" { return nil }; return s }
