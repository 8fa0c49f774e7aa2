package store

import (
    "context"
    "errors"
    "fmt"
    "time"

    "github.com/google/uuid"
    "go.mongodb.org/mongo-driver/bson"
    "go.mongodb.org/mongo-driver/mongo"
    "go.mongodb.org/mongo-driver/mongo/options"

    "cabdispatch/internal/alloc"
    "cabdispatch/internal/model"
)

// Mongo stores bookings, drivers and vehicles as documents. It does not require a replica
// set: lifecycle transitions use conditional updates and undo earlier steps when a later
// one loses a race.
type Mongo struct {
    client   *mongo.Client
    bookings *mongo.Collection
    drivers  *mongo.Collection
    vehicles *mongo.Collection
    now      func() time.Time
}

func NewMongo(ctx context.Context, uri, database string) (*Mongo, error) {
    client, err := mongo.Connect(ctx, options.Client().ApplyURI(uri))
    if err != nil { return nil, err }
    if err := client.Ping(ctx, nil); err != nil {
        _ = client.Disconnect(context.Background())
        return nil, err
    }
    db := client.Database(database)
    m := &Mongo{
        client:   client,
        bookings: db.Collection("bookings"),
        drivers:  db.Collection("drivers"),
        vehicles: db.Collection("vehicles"),
        now:      func() time.Time { return time.Now().UTC().Truncate(time.Millisecond) },
    }
    return m, nil
}

// EnsureIndexes creates the status indexes used by list queries.
func (m *Mongo) EnsureIndexes(ctx context.Context) error {
    for _, c := range []*mongo.Collection{m.bookings, m.drivers, m.vehicles} {
        if _, err := c.Indexes().CreateOne(ctx, mongo.IndexModel{Keys: bson.D{{Key: "status", Value: 1}, {Key: "_id", Value: 1}}}); err != nil {
            return fmt.Errorf("index %s: %w", c.Name(), err)
        }
    }
    return nil
}

func (m *Mongo) Ping(ctx context.Context) error { return m.client.Ping(ctx, nil) }

func (m *Mongo) Close() error {
    ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
    defer cancel()
    return m.client.Disconnect(ctx)
}

func (m *Mongo) CreateBooking(ctx context.Context, b model.Booking) (model.Booking, error) {
    b.ID = uuid.New().String()
    b.Status = model.BookingPending
    b.DriverID, b.VehicleID, b.Score = "", "", 0
    b.CreatedAt = m.now()
    b.UpdatedAt = b.CreatedAt
    if _, err := m.bookings.InsertOne(ctx, b); err != nil { return model.Booking{}, err }
    return b, nil
}

func (m *Mongo) GetBooking(ctx context.Context, id string) (model.Booking, error) {
    var b model.Booking
    err := m.bookings.FindOne(ctx, bson.M{"_id": id}).Decode(&b)
    if errors.Is(err, mongo.ErrNoDocuments) { return b, ErrNotFound }
    return b, err
}

func (m *Mongo) ListBookings(ctx context.Context, status, cursor string, limit int) ([]model.Booking, string, error) {
    limit = pageSize(limit)
    filter := bson.M{}
    if status != "" { filter["status"] = status }
    if cursor != "" { filter["_id"] = bson.M{"$gt": cursor} }
    opts := options.Find().SetSort(bson.D{{Key: "_id", Value: 1}}).SetLimit(int64(limit))
    cur, err := m.bookings.Find(ctx, filter, opts)
    if err != nil { return nil, "", err }
    out := []model.Booking{}
    if err := cur.All(ctx, &out); err != nil { return nil, "", err }
    var next string
    if len(out) == limit { next = out[len(out)-1].ID }
    return out, next, nil
}

func (m *Mongo) AssignBooking(ctx context.Context, id, driverID, vehicleID string, score float64) (model.Booking, error) {
    b, err := m.GetBooking(ctx, id)
    if err != nil { return b, err }
    if b.Status != model.BookingPending {
        return model.Booking{}, fmt.Errorf("booking is %s: %w", b.Status, ErrConflict)
    }
    now := m.now()
    if err := m.transition(ctx, m.drivers, "driver", driverID, model.DriverAvailable, model.DriverBusy, now); err != nil {
        return model.Booking{}, err
    }
    if err := m.transition(ctx, m.vehicles, "vehicle", vehicleID, alloc.VehicleAvailable, alloc.VehicleInUse, now); err != nil {
        m.undo(m.drivers, driverID, model.DriverBusy, model.DriverAvailable)
        return model.Booking{}, err
    }
    var out model.Booking
    err = m.bookings.FindOneAndUpdate(ctx,
        bson.M{"_id": id, "status": model.BookingPending},
        bson.M{"$set": bson.M{"status": model.BookingAssigned, "driver_id": driverID, "vehicle_id": vehicleID, "score": score, "updated_at": now}},
        options.FindOneAndUpdate().SetReturnDocument(options.After),
    ).Decode(&out)
    if err != nil {
        m.undo(m.drivers, driverID, model.DriverBusy, model.DriverAvailable)
        m.undo(m.vehicles, vehicleID, alloc.VehicleInUse, alloc.VehicleAvailable)
        if errors.Is(err, mongo.ErrNoDocuments) { return model.Booking{}, fmt.Errorf("booking changed concurrently: %w", ErrConflict) }
        return model.Booking{}, err
    }
    return out, nil
}

// transition flips a document's status from -> to, reporting a missing document as
// ErrNotFound and any other current status as ErrConflict.
func (m *Mongo) transition(ctx context.Context, c *mongo.Collection, kind, id string, from, to any, now time.Time) error {
    res, err := c.UpdateOne(ctx, bson.M{"_id": id, "status": from}, bson.M{"$set": bson.M{"status": to, "updated_at": now}})
    if err != nil { return err }
    if res.MatchedCount == 1 { return nil }
    var doc struct{ Status string `bson:"status"` }
    err = c.FindOne(ctx, bson.M{"_id": id}).Decode(&doc)
    if errors.Is(err, mongo.ErrNoDocuments) { return fmt.Errorf("%s %s: %w", kind, id, ErrNotFound) }
    if err != nil { return err }
    return fmt.Errorf("%s %s is %s: %w", kind, id, doc.Status, ErrConflict)
}

func (m *Mongo) undo(c *mongo.Collection, id string, from, to any) {
    ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
    defer cancel()
    _, _ = c.UpdateOne(ctx, bson.M{"_id": id, "status": from}, bson.M{"$set": bson.M{"status": to, "updated_at": m.now()}})
}

func (m *Mongo) CancelBooking(ctx context.Context, id string) (model.Booking, error) {
    return m.finish(ctx, id, model.BookingCancelled, []model.BookingStatus{model.BookingPending, model.BookingAssigned})
}

func (m *Mongo) CompleteBooking(ctx context.Context, id string) (model.Booking, error) {
    return m.finish(ctx, id, model.BookingCompleted, []model.BookingStatus{model.BookingAssigned})
}

func (m *Mongo) finish(ctx context.Context, id string, to model.BookingStatus, from []model.BookingStatus) (model.Booking, error) {
    now := m.now()
    var prev model.Booking
    err := m.bookings.FindOneAndUpdate(ctx,
        bson.M{"_id": id, "status": bson.M{"$in": from}},
        bson.M{"$set": bson.M{"status": to, "updated_at": now}},
    ).Decode(&prev)
    if errors.Is(err, mongo.ErrNoDocuments) {
        cur, gerr := m.GetBooking(ctx, id)
        if gerr != nil { return cur, gerr }
        return model.Booking{}, fmt.Errorf("booking is %s: %w", cur.Status, ErrConflict)
    }
    if err != nil { return model.Booking{}, err }

    if prev.Status == model.BookingAssigned {
        upd := bson.M{"$set": bson.M{"status": model.DriverAvailable, "updated_at": now}}
        if to == model.BookingCompleted { upd["$inc"] = bson.M{"total_rides": 1} }
        if _, err := m.drivers.UpdateOne(ctx, bson.M{"_id": prev.DriverID, "status": model.DriverBusy}, upd); err != nil {
            return model.Booking{}, err
        }
        if _, err := m.vehicles.UpdateOne(ctx, bson.M{"_id": prev.VehicleID, "status": alloc.VehicleInUse},
            bson.M{"$set": bson.M{"status": alloc.VehicleAvailable, "updated_at": now}}); err != nil {
            return model.Booking{}, err
        }
    }
    prev.Status, prev.UpdatedAt = to, now
    return prev, nil
}

func (m *Mongo) UpsertDriver(ctx context.Context, d model.Driver) (model.Driver, error) {
    if d.ID == "" { d.ID = uuid.New().String() }
    d.UpdatedAt = m.now()
    set := bson.M{
        "name": d.Name, "phone": d.Phone, "current_location": d.CurrentLocation,
        "efficiency_score": d.EfficiencyScore, "rating": d.Rating, "total_rides": d.TotalRides,
        "updated_at": d.UpdatedAt,
    }
    upd := bson.M{"$set": set}
    if d.Status != "" {
        set["status"] = d.Status
    } else {
        upd["$setOnInsert"] = bson.M{"status": model.DriverAvailable}
    }
    var out model.Driver
    err := m.drivers.FindOneAndUpdate(ctx, bson.M{"_id": d.ID}, upd,
        options.FindOneAndUpdate().SetUpsert(true).SetReturnDocument(options.After)).Decode(&out)
    return out, err
}

func (m *Mongo) ListDrivers(ctx context.Context, status string) ([]model.Driver, error) {
    out := []model.Driver{}
    if err := m.list(ctx, m.drivers, status, &out); err != nil { return nil, err }
    return out, nil
}

func (m *Mongo) UpsertVehicle(ctx context.Context, v model.Vehicle) (model.Vehicle, error) {
    if v.ID == "" { v.ID = uuid.New().String() }
    v.UpdatedAt = m.now()
    set := bson.M{
        "number": v.Number, "model": v.Model, "seating_capacity": v.SeatingCapacity,
        "fuel_level": v.FuelLevel, "assigned_driver": v.AssignedDriver, "updated_at": v.UpdatedAt,
    }
    upd := bson.M{"$set": set}
    if v.Status != "" {
        set["status"] = v.Status
    } else {
        upd["$setOnInsert"] = bson.M{"status": alloc.VehicleAvailable}
    }
    var out model.Vehicle
    err := m.vehicles.FindOneAndUpdate(ctx, bson.M{"_id": v.ID}, upd,
        options.FindOneAndUpdate().SetUpsert(true).SetReturnDocument(options.After)).Decode(&out)
    return out, err
}

func (m *Mongo) ListVehicles(ctx context.Context, status string) ([]model.Vehicle, error) {
    out := []model.Vehicle{}
    if err := m.list(ctx, m.vehicles, status, &out); err != nil { return nil, err }
    return out, nil
}

func (m *Mongo) list(ctx context.Context, c *mongo.Collection, status string, out any) error {
    filter := bson.M{}
    if status != "" { filter["status"] = status }
    cur, err := c.Find(ctx, filter, options.Find().SetSort(bson.D{{Key: "_id", Value: 1}}))
    if err != nil { return err }
    return cur.All(ctx, out)
}
