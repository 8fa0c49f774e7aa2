// Package alloc matches cab bookings to driver/vehicle pairs.
//
// The engine is a pure function of its inputs plus a fixed weight table, an injected random
// source (used only by the distance proxy) and a clock. It performs no I/O.
package alloc

import (
	"errors"
	"fmt"
	"math"
	"math/rand"
	"sync"
	"time"
)

var (
	// ErrInvalidWeights is returned by NewEngine for a weight table that is negative or does not sum to 1.
	ErrInvalidWeights = errors.New("invalid allocation weights")
	// ErrInvalidBooking is returned when a booking cannot be scored.
	ErrInvalidBooking = errors.New("invalid booking")
)

// Weights of the seven scoring factors.
type Weights struct {
	Distance   float64 `json:"distance" yaml:"distance" mapstructure:"distance"`
	Efficiency float64 `json:"efficiency" yaml:"efficiency" mapstructure:"efficiency"`
	Rating     float64 `json:"rating" yaml:"rating" mapstructure:"rating"`
	Capacity   float64 `json:"capacity" yaml:"capacity" mapstructure:"capacity"`
	Fuel       float64 `json:"fuel" yaml:"fuel" mapstructure:"fuel"`
	Priority   float64 `json:"priority" yaml:"priority" mapstructure:"priority"`
	WaitTime   float64 `json:"waitTime" yaml:"waitTime" mapstructure:"wait_time"`
}

// DefaultWeights returns the production weight table.
func DefaultWeights() Weights {
	return Weights{
		Distance:   0.25,
		Efficiency: 0.20,
		Rating:     0.15,
		Capacity:   0.15,
		Fuel:       0.10,
		Priority:   0.10,
		WaitTime:   0.05,
	}
}

const weightTolerance = 1e-6

// Validate checks that every weight is non-negative and that they sum to 1.
func (w Weights) Validate() error {
	parts := []float64{w.Distance, w.Efficiency, w.Rating, w.Capacity, w.Fuel, w.Priority, w.WaitTime}
	sum := 0.0
	for _, p := range parts {
		if p < 0 || math.IsNaN(p) {
			return fmt.Errorf("%w: negative or NaN factor", ErrInvalidWeights)
		}
		sum += p
	}
	if math.Abs(sum-1) > weightTolerance {
		return fmt.Errorf("%w: sum is %.6f, want 1", ErrInvalidWeights, sum)
	}
	return nil
}

// RandomSource supplies uniform values in [0,1). *rand.Rand satisfies it.
type RandomSource interface {
	Float64() float64
}

// lockedRand serialises access to a *rand.Rand so one engine can serve concurrent callers.
type lockedRand struct {
	mu sync.Mutex
	r  *rand.Rand
}

func (l *lockedRand) Float64() float64 {
	l.mu.Lock()
	defer l.mu.Unlock()
	return l.r.Float64()
}

// Engine scores and allocates bookings. It is safe for concurrent use.
type Engine struct {
	weights Weights
	rng     RandomSource
	now     func() time.Time
	loc     *time.Location
	bulk    BulkStrategy
}

// Option configures an Engine.
type Option func(*Engine)

// WithWeights overrides the default weight table.
func WithWeights(w Weights) Option {
	return func(e *Engine) { e.weights = w }
}

// WithSeed seeds the distance-proxy random source. A zero seed uses the current time.
func WithSeed(seed int64) Option {
	return func(e *Engine) {
		if seed == 0 {
			seed = time.Now().UnixNano()
		}
		e.rng = &lockedRand{r: rand.New(rand.NewSource(seed))}
	}
}

// WithRandom injects a random source. The caller owns its thread safety.
func WithRandom(r RandomSource) Option {
	return func(e *Engine) { e.rng = r }
}

// WithClock injects the clock used for wait-time scoring.
func WithClock(now func() time.Time) Option {
	return func(e *Engine) { e.now = now }
}

// WithLocation sets the time zone used to bucket bookings by hour.
func WithLocation(loc *time.Location) Option {
	return func(e *Engine) { e.loc = loc }
}

// WithBulkStrategy replaces the greedy batch strategy.
func WithBulkStrategy(s BulkStrategy) Option {
	return func(e *Engine) { e.bulk = s }
}

// NewEngine builds an engine with the default weights unless overridden.
func NewEngine(opts ...Option) (*Engine, error) {
	e := &Engine{
		weights: DefaultWeights(),
		now:     time.Now,
		loc:     time.Local,
	}
	for _, opt := range opts {
		opt(e)
	}
	if err := e.weights.Validate(); err != nil {
		return nil, err
	}
	if e.rng == nil {
		WithSeed(0)(e)
	}
	if e.now == nil {
		e.now = time.Now
	}
	if e.loc == nil {
		e.loc = time.Local
	}
	if e.bulk == nil {
		e.bulk = GreedyBulk{}
	}
	return e, nil
}

// Weights returns the engine's weight table.
func (e *Engine) Weights() Weights { return e.weights }
