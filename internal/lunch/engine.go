// Package lunch picks a lunch at random among the currently valid offerings, steering away from
// offerings recently suggested to the same user.
package lunch

import (
	"context"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"math/rand/v2"
	"sync"
	"time"

	"github.com/edgard/ohirun/internal/database"
)

// DefaultLookback is the trailing window used for repeat-avoidance.
const DefaultLookback = 24 * time.Hour

// ErrNoOptionsAvailable is returned when the candidate set is empty.
// It is the only domain error of the engine; callers render it as "nothing registered yet".
var ErrNoOptionsAvailable = errors.New("no lunch options available")

// Source is the subset of the data access layer the engine reads and writes.
type Source interface {
	ListValidOfferings(ctx context.Context) ([]database.Offering, error)
	ListValidOfferingsByFoodType(ctx context.Context, foodTypeID int64) ([]database.Offering, error)
	ListValidOfferingsByStore(ctx context.Context, storeID int64) ([]database.Offering, error)
	ListRecentHistory(ctx context.Context, userID string, since time.Time) ([]database.OfferingKey, error)
	AppendHistory(ctx context.Context, entry *database.LunchHistory) error
	ListFoodTypes(ctx context.Context) ([]database.FoodType, error)
	ListActiveStores(ctx context.Context) ([]database.Store, error)
}

// Rand draws an integer in [0, n). *rand.Rand from math/rand/v2 satisfies it but is not safe
// for concurrent use; the engine's default generator is.
type Rand interface {
	IntN(n int) int
}

// Decision is the chosen store and meal.
type Decision struct {
	Store database.Store
	Meal  database.Meal
	// Price is the offering's price when one is registered.
	Price *float64
	// HistoryID is the id of the lunch history row written for this decision.
	// Zero for the stateless variants.
	HistoryID int64
	// Repeated reports that every valid offering had been suggested recently,
	// so repeat-avoidance was waived for this draw.
	Repeated bool
}

// Engine implements the selection algorithm.
type Engine struct {
	source   Source
	rnd      Rand
	lookback time.Duration
	logger   *slog.Logger
}

// Option configures an Engine.
type Option func(*Engine)

// WithRand injects the random source used for the uniform draw.
func WithRand(r Rand) Option {
	return func(e *Engine) {
		if r != nil {
			e.rnd = r
		}
	}
}

// WithLookback sets the repeat-avoidance window. Non-positive values keep the default.
func WithLookback(d time.Duration) Option {
	return func(e *Engine) {
		if d > 0 {
			e.lookback = d
		}
	}
}

// WithLogger sets the engine logger.
func WithLogger(logger *slog.Logger) Option {
	return func(e *Engine) {
		if logger != nil {
			e.logger = logger
		}
	}
}

// NewEngine creates an engine over source. Without WithRand it uses a PCG generator seeded
// once per process.
func NewEngine(source Source, opts ...Option) *Engine {
	e := &Engine{
		source:   source,
		lookback: DefaultLookback,
		logger:   slog.New(slog.NewTextHandler(io.Discard, nil)),
	}
	for _, opt := range opts {
		opt(e)
	}
	if e.rnd == nil {
		e.rnd = newLockedRand()
	}
	e.logger = e.logger.With("component", "lunch_engine")
	return e
}

// Lookback returns the repeat-avoidance window in effect.
func (e *Engine) Lookback() time.Duration {
	return e.lookback
}

// DecideLunch picks an offering for userID, avoiding pairs suggested to that user within the
// lookback window ending at now, and records the suggestion. A decision is only returned once
// its history row has been written.
func (e *Engine) DecideLunch(ctx context.Context, userID, username string, now time.Time) (*Decision, error) {
	all, err := e.source.ListValidOfferings(ctx)
	if err != nil {
		return nil, fmt.Errorf("failed to list valid offerings: %w", err)
	}
	if len(all) == 0 {
		return nil, ErrNoOptionsAvailable
	}

	since := now.Add(-e.lookback)
	recent, err := e.source.ListRecentHistory(ctx, userID, since)
	if err != nil {
		return nil, fmt.Errorf("failed to list recent history: %w", err)
	}

	candidates, repeated := excludeRecent(all, recent)
	selected := candidates[e.rnd.IntN(len(candidates))]

	entry := &database.LunchHistory{
		StoreID:     selected.StoreID,
		MealID:      selected.MealID,
		UserID:      userID,
		Username:    username,
		SuggestedAt: now,
	}
	if err := e.source.AppendHistory(ctx, entry); err != nil {
		return nil, fmt.Errorf("failed to record lunch history: %w", err)
	}

	e.logger.InfoContext(ctx, "Decided lunch",
		"user_id", userID,
		"username", username,
		"store", selected.StoreName,
		"meal", selected.MealName,
		"food_type", selected.FoodTypeName,
		"candidates", len(candidates),
		"valid", len(all),
		"repeated", repeated)

	d := newDecision(selected)
	d.HistoryID = entry.ID
	d.Repeated = repeated
	return d, nil
}

// DecideLunchByFoodType draws uniformly among valid offerings of one food type.
// It neither reads nor writes history.
func (e *Engine) DecideLunchByFoodType(ctx context.Context, foodTypeID int64) (*Decision, error) {
	offerings, err := e.source.ListValidOfferingsByFoodType(ctx, foodTypeID)
	if err != nil {
		return nil, fmt.Errorf("failed to list offerings for food type %d: %w", foodTypeID, err)
	}
	return e.pick(ctx, offerings, "food_type_id", foodTypeID)
}

// DecideLunchByStore draws uniformly among valid offerings of one store.
// It neither reads nor writes history.
func (e *Engine) DecideLunchByStore(ctx context.Context, storeID int64) (*Decision, error) {
	offerings, err := e.source.ListValidOfferingsByStore(ctx, storeID)
	if err != nil {
		return nil, fmt.Errorf("failed to list offerings for store %d: %w", storeID, err)
	}
	return e.pick(ctx, offerings, "store_id", storeID)
}

func (e *Engine) pick(ctx context.Context, offerings []database.Offering, filterKey string, filterValue int64) (*Decision, error) {
	if len(offerings) == 0 {
		return nil, ErrNoOptionsAvailable
	}

	selected := offerings[e.rnd.IntN(len(offerings))]
	e.logger.InfoContext(ctx, "Decided filtered lunch",
		filterKey, filterValue,
		"store", selected.StoreName,
		"meal", selected.MealName,
		"candidates", len(offerings))

	return newDecision(selected), nil
}

// FoodTypes lists the food types a filtered draw can use.
func (e *Engine) FoodTypes(ctx context.Context) ([]database.FoodType, error) {
	return e.source.ListFoodTypes(ctx)
}

// ActiveStores lists the stores a filtered draw can use.
func (e *Engine) ActiveStores(ctx context.Context) ([]database.Store, error) {
	return e.source.ListActiveStores(ctx)
}

// excludeRecent returns all \ recent, or all itself (and true) when nothing would remain.
func excludeRecent(all []database.Offering, recent []database.OfferingKey) ([]database.Offering, bool) {
	if len(recent) == 0 {
		return all, false
	}

	seen := make(map[database.OfferingKey]struct{}, len(recent))
	for _, k := range recent {
		seen[k] = struct{}{}
	}

	fresh := make([]database.Offering, 0, len(all))
	for _, o := range all {
		if _, ok := seen[o.Key()]; !ok {
			fresh = append(fresh, o)
		}
	}
	if len(fresh) == 0 {
		return all, true
	}
	return fresh, false
}

func newDecision(o database.Offering) *Decision {
	d := &Decision{Store: o.Store(), Meal: o.Meal()}
	if o.Price.Valid {
		price := o.Price.Float64
		d.Price = &price
	}
	return d
}

type lockedRand struct {
	mu  sync.Mutex
	rnd *rand.Rand
}

func newLockedRand() *lockedRand {
	now := uint64(time.Now().UnixNano())
	return &lockedRand{rnd: rand.New(rand.NewPCG(now, rand.Uint64()))}
}

func (r *lockedRand) IntN(n int) int {
	r.mu.Lock()
	defer r.mu.Unlock()
	return r.rnd.IntN(n)
}
