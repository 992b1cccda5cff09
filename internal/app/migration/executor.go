// Package migration implements the economic-layer migration executor.
//
// A migration:
//  1. Loads the user's current layer state
//  2. Looks up the transition effect for (current, target)
//  3. Applies the balance updates in memory
//  4. Persists the new state and the history record in one transaction
//  5. Emits the transition's celebration, if any
//  6. Refreshes the user's community counters, best-effort
//
// Calls are serialized per user, not globally: two concurrent migrations for
// the same user cannot both read the pre-migration balance, while unrelated
// users proceed independently.
package migration

import (
	"fmt"
	"log"
	"sync"
	"time"

	"github.com/layerline/layerd/internal/app/community"
	"github.com/layerline/layerd/internal/app/exchange"
	"github.com/layerline/layerd/internal/domain"
	"github.com/layerline/layerd/internal/infra/observability"
)

// Executor runs mode migrations.
type Executor struct {
	store        domain.LayerStore
	celebrations *exchange.Celebrations
	aggregator   *community.Aggregator

	locks sync.Map // userID → *sync.Mutex
	clock func() time.Time
}

// New creates the executor. The aggregator and celebrations may be nil in
// tests; persistence of the migration itself never depends on them.
func New(store domain.LayerStore, celebrations *exchange.Celebrations, aggregator *community.Aggregator) *Executor {
	return &Executor{
		store:        store,
		celebrations: celebrations,
		aggregator:   aggregator,
		clock:        time.Now,
	}
}

// SetClock replaces the time source (tests).
func (e *Executor) SetClock(clock func() time.Time) { e.clock = clock }

// Result is what a successful migration returns to the caller. Warning is
// set when the migration committed but the community counter refresh failed;
// it is never an error because the migration itself is durable.
type Result struct {
	FromMode         domain.EconomicMode      `json:"from_mode"`
	ToMode           domain.EconomicMode      `json:"to_mode"`
	CreditsConverted int64                    `json:"credits_converted"`
	Message          domain.TransitionMessage `json:"message"`
	State            domain.UserLayerState    `json:"state"`
	Warning          string                   `json:"warning,omitempty"`
}

// Migrate moves a user to the target mode.
func (e *Executor) Migrate(userID string, toMode domain.EconomicMode, reason string) (*Result, error) {
	if !toMode.Valid() {
		observability.MigrationFailuresTotal.Inc()
		return nil, fmt.Errorf("%w: %q", domain.ErrUnknownMode, toMode)
	}

	mu := e.userLock(userID)
	mu.Lock()
	defer mu.Unlock()

	state, err := e.store.GetUserLayer(userID)
	if err != nil {
		observability.MigrationFailuresTotal.Inc()
		return nil, err
	}
	if state.CurrentMode == toMode {
		observability.MigrationFailuresTotal.Inc()
		return nil, fmt.Errorf("%w: already in that mode", domain.ErrInvalidTransition)
	}

	eff, err := domain.EffectOf(state.CurrentMode, toMode, domain.CreditSnapshot{
		HardCredits: state.HardCredits,
		SoftCredits: state.SoftCredits,
	})
	if err != nil {
		observability.MigrationFailuresTotal.Inc()
		return nil, err
	}

	now := e.clock()
	fromMode := state.CurrentMode
	applyEffect(state, eff)
	state.CurrentMode = toMode
	state.LastModeChangeAt = now

	rec := domain.MigrationRecord{
		UserID:           userID,
		FromMode:         fromMode,
		ToMode:           toMode,
		Reason:           reason,
		CreditsConverted: eff.CreditsConverted,
		MigratedAt:       now,
	}
	if err := e.store.SaveMigration(*state, rec); err != nil {
		observability.MigrationFailuresTotal.Inc()
		return nil, fmt.Errorf("persist migration: %w", err)
	}
	observability.MigrationsTotal.WithLabelValues(string(fromMode), string(toMode)).Inc()
	log.Printf("[migration] user=%s %s -> %s converted=%d", userID, fromMode, toMode, eff.CreditsConverted)

	// The celebration never names the user.
	if eff.Celebrate && e.celebrations != nil {
		if _, err := e.celebrations.Emit(eff.CelebrationEvent, "", state.CommunityID, 0); err != nil {
			log.Printf("[migration] emit celebration: %v", err)
		}
	}

	res := &Result{
		FromMode:         fromMode,
		ToMode:           toMode,
		CreditsConverted: eff.CreditsConverted,
		Message:          eff.Message,
		State:            *state,
	}

	// The migration is durable at this point; a failed recompute is a
	// warning to the caller, never a rollback.
	if state.CommunityID != "" && e.aggregator != nil {
		if _, err := e.aggregator.Recompute(state.CommunityID); err != nil {
			log.Printf("[migration] recompute community %s: %v", state.CommunityID, err)
			res.Warning = fmt.Sprintf("community stats refresh failed: %v", err)
		}
	}
	return res, nil
}

// History returns the user's migration records, newest first.
func (e *Executor) History(userID string, limit int) ([]domain.MigrationRecord, error) {
	return e.store.MigrationHistory(userID, limit)
}

func (e *Executor) userLock(userID string) *sync.Mutex {
	v, _ := e.locks.LoadOrStore(userID, &sync.Mutex{})
	return v.(*sync.Mutex)
}

func applyEffect(state *domain.UserLayerState, eff domain.TransitionEffect) {
	if eff.SetHardCredits != nil {
		state.HardCredits = *eff.SetHardCredits
	}
	if eff.SetSoftCredits != nil {
		v := *eff.SetSoftCredits
		state.SoftCredits = &v
	}
	if eff.ClearSoftCredits {
		state.SoftCredits = nil
	}
}
