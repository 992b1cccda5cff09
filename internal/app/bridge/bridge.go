// Package bridge manages time-boxed cross-mode events: gift days, debt
// amnesties, and whatever a community dreams up. "Active" is a pure derived
// predicate over the stored window; the mode override an event may carry is
// stored but not enforced here.
package bridge

import (
	"fmt"
	"log"
	"time"

	"github.com/google/uuid"

	"github.com/layerline/layerd/internal/domain"
)

// Service stores and queries bridge events.
type Service struct {
	store domain.BridgeStore
	clock func() time.Time
}

// New creates the bridge event service.
func New(store domain.BridgeStore) *Service {
	return &Service{store: store, clock: time.Now}
}

// SetClock replaces the time source (tests).
func (s *Service) SetClock(clock func() time.Time) { s.clock = clock }

// CreateParams carries a new bridge event.
type CreateParams struct {
	Type        string
	Title       string
	Description string
	ForceLayer  domain.EconomicMode
	StartsAt    time.Time
	EndsAt      time.Time
	Recurring   bool
	Frequency   string
	CommunityID string
}

// Create validates and persists a bridge event.
func (s *Service) Create(p CreateParams) (*domain.BridgeEvent, error) {
	switch {
	case p.Type == "":
		return nil, fmt.Errorf("%w: type", domain.ErrMissingField)
	case p.Title == "":
		return nil, fmt.Errorf("%w: title", domain.ErrMissingField)
	case p.Description == "":
		return nil, fmt.Errorf("%w: description", domain.ErrMissingField)
	}
	if p.StartsAt.IsZero() || p.EndsAt.IsZero() {
		return nil, fmt.Errorf("%w: starts_at/ends_at", domain.ErrMissingField)
	}
	if !p.EndsAt.After(p.StartsAt) {
		return nil, fmt.Errorf("event must end after it starts")
	}
	if p.ForceLayer != "" && !p.ForceLayer.Valid() {
		return nil, fmt.Errorf("%w: %q", domain.ErrUnknownMode, p.ForceLayer)
	}

	e := domain.BridgeEvent{
		ID:          uuid.NewString(),
		Type:        p.Type,
		Title:       p.Title,
		Description: p.Description,
		ForceLayer:  p.ForceLayer,
		StartsAt:    p.StartsAt,
		EndsAt:      p.EndsAt,
		Recurring:   p.Recurring,
		Frequency:   p.Frequency,
		CommunityID: p.CommunityID,
		CreatedAt:   s.clock(),
	}
	if err := s.store.InsertBridgeEvent(e); err != nil {
		return nil, err
	}
	return &e, nil
}

// Active returns events whose window contains now, newest start first. An
// empty communityID means all communities.
func (s *Service) Active(communityID string) ([]domain.BridgeEvent, error) {
	return s.store.ActiveBridgeEvents(communityID, s.clock())
}

// ─── Recurring Event Materialization ────────────────────────────────────────
// Communities can opt in to automatic gift days (monthly, first of the
// month, 24h) and debt amnesties (quarterly, first of the quarter, 72h).
// The daemon sweep calls EnsureRecurring; duplicates are suppressed by the
// (community, type, starts_at) key.

// EnsureRecurring materializes the community's upcoming auto events.
func (s *Service) EnsureRecurring(cfg domain.CommunityLayerConfig) {
	now := s.clock()
	if cfg.AutoGiftDays {
		start := nextMonthStart(now)
		s.ensureEvent(cfg.CommunityID, domain.BridgeGiftDay, "Gift Day",
			"One day where everything moves as a gift, whatever your mode.",
			domain.ModeGiftPure, start, start.Add(24*time.Hour), "MONTHLY_FIRST")
	}
	if cfg.AutoDebtAmnesty {
		start := nextQuarterStart(now)
		s.ensureEvent(cfg.CommunityID, domain.BridgeDebtAmnesty, "Debt Amnesty",
			"Three days where soft debts are forgiven and hard ones rest.",
			"", start, start.Add(72*time.Hour), "QUARTERLY_FIRST")
	}
}

func (s *Service) ensureEvent(communityID, eventType, title, description string,
	forceLayer domain.EconomicMode, startsAt, endsAt time.Time, frequency string) {
	exists, err := s.store.HasBridgeEvent(communityID, eventType, startsAt)
	if err != nil {
		log.Printf("[bridge] check %s for %s: %v", eventType, communityID, err)
		return
	}
	if exists {
		return
	}
	e := domain.BridgeEvent{
		ID:          uuid.NewString(),
		Type:        eventType,
		Title:       title,
		Description: description,
		ForceLayer:  forceLayer,
		StartsAt:    startsAt,
		EndsAt:      endsAt,
		Recurring:   true,
		Frequency:   frequency,
		CommunityID: communityID,
		CreatedAt:   s.clock(),
	}
	if err := s.store.InsertBridgeEvent(e); err != nil {
		log.Printf("[bridge] insert %s for %s: %v", eventType, communityID, err)
		return
	}
	log.Printf("[bridge] scheduled %s for community %s at %s", eventType, communityID, startsAt.Format(time.RFC3339))
}

func nextMonthStart(now time.Time) time.Time {
	y, m, _ := now.UTC().Date()
	return time.Date(y, m, 1, 0, 0, 0, 0, time.UTC).AddDate(0, 1, 0)
}

func nextQuarterStart(now time.Time) time.Time {
	y, m, _ := now.UTC().Date()
	quarterStart := time.Date(y, time.Month((int(m)-1)/3*3+1), 1, 0, 0, 0, 0, time.UTC)
	return quarterStart.AddDate(0, 3, 0)
}
