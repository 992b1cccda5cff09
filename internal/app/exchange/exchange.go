// Package exchange handles abundance announcements and need expressions:
// submission (with the anonymity rule applied), mode-filtered feeds, and the
// take/fulfill actions that close the loop with a celebration.
package exchange

import (
	"fmt"
	"log"
	"sort"
	"time"

	"github.com/google/uuid"

	"github.com/layerline/layerd/internal/domain"
	"github.com/layerline/layerd/internal/infra/observability"
)

const defaultFeedLimit = 20

// Service is the abundance/needs exchange.
type Service struct {
	layers       domain.LayerStore
	store        domain.ExchangeStore
	celebrations *Celebrations
	clock        func() time.Time
}

// New creates the exchange service.
func New(layers domain.LayerStore, store domain.ExchangeStore, celebrations *Celebrations) *Service {
	return &Service{
		layers:       layers,
		store:        store,
		celebrations: celebrations,
		clock:        time.Now,
	}
}

// SetClock replaces the time source (tests).
func (s *Service) SetClock(clock func() time.Time) { s.clock = clock }

// PostReceipt is returned for a newly submitted post.
type PostReceipt struct {
	ID        string `json:"id"`
	Anonymous bool   `json:"anonymous"`
	Message   string `json:"message"`
}

// ActionReceipt is returned for take/fulfill actions.
type ActionReceipt struct {
	Message string `json:"message"`
}

// ─── Submission ─────────────────────────────────────────────────────────────

// AnnounceParams carries a new abundance announcement.
type AnnounceParams struct {
	UserID         string
	What           string
	Quantity       string
	Where          string
	Lat, Lng       *float64
	AvailableUntil *time.Time
	VisibleToModes []domain.EconomicMode
}

// AnnounceAbundance stores a new announcement. Anonymity follows from the
// author's mode alone: a GIFT_PURE author is stored with no provider
// reference at all.
func (s *Service) AnnounceAbundance(p AnnounceParams) (*PostReceipt, error) {
	if p.What == "" {
		return nil, fmt.Errorf("%w: what", domain.ErrMissingField)
	}
	state, err := s.layers.GetUserLayer(p.UserID)
	if err != nil {
		return nil, err
	}
	modes, err := normalizeModes(p.VisibleToModes)
	if err != nil {
		return nil, err
	}

	anon := domain.IsAnonymous(state.CurrentMode, false)
	a := domain.AbundanceAnnouncement{
		ID:             uuid.NewString(),
		CommunityID:    state.CommunityID,
		What:           p.What,
		Quantity:       p.Quantity,
		Where:          p.Where,
		Lat:            p.Lat,
		Lng:            p.Lng,
		VisibleToModes: modes,
		ExpiresAt:      p.AvailableUntil,
		CreatedAt:      s.clock(),
	}
	if !anon {
		a.ProviderID = p.UserID
	}
	if err := s.store.InsertAbundance(a); err != nil {
		return nil, err
	}

	msg := "Abundance shared with the community."
	if anon {
		msg = "Abundance shared anonymously — the gift has no sender."
	}
	return &PostReceipt{ID: a.ID, Anonymous: anon, Message: msg}, nil
}

// NeedParams carries a new need expression.
type NeedParams struct {
	UserID         string
	What           string
	Why            string
	Where          string
	Urgency        domain.Urgency
	VisibleToModes []domain.EconomicMode
	ExpiresAt      *time.Time
	Anonymous      bool // explicit opt-in, only meaningful for needs
}

// ExpressNeed stores a new need. Anonymity applies when the author is in
// GIFT_PURE mode or explicitly asked for it.
func (s *Service) ExpressNeed(p NeedParams) (*PostReceipt, error) {
	if p.What == "" {
		return nil, fmt.Errorf("%w: what", domain.ErrMissingField)
	}
	if !p.Urgency.Valid() {
		return nil, fmt.Errorf("unknown urgency %q", p.Urgency)
	}
	state, err := s.layers.GetUserLayer(p.UserID)
	if err != nil {
		return nil, err
	}
	modes, err := normalizeModes(p.VisibleToModes)
	if err != nil {
		return nil, err
	}

	anon := domain.IsAnonymous(state.CurrentMode, p.Anonymous)
	n := domain.NeedExpression{
		ID:             uuid.NewString(),
		CommunityID:    state.CommunityID,
		What:           p.What,
		Why:            p.Why,
		Where:          p.Where,
		Urgency:        p.Urgency,
		VisibleToModes: modes,
		ExpiresAt:      p.ExpiresAt,
		CreatedAt:      s.clock(),
	}
	if !anon {
		n.RequesterID = p.UserID
	}
	if err := s.store.InsertNeed(n); err != nil {
		return nil, err
	}

	msg := "Need shared with the community."
	if anon {
		msg = "Need shared anonymously."
	}
	return &PostReceipt{ID: n.ID, Anonymous: anon, Message: msg}, nil
}

// ─── Feeds ──────────────────────────────────────────────────────────────────

// AbundanceFeed returns open announcements visible to the viewer's mode,
// newest first, capped at limit.
func (s *Service) AbundanceFeed(viewerMode domain.EconomicMode, communityID string, limit int) ([]domain.AbundanceAnnouncement, error) {
	if !viewerMode.Valid() {
		return nil, fmt.Errorf("%w: %q", domain.ErrUnknownMode, viewerMode)
	}
	if limit <= 0 {
		limit = defaultFeedLimit
	}
	items, err := s.store.ListOpenAbundance(communityID, s.clock())
	if err != nil {
		return nil, err
	}
	feed := make([]domain.AbundanceAnnouncement, 0, limit)
	for _, a := range items {
		if !a.VisibleTo(viewerMode) {
			continue
		}
		feed = append(feed, a)
		if len(feed) == limit {
			break
		}
	}
	return feed, nil
}

// NeedsFeed returns open needs visible to the viewer's mode, ordered by
// urgency (URGENT first, unset last) then recency, capped at limit. A
// non-empty urgency filters to exact matches.
func (s *Service) NeedsFeed(viewerMode domain.EconomicMode, communityID string, urgency domain.Urgency, limit int) ([]domain.NeedExpression, error) {
	if !viewerMode.Valid() {
		return nil, fmt.Errorf("%w: %q", domain.ErrUnknownMode, viewerMode)
	}
	if limit <= 0 {
		limit = defaultFeedLimit
	}
	items, err := s.store.ListOpenNeeds(communityID, s.clock())
	if err != nil {
		return nil, err
	}

	var feed []domain.NeedExpression
	for _, n := range items {
		if !n.VisibleTo(viewerMode) {
			continue
		}
		if urgency != "" && n.Urgency != urgency {
			continue
		}
		feed = append(feed, n)
	}
	// Input is already newest-first; a stable sort on urgency rank keeps
	// recency as the tiebreak.
	sort.SliceStable(feed, func(i, j int) bool {
		return domain.UrgencyRank(feed[i].Urgency) < domain.UrgencyRank(feed[j].Urgency)
	})
	if len(feed) > limit {
		feed = feed[:limit]
	}
	return feed, nil
}

// ─── Take / Fulfill ─────────────────────────────────────────────────────────

// TakeAbundance records that a user picked up an announcement and emits an
// anonymous celebration. Fails with ErrExpired past the window; taking twice
// is a no-op for the takers list.
func (s *Service) TakeAbundance(userID, abundanceID string) (*ActionReceipt, error) {
	a, err := s.store.GetAbundance(abundanceID)
	if err != nil {
		return nil, err
	}
	if a.Expired(s.clock()) {
		return nil, fmt.Errorf("%w: abundance %s", domain.ErrExpired, abundanceID)
	}
	if !contains(a.TakenBy, userID) {
		if err := s.store.AppendTaker(abundanceID, userID); err != nil {
			return nil, err
		}
	}
	observability.AbundanceTakenTotal.Inc()
	s.celebrate("an abundance found a home", "🎁", a.CommunityID)
	return &ActionReceipt{Message: "Enjoy — no debt, no ledger entry."}, nil
}

// FulfillNeed marks a need fulfilled and emits an anonymous celebration.
// Fails with ErrAlreadyFulfilled or ErrExpired.
func (s *Service) FulfillNeed(userID, needID string) (*ActionReceipt, error) {
	n, err := s.store.GetNeed(needID)
	if err != nil {
		return nil, err
	}
	if n.Fulfilled() {
		return nil, fmt.Errorf("%w: need %s", domain.ErrAlreadyFulfilled, needID)
	}
	if n.Expired(s.clock()) {
		return nil, fmt.Errorf("%w: need %s", domain.ErrExpired, needID)
	}
	if err := s.store.MarkNeedFulfilled(needID, userID, s.clock()); err != nil {
		return nil, err
	}
	observability.NeedsFulfilledTotal.Inc()
	s.celebrate("a need was met", "💝", n.CommunityID)
	return &ActionReceipt{Message: "Need fulfilled. The community celebrates — anonymously."}, nil
}

// celebrate emits best-effort; a failed celebration never fails the action.
func (s *Service) celebrate(event, emoji, communityID string) {
	if s.celebrations == nil {
		return
	}
	if _, err := s.celebrations.Emit(event, emoji, communityID, 0); err != nil {
		log.Printf("[exchange] emit celebration: %v", err)
	}
}

func normalizeModes(modes []domain.EconomicMode) ([]domain.EconomicMode, error) {
	if len(modes) == 0 {
		return domain.AllModes(), nil
	}
	for _, m := range modes {
		if !m.Valid() {
			return nil, fmt.Errorf("%w: %q", domain.ErrUnknownMode, m)
		}
	}
	return modes, nil
}

func contains(ids []string, id string) bool {
	for _, v := range ids {
		if v == id {
			return true
		}
	}
	return false
}
