// Package domain contains pure business types with ZERO infrastructure imports.
// This is the innermost ring of the engine — it depends on nothing.
package domain

import "time"

// ─── Economic Modes ─────────────────────────────────────────────────────────

// EconomicMode is one of the four participation styles a member can operate
// under. The set is closed: every ordered pair of distinct modes must have an
// entry in the transition table (see transition.go).
type EconomicMode string

const (
	ModeTraditional  EconomicMode = "TRADITIONAL"
	ModeTransitional EconomicMode = "TRANSITIONAL"
	ModeGiftPure     EconomicMode = "GIFT_PURE"
	ModeChameleon    EconomicMode = "CHAMELEON"
)

// AllModes returns the four modes in their canonical order.
func AllModes() []EconomicMode {
	return []EconomicMode{ModeTraditional, ModeTransitional, ModeGiftPure, ModeChameleon}
}

// Valid reports whether m is one of the four known modes.
func (m EconomicMode) Valid() bool {
	switch m {
	case ModeTraditional, ModeTransitional, ModeGiftPure, ModeChameleon:
		return true
	}
	return false
}

// ─── User Layer State ───────────────────────────────────────────────────────

// UserLayerState is the per-member economic state. Which balance is active
// follows from CurrentMode: TRADITIONAL and CHAMELEON use hard credits or
// none, TRANSITIONAL uses soft credits, GIFT_PURE uses neither. A nil
// SoftCredits means the soft balance is inactive. Mutated only by the
// migration executor.
type UserLayerState struct {
	UserID           string       `json:"user_id"`
	CommunityID      string       `json:"community_id,omitempty"`
	CurrentMode      EconomicMode `json:"current_mode"`
	HardCredits      int64        `json:"hard_credits"`
	SoftCredits      *int64       `json:"soft_credits,omitempty"`
	LastModeChangeAt time.Time    `json:"last_mode_change_at"`
}

// NewUserLayerState returns the state every member starts with.
func NewUserLayerState(userID, communityID string, now time.Time) UserLayerState {
	return UserLayerState{
		UserID:           userID,
		CommunityID:      communityID,
		CurrentMode:      ModeTraditional,
		HardCredits:      0,
		LastModeChangeAt: now,
	}
}

// MigrationRecord is an append-only history entry, one per successful
// migration. Canonical read order is MigratedAt descending.
type MigrationRecord struct {
	ID               int64        `json:"id"`
	UserID           string       `json:"user_id"`
	FromMode         EconomicMode `json:"from_mode"`
	ToMode           EconomicMode `json:"to_mode"`
	Reason           string       `json:"reason,omitempty"`
	CreditsConverted int64        `json:"credits_converted"`
	MigratedAt       time.Time    `json:"migrated_at"`
}

// ─── Abundance & Need Posts ─────────────────────────────────────────────────

// Urgency classifies how soon a need matters.
type Urgency string

const (
	UrgencyUrgent   Urgency = "URGENT"
	UrgencySoon     Urgency = "SOON"
	UrgencyWhenever Urgency = "WHENEVER"
)

// UrgencyRank is the fixed feed ordering key: URGENT sorts first, unset last.
func UrgencyRank(u Urgency) int {
	switch u {
	case UrgencyUrgent:
		return 0
	case UrgencySoon:
		return 1
	case UrgencyWhenever:
		return 2
	}
	return 3
}

// Valid reports whether u is a known urgency. The empty string is allowed
// (urgency is optional on a need).
func (u Urgency) Valid() bool {
	return u == "" || UrgencyRank(u) < 3
}

// AbundanceAnnouncement is a "more than I need" post. An empty ProviderID
// means the post is anonymous — there is no separate flag, the author
// reference is simply absent.
type AbundanceAnnouncement struct {
	ID             string         `json:"id"`
	CommunityID    string         `json:"community_id,omitempty"`
	ProviderID     string         `json:"provider_id,omitempty"`
	What           string         `json:"what"`
	Quantity       string         `json:"quantity,omitempty"`
	Where          string         `json:"where,omitempty"`
	Lat            *float64       `json:"lat,omitempty"`
	Lng            *float64       `json:"lng,omitempty"`
	VisibleToModes []EconomicMode `json:"visible_to_modes"`
	ExpiresAt      *time.Time     `json:"expires_at,omitempty"`
	TakenBy        []string       `json:"taken_by,omitempty"`
	CreatedAt      time.Time      `json:"created_at"`
}

// Expired reports whether the announcement's window has passed.
func (a AbundanceAnnouncement) Expired(now time.Time) bool {
	return a.ExpiresAt != nil && !a.ExpiresAt.After(now)
}

// VisibleTo reports whether a viewer in the given mode may see this post.
func (a AbundanceAnnouncement) VisibleTo(mode EconomicMode) bool {
	return modeIn(mode, a.VisibleToModes)
}

// NeedExpression is a "could use help with" post. An empty RequesterID means
// the post is anonymous.
type NeedExpression struct {
	ID             string         `json:"id"`
	CommunityID    string         `json:"community_id,omitempty"`
	RequesterID    string         `json:"requester_id,omitempty"`
	What           string         `json:"what"`
	Why            string         `json:"why,omitempty"`
	Where          string         `json:"where,omitempty"`
	Urgency        Urgency        `json:"urgency,omitempty"`
	VisibleToModes []EconomicMode `json:"visible_to_modes"`
	ExpiresAt      *time.Time     `json:"expires_at,omitempty"`
	FulfilledBy    []string       `json:"fulfilled_by,omitempty"`
	FulfilledAt    *time.Time     `json:"fulfilled_at,omitempty"`
	CreatedAt      time.Time      `json:"created_at"`
}

// Expired reports whether the need's window has passed.
func (n NeedExpression) Expired(now time.Time) bool {
	return n.ExpiresAt != nil && !n.ExpiresAt.After(now)
}

// VisibleTo reports whether a viewer in the given mode may see this post.
func (n NeedExpression) VisibleTo(mode EconomicMode) bool {
	return modeIn(mode, n.VisibleToModes)
}

// Fulfilled reports whether the need has already been met.
func (n NeedExpression) Fulfilled() bool { return n.FulfilledAt != nil }

func modeIn(mode EconomicMode, set []EconomicMode) bool {
	for _, m := range set {
		if m == mode {
			return true
		}
	}
	return false
}

// ─── Celebrations ───────────────────────────────────────────────────────────

// AnonymousCelebration is a low-information broadcast record. The type has
// no author field at all, so no code path can leak who was involved.
type AnonymousCelebration struct {
	ID                      string    `json:"id"`
	Event                   string    `json:"event"`
	Emoji                   string    `json:"emoji"`
	CommunityID             string    `json:"community_id,omitempty"`
	ApproximateParticipants int       `json:"approximate_participants,omitempty"`
	CreatedAt               time.Time `json:"created_at"`
}

// ─── Community Layer Config ─────────────────────────────────────────────────

// DefaultGiftThreshold is the percentage of GIFT_PURE members at which a
// community-wide migration is proposed.
const DefaultGiftThreshold = 60

// CommunityLayerConfig caches the per-mode member counts for a community and
// carries its policy knobs. Counts are overwritten in full on every
// recompute, never incremented, so a missed update can never leave drift.
type CommunityLayerConfig struct {
	CommunityID       string       `json:"community_id"`
	TraditionalCount  int          `json:"traditional_count"`
	TransitionalCount int          `json:"transitional_count"`
	GiftCount         int          `json:"gift_count"`
	ChameleonCount    int          `json:"chameleon_count"`
	DefaultLayer      EconomicMode `json:"default_layer"`
	AllowMixedMode    bool         `json:"allow_mixed_mode"`
	AutoGiftDays      bool         `json:"auto_gift_days"`
	AutoDebtAmnesty   bool         `json:"auto_debt_amnesty"`
	GiftThreshold     int          `json:"gift_threshold"`
	UpdatedAt         time.Time    `json:"updated_at"`
}

// DefaultCommunityLayerConfig returns the documented defaults used on lazy
// creation of a community's config row.
func DefaultCommunityLayerConfig(communityID string) CommunityLayerConfig {
	return CommunityLayerConfig{
		CommunityID:    communityID,
		DefaultLayer:   ModeTraditional,
		AllowMixedMode: true,
		GiftThreshold:  DefaultGiftThreshold,
	}
}

// Total returns the sum of the cached per-mode counts.
func (c CommunityLayerConfig) Total() int {
	return c.TraditionalCount + c.TransitionalCount + c.GiftCount + c.ChameleonCount
}

// ModeCount returns the cached count for one mode.
func (c CommunityLayerConfig) ModeCount(m EconomicMode) int {
	switch m {
	case ModeTraditional:
		return c.TraditionalCount
	case ModeTransitional:
		return c.TransitionalCount
	case ModeGiftPure:
		return c.GiftCount
	case ModeChameleon:
		return c.ChameleonCount
	}
	return 0
}

// LayerStats is a count + percentage distribution over the four modes.
type LayerStats struct {
	Total       int                  `json:"total"`
	Counts      map[EconomicMode]int `json:"counts"`
	Percentages map[EconomicMode]int `json:"percentages"`
}

// ThresholdCheck is the result of comparing a community's GIFT_PURE share
// against its configured threshold. Purely informational: opening an actual
// community vote is someone else's job.
type ThresholdCheck struct {
	ShouldPropose     bool `json:"should_propose"`
	CurrentPercentage int  `json:"current_percentage"`
	Threshold         int  `json:"threshold"`
}

// ─── Bridge Events ──────────────────────────────────────────────────────────

// Well-known bridge event types. Type is free text; these are the two the
// auto-scheduler knows how to materialize.
const (
	BridgeGiftDay     = "GIFT_DAY"
	BridgeDebtAmnesty = "DEBT_AMNESTY"
)

// BridgeEvent is a time-boxed cross-mode occasion. ForceLayer, when set,
// records the mode attendees are treated as for the duration; the engine
// stores and queries it but does not apply the override.
type BridgeEvent struct {
	ID          string       `json:"id"`
	Type        string       `json:"type"`
	Title       string       `json:"title"`
	Description string       `json:"description"`
	ForceLayer  EconomicMode `json:"force_layer,omitempty"`
	StartsAt    time.Time    `json:"starts_at"`
	EndsAt      time.Time    `json:"ends_at"`
	Recurring   bool         `json:"recurring"`
	Frequency   string       `json:"frequency,omitempty"`
	CommunityID string       `json:"community_id,omitempty"`
	CreatedAt   time.Time    `json:"created_at"`
}

// ActiveAt reports whether now falls inside the event window (inclusive).
func (e BridgeEvent) ActiveAt(now time.Time) bool {
	return !now.Before(e.StartsAt) && !now.After(e.EndsAt)
}
