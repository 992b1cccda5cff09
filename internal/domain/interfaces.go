package domain

import "time"

// ─── Store Interfaces ───────────────────────────────────────────────────────
// These interfaces define the boundary to the persistence layer.
// Infrastructure implements them; application services depend on them.

// LayerStore persists per-user layer state and migration history.
type LayerStore interface {
	// GetUserLayer returns ErrUserNotFound for an unknown user.
	GetUserLayer(userID string) (*UserLayerState, error)

	// EnsureUserLayer fetches the user's state, creating the default
	// TRADITIONAL zero-credit row on first touch.
	EnsureUserLayer(userID, communityID string, now time.Time) (*UserLayerState, error)

	// SaveMigration persists the updated state and the history record as a
	// single transaction: both commit or neither is visible.
	SaveMigration(state UserLayerState, rec MigrationRecord) error

	// MigrationHistory returns records newest first.
	MigrationHistory(userID string, limit int) ([]MigrationRecord, error)

	// CountModesByCommunity counts the community's members grouped by mode.
	CountModesByCommunity(communityID string) (map[EconomicMode]int, error)

	// CountModesGlobal counts all members grouped by mode.
	CountModesGlobal() (map[EconomicMode]int, error)

	// ListCommunityIDs returns every community that has at least one member.
	ListCommunityIDs() ([]string, error)
}

// CommunityStore persists per-community layer configuration.
type CommunityStore interface {
	// GetCommunityConfig returns ErrNotFound if the row does not exist yet.
	GetCommunityConfig(communityID string) (*CommunityLayerConfig, error)
	UpsertCommunityConfig(cfg CommunityLayerConfig) error
}

// ExchangeStore persists abundance announcements and need expressions.
// List methods return open (unexpired, and for needs unfulfilled) posts
// newest first; mode visibility is filtered by the caller.
type ExchangeStore interface {
	InsertAbundance(a AbundanceAnnouncement) error
	GetAbundance(id string) (*AbundanceAnnouncement, error)
	// AppendTaker atomically adds a taker; appending twice is a no-op.
	AppendTaker(id, userID string) error
	ListOpenAbundance(communityID string, now time.Time) ([]AbundanceAnnouncement, error)

	InsertNeed(n NeedExpression) error
	GetNeed(id string) (*NeedExpression, error)
	// MarkNeedFulfilled closes an open need atomically; a need that is
	// already closed returns ErrAlreadyFulfilled.
	MarkNeedFulfilled(id, userID string, at time.Time) error
	ListOpenNeeds(communityID string, now time.Time) ([]NeedExpression, error)
}

// CelebrationStore persists anonymous celebrations.
type CelebrationStore interface {
	InsertCelebration(c AnonymousCelebration) error
	RecentCelebrations(communityID string, limit int) ([]AnonymousCelebration, error)
}

// BridgeStore persists bridge events.
type BridgeStore interface {
	InsertBridgeEvent(e BridgeEvent) error
	ActiveBridgeEvents(communityID string, now time.Time) ([]BridgeEvent, error)
	// HasBridgeEvent is the duplicate guard for the recurring-event sweep.
	HasBridgeEvent(communityID, eventType string, startsAt time.Time) (bool, error)
}
