// Community layer configs and bridge events.
package sqlite

import (
	"database/sql"
	"errors"
	"fmt"
	"time"

	"github.com/layerline/layerd/internal/domain"
)

var (
	_ domain.CommunityStore = (*DB)(nil)
	_ domain.BridgeStore    = (*DB)(nil)
)

// ─── Community Layer Configs ────────────────────────────────────────────────

// GetCommunityConfig returns a community's config row, domain.ErrNotFound if
// it has never been created.
func (db *DB) GetCommunityConfig(communityID string) (*domain.CommunityLayerConfig, error) {
	var c domain.CommunityLayerConfig
	var defaultLayer, updatedAt string
	var allowMixed, autoGift, autoAmnesty int
	err := db.db.QueryRow(`
		SELECT community_id, traditional_count, transitional_count, gift_count, chameleon_count,
		       default_layer, allow_mixed_mode, auto_gift_days, auto_debt_amnesty, gift_threshold, updated_at
		FROM community_layer_configs WHERE community_id = ?
	`, communityID).Scan(&c.CommunityID, &c.TraditionalCount, &c.TransitionalCount, &c.GiftCount, &c.ChameleonCount,
		&defaultLayer, &allowMixed, &autoGift, &autoAmnesty, &c.GiftThreshold, &updatedAt)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, fmt.Errorf("%w: community config %s", domain.ErrNotFound, communityID)
	}
	if err != nil {
		return nil, err
	}
	c.DefaultLayer = domain.EconomicMode(defaultLayer)
	c.AllowMixedMode = allowMixed == 1
	c.AutoGiftDays = autoGift == 1
	c.AutoDebtAmnesty = autoAmnesty == 1
	c.UpdatedAt = parseTime(updatedAt)
	return &c, nil
}

// UpsertCommunityConfig writes the full config row, counters included.
func (db *DB) UpsertCommunityConfig(cfg domain.CommunityLayerConfig) error {
	_, err := db.db.Exec(`
		INSERT INTO community_layer_configs
			(community_id, traditional_count, transitional_count, gift_count, chameleon_count,
			 default_layer, allow_mixed_mode, auto_gift_days, auto_debt_amnesty, gift_threshold, updated_at)
		VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?)
		ON CONFLICT(community_id) DO UPDATE SET
			traditional_count  = excluded.traditional_count,
			transitional_count = excluded.transitional_count,
			gift_count         = excluded.gift_count,
			chameleon_count    = excluded.chameleon_count,
			default_layer      = excluded.default_layer,
			allow_mixed_mode   = excluded.allow_mixed_mode,
			auto_gift_days     = excluded.auto_gift_days,
			auto_debt_amnesty  = excluded.auto_debt_amnesty,
			gift_threshold     = excluded.gift_threshold,
			updated_at         = excluded.updated_at
	`, cfg.CommunityID, cfg.TraditionalCount, cfg.TransitionalCount, cfg.GiftCount, cfg.ChameleonCount,
		string(cfg.DefaultLayer), boolInt(cfg.AllowMixedMode), boolInt(cfg.AutoGiftDays),
		boolInt(cfg.AutoDebtAmnesty), cfg.GiftThreshold, fmtTime(cfg.UpdatedAt))
	return err
}

// ─── Bridge Events ──────────────────────────────────────────────────────────

// InsertBridgeEvent persists one event.
func (db *DB) InsertBridgeEvent(e domain.BridgeEvent) error {
	_, err := db.db.Exec(`
		INSERT INTO bridge_events
			(id, type, title, description, force_layer, starts_at, ends_at, recurring, frequency, community_id, created_at)
		VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?)
	`, e.ID, e.Type, e.Title, e.Description, nullableID(string(e.ForceLayer)),
		fmtTime(e.StartsAt), fmtTime(e.EndsAt), boolInt(e.Recurring), e.Frequency, e.CommunityID, fmtTime(e.CreatedAt))
	return err
}

// ActiveBridgeEvents returns events whose window contains now, ordered by
// starts_at descending. An empty communityID means all communities.
func (db *DB) ActiveBridgeEvents(communityID string, now time.Time) ([]domain.BridgeEvent, error) {
	query := `
		SELECT id, type, title, description, force_layer, starts_at, ends_at, recurring, frequency, community_id, created_at
		FROM bridge_events WHERE starts_at <= ? AND ends_at >= ?`
	nowStr := fmtTime(now)
	args := []interface{}{nowStr, nowStr}
	if communityID != "" {
		query += ` AND community_id = ?`
		args = append(args, communityID)
	}
	query += ` ORDER BY starts_at DESC, id DESC`

	rows, err := db.db.Query(query, args...)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var result []domain.BridgeEvent
	for rows.Next() {
		var e domain.BridgeEvent
		var forceLayer sql.NullString
		var startsAt, endsAt, createdAt string
		var recurring int
		if err := rows.Scan(&e.ID, &e.Type, &e.Title, &e.Description, &forceLayer,
			&startsAt, &endsAt, &recurring, &e.Frequency, &e.CommunityID, &createdAt); err != nil {
			return nil, err
		}
		e.ForceLayer = domain.EconomicMode(forceLayer.String)
		e.StartsAt = parseTime(startsAt)
		e.EndsAt = parseTime(endsAt)
		e.Recurring = recurring == 1
		e.CreatedAt = parseTime(createdAt)
		result = append(result, e)
	}
	return result, rows.Err()
}

// HasBridgeEvent reports whether an event of the given type already starts
// at the given instant for the community. Duplicate guard for the sweep.
func (db *DB) HasBridgeEvent(communityID, eventType string, startsAt time.Time) (bool, error) {
	var count int
	err := db.db.QueryRow(`
		SELECT COUNT(*) FROM bridge_events
		WHERE community_id = ? AND type = ? AND starts_at = ?
	`, communityID, eventType, fmtTime(startsAt)).Scan(&count)
	return count > 0, err
}

func boolInt(b bool) int {
	if b {
		return 1
	}
	return 0
}
