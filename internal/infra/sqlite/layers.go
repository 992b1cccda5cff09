// User layer state, migration history, and mode counting.
package sqlite

import (
	"database/sql"
	"errors"
	"fmt"
	"time"

	"github.com/layerline/layerd/internal/domain"
)

var _ domain.LayerStore = (*DB)(nil)

// GetUserLayer returns a user's layer state, domain.ErrUserNotFound if absent.
func (db *DB) GetUserLayer(userID string) (*domain.UserLayerState, error) {
	row := db.db.QueryRow(`
		SELECT user_id, community_id, current_mode, hard_credits, soft_credits, last_mode_change_at
		FROM user_layers WHERE user_id = ?
	`, userID)
	state, err := scanUserLayer(row)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, fmt.Errorf("%w: %s", domain.ErrUserNotFound, userID)
	}
	return state, err
}

// EnsureUserLayer fetches the user's state, creating the default row on
// first touch. An existing row wins; the community argument is ignored then.
func (db *DB) EnsureUserLayer(userID, communityID string, now time.Time) (*domain.UserLayerState, error) {
	state := domain.NewUserLayerState(userID, communityID, now)
	_, err := db.db.Exec(`
		INSERT OR IGNORE INTO user_layers (user_id, community_id, current_mode, hard_credits, soft_credits, last_mode_change_at)
		VALUES (?, ?, ?, ?, NULL, ?)
	`, state.UserID, state.CommunityID, string(state.CurrentMode), state.HardCredits, fmtTime(state.LastModeChangeAt))
	if err != nil {
		return nil, err
	}
	return db.GetUserLayer(userID)
}

// SaveMigration persists the post-migration state and its history record in
// one transaction. Both commit or neither is visible.
func (db *DB) SaveMigration(state domain.UserLayerState, rec domain.MigrationRecord) error {
	tx, err := db.db.Begin()
	if err != nil {
		return err
	}
	defer tx.Rollback()

	res, err := tx.Exec(`
		UPDATE user_layers
		SET current_mode = ?, hard_credits = ?, soft_credits = ?, last_mode_change_at = ?
		WHERE user_id = ?
	`, string(state.CurrentMode), state.HardCredits, state.SoftCredits, fmtTime(state.LastModeChangeAt), state.UserID)
	if err != nil {
		return err
	}
	if n, _ := res.RowsAffected(); n == 0 {
		return fmt.Errorf("%w: %s", domain.ErrUserNotFound, state.UserID)
	}

	_, err = tx.Exec(`
		INSERT INTO migration_records (user_id, from_mode, to_mode, reason, credits_converted, migrated_at)
		VALUES (?, ?, ?, ?, ?, ?)
	`, rec.UserID, string(rec.FromMode), string(rec.ToMode), rec.Reason, rec.CreditsConverted, fmtTime(rec.MigratedAt))
	if err != nil {
		return err
	}
	return tx.Commit()
}

// MigrationHistory returns a user's migration records, newest first.
func (db *DB) MigrationHistory(userID string, limit int) ([]domain.MigrationRecord, error) {
	if limit <= 0 {
		limit = 50
	}
	rows, err := db.db.Query(`
		SELECT id, user_id, from_mode, to_mode, reason, credits_converted, migrated_at
		FROM migration_records WHERE user_id = ?
		ORDER BY migrated_at DESC, id DESC LIMIT ?
	`, userID, limit)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var result []domain.MigrationRecord
	for rows.Next() {
		var r domain.MigrationRecord
		var from, to, migratedAt string
		if err := rows.Scan(&r.ID, &r.UserID, &from, &to, &r.Reason, &r.CreditsConverted, &migratedAt); err != nil {
			return nil, err
		}
		r.FromMode = domain.EconomicMode(from)
		r.ToMode = domain.EconomicMode(to)
		r.MigratedAt = parseTime(migratedAt)
		result = append(result, r)
	}
	return result, rows.Err()
}

// CountModesByCommunity counts a community's members grouped by current mode.
func (db *DB) CountModesByCommunity(communityID string) (map[domain.EconomicMode]int, error) {
	return db.countModes(`
		SELECT current_mode, COUNT(*) FROM user_layers
		WHERE community_id = ? GROUP BY current_mode
	`, communityID)
}

// CountModesGlobal counts all members grouped by current mode.
func (db *DB) CountModesGlobal() (map[domain.EconomicMode]int, error) {
	return db.countModes(`
		SELECT current_mode, COUNT(*) FROM user_layers GROUP BY current_mode
	`)
}

func (db *DB) countModes(query string, args ...interface{}) (map[domain.EconomicMode]int, error) {
	rows, err := db.db.Query(query, args...)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	counts := make(map[domain.EconomicMode]int)
	for rows.Next() {
		var mode string
		var n int
		if err := rows.Scan(&mode, &n); err != nil {
			return nil, err
		}
		counts[domain.EconomicMode(mode)] = n
	}
	return counts, rows.Err()
}

// ListCommunityIDs returns every community with at least one member.
func (db *DB) ListCommunityIDs() ([]string, error) {
	rows, err := db.db.Query(`
		SELECT DISTINCT community_id FROM user_layers
		WHERE community_id != '' ORDER BY community_id
	`)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var ids []string
	for rows.Next() {
		var id string
		if err := rows.Scan(&id); err != nil {
			return nil, err
		}
		ids = append(ids, id)
	}
	return ids, rows.Err()
}

func scanUserLayer(row *sql.Row) (*domain.UserLayerState, error) {
	var s domain.UserLayerState
	var mode, changedAt string
	var soft sql.NullInt64
	if err := row.Scan(&s.UserID, &s.CommunityID, &mode, &s.HardCredits, &soft, &changedAt); err != nil {
		return nil, err
	}
	s.CurrentMode = domain.EconomicMode(mode)
	if soft.Valid {
		v := soft.Int64
		s.SoftCredits = &v
	}
	s.LastModeChangeAt = parseTime(changedAt)
	return &s, nil
}
