// Abundance announcements, need expressions, and celebrations.
package sqlite

import (
	"database/sql"
	"fmt"
	"time"

	"github.com/layerline/layerd/internal/domain"
)

var (
	_ domain.ExchangeStore    = (*DB)(nil)
	_ domain.CelebrationStore = (*DB)(nil)
)

// ─── Abundance Announcements ────────────────────────────────────────────────

// InsertAbundance persists a new announcement. A post with no ProviderID is
// stored with a NULL author column, not an empty string.
func (db *DB) InsertAbundance(a domain.AbundanceAnnouncement) error {
	_, err := db.db.Exec(`
		INSERT INTO abundance_announcements
			(id, community_id, provider_id, what, quantity, location, lat, lng, visible_modes, expires_at, taken_by, created_at)
		VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?)
	`, a.ID, a.CommunityID, nullableID(a.ProviderID), a.What, a.Quantity, a.Where, a.Lat, a.Lng,
		joinModes(a.VisibleToModes), fmtTimePtr(a.ExpiresAt), joinList(a.TakenBy), fmtTime(a.CreatedAt))
	return err
}

// GetAbundance returns one announcement, domain.ErrNotFound if absent.
func (db *DB) GetAbundance(id string) (*domain.AbundanceAnnouncement, error) {
	rows, err := db.db.Query(abundanceSelect+` WHERE id = ?`, id)
	if err != nil {
		return nil, err
	}
	defer rows.Close()
	if !rows.Next() {
		if err := rows.Err(); err != nil {
			return nil, err
		}
		return nil, fmt.Errorf("%w: abundance %s", domain.ErrNotFound, id)
	}
	return scanAbundance(rows)
}

// AppendTaker appends a user to the takers list. The append and the
// duplicate check happen in one statement, so concurrent takes cannot drop
// or double an entry. Appending an existing taker is a no-op.
func (db *DB) AppendTaker(id, userID string) error {
	res, err := db.db.Exec(`
		UPDATE abundance_announcements
		SET taken_by = CASE WHEN taken_by = '' THEN ? ELSE taken_by || ',' || ? END
		WHERE id = ? AND instr(',' || taken_by || ',', ',' || ? || ',') = 0
	`, userID, userID, id, userID)
	if err != nil {
		return err
	}
	if n, _ := res.RowsAffected(); n == 0 {
		// Either the row is missing or the user already took it.
		if _, err := db.GetAbundance(id); err != nil {
			return err
		}
	}
	return nil
}

// ListOpenAbundance returns unexpired announcements newest first. An empty
// communityID means all communities.
func (db *DB) ListOpenAbundance(communityID string, now time.Time) ([]domain.AbundanceAnnouncement, error) {
	query := abundanceSelect + ` WHERE (expires_at IS NULL OR expires_at > ?)`
	args := []interface{}{fmtTime(now)}
	if communityID != "" {
		query += ` AND community_id = ?`
		args = append(args, communityID)
	}
	query += ` ORDER BY created_at DESC, id DESC`

	rows, err := db.db.Query(query, args...)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var result []domain.AbundanceAnnouncement
	for rows.Next() {
		a, err := scanAbundance(rows)
		if err != nil {
			return nil, err
		}
		result = append(result, *a)
	}
	return result, rows.Err()
}

const abundanceSelect = `
	SELECT id, community_id, provider_id, what, quantity, location, lat, lng, visible_modes, expires_at, taken_by, created_at
	FROM abundance_announcements`

func scanAbundance(rows *sql.Rows) (*domain.AbundanceAnnouncement, error) {
	var a domain.AbundanceAnnouncement
	var provider sql.NullString
	var lat, lng sql.NullFloat64
	var modes, takenBy, createdAt string
	var expiresAt sql.NullString
	if err := rows.Scan(&a.ID, &a.CommunityID, &provider, &a.What, &a.Quantity, &a.Where,
		&lat, &lng, &modes, &expiresAt, &takenBy, &createdAt); err != nil {
		return nil, err
	}
	a.ProviderID = provider.String
	if lat.Valid {
		a.Lat = &lat.Float64
	}
	if lng.Valid {
		a.Lng = &lng.Float64
	}
	a.VisibleToModes = splitModes(modes)
	a.ExpiresAt = parseTimePtr(expiresAt)
	a.TakenBy = splitList(takenBy)
	a.CreatedAt = parseTime(createdAt)
	return &a, nil
}

// ─── Need Expressions ───────────────────────────────────────────────────────

// InsertNeed persists a new need expression.
func (db *DB) InsertNeed(n domain.NeedExpression) error {
	_, err := db.db.Exec(`
		INSERT INTO need_expressions
			(id, community_id, requester_id, what, why, location, urgency, visible_modes, expires_at, fulfilled_by, fulfilled_at, created_at)
		VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?)
	`, n.ID, n.CommunityID, nullableID(n.RequesterID), n.What, n.Why, n.Where, nullableID(string(n.Urgency)),
		joinModes(n.VisibleToModes), fmtTimePtr(n.ExpiresAt), joinList(n.FulfilledBy), fmtTimePtr(n.FulfilledAt), fmtTime(n.CreatedAt))
	return err
}

// GetNeed returns one need, domain.ErrNotFound if absent.
func (db *DB) GetNeed(id string) (*domain.NeedExpression, error) {
	rows, err := db.db.Query(needSelect+` WHERE id = ?`, id)
	if err != nil {
		return nil, err
	}
	defer rows.Close()
	if !rows.Next() {
		if err := rows.Err(); err != nil {
			return nil, err
		}
		return nil, fmt.Errorf("%w: need %s", domain.ErrNotFound, id)
	}
	return scanNeed(rows)
}

// MarkNeedFulfilled sets the fulfillment timestamp and appends the
// fulfiller, conditional on the need still being open. Of two concurrent
// fulfillers exactly one wins; the loser gets domain.ErrAlreadyFulfilled.
func (db *DB) MarkNeedFulfilled(id, userID string, at time.Time) error {
	res, err := db.db.Exec(`
		UPDATE need_expressions
		SET fulfilled_by = CASE WHEN fulfilled_by = '' THEN ? ELSE fulfilled_by || ',' || ? END,
		    fulfilled_at = ?
		WHERE id = ? AND fulfilled_at IS NULL
	`, userID, userID, fmtTime(at), id)
	if err != nil {
		return err
	}
	if n, _ := res.RowsAffected(); n == 0 {
		if _, err := db.GetNeed(id); err != nil {
			return err
		}
		return fmt.Errorf("%w: need %s", domain.ErrAlreadyFulfilled, id)
	}
	return nil
}

// ListOpenNeeds returns unexpired, unfulfilled needs newest first. An empty
// communityID means all communities.
func (db *DB) ListOpenNeeds(communityID string, now time.Time) ([]domain.NeedExpression, error) {
	query := needSelect + ` WHERE fulfilled_at IS NULL AND (expires_at IS NULL OR expires_at > ?)`
	args := []interface{}{fmtTime(now)}
	if communityID != "" {
		query += ` AND community_id = ?`
		args = append(args, communityID)
	}
	query += ` ORDER BY created_at DESC, id DESC`

	rows, err := db.db.Query(query, args...)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var result []domain.NeedExpression
	for rows.Next() {
		n, err := scanNeed(rows)
		if err != nil {
			return nil, err
		}
		result = append(result, *n)
	}
	return result, rows.Err()
}

const needSelect = `
	SELECT id, community_id, requester_id, what, why, location, urgency, visible_modes, expires_at, fulfilled_by, fulfilled_at, created_at
	FROM need_expressions`

func scanNeed(rows *sql.Rows) (*domain.NeedExpression, error) {
	var n domain.NeedExpression
	var requester, urgency sql.NullString
	var modes, fulfilledBy, createdAt string
	var expiresAt, fulfilledAt sql.NullString
	if err := rows.Scan(&n.ID, &n.CommunityID, &requester, &n.What, &n.Why, &n.Where,
		&urgency, &modes, &expiresAt, &fulfilledBy, &fulfilledAt, &createdAt); err != nil {
		return nil, err
	}
	n.RequesterID = requester.String
	n.Urgency = domain.Urgency(urgency.String)
	n.VisibleToModes = splitModes(modes)
	n.ExpiresAt = parseTimePtr(expiresAt)
	n.FulfilledBy = splitList(fulfilledBy)
	n.FulfilledAt = parseTimePtr(fulfilledAt)
	n.CreatedAt = parseTime(createdAt)
	return &n, nil
}

// ─── Celebrations ───────────────────────────────────────────────────────────

// InsertCelebration persists one anonymous celebration.
func (db *DB) InsertCelebration(c domain.AnonymousCelebration) error {
	_, err := db.db.Exec(`
		INSERT INTO celebrations (id, event, emoji, community_id, approx_participants, created_at)
		VALUES (?, ?, ?, ?, ?, ?)
	`, c.ID, c.Event, c.Emoji, c.CommunityID, c.ApproximateParticipants, fmtTime(c.CreatedAt))
	return err
}

// RecentCelebrations returns celebrations newest first. An empty communityID
// means all communities.
func (db *DB) RecentCelebrations(communityID string, limit int) ([]domain.AnonymousCelebration, error) {
	if limit <= 0 {
		limit = 20
	}
	query := `SELECT id, event, emoji, community_id, approx_participants, created_at FROM celebrations`
	args := []interface{}{}
	if communityID != "" {
		query += ` WHERE community_id = ?`
		args = append(args, communityID)
	}
	query += ` ORDER BY created_at DESC, id DESC LIMIT ?`
	args = append(args, limit)

	rows, err := db.db.Query(query, args...)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var result []domain.AnonymousCelebration
	for rows.Next() {
		var c domain.AnonymousCelebration
		var createdAt string
		if err := rows.Scan(&c.ID, &c.Event, &c.Emoji, &c.CommunityID, &c.ApproximateParticipants, &createdAt); err != nil {
			return nil, err
		}
		c.CreatedAt = parseTime(createdAt)
		result = append(result, c)
	}
	return result, rows.Err()
}

// ─── Helpers ────────────────────────────────────────────────────────────────

// nullableID maps an empty id to NULL so anonymity is visible at the schema
// level, not just as an empty string.
func nullableID(id string) interface{} {
	if id == "" {
		return nil
	}
	return id
}

func joinModes(modes []domain.EconomicMode) string {
	ss := make([]string, len(modes))
	for i, m := range modes {
		ss[i] = string(m)
	}
	return joinList(ss)
}

func splitModes(s string) []domain.EconomicMode {
	parts := splitList(s)
	modes := make([]domain.EconomicMode, len(parts))
	for i, p := range parts {
		modes[i] = domain.EconomicMode(p)
	}
	return modes
}
