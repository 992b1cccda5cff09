package sqlite

import (
	"errors"
	"testing"
	"time"

	"github.com/layerline/layerd/internal/domain"
)

func newTestDB(t *testing.T) *DB {
	t.Helper()
	db, err := Open(t.TempDir())
	if err != nil {
		t.Fatalf("open db: %v", err)
	}
	t.Cleanup(func() { db.Close() })
	return db
}

var testTime = time.Date(2025, 5, 1, 12, 0, 0, 0, time.UTC)

// ─── User Layers ────────────────────────────────────────────────────────────

func TestEnsureUserLayer_CreatesDefault(t *testing.T) {
	db := newTestDB(t)

	state, err := db.EnsureUserLayer("u1", "c1", testTime)
	if err != nil {
		t.Fatalf("EnsureUserLayer() error: %v", err)
	}
	if state.CurrentMode != domain.ModeTraditional {
		t.Errorf("mode = %s, want TRADITIONAL", state.CurrentMode)
	}
	if state.HardCredits != 0 || state.SoftCredits != nil {
		t.Errorf("fresh state must have zero credits, got hard=%d soft=%v", state.HardCredits, state.SoftCredits)
	}
	if state.CommunityID != "c1" {
		t.Errorf("community = %q, want c1", state.CommunityID)
	}
}

func TestEnsureUserLayer_ExistingRowWins(t *testing.T) {
	db := newTestDB(t)
	db.EnsureUserLayer("u1", "c1", testTime)

	state, err := db.EnsureUserLayer("u1", "other", testTime.Add(time.Hour))
	if err != nil {
		t.Fatal(err)
	}
	if state.CommunityID != "c1" {
		t.Errorf("community = %q, want original c1", state.CommunityID)
	}
}

func TestGetUserLayer_NotFound(t *testing.T) {
	db := newTestDB(t)
	_, err := db.GetUserLayer("ghost")
	if !errors.Is(err, domain.ErrUserNotFound) {
		t.Errorf("err = %v, want ErrUserNotFound", err)
	}
}

func TestSaveMigration_PersistsStateAndRecord(t *testing.T) {
	db := newTestDB(t)
	db.EnsureUserLayer("u1", "c1", testTime)

	softVal := int64(200)
	state := domain.UserLayerState{
		UserID:           "u1",
		CommunityID:      "c1",
		CurrentMode:      domain.ModeTransitional,
		HardCredits:      200,
		SoftCredits:      &softVal,
		LastModeChangeAt: testTime.Add(time.Hour),
	}
	rec := domain.MigrationRecord{
		UserID:     "u1",
		FromMode:   domain.ModeTraditional,
		ToMode:     domain.ModeTransitional,
		Reason:     "trying it out",
		MigratedAt: testTime.Add(time.Hour),
	}
	if err := db.SaveMigration(state, rec); err != nil {
		t.Fatalf("SaveMigration() error: %v", err)
	}

	got, err := db.GetUserLayer("u1")
	if err != nil {
		t.Fatal(err)
	}
	if got.CurrentMode != domain.ModeTransitional {
		t.Errorf("mode = %s, want TRANSITIONAL", got.CurrentMode)
	}
	if got.SoftCredits == nil || *got.SoftCredits != 200 {
		t.Errorf("soft credits = %v, want 200", got.SoftCredits)
	}

	history, err := db.MigrationHistory("u1", 10)
	if err != nil {
		t.Fatal(err)
	}
	if len(history) != 1 {
		t.Fatalf("history length = %d, want 1", len(history))
	}
	if history[0].Reason != "trying it out" {
		t.Errorf("reason = %q", history[0].Reason)
	}
}

func TestSaveMigration_UnknownUserRollsBack(t *testing.T) {
	db := newTestDB(t)

	state := domain.UserLayerState{UserID: "ghost", CurrentMode: domain.ModeGiftPure, LastModeChangeAt: testTime}
	rec := domain.MigrationRecord{UserID: "ghost", FromMode: domain.ModeTraditional, ToMode: domain.ModeGiftPure, MigratedAt: testTime}
	if err := db.SaveMigration(state, rec); !errors.Is(err, domain.ErrUserNotFound) {
		t.Fatalf("err = %v, want ErrUserNotFound", err)
	}

	// The record must not have been committed either.
	history, err := db.MigrationHistory("ghost", 10)
	if err != nil {
		t.Fatal(err)
	}
	if len(history) != 0 {
		t.Errorf("history length = %d, want 0 after rollback", len(history))
	}
}

func TestMigrationHistory_NewestFirst(t *testing.T) {
	db := newTestDB(t)
	db.EnsureUserLayer("u1", "", testTime)

	for i, to := range []domain.EconomicMode{domain.ModeTransitional, domain.ModeGiftPure, domain.ModeChameleon} {
		state := domain.UserLayerState{UserID: "u1", CurrentMode: to, LastModeChangeAt: testTime.Add(time.Duration(i) * time.Hour)}
		rec := domain.MigrationRecord{UserID: "u1", FromMode: domain.ModeTraditional, ToMode: to, MigratedAt: testTime.Add(time.Duration(i) * time.Hour)}
		if err := db.SaveMigration(state, rec); err != nil {
			t.Fatal(err)
		}
	}

	history, err := db.MigrationHistory("u1", 10)
	if err != nil {
		t.Fatal(err)
	}
	if len(history) != 3 {
		t.Fatalf("history length = %d, want 3", len(history))
	}
	if history[0].ToMode != domain.ModeChameleon {
		t.Errorf("newest record ToMode = %s, want CHAMELEON", history[0].ToMode)
	}
	if history[2].ToMode != domain.ModeTransitional {
		t.Errorf("oldest record ToMode = %s, want TRANSITIONAL", history[2].ToMode)
	}
}

func TestCountModes(t *testing.T) {
	db := newTestDB(t)
	for _, u := range []struct {
		id        string
		community string
		mode      domain.EconomicMode
	}{
		{"u1", "c1", domain.ModeTraditional},
		{"u2", "c1", domain.ModeGiftPure},
		{"u3", "c1", domain.ModeGiftPure},
		{"u4", "c2", domain.ModeChameleon},
	} {
		db.EnsureUserLayer(u.id, u.community, testTime)
		if u.mode != domain.ModeTraditional {
			state := domain.UserLayerState{UserID: u.id, CommunityID: u.community, CurrentMode: u.mode, LastModeChangeAt: testTime}
			rec := domain.MigrationRecord{UserID: u.id, FromMode: domain.ModeTraditional, ToMode: u.mode, MigratedAt: testTime}
			if err := db.SaveMigration(state, rec); err != nil {
				t.Fatal(err)
			}
		}
	}

	counts, err := db.CountModesByCommunity("c1")
	if err != nil {
		t.Fatal(err)
	}
	if counts[domain.ModeGiftPure] != 2 || counts[domain.ModeTraditional] != 1 {
		t.Errorf("c1 counts = %v", counts)
	}

	global, err := db.CountModesGlobal()
	if err != nil {
		t.Fatal(err)
	}
	if global[domain.ModeChameleon] != 1 {
		t.Errorf("global chameleon count = %d, want 1", global[domain.ModeChameleon])
	}

	ids, err := db.ListCommunityIDs()
	if err != nil {
		t.Fatal(err)
	}
	if len(ids) != 2 {
		t.Errorf("communities = %v, want [c1 c2]", ids)
	}
}

// ─── Abundance ──────────────────────────────────────────────────────────────

func TestAbundance_RoundTrip(t *testing.T) {
	db := newTestDB(t)
	lat := 54.68
	expires := testTime.Add(48 * time.Hour)
	a := domain.AbundanceAnnouncement{
		ID:             "a1",
		CommunityID:    "c1",
		ProviderID:     "u1",
		What:           "apples",
		Quantity:       "two crates",
		Where:          "north garden",
		Lat:            &lat,
		VisibleToModes: domain.AllModes(),
		ExpiresAt:      &expires,
		CreatedAt:      testTime,
	}
	if err := db.InsertAbundance(a); err != nil {
		t.Fatalf("InsertAbundance() error: %v", err)
	}

	got, err := db.GetAbundance("a1")
	if err != nil {
		t.Fatal(err)
	}
	if got.What != "apples" || got.ProviderID != "u1" {
		t.Errorf("got %+v", got)
	}
	if got.Lat == nil || *got.Lat != lat {
		t.Errorf("lat = %v, want %v", got.Lat, lat)
	}
	if len(got.VisibleToModes) != 4 {
		t.Errorf("visible modes = %v", got.VisibleToModes)
	}
	if got.ExpiresAt == nil || !got.ExpiresAt.Equal(expires) {
		t.Errorf("expires = %v, want %v", got.ExpiresAt, expires)
	}
}

func TestAbundance_AnonymousHasNoProvider(t *testing.T) {
	db := newTestDB(t)
	a := domain.AbundanceAnnouncement{
		ID:             "a1",
		What:           "bread",
		VisibleToModes: domain.AllModes(),
		CreatedAt:      testTime,
	}
	if err := db.InsertAbundance(a); err != nil {
		t.Fatal(err)
	}
	got, err := db.GetAbundance("a1")
	if err != nil {
		t.Fatal(err)
	}
	if got.ProviderID != "" {
		t.Errorf("provider = %q, want absent", got.ProviderID)
	}
}

func TestAbundance_AppendTaker(t *testing.T) {
	db := newTestDB(t)
	db.InsertAbundance(domain.AbundanceAnnouncement{ID: "a1", What: "firewood", VisibleToModes: domain.AllModes(), CreatedAt: testTime})

	if err := db.AppendTaker("a1", "u9"); err != nil {
		t.Fatal(err)
	}
	if err := db.AppendTaker("a1", "u10"); err != nil {
		t.Fatal(err)
	}
	// Appending an existing taker changes nothing.
	if err := db.AppendTaker("a1", "u9"); err != nil {
		t.Fatal(err)
	}
	got, _ := db.GetAbundance("a1")
	if len(got.TakenBy) != 2 || got.TakenBy[0] != "u9" {
		t.Errorf("takers = %v", got.TakenBy)
	}

	if err := db.AppendTaker("ghost", "u9"); !errors.Is(err, domain.ErrNotFound) {
		t.Errorf("unknown abundance: err = %v, want ErrNotFound", err)
	}
}

func TestListOpenAbundance_SubSecondClock(t *testing.T) {
	db := newTestDB(t)
	expires := time.Date(2025, 5, 1, 12, 0, 5, 0, time.UTC)
	db.InsertAbundance(domain.AbundanceAnnouncement{
		ID: "a1", What: "x", VisibleToModes: domain.AllModes(),
		ExpiresAt: &expires, CreatedAt: expires.Add(-time.Hour),
	})

	// Half a second before the expiry instant the item is still open.
	items, err := db.ListOpenAbundance("", expires.Add(-500*time.Millisecond))
	if err != nil {
		t.Fatal(err)
	}
	if len(items) != 1 {
		t.Errorf("open before expiry = %d, want 1", len(items))
	}

	// Half a second past it the item is gone, fractional clock or not.
	items, err = db.ListOpenAbundance("", expires.Add(500*time.Millisecond))
	if err != nil {
		t.Fatal(err)
	}
	if len(items) != 0 {
		t.Errorf("open past expiry = %d, want 0", len(items))
	}
}

func TestListOpenAbundance_ExcludesExpired(t *testing.T) {
	db := newTestDB(t)
	past := testTime.Add(-time.Hour)
	future := testTime.Add(time.Hour)
	db.InsertAbundance(domain.AbundanceAnnouncement{ID: "old", What: "x", VisibleToModes: domain.AllModes(), ExpiresAt: &past, CreatedAt: testTime.Add(-2 * time.Hour)})
	db.InsertAbundance(domain.AbundanceAnnouncement{ID: "fresh", What: "y", VisibleToModes: domain.AllModes(), ExpiresAt: &future, CreatedAt: testTime.Add(-time.Minute)})
	db.InsertAbundance(domain.AbundanceAnnouncement{ID: "open", What: "z", VisibleToModes: domain.AllModes(), CreatedAt: testTime.Add(-2 * time.Minute)})

	items, err := db.ListOpenAbundance("", testTime)
	if err != nil {
		t.Fatal(err)
	}
	if len(items) != 2 {
		t.Fatalf("open items = %d, want 2", len(items))
	}
	if items[0].ID != "fresh" || items[1].ID != "open" {
		t.Errorf("order = %s, %s; want fresh, open", items[0].ID, items[1].ID)
	}
}

// ─── Needs ──────────────────────────────────────────────────────────────────

func TestNeed_RoundTripAndFulfill(t *testing.T) {
	db := newTestDB(t)
	n := domain.NeedExpression{
		ID:             "n1",
		CommunityID:    "c1",
		RequesterID:    "u1",
		What:           "a ladder",
		Urgency:        domain.UrgencySoon,
		VisibleToModes: domain.AllModes(),
		CreatedAt:      testTime,
	}
	if err := db.InsertNeed(n); err != nil {
		t.Fatalf("InsertNeed() error: %v", err)
	}

	if err := db.MarkNeedFulfilled("n1", "u2", testTime.Add(time.Hour)); err != nil {
		t.Fatal(err)
	}
	got, err := db.GetNeed("n1")
	if err != nil {
		t.Fatal(err)
	}
	if !got.Fulfilled() {
		t.Error("need should be fulfilled")
	}
	if len(got.FulfilledBy) != 1 || got.FulfilledBy[0] != "u2" {
		t.Errorf("fulfilled by = %v", got.FulfilledBy)
	}

	// Fulfilled needs drop out of the open list.
	open, err := db.ListOpenNeeds("c1", testTime)
	if err != nil {
		t.Fatal(err)
	}
	if len(open) != 0 {
		t.Errorf("open needs = %d, want 0", len(open))
	}
}

func TestMarkNeedFulfilled_OnlyOnce(t *testing.T) {
	db := newTestDB(t)
	db.InsertNeed(domain.NeedExpression{ID: "n1", What: "x", VisibleToModes: domain.AllModes(), CreatedAt: testTime})

	if err := db.MarkNeedFulfilled("n1", "u1", testTime); err != nil {
		t.Fatalf("first fulfill error: %v", err)
	}
	if err := db.MarkNeedFulfilled("n1", "u2", testTime.Add(time.Minute)); !errors.Is(err, domain.ErrAlreadyFulfilled) {
		t.Fatalf("second fulfill: err = %v, want ErrAlreadyFulfilled", err)
	}

	got, err := db.GetNeed("n1")
	if err != nil {
		t.Fatal(err)
	}
	if len(got.FulfilledBy) != 1 || got.FulfilledBy[0] != "u1" {
		t.Errorf("fulfilled by = %v, want only the winner", got.FulfilledBy)
	}
	if !got.FulfilledAt.Equal(testTime) {
		t.Errorf("fulfilled at = %v, want the winner's timestamp", got.FulfilledAt)
	}

	if err := db.MarkNeedFulfilled("ghost", "u1", testTime); !errors.Is(err, domain.ErrNotFound) {
		t.Errorf("unknown need: err = %v, want ErrNotFound", err)
	}
}

func TestGetNeed_NotFound(t *testing.T) {
	db := newTestDB(t)
	if _, err := db.GetNeed("ghost"); !errors.Is(err, domain.ErrNotFound) {
		t.Errorf("err = %v, want ErrNotFound", err)
	}
}

// ─── Celebrations ───────────────────────────────────────────────────────────

func TestCelebrations_RecentNewestFirst(t *testing.T) {
	db := newTestDB(t)
	for i := 0; i < 3; i++ {
		c := domain.AnonymousCelebration{
			ID:          string(rune('a' + i)),
			Event:       "something wonderful",
			Emoji:       "🎉",
			CommunityID: "c1",
			CreatedAt:   testTime.Add(time.Duration(i) * time.Minute),
		}
		if err := db.InsertCelebration(c); err != nil {
			t.Fatal(err)
		}
	}

	recent, err := db.RecentCelebrations("c1", 2)
	if err != nil {
		t.Fatal(err)
	}
	if len(recent) != 2 {
		t.Fatalf("recent = %d, want 2", len(recent))
	}
	if recent[0].ID != "c" {
		t.Errorf("newest id = %s, want c", recent[0].ID)
	}
}

// ─── Community Configs ──────────────────────────────────────────────────────

func TestCommunityConfig_UpsertAndGet(t *testing.T) {
	db := newTestDB(t)

	if _, err := db.GetCommunityConfig("c1"); !errors.Is(err, domain.ErrNotFound) {
		t.Fatalf("err = %v, want ErrNotFound before creation", err)
	}

	cfg := domain.DefaultCommunityLayerConfig("c1")
	cfg.GiftCount = 3
	cfg.AutoGiftDays = true
	cfg.UpdatedAt = testTime
	if err := db.UpsertCommunityConfig(cfg); err != nil {
		t.Fatal(err)
	}

	got, err := db.GetCommunityConfig("c1")
	if err != nil {
		t.Fatal(err)
	}
	if got.GiftCount != 3 || !got.AutoGiftDays || got.GiftThreshold != 60 {
		t.Errorf("got %+v", got)
	}

	// Full overwrite on conflict.
	cfg.GiftCount = 5
	cfg.AutoGiftDays = false
	if err := db.UpsertCommunityConfig(cfg); err != nil {
		t.Fatal(err)
	}
	got, _ = db.GetCommunityConfig("c1")
	if got.GiftCount != 5 || got.AutoGiftDays {
		t.Errorf("after update: %+v", got)
	}
}

// ─── Bridge Events ──────────────────────────────────────────────────────────

func TestBridgeEvents_ActiveWindow(t *testing.T) {
	db := newTestDB(t)
	mk := func(id string, start, end time.Time) domain.BridgeEvent {
		return domain.BridgeEvent{
			ID: id, Type: domain.BridgeGiftDay, Title: "Gift Day", Description: "d",
			StartsAt: start, EndsAt: end, CommunityID: "c1", CreatedAt: testTime,
		}
	}
	db.InsertBridgeEvent(mk("past", testTime.Add(-48*time.Hour), testTime.Add(-24*time.Hour)))
	db.InsertBridgeEvent(mk("now", testTime.Add(-time.Hour), testTime.Add(time.Hour)))
	db.InsertBridgeEvent(mk("future", testTime.Add(24*time.Hour), testTime.Add(48*time.Hour)))

	active, err := db.ActiveBridgeEvents("c1", testTime)
	if err != nil {
		t.Fatal(err)
	}
	if len(active) != 1 || active[0].ID != "now" {
		t.Errorf("active = %v", active)
	}
}

func TestHasBridgeEvent(t *testing.T) {
	db := newTestDB(t)
	start := testTime.Add(24 * time.Hour)
	db.InsertBridgeEvent(domain.BridgeEvent{
		ID: "e1", Type: domain.BridgeGiftDay, Title: "Gift Day", Description: "d",
		StartsAt: start, EndsAt: start.Add(24 * time.Hour), CommunityID: "c1", CreatedAt: testTime,
	})

	has, err := db.HasBridgeEvent("c1", domain.BridgeGiftDay, start)
	if err != nil {
		t.Fatal(err)
	}
	if !has {
		t.Error("expected event to exist")
	}
	has, _ = db.HasBridgeEvent("c1", domain.BridgeDebtAmnesty, start)
	if has {
		t.Error("different type should not match")
	}
}
