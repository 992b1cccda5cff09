package bridge

import (
	"errors"
	"testing"
	"time"

	"github.com/layerline/layerd/internal/domain"
	"github.com/layerline/layerd/internal/infra/sqlite"
)

var testTime = time.Date(2025, 5, 15, 12, 0, 0, 0, time.UTC)

func newTestService(t *testing.T) (*Service, *sqlite.DB) {
	t.Helper()
	db, err := sqlite.Open(t.TempDir())
	if err != nil {
		t.Fatalf("open db: %v", err)
	}
	t.Cleanup(func() { db.Close() })
	svc := New(db)
	svc.SetClock(func() time.Time { return testTime })
	return svc, db
}

func TestCreate(t *testing.T) {
	svc, _ := newTestService(t)

	e, err := svc.Create(CreateParams{
		Type:        domain.BridgeGiftDay,
		Title:       "Spring Gift Day",
		Description: "Everything moves as a gift.",
		ForceLayer:  domain.ModeGiftPure,
		StartsAt:    testTime.Add(24 * time.Hour),
		EndsAt:      testTime.Add(48 * time.Hour),
		CommunityID: "c1",
	})
	if err != nil {
		t.Fatalf("Create() error: %v", err)
	}
	if e.ID == "" {
		t.Error("event needs an id")
	}
	if e.ForceLayer != domain.ModeGiftPure {
		t.Errorf("force layer = %s", e.ForceLayer)
	}
}

func TestCreate_Validation(t *testing.T) {
	svc, _ := newTestService(t)
	base := CreateParams{
		Type:        "POTLUCK",
		Title:       "Potluck",
		Description: "Bring a dish.",
		StartsAt:    testTime,
		EndsAt:      testTime.Add(time.Hour),
	}

	tests := []struct {
		name    string
		mutate  func(p *CreateParams)
		wantErr error
	}{
		{"missing type", func(p *CreateParams) { p.Type = "" }, domain.ErrMissingField},
		{"missing title", func(p *CreateParams) { p.Title = "" }, domain.ErrMissingField},
		{"missing description", func(p *CreateParams) { p.Description = "" }, domain.ErrMissingField},
		{"zero start", func(p *CreateParams) { p.StartsAt = time.Time{} }, domain.ErrMissingField},
		{"unknown force layer", func(p *CreateParams) { p.ForceLayer = "BARTER" }, domain.ErrUnknownMode},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			p := base
			tt.mutate(&p)
			if _, err := svc.Create(p); !errors.Is(err, tt.wantErr) {
				t.Errorf("err = %v, want %v", err, tt.wantErr)
			}
		})
	}

	t.Run("end before start", func(t *testing.T) {
		p := base
		p.EndsAt = p.StartsAt.Add(-time.Hour)
		if _, err := svc.Create(p); err == nil {
			t.Error("inverted window should be rejected")
		}
	})
}

func TestActive(t *testing.T) {
	svc, _ := newTestService(t)
	mk := func(title string, start, end time.Time) {
		if _, err := svc.Create(CreateParams{
			Type: "POTLUCK", Title: title, Description: "d",
			StartsAt: start, EndsAt: end, CommunityID: "c1",
		}); err != nil {
			t.Fatal(err)
		}
	}
	mk("over", testTime.Add(-48*time.Hour), testTime.Add(-24*time.Hour))
	mk("running", testTime.Add(-time.Hour), testTime.Add(time.Hour))
	mk("upcoming", testTime.Add(24*time.Hour), testTime.Add(48*time.Hour))

	active, err := svc.Active("c1")
	if err != nil {
		t.Fatalf("Active() error: %v", err)
	}
	if len(active) != 1 || active[0].Title != "running" {
		t.Errorf("active = %v", active)
	}
}

func TestEnsureRecurring(t *testing.T) {
	svc, db := newTestService(t)
	cfg := domain.DefaultCommunityLayerConfig("c1")
	cfg.AutoGiftDays = true
	cfg.AutoDebtAmnesty = true

	svc.EnsureRecurring(cfg)
	// A second pass must not duplicate anything.
	svc.EnsureRecurring(cfg)

	// Gift day lands on the first of the next month.
	giftStart := time.Date(2025, 6, 1, 0, 0, 0, 0, time.UTC)
	has, err := db.HasBridgeEvent("c1", domain.BridgeGiftDay, giftStart)
	if err != nil {
		t.Fatal(err)
	}
	if !has {
		t.Error("expected a gift day on June 1")
	}

	// Amnesty lands on the first of the next quarter.
	amnestyStart := time.Date(2025, 7, 1, 0, 0, 0, 0, time.UTC)
	has, err = db.HasBridgeEvent("c1", domain.BridgeDebtAmnesty, amnestyStart)
	if err != nil {
		t.Fatal(err)
	}
	if !has {
		t.Error("expected a debt amnesty on July 1")
	}

	// Both events exist exactly once: scan the gift day window.
	probe := giftStart.Add(time.Hour)
	active, err := db.ActiveBridgeEvents("c1", probe)
	if err != nil {
		t.Fatal(err)
	}
	if len(active) != 1 {
		t.Errorf("events active during gift day = %d, want 1", len(active))
	}
	if active[0].ForceLayer != domain.ModeGiftPure {
		t.Errorf("gift day force layer = %s, want GIFT_PURE", active[0].ForceLayer)
	}
	if !active[0].Recurring || active[0].Frequency != "MONTHLY_FIRST" {
		t.Errorf("gift day recurrence = %v %q", active[0].Recurring, active[0].Frequency)
	}
}

func TestEnsureRecurring_RespectsOptOut(t *testing.T) {
	svc, db := newTestService(t)
	cfg := domain.DefaultCommunityLayerConfig("c1")
	// Both knobs default off.

	svc.EnsureRecurring(cfg)

	giftStart := time.Date(2025, 6, 1, 0, 0, 0, 0, time.UTC)
	has, err := db.HasBridgeEvent("c1", domain.BridgeGiftDay, giftStart)
	if err != nil {
		t.Fatal(err)
	}
	if has {
		t.Error("opted-out community must not get auto events")
	}
}

func TestQuarterBoundaries(t *testing.T) {
	tests := []struct {
		now  time.Time
		want time.Time
	}{
		{time.Date(2025, 1, 15, 0, 0, 0, 0, time.UTC), time.Date(2025, 4, 1, 0, 0, 0, 0, time.UTC)},
		{time.Date(2025, 3, 31, 23, 0, 0, 0, time.UTC), time.Date(2025, 4, 1, 0, 0, 0, 0, time.UTC)},
		{time.Date(2025, 10, 1, 0, 0, 0, 0, time.UTC), time.Date(2026, 1, 1, 0, 0, 0, 0, time.UTC)},
		{time.Date(2025, 12, 31, 0, 0, 0, 0, time.UTC), time.Date(2026, 1, 1, 0, 0, 0, 0, time.UTC)},
	}
	for _, tt := range tests {
		if got := nextQuarterStart(tt.now); !got.Equal(tt.want) {
			t.Errorf("nextQuarterStart(%v) = %v, want %v", tt.now, got, tt.want)
		}
	}
	if got := nextMonthStart(time.Date(2025, 12, 10, 0, 0, 0, 0, time.UTC)); !got.Equal(time.Date(2026, 1, 1, 0, 0, 0, 0, time.UTC)) {
		t.Errorf("nextMonthStart year rollover = %v", got)
	}
}
