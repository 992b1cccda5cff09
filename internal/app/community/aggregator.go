// Package community maintains the per-community layer distribution.
// Counters are always rebuilt from a full membership scan — never
// incremented in place — so concurrent recomputes can race freely and the
// last writer still leaves a consistent snapshot.
package community

import (
	"errors"
	"fmt"
	"log"
	"math"
	"time"

	"github.com/layerline/layerd/internal/domain"
	"github.com/layerline/layerd/internal/infra/observability"
)

// Aggregator recomputes and serves community layer statistics.
type Aggregator struct {
	layers      domain.LayerStore
	communities domain.CommunityStore

	// defaultThreshold is applied when a config row is lazily created.
	defaultThreshold int

	clock func() time.Time
}

// New creates an aggregator with the standard defaults.
func New(layers domain.LayerStore, communities domain.CommunityStore) *Aggregator {
	return &Aggregator{
		layers:           layers,
		communities:      communities,
		defaultThreshold: domain.DefaultGiftThreshold,
		clock:            time.Now,
	}
}

// SetDefaultGiftThreshold overrides the threshold used for lazily created
// community configs. Must be called before the aggregator is in use.
func (a *Aggregator) SetDefaultGiftThreshold(pct int) {
	if pct >= 0 && pct <= 100 {
		a.defaultThreshold = pct
	}
}

// SetClock replaces the time source (tests).
func (a *Aggregator) SetClock(clock func() time.Time) { a.clock = clock }

// Recompute rebuilds the community's four mode counters from the current
// membership and overwrites the cached row in full.
func (a *Aggregator) Recompute(communityID string) (*domain.CommunityLayerConfig, error) {
	counts, err := a.layers.CountModesByCommunity(communityID)
	if err != nil {
		observability.RecomputeRunsTotal.WithLabelValues("error").Inc()
		return nil, fmt.Errorf("count members: %w", err)
	}

	cfg, err := a.loadOrInit(communityID)
	if err != nil {
		observability.RecomputeRunsTotal.WithLabelValues("error").Inc()
		return nil, err
	}

	cfg.TraditionalCount = counts[domain.ModeTraditional]
	cfg.TransitionalCount = counts[domain.ModeTransitional]
	cfg.GiftCount = counts[domain.ModeGiftPure]
	cfg.ChameleonCount = counts[domain.ModeChameleon]
	cfg.UpdatedAt = a.clock()

	if err := a.communities.UpsertCommunityConfig(*cfg); err != nil {
		observability.RecomputeRunsTotal.WithLabelValues("error").Inc()
		return nil, fmt.Errorf("store counters: %w", err)
	}

	for _, mode := range domain.AllModes() {
		observability.CommunityModeMembers.
			WithLabelValues(communityID, string(mode)).
			Set(float64(cfg.ModeCount(mode)))
	}
	observability.RecomputeRunsTotal.WithLabelValues("ok").Inc()
	return cfg, nil
}

// Stats returns the count and percentage distribution for one community, or
// globally across all members when communityID is empty. Percentages use
// round-half-up and may sum to 100 plus or minus rounding slack.
func (a *Aggregator) Stats(communityID string) (*domain.LayerStats, error) {
	var (
		counts map[domain.EconomicMode]int
		err    error
	)
	if communityID == "" {
		counts, err = a.layers.CountModesGlobal()
	} else {
		counts, err = a.layers.CountModesByCommunity(communityID)
	}
	if err != nil {
		return nil, err
	}

	stats := &domain.LayerStats{
		Counts:      make(map[domain.EconomicMode]int, 4),
		Percentages: make(map[domain.EconomicMode]int, 4),
	}
	for _, mode := range domain.AllModes() {
		stats.Counts[mode] = counts[mode]
		stats.Total += counts[mode]
	}
	for _, mode := range domain.AllModes() {
		stats.Percentages[mode] = roundPct(stats.Counts[mode], stats.Total)
	}
	return stats, nil
}

// CheckGiftThreshold compares the community's GIFT_PURE share (from the
// cached counters) against its configured threshold. The only side effect is
// the lazy creation of a missing config row; proposing an actual community
// vote is left to the caller.
func (a *Aggregator) CheckGiftThreshold(communityID string) (*domain.ThresholdCheck, error) {
	cfg, err := a.loadOrInit(communityID)
	if err != nil {
		return nil, err
	}
	pct := roundPct(cfg.GiftCount, cfg.Total())
	return &domain.ThresholdCheck{
		ShouldPropose:     pct >= cfg.GiftThreshold,
		CurrentPercentage: pct,
		Threshold:         cfg.GiftThreshold,
	}, nil
}

// Config returns the community's config, lazily creating it with defaults.
func (a *Aggregator) Config(communityID string) (*domain.CommunityLayerConfig, error) {
	return a.loadOrInit(communityID)
}

// ConfigPatch is a partial update to a community's policy knobs. Nil fields
// are left unchanged; counters are never patchable.
type ConfigPatch struct {
	DefaultLayer    *domain.EconomicMode `json:"default_layer,omitempty"`
	AllowMixedMode  *bool                `json:"allow_mixed_mode,omitempty"`
	AutoGiftDays    *bool                `json:"auto_gift_days,omitempty"`
	AutoDebtAmnesty *bool                `json:"auto_debt_amnesty,omitempty"`
	GiftThreshold   *int                 `json:"gift_threshold,omitempty"`
}

// UpdateConfig applies a patch to the community's policy knobs.
func (a *Aggregator) UpdateConfig(communityID string, patch ConfigPatch) (*domain.CommunityLayerConfig, error) {
	cfg, err := a.loadOrInit(communityID)
	if err != nil {
		return nil, err
	}
	if patch.DefaultLayer != nil {
		if !patch.DefaultLayer.Valid() {
			return nil, fmt.Errorf("%w: %q", domain.ErrUnknownMode, *patch.DefaultLayer)
		}
		cfg.DefaultLayer = *patch.DefaultLayer
	}
	if patch.AllowMixedMode != nil {
		cfg.AllowMixedMode = *patch.AllowMixedMode
	}
	if patch.AutoGiftDays != nil {
		cfg.AutoGiftDays = *patch.AutoGiftDays
	}
	if patch.AutoDebtAmnesty != nil {
		cfg.AutoDebtAmnesty = *patch.AutoDebtAmnesty
	}
	if patch.GiftThreshold != nil {
		if *patch.GiftThreshold < 0 || *patch.GiftThreshold > 100 {
			return nil, fmt.Errorf("gift threshold must be 0-100, got %d", *patch.GiftThreshold)
		}
		cfg.GiftThreshold = *patch.GiftThreshold
	}
	cfg.UpdatedAt = a.clock()
	if err := a.communities.UpsertCommunityConfig(*cfg); err != nil {
		return nil, err
	}
	return cfg, nil
}

// ReconcileAll re-runs Recompute for every community with members. Used by
// the daemon sweep as the periodic self-heal pass.
func (a *Aggregator) ReconcileAll() {
	ids, err := a.layers.ListCommunityIDs()
	if err != nil {
		log.Printf("[community] reconcile: list communities: %v", err)
		return
	}
	for _, id := range ids {
		if _, err := a.Recompute(id); err != nil {
			log.Printf("[community] reconcile %s: %v", id, err)
		}
	}
}

func (a *Aggregator) loadOrInit(communityID string) (*domain.CommunityLayerConfig, error) {
	cfg, err := a.communities.GetCommunityConfig(communityID)
	if err == nil {
		return cfg, nil
	}
	if !errors.Is(err, domain.ErrNotFound) {
		return nil, err
	}
	fresh := domain.DefaultCommunityLayerConfig(communityID)
	fresh.GiftThreshold = a.defaultThreshold
	fresh.UpdatedAt = a.clock()
	if err := a.communities.UpsertCommunityConfig(fresh); err != nil {
		return nil, err
	}
	return &fresh, nil
}

// roundPct is round-half-up of count/total as a percentage; 0 when total is 0.
func roundPct(count, total int) int {
	if total == 0 {
		return 0
	}
	return int(math.Floor(float64(count)/float64(total)*100 + 0.5))
}
