package api

import (
	"encoding/json"
	"net/http"
	"strconv"
	"time"

	"github.com/go-chi/chi/v5"

	"github.com/layerline/layerd/internal/app/bridge"
	"github.com/layerline/layerd/internal/app/community"
	"github.com/layerline/layerd/internal/app/exchange"
	"github.com/layerline/layerd/internal/domain"
)

// ─── Users & Migrations ─────────────────────────────────────────────────────

// POST /api/users — create (or fetch) the default layer state for a user.
func (s *Server) handleRegisterUser(w http.ResponseWriter, r *http.Request) {
	var req struct {
		UserID      string `json:"user_id"`
		CommunityID string `json:"community_id"`
	}
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil || req.UserID == "" {
		writeError(w, http.StatusBadRequest, "user_id is required")
		return
	}
	state, err := s.layers.EnsureUserLayer(req.UserID, req.CommunityID, time.Now())
	if err != nil {
		writeDomainError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, state)
}

// GET /api/users/{id}/layer
func (s *Server) handleGetUserLayer(w http.ResponseWriter, r *http.Request) {
	state, err := s.layers.GetUserLayer(chi.URLParam(r, "id"))
	if err != nil {
		writeDomainError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, map[string]interface{}{
		"mode":           state.CurrentMode,
		"hard_credits":   state.HardCredits,
		"soft_credits":   state.SoftCredits,
		"community_id":   state.CommunityID,
		"last_change_at": state.LastModeChangeAt,
	})
}

// GET /api/users/{id}/migrations?limit=
func (s *Server) handleMigrationHistory(w http.ResponseWriter, r *http.Request) {
	records, err := s.executor.History(chi.URLParam(r, "id"), queryInt(r, "limit"))
	if err != nil {
		writeDomainError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, map[string]interface{}{"migrations": records})
}

// POST /api/users/{id}/migrate — {to_mode, reason?}
func (s *Server) handleMigrate(w http.ResponseWriter, r *http.Request) {
	var req struct {
		ToMode domain.EconomicMode `json:"to_mode"`
		Reason string              `json:"reason"`
	}
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		writeError(w, http.StatusBadRequest, "invalid request body")
		return
	}
	result, err := s.executor.Migrate(chi.URLParam(r, "id"), req.ToMode, req.Reason)
	if err != nil {
		writeDomainError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, result)
}

// ─── Stats & Community Config ───────────────────────────────────────────────

// GET /api/layers/stats?community_id= — omit community_id for global stats.
func (s *Server) handleLayerStats(w http.ResponseWriter, r *http.Request) {
	stats, err := s.aggregator.Stats(r.URL.Query().Get("community_id"))
	if err != nil {
		writeDomainError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, map[string]interface{}{
		"distribution": stats.Counts,
		"percentages":  stats.Percentages,
		"total":        stats.Total,
	})
}

// GET /api/communities/{id}/layer-config
func (s *Server) handleGetCommunityConfig(w http.ResponseWriter, r *http.Request) {
	cfg, err := s.aggregator.Config(chi.URLParam(r, "id"))
	if err != nil {
		writeDomainError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, cfg)
}

// PATCH /api/communities/{id}/layer-config
func (s *Server) handlePatchCommunityConfig(w http.ResponseWriter, r *http.Request) {
	var patch community.ConfigPatch
	if err := json.NewDecoder(r.Body).Decode(&patch); err != nil {
		writeError(w, http.StatusBadRequest, "invalid request body")
		return
	}
	cfg, err := s.aggregator.UpdateConfig(chi.URLParam(r, "id"), patch)
	if err != nil {
		writeDomainError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, cfg)
}

// GET /api/communities/{id}/gift-threshold
func (s *Server) handleGiftThreshold(w http.ResponseWriter, r *http.Request) {
	check, err := s.aggregator.CheckGiftThreshold(chi.URLParam(r, "id"))
	if err != nil {
		writeDomainError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, check)
}

// ─── Abundance ──────────────────────────────────────────────────────────────

// POST /api/abundance
func (s *Server) handleAnnounceAbundance(w http.ResponseWriter, r *http.Request) {
	var req struct {
		UserID         string                `json:"user_id"`
		What           string                `json:"what"`
		Quantity       string                `json:"quantity"`
		Where          string                `json:"where"`
		Lat            *float64              `json:"lat"`
		Lng            *float64              `json:"lng"`
		AvailableUntil *time.Time            `json:"available_until"`
		VisibleToModes []domain.EconomicMode `json:"visible_to_modes"`
	}
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		writeError(w, http.StatusBadRequest, "invalid request body")
		return
	}
	receipt, err := s.exchange.AnnounceAbundance(exchange.AnnounceParams{
		UserID:         req.UserID,
		What:           req.What,
		Quantity:       req.Quantity,
		Where:          req.Where,
		Lat:            req.Lat,
		Lng:            req.Lng,
		AvailableUntil: req.AvailableUntil,
		VisibleToModes: req.VisibleToModes,
	})
	if err != nil {
		writeDomainError(w, err)
		return
	}
	writeJSON(w, http.StatusCreated, receipt)
}

// GET /api/abundance?viewer_mode=&community_id=&limit=
func (s *Server) handleAbundanceFeed(w http.ResponseWriter, r *http.Request) {
	feed, err := s.exchange.AbundanceFeed(
		domain.EconomicMode(r.URL.Query().Get("viewer_mode")),
		r.URL.Query().Get("community_id"),
		queryInt(r, "limit"),
	)
	if err != nil {
		writeDomainError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, map[string]interface{}{"abundance": feed})
}

// POST /api/abundance/{id}/take — {user_id}
func (s *Server) handleTakeAbundance(w http.ResponseWriter, r *http.Request) {
	userID, ok := decodeUserID(w, r)
	if !ok {
		return
	}
	receipt, err := s.exchange.TakeAbundance(userID, chi.URLParam(r, "id"))
	if err != nil {
		writeDomainError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, receipt)
}

// ─── Needs ──────────────────────────────────────────────────────────────────

// POST /api/needs
func (s *Server) handleExpressNeed(w http.ResponseWriter, r *http.Request) {
	var req struct {
		UserID         string                `json:"user_id"`
		What           string                `json:"what"`
		Why            string                `json:"why"`
		Where          string                `json:"where"`
		Urgency        domain.Urgency        `json:"urgency"`
		VisibleToModes []domain.EconomicMode `json:"visible_to_modes"`
		ExpiresAt      *time.Time            `json:"expires_at"`
		Anonymous      bool                  `json:"anonymous"`
	}
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		writeError(w, http.StatusBadRequest, "invalid request body")
		return
	}
	receipt, err := s.exchange.ExpressNeed(exchange.NeedParams{
		UserID:         req.UserID,
		What:           req.What,
		Why:            req.Why,
		Where:          req.Where,
		Urgency:        req.Urgency,
		VisibleToModes: req.VisibleToModes,
		ExpiresAt:      req.ExpiresAt,
		Anonymous:      req.Anonymous,
	})
	if err != nil {
		writeDomainError(w, err)
		return
	}
	writeJSON(w, http.StatusCreated, receipt)
}

// GET /api/needs?viewer_mode=&community_id=&urgency=&limit=
func (s *Server) handleNeedsFeed(w http.ResponseWriter, r *http.Request) {
	feed, err := s.exchange.NeedsFeed(
		domain.EconomicMode(r.URL.Query().Get("viewer_mode")),
		r.URL.Query().Get("community_id"),
		domain.Urgency(r.URL.Query().Get("urgency")),
		queryInt(r, "limit"),
	)
	if err != nil {
		writeDomainError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, map[string]interface{}{"needs": feed})
}

// POST /api/needs/{id}/fulfill — {user_id}
func (s *Server) handleFulfillNeed(w http.ResponseWriter, r *http.Request) {
	userID, ok := decodeUserID(w, r)
	if !ok {
		return
	}
	receipt, err := s.exchange.FulfillNeed(userID, chi.URLParam(r, "id"))
	if err != nil {
		writeDomainError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, receipt)
}

// ─── Celebrations & Bridge Events ───────────────────────────────────────────

// GET /api/celebrations?community_id=&limit=
func (s *Server) handleCelebrations(w http.ResponseWriter, r *http.Request) {
	recent, err := s.celebrations.Recent(r.URL.Query().Get("community_id"), queryInt(r, "limit"))
	if err != nil {
		writeDomainError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, map[string]interface{}{"celebrations": recent})
}

// POST /api/bridge-events
func (s *Server) handleCreateBridgeEvent(w http.ResponseWriter, r *http.Request) {
	var req struct {
		Type        string              `json:"type"`
		Title       string              `json:"title"`
		Description string              `json:"description"`
		ForceLayer  domain.EconomicMode `json:"force_layer"`
		StartsAt    time.Time           `json:"starts_at"`
		EndsAt      time.Time           `json:"ends_at"`
		Recurring   bool                `json:"recurring"`
		Frequency   string              `json:"frequency"`
		CommunityID string              `json:"community_id"`
	}
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		writeError(w, http.StatusBadRequest, "invalid request body")
		return
	}
	event, err := s.bridge.Create(bridge.CreateParams{
		Type:        req.Type,
		Title:       req.Title,
		Description: req.Description,
		ForceLayer:  req.ForceLayer,
		StartsAt:    req.StartsAt,
		EndsAt:      req.EndsAt,
		Recurring:   req.Recurring,
		Frequency:   req.Frequency,
		CommunityID: req.CommunityID,
	})
	if err != nil {
		writeDomainError(w, err)
		return
	}
	writeJSON(w, http.StatusCreated, event)
}

// GET /api/bridge-events/active?community_id=
func (s *Server) handleActiveBridgeEvents(w http.ResponseWriter, r *http.Request) {
	events, err := s.bridge.Active(r.URL.Query().Get("community_id"))
	if err != nil {
		writeDomainError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, map[string]interface{}{"events": events})
}

// ─── Helpers ────────────────────────────────────────────────────────────────

func queryInt(r *http.Request, key string) int {
	v, _ := strconv.Atoi(r.URL.Query().Get(key))
	return v
}

func decodeUserID(w http.ResponseWriter, r *http.Request) (string, bool) {
	var req struct {
		UserID string `json:"user_id"`
	}
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil || req.UserID == "" {
		writeError(w, http.StatusBadRequest, "user_id is required")
		return "", false
	}
	return req.UserID, true
}
