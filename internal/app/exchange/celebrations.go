package exchange

import (
	"time"

	"github.com/google/uuid"

	"github.com/layerline/layerd/internal/domain"
	"github.com/layerline/layerd/internal/infra/observability"
)

// DefaultEmoji is used when a celebration is emitted without one.
const DefaultEmoji = "🎉"

// Celebrations emits and reads anonymous celebration records. The record
// type has no author field, so the emitter cannot leak identity even if a
// caller passes it one.
type Celebrations struct {
	store domain.CelebrationStore
	clock func() time.Time
}

// NewCelebrations creates the celebration emitter.
func NewCelebrations(store domain.CelebrationStore) *Celebrations {
	return &Celebrations{store: store, clock: time.Now}
}

// SetClock replaces the time source (tests).
func (c *Celebrations) SetClock(clock func() time.Time) { c.clock = clock }

// Emit persists one celebration. An empty emoji falls back to DefaultEmoji;
// approxParticipants of 0 means unspecified.
func (c *Celebrations) Emit(event, emoji, communityID string, approxParticipants int) (*domain.AnonymousCelebration, error) {
	if emoji == "" {
		emoji = DefaultEmoji
	}
	cel := domain.AnonymousCelebration{
		ID:                      uuid.NewString(),
		Event:                   event,
		Emoji:                   emoji,
		CommunityID:             communityID,
		ApproximateParticipants: approxParticipants,
		CreatedAt:               c.clock(),
	}
	if err := c.store.InsertCelebration(cel); err != nil {
		return nil, err
	}
	observability.CelebrationsTotal.Inc()
	return &cel, nil
}

// Recent returns celebrations newest first, all communities when
// communityID is empty.
func (c *Celebrations) Recent(communityID string, limit int) ([]domain.AnonymousCelebration, error) {
	return c.store.RecentCelebrations(communityID, limit)
}
