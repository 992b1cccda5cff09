package domain

import "fmt"

// ─── Transition Table ───────────────────────────────────────────────────────
// The migration rules are data, not branches: one entry per ordered pair of
// distinct modes, 12 in total. A missing entry is a configuration bug, which
// ValidateTransitionTable catches at startup and the exhaustiveness test
// pins down. The rules never touch storage — they map a read-only credit
// snapshot to an effect the executor applies.

// CreditSnapshot carries the caller's balances at effect time, read-only.
type CreditSnapshot struct {
	HardCredits int64
	SoftCredits *int64
}

func (s CreditSnapshot) soft() int64 {
	if s.SoftCredits == nil {
		return 0
	}
	return *s.SoftCredits
}

// TransitionMessage is the structured, human-readable payload returned to
// the caller verbatim. One stable shape covers the union of all transitions;
// unused fields stay empty.
type TransitionMessage struct {
	Title           string   `json:"title"`
	Body            string   `json:"body"`
	Preserved       []string `json:"preserved,omitempty"`
	Released        []string `json:"released,omitempty"`
	Gained          []string `json:"gained,omitempty"`
	Note            string   `json:"note,omitempty"`
	StartingBalance *int64   `json:"starting_balance,omitempty"`
}

// TransitionEffect is what a migration does to a user's balances, plus the
// message payload and an optional celebration. CreditsConverted is the
// amount moved out of personal accounting, always >= 0.
type TransitionEffect struct {
	From             EconomicMode
	To               EconomicMode
	CreditsConverted int64

	// Field updates the executor applies to UserLayerState.
	SetHardCredits   *int64
	SetSoftCredits   *int64
	ClearSoftCredits bool

	// Celebration to emit, if any. The event text never names the user.
	Celebrate        bool
	CelebrationEvent string

	Message TransitionMessage
}

// TransitionKey identifies one directed edge of the mode graph.
type TransitionKey struct {
	From EconomicMode
	To   EconomicMode
}

type transitionRule func(snap CreditSnapshot) TransitionEffect

// Fixed welcome stipends for members re-entering an accounted mode.
const (
	stipendHard = 100
	stipendSoft = 50
)

var transitionTable = map[TransitionKey]transitionRule{
	{ModeTraditional, ModeTransitional}: func(snap CreditSnapshot) TransitionEffect {
		start := snap.HardCredits
		return TransitionEffect{
			SetSoftCredits: i64(start),
			Message: TransitionMessage{
				Title:           "Welcome to the transitional layer",
				Body:            "Your balance carries over as soft credits. Nobody chases a soft debt.",
				Preserved:       []string{"hard credit balance (copied, not spent)"},
				Gained:          []string{"soft credits", "debt without pressure"},
				StartingBalance: i64(start),
			},
		}
	},
	{ModeTraditional, ModeGiftPure}: func(snap CreditSnapshot) TransitionEffect {
		amount := snap.HardCredits
		eff := TransitionEffect{
			CreditsConverted: amount,
			// The hard balance deliberately stays on the record even though
			// it is reported as converted; only the soft balance is nulled.
			// Mirrors the long-standing behavior this engine replaces — see
			// DESIGN.md before "fixing" it.
			ClearSoftCredits: true,
			Message: TransitionMessage{
				Title:    "Welcome to the gift economy",
				Body:     "Nothing is counted here. Give what you can, take what you need.",
				Released: []string{"credit accounting", "the scoreboard"},
				Gained:   []string{"anonymity on everything you share", "freedom from balances"},
			},
		}
		if amount > 0 {
			eff.Celebrate = true
			eff.CelebrationEvent = fmt.Sprintf("%d credits were released into the gift", amount)
			eff.Message.Note = fmt.Sprintf("%d credits let go — the community celebrates anonymously.", amount)
		}
		return eff
	},
	{ModeTraditional, ModeChameleon}: func(snap CreditSnapshot) TransitionEffect {
		return TransitionEffect{
			Message: TransitionMessage{
				Title:     "Chameleon mode",
				Body:      "You now adapt to whoever you exchange with: credits with accountants, gifts with gifters.",
				Preserved: []string{"hard credit balance"},
				Gained:    []string{"per-exchange flexibility"},
			},
		}
	},
	{ModeTransitional, ModeTraditional}: func(snap CreditSnapshot) TransitionEffect {
		hard := snap.soft()
		if hard <= 0 {
			hard = stipendSoft
		}
		return TransitionEffect{
			SetHardCredits:   i64(hard),
			ClearSoftCredits: true,
			Message: TransitionMessage{
				Title:           "Back to full accounting",
				Body:            "Your soft balance hardens into tracked credits.",
				Gained:          []string{"hard credits", "a precise ledger"},
				Released:        []string{"soft credits"},
				StartingBalance: i64(hard),
			},
		}
	},
	{ModeTransitional, ModeGiftPure}: func(snap CreditSnapshot) TransitionEffect {
		amount := snap.soft()
		eff := TransitionEffect{
			CreditsConverted: amount,
			ClearSoftCredits: true,
			Message: TransitionMessage{
				Title:    "Welcome to the gift economy",
				Body:     "Your soft credits dissolve. Nothing is counted here.",
				Released: []string{"soft credits", "credit accounting"},
				Gained:   []string{"anonymity on everything you share"},
			},
		}
		if amount > 0 {
			eff.Celebrate = true
			eff.CelebrationEvent = fmt.Sprintf("%d credits were released into the gift", amount)
			eff.Message.Note = fmt.Sprintf("%d soft credits let go — the community celebrates anonymously.", amount)
		}
		return eff
	},
	{ModeTransitional, ModeChameleon}: func(snap CreditSnapshot) TransitionEffect {
		return TransitionEffect{
			Message: TransitionMessage{
				Title:     "Chameleon mode",
				Body:      "You now adapt to whoever you exchange with.",
				Preserved: []string{"soft credit balance (dormant)"},
				Gained:    []string{"per-exchange flexibility"},
			},
		}
	},
	{ModeGiftPure, ModeTraditional}: func(snap CreditSnapshot) TransitionEffect {
		return TransitionEffect{
			SetHardCredits: i64(stipendHard),
			Message: TransitionMessage{
				Title:           "Back to full accounting",
				Body:            "You start with a welcome stipend, not an empty ledger.",
				Gained:          []string{fmt.Sprintf("%d hard credits to start", stipendHard)},
				StartingBalance: i64(stipendHard),
			},
		}
	},
	{ModeGiftPure, ModeTransitional}: func(snap CreditSnapshot) TransitionEffect {
		return TransitionEffect{
			SetSoftCredits: i64(stipendSoft),
			Message: TransitionMessage{
				Title:           "Welcome to the transitional layer",
				Body:            "You start with a soft stipend. Nobody chases a soft debt.",
				Gained:          []string{fmt.Sprintf("%d soft credits to start", stipendSoft)},
				StartingBalance: i64(stipendSoft),
			},
		}
	},
	{ModeGiftPure, ModeChameleon}: func(snap CreditSnapshot) TransitionEffect {
		return TransitionEffect{
			Message: TransitionMessage{
				Title:  "Chameleon mode",
				Body:   "You now adapt to whoever you exchange with. Gift exchanges stay anonymous.",
				Gained: []string{"per-exchange flexibility"},
			},
		}
	},
	{ModeChameleon, ModeTraditional}: func(snap CreditSnapshot) TransitionEffect {
		return TransitionEffect{
			SetHardCredits: i64(stipendSoft),
			Message: TransitionMessage{
				Title:           "Back to full accounting",
				Body:            "You start with a welcome stipend.",
				Gained:          []string{fmt.Sprintf("%d hard credits to start", stipendSoft)},
				StartingBalance: i64(stipendSoft),
			},
		}
	},
	{ModeChameleon, ModeTransitional}: func(snap CreditSnapshot) TransitionEffect {
		return TransitionEffect{
			SetSoftCredits: i64(stipendSoft),
			Message: TransitionMessage{
				Title:           "Welcome to the transitional layer",
				Body:            "You start with a soft stipend.",
				Gained:          []string{fmt.Sprintf("%d soft credits to start", stipendSoft)},
				StartingBalance: i64(stipendSoft),
			},
		}
	},
	{ModeChameleon, ModeGiftPure}: func(snap CreditSnapshot) TransitionEffect {
		return TransitionEffect{
			Message: TransitionMessage{
				Title:    "Welcome to the gift economy",
				Body:     "Nothing is counted here. Give what you can, take what you need.",
				Released: []string{"credit accounting"},
				Gained:   []string{"anonymity on everything you share"},
			},
		}
	},
}

func i64(v int64) *int64 { return &v }

// EffectOf returns the effect of migrating from one mode to another given
// the caller's current balances. A self-transition is ErrInvalidTransition;
// a pair with no table entry is ErrUnsupportedTransition (which
// ValidateTransitionTable should have made impossible).
func EffectOf(from, to EconomicMode, snap CreditSnapshot) (TransitionEffect, error) {
	if !from.Valid() {
		return TransitionEffect{}, fmt.Errorf("%w: %q", ErrUnknownMode, from)
	}
	if !to.Valid() {
		return TransitionEffect{}, fmt.Errorf("%w: %q", ErrUnknownMode, to)
	}
	if from == to {
		return TransitionEffect{}, fmt.Errorf("%w: already in that mode", ErrInvalidTransition)
	}
	rule, ok := transitionTable[TransitionKey{From: from, To: to}]
	if !ok {
		return TransitionEffect{}, fmt.Errorf("%w: %s -> %s", ErrUnsupportedTransition, from, to)
	}
	eff := rule(snap)
	eff.From = from
	eff.To = to
	if eff.CreditsConverted < 0 {
		eff.CreditsConverted = 0
	}
	return eff, nil
}

// ValidateTransitionTable checks that every ordered pair of distinct modes
// has a rule. Called once at daemon startup; a failure is a build defect,
// not a runtime condition.
func ValidateTransitionTable() error {
	for _, from := range AllModes() {
		for _, to := range AllModes() {
			if from == to {
				continue
			}
			if _, ok := transitionTable[TransitionKey{From: from, To: to}]; !ok {
				return fmt.Errorf("transition table missing %s -> %s", from, to)
			}
		}
	}
	return nil
}
