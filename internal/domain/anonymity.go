package domain

// IsAnonymous decides whether a new post must be stored without an author
// reference: always in GIFT_PURE mode, or when the author explicitly asked
// (the explicit opt-in only exists for need expressions; abundance posts
// pass false). Anonymity is realized as the literal absence of the author
// id on the stored record, never as a flag next to a populated reference.
func IsAnonymous(mode EconomicMode, explicitRequest bool) bool {
	return mode == ModeGiftPure || explicitRequest
}
