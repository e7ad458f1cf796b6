package auction

import "math/big"

// TokenClaim is the pair of amounts an identity may withdraw: bidding
// tokens (refunds, or proceeds for the owner) and sale tokens (the lot
// for the winner, or the returned lot for the owner).
type TokenClaim struct {
	TokensForBidding *big.Int `json:"tokens_for_bidding"`
	TokensForSale    *big.Int `json:"tokens_for_sale"`
}

func zeroClaim() TokenClaim {
	return TokenClaim{
		TokensForBidding: new(big.Int),
		TokensForSale:    new(big.Int),
	}
}

// IsZero reports whether nothing is currently owed.
func (c TokenClaim) IsZero() bool {
	return c.TokensForBidding.Sign() == 0 && c.TokensForSale.Sign() == 0
}

func (c TokenClaim) clone() TokenClaim {
	return TokenClaim{
		TokensForBidding: new(big.Int).Set(c.TokensForBidding),
		TokensForSale:    new(big.Int).Set(c.TokensForSale),
	}
}

// ClaimLedger records what the engine owes each identity. Entries are
// created on first credit and kept forever; settling zeroes the two
// amounts in place rather than deleting the key.
type ClaimLedger map[Identity]TokenClaim

// Credit merges add into the identity's entry, creating the entry if
// absent. A sum leaving the 128-bit range fails without touching the
// ledger.
func (l ClaimLedger) Credit(id Identity, bidding, sale *big.Int) error {
	entry, ok := l[id]
	if !ok {
		entry = zeroClaim()
	}
	newBidding, err := addAmount("tokens_for_bidding", entry.TokensForBidding, bidding)
	if err != nil {
		return err
	}
	newSale, err := addAmount("tokens_for_sale", entry.TokensForSale, sale)
	if err != nil {
		return err
	}
	l[id] = TokenClaim{TokensForBidding: newBidding, TokensForSale: newSale}
	return nil
}

// Get returns a copy of the identity's entry. The second result is
// false when the identity has never been credited.
func (l ClaimLedger) Get(id Identity) (TokenClaim, bool) {
	entry, ok := l[id]
	if !ok {
		return TokenClaim{}, false
	}
	return entry.clone(), true
}

// Settle zeroes the identity's entry in place and returns what was
// owed. Settling an absent identity returns ok=false.
func (l ClaimLedger) Settle(id Identity) (TokenClaim, bool) {
	entry, ok := l[id]
	if !ok {
		return TokenClaim{}, false
	}
	l[id] = zeroClaim()
	return entry, true
}

func (l ClaimLedger) clone() ClaimLedger {
	out := make(ClaimLedger, len(l))
	for id, entry := range l {
		out[id] = entry.clone()
	}
	return out
}
