package engine

import (
	"crypto/sha256"
	"encoding/hex"
	"encoding/json"
)

// ContentVersion fingerprints the products, locations, and event catalog the
// session runs on. Code-only parts of the catalog (option conditions and
// computed values) are not covered.
func (s *Simulation) ContentVersion() string {
	s.mu.RLock()
	defer s.mu.RUnlock()
	h := sha256.New()
	enc := json.NewEncoder(h)
	for _, v := range []any{s.state.Market.Products, s.state.Market.Locations, s.events.Catalog().All()} {
		if err := enc.Encode(v); err != nil {
			return ""
		}
	}
	return hex.EncodeToString(h.Sum(nil)[:8])
}
