package backend

import "github.com/lanternrouter/lantern/internal/registry"

// computeCost applies the per-million-token pricing table, scaled by the
// display FX rate. Local models always price at zero; callers still call
// this with the configured cloud pricing to populate SavedCost.
func computeCost(tokensIn, tokensOut int, pricing registry.Pricing, fxRate float64) float64 {
	if pricing.IsZero() {
		return 0
	}
	if fxRate == 0 {
		fxRate = 1
	}
	cost := (float64(tokensIn)/1e6)*pricing.Input + (float64(tokensOut)/1e6)*pricing.Output
	return cost * fxRate
}
