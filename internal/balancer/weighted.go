package balancer

import "github.com/llmrouter/llmrouter/internal/route"

// maxSlots caps the expanded slot vector so pathological weight ratios cannot
// blow up the rotation space.
const maxSlots = 512

// rankWeighted orders eligible entries by rotating a weighted slot vector.
// The quota-aware variant additionally discounts each weight by remaining
// rate-limit headroom and health.
func rankWeighted(eligible []*Entry, strategy string, cursor int) ([]*Entry, int) {
	weights := make([]float64, len(eligible))
	for i, e := range eligible {
		w := e.Candidate.RouteWeight
		if w <= 0 {
			w = 1
		}
		if strategy == route.StrategyQuotaAwareWeighted {
			w *= clamp(e.RateLimit.RemainingCapacityRatio, 0, 1) * e.HealthFactor
		}
		weights[i] = w
	}

	slots := slotVector(weights)
	total := len(slots)
	offset := cursor % total

	// Walk the rotated vector and keep each entry's first occurrence.
	ordered := make([]*Entry, 0, len(eligible))
	seen := make([]bool, len(eligible))
	for i := 0; i < total && len(ordered) < len(eligible); i++ {
		idx := slots[(offset+i)%total]
		if !seen[idx] {
			seen[idx] = true
			ordered = append(ordered, eligible[idx])
		}
	}
	return ordered, (cursor + 1) % total
}

// slotVector expands weights into integer slots: weight*100 rounded, reduced
// by their gcd, capped at maxSlots total, every candidate keeping at least
// one slot.
func slotVector(weights []float64) []int {
	counts := make([]int, len(weights))
	for i, w := range weights {
		c := int(w*100 + 0.5)
		if c < 1 {
			c = 1
		}
		counts[i] = c
	}

	g := 0
	for _, c := range counts {
		g = gcd(g, c)
	}
	total := 0
	for i := range counts {
		counts[i] /= g
		total += counts[i]
	}
	if total > maxSlots {
		scaled := 0
		for i := range counts {
			counts[i] = counts[i] * maxSlots / total
			if counts[i] < 1 {
				counts[i] = 1
			}
			scaled += counts[i]
		}
		total = scaled
	}

	slots := make([]int, 0, total)
	for i, c := range counts {
		for j := 0; j < c; j++ {
			slots = append(slots, i)
		}
	}
	return slots
}

func gcd(a, b int) int {
	for b != 0 {
		a, b = b, a%b
	}
	if a == 0 {
		return 1
	}
	return a
}
