// Package drift monitors input distribution shift between a reference
// window and the current window using population stability index (PSI).
// Drift does not block classification; it signals that the model and
// calibration are going stale.
package drift

import (
	"math"
	"sort"
)

// smoothing keeps log ratios finite for buckets empty on one side.
const smoothing = 1e-4

// maxCategories bounds the counterparty distribution; everything past
// the top reference categories pools into a single remainder bucket so
// a long tail of one-off vendors does not dominate the index.
const maxCategories = 25

// distribution normalizes raw counts into shares.
func distribution(counts map[string]int) map[string]float64 {
	var total int
	for _, n := range counts {
		total += n
	}
	if total == 0 {
		return map[string]float64{}
	}
	dist := make(map[string]float64, len(counts))
	for k, n := range counts {
		dist[k] = float64(n) / float64(total)
	}
	return dist
}

// psi computes the population stability index between a reference and a
// current distribution over the union of their buckets. Identical
// distributions score 0; fully disjoint ones score far above any sane
// threshold.
func psi(reference, current map[string]float64) float64 {
	keys := make(map[string]struct{}, len(reference)+len(current))
	for k := range reference {
		keys[k] = struct{}{}
	}
	for k := range current {
		keys[k] = struct{}{}
	}

	var index float64
	for k := range keys {
		p := reference[k]
		q := current[k]
		if p <= 0 {
			p = smoothing
		}
		if q <= 0 {
			q = smoothing
		}
		index += (q - p) * math.Log(q/p)
	}
	return index
}

// poolTail keeps the top reference categories and folds the rest of
// both sides into a shared remainder bucket.
func poolTail(reference, current map[string]int) (map[string]int, map[string]int) {
	if len(reference) <= maxCategories {
		return reference, current
	}

	type entry struct {
		key   string
		count int
	}
	ranked := make([]entry, 0, len(reference))
	for k, n := range reference {
		ranked = append(ranked, entry{k, n})
	}
	sort.Slice(ranked, func(i, j int) bool {
		if ranked[i].count != ranked[j].count {
			return ranked[i].count > ranked[j].count
		}
		return ranked[i].key < ranked[j].key
	})

	keep := make(map[string]struct{}, maxCategories)
	for _, e := range ranked[:maxCategories] {
		keep[e.key] = struct{}{}
	}

	pool := func(counts map[string]int) map[string]int {
		pooled := make(map[string]int, maxCategories+1)
		for k, n := range counts {
			if _, ok := keep[k]; ok {
				pooled[k] += n
			} else {
				pooled["__other__"] += n
			}
		}
		return pooled
	}
	return pool(reference), pool(current)
}
