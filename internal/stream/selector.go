// Copyright (c) 2025 ManuGH
// Licensed under the PolyForm Noncommercial License 1.0.0
// Since v2.0.0, this software is restricted to non-commercial use only.

package stream

// PickBest returns the highest-ranked non-audio-only variant. Ties on
// Ordinal go to the label that sorts last, so the result does not depend on
// input order. ok is false when nothing usable remains.
func PickBest(variants []Variant) (best Variant, ok bool) {
	for _, v := range variants {
		if v.AudioOnly {
			continue
		}
		if !ok || better(v, best) {
			best = v
			ok = true
		}
	}
	return best, ok
}

func better(a, b Variant) bool {
	if a.Ordinal != b.Ordinal {
		return a.Ordinal > b.Ordinal
	}
	return a.Label > b.Label
}

// IsUpgrade reports whether candidate ranks strictly above current. Relabeled
// variants with the same ordinal are never an upgrade.
func IsUpgrade(current, candidate Variant) bool {
	return candidate.Ordinal > current.Ordinal
}
