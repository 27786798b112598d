// Copyright (c) 2025 ManuGH
// Licensed under the PolyForm Noncommercial License 1.0.0
// Since v2.0.0, this software is restricted to non-commercial use only.

package probe

import (
	"math"
	"sort"

	"github.com/ManuGH/streamview/internal/domain/analysis"
)

// MaxProbes is the upper bound on probed levels per analysis.
const MaxProbes = 10

// Select returns the IDs of the levels to probe, in ascending bitrate order
// (ties keep declaration order). When more than limit levels exist, limit
// evenly spaced levels are picked, always including the lowest and highest.
// limit is clamped to [1, MaxProbes].
func Select(levels []analysis.BitrateLevel, limit int) []int {
	if len(levels) == 0 {
		return nil
	}
	limit = max(1, min(limit, MaxProbes))

	sorted := make([]analysis.BitrateLevel, len(levels))
	copy(sorted, levels)
	sort.SliceStable(sorted, func(i, j int) bool {
		bi, bj := sorted[i].BitrateOrZero(), sorted[j].BitrateOrZero()
		if bi != bj {
			return bi < bj
		}
		return sorted[i].ID < sorted[j].ID
	})

	n := len(sorted)
	if n <= limit {
		ids := make([]int, n)
		for i, l := range sorted {
			ids[i] = l.ID
		}
		return ids
	}
	if limit == 1 {
		return []int{sorted[0].ID}
	}
	ids := make([]int, 0, limit)
	step := float64(n-1) / float64(limit-1)
	for i := 0; i < limit; i++ {
		ids = append(ids, sorted[int(math.Round(float64(i)*step))].ID)
	}
	return ids
}
