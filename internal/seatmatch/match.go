// Package seatmatch picks adjacent seats for auto-assigned orders.
package seatmatch

import (
	"cmp"
	"slices"

	"github.com/iliyamo/seat-ticketing/internal/model"
)

// FindAdjacent returns count seats sitting next to each other in one row,
// scanning rows and columns in ascending order. When no row has enough
// consecutive seats it returns the longest run found, so the caller sees
// fewer than count seats and rejects the order.
func FindAdjacent(seats []model.Seat, count int) []model.Seat {
	if count <= 0 || len(seats) == 0 {
		return nil
	}
	sorted := slices.Clone(seats)
	slices.SortFunc(sorted, func(a, b model.Seat) int {
		if c := cmp.Compare(a.RowCode, b.RowCode); c != 0 {
			return c
		}
		return cmp.Compare(a.ColCode, b.ColCode)
	})

	var best []model.Seat
	start := 0
	for i := 1; i <= len(sorted); i++ {
		if i < len(sorted) &&
			sorted[i].RowCode == sorted[i-1].RowCode &&
			sorted[i].ColCode == sorted[i-1].ColCode+1 {
			if i-start+1 == count {
				return sorted[start : i+1]
			}
			continue
		}
		// run [start, i) ended
		if i-start > len(best) {
			best = sorted[start:i]
		}
		if len(best) >= count {
			return best[:count]
		}
		start = i
	}
	return best
}
