package ledger

import (
	"fmt"

	"github.com/iliyamo/seat-ticketing/internal/model"
)

// Keys names the cache structures of one deployment.
type Keys struct {
	Prefix string
}

// RemainNumber is the hash {categoryId: remain} of one ticket category.
func (k Keys) RemainNumber(programID, categoryID int64) string {
	return fmt.Sprintf("%sprogram:ticket:remain:number:hash:%d:%d", k.Prefix, programID, categoryID)
}

// SeatBucket is the hash {seatId: seat JSON} of one category's seats in
// one sell state.
func (k Keys) SeatBucket(status model.SellStatus, programID, categoryID int64) string {
	var state string
	switch status {
	case model.SellStatusLock:
		state = "lock"
	case model.SellStatusSold:
		state = "sold"
	default:
		state = "no_sold"
	}
	return fmt.Sprintf("%sprogram:seat:%s:hash:%d:%d", k.Prefix, state, programID, categoryID)
}

func (k Keys) seatBuckets(programID, categoryID int64) []string {
	return []string{
		k.SeatBucket(model.SellStatusNoSold, programID, categoryID),
		k.SeatBucket(model.SellStatusLock, programID, categoryID),
		k.SeatBucket(model.SellStatusSold, programID, categoryID),
	}
}
