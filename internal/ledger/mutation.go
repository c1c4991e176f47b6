package ledger

import (
	"context"
	_ "embed"
	"encoding/json"
	"fmt"
	"slices"
	"strconv"

	"github.com/redis/go-redis/v9"

	"github.com/iliyamo/seat-ticketing/internal/errno"
	"github.com/iliyamo/seat-ticketing/internal/model"
)

var (
	//go:embed scripts/apply.lua
	applyLua    string
	applyScript = redis.NewScript(applyLua)
)

// Result codes returned by the apply script.
const (
	ResultOK               = 0
	ResultCounterNotCached = 1
	ResultInsufficient     = 2
	ResultSeatNotInSource  = 3
	ResultSeatGuarded      = 4
)

// Operation markers passed as the first script key.
const (
	OpReserve = "reserve"
	OpRelease = "release"
)

type CounterDelta struct {
	CounterKey string `json:"counterKey"`
	CategoryID string `json:"categoryId"`
	Delta      int64  `json:"delta"`
}

// SeatRemoval takes seats out of FromKey. A seat found in any of GuardKeys
// rejects the whole mutation.
type SeatRemoval struct {
	FromKey   string   `json:"fromKey"`
	SeatIDs   []string `json:"seatIds"`
	GuardKeys []string `json:"guardKeys,omitempty"`
}

// SeatAddition writes a seat into ToKey, which then takes the remaining
// ttl of TTLKey.
type SeatAddition struct {
	ToKey   string `json:"toKey"`
	SeatID  string `json:"seatId"`
	Payload string `json:"payload"`
	TTLKey  string `json:"ttlKey"`
}

// Mutation is everything one reserve or release changes. It is applied as
// a single script call: either every part lands or none does.
type Mutation struct {
	Op        string
	Counters  []CounterDelta
	Removals  []SeatRemoval
	Additions []SeatAddition
}

func (m Mutation) keys() []string {
	keys := []string{m.Op}
	for _, c := range m.Counters {
		keys = append(keys, c.CounterKey)
	}
	for _, r := range m.Removals {
		keys = append(keys, r.FromKey)
		keys = append(keys, r.GuardKeys...)
	}
	for _, a := range m.Additions {
		keys = append(keys, a.ToKey)
	}
	seen := make(map[string]struct{}, len(keys))
	return slices.DeleteFunc(keys, func(k string) bool {
		_, dup := seen[k]
		seen[k] = struct{}{}
		return dup
	})
}

// move builds the mutation that shifts seats from one sell state to
// another and adjusts each category counter by sign per seat. A seat
// cached in any of the guarded states fails the move.
func (k Keys) move(op string, programID int64, seats []model.Seat, from, to model.SellStatus, sign int64, guarded ...model.SellStatus) (Mutation, error) {
	m := Mutation{
		Op:        op,
		Counters:  []CounterDelta{},
		Removals:  []SeatRemoval{},
		Additions: []SeatAddition{},
	}
	seen := make(map[int64]struct{}, len(seats))
	byCategory := make(map[int64][]model.Seat)
	var order []int64
	for _, s := range seats {
		if _, dup := seen[s.ID]; dup {
			return Mutation{}, errno.ErrInvalidRequest.WithMsg("seat %d listed twice", s.ID)
		}
		seen[s.ID] = struct{}{}
		if _, ok := byCategory[s.TicketCategoryID]; !ok {
			order = append(order, s.TicketCategoryID)
		}
		byCategory[s.TicketCategoryID] = append(byCategory[s.TicketCategoryID], s)
	}
	slices.Sort(order)

	for _, cid := range order {
		group := byCategory[cid]
		counterKey := k.RemainNumber(programID, cid)
		m.Counters = append(m.Counters, CounterDelta{
			CounterKey: counterKey,
			CategoryID: strconv.FormatInt(cid, 10),
			Delta:      sign * int64(len(group)),
		})
		removal := SeatRemoval{FromKey: k.SeatBucket(from, programID, cid)}
		for _, g := range guarded {
			removal.GuardKeys = append(removal.GuardKeys, k.SeatBucket(g, programID, cid))
		}
		for _, s := range group {
			id := strconv.FormatInt(s.ID, 10)
			removal.SeatIDs = append(removal.SeatIDs, id)

			s.SellStatus = to
			payload, err := json.Marshal(s)
			if err != nil {
				return Mutation{}, err
			}
			m.Additions = append(m.Additions, SeatAddition{
				ToKey:   k.SeatBucket(to, programID, cid),
				SeatID:  id,
				Payload: string(payload),
				TTLKey:  counterKey,
			})
		}
		m.Removals = append(m.Removals, removal)
	}
	return m, nil
}

// Apply runs m atomically and returns the seats it moved.
func (l *Ledger) Apply(ctx context.Context, m Mutation) ([]model.Seat, error) {
	counters, err := json.Marshal(m.Counters)
	if err != nil {
		return nil, err
	}
	removals, err := json.Marshal(m.Removals)
	if err != nil {
		return nil, err
	}
	additions, err := json.Marshal(m.Additions)
	if err != nil {
		return nil, err
	}

	res, err := applyScript.Run(ctx, l.rdb, m.keys(), counters, removals, additions).Slice()
	if err != nil {
		return nil, fmt.Errorf("ledger %s: %w", m.Op, err)
	}
	if len(res) == 0 {
		return nil, fmt.Errorf("ledger %s: empty script reply", m.Op)
	}
	code, _ := res[0].(int64)
	switch code {
	case ResultOK:
	case ResultCounterNotCached:
		return nil, errno.ErrTicketCategoryNotFound.WithMsg("remaining count of category is not cached")
	case ResultInsufficient:
		return nil, errno.ErrInventoryInsufficient
	case ResultSeatNotInSource:
		return nil, errno.ErrInventorySeatNotAvailable
	case ResultSeatGuarded:
		return nil, errno.ErrOperationNotPermitted.WithMsg("seat is sold")
	default:
		return nil, fmt.Errorf("ledger %s: unexpected result code %d", m.Op, code)
	}

	moved := make([]model.Seat, 0, len(res)-1)
	for _, raw := range res[1:] {
		s, _ := raw.(string)
		var seat model.Seat
		if err := json.Unmarshal([]byte(s), &seat); err != nil {
			return nil, fmt.Errorf("ledger %s: decode moved seat: %w", m.Op, err)
		}
		moved = append(moved, seat)
	}
	return moved, nil
}
