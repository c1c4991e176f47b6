package service

import (
	"context"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/iliyamo/seat-ticketing/internal/errno"
	"github.com/iliyamo/seat-ticketing/internal/model"
)

func TestRefreshDropsCachedProgram(t *testing.T) {
	h := newHarness(t)
	catalog, err := NewCachedCatalog(h.store, time.Minute, 10)
	require.NoError(t, err)
	r := NewProgramRefresher(h.store, catalog, h.ledger)
	ctx := context.Background()

	h.warm(t)
	_, err = catalog.Program(ctx, programID)
	require.NoError(t, err)
	hits := h.store.programHit.Load()

	// one ticket of category 1 is taken off sale in the catalog
	h.store.categories[0].RemainNumber = 2
	require.NoError(t, r.Refresh(ctx, programID))
	for _, fields := range h.state() {
		assert.Empty(t, fields)
	}

	_, err = catalog.Program(ctx, programID)
	require.NoError(t, err)
	assert.Equal(t, hits+2, h.store.programHit.Load(), "refresh check plus one reload")

	n, err := h.ledger.RemainNumber(ctx, programID, 1, time.Hour)
	require.NoError(t, err)
	assert.Equal(t, int64(2), n)
}

func TestRefreshUnknownProgram(t *testing.T) {
	h := newHarness(t)
	catalog, err := NewCachedCatalog(h.store, time.Minute, 10)
	require.NoError(t, err)
	r := NewProgramRefresher(h.store, catalog, h.ledger)
	assert.ErrorIs(t, r.Refresh(context.Background(), 77), errno.ErrProgramNotFound)
}

func TestRefreshThenOrder(t *testing.T) {
	h := newHarness(t)
	catalog, err := NewCachedCatalog(h.store, time.Minute, 10)
	require.NoError(t, err)
	r := NewProgramRefresher(h.store, catalog, h.ledger)
	ctx := context.Background()

	_, err = h.svc.Create(ctx, manual(7, model.SeatSelection{TicketCategoryID: 1, RowCode: 1, ColCode: 1, PriceCents: 5000}))
	require.NoError(t, err)
	require.NoError(t, r.Refresh(ctx, programID))

	_, err = h.svc.Create(ctx, manual(8, model.SeatSelection{TicketCategoryID: 1, RowCode: 1, ColCode: 2, PriceCents: 5000}))
	require.NoError(t, err)
	assert.Equal(t, "2", h.remain(1))
}
