package service

import (
	"context"
	"errors"

	"github.com/zeromicro/go-zero/core/logx"

	"github.com/iliyamo/seat-ticketing/internal/errno"
	"github.com/iliyamo/seat-ticketing/internal/repository"
)

// InventoryInvalidator drops the cached inventory of a ticket category.
type InventoryInvalidator interface {
	Invalidate(ctx context.Context, programID, categoryID int64) error
}

// ProgramRefresher drops every cached view of a program after it was edited
// in the catalog, so the next order loads it again.
type ProgramRefresher struct {
	store     CatalogStore
	catalog   *CachedCatalog
	inventory InventoryInvalidator
}

func NewProgramRefresher(store CatalogStore, catalog *CachedCatalog, inventory InventoryInvalidator) *ProgramRefresher {
	return &ProgramRefresher{store: store, catalog: catalog, inventory: inventory}
}

// Refresh forgets the program metadata and invalidates the inventory of
// each of its ticket categories as the store lists them now.
func (r *ProgramRefresher) Refresh(ctx context.Context, programID int64) error {
	if _, err := r.store.GetProgram(ctx, programID); err != nil {
		if errors.Is(err, repository.ErrNotFound) {
			return errno.ErrProgramNotFound
		}
		return err
	}
	categories, err := r.store.ListTicketCategories(ctx, programID)
	if err != nil {
		return err
	}

	r.catalog.Forget(programID)
	for _, c := range categories {
		if err := r.inventory.Invalidate(ctx, programID, c.ID); err != nil {
			return err
		}
	}
	logx.WithContext(ctx).Infof("program %d refreshed, %d ticket categories invalidated", programID, len(categories))
	return nil
}
