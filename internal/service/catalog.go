package service

import (
	"context"
	"errors"
	"strconv"
	"time"

	"github.com/zeromicro/go-zero/core/collection"

	"github.com/iliyamo/seat-ticketing/internal/errno"
	"github.com/iliyamo/seat-ticketing/internal/model"
	"github.com/iliyamo/seat-ticketing/internal/repository"
)

// CatalogStore is the persistent catalog.
type CatalogStore interface {
	GetProgram(ctx context.Context, programID int64) (model.Program, error)
	ListTicketCategories(ctx context.Context, programID int64) ([]model.TicketCategory, error)
}

// CachedCatalog keeps programs and their ticket categories in process
// memory for a short TTL. Concurrent misses on one key share a single
// load.
type CachedCatalog struct {
	store      CatalogStore
	programs   *collection.Cache
	categories *collection.Cache
}

func NewCachedCatalog(store CatalogStore, ttl time.Duration, limit int) (*CachedCatalog, error) {
	programs, err := collection.NewCache(ttl, collection.WithLimit(limit), collection.WithName("program"))
	if err != nil {
		return nil, err
	}
	categories, err := collection.NewCache(ttl, collection.WithLimit(limit), collection.WithName("ticket_category"))
	if err != nil {
		return nil, err
	}
	return &CachedCatalog{store: store, programs: programs, categories: categories}, nil
}

func (c *CachedCatalog) Program(ctx context.Context, programID int64) (model.Program, error) {
	v, err := c.programs.Take(strconv.FormatInt(programID, 10), func() (any, error) {
		p, err := c.store.GetProgram(ctx, programID)
		if errors.Is(err, repository.ErrNotFound) {
			return nil, errno.ErrProgramNotFound
		}
		return p, err
	})
	if err != nil {
		return model.Program{}, err
	}
	return v.(model.Program), nil
}

func (c *CachedCatalog) TicketCategories(ctx context.Context, programID int64) ([]model.TicketCategory, error) {
	v, err := c.categories.Take(strconv.FormatInt(programID, 10), func() (any, error) {
		return c.store.ListTicketCategories(ctx, programID)
	})
	if err != nil {
		return nil, err
	}
	return v.([]model.TicketCategory), nil
}

// Forget drops a program from the cache, e.g. after it was edited.
func (c *CachedCatalog) Forget(programID int64) {
	key := strconv.FormatInt(programID, 10)
	c.programs.Del(key)
	c.categories.Del(key)
}
