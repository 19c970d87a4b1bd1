// Package units serves the police unit hierarchy used by the report wizard's
// location step and the dashboard's forward action.
package units

import (
	"context"
	"time"

	"github.com/citizenintel/portal/internal/cache"
	"github.com/citizenintel/portal/internal/model"
	"go.uber.org/zap"
	"golang.org/x/sync/singleflight"
)

// DefaultTTL is how long a fetched hierarchy is served before refetching.
const DefaultTTL = 10 * time.Minute

const hierarchyKey = "hierarchy"

// Source fetches the hierarchy from the API.
type Source interface {
	UnitHierarchy(ctx context.Context) (*model.UnitHierarchy, error)
}

// Directory caches the unit hierarchy and collapses concurrent loads.
type Directory struct {
	src    Source
	cache  *cache.TTL[string, model.UnitHierarchy]
	group  singleflight.Group
	logger *zap.Logger
}

// NewDirectory returns a Directory backed by src.
func NewDirectory(src Source, ttl time.Duration, logger *zap.Logger) *Directory {
	if ttl <= 0 {
		ttl = DefaultTTL
	}
	if logger == nil {
		logger = zap.NewNop()
	}
	return &Directory{
		src:    src,
		cache:  cache.New[string, model.UnitHierarchy](ttl),
		logger: logger,
	}
}

// Hierarchy returns the unit hierarchy. When the API cannot be reached the
// built-in Fallback hierarchy is returned with fallback set; it is not
// cached, so the next call tries the API again.
func (d *Directory) Hierarchy(ctx context.Context) (h model.UnitHierarchy, fallback bool) {
	if h, ok := d.cache.Get(hierarchyKey); ok {
		return h, false
	}

	v, err, _ := d.group.Do(hierarchyKey, func() (any, error) {
		got, err := d.src.UnitHierarchy(context.WithoutCancel(ctx))
		if err != nil {
			return nil, err
		}
		d.cache.Set(hierarchyKey, *got)
		return *got, nil
	})
	if err != nil {
		d.logger.Warn("unit hierarchy unavailable, using fallback units", zap.Error(err))
		return Fallback(), true
	}
	return v.(model.UnitHierarchy), false
}

// Units returns every unit as one flat list, districts first.
func (d *Directory) Units(ctx context.Context) []model.Unit {
	h, _ := d.Hierarchy(ctx)
	return h.Flatten()
}

// Lookup finds a unit by id.
func (d *Directory) Lookup(ctx context.Context, id string) (model.Unit, bool) {
	for _, u := range d.Units(ctx) {
		if u.ID == id {
			return u, true
		}
	}
	return model.Unit{}, false
}

// Fallback is the hierarchy shown when the API is down.
func Fallback() model.UnitHierarchy {
	return model.UnitHierarchy{
		Districts: []model.Unit{
			{ID: "d1", Name: "New Delhi"},
			{ID: "d2", Name: "South Delhi"},
		},
		PoliceStations: []model.Unit{
			{ID: "ps1", Name: "Chanakyapuri"},
			{ID: "ps2", Name: "Hauz Khas"},
		},
	}
}
