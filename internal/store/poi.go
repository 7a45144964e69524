package store

import (
	"context"
	"encoding/json"
	"fmt"
	"log/slog"
	"time"

	"github.com/albapepper/arrival/internal/arrival"
	"github.com/albapepper/arrival/internal/cache"
	"github.com/albapepper/arrival/internal/db"
)

// POIStore loads restaurants and valet locations as one list.
type POIStore struct {
	db DBTX
}

func NewPOIStore(db DBTX) *POIStore {
	return &POIStore{db: db}
}

func (s *POIStore) AllPointsOfInterest(ctx context.Context) ([]arrival.POI, error) {
	rows, err := s.db.Query(ctx, db.StmtAllPOIs)
	if err != nil {
		return nil, fmt.Errorf("query points of interest: %w", err)
	}
	defer rows.Close()

	var pois []arrival.POI
	for rows.Next() {
		var (
			p        arrival.POI
			kind     string
			metadata []byte
		)
		if err := rows.Scan(&p.ID, &p.Name, &p.Latitude, &p.Longitude, &kind, &metadata); err != nil {
			return nil, fmt.Errorf("scan point of interest: %w", err)
		}
		p.Kind = arrival.POIKind(kind)
		meta, err := decodeMetadata(metadata)
		if err != nil {
			slog.Warn("Ignoring unreadable POI metadata", "poi_id", p.ID, "kind", kind, "error", err)
		}
		p.Metadata = meta
		pois = append(pois, p)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("iterate points of interest: %w", err)
	}
	return pois, nil
}

// decodeMetadata flattens a JSON object into strings. Non-string values keep
// their JSON text, so {"capacity": 40} becomes "40".
func decodeMetadata(raw []byte) (map[string]string, error) {
	if len(raw) == 0 {
		return nil, nil
	}
	var fields map[string]json.RawMessage
	if err := json.Unmarshal(raw, &fields); err != nil {
		return nil, err
	}
	if fields == nil {
		return nil, nil
	}
	meta := make(map[string]string, len(fields))
	for k, v := range fields {
		var str string
		if err := json.Unmarshal(v, &str); err == nil {
			meta[k] = str
			continue
		}
		meta[k] = string(v)
	}
	return meta, nil
}

// --------------------------------------------------------------------------
// Cached provider
// --------------------------------------------------------------------------

const poiCacheKey = "all_pois"

// CachedPOIs serves the POI list from memory until the TTL expires or the
// listener invalidates it.
type CachedPOIs struct {
	next  arrival.POIProvider
	cache *cache.Cache[[]arrival.POI]
	ttl   time.Duration
}

func NewCachedPOIs(next arrival.POIProvider, c *cache.Cache[[]arrival.POI], ttl time.Duration) *CachedPOIs {
	return &CachedPOIs{next: next, cache: c, ttl: ttl}
}

func (c *CachedPOIs) AllPointsOfInterest(ctx context.Context) ([]arrival.POI, error) {
	if pois, ok := c.cache.Get(poiCacheKey); ok {
		return pois, nil
	}
	pois, err := c.next.AllPointsOfInterest(ctx)
	if err != nil {
		return nil, err
	}
	c.cache.Set(poiCacheKey, pois, c.ttl)
	return pois, nil
}

// Invalidate forces the next call to reload from the source.
func (c *CachedPOIs) Invalidate() {
	c.cache.Delete(poiCacheKey)
}
