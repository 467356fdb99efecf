package tenant

import (
	"sync"
	"time"

	"alumnet/internal/platform/models"
)

type cachedOrg struct {
	org      *models.Organization
	cachedAt time.Time
}

// orgCache keeps resolved organizations in memory so that per-request tenant
// resolution does not hit the database every time. Counter values are never
// read from the cache; the allocator always reads them inside a transaction.
type orgCache struct {
	store sync.Map // map[code]*cachedOrg
	ttl   time.Duration
}

func newOrgCache(ttl time.Duration) *orgCache {
	return &orgCache{ttl: ttl}
}

func (c *orgCache) get(code string) (*models.Organization, bool) {
	val, ok := c.store.Load(code)
	if !ok {
		return nil, false
	}

	entry := val.(*cachedOrg)
	if time.Since(entry.cachedAt) > c.ttl {
		c.store.Delete(code)
		return nil, false
	}

	return entry.org, true
}

func (c *orgCache) set(code string, org *models.Organization) {
	c.store.Store(code, &cachedOrg{org: org, cachedAt: time.Now()})
}

func (c *orgCache) invalidate(code string) {
	c.store.Delete(code)
}
