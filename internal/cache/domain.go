// Package cache holds the in-process caches used on hot read paths.
package cache

import (
	"context"
	"errors"
	"fmt"
	"time"

	lru "github.com/hashicorp/golang-lru/v2/expirable"

	"github.com/mundorum/harena/internal/apperror"
	"github.com/mundorum/harena/internal/model"
)

// InstitutionLookup is the storage query behind the cache.
type InstitutionLookup interface {
	GetInstitutionByDomain(ctx context.Context, domain string) (*model.Institution, error)
}

// DomainCache maps email domains to institutions. Every sign-in performs
// this lookup and the table changes only through the admin CLI, so
// entries live for ttl and misses are cached as well (nil institution).
//
// A domain added from another process becomes visible here after at most
// ttl. Invalidate drops an entry immediately for same-process changes.
type DomainCache struct {
	lookup InstitutionLookup
	lru    *lru.LRU[string, *model.Institution]
}

// NewDomainCache creates a cache holding up to size domains for ttl.
func NewDomainCache(lookup InstitutionLookup, size int, ttl time.Duration) *DomainCache {
	if size <= 0 {
		size = 1024
	}
	if ttl <= 0 {
		ttl = 5 * time.Minute
	}
	return &DomainCache{
		lookup: lookup,
		lru:    lru.NewLRU[string, *model.Institution](size, nil, ttl),
	}
}

// Resolve returns the institution owning domain, or nil when no
// institution claims it. Only storage failures are returned as errors.
func (c *DomainCache) Resolve(ctx context.Context, domain string) (*model.Institution, error) {
	if domain == "" {
		return nil, nil
	}
	if inst, ok := c.lru.Get(domain); ok {
		return inst, nil
	}

	inst, err := c.lookup.GetInstitutionByDomain(ctx, domain)
	if err != nil {
		if errors.Is(err, apperror.ErrNotFound) {
			c.lru.Add(domain, nil)
			return nil, nil
		}
		return nil, fmt.Errorf("cache: resolving domain %q: %w", domain, err)
	}

	c.lru.Add(domain, inst)
	return inst, nil
}

// Invalidate forgets whatever is cached for domain.
func (c *DomainCache) Invalidate(domain string) {
	c.lru.Remove(domain)
}

// Len reports the number of cached domains, expired entries excluded.
func (c *DomainCache) Len() int {
	return c.lru.Len()
}
