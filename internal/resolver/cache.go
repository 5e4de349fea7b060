// Copyright (c) 2026, the fetcharr contributors.
// SPDX-License-Identifier: GPL-2.0-or-later

package resolver

import (
	"context"
	"time"

	"github.com/hashicorp/golang-lru/v2/expirable"
	"github.com/rs/zerolog"
	"golang.org/x/sync/singleflight"
)

const (
	defaultCacheSize     = 1000
	defaultCacheTTL      = 5 * time.Minute
	defaultFlightTimeout = 2 * time.Minute
)

// Stats is the observability hook for the cache layer. Implementations must
// be safe for concurrent use; a nil Stats disables reporting.
type Stats interface {
	CacheHit()
	ResolveOutcome(outcome string)
}

// Outcome labels reported through Stats.
const (
	OutcomeSuccess  = "success"
	OutcomeNegative = "negative"
	OutcomeRetry    = "retryable"
)

// outcome is a settled resolution. An empty magnet is a cached negative
// result, distinct from a cache miss.
type outcome struct {
	magnet string
}

// Resolving is the part of Resolver the cache layer depends on.
type Resolving interface {
	Resolve(ctx context.Context, startURL string) (string, error)
}

// CacheOptions configures a CachedResolver.
type CacheOptions struct {
	// Size bounds the LRU (default 1000 entries).
	Size int
	// TTL expires entries (default 5m). The clock resets on write only.
	TTL time.Duration
	// FlightTimeout is the overall budget for one shared resolution once it
	// is detached from the caller that started it (default 2m).
	FlightTimeout time.Duration
	Logger        zerolog.Logger
	Stats         Stats
}

// CachedResolver memoizes resolution outcomes per URL and coalesces
// concurrent requests for the same URL into a single upstream walk. One
// instance is owned per provider adapter; there is no process-wide state.
type CachedResolver struct {
	resolver      Resolving
	cache         *expirable.LRU[string, outcome]
	group         singleflight.Group
	flightTimeout time.Duration
	log           zerolog.Logger
	stats         Stats
}

func NewCached(r Resolving, opts CacheOptions) *CachedResolver {
	if opts.Size <= 0 {
		opts.Size = defaultCacheSize
	}
	if opts.TTL <= 0 {
		opts.TTL = defaultCacheTTL
	}
	if opts.FlightTimeout <= 0 {
		opts.FlightTimeout = defaultFlightTimeout
	}

	return &CachedResolver{
		resolver:      r,
		cache:         expirable.NewLRU[string, outcome](opts.Size, nil, opts.TTL),
		flightTimeout: opts.FlightTimeout,
		log:           opts.Logger,
		stats:         opts.Stats,
	}
}

// ResolveCached returns the magnet for url, hitting the network at most once
// per distinct URL at any moment regardless of caller count. A cached
// negative entry returns ("", ErrNoMagnet) with zero network activity.
func (c *CachedResolver) ResolveCached(ctx context.Context, url string) (string, error) {
	if out, ok := c.cache.Get(url); ok {
		c.reportHit()
		if out.magnet == "" {
			return "", ErrNoMagnet
		}
		return out.magnet, nil
	}

	ch := c.group.DoChan(url, func() (any, error) {
		return c.resolveAndStore(ctx, url)
	})

	select {
	case <-ctx.Done():
		// The shared flight keeps running for the other waiters.
		return "", ctx.Err()
	case res := <-ch:
		if res.Err != nil {
			return "", res.Err
		}
		return res.Val.(string), nil
	}
}

func (c *CachedResolver) resolveAndStore(ctx context.Context, url string) (string, error) {
	// Detach from the initiating caller: cancelling it must not cancel the
	// resolution other coalesced callers are waiting on.
	fctx, cancel := context.WithTimeout(context.WithoutCancel(ctx), c.flightTimeout)
	defer cancel()

	magnet, err := c.resolver.Resolve(fctx, url)
	switch {
	case err == nil:
		c.cache.Add(url, outcome{magnet: magnet})
		c.reportOutcome(OutcomeSuccess)
		return magnet, nil
	case Definitive(err):
		// Negative entry: repeated lookups within the TTL skip a known
		// broken upstream.
		c.cache.Add(url, outcome{})
		c.reportOutcome(OutcomeNegative)
		c.log.Debug().Err(err).Str("url", url).Msg("caching negative resolution")
		return "", err
	default:
		c.reportOutcome(OutcomeRetry)
		c.log.Debug().Err(err).Str("url", url).Msg("resolution failed, not cached")
		return "", err
	}
}

func (c *CachedResolver) reportHit() {
	if c.stats != nil {
		c.stats.CacheHit()
	}
}

func (c *CachedResolver) reportOutcome(o string) {
	if c.stats != nil {
		c.stats.ResolveOutcome(o)
	}
}
