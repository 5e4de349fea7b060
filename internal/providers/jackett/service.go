// Copyright (c) 2026, the fetcharr contributors.
// SPDX-License-Identifier: GPL-2.0-or-later

package jackett

import (
	"context"
	"errors"
	"fmt"
	"net/url"
	"sort"
	"strings"
	"sync/atomic"
	"time"

	"github.com/autobrr/autobrr/pkg/ttlcache"
	"github.com/moistari/rls"
	"github.com/rs/zerolog"

	"github.com/fetcharr/fetcharr/internal/resolver"
)

// ErrSearchTimeout reports that the overall search budget elapsed before the
// broker answered. Distinct from per-result resolution timeouts.
var ErrSearchTimeout = errors.New("jackett: search deadline exceeded")

const (
	defaultMaxResults    = 200
	defaultSearchTimeout = 25 * time.Second
	searchCacheTTL       = 5 * time.Minute
)

// SearchStats is the observability hook for the search path. A nil value
// disables reporting.
type SearchStats interface {
	SearchCacheHit()
	SearchCompleted(results int)
}

// Service is the high-level search surface. It queries the broker, folds the
// raw hits into deduplicated SearchResults and recovers magnets for opaque
// download links through the shared resolver.
type Service struct {
	client        *Client
	resolver      *resolver.CachedResolver
	searchCache   *ttlcache.Cache[string, []SearchResult]
	maxResults    atomic.Int64
	searchTimeout time.Duration
	stats         SearchStats
	log           zerolog.Logger
}

// ServiceOptions configures a Service. Client is required.
type ServiceOptions struct {
	Client   *Client
	Resolver *resolver.CachedResolver
	// MaxResults caps the raw hits considered per search (default 200).
	MaxResults int
	// SearchTimeout is the overall budget for one Search call (default 25s).
	SearchTimeout time.Duration
	Stats         SearchStats
	Logger        zerolog.Logger
}

func NewService(opts ServiceOptions) *Service {
	if opts.MaxResults <= 0 {
		opts.MaxResults = defaultMaxResults
	}
	if opts.SearchTimeout <= 0 {
		opts.SearchTimeout = defaultSearchTimeout
	}

	s := &Service{
		client:        opts.Client,
		resolver:      opts.Resolver,
		searchCache:   ttlcache.New(ttlcache.Options[string, []SearchResult]{}.SetDefaultTTL(searchCacheTTL)),
		searchTimeout: opts.SearchTimeout,
		stats:         opts.Stats,
		log:           opts.Logger,
	}
	s.maxResults.Store(int64(opts.MaxResults))
	return s
}

// SetMaxResults adjusts the result cap at runtime, for config reloads.
// Values <= 0 are ignored. Already cached responses keep their old size
// until they expire.
func (s *Service) SetMaxResults(n int) {
	if n <= 0 {
		return
	}
	if old := s.maxResults.Swap(int64(n)); old != int64(n) {
		s.log.Debug().Int("maxResults", n).Msg("result cap updated")
	}
}

// Search runs one query against the broker and returns deduplicated results
// ordered by seeders descending. Responses are cached briefly so repeated
// identical queries do not re-hit the indexers.
func (s *Service) Search(ctx context.Context, query, category, indexer string) ([]SearchResult, error) {
	key := searchCacheKey(query, category, indexer)
	if cached, ok := s.searchCache.Get(key); ok {
		if s.stats != nil {
			s.stats.SearchCacheHit()
		}
		s.log.Debug().Str("query", query).Int("results", len(cached)).Msg("search served from cache")
		return cached, nil
	}

	sctx, cancel := context.WithTimeout(ctx, s.searchTimeout)
	defer cancel()

	raw, err := s.client.Results(sctx, query, category, indexer)
	if err != nil {
		if errors.Is(err, context.DeadlineExceeded) && ctx.Err() == nil {
			return nil, fmt.Errorf("%w: %s", ErrSearchTimeout, query)
		}
		return nil, err
	}

	results := s.fold(raw)
	s.searchCache.Set(key, results, ttlcache.DefaultTTL)
	if s.stats != nil {
		s.stats.SearchCompleted(len(results))
	}
	s.log.Info().Str("query", query).Int("raw", len(raw)).Int("results", len(results)).Msg("search completed")
	return results, nil
}

// MagnetFor returns the magnet URI for one search result, walking the opaque
// download link when the indexer did not hand one over directly.
func (s *Service) MagnetFor(ctx context.Context, res SearchResult) (string, error) {
	if res.Magnet != "" {
		return res.Magnet, nil
	}
	if res.DownloadURL == "" {
		return "", resolver.ErrNoMagnet
	}
	return s.resolver.ResolveCached(ctx, res.DownloadURL)
}

// ListIndexers returns the indexers configured on the broker.
func (s *Service) ListIndexers(ctx context.Context) ([]IndexerInfo, error) {
	return s.client.Indexers(ctx)
}

// fold normalizes raw hits, collapses duplicates and orders by seeders. The
// dedup key is (normalized title, size); the survivor keeps the highest
// seeder count, first seen winning ties.
func (s *Service) fold(raw []rawResult) []SearchResult {
	limit := int(s.maxResults.Load())

	// An "all" query can return thousands of hits; truncating before the
	// per-hit title parsing keeps the tail latency bounded.
	if len(raw) > limit {
		raw = raw[:limit]
	}

	type dedupKey struct {
		title string
		size  int64
	}

	order := make([]dedupKey, 0, len(raw))
	best := make(map[dedupKey]SearchResult, len(raw))

	for _, rr := range raw {
		res := toSearchResult(rr)
		if res.Title == "" || !res.Actionable() {
			continue
		}

		key := dedupKey{title: res.NormalizedTitle, size: res.SizeBytes}
		prev, seen := best[key]
		if !seen {
			order = append(order, key)
			best[key] = res
			continue
		}
		if res.Seeders > prev.Seeders {
			best[key] = res
		}
	}

	results := make([]SearchResult, 0, len(order))
	for _, key := range order {
		results = append(results, best[key])
	}

	sort.SliceStable(results, func(i, j int) bool {
		return results[i].Seeders > results[j].Seeders
	})

	if len(results) > limit {
		results = results[:limit]
	}
	return results
}

// publishDateLayouts covers the timestamp shapes Jackett emits across
// indexer implementations.
var publishDateLayouts = []string{
	time.RFC3339Nano,
	time.RFC3339,
	"2006-01-02T15:04:05",
	"2006-01-02 15:04:05",
}

func toSearchResult(rr rawResult) SearchResult {
	res := SearchResult{
		Title:           rr.Title,
		NormalizedTitle: NormalizeTitle(rr.Title),
		SizeBytes:       rr.Size,
		Seeders:         -1,
		Leechers:        -1,
		Tracker:         rr.Tracker,
	}
	if res.SizeBytes < 0 {
		res.SizeBytes = 0
	}
	if rr.Seeders != nil {
		res.Seeders = *rr.Seeders
	}
	if rr.Peers != nil {
		res.Leechers = *rr.Peers
	}

	for _, layout := range publishDateLayouts {
		if ts, err := time.Parse(layout, rr.PublishDate); err == nil {
			res.PublishedAt = ts
			break
		}
	}

	switch {
	case rr.MagnetUri != "":
		res.Magnet = rr.MagnetUri
	case strings.HasPrefix(rr.Link, "magnet:"):
		res.Magnet = rr.Link
	case strings.HasPrefix(rr.Guid, "magnet:"):
		res.Magnet = rr.Guid
	case rr.InfoHash != "":
		// QueryEscape emits '+' for spaces; magnets in the wild use %20.
		res.Magnet = fmt.Sprintf("magnet:?xt=urn:btih:%s&dn=%s",
			strings.ToLower(rr.InfoHash),
			strings.ReplaceAll(url.QueryEscape(rr.Title), "+", "%20"))
	default:
		res.DownloadURL = rr.Link
	}

	release := rls.ParseString(rr.Title)
	res.Source = release.Source
	res.Resolution = release.Resolution
	res.Group = release.Group

	return res
}

func searchCacheKey(query, category, indexer string) string {
	return strings.ToLower(strings.TrimSpace(query)) + "\x00" + category + "\x00" + indexer
}
