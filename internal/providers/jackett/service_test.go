// Copyright (c) 2026, the fetcharr contributors.
// SPDX-License-Identifier: GPL-2.0-or-later

package jackett

import (
	"context"
	"fmt"
	"net/http"
	"net/http/httptest"
	"sync/atomic"
	"testing"
	"time"

	"github.com/rs/zerolog"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/fetcharr/fetcharr/internal/resolver"
)

const testMagnet = "magnet:?xt=urn:btih:0123456789abcdef0123456789abcdef01234567&dn=test"

func newTestService(t *testing.T, handler http.Handler, opts ServiceOptions) (*Service, *httptest.Server) {
	t.Helper()
	srv := httptest.NewServer(handler)
	t.Cleanup(srv.Close)

	client, err := NewClient(srv.URL, "secret", time.Second, zerolog.Nop())
	require.NoError(t, err)
	opts.Client = client
	return NewService(opts), srv
}

func resultsJSON(results string) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		fmt.Fprintf(w, `{"Results":[%s]}`, results)
	}
}

func TestSearch_DuplicatesKeepMaxSeeders(t *testing.T) {
	svc, _ := newTestService(t, resultsJSON(`
		{"Title":"Show.S01E01.1080p [GROUP-A]","Tracker":"a","Size":1000,"Seeders":5,"MagnetUri":"magnet:?xt=urn:btih:aa"},
		{"Title":"Show S01E01 1080p","Tracker":"b","Size":1000,"Seeders":50,"MagnetUri":"magnet:?xt=urn:btih:bb"},
		{"Title":"Show.S01E01.1080p","Tracker":"c","Size":2000,"Seeders":7,"MagnetUri":"magnet:?xt=urn:btih:cc"}
	`), ServiceOptions{})

	results, err := svc.Search(context.Background(), "show", "", "")
	require.NoError(t, err)
	require.Len(t, results, 2, "same title and size collapse to one entry")

	assert.Equal(t, 50, results[0].Seeders, "survivor carries the max seeder count")
	assert.Equal(t, "b", results[0].Tracker)
	assert.Equal(t, 7, results[1].Seeders, "different size is a distinct release")
}

func TestSearch_DuplicateTieKeepsFirstSeen(t *testing.T) {
	svc, _ := newTestService(t, resultsJSON(`
		{"Title":"Show.S01E01.1080p","Tracker":"first","Size":1000,"Seeders":10,"MagnetUri":"magnet:?xt=urn:btih:aa"},
		{"Title":"Show S01E01 1080p","Tracker":"second","Size":1000,"Seeders":10,"MagnetUri":"magnet:?xt=urn:btih:bb"}
	`), ServiceOptions{})

	results, err := svc.Search(context.Background(), "show", "", "")
	require.NoError(t, err)
	require.Len(t, results, 1)
	assert.Equal(t, "first", results[0].Tracker)
}

func TestSearch_SortedBySeedersDescending(t *testing.T) {
	svc, _ := newTestService(t, resultsJSON(`
		{"Title":"Low","Size":1,"Seeders":3,"MagnetUri":"magnet:?xt=urn:btih:aa"},
		{"Title":"High","Size":2,"Seeders":300,"MagnetUri":"magnet:?xt=urn:btih:bb"},
		{"Title":"Mid","Size":3,"Seeders":30,"MagnetUri":"magnet:?xt=urn:btih:cc"},
		{"Title":"Unknown","Size":4,"MagnetUri":"magnet:?xt=urn:btih:dd"}
	`), ServiceOptions{})

	results, err := svc.Search(context.Background(), "q", "", "")
	require.NoError(t, err)
	require.Len(t, results, 4)

	seeders := make([]int, len(results))
	for i, r := range results {
		seeders[i] = r.Seeders
	}
	assert.Equal(t, []int{300, 30, 3, -1}, seeders, "unknown seeder counts sort last")
}

func TestSearch_RawHitCap(t *testing.T) {
	// Hits past the cap are cut before any per-hit work, so a well-seeded
	// entry beyond the cutoff never surfaces.
	svc, _ := newTestService(t, resultsJSON(`
		{"Title":"A","Size":1,"Seeders":1,"MagnetUri":"magnet:?xt=urn:btih:aa"},
		{"Title":"B","Size":2,"Seeders":2,"MagnetUri":"magnet:?xt=urn:btih:bb"},
		{"Title":"C","Size":3,"Seeders":99,"MagnetUri":"magnet:?xt=urn:btih:cc"}
	`), ServiceOptions{MaxResults: 2})

	results, err := svc.Search(context.Background(), "q", "", "")
	require.NoError(t, err)
	require.Len(t, results, 2)
	assert.Equal(t, 2, results[0].Seeders)
	assert.Equal(t, 1, results[1].Seeders)
	for _, r := range results {
		assert.NotEqual(t, "C", r.Title, "a hit past the cap must not appear")
	}
}

func TestService_SetMaxResults(t *testing.T) {
	hits := `
		{"Title":"A","Size":1,"Seeders":1,"MagnetUri":"magnet:?xt=urn:btih:aa"},
		{"Title":"B","Size":2,"Seeders":2,"MagnetUri":"magnet:?xt=urn:btih:bb"},
		{"Title":"C","Size":3,"Seeders":3,"MagnetUri":"magnet:?xt=urn:btih:cc"}
	`
	svc, _ := newTestService(t, resultsJSON(hits), ServiceOptions{MaxResults: 3})

	results, err := svc.Search(context.Background(), "before", "", "")
	require.NoError(t, err)
	require.Len(t, results, 3)

	svc.SetMaxResults(1)

	results, err = svc.Search(context.Background(), "after", "", "")
	require.NoError(t, err)
	require.Len(t, results, 1)

	svc.SetMaxResults(0)

	results, err = svc.Search(context.Background(), "ignored", "", "")
	require.NoError(t, err)
	require.Len(t, results, 1, "non-positive values leave the cap untouched")
}

func TestSearch_DropsUnactionableResults(t *testing.T) {
	svc, _ := newTestService(t, resultsJSON(`
		{"Title":"No Way To Download","Size":1,"Seeders":9},
		{"Title":"","Size":2,"Seeders":9,"MagnetUri":"magnet:?xt=urn:btih:aa"},
		{"Title":"Fine","Size":3,"Seeders":1,"Link":"http://indexer.test/dl/1"}
	`), ServiceOptions{})

	results, err := svc.Search(context.Background(), "q", "", "")
	require.NoError(t, err)
	require.Len(t, results, 1)
	assert.Equal(t, "Fine", results[0].Title)
}

func TestSearch_ResponseCached(t *testing.T) {
	var requests atomic.Int64
	svc, _ := newTestService(t, http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		requests.Add(1)
		fmt.Fprint(w, `{"Results":[{"Title":"A","Size":1,"Seeders":1,"MagnetUri":"magnet:?xt=urn:btih:aa"}]}`)
	}), ServiceOptions{})

	first, err := svc.Search(context.Background(), "ubuntu", "", "")
	require.NoError(t, err)
	second, err := svc.Search(context.Background(), "UBUNTU ", "", "")
	require.NoError(t, err)

	assert.Equal(t, first, second)
	assert.Equal(t, int64(1), requests.Load(), "case/space variants of a query share one cache entry")

	_, err = svc.Search(context.Background(), "ubuntu", "2000", "")
	require.NoError(t, err)
	assert.Equal(t, int64(2), requests.Load(), "a different category is a different query")
}

func TestSearch_DeadlineExceeded(t *testing.T) {
	svc, _ := newTestService(t, http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		select {
		case <-r.Context().Done():
		case <-time.After(2 * time.Second):
		}
	}), ServiceOptions{SearchTimeout: 50 * time.Millisecond})

	_, err := svc.Search(context.Background(), "slow", "", "")
	require.ErrorIs(t, err, ErrSearchTimeout)
}

func TestToSearchResult_MagnetSources(t *testing.T) {
	tests := []struct {
		name     string
		raw      rawResult
		magnet   string
		download string
	}{
		{
			name:   "magnet uri field wins",
			raw:    rawResult{Title: "t", MagnetUri: testMagnet, Link: "http://x/dl"},
			magnet: testMagnet,
		},
		{
			name:   "magnet-schemed link",
			raw:    rawResult{Title: "t", Link: testMagnet},
			magnet: testMagnet,
		},
		{
			name:   "magnet-schemed guid",
			raw:    rawResult{Title: "t", Guid: testMagnet},
			magnet: testMagnet,
		},
		{
			name:   "built from info hash",
			raw:    rawResult{Title: "My Show S01E", InfoHash: "0123456789ABCDEF0123456789ABCDEF01234567"},
			magnet: "magnet:?xt=urn:btih:0123456789abcdef0123456789abcdef01234567&dn=My%20Show%20S01E",
		},
		{
			name:     "opaque link falls through to download url",
			raw:      rawResult{Title: "t", Link: "http://indexer.test/dl/1"},
			download: "http://indexer.test/dl/1",
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			res := toSearchResult(tt.raw)
			assert.Equal(t, tt.magnet, res.Magnet)
			assert.Equal(t, tt.download, res.DownloadURL)
		})
	}
}

func TestToSearchResult_Normalization(t *testing.T) {
	seeders, peers := 12, 4
	res := toSearchResult(rawResult{
		Title:       "Show.S01E01.1080p.WEB-DL.x264-GROUP",
		Size:        -5,
		Seeders:     &seeders,
		Peers:       &peers,
		PublishDate: "2026-08-01T10:30:00Z",
		MagnetUri:   testMagnet,
	})

	assert.Equal(t, int64(0), res.SizeBytes, "negative sizes clamp to zero")
	assert.Equal(t, 12, res.Seeders)
	assert.Equal(t, 4, res.Leechers)
	assert.Equal(t, "show s01e01 1080p web-dl x264-group", res.NormalizedTitle)
	assert.Equal(t, time.Date(2026, 8, 1, 10, 30, 0, 0, time.UTC), res.PublishedAt)
	assert.Equal(t, "1080p", res.Resolution)
	assert.Equal(t, "GROUP", res.Group)
}

func TestToSearchResult_UnknownFieldsDegrade(t *testing.T) {
	res := toSearchResult(rawResult{Title: "bare", MagnetUri: testMagnet})
	assert.Equal(t, -1, res.Seeders)
	assert.Equal(t, -1, res.Leechers)
	assert.True(t, res.PublishedAt.IsZero())
}

func TestMagnetFor(t *testing.T) {
	magnetSrv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.Header().Set("Location", testMagnet)
		w.WriteHeader(http.StatusFound)
	}))
	defer magnetSrv.Close()

	cached := resolver.NewCached(resolver.New(resolver.Options{}), resolver.CacheOptions{})
	svc := NewService(ServiceOptions{
		Client:   mustClient(t, "http://unused.test"),
		Resolver: cached,
	})

	t.Run("direct magnet returned as-is", func(t *testing.T) {
		magnet, err := svc.MagnetFor(context.Background(), SearchResult{Magnet: testMagnet})
		require.NoError(t, err)
		assert.Equal(t, testMagnet, magnet)
	})

	t.Run("download url is resolved", func(t *testing.T) {
		magnet, err := svc.MagnetFor(context.Background(), SearchResult{DownloadURL: magnetSrv.URL})
		require.NoError(t, err)
		assert.Equal(t, testMagnet, magnet)
	})

	t.Run("neither is a definitive miss", func(t *testing.T) {
		_, err := svc.MagnetFor(context.Background(), SearchResult{})
		require.ErrorIs(t, err, resolver.ErrNoMagnet)
	})
}

func mustClient(t *testing.T, baseURL string) *Client {
	t.Helper()
	c, err := NewClient(baseURL, "secret", time.Second, zerolog.Nop())
	require.NoError(t, err)
	return c
}
