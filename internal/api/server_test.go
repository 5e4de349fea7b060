// Copyright (c) 2026, the fetcharr contributors.
// SPDX-License-Identifier: GPL-2.0-or-later

package api

import (
	"context"
	"encoding/json"
	"fmt"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/rs/zerolog"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/fetcharr/fetcharr/internal/api/handlers"
	"github.com/fetcharr/fetcharr/internal/domain"
	"github.com/fetcharr/fetcharr/internal/downloads"
	"github.com/fetcharr/fetcharr/internal/metrics"
	"github.com/fetcharr/fetcharr/internal/providers/jackett"
	"github.com/fetcharr/fetcharr/internal/resolver"
)

const testMagnet = "magnet:?xt=urn:btih:0123456789abcdef0123456789abcdef01234567&dn=test"

// newTestHandler wires a full server against fake upstreams: a Jackett
// broker, a redirect endpoint that resolves to a magnet, and a qBittorrent
// instance.
func newTestHandler(t *testing.T) (http.Handler, *httptest.Server) {
	t.Helper()

	upstream := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		switch {
		case strings.HasPrefix(r.URL.Path, "/api/v2.0/indexers/all/results"):
			fmt.Fprintf(w, `{"Results":[
				{"Title":"Show.S01E01.1080p","Tracker":"a","Size":1000,"Seeders":12,"MagnetUri":"%s"},
				{"Title":"Show.S01E02.1080p","Tracker":"a","Size":1000,"Seeders":3,"Link":"%s"}
			]}`, testMagnet, "http://"+r.Host+"/dl/opaque")
		case r.URL.Path == "/api/v2.0/indexers":
			fmt.Fprint(w, `[{"id":"a","name":"Tracker A","configured":true}]`)
		case r.URL.Path == "/dl/opaque":
			w.Header().Set("Location", testMagnet)
			w.WriteHeader(http.StatusFound)
		case r.URL.Path == "/dl/broken":
			fmt.Fprint(w, "<html>nothing</html>")
		case r.URL.Path == "/api/v2/auth/login":
			http.SetCookie(w, &http.Cookie{Name: "SID", Value: "testsid"})
			fmt.Fprint(w, "Ok.")
		case r.URL.Path == "/api/v2/app/webapiVersion":
			fmt.Fprint(w, "2.9.3")
		case r.URL.Path == "/api/v2/torrents/add":
			fmt.Fprint(w, "Ok.")
		default:
			w.WriteHeader(http.StatusNotFound)
		}
	}))
	t.Cleanup(upstream.Close)

	client, err := jackett.NewClient(upstream.URL, "secret", time.Second, zerolog.Nop())
	require.NoError(t, err)

	reg := prometheus.NewRegistry()
	stats := metrics.New(reg)

	cached := resolver.NewCached(resolver.New(resolver.Options{}), resolver.CacheOptions{Stats: stats})
	service := jackett.NewService(jackett.ServiceOptions{
		Client:   client,
		Resolver: cached,
		Stats:    stats,
	})

	handoff := downloads.New(domain.QBittorrentConfig{Host: upstream.URL}, zerolog.Nop())

	srv := NewServer(&Dependencies{
		Config:        &domain.Config{Host: "127.0.0.1", Port: 0},
		Version:       "test",
		SearchService: service,
		Handoff:       handoff,
		DownloadStats: stats,
		Registry:      reg,
	})
	return srv.Handler(), upstream
}

func TestServer_Search(t *testing.T) {
	handler, _ := newTestHandler(t)

	rec := httptest.NewRecorder()
	handler.ServeHTTP(rec, httptest.NewRequest(http.MethodGet, "/api/search?q=show", nil))
	require.Equal(t, http.StatusOK, rec.Code)

	var resp handlers.SearchResponse
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &resp))
	assert.Equal(t, "show", resp.Query)
	require.Equal(t, 2, resp.Total)
	assert.Equal(t, 12, resp.Results[0].Seeders, "results ordered by seeders")
}

func TestServer_SearchRequiresQuery(t *testing.T) {
	handler, _ := newTestHandler(t)

	rec := httptest.NewRecorder()
	handler.ServeHTTP(rec, httptest.NewRequest(http.MethodGet, "/api/search", nil))
	require.Equal(t, http.StatusBadRequest, rec.Code)
}

func TestServer_Resolve(t *testing.T) {
	handler, upstream := newTestHandler(t)

	body := strings.NewReader(fmt.Sprintf(`{"url":%q}`, upstream.URL+"/dl/opaque"))
	rec := httptest.NewRecorder()
	handler.ServeHTTP(rec, httptest.NewRequest(http.MethodPost, "/api/resolve", body))
	require.Equal(t, http.StatusOK, rec.Code)

	var resp handlers.ResolveResponse
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &resp))
	assert.Equal(t, testMagnet, resp.Magnet)
}

func TestServer_ResolveNoMagnetIs404(t *testing.T) {
	handler, upstream := newTestHandler(t)

	body := strings.NewReader(fmt.Sprintf(`{"url":%q}`, upstream.URL+"/dl/broken"))
	rec := httptest.NewRecorder()
	handler.ServeHTTP(rec, httptest.NewRequest(http.MethodPost, "/api/resolve", body))
	require.Equal(t, http.StatusNotFound, rec.Code)
}

func TestServer_ResolveRequiresURL(t *testing.T) {
	handler, _ := newTestHandler(t)

	rec := httptest.NewRecorder()
	handler.ServeHTTP(rec, httptest.NewRequest(http.MethodPost, "/api/resolve", strings.NewReader(`{}`)))
	require.Equal(t, http.StatusBadRequest, rec.Code)
}

func TestServer_Indexers(t *testing.T) {
	handler, _ := newTestHandler(t)

	rec := httptest.NewRecorder()
	handler.ServeHTTP(rec, httptest.NewRequest(http.MethodGet, "/api/indexers", nil))
	require.Equal(t, http.StatusOK, rec.Code)

	var indexers []jackett.IndexerInfo
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &indexers))
	require.Len(t, indexers, 1)
	assert.Equal(t, "Tracker A", indexers[0].Name)
}

func TestServer_AddDownload(t *testing.T) {
	handler, upstream := newTestHandler(t)

	t.Run("direct magnet", func(t *testing.T) {
		body := strings.NewReader(fmt.Sprintf(`{"magnet":%q}`, testMagnet))
		rec := httptest.NewRecorder()
		handler.ServeHTTP(rec, httptest.NewRequest(http.MethodPost, "/api/downloads", body))
		require.Equal(t, http.StatusCreated, rec.Code)
	})

	t.Run("opaque link resolved first", func(t *testing.T) {
		body := strings.NewReader(fmt.Sprintf(`{"download_url":%q}`, upstream.URL+"/dl/opaque"))
		rec := httptest.NewRecorder()
		handler.ServeHTTP(rec, httptest.NewRequest(http.MethodPost, "/api/downloads", body))
		require.Equal(t, http.StatusCreated, rec.Code)

		var resp handlers.AddDownloadResponse
		require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &resp))
		assert.Equal(t, testMagnet, resp.Magnet)
	})

	t.Run("empty request", func(t *testing.T) {
		rec := httptest.NewRecorder()
		handler.ServeHTTP(rec, httptest.NewRequest(http.MethodPost, "/api/downloads", strings.NewReader(`{}`)))
		require.Equal(t, http.StatusBadRequest, rec.Code)
	})
}

func TestServer_DownloadWithoutClientIs409(t *testing.T) {
	upstream := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		fmt.Fprint(w, `{"Results":[]}`)
	}))
	t.Cleanup(upstream.Close)

	client, err := jackett.NewClient(upstream.URL, "secret", time.Second, zerolog.Nop())
	require.NoError(t, err)

	srv := NewServer(&Dependencies{
		Config: &domain.Config{},
		SearchService: jackett.NewService(jackett.ServiceOptions{
			Client:   client,
			Resolver: resolver.NewCached(resolver.New(resolver.Options{}), resolver.CacheOptions{}),
		}),
		Handoff: downloads.New(domain.QBittorrentConfig{}, zerolog.Nop()),
	})

	body := strings.NewReader(fmt.Sprintf(`{"magnet":%q}`, testMagnet))
	rec := httptest.NewRecorder()
	srv.Handler().ServeHTTP(rec, httptest.NewRequest(http.MethodPost, "/api/downloads", body))
	require.Equal(t, http.StatusConflict, rec.Code)
}

func TestServer_Healthz(t *testing.T) {
	handler, _ := newTestHandler(t)

	rec := httptest.NewRecorder()
	handler.ServeHTTP(rec, httptest.NewRequest(http.MethodGet, "/api/healthz", nil))
	require.Equal(t, http.StatusOK, rec.Code)
	assert.JSONEq(t, `{"status":"ok"}`, rec.Body.String())
}

func TestServer_MetricsEndpoint(t *testing.T) {
	handler, _ := newTestHandler(t)

	// Drive one search so counters have samples.
	rec := httptest.NewRecorder()
	handler.ServeHTTP(rec, httptest.NewRequest(http.MethodGet, "/api/search?q=show", nil))
	require.Equal(t, http.StatusOK, rec.Code)

	rec = httptest.NewRecorder()
	handler.ServeHTTP(rec, httptest.NewRequest(http.MethodGet, "/metrics", nil))
	require.Equal(t, http.StatusOK, rec.Code)
	assert.Contains(t, rec.Body.String(), "fetcharr_searches_total")
}

func TestServer_ListenAndServeReady(t *testing.T) {
	srv := NewServer(&Dependencies{
		Config:  &domain.Config{Host: "127.0.0.1", Port: 0},
		Version: "test",
	})

	ready := make(chan struct{}, 1)
	served := make(chan error, 1)
	go func() { served <- srv.ListenAndServeReady(ready) }()

	select {
	case <-ready:
	case err := <-served:
		t.Fatalf("server exited before signalling ready: %v", err)
	case <-time.After(5 * time.Second):
		t.Fatal("server never signalled ready")
	}

	ctx, cancel := context.WithTimeout(context.Background(), 2*time.Second)
	defer cancel()
	require.NoError(t, srv.Shutdown(ctx))
	require.ErrorIs(t, <-served, http.ErrServerClosed)
}
