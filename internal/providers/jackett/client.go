// Copyright (c) 2026, the fetcharr contributors.
// SPDX-License-Identifier: GPL-2.0-or-later

// Package jackett is the provider adapter for a Jackett indexer broker. It
// issues the broker's JSON search API, normalizes raw hits into
// SearchResults and recovers magnets for ambiguous results on demand
// through the shared resolver.
package jackett

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"net/http"
	"net/url"
	"strings"
	"time"

	"github.com/rs/zerolog"

	"github.com/fetcharr/fetcharr/internal/buildinfo"
)

// ErrConfig signals missing broker configuration. Unlike resolution
// failures it is a hard error and propagates to the caller untouched.
var ErrConfig = errors.New("jackett: base URL and API key are required")

const defaultClientTimeout = 30 * time.Second

// Client talks to one Jackett instance.
type Client struct {
	baseURL    string
	apiKey     string
	httpClient *http.Client
	log        zerolog.Logger
}

func NewClient(baseURL, apiKey string, timeout time.Duration, logger zerolog.Logger) (*Client, error) {
	baseURL = strings.TrimRight(strings.TrimSpace(baseURL), "/")
	if baseURL == "" || strings.TrimSpace(apiKey) == "" {
		return nil, ErrConfig
	}
	if timeout <= 0 {
		timeout = defaultClientTimeout
	}

	return &Client{
		baseURL:    baseURL,
		apiKey:     apiKey,
		httpClient: &http.Client{Timeout: timeout},
		log:        logger,
	}, nil
}

// Results queries the broker's JSON results endpoint for one indexer
// ("all" when indexer is empty) and returns the raw hits.
func (c *Client) Results(ctx context.Context, query, category, indexer string) ([]rawResult, error) {
	if indexer == "" {
		indexer = "all"
	}

	params := url.Values{}
	params.Set("apikey", c.apiKey)
	params.Set("Query", query)
	if category != "" {
		params.Set("Category[]", category)
	}

	endpoint := fmt.Sprintf("%s/api/v2.0/indexers/%s/results?%s", c.baseURL, url.PathEscape(indexer), params.Encode())

	req, err := http.NewRequestWithContext(ctx, http.MethodGet, endpoint, nil)
	if err != nil {
		return nil, fmt.Errorf("build search request: %w", err)
	}
	req.Header.Set("User-Agent", buildinfo.UserAgent)

	resp, err := c.httpClient.Do(req)
	if err != nil {
		return nil, fmt.Errorf("search request failed: %w", err)
	}
	defer resp.Body.Close()

	if resp.StatusCode < http.StatusOK || resp.StatusCode >= http.StatusMultipleChoices {
		return nil, fmt.Errorf("jackett search returned status %d", resp.StatusCode)
	}

	var payload rawResponse
	if err := json.NewDecoder(resp.Body).Decode(&payload); err != nil {
		return nil, fmt.Errorf("decode search response: %w", err)
	}

	c.log.Debug().Str("query", query).Str("indexer", indexer).Int("results", len(payload.Results)).Msg("jackett search completed")
	return payload.Results, nil
}

// Indexers lists the indexers configured on the broker.
func (c *Client) Indexers(ctx context.Context) ([]IndexerInfo, error) {
	params := url.Values{}
	params.Set("apikey", c.apiKey)
	params.Set("configured", "true")

	endpoint := fmt.Sprintf("%s/api/v2.0/indexers?%s", c.baseURL, params.Encode())

	req, err := http.NewRequestWithContext(ctx, http.MethodGet, endpoint, nil)
	if err != nil {
		return nil, fmt.Errorf("build indexers request: %w", err)
	}
	req.Header.Set("User-Agent", buildinfo.UserAgent)

	resp, err := c.httpClient.Do(req)
	if err != nil {
		return nil, fmt.Errorf("indexers request failed: %w", err)
	}
	defer resp.Body.Close()

	if resp.StatusCode < http.StatusOK || resp.StatusCode >= http.StatusMultipleChoices {
		return nil, fmt.Errorf("jackett indexers returned status %d", resp.StatusCode)
	}

	var raw []rawIndexer
	if err := json.NewDecoder(resp.Body).Decode(&raw); err != nil {
		return nil, fmt.Errorf("decode indexers response: %w", err)
	}

	indexers := make([]IndexerInfo, 0, len(raw))
	for _, idx := range raw {
		if !idx.Configured {
			continue
		}
		indexers = append(indexers, IndexerInfo{ID: idx.ID, Name: idx.Name})
	}
	return indexers, nil
}
