// Copyright (c) 2026, the fetcharr contributors.
// SPDX-License-Identifier: GPL-2.0-or-later

package handlers

import (
	"encoding/json"
	"errors"
	"net/http"
	"strings"

	"github.com/go-chi/chi/v5"
	"github.com/rs/zerolog/log"

	"github.com/fetcharr/fetcharr/internal/providers/jackett"
	"github.com/fetcharr/fetcharr/internal/resolver"
)

// SearchHandler exposes the search and magnet recovery endpoints.
type SearchHandler struct {
	service *jackett.Service
}

func NewSearchHandler(service *jackett.Service) *SearchHandler {
	return &SearchHandler{service: service}
}

func (h *SearchHandler) Routes(r chi.Router) {
	r.Get("/search", h.Search)
	r.Post("/resolve", h.Resolve)
	r.Get("/indexers", h.ListIndexers)
}

// SearchResponse is the envelope of one search reply.
type SearchResponse struct {
	Query   string                 `json:"query"`
	Results []jackett.SearchResult `json:"results"`
	Total   int                    `json:"total"`
}

func (h *SearchHandler) Search(w http.ResponseWriter, r *http.Request) {
	query := strings.TrimSpace(r.URL.Query().Get("q"))
	if query == "" {
		RespondError(w, http.StatusBadRequest, "q is required")
		return
	}
	category := r.URL.Query().Get("category")
	indexer := r.URL.Query().Get("indexer")

	results, err := h.service.Search(r.Context(), query, category, indexer)
	if err != nil {
		if errors.Is(err, jackett.ErrSearchTimeout) {
			RespondError(w, http.StatusGatewayTimeout, "search timed out")
			return
		}
		log.Error().Err(err).Str("query", query).Msg("Search failed")
		RespondError(w, http.StatusBadGateway, "search failed")
		return
	}

	if results == nil {
		results = []jackett.SearchResult{}
	}
	RespondJSON(w, http.StatusOK, SearchResponse{
		Query:   query,
		Results: results,
		Total:   len(results),
	})
}

// ResolveRequest asks for the magnet behind one opaque download link.
type ResolveRequest struct {
	URL string `json:"url"`
}

// ResolveResponse carries the recovered magnet.
type ResolveResponse struct {
	Magnet string `json:"magnet"`
}

func (h *SearchHandler) Resolve(w http.ResponseWriter, r *http.Request) {
	var req ResolveRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		RespondError(w, http.StatusBadRequest, "Invalid request body")
		return
	}
	if strings.TrimSpace(req.URL) == "" {
		RespondError(w, http.StatusBadRequest, "url is required")
		return
	}

	magnet, err := h.service.MagnetFor(r.Context(), jackett.SearchResult{DownloadURL: req.URL})
	if err != nil {
		respondResolveError(w, req.URL, err)
		return
	}
	RespondJSON(w, http.StatusOK, ResolveResponse{Magnet: magnet})
}

func respondResolveError(w http.ResponseWriter, url string, err error) {
	switch {
	case errors.Is(err, resolver.ErrResolveTimeout):
		RespondError(w, http.StatusGatewayTimeout, "resolution timed out")
	case errors.Is(err, resolver.ErrUpstreamUnreachable):
		RespondError(w, http.StatusBadGateway, "upstream unreachable")
	case resolver.Definitive(err):
		RespondError(w, http.StatusNotFound, "no magnet found")
	default:
		log.Error().Err(err).Str("url", url).Msg("Resolve failed")
		RespondError(w, http.StatusInternalServerError, "resolve failed")
	}
}

func (h *SearchHandler) ListIndexers(w http.ResponseWriter, r *http.Request) {
	indexers, err := h.service.ListIndexers(r.Context())
	if err != nil {
		log.Error().Err(err).Msg("Failed to list indexers")
		RespondError(w, http.StatusBadGateway, "failed to list indexers")
		return
	}
	if indexers == nil {
		indexers = []jackett.IndexerInfo{}
	}
	RespondJSON(w, http.StatusOK, indexers)
}
