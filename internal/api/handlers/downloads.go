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

	"github.com/fetcharr/fetcharr/internal/downloads"
	"github.com/fetcharr/fetcharr/internal/providers/jackett"
)

// DownloadStats records hand-off outcomes. A nil value disables reporting.
type DownloadStats interface {
	DownloadHandoff(status string)
}

// DownloadsHandler submits search results to the configured download client.
type DownloadsHandler struct {
	service *jackett.Service
	handoff *downloads.Handoff
	stats   DownloadStats
}

func NewDownloadsHandler(service *jackett.Service, handoff *downloads.Handoff, stats DownloadStats) *DownloadsHandler {
	return &DownloadsHandler{service: service, handoff: handoff, stats: stats}
}

func (h *DownloadsHandler) Routes(r chi.Router) {
	r.Post("/downloads", h.Add)
}

// AddDownloadRequest carries either a ready magnet or an opaque download
// link that still needs resolving.
type AddDownloadRequest struct {
	Magnet      string `json:"magnet,omitempty"`
	DownloadURL string `json:"download_url,omitempty"`
}

// AddDownloadResponse reports the magnet that was handed over.
type AddDownloadResponse struct {
	Magnet string `json:"magnet"`
}

func (h *DownloadsHandler) Add(w http.ResponseWriter, r *http.Request) {
	var req AddDownloadRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		RespondError(w, http.StatusBadRequest, "Invalid request body")
		return
	}
	if strings.TrimSpace(req.Magnet) == "" && strings.TrimSpace(req.DownloadURL) == "" {
		RespondError(w, http.StatusBadRequest, "magnet or download_url is required")
		return
	}

	magnet, err := h.service.MagnetFor(r.Context(), jackett.SearchResult{
		Magnet:      req.Magnet,
		DownloadURL: req.DownloadURL,
	})
	if err != nil {
		h.report("resolve_failed")
		respondResolveError(w, req.DownloadURL, err)
		return
	}

	if err := h.handoff.Add(r.Context(), magnet); err != nil {
		if errors.Is(err, downloads.ErrDisabled) {
			h.report("disabled")
			RespondError(w, http.StatusConflict, "no download client configured")
			return
		}
		h.report("error")
		log.Error().Err(err).Msg("Download hand-off failed")
		RespondError(w, http.StatusBadGateway, "download client rejected the torrent")
		return
	}

	h.report("ok")
	RespondJSON(w, http.StatusCreated, AddDownloadResponse{Magnet: magnet})
}

func (h *DownloadsHandler) report(status string) {
	if h.stats != nil {
		h.stats.DownloadHandoff(status)
	}
}
