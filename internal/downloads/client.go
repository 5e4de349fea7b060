// Copyright (c) 2026, the fetcharr contributors.
// SPDX-License-Identifier: GPL-2.0-or-later

// Package downloads hands recovered magnets (or torrent URLs) to a
// qBittorrent instance.
package downloads

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"sync"

	qbt "github.com/autobrr/go-qbittorrent"
	"github.com/rs/zerolog"

	"github.com/fetcharr/fetcharr/internal/domain"
)

// ErrDisabled reports that no qBittorrent instance is configured.
var ErrDisabled = errors.New("downloads: qbittorrent is not configured")

const clientTimeoutSeconds = 60

// Handoff submits torrents to one qBittorrent instance. Login happens
// lazily on first use so a stopped instance does not block startup.
type Handoff struct {
	client   *qbt.Client
	category string
	savePath string
	log      zerolog.Logger

	mu       sync.Mutex
	loggedIn bool
}

func New(cfg domain.QBittorrentConfig, logger zerolog.Logger) *Handoff {
	h := &Handoff{
		category: cfg.Category,
		savePath: cfg.SavePath,
		log:      logger,
	}
	if cfg.Host == "" {
		return h
	}

	h.client = qbt.NewClient(qbt.Config{
		Host:          cfg.Host,
		Username:      cfg.Username,
		Password:      cfg.Password,
		Timeout:       clientTimeoutSeconds,
		TLSSkipVerify: cfg.TLSSkipVerify,
	})
	return h
}

// Enabled reports whether a qBittorrent instance is configured.
func (h *Handoff) Enabled() bool {
	return h.client != nil
}

// Add submits a magnet URI or torrent URL for download.
func (h *Handoff) Add(ctx context.Context, uri string) error {
	if h.client == nil {
		return ErrDisabled
	}

	uri = strings.TrimSpace(uri)
	if uri == "" {
		return errors.New("downloads: empty uri")
	}

	if err := h.ensureLogin(ctx); err != nil {
		return err
	}

	options := map[string]string{}
	if h.category != "" {
		options["category"] = h.category
	}
	if h.savePath != "" {
		options["savepath"] = h.savePath
	}

	if err := h.client.AddTorrentFromUrlCtx(ctx, uri, options); err != nil {
		return fmt.Errorf("add torrent: %w", err)
	}

	h.log.Info().Str("category", h.category).Msg("torrent handed to qbittorrent")
	return nil
}

func (h *Handoff) ensureLogin(ctx context.Context) error {
	h.mu.Lock()
	defer h.mu.Unlock()
	if h.loggedIn {
		return nil
	}
	if err := h.client.LoginCtx(ctx); err != nil {
		return fmt.Errorf("qbittorrent login: %w", err)
	}
	h.loggedIn = true
	return nil
}
