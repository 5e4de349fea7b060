// Copyright (c) 2026, the fetcharr contributors.
// SPDX-License-Identifier: GPL-2.0-or-later

package jackett

import "time"

// SearchResult is a normalized hit from one indexer. Results are immutable
// once built and live only for the duration of the enclosing response.
type SearchResult struct {
	// Title is the release name as reported by the indexer.
	Title string `json:"title"`
	// NormalizedTitle is derived from Title once at construction and used
	// as half of the dedup key.
	NormalizedTitle string `json:"normalized_title"`
	// SizeBytes is never negative; unreported sizes collapse to 0.
	SizeBytes int64 `json:"size_bytes"`
	// Seeders and Leechers are -1 when the indexer does not report them.
	Seeders  int `json:"seeders"`
	Leechers int `json:"leechers"`
	// Tracker is the indexer/tracker display name.
	Tracker string `json:"tracker"`
	// PublishedAt is the zero time when unknown.
	PublishedAt time.Time `json:"published_at,omitzero"`
	// Magnet is set when the indexer supplies one directly (or embeds an
	// info hash); otherwise DownloadURL holds the opaque redirect endpoint
	// and the magnet is recovered lazily on request.
	Magnet      string `json:"magnet,omitempty"`
	DownloadURL string `json:"download_url,omitempty"`

	// Parsed release metadata, best-effort.
	Source     string `json:"source,omitempty"`
	Resolution string `json:"resolution,omitempty"`
	Group      string `json:"group,omitempty"`
}

// Actionable reports whether the result can lead to a download at all.
func (r SearchResult) Actionable() bool {
	return r.Magnet != "" || r.DownloadURL != ""
}

// IndexerInfo identifies one indexer configured on the broker.
type IndexerInfo struct {
	ID   string `json:"id"`
	Name string `json:"name"`
}

// rawResult mirrors one item of Jackett's JSON results payload.
type rawResult struct {
	Title       string `json:"Title"`
	Tracker     string `json:"Tracker"`
	Guid        string `json:"Guid"`
	Link        string `json:"Link"`
	MagnetUri   string `json:"MagnetUri"`
	InfoHash    string `json:"InfoHash"`
	Details     string `json:"Details"`
	PublishDate string `json:"PublishDate"`
	Size        int64  `json:"Size"`
	Seeders     *int   `json:"Seeders"`
	Peers       *int   `json:"Peers"`
}

// rawResponse is the envelope of Jackett's results endpoint.
type rawResponse struct {
	Results []rawResult `json:"Results"`
}

// rawIndexer mirrors one item of Jackett's indexer listing.
type rawIndexer struct {
	ID         string `json:"id"`
	Name       string `json:"name"`
	Configured bool   `json:"configured"`
}
