// Copyright (c) 2026, the fetcharr contributors.
// SPDX-License-Identifier: GPL-2.0-or-later

// Package resolver recovers magnet URIs from the opaque download endpoints
// indexers hand out instead of magnet links. It walks redirect chains hop by
// hop with automatic redirect-following disabled, so that magnet: Location
// targets (which cannot be dereferenced) are caught before a request is
// issued, and torrent-file bodies can be hashed on the way.
package resolver

import (
	"context"
	"errors"
	"fmt"
	"io"
	"net/http"
	"regexp"
	"strings"
	"time"

	"github.com/rs/zerolog"

	"github.com/fetcharr/fetcharr/internal/bencode"
	"github.com/fetcharr/fetcharr/internal/buildinfo"
)

const (
	defaultMaxHops    = 12
	defaultHopTimeout = 10 * time.Second

	// Safety limit for response bodies; matches the largest torrent blob
	// worth hashing.
	maxBodyBytes int64 = 16 << 20
)

var (
	// ErrResolveTimeout marks a hop that ran out its timer. Timeouts are
	// retryable: the cache layer never stores them.
	ErrResolveTimeout = errors.New("resolve: hop timed out")

	// ErrUpstreamUnreachable marks a transport-level failure (refused,
	// reset, DNS). Treated like a timeout for caching purposes.
	ErrUpstreamUnreachable = errors.New("resolve: upstream unreachable")

	// ErrNoMagnet is the definitive "nothing recognizable" outcome for a
	// 2xx body.
	ErrNoMagnet = errors.New("resolve: no magnet found")

	// ErrMissingLocation marks a 3xx response without a redirect target.
	ErrMissingLocation = errors.New("resolve: redirect without location")

	// ErrHopLimit marks a chain that never resolved within the hop budget.
	ErrHopLimit = errors.New("resolve: hop limit reached")
)

// UpstreamError is a terminal non-2xx/3xx status on the chain.
type UpstreamError struct {
	StatusCode int
	URL        string
}

func (e *UpstreamError) Error() string {
	return fmt.Sprintf("resolve: %s returned status %d", e.URL, e.StatusCode)
}

func (e *UpstreamError) Is(target error) bool {
	_, ok := target.(*UpstreamError)
	return ok
}

// Definitive reports whether a resolution failure may be cached as a
// negative entry. Timeouts and transport failures are excluded so the next
// caller gets a fresh attempt against a possibly just-slow upstream.
func Definitive(err error) bool {
	switch {
	case err == nil:
		return true
	case errors.Is(err, ErrResolveTimeout),
		errors.Is(err, ErrUpstreamUnreachable),
		errors.Is(err, context.Canceled),
		errors.Is(err, context.DeadlineExceeded):
		return false
	}
	return true
}

// magnetLiteral matches the first magnet URI embedded in a text body. The
// character class excludes whitespace and quoting/bracket delimiters so the
// match stops at the end of an href or script string.
var magnetLiteral = regexp.MustCompile(`magnet:\?[^\s"'<>\\` + "`" + `]+`)

// Options configures a Resolver. Zero values fall back to defaults.
type Options struct {
	// MaxHops bounds the redirect chain (default 12).
	MaxHops int
	// HopTimeout cancels a single fetch (default 10s).
	HopTimeout time.Duration
	// BodyPatterns are extra provider-specific magnet patterns tried after
	// the generic literal scan.
	BodyPatterns []*regexp.Regexp
	// Client overrides the HTTP client. Redirect following is disabled on
	// it regardless.
	Client *http.Client
	Logger zerolog.Logger
}

// Resolver walks one redirect chain per call. It holds no mutable state and
// is safe for concurrent use.
type Resolver struct {
	maxHops      int
	hopTimeout   time.Duration
	bodyPatterns []*regexp.Regexp
	client       *http.Client
	log          zerolog.Logger
}

func New(opts Options) *Resolver {
	if opts.MaxHops <= 0 {
		opts.MaxHops = defaultMaxHops
	}
	if opts.HopTimeout <= 0 {
		opts.HopTimeout = defaultHopTimeout
	}

	client := opts.Client
	if client == nil {
		client = &http.Client{}
	}
	// Hops are examined one at a time; the client must never chase a 3xx
	// on its own.
	client.CheckRedirect = func(req *http.Request, via []*http.Request) error {
		return http.ErrUseLastResponse
	}

	return &Resolver{
		maxHops:      opts.MaxHops,
		hopTimeout:   opts.HopTimeout,
		bodyPatterns: opts.BodyPatterns,
		client:       client,
		log:          opts.Logger,
	}
}

// hop is the outcome of a single fetch.
type hop struct {
	status      int
	location    string
	contentType string
	body        []byte
}

// Resolve follows the chain from startURL until it yields a magnet URI.
// All failure modes return an empty string with an error classifying the
// outcome; see Definitive.
func (r *Resolver) Resolve(ctx context.Context, startURL string) (string, error) {
	current := startURL

	for i := 0; i < r.maxHops; i++ {
		// A magnet target cannot be fetched; it IS the answer.
		if strings.HasPrefix(current, "magnet:") {
			r.log.Debug().Int("hops", i).Str("url", startURL).Msg("resolved to magnet scheme")
			return current, nil
		}

		h, err := r.fetch(ctx, current)
		if err != nil {
			return "", err
		}

		switch {
		case h.status >= 300 && h.status < 400:
			if h.location == "" {
				return "", fmt.Errorf("%w: %s", ErrMissingLocation, current)
			}
			r.log.Trace().Int("status", h.status).Str("from", current).Str("to", h.location).Msg("following redirect")
			current = h.location

		case h.status >= 200 && h.status < 300:
			magnet, err := r.scanBody(h)
			if err != nil {
				return "", err
			}
			r.log.Debug().Int("hops", i+1).Str("url", startURL).Msg("resolved from response body")
			return magnet, nil

		default:
			return "", &UpstreamError{StatusCode: h.status, URL: current}
		}
	}

	return "", fmt.Errorf("%w after %d hops: %s", ErrHopLimit, r.maxHops, startURL)
}

func (r *Resolver) fetch(ctx context.Context, url string) (*hop, error) {
	hopCtx, cancel := context.WithTimeout(ctx, r.hopTimeout)
	defer cancel()

	req, err := http.NewRequestWithContext(hopCtx, http.MethodGet, url, nil)
	if err != nil {
		return nil, fmt.Errorf("%w: %v", ErrUpstreamUnreachable, err)
	}
	req.Header.Set("User-Agent", buildinfo.UserAgent)
	req.Header.Set("Accept", "application/x-bittorrent, application/octet-stream, */*")

	resp, err := r.client.Do(req)
	if err != nil {
		return nil, r.classifyFetchErr(hopCtx, ctx, err)
	}
	defer resp.Body.Close()

	h := &hop{
		status:      resp.StatusCode,
		contentType: resp.Header.Get("Content-Type"),
	}

	if loc, err := resp.Location(); err == nil {
		// Location resolves relative targets against the request URL.
		h.location = loc.String()
	}

	if h.status >= 200 && h.status < 300 {
		body, err := io.ReadAll(io.LimitReader(resp.Body, maxBodyBytes+1))
		if err != nil {
			return nil, r.classifyFetchErr(hopCtx, ctx, err)
		}
		if int64(len(body)) > maxBodyBytes {
			return nil, fmt.Errorf("%w: body exceeded %d bytes", ErrNoMagnet, maxBodyBytes)
		}
		h.body = body
	}

	return h, nil
}

// classifyFetchErr separates the retryable timeout/abort outcomes from
// everything else the transport can produce.
func (r *Resolver) classifyFetchErr(hopCtx, parent context.Context, err error) error {
	if parent.Err() != nil {
		return parent.Err()
	}
	if errors.Is(hopCtx.Err(), context.DeadlineExceeded) || errors.Is(err, context.DeadlineExceeded) {
		return ErrResolveTimeout
	}
	return fmt.Errorf("%w: %v", ErrUpstreamUnreachable, err)
}

// scanBody applies the 2xx decision ladder: torrent-shaped bodies go to the
// extractor, text bodies are scraped for a magnet literal, and as a last
// resort the extractor runs anyway because some servers mislabel torrents.
func (r *Resolver) scanBody(h *hop) (string, error) {
	triedExtract := false

	if looksLikeTorrent(h.contentType, h.body) {
		triedExtract = true
		if m, ok := bencode.ExtractMagnet(h.body); ok {
			return m.URI, nil
		}
	}

	if magnet := r.scrapeMagnet(h.body); magnet != "" {
		return magnet, nil
	}

	if !triedExtract {
		if m, ok := bencode.ExtractMagnet(h.body); ok {
			return m.URI, nil
		}
	}

	return "", ErrNoMagnet
}

// scrapeMagnet returns the first magnet literal in body, with HTML-escaped
// ampersands folded back. First match wins; no ranking across candidates.
func (r *Resolver) scrapeMagnet(body []byte) string {
	if m := magnetLiteral.Find(body); m != nil {
		return strings.ReplaceAll(string(m), "&amp;", "&")
	}
	for _, pattern := range r.bodyPatterns {
		if m := pattern.Find(body); m != nil {
			return strings.ReplaceAll(string(m), "&amp;", "&")
		}
	}
	return ""
}

func looksLikeTorrent(contentType string, body []byte) bool {
	if strings.Contains(contentType, "application/x-bittorrent") {
		return true
	}
	// Bencode dictionaries always open with 'd'.
	return len(body) > 0 && body[0] == 'd'
}
