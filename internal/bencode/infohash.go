// Copyright (c) 2026, the fetcharr contributors.
// SPDX-License-Identifier: GPL-2.0-or-later

// Package bencode recovers the magnet URI for a raw torrent payload without
// decoding the document. It only needs the byte span of the top-level "info"
// value; everything else in the file is skipped over.
package bencode

import (
	"bytes"
	"crypto/sha1"
	"encoding/hex"
	"net/url"
	"strconv"
	"strings"
)

// UnknownName is used when the payload has no readable "name" field.
const UnknownName = "Unknown"

var infoMarker = []byte("4:info")

// Magnet is the outcome of a successful extraction.
type Magnet struct {
	// URI is the full magnet link, magnet:?xt=urn:btih:<hash>&dn=<name>.
	URI string
	// InfoHash is the 40-char lowercase hex SHA-1 of the bencoded info value.
	InfoHash string
	// Name is the display name, or UnknownName when absent.
	Name string
}

// ExtractMagnet locates the bencoded "info" value in buf, hashes its exact
// byte span and builds a magnet URI. The second return is false when buf is
// not a parseable torrent payload; arbitrary response bodies are expected
// here, so no input ever causes a panic or an error value.
func ExtractMagnet(buf []byte) (Magnet, bool) {
	idx := bytes.Index(buf, infoMarker)
	if idx < 0 {
		return Magnet{}, false
	}

	start := idx + len(infoMarker)
	end, ok := valueEnd(buf, start)
	if !ok {
		return Magnet{}, false
	}

	sum := sha1.Sum(buf[start:end])
	hash := hex.EncodeToString(sum[:])

	name := extractName(buf)

	return Magnet{
		URI:      "magnet:?xt=urn:btih:" + hash + "&dn=" + escapeName(name),
		InfoHash: hash,
		Name:     name,
	}, true
}

// escapeName percent-encodes a display name for the dn parameter.
// QueryEscape alone would turn spaces into '+', which magnet producers in
// the wild do not do.
func escapeName(name string) string {
	return strings.ReplaceAll(url.QueryEscape(name), "+", "%20")
}

// valueEnd walks the bencode grammar from start and returns the exclusive
// end offset of the value there. The walk tracks how many bytes of a
// length-prefixed string remain so that binary payloads (piece hashes and
// the like) containing 'd', 'l', 'e' or digit bytes never register as
// grammar tokens.
func valueEnd(buf []byte, start int) (int, bool) {
	depth := 0
	opened := false
	strRemaining := 0
	lenStart := -1 // start of a pending digit run, -1 when none

	for i := start; i < len(buf); i++ {
		if strRemaining > 0 {
			strRemaining--
			continue
		}

		c := buf[i]
		switch {
		case c >= '0' && c <= '9':
			if lenStart < 0 {
				lenStart = i
			}
		case c == ':':
			if lenStart < 0 {
				return 0, false
			}
			n, err := strconv.Atoi(string(buf[lenStart:i]))
			if err != nil || n < 0 {
				return 0, false
			}
			strRemaining = n
			lenStart = -1
		case c == 'd' || c == 'l' || c == 'i':
			// 'i' opens an integer; its digits are dropped by the reset
			// here and its closing 'e' rebalances the depth below.
			lenStart = -1
			depth++
			opened = true
		case c == 'e':
			lenStart = -1
			depth--
			if depth == 0 && opened {
				return i + 1, true
			}
			if depth < 0 {
				return 0, false
			}
		case c == '-':
			// Sign of a negative integer.
			lenStart = -1
		default:
			return 0, false
		}
	}

	// Ran off the end without closing: truncated or not bencode at all.
	return 0, false
}

// extractName best-effort reads the display name from a "4:name<len>:" token
// anywhere in buf. Malformed or absent names fall back to UnknownName.
func extractName(buf []byte) string {
	marker := []byte("4:name")
	idx := bytes.Index(buf, marker)
	if idx < 0 {
		return UnknownName
	}

	i := idx + len(marker)
	lenStart := i
	for i < len(buf) && buf[i] >= '0' && buf[i] <= '9' {
		i++
	}
	if i == lenStart || i >= len(buf) || buf[i] != ':' {
		return UnknownName
	}

	n, err := strconv.Atoi(string(buf[lenStart:i]))
	if err != nil || n <= 0 || i+1+n > len(buf) {
		return UnknownName
	}

	return string(buf[i+1 : i+1+n])
}
