// Copyright 2025 ZapFS Authors
// SPDX-License-Identifier: Apache-2.0

package replica

import (
	"bytes"
	"encoding/hex"
	"errors"
	"net/http"
	"path"
	"strconv"
	"strings"
	"time"

	"github.com/LeeDigitalWorks/icbucket/pkg/logger"
	"github.com/LeeDigitalWorks/icbucket/pkg/replica/store"
	"github.com/LeeDigitalWorks/icbucket/pkg/types"
)

const indexFile = "index.html"

// assetCanister resolves the canister a GET addresses: the host label when
// routed by name, else the canisterId query parameter.
func assetCanister(r *http.Request) (types.CanisterID, bool) {
	if id, ok := r.Context().Value(hostCanisterKey{}).(types.CanisterID); ok {
		return id, true
	}
	if q := r.URL.Query().Get("canisterId"); q != "" {
		if id, err := types.ParseCanisterID(q); err == nil {
			return id, true
		}
	}
	return types.CanisterID{}, false
}

func (s *Server) handleAsset(w http.ResponseWriter, r *http.Request) {
	id, ok := assetCanister(r)
	if !ok {
		http.NotFound(w, r)
		return
	}
	c, err := s.replica.Canister(id)
	if err != nil {
		http.NotFound(w, r)
		return
	}

	key := r.URL.Path
	if key == "" || strings.HasSuffix(key, "/") {
		key += indexFile
	}

	a, err := c.Asset(r.Context(), key)
	if errors.Is(err, store.ErrNotFound) {
		http.NotFound(w, r)
		return
	}
	if err != nil {
		logger.Ctx(r.Context()).Error().Err(err).Str("key", key).Msg("replica: asset lookup failed")
		http.Error(w, "internal error", http.StatusInternalServerError)
		return
	}

	enc, ok := selectEncoding(a, r.Header.Get("Accept-Encoding"))
	if !ok {
		if len(a.Encodings) == 0 {
			http.NotFound(w, r)
		} else {
			http.Error(w, "no acceptable encoding", http.StatusNotAcceptable)
		}
		return
	}

	h := w.Header()
	h.Set("Content-Type", a.ContentType)
	h.Set("Vary", "Accept-Encoding")
	h.Set("ETag", strconv.Quote(hex.EncodeToString(enc.SHA256)))
	if enc.ContentEncoding != "identity" {
		h.Set("Content-Encoding", enc.ContentEncoding)
	}
	AssetsServed.WithLabelValues(enc.ContentEncoding).Inc()

	http.ServeContent(w, r, path.Base(key), time.Unix(0, enc.Modified), bytes.NewReader(enc.Content))
}

// selectEncoding picks the smallest stored encoding the client accepts.
func selectEncoding(a *store.Asset, acceptEncoding string) (*store.Encoding, bool) {
	accept := parseAcceptEncoding(acceptEncoding)

	var best *store.Encoding
	for i := range a.Encodings {
		e := &a.Encodings[i]
		if !accept.allows(e.ContentEncoding) {
			continue
		}
		if best == nil || len(e.Content) < len(best.Content) {
			best = e
		}
	}
	return best, best != nil
}

type acceptSet struct {
	q        map[string]float64
	wildcard float64
	hasWild  bool
}

func parseAcceptEncoding(header string) acceptSet {
	set := acceptSet{q: make(map[string]float64)}
	for part := range strings.SplitSeq(header, ",") {
		name, params, _ := strings.Cut(strings.TrimSpace(part), ";")
		name = strings.ToLower(strings.TrimSpace(name))
		if name == "" {
			continue
		}
		q := 1.0
		if v, ok := strings.CutPrefix(strings.TrimSpace(params), "q="); ok {
			if f, err := strconv.ParseFloat(v, 64); err == nil {
				q = f
			}
		}
		if name == "*" {
			set.wildcard, set.hasWild = q, true
			continue
		}
		set.q[name] = q
	}
	return set
}

// allows reports whether enc has a non-zero weight. identity is acceptable
// unless excluded explicitly.
func (s acceptSet) allows(enc string) bool {
	if q, ok := s.q[enc]; ok {
		return q > 0
	}
	if s.hasWild {
		return s.wildcard > 0
	}
	return enc == "identity"
}
