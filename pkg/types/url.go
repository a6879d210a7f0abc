// Copyright 2025 ZapFS Authors
// SPDX-License-Identifier: Apache-2.0

package types

import (
	"fmt"
	"net/url"
	"strings"
)

// Network selects where canisters are reached.
type Network string

const (
	NetworkIC    Network = "ic"
	NetworkLocal Network = "local"
)

// Default hosts per network.
const (
	ICHost    = "ic0.app"
	LocalHost = "localhost:8000"
)

// Host returns the default host and whether it is served over TLS.
func (n Network) Host() (string, bool) {
	if n == NetworkIC {
		return ICHost, true
	}
	return LocalHost, false
}

// CanisterURL returns the root URL assets of id are served from:
// {scheme}://{canister-id}.{host}/
func CanisterURL(id CanisterID, host string, secure bool) *url.URL {
	scheme := "http"
	if secure {
		scheme = "https"
	}
	return &url.URL{
		Scheme: scheme,
		Host:   id.String() + "." + host,
		Path:   "/",
	}
}

// AssetURL derives the URL of key under base, escaping each path segment.
func AssetURL(base *url.URL, key string) *url.URL {
	if !strings.HasPrefix(key, "/") {
		key = "/" + key
	}
	segments := strings.Split(key, "/")
	for i, s := range segments {
		segments[i] = url.PathEscape(s)
	}

	u := *base
	u.Path = key
	u.RawPath = strings.Join(segments, "/")
	u.RawQuery = ""
	u.Fragment = ""
	return &u
}

// DirectoryURL is AssetURL for a directory key; the result ends with "/".
func DirectoryURL(base *url.URL, dir string) *url.URL {
	if !strings.HasSuffix(dir, "/") {
		dir += "/"
	}
	return AssetURL(base, dir)
}

// ChildURL resolves name (a single path segment) inside directory dirURL.
func ChildURL(dirURL *url.URL, name string) *url.URL {
	return AssetURL(dirURL, strings.TrimSuffix(KeyFromURL(dirURL), "/")+"/"+name)
}

// KeyFromURL returns the decoded asset key of u.
func KeyFromURL(u *url.URL) string {
	if u.Path == "" {
		return "/"
	}
	return u.Path
}

// CanisterFromHost extracts the canister id from a virtual-hosted name
// "{canister-id}.{host}".
func CanisterFromHost(hostport string) (CanisterID, error) {
	host := hostport
	if i := strings.IndexByte(host, '.'); i > 0 {
		host = host[:i]
	} else {
		return CanisterID{}, fmt.Errorf("%w: host %q has no canister label", ErrInvalidCanisterID, hostport)
	}
	return ParseCanisterID(host)
}
