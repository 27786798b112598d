// Copyright (c) 2025 ManuGH
// Licensed under the PolyForm Noncommercial License 1.0.0
// Since v2.0.0, this software is restricted to non-commercial use only.

package net

import (
	"errors"
	"net/url"
	"strings"
)

var (
	ErrSchemeNotAllowed = errors.New("url scheme must be http or https")
	ErrMissingHost      = errors.New("url host is empty")
	ErrCredentials      = errors.New("url must not embed credentials")
	ErrNotAbsolute      = errors.New("url is not absolute")
)

// SanitizeURL removes user info and query parameters for safe logging.
func SanitizeURL(rawURL string) string {
	parsedURL, err := url.Parse(rawURL)
	if err != nil {
		return "invalid-url-redacted"
	}
	parsedURL.User = nil
	parsedURL.RawQuery = ""
	parsedURL.Fragment = ""
	return parsedURL.String()
}

// ParseHTTPURL validates that s is an absolute http(s) URL with a host and no
// embedded credentials. The fragment is dropped; it never reaches the wire.
func ParseHTTPURL(s string) (*url.URL, error) {
	s = strings.TrimSpace(s)
	u, err := url.Parse(s)
	if err != nil {
		return nil, err
	}
	if u.Scheme == "" {
		return nil, ErrNotAbsolute
	}
	scheme := strings.ToLower(u.Scheme)
	if scheme != "http" && scheme != "https" {
		return nil, ErrSchemeNotAllowed
	}
	if u.Hostname() == "" {
		return nil, ErrMissingHost
	}
	if u.User != nil {
		return nil, ErrCredentials
	}
	u.Scheme = scheme
	u.Fragment = ""
	u.RawFragment = ""
	return u, nil
}

// PathExtension returns the lower-cased extension of the URL path, ignoring
// the query string. It returns "" when the path has no extension.
func PathExtension(u *url.URL) string {
	p := u.Path
	if i := strings.LastIndexByte(p, '/'); i >= 0 {
		p = p[i+1:]
	}
	i := strings.LastIndexByte(p, '.')
	if i < 0 || i == len(p)-1 {
		return ""
	}
	return strings.ToLower(p[i:])
}
