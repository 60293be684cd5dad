package transport

import (
	"errors"
	"fmt"
	"net/http"
	"net/url"
)

const (
	// DefaultMaxRedirects is the redirect cap used when Options.MaxRedirects
	// is negative. Matches Go's default http.Client behavior.
	DefaultMaxRedirects = 10
)

var (
	// ErrTooManyRedirects is returned when a redirect chain exceeds the configured max hops.
	ErrTooManyRedirects = errors.New("maximum redirects followed")

	// ErrCrossProtocolRedirect is returned when a redirect crosses from HTTP/HTTPS
	// to a non-HTTP protocol (e.g., FTP).
	ErrCrossProtocolRedirect = errors.New("cross-protocol redirect not supported")
)

func isHTTPScheme(scheme string) bool {
	return scheme == "http" || scheme == "https"
}

// isCrossOrigin returns true if two URLs have different hosts.
// Host includes port if specified (e.g., "example.com:8080").
func isCrossOrigin(a, b *url.URL) bool {
	return a.Host != b.Host
}

// redirectPolicy returns a CheckRedirect function for one transfer.
// It enforces the hop cap, rejects cross-protocol redirects, strips
// non-standard headers on cross-origin hops unless keepAuth is set, and sets
// Referer when autoReferer is set. Each followed hop is reported to onHop.
func redirectPolicy(opts *Options, onHop func()) func(*http.Request, []*http.Request) error {
	if !opts.FollowRedirects {
		return func(*http.Request, []*http.Request) error {
			return http.ErrUseLastResponse
		}
	}
	max := opts.MaxRedirects
	if max < 0 {
		max = DefaultMaxRedirects
	}
	return func(req *http.Request, via []*http.Request) error {
		if len(via) > max {
			lastURL := via[len(via)-1].URL.String()
			return fmt.Errorf("%w: exceeded %d hops (last URL: %s)",
				ErrTooManyRedirects, max, lastURL)
		}
		if len(via) > 0 {
			prev := via[len(via)-1]
			if isHTTPScheme(prev.URL.Scheme) && !isHTTPScheme(req.URL.Scheme) {
				return fmt.Errorf("%w: %s -> %s",
					ErrCrossProtocolRedirect, prev.URL.Scheme, req.URL.Scheme)
			}
			if isCrossOrigin(prev.URL, req.URL) && !opts.UnrestrictedAuth {
				stripUnsafeHeaders(req)
			} else if opts.UnrestrictedAuth {
				if auth := via[0].Header.Get("Authorization"); auth != "" {
					req.Header.Set("Authorization", auth)
				}
			}
			if opts.AutoReferer {
				req.Header.Set("Referer", prev.URL.String())
			}
		}
		onHop()
		return nil
	}
}

// safeHeaders are headers that should be preserved on cross-origin redirects.
var safeHeaders = map[string]bool{
	"User-Agent":      true,
	"Accept":          true,
	"Accept-Language": true,
	"Accept-Encoding": true,
	"Range":           true,
	"Referer":         true,
}

// stripUnsafeHeaders removes all non-safe headers from the request.
// Go already drops Authorization and Cookie across hosts; custom user
// headers are dropped here too.
func stripUnsafeHeaders(req *http.Request) {
	for key := range req.Header {
		if !safeHeaders[http.CanonicalHeaderKey(key)] {
			req.Header.Del(key)
		}
	}
}
