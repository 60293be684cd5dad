package cookies

import (
	"strings"
	"time"
)

// CookieFormat identifies the format of a cookie store file.
type CookieFormat int

const (
	// FormatUnknown means the cookie store format could not be detected.
	FormatUnknown CookieFormat = 0
	// FormatFirefox means the file uses the Firefox moz_cookies SQLite schema.
	FormatFirefox CookieFormat = 1
	// FormatChrome means the file uses the Chrome cookies SQLite schema.
	// Only unencrypted cookies (value != '') are usable.
	FormatChrome CookieFormat = 2
	// FormatNetscape means the file uses the Netscape tab-separated text format.
	FormatNetscape CookieFormat = 3
)

func (f CookieFormat) String() string {
	switch f {
	case FormatFirefox:
		return "Firefox"
	case FormatChrome:
		return "Chrome"
	case FormatNetscape:
		return "Netscape"
	default:
		return "unknown"
	}
}

// Cookie is one entry of a cookie store.
// Value is SENSITIVE: it must never appear in logs or error messages.
type Cookie struct {
	Name  string
	Value string
	// Domain as written in the store. Domain cookies carry a leading dot.
	Domain string
	Path   string
	// Expiry is the zero time for session cookies.
	Expiry   time.Time
	Secure   bool
	HttpOnly bool
	// Subdomain reports whether the cookie also matches subdomains of Domain.
	Subdomain bool
}

// IsSession reports whether the cookie lives only for the current session.
func (c Cookie) IsSession() bool {
	return c.Expiry.IsZero() || c.Expiry.Unix() <= 0
}

// Expired reports whether a persistent cookie expired before now.
func (c Cookie) Expired(now time.Time) bool {
	return !c.IsSession() && !c.Expiry.After(now)
}

// host returns the lowercased domain without its leading dot.
func (c Cookie) host() string {
	return strings.TrimPrefix(strings.ToLower(c.Domain), ".")
}

// key identifies a cookie slot: a later cookie with the same key replaces it.
func (c Cookie) key() string {
	return c.host() + "\t" + c.Path + "\t" + c.Name
}

// CookieSource describes where imported cookies came from.
type CookieSource struct {
	Path    string
	Format  CookieFormat
	Browser string
}
