package cookies

import (
	"fmt"
	"net"
	"net/http"
	"net/url"
	"path"
	"sort"
	"strings"
	"sync"
	"time"

	"github.com/spf13/afero"
	"golang.org/x/net/publicsuffix"
)

// JarOpts configures a Jar.
type JarOpts struct {
	// IgnoreSession skips session cookies found in the file when the jar is
	// opened. This starts a fresh logical cookie session for the transfer
	// while leaving the stored session cookies of others untouched.
	IgnoreSession bool
	// Lock serialises load/merge/save of the file across jars sharing it.
	// When nil the jar only guards itself.
	Lock sync.Locker
}

// Jar is an http.CookieJar backed by a Netscape cookie file.
// Cookies set through SetCookies are buffered until Flush merges them into
// the file, so concurrent jars on one file do not lose each other's updates.
type Jar struct {
	fs      afero.Fs
	path    string
	lock    sync.Locker
	now     func() time.Time
	mu      sync.Mutex
	entries map[string]Cookie
	// order keeps first-seen key order for stable Cookies() results.
	order   []string
	changed map[string]*Cookie
	changes []string
}

var _ http.CookieJar = (*Jar)(nil)

// OpenJar loads the cookie file at path (a missing file is an empty store).
func OpenJar(fs afero.Fs, path string, opts *JarOpts) (*Jar, error) {
	if opts == nil {
		opts = &JarOpts{}
	}
	lock := opts.Lock
	if lock == nil {
		lock = &sync.Mutex{}
	}
	j := &Jar{
		fs:      fs,
		path:    path,
		lock:    lock,
		now:     time.Now,
		entries: make(map[string]Cookie),
		changed: make(map[string]*Cookie),
	}
	lock.Lock()
	stored, err := ParseNetscape(fs, path, "")
	lock.Unlock()
	if err != nil {
		return nil, err
	}
	for _, c := range stored {
		if opts.IgnoreSession && c.IsSession() {
			continue
		}
		j.store(c)
	}
	return j, nil
}

func (j *Jar) store(c Cookie) {
	k := c.key()
	if _, ok := j.entries[k]; !ok {
		j.order = append(j.order, k)
	}
	j.entries[k] = c
}

func (j *Jar) record(k string, c *Cookie) {
	if _, ok := j.changed[k]; !ok {
		j.changes = append(j.changes, k)
	}
	j.changed[k] = c
}

// Put adds or replaces a cookie as if a server had set it.
func (j *Jar) Put(c Cookie) {
	j.mu.Lock()
	defer j.mu.Unlock()
	j.store(c)
	cp := c
	j.record(c.key(), &cp)
}

// Len returns the number of cookies currently visible in the jar.
func (j *Jar) Len() int {
	j.mu.Lock()
	defer j.mu.Unlock()
	return len(j.entries)
}

// SetCookies implements http.CookieJar.
func (j *Jar) SetCookies(u *url.URL, cookies []*http.Cookie) {
	host, err := canonicalHost(u.Host)
	if err != nil {
		return
	}
	now := j.now()

	j.mu.Lock()
	defer j.mu.Unlock()
	for _, hc := range cookies {
		c, ok := j.fromHTTP(u, host, hc, now)
		if !ok {
			continue
		}
		k := c.key()
		if c.Expired(now) {
			if _, had := j.entries[k]; had {
				delete(j.entries, k)
			}
			j.record(k, nil)
			continue
		}
		j.store(c)
		cp := c
		j.record(k, &cp)
	}
}

func (j *Jar) fromHTTP(u *url.URL, host string, hc *http.Cookie, now time.Time) (Cookie, bool) {
	c := Cookie{
		Name:     hc.Name,
		Value:    hc.Value,
		Path:     hc.Path,
		Secure:   hc.Secure,
		HttpOnly: hc.HttpOnly,
	}

	domain := strings.TrimPrefix(strings.ToLower(hc.Domain), ".")
	switch {
	case domain == "" || domain == host:
		c.Domain = host
		if domain != "" && !isIP(host) {
			c.Domain = "." + host
			c.Subdomain = true
		}
	case isIP(host):
		return Cookie{}, false
	case !strings.HasSuffix(host, "."+domain):
		return Cookie{}, false
	default:
		if ps, _ := publicsuffix.PublicSuffix(domain); ps == domain {
			return Cookie{}, false
		}
		c.Domain = "." + domain
		c.Subdomain = true
	}

	if c.Path == "" || c.Path[0] != '/' {
		c.Path = defaultPath(u.Path)
	}

	switch {
	case hc.MaxAge < 0:
		c.Expiry = time.Unix(1, 0)
	case hc.MaxAge > 0:
		c.Expiry = now.Add(time.Duration(hc.MaxAge) * time.Second)
	case !hc.Expires.IsZero():
		c.Expiry = hc.Expires
		if !c.Expiry.After(now) {
			c.Expiry = time.Unix(1, 0)
		}
	}
	return c, true
}

// Cookies implements http.CookieJar.
func (j *Jar) Cookies(u *url.URL) []*http.Cookie {
	host, err := canonicalHost(u.Host)
	if err != nil {
		return nil
	}
	secure := u.Scheme == "https" || u.Scheme == "ftps"
	reqPath := u.Path
	if reqPath == "" {
		reqPath = "/"
	}
	now := j.now()

	j.mu.Lock()
	defer j.mu.Unlock()
	var matched []Cookie
	for _, k := range j.order {
		c, ok := j.entries[k]
		if !ok || c.Expired(now) {
			continue
		}
		if c.Secure && !secure {
			continue
		}
		ch := c.host()
		if c.Subdomain {
			if !matchesDomain(host, ch) {
				continue
			}
		} else if host != ch {
			continue
		}
		if !pathMatch(reqPath, c.Path) {
			continue
		}
		matched = append(matched, c)
	}
	sort.SliceStable(matched, func(a, b int) bool {
		return len(matched[a].Path) > len(matched[b].Path)
	})
	out := make([]*http.Cookie, len(matched))
	for i, c := range matched {
		out[i] = &http.Cookie{Name: c.Name, Value: c.Value}
	}
	return out
}

// Flush merges the cookies changed through this jar into the file.
// The file is re-read under the lock so updates from other jars survive.
func (j *Jar) Flush() error {
	j.mu.Lock()
	defer j.mu.Unlock()
	if len(j.changes) == 0 {
		return nil
	}

	j.lock.Lock()
	defer j.lock.Unlock()

	stored, err := ParseNetscape(j.fs, j.path, "")
	if err != nil {
		return err
	}
	merged := make([]Cookie, 0, len(stored)+len(j.changes))
	index := make(map[string]int, len(stored))
	for _, c := range stored {
		index[c.key()] = len(merged)
		merged = append(merged, c)
	}
	removed := make(map[int]bool)
	for _, k := range j.changes {
		c := j.changed[k]
		i, had := index[k]
		switch {
		case c == nil && had:
			removed[i] = true
		case c == nil:
		case had:
			merged[i] = *c
			delete(removed, i)
		default:
			index[k] = len(merged)
			merged = append(merged, *c)
		}
	}
	out := merged[:0:0]
	for i, c := range merged {
		if !removed[i] {
			out = append(out, c)
		}
	}

	if err := writeAtomic(j.fs, j.path, out); err != nil {
		return err
	}
	j.changed = make(map[string]*Cookie)
	j.changes = nil
	return nil
}

func writeAtomic(fs afero.Fs, path string, cookies []Cookie) error {
	tmp := path + ".tmp"
	f, err := fs.Create(tmp)
	if err != nil {
		return fmt.Errorf("error: cannot write cookie file: %w", err)
	}
	if err := WriteNetscape(f, cookies); err != nil {
		f.Close()
		fs.Remove(tmp)
		return fmt.Errorf("error: cannot write cookie file: %w", err)
	}
	if err := f.Close(); err != nil {
		fs.Remove(tmp)
		return fmt.Errorf("error: cannot write cookie file: %w", err)
	}
	if err := fs.Rename(tmp, path); err != nil {
		fs.Remove(tmp)
		return fmt.Errorf("error: cannot replace cookie file: %w", err)
	}
	return nil
}

func canonicalHost(host string) (string, error) {
	if h, _, err := net.SplitHostPort(host); err == nil {
		host = h
	}
	host = strings.TrimSuffix(strings.ToLower(host), ".")
	host = strings.Trim(host, "[]")
	if host == "" {
		return "", fmt.Errorf("empty host")
	}
	return host, nil
}

func isIP(host string) bool {
	return net.ParseIP(host) != nil
}

// defaultPath implements the RFC 6265 default-path algorithm.
func defaultPath(p string) string {
	if p == "" || p[0] != '/' {
		return "/"
	}
	dir := path.Dir(p)
	if dir == "." || dir == "" {
		return "/"
	}
	return dir
}

func pathMatch(reqPath, cookiePath string) bool {
	if reqPath == cookiePath {
		return true
	}
	if !strings.HasPrefix(reqPath, cookiePath) {
		return false
	}
	return strings.HasSuffix(cookiePath, "/") || reqPath[len(cookiePath)] == '/'
}
