package cookies

import (
	"bufio"
	"fmt"
	"io"
	"os"
	"sort"
	"strconv"
	"strings"
	"time"

	"github.com/spf13/afero"
)

const (
	netscapeHeader = "# Netscape HTTP Cookie File"
	httpOnlyPrefix = "#HttpOnly_"
)

// ReadNetscape reads cookies in Netscape format from r.
// Only cookies matching domain are returned; an empty domain returns all of
// them. Expired cookies and malformed lines are skipped.
func ReadNetscape(r io.Reader, domain string) ([]Cookie, error) {
	now := time.Now()
	domain = strings.ToLower(domain)
	var cookies []Cookie

	scanner := bufio.NewScanner(r)
	scanner.Buffer(make([]byte, 0, 64*1024), 1024*1024)
	for scanner.Scan() {
		line := strings.TrimRight(scanner.Text(), "\r")
		if line == "" {
			continue
		}

		httpOnly := false
		if strings.HasPrefix(line, httpOnlyPrefix) {
			httpOnly = true
			line = line[len(httpOnlyPrefix):]
		} else if strings.HasPrefix(line, "#") {
			continue
		}

		fields := strings.Split(line, "\t")
		if len(fields) != 7 {
			continue
		}
		expiry, err := strconv.ParseInt(fields[4], 10, 64)
		if err != nil {
			continue
		}
		c := Cookie{
			Domain:    fields[0],
			Subdomain: strings.EqualFold(fields[1], "TRUE"),
			Path:      fields[2],
			Secure:    strings.EqualFold(fields[3], "TRUE"),
			Name:      fields[5],
			Value:     fields[6],
			HttpOnly:  httpOnly,
		}
		if expiry > 0 {
			c.Expiry = time.Unix(expiry, 0)
		}
		if c.Expired(now) {
			continue
		}
		if domain != "" && !matchesDomain(c.host(), domain) {
			continue
		}
		cookies = append(cookies, c)
	}
	if err := scanner.Err(); err != nil {
		return nil, fmt.Errorf("error: failed to read Netscape cookie file: %w", err)
	}
	return cookies, nil
}

// ParseNetscape reads a Netscape cookie file from fs. A missing file yields no
// cookies and no error so that a fresh store can be used before it exists.
func ParseNetscape(fs afero.Fs, path, domain string) ([]Cookie, error) {
	f, err := fs.Open(path)
	if err != nil {
		if os.IsNotExist(err) {
			return nil, nil
		}
		return nil, fmt.Errorf("error: cannot open Netscape cookie file: %w", err)
	}
	defer f.Close()
	return ReadNetscape(f, domain)
}

// WriteNetscape writes cookies to w in Netscape format, sorted by domain,
// path and name.
func WriteNetscape(w io.Writer, cookies []Cookie) error {
	sorted := append([]Cookie(nil), cookies...)
	sort.SliceStable(sorted, func(i, j int) bool {
		if sorted[i].host() != sorted[j].host() {
			return sorted[i].host() < sorted[j].host()
		}
		if sorted[i].Path != sorted[j].Path {
			return sorted[i].Path < sorted[j].Path
		}
		return sorted[i].Name < sorted[j].Name
	})

	bw := bufio.NewWriter(w)
	fmt.Fprintln(bw, netscapeHeader)
	fmt.Fprintln(bw, "# This file was generated by warpfetch. Edit at your own risk.")
	fmt.Fprintln(bw)
	for _, c := range sorted {
		var expiry int64
		if !c.IsSession() {
			expiry = c.Expiry.Unix()
		}
		prefix := ""
		if c.HttpOnly {
			prefix = httpOnlyPrefix
		}
		fmt.Fprintf(bw, "%s%s\t%s\t%s\t%s\t%d\t%s\t%s\n",
			prefix, c.Domain, boolField(c.Subdomain), c.Path,
			boolField(c.Secure), expiry, c.Name, c.Value)
	}
	return bw.Flush()
}

func boolField(b bool) string {
	if b {
		return "TRUE"
	}
	return "FALSE"
}

// matchesDomain reports whether a cookie host matches domain exactly or as a
// parent domain.
func matchesDomain(cookieHost, domain string) bool {
	return cookieHost == domain || strings.HasSuffix(cookieHost, "."+domain)
}

// BuildCookieHeader builds an HTTP Cookie header value from a slice of cookies.
// Format: "name1=val1; name2=val2"
func BuildCookieHeader(cookies []Cookie) string {
	parts := make([]string, len(cookies))
	for i, c := range cookies {
		parts[i] = c.Name + "=" + c.Value
	}
	return strings.Join(parts, "; ")
}
