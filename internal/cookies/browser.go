package cookies

import (
	"bytes"
	"database/sql"
	"fmt"
	"io"
	"os"
	"path/filepath"
	"time"

	"github.com/spf13/afero"
	_ "modernc.org/sqlite"
)

// sqliteMagic is the first 16 bytes of any SQLite database file.
var sqliteMagic = []byte("SQLite format 3\x00")

// chromeEpochOffsetSeconds is the number of seconds between 1601-01-01 and
// the Unix epoch. Chrome stores expiry as microseconds since 1601.
const chromeEpochOffsetSeconds int64 = 11_644_473_600

func chromeToUnix(chromeUSec int64) int64 {
	return (chromeUSec / 1_000_000) - chromeEpochOffsetSeconds
}

// browserQuery describes how one browser schema maps onto Cookie.
type browserQuery struct {
	browser  string
	table    string
	query    string
	toExpiry func(raw int64) time.Time
}

var (
	firefoxQuery = browserQuery{
		browser: "Firefox",
		table:   "moz_cookies",
		query: `SELECT name, value, host, path, expiry, isSecure, isHttpOnly
        FROM moz_cookies
        WHERE (? = '' OR host = ? OR host = ? OR host LIKE ?)
          AND expiry > ?
        ORDER BY path DESC, name ASC`,
		toExpiry: func(raw int64) time.Time { return time.Unix(raw, 0) },
	}
	chromeQuery = browserQuery{
		browser: "Chrome",
		table:   "cookies",
		query: `SELECT name, value, host_key, path, expires_utc, is_secure, is_httponly
        FROM cookies
        WHERE (? = '' OR host_key = ? OR host_key = ? OR host_key LIKE ?)
          AND value != ''
          AND expires_utc > ?
        ORDER BY path DESC, name ASC`,
		toExpiry: func(raw int64) time.Time { return time.Unix(chromeToUnix(raw), 0) },
	}
)

// ParseFirefox reads unexpired cookies from a Firefox cookies.sqlite file.
// An empty domain returns every cookie.
func ParseFirefox(dbPath, domain string) ([]Cookie, error) {
	return firefoxQuery.parse(dbPath, domain, time.Now().Unix())
}

// ParseChrome reads unexpired, unencrypted cookies from a Chrome Cookies file.
// An empty domain returns every cookie.
func ParseChrome(dbPath, domain string) ([]Cookie, error) {
	nowChrome := (time.Now().Unix() + chromeEpochOffsetSeconds) * 1_000_000
	return chromeQuery.parse(dbPath, domain, nowChrome)
}

func (q browserQuery) parse(dbPath, domain string, now int64) ([]Cookie, error) {
	db, err := sql.Open("sqlite", fmt.Sprintf("file:%s?immutable=1", dbPath))
	if err != nil {
		return nil, fmt.Errorf("error: cannot open %s cookie database: %w", q.browser, err)
	}
	defer db.Close()

	rows, err := db.Query(q.query, domain, domain, "."+domain, "%."+domain, now)
	if err != nil {
		return nil, fmt.Errorf("error: failed to query %s cookies: %w", q.browser, err)
	}
	defer rows.Close()

	var cookies []Cookie
	for rows.Next() {
		var (
			name, value, host, cpath string
			expiry                   int64
			secure, httpOnly         int
		)
		if err := rows.Scan(&name, &value, &host, &cpath, &expiry, &secure, &httpOnly); err != nil {
			return nil, fmt.Errorf("error: failed to scan %s cookie row: %w", q.browser, err)
		}
		cookies = append(cookies, Cookie{
			Name:      name,
			Value:     value,
			Domain:    host,
			Path:      cpath,
			Expiry:    q.toExpiry(expiry),
			Secure:    secure != 0,
			HttpOnly:  httpOnly != 0,
			Subdomain: len(host) > 0 && host[0] == '.',
		})
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("error: failed to iterate %s cookie rows: %w", q.browser, err)
	}
	return cookies, nil
}

// DetectFormat determines the cookie store format of the file at path.
func DetectFormat(path string) (CookieFormat, error) {
	info, err := os.Stat(path)
	if err != nil {
		return FormatUnknown, fmt.Errorf("error: cookie file not found: %s", path)
	}
	if info.IsDir() {
		return FormatUnknown, fmt.Errorf("error: %s is a directory, expected a cookie file", path)
	}
	if info.Size() == 0 {
		return FormatUnknown, fmt.Errorf("error: cookie file at %s is empty or corrupted", path)
	}

	f, err := os.Open(path)
	if err != nil {
		return FormatUnknown, fmt.Errorf("error: cannot open cookie file: %w", err)
	}
	defer f.Close()

	head := make([]byte, 512)
	n, err := io.ReadFull(f, head)
	if err != nil && err != io.ErrUnexpectedEOF {
		return FormatUnknown, fmt.Errorf("error: cannot read cookie file: %w", err)
	}
	head = head[:n]

	if bytes.HasPrefix(head, sqliteMagic) {
		return detectSQLiteFormat(path)
	}
	firstLine := head
	if idx := bytes.IndexByte(firstLine, '\n'); idx >= 0 {
		firstLine = firstLine[:idx]
	}
	switch string(bytes.TrimRight(firstLine, "\r")) {
	case netscapeHeader, "# HTTP Cookie File":
		return FormatNetscape, nil
	}
	return FormatUnknown, fmt.Errorf("error: unsupported cookie database schema at %s", path)
}

func detectSQLiteFormat(path string) (CookieFormat, error) {
	db, err := sql.Open("sqlite", fmt.Sprintf("file:%s?mode=ro", path))
	if err != nil {
		return FormatUnknown, fmt.Errorf("error: cannot open SQLite database: %w", err)
	}
	defer db.Close()

	for _, q := range []struct {
		table  string
		format CookieFormat
	}{
		{firefoxQuery.table, FormatFirefox},
		{chromeQuery.table, FormatChrome},
	} {
		var name string
		err := db.QueryRow(`SELECT name FROM sqlite_master WHERE type='table' AND name=?`, q.table).Scan(&name)
		if err == nil {
			return q.format, nil
		}
	}
	return FormatUnknown, fmt.Errorf("error: unsupported cookie database schema at %s", path)
}

// SafeCopy copies a SQLite cookie file (and its -wal and -shm companions if
// they exist) to a temporary directory so the owning browser's lock is not
// contended. The caller must call cleanup when done.
func SafeCopy(srcPath string) (tempDir string, cleanup func(), err error) {
	tempDir, err = os.MkdirTemp("", "warpfetch-cookies-*")
	if err != nil {
		return "", nil, fmt.Errorf("error: cannot create temp directory: %w", err)
	}
	cleanup = func() {
		os.RemoveAll(tempDir)
	}

	osFs := afero.NewOsFs()
	base := filepath.Base(srcPath)
	if err := copyFile(osFs, srcPath, filepath.Join(tempDir, base)); err != nil {
		cleanup()
		return "", nil, err
	}
	for _, suffix := range []string{"-wal", "-shm"} {
		if _, err := osFs.Stat(srcPath + suffix); err == nil {
			_ = copyFile(osFs, srcPath+suffix, filepath.Join(tempDir, base+suffix))
		}
	}
	return tempDir, cleanup, nil
}

func copyFile(fs afero.Fs, src, dst string) error {
	in, err := fs.Open(src)
	if err != nil {
		return fmt.Errorf("error: cannot open source file %s: %w", src, err)
	}
	defer in.Close()

	out, err := fs.Create(dst)
	if err != nil {
		return fmt.Errorf("error: cannot create destination file %s: %w", dst, err)
	}
	defer out.Close()

	if _, err := io.Copy(out, in); err != nil {
		return fmt.Errorf("error: cannot copy file: %w", err)
	}
	return nil
}

// ImportCookies imports cookies for domain (all domains when empty) from a
// Firefox, Chrome or Netscape cookie store on the local filesystem.
func ImportCookies(sourcePath, domain string) ([]Cookie, *CookieSource, error) {
	format, err := DetectFormat(sourcePath)
	if err != nil {
		return nil, nil, err
	}
	source := &CookieSource{Path: sourcePath, Format: format, Browser: format.String()}

	var cookies []Cookie
	switch format {
	case FormatFirefox:
		cookies, err = importSQLite(sourcePath, domain, ParseFirefox)
	case FormatChrome:
		cookies, err = importSQLite(sourcePath, domain, ParseChrome)
	case FormatNetscape:
		cookies, err = ParseNetscape(afero.NewOsFs(), sourcePath, domain)
	}
	if err != nil {
		return nil, nil, err
	}
	return cookies, source, nil
}

func importSQLite(sourcePath, domain string, parser func(string, string) ([]Cookie, error)) ([]Cookie, error) {
	tempDir, cleanup, err := SafeCopy(sourcePath)
	if err != nil {
		return nil, err
	}
	defer cleanup()
	return parser(filepath.Join(tempDir, filepath.Base(sourcePath)), domain)
}
