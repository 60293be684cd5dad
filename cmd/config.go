package cmd

import (
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"strings"
	"time"

	"gopkg.in/yaml.v3"

	"github.com/warpdl/warpfetch/common"
	"github.com/warpdl/warpfetch/pkg/fetchlib"
)

const (
	DEF_CONNECT_TIMEOUT = 30 * time.Second
)

const DESCRIPTION = `
warpfetch performs HTTP, HTTPS, FTP and FTPS transfers from the
command line. Single requests run with "get"; a batch file runs
many requests in one session that shares connections and cookies.
`

const (
	GetDescription = `The get command performs one request and prints the
response body, or saves it with --output.

Example:
        warpfetch https://domain.com/api/items
					OR
        warpfetch get -o file.zip https://domain.com/file.zip

`
	BatchDescription = `The batch command runs every request of a batch file in
one session. A YAML file describes the requests and the session
settings; any other file is read as a list of URLs, one per line.

Example:
        warpfetch batch requests.yaml

`
	CredsDescription = `The creds command stores passwords in the system keyring
so that --user can name an account without a password. When no
keyring is available the password is kept in an encrypted vault
file in the configuration directory.

Example:
        warpfetch creds set alice@ftp.domain.com

`
)

// RequestSpec describes one request of a batch file. The get command
// builds one from its flags.
type RequestSpec struct {
	URL            string        `yaml:"url"`
	Kind           string        `yaml:"kind"`
	Output         string        `yaml:"output"`
	Headers        []string      `yaml:"headers"`
	Range          string        `yaml:"range"`
	Proxy          string        `yaml:"proxy"`
	User           string        `yaml:"user"`
	Upload         string        `yaml:"upload"`
	ConnectTimeout time.Duration `yaml:"connect_timeout"`
	Timeout        time.Duration `yaml:"timeout"`
	MaxRecvSpeed   string        `yaml:"max_recv_speed"`
	MaxSendSpeed   string        `yaml:"max_send_speed"`
	Insecure       bool          `yaml:"insecure"`
	NoRedirects    bool          `yaml:"no_redirects"`
	FailOnError    bool          `yaml:"fail_on_error"`
	ResetCookies   bool          `yaml:"reset_cookies"`
	Verbose        bool          `yaml:"verbose"`
}

// BatchConfig is the content of a batch file.
type BatchConfig struct {
	MaxConcurrent int           `yaml:"max_concurrent"`
	CookieDir     string        `yaml:"cookie_dir"`
	Cookies       bool          `yaml:"cookies"`
	SeedCookies   string        `yaml:"seed_cookies"`
	SeedDomain    string        `yaml:"seed_domain"`
	TimeLimit     time.Duration `yaml:"time_limit"`
	// LogFile receives a copy of the log lines of the run.
	LogFile       string        `yaml:"log_file"`
	Requests      []RequestSpec `yaml:"requests"`
	// Skipped holds the invalid lines of a URL list.
	Skipped []InvalidLine `yaml:"-"`
}

var (
	ErrNoRequests = errors.New("batch file has no requests")
	ErrMissingURL = errors.New("request has no url")
)

// LoadBatchConfig reads a batch file. Files ending in .yaml or .yml are
// decoded as BatchConfig; any other file is a URL list.
func LoadBatchConfig(path string) (*BatchConfig, error) {
	if !isYAML(path) {
		res, err := ParseInputFile(path)
		if err != nil {
			return nil, err
		}
		cfg := &BatchConfig{Skipped: res.InvalidLines}
		for _, u := range res.URLs {
			cfg.Requests = append(cfg.Requests, RequestSpec{URL: u})
		}
		return cfg, nil
	}
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, wrapInputFileError(path, err)
	}
	return ParseBatchConfig(data)
}

// ParseBatchConfig decodes a YAML batch file.
func ParseBatchConfig(data []byte) (*BatchConfig, error) {
	var cfg BatchConfig
	if err := yaml.Unmarshal(data, &cfg); err != nil {
		return nil, fmt.Errorf("error parsing YAML batch file: %w", err)
	}
	if len(cfg.Requests) == 0 {
		return nil, ErrNoRequests
	}
	for i := range cfg.Requests {
		cfg.Requests[i].URL = strings.TrimSpace(cfg.Requests[i].URL)
		if cfg.Requests[i].URL == "" {
			return nil, fmt.Errorf("request %d: %w", i+1, ErrMissingURL)
		}
		if _, err := cfg.Requests[i].kind(); err != nil {
			return nil, fmt.Errorf("request %d: %w", i+1, err)
		}
	}
	if cfg.MaxConcurrent < 0 {
		return nil, fmt.Errorf("max_concurrent must not be negative, got %d", cfg.MaxConcurrent)
	}
	return &cfg, nil
}

// ApplyEnv overrides the session settings of cfg from the environment.
func (cfg *BatchConfig) ApplyEnv() {
	if n, ok := common.MaxConcurrent(); ok {
		cfg.MaxConcurrent = n
	}
	if dir := common.CookieDir(); dir != "" {
		cfg.CookieDir = dir
	}
}

// kind resolves the request kind. Without an explicit kind a request
// with an output file downloads, a request with an upload source puts
// and anything else is a GET (or a listing for FTP URLs).
func (s *RequestSpec) kind() (fetchlib.Kind, error) {
	if s.Kind != "" {
		return fetchlib.ParseKind(s.Kind)
	}
	ftp := isFTP(s.URL)
	switch {
	case s.Upload != "" && ftp:
		return fetchlib.KindFTPUpload, nil
	case s.Upload != "":
		return fetchlib.KindPutUpload, nil
	case s.Output != "":
		return fetchlib.KindAnyDownload, nil
	case ftp:
		return fetchlib.KindFTPList, nil
	default:
		return fetchlib.KindGet, nil
	}
}

func isFTP(rawURL string) bool {
	lower := strings.ToLower(rawURL)
	return strings.HasPrefix(lower, "ftp://") || strings.HasPrefix(lower, "ftps://")
}

func isYAML(path string) bool {
	switch strings.ToLower(filepath.Ext(path)) {
	case ".yaml", ".yml":
		return true
	}
	return false
}
