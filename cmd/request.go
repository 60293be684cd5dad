package cmd

import (
	"errors"
	"fmt"
	"net/url"
	"strings"

	"github.com/warpdl/warpfetch/pkg/credman"
	"github.com/warpdl/warpfetch/pkg/fetchlib"
	"github.com/warpdl/warpfetch/pkg/transport"
)

// passwordSource resolves the password of a --user value given without
// one. *credman.Manager satisfies it.
type passwordSource interface {
	Password(user, host string) (string, error)
}

var _ passwordSource = (*credman.Manager)(nil)

var ErrHeadersNeedHTTP = errors.New("headers require an HTTP URL")

// newRequest creates and configures the request described by spec.
func newRequest(engine transport.Engine, spec *RequestSpec, opts fetchlib.RequestOpts, creds passwordSource) (*fetchlib.Request, error) {
	kind, err := spec.kind()
	if err != nil {
		return nil, err
	}
	if kind.NeedsDestination() {
		opts.Destination = spec.Output
	}
	req, err := fetchlib.NewRequest(engine, spec.URL, kind, &opts)
	if err != nil {
		return nil, err
	}
	if err := spec.apply(req, creds); err != nil {
		req.Finalize()
		return nil, err
	}
	return req, nil
}

// apply validates the fields of spec before handing them to the request
// setters, which panic on invalid input.
func (s *RequestSpec) apply(req *fetchlib.Request, creds passwordSource) error {
	http := req.Protocol() == fetchlib.ProtocolHTTP

	if len(s.Headers) > 0 && !http {
		return ErrHeadersNeedHTTP
	}
	for _, h := range s.Headers {
		name, value, ok := strings.Cut(h, ":")
		name = strings.TrimSpace(name)
		if !ok || name == "" || strings.ContainsAny(name, " \t\r\n") {
			return fmt.Errorf("invalid header %q", h)
		}
		req.AddHeader(name, strings.TrimSpace(value))
	}

	if s.Range != "" {
		ranges, err := fetchlib.ParseByteRanges(s.Range)
		if err != nil {
			return err
		}
		if !http && len(ranges) > 1 {
			return fmt.Errorf("range %q: FTP supports a single range", s.Range)
		}
		req.SetByteRanges(ranges...)
	}

	if s.Proxy != "" {
		cfg, err := transport.ParseProxyURL(s.Proxy)
		if err != nil {
			return fmt.Errorf("proxy %q: %w", s.Proxy, err)
		}
		req.SetProxy(s.Proxy)
		if cfg.Scheme == "socks5" {
			req.SetProxyType(transport.ProxySOCKS5)
		}
	}

	if s.User != "" {
		user, pass, err := resolveUser(s.User, req.URL(), creds)
		if err != nil {
			return err
		}
		req.SetCredentials(user, pass)
	}

	if s.Upload != "" {
		if !req.Kind().Uploads() {
			return fmt.Errorf("upload source given for a %s request", req.Kind())
		}
		req.SetUploadFile(s.Upload)
	}

	if s.ConnectTimeout > 0 {
		req.SetConnectTimeout(s.ConnectTimeout)
	}
	if s.Timeout > 0 {
		req.SetTimeout(s.Timeout)
	}
	if err := applySpeed(s.MaxRecvSpeed, req.SetMaxRecvSpeed); err != nil {
		return err
	}
	if err := applySpeed(s.MaxSendSpeed, req.SetMaxSendSpeed); err != nil {
		return err
	}

	if s.Insecure {
		req.SetVerifyPeer(false)
		req.SetVerifyHost(false)
	}
	if http {
		req.SetFollowRedirects(!s.NoRedirects)
		if s.FailOnError {
			req.SetFailOnError(true)
		}
	}
	if s.Verbose {
		req.SetVerbose(true)
	}
	return nil
}

func applySpeed(limit string, set func(int64)) error {
	if limit == "" {
		return nil
	}
	bps, err := transport.ParseSpeedLimit(limit)
	if err != nil {
		return err
	}
	if bps > 0 {
		set(bps)
	}
	return nil
}

// resolveUser splits a "user[:password]" value. Without a password the
// stored one for the host of rawURL is looked up.
func resolveUser(value, rawURL string, creds passwordSource) (string, string, error) {
	user, pass, ok := strings.Cut(value, ":")
	if ok {
		return user, pass, nil
	}
	u, err := url.Parse(rawURL)
	if err != nil {
		return "", "", err
	}
	if creds == nil {
		return "", "", fmt.Errorf("no password given for %s", user)
	}
	host := strings.ToLower(u.Hostname())
	pass, err = creds.Password(user, host)
	if errors.Is(err, credman.ErrNotFound) {
		return "", "", fmt.Errorf("no stored password for %s@%s, run \"warpfetch creds set %s@%s\"",
			user, host, user, host)
	}
	if err != nil {
		return "", "", fmt.Errorf("password lookup for %s@%s: %w", user, host, err)
	}
	return user, pass, nil
}
