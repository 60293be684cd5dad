package transport

import (
	"crypto/tls"
	"crypto/x509"
	"encoding/pem"
	"fmt"
	"path/filepath"
	"strings"

	"github.com/spf13/afero"
	"golang.org/x/crypto/pkcs12"
)

// parseCipherList maps a colon or comma separated list of IANA cipher suite
// names to their ids. An empty list yields nil (Go defaults).
func parseCipherList(list string) ([]uint16, error) {
	if strings.TrimSpace(list) == "" {
		return nil, nil
	}
	known := make(map[string]uint16)
	for _, cs := range tls.CipherSuites() {
		known[cs.Name] = cs.ID
	}
	for _, cs := range tls.InsecureCipherSuites() {
		known[cs.Name] = cs.ID
	}
	var ids []uint16
	for _, name := range strings.FieldsFunc(list, func(r rune) bool { return r == ':' || r == ',' }) {
		name = strings.TrimSpace(name)
		id, ok := known[name]
		if !ok {
			return nil, fmt.Errorf("%w: unknown cipher suite %q", ErrInvalidOption, name)
		}
		ids = append(ids, id)
	}
	return ids, nil
}

// buildTLSConfig translates the TLS options into a client configuration
// for serverName. Files are read from fs.
func buildTLSConfig(fs afero.Fs, opts *Options, serverName string) (*tls.Config, error) {
	cfg := &tls.Config{
		ServerName: serverName,
		MinVersion: tls.VersionTLS12,
	}
	if opts.TLSVersion != 0 {
		cfg.MinVersion = opts.TLSVersion
	}
	ciphers, err := parseCipherList(opts.CipherList)
	if err != nil {
		return nil, err
	}
	cfg.CipherSuites = ciphers

	if opts.CAFile != "" || opts.CAPath != "" {
		pool, err := loadCertPool(fs, opts.CAFile, opts.CAPath)
		if err != nil {
			return nil, err
		}
		cfg.RootCAs = pool
	}

	if opts.ClientCert != "" {
		cert, err := loadClientCert(fs, opts)
		if err != nil {
			return nil, err
		}
		cfg.Certificates = []tls.Certificate{cert}
	}

	switch {
	case opts.SkipVerifyPeer:
		cfg.InsecureSkipVerify = true
	case opts.SkipVerifyHost:
		// Verify the chain but not the name.
		cfg.InsecureSkipVerify = true
		roots := cfg.RootCAs
		cfg.VerifyConnection = func(cs tls.ConnectionState) error {
			if len(cs.PeerCertificates) == 0 {
				return fmt.Errorf("tls: server sent no certificate")
			}
			inter := x509.NewCertPool()
			for _, c := range cs.PeerCertificates[1:] {
				inter.AddCert(c)
			}
			_, err := cs.PeerCertificates[0].Verify(x509.VerifyOptions{
				Roots:         roots,
				Intermediates: inter,
			})
			return err
		}
	}
	return cfg, nil
}

// loadCertPool builds a root pool from a PEM bundle file and/or every
// .pem, .crt and .cer file in a directory.
func loadCertPool(fs afero.Fs, file, dir string) (*x509.CertPool, error) {
	pool := x509.NewCertPool()
	var files []string
	if file != "" {
		files = append(files, file)
	}
	if dir != "" {
		entries, err := afero.ReadDir(fs, dir)
		if err != nil {
			return nil, fmt.Errorf("%w: CA directory: %v", ErrInvalidOption, err)
		}
		for _, e := range entries {
			switch strings.ToLower(filepath.Ext(e.Name())) {
			case ".pem", ".crt", ".cer":
				files = append(files, filepath.Join(dir, e.Name()))
			}
		}
	}
	added := false
	for _, f := range files {
		data, err := afero.ReadFile(fs, f)
		if err != nil {
			return nil, fmt.Errorf("%w: CA bundle: %v", ErrInvalidOption, err)
		}
		if pool.AppendCertsFromPEM(data) {
			added = true
		}
	}
	if !added {
		return nil, fmt.Errorf("%w: no certificates found in CA bundle", ErrInvalidOption)
	}
	return pool, nil
}

func loadClientCert(fs afero.Fs, opts *Options) (tls.Certificate, error) {
	certData, err := afero.ReadFile(fs, opts.ClientCert)
	if err != nil {
		return tls.Certificate{}, fmt.Errorf("%w: client certificate: %v", ErrInvalidOption, err)
	}

	if opts.CertType == CertP12 {
		key, cert, err := pkcs12.Decode(certData, opts.KeyPassword)
		if err != nil {
			return tls.Certificate{}, fmt.Errorf("%w: client certificate: %v", ErrInvalidOption, err)
		}
		return tls.Certificate{
			Certificate: [][]byte{cert.Raw},
			PrivateKey:  key,
			Leaf:        cert,
		}, nil
	}

	keyData := certData
	if opts.ClientKey != "" {
		if keyData, err = afero.ReadFile(fs, opts.ClientKey); err != nil {
			return tls.Certificate{}, fmt.Errorf("%w: client key: %v", ErrInvalidOption, err)
		}
	}
	if opts.KeyPassword != "" {
		if keyData, err = decryptPEMKey(keyData, opts.KeyPassword); err != nil {
			return tls.Certificate{}, fmt.Errorf("%w: client key: %v", ErrInvalidOption, err)
		}
	}
	cert, err := tls.X509KeyPair(certData, keyData)
	if err != nil {
		return tls.Certificate{}, fmt.Errorf("%w: client certificate: %v", ErrInvalidOption, err)
	}
	return cert, nil
}

// decryptPEMKey decrypts a legacy encrypted PEM private key block.
// Unencrypted keys pass through unchanged.
func decryptPEMKey(data []byte, password string) ([]byte, error) {
	var out []byte
	rest := data
	for {
		var block *pem.Block
		block, rest = pem.Decode(rest)
		if block == nil {
			break
		}
		//nolint:staticcheck
		if strings.HasSuffix(block.Type, "PRIVATE KEY") && x509.IsEncryptedPEMBlock(block) {
			der, err := x509.DecryptPEMBlock(block, []byte(password))
			if err != nil {
				return nil, err
			}
			block = &pem.Block{Type: block.Type, Bytes: der}
		}
		out = append(out, pem.EncodeToMemory(block)...)
	}
	if len(out) == 0 {
		return nil, fmt.Errorf("no PEM data found")
	}
	return out, nil
}
