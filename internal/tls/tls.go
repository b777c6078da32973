// Package tls builds the HTTPS configuration for the API listener.
package tls

import (
	"crypto/tls"
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"strings"
	"time"

	"github.com/loykin/braindump/internal/config"
)

// File names used inside TLSConfig.Dir.
const (
	CertName   = "tls.crt"
	KeyName    = "tls.key"
	CACertName = "tls_ca.crt"
)

func parseVersion(v string) (uint16, error) {
	switch strings.ToLower(strings.TrimSpace(v)) {
	case "", "1.2", "tls1.2":
		return tls.VersionTLS12, nil
	case "1.3", "tls1.3":
		return tls.VersionTLS13, nil
	default:
		return 0, fmt.Errorf("unsupported TLS version %q", v)
	}
}

// Setup returns nil when TLS is disabled. Certificates are read on every
// handshake so a renewed pair on disk is picked up without a restart.
func Setup(cfg config.TLSConfig) (*tls.Config, error) {
	if !cfg.Enabled {
		return nil, nil
	}
	minVer, err := parseVersion(cfg.MinVersion)
	if err != nil {
		return nil, err
	}

	certPath, keyPath := cfg.CertFile, cfg.KeyFile
	if certPath == "" || keyPath == "" {
		if cfg.Dir == "" {
			return nil, errors.New("tls: enabled without certificate files or dir")
		}
		certPath = filepath.Join(cfg.Dir, CertName)
		keyPath = filepath.Join(cfg.Dir, KeyName)
		if cfg.AutoGenerate && !exists(certPath, keyPath) {
			if err := generateInto(cfg); err != nil {
				return nil, fmt.Errorf("tls: generate certificate: %w", err)
			}
		}
	}
	// fail at startup rather than on the first handshake
	if _, err := loadPair(certPath, keyPath); err != nil {
		return nil, fmt.Errorf("tls: %w", err)
	}

	// #nosec G402 minimum version is configurable down to 1.2 only
	return &tls.Config{
		MinVersion: minVer,
		GetCertificate: func(*tls.ClientHelloInfo) (*tls.Certificate, error) {
			return loadPair(certPath, keyPath)
		},
	}, nil
}

func loadPair(certPath, keyPath string) (*tls.Certificate, error) {
	certPEM, err := readWithin(filepath.Dir(certPath), certPath)
	if err != nil {
		return nil, err
	}
	keyPEM, err := readWithin(filepath.Dir(keyPath), keyPath)
	if err != nil {
		return nil, err
	}
	pair, err := tls.X509KeyPair(certPEM, keyPEM)
	if err != nil {
		return nil, fmt.Errorf("load key pair: %w", err)
	}
	return &pair, nil
}

// readWithin refuses paths that resolve outside base.
func readWithin(base, p string) ([]byte, error) {
	absBase, err := filepath.Abs(base)
	if err != nil {
		return nil, err
	}
	absFile, err := filepath.Abs(filepath.Clean(p))
	if err != nil {
		return nil, err
	}
	if absFile != absBase && !strings.HasPrefix(absFile, absBase+string(filepath.Separator)) {
		return nil, fmt.Errorf("%s is outside %s", p, base)
	}
	return os.ReadFile(absFile)
}

func exists(paths ...string) bool {
	for _, p := range paths {
		if _, err := os.Stat(p); err != nil {
			return false
		}
	}
	return true
}

func generateInto(cfg config.TLSConfig) error {
	if err := os.MkdirAll(cfg.Dir, 0o750); err != nil {
		return err
	}
	days := cfg.ValidDays
	if days <= 0 {
		days = 365
	}
	hosts := cfg.Hosts
	if len(hosts) == 0 {
		hosts = []string{"localhost", "127.0.0.1"}
	}
	return GenerateSelfSigned(CertSpec{
		CommonName: hosts[0],
		Hosts:      hosts,
		NotAfter:   time.Now().AddDate(0, 0, days),
		CertPath:   filepath.Join(cfg.Dir, CertName),
		KeyPath:    filepath.Join(cfg.Dir, KeyName),
		CACertPath: filepath.Join(cfg.Dir, CACertName),
	})
}
