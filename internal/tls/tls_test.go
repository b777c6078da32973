package tls

import (
	"crypto/tls"
	"crypto/x509"
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/loykin/braindump/internal/config"
)

func TestSetupDisabled(t *testing.T) {
	c, err := Setup(config.TLSConfig{})
	require.NoError(t, err)
	assert.Nil(t, c)
}

func TestSetupAutoGenerates(t *testing.T) {
	dir := t.TempDir()
	c, err := Setup(config.TLSConfig{Enabled: true, Dir: dir, AutoGenerate: true, MinVersion: "1.3", Hosts: []string{"blog.local", "127.0.0.1"}})
	require.NoError(t, err)
	require.NotNil(t, c)
	assert.Equal(t, uint16(tls.VersionTLS13), c.MinVersion)

	for _, name := range []string{CertName, KeyName, CACertName} {
		_, err := os.Stat(filepath.Join(dir, name))
		require.NoError(t, err, name)
	}
	info, err := os.Stat(filepath.Join(dir, KeyName))
	require.NoError(t, err)
	assert.Equal(t, os.FileMode(0o600), info.Mode().Perm())

	pair, err := c.GetCertificate(&tls.ClientHelloInfo{})
	require.NoError(t, err)
	leaf, err := x509.ParseCertificate(pair.Certificate[0])
	require.NoError(t, err)
	assert.Equal(t, []string{"blog.local"}, leaf.DNSNames)
	require.Len(t, leaf.IPAddresses, 1)
	assert.True(t, leaf.NotAfter.After(time.Now().AddDate(0, 0, 300)))
}

func TestSetupKeepsExistingPair(t *testing.T) {
	dir := t.TempDir()
	_, err := Setup(config.TLSConfig{Enabled: true, Dir: dir, AutoGenerate: true})
	require.NoError(t, err)
	before, err := os.ReadFile(filepath.Join(dir, CertName))
	require.NoError(t, err)

	_, err = Setup(config.TLSConfig{Enabled: true, Dir: dir, AutoGenerate: true})
	require.NoError(t, err)
	after, err := os.ReadFile(filepath.Join(dir, CertName))
	require.NoError(t, err)
	assert.Equal(t, before, after)
}

func TestSetupErrors(t *testing.T) {
	_, err := Setup(config.TLSConfig{Enabled: true})
	require.Error(t, err)

	_, err = Setup(config.TLSConfig{Enabled: true, Dir: t.TempDir()})
	require.Error(t, err, "missing files without auto-generate")

	_, err = Setup(config.TLSConfig{Enabled: true, Dir: t.TempDir(), AutoGenerate: true, MinVersion: "1.0"})
	require.Error(t, err)
}

func TestReadWithinRejectsEscape(t *testing.T) {
	dir := t.TempDir()
	_, err := readWithin(filepath.Join(dir, "certs"), filepath.Join(dir, "other", "tls.key"))
	require.Error(t, err)
}
