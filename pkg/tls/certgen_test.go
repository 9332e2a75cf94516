package tls

import (
	"crypto/tls"
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestGenerate(t *testing.T) {
	p, err := Generate(Options{Organization: "acme", Hosts: []string{"api.local", "10.0.0.1"}, ValidFor: time.Hour})
	require.NoError(t, err)

	assert.Equal(t, "api.local", p.Certificate.Subject.CommonName)
	assert.Equal(t, []string{"api.local"}, p.Certificate.DNSNames)
	require.Len(t, p.Certificate.IPAddresses, 1)
	assert.Equal(t, "10.0.0.1", p.Certificate.IPAddresses[0].String())
	assert.WithinDuration(t, time.Now().Add(time.Hour), p.Certificate.NotAfter, time.Minute)
	assert.NoError(t, p.Certificate.VerifyHostname("api.local"))

	_, err = tls.X509KeyPair(p.CertPEM, p.KeyPEM)
	assert.NoError(t, err)
}

func TestGenerate_RequiresHost(t *testing.T) {
	_, err := Generate(Options{})
	assert.Error(t, err)
}

func TestSaveAndLoad(t *testing.T) {
	dir := t.TempDir()
	certPath := filepath.Join(dir, "certs", "server.crt")
	keyPath := filepath.Join(dir, "certs", "server.key")

	p, err := GenerateAndSave(DefaultOptions(), certPath, keyPath)
	require.NoError(t, err)

	info, err := os.Stat(keyPath)
	require.NoError(t, err)
	assert.Equal(t, os.FileMode(0o600), info.Mode().Perm())

	loaded, err := Load(certPath, keyPath)
	require.NoError(t, err)
	assert.Equal(t, p.CertPEM, loaded.CertPEM)
	assert.NotNil(t, loaded.Key)
	assert.Equal(t, p.Certificate.SerialNumber, loaded.Certificate.SerialNumber)
}

func TestLoad_MismatchedKey(t *testing.T) {
	dir := t.TempDir()
	a, err := Generate(DefaultOptions())
	require.NoError(t, err)
	b, err := Generate(DefaultOptions())
	require.NoError(t, err)

	certPath := filepath.Join(dir, "a.crt")
	keyPath := filepath.Join(dir, "b.key")
	require.NoError(t, os.WriteFile(certPath, a.CertPEM, 0o644))
	require.NoError(t, os.WriteFile(keyPath, b.KeyPEM, 0o600))

	_, err = Load(certPath, keyPath)
	assert.Error(t, err)
}

func TestEnsure(t *testing.T) {
	dir := t.TempDir()
	certPath := filepath.Join(dir, "dev.crt")
	keyPath := filepath.Join(dir, "dev.key")

	first, created, err := Ensure(DefaultOptions(), certPath, keyPath)
	require.NoError(t, err)
	assert.True(t, created)

	second, created, err := Ensure(DefaultOptions(), certPath, keyPath)
	require.NoError(t, err)
	assert.False(t, created)
	assert.Equal(t, first.CertPEM, second.CertPEM)
}
