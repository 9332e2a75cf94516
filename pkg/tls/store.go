package tls

import (
	"crypto/ecdsa"
	"crypto/tls"
	"errors"
	"fmt"
	"os"
	"path/filepath"
)

// Save writes the pair to PEM files. The key file is readable by the
// owner only.
func (p *Pair) Save(certPath, keyPath string) error {
	for _, dir := range []string{filepath.Dir(certPath), filepath.Dir(keyPath)} {
		if err := os.MkdirAll(dir, 0o755); err != nil {
			return fmt.Errorf("create %s: %w", dir, err)
		}
	}
	if err := os.WriteFile(certPath, p.CertPEM, 0o644); err != nil {
		return fmt.Errorf("write certificate: %w", err)
	}
	if err := os.WriteFile(keyPath, p.KeyPEM, 0o600); err != nil {
		_ = os.Remove(certPath)
		return fmt.Errorf("write key: %w", err)
	}
	return nil
}

// Load reads a pair from PEM files. It fails when key and certificate do
// not belong together.
func Load(certPath, keyPath string) (*Pair, error) {
	certPEM, err := os.ReadFile(certPath)
	if err != nil {
		return nil, err
	}
	keyPEM, err := os.ReadFile(keyPath)
	if err != nil {
		return nil, err
	}
	kp, err := tls.X509KeyPair(certPEM, keyPEM)
	if err != nil {
		return nil, fmt.Errorf("%s / %s: %w", certPath, keyPath, err)
	}
	p := &Pair{Certificate: kp.Leaf, CertPEM: certPEM, KeyPEM: keyPEM}
	if key, ok := kp.PrivateKey.(*ecdsa.PrivateKey); ok {
		p.Key = key
	}
	return p, nil
}

// Ensure loads the pair at certPath/keyPath, generating and saving a new
// one when either file is missing. created reports whether it generated.
func Ensure(opts Options, certPath, keyPath string) (p *Pair, created bool, err error) {
	_, certErr := os.Stat(certPath)
	_, keyErr := os.Stat(keyPath)
	if certErr == nil && keyErr == nil {
		p, err = Load(certPath, keyPath)
		return p, false, err
	}
	if !errors.Is(certErr, os.ErrNotExist) && certErr != nil {
		return nil, false, certErr
	}

	if p, err = Generate(opts); err != nil {
		return nil, false, err
	}
	if err = p.Save(certPath, keyPath); err != nil {
		return nil, false, err
	}
	return p, true, nil
}

// GenerateAndSave is Generate followed by Save.
func GenerateAndSave(opts Options, certPath, keyPath string) (*Pair, error) {
	p, err := Generate(opts)
	if err != nil {
		return nil, err
	}
	return p, p.Save(certPath, keyPath)
}
