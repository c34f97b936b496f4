package infra

import (
	"crypto/rand"
	"encoding/base64"
	"encoding/hex"
	"os"
	"path/filepath"
	"strings"

	"github.com/pkg/errors"

	"github.com/eliteGoblin/focusd/recguard/internal/domain"
)

const (
	keyFileName = ".key"
	keySize     = 32 // SQLCipher raw key length

	// KeyEnvVar carries a hex encoded event log key, e.g. from a service manager secret.
	KeyEnvVar = "RECGUARD_EVENT_KEY"
)

func checkKeySize(key []byte) error {
	if len(key) != keySize {
		return errors.Errorf("invalid key size: got %d, want %d", len(key), keySize)
	}
	return nil
}

// FileKeyProvider keeps the event log key base64 encoded in dataDir/.key (0600).
type FileKeyProvider struct {
	keyPath string
}

// NewFileKeyProvider creates a FileKeyProvider for the given data directory.
func NewFileKeyProvider(dataDir string) *FileKeyProvider {
	return &FileKeyProvider{keyPath: filepath.Join(dataDir, keyFileName)}
}

func (p *FileKeyProvider) GetKey() ([]byte, error) {
	raw, err := os.ReadFile(p.keyPath)
	if err != nil {
		return nil, errors.Wrap(err, "failed to read key file")
	}
	key, err := base64.StdEncoding.DecodeString(strings.TrimSpace(string(raw)))
	if err != nil {
		return nil, errors.Wrap(err, "failed to decode key")
	}
	if err := checkKeySize(key); err != nil {
		return nil, err
	}
	return key, nil
}

// StoreKey replaces the key file atomically so a crash never leaves half a key.
func (p *FileKeyProvider) StoreKey(key []byte) error {
	if err := checkKeySize(key); err != nil {
		return err
	}
	dir := filepath.Dir(p.keyPath)
	if err := os.MkdirAll(dir, 0700); err != nil {
		return errors.Wrap(err, "failed to create key directory")
	}

	tmp, err := os.CreateTemp(dir, keyFileName+".*.tmp")
	if err != nil {
		return errors.Wrap(err, "failed to create temp key file")
	}
	tmpPath := tmp.Name()
	defer os.Remove(tmpPath) // no-op after rename

	if err := tmp.Chmod(0600); err != nil {
		tmp.Close()
		return errors.Wrap(err, "failed to restrict key file")
	}
	if _, err := tmp.WriteString(base64.StdEncoding.EncodeToString(key)); err != nil {
		tmp.Close()
		return errors.Wrap(err, "failed to write key file")
	}
	if err := tmp.Close(); err != nil {
		return errors.Wrap(err, "failed to write key file")
	}
	return errors.Wrap(os.Rename(tmpPath, p.keyPath), "failed to install key file")
}

func (p *FileKeyProvider) KeyExists() bool {
	_, err := os.Stat(p.keyPath)
	return err == nil
}

// EnvKeyProvider reads the key from an environment variable. It never stores.
type EnvKeyProvider struct {
	name string
}

// NewEnvKeyProvider reads the hex key from the named variable.
func NewEnvKeyProvider(name string) *EnvKeyProvider {
	return &EnvKeyProvider{name: name}
}

func (p *EnvKeyProvider) GetKey() ([]byte, error) {
	value := strings.TrimSpace(os.Getenv(p.name))
	if value == "" {
		return nil, errors.Errorf("%s is not set", p.name)
	}
	key, err := hex.DecodeString(value)
	if err != nil {
		return nil, errors.Wrapf(err, "failed to decode key from %s", p.name)
	}
	if err := checkKeySize(key); err != nil {
		return nil, err
	}
	return key, nil
}

func (p *EnvKeyProvider) StoreKey(key []byte) error {
	return errors.Errorf("key from %s is read-only", p.name)
}

func (p *EnvKeyProvider) KeyExists() bool {
	return strings.TrimSpace(os.Getenv(p.name)) != ""
}

// ResolveKeyProvider prefers KeyEnvVar when set, else the key file in dataDir.
func ResolveKeyProvider(dataDir string) domain.KeyProvider {
	env := NewEnvKeyProvider(KeyEnvVar)
	if env.KeyExists() {
		return env
	}
	return NewFileKeyProvider(dataDir)
}

// GenerateKey creates a new random key.
func GenerateKey() ([]byte, error) {
	key := make([]byte, keySize)
	if _, err := rand.Read(key); err != nil {
		return nil, errors.Wrap(err, "failed to generate random key")
	}
	return key, nil
}

// EnsureKey returns the stored key, generating one on first use.
func EnsureKey(provider domain.KeyProvider) ([]byte, error) {
	if provider.KeyExists() {
		return provider.GetKey()
	}
	key, err := GenerateKey()
	if err != nil {
		return nil, err
	}
	if err := provider.StoreKey(key); err != nil {
		return nil, err
	}
	return key, nil
}

var (
	_ domain.KeyProvider = (*FileKeyProvider)(nil)
	_ domain.KeyProvider = (*EnvKeyProvider)(nil)
)
