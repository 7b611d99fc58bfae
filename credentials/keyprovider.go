package credentials

import (
	"crypto/rand"
	"encoding/hex"
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"runtime"
	"sync"

	"github.com/zalando/go-keyring"
	"golang.org/x/crypto/argon2"
)

const (
	// keyringService and keyringUser locate the key in the system keyring.
	keyringService = "sqr-cli"
	keyringUser    = "encryption-key"

	// keyLength is the AES-256 key size.
	keyLength = 32

	// saltFile holds the argon2 salt, next to the credentials file.
	saltFile = "credentials.salt"
)

// argon2id parameters for passphrase-derived keys.
const (
	argon2Time    = 1
	argon2Memory  = 64 * 1024
	argon2Threads = 4
)

// ErrKeyringUnavailable indicates the system keyring cannot be reached.
var ErrKeyringUnavailable = errors.New("system keyring unavailable")

// KeyProvider yields the credential store's encryption key.
type KeyProvider interface {
	// GetKey returns the 32-byte encryption key, generating and
	// persisting one first if the provider supports that.
	GetKey() ([]byte, error)

	// Source names where the key comes from, for status output.
	Source() string
}

// GetDefaultKeyProvider resolves the key source for this environment:
//
//  1. SQR_ENCRYPTION_KEY — hex-encoded 32-byte key (CI, containers)
//  2. SQR_PASSPHRASE — argon2id-derived key; the salt is persisted
//     next to the credentials file
//  3. the system keyring
//
// Headless machines without a keyring must use one of the variables.
func GetDefaultKeyProvider() (KeyProvider, error) {
	if os.Getenv("SQR_ENCRYPTION_KEY") != "" {
		return NewEnvKeyProvider("SQR_ENCRYPTION_KEY"), nil
	}

	if pass := os.Getenv("SQR_PASSPHRASE"); pass != "" {
		dir, err := CredentialsDir()
		if err != nil {
			return nil, err
		}
		salt, err := loadOrCreateSalt(dir)
		if err != nil {
			return nil, err
		}
		return NewPassphraseKeyProvider(pass, salt), nil
	}

	provider := NewKeyringKeyProvider()
	if _, err := provider.GetKey(); err != nil {
		if errors.Is(err, ErrKeyringUnavailable) {
			return nil, fmt.Errorf("set SQR_ENCRYPTION_KEY or SQR_PASSPHRASE: %w", err)
		}
		return nil, err
	}
	return provider, nil
}

// KeyringKeyProvider keeps the key in the system keyring, generating a
// random one on first use.
type KeyringKeyProvider struct {
	mu sync.Mutex
}

func NewKeyringKeyProvider() *KeyringKeyProvider {
	return &KeyringKeyProvider{}
}

func (p *KeyringKeyProvider) GetKey() ([]byte, error) {
	p.mu.Lock()
	defer p.mu.Unlock()

	keyHex, err := keyring.Get(keyringService, keyringUser)
	if err == nil {
		key, decErr := hex.DecodeString(keyHex)
		if decErr == nil && len(key) == keyLength {
			return key, nil
		}
		// Unusable stored value, fall through and regenerate.
	} else if !errors.Is(err, keyring.ErrNotFound) {
		return nil, fmt.Errorf("%w: %v", ErrKeyringUnavailable, err)
	}

	key := make([]byte, keyLength)
	if _, err := rand.Read(key); err != nil {
		return nil, fmt.Errorf("generating encryption key: %w", err)
	}
	if err := keyring.Set(keyringService, keyringUser, hex.EncodeToString(key)); err != nil {
		return nil, fmt.Errorf("%w: storing key: %v", ErrKeyringUnavailable, err)
	}
	return key, nil
}

func (p *KeyringKeyProvider) Source() string {
	switch runtime.GOOS {
	case "darwin":
		return "macOS Keychain"
	case "windows":
		return "Windows Credential Manager"
	default:
		return "system keyring"
	}
}

// PassphraseKeyProvider derives the key from a passphrase with argon2id.
// The same passphrase and salt always derive the same key.
type PassphraseKeyProvider struct {
	passphrase string
	salt       []byte
}

func NewPassphraseKeyProvider(passphrase string, salt []byte) *PassphraseKeyProvider {
	return &PassphraseKeyProvider{passphrase: passphrase, salt: salt}
}

func (p *PassphraseKeyProvider) GetKey() ([]byte, error) {
	if p.passphrase == "" {
		return nil, errors.New("passphrase is empty")
	}
	if len(p.salt) == 0 {
		return nil, errors.New("passphrase salt is empty")
	}
	return argon2.IDKey([]byte(p.passphrase), p.salt,
		argon2Time, argon2Memory, argon2Threads, keyLength), nil
}

func (p *PassphraseKeyProvider) Source() string {
	return "passphrase (argon2id)"
}

// EnvKeyProvider reads a hex-encoded key from an environment variable.
type EnvKeyProvider struct {
	envVar string
}

func NewEnvKeyProvider(envVar string) *EnvKeyProvider {
	return &EnvKeyProvider{envVar: envVar}
}

func (p *EnvKeyProvider) GetKey() ([]byte, error) {
	keyHex := os.Getenv(p.envVar)
	if keyHex == "" {
		return nil, fmt.Errorf("environment variable %s not set", p.envVar)
	}
	key, err := hex.DecodeString(keyHex)
	if err != nil {
		return nil, fmt.Errorf("invalid key in %s: %w", p.envVar, err)
	}
	if len(key) != keyLength {
		return nil, fmt.Errorf("key in %s must be %d bytes, got %d", p.envVar, keyLength, len(key))
	}
	return key, nil
}

func (p *EnvKeyProvider) Source() string {
	return fmt.Sprintf("environment (%s)", p.envVar)
}

// loadOrCreateSalt reads the persisted argon2 salt, creating a random
// one on first use. Losing the salt makes stored credentials
// undecryptable, so it lives beside them.
func loadOrCreateSalt(dir string) ([]byte, error) {
	path := filepath.Join(dir, saltFile)

	data, err := os.ReadFile(path)
	if err == nil {
		salt, decErr := hex.DecodeString(string(data))
		if decErr != nil || len(salt) == 0 {
			return nil, fmt.Errorf("corrupt salt file %s", path)
		}
		return salt, nil
	}
	if !os.IsNotExist(err) {
		return nil, fmt.Errorf("reading salt file: %w", err)
	}

	salt := make([]byte, 16)
	if _, err := rand.Read(salt); err != nil {
		return nil, fmt.Errorf("generating salt: %w", err)
	}
	if err := os.MkdirAll(dir, 0o700); err != nil {
		return nil, fmt.Errorf("creating credentials directory: %w", err)
	}
	if err := os.WriteFile(path, []byte(hex.EncodeToString(salt)), 0o600); err != nil {
		return nil, fmt.Errorf("writing salt file: %w", err)
	}
	return salt, nil
}
