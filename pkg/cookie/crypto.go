package cookie

import (
	"crypto/aes"
	"crypto/cipher"
	"crypto/rand"
	"crypto/sha256"
	"encoding/base64"
	"errors"
	"fmt"
	"io"
	"os"
	"path/filepath"
	"strings"

	"github.com/zalando/go-keyring"
	"golang.org/x/crypto/pbkdf2"
)

const (
	saltSize   = 32
	keySize    = 32
	iterations = 100000

	// encPrefix marks encrypted payloads; records without it are legacy
	// plaintext awaiting migration.
	encPrefix = "enc:v1:"

	keyringService = "mediagrab"
	keyringUser    = "cookie-passphrase"
)

// Cipher encrypts and decrypts cookie payloads with AES-GCM, deriving the
// key from a passphrase with PBKDF2
type Cipher struct {
	passphrase string
}

// NewCipher creates a cipher from an explicit passphrase
func NewCipher(passphrase string) (*Cipher, error) {
	if passphrase == "" {
		return nil, errors.New("passphrase is required")
	}
	return &Cipher{passphrase: passphrase}, nil
}

// NewCipherFromEnvironment resolves the passphrase from the environment
// variable, then the system keyring, then a generated file under dataDir,
// in that order
func NewCipherFromEnvironment(envVar, dataDir string) (*Cipher, error) {
	if pass := os.Getenv(envVar); pass != "" {
		return &Cipher{passphrase: pass}, nil
	}

	if pass, err := keyring.Get(keyringService, keyringUser); err == nil && pass != "" {
		return &Cipher{passphrase: pass}, nil
	}

	pass, err := passphraseFromFile(dataDir)
	if err != nil {
		return nil, err
	}

	// Best effort; a headless host without a keyring still works off the
	// passphrase file.
	_ = keyring.Set(keyringService, keyringUser, pass)

	return &Cipher{passphrase: pass}, nil
}

// passphraseFromFile reads or generates the fallback passphrase file
func passphraseFromFile(dataDir string) (string, error) {
	if err := os.MkdirAll(dataDir, 0700); err != nil {
		return "", fmt.Errorf("failed to create data directory: %w", err)
	}
	path := filepath.Join(dataDir, ".passphrase")

	if content, err := os.ReadFile(path); err == nil && len(content) > 0 {
		return strings.TrimSpace(string(content)), nil
	}

	b := make([]byte, 32)
	if _, err := io.ReadFull(rand.Reader, b); err != nil {
		return "", fmt.Errorf("failed to generate passphrase: %w", err)
	}
	pass := base64.URLEncoding.EncodeToString(b)

	if err := os.WriteFile(path, []byte(pass), 0600); err != nil {
		return "", fmt.Errorf("failed to save passphrase: %w", err)
	}
	return pass, nil
}

// Encrypt seals a plaintext payload into the enc:v1 wire form
func (c *Cipher) Encrypt(plaintext string) (string, error) {
	salt := make([]byte, saltSize)
	if _, err := io.ReadFull(rand.Reader, salt); err != nil {
		return "", fmt.Errorf("failed to generate salt: %w", err)
	}

	key := pbkdf2.Key([]byte(c.passphrase), salt, iterations, keySize, sha256.New)

	block, err := aes.NewCipher(key)
	if err != nil {
		return "", err
	}
	gcm, err := cipher.NewGCM(block)
	if err != nil {
		return "", err
	}

	nonce := make([]byte, gcm.NonceSize())
	if _, err := io.ReadFull(rand.Reader, nonce); err != nil {
		return "", err
	}

	sealed := gcm.Seal(nonce, nonce, []byte(plaintext), nil)
	return encPrefix +
		base64.StdEncoding.EncodeToString(salt) + ":" +
		base64.StdEncoding.EncodeToString(sealed), nil
}

// Decrypt opens an enc:v1 payload
func (c *Cipher) Decrypt(payload string) (string, error) {
	if !IsEncrypted(payload) {
		return "", errors.New("payload is not encrypted")
	}

	parts := strings.SplitN(strings.TrimPrefix(payload, encPrefix), ":", 2)
	if len(parts) != 2 {
		return "", errors.New("malformed encrypted payload")
	}

	salt, err := base64.StdEncoding.DecodeString(parts[0])
	if err != nil {
		return "", fmt.Errorf("failed to decode salt: %w", err)
	}
	sealed, err := base64.StdEncoding.DecodeString(parts[1])
	if err != nil {
		return "", fmt.Errorf("failed to decode ciphertext: %w", err)
	}

	key := pbkdf2.Key([]byte(c.passphrase), salt, iterations, keySize, sha256.New)

	block, err := aes.NewCipher(key)
	if err != nil {
		return "", err
	}
	gcm, err := cipher.NewGCM(block)
	if err != nil {
		return "", err
	}
	if len(sealed) < gcm.NonceSize() {
		return "", errors.New("ciphertext too short")
	}

	nonce, ciphertext := sealed[:gcm.NonceSize()], sealed[gcm.NonceSize():]
	plain, err := gcm.Open(nil, nonce, ciphertext, nil)
	if err != nil {
		return "", fmt.Errorf("failed to decrypt payload: %w", err)
	}
	return string(plain), nil
}

// IsEncrypted reports whether a stored payload is in the encrypted form
func IsEncrypted(payload string) bool {
	return strings.HasPrefix(payload, encPrefix)
}
