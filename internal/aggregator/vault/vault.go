package vault

import (
	"bytes"
	"crypto/aes"
	"crypto/cipher"
	"crypto/rand"
	"crypto/sha256"
	"encoding/hex"
	"encoding/json"
	"fmt"
	"strings"

	"github.com/sufrahq/sufra/internal/aggregator/domain"
	"github.com/sufrahq/sufra/internal/config"
)

// Vault encrypts provider credentials before persistence. Each provider
// gets its own key derived from the master secret, so a leaked provider
// key does not expose the others.
type Vault struct {
	masterKey string
}

func New(cfg config.Config) *Vault {
	return &Vault{masterKey: strings.TrimSpace(cfg.MasterKey)}
}

// NewWithKey is the test constructor.
func NewWithKey(masterKey string) *Vault {
	return &Vault{masterKey: strings.TrimSpace(masterKey)}
}

func (v *Vault) providerKey(provider string) ([]byte, error) {
	if v.masterKey == "" {
		return nil, domain.ErrMissingMasterKey
	}
	sum := sha256.Sum256([]byte(v.masterKey + ":" + strings.ToLower(strings.TrimSpace(provider))))
	return sum[:], nil
}

// EncryptCredentials serializes and encrypts creds for storage. The
// output format is ivHex:cipherHex.
func (v *Vault) EncryptCredentials(creds domain.Credentials, provider string) (string, error) {
	key, err := v.providerKey(provider)
	if err != nil {
		return "", err
	}

	plaintext, err := json.Marshal(creds)
	if err != nil {
		return "", fmt.Errorf("marshal credentials: %w", err)
	}

	block, err := aes.NewCipher(key)
	if err != nil {
		return "", err
	}

	iv := make([]byte, aes.BlockSize)
	if _, err := rand.Read(iv); err != nil {
		return "", fmt.Errorf("generate iv: %w", err)
	}

	padded := pkcs7Pad(plaintext, aes.BlockSize)
	ciphertext := make([]byte, len(padded))
	cipher.NewCBCEncrypter(block, iv).CryptBlocks(ciphertext, padded)

	return hex.EncodeToString(iv) + ":" + hex.EncodeToString(ciphertext), nil
}

// DecryptCredentials reverses EncryptCredentials. A corrupted value or a
// wrong key fails loudly instead of returning garbage.
func (v *Vault) DecryptCredentials(encrypted, provider string) (domain.Credentials, error) {
	var creds domain.Credentials

	key, err := v.providerKey(provider)
	if err != nil {
		return creds, err
	}

	parts := strings.SplitN(strings.TrimSpace(encrypted), ":", 2)
	if len(parts) != 2 {
		return creds, domain.ErrCorruptedCredentials
	}
	iv, err := hex.DecodeString(parts[0])
	if err != nil || len(iv) != aes.BlockSize {
		return creds, domain.ErrCorruptedCredentials
	}
	ciphertext, err := hex.DecodeString(parts[1])
	if err != nil || len(ciphertext) == 0 || len(ciphertext)%aes.BlockSize != 0 {
		return creds, domain.ErrCorruptedCredentials
	}

	block, err := aes.NewCipher(key)
	if err != nil {
		return creds, err
	}

	plaintext := make([]byte, len(ciphertext))
	cipher.NewCBCDecrypter(block, iv).CryptBlocks(plaintext, ciphertext)

	plaintext, err = pkcs7Unpad(plaintext, aes.BlockSize)
	if err != nil {
		return creds, domain.ErrCorruptedCredentials
	}
	if err := json.Unmarshal(plaintext, &creds); err != nil {
		return creds, domain.ErrCorruptedCredentials
	}
	return creds, nil
}

func pkcs7Pad(data []byte, blockSize int) []byte {
	padding := blockSize - len(data)%blockSize
	return append(data, bytes.Repeat([]byte{byte(padding)}, padding)...)
}

func pkcs7Unpad(data []byte, blockSize int) ([]byte, error) {
	if len(data) == 0 || len(data)%blockSize != 0 {
		return nil, fmt.Errorf("invalid padded length %d", len(data))
	}
	padding := int(data[len(data)-1])
	if padding == 0 || padding > blockSize {
		return nil, fmt.Errorf("invalid padding byte %d", padding)
	}
	for _, b := range data[len(data)-padding:] {
		if int(b) != padding {
			return nil, fmt.Errorf("inconsistent padding")
		}
	}
	return data[:len(data)-padding], nil
}
