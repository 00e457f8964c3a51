package security

import (
	"crypto/aes"
	"crypto/cipher"
	"crypto/rand"
	"encoding/base64"
	"errors"
	"fmt"
	"io"
)

// Broker passwords are stored AES-GCM encrypted with a 32-byte key taken
// from BROKER_CREDENTIALS_KEY (base64). The gateway manager decrypts just
// before injecting credentials into a container's environment; nothing else
// ever needs the plaintext.

func gcmFromKey(encodedKey string) (cipher.AEAD, error) {
	key, err := base64.StdEncoding.DecodeString(encodedKey)
	if err != nil {
		return nil, fmt.Errorf("invalid credentials key: %w", err)
	}

	block, err := aes.NewCipher(key)
	if err != nil {
		return nil, fmt.Errorf("invalid credentials key: %w", err)
	}

	return cipher.NewGCM(block)
}

// EncryptString encrypts plaintext with the configured credentials key and
// returns it base64 encoded, nonce prepended.
func EncryptString(plaintext string) (string, error) {
	gcm, err := gcmFromKey(GetConfig().BrokerCRKey)
	if err != nil {
		return "", err
	}

	nonce := make([]byte, gcm.NonceSize())
	if _, err := io.ReadFull(rand.Reader, nonce); err != nil {
		return "", err
	}

	sealed := gcm.Seal(nonce, nonce, []byte(plaintext), nil)
	return base64.StdEncoding.EncodeToString(sealed), nil
}

// DecryptString reverses EncryptString.
func DecryptString(encrypted string) (string, error) {
	gcm, err := gcmFromKey(GetConfig().BrokerCRKey)
	if err != nil {
		return "", err
	}

	raw, err := base64.StdEncoding.DecodeString(encrypted)
	if err != nil {
		return "", fmt.Errorf("invalid encrypted value: %w", err)
	}

	if len(raw) < gcm.NonceSize() {
		return "", errors.New("encrypted value too short")
	}

	nonce, sealed := raw[:gcm.NonceSize()], raw[gcm.NonceSize():]

	plaintext, err := gcm.Open(nil, nonce, sealed, nil)
	if err != nil {
		return "", fmt.Errorf("failed to decrypt value: %w", err)
	}

	return string(plaintext), nil
}
