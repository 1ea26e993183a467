package common

import (
	"bytes"
	"crypto/aes"
	"crypto/cipher"
	"crypto/rand"
	"crypto/sha256"
	"fmt"
	"io"

	"github.com/ulikunitz/xz"
)

// EncryptGCM encrypts data with AES-GCM under a key derived from the
// password. The nonce is prepended to the ciphertext.
func EncryptGCM(password string, data []byte) ([]byte, error) {
	hash := sha256.Sum256([]byte(password))
	block, err := aes.NewCipher(hash[:])
	if err != nil {
		return nil, err
	}

	gcm, err := cipher.NewGCM(block)
	if err != nil {
		return nil, err
	}

	nonce := make([]byte, gcm.NonceSize())
	if _, err := io.ReadFull(rand.Reader, nonce); err != nil {
		return nil, err
	}

	return gcm.Seal(nonce, nonce, data, nil), nil
}

// DecryptGCM reverses EncryptGCM.
func DecryptGCM(password string, data []byte) ([]byte, error) {
	hash := sha256.Sum256([]byte(password))
	block, err := aes.NewCipher(hash[:])
	if err != nil {
		return nil, err
	}

	gcm, err := cipher.NewGCM(block)
	if err != nil {
		return nil, err
	}

	nonceSize := gcm.NonceSize()
	if len(data) < nonceSize {
		return nil, fmt.Errorf("ciphertext too short")
	}

	nonce, ciphertext := data[:nonceSize], data[nonceSize:]
	return gcm.Open(nil, nonce, ciphertext, nil)
}

// CompressData compresses data with xz, used for key backup bundles
// before they are encrypted and uploaded.
func CompressData(data []byte) ([]byte, error) {
	var buf bytes.Buffer
	w, err := xz.NewWriter(&buf)
	if err != nil {
		return nil, fmt.Errorf("fail to create xz writer, err: %w", err)
	}
	if _, err := w.Write(data); err != nil {
		return nil, fmt.Errorf("fail to compress data, err: %w", err)
	}
	if err := w.Close(); err != nil {
		return nil, fmt.Errorf("fail to close xz writer, err: %w", err)
	}
	return buf.Bytes(), nil
}

// DecompressData reverses CompressData.
func DecompressData(data []byte) ([]byte, error) {
	r, err := xz.NewReader(bytes.NewReader(data))
	if err != nil {
		return nil, fmt.Errorf("fail to create xz reader, err: %w", err)
	}
	return io.ReadAll(r)
}
