// Package keymgr owns the lifecycle of stored signing keys:
// generation, the encrypted at-rest form, signing, and the backup
// bundle format uploaded to block storage.
package keymgr

import (
	"crypto/ecdsa"
	"crypto/rand"
	"crypto/x509"
	"encoding/base64"
	"encoding/json"
	"encoding/pem"
	"errors"
	"fmt"
	"strings"
	"time"

	ethcrypto "github.com/ethereum/go-ethereum/crypto"
	"github.com/google/uuid"

	"github.com/sigforge/sigforge/common"
	"github.com/sigforge/sigforge/internal/jose"
	"github.com/sigforge/sigforge/internal/types"
	"github.com/sigforge/sigforge/sigcodec"
)

const (
	pemTypeEC        = "EC PRIVATE KEY"
	pemTypeSecp256k1 = "SECP256K1 PRIVATE KEY"
)

type KeyManager struct {
	encryptionSecret string
}

func NewKeyManager(encryptionSecret string) (*KeyManager, error) {
	if encryptionSecret == "" {
		return nil, errors.New("encryption secret is not set")
	}
	return &KeyManager{encryptionSecret: encryptionSecret}, nil
}

// Generate creates a new key for the algorithm and returns its stored
// record. The private key never leaves this package unencrypted.
func (m *KeyManager) Generate(name string, algorithm string) (*types.SigningKey, error) {
	alg, err := jose.ParseAlgorithm(algorithm)
	if err != nil {
		return nil, err
	}

	key, err := ecdsa.GenerateKey(alg.Curve(), rand.Reader)
	if err != nil {
		return nil, fmt.Errorf("fail to generate key, err: %w", err)
	}

	id := uuid.New().String()
	jwkJSON, err := json.Marshal(jose.PublicKeyToJWK(&key.PublicKey, alg, id))
	if err != nil {
		return nil, fmt.Errorf("fail to marshal jwk, err: %w", err)
	}

	pemBytes, err := encodePrivateKey(key, alg)
	if err != nil {
		return nil, err
	}
	encrypted, err := common.EncryptGCM(m.encryptionSecret, pemBytes)
	if err != nil {
		return nil, fmt.Errorf("fail to encrypt private key, err: %w", err)
	}

	return &types.SigningKey{
		ID:                  id,
		Name:                name,
		Algorithm:           string(alg),
		PublicJWK:           string(jwkJSON),
		EncryptedPrivateKey: base64.StdEncoding.EncodeToString(encrypted),
		CreatedAt:           time.Now().UTC(),
	}, nil
}

// PrivateKey decrypts and decodes the stored private key.
func (m *KeyManager) PrivateKey(k *types.SigningKey) (*ecdsa.PrivateKey, error) {
	encrypted, err := base64.StdEncoding.DecodeString(k.EncryptedPrivateKey)
	if err != nil {
		return nil, fmt.Errorf("fail to decode private key, err: %w", err)
	}
	pemBytes, err := common.DecryptGCM(m.encryptionSecret, encrypted)
	if err != nil {
		return nil, fmt.Errorf("fail to decrypt private key, err: %w", err)
	}
	return decodePrivateKey(pemBytes)
}

// Sign produces a compact JWS over the payload with the stored key,
// returning the token together with both signature encodings.
func (m *KeyManager) Sign(k *types.SigningKey, payload []byte) (*types.KeySignTaskResult, error) {
	alg, err := jose.ParseAlgorithm(k.Algorithm)
	if err != nil {
		return nil, err
	}
	key, err := m.PrivateKey(k)
	if err != nil {
		return nil, err
	}

	token, err := jose.SignCompact(key, alg, k.ID, payload)
	if err != nil {
		return nil, err
	}

	parts := strings.Split(token, ".")
	raw, err := base64.RawURLEncoding.DecodeString(parts[2])
	if err != nil {
		return nil, fmt.Errorf("fail to decode signature, err: %w", err)
	}
	der, err := sigcodec.RawToDER(raw)
	if err != nil {
		return nil, err
	}

	return &types.KeySignTaskResult{
		KeyID:        k.ID,
		Token:        token,
		RawSignature: base64.StdEncoding.EncodeToString(raw),
		DERSignature: base64.StdEncoding.EncodeToString(der),
	}, nil
}

// Verify checks a compact JWS against the stored key's public half
// and returns the payload.
func (m *KeyManager) Verify(k *types.SigningKey, token string) ([]byte, error) {
	jwk, err := k.JWK()
	if err != nil {
		return nil, err
	}
	pub, err := jose.JWKToPublicKey(jwk)
	if err != nil {
		return nil, err
	}
	return jose.VerifyCompact(token, pub)
}

type backupBundle struct {
	Key types.SigningKey `json:"key"`
	// The key record hides its private half from JSON, so the bundle
	// carries it explicitly.
	EncryptedPrivateKey string    `json:"encrypted_private_key"`
	ExportedAt          time.Time `json:"exported_at"`
}

// BackupFileName returns the block storage object name for a key.
func BackupFileName(k *types.SigningKey) string {
	return fmt.Sprintf("%s-%s.bak", k.Name, k.ID)
}

// BackupBundle serializes the key record, compresses it and encrypts
// the result under the server secret. The private key inside stays in
// its own encrypted form as well.
func (m *KeyManager) BackupBundle(k *types.SigningKey) ([]byte, error) {
	data, err := json.Marshal(backupBundle{
		Key:                 *k,
		EncryptedPrivateKey: k.EncryptedPrivateKey,
		ExportedAt:          time.Now().UTC(),
	})
	if err != nil {
		return nil, fmt.Errorf("fail to marshal backup bundle, err: %w", err)
	}
	compressed, err := common.CompressData(data)
	if err != nil {
		return nil, err
	}
	return common.EncryptGCM(m.encryptionSecret, compressed)
}

// RestoreBundle reverses BackupBundle.
func (m *KeyManager) RestoreBundle(data []byte) (*types.SigningKey, error) {
	compressed, err := common.DecryptGCM(m.encryptionSecret, data)
	if err != nil {
		return nil, fmt.Errorf("fail to decrypt backup bundle, err: %w", err)
	}
	raw, err := common.DecompressData(compressed)
	if err != nil {
		return nil, err
	}
	var bundle backupBundle
	if err := json.Unmarshal(raw, &bundle); err != nil {
		return nil, fmt.Errorf("fail to unmarshal backup bundle, err: %w", err)
	}
	key := bundle.Key
	key.EncryptedPrivateKey = bundle.EncryptedPrivateKey
	return &key, nil
}

// x509 has no OID for secp256k1, so those keys are stored as the raw
// 32-byte scalar in their own PEM block type.
func encodePrivateKey(key *ecdsa.PrivateKey, alg jose.Algorithm) ([]byte, error) {
	if alg == jose.AlgES256K {
		return pem.EncodeToMemory(&pem.Block{
			Type:  pemTypeSecp256k1,
			Bytes: ethcrypto.FromECDSA(key),
		}), nil
	}
	der, err := x509.MarshalECPrivateKey(key)
	if err != nil {
		return nil, fmt.Errorf("fail to marshal private key, err: %w", err)
	}
	return pem.EncodeToMemory(&pem.Block{Type: pemTypeEC, Bytes: der}), nil
}

func decodePrivateKey(pemBytes []byte) (*ecdsa.PrivateKey, error) {
	block, _ := pem.Decode(pemBytes)
	if block == nil {
		return nil, errors.New("no PEM block in stored private key")
	}
	switch block.Type {
	case pemTypeSecp256k1:
		return ethcrypto.ToECDSA(block.Bytes)
	case pemTypeEC:
		return x509.ParseECPrivateKey(block.Bytes)
	default:
		return nil, fmt.Errorf("unexpected PEM block type: %s", block.Type)
	}
}
