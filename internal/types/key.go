package types

import (
	"encoding/base64"
	"encoding/json"
	"errors"
	"fmt"
	"time"

	"github.com/hibiken/asynq"

	"github.com/sigforge/sigforge/internal/jose"
	"github.com/sigforge/sigforge/internal/tasks"
)

// SigningKey is a stored ECDSA key. The private key is a SEC1 PEM
// encrypted with the server encryption password; only the JWK half
// ever leaves the service.
type SigningKey struct {
	ID                  string    `json:"id" db:"id"`
	Name                string    `json:"name" db:"name"`
	Algorithm           string    `json:"algorithm" db:"algorithm"`
	PublicJWK           string    `json:"public_jwk" db:"public_jwk"`
	EncryptedPrivateKey string    `json:"-" db:"encrypted_private_key"`
	CreatedAt           time.Time `json:"created_at" db:"created_at"`
}

func (k *SigningKey) JWK() (jose.JWK, error) {
	var jwk jose.JWK
	if err := json.Unmarshal([]byte(k.PublicJWK), &jwk); err != nil {
		return jwk, fmt.Errorf("fail to unmarshal stored jwk, err: %w", err)
	}
	return jwk, nil
}

// KeyCreateRequest is a request to generate a new signing key.
type KeyCreateRequest struct {
	Name      string `json:"name" validate:"required"`
	Algorithm string `json:"algorithm" validate:"required,algorithm"`
	SessionID string `json:"session_id"` // optional, an UUID; reused requests are deduplicated
}

func (r KeyCreateRequest) IsValid() error {
	if r.Name == "" {
		return errors.New("invalid name")
	}
	if _, err := jose.ParseAlgorithm(r.Algorithm); err != nil {
		return err
	}
	return nil
}

func (r KeyCreateRequest) Task() (*asynq.Task, error) {
	payload, err := json.Marshal(tasks.KeyGenerationPayload{
		Name:      r.Name,
		Algorithm: r.Algorithm,
		SessionID: r.SessionID,
	})
	if err != nil {
		return nil, err
	}
	return asynq.NewTask(tasks.TypeKeyGeneration, payload), nil
}

// KeySignRequest asks the worker to sign a payload with a stored key
// and return a compact JWS.
type KeySignRequest struct {
	KeyID     string `json:"key_id" validate:"required,uuid"`
	Payload   string `json:"payload" validate:"required,base64"` // claims JSON, base64 std encoding
	SessionID string `json:"session_id"`
}

func (r KeySignRequest) IsValid() error {
	if r.KeyID == "" {
		return errors.New("invalid key id")
	}
	if r.Payload == "" {
		return errors.New("invalid payload")
	}
	if _, err := base64.StdEncoding.DecodeString(r.Payload); err != nil {
		return errors.New("payload must be base64 encoded")
	}
	return nil
}

func (r KeySignRequest) Task() (*asynq.Task, error) {
	payload, err := json.Marshal(tasks.KeySignPayload{
		KeyID:     r.KeyID,
		SessionID: r.SessionID,
		Payload:   r.Payload,
	})
	if err != nil {
		return nil, err
	}
	return asynq.NewTask(tasks.TypeKeySign, payload), nil
}

// Key returns the dedup marker key for this sign session.
func (r KeySignRequest) Key() string {
	return fmt.Sprintf("sign-%s-%s", r.KeyID, r.SessionID)
}

// KeySignTaskResult is what the worker writes to the task result.
type KeySignTaskResult struct {
	KeyID        string `json:"key_id"`
	Token        string `json:"token"`
	RawSignature string `json:"raw_signature"` // base64 std encoding
	DERSignature string `json:"der_signature"` // base64 std encoding
}

// ConvertRequest is a direct format-conversion call, no stored key
// involved; the curve name supplies the output width.
type ConvertRequest struct {
	Curve     string `json:"curve" validate:"required,curve"`
	Signature string `json:"signature" validate:"required,base64"`
}

func (r ConvertRequest) IsValid() error {
	if _, err := jose.CurveByName(r.Curve); err != nil {
		return err
	}
	if _, err := base64.StdEncoding.DecodeString(r.Signature); err != nil {
		return errors.New("signature must be base64 encoded")
	}
	return nil
}

type ConvertResponse struct {
	Curve     string `json:"curve"`
	Signature string `json:"signature"` // base64 std encoding
}

// TokenVerifyRequest verifies a compact JWS against a stored key.
type TokenVerifyRequest struct {
	KeyID string `json:"key_id" validate:"required,uuid"`
	Token string `json:"token" validate:"required"`
}

func (r TokenVerifyRequest) IsValid() error {
	if r.KeyID == "" {
		return errors.New("invalid key id")
	}
	if r.Token == "" {
		return errors.New("invalid token")
	}
	return nil
}

type TokenVerifyResponse struct {
	Valid   bool   `json:"valid"`
	Payload string `json:"payload,omitempty"` // base64 std encoding
}
