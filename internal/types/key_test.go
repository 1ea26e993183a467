package types

import (
	"encoding/base64"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/sigforge/sigforge/internal/tasks"
)

func TestKeyCreateRequestIsValid(t *testing.T) {
	assert.NoError(t, KeyCreateRequest{Name: "k", Algorithm: "ES256"}.IsValid())
	assert.Error(t, KeyCreateRequest{Name: "", Algorithm: "ES256"}.IsValid())
	assert.Error(t, KeyCreateRequest{Name: "k", Algorithm: "RS256"}.IsValid())

	assert.NoError(t, Validate.Struct(KeyCreateRequest{Name: "k", Algorithm: "ES512"}))
	assert.Error(t, Validate.Struct(KeyCreateRequest{Name: "k", Algorithm: "none"}))
}

func TestKeySignRequestIsValid(t *testing.T) {
	payload := base64.StdEncoding.EncodeToString([]byte(`{"sub":"x"}`))

	assert.NoError(t, KeySignRequest{KeyID: "a", Payload: payload}.IsValid())
	assert.Error(t, KeySignRequest{KeyID: "", Payload: payload}.IsValid())
	assert.Error(t, KeySignRequest{KeyID: "a", Payload: "not-base64!"}.IsValid())
}

func TestKeySignRequestTask(t *testing.T) {
	payload := base64.StdEncoding.EncodeToString([]byte(`{}`))
	req := KeySignRequest{KeyID: "key-1", Payload: payload, SessionID: "sess-1"}

	task, err := req.Task()
	require.NoError(t, err)
	assert.Equal(t, tasks.TypeKeySign, task.Type())
	assert.Equal(t, "sign-key-1-sess-1", req.Key())
}

func TestConvertRequestIsValid(t *testing.T) {
	sig := base64.StdEncoding.EncodeToString([]byte{0x30, 0x06})

	assert.NoError(t, ConvertRequest{Curve: "P-256", Signature: sig}.IsValid())
	assert.NoError(t, ConvertRequest{Curve: "secp256k1", Signature: sig}.IsValid())
	assert.Error(t, ConvertRequest{Curve: "P-128", Signature: sig}.IsValid())
	assert.Error(t, ConvertRequest{Curve: "P-256", Signature: "***"}.IsValid())
}
