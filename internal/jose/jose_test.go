package jose

import (
	"crypto/ecdsa"
	"crypto/rand"
	"strings"
	"testing"

	"github.com/golang-jwt/jwt"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestSignVerifyRoundTrip(t *testing.T) {
	payload := []byte(`{"sub":"session-7","aud":"https://example.test"}`)

	for _, alg := range []Algorithm{AlgES256, AlgES384, AlgES512, AlgES256K} {
		t.Run(string(alg), func(t *testing.T) {
			key, err := ecdsa.GenerateKey(alg.Curve(), rand.Reader)
			require.NoError(t, err)

			token, err := SignCompact(key, alg, "key-1", payload)
			require.NoError(t, err)
			require.Len(t, strings.Split(token, "."), 3)

			got, err := VerifyCompact(token, &key.PublicKey)
			require.NoError(t, err)
			assert.Equal(t, payload, got)
		})
	}
}

// golang-jwt expects exactly the raw fixed-width signature encoding,
// so it serves as an independent check of the DER conversion.
func TestES256TokenVerifiesWithGolangJWT(t *testing.T) {
	key, err := ecdsa.GenerateKey(AlgES256.Curve(), rand.Reader)
	require.NoError(t, err)

	token, err := SignCompact(key, AlgES256, "", []byte(`{"sub":"interop"}`))
	require.NoError(t, err)

	parts := strings.Split(token, ".")
	require.Len(t, parts, 3)

	err = jwt.SigningMethodES256.Verify(parts[0]+"."+parts[1], parts[2], &key.PublicKey)
	assert.NoError(t, err)
}

func TestVerifyCompactRejectsTampering(t *testing.T) {
	key, err := ecdsa.GenerateKey(AlgES256.Curve(), rand.Reader)
	require.NoError(t, err)
	otherKey, err := ecdsa.GenerateKey(AlgES256.Curve(), rand.Reader)
	require.NoError(t, err)

	token, err := SignCompact(key, AlgES256, "key-1", []byte(`{"sub":"a"}`))
	require.NoError(t, err)
	parts := strings.Split(token, ".")

	testCases := []struct {
		name  string
		token string
		pub   *ecdsa.PublicKey
	}{
		{"wrong key", token, &otherKey.PublicKey},
		{"modified payload", parts[0] + ".eyJzdWIiOiJiIn0." + parts[2], &key.PublicKey},
		{"truncated signature", parts[0] + "." + parts[1] + "." + parts[2][:len(parts[2])-8], &key.PublicKey},
		{"missing segment", parts[0] + "." + parts[1], &key.PublicKey},
		{"garbage header", "notbase64!." + parts[1] + "." + parts[2], &key.PublicKey},
	}

	for _, tc := range testCases {
		t.Run(tc.name, func(t *testing.T) {
			_, err := VerifyCompact(tc.token, tc.pub)
			assert.Error(t, err)
		})
	}
}

func TestVerifyCompactRejectsAlgorithmMismatch(t *testing.T) {
	key, err := ecdsa.GenerateKey(AlgES384.Curve(), rand.Reader)
	require.NoError(t, err)
	token, err := SignCompact(key, AlgES384, "", []byte(`{}`))
	require.NoError(t, err)

	p256Key, err := ecdsa.GenerateKey(AlgES256.Curve(), rand.Reader)
	require.NoError(t, err)

	_, err = VerifyCompact(token, &p256Key.PublicKey)
	assert.Error(t, err)
}

func TestJWKRoundTrip(t *testing.T) {
	for _, alg := range []Algorithm{AlgES256, AlgES384, AlgES512, AlgES256K} {
		t.Run(string(alg), func(t *testing.T) {
			key, err := ecdsa.GenerateKey(alg.Curve(), rand.Reader)
			require.NoError(t, err)

			jwk := PublicKeyToJWK(&key.PublicKey, alg, "key-9")
			assert.Equal(t, "EC", jwk.Kty)
			assert.Equal(t, alg.CurveName(), jwk.Crv)

			pub, err := JWKToPublicKey(jwk)
			require.NoError(t, err)
			assert.True(t, pub.Equal(&key.PublicKey))
		})
	}
}

func TestJWKToPublicKeyRejectsOffCurvePoint(t *testing.T) {
	key, err := ecdsa.GenerateKey(AlgES256.Curve(), rand.Reader)
	require.NoError(t, err)

	jwk := PublicKeyToJWK(&key.PublicKey, AlgES256, "")
	jwk.Y = jwk.X

	_, err = JWKToPublicKey(jwk)
	assert.Error(t, err)
}

func TestParseAlgorithm(t *testing.T) {
	_, err := ParseAlgorithm("none")
	assert.Error(t, err)

	_, err = ParseAlgorithm("HS256")
	assert.Error(t, err)

	alg, err := ParseAlgorithm("ES256K")
	require.NoError(t, err)
	assert.Equal(t, AlgES256K, alg)
}
