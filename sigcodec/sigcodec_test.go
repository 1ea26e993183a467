package sigcodec

import (
	"crypto/ecdsa"
	"crypto/elliptic"
	"crypto/rand"
	"crypto/sha256"
	"encoding/asn1"
	"math/big"
	"testing"

	ethcrypto "github.com/ethereum/go-ethereum/crypto"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func mustDER(t *testing.T, r, s *big.Int) []byte {
	t.Helper()
	der, err := asn1.Marshal(ecdsaSignature{R: r, S: s})
	require.NoError(t, err)
	return der
}

func TestCurveByteSize(t *testing.T) {
	assert.Equal(t, 32, CurveByteSize(elliptic.P256()))
	assert.Equal(t, 48, CurveByteSize(elliptic.P384()))
	assert.Equal(t, 66, CurveByteSize(elliptic.P521()))
	assert.Equal(t, 32, CurveByteSize(ethcrypto.S256()))
}

func TestDERToRawRealSignatures(t *testing.T) {
	curves := []struct {
		name  string
		curve elliptic.Curve
	}{
		{"P-256", elliptic.P256()},
		{"P-384", elliptic.P384()},
		{"P-521", elliptic.P521()},
		{"secp256k1", ethcrypto.S256()},
	}

	digest := sha256.Sum256([]byte("header.payload"))
	for _, tc := range curves {
		t.Run(tc.name, func(t *testing.T) {
			key, err := ecdsa.GenerateKey(tc.curve, rand.Reader)
			require.NoError(t, err)

			n := CurveByteSize(tc.curve)
			// Repeat so both nonce-dependent padding shapes show up.
			for i := 0; i < 16; i++ {
				der, err := ecdsa.SignASN1(rand.Reader, key, digest[:])
				require.NoError(t, err)

				raw, err := DERToRaw(&key.PublicKey, der)
				require.NoError(t, err)
				require.Len(t, raw, 2*n)

				r := new(big.Int).SetBytes(raw[:n])
				s := new(big.Int).SetBytes(raw[n:])
				assert.True(t, ecdsa.Verify(&key.PublicKey, digest[:], r, s))
			}
		})
	}
}

func TestDERToRawMatchesFillBytes(t *testing.T) {
	pub := &ecdsa.PublicKey{Curve: elliptic.P256()}
	n := CurveByteSize(pub.Curve)
	order := pub.Curve.Params().N

	for i := 0; i < 64; i++ {
		r, err := rand.Int(rand.Reader, order)
		require.NoError(t, err)
		s, err := rand.Int(rand.Reader, order)
		require.NoError(t, err)

		raw, err := DERToRaw(pub, mustDER(t, r, s))
		require.NoError(t, err)

		want := make([]byte, 2*n)
		r.FillBytes(want[:n])
		s.FillBytes(want[n:])
		assert.Equal(t, want, raw)
	}
}

// A component whose top content byte has bit 7 set carries a single
// 0x00 sign-padding byte in DER; it must still come back as exactly N
// bytes.
func TestDERToRawStripsSignPadding(t *testing.T) {
	pub := &ecdsa.PublicKey{Curve: elliptic.P256()}
	n := CurveByteSize(pub.Curve)

	r := new(big.Int).Lsh(big.NewInt(0x80), 8*uint(n-1)) // 0x8000...00, 32 bytes
	s := big.NewInt(1)

	der := mustDER(t, r, s)
	// asn1.Marshal must have emitted the padding byte we care about.
	require.Equal(t, byte(0x00), der[4])
	require.Equal(t, byte(0x80), der[5])

	raw, err := DERToRaw(pub, der)
	require.NoError(t, err)
	require.Len(t, raw, 2*n)
	assert.Equal(t, byte(0x80), raw[0])
	assert.Equal(t, byte(0x01), raw[2*n-1])
}

func TestDERToRawShortComponents(t *testing.T) {
	pub := &ecdsa.PublicKey{Curve: elliptic.P256()}
	n := CurveByteSize(pub.Curve)

	raw, err := DERToRaw(pub, mustDER(t, big.NewInt(1), big.NewInt(0)))
	require.NoError(t, err)
	require.Len(t, raw, 2*n)

	want := make([]byte, 2*n)
	want[n-1] = 1
	assert.Equal(t, want, raw)
}

func TestDERToRawRejectsMalformed(t *testing.T) {
	pub := &ecdsa.PublicKey{Curve: elliptic.P256()}
	order := pub.Curve.Params().N

	r, err := rand.Int(rand.Reader, order)
	require.NoError(t, err)
	s, err := rand.Int(rand.Reader, order)
	require.NoError(t, err)
	valid := mustDER(t, r, s)

	oversized := new(big.Int).Lsh(big.NewInt(1), 8*32) // 33-byte magnitude

	testCases := []struct {
		name string
		der  []byte
	}{
		{"empty input", nil},
		{"truncated", valid[:len(valid)-2]},
		{"trailing byte", append(append([]byte{}, valid...), 0x00)},
		{"wrong outer tag", append([]byte{0x31}, valid[1:]...)},
		{"sequence length overstates input", func() []byte {
			der := append([]byte{}, valid...)
			der[1]++
			return der
		}()},
		{"sequence length understates input", func() []byte {
			der := append([]byte{}, valid...)
			der[1]--
			return der
		}()},
		{"indefinite length", []byte{0x30, 0x80, 0x02, 0x01, 0x01, 0x02, 0x01, 0x01, 0x00, 0x00}},
		{"non-minimal long-form length", []byte{0x30, 0x81, 0x06, 0x02, 0x01, 0x01, 0x02, 0x01, 0x01}},
		{"wrong integer tag", []byte{0x30, 0x06, 0x03, 0x01, 0x01, 0x02, 0x01, 0x01}},
		{"empty integer", []byte{0x30, 0x04, 0x02, 0x00, 0x02, 0x00}},
		{"single integer only", []byte{0x30, 0x03, 0x02, 0x01, 0x01}},
		{"three integers", []byte{0x30, 0x09, 0x02, 0x01, 0x01, 0x02, 0x01, 0x01, 0x02, 0x01, 0x01}},
		{"negative r", []byte{0x30, 0x06, 0x02, 0x01, 0x80, 0x02, 0x01, 0x01}},
		{"negative s", []byte{0x30, 0x06, 0x02, 0x01, 0x01, 0x02, 0x01, 0xff}},
		{"unnecessary zero padding", []byte{0x30, 0x07, 0x02, 0x02, 0x00, 0x01, 0x02, 0x01, 0x01}},
		{"double zero padding", []byte{0x30, 0x08, 0x02, 0x03, 0x00, 0x00, 0x80, 0x02, 0x01, 0x01}},
		{"r wider than curve", mustDER(t, oversized, s)},
		{"s wider than curve", mustDER(t, r, oversized)},
	}

	for _, tc := range testCases {
		t.Run(tc.name, func(t *testing.T) {
			raw, err := DERToRaw(pub, tc.der)
			assert.Nil(t, raw)
			assert.ErrorIs(t, err, ErrInvalidDERSignature)
		})
	}
}

func TestRawToDERRoundTrip(t *testing.T) {
	pub := &ecdsa.PublicKey{Curve: elliptic.P384()}
	n := CurveByteSize(pub.Curve)
	order := pub.Curve.Params().N

	for i := 0; i < 32; i++ {
		r, err := rand.Int(rand.Reader, order)
		require.NoError(t, err)
		s, err := rand.Int(rand.Reader, order)
		require.NoError(t, err)

		raw := make([]byte, 2*n)
		r.FillBytes(raw[:n])
		s.FillBytes(raw[n:])

		der, err := RawToDER(raw)
		require.NoError(t, err)

		again, err := DERToRaw(pub, der)
		require.NoError(t, err)
		assert.Equal(t, raw, again)
	}
}

func TestRawToDERRejectsOddLength(t *testing.T) {
	_, err := RawToDER(make([]byte, 63))
	assert.ErrorIs(t, err, ErrInvalidDERSignature)

	_, err = RawToDER(nil)
	assert.ErrorIs(t, err, ErrInvalidDERSignature)
}
