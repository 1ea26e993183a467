// Package jose signs and verifies compact JWS tokens with the ECDSA
// family of JOSE algorithms. Signatures on the wire use the raw
// fixed-width encoding, so signing converts the DER output of
// crypto/ecdsa through sigcodec.
package jose

import (
	"crypto"
	"crypto/ecdsa"
	"crypto/elliptic"
	"crypto/rand"
	"encoding/base64"
	"encoding/json"
	"fmt"
	"math/big"
	"strings"

	ethcrypto "github.com/ethereum/go-ethereum/crypto"

	"github.com/sigforge/sigforge/sigcodec"
)

type Algorithm string

const (
	AlgES256  Algorithm = "ES256"
	AlgES384  Algorithm = "ES384"
	AlgES512  Algorithm = "ES512"
	AlgES256K Algorithm = "ES256K"
)

// ParseAlgorithm validates an algorithm name from a request or a
// token header.
func ParseAlgorithm(s string) (Algorithm, error) {
	switch alg := Algorithm(s); alg {
	case AlgES256, AlgES384, AlgES512, AlgES256K:
		return alg, nil
	default:
		return "", fmt.Errorf("unsupported algorithm: %s", s)
	}
}

func (a Algorithm) Curve() elliptic.Curve {
	switch a {
	case AlgES256:
		return elliptic.P256()
	case AlgES384:
		return elliptic.P384()
	case AlgES512:
		return elliptic.P521()
	case AlgES256K:
		return ethcrypto.S256()
	default:
		return nil
	}
}

func (a Algorithm) Hash() crypto.Hash {
	switch a {
	case AlgES384:
		return crypto.SHA384
	case AlgES512:
		return crypto.SHA512
	default:
		return crypto.SHA256
	}
}

// CurveName returns the JWK "crv" value for the algorithm's curve.
func (a Algorithm) CurveName() string {
	switch a {
	case AlgES256:
		return "P-256"
	case AlgES384:
		return "P-384"
	case AlgES512:
		return "P-521"
	case AlgES256K:
		return "secp256k1"
	default:
		return ""
	}
}

// CurveByName maps a JWK "crv" value to the curve, for the format
// conversion endpoints where no key is involved.
func CurveByName(name string) (elliptic.Curve, error) {
	switch name {
	case "P-256":
		return elliptic.P256(), nil
	case "P-384":
		return elliptic.P384(), nil
	case "P-521":
		return elliptic.P521(), nil
	case "secp256k1":
		return ethcrypto.S256(), nil
	default:
		return nil, fmt.Errorf("unsupported curve: %s", name)
	}
}

type Header struct {
	Alg string `json:"alg"`
	Typ string `json:"typ,omitempty"`
	Kid string `json:"kid,omitempty"`
}

// SignCompact produces a compact JWS over the payload. The header and
// payload are base64url-encoded, signed with the key, and the DER
// signature is converted to the raw fixed-width form before encoding.
func SignCompact(key *ecdsa.PrivateKey, alg Algorithm, kid string, payload []byte) (string, error) {
	if key.Curve != alg.Curve() {
		return "", fmt.Errorf("key curve does not match algorithm %s", alg)
	}

	headerJSON, err := json.Marshal(Header{Alg: string(alg), Typ: "JWT", Kid: kid})
	if err != nil {
		return "", fmt.Errorf("fail to marshal header, err: %w", err)
	}

	signingInput := base64.RawURLEncoding.EncodeToString(headerJSON) +
		"." + base64.RawURLEncoding.EncodeToString(payload)

	h := alg.Hash().New()
	h.Write([]byte(signingInput))
	digest := h.Sum(nil)

	der, err := ecdsa.SignASN1(rand.Reader, key, digest)
	if err != nil {
		return "", fmt.Errorf("fail to sign, err: %w", err)
	}

	raw, err := sigcodec.DERToRaw(&key.PublicKey, der)
	if err != nil {
		return "", fmt.Errorf("fail to convert signature, err: %w", err)
	}

	return signingInput + "." + base64.RawURLEncoding.EncodeToString(raw), nil
}

// VerifyCompact checks a compact JWS against the public key and
// returns the decoded payload.
func VerifyCompact(token string, pub *ecdsa.PublicKey) ([]byte, error) {
	parts := strings.Split(token, ".")
	if len(parts) != 3 {
		return nil, fmt.Errorf("token contains an invalid number of segments")
	}

	headerJSON, err := base64.RawURLEncoding.DecodeString(parts[0])
	if err != nil {
		return nil, fmt.Errorf("fail to decode header, err: %w", err)
	}
	var header Header
	if err := json.Unmarshal(headerJSON, &header); err != nil {
		return nil, fmt.Errorf("fail to unmarshal header, err: %w", err)
	}
	alg, err := ParseAlgorithm(header.Alg)
	if err != nil {
		return nil, err
	}
	if pub.Curve != alg.Curve() {
		return nil, fmt.Errorf("key curve does not match algorithm %s", alg)
	}

	sig, err := base64.RawURLEncoding.DecodeString(parts[2])
	if err != nil {
		return nil, fmt.Errorf("fail to decode signature, err: %w", err)
	}
	n := sigcodec.CurveByteSize(pub.Curve)
	if len(sig) != 2*n {
		return nil, fmt.Errorf("signature must be %d bytes, got %d", 2*n, len(sig))
	}

	signingInput := parts[0] + "." + parts[1]
	h := alg.Hash().New()
	h.Write([]byte(signingInput))
	digest := h.Sum(nil)

	r := new(big.Int).SetBytes(sig[:n])
	s := new(big.Int).SetBytes(sig[n:])
	if !ecdsa.Verify(pub, digest, r, s) {
		return nil, fmt.Errorf("signature is invalid")
	}

	return base64.RawURLEncoding.DecodeString(parts[1])
}
