// Package sigcodec converts ECDSA signatures between the ASN.1 DER
// encoding produced by signers (ECDSA-Sig-Value, a SEQUENCE of two
// INTEGERs) and the fixed-width IEEE P1363 encoding required by JOSE
// signature fields: r and s big-endian, each zero-padded to the byte
// width of the curve order, concatenated.
package sigcodec

import (
	"crypto/ecdsa"
	"crypto/elliptic"
	"encoding/asn1"
	"errors"
	"math/big"
)

const (
	tagSequence = 0x30
	tagInteger  = 0x02
)

// ErrInvalidDERSignature is returned for every conversion failure:
// malformed DER, trailing bytes, negative components, or components
// too wide for the curve. Callers cannot distinguish the cases and
// retrying a deterministic parse failure is pointless.
var ErrInvalidDERSignature = errors.New("invalid DER-encoded ECDSA signature")

// CurveByteSize returns the number of bytes needed to represent the
// largest scalar for the given curve (32 for P-256, 48 for P-384, 66
// for P-521).
func CurveByteSize(curve elliptic.Curve) int {
	return (curve.Params().N.BitLen() + 7) / 8
}

// DERToRaw converts a DER-encoded ECDSA signature to the raw P1363
// form for the curve of the given public key. The result is always
// exactly 2*CurveByteSize(pub.Curve) bytes. On any parse or range
// failure it returns nil and ErrInvalidDERSignature, never partial
// output.
func DERToRaw(pub *ecdsa.PublicKey, der []byte) ([]byte, error) {
	n := CurveByteSize(pub.Curve)

	body, rest, err := readElement(der, tagSequence)
	if err != nil || len(rest) != 0 {
		return nil, ErrInvalidDERSignature
	}

	r, body, err := readInteger(body)
	if err != nil {
		return nil, ErrInvalidDERSignature
	}
	s, body, err := readInteger(body)
	if err != nil || len(body) != 0 {
		return nil, ErrInvalidDERSignature
	}

	if len(r) > n || len(s) > n {
		return nil, ErrInvalidDERSignature
	}

	raw := make([]byte, 2*n)
	copy(raw[n-len(r):n], r)
	copy(raw[2*n-len(s):], s)
	return raw, nil
}

type ecdsaSignature struct {
	R, S *big.Int
}

// RawToDER converts a raw P1363 signature (r || s, equal widths) back
// to DER. The inverse of DERToRaw for any signature with r, s >= 0.
func RawToDER(raw []byte) ([]byte, error) {
	if len(raw) == 0 || len(raw)%2 != 0 {
		return nil, ErrInvalidDERSignature
	}
	half := len(raw) / 2
	sig := ecdsaSignature{
		R: new(big.Int).SetBytes(raw[:half]),
		S: new(big.Int).SetBytes(raw[half:]),
	}
	der, err := asn1.Marshal(sig)
	if err != nil {
		return nil, ErrInvalidDERSignature
	}
	return der, nil
}

// readElement reads one TLV element, checks its tag and returns the
// content bytes and whatever follows the element. Lengths must use
// the minimal definite form; signatures are at most a few hundred
// bytes, so length fields wider than two bytes are rejected outright.
func readElement(in []byte, tag byte) (content, rest []byte, err error) {
	if len(in) < 2 || in[0] != tag {
		return nil, nil, ErrInvalidDERSignature
	}
	var length, offset int
	switch b := in[1]; {
	case b < 0x80:
		length = int(b)
		offset = 2
	case b == 0x81:
		if len(in) < 3 || in[2] < 0x80 {
			return nil, nil, ErrInvalidDERSignature
		}
		length = int(in[2])
		offset = 3
	case b == 0x82:
		if len(in) < 4 || in[2] == 0 {
			return nil, nil, ErrInvalidDERSignature
		}
		length = int(in[2])<<8 | int(in[3])
		if length < 0x100 {
			return nil, nil, ErrInvalidDERSignature
		}
		offset = 4
	default:
		// Indefinite (0x80) or implausibly long forms.
		return nil, nil, ErrInvalidDERSignature
	}
	if len(in)-offset < length {
		return nil, nil, ErrInvalidDERSignature
	}
	return in[offset : offset+length], in[offset+length:], nil
}

// readInteger reads one DER INTEGER and returns its magnitude with
// any sign-padding byte stripped. Rejects negative values, empty
// contents and non-minimal encodings (a leading 0x00 is allowed only
// when the following byte has its high bit set).
func readInteger(in []byte) (magnitude, rest []byte, err error) {
	content, rest, err := readElement(in, tagInteger)
	if err != nil {
		return nil, nil, err
	}
	if len(content) == 0 {
		return nil, nil, ErrInvalidDERSignature
	}
	if content[0]&0x80 != 0 {
		// Negative integers never occur in a valid ECDSA-Sig-Value.
		return nil, nil, ErrInvalidDERSignature
	}
	if content[0] == 0 {
		if len(content) == 1 {
			// The integer zero.
			return nil, rest, nil
		}
		if content[1]&0x80 == 0 {
			return nil, nil, ErrInvalidDERSignature
		}
		content = content[1:]
	}
	return content, rest, nil
}
