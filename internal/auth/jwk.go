// ABOUTME: JSON Web Key Set decoding into Go public keys
// ABOUTME: Supports RSA, EC (P-256/P-384/P-521), and OKP Ed25519 signing keys

package auth

import (
	"crypto"
	"crypto/ecdsa"
	"crypto/ed25519"
	"crypto/elliptic"
	"crypto/rsa"
	"encoding/base64"
	"encoding/json"
	"errors"
	"fmt"
	"math/big"
	"time"
)

// SigningKey is a public verification key published by the token issuer.
type SigningKey struct {
	KeyID     string
	Algorithm string // "alg" from the key set; empty when the issuer did not pin one
	Key       crypto.PublicKey
	FetchedAt time.Time
}

type jsonWebKey struct {
	Kty string `json:"kty"`
	Kid string `json:"kid"`
	Use string `json:"use,omitempty"`
	Alg string `json:"alg,omitempty"`

	// RSA
	N string `json:"n,omitempty"`
	E string `json:"e,omitempty"`

	// EC and OKP
	Crv string `json:"crv,omitempty"`
	X   string `json:"x,omitempty"`
	Y   string `json:"y,omitempty"`
}

type jsonWebKeySet struct {
	Keys []jsonWebKey `json:"keys"`
}

var errUnsupportedKey = errors.New("unsupported key")

// parseKeySet decodes a JWKS document. Keys that are not signing keys or that
// cannot be decoded are skipped; an error is returned only when the document
// itself is malformed.
func parseKeySet(data []byte, fetchedAt time.Time) (map[string]*SigningKey, error) {
	var set jsonWebKeySet
	if err := json.Unmarshal(data, &set); err != nil {
		return nil, fmt.Errorf("decoding key set: %w", err)
	}

	keys := make(map[string]*SigningKey, len(set.Keys))
	for _, k := range set.Keys {
		if k.Kid == "" || (k.Use != "" && k.Use != "sig") {
			continue
		}
		pub, err := k.publicKey()
		if err != nil {
			continue
		}
		keys[k.Kid] = &SigningKey{
			KeyID:     k.Kid,
			Algorithm: k.Alg,
			Key:       pub,
			FetchedAt: fetchedAt,
		}
	}
	return keys, nil
}

func (k jsonWebKey) publicKey() (crypto.PublicKey, error) {
	switch k.Kty {
	case "RSA":
		return k.rsaKey()
	case "EC":
		return k.ecKey()
	case "OKP":
		return k.okpKey()
	default:
		return nil, fmt.Errorf("%w: kty %q", errUnsupportedKey, k.Kty)
	}
}

func (k jsonWebKey) rsaKey() (*rsa.PublicKey, error) {
	n, err := decodeSegment("n", k.N)
	if err != nil {
		return nil, err
	}
	e, err := decodeSegment("e", k.E)
	if err != nil {
		return nil, err
	}
	if len(e) > 4 {
		return nil, fmt.Errorf("%w: rsa exponent too large", errUnsupportedKey)
	}

	var exp int
	for _, b := range e {
		exp = exp<<8 | int(b)
	}
	if exp < 3 {
		return nil, fmt.Errorf("%w: rsa exponent %d", errUnsupportedKey, exp)
	}

	return &rsa.PublicKey{N: new(big.Int).SetBytes(n), E: exp}, nil
}

func (k jsonWebKey) ecKey() (*ecdsa.PublicKey, error) {
	var curve elliptic.Curve
	switch k.Crv {
	case "P-256":
		curve = elliptic.P256()
	case "P-384":
		curve = elliptic.P384()
	case "P-521":
		curve = elliptic.P521()
	default:
		return nil, fmt.Errorf("%w: crv %q", errUnsupportedKey, k.Crv)
	}

	x, err := decodeSegment("x", k.X)
	if err != nil {
		return nil, err
	}
	y, err := decodeSegment("y", k.Y)
	if err != nil {
		return nil, err
	}

	size := (curve.Params().BitSize + 7) / 8
	if len(x) > size || len(y) > size {
		return nil, fmt.Errorf("%w: coordinate too long for %s", errUnsupportedKey, k.Crv)
	}

	// Uncompressed SEC 1 point: 0x04 || X || Y, coordinates left-padded.
	point := make([]byte, 1+2*size)
	point[0] = 4
	copy(point[1+size-len(x):1+size], x)
	copy(point[1+2*size-len(y):], y)

	return ecdsa.ParseUncompressedPublicKey(curve, point)
}

func (k jsonWebKey) okpKey() (ed25519.PublicKey, error) {
	if k.Crv != "Ed25519" {
		return nil, fmt.Errorf("%w: crv %q", errUnsupportedKey, k.Crv)
	}
	x, err := decodeSegment("x", k.X)
	if err != nil {
		return nil, err
	}
	if len(x) != ed25519.PublicKeySize {
		return nil, fmt.Errorf("%w: ed25519 key length %d", errUnsupportedKey, len(x))
	}
	return ed25519.PublicKey(x), nil
}

func decodeSegment(name, s string) ([]byte, error) {
	if s == "" {
		return nil, fmt.Errorf("%w: missing %s", errUnsupportedKey, name)
	}
	b, err := base64.RawURLEncoding.DecodeString(s)
	if err != nil {
		return nil, fmt.Errorf("decoding %s: %w", name, err)
	}
	return b, nil
}
