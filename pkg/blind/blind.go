// Package blind implements the blinded-token credential scheme used by the
// credentials workflow: clients blind token points before submitting them to
// the issuer, the issuer signs blindly with its secret key and publishes a
// DLEQ batch proof, and clients unblind the signatures into spendable
// credentials bound to the issuer public key.
package blind

import (
	"crypto/hmac"
	"crypto/rand"
	"crypto/sha256"
	"crypto/sha512"
	"encoding/base64"
	"errors"
	"fmt"

	"filippo.io/edwards25519"
)

var (
	ErrInvalidToken     = errors.New("blind: invalid token encoding")
	ErrInvalidPoint     = errors.New("blind: invalid point encoding")
	ErrInvalidPublicKey = errors.New("blind: invalid public key encoding")
)

// Token is a client-held credential preimage: a seed scalar defining the
// token point and the blinding factor applied before submission.
type Token struct {
	seed  *edwards25519.Scalar
	blind *edwards25519.Scalar
}

func randomScalar() (*edwards25519.Scalar, error) {
	var buf [64]byte
	if _, err := rand.Read(buf[:]); err != nil {
		return nil, err
	}
	return edwards25519.NewScalar().SetUniformBytes(buf[:])
}

// NewToken generates a fresh token with a random seed and blinding factor.
func NewToken() (*Token, error) {
	seed, err := randomScalar()
	if err != nil {
		return nil, err
	}
	blind, err := randomScalar()
	if err != nil {
		return nil, err
	}
	return &Token{seed: seed, blind: blind}, nil
}

// point returns the unblinded token point seed*B.
func (t *Token) point() *edwards25519.Point {
	return new(edwards25519.Point).ScalarBaseMult(t.seed)
}

// Blinded returns the blinded token point blind*seed*B, base64-encoded.
func (t *Token) Blinded() string {
	p := new(edwards25519.Point).ScalarMult(t.blind, t.point())
	return base64.StdEncoding.EncodeToString(p.Bytes())
}

// Unblind removes the blinding factor from a signed credential and returns
// the spendable token value: base64(seed || signedPoint).
func (t *Token) Unblind(signed string) (string, error) {
	q, err := decodePoint(signed)
	if err != nil {
		return "", err
	}

	inv := edwards25519.NewScalar().Invert(t.blind)
	unblinded := new(edwards25519.Point).ScalarMult(inv, q)

	value := make([]byte, 0, 64)
	value = append(value, t.seed.Bytes()...)
	value = append(value, unblinded.Bytes()...)
	return base64.StdEncoding.EncodeToString(value), nil
}

// MarshalText encodes the token for at-rest storage in a creds batch.
func (t *Token) MarshalText() ([]byte, error) {
	raw := make([]byte, 0, 64)
	raw = append(raw, t.seed.Bytes()...)
	raw = append(raw, t.blind.Bytes()...)
	return []byte(base64.StdEncoding.EncodeToString(raw)), nil
}

// ParseToken decodes a token previously encoded with MarshalText.
func ParseToken(encoded string) (*Token, error) {
	raw, err := base64.StdEncoding.DecodeString(encoded)
	if err != nil || len(raw) != 64 {
		return nil, ErrInvalidToken
	}
	seed, err := edwards25519.NewScalar().SetCanonicalBytes(raw[:32])
	if err != nil {
		return nil, ErrInvalidToken
	}
	blind, err := edwards25519.NewScalar().SetCanonicalBytes(raw[32:])
	if err != nil {
		return nil, ErrInvalidToken
	}
	return &Token{seed: seed, blind: blind}, nil
}

// SigningKey is the issuer-side secret. Kept here so tests and local issuer
// fakes can produce valid signatures and batch proofs.
type SigningKey struct {
	k *edwards25519.Scalar
}

func NewSigningKey() (*SigningKey, error) {
	k, err := randomScalar()
	if err != nil {
		return nil, err
	}
	return &SigningKey{k: k}, nil
}

// PublicKey returns the base64-encoded commitment k*B.
func (sk *SigningKey) PublicKey() string {
	p := new(edwards25519.Point).ScalarBaseMult(sk.k)
	return base64.StdEncoding.EncodeToString(p.Bytes())
}

// Sign multiplies every blinded token point by the secret key.
func (sk *SigningKey) Sign(blinded []string) ([]string, error) {
	signed := make([]string, 0, len(blinded))
	for _, enc := range blinded {
		p, err := decodePoint(enc)
		if err != nil {
			return nil, err
		}
		q := new(edwards25519.Point).ScalarMult(sk.k, p)
		signed = append(signed, base64.StdEncoding.EncodeToString(q.Bytes()))
	}
	return signed, nil
}

// DeriveRedeemCredential derives the per-redemption MAC over payload using
// the shared secret embedded in an unblinded token value. The issuer can
// recompute the same MAC from the token preimage, which is what makes a
// token spendable exactly once against a specific confirmation payload.
func DeriveRedeemCredential(tokenValue string, payload []byte) (string, error) {
	raw, err := base64.StdEncoding.DecodeString(tokenValue)
	if err != nil || len(raw) != 64 {
		return "", ErrInvalidToken
	}
	mac := hmac.New(sha256.New, raw[32:])
	mac.Write(payload)
	return base64.StdEncoding.EncodeToString(mac.Sum(nil)), nil
}

func decodePoint(encoded string) (*edwards25519.Point, error) {
	raw, err := base64.StdEncoding.DecodeString(encoded)
	if err != nil || len(raw) != 32 {
		return nil, ErrInvalidPoint
	}
	p, err := new(edwards25519.Point).SetBytes(raw)
	if err != nil {
		return nil, fmt.Errorf("%w: %v", ErrInvalidPoint, err)
	}
	return p, nil
}

func hashToScalar(parts ...[]byte) *edwards25519.Scalar {
	h := sha512.New()
	for _, part := range parts {
		h.Write(part)
	}
	s, _ := edwards25519.NewScalar().SetUniformBytes(h.Sum(nil))
	return s
}
