package blind

import (
	"encoding/base64"
	"errors"

	"filippo.io/edwards25519"
)

var ErrProofMismatch = errors.New("blind: batch proof verification failed")

// weights derives one challenge scalar per token pair from the proof
// transcript, so a single DLEQ proof covers the whole batch.
func weights(publicKey []byte, blinded, signed []*edwards25519.Point) []*edwards25519.Scalar {
	seed := [][]byte{publicKey}
	for _, p := range blinded {
		seed = append(seed, p.Bytes())
	}
	for _, q := range signed {
		seed = append(seed, q.Bytes())
	}

	ws := make([]*edwards25519.Scalar, len(blinded))
	for i := range ws {
		ws[i] = hashToScalar(append(seed, []byte{byte(i), byte(i >> 8)})...)
	}
	return ws
}

func composite(ws []*edwards25519.Scalar, points []*edwards25519.Point) *edwards25519.Point {
	return new(edwards25519.Point).VarTimeMultiScalarMult(ws, points)
}

func decodePoints(encoded []string) ([]*edwards25519.Point, error) {
	points := make([]*edwards25519.Point, 0, len(encoded))
	for _, enc := range encoded {
		p, err := decodePoint(enc)
		if err != nil {
			return nil, err
		}
		points = append(points, p)
	}
	return points, nil
}

func challenge(publicKey []byte, m, z, a, c *edwards25519.Point) *edwards25519.Scalar {
	base := edwards25519.NewGeneratorPoint()
	return hashToScalar(base.Bytes(), publicKey, m.Bytes(), z.Bytes(), a.Bytes(), c.Bytes())
}

// BatchProof produces a DLEQ proof that every signed point was produced from
// its blinded counterpart with the key committed to by PublicKey.
func (sk *SigningKey) BatchProof(blinded, signed []string) (string, error) {
	bp, err := decodePoints(blinded)
	if err != nil {
		return "", err
	}
	sp, err := decodePoints(signed)
	if err != nil {
		return "", err
	}

	pub := new(edwards25519.Point).ScalarBaseMult(sk.k)

	ws := weights(pub.Bytes(), bp, sp)
	m := composite(ws, bp)
	z := composite(ws, sp)

	a, err := randomScalar()
	if err != nil {
		return "", err
	}
	commitB := new(edwards25519.Point).ScalarBaseMult(a)
	commitM := new(edwards25519.Point).ScalarMult(a, m)

	c := challenge(pub.Bytes(), m, z, commitB, commitM)

	// s = a - c*k
	s := edwards25519.NewScalar().Subtract(a, edwards25519.NewScalar().Multiply(c, sk.k))

	raw := make([]byte, 0, 64)
	raw = append(raw, c.Bytes()...)
	raw = append(raw, s.Bytes()...)
	return base64.StdEncoding.EncodeToString(raw), nil
}

// VerifyBatchProof checks a DLEQ batch proof against the issuer public key
// and the blinded/signed token pairs. Any decoding failure or a proof that
// does not verify is reported as ErrProofMismatch-class corruption.
func VerifyBatchProof(proof, publicKey string, blinded, signed []string) error {
	if len(blinded) != len(signed) || len(blinded) == 0 {
		return ErrProofMismatch
	}

	raw, err := base64.StdEncoding.DecodeString(proof)
	if err != nil || len(raw) != 64 {
		return ErrProofMismatch
	}
	c, err := edwards25519.NewScalar().SetCanonicalBytes(raw[:32])
	if err != nil {
		return ErrProofMismatch
	}
	s, err := edwards25519.NewScalar().SetCanonicalBytes(raw[32:])
	if err != nil {
		return ErrProofMismatch
	}

	pubRaw, err := base64.StdEncoding.DecodeString(publicKey)
	if err != nil || len(pubRaw) != 32 {
		return ErrInvalidPublicKey
	}
	pub, err := new(edwards25519.Point).SetBytes(pubRaw)
	if err != nil {
		return ErrInvalidPublicKey
	}

	bp, err := decodePoints(blinded)
	if err != nil {
		return ErrProofMismatch
	}
	sp, err := decodePoints(signed)
	if err != nil {
		return ErrProofMismatch
	}

	ws := weights(pub.Bytes(), bp, sp)
	m := composite(ws, bp)
	z := composite(ws, sp)

	// A' = s*B + c*K, C' = s*M + c*Z
	commitB := new(edwards25519.Point).VarTimeDoubleScalarBaseMult(c, pub, s)
	commitM := new(edwards25519.Point).VarTimeMultiScalarMult(
		[]*edwards25519.Scalar{s, c},
		[]*edwards25519.Point{m, z},
	)

	expected := challenge(pub.Bytes(), m, z, commitB, commitM)
	if expected.Equal(c) != 1 {
		return ErrProofMismatch
	}
	return nil
}
