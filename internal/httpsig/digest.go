// Package httpsig parses and serializes the Signature and Digest HTTP
// headers (spec §4.7) and assembles the canonical signature-input string per
// the draft-cavage HTTP-Signatures specification. The header-parameter
// layout mirrors github.com/go-fed/httpsig's conventions (see
// other_examples' apcore config.go for the "rsa-sha256,rsa-sha512" /
// "(request-target)" idiom), implemented directly here rather than imported
// so the pipeline controls the canonicalization edge cases (pseudo-header
// handling, multi-value joining) spec §4.7 specifies exactly.
package httpsig

import (
	"crypto/sha256"
	"crypto/sha512"
	"crypto/subtle"
	"encoding/base64"
	"strings"

	"github.com/psd2/qcert/internal/qcerr"
)

// DigestAlgorithm identifies a supported Digest header hash.
type DigestAlgorithm string

const (
	DigestSHA256 DigestAlgorithm = "SHA-256"
	DigestSHA512 DigestAlgorithm = "SHA-512"
)

// Digest is a parsed Digest header (spec §3/§4.7).
type Digest struct {
	Algorithm DigestAlgorithm
	Value     []byte // decoded, not base64
}

// ComputeDigest computes a Digest for body using algo.
func ComputeDigest(algo DigestAlgorithm, body []byte) (Digest, error) {
	switch algo {
	case DigestSHA256:
		sum := sha256.Sum256(body)
		return Digest{Algorithm: algo, Value: sum[:]}, nil
	case DigestSHA512:
		sum := sha512.Sum512(body)
		return Digest{Algorithm: algo, Value: sum[:]}, nil
	default:
		return Digest{}, qcerr.New(qcerr.KindInvalidRequest, "unsupported digest algorithm: "+string(algo))
	}
}

// Header renders the Digest header value, e.g. "SHA-256=<base64>".
func (d Digest) Header() string {
	return string(d.Algorithm) + "=" + base64.StdEncoding.EncodeToString(d.Value)
}

// ParseDigest parses a Digest header value. Invariant: the decoded value
// length must match the algorithm's output size.
func ParseDigest(header string) (Digest, error) {
	idx := strings.Index(header, "=")
	if idx < 0 {
		return Digest{}, qcerr.New(qcerr.KindMissingDigest, "malformed Digest header")
	}
	algo := DigestAlgorithm(header[:idx])
	raw, err := base64.StdEncoding.DecodeString(header[idx+1:])
	if err != nil {
		return Digest{}, qcerr.Wrap(qcerr.KindMissingDigest, err, "Digest header value is not valid base64")
	}
	var wantLen int
	switch algo {
	case DigestSHA256:
		wantLen = sha256.Size
	case DigestSHA512:
		wantLen = sha512.Size
	default:
		return Digest{}, qcerr.New(qcerr.KindMissingDigest, "unsupported digest algorithm: "+string(algo))
	}
	if len(raw) != wantLen {
		return Digest{}, qcerr.New(qcerr.KindMissingDigest, "digest value length does not match algorithm")
	}
	return Digest{Algorithm: algo, Value: raw}, nil
}

// Validate recomputes the digest of body and constant-time-compares it
// against d, per spec §4.7 / testable invariant 3.
func (d Digest) Validate(body []byte) bool {
	recomputed, err := ComputeDigest(d.Algorithm, body)
	if err != nil {
		return false
	}
	return subtle.ConstantTimeCompare(recomputed.Value, d.Value) == 1
}
