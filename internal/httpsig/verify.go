package httpsig

import (
	"crypto"
	"crypto/rand"
	"crypto/rsa"
	"crypto/x509"
	"net/http"

	"github.com/psd2/qcert/internal/creds"
	"github.com/psd2/qcert/internal/qcerr"
)

// hashForAlgorithm resolves alg to a hash. hs2019 carries no hash of its own
// (RFC draft-cavage-http-signatures §3.1.1 wants it derived from the key the
// signature verifies against); since every key this engine handles is RSA,
// that derivation resolves to the same SHA-256 rsa-sha256 already uses.
func hashForAlgorithm(alg Algorithm, key crypto.PublicKey) (crypto.Hash, error) {
	switch alg {
	case AlgRSASHA256:
		return crypto.SHA256, nil
	case AlgRSASHA512:
		return crypto.SHA512, nil
	case AlgHS2019:
		if _, ok := key.(*rsa.PublicKey); ok {
			return crypto.SHA256, nil
		}
		return 0, qcerr.New(qcerr.KindSignatureInvalid, "hs2019: unsupported key type")
	default:
		return 0, qcerr.New(qcerr.KindSignatureInvalid, "unsupported signature algorithm: "+string(alg))
	}
}

// Verify checks sig against req using the candidate key. It recomputes the
// SigningString from sig.Headers and req, hashes it per sig.Algorithm, and
// verifies the PKCS1v15 RSA signature. (created)/(expires) are taken from
// sig itself, never trusted from req headers; (request-target) is rebuilt
// from req's method and URL, per spec §4.7 invariant 4 (the request line is
// part of what's signed).
func Verify(sig Signature, req *http.Request, key crypto.PublicKey) error {
	rsaKey, ok := key.(*rsa.PublicKey)
	if !ok {
		return qcerr.New(qcerr.KindSignatureInvalid, "validation key is not an RSA public key")
	}
	hash, err := hashForAlgorithm(sig.Algorithm, rsaKey)
	if err != nil {
		return err
	}
	signingString, err := SigningString(sig.Headers, req, sig.Created, sig.Expires)
	if err != nil {
		return err
	}
	digest, err := hashBytes(hash, []byte(signingString))
	if err != nil {
		return err
	}
	if err := rsa.VerifyPKCS1v15(rsaKey, hash, digest, sig.Value); err != nil {
		return qcerr.Wrap(qcerr.KindSignatureInvalid, err, "signature verification failed")
	}
	return nil
}

// ResolveKey picks the verification key for sig.KeyID out of candidates,
// per spec §4.8 step "RESOLVE_KEYS": exact keyId match against the
// ValidationKeyStore.
func ResolveKey(sig Signature, store creds.ValidationKeyStore) (*x509.Certificate, crypto.PublicKey, error) {
	keys, err := store.ValidationKeys()
	if err != nil {
		return nil, nil, qcerr.Wrap(qcerr.KindRepositoryUnavailable, err, "failed to load validation keys")
	}
	for _, k := range keys {
		if k.KeyID == sig.KeyID {
			return k.Cert, k.PublicKey, nil
		}
	}
	return nil, nil, qcerr.New(qcerr.KindNotFound, "no trusted key for keyId: "+sig.KeyID)
}

// Sign produces a Signature for req using cred, over the given header list,
// per spec §4.9 (response signing).
func Sign(cred *creds.SigningCredential, headers []string, req *http.Request, created, expires int64) (Signature, error) {
	alg := Algorithm(cred.Algorithm)
	hash, err := hashForAlgorithm(alg, cred.Signer.Public())
	if err != nil {
		return Signature{}, err
	}
	signingString, err := SigningString(headers, req, created, expires)
	if err != nil {
		return Signature{}, err
	}
	digest, err := hashBytes(hash, []byte(signingString))
	if err != nil {
		return Signature{}, err
	}
	sigBytes, err := cred.Signer.Sign(rand.Reader, digest, hash)
	if err != nil {
		return Signature{}, qcerr.Wrap(qcerr.KindSignatureInvalid, err, "failed to sign response")
	}
	return Signature{
		KeyID:     cred.KeyID,
		Algorithm: alg,
		Created:   created,
		Expires:   expires,
		Headers:   headers,
		Value:     sigBytes,
	}, nil
}

func hashBytes(h crypto.Hash, data []byte) ([]byte, error) {
	hasher := h.New()
	if _, err := hasher.Write(data); err != nil {
		return nil, qcerr.Wrap(qcerr.KindSignatureInvalid, err, "failed to hash signing string")
	}
	return hasher.Sum(nil), nil
}
