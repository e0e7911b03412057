package ca

import (
	"crypto/rsa"
	"crypto/x509"

	"github.com/cloudflare/cfssl/helpers"

	"github.com/psd2/qcert/internal/qcerr"
	"github.com/psd2/qcert/internal/store"
)

// parseIssuedDetails reconstructs a parsed certificate and, if still
// present, its private key from a stored CertificateDetails row. Used when
// resuming a bootstrapped root CA found in the repository rather than
// creating a fresh one. Key parsing goes through cfssl's helpers.ParsePrivateKeyPEM
// (PKCS#1/PKCS#8-agnostic) rather than a bare x509.ParsePKCS1PrivateKey call,
// since a stored key may have been written in either form.
func parseIssuedDetails(d store.CertificateDetails) (*x509.Certificate, *rsa.PrivateKey, error) {
	cert, err := x509.ParseCertificate(d.EncodedCert)
	if err != nil {
		return nil, nil, qcerr.Wrap(qcerr.KindDerDecode, err, "failed to parse stored certificate")
	}
	if len(d.PrivateKeyPEM) == 0 {
		return cert, nil, nil
	}
	signer, err := helpers.ParsePrivateKeyPEM(d.PrivateKeyPEM)
	if err != nil {
		return nil, nil, qcerr.Wrap(qcerr.KindBadCertificate, err, "failed to parse stored private key")
	}
	key, ok := signer.(*rsa.PrivateKey)
	if !ok {
		return nil, nil, qcerr.New(qcerr.KindBadCertificate, "stored private key is not RSA")
	}
	return cert, key, nil
}
