package ca

import (
	"crypto/rand"
	"crypto/x509"
	"encoding/pem"

	"golang.org/x/crypto/pkcs12"

	"github.com/psd2/qcert/internal/qcerr"
	"github.com/psd2/qcert/internal/store"
)

// Format is an export output format (spec §4.4).
type Format int

const (
	FormatDER Format = iota
	FormatPEM
	FormatPKCS12
)

// Export renders details in the requested format. PKCS12 requires a
// password and fails with KindInvalidRequest if the certificate's private
// key has already been discarded.
func Export(details store.CertificateDetails, format Format, password string) ([]byte, error) {
	switch format {
	case FormatDER:
		return details.EncodedCert, nil
	case FormatPEM:
		return pem.EncodeToMemory(&pem.Block{Type: "CERTIFICATE", Bytes: details.EncodedCert}), nil
	case FormatPKCS12:
		if len(details.PrivateKeyPEM) == 0 {
			return nil, qcerr.New(qcerr.KindInvalidRequest, "private key unavailable for PKCS#12 export")
		}
		cert, err := x509.ParseCertificate(details.EncodedCert)
		if err != nil {
			return nil, qcerr.Wrap(qcerr.KindDerDecode, err, "failed to parse certificate for PKCS#12 export")
		}
		block, _ := pem.Decode(details.PrivateKeyPEM)
		if block == nil {
			return nil, qcerr.New(qcerr.KindBadCertificate, "private key is not valid PEM")
		}
		key, err := x509.ParsePKCS1PrivateKey(block.Bytes)
		if err != nil {
			return nil, qcerr.Wrap(qcerr.KindBadCertificate, err, "failed to parse RSA private key")
		}
		pfx, err := pkcs12.Encode(rand.Reader, key, cert, nil, password)
		if err != nil {
			return nil, qcerr.Wrap(qcerr.KindDerEncode, err, "failed to encode PKCS#12 bundle")
		}
		return pfx, nil
	default:
		return nil, qcerr.New(qcerr.KindInvalidRequest, "unsupported export format")
	}
}
