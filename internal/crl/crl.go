// Package crl implements the CRL generator (C6): it reads the revocation set
// from a store.Repository and emits a DER-encoded CRL signed by the CA.
package crl

import (
	"crypto"
	"crypto/rand"
	"crypto/rsa"
	"crypto/sha256"
	"crypto/x509"
	"math/big"
	"time"

	"github.com/go-kit/kit/log"
	"github.com/go-kit/kit/log/level"
	"golang.org/x/crypto/ocsp"

	"github.com/psd2/qcert/internal/clock"
	"github.com/psd2/qcert/internal/der"
	"github.com/psd2/qcert/internal/qcerr"
	"github.com/psd2/qcert/internal/store"
)

// reasonExtensionOID is id-ce-cRLReason (RFC 5280 §5.3.1).
var reasonExtensionOID = []int{2, 5, 29, 21}

// enumerated returns a DER ENUMERATED with the same content encoding rules
// as INTEGER (RFC 5280's reasonCode is ENUMERATED, universal tag 0x0A).
func enumerated(n int) []byte {
	encoded := der.EncodeInteger(big.NewInt(int64(n)))
	encoded[0] = 0x0A
	return encoded
}

// normalizeReason maps an unrecognized reason code to ocsp.Unspecified,
// mirroring the teacher's RevocationReasonCodes map-driven validation
// (util.go) against golang.org/x/crypto/ocsp's RFC 5280 constants.
func normalizeReason(reason int) int {
	switch reason {
	case ocsp.Unspecified, ocsp.KeyCompromise, ocsp.CACompromise, ocsp.AffiliationChanged,
		ocsp.Superseded, ocsp.CessationOfOperation, ocsp.CertificateHold, ocsp.RemoveFromCRL,
		ocsp.PrivilegeWithdrawn, ocsp.AACompromise:
		return reason
	default:
		return ocsp.Unspecified
	}
}

func sha256Sum(b []byte) []byte {
	sum := sha256.Sum256(b)
	return sum[:]
}

// DefaultNextUpdateInterval is the default gap between thisUpdate and
// nextUpdate (spec §4.6 / §9: "7 days is chosen here as a sensible default").
const DefaultNextUpdateInterval = 7 * 24 * time.Hour

// Generator builds signed CRLs from a repository's revocation set.
type Generator struct {
	repo               store.Repository
	clock              clock.Clock
	nextUpdateInterval time.Duration
	logger             log.Logger
}

// NewGenerator returns a Generator reading revocations from repo. A zero
// nextUpdateInterval selects DefaultNextUpdateInterval. logger may be nil
// (SPEC_FULL.md §4.11: the host constructs one logger and threads it through
// C4/C6/C8).
func NewGenerator(repo store.Repository, clk clock.Clock, nextUpdateInterval time.Duration, logger log.Logger) *Generator {
	if nextUpdateInterval == 0 {
		nextUpdateInterval = DefaultNextUpdateInterval
	}
	if logger == nil {
		logger = log.NewNopLogger()
	}
	return &Generator{repo: repo, clock: clk, nextUpdateInterval: nextUpdateInterval, logger: log.With(logger, "component", "crl")}
}

// Generate emits a DER CRL signed by issuerCert/issuerKey, per spec §4.6:
// tbsCertList{version v2, signature, issuer, thisUpdate, nextUpdate,
// revokedCertificates[]}, then signatureAlgorithm, signatureValue.
func (g *Generator) Generate(issuerCert *x509.Certificate, issuerKey *rsa.PrivateKey) ([]byte, error) {
	entries, err := g.repo.RevocationList(nil)
	if err != nil {
		return nil, qcerr.Wrap(qcerr.KindRepositoryUnavailable, err, "failed to read revocation list")
	}
	crlNumber, err := g.repo.NextCRLNumber()
	if err != nil {
		return nil, qcerr.Wrap(qcerr.KindRepositoryUnavailable, err, "failed to allocate CRL number")
	}

	thisUpdate := g.clock.Now()
	nextUpdate := thisUpdate.Add(g.nextUpdateInterval)

	var revoked [][]byte
	for _, e := range entries {
		reasonExt := der.EncodeSequence(
			der.EncodeOID(reasonExtensionOID),
			der.EncodeOctetString(enumerated(normalizeReason(e.Reason))),
		)
		revoked = append(revoked, der.EncodeSequence(
			der.EncodePositiveSerial(e.SerialNumber),
			der.EncodeTime(e.RevocationDate),
			der.EncodeSequence(reasonExt),
		))
	}

	sigAlgOID := []int{1, 2, 840, 113549, 1, 1, 11} // sha256WithRSAEncryption
	sigAlgDER := der.EncodeSequence(der.EncodeOID(sigAlgOID), der.EncodeNull())

	tbsFields := [][]byte{
		der.EncodeInteger(big.NewInt(1)), // v2
		sigAlgDER,
		issuerCert.RawSubject,
		der.EncodeTime(thisUpdate),
		der.EncodeTime(nextUpdate),
	}
	if len(revoked) > 0 {
		tbsFields = append(tbsFields, der.EncodeSequence(revoked...))
	}
	// crlExtensions [0] EXPLICIT SEQUENCE { cRLNumber }
	crlNumberExt := der.EncodeSequence(
		der.EncodeOID([]int{2, 5, 29, 20}),
		der.EncodeOctetString(der.EncodeInteger(big.NewInt(crlNumber))),
	)
	tbsFields = append(tbsFields, der.EncodeExplicitTag(0, der.EncodeSequence(crlNumberExt)))

	tbs := der.EncodeSequence(tbsFields...)

	hashed := sha256Sum(tbs)
	signature, err := rsa.SignPKCS1v15(rand.Reader, issuerKey, crypto.SHA256, hashed)
	if err != nil {
		return nil, qcerr.Wrap(qcerr.KindDerEncode, err, "failed to sign CRL")
	}

	crlBytes := der.EncodeSequence(
		tbs,
		sigAlgDER,
		der.EncodeBitString(signature, 0),
	)
	level.Info(g.logger).Log("msg", "CRL generated", "crl_number", crlNumber, "revoked_count", len(entries), "next_update", nextUpdate)
	return crlBytes, nil
}
