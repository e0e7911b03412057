/*
Copyright IBM Corp. All Rights Reserved.

SPDX-License-Identifier: Apache-2.0
*/
/*
Notice: This file has been modified for qcert usage.
*/

package ca

import (
	"crypto/rand"
	"crypto/rsa"
	"crypto/sha1" //nolint:gosec // thumbprint/key id are defined over SHA-1 by RFC 5280.
	"crypto/x509"
	"crypto/x509/pkix"
	"encoding/pem"
	"strconv"
	"time"

	"github.com/go-kit/kit/log"
	"github.com/go-kit/kit/log/level"
	"github.com/pkg/errors"

	"github.com/psd2/qcert/internal/clock"
	"github.com/psd2/qcert/internal/extensions"
	"github.com/psd2/qcert/internal/qcerr"
	"github.com/psd2/qcert/internal/store"
	"github.com/psd2/qcert/internal/subject"
)

const (
	// DefaultKeySize is the RSA modulus size used when a caller does not
	// request a different one (spec §4.4: "RSA-2048 (configurable
	// 2048/3072/4096)").
	DefaultKeySize = 2048
	// rootValidityDays is the root CA's fixed validity window (spec §4.4:
	// "validity 10 years").
	rootValidityDays = 3650
	// clockSkewTolerance backdates notBefore to absorb clock skew between
	// issuer and relying parties (spec §4.4).
	clockSkewTolerance = 5 * time.Minute
)

// Issuer is the signing CA handed to CreateQualifiedCertificate: its
// certificate, private key, and the key ID the issued certificate's
// AuthorityKeyIdentifier must reference.
type Issuer struct {
	Cert  *x509.Certificate
	Key   *rsa.PrivateKey
	KeyID []byte
}

// Manager implements the certificate manager (C4): key generation, TBS
// assembly, signing, and root CA bootstrap.
type Manager struct {
	clock   clock.Clock
	keySize int
	logger  log.Logger
}

// NewManager returns a Manager using clk as its time source and keySize as
// the default RSA modulus size (0 selects DefaultKeySize). logger may be nil
// (SPEC_FULL.md §4.11: the host constructs one logger and threads it through
// C4/C6/C8).
func NewManager(clk clock.Clock, keySize int, logger log.Logger) *Manager {
	if keySize == 0 {
		keySize = DefaultKeySize
	}
	if logger == nil {
		logger = log.NewNopLogger()
	}
	return &Manager{clock: clk, keySize: keySize, logger: log.With(logger, "component", "ca")}
}

// Issued is the result of creating a certificate: the repository-ready row
// plus the parsed certificate and private key for immediate use (e.g.
// signing the first child certificate without a round trip through a
// repository).
type Issued struct {
	Details store.CertificateDetails
	Cert    *x509.Certificate
	Key     *rsa.PrivateKey
}

// CreateRootCA generates an RSA key pair and a self-signed root CA
// certificate for issuerDomain, per spec §4.4: BasicConstraints CA=true,
// SKI=AKI=computed, KeyUsage={digitalSignature, keyCertSign, cRLSign}, SHA-256,
// 10-year validity.
func (m *Manager) CreateRootCA(issuerDomain string) (Issued, error) {
	key, err := rsa.GenerateKey(rand.Reader, m.keySize)
	if err != nil {
		return Issued{}, qcerr.Wrap(qcerr.KindInvalidRequest, err, "failed to generate root CA key pair")
	}

	name := subject.New().
		WithCommonName(issuerDomain + " Root CA").
		WithOrganization(issuerDomain).
		WithCountry("EU")

	spkiDER, err := x509.MarshalPKIXPublicKey(&key.PublicKey)
	if err != nil {
		return Issued{}, qcerr.Wrap(qcerr.KindDerEncode, err, "failed to marshal root CA public key")
	}
	ski, err := extensions.KeyID(spkiDER)
	if err != nil {
		return Issued{}, qcerr.Wrap(qcerr.KindDerEncode, err, "failed to compute root CA subject key identifier")
	}

	serial, err := generateSerial()
	if err != nil {
		return Issued{}, err
	}

	now := m.clock.Now()
	notBefore := now.Add(-clockSkewTolerance)
	notAfter := now.AddDate(0, 0, rootValidityDays)

	var exts extList
	exts.add(extensions.BasicConstraints(true, nil))
	exts.add(extensions.KeyUsageExtension(extensions.KeyUsageDigitalSignature | extensions.KeyUsageKeyCertSign | extensions.KeyUsageCRLSign))
	exts.add(extensions.SubjectKeyIdentifier(ski))
	exts.add(extensions.AuthorityKeyIdentifier(ski))
	if exts.err != nil {
		return Issued{}, exts.err
	}

	template := &x509.Certificate{
		SerialNumber: serial,
		RawSubject:   name.DER(),
		NotBefore:    notBefore,
		NotAfter:     notAfter,
		// Root CA signing algorithm is fixed: CreateRootCA takes no request,
		// so there is no per-request algorithm to honor here (spec §4.4's
		// RS*/PS* selection applies to issued qualified certificates, §4.4).
		SignatureAlgorithm: x509.SHA256WithRSA,
		ExtraExtensions:    exts.list,
	}

	derBytes, err := x509.CreateCertificate(rand.Reader, template, template, &key.PublicKey, key)
	if err != nil {
		return Issued{}, qcerr.Wrap(qcerr.KindDerEncode, err, "failed to sign root CA certificate")
	}

	cert, err := x509.ParseCertificate(derBytes)
	if err != nil {
		return Issued{}, qcerr.Wrap(qcerr.KindDerDecode, err, "failed to parse freshly-signed root CA certificate")
	}

	keyID := hexID(ski)
	thumb := sha1.Sum(derBytes) //nolint:gosec
	details := store.CertificateDetails{
		KeyID:          keyID,
		AuthorityKeyID: keyID, // self-signed root: authority_key_id == key_id
		SerialNumber:   serial.Bytes(),
		Subject:        name.String(),
		Thumbprint:     thumb[:],
		Algorithm:      "RS256",
		EncodedCert:    derBytes,
		PrivateKeyPEM:  encodeRSAKeyPEM(key),
		IsCA:           true,
		CreatedDate:    now,
		Metadata:       map[string]string{"issuerDomain": issuerDomain},
	}

	level.Info(m.logger).Log("msg", "root CA issued", "key_id", keyID, "issuer_domain", issuerDomain)
	return Issued{Details: details, Cert: cert, Key: key}, nil
}

// CreateQualifiedCertificate issues a PSD2 qualified certificate for req,
// signed by issuer. If issuer is nil, a root CA is created on the fly and
// used to sign (spec §4.4).
func (m *Manager) CreateQualifiedCertificate(req PSD2Request, issuerDomain string, issuer *Issuer) (Issued, *Issued, error) {
	if err := req.Validate(); err != nil {
		return Issued{}, nil, err
	}

	var bootstrapped *Issued
	if issuer == nil {
		rootIssued, err := m.CreateRootCA(issuerDomain)
		if err != nil {
			return Issued{}, nil, err
		}
		issuer = &Issuer{Cert: rootIssued.Cert, Key: rootIssued.Key, KeyID: mustDecodeHex(rootIssued.Details.KeyID)}
		bootstrapped = &rootIssued
	}

	key, err := rsa.GenerateKey(rand.Reader, m.keySize)
	if err != nil {
		return Issued{}, bootstrapped, qcerr.Wrap(qcerr.KindInvalidRequest, err, "failed to generate subject key pair")
	}

	name := subject.New().WithCommonName(req.CommonName)
	if req.Organization != "" {
		name = name.WithOrganization(req.Organization)
	}
	name = name.WithOrganizationalUnit(req.OrganizationalUnit).
		WithLocality(req.Locality).
		WithState(req.State).
		WithCountry(req.Country)
	if req.NCA != nil {
		name = name.WithOrganizationIdentifier("PSD", req.NCA.Country, req.NCA.NCA, req.NCA.AuthorizationNumber)
	}

	spkiDER, err := x509.MarshalPKIXPublicKey(&key.PublicKey)
	if err != nil {
		return Issued{}, bootstrapped, qcerr.Wrap(qcerr.KindDerEncode, err, "failed to marshal subject public key")
	}
	ski, err := extensions.KeyID(spkiDER)
	if err != nil {
		return Issued{}, bootstrapped, qcerr.Wrap(qcerr.KindDerEncode, err, "failed to compute subject key identifier")
	}

	serial, err := generateSerial()
	if err != nil {
		return Issued{}, bootstrapped, err
	}

	now := m.clock.Now()
	notBefore := now.Add(-clockSkewTolerance)
	notAfter := now.AddDate(0, 0, req.ValidityDays)

	qcType := extensions.QCTypeUnspecified
	switch req.QCType {
	case extensions.QCTypeESign, extensions.QCTypeESeal, extensions.QCTypeWeb:
		qcType = req.QCType
	}

	var psd2 *extensions.PSD2Statement
	if req.NCA != nil {
		psd2 = &extensions.PSD2Statement{
			Roles:   extensions.Roles(req.Roles.ASPSP, req.Roles.PISP, req.Roles.AISP, req.Roles.PIISP),
			NCAName: req.AuthorityName,
			NCAID:   req.NCA.String(),
		}
	} else {
		psd2 = &extensions.PSD2Statement{
			Roles:   extensions.Roles(req.Roles.ASPSP, req.Roles.PISP, req.Roles.AISP, req.Roles.PIISP),
			NCAName: req.AuthorityName,
			NCAID:   req.AuthorityID,
		}
	}

	var exts extList
	exts.add(extensions.BasicConstraints(false, nil))
	exts.add(extensions.KeyUsageExtension(extensions.KeyUsageDigitalSignature | extensions.KeyUsageContentCommitment))
	exts.add(extensions.SubjectKeyIdentifier(ski))
	exts.add(extensions.AuthorityKeyIdentifier(issuer.KeyID))
	exts.add(extensions.CRLDistributionPoints([]string{"https://" + issuerDomain + "/.certificates/revoked.crl"}))
	exts.add(extensions.AuthorityInformationAccess([]extensions.AccessDescription{{
		Method:   []int{1, 3, 6, 1, 5, 5, 7, 48, 2},
		Location: "https://" + issuerDomain + "/.certificates/ca.cer",
	}}))
	exts.add(extensions.CertificatePolicies(policiesFor(qcType)))
	exts.add(extensions.QualifiedCertificateStatements(extensions.QCStatementsParams{
		Compliance:     true,
		LimitValue:     req.MonetaryLimit,
		RetentionYears: req.RetentionYears,
		QSCD:           req.QSCD,
		PDS:            req.PDS,
		Type:           qcType,
		PSD2:           psd2,
	}))
	if exts.err != nil {
		return Issued{}, bootstrapped, exts.err
	}

	template := &x509.Certificate{
		SerialNumber:       serial,
		RawSubject:         name.DER(),
		NotBefore:          notBefore,
		NotAfter:           notAfter,
		SignatureAlgorithm: signatureAlgorithmFor(req.Algorithm),
		ExtraExtensions:    exts.list,
	}

	derBytes, err := x509.CreateCertificate(rand.Reader, template, issuer.Cert, &key.PublicKey, issuer.Key)
	if err != nil {
		return Issued{}, bootstrapped, qcerr.Wrap(qcerr.KindDerEncode, err, "failed to sign qualified certificate")
	}

	cert, err := x509.ParseCertificate(derBytes)
	if err != nil {
		return Issued{}, bootstrapped, qcerr.Wrap(qcerr.KindDerDecode, err, "failed to parse freshly-signed qualified certificate")
	}

	keyID := hexID(ski)
	thumb := sha1.Sum(derBytes) //nolint:gosec
	details := store.CertificateDetails{
		KeyID:          keyID,
		AuthorityKeyID: hexID(issuer.KeyID),
		SerialNumber:   serial.Bytes(),
		Subject:        name.String(),
		Thumbprint:     thumb[:],
		Algorithm:      algorithmLabel(req.Algorithm),
		EncodedCert:    derBytes,
		PrivateKeyPEM:  encodeRSAKeyPEM(key),
		IsCA:           false,
		CreatedDate:    now,
		Metadata:       map[string]string{"issuerDomain": issuerDomain, "qcType": strconv.Itoa(int(qcType))},
	}

	level.Info(m.logger).Log("msg", "qualified certificate issued", "key_id", keyID,
		"authority_key_id", details.AuthorityKeyID, "algorithm", details.Algorithm)
	return Issued{Details: details, Cert: cert, Key: key}, bootstrapped, nil
}

// signatureAlgorithmFor resolves a PSD2Request.Algorithm string to the
// x509.SignatureAlgorithm used to sign the certificate, per spec §4.4:
// RSASSA-PKCS1-v1_5 by default, RSASSA-PSS when algorithm is PS*. Empty or
// unrecognized falls back to RS256.
func signatureAlgorithmFor(alg string) x509.SignatureAlgorithm {
	switch alg {
	case "RS384":
		return x509.SHA384WithRSA
	case "RS512":
		return x509.SHA512WithRSA
	case "PS256":
		return x509.SHA256WithRSAPSS
	case "PS384":
		return x509.SHA384WithRSAPSS
	case "PS512":
		return x509.SHA512WithRSAPSS
	default:
		return x509.SHA256WithRSA
	}
}

// algorithmLabel normalizes req.Algorithm to the label stored on
// CertificateDetails.Algorithm, defaulting empty to "RS256".
func algorithmLabel(alg string) string {
	switch alg {
	case "RS384", "RS512", "PS256", "PS384", "PS512":
		return alg
	default:
		return "RS256"
	}
}

func policiesFor(t extensions.QCType) []extensions.PolicyInformation {
	var policyOID []int
	switch t {
	case extensions.QCTypeESign:
		policyOID = []int{0, 4, 0, 194112, 1, 0}
	case extensions.QCTypeESeal:
		policyOID = []int{0, 4, 0, 194112, 1, 2}
	case extensions.QCTypeWeb:
		policyOID = []int{0, 4, 0, 194112, 1, 4}
	default:
		policyOID = []int{2, 5, 29, 32, 0} // anyPolicy
	}
	return []extensions.PolicyInformation{{OID: policyOID}}
}

// extList accumulates extension-builder results, short-circuiting on the
// first error so call sites can chain builder calls without repeating error
// checks after every one.
type extList struct {
	list []pkix.Extension
	err  error
}

func (l *extList) add(ext pkix.Extension, err error) {
	if l.err != nil {
		return
	}
	if err != nil {
		l.err = err
		return
	}
	l.list = append(l.list, ext)
}

func encodeRSAKeyPEM(key *rsa.PrivateKey) []byte {
	der := x509.MarshalPKCS1PrivateKey(key)
	return pem.EncodeToMemory(&pem.Block{Type: "RSA PRIVATE KEY", Bytes: der})
}

func hexID(b []byte) string {
	const hexdigits = "0123456789abcdef"
	out := make([]byte, len(b)*2)
	for i, c := range b {
		out[i*2] = hexdigits[c>>4]
		out[i*2+1] = hexdigits[c&0x0f]
	}
	return string(out)
}

func mustDecodeHex(s string) []byte {
	b, err := decodeHex(s)
	if err != nil {
		return nil
	}
	return b
}

func decodeHex(s string) ([]byte, error) {
	if len(s)%2 != 0 {
		return nil, errors.New("odd-length hex string")
	}
	out := make([]byte, len(s)/2)
	for i := 0; i < len(out); i++ {
		hi, err := hexVal(s[i*2])
		if err != nil {
			return nil, err
		}
		lo, err := hexVal(s[i*2+1])
		if err != nil {
			return nil, err
		}
		out[i] = hi<<4 | lo
	}
	return out, nil
}

func hexVal(c byte) (byte, error) {
	switch {
	case c >= '0' && c <= '9':
		return c - '0', nil
	case c >= 'a' && c <= 'f':
		return c - 'a' + 10, nil
	case c >= 'A' && c <= 'F':
		return c - 'A' + 10, nil
	default:
		return 0, errors.Errorf("invalid hex digit %q", c)
	}
}
