// Package oid centralizes the object identifiers this module needs, mirroring
// the table-of-constants convention used by zcrypto/zlint's oid.go and
// encoding/asn1's pkix package rather than scattering raw int slices across
// the extension builders.
package oid

// X.509 extension OIDs (RFC 5280).
var (
	BasicConstraints       = []int{2, 5, 29, 19}
	KeyUsage                = []int{2, 5, 29, 15}
	ExtKeyUsage             = []int{2, 5, 29, 37}
	SubjectKeyIdentifier    = []int{2, 5, 29, 14}
	AuthorityKeyIdentifier  = []int{2, 5, 29, 35}
	CRLDistributionPoints   = []int{2, 5, 29, 31}
	CertificatePolicies     = []int{2, 5, 29, 32}
	AuthorityInfoAccess     = []int{1, 3, 6, 1, 5, 5, 7, 1, 1}
)

// PKIX access-method OIDs (RFC 5280 §4.2.2.1).
var (
	AccessMethodCAIssuers = []int{1, 3, 6, 1, 5, 5, 7, 48, 2}
	AccessMethodOCSP      = []int{1, 3, 6, 1, 5, 5, 7, 48, 1}
)

// Extended key usage OIDs (RFC 5280 §4.2.1.12).
var (
	EKUServerAuth = []int{1, 3, 6, 1, 5, 5, 7, 3, 1}
	EKUClientAuth = []int{1, 3, 6, 1, 5, 5, 7, 3, 2}
)

// ETSI EN 319 412-5 qualified-certificate statement OIDs.
var (
	QCStatements    = []int{1, 3, 6, 1, 5, 5, 7, 1, 3}
	QcCompliance    = []int{0, 4, 0, 1862, 1, 1}
	QcLimitValue    = []int{0, 4, 0, 1862, 1, 2}
	QcRetentionPeriod = []int{0, 4, 0, 1862, 1, 3}
	QcSSCD          = []int{0, 4, 0, 1862, 1, 4}
	QcPDS           = []int{0, 4, 0, 1862, 1, 5}
	QcType          = []int{0, 4, 0, 1862, 1, 6}

	QcTypeESign = []int{0, 4, 0, 1862, 1, 6, 1}
	QcTypeESeal = []int{0, 4, 0, 1862, 1, 6, 2}
	QcTypeWeb   = []int{0, 4, 0, 1862, 1, 6, 3}
)

// ETSI TS 119 495 PSD2 qualified-certificate statement OID.
var QcStatementPSD2 = []int{0, 4, 0, 19495, 2}

// PSD2 role OIDs (ETSI TS 119 495 §5.1).
var (
	RolePSP_AS  = []int{0, 4, 0, 19495, 1, 1}
	RolePSP_PI  = []int{0, 4, 0, 19495, 1, 2}
	RolePSP_AI  = []int{0, 4, 0, 19495, 1, 3}
	RolePSP_IC  = []int{0, 4, 0, 19495, 1, 4}
)

// CA/Browser Forum organization-identifier attribute (CA/B Forum EVGs Appendix H).
var OrganizationIdentifier = []int{2, 23, 140, 3, 1}

// RFC 4519 / RFC 5280 Name attribute OIDs used by the subject builder.
var (
	AttrCommonName         = []int{2, 5, 4, 3}
	AttrOrganization       = []int{2, 5, 4, 10}
	AttrOrganizationalUnit = []int{2, 5, 4, 11}
	AttrLocality           = []int{2, 5, 4, 7}
	AttrState              = []int{2, 5, 4, 8}
	AttrCountry            = []int{2, 5, 4, 6}
	AttrEmailAddress       = []int{1, 2, 840, 113549, 1, 9, 1}
)
