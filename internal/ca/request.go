// Package ca implements the certificate manager (C4): key generation,
// TBSCertificate assembly, signing, export, and on-demand root CA creation.
// The request type below is loosely modeled on cfssl's csr.CertificateRequest
// — see lib/gmca.go in the teacher tree — but is a flat struct of the
// PSD2-specific fields spec §3 names, with no Names/Hosts/KeyRequest fields.
package ca

import (
	"strings"

	"github.com/psd2/qcert/internal/extensions"
	"github.com/psd2/qcert/internal/qcerr"
)

// RoleFlags are the PSD2 payment-service-provider roles spec §3 names.
// Invariant: at least one flag must be true.
type RoleFlags struct {
	AISP  bool `json:"aisp"`
	PISP  bool `json:"pisp"`
	ASPSP bool `json:"aspsp"`
	PIISP bool `json:"piisp"`
}

func (r RoleFlags) any() bool { return r.AISP || r.PISP || r.ASPSP || r.PIISP }

// NCAIdentifier is the optional National Competent Authority identifier
// triple spec §3 names.
type NCAIdentifier struct {
	Prefix              string `json:"prefix"`  // e.g. "PSD"
	Country             string `json:"country"` // ISO-3166 alpha-2
	NCA                 string `json:"nca"`     // NCA short code, e.g. "BOG" for Bank of Greece
	AuthorizationNumber string `json:"authorizationNumber"`
}

// String renders the NCAId as ETSI TS 119 495 expects it:
// <prefix>-<country>-<nca>-<authorization number>.
func (n NCAIdentifier) String() string {
	return strings.Join([]string{n.Prefix, n.Country, n.NCA, n.AuthorizationNumber}, "-")
}

// PSD2Request is a Certificate request (PSD2) per spec §3.
type PSD2Request struct {
	Locality            string                    `json:"locality,omitempty"`
	State               string                    `json:"state,omitempty"`
	Country             string                    `json:"country"` // ISO-3166 alpha-2
	Organization        string                    `json:"organization,omitempty"`
	OrganizationalUnit  string                    `json:"organizationalUnit,omitempty"`
	CommonName          string                    `json:"commonName"`
	AuthorityID         string                    `json:"authorityId,omitempty"` // NCA short code
	AuthorityName       string                    `json:"authorityName,omitempty"`
	AuthorizationNumber string                    `json:"authorizationNumber"`
	ValidityDays        int                       `json:"validityDays"`
	// Algorithm is one of RS256|RS384|RS512|PS256|PS384|PS512 (spec §3, §4.4).
	// Empty selects RS256 (RSASSA-PKCS1-v1_5/SHA-256), the default; PS*
	// selects RSASSA-PSS with the matching hash.
	Algorithm           string                    `json:"algorithm,omitempty"`
	QCType              extensions.QCType         `json:"qcType"`
	Roles               RoleFlags                 `json:"roles"`
	NCA                 *NCAIdentifier            `json:"nca,omitempty"`
	MonetaryLimit       *extensions.MonetaryLimit `json:"monetaryLimit,omitempty"`
	RetentionYears      *int                      `json:"retentionYears,omitempty"`
	QSCD                bool                      `json:"qscd,omitempty"`
	PDS                 []extensions.PDSLocation  `json:"pds,omitempty"`
}

// Validate checks the invariants spec §3 lists for a Certificate request.
func (r PSD2Request) Validate() error {
	if len(r.Country) != 2 || strings.ToUpper(r.Country) != r.Country {
		return qcerr.New(qcerr.KindInvalidRequest, "country must be an ISO-3166 alpha-2 code")
	}
	if !r.Roles.any() {
		return qcerr.New(qcerr.KindInvalidRequest, "at least one role flag must be true")
	}
	if r.ValidityDays < 1 {
		return qcerr.New(qcerr.KindInvalidRequest, "validity-in-days must be >= 1")
	}
	if r.AuthorizationNumber == "" {
		return qcerr.New(qcerr.KindInvalidRequest, "authorization-number must be non-empty")
	}
	if len(r.CommonName) > 64 {
		return qcerr.New(qcerr.KindInvalidRequest, "common name must be <= 64 characters")
	}
	if r.CommonName == "" {
		return qcerr.New(qcerr.KindInvalidRequest, "common name must be non-empty")
	}
	switch r.Algorithm {
	case "", "RS256", "RS384", "RS512", "PS256", "PS384", "PS512":
	default:
		return qcerr.New(qcerr.KindInvalidRequest, "algorithm must be one of RS256|RS384|RS512|PS256|PS384|PS512")
	}
	return nil
}
