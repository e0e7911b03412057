// Package qcertapi documents the wire-level JSON shapes a host HTTP layer
// emits for the certificate repository REST contract and for the error
// taxonomy's problem-details responses. Nothing here serves HTTP itself —
// that is the host's job — this package only fixes the DTOs and the one
// place Kind maps to a status code.
package qcertapi

import (
	"net/http"
	"time"

	"github.com/psd2/qcert/internal/qcerr"
)

// ProblemDetails is the RFC 7807-flavored body emitted on every non-2xx
// response from the HTTP-signature pipeline and the certificate endpoints.
type ProblemDetails struct {
	Type   string `json:"type,omitempty"`
	Title  string `json:"title"`
	Status int    `json:"status"`
	Detail string `json:"detail,omitempty"`
}

// NewProblemDetails builds a ProblemDetails for kind with detail as the
// human-readable cause.
func NewProblemDetails(kind qcerr.Kind, detail string) ProblemDetails {
	return ProblemDetails{
		Type:   "https://psd2.example/problems/" + kind.String(),
		Title:  kind.String(),
		Status: StatusFor(kind),
		Detail: detail,
	}
}

// StatusFor is the single place a qcerr.Kind maps to an HTTP status code,
// per spec §9's "maps kinds to status codes once" instruction.
func StatusFor(kind qcerr.Kind) int {
	switch kind {
	case qcerr.KindInvalidRequest,
		qcerr.KindMissingSignature,
		qcerr.KindMissingDigest,
		qcerr.KindMissingCert:
		return http.StatusBadRequest
	case qcerr.KindBadCertificate,
		qcerr.KindDigestMismatch,
		qcerr.KindSignatureInvalid,
		qcerr.KindExpired:
		return http.StatusUnauthorized
	case qcerr.KindDuplicateKeyID:
		return http.StatusConflict
	case qcerr.KindNotFound:
		return http.StatusNotFound
	case qcerr.KindRepositoryUnavailable:
		return http.StatusServiceUnavailable
	case qcerr.KindBodyTooLarge:
		return http.StatusRequestEntityTooLarge
	case qcerr.KindDerEncode:
		return http.StatusInternalServerError
	case qcerr.KindDerDecode:
		return http.StatusBadRequest
	default:
		return http.StatusInternalServerError
	}
}

// CertificateView is the JSON shape returned by POST /.certificates and
// GET /.certificates (spec §6); GET /.certificates/{keyId}.{ext} returns
// the raw exported bytes instead.
type CertificateView struct {
	KeyID            string     `json:"keyId"`
	AuthorityKeyID   string     `json:"authorityKeyId"`
	Subject          string     `json:"subject"`
	Algorithm        string     `json:"algorithm"`
	IsCA             bool       `json:"isCA"`
	Revoked          bool       `json:"revoked"`
	CreatedDate      time.Time  `json:"createdDate"`
	RevocationDate   *time.Time `json:"revocationDate,omitempty"`
	RevocationReason *int       `json:"revocationReason,omitempty"` // RFC 5280 CRLReason code
}

// RevokedEntryView is one row of a revocation-list JSON view (not the DER
// CRL itself, which is served as raw bytes per spec §6).
type RevokedEntryView struct {
	SerialNumber   string    `json:"serialNumber"` // hex
	RevocationDate time.Time `json:"revocationDate"`
	Reason         int       `json:"reason"` // RFC 5280 CRLReason code
}
