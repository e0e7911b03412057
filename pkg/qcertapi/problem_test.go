package qcertapi

import (
	"net/http"
	"testing"

	"github.com/stretchr/testify/assert"

	"github.com/psd2/qcert/internal/qcerr"
)

func TestStatusForMapsEachKindExactlyOnce(t *testing.T) {
	cases := []struct {
		kind qcerr.Kind
		want int
	}{
		{qcerr.KindInvalidRequest, http.StatusBadRequest},
		{qcerr.KindMissingSignature, http.StatusBadRequest},
		{qcerr.KindMissingDigest, http.StatusBadRequest},
		{qcerr.KindMissingCert, http.StatusBadRequest},
		{qcerr.KindBadCertificate, http.StatusUnauthorized},
		{qcerr.KindDigestMismatch, http.StatusUnauthorized},
		{qcerr.KindSignatureInvalid, http.StatusUnauthorized},
		{qcerr.KindExpired, http.StatusUnauthorized},
		{qcerr.KindDuplicateKeyID, http.StatusConflict},
		{qcerr.KindNotFound, http.StatusNotFound},
		{qcerr.KindRepositoryUnavailable, http.StatusServiceUnavailable},
		{qcerr.KindBodyTooLarge, http.StatusRequestEntityTooLarge},
		{qcerr.KindDerDecode, http.StatusBadRequest},
		{qcerr.KindDerEncode, http.StatusInternalServerError},
		{qcerr.KindUnknown, http.StatusInternalServerError},
	}
	for _, c := range cases {
		assert.Equal(t, c.want, StatusFor(c.kind), "kind %s", c.kind.String())
	}
}

func TestNewProblemDetailsPopulatesAllFields(t *testing.T) {
	p := NewProblemDetails(qcerr.KindSignatureInvalid, "Signature validation failed.")
	assert.Equal(t, "SignatureInvalid", p.Title)
	assert.Equal(t, http.StatusUnauthorized, p.Status)
	assert.Equal(t, "Signature validation failed.", p.Detail)
	assert.Contains(t, p.Type, "SignatureInvalid")
}
