package pipeline

import (
	"bytes"
	"crypto/x509"
	"encoding/base64"
	"net/http"

	"github.com/psd2/qcert/internal/qcerr"
)

// responseRecorder buffers a handler's response so it can be digested and
// signed before anything reaches the real http.ResponseWriter, per spec
// §9's "buffer ... response bodies for signing" requirement.
type responseRecorder struct {
	header http.Header
	status int
	body   bytes.Buffer
}

func (r *responseRecorder) Header() http.Header { return r.header }

func (r *responseRecorder) Write(b []byte) (int, error) { return r.body.Write(b) }

func (r *responseRecorder) WriteHeader(status int) { r.status = status }

// parseCertHeader decodes a base64 DER X.509 certificate carried in a
// signature-certificate header (spec §4.8 step 3).
func parseCertHeader(header string) (*x509.Certificate, error) {
	der, err := base64.StdEncoding.DecodeString(header)
	if err != nil {
		return nil, qcerr.Wrap(qcerr.KindBadCertificate, err, "signature certificate header is not valid base64")
	}
	cert, err := x509.ParseCertificate(der)
	if err != nil {
		return nil, qcerr.Wrap(qcerr.KindBadCertificate, err, "signature certificate header does not contain a valid certificate")
	}
	return cert, nil
}
