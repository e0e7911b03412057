// Package pipeline implements the HTTP message-signing middleware (C8): it
// validates inbound Signature/Digest headers against a PathRule set and,
// when enabled, signs outbound responses on the same matched paths.
package pipeline

import (
	"bytes"
	"crypto/rand"
	"encoding/base64"
	"encoding/hex"
	"encoding/json"
	"io"
	"net/http"
	"strconv"
	"time"

	"github.com/go-kit/kit/log"
	"github.com/go-kit/kit/log/level"

	"github.com/psd2/qcert/internal/clock"
	"github.com/psd2/qcert/internal/creds"
	"github.com/psd2/qcert/internal/httpsig"
	"github.com/psd2/qcert/internal/metrics"
	"github.com/psd2/qcert/internal/qcerr"
	"github.com/psd2/qcert/pkg/qcertapi"
)

// Pipeline wraps a handler with inbound signature validation and, when
// configured, outbound response signing.
type Pipeline struct {
	cfg        Config
	validation creds.ValidationKeyStore
	signing    creds.SigningCredentialStore
	clock      clock.Clock
	logger     log.Logger
	metrics    *metrics.Metrics
}

// New builds a Pipeline. metrics may be nil to disable instrumentation.
func New(cfg Config, validation creds.ValidationKeyStore, signing creds.SigningCredentialStore, clk clock.Clock, logger log.Logger, m *metrics.Metrics) *Pipeline {
	if logger == nil {
		logger = log.NewNopLogger()
	}
	return &Pipeline{
		cfg:        cfg.withDefaults(),
		validation: validation,
		signing:    signing,
		clock:      clk,
		logger:     log.With(logger, "component", "pipeline"),
		metrics:    m,
	}
}

// Wrap returns next decorated with the §4.8 state machine.
func (p *Pipeline) Wrap(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		p.serve(w, r, next)
	})
}

func (p *Pipeline) serve(w http.ResponseWriter, r *http.Request, next http.Handler) {
	level.Debug(p.logger).Log("msg", "handling request", "summary", requestSummary(r))
	path := r.URL.Path
	if p.cfg.ForwardedPathHeaderName != "" {
		if forwarded := r.Header.Get(p.cfg.ForwardedPathHeaderName); forwarded != "" {
			path = forwarded
		}
	}

	rule, matched := matchRule(p.cfg.Rules, path)
	hasSignatureHeader := r.Header.Get("Signature") != ""
	if !matched && !hasSignatureHeader {
		p.observe("forwarded")
		next.ServeHTTP(w, r)
		return
	}
	if !p.cfg.RequestValidation {
		p.observe("validation_disabled")
		next.ServeHTTP(w, r)
		return
	}

	// PARSE_SIG
	sig, err := httpsig.ParseSignature(r.Header.Get("Signature"))
	if err != nil {
		p.reject(w, err)
		return
	}
	if sig.Expires != 0 && sig.Expires < p.clock.Now().Unix() {
		p.reject(w, qcerr.New(qcerr.KindExpired, "signature expires parameter is in the past"))
		return
	}
	if matched {
		for _, required := range rule.RequiredHeaders {
			if !containsHeader(sig.Headers, required) {
				p.reject(w, qcerr.New(qcerr.KindMissingSignature, "signature does not cover required header: "+required))
				return
			}
		}
	}

	// RESOLVE_KEYS
	candidates, err := p.resolveKeys(r, sig)
	if err != nil {
		p.reject(w, err)
		return
	}
	if len(candidates) == 0 {
		p.reject(w, qcerr.New(qcerr.KindMissingCert, "no validation keys available"))
		return
	}

	// READ_BODY / VALIDATE_DIGEST
	var body []byte
	if r.Method == http.MethodPost || r.Method == http.MethodPut {
		limited := http.MaxBytesReader(w, r.Body, p.cfg.MaxBodyBytes)
		read, err := io.ReadAll(limited)
		if err != nil {
			p.reject(w, qcerr.Wrap(qcerr.KindBodyTooLarge, err, "request body exceeds maximum size"))
			return
		}
		body = read
		r.Body = io.NopCloser(bytes.NewReader(body))

		if containsHeader(sig.Headers, "digest") {
			digestHeader := r.Header.Get("Digest")
			if digestHeader == "" {
				p.reject(w, qcerr.New(qcerr.KindMissingDigest, "Missing digest"))
				return
			}
			digest, err := httpsig.ParseDigest(digestHeader)
			if err != nil {
				p.reject(w, err)
				return
			}
			if !digest.Validate(body) {
				p.reject(w, qcerr.New(qcerr.KindDigestMismatch, "Digest validation failed."))
				return
			}
		}
	}

	// VERIFY_SIG
	verifyStart := time.Now()
	err = p.verifyAny(sig, r, candidates)
	p.observeVerifyDuration(time.Since(verifyStart))
	if err != nil {
		p.reject(w, err)
		return
	}

	// INVOKE_NEXT (+ optional SIGN_RESPONSE)
	if matched && p.cfg.ResponseSigning {
		p.serveAndSign(w, r, next, rule)
		return
	}
	p.observe("accepted")
	next.ServeHTTP(w, r)
}

func (p *Pipeline) resolveKeys(r *http.Request, sig httpsig.Signature) ([]creds.SecurityKey, error) {
	if header := r.Header.Get(p.cfg.RequestSignatureCertificateHeaderName); header != "" {
		cert, err := parseCertHeader(header)
		if err != nil {
			return nil, err
		}
		return []creds.SecurityKey{{KeyID: sig.KeyID, PublicKey: cert.PublicKey, Cert: cert}}, nil
	}
	if p.validation == nil {
		return nil, nil
	}
	keys, err := p.validation.ValidationKeys()
	if err != nil {
		return nil, qcerr.Wrap(qcerr.KindRepositoryUnavailable, err, "failed to load validation keys")
	}
	return keys, nil
}

func (p *Pipeline) verifyAny(sig httpsig.Signature, r *http.Request, candidates []creds.SecurityKey) error {
	var lastErr error = qcerr.New(qcerr.KindSignatureInvalid, "no candidate key verified the signature")
	for _, k := range candidates {
		err := httpsig.Verify(sig, r, k.PublicKey)
		if err == nil {
			return nil
		}
		lastErr = err
	}
	level.Debug(p.logger).Log("msg", "signature verification failed", "err", lastErr, "keyId", sig.KeyID)
	return qcerr.New(qcerr.KindSignatureInvalid, "signature verification failed")
}

// serveAndSign invokes next with a buffering response recorder, then signs
// the buffered response per spec §4.8's outbound algorithm before flushing
// it to w. Per spec §9, a cancelled request must never emit a partial
// signature: the recorder is discarded unread if the handler panics.
func (p *Pipeline) serveAndSign(w http.ResponseWriter, r *http.Request, next http.Handler, rule PathRule) {
	rec := &responseRecorder{header: make(http.Header), status: http.StatusOK}
	next.ServeHTTP(rec, r)

	cred, err := p.signing.SigningCredential()
	if err != nil || cred == nil {
		p.flush(w, rec)
		p.observe("accepted")
		return
	}

	body := rec.body.Bytes()
	digest, err := httpsig.ComputeDigest(httpsig.DigestSHA256, body)
	if err != nil {
		p.flush(w, rec)
		p.observe("accepted")
		return
	}
	rec.header.Set("Digest", digest.Header())

	responseID, err := generateResponseID()
	if err != nil {
		p.flush(w, rec)
		p.observe("accepted")
		return
	}
	rec.header.Set(p.cfg.ResponseIDHeaderName, responseID)

	created := p.clock.Now().Unix()
	rec.header.Set(p.cfg.ResponseCreatedHeaderName, strconv.FormatInt(created, 10))

	headers := responseSigningHeaders(rule.RequiredHeaders, p.cfg.ResponseCreatedHeaderName, p.cfg.ResponseIDHeaderName)
	signReq := &http.Request{Method: r.Method, URL: r.URL, Header: rec.header}
	sig, err := httpsig.Sign(cred, headers, signReq, created, 0)
	if err == nil {
		rec.header.Set("Signature", sig.Header())
		if cred.Cert != nil {
			rec.header.Set(p.cfg.ResponseSignatureCertificateHeaderName, base64.StdEncoding.EncodeToString(cred.Cert.Raw))
		}
	}

	p.flush(w, rec)
	p.observe("accepted")
}

// responseSigningHeaders composes the response-side header list from the
// inbound rule's required headers (spec §4.8: "the same header list as the
// inbound rule"), mapping "(created)" to the configured response-created
// header name and appending the generated response id header.
func responseSigningHeaders(requestHeaders []string, responseCreatedHeader, responseIDHeader string) []string {
	out := make([]string, 0, len(requestHeaders)+1)
	for _, h := range requestHeaders {
		if h == "(created)" {
			out = append(out, responseCreatedHeader)
			continue
		}
		out = append(out, h)
	}
	out = append(out, responseIDHeader)
	return out
}

func (p *Pipeline) flush(w http.ResponseWriter, rec *responseRecorder) {
	for k, values := range rec.header {
		for _, v := range values {
			w.Header().Add(k, v)
		}
	}
	w.WriteHeader(rec.status)
	_, _ = w.Write(rec.body.Bytes())
}

func (p *Pipeline) reject(w http.ResponseWriter, err error) {
	kind := qcerr.KindSignatureInvalid
	if qe, ok := err.(*qcerr.Error); ok {
		kind = qe.Kind
	}
	p.observe("rejected_" + kind.String())
	level.Debug(p.logger).Log("msg", "rejecting request", "kind", kind.String(), "err", err)

	problem := qcertapi.NewProblemDetails(kind, genericDetail(kind, err))
	w.Header().Set("Content-Type", "application/problem+json")
	w.WriteHeader(problem.Status)
	_ = json.NewEncoder(w).Encode(problem)
}

// genericDetail implements spec §7's policy: cryptographic failures never
// leak which step failed to the client, only to logs.
func genericDetail(kind qcerr.Kind, err error) string {
	switch kind {
	case qcerr.KindSignatureInvalid, qcerr.KindBadCertificate, qcerr.KindExpired:
		return "Signature validation failed."
	default:
		return err.Error()
	}
}

func (p *Pipeline) observe(outcome string) {
	if p.metrics != nil {
		p.metrics.PipelineRequests.WithLabelValues(outcome).Inc()
	}
}

func (p *Pipeline) observeVerifyDuration(d time.Duration) {
	if p.metrics != nil {
		p.metrics.SignatureVerifySecs.Observe(d.Seconds())
	}
}

// requestSummary renders a one-line "METHOD url" description for debug
// logging. Unlike the method/URL logging the body is deliberately never
// included: request bodies here carry PSD2 payment payloads.
func requestSummary(r *http.Request) string {
	return r.Method + " " + r.URL.String()
}

func containsHeader(headers []string, name string) bool {
	for _, h := range headers {
		if h == name {
			return true
		}
	}
	return false
}

func generateResponseID() (string, error) {
	buf := make([]byte, 8)
	if _, err := rand.Read(buf); err != nil {
		return "", qcerr.Wrap(qcerr.KindDerEncode, err, "failed to generate response id")
	}
	return hex.EncodeToString(buf), nil
}
