// Command qcertd is a thin illustrative wiring of C4/C5/C6/C8 behind the six
// endpoints spec.md §6 names. It is not a production server: persistence is
// in-memory, TLS termination and routing beyond the six endpoints are the
// host's job, and CA key material never leaves the process.
package main

import (
	"encoding/hex"
	"encoding/json"
	"net/http"
	"os"
	"strconv"
	"strings"
	"time"

	"github.com/go-kit/kit/log"
	"github.com/go-kit/kit/log/level"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promhttp"
	"github.com/spf13/pflag"
	"golang.org/x/crypto/ocsp"

	"github.com/psd2/qcert/internal/ca"
	"github.com/psd2/qcert/internal/clock"
	"github.com/psd2/qcert/internal/config"
	"github.com/psd2/qcert/internal/creds"
	"github.com/psd2/qcert/internal/crl"
	"github.com/psd2/qcert/internal/logging"
	"github.com/psd2/qcert/internal/metrics"
	"github.com/psd2/qcert/internal/pipeline"
	"github.com/psd2/qcert/internal/qcerr"
	"github.com/psd2/qcert/internal/store"
	"github.com/psd2/qcert/pkg/qcertapi"
)

func main() {
	logger := logging.NewDefault()

	pflag.Parse()
	cfg, err := config.Load(pflag.CommandLine)
	if err != nil {
		level.Error(logger).Log("msg", "failed to load configuration", "err", err)
		os.Exit(1)
	}

	reg := prometheus.NewRegistry()
	m := metrics.New(reg)

	repo := store.NewMemory()
	clk := clock.System{}
	mgr := ca.NewManager(clk, cfg.KeySize, logger)
	bootstrapper := ca.NewBootstrapper(mgr, repo)

	root, err := bootstrapper.EnsureRootCA(cfg.IssuerDomain)
	if err != nil {
		level.Error(logger).Log("msg", "failed to bootstrap root CA", "err", err)
		os.Exit(1)
	}
	issuerKeyID, err := hex.DecodeString(root.Details.KeyID)
	if err != nil {
		level.Error(logger).Log("msg", "failed to decode root CA key id", "err", err)
		os.Exit(1)
	}
	issuer := &ca.Issuer{Cert: root.Cert, Key: root.Key, KeyID: issuerKeyID}

	signingCred := &creds.SigningCredential{
		KeyID:     root.Details.KeyID,
		Signer:    root.Key,
		Algorithm: "rsa-sha256",
		Cert:      root.Cert,
	}
	credStore := creds.NewStaticStore(signingCred, nil)

	crlGen := crl.NewGenerator(repo, clk, cfg.CRLNextUpdateInterval, logger)

	h := &handlers{
		cfg:     cfg,
		mgr:     mgr,
		issuer:  issuer,
		repo:    repo,
		crlGen:  crlGen,
		logger:  log.With(logger, "component", "qcertd"),
		metrics: m,
	}

	mux := http.NewServeMux()
	mux.HandleFunc("/.certificates/ca.cer", h.handleCACert)
	mux.HandleFunc("/.certificates/revoked.crl", h.handleCRL)
	mux.HandleFunc("/.certificates/revoked", h.handleRevocationList)
	mux.HandleFunc("/.certificates", h.handleCollection)
	mux.HandleFunc("/.certificates/", h.handleItem)
	mux.Handle("/metrics", promhttp.HandlerFor(reg, promhttp.HandlerOpts{}))

	pipelineCfg := pipeline.Config{
		Rules:             []pipeline.PathRule{{Pattern: "/payments/*", RequiredHeaders: []string{"(request-target)", "(created)", "digest"}}},
		RequestValidation: cfg.RequestValidation,
		ResponseSigning:   cfg.ResponseSigning,

		ForwardedPathHeaderName:                cfg.ForwardedPathHeaderName,
		RequestSignatureCertificateHeaderName:  cfg.RequestSignatureCertificateHeaderName,
		ResponseSignatureCertificateHeaderName: cfg.ResponseSignatureCertificateHeaderName,
		RequestCreatedHeaderName:               cfg.RequestCreatedHeaderName,
		ResponseCreatedHeaderName:              cfg.ResponseCreatedHeaderName,
		ResponseIDHeaderName:                   cfg.ResponseIDHeaderName,
		MaxBodyBytes:                           cfg.MaxBodyBytes,
	}
	p := pipeline.New(pipelineCfg, credStore, credStore, clk, logger, m)

	level.Info(logger).Log("msg", "qcertd listening", "addr", ":8443", "issuer_domain", cfg.IssuerDomain)
	if err := http.ListenAndServe(":8443", p.Wrap(mux)); err != nil {
		level.Error(logger).Log("msg", "server exited", "err", err)
		os.Exit(1)
	}
}

type handlers struct {
	cfg     *config.Config
	mgr     *ca.Manager
	issuer  *ca.Issuer
	repo    store.Repository
	crlGen  *crl.Generator
	logger  log.Logger
	metrics *metrics.Metrics
}

func (h *handlers) handleCACert(w http.ResponseWriter, r *http.Request) {
	w.Header().Set("Content-Type", "application/pkix-cert")
	_, _ = w.Write(h.issuer.Cert.Raw)
}

func (h *handlers) handleCRL(w http.ResponseWriter, r *http.Request) {
	der, err := h.crlGen.Generate(h.issuer.Cert, h.issuer.Key)
	if err != nil {
		h.writeProblem(w, err)
		return
	}
	h.metrics.CRLGenerations.Inc()
	w.Header().Set("Content-Type", "application/pkix-crl")
	_, _ = w.Write(der)
}

// handleRevocationList serves the JSON view of C5's revocation_list(not_before?)
// operation; /.certificates/revoked.crl serves the same data DER-encoded and
// signed, for callers that just want the raw {serial, revocationDate, reason}
// rows.
func (h *handlers) handleRevocationList(w http.ResponseWriter, r *http.Request) {
	var notBefore *time.Time
	if raw := r.URL.Query().Get("notBefore"); raw != "" {
		t, err := time.Parse(time.RFC3339, raw)
		if err != nil {
			h.writeProblem(w, qcerr.Wrap(qcerr.KindInvalidRequest, err, "notBefore must be RFC3339"))
			return
		}
		notBefore = &t
	}
	entries, err := h.repo.RevocationList(notBefore)
	if err != nil {
		h.writeProblem(w, err)
		return
	}
	views := make([]qcertapi.RevokedEntryView, 0, len(entries))
	for _, e := range entries {
		views = append(views, qcertapi.RevokedEntryView{
			SerialNumber:   hex.EncodeToString(e.SerialNumber),
			RevocationDate: e.RevocationDate,
			Reason:         e.Reason,
		})
	}
	w.Header().Set("Content-Type", "application/json")
	_ = json.NewEncoder(w).Encode(views)
}

func (h *handlers) handleCollection(w http.ResponseWriter, r *http.Request) {
	switch r.Method {
	case http.MethodPost:
		h.handleCreate(w, r)
	case http.MethodGet:
		h.handleList(w, r)
	default:
		w.WriteHeader(http.StatusMethodNotAllowed)
	}
}

func (h *handlers) handleCreate(w http.ResponseWriter, r *http.Request) {
	var req ca.PSD2Request
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		h.writeProblem(w, qcerr.Wrap(qcerr.KindInvalidRequest, err, "malformed request body"))
		return
	}
	issued, _, err := h.mgr.CreateQualifiedCertificate(req, h.cfg.IssuerDomain, h.issuer)
	if err != nil {
		h.writeProblem(w, err)
		return
	}
	if _, err := h.repo.Add(issued.Details); err != nil {
		h.writeProblem(w, err)
		return
	}
	h.metrics.CertificatesIssued.WithLabelValues(strconv.Itoa(int(req.QCType))).Inc()

	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(http.StatusCreated)
	_ = json.NewEncoder(w).Encode(toCertificateView(issued.Details))
}

func (h *handlers) handleList(w http.ResponseWriter, r *http.Request) {
	var filter store.ListFilter
	q := r.URL.Query()
	if notBefore := q.Get("notBefore"); notBefore != "" {
		t, err := time.Parse(time.RFC3339, notBefore)
		if err != nil {
			h.writeProblem(w, qcerr.Wrap(qcerr.KindInvalidRequest, err, "notBefore must be RFC3339"))
			return
		}
		filter.NotBefore = &t
	}
	if revoked := q.Get("revoked"); revoked != "" {
		b, err := strconv.ParseBool(revoked)
		if err != nil {
			h.writeProblem(w, qcerr.Wrap(qcerr.KindInvalidRequest, err, "revoked must be a boolean"))
			return
		}
		filter.Revoked = &b
	}
	filter.AuthorityKeyID = q.Get("authorityKeyId")

	rows, err := h.repo.List(filter)
	if err != nil {
		h.writeProblem(w, err)
		return
	}
	views := make([]qcertapi.CertificateView, 0, len(rows))
	for _, row := range rows {
		views = append(views, toCertificateView(row))
	}
	w.Header().Set("Content-Type", "application/json")
	_ = json.NewEncoder(w).Encode(views)
}

// handleItem serves GET /.certificates/{keyId}.{ext} and
// PUT /.certificates/{keyId}/revoke.
func (h *handlers) handleItem(w http.ResponseWriter, r *http.Request) {
	rest := strings.TrimPrefix(r.URL.Path, "/.certificates/")
	if strings.HasSuffix(rest, "/revoke") {
		h.handleRevoke(w, r, strings.TrimSuffix(rest, "/revoke"))
		return
	}
	h.handleExport(w, r, rest)
}

// revocationReasonCodes maps the optional PUT .../revoke request-body
// "reason" string to its RFC 5280 CRLReason code, mirroring the teacher's
// util.go RevocationReasonCodes map-driven style.
var revocationReasonCodes = map[string]int{
	"unspecified":          ocsp.Unspecified,
	"keycompromise":        ocsp.KeyCompromise,
	"cacompromise":         ocsp.CACompromise,
	"affiliationchanged":   ocsp.AffiliationChanged,
	"superseded":           ocsp.Superseded,
	"cessationofoperation": ocsp.CessationOfOperation,
	"certificatehold":      ocsp.CertificateHold,
	"removefromcrl":        ocsp.RemoveFromCRL,
	"privilegewithdrawn":   ocsp.PrivilegeWithdrawn,
	"aacompromise":         ocsp.AACompromise,
}

func (h *handlers) handleRevoke(w http.ResponseWriter, r *http.Request, keyID string) {
	if r.Method != http.MethodPut {
		w.WriteHeader(http.StatusMethodNotAllowed)
		return
	}
	reason := ocsp.Unspecified
	if r.ContentLength != 0 {
		var body struct {
			Reason string `json:"reason"`
		}
		if err := json.NewDecoder(r.Body).Decode(&body); err == nil {
			if code, ok := revocationReasonCodes[strings.ToLower(body.Reason)]; ok {
				reason = code
			}
		}
	}
	if err := h.repo.Revoke(keyID, reason); err != nil {
		h.writeProblem(w, err)
		return
	}
	h.metrics.CertificatesRevoked.Inc()
	w.WriteHeader(http.StatusNoContent)
}

func (h *handlers) handleExport(w http.ResponseWriter, r *http.Request, keyIDAndExt string) {
	idx := strings.LastIndex(keyIDAndExt, ".")
	if idx < 0 {
		h.writeProblem(w, qcerr.New(qcerr.KindInvalidRequest, "path must be {keyId}.{ext}"))
		return
	}
	keyID, ext := keyIDAndExt[:idx], keyIDAndExt[idx+1:]

	row, err := h.repo.GetByID(keyID)
	if err != nil {
		h.writeProblem(w, err)
		return
	}
	if row == nil {
		h.writeProblem(w, qcerr.New(qcerr.KindNotFound, "unknown or revoked key id: "+keyID))
		return
	}
	if row.IsCA && (ext == "key" || ext == "pfx") {
		h.writeProblem(w, qcerr.New(qcerr.KindInvalidRequest, "private key export is not available for CA certificates"))
		return
	}

	var format ca.Format
	var contentType string
	switch ext {
	case "cer":
		format, contentType = ca.FormatDER, "application/pkix-cert"
	case "pem":
		format, contentType = ca.FormatPEM, "application/x-pem-file"
	case "pfx":
		format, contentType = ca.FormatPKCS12, "application/x-pkcs12"
	case "key":
		w.Header().Set("Content-Type", "application/pkcs8")
		_, _ = w.Write(row.PrivateKeyPEM)
		return
	default:
		h.writeProblem(w, qcerr.New(qcerr.KindInvalidRequest, "unsupported export extension: "+ext))
		return
	}

	out, err := ca.Export(*row, format, r.URL.Query().Get("password"))
	if err != nil {
		h.writeProblem(w, err)
		return
	}
	w.Header().Set("Content-Type", contentType)
	_, _ = w.Write(out)
}

func (h *handlers) writeProblem(w http.ResponseWriter, err error) {
	kind := qcerr.KindUnknown
	if qe, ok := err.(*qcerr.Error); ok {
		kind = qe.Kind
	}
	level.Debug(h.logger).Log("msg", "request failed", "kind", kind.String(), "err", err)
	problem := qcertapi.NewProblemDetails(kind, err.Error())
	w.Header().Set("Content-Type", "application/problem+json")
	w.WriteHeader(problem.Status)
	_ = json.NewEncoder(w).Encode(problem)
}

func toCertificateView(d store.CertificateDetails) qcertapi.CertificateView {
	view := qcertapi.CertificateView{
		KeyID:          d.KeyID,
		AuthorityKeyID: d.AuthorityKeyID,
		Subject:        d.Subject,
		Algorithm:      d.Algorithm,
		IsCA:           d.IsCA,
		Revoked:        d.Revoked,
		CreatedDate:    d.CreatedDate,
		RevocationDate: d.RevocationDate,
	}
	if d.Revoked {
		reason := d.RevocationReason
		view.RevocationReason = &reason
	}
	return view
}
