// Package metrics defines the prometheus instruments for certificate
// issuance/revocation and pipeline outcomes (C12). Registration is injected
// via a prometheus.Registerer, never a package-level global, per the
// explicit-constructor-injection redesign direction in spec.md §9.
package metrics

import "github.com/prometheus/client_golang/prometheus"

// Metrics bundles the instruments the signature pipeline and the host's
// certificate and CRL handlers record against.
type Metrics struct {
	CertificatesIssued  *prometheus.CounterVec
	CertificatesRevoked prometheus.Counter
	CRLGenerations      prometheus.Counter
	PipelineRequests    *prometheus.CounterVec
	SignatureVerifySecs prometheus.Histogram
}

// New creates and registers the Metrics instruments against reg.
func New(reg prometheus.Registerer) *Metrics {
	m := &Metrics{
		CertificatesIssued: prometheus.NewCounterVec(prometheus.CounterOpts{
			Name: "qcert_certificates_issued_total",
			Help: "Total number of certificates issued, by QC type.",
		}, []string{"qc_type"}),
		CertificatesRevoked: prometheus.NewCounter(prometheus.CounterOpts{
			Name: "qcert_certificates_revoked_total",
			Help: "Total number of certificates revoked.",
		}),
		CRLGenerations: prometheus.NewCounter(prometheus.CounterOpts{
			Name: "qcert_crl_generations_total",
			Help: "Total number of CRLs generated.",
		}),
		PipelineRequests: prometheus.NewCounterVec(prometheus.CounterOpts{
			Name: "qcert_pipeline_requests_total",
			Help: "Total number of requests handled by the signature pipeline, by outcome.",
		}, []string{"outcome"}),
		SignatureVerifySecs: prometheus.NewHistogram(prometheus.HistogramOpts{
			Name:    "qcert_pipeline_signature_verify_seconds",
			Help:    "Time spent verifying an inbound HTTP signature.",
			Buckets: prometheus.DefBuckets,
		}),
	}
	reg.MustRegister(m.CertificatesIssued, m.CertificatesRevoked, m.CRLGenerations, m.PipelineRequests, m.SignatureVerifySecs)
	return m
}
