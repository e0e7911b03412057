package metrics

import (
	"testing"

	"github.com/prometheus/client_golang/prometheus"
	dto "github.com/prometheus/client_model/go"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestNewRegistersAllInstruments(t *testing.T) {
	reg := prometheus.NewRegistry()
	m := New(reg)

	m.CertificatesIssued.WithLabelValues("web").Inc()
	m.CertificatesRevoked.Inc()
	m.CRLGenerations.Inc()
	m.PipelineRequests.WithLabelValues("accepted").Inc()
	m.SignatureVerifySecs.Observe(0.01)

	families, err := reg.Gather()
	require.NoError(t, err)

	names := make(map[string]*dto.MetricFamily)
	for _, f := range families {
		names[f.GetName()] = f
	}

	assert.Contains(t, names, "qcert_certificates_issued_total")
	assert.Contains(t, names, "qcert_certificates_revoked_total")
	assert.Contains(t, names, "qcert_crl_generations_total")
	assert.Contains(t, names, "qcert_pipeline_requests_total")
	assert.Contains(t, names, "qcert_pipeline_signature_verify_seconds")

	assert.Equal(t, float64(1), names["qcert_certificates_revoked_total"].GetMetric()[0].GetCounter().GetValue())
}

func TestNewPanicsOnDuplicateRegistration(t *testing.T) {
	reg := prometheus.NewRegistry()
	New(reg)
	assert.Panics(t, func() { New(reg) })
}
