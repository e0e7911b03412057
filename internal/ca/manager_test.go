package ca

import (
	"crypto/x509"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"gopkg.in/yaml.v2"

	"github.com/psd2/qcert/internal/clock"
	"github.com/psd2/qcert/internal/extensions"
)

// pdsFixtureYAML is a PDS-location fixture in the same YAML shape an
// operator would hand-author for a QcPDS statement (language + URL pairs).
const pdsFixtureYAML = `
- language: en
  url: https://example.com/pds/en.pdf
- language: el
  url: https://example.com/pds/el.pdf
`

func loadPDSFixture(t *testing.T) []extensions.PDSLocation {
	t.Helper()
	var locations []extensions.PDSLocation
	require.NoError(t, yaml.Unmarshal([]byte(pdsFixtureYAML), &locations))
	return locations
}

func TestCreateRootCA(t *testing.T) {
	mgr := NewManager(clock.NewFixed(time.Date(2026, 1, 1, 0, 0, 0, 0, time.UTC)), 2048, nil)

	issued, err := mgr.CreateRootCA("ca.example.com")
	require.NoError(t, err)

	assert.True(t, issued.Cert.IsCA)
	assert.True(t, issued.Cert.BasicConstraintsValid)
	assert.Equal(t, x509.KeyUsageDigitalSignature|x509.KeyUsageCertSign|x509.KeyUsageCRLSign, issued.Cert.KeyUsage)
	assert.True(t, issued.Cert.NotAfter.Sub(issued.Cert.NotBefore) >= 3650*24*time.Hour)

	// Re-import from the stored DER bytes (S1's "export PEM; re-import").
	reimported, err := x509.ParseCertificate(issued.Details.EncodedCert)
	require.NoError(t, err)
	assert.Equal(t, issued.Cert.Raw, reimported.Raw)
}

func TestCreateRootCASKIEqualsAKI(t *testing.T) {
	mgr := NewManager(clock.NewFixed(time.Date(2026, 1, 1, 0, 0, 0, 0, time.UTC)), 2048, nil)
	issued, err := mgr.CreateRootCA("ca.example.com")
	require.NoError(t, err)
	assert.Equal(t, issued.Details.KeyID, issued.Details.AuthorityKeyID, "self-signed root: AKI must equal SKI (invariant 1)")
}

func TestCreateQualifiedCertificatePSD2Roles(t *testing.T) {
	mgr := NewManager(clock.NewFixed(time.Date(2026, 1, 1, 0, 0, 0, 0, time.UTC)), 2048, nil)

	req := PSD2Request{
		Country:             "GR",
		Organization:        "ACME PSP",
		CommonName:          "acme.example.com",
		ValidityDays:        825,
		QCType:              extensions.QCTypeWeb,
		AuthorizationNumber: "123456",
		AuthorityName:       "Bank of Greece",
		Roles:               RoleFlags{AISP: true, PISP: true},
		NCA: &NCAIdentifier{
			Prefix:              "PSD",
			Country:             "GR",
			NCA:                 "BOG",
			AuthorizationNumber: "123456",
		},
	}

	issued, bootstrapped, err := mgr.CreateQualifiedCertificate(req, "ca.example.com", nil)
	require.NoError(t, err)
	require.NotNil(t, bootstrapped, "issuer nil should bootstrap a root CA")

	assert.False(t, issued.Cert.IsCA)
	assert.Equal(t, bootstrapped.Details.KeyID, issued.Details.AuthorityKeyID, "invariant 1: non-root AKI equals issuer SKI")

	found := false
	for _, ext := range issued.Cert.Extensions {
		if ext.Id.String() == "1.3.6.1.5.5.7.1.3" {
			found = true
			parsed, err := extensions.ParsePSD2Statement(ext.Value)
			require.NoError(t, err)
			require.NotNil(t, parsed)
			assert.ElementsMatch(t, []string{"PSP_AI", "PSP_PI"}, parsed.Roles)
			assert.Equal(t, "Bank of Greece", parsed.NCAName)
			assert.Equal(t, "PSD-GR-BOG-123456", parsed.NCAID)
		}
	}
	assert.True(t, found, "QCStatements extension (1.3.6.1.5.5.7.1.3 carrying the 0.4.0.19495.2 PSD2 statement) must be present")
}

func TestCreateQualifiedCertificateWithExistingIssuer(t *testing.T) {
	mgr := NewManager(clock.NewFixed(time.Date(2026, 1, 1, 0, 0, 0, 0, time.UTC)), 2048, nil)
	root, err := mgr.CreateRootCA("ca.example.com")
	require.NoError(t, err)

	issuer := &Issuer{Cert: root.Cert, Key: root.Key, KeyID: mustDecodeHex(root.Details.KeyID)}
	req := PSD2Request{
		Country:             "GR",
		CommonName:          "acme2.example.com",
		ValidityDays:        365,
		AuthorizationNumber: "654321",
		Roles:               RoleFlags{ASPSP: true},
	}
	issued, bootstrapped, err := mgr.CreateQualifiedCertificate(req, "ca.example.com", issuer)
	require.NoError(t, err)
	assert.Nil(t, bootstrapped, "an explicit issuer must not trigger bootstrap")
	assert.Equal(t, root.Details.KeyID, issued.Details.AuthorityKeyID)
}

func TestCreateQualifiedCertificateEmbedsPDSFromYAMLFixture(t *testing.T) {
	mgr := NewManager(clock.NewFixed(time.Date(2026, 1, 1, 0, 0, 0, 0, time.UTC)), 2048, nil)

	req := PSD2Request{
		Country:             "GR",
		CommonName:          "acme3.example.com",
		ValidityDays:        365,
		AuthorizationNumber: "999",
		AuthorityName:       "Bank of Greece",
		Roles:               RoleFlags{AISP: true},
		PDS:                 loadPDSFixture(t),
	}

	issued, _, err := mgr.CreateQualifiedCertificate(req, "ca.example.com", nil)
	require.NoError(t, err)

	found := false
	for _, ext := range issued.Cert.Extensions {
		if ext.Id.String() != "1.3.6.1.5.5.7.1.3" {
			continue
		}
		found = true
		assert.Contains(t, string(ext.Value), "https://example.com/pds/en.pdf")
		assert.Contains(t, string(ext.Value), "https://example.com/pds/el.pdf")
	}
	assert.True(t, found, "QCStatements extension must be present")
}

func TestCreateQualifiedCertificateHonorsPSSAlgorithm(t *testing.T) {
	mgr := NewManager(clock.NewFixed(time.Date(2026, 1, 1, 0, 0, 0, 0, time.UTC)), 2048, nil)

	req := PSD2Request{
		Country:             "GR",
		CommonName:          "acme4.example.com",
		ValidityDays:        365,
		AuthorizationNumber: "111",
		Algorithm:           "PS256",
		Roles:               RoleFlags{AISP: true},
	}

	issued, _, err := mgr.CreateQualifiedCertificate(req, "ca.example.com", nil)
	require.NoError(t, err)
	assert.Equal(t, x509.SHA256WithRSAPSS, issued.Cert.SignatureAlgorithm)
	assert.Equal(t, "PS256", issued.Details.Algorithm)
}

func TestValidateRejectsUnknownAlgorithm(t *testing.T) {
	req := PSD2Request{
		Country: "GR", CommonName: "x", ValidityDays: 1, AuthorizationNumber: "1",
		Roles: RoleFlags{AISP: true}, Algorithm: "ES256",
	}
	require.Error(t, req.Validate())
}

func TestValidateRejectsMissingRole(t *testing.T) {
	req := PSD2Request{Country: "GR", CommonName: "x", ValidityDays: 1, AuthorizationNumber: "1"}
	err := req.Validate()
	require.Error(t, err)
}
