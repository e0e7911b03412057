package httpsig

import (
	"crypto/rand"
	"crypto/rsa"
	"net/http"
	"strings"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/psd2/qcert/internal/creds"
)

func testKey(t *testing.T) *rsa.PrivateKey {
	t.Helper()
	key, err := rsa.GenerateKey(rand.Reader, 2048)
	require.NoError(t, err)
	return key
}

func TestDigestComputeValidateRoundTrip(t *testing.T) {
	body := []byte(`{"amount":"100.00"}`)
	d, err := ComputeDigest(DigestSHA256, body)
	require.NoError(t, err)
	assert.True(t, d.Validate(body))

	mutated := append([]byte(nil), body...)
	mutated[0] ^= 0x01
	assert.False(t, d.Validate(mutated), "a single-bit body change must invalidate the digest")
}

func TestDigestHeaderParseRoundTrip(t *testing.T) {
	body := []byte("payload")
	d, err := ComputeDigest(DigestSHA512, body)
	require.NoError(t, err)

	header := d.Header()
	assert.True(t, strings.HasPrefix(header, "SHA-512="))

	parsed, err := ParseDigest(header)
	require.NoError(t, err)
	assert.Equal(t, d.Algorithm, parsed.Algorithm)
	assert.Equal(t, d.Value, parsed.Value)
	assert.True(t, parsed.Validate(body))
}

func TestParseDigestRejectsWrongLength(t *testing.T) {
	_, err := ParseDigest("SHA-256=" + "AAAA")
	require.Error(t, err)
}

func TestSignatureHeaderParseRoundTrip(t *testing.T) {
	original := Signature{
		KeyID:     "acme-key-1",
		Algorithm: AlgRSASHA256,
		Created:   1700000000,
		Expires:   1700000300,
		Headers:   []string{pseudoRequestTarget, pseudoCreated, "digest", "x-response-id"},
		Value:     []byte{0x01, 0x02, 0x03, 0x04},
	}

	header := original.Header()
	parsed, err := ParseSignature(header)
	require.NoError(t, err)

	assert.Equal(t, original.KeyID, parsed.KeyID)
	assert.Equal(t, original.Algorithm, parsed.Algorithm)
	assert.Equal(t, original.Created, parsed.Created)
	assert.Equal(t, original.Expires, parsed.Expires)
	assert.Equal(t, original.Headers, parsed.Headers)
	assert.Equal(t, original.Value, parsed.Value)
}

func TestParseSignatureDefaultsHeadersToCreated(t *testing.T) {
	header := `keyId="k1",algorithm="rsa-sha256",signature="AQID"`
	sig, err := ParseSignature(header)
	require.NoError(t, err)
	assert.Equal(t, DefaultHeaders, sig.Headers)
}

func TestParseSignatureRequiresKeyIDAlgorithmAndSignature(t *testing.T) {
	_, err := ParseSignature(`algorithm="rsa-sha256",signature="AQID"`)
	require.Error(t, err)
	_, err = ParseSignature(`keyId="k1",signature="AQID"`)
	require.Error(t, err)
	_, err = ParseSignature(`keyId="k1",algorithm="rsa-sha256"`)
	require.Error(t, err)
}

// TestSigningStringExactCanonicalForm follows the shape of the example
// spec.md gives (POST /payments, headers "(request-target) (created) digest
// x-response-id") with its own values, including a query string.
func TestSigningStringExactCanonicalForm(t *testing.T) {
	req, err := http.NewRequest(http.MethodPost, "https://api.example.com/payments?x=1", nil)
	require.NoError(t, err)
	req.Header.Set("Digest", "SHA-256=2jmj7l5rSw0yVb/vlWAYkK/YBwk=")
	req.Header.Set("X-Response-Id", "resp-42")

	headers := []string{pseudoRequestTarget, pseudoCreated, "digest", "x-response-id"}
	got, err := SigningString(headers, req, 1700000000, 0)
	require.NoError(t, err)

	want := strings.Join([]string{
		"(request-target): post /payments?x=1",
		"(created): 1700000000",
		"digest: SHA-256=2jmj7l5rSw0yVb/vlWAYkK/YBwk=",
		"x-response-id: resp-42",
	}, "\n")
	assert.Equal(t, want, got)
	assert.False(t, strings.HasSuffix(got, "\n"), "canonical string must carry no trailing newline")
}

func TestSigningStringJoinsMultiValueHeaders(t *testing.T) {
	req, err := http.NewRequest(http.MethodGet, "https://api.example.com/x", nil)
	require.NoError(t, err)
	req.Header.Add("X-Trace", "a")
	req.Header.Add("X-Trace", "b")

	got, err := SigningString([]string{"x-trace"}, req, 0, 0)
	require.NoError(t, err)
	assert.Equal(t, "x-trace: a, b", got)
}

func TestSigningStringErrorsOnMissingHeader(t *testing.T) {
	req, err := http.NewRequest(http.MethodGet, "https://api.example.com/x", nil)
	require.NoError(t, err)
	_, err = SigningString([]string{"digest"}, req, 0, 0)
	require.Error(t, err)
}

func TestSignAndVerifyRoundTrip(t *testing.T) {
	key := testKey(t)
	cred := &creds.SigningCredential{KeyID: "signer-1", Signer: key, Algorithm: string(AlgRSASHA256)}

	req, err := http.NewRequest(http.MethodPost, "https://api.example.com/payments", nil)
	require.NoError(t, err)
	req.Header.Set("Digest", "SHA-256=2jmj7l5rSw0yVb/vlWAYkK/YBwk=")

	headers := []string{pseudoRequestTarget, pseudoCreated, "digest"}
	sig, err := Sign(cred, headers, req, 1700000000, 0)
	require.NoError(t, err)

	require.NoError(t, Verify(sig, req, &key.PublicKey))
}

func TestVerifyFailsOnTamperedSignatureBytes(t *testing.T) {
	key := testKey(t)
	cred := &creds.SigningCredential{KeyID: "signer-1", Signer: key, Algorithm: string(AlgRSASHA256)}

	req, err := http.NewRequest(http.MethodPost, "https://api.example.com/payments", nil)
	require.NoError(t, err)
	req.Header.Set("Digest", "SHA-256=2jmj7l5rSw0yVb/vlWAYkK/YBwk=")

	headers := []string{pseudoRequestTarget, pseudoCreated, "digest"}
	sig, err := Sign(cred, headers, req, 1700000000, 0)
	require.NoError(t, err)

	sig.Value[0] ^= 0xFF
	require.Error(t, Verify(sig, req, &key.PublicKey))
}

func TestVerifyFailsWhenRequestTargetChangedAfterSigning(t *testing.T) {
	key := testKey(t)
	cred := &creds.SigningCredential{KeyID: "signer-1", Signer: key, Algorithm: string(AlgRSASHA256)}

	req, err := http.NewRequest(http.MethodPost, "https://api.example.com/payments", nil)
	require.NoError(t, err)
	req.Header.Set("Digest", "SHA-256=2jmj7l5rSw0yVb/vlWAYkK/YBwk=")

	headers := []string{pseudoRequestTarget, pseudoCreated, "digest"}
	sig, err := Sign(cred, headers, req, 1700000000, 0)
	require.NoError(t, err)

	req.URL.Path = "/payments/other"
	require.Error(t, Verify(sig, req, &key.PublicKey))
}

func TestSignAndVerifyRoundTripHS2019(t *testing.T) {
	key := testKey(t)
	cred := &creds.SigningCredential{KeyID: "signer-1", Signer: key, Algorithm: string(AlgHS2019)}

	req, err := http.NewRequest(http.MethodPost, "https://api.example.com/payments", nil)
	require.NoError(t, err)
	req.Header.Set("Digest", "SHA-256=2jmj7l5rSw0yVb/vlWAYkK/YBwk=")

	headers := []string{pseudoRequestTarget, pseudoCreated, "digest"}
	sig, err := Sign(cred, headers, req, 1700000000, 0)
	require.NoError(t, err)
	assert.Equal(t, AlgHS2019, sig.Algorithm)

	require.NoError(t, Verify(sig, req, &key.PublicKey))
}

func TestVerifyRejectsUnsupportedAlgorithm(t *testing.T) {
	key := testKey(t)
	cred := &creds.SigningCredential{KeyID: "signer-1", Signer: key, Algorithm: string(AlgRSASHA256)}

	req, err := http.NewRequest(http.MethodPost, "https://api.example.com/payments", nil)
	require.NoError(t, err)

	headers := []string{pseudoRequestTarget, pseudoCreated}
	sig, err := Sign(cred, headers, req, 1700000000, 0)
	require.NoError(t, err)

	sig.Algorithm = "ecdsa-sha256"
	require.Error(t, Verify(sig, req, &key.PublicKey))
}
