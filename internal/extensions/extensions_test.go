package extensions

import (
	"crypto/rand"
	"crypto/rsa"
	"crypto/sha1" //nolint:gosec // test verifies the SHA-1 SKI computation itself.
	"crypto/x509"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/psd2/qcert/internal/der"
)

func testKey(t *testing.T) *rsa.PrivateKey {
	t.Helper()
	key, err := rsa.GenerateKey(rand.Reader, 2048)
	require.NoError(t, err)
	return key
}

func TestKeyIDMatchesSHA1OfSubjectPublicKeyBits(t *testing.T) {
	key := testKey(t)
	spkiDER, err := x509.MarshalPKIXPublicKey(&key.PublicKey)
	require.NoError(t, err)

	ski, err := KeyID(spkiDER)
	require.NoError(t, err)

	p := der.NewParser(spkiDER)
	seq, err := p.ReadSequence()
	require.NoError(t, err)
	_, _, err = seq.ReadRaw()
	require.NoError(t, err)
	bits, _, err := seq.ReadBitString()
	require.NoError(t, err)
	want := sha1.Sum(bits) //nolint:gosec

	assert.Equal(t, want[:], ski)
}

func TestBasicConstraintsCAEncodesBooleanTrue(t *testing.T) {
	ext, err := BasicConstraints(true, nil)
	require.NoError(t, err)
	assert.True(t, ext.Critical)

	p := der.NewParser(ext.Value)
	seq, err := p.ReadSequence()
	require.NoError(t, err)
	isCA, err := seq.ReadBoolean()
	require.NoError(t, err)
	assert.True(t, isCA)
	assert.True(t, seq.Done())
}

func TestBasicConstraintsNonCAEncodesEmptySequence(t *testing.T) {
	ext, err := BasicConstraints(false, nil)
	require.NoError(t, err)
	p := der.NewParser(ext.Value)
	seq, err := p.ReadSequence()
	require.NoError(t, err)
	assert.True(t, seq.Done())
}

func TestKeyUsageExtensionTrimsTrailingZeroBits(t *testing.T) {
	ext, err := KeyUsageExtension(KeyUsageDigitalSignature)
	require.NoError(t, err)
	p := der.NewParser(ext.Value)
	bits, unused, err := p.ReadBitString()
	require.NoError(t, err)
	assert.Equal(t, []byte{0x80}, bits)
	assert.Equal(t, 7, unused)
}

func TestKeyUsageExtensionCAFitsOneByte(t *testing.T) {
	ext, err := KeyUsageExtension(KeyUsageDigitalSignature | KeyUsageKeyCertSign | KeyUsageCRLSign)
	require.NoError(t, err)
	p := der.NewParser(ext.Value)
	bits, unused, err := p.ReadBitString()
	require.NoError(t, err)
	// digitalSignature=bit0, keyCertSign=bit5, cRLSign=bit6 -> byte 0x86, one trailing zero bit.
	assert.Equal(t, []byte{0x86}, bits)
	assert.Equal(t, 1, unused)
}

func TestSubjectAndAuthorityKeyIdentifierRoundTrip(t *testing.T) {
	ski := []byte{0x01, 0x02, 0x03, 0x04}
	skiExt, err := SubjectKeyIdentifier(ski)
	require.NoError(t, err)
	p := der.NewParser(skiExt.Value)
	got, err := p.ReadOctetString()
	require.NoError(t, err)
	assert.Equal(t, ski, got)

	akiExt, err := AuthorityKeyIdentifier(ski)
	require.NoError(t, err)
	p2 := der.NewParser(akiExt.Value)
	seq, err := p2.ReadSequence()
	require.NoError(t, err)
	gotAKI, err := seq.ExpectTag(0x80) // [0] IMPLICIT keyIdentifier, primitive context tag
	require.NoError(t, err)
	assert.Equal(t, ski, gotAKI)
}

func TestCRLDistributionPointsEncodesURI(t *testing.T) {
	ext, err := CRLDistributionPoints([]string{"https://ca.example.com/revoked.crl"})
	require.NoError(t, err)
	assert.False(t, ext.Critical)
	assert.NotEmpty(t, ext.Value)
}
