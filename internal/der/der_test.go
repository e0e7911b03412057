package der

import (
	"math/big"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestEncodeDecodeIntegerRoundTrip(t *testing.T) {
	cases := []int64{0, 1, -1, 127, 128, -128, -129, 255, 256, 65535, -65536}
	for _, c := range cases {
		enc := EncodeInteger(big.NewInt(c))
		p := NewParser(enc)
		got, err := p.ReadInteger()
		require.NoError(t, err)
		assert.True(t, p.Done())
		assert.Equal(t, c, got.Int64(), "round-trip mismatch for %d", c)
	}
}

func TestEncodePositiveSerialNeverNegative(t *testing.T) {
	raw := make([]byte, 20)
	for i := range raw {
		raw[i] = 0xff
	}
	enc := EncodePositiveSerial(raw)
	p := NewParser(enc)
	n, err := p.ReadPositiveInteger()
	require.NoError(t, err)
	assert.True(t, n.Sign() > 0)
}

func TestEncodeDecodeOIDRoundTrip(t *testing.T) {
	oid := []int{1, 3, 6, 1, 5, 5, 7, 48, 2}
	enc := EncodeOID(oid)
	p := NewParser(enc)
	got, err := p.ReadOID()
	require.NoError(t, err)
	assert.Equal(t, oid, got)
}

func TestEncodeDecodeBitStringRoundTrip(t *testing.T) {
	bits := []byte{0xA0}
	enc := EncodeBitString(bits, 3)
	p := NewParser(enc)
	gotBits, unused, err := p.ReadBitString()
	require.NoError(t, err)
	assert.Equal(t, bits, gotBits)
	assert.Equal(t, 3, unused)
}

func TestEncodeDecodeSequenceRoundTrip(t *testing.T) {
	enc := EncodeSequence(EncodeInteger(big.NewInt(7)), EncodeBoolean(true))
	p := NewParser(enc)
	seq, err := p.ReadSequence()
	require.NoError(t, err)
	n, err := seq.ReadInteger()
	require.NoError(t, err)
	assert.Equal(t, int64(7), n.Int64())
	b, err := seq.ReadBoolean()
	require.NoError(t, err)
	assert.True(t, b)
	assert.True(t, seq.Done())
	assert.True(t, p.Done())
}

func TestEncodeDecodeTimeRoundTrip(t *testing.T) {
	tm := time.Date(2026, 7, 30, 12, 0, 0, 0, time.UTC)
	enc := EncodeTime(tm)
	p := NewParser(enc)
	got, err := p.ReadTime()
	require.NoError(t, err)
	assert.True(t, tm.Equal(got))
}

func TestReadRejectsIndefiniteLength(t *testing.T) {
	// SEQUENCE with indefinite-length form (0x80), not valid DER.
	bad := []byte{sequenceTag, 0x80}
	p := NewParser(bad)
	_, err := p.ReadSequence()
	require.Error(t, err)
	derErr, ok := err.(*Error)
	require.True(t, ok)
	assert.Equal(t, NonCanonical, derErr.Kind)
}

func TestReadRejectsNonMinimalLength(t *testing.T) {
	// A length encoded as 0x81 0x05 (one byte, value 5) is non-minimal;
	// canonical DER requires the short form 0x05 here.
	bad := []byte{TagOctetString, 0x81, 0x05, 1, 2, 3, 4, 5}
	p := NewParser(bad)
	_, err := p.ReadOctetString()
	require.Error(t, err)
	derErr, ok := err.(*Error)
	require.True(t, ok)
	assert.Equal(t, NonCanonical, derErr.Kind)
}

func TestDoneReportsTrailingBytes(t *testing.T) {
	enc := EncodeBoolean(true)
	enc = append(enc, 0xAA)
	p := NewParser(enc)
	_, err := p.ReadBoolean()
	require.NoError(t, err)
	assert.False(t, p.Done())
}

func TestDoneReportsExactConsumption(t *testing.T) {
	enc := EncodeInteger(big.NewInt(42))
	p := NewParser(enc)
	_, err := p.ReadInteger()
	require.NoError(t, err)
	assert.True(t, p.Done())
	assert.Equal(t, 0, p.Remaining())
}
