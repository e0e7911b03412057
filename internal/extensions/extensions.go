// Package extensions builds the typed X.509 v3 extensions this module needs,
// each serialized to DER via internal/der and wrapped as a pkix.Extension the
// certificate manager can append to x509.CreateCertificate's ExtraExtensions.
//
// Critical flags follow RFC 5280 / ETSI TS 119 495 defaults: only
// BasicConstraints, KeyUsage, and the PSD2 QcStatements set critical, per
// spec §4.2.
package extensions

import (
	"crypto/sha1" //nolint:gosec // SKI/AKI are defined over SHA-1 by RFC 5280, not used for security.
	"crypto/x509/pkix"
	"encoding/asn1"
	"math/big"

	"github.com/psd2/qcert/internal/der"
	"github.com/psd2/qcert/internal/oid"
)

func asn1OID(o []int) asn1.ObjectIdentifier { return asn1.ObjectIdentifier(o) }

// KeyID computes the SHA-1 SKI/AKI value over the raw subjectPublicKey BIT
// STRING bytes, excluding the leading unused-bits byte, per spec §4.2 and
// testable invariant 1.
func KeyID(subjectPublicKeyInfoDER []byte) ([]byte, error) {
	p := der.NewParser(subjectPublicKeyInfoDER)
	seq, err := p.ReadSequence()
	if err != nil {
		return nil, err
	}
	// Skip AlgorithmIdentifier SEQUENCE.
	if _, _, err := seq.ReadRaw(); err != nil {
		return nil, err
	}
	bits, _, err := seq.ReadBitString()
	if err != nil {
		return nil, err
	}
	sum := sha1.Sum(bits) //nolint:gosec
	return sum[:], nil
}

// BasicConstraints builds the BasicConstraints extension (2.5.29.19).
func BasicConstraints(isCA bool, pathLen *int) (pkix.Extension, error) {
	var content [][]byte
	if isCA {
		content = append(content, der.EncodeBoolean(true))
	}
	if pathLen != nil {
		content = append(content, der.EncodeInteger(big.NewInt(int64(*pathLen))))
	}
	return pkix.Extension{
		Id:       asn1OID(oid.BasicConstraints),
		Critical: true,
		Value:    der.EncodeSequence(content...),
	}, nil
}

// KeyUsage flag bits, ordered per RFC 5280 §4.2.1.3's BIT STRING layout
// (bit 0 = digitalSignature … bit 8 = decipherOnly).
type KeyUsage uint16

const (
	KeyUsageDigitalSignature KeyUsage = 1 << iota
	KeyUsageContentCommitment
	KeyUsageKeyEncipherment
	KeyUsageDataEncipherment
	KeyUsageKeyAgreement
	KeyUsageKeyCertSign
	KeyUsageCRLSign
	KeyUsageEncipherOnly
	KeyUsageDecipherOnly
)

// KeyUsageExtension builds the KeyUsage extension (2.5.29.15) as a BIT
// STRING with the minimal number of trailing zero bits trimmed.
func KeyUsageExtension(usage KeyUsage) (pkix.Extension, error) {
	highest := -1
	for i := 0; i < 9; i++ {
		if usage&(1<<uint(i)) != 0 {
			highest = i
		}
	}
	nBytes := highest/8 + 1
	if nBytes < 1 {
		nBytes = 1
	}
	bytesOut := make([]byte, nBytes)
	for i := 0; i < 9; i++ {
		if usage&(1<<uint(i)) != 0 {
			bytesOut[i/8] |= 1 << uint(7-i%8)
		}
	}
	// Trim trailing all-zero bytes and compute the unused-bit count for the
	// final byte, per the BIT STRING minimal-encoding rule.
	for len(bytesOut) > 1 && bytesOut[len(bytesOut)-1] == 0 {
		bytesOut = bytesOut[:len(bytesOut)-1]
	}
	unused := 0
	last := bytesOut[len(bytesOut)-1]
	for unused < 7 && last&(1<<uint(unused)) == 0 {
		unused++
	}
	return pkix.Extension{
		Id:       asn1OID(oid.KeyUsage),
		Critical: true,
		Value:    der.EncodeBitString(bytesOut, unused),
	}, nil
}

// ExtendedKeyUsage builds the ExtendedKeyUsage extension (2.5.29.37) as a
// SEQUENCE OF OID.
func ExtendedKeyUsage(oids [][]int) (pkix.Extension, error) {
	children := make([][]byte, 0, len(oids))
	for _, o := range oids {
		children = append(children, der.EncodeOID(o))
	}
	return pkix.Extension{
		Id:       asn1OID(oid.ExtKeyUsage),
		Critical: false,
		Value:    der.EncodeSequence(children...),
	}, nil
}

// SubjectKeyIdentifier builds the SubjectKeyIdentifier extension (2.5.29.14).
func SubjectKeyIdentifier(ski []byte) (pkix.Extension, error) {
	return pkix.Extension{
		Id:       asn1OID(oid.SubjectKeyIdentifier),
		Critical: false,
		Value:    der.EncodeOctetString(ski),
	}, nil
}

// AuthorityKeyIdentifier builds the AuthorityKeyIdentifier extension
// (2.5.29.35) carrying only the keyIdentifier [0] IMPLICIT field.
func AuthorityKeyIdentifier(aki []byte) (pkix.Extension, error) {
	implicit := der.EncodeImplicitTag(0, der.EncodeOctetString(aki))
	return pkix.Extension{
		Id:       asn1OID(oid.AuthorityKeyIdentifier),
		Critical: false,
		Value:    der.EncodeSequence(implicit),
	}, nil
}

// CRLDistributionPoints builds the CRLDistributionPoints extension
// (2.5.29.31) as a SEQUENCE OF DistributionPoint{fullName: GeneralName URI}.
func CRLDistributionPoints(urls []string) (pkix.Extension, error) {
	var points [][]byte
	for _, u := range urls {
		uri := der.EncodeImplicitTag(6, der.EncodeIA5String(u)) // GeneralName [6] uniformResourceIdentifier
		fullName := der.EncodeExplicitTag(0, der.EncodeImplicitConstructedTag(0, der.EncodeSequence(uri)))
		points = append(points, der.EncodeSequence(fullName))
	}
	return pkix.Extension{
		Id:       asn1OID(oid.CRLDistributionPoints),
		Critical: false,
		Value:    der.EncodeSequence(points...),
	}, nil
}

// AccessDescription is one entry of an AuthorityInformationAccess extension.
type AccessDescription struct {
	Method   []int
	Location string // URI
}

// AuthorityInformationAccess builds the AIA extension (1.3.6.1.5.5.7.1.1) as
// a SEQUENCE OF AccessDescription{method, location: URI}.
func AuthorityInformationAccess(descriptions []AccessDescription) (pkix.Extension, error) {
	var entries [][]byte
	for _, d := range descriptions {
		uri := der.EncodeImplicitTag(6, der.EncodeIA5String(d.Location))
		entries = append(entries, der.EncodeSequence(der.EncodeOID(d.Method), uri))
	}
	return pkix.Extension{
		Id:       asn1OID(oid.AuthorityInfoAccess),
		Critical: false,
		Value:    der.EncodeSequence(entries...),
	}, nil
}

// PolicyQualifier is an optional CPS URI or user notice under a
// PolicyInformation entry; only the CPS URI form is modeled here, the form
// spec §4.2 actually needs.
type PolicyQualifier struct {
	CPSURI string
}

var oidCPS = []int{1, 3, 6, 1, 5, 5, 7, 2, 1}

// PolicyInformation is one entry of a CertificatePolicies extension.
type PolicyInformation struct {
	OID        []int
	Qualifiers []PolicyQualifier
}

// CertificatePolicies builds the CertificatePolicies extension (2.5.29.32)
// as a SEQUENCE OF PolicyInformation{oid, qualifiers[]}.
func CertificatePolicies(policies []PolicyInformation) (pkix.Extension, error) {
	var entries [][]byte
	for _, p := range policies {
		fields := [][]byte{der.EncodeOID(p.OID)}
		if len(p.Qualifiers) > 0 {
			var quals [][]byte
			for _, q := range p.Qualifiers {
				if q.CPSURI != "" {
					quals = append(quals, der.EncodeSequence(der.EncodeOID(oidCPS), der.EncodeIA5String(q.CPSURI)))
				}
			}
			if len(quals) > 0 {
				fields = append(fields, der.EncodeSequence(quals...))
			}
		}
		entries = append(entries, der.EncodeSequence(fields...))
	}
	return pkix.Extension{
		Id:       asn1OID(oid.CertificatePolicies),
		Critical: false,
		Value:    der.EncodeSequence(entries...),
	}, nil
}
