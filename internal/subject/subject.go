// Package subject composes X.509 distinguished names: the ordered RDN
// sequence RFC 4519 and CA/Browser-Forum attributes describe, encoded to DER
// via internal/der, plus its RFC 2253 string form for display and logging.
package subject

import (
	"strings"

	"github.com/psd2/qcert/internal/der"
	"github.com/psd2/qcert/internal/oid"
)

// attr is one attribute=value pair staged on the Builder, in the order it
// will appear in the certificate's Name (the order of the With* calls).
type attr struct {
	label string
	oid   []int
	value []byte // already-encoded AttributeValue (UTF8String/PrintableString/IA5String)
}

// Builder composes a Name through fluent Add* calls. Call order is the
// DER RDN order; String() reports the RFC 2253 form, which lists the same
// attributes most-specific-first (i.e. reversed).
type Builder struct {
	attrs []attr
}

// New returns an empty subject Builder.
func New() *Builder { return &Builder{} }

// WithCommonName sets the CN attribute. Per spec invariant, cn must be <= 64
// characters; callers validate before calling this, the builder itself does
// not re-validate length.
func (b *Builder) WithCommonName(cn string) *Builder {
	return b.add("CN", oid.AttrCommonName, der.EncodeUTF8String(cn))
}

// WithOrganization sets the O attribute.
func (b *Builder) WithOrganization(o string) *Builder {
	return b.add("O", oid.AttrOrganization, der.EncodeUTF8String(o))
}

// WithOrganizationalUnit sets the OU attribute.
func (b *Builder) WithOrganizationalUnit(ou string) *Builder {
	if ou == "" {
		return b
	}
	return b.add("OU", oid.AttrOrganizationalUnit, der.EncodeUTF8String(ou))
}

// WithLocality sets the L attribute.
func (b *Builder) WithLocality(l string) *Builder {
	if l == "" {
		return b
	}
	return b.add("L", oid.AttrLocality, der.EncodeUTF8String(l))
}

// WithState sets the ST attribute.
func (b *Builder) WithState(st string) *Builder {
	if st == "" {
		return b
	}
	return b.add("ST", oid.AttrState, der.EncodeUTF8String(st))
}

// WithCountry sets the C attribute. country must already be an ISO-3166
// alpha-2 code; it is encoded as PrintableString per RFC 5280.
func (b *Builder) WithCountry(country string) *Builder {
	return b.add("C", oid.AttrCountry, der.EncodePrintableString(country))
}

// WithEmail sets the emailAddress attribute, IA5String per RFC 5280.
func (b *Builder) WithEmail(email string) *Builder {
	if email == "" {
		return b
	}
	return b.add("E", oid.AttrEmailAddress, der.EncodeIA5String(email))
}

// WithOrganizationIdentifier sets the CA/Browser-Forum organizationIdentifier
// attribute (2.23.140.3.1): registrationScheme(3) + country(2) + register +
// authorization-number, e.g. "PSDGR-BOG-123456".
func (b *Builder) WithOrganizationIdentifier(registrationScheme, country, register, authorizationNumber string) *Builder {
	value := strings.ToUpper(registrationScheme) + strings.ToUpper(country) + "-" + register + "-" + authorizationNumber
	return b.add("organizationIdentifier", oid.OrganizationIdentifier, der.EncodeUTF8String(value))
}

func (b *Builder) add(label string, id []int, value []byte) *Builder {
	b.attrs = append(b.attrs, attr{label: label, oid: id, value: value})
	return b
}

// DER encodes the Name as SEQUENCE OF RelativeDistinguishedName, each RDN a
// SET OF one AttributeTypeAndValue, in the order attributes were added.
func (b *Builder) DER() []byte {
	var rdns [][]byte
	for _, a := range b.attrs {
		atv := der.EncodeSequence(der.EncodeOID(a.oid), a.value)
		rdns = append(rdns, der.EncodeSetOf(atv))
	}
	return der.EncodeSequence(rdns...)
}

// String renders the RFC 2253 form, most-specific attribute first (the
// reverse of DER encoding order).
func (b *Builder) String() string {
	parts := make([]string, 0, len(b.attrs))
	for i := len(b.attrs) - 1; i >= 0; i-- {
		a := b.attrs[i]
		parts = append(parts, a.label+"="+escapeRDNValue(rawString(a.value)))
	}
	return strings.Join(parts, ",")
}

// rawString extracts the string content of an already-encoded
// UTF8String/PrintableString/IA5String AttributeValue for display purposes.
func rawString(encoded []byte) string {
	p := der.NewParser(encoded)
	if tag, ok := p.PeekTag(); ok {
		switch tag {
		case der.TagUTF8String:
			if s, err := p.ReadUTF8String(); err == nil {
				return s
			}
		case der.TagPrintableString:
			if s, err := p.ReadPrintableString(); err == nil {
				return s
			}
		case der.TagIA5String:
			if s, err := p.ReadIA5String(); err == nil {
				return s
			}
		}
	}
	return ""
}

// escapeRDNValue escapes the handful of characters RFC 2253 requires
// escaping in an AttributeValue's string representation.
func escapeRDNValue(v string) string {
	var b strings.Builder
	for i, r := range v {
		switch r {
		case ',', '+', '"', '\\', '<', '>', ';':
			b.WriteByte('\\')
			b.WriteRune(r)
		case ' ':
			if i == 0 || i == len(v)-1 {
				b.WriteByte('\\')
			}
			b.WriteRune(r)
		case '#':
			if i == 0 {
				b.WriteByte('\\')
			}
			b.WriteRune(r)
		default:
			b.WriteRune(r)
		}
	}
	return b.String()
}
