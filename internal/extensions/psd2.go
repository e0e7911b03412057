package extensions

import (
	"math/big"

	"crypto/x509/pkix"

	"github.com/psd2/qcert/internal/der"
	"github.com/psd2/qcert/internal/oid"
)

// QcStatement-PSD2 (0.4.0.19495.2, ETSI TS 119 495) role identifiers and the
// conventional short names carried alongside each OID in RoleOfPSP.
var psd2RoleNames = map[string][]int{
	"PSP_AS": oid.RolePSP_AS,
	"PSP_PI": oid.RolePSP_PI,
	"PSP_AI": oid.RolePSP_AI,
	"PSP_IC": oid.RolePSP_IC,
}

// Roles reports which PSD2 role short-names correspond to the spec's role
// flags, in the conventional ETSI TS 119 495 ordering (AS, PI, AI, IC).
func Roles(aspsp, pisp, aisp, piisp bool) []string {
	var roles []string
	if aspsp {
		roles = append(roles, "PSP_AS")
	}
	if pisp {
		roles = append(roles, "PSP_PI")
	}
	if aisp {
		roles = append(roles, "PSP_AI")
	}
	if piisp {
		roles = append(roles, "PSP_IC")
	}
	return roles
}

// MonetaryLimit is the QcLimitValue statement payload.
type MonetaryLimit struct {
	Currency string // ISO 4217 alpha code, e.g. "EUR"
	Amount   int
	Exponent int
}

// PDSLocation is one entry of the QcPDS statement.
type PDSLocation struct {
	Language string // ISO 639-1, e.g. "en"
	URL      string
}

// PSD2Statement is the PSD2QcType payload of the QcStatement-PSD2 statement.
type PSD2Statement struct {
	Roles   []string // short names: PSP_AS, PSP_PI, PSP_AI, PSP_IC
	NCAName string
	NCAID   string
}

// QCType is one of the three ETSI EN 319 412-5 certificate kinds.
type QCType int

const (
	QCTypeUnspecified QCType = iota
	QCTypeESign
	QCTypeESeal
	QCTypeWeb
)

func (t QCType) oid() []int {
	switch t {
	case QCTypeESign:
		return oid.QcTypeESign
	case QCTypeESeal:
		return oid.QcTypeESeal
	case QCTypeWeb:
		return oid.QcTypeWeb
	default:
		return nil
	}
}

// QCStatementsParams collects the optional statements spec §3/§4.2 allows
// inside a single QualifiedCertificateStatements extension.
type QCStatementsParams struct {
	Compliance      bool
	LimitValue      *MonetaryLimit
	RetentionYears  *int
	QSCD            bool
	PDS             []PDSLocation
	Type            QCType
	PSD2            *PSD2Statement
}

func qcStatement(statementID []int, info []byte) []byte {
	fields := [][]byte{der.EncodeOID(statementID)}
	if info != nil {
		fields = append(fields, info)
	}
	return der.EncodeSequence(fields...)
}

// QualifiedCertificateStatements builds the QCStatements extension
// (1.3.6.1.5.5.7.1.3). The PSD2 QcStatement-PSD2 entry makes the whole
// extension critical, matching spec §4.2's "only BasicConstraints, KeyUsage,
// and the PSD2 QcStatement set critical" rule.
func QualifiedCertificateStatements(p QCStatementsParams) (pkix.Extension, error) {
	var statements [][]byte

	if p.Compliance {
		statements = append(statements, qcStatement(oid.QcCompliance, nil))
	}

	if p.LimitValue != nil {
		info := der.EncodeSequence(
			der.EncodePrintableString(p.LimitValue.Currency),
			der.EncodeInteger(big.NewInt(int64(p.LimitValue.Amount))),
			der.EncodeInteger(big.NewInt(int64(p.LimitValue.Exponent))),
		)
		statements = append(statements, qcStatement(oid.QcLimitValue, info))
	}

	if p.RetentionYears != nil {
		info := der.EncodeInteger(big.NewInt(int64(*p.RetentionYears)))
		statements = append(statements, qcStatement(oid.QcRetentionPeriod, info))
	}

	if p.QSCD {
		statements = append(statements, qcStatement(oid.QcSSCD, nil))
	}

	if len(p.PDS) > 0 {
		var locs [][]byte
		for _, l := range p.PDS {
			locs = append(locs, der.EncodeSequence(
				der.EncodeIA5String(l.URL),
				der.EncodePrintableString(l.Language),
			))
		}
		info := der.EncodeSequence(locs...)
		statements = append(statements, qcStatement(oid.QcPDS, info))
	}

	if t := p.Type.oid(); t != nil {
		info := der.EncodeSequence(der.EncodeOID(t))
		statements = append(statements, qcStatement(oid.QcType, info))
	}

	critical := false
	if p.PSD2 != nil {
		var roleEntries [][]byte
		for _, r := range p.PSD2.Roles {
			roleOID, ok := psd2RoleNames[r]
			if !ok {
				continue
			}
			roleEntries = append(roleEntries, der.EncodeSequence(
				der.EncodeOID(roleOID),
				der.EncodeUTF8String(r),
			))
		}
		psd2Info := der.EncodeSequence(
			der.EncodeSequence(roleEntries...), // RolesOfPSP
			der.EncodeUTF8String(p.PSD2.NCAName),
			der.EncodeUTF8String(p.PSD2.NCAID),
		)
		statements = append(statements, qcStatement(oid.QcStatementPSD2, psd2Info))
		critical = true
	}

	return pkix.Extension{
		Id:       asn1OID(oid.QCStatements),
		Critical: critical,
		Value:    der.EncodeSequence(statements...),
	}, nil
}

// ParsedPSD2Statement is the decoded form of a PSD2QcType statement, used by
// tests and callers inspecting an issued certificate (spec §8 scenario S2).
type ParsedPSD2Statement struct {
	Roles   []string
	NCAName string
	NCAID   string
}

// ParsePSD2Statement scans a QCStatements extension value (the full DER,
// outer SEQUENCE included) for the QcStatement-PSD2 entry and decodes
// its PSD2QcType payload. It returns (nil, nil) if no such statement exists.
func ParsePSD2Statement(extensionValue []byte) (*ParsedPSD2Statement, error) {
	p := der.NewParser(extensionValue)
	seq, err := p.ReadSequence()
	if err != nil {
		return nil, err
	}
	for !seq.Done() {
		stmt, err := seq.ReadSequence()
		if err != nil {
			return nil, err
		}
		arcs, err := stmt.ReadOID()
		if err != nil {
			return nil, err
		}
		if !oidEqual(arcs, oid.QcStatementPSD2) {
			continue
		}
		info, err := stmt.ReadSequence()
		if err != nil {
			return nil, err
		}
		rolesSeq, err := info.ReadSequence()
		if err != nil {
			return nil, err
		}
		var roles []string
		for !rolesSeq.Done() {
			role, err := rolesSeq.ReadSequence()
			if err != nil {
				return nil, err
			}
			if _, err := role.ReadOID(); err != nil {
				return nil, err
			}
			name, err := role.ReadUTF8String()
			if err != nil {
				return nil, err
			}
			roles = append(roles, name)
		}
		ncaName, err := info.ReadUTF8String()
		if err != nil {
			return nil, err
		}
		ncaID, err := info.ReadUTF8String()
		if err != nil {
			return nil, err
		}
		return &ParsedPSD2Statement{Roles: roles, NCAName: ncaName, NCAID: ncaID}, nil
	}
	return nil, nil
}

func oidEqual(a, b []int) bool {
	if len(a) != len(b) {
		return false
	}
	for i := range a {
		if a[i] != b[i] {
			return false
		}
	}
	return true
}
