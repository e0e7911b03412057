package extensions

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestQualifiedCertificateStatementsPSD2RoundTrip(t *testing.T) {
	retention := 10
	params := QCStatementsParams{
		Compliance:     true,
		RetentionYears: &retention,
		QSCD:           true,
		Type:           QCTypeWeb,
		PSD2: &PSD2Statement{
			Roles:   Roles(true, true, false, false),
			NCAName: "Bank of Greece",
			NCAID:   "PSDGR-BOG-123456",
		},
	}

	ext, err := QualifiedCertificateStatements(params)
	require.NoError(t, err)
	assert.True(t, ext.Critical, "presence of a PSD2 statement must make the extension critical")

	parsed, err := ParsePSD2Statement(ext.Value)
	require.NoError(t, err)
	require.NotNil(t, parsed)
	assert.ElementsMatch(t, []string{"PSP_AS", "PSP_PI"}, parsed.Roles)
	assert.Equal(t, "Bank of Greece", parsed.NCAName)
	assert.Equal(t, "PSDGR-BOG-123456", parsed.NCAID)
}

func TestQualifiedCertificateStatementsWithoutPSD2IsNotCritical(t *testing.T) {
	ext, err := QualifiedCertificateStatements(QCStatementsParams{Compliance: true})
	require.NoError(t, err)
	assert.False(t, ext.Critical)

	parsed, err := ParsePSD2Statement(ext.Value)
	require.NoError(t, err)
	assert.Nil(t, parsed)
}

func TestRolesOrdering(t *testing.T) {
	assert.Equal(t, []string{"PSP_AS", "PSP_PI", "PSP_AI", "PSP_IC"}, Roles(true, true, true, true))
	assert.Equal(t, []string{"PSP_PI"}, Roles(false, true, false, false))
}
