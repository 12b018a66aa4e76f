package extract

import (
	"bytes"
	"fmt"
	"os"
	"testing"

	"github.com/smallstep/assert"
	"github.com/stretchr/testify/require"
	"go.step.sm/crypto/pemutil"

	"github.com/smallstep/winpe/authenticode"
	"github.com/smallstep/winpe/pefile"
)

func parseFile(t *testing.T, filename string) *pefile.File {
	t.Helper()
	b, err := os.ReadFile(filename)
	require.NoError(t, err)
	f, err := pefile.Parse(b)
	require.NoError(t, err)
	return f
}

func TestExtractCertificates(t *testing.T) {
	f := parseFile(t, "testdata/signed.exe")

	var buf bytes.Buffer
	require.NoError(t, extractCertificates(f, false, &buf))
	assert.HasPrefix(t, buf.String(), "-----BEGIN CERTIFICATE-----")

	certs, err := pemutil.ParseCertificateBundle(buf.Bytes())
	assert.FatalError(t, err)
	assert.Len(t, 1, certs)
	assert.Equals(t, "Code Signing", certs[0].Subject.CommonName)
}

func TestExtractCertificatesUnsigned(t *testing.T) {
	f := parseFile(t, "testdata/unsigned.exe")

	var buf bytes.Buffer
	err := extractCertificates(f, false, &buf)
	require.ErrorIs(t, err, authenticode.ErrNoCertificateTable)
	assert.Equals(t, 0, buf.Len())
}

func TestExtractCertificatesUnsupportedEntry(t *testing.T) {
	// The table carries a PKCS#7 signature followed by an entry of
	// certificate type X.509, which has no signature to extract.
	f := parseFile(t, "testdata/mixed.exe")

	var buf bytes.Buffer
	err := extractCertificates(f, false, &buf)
	var typeErr *authenticode.CertificateTypeError
	require.ErrorAs(t, err, &typeErr)
	assert.Equals(t, uint16(0x0001), typeErr.CertificateType)

	buf.Reset()
	require.NoError(t, extractCertificates(f, true, &buf))
	certs, err := pemutil.ParseCertificateBundle(buf.Bytes())
	assert.FatalError(t, err)
	assert.Len(t, 1, certs)
	assert.Equals(t, "Code Signing", certs[0].Subject.CommonName)
}

func TestIsUnsupported(t *testing.T) {
	tests := []struct {
		name string
		err  error
		want bool
	}{
		{"revision", &authenticode.RevisionError{Revision: 0x0100}, true},
		{"certificate type", &authenticode.CertificateTypeError{CertificateType: 0x0001}, true},
		{"signature", &authenticode.SignatureError{Err: fmt.Errorf("this is an error")}, false},
		{"other", fmt.Errorf("this is an error"), false},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			assert.Equals(t, tt.want, isUnsupported(tt.err))
		})
	}
}
