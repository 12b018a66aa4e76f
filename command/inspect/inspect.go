// Package inspect implements the winpe inspect command. It prints the
// details of the attribute certificate table of a PE file.
package inspect

import (
	"encoding/hex"
	"encoding/json"
	"fmt"
	"io"
	"os"
	"strconv"

	"github.com/pkg/errors"
	"github.com/urfave/cli"

	"github.com/smallstep/certinfo"
	zx509 "github.com/smallstep/zcrypto/x509"
	"go.step.sm/cli-utils/command"
	"go.step.sm/cli-utils/errs"
	"go.step.sm/crypto/x509util"

	"github.com/smallstep/winpe/authenticode"
	"github.com/smallstep/winpe/pefile"
	"github.com/smallstep/winpe/utils"
)

func init() {
	cmd := cli.Command{
		Name:      "inspect",
		Action:    command.ActionFunc(inspectAction),
		Usage:     "print the details of the signatures of a Windows Portable Executable file",
		UsageText: `**winpe inspect** <file> [**--format**=<format>] [**--short**]`,
		Description: `**winpe inspect** prints the details of the attribute certificate table of a
Windows Portable Executable file in a human- or machine-readable format: the
layout of each table entry, the digest each Authenticode signature declares,
and the certificates embedded in it. Beware: signatures are never verified.
Always verify a file (for example with **winpe verify** and a trusted digest)
before relying on the output of this command.

Entries that cannot be read as Authenticode signatures are printed with the
reason instead of the signature details.

## POSITIONAL ARGUMENTS

<file>
: The path to a Windows Portable Executable file. A hyphen ("-") reads the file from STDIN.

## EXIT CODES

This command returns 0 on success and \>0 if any error occurs.

## EXAMPLES

Inspect the signatures of a file (default to text format):
'''
$ winpe inspect my.exe
'''

Inspect the signatures of a file in JSON format:
'''
$ winpe inspect my.exe --format json
'''

Print a friendly summary of each signing certificate:
'''
$ winpe inspect my.exe --short
'''`,
		Flags: []cli.Flag{
			cli.StringFlag{
				Name:  "format",
				Value: "text",
				Usage: `The output format for printing the introspection details.

: <format> is a string and must be one of:

    **text**
    :  Print output in unstructured text suitable for a human to read.

    **json**
    :  Print output in JSON format.`,
			},
			cli.BoolFlag{
				Name:  "short",
				Usage: "Print the certificate details in shorter and more friendly format.",
			},
		},
	}

	command.Register(cmd)
}

func inspectAction(ctx *cli.Context) error {
	if err := errs.MinMaxNumberOfArguments(ctx, 0, 1); err != nil {
		return err
	}

	var (
		filename = ctx.Args().First()
		format   = ctx.String("format")
		short    = ctx.Bool("short")
	)

	// Use stdin if no argument is used.
	if filename == "" {
		filename = "-"
	}

	if format != "text" && format != "json" {
		return errs.InvalidFlagValue(ctx, "format", format, "text, json")
	}
	if short && format == "json" {
		return errs.IncompatibleFlagWithFlag(ctx, "short", "format json")
	}

	b, err := utils.ReadFile(filename)
	if err != nil {
		return err
	}
	f, err := pefile.Parse(b)
	if err != nil {
		return err
	}
	ti, err := readTable(f)
	if err != nil {
		return err
	}

	switch format {
	case "json":
		t, err := newCertificateTable(ti)
		if err != nil {
			return err
		}
		enc := json.NewEncoder(os.Stdout)
		enc.SetIndent("", "  ")
		if err := enc.Encode(t); err != nil {
			return errors.Wrap(err, "error marshaling certificate table")
		}
		return nil
	default:
		return printTable(ti, short, os.Stdout)
	}
}

// tableInfo collects the decoded entries of an attribute certificate
// table together with the outcome of parsing each entry's signature.
type tableInfo struct {
	offset  int
	size    int
	entries []entryInfo
}

type entryInfo struct {
	cert authenticode.AttributeCertificate
	sig  *authenticode.Signature
	err  error
}

func readTable(f *pefile.File) (*tableInfo, error) {
	it, err := authenticode.NewAttributeCertificateIterator(f)
	if err != nil {
		return nil, err
	}
	r, err := f.CertificateTableRange()
	if err != nil {
		return nil, err
	}

	ti := &tableInfo{
		offset: r.Start,
		size:   r.End - r.Start,
	}
	for it.Next() {
		e := entryInfo{cert: it.Certificate()}
		e.sig, e.err = e.cert.Signature()
		ti.entries = append(ti.entries, e)
	}
	if err := it.Err(); err != nil {
		return nil, err
	}
	return ti, nil
}

// CertificateTable is the printable view of the attribute certificate
// table of a PE file.
type CertificateTable struct {
	Offset       int                    `json:"offset"`
	Size         int                    `json:"size"`
	Certificates []AttributeCertificate `json:"certificates"`
}

// AttributeCertificate is the printable view of one certificate table
// entry.
type AttributeCertificate struct {
	Revision        string     `json:"revision"`
	CertificateType string     `json:"certificate_type"`
	Size            int        `json:"size"`
	Signature       *Signature `json:"signature,omitempty"`
	Error           string     `json:"error,omitempty"`
}

// Signature is the printable view of an Authenticode signature.
type Signature struct {
	DigestAlgorithm string               `json:"digest_algorithm,omitempty"`
	Digest          string               `json:"digest"`
	Certificates    []*zx509.Certificate `json:"certificates"`
}

func newCertificateTable(ti *tableInfo) (*CertificateTable, error) {
	t := &CertificateTable{
		Offset:       ti.offset,
		Size:         ti.size,
		Certificates: make([]AttributeCertificate, 0, len(ti.entries)),
	}
	for _, e := range ti.entries {
		ac := AttributeCertificate{
			Revision:        fmt.Sprintf("%#x", e.cert.Revision),
			CertificateType: fmt.Sprintf("%#x", e.cert.CertificateType),
			Size:            len(e.cert.Data),
		}
		if e.err != nil {
			ac.Error = e.err.Error()
			t.Certificates = append(t.Certificates, ac)
			continue
		}

		sig := &Signature{
			Digest: hex.EncodeToString(e.sig.Digest),
		}
		if e.sig.DigestAlgorithm != 0 {
			sig.DigestAlgorithm = e.sig.DigestAlgorithm.String()
		}
		for _, crt := range e.sig.Certificates() {
			zcrt, err := zx509.ParseCertificate(crt.Raw)
			if err != nil {
				return nil, errors.WithStack(err)
			}
			sig.Certificates = append(sig.Certificates, zcrt)
		}
		ac.Signature = sig
		t.Certificates = append(t.Certificates, ac)
	}
	return t, nil
}

func printTable(ti *tableInfo, short bool, w io.Writer) error {
	fmt.Fprintln(w, "Attribute Certificate Table:")
	fmt.Fprintf(w, "%sOffset: %d (%#x)\n", spacer(4), ti.offset, ti.offset)
	fmt.Fprintf(w, "%sSize: %d\n", spacer(4), ti.size)
	for i, e := range ti.entries {
		fmt.Fprintf(w, "%sAttribute Certificate %d:\n", spacer(4), i+1)
		fmt.Fprintf(w, "%sRevision: %#x\n", spacer(8), e.cert.Revision)
		fmt.Fprintf(w, "%sCertificate Type: %#x%s\n", spacer(8), e.cert.CertificateType, certificateTypeName(e.cert.CertificateType))
		fmt.Fprintf(w, "%sData Size: %d\n", spacer(8), len(e.cert.Data))
		if e.err != nil {
			fmt.Fprintf(w, "%sError: %v\n", spacer(8), e.err)
			continue
		}
		if e.sig.DigestAlgorithm != 0 {
			fmt.Fprintf(w, "%sDigest Algorithm: %s\n", spacer(8), e.sig.DigestAlgorithm)
		}
		fmt.Fprintf(w, "%sDigest:\n", spacer(8))
		printBytes(w, e.sig.Digest, spacer(12))
		fmt.Fprintf(w, "%sCertificates: %d\n", spacer(8), len(e.sig.Certificates()))
		for _, crt := range e.sig.Certificates() {
			fmt.Fprintf(w, "%s%s - %s\n", spacer(12), crt.Subject, x509util.Fingerprint(crt))
		}
	}

	for _, e := range ti.entries {
		if e.sig == nil {
			continue
		}
		for _, crt := range e.sig.Certificates() {
			var text string
			var err error
			if short {
				text, err = certinfo.CertificateShortText(crt)
			} else {
				text, err = certinfo.CertificateText(crt)
			}
			if err != nil {
				return err
			}
			fmt.Fprint(w, text)
		}
	}
	return nil
}

// certificateTypeName returns a label for the known certificate types:
// https://learn.microsoft.com/en-us/windows/win32/debug/pe-format#the-attribute-certificate-table-image-only
func certificateTypeName(t uint16) string {
	switch t {
	case 0x0001:
		return " (X.509)"
	case authenticode.WinCertTypePKCSSignedData:
		return " (PKCS#7 SignedData)"
	case 0x0003:
		return " (Reserved)"
	case 0x0004:
		return " (Terminal Server Protocol Stack)"
	default:
		return ""
	}
}

func spacer(i int) string {
	return fmt.Sprintf("%"+strconv.Itoa(i)+"s", "")
}

func printBytes(w io.Writer, bs []byte, prefix string) {
	for i, b := range bs {
		if i == 0 {
			fmt.Fprint(w, prefix)
		} else if (i % 16) == 0 {
			fmt.Fprint(w, "\n"+prefix)
		}
		fmt.Fprintf(w, "%02x", b)
		if i != len(bs)-1 {
			fmt.Fprint(w, ":")
		}
	}
	fmt.Fprintln(w)
}
