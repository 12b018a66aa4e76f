// Package extract implements the winpe extract command. It prints the
// certificates embedded in the Authenticode signatures of a PE file.
package extract

import (
	"encoding/pem"
	"io"
	"os"

	"github.com/pkg/errors"
	"github.com/urfave/cli"

	"go.step.sm/cli-utils/command"
	"go.step.sm/cli-utils/errs"

	"github.com/smallstep/winpe/authenticode"
	"github.com/smallstep/winpe/pefile"
	"github.com/smallstep/winpe/utils"
)

func init() {
	cmd := cli.Command{
		Name:      "extract",
		Action:    command.ActionFunc(extractAction),
		Usage:     "extract certificates from a signed Windows Portable Executable file",
		UsageText: `**winpe extract** <file> [**--skip-unsupported**]`,
		Description: `**winpe extract** prints the certificates embedded in the Authenticode
signatures of a Windows Portable Executable file in PEM format.

The attribute certificate table of the file is validated before any
certificate is printed. Entries that are not PKCS#7 SignedData structures
make the command fail unless **--skip-unsupported** is set.

## POSITIONAL ARGUMENTS

<file>
: The path to a Windows Portable Executable file. A hyphen ("-") reads the file from STDIN.

## EXIT CODES

This command returns 0 on success and \>0 if any error occurs.

## EXAMPLES

Extract all certificates to a bundle file:
'''
$ winpe extract my.exe > certificates.pem
'''

Ignore certificate table entries that do not carry PKCS#7 signatures:
'''
$ winpe extract --skip-unsupported my.exe
'''`,
		Flags: []cli.Flag{
			cli.BoolFlag{
				Name: "skip-unsupported",
				Usage: `Skip certificate table entries whose revision or certificate type is not
supported instead of failing.`,
			},
		},
	}

	command.Register(cmd)
}

func extractAction(ctx *cli.Context) error {
	if err := errs.NumberOfArguments(ctx, 1); err != nil {
		return err
	}

	filename := ctx.Args().First()
	b, err := utils.ReadFile(filename)
	if err != nil {
		return err
	}

	f, err := pefile.Parse(b)
	if err != nil {
		return err
	}

	return extractCertificates(f, ctx.Bool("skip-unsupported"), os.Stdout)
}

func extractCertificates(f *pefile.File, skipUnsupported bool, w io.Writer) error {
	it, err := authenticode.NewAttributeCertificateIterator(f)
	if err != nil {
		return err
	}

	for it.Next() {
		sig, err := it.Certificate().Signature()
		if err != nil {
			if skipUnsupported && isUnsupported(err) {
				continue
			}
			return err
		}
		for _, crt := range sig.Certificates() {
			block := &pem.Block{
				Type:  "CERTIFICATE",
				Bytes: crt.Raw,
			}
			if err := pem.Encode(w, block); err != nil {
				return errors.Wrap(err, "error encoding certificate to PEM")
			}
		}
	}

	return it.Err()
}

// isUnsupported reports whether err is caused by an entry with an
// unsupported revision or certificate type, as opposed to a malformed
// signature.
func isUnsupported(err error) bool {
	var revisionErr *authenticode.RevisionError
	var typeErr *authenticode.CertificateTypeError
	return errors.As(err, &revisionErr) || errors.As(err, &typeErr)
}
