// Package verify implements the winpe verify command. It validates the
// structure of the signatures of a PE file.
package verify

import (
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
		Name:      "verify",
		Action:    command.ActionFunc(verifyAction),
		Usage:     "verify the structure of the signatures of a Windows Portable Executable file",
		UsageText: `**winpe verify** <file>`,
		Description: `**winpe verify** validates the attribute certificate table of a Windows
Portable Executable file: the table must be well formed, and every entry must
carry a parseable Authenticode signature with a known digest algorithm. The
command prints nothing and returns 0 when the file passes.

The signatures are not verified cryptographically. The image digest is not
recomputed and the signer chain is not validated, so a file that passes this
command can still carry a forged or broken signature.

## POSITIONAL ARGUMENTS

<file>
: The path to a Windows Portable Executable file. A hyphen ("-") reads the file from STDIN.

## EXIT CODES

This command returns 0 on success and \>0 if the file is not signed or any
signature is malformed.

## EXAMPLES

Verify the signature structure of a file:
'''
$ winpe verify my.exe
'''`,
	}

	command.Register(cmd)
}

func verifyAction(ctx *cli.Context) error {
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

	return verifyCertificateTable(f)
}

func verifyCertificateTable(f *pefile.File) error {
	it, err := authenticode.NewAttributeCertificateIterator(f)
	if err != nil {
		return err
	}

	var count int
	for it.Next() {
		sig, err := it.Certificate().Signature()
		if err != nil {
			return err
		}
		if sig.DigestAlgorithm == 0 {
			return errors.New("signature does not declare a known digest algorithm")
		}
		count++
	}
	if err := it.Err(); err != nil {
		return err
	}
	if count == 0 {
		return errors.New("the certificate table contains no signatures")
	}
	return nil
}
