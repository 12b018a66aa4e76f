// Package utils implements file reading helpers shared by the winpe
// commands.
package utils

import (
	"io"
	"os"

	"github.com/pkg/errors"

	"go.step.sm/cli-utils/errs"
)

// stdin points to os.Stdin. Tests replace it.
var stdin io.Reader = os.Stdin

// stdinFilename is the name of the file that opens stdin.
const stdinFilename = "-"

// ReadAll returns a slice of bytes with the content of the given reader.
func ReadAll(r io.Reader) ([]byte, error) {
	b, err := io.ReadAll(r)
	return b, errors.Wrap(err, "error reading data")
}

// ReadFile reads the file named by filename and returns its contents. A
// filename of "-" reads from stdin.
func ReadFile(filename string) ([]byte, error) {
	if filename == stdinFilename {
		return ReadAll(stdin)
	}
	b, err := os.ReadFile(filename)
	if err != nil {
		return nil, errs.FileError(err, filename)
	}
	return b, nil
}
