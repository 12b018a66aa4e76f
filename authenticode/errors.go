package authenticode

import (
	"fmt"

	"github.com/pkg/errors"
)

var (
	// ErrNoCertificateTable is returned by
	// NewAttributeCertificateIterator when the image has no attribute
	// certificate table.
	ErrNoCertificateTable = errors.New("no certificate table found")

	// ErrOutOfBounds is returned by NewAttributeCertificateIterator when
	// the certificate table range cannot be resolved or does not lie
	// within the image bounds.
	ErrOutOfBounds = errors.New("certificate table range is out of bounds")

	// ErrInvalidSize is returned by NewAttributeCertificateIterator when
	// the certificate table size does not match the sum of the
	// certificate entry's aligned sizes.
	ErrInvalidSize = errors.New("certificate table size does not match the sum of the certificate entry's aligned sizes")
)

// CertificateSizeError reports a certificate table entry whose declared
// size cannot describe a valid entry. It terminates iteration: after the
// iterator reports it, no further entries are produced.
type CertificateSizeError struct {
	// Size is the total entry size declared in the entry header.
	Size uint32
}

func (e *CertificateSizeError) Error() string {
	return fmt.Sprintf("certificate table contains an entry with an invalid size: %d", e.Size)
}

// RevisionError reports an attribute certificate whose revision is not
// WinCertRevision20. It is returned by AttributeCertificate.Signature
// and does not affect iteration.
type RevisionError struct {
	Revision uint16
}

func (e *RevisionError) Error() string {
	return fmt.Sprintf("invalid attribute certificate revision: %02x", e.Revision)
}

// CertificateTypeError reports an attribute certificate whose type is
// not WinCertTypePKCSSignedData. It is returned by
// AttributeCertificate.Signature and does not affect iteration.
type CertificateTypeError struct {
	CertificateType uint16
}

func (e *CertificateTypeError) Error() string {
	return fmt.Sprintf("invalid attribute certificate type: %02x", e.CertificateType)
}

// SignatureError reports an attribute certificate whose payload cannot
// be parsed as an Authenticode signature. It wraps the parse error.
type SignatureError struct {
	Err error
}

func (e *SignatureError) Error() string {
	return fmt.Sprintf("invalid signature: %v", e.Err)
}

func (e *SignatureError) Unwrap() error {
	return e.Err
}
