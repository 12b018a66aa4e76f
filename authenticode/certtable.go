// Package authenticode parses the attribute certificate table of a PE
// image, the structure that carries Authenticode code-signing signatures.
// It validates the table layout and exposes each entry so its payload can
// be parsed as a PKCS#7 SignedData signature. Signatures are parsed, not
// verified.
package authenticode

import (
	"encoding/binary"
	"math"
)

const (
	// WinCertRevision20 is the current version of the WIN_CERTIFICATE
	// structure.
	WinCertRevision20 uint16 = 0x0200

	// WinCertTypePKCSSignedData indicates that the certificate contains a
	// PKCS#7 SignedData structure.
	WinCertTypePKCSSignedData uint16 = 0x0002

	// winCertHeaderSize is the size of the WIN_CERTIFICATE header: a
	// 4-byte length followed by 2-byte revision and certificate type
	// fields, all little-endian.
	winCertHeaderSize = 8
)

// Range is a half-open byte range [Start, End) within a PE image.
type Range struct {
	Start int
	End   int
}

// PE is the view of a parsed PE image needed to locate the attribute
// certificate table. It is implemented by *pefile.File.
type PE interface {
	// Data returns the raw contents of the image.
	Data() []byte

	// CertificateTableRange returns the byte range of the attribute
	// certificate table within the image data, or nil if the image has
	// no certificate table.
	CertificateTableRange() (*Range, error)
}

// AttributeCertificate is a raw entry of the attribute certificate table.
//
// Note that PE attribute certificates are not related to X.509 attribute
// certificates.
type AttributeCertificate struct {
	// Revision is the WIN_CERTIFICATE version number.
	Revision uint16

	// CertificateType identifies the format of Data.
	CertificateType uint16

	// Data is the certificate payload, excluding the entry header and
	// any alignment padding. It aliases the image buffer.
	Data []byte
}

// alignUp8 rounds val up to the next multiple of 8. It reports false if
// the rounded value does not fit in an int.
func alignUp8(val int) (int, bool) {
	if val > math.MaxInt-7 {
		return 0, false
	}
	return (val + 7) &^ 7, true
}

// checkTableSize reports whether the aligned sizes of the table entries
// sum to exactly len(data). It dry-runs the iterator to exhaustion and
// checks that no bytes remain. An entry with an invalid declared size
// does not fail the check here, because the failed decode clears the
// cursor; the error surfaces when the caller iterates for real.
func checkTableSize(data []byte) bool {
	it := AttributeCertificateIterator{remaining: data}
	for it.Next() {
	}
	return len(it.remaining) == 0
}

// AttributeCertificateIterator iterates over the entries of an attribute
// certificate table. Its interface follows bufio.Scanner: Next advances
// to the next entry and reports whether one is available, Certificate
// returns the current entry, and Err returns the error that terminated
// iteration, if any.
type AttributeCertificateIterator struct {
	remaining []byte
	cert      AttributeCertificate
	err       error
}

// NewAttributeCertificateIterator returns an iterator over the attribute
// certificate table of pe.
//
// It returns ErrNoCertificateTable if the image has no certificate
// table, ErrOutOfBounds if the table range cannot be resolved within the
// image bounds, and ErrInvalidSize if the table length does not match
// the sum of the aligned entry sizes. The table length is validated
// eagerly; malformed entry contents are reported lazily through Err.
func NewAttributeCertificateIterator(pe PE) (*AttributeCertificateIterator, error) {
	r, err := pe.CertificateTableRange()
	if err != nil {
		return nil, ErrOutOfBounds
	}
	if r == nil {
		return nil, ErrNoCertificateTable
	}
	data := pe.Data()
	if r.Start < 0 || r.Start > r.End || r.End > len(data) {
		return nil, ErrOutOfBounds
	}
	table := data[r.Start:r.End]
	if !checkTableSize(table) {
		return nil, ErrInvalidSize
	}
	return &AttributeCertificateIterator{remaining: table}, nil
}

// Next advances to the next entry of the table. It returns false when
// the table is exhausted or when iteration cannot continue; in the
// latter case Err returns the reason. Once Next has returned false it
// never returns true again.
func (it *AttributeCertificateIterator) Next() bool {
	if it.err != nil {
		return false
	}
	b := it.remaining
	if len(b) < winCertHeaderSize {
		// Fewer bytes than a header left over. The eager size check
		// rejects tables with trailing bytes, so for a validated table
		// this is the end of the last entry.
		return false
	}

	size := binary.LittleEndian.Uint32(b[0:4])

	// The declared size includes the header, so anything smaller cannot
	// describe an entry, and the entry must lie within the remaining
	// data. Comparing in uint64 keeps a size above MaxInt32 from
	// wrapping on 32-bit platforms.
	if size < winCertHeaderSize || uint64(size) > uint64(len(b)) {
		it.err = &CertificateSizeError{Size: size}
		it.remaining = nil
		return false
	}

	cert := AttributeCertificate{
		Revision:        binary.LittleEndian.Uint16(b[4:6]),
		CertificateType: binary.LittleEndian.Uint16(b[6:8]),
		Data:            b[winCertHeaderSize:size],
	}

	// Entries are 8-byte aligned, so round up to find the next one. If
	// the aligned size overflows or points past the end of the data
	// there is no way to advance: iteration stops without reporting the
	// decoded entry. A table that triggers this fails the eager size
	// check, so the validating constructor never hands one out.
	aligned, ok := alignUp8(int(size))
	if !ok || aligned > len(b) {
		return false
	}
	it.remaining = b[aligned:]
	it.cert = cert
	return true
}

// Certificate returns the entry most recently advanced to by Next. The
// entry's Data aliases the image buffer.
func (it *AttributeCertificateIterator) Certificate() AttributeCertificate {
	return it.cert
}

// Err returns the error that terminated iteration, or nil if iteration
// ended normally or has not ended yet.
func (it *AttributeCertificateIterator) Err() error {
	return it.err
}
