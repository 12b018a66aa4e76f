// Package pefile reads Windows Portable Executable images and locates
// the attribute certificate table that carries their Authenticode
// signatures.
package pefile

import (
	"bytes"
	"debug/pe"
	"math"

	"github.com/pkg/errors"

	"github.com/smallstep/winpe/authenticode"
)

// certificateTableIndex is the index of the certificate table in the
// optional header's data directory:
// https://learn.microsoft.com/en-us/windows/win32/debug/pe-format#optional-header-data-directories-image-only
const certificateTableIndex = 4

// File is a PE image held in memory. It implements authenticode.PE.
type File struct {
	data             []byte
	certificateTable pe.DataDirectory
}

// Parse parses a PE image from data. The image is kept in memory: the
// returned File and everything derived from it alias data.
func Parse(data []byte) (*File, error) {
	f, err := pe.NewFile(bytes.NewReader(data))
	if err != nil {
		return nil, errors.Wrap(err, "error parsing PE file")
	}

	var dir pe.DataDirectory
	switch header := f.OptionalHeader.(type) {
	case *pe.OptionalHeader32:
		dir = header.DataDirectory[certificateTableIndex]
	case *pe.OptionalHeader64:
		dir = header.DataDirectory[certificateTableIndex]
	default:
		return nil, errors.Errorf("header of type %T is not supported", header)
	}

	return &File{
		data:             data,
		certificateTable: dir,
	}, nil
}

// Data returns the raw contents of the image.
func (f *File) Data() []byte {
	return f.data
}

// CertificateTableRange returns the byte range of the attribute
// certificate table, or nil if the image has none.
//
// Unlike the other data directory entries, the certificate table's
// VirtualAddress holds a file offset: the table is never mapped into
// memory. The range is not checked against the image bounds here;
// authenticode.NewAttributeCertificateIterator does that.
func (f *File) CertificateTableRange() (*authenticode.Range, error) {
	if f.certificateTable.VirtualAddress == 0 {
		return nil, nil
	}
	start := uint64(f.certificateTable.VirtualAddress)
	end := start + uint64(f.certificateTable.Size)
	if end > math.MaxInt {
		return nil, errors.New("certificate table range overflows")
	}
	return &authenticode.Range{
		Start: int(start),
		End:   int(end),
	}, nil
}
