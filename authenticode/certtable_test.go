package authenticode

import (
	"bytes"
	"encoding/binary"
	"fmt"
	"math"
	"testing"

	"github.com/google/go-cmp/cmp"
	"github.com/stretchr/testify/require"

	"github.com/smallstep/winpe/internal/cast"
)

// testPE is a PE implementation backed by a plain byte slice.
type testPE struct {
	data []byte
	r    *Range
	err  error
}

var _ PE = (*testPE)(nil)

func (p *testPE) Data() []byte { return p.data }

func (p *testPE) CertificateTableRange() (*Range, error) { return p.r, p.err }

// appendEntry appends a WIN_CERTIFICATE entry with the given payload to
// table and pads it to the next 8-byte boundary.
func appendEntry(t *testing.T, table []byte, revision, certType uint16, payload []byte) []byte {
	t.Helper()
	entry := make([]byte, winCertHeaderSize)
	binary.LittleEndian.PutUint32(entry[0:4], cast.Uint32(winCertHeaderSize+len(payload)))
	binary.LittleEndian.PutUint16(entry[4:6], revision)
	binary.LittleEndian.PutUint16(entry[6:8], certType)
	entry = append(entry, payload...)
	for len(entry)%8 != 0 {
		entry = append(entry, 0x00)
	}
	return append(table, entry...)
}

func TestAlignUp8(t *testing.T) {
	tests := []struct {
		val  int
		want int
		ok   bool
	}{
		{0, 0, true},
		{1, 8, true},
		{7, 8, true},
		{8, 8, true},
		{9, 16, true},
		{16, 16, true},
		{17, 24, true},
		{math.MaxInt - 7, math.MaxInt - 7, true},
		{math.MaxInt - 6, 0, false},
		{math.MaxInt, 0, false},
	}
	for _, tt := range tests {
		got, ok := alignUp8(tt.val)
		if got != tt.want || ok != tt.ok {
			t.Errorf("alignUp8(%d) = (%d, %t), want (%d, %t)", tt.val, got, ok, tt.want, tt.ok)
		}
		if ok {
			// Aligned values stay put.
			again, _ := alignUp8(got)
			if again != got {
				t.Errorf("alignUp8(%d) = %d, want %d", got, again, got)
			}
		}
	}
}

func TestNewAttributeCertificateIterator(t *testing.T) {
	table := appendEntry(t, nil, WinCertRevision20, WinCertTypePKCSSignedData, []byte("signature"))
	withTrailingByte := append(append([]byte{}, table...), 0x00)

	tests := []struct {
		name string
		pe   *testPE
		err  error
	}{
		{"ok", &testPE{data: table, r: &Range{Start: 0, End: len(table)}}, nil},
		{"no table", &testPE{data: table}, ErrNoCertificateTable},
		{"range error", &testPE{data: table, err: fmt.Errorf("this is an error")}, ErrOutOfBounds},
		{"negative start", &testPE{data: table, r: &Range{Start: -8, End: len(table)}}, ErrOutOfBounds},
		{"start after end", &testPE{data: table, r: &Range{Start: 16, End: 8}}, ErrOutOfBounds},
		{"end out of bounds", &testPE{data: table, r: &Range{Start: 0, End: len(table) + 8}}, ErrOutOfBounds},
		{"trailing byte", &testPE{data: withTrailingByte, r: &Range{Start: 0, End: len(withTrailingByte)}}, ErrInvalidSize},
		{"truncated table", &testPE{data: table, r: &Range{Start: 0, End: len(table) - 1}}, ErrInvalidSize},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			it, err := NewAttributeCertificateIterator(tt.pe)
			if tt.err != nil {
				require.ErrorIs(t, err, tt.err)
				require.Nil(t, it)
				return
			}
			require.NoError(t, err)
			require.NotNil(t, it)
		})
	}
}

func TestAttributeCertificateIterator(t *testing.T) {
	// Payload lengths chosen to exercise the padding widths: 9 bytes pad
	// with 7, 16 bytes need none, and the empty payload is a bare
	// header.
	first := bytes.Repeat([]byte{0x11}, 9)
	second := bytes.Repeat([]byte{0x22}, 16)

	var table []byte
	table = appendEntry(t, table, WinCertRevision20, WinCertTypePKCSSignedData, first)
	table = appendEntry(t, table, 0x0100, 0x0001, second)
	table = appendEntry(t, table, WinCertRevision20, WinCertTypePKCSSignedData, nil)

	// Embed the table past the start of the image to check that the
	// range offsets are honored.
	image := bytes.Repeat([]byte{0xaa}, 64)
	image = append(image, table...)
	pe := &testPE{data: image, r: &Range{Start: 64, End: 64 + len(table)}}

	it, err := NewAttributeCertificateIterator(pe)
	require.NoError(t, err)

	var certs []AttributeCertificate
	for it.Next() {
		certs = append(certs, it.Certificate())
	}
	require.NoError(t, it.Err())

	want := []AttributeCertificate{
		{Revision: WinCertRevision20, CertificateType: WinCertTypePKCSSignedData, Data: first},
		{Revision: 0x0100, CertificateType: 0x0001, Data: second},
		{Revision: WinCertRevision20, CertificateType: WinCertTypePKCSSignedData, Data: []byte{}},
	}
	if !cmp.Equal(want, certs) {
		t.Errorf("certificates diff =\n%s", cmp.Diff(want, certs))
	}
}

func TestAttributeCertificateIteratorEmptyTable(t *testing.T) {
	pe := &testPE{data: make([]byte, 64), r: &Range{Start: 32, End: 32}}
	it, err := NewAttributeCertificateIterator(pe)
	require.NoError(t, err)
	require.False(t, it.Next())
	require.NoError(t, it.Err())
}

func TestAttributeCertificateIteratorInvalidEntrySize(t *testing.T) {
	valid := appendEntry(t, nil, WinCertRevision20, WinCertTypePKCSSignedData, []byte{0x01, 0x02})

	// Declared sizes that cannot describe an entry: smaller than the
	// entry header or larger than the remaining table.
	tests := []struct {
		name string
		size uint32
	}{
		{"zero", 0},
		{"smaller than header", 4},
		{"past end of table", 64},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			bad := make([]byte, winCertHeaderSize)
			binary.LittleEndian.PutUint32(bad[0:4], tt.size)
			binary.LittleEndian.PutUint16(bad[4:6], WinCertRevision20)
			binary.LittleEndian.PutUint16(bad[6:8], WinCertTypePKCSSignedData)
			table := append(append([]byte{}, valid...), bad...)

			// The table length is validated eagerly, but entry contents
			// are not: construction succeeds and the error surfaces
			// during iteration.
			pe := &testPE{data: table, r: &Range{Start: 0, End: len(table)}}
			it, err := NewAttributeCertificateIterator(pe)
			require.NoError(t, err)

			require.True(t, it.Next())
			require.Equal(t, []byte{0x01, 0x02}, it.Certificate().Data)

			require.False(t, it.Next())
			var sizeErr *CertificateSizeError
			require.ErrorAs(t, it.Err(), &sizeErr)
			require.Equal(t, tt.size, sizeErr.Size)

			// Iteration does not resume after the error.
			require.False(t, it.Next())
			require.ErrorAs(t, it.Err(), &sizeErr)
			require.Equal(t, tt.size, sizeErr.Size)
		})
	}
}

func TestAttributeCertificateIteratorStopsWithoutAdvancing(t *testing.T) {
	// An entry whose declared size fits the data but whose aligned size
	// does not: 20 bytes round up to 24. There is no way to advance past
	// it, so iteration stops without an error and without an entry.
	table := make([]byte, 20)
	binary.LittleEndian.PutUint32(table[0:4], 20)
	binary.LittleEndian.PutUint16(table[4:6], WinCertRevision20)
	binary.LittleEndian.PutUint16(table[6:8], WinCertTypePKCSSignedData)

	it := &AttributeCertificateIterator{remaining: table}
	require.False(t, it.Next())
	require.NoError(t, it.Err())

	// The cursor stays put, so the leftover bytes fail the table size
	// check and the validating constructor rejects the table up front.
	require.Len(t, it.remaining, len(table))
	pe := &testPE{data: table, r: &Range{Start: 0, End: len(table)}}
	_, err := NewAttributeCertificateIterator(pe)
	require.ErrorIs(t, err, ErrInvalidSize)
}
