package vectorindex

import (
	"bufio"
	"encoding/binary"
	"errors"
	"fmt"
	"io"
	"math"
	"os"
	"path/filepath"

	"github.com/moby/sys/atomicwriter"
)

// File layout (v1):
//
//	0..7   magic "RSVEC001"
//	8..15  dim (uint64, little-endian)
//	16..23 count (uint64, little-endian)
//	24..   count*dim float32 values, little-endian, row-major
const HeaderSize = 24

var fileMagic = [8]byte{'R', 'S', 'V', 'E', 'C', '0', '0', '1'}

// ErrCorrupt is returned when a vector file cannot be decoded
var ErrCorrupt = errors.New("corrupt vector file")

// maxDimension guards against allocating from a garbage header
const maxDimension = 1 << 16

// WriteTo encodes the index in the binary file layout
func (f *Flat) WriteTo(w io.Writer) (int64, error) {
	bw := bufio.NewWriter(w)
	var header [HeaderSize]byte
	copy(header[:8], fileMagic[:])
	binary.LittleEndian.PutUint64(header[8:16], uint64(f.dim))
	binary.LittleEndian.PutUint64(header[16:24], uint64(f.Size()))

	written := int64(0)
	n, err := bw.Write(header[:])
	written += int64(n)
	if err != nil {
		return written, err
	}

	var buf [4]byte
	for _, v := range f.data {
		binary.LittleEndian.PutUint32(buf[:], math.Float32bits(v))
		n, err := bw.Write(buf[:])
		written += int64(n)
		if err != nil {
			return written, err
		}
	}
	return written, bw.Flush()
}

// ReadFlat decodes an index written by WriteTo
func ReadFlat(r io.Reader) (*Flat, error) {
	br := bufio.NewReader(r)
	var header [HeaderSize]byte
	if _, err := io.ReadFull(br, header[:]); err != nil {
		return nil, fmt.Errorf("%w: header: %v", ErrCorrupt, err)
	}

	var mg [8]byte
	copy(mg[:], header[:8])
	if mg != fileMagic {
		return nil, fmt.Errorf("%w: magic mismatch", ErrCorrupt)
	}
	dim := binary.LittleEndian.Uint64(header[8:16])
	count := binary.LittleEndian.Uint64(header[16:24])
	if dim == 0 || dim > maxDimension {
		return nil, fmt.Errorf("%w: dim=%d", ErrCorrupt, dim)
	}

	if count > uint64(math.MaxInt)/dim/4 {
		return nil, fmt.Errorf("%w: count=%d too large for dim=%d", ErrCorrupt, count, dim)
	}
	total := count * dim

	f := &Flat{dim: int(dim)}
	var buf [4]byte
	for i := uint64(0); i < total; i++ {
		if _, err := io.ReadFull(br, buf[:]); err != nil {
			return nil, fmt.Errorf("%w: truncated at value %d of %d", ErrCorrupt, i, total)
		}
		f.data = append(f.data, math.Float32frombits(binary.LittleEndian.Uint32(buf[:])))
	}
	if _, err := br.ReadByte(); err != io.EOF {
		return nil, fmt.Errorf("%w: trailing bytes after %d vectors", ErrCorrupt, count)
	}
	return f, nil
}

// Save writes the index to path atomically
func (f *Flat) Save(path string) error {
	if err := os.MkdirAll(filepath.Dir(path), 0o755); err != nil {
		return fmt.Errorf("create index directory: %w", err)
	}
	w, err := atomicwriter.New(path, 0o644)
	if err != nil {
		return fmt.Errorf("open vectors file: %w", err)
	}
	if _, err := f.WriteTo(w); err != nil {
		// A failed write makes Close discard the temp file
		_ = w.Close()
		return fmt.Errorf("write vectors: %w", err)
	}
	if err := w.Close(); err != nil {
		return fmt.Errorf("commit vectors file: %w", err)
	}
	return nil
}

// Load reads an index from path. A missing file returns an error satisfying os.IsNotExist.
func Load(path string) (*Flat, error) {
	file, err := os.Open(path)
	if err != nil {
		return nil, err
	}
	defer func() {
		_ = file.Close()
	}()
	return ReadFlat(file)
}
