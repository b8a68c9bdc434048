package interp

import (
	"bytes"
	"crypto/sha256"
	"encoding/binary"
	"os"

	"github.com/edsrzf/mmap-go"
	"github.com/pkg/errors"

	"github.com/born-ml/graphbridge/internal/tensor"
)

// Weight file layout: a fixed header followed by the data section.
//
//	0x00  magic "GBWT"
//	0x04  format version (uint32, little endian)
//	0x08  data section size (uint64)
//	0x20  SHA-256 of the data section
//	0x40  data
const (
	weightMagic        = "GBWT"
	weightVersion      = 1
	weightHeaderSize   = 0x40
	weightChecksumAt   = 0x20
	weightChecksumSize = sha256.Size
	// weightAlign keeps typed views over the mapping aligned.
	weightAlign = 16
)

// Weight file errors.
var (
	ErrInvalidMagic       = errors.New("interp: invalid weight file magic")
	ErrUnsupportedVersion = errors.New("interp: unsupported weight file version")
	ErrChecksumMismatch   = errors.New("interp: weight file checksum mismatch")
	ErrOutOfBounds        = errors.New("interp: constant extends beyond data section")
)

// WriteWeights stores blobs back to back in a new weight file at path and
// returns the offset of each blob within the data section.
func WriteWeights(path string, blobs ...[]byte) ([]int, error) {
	var (
		data    []byte
		offsets = make([]int, len(blobs))
	)
	for i, b := range blobs {
		for len(data)%weightAlign != 0 {
			data = append(data, 0)
		}
		offsets[i] = len(data)
		data = append(data, b...)
	}

	header := make([]byte, weightHeaderSize)
	copy(header, weightMagic)
	binary.LittleEndian.PutUint32(header[4:], weightVersion)
	binary.LittleEndian.PutUint64(header[8:], uint64(len(data)))
	sum := sha256.Sum256(data)
	copy(header[weightChecksumAt:], sum[:])

	if err := os.WriteFile(path, append(header, data...), 0o600); err != nil {
		return nil, errors.Wrap(err, "write weights")
	}
	return offsets, nil
}

// WeightFile is a read-only memory mapping of constant tensor data.
// Tensors returned by Constant alias the mapping and are valid until Close.
type WeightFile struct {
	f    *os.File
	m    mmap.MMap
	data []byte
}

// OpenWeights maps the file at path read-only and verifies its header and
// checksum.
func OpenWeights(path string) (*WeightFile, error) {
	f, err := os.Open(path) //nolint:gosec // G304: path is caller-provided by design
	if err != nil {
		return nil, errors.Wrap(err, "open weights")
	}
	m, err := mmap.Map(f, mmap.RDONLY, 0)
	if err != nil {
		_ = f.Close()
		return nil, errors.Wrapf(err, "mmap %s", path)
	}
	w := &WeightFile{f: f, m: m}
	if err := w.validate(); err != nil {
		_ = w.Close()
		return nil, errors.Wrap(err, path)
	}
	return w, nil
}

func (w *WeightFile) validate() error {
	if len(w.m) < weightHeaderSize || !bytes.Equal(w.m[:4], []byte(weightMagic)) {
		return ErrInvalidMagic
	}
	if v := binary.LittleEndian.Uint32(w.m[4:]); v != weightVersion {
		return errors.Wrapf(ErrUnsupportedVersion, "version %d", v)
	}
	size := binary.LittleEndian.Uint64(w.m[8:])
	if size != uint64(len(w.m)-weightHeaderSize) {
		return errors.Wrapf(ErrOutOfBounds, "header declares %d data bytes, file has %d", size, len(w.m)-weightHeaderSize)
	}
	w.data = w.m[weightHeaderSize:]

	var stored [weightChecksumSize]byte
	copy(stored[:], w.m[weightChecksumAt:])
	if sha256.Sum256(w.data) != stored {
		return ErrChecksumMismatch
	}
	return nil
}

// Size returns the length of the data section in bytes.
func (w *WeightFile) Size() int { return len(w.data) }

// Constant returns a tensor whose data is the mapped region at offset of the
// data section. The tensor is marked AllocMmapRO.
func (w *WeightFile) Constant(name string, dtype tensor.DataType, shape tensor.Shape, offset int) (*tensor.Tensor, error) {
	t := tensor.New(name, dtype, shape)
	end := offset + t.Bytes()
	if offset < 0 || end > len(w.data) {
		return nil, errors.Wrapf(ErrOutOfBounds, "constant %s spans [%d, %d) of %d bytes", t, offset, end, len(w.data))
	}
	t.Data = w.data[offset:end:end]
	t.Allocation = tensor.AllocMmapRO
	return t, nil
}

// Close unmaps the file. Tensors created from it must not be used afterwards.
func (w *WeightFile) Close() error {
	var firstErr error
	w.data = nil
	if w.m != nil {
		if err := w.m.Unmap(); err != nil {
			firstErr = errors.Wrap(err, "unmap weights")
		}
		w.m = nil
	}
	if w.f != nil {
		if err := w.f.Close(); err != nil && firstErr == nil {
			firstErr = errors.Wrap(err, "close weights")
		}
		w.f = nil
	}
	return firstErr
}
