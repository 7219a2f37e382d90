package vectorindex

import (
	"bufio"
	"encoding/binary"
	"errors"
	"fmt"
	"hash/crc32"
	"io"
	"log/slog"
	"math"
	"os"
	"path/filepath"
	"time"

	apperrors "github.com/Adithya-Monish-Kumar-K/movie-recommender/pkg/errors"
)

// MagicBytes identifies a .vidx file ("VIDX").
const (
	MagicBytes    uint32 = 0x56494458
	FormatVersion uint32 = 1
	HeaderSize    int    = 64
	FooterSize    int    = 8
)

// ErrCorrupt is returned by ReadFile for files that fail the format checks.
var ErrCorrupt = errors.New("corrupt index file")

// Header is the fixed 64-byte prefix of a .vidx file.
//
//	0:4   magic
//	4:8   version
//	8:12  metric
//	12:16 dimension
//	16:24 vector count
//	24:32 created_at (unix seconds)
//	32:64 reserved
//
// The payload is count×dim little-endian float32 values in row order,
// followed by an 8-byte footer holding the CRC32 (IEEE) of header and
// payload and the magic again.
type Header struct {
	Magic     uint32
	Version   uint32
	Metric    Metric
	Dim       uint32
	Count     uint64
	CreatedAt int64
}

func (h Header) encode() []byte {
	b := make([]byte, HeaderSize)
	binary.LittleEndian.PutUint32(b[0:4], h.Magic)
	binary.LittleEndian.PutUint32(b[4:8], h.Version)
	binary.LittleEndian.PutUint32(b[8:12], uint32(h.Metric))
	binary.LittleEndian.PutUint32(b[12:16], h.Dim)
	binary.LittleEndian.PutUint64(b[16:24], h.Count)
	binary.LittleEndian.PutUint64(b[24:32], uint64(h.CreatedAt))
	return b
}

func decodeHeader(b []byte) Header {
	return Header{
		Magic:     binary.LittleEndian.Uint32(b[0:4]),
		Version:   binary.LittleEndian.Uint32(b[4:8]),
		Metric:    Metric(binary.LittleEndian.Uint32(b[8:12])),
		Dim:       binary.LittleEndian.Uint32(b[12:16]),
		Count:     binary.LittleEndian.Uint64(b[16:24]),
		CreatedAt: int64(binary.LittleEndian.Uint64(b[24:32])),
	}
}

// WriteFile installs idx at path atomically: the index is written to a
// temporary file in the same directory, synced, renamed over path and the
// directory is synced. On any failure before the rename the temporary file is
// removed and an existing file at path is left as it was. Once the rename has
// happened the new index is in place, so a failed directory sync is logged
// rather than reported.
func WriteFile(path string, idx *Index) (err error) {
	if idx.Dim() <= 0 {
		return apperrors.Shapef("index dimension %d is not positive", idx.Dim())
	}
	dir := filepath.Dir(path)
	if err := os.MkdirAll(dir, 0755); err != nil {
		return apperrors.IOf(err, "creating index directory %s", dir)
	}
	f, err := os.CreateTemp(dir, filepath.Base(path)+".*.tmp")
	if err != nil {
		return apperrors.IOf(err, "creating temp index file in %s", dir)
	}
	tmpPath := f.Name()
	defer func() {
		if err != nil {
			f.Close()
			os.Remove(tmpPath)
		}
	}()

	header := Header{
		Magic:     MagicBytes,
		Version:   FormatVersion,
		Metric:    MetricInnerProduct,
		Dim:       uint32(idx.Dim()),
		Count:     uint64(idx.Len()),
		CreatedAt: time.Now().Unix(),
	}
	crc := crc32.NewIEEE()
	w := bufio.NewWriterSize(io.MultiWriter(f, crc), 1<<16)
	if _, err = w.Write(header.encode()); err != nil {
		return apperrors.IOf(err, "writing index header")
	}
	var buf [4]byte
	for _, v := range idx.data {
		binary.LittleEndian.PutUint32(buf[:], math.Float32bits(v))
		if _, err = w.Write(buf[:]); err != nil {
			return apperrors.IOf(err, "writing index payload")
		}
	}
	if err = w.Flush(); err != nil {
		return apperrors.IOf(err, "flushing index payload")
	}
	footer := make([]byte, FooterSize)
	binary.LittleEndian.PutUint32(footer[0:4], crc.Sum32())
	binary.LittleEndian.PutUint32(footer[4:8], MagicBytes)
	if _, err = f.Write(footer); err != nil {
		return apperrors.IOf(err, "writing index footer")
	}
	if err = f.Sync(); err != nil {
		return apperrors.IOf(err, "syncing index file")
	}
	if err = f.Close(); err != nil {
		return apperrors.IOf(err, "closing index file")
	}
	if err = os.Rename(tmpPath, path); err != nil {
		return apperrors.IOf(err, "renaming index file into place")
	}
	if serr := syncDirectory(dir); serr != nil {
		slog.Warn("index installed but directory sync failed",
			"component", "vectorindex",
			"path", path,
			"error", serr,
		)
	}
	return nil
}

var syncDirectory = syncDir

func syncDir(dir string) error {
	d, err := os.Open(dir)
	if err != nil {
		return apperrors.IOf(err, "opening index directory")
	}
	defer d.Close()
	if err := d.Sync(); err != nil {
		return apperrors.IOf(err, "syncing index directory")
	}
	return nil
}

// ReadFile loads and verifies a .vidx file.
func ReadFile(path string) (*Index, Header, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, Header{}, apperrors.IOf(err, "reading index file %s", path)
	}
	if len(data) < HeaderSize+FooterSize {
		return nil, Header{}, fmt.Errorf("%w: %s is %d bytes", ErrCorrupt, path, len(data))
	}
	header := decodeHeader(data[:HeaderSize])
	if header.Magic != MagicBytes {
		return nil, Header{}, fmt.Errorf("%w: bad magic bytes %x", ErrCorrupt, header.Magic)
	}
	if header.Version != FormatVersion {
		return nil, Header{}, fmt.Errorf("%w: unsupported version %d", ErrCorrupt, header.Version)
	}
	if header.Metric != MetricInnerProduct {
		return nil, Header{}, fmt.Errorf("%w: unsupported metric %s", ErrCorrupt, header.Metric)
	}
	if header.Dim == 0 {
		return nil, Header{}, fmt.Errorf("%w: zero dimension", ErrCorrupt)
	}
	payloadSize := uint64(len(data) - HeaderSize - FooterSize)
	if payloadSize%4 != 0 || header.Count > payloadSize/4/uint64(header.Dim) {
		return nil, Header{}, fmt.Errorf("%w: size %d cannot hold %d vectors of dimension %d",
			ErrCorrupt, len(data), header.Count, header.Dim)
	}
	values := header.Count * uint64(header.Dim)
	if want := uint64(HeaderSize) + values*4 + uint64(FooterSize); uint64(len(data)) != want {
		return nil, Header{}, fmt.Errorf("%w: size %d, header implies %d", ErrCorrupt, len(data), want)
	}
	body := data[:len(data)-FooterSize]
	footer := data[len(data)-FooterSize:]
	if binary.LittleEndian.Uint32(footer[4:8]) != MagicBytes {
		return nil, Header{}, fmt.Errorf("%w: bad footer", ErrCorrupt)
	}
	if sum := crc32.ChecksumIEEE(body); sum != binary.LittleEndian.Uint32(footer[0:4]) {
		return nil, Header{}, fmt.Errorf("%w: checksum mismatch", ErrCorrupt)
	}

	payload := body[HeaderSize:]
	idx := &Index{dim: int(header.Dim), data: make([]float32, values)}
	for i := range idx.data {
		idx.data[i] = math.Float32frombits(binary.LittleEndian.Uint32(payload[i*4:]))
	}
	return idx, header, nil
}
