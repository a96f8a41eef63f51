// Package band reads and writes single-band floating point GeoTIFF rasters
// such as the longitude and latitude bands of a satellite product.
package band

import (
	"bytes"
	"compress/zlib"
	"encoding/binary"
	"errors"
	"fmt"
	"io"
	"math"
	"os"

	"golang.org/x/image/tiff/lzw"
)

// ErrUnsupported is returned for TIFF layouts the reader does not decode.
var ErrUnsupported = errors.New("unsupported TIFF layout")

// Band is an opened single-band raster. The file is memory-mapped where
// the platform supports it.
type Band struct {
	data   []byte
	mapped bool
	bo     binary.ByteOrder
	ifd    *ifd
	path   string
}

// Open opens a TIFF file and parses its first image directory.
func Open(path string) (*Band, error) {
	f, err := os.Open(path)
	if err != nil {
		return nil, fmt.Errorf("opening %s: %w", path, err)
	}
	defer f.Close()

	fi, err := f.Stat()
	if err != nil {
		return nil, fmt.Errorf("stat %s: %w", path, err)
	}
	size := fi.Size()
	if size == 0 {
		return nil, fmt.Errorf("%s: empty file", path)
	}

	data, mapped, err := mapFile(f, int(size))
	if err != nil {
		return nil, fmt.Errorf("mapping %s: %w", path, err)
	}

	d, bo, err := parseFirstIFD(bytes.NewReader(data))
	if err == nil {
		err = checkLayout(d)
	}
	if err != nil {
		if mapped {
			unmapFile(data)
		}
		return nil, fmt.Errorf("parsing %s: %w", path, err)
	}

	return &Band{data: data, mapped: mapped, bo: bo, ifd: d, path: path}, nil
}

func checkLayout(d *ifd) error {
	if d.SamplesPerPixel != 1 {
		return fmt.Errorf("%w: %d samples per pixel", ErrUnsupported, d.SamplesPerPixel)
	}
	if d.Predictor != 1 {
		return fmt.Errorf("%w: predictor %d", ErrUnsupported, d.Predictor)
	}
	switch d.Compression {
	case compressionNone, compressionLZW, compressionDeflate, compressionDeflateOld:
	default:
		return fmt.Errorf("%w: compression %d", ErrUnsupported, d.Compression)
	}
	_, _, err := sampleDecoder(d, binary.LittleEndian)
	return err
}

// Close releases the file mapping.
func (b *Band) Close() error {
	if b.data == nil {
		return nil
	}
	var err error
	if b.mapped {
		err = unmapFile(b.data)
	}
	b.data = nil
	return err
}

// Path returns the file path.
func (b *Band) Path() string {
	return b.path
}

// Width returns the raster width in pixels.
func (b *Band) Width() int {
	return int(b.ifd.Width)
}

// Height returns the raster height in pixels.
func (b *Band) Height() int {
	return int(b.ifd.Height)
}

// NoData returns the GDAL no-data value and whether one is set.
func (b *Band) NoData() (float64, bool) {
	return b.ifd.NoData, b.ifd.HasNoData
}

// Read decodes the whole band into a row-major slice. Samples equal to the
// no-data value are returned as NaN.
func (b *Band) Read() ([]float64, error) {
	if b.data == nil {
		return nil, fmt.Errorf("%s: band is closed", b.path)
	}
	d := b.ifd
	decode, sampleSize, err := sampleDecoder(d, b.bo)
	if err != nil {
		return nil, err
	}

	width, height := int(d.Width), int(d.Height)
	out := make([]float64, width*height)
	cw, ch := d.chunkSize()
	across := d.chunksAcross()
	want := cw * ch * sampleSize

	for i := range d.Offsets {
		raw, err := b.chunk(i, want)
		if err != nil {
			return nil, fmt.Errorf("%s: chunk %d: %w", b.path, i, err)
		}
		x0 := (i % across) * cw
		y0 := (i / across) * ch
		rows := min(ch, height-y0)
		cols := min(cw, width-x0)
		if x0 >= width || rows <= 0 {
			continue
		}
		// The last strip may be shorter than RowsPerStrip.
		if len(raw) < ((rows-1)*cw+cols)*sampleSize {
			return nil, fmt.Errorf("%s: chunk %d: have %d bytes, want %d", b.path, i, len(raw), want)
		}
		for y := 0; y < rows; y++ {
			src := raw[y*cw*sampleSize:]
			dst := out[(y0+y)*width+x0:]
			for x := 0; x < cols; x++ {
				dst[x] = decode(src[x*sampleSize:])
			}
		}
	}

	if nd, ok := b.NoData(); ok {
		for i, v := range out {
			if v == nd || (math.IsNaN(nd) && math.IsNaN(v)) {
				out[i] = math.NaN()
			}
		}
	}
	return out, nil
}

// chunk returns the decompressed bytes of strip or tile i.
func (b *Band) chunk(i, want int) ([]byte, error) {
	off, n := b.ifd.Offsets[i], b.ifd.ByteCounts[i]
	end := off + n
	if end > uint64(len(b.data)) {
		return nil, fmt.Errorf("data [%d:%d] exceeds file size %d", off, end, len(b.data))
	}
	raw := b.data[off:end]

	switch b.ifd.Compression {
	case compressionNone:
		return raw, nil
	case compressionDeflate, compressionDeflateOld:
		zr, err := zlib.NewReader(bytes.NewReader(raw))
		if err != nil {
			return nil, fmt.Errorf("deflate: %w", err)
		}
		defer zr.Close()
		return readAtMost(zr, want)
	case compressionLZW:
		lr := lzw.NewReader(bytes.NewReader(raw), lzw.MSB, 8)
		defer lr.Close()
		return readAtMost(lr, want)
	default:
		return nil, fmt.Errorf("%w: compression %d", ErrUnsupported, b.ifd.Compression)
	}
}

// readAtMost reads up to n bytes, accepting a short final stream.
func readAtMost(r io.Reader, n int) ([]byte, error) {
	buf := make([]byte, n)
	got, err := io.ReadFull(r, buf)
	if err != nil && !errors.Is(err, io.ErrUnexpectedEOF) && !errors.Is(err, io.EOF) {
		return nil, err
	}
	return buf[:got], nil
}

// ReadFile opens path, reads its band and closes it.
func ReadFile(path string) (data []float64, width, height int, err error) {
	b, err := Open(path)
	if err != nil {
		return nil, 0, 0, err
	}
	defer b.Close()
	data, err = b.Read()
	if err != nil {
		return nil, 0, 0, err
	}
	return data, b.Width(), b.Height(), nil
}
