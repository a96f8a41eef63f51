package band

import (
	"encoding/binary"
	"fmt"
	"io"
	"math"
	"strconv"
	"strings"
)

// TIFF tag IDs.
const (
	tagImageWidth      = 256
	tagImageLength     = 257
	tagBitsPerSample   = 258
	tagCompression     = 259
	tagPhotometric     = 262
	tagStripOffsets    = 273
	tagSamplesPerPixel = 277
	tagRowsPerStrip    = 278
	tagStripByteCounts = 279
	tagPlanarConfig    = 284
	tagPredictor       = 317
	tagTileWidth       = 322
	tagTileLength      = 323
	tagTileOffsets     = 324
	tagTileByteCounts  = 325
	tagSampleFormat    = 339
	tagGDALNoData      = 42113
)

// TIFF data types.
const (
	dtByte      = 1
	dtASCII     = 2
	dtShort     = 3
	dtLong      = 4
	dtRational  = 5
	dtSByte     = 6
	dtUndef     = 7
	dtSShort    = 8
	dtSLong     = 9
	dtSRational = 10
	dtFloat     = 11
	dtDouble    = 12
	dtLong8     = 16
	dtSLong8    = 17
	dtIFD8      = 18
)

// Compression schemes.
const (
	compressionNone       = 1
	compressionLZW        = 5
	compressionDeflate    = 8
	compressionDeflateOld = 32946
)

const sampleFormatFloat = 3

// ifd holds the parts of a TIFF image file directory needed to decode a
// single-band raster.
type ifd struct {
	Width, Height   uint32
	BitsPerSample   uint16
	SamplesPerPixel uint16
	SampleFormat    uint16
	Compression     uint16
	Predictor       uint16
	PlanarConfig    uint16

	RowsPerStrip uint32
	TileWidth    uint32
	TileHeight   uint32

	// Offsets and ByteCounts list the strips or tiles in file order.
	Offsets    []uint64
	ByteCounts []uint64

	NoData    float64
	HasNoData bool
}

func (d *ifd) tiled() bool {
	return d.TileWidth > 0 && d.TileHeight > 0
}

// chunkSize returns the pixel size of one strip or tile.
func (d *ifd) chunkSize() (w, h int) {
	if d.tiled() {
		return int(d.TileWidth), int(d.TileHeight)
	}
	return int(d.Width), int(d.RowsPerStrip)
}

// chunksAcross returns the number of chunks per chunk row.
func (d *ifd) chunksAcross() int {
	w, _ := d.chunkSize()
	return (int(d.Width) + w - 1) / w
}

type tiffEntry struct {
	Tag      uint16
	DataType uint16
	Count    uint64
	Value    []byte
}

// parseFirstIFD reads the header and the first image directory of a classic
// or BigTIFF file.
func parseFirstIFD(r io.ReadSeeker) (*ifd, binary.ByteOrder, error) {
	var header [8]byte
	if _, err := io.ReadFull(r, header[:]); err != nil {
		return nil, nil, fmt.Errorf("reading TIFF header: %w", err)
	}

	var bo binary.ByteOrder
	switch string(header[0:2]) {
	case "II":
		bo = binary.LittleEndian
	case "MM":
		bo = binary.BigEndian
	default:
		return nil, nil, fmt.Errorf("invalid TIFF byte order: %x", header[0:2])
	}

	magic := bo.Uint16(header[2:4])
	if magic != 42 && magic != 43 {
		return nil, nil, fmt.Errorf("invalid TIFF magic: %d", magic)
	}
	bigTIFF := magic == 43

	var offset uint64
	if bigTIFF {
		// Bytes 4-7 hold the offset size and padding, 8-15 the first offset.
		var buf [8]byte
		if _, err := io.ReadFull(r, buf[:]); err != nil {
			return nil, nil, fmt.Errorf("reading BigTIFF header: %w", err)
		}
		offset = bo.Uint64(buf[:])
	} else {
		offset = uint64(bo.Uint32(header[4:8]))
	}
	if offset == 0 {
		return nil, nil, fmt.Errorf("TIFF has no image directory")
	}

	entries, err := readEntries(r, bo, offset, bigTIFF)
	if err != nil {
		return nil, nil, fmt.Errorf("parsing IFD at offset %d: %w", offset, err)
	}
	d, err := buildIFD(entries, bo)
	if err != nil {
		return nil, nil, err
	}
	return d, bo, nil
}

func readEntries(r io.ReadSeeker, bo binary.ByteOrder, offset uint64, bigTIFF bool) ([]tiffEntry, error) {
	if _, err := r.Seek(int64(offset), io.SeekStart); err != nil {
		return nil, err
	}

	var n uint64
	entrySize := 12
	if bigTIFF {
		var buf [8]byte
		if _, err := io.ReadFull(r, buf[:]); err != nil {
			return nil, err
		}
		n = bo.Uint64(buf[:])
		entrySize = 20
	} else {
		var buf [2]byte
		if _, err := io.ReadFull(r, buf[:]); err != nil {
			return nil, err
		}
		n = uint64(bo.Uint16(buf[:]))
	}

	raw := make([]byte, int(n)*entrySize)
	if _, err := io.ReadFull(r, raw); err != nil {
		return nil, err
	}
	entries := make([]tiffEntry, n)
	for i := range entries {
		entries[i] = parseEntry(raw[i*entrySize:(i+1)*entrySize], bo, bigTIFF)
	}
	for i := range entries {
		if err := resolveEntry(r, bo, &entries[i], bigTIFF); err != nil {
			return nil, fmt.Errorf("resolving entry tag %d: %w", entries[i].Tag, err)
		}
	}
	return entries, nil
}

func parseEntry(buf []byte, bo binary.ByteOrder, bigTIFF bool) tiffEntry {
	e := tiffEntry{Tag: bo.Uint16(buf[0:2]), DataType: bo.Uint16(buf[2:4])}
	if bigTIFF {
		e.Count = bo.Uint64(buf[4:12])
		e.Value = append([]byte(nil), buf[12:20]...)
	} else {
		e.Count = uint64(bo.Uint32(buf[4:8]))
		e.Value = append([]byte(nil), buf[8:12]...)
	}
	return e
}

func dataTypeSize(dt uint16) int {
	switch dt {
	case dtByte, dtASCII, dtSByte, dtUndef:
		return 1
	case dtShort, dtSShort:
		return 2
	case dtLong, dtSLong, dtFloat:
		return 4
	case dtRational, dtSRational, dtDouble, dtLong8, dtSLong8, dtIFD8:
		return 8
	default:
		return 1
	}
}

// resolveEntry replaces the value of entries stored out of line with the
// referenced bytes.
func resolveEntry(r io.ReadSeeker, bo binary.ByteOrder, e *tiffEntry, bigTIFF bool) error {
	size := int(e.Count) * dataTypeSize(e.DataType)
	inline := 4
	if bigTIFF {
		inline = 8
	}
	if size <= inline {
		return nil
	}

	var off uint64
	if bigTIFF {
		off = bo.Uint64(e.Value)
	} else {
		off = uint64(bo.Uint32(e.Value))
	}
	if _, err := r.Seek(int64(off), io.SeekStart); err != nil {
		return err
	}
	data := make([]byte, size)
	if _, err := io.ReadFull(r, data); err != nil {
		return err
	}
	e.Value = data
	return nil
}

func buildIFD(entries []tiffEntry, bo binary.ByteOrder) (*ifd, error) {
	d := &ifd{SamplesPerPixel: 1, PlanarConfig: 1, Predictor: 1, Compression: compressionNone}
	var stripOffsets, stripCounts, tileOffsets, tileCounts []uint64
	for _, e := range entries {
		switch e.Tag {
		case tagImageWidth:
			d.Width = uint32(entryUint(e, bo, 0))
		case tagImageLength:
			d.Height = uint32(entryUint(e, bo, 0))
		case tagBitsPerSample:
			d.BitsPerSample = uint16(entryUint(e, bo, 0))
		case tagSamplesPerPixel:
			d.SamplesPerPixel = uint16(entryUint(e, bo, 0))
		case tagSampleFormat:
			d.SampleFormat = uint16(entryUint(e, bo, 0))
		case tagCompression:
			d.Compression = uint16(entryUint(e, bo, 0))
		case tagPredictor:
			d.Predictor = uint16(entryUint(e, bo, 0))
		case tagPlanarConfig:
			d.PlanarConfig = uint16(entryUint(e, bo, 0))
		case tagRowsPerStrip:
			d.RowsPerStrip = uint32(entryUint(e, bo, 0))
		case tagTileWidth:
			d.TileWidth = uint32(entryUint(e, bo, 0))
		case tagTileLength:
			d.TileHeight = uint32(entryUint(e, bo, 0))
		case tagStripOffsets:
			stripOffsets = entryUints(e, bo)
		case tagStripByteCounts:
			stripCounts = entryUints(e, bo)
		case tagTileOffsets:
			tileOffsets = entryUints(e, bo)
		case tagTileByteCounts:
			tileCounts = entryUints(e, bo)
		case tagGDALNoData:
			s := strings.TrimSpace(strings.TrimRight(string(e.Value[:min(int(e.Count), len(e.Value))]), "\x00"))
			if v, err := strconv.ParseFloat(s, 64); err == nil {
				d.NoData, d.HasNoData = v, true
			}
		}
	}

	if d.Width == 0 || d.Height == 0 {
		return nil, fmt.Errorf("image extent %dx%d", d.Width, d.Height)
	}
	if d.tiled() {
		d.Offsets, d.ByteCounts = tileOffsets, tileCounts
	} else {
		if d.RowsPerStrip == 0 || d.RowsPerStrip > d.Height {
			d.RowsPerStrip = d.Height
		}
		d.Offsets, d.ByteCounts = stripOffsets, stripCounts
	}
	if len(d.Offsets) == 0 || len(d.Offsets) != len(d.ByteCounts) {
		return nil, fmt.Errorf("have %d chunk offsets and %d byte counts", len(d.Offsets), len(d.ByteCounts))
	}
	return d, nil
}

// entryUint returns the i-th integer value of an entry.
func entryUint(e tiffEntry, bo binary.ByteOrder, i int) uint64 {
	switch e.DataType {
	case dtShort, dtSShort:
		return uint64(bo.Uint16(e.Value[i*2:]))
	case dtLong, dtSLong:
		return uint64(bo.Uint32(e.Value[i*4:]))
	case dtLong8, dtSLong8, dtIFD8:
		return bo.Uint64(e.Value[i*8:])
	default:
		return uint64(e.Value[i])
	}
}

func entryUints(e tiffEntry, bo binary.ByteOrder) []uint64 {
	out := make([]uint64, e.Count)
	for i := range out {
		out[i] = entryUint(e, bo, i)
	}
	return out
}

// sampleDecoder converts raw sample bytes into float64 values.
func sampleDecoder(d *ifd, bo binary.ByteOrder) (func([]byte) float64, int, error) {
	if d.SampleFormat != sampleFormatFloat {
		return nil, 0, fmt.Errorf("%w: sample format %d, want IEEE float", ErrUnsupported, d.SampleFormat)
	}
	switch d.BitsPerSample {
	case 32:
		return func(b []byte) float64 { return float64(math.Float32frombits(bo.Uint32(b))) }, 4, nil
	case 64:
		return func(b []byte) float64 { return math.Float64frombits(bo.Uint64(b)) }, 8, nil
	default:
		return nil, 0, fmt.Errorf("%w: %d-bit float samples", ErrUnsupported, d.BitsPerSample)
	}
}
