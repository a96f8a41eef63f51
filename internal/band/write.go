package band

import (
	"bufio"
	"encoding/binary"
	"fmt"
	"io"
	"math"
	"os"
	"sort"
)

// WriteFloat32 writes data as an uncompressed single-strip float32 TIFF.
// NaN samples are written unchanged.
func WriteFloat32(path string, width, height int, data []float64) error {
	if width <= 0 || height <= 0 || len(data) != width*height {
		return fmt.Errorf("writing %s: have %d samples for %dx%d", path, len(data), width, height)
	}
	strip := make([]byte, 4*len(data))
	for i, v := range data {
		binary.LittleEndian.PutUint32(strip[4*i:], math.Float32bits(float32(v)))
	}

	f, err := os.Create(path)
	if err != nil {
		return fmt.Errorf("creating %s: %w", path, err)
	}
	w := bufio.NewWriter(f)
	if err := encodeStrips(w, stripLayout{
		width:        width,
		height:       height,
		rowsPerStrip: height,
		bits:         32,
		compression:  compressionNone,
	}, [][]byte{strip}); err != nil {
		f.Close()
		return fmt.Errorf("writing %s: %w", path, err)
	}
	if err := w.Flush(); err != nil {
		f.Close()
		return fmt.Errorf("writing %s: %w", path, err)
	}
	return f.Close()
}

// stripLayout describes a little-endian single-band float TIFF. Chunks are
// tiles when tileWidth and tileHeight are set, strips otherwise.
type stripLayout struct {
	width, height int
	rowsPerStrip  int
	tileWidth     int
	tileHeight    int
	bits          int
	compression   uint16
	noData        string
}

type outEntry struct {
	tag, typ uint16
	count    uint32
	data     []byte
}

// encodeStrips writes a classic TIFF with the given, already compressed,
// chunks followed by its directory.
func encodeStrips(w io.Writer, l stripLayout, strips [][]byte) error {
	le := binary.LittleEndian
	short := func(tag uint16, v uint16) outEntry {
		b := make([]byte, 2)
		le.PutUint16(b, v)
		return outEntry{tag, dtShort, 1, b}
	}
	longs := func(tag uint16, vs ...uint32) outEntry {
		b := make([]byte, 4*len(vs))
		for i, v := range vs {
			le.PutUint32(b[4*i:], v)
		}
		return outEntry{tag, dtLong, uint32(len(vs)), b}
	}

	offsets := make([]uint32, len(strips))
	counts := make([]uint32, len(strips))
	pos := uint32(8)
	for i, s := range strips {
		offsets[i] = pos
		counts[i] = uint32(len(s))
		pos += uint32(len(s))
	}
	if pos%2 == 1 {
		pos++
	}
	ifdOffset := pos

	entries := []outEntry{
		longs(tagImageWidth, uint32(l.width)),
		longs(tagImageLength, uint32(l.height)),
		short(tagBitsPerSample, uint16(l.bits)),
		short(tagCompression, l.compression),
		short(tagPhotometric, 1),
		short(tagSamplesPerPixel, 1),
		short(tagPlanarConfig, 1),
		short(tagSampleFormat, sampleFormatFloat),
	}
	if l.tileWidth > 0 && l.tileHeight > 0 {
		entries = append(entries,
			longs(tagTileWidth, uint32(l.tileWidth)),
			longs(tagTileLength, uint32(l.tileHeight)),
			longs(tagTileOffsets, offsets...),
			longs(tagTileByteCounts, counts...))
	} else {
		entries = append(entries,
			longs(tagStripOffsets, offsets...),
			longs(tagRowsPerStrip, uint32(l.rowsPerStrip)),
			longs(tagStripByteCounts, counts...))
	}
	if l.noData != "" {
		s := append([]byte(l.noData), 0)
		entries = append(entries, outEntry{tagGDALNoData, dtASCII, uint32(len(s)), s})
	}
	sort.Slice(entries, func(i, j int) bool { return entries[i].tag < entries[j].tag })

	// Values that do not fit in an entry follow the directory.
	ext := ifdOffset + 2 + 12*uint32(len(entries)) + 4
	var extData []byte
	dir := make([]byte, 2, 2+12*len(entries)+4)
	le.PutUint16(dir, uint16(len(entries)))
	for _, e := range entries {
		var b [12]byte
		le.PutUint16(b[0:], e.tag)
		le.PutUint16(b[2:], e.typ)
		le.PutUint32(b[4:], e.count)
		if len(e.data) <= 4 {
			copy(b[8:], e.data)
		} else {
			le.PutUint32(b[8:], ext+uint32(len(extData)))
			extData = append(extData, e.data...)
			if len(extData)%2 == 1 {
				extData = append(extData, 0)
			}
		}
		dir = append(dir, b[:]...)
	}
	dir = append(dir, 0, 0, 0, 0)

	header := []byte{'I', 'I', 42, 0, 0, 0, 0, 0}
	le.PutUint32(header[4:], ifdOffset)
	if _, err := w.Write(header); err != nil {
		return err
	}
	written := uint32(8)
	for _, s := range strips {
		if _, err := w.Write(s); err != nil {
			return err
		}
		written += uint32(len(s))
	}
	if written < ifdOffset {
		if _, err := w.Write([]byte{0}); err != nil {
			return err
		}
	}
	if _, err := w.Write(dir); err != nil {
		return err
	}
	_, err := w.Write(extData)
	return err
}
