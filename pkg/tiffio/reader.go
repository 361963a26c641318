// Package tiffio reads and writes the single-channel TIFF radiographs
// produced by neutron imaging detectors, including the instrument metadata
// stored in private ASCII tags.
package tiffio

import (
	"bytes"
	"encoding/binary"
	"errors"
	"fmt"
	"image"
	"image/color"
	"io"
	"math"
	"os"

	xtiff "golang.org/x/image/tiff"
)

// Baseline tag numbers used by the reader and the writer
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
	tagSampleFormat    = 339
)

// TIFF field types
const (
	typeByte  = 1
	typeASCII = 2
	typeShort = 3
	typeLong  = 4
)

// Sample formats
const (
	sampleUint  = 1
	sampleInt   = 2
	sampleFloat = 3
)

var typeSizes = map[uint16]int{
	1: 1, 2: 1, 3: 2, 4: 4, 5: 8, 6: 1, 7: 1, 8: 2, 9: 4, 10: 8, 11: 4, 12: 8,
}

// ErrNotTIFF is returned when the data does not start with a TIFF header
var ErrNotTIFF = errors.New("not a TIFF file")

// Image is a decoded single-channel frame
type Image struct {
	// Width and Height are the frame dimensions in pixels
	Width, Height int

	// Pix holds the samples in row-major order
	Pix []float64

	// Tags holds every ASCII tag of the first IFD
	Tags map[uint16]string
}

// directory is the subset of the first IFD needed for decoding
type directory struct {
	width, height   int
	bitsPerSample   int
	sampleFormat    int
	samplesPerPixel int
	compression     int
	stripOffsets    []uint64
	stripByteCounts []uint64
	ascii           map[uint16]string
}

// ReadFile decodes the TIFF file at path
func ReadFile(path string) (*Image, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, err
	}
	img, err := decodeBytes(data)
	if err != nil {
		return nil, fmt.Errorf("%s: %w", path, err)
	}
	return img, nil
}

// Decode reads a TIFF image from r
func Decode(r io.Reader) (*Image, error) {
	data, err := io.ReadAll(r)
	if err != nil {
		return nil, err
	}
	return decodeBytes(data)
}

func decodeBytes(data []byte) (*Image, error) {
	order, dir, err := parseDirectory(data)
	if err != nil {
		return nil, err
	}

	img := &Image{Width: dir.width, Height: dir.height, Tags: dir.ascii}

	// Compressed or multi-channel data goes through x/image/tiff
	if dir.compression != 1 || dir.samplesPerPixel != 1 {
		decoded, err := xtiff.Decode(bytes.NewReader(data))
		if err != nil {
			return nil, err
		}
		img.Pix = imageToFloat(decoded)
		return img, nil
	}

	pix, err := readStrips(data, order, dir)
	if err != nil {
		return nil, err
	}
	img.Pix = pix
	return img, nil
}

// parseDirectory reads the header and the first IFD
func parseDirectory(data []byte) (binary.ByteOrder, *directory, error) {
	if len(data) < 8 {
		return nil, nil, ErrNotTIFF
	}

	var order binary.ByteOrder
	switch string(data[0:2]) {
	case "II":
		order = binary.LittleEndian
	case "MM":
		order = binary.BigEndian
	default:
		return nil, nil, ErrNotTIFF
	}
	if order.Uint16(data[2:4]) != 42 {
		return nil, nil, ErrNotTIFF
	}

	offset := int(order.Uint32(data[4:8]))
	if offset+2 > len(data) {
		return nil, nil, fmt.Errorf("IFD offset %d beyond end of file", offset)
	}
	count := int(order.Uint16(data[offset : offset+2]))
	if offset+2+count*12 > len(data) {
		return nil, nil, fmt.Errorf("truncated IFD")
	}

	dir := &directory{
		bitsPerSample:   1,
		sampleFormat:    sampleUint,
		samplesPerPixel: 1,
		compression:     1,
		ascii:           make(map[uint16]string),
	}

	for i := 0; i < count; i++ {
		entry := data[offset+2+i*12 : offset+2+(i+1)*12]
		tag := order.Uint16(entry[0:2])
		typ := order.Uint16(entry[2:4])
		n := int(order.Uint32(entry[4:8]))

		raw, err := entryBytes(data, order, entry, typ, n)
		if err != nil {
			return nil, nil, fmt.Errorf("tag %d: %w", tag, err)
		}

		if typ == typeASCII {
			dir.ascii[tag] = string(bytes.TrimRight(raw, "\x00"))
			continue
		}

		vals := entryInts(order, typ, raw)
		if len(vals) == 0 {
			continue
		}

		switch tag {
		case tagImageWidth:
			dir.width = int(vals[0])
		case tagImageLength:
			dir.height = int(vals[0])
		case tagBitsPerSample:
			dir.bitsPerSample = int(vals[0])
		case tagCompression:
			dir.compression = int(vals[0])
		case tagSamplesPerPixel:
			dir.samplesPerPixel = int(vals[0])
		case tagSampleFormat:
			dir.sampleFormat = int(vals[0])
		case tagStripOffsets:
			dir.stripOffsets = vals
		case tagStripByteCounts:
			dir.stripByteCounts = vals
		}
	}

	if dir.width <= 0 || dir.height <= 0 {
		return nil, nil, fmt.Errorf("invalid image dimensions %dx%d", dir.width, dir.height)
	}
	return order, dir, nil
}

// entryBytes returns the raw value bytes of an IFD entry, following the
// offset when they do not fit in the entry itself
func entryBytes(data []byte, order binary.ByteOrder, entry []byte, typ uint16, n int) ([]byte, error) {
	size, ok := typeSizes[typ]
	if !ok {
		return nil, nil
	}
	total := size * n
	if total <= 4 {
		return entry[8 : 8+total], nil
	}
	off := int(order.Uint32(entry[8:12]))
	if off < 0 || off+total > len(data) {
		return nil, fmt.Errorf("value offset %d beyond end of file", off)
	}
	return data[off : off+total], nil
}

// entryInts decodes BYTE, SHORT and LONG values
func entryInts(order binary.ByteOrder, typ uint16, raw []byte) []uint64 {
	var vals []uint64
	switch typ {
	case typeByte:
		for _, b := range raw {
			vals = append(vals, uint64(b))
		}
	case typeShort:
		for i := 0; i+2 <= len(raw); i += 2 {
			vals = append(vals, uint64(order.Uint16(raw[i:])))
		}
	case typeLong:
		for i := 0; i+4 <= len(raw); i += 4 {
			vals = append(vals, uint64(order.Uint32(raw[i:])))
		}
	}
	return vals
}

// readStrips decodes uncompressed single-channel strips into float64
func readStrips(data []byte, order binary.ByteOrder, dir *directory) ([]float64, error) {
	if len(dir.stripOffsets) == 0 || len(dir.stripOffsets) != len(dir.stripByteCounts) {
		return nil, fmt.Errorf("missing or inconsistent strip offsets")
	}

	bytesPerSample := dir.bitsPerSample / 8
	if dir.bitsPerSample%8 != 0 || bytesPerSample == 0 {
		return nil, fmt.Errorf("unsupported bits per sample %d", dir.bitsPerSample)
	}
	size := uint64(len(data))
	if uint64(dir.width)*uint64(dir.height)*uint64(bytesPerSample) > size {
		return nil, fmt.Errorf("image data truncated: %dx%d frame larger than file", dir.width, dir.height)
	}
	need := dir.width * dir.height * bytesPerSample

	buf := make([]byte, 0, need)
	for i, off := range dir.stripOffsets {
		count := dir.stripByteCounts[i]
		if off > size || count > size-off {
			return nil, fmt.Errorf("strip %d beyond end of file", i)
		}
		buf = append(buf, data[off:off+count]...)
	}
	if len(buf) < need {
		return nil, fmt.Errorf("image data truncated: have %d bytes, need %d", len(buf), need)
	}

	n := dir.width * dir.height
	pix := make([]float64, n)
	switch {
	case dir.bitsPerSample == 8 && dir.sampleFormat == sampleInt:
		for i := 0; i < n; i++ {
			pix[i] = float64(int8(buf[i]))
		}
	case dir.bitsPerSample == 8:
		for i := 0; i < n; i++ {
			pix[i] = float64(buf[i])
		}
	case dir.bitsPerSample == 16 && dir.sampleFormat == sampleInt:
		for i := 0; i < n; i++ {
			pix[i] = float64(int16(order.Uint16(buf[i*2:])))
		}
	case dir.bitsPerSample == 16:
		for i := 0; i < n; i++ {
			pix[i] = float64(order.Uint16(buf[i*2:]))
		}
	case dir.bitsPerSample == 32 && dir.sampleFormat == sampleFloat:
		for i := 0; i < n; i++ {
			pix[i] = float64(math.Float32frombits(order.Uint32(buf[i*4:])))
		}
	case dir.bitsPerSample == 32 && dir.sampleFormat == sampleInt:
		for i := 0; i < n; i++ {
			pix[i] = float64(int32(order.Uint32(buf[i*4:])))
		}
	case dir.bitsPerSample == 32:
		for i := 0; i < n; i++ {
			pix[i] = float64(order.Uint32(buf[i*4:]))
		}
	case dir.bitsPerSample == 64 && dir.sampleFormat == sampleFloat:
		for i := 0; i < n; i++ {
			pix[i] = math.Float64frombits(order.Uint64(buf[i*8:]))
		}
	default:
		return nil, fmt.Errorf("unsupported sample layout: %d bits, format %d", dir.bitsPerSample, dir.sampleFormat)
	}
	return pix, nil
}

// imageToFloat converts a decoded image to its raw gray sample values, so
// compressed and uncompressed files of one bit depth decode alike. Color
// images fall back to 16-bit gray levels.
func imageToFloat(img image.Image) []float64 {
	bounds := img.Bounds()
	width := bounds.Dx()
	height := bounds.Dy()
	result := make([]float64, width*height)

	switch src := img.(type) {
	case *image.Gray:
		for y := 0; y < height; y++ {
			row := src.Pix[y*src.Stride : y*src.Stride+width]
			for x, v := range row {
				result[y*width+x] = float64(v)
			}
		}
		return result
	case *image.Gray16:
		for y := 0; y < height; y++ {
			row := src.Pix[y*src.Stride : y*src.Stride+2*width]
			for x := 0; x < width; x++ {
				result[y*width+x] = float64(uint16(row[2*x])<<8 | uint16(row[2*x+1]))
			}
		}
		return result
	}

	for y := 0; y < height; y++ {
		for x := 0; x < width; x++ {
			g := color.Gray16Model.Convert(img.At(bounds.Min.X+x, bounds.Min.Y+y)).(color.Gray16)
			result[y*width+x] = float64(g.Y)
		}
	}
	return result
}
