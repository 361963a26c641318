package tiffio

import (
	"bytes"
	"encoding/binary"
	"fmt"
	"io"
	"math"
	"os"
	"path/filepath"
	"sort"
)

type field struct {
	tag   uint16
	typ   uint16
	count uint32
	value []byte
}

// Encode writes frame as an uncompressed little-endian float32 TIFF.
// Extra ASCII tags are written alongside the baseline ones.
func Encode(w io.Writer, frame []float64, width, height int, tags map[uint16]string) error {
	if width <= 0 || height <= 0 {
		return fmt.Errorf("invalid image dimensions %dx%d", width, height)
	}
	if len(frame) != width*height {
		return fmt.Errorf("frame has %d pixels, expected %d", len(frame), width*height)
	}

	le := binary.LittleEndian
	pixelBytes := width * height * 4

	fields := []field{
		longField(tagImageWidth, uint32(width)),
		longField(tagImageLength, uint32(height)),
		shortField(tagBitsPerSample, 32),
		shortField(tagCompression, 1),
		shortField(tagPhotometric, 1),
		longField(tagStripOffsets, 8),
		shortField(tagSamplesPerPixel, 1),
		longField(tagRowsPerStrip, uint32(height)),
		longField(tagStripByteCounts, uint32(pixelBytes)),
		shortField(tagSampleFormat, sampleFloat),
	}
	for tag, val := range tags {
		for _, f := range fields {
			if f.tag == tag {
				return fmt.Errorf("tag %d is reserved", tag)
			}
		}
		fields = append(fields, field{
			tag:   tag,
			typ:   typeASCII,
			count: uint32(len(val) + 1),
			value: append([]byte(val), 0),
		})
	}
	sort.Slice(fields, func(i, j int) bool { return fields[i].tag < fields[j].tag })

	// Layout: header, pixels, out-of-line values, IFD
	var extra bytes.Buffer
	extraStart := 8 + pixelBytes
	offsets := make([]uint32, len(fields))
	for i, f := range fields {
		if len(f.value) > 4 {
			if (extraStart+extra.Len())%2 != 0 {
				extra.WriteByte(0)
			}
			offsets[i] = uint32(extraStart + extra.Len())
			extra.Write(f.value)
		}
	}
	ifdOffset := extraStart + extra.Len()
	if ifdOffset%2 != 0 {
		extra.WriteByte(0)
		ifdOffset++
	}

	out := bytes.NewBuffer(make([]byte, 0, ifdOffset+2+12*len(fields)+4))

	header := make([]byte, 8)
	copy(header, "II")
	le.PutUint16(header[2:], 42)
	le.PutUint32(header[4:], uint32(ifdOffset))
	out.Write(header)

	px := make([]byte, 4)
	for _, v := range frame {
		le.PutUint32(px, math.Float32bits(float32(v)))
		out.Write(px)
	}
	out.Write(extra.Bytes())

	entry := make([]byte, 12)
	countBuf := make([]byte, 2)
	le.PutUint16(countBuf, uint16(len(fields)))
	out.Write(countBuf)
	for i, f := range fields {
		for k := range entry {
			entry[k] = 0
		}
		le.PutUint16(entry[0:], f.tag)
		le.PutUint16(entry[2:], f.typ)
		le.PutUint32(entry[4:], f.count)
		if len(f.value) > 4 {
			le.PutUint32(entry[8:], offsets[i])
		} else {
			copy(entry[8:], f.value)
		}
		out.Write(entry)
	}
	out.Write([]byte{0, 0, 0, 0})

	_, err := w.Write(out.Bytes())
	return err
}

// WriteFile encodes frame to path, creating parent directories as needed
func WriteFile(path string, frame []float64, width, height int, tags map[uint16]string) error {
	if err := os.MkdirAll(filepath.Dir(path), 0755); err != nil {
		return fmt.Errorf("failed to create directory: %w", err)
	}
	file, err := os.Create(path)
	if err != nil {
		return fmt.Errorf("failed to create tiff file: %w", err)
	}
	if err := Encode(file, frame, width, height, tags); err != nil {
		file.Close()
		return fmt.Errorf("failed to encode %s: %w", path, err)
	}
	return file.Close()
}

func shortField(tag uint16, v uint16) field {
	b := make([]byte, 2)
	binary.LittleEndian.PutUint16(b, v)
	return field{tag: tag, typ: typeShort, count: 1, value: b}
}

func longField(tag uint16, v uint32) field {
	b := make([]byte, 4)
	binary.LittleEndian.PutUint32(b, v)
	return field{tag: tag, typ: typeLong, count: 1, value: b}
}
