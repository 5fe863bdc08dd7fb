// Package ico reads and writes Windows icon containers.
//
// Decoding supports PNG payloads and 32-bit BGRA bitmaps directly; other
// bitmap depths are handed to golang.org/x/image/bmp. Encoding always
// stores a single PNG payload, which every browser accepts for favicons.
package ico

import (
	"bytes"
	"encoding/binary"
	"errors"
	"fmt"
	"image"
	"image/color"
	"image/png"
	"io"

	"golang.org/x/image/bmp"
)

// Header is the magic prefix of an icon file: reserved=0, type=1 (icon).
const Header = "\x00\x00\x01\x00"

const (
	headerLen = 6
	entryLen  = 16
	dibLen    = 40
	pngMagic  = "\x89PNG\r\n\x1a\n"
)

var (
	ErrFormat = errors.New("ico: invalid format")
	ErrEmpty  = errors.New("ico: no images in container")
)

func init() {
	image.RegisterFormat("ico", Header, Decode, DecodeConfig)
}

type entry struct {
	width  int
	height int
	bpp    uint16
	size   uint32
	offset uint32
}

func readDirectory(data []byte) ([]entry, error) {
	if len(data) < headerLen || string(data[:4]) != Header {
		return nil, ErrFormat
	}
	count := int(binary.LittleEndian.Uint16(data[4:]))
	if count == 0 {
		return nil, ErrEmpty
	}
	if len(data) < headerLen+count*entryLen {
		return nil, fmt.Errorf("%w: truncated directory", ErrFormat)
	}

	entries := make([]entry, 0, count)
	for i := 0; i < count; i++ {
		rec := data[headerLen+i*entryLen:]
		e := entry{
			width:  int(rec[0]),
			height: int(rec[1]),
			bpp:    binary.LittleEndian.Uint16(rec[6:]),
			size:   binary.LittleEndian.Uint32(rec[8:]),
			offset: binary.LittleEndian.Uint32(rec[12:]),
		}
		// A zero dimension means 256 pixels.
		if e.width == 0 {
			e.width = 256
		}
		if e.height == 0 {
			e.height = 256
		}
		if uint64(e.offset)+uint64(e.size) > uint64(len(data)) {
			return nil, fmt.Errorf("%w: entry %d out of range", ErrFormat, i)
		}
		entries = append(entries, e)
	}
	return entries, nil
}

// best picks the largest entry, preferring the deeper one on ties.
func best(entries []entry) entry {
	pick := entries[0]
	for _, e := range entries[1:] {
		if e.width*e.height > pick.width*pick.height ||
			(e.width*e.height == pick.width*pick.height && e.bpp > pick.bpp) {
			pick = e
		}
	}
	return pick
}

// Decode returns the largest image stored in the container.
func Decode(r io.Reader) (image.Image, error) {
	data, err := io.ReadAll(r)
	if err != nil {
		return nil, err
	}
	entries, err := readDirectory(data)
	if err != nil {
		return nil, err
	}
	e := best(entries)
	payload := data[e.offset : e.offset+e.size]

	if bytes.HasPrefix(payload, []byte(pngMagic)) {
		return png.Decode(bytes.NewReader(payload))
	}
	return decodeDIB(payload)
}

// DecodeConfig reports the dimensions of the largest stored image.
func DecodeConfig(r io.Reader) (image.Config, error) {
	data, err := io.ReadAll(r)
	if err != nil {
		return image.Config{}, err
	}
	entries, err := readDirectory(data)
	if err != nil {
		return image.Config{}, err
	}
	e := best(entries)
	payload := data[e.offset : e.offset+e.size]
	if bytes.HasPrefix(payload, []byte(pngMagic)) {
		return png.DecodeConfig(bytes.NewReader(payload))
	}
	return image.Config{ColorModel: color.NRGBAModel, Width: e.width, Height: e.height}, nil
}

// decodeDIB decodes a headerless bitmap. The stored height covers both the
// color rows and the AND mask, so it is twice the icon height.
func decodeDIB(dib []byte) (image.Image, error) {
	if len(dib) < dibLen {
		return nil, fmt.Errorf("%w: short bitmap header", ErrFormat)
	}
	infoLen := binary.LittleEndian.Uint32(dib[0:])
	width := int(int32(binary.LittleEndian.Uint32(dib[4:])))
	height := int(int32(binary.LittleEndian.Uint32(dib[8:]))) / 2
	bpp := binary.LittleEndian.Uint16(dib[14:])
	if width <= 0 || height <= 0 || infoLen < dibLen || int(infoLen) > len(dib) {
		return nil, fmt.Errorf("%w: bad bitmap dimensions", ErrFormat)
	}

	if bpp == 32 {
		return decodeBGRA(dib[infoLen:], width, height)
	}

	// Rebuild a complete .bmp file so x/image/bmp can read palette depths.
	paletteLen := 0
	if bpp <= 8 {
		colors := int(binary.LittleEndian.Uint32(dib[32:]))
		if colors == 0 {
			colors = 1 << bpp
		}
		paletteLen = colors * 4
	}
	patched := make([]byte, len(dib))
	copy(patched, dib)
	binary.LittleEndian.PutUint32(patched[8:], uint32(height))

	file := make([]byte, 14, 14+len(patched))
	file[0], file[1] = 'B', 'M'
	binary.LittleEndian.PutUint32(file[2:], uint32(14+len(patched)))
	binary.LittleEndian.PutUint32(file[10:], uint32(14+int(infoLen)+paletteLen))
	file = append(file, patched...)

	img, err := bmp.Decode(bytes.NewReader(file))
	if err != nil {
		return nil, fmt.Errorf("ico: bitmap payload: %w", err)
	}
	return img, nil
}

func decodeBGRA(pix []byte, width, height int) (image.Image, error) {
	stride := width * 4
	if len(pix) < stride*height {
		return nil, fmt.Errorf("%w: truncated pixel data", ErrFormat)
	}
	img := image.NewNRGBA(image.Rect(0, 0, width, height))
	for y := 0; y < height; y++ {
		// Rows are stored bottom-up.
		src := pix[(height-1-y)*stride:]
		dst := img.Pix[y*img.Stride:]
		for x := 0; x < width; x++ {
			b, g, r, a := src[x*4], src[x*4+1], src[x*4+2], src[x*4+3]
			dst[x*4], dst[x*4+1], dst[x*4+2], dst[x*4+3] = r, g, b, a
		}
	}
	return img, nil
}

// Wrap places PNG bytes of a width x height image in an icon container.
func Wrap(pngData []byte, width, height int) []byte {
	out := make([]byte, headerLen+entryLen+len(pngData))

	binary.LittleEndian.PutUint16(out[0:], 0)
	binary.LittleEndian.PutUint16(out[2:], 1)
	binary.LittleEndian.PutUint16(out[4:], 1)

	out[6] = dimension(width)
	out[7] = dimension(height)
	binary.LittleEndian.PutUint16(out[10:], 1)
	binary.LittleEndian.PutUint16(out[12:], 32)
	binary.LittleEndian.PutUint32(out[14:], uint32(len(pngData)))
	binary.LittleEndian.PutUint32(out[18:], headerLen+entryLen)

	copy(out[headerLen+entryLen:], pngData)
	return out
}

func dimension(n int) byte {
	if n <= 0 || n >= 256 {
		return 0
	}
	return byte(n)
}

// Encode writes img as a single-entry PNG icon.
func Encode(w io.Writer, img image.Image) error {
	var buf bytes.Buffer
	if err := png.Encode(&buf, img); err != nil {
		return err
	}
	b := img.Bounds()
	_, err := w.Write(Wrap(buf.Bytes(), b.Dx(), b.Dy()))
	return err
}
