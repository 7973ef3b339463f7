package preprocess

import (
	"bytes"
	"encoding/binary"
	"errors"
	"hash/crc32"
	"image"
	"image/color"
	"image/jpeg"
	"image/png"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func encodePNG(t *testing.T, img image.Image) []byte {
	t.Helper()
	var buf bytes.Buffer
	require.NoError(t, png.Encode(&buf, img))
	return buf.Bytes()
}

func uniform(img setter, w, h int, c color.Color) {
	for y := 0; y < h; y++ {
		for x := 0; x < w; x++ {
			img.Set(x, y, c)
		}
	}
}

type setter interface {
	Set(x, y int, c color.Color)
}

func TestImage(t *testing.T) {
	rgba := image.NewNRGBA(image.Rect(0, 0, 64, 40))
	uniform(rgba, 64, 40, color.NRGBA{R: 255, G: 51, B: 0, A: 255})

	translucent := image.NewNRGBA(image.Rect(0, 0, 20, 20))
	uniform(translucent, 20, 20, color.NRGBA{R: 102, G: 204, B: 51, A: 64})

	gray := image.NewGray(image.Rect(0, 0, 300, 200))
	uniform(gray, 300, 200, color.Gray{Y: 51})

	tests := []struct {
		name string
		data []byte
		want [3]float32
	}{
		{name: "rgb png", data: encodePNG(t, rgba), want: [3]float32{1, 0.2, 0}},
		{name: "rgba alpha dropped", data: encodePNG(t, translucent), want: [3]float32{0.4, 0.8, 0.2}},
		{name: "grayscale expanded", data: encodePNG(t, gray), want: [3]float32{0.2, 0.2, 0.2}},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			got, err := Image(tt.data, ImageSize, 0)
			require.NoError(t, err)
			require.Len(t, got, ImageSize*ImageSize*Channels)
			for i := 0; i < len(got); i += Channels {
				assert.InDelta(t, tt.want[0], got[i], 1e-6)
				assert.InDelta(t, tt.want[1], got[i+1], 1e-6)
				assert.InDelta(t, tt.want[2], got[i+2], 1e-6)
			}
		})
	}
}

func TestImageJPEGRange(t *testing.T) {
	src := image.NewRGBA(image.Rect(0, 0, 512, 256))
	for y := 0; y < 256; y++ {
		for x := 0; x < 512; x++ {
			src.Set(x, y, color.RGBA{R: uint8(x / 2), G: uint8(y), B: uint8((x + y) / 3), A: 255})
		}
	}
	var buf bytes.Buffer
	require.NoError(t, jpeg.Encode(&buf, src, nil))

	got, err := Image(buf.Bytes(), ImageSize, 0)
	require.NoError(t, err)
	require.Len(t, got, ImageSize*ImageSize*Channels)
	for _, v := range got {
		assert.GreaterOrEqual(t, v, float32(0))
		assert.LessOrEqual(t, v, float32(1))
	}
}

func TestImageDecodeError(t *testing.T) {
	tests := []struct {
		name string
		data []byte
	}{
		{name: "plain text", data: []byte("this is not an image")},
		{name: "empty", data: nil},
		{name: "truncated png", data: encodePNG(t, image.NewGray(image.Rect(0, 0, 8, 8)))[:20]},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			_, err := Image(tt.data, ImageSize, 0)
			require.Error(t, err)
			assert.True(t, errors.Is(err, ErrDecode))
		})
	}
}

// pngHeader returns a PNG signature followed by an IHDR chunk only, enough
// for image.DecodeConfig but with no pixel data.
func pngHeader(width, height uint32) []byte {
	var buf bytes.Buffer
	buf.WriteString("\x89PNG\r\n\x1a\n")

	ihdr := make([]byte, 13)
	binary.BigEndian.PutUint32(ihdr[0:4], width)
	binary.BigEndian.PutUint32(ihdr[4:8], height)
	ihdr[8] = 8 // bit depth
	ihdr[9] = 0 // grayscale

	chunk := append([]byte("IHDR"), ihdr...)
	binary.Write(&buf, binary.BigEndian, uint32(len(ihdr)))
	buf.Write(chunk)
	binary.Write(&buf, binary.BigEndian, crc32.ChecksumIEEE(chunk))
	return buf.Bytes()
}

func TestDecodePixelLimit(t *testing.T) {
	small := encodePNG(t, image.NewGray(image.Rect(0, 0, 32, 32)))

	tests := []struct {
		name      string
		data      []byte
		maxPixels int64
		wantErr   bool
	}{
		{name: "header only over default limit", data: pngHeader(20000, 20000), maxPixels: 0, wantErr: true},
		{name: "just over default limit", data: pngHeader(89478485, 3), maxPixels: 0, wantErr: true},
		{name: "over custom limit", data: small, maxPixels: 32*32 - 1, wantErr: true},
		{name: "at custom limit", data: small, maxPixels: 32 * 32, wantErr: false},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			img, err := Decode(tt.data, tt.maxPixels)
			if !tt.wantErr {
				require.NoError(t, err)
				assert.Equal(t, 32, img.Bounds().Dx())
				return
			}
			require.Error(t, err)
			assert.True(t, errors.Is(err, ErrDecode))
			assert.Contains(t, err.Error(), "exceeds")
		})
	}
}
