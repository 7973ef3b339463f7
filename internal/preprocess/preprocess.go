// Package preprocess turns uploaded image bytes into the model's input tensor.
package preprocess

import (
	"bytes"
	"errors"
	"fmt"
	"image"
	"image/color"
	_ "image/gif"
	_ "image/jpeg"
	_ "image/png"

	"github.com/nfnt/resize"
	_ "golang.org/x/image/bmp"
	_ "golang.org/x/image/tiff"
	_ "golang.org/x/image/webp"
)

const (
	ImageSize = 150
	Channels  = 3

	// DefaultMaxPixels matches the decompression bomb limit of common imaging
	// libraries (2 * 89478485 pixels).
	DefaultMaxPixels = int64(2 * 89478485)
)

var ErrDecode = errors.New("unsupported or corrupt image")

// Image decodes data and returns a (1, size, size, 3) float32 tensor in NHWC order.
// Images larger than maxPixels are rejected; maxPixels <= 0 means DefaultMaxPixels.
func Image(data []byte, size int, maxPixels int64) ([]float32, error) {
	img, err := Decode(data, maxPixels)
	if err != nil {
		return nil, err
	}
	return Tensor(img, size), nil
}

// Decode reads the image header first so oversized images fail before any
// pixel buffer is allocated.
func Decode(data []byte, maxPixels int64) (image.Image, error) {
	if maxPixels <= 0 {
		maxPixels = DefaultMaxPixels
	}
	cfg, _, err := image.DecodeConfig(bytes.NewReader(data))
	if err != nil {
		return nil, fmt.Errorf("%w: %v", ErrDecode, err)
	}
	if pixels := int64(cfg.Width) * int64(cfg.Height); pixels > maxPixels {
		return nil, fmt.Errorf("%w: %dx%d image exceeds %d pixels", ErrDecode, cfg.Width, cfg.Height, maxPixels)
	}

	img, _, err := image.Decode(bytes.NewReader(data))
	if err != nil {
		return nil, fmt.Errorf("%w: %v", ErrDecode, err)
	}
	return img, nil
}

// Tensor stretches img to size x size and scales each RGB sample to [0, 1].
// Alpha is dropped rather than composited.
func Tensor(img image.Image, size int) []float32 {
	resized := resize.Resize(uint(size), uint(size), toRGB(img), resize.Bicubic)

	bounds := resized.Bounds()
	data := make([]float32, 0, size*size*Channels)
	for y := bounds.Min.Y; y < bounds.Max.Y; y++ {
		for x := bounds.Min.X; x < bounds.Max.X; x++ {
			r, g, b, _ := resized.At(x, y).RGBA()
			data = append(data,
				float32(r>>8)/255.0,
				float32(g>>8)/255.0,
				float32(b>>8)/255.0,
			)
		}
	}
	return data
}

// toRGB copies img into an opaque RGBA image so later stages never see
// premultiplied or partially transparent pixels.
func toRGB(img image.Image) *image.RGBA {
	bounds := img.Bounds()
	dst := image.NewRGBA(image.Rect(0, 0, bounds.Dx(), bounds.Dy()))
	for y := bounds.Min.Y; y < bounds.Max.Y; y++ {
		for x := bounds.Min.X; x < bounds.Max.X; x++ {
			c := color.NRGBAModel.Convert(img.At(x, y)).(color.NRGBA)
			dst.SetRGBA(x-bounds.Min.X, y-bounds.Min.Y, color.RGBA{R: c.R, G: c.G, B: c.B, A: 0xff})
		}
	}
	return dst
}
