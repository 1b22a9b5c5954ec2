package inference

import (
	"bytes"
	"encoding/base64"
	"errors"
	"fmt"
	"image"
	_ "image/jpeg"
	"image/png"
	"strings"

	"golang.org/x/image/draw"
)

const (
	InputSize = 299
	MinSide   = 100
	// MaxPixels bounds the decoded size of an uploaded image.
	MaxPixels = 40_000_000
)

var errImageTooSmall = errors.New("image resolution too small")

var errImageTooLarge = errors.New("image resolution too large")

// DecodeImage strips an optional data URL prefix, decodes the base64 payload
// and parses it as JPEG or PNG. The header is checked against MaxPixels before
// any pixel data is allocated.
func DecodeImage(data string) (image.Image, error) {
	if strings.HasPrefix(data, "data:image") {
		if _, after, ok := strings.Cut(data, ","); ok {
			data = after
		}
	}
	raw, err := base64.StdEncoding.DecodeString(strings.TrimSpace(data))
	if err != nil {
		return nil, err
	}
	cfg, _, err := image.DecodeConfig(bytes.NewReader(raw))
	if err != nil {
		return nil, err
	}
	if cfg.Width <= 0 || cfg.Height <= 0 || int64(cfg.Width)*int64(cfg.Height) > MaxPixels {
		return nil, fmt.Errorf("%w: %dx%d", errImageTooLarge, cfg.Width, cfg.Height)
	}
	img, _, err := image.Decode(bytes.NewReader(raw))
	if err != nil {
		return nil, err
	}
	return img, nil
}

// Preprocess resizes img to the classifier input and scales every channel to
// [-1, 1], the Inception convention.
func Preprocess(img image.Image) ([][][]float32, error) {
	b := img.Bounds()
	if b.Dx() < MinSide || b.Dy() < MinSide {
		return nil, errImageTooSmall
	}
	dst := image.NewRGBA(image.Rect(0, 0, InputSize, InputSize))
	draw.CatmullRom.Scale(dst, dst.Bounds(), img, b, draw.Src, nil)

	tensor := make([][][]float32, InputSize)
	for y := 0; y < InputSize; y++ {
		row := make([][]float32, InputSize)
		for x := 0; x < InputSize; x++ {
			i := dst.PixOffset(x, y)
			px := dst.Pix[i : i+3 : i+3]
			row[x] = []float32{
				float32(px[0])/127.5 - 1,
				float32(px[1])/127.5 - 1,
				float32(px[2])/127.5 - 1,
			}
		}
		tensor[y] = row
	}
	return tensor, nil
}

// PNGDataURL encodes img as a data:image/png;base64 URL.
func PNGDataURL(img image.Image) (string, error) {
	var buf bytes.Buffer
	if err := png.Encode(&buf, img); err != nil {
		return "", err
	}
	return "data:image/png;base64," + base64.StdEncoding.EncodeToString(buf.Bytes()), nil
}
