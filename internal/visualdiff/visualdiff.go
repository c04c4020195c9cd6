// Package visualdiff compares before and after screenshots of an interaction.
package visualdiff

import (
	"errors"
	"fmt"
	"image"
	"image/color"
	_ "image/jpeg"
	_ "image/png"
	"os"

	"github.com/nfnt/resize"

	"github.com/xkilldash9x/uiprobe-cli/api/schemas"
)

// DefaultThreshold is the normalized mean difference above which two images
// count as visually different.
const DefaultThreshold = 0.05

// ErrEmptyImage is returned for images with no pixels.
var ErrEmptyImage = errors.New("image has no pixels")

// Compare decodes both screenshots and reports whether they differ by more
// than threshold. A missing file or any decoding or comparison failure yields
// Undetermined, never False.
func Compare(before, after string, threshold float64) schemas.TriState {
	if before == "" || after == "" {
		return schemas.Undetermined
	}
	a, err := decode(before)
	if err != nil {
		return schemas.Undetermined
	}
	b, err := decode(after)
	if err != nil {
		return schemas.Undetermined
	}
	return CompareImages(a, b, threshold)
}

// CompareImages is Compare over decoded images.
func CompareImages(before, after image.Image, threshold float64) (result schemas.TriState) {
	defer func() {
		if recover() != nil {
			result = schemas.Undetermined
		}
	}()
	ratio, err := Difference(before, after)
	if err != nil {
		return schemas.Undetermined
	}
	return schemas.TriStateOf(ratio > threshold)
}

// Difference is the mean absolute per-channel RGB difference of the two
// images on a 0 to 1 scale. after is resized to the dimensions of before
// with bilinear interpolation when they differ.
func Difference(before, after image.Image) (float64, error) {
	if before == nil || after == nil {
		return 0, ErrEmptyImage
	}
	bb := before.Bounds()
	w, h := bb.Dx(), bb.Dy()
	if w <= 0 || h <= 0 || after.Bounds().Empty() {
		return 0, ErrEmptyImage
	}
	if ab := after.Bounds(); ab.Dx() != w || ab.Dy() != h {
		after = resize.Resize(uint(w), uint(h), after, resize.Bilinear)
	}
	ab := after.Bounds()

	var sum uint64
	for y := 0; y < h; y++ {
		for x := 0; x < w; x++ {
			p := rgb(before.At(bb.Min.X+x, bb.Min.Y+y))
			q := rgb(after.At(ab.Min.X+x, ab.Min.Y+y))
			sum += absDiff(p.R, q.R) + absDiff(p.G, q.G) + absDiff(p.B, q.B)
		}
	}
	return float64(sum) / float64(uint64(w)*uint64(h)*3*255), nil
}

func decode(path string) (image.Image, error) {
	f, err := os.Open(path)
	if err != nil {
		return nil, err
	}
	defer f.Close()
	img, _, err := image.Decode(f)
	if err != nil {
		return nil, fmt.Errorf("failed to decode %s: %w", path, err)
	}
	return img, nil
}

// rgb drops alpha without premultiplying, as a screenshot converted to RGB would.
func rgb(c color.Color) color.NRGBA {
	return color.NRGBAModel.Convert(c).(color.NRGBA)
}

func absDiff(a, b uint8) uint64 {
	if a > b {
		return uint64(a - b)
	}
	return uint64(b - a)
}
