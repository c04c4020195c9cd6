package visualdiff_test

import (
	"image"
	"image/color"
	"image/png"
	"os"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/xkilldash9x/uiprobe-cli/api/schemas"
	"github.com/xkilldash9x/uiprobe-cli/internal/visualdiff"
)

func solid(w, h int, c color.Color) *image.RGBA {
	img := image.NewRGBA(image.Rect(0, 0, w, h))
	for y := 0; y < h; y++ {
		for x := 0; x < w; x++ {
			img.Set(x, y, c)
		}
	}
	return img
}

// withBlackRows paints the first n rows of a white 10x10 image black.
func withBlackRows(n int) *image.RGBA {
	img := solid(10, 10, color.White)
	for y := 0; y < n; y++ {
		for x := 0; x < 10; x++ {
			img.Set(x, y, color.Black)
		}
	}
	return img
}

func writePNG(t *testing.T, img image.Image) string {
	t.Helper()
	f, err := os.CreateTemp(t.TempDir(), "shot-*.png")
	require.NoError(t, err)
	defer f.Close()
	require.NoError(t, png.Encode(f, img))
	return f.Name()
}

func TestDifference(t *testing.T) {
	white := solid(10, 10, color.White)

	d, err := visualdiff.Difference(white, white)
	require.NoError(t, err)
	assert.Zero(t, d)

	d, err = visualdiff.Difference(white, solid(10, 10, color.Black))
	require.NoError(t, err)
	assert.InDelta(t, 1.0, d, 1e-9)

	d, err = visualdiff.Difference(white, withBlackRows(1))
	require.NoError(t, err)
	assert.InDelta(t, 0.1, d, 1e-9)

	_, err = visualdiff.Difference(image.NewRGBA(image.Rect(0, 0, 0, 0)), white)
	assert.ErrorIs(t, err, visualdiff.ErrEmptyImage)
}

func TestCompareImagesThreshold(t *testing.T) {
	white := solid(10, 10, color.White)
	tests := []struct {
		name  string
		after image.Image
		want  schemas.TriState
	}{
		{"identical", white, schemas.False},
		{"ten percent changed", withBlackRows(1), schemas.True},
		{"inverted", solid(10, 10, color.Black), schemas.True},
		{"resized identical", solid(20, 20, color.White), schemas.False},
		{"empty after", image.NewRGBA(image.Rectangle{}), schemas.Undetermined},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			assert.Equal(t, tt.want, visualdiff.CompareImages(white, tt.after, visualdiff.DefaultThreshold))
		})
	}

	// Exactly at the threshold is not a change.
	assert.Equal(t, schemas.False, visualdiff.CompareImages(white, withBlackRows(1), 0.1))
}

func TestCompareFiles(t *testing.T) {
	before := writePNG(t, solid(8, 8, color.White))
	same := writePNG(t, solid(8, 8, color.White))
	changed := writePNG(t, solid(8, 8, color.Black))

	assert.Equal(t, schemas.False, visualdiff.Compare(before, same, visualdiff.DefaultThreshold))
	assert.Equal(t, schemas.True, visualdiff.Compare(before, changed, visualdiff.DefaultThreshold))
}

func TestCompareUndetermined(t *testing.T) {
	before := writePNG(t, solid(8, 8, color.White))
	corrupt := filepath.Join(t.TempDir(), "corrupt.png")
	require.NoError(t, os.WriteFile(corrupt, []byte("not an image"), 0o600))

	assert.Equal(t, schemas.Undetermined, visualdiff.Compare(before, filepath.Join(t.TempDir(), "missing.png"), 0.05))
	assert.Equal(t, schemas.Undetermined, visualdiff.Compare(before, corrupt, 0.05))
	assert.Equal(t, schemas.Undetermined, visualdiff.Compare("", before, 0.05))
}
