package inspect

import (
	"bytes"
	"testing"

	"github.com/bmharper/cimg/v2"
	"github.com/cyclopcam/vidinspect/pkg/nn"
	"github.com/stretchr/testify/require"
)

// A frame with a horizontal gradient, so that copies can be told apart from blank images
func testFrame(width, height int) *cimg.Image {
	img := cimg.NewImage(width, height, cimg.PixelFormatRGB)
	for y := 0; y < height; y++ {
		row := img.Pixels[y*img.Stride:]
		for x := 0; x < width; x++ {
			row[x*3] = byte(x)
			row[x*3+1] = byte(y)
			row[x*3+2] = 7
		}
	}
	return img
}

func rgbAt(img *cimg.Image, x, y int) [3]byte {
	p := img.Pixels[y*img.Stride+x*3:]
	return [3]byte{p[0], p[1], p[2]}
}

func TestAnnotateNoDetections(t *testing.T) {
	frame := testFrame(64, 48)
	out := Annotate(frame, nil)
	require.Equal(t, frame.Width, out.Width)
	require.Equal(t, frame.Height, out.Height)
	require.Equal(t, frame.Pixels, out.Pixels)

	// The result is a copy, not the original
	out.Pixels[0] = 99
	require.Equal(t, byte(0), frame.Pixels[0])
}

func TestAnnotateDrawsBox(t *testing.T) {
	frame := cimg.NewImage(100, 100, cimg.PixelFormatRGB)
	original := bytes.Clone(frame.Pixels)
	dets := []RawDetection{
		{Label: "car", Confidence: 0.91, Box: nn.Rect{X: 10, Y: 30, Width: 50, Height: 40}},
	}
	out := Annotate(frame, dets)

	require.Equal(t, original, frame.Pixels, "source frame must not be modified")
	require.Equal(t, 100, out.Width)
	require.Equal(t, 100, out.Height)

	green := [3]byte{0, 255, 0}
	require.Equal(t, green, rgbAt(out, 10, 50)) // left edge
	require.Equal(t, green, rgbAt(out, 60, 50)) // right edge
	require.Equal(t, green, rgbAt(out, 30, 70)) // bottom edge
	require.Equal(t, [3]byte{0, 0, 0}, rgbAt(out, 35, 50))

	// Caption pixels are white, and sit above the box
	foundText := false
	for y := 0; y < 30; y++ {
		for x := 0; x < 100; x++ {
			if rgbAt(out, x, y) == [3]byte{255, 255, 255} {
				foundText = true
			}
		}
	}
	require.True(t, foundText)
}

func TestAnnotateDrawOrder(t *testing.T) {
	frame := cimg.NewImage(80, 80, cimg.PixelFormatRGB)
	// Same box twice. The second one draws over the first, so the result is the same as drawing one.
	box := nn.Rect{X: 20, Y: 20, Width: 30, Height: 30}
	one := Annotate(frame, []RawDetection{{Label: "dog", Confidence: 0.8, Box: box}})
	two := Annotate(frame, []RawDetection{{Label: "dog", Confidence: 0.8, Box: box}, {Label: "dog", Confidence: 0.8, Box: box}})
	require.Equal(t, rgbAt(one, 20, 35), rgbAt(two, 20, 35))
}

func TestCaption(t *testing.T) {
	require.Equal(t, "car 0.91", Caption(RawDetection{Label: "car", Confidence: 0.9149}))
	require.Equal(t, "person 0.50", Caption(RawDetection{Label: "person", Confidence: 0.5}))
}

func TestLabelBaseline(t *testing.T) {
	require.Equal(t, 15.0, labelBaseline(0))
	require.Equal(t, 15.0, labelBaseline(20))
	require.Equal(t, 95.0, labelBaseline(100))
}
