package inspect

import (
	"fmt"
	"image"

	"github.com/bmharper/cimg/v2"
	"github.com/fogleman/gg"
	"golang.org/x/image/font/basicfont"
)

const (
	boxLineWidth  = 2
	labelMarginY  = 5  // Distance between the label's baseline and the top of its box
	labelMinimumY = 15 // Keeps the label's baseline far enough from the top edge for the text to be visible
)

// Annotate returns a copy of frame with a box and a "<label> <confidence>" caption drawn for every detection.
// Detections are drawn in order, so later boxes are drawn over earlier ones.
// frame is not modified. If there are no detections, the result is an exact copy of frame.
// detections must already be filtered by the confidence floor.
func Annotate(frame *cimg.Image, detections []RawDetection) *cimg.Image {
	if len(detections) == 0 {
		return cloneRGB(frame)
	}

	canvas := toRGBA(frame)
	dc := gg.NewContextForRGBA(canvas)
	dc.SetFontFace(basicfont.Face7x13)
	for _, d := range detections {
		x1 := float64(d.Box.X)
		y1 := float64(d.Box.Y)
		dc.SetRGB255(0, 255, 0)
		dc.SetLineWidth(boxLineWidth)
		dc.DrawRectangle(x1, y1, float64(d.Box.Width), float64(d.Box.Height))
		dc.Stroke()

		dc.SetRGB255(255, 255, 255)
		dc.DrawString(Caption(d), x1, labelBaseline(d.Box.Y))
	}
	return fromRGBA(canvas)
}

// Caption is the text drawn next to a detection, eg "car 0.91"
func Caption(d RawDetection) string {
	return fmt.Sprintf("%v %.2f", d.Label, d.Confidence)
}

func labelBaseline(y1 int) float64 {
	return float64(max(labelMinimumY, y1-labelMarginY))
}

// Returns a packed 24-bit RGB copy of img
func cloneRGB(img *cimg.Image) *cimg.Image {
	nchan := img.NChan()
	dst := cimg.NewImage(img.Width, img.Height, cimg.PixelFormatRGB)
	for y := 0; y < img.Height; y++ {
		src := img.Pixels[y*img.Stride : y*img.Stride+img.Width*nchan]
		out := dst.Pixels[y*dst.Stride : y*dst.Stride+img.Width*3]
		if nchan == 3 {
			copy(out, src)
			continue
		}
		for x := 0; x < img.Width; x++ {
			r, g, b := pixelRGB(src, x, nchan)
			out[x*3] = r
			out[x*3+1] = g
			out[x*3+2] = b
		}
	}
	return dst
}

func toRGBA(img *cimg.Image) *image.RGBA {
	nchan := img.NChan()
	dst := image.NewRGBA(image.Rect(0, 0, img.Width, img.Height))
	for y := 0; y < img.Height; y++ {
		src := img.Pixels[y*img.Stride : y*img.Stride+img.Width*nchan]
		out := dst.Pix[y*dst.Stride : y*dst.Stride+img.Width*4]
		for x := 0; x < img.Width; x++ {
			r, g, b := pixelRGB(src, x, nchan)
			out[x*4] = r
			out[x*4+1] = g
			out[x*4+2] = b
			out[x*4+3] = 255
		}
	}
	return dst
}

func fromRGBA(src *image.RGBA) *cimg.Image {
	width := src.Rect.Dx()
	height := src.Rect.Dy()
	dst := cimg.NewImage(width, height, cimg.PixelFormatRGB)
	for y := 0; y < height; y++ {
		in := src.Pix[y*src.Stride : y*src.Stride+width*4]
		out := dst.Pixels[y*dst.Stride : y*dst.Stride+width*3]
		for x := 0; x < width; x++ {
			out[x*3] = in[x*4]
			out[x*3+1] = in[x*4+1]
			out[x*3+2] = in[x*4+2]
		}
	}
	return dst
}

// Frames are RGB, RGBA, or grayscale
func pixelRGB(row []byte, x, nchan int) (r, g, b byte) {
	switch nchan {
	case 1:
		v := row[x]
		return v, v, v
	default:
		p := row[x*nchan:]
		return p[0], p[1], p[2]
	}
}
