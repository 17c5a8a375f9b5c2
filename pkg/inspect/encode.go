package inspect

import (
	"encoding/base64"
	"fmt"

	"github.com/bmharper/cimg/v2"
)

const DefaultJPEGQuality = 85

// FrameEncoder turns an annotated frame into a string that can be embedded in JSON
type FrameEncoder interface {
	Encode(img *cimg.Image) (string, error)
}

// JPEGEncoder produces base64 encoded JPEG
type JPEGEncoder struct {
	Quality int // 1..100. Zero means DefaultJPEGQuality
}

func (e JPEGEncoder) Encode(img *cimg.Image) (string, error) {
	jpg, err := EncodeJPEG(img, e.Quality)
	if err != nil {
		return "", err
	}
	return base64.StdEncoding.EncodeToString(jpg), nil
}

// EncodeJPEG compresses img with 4:2:0 chroma subsampling
func EncodeJPEG(img *cimg.Image, quality int) ([]byte, error) {
	if quality == 0 {
		quality = DefaultJPEGQuality
	}
	if quality < 1 || quality > 100 {
		return nil, fmt.Errorf("Invalid JPEG quality %v", quality)
	}
	if img.Width == 0 || img.Height == 0 {
		return nil, fmt.Errorf("Cannot encode an empty image (%v x %v)", img.Width, img.Height)
	}
	jpg, err := cimg.Compress(img, cimg.MakeCompressParams(cimg.Sampling420, quality, 0))
	if err != nil {
		return nil, fmt.Errorf("JPEG compression failed: %w", err)
	}
	return jpg, nil
}
