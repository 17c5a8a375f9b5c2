package videox

import (
	"context"
	"fmt"
	"io"

	"github.com/bmharper/cimg/v2"
	"github.com/cyclopcam/vidinspect/pkg/iox"
	"github.com/cyclopcam/vidinspect/pkg/tempfiles"
)

// ExtractFirstFrame writes the video to a temporary file, decodes the first frame, and returns it.
// The decode session and the temporary file are released before returning, on every path.
// maxBytes limits the size of the video (zero means no limit).
func ExtractFirstFrame(ctx context.Context, decoder VideoDecoder, temp *tempfiles.TempFiles, video io.Reader, maxBytes int64) (*cimg.Image, error) {
	tempFile := temp.Get(".mp4")
	defer temp.Remove(tempFile)

	if _, err := iox.WriteStreamToFile(tempFile, video, maxBytes); err != nil {
		return nil, fmt.Errorf("Failed to store video: %w", err)
	}

	session, err := decoder.Open(ctx, tempFile)
	if err != nil {
		return nil, err
	}
	defer session.Close()

	img, err := session.ReadFrame(ctx)
	if err != nil {
		return nil, err
	}
	if img == nil {
		return nil, ErrNoFrame
	}
	return img, nil
}
