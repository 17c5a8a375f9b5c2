package iox

import (
	"errors"
	"fmt"
	"io"
	"os"

	"github.com/cyclopcam/vidinspect/pkg/kibi"
)

var ErrTooLarge = errors.New("Stream is too large")

// WriteStreamToFile copies src into a new file at dstFilename.
// If maxBytes is greater than zero, and src holds more than maxBytes, then ErrTooLarge is returned.
// On any failure, the partially written file is removed.
func WriteStreamToFile(dstFilename string, src io.Reader, maxBytes int64) (int64, error) {
	dstFile, err := os.Create(dstFilename)
	if err != nil {
		return 0, err
	}
	if maxBytes > 0 {
		src = io.LimitReader(src, maxBytes+1)
	}
	n, err := io.Copy(dstFile, src)
	if err == nil && maxBytes > 0 && n > maxBytes {
		err = fmt.Errorf("%w (limit %v)", ErrTooLarge, kibi.FormatBytes(maxBytes))
	}
	if cerr := dstFile.Close(); err == nil {
		err = cerr
	}
	if err != nil {
		os.Remove(dstFilename)
		return 0, err
	}
	return n, nil
}
