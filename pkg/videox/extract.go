package videox

import (
	"bytes"
	"context"
	"errors"
	"fmt"
	"os/exec"
	"strconv"
	"strings"

	"github.com/bmharper/cimg/v2"
)

var ErrOpen = errors.New("Could not open video")
var ErrNoFrame = errors.New("Could not read first frame")

// ErrMissingApp means ffmpeg or ffprobe is not installed. This is a server fault, not a bad video.
var ErrMissingApp = errors.New("Required executable not found")

// VideoDecoder opens a video file for decoding.
type VideoDecoder interface {
	Open(ctx context.Context, filename string) (DecodeSession, error)
}

// DecodeSession is an open video. Close must be called on every exit path.
type DecodeSession interface {
	// ReadFrame returns the next decoded frame as a 24-bit RGB image
	ReadFrame(ctx context.Context) (*cimg.Image, error)
	Close() error
}

// FFmpegDecoder decodes videos by running the ffprobe and ffmpeg executables.
// It holds no state, so it is safe to use from multiple goroutines.
type FFmpegDecoder struct {
	FFmpegPath  string // Defaults to "ffmpeg" (looked up in PATH)
	FFprobePath string // Defaults to "ffprobe" (looked up in PATH)
}

func (d *FFmpegDecoder) ffmpeg() string {
	if d.FFmpegPath == "" {
		return "ffmpeg"
	}
	return d.FFmpegPath
}

func (d *FFmpegDecoder) ffprobe() string {
	if d.FFprobePath == "" {
		return "ffprobe"
	}
	return d.FFprobePath
}

// Open probes the file, and fails with ErrOpen if it is not a container with a video stream.
func (d *FFmpegDecoder) Open(ctx context.Context, filename string) (DecodeSession, error) {
	args := []string{
		"-v",
		"error",
		"-select_streams",
		"v:0",
		"-show_entries",
		"stream=width,height",
		"-of",
		"csv=p=0:s=x",
		filename,
	}
	out, err := RunAppCombinedOutput(ctx, d.ffprobe(), args)
	if errors.Is(err, ErrMissingApp) {
		return nil, err
	} else if err != nil {
		return nil, fmt.Errorf("%w: %w", ErrOpen, err)
	}
	width, height, err := parseVideoSize(string(out))
	if err != nil {
		return nil, fmt.Errorf("%w: %w", ErrOpen, err)
	}
	return &ffmpegSession{
		decoder:  d,
		filename: filename,
		width:    width,
		height:   height,
	}, nil
}

type ffmpegSession struct {
	decoder   *FFmpegDecoder
	filename  string
	width     int
	height    int
	nextFrame int
	closed    bool
}

// ReadFrame decodes the next frame of the video.
// Each call spawns ffmpeg, so this is only intended for reading a handful of frames.
func (s *ffmpegSession) ReadFrame(ctx context.Context) (*cimg.Image, error) {
	if s.closed {
		return nil, errors.New("ReadFrame called on closed session")
	}
	args := []string{
		"-v",
		"error",
		"-i",
		s.filename,
		"-map",
		"0:v:0",
	}
	if s.nextFrame != 0 {
		args = append(args, "-vf", fmt.Sprintf("select=eq(n\\,%v)", s.nextFrame))
	}
	args = append(args,
		"-frames:v",
		"1",
		"-f",
		"image2pipe",
		"-c:v",
		"mjpeg",
		"-q:v",
		"2",
		"-",
	)
	jpg, err := RunAppOutput(ctx, s.decoder.ffmpeg(), args)
	if errors.Is(err, ErrMissingApp) {
		return nil, err
	} else if err != nil {
		return nil, fmt.Errorf("%w: %w", ErrNoFrame, err)
	}
	if len(jpg) == 0 {
		return nil, ErrNoFrame
	}
	img, err := cimg.Decompress(jpg)
	if err != nil {
		return nil, fmt.Errorf("%w: %w", ErrNoFrame, err)
	}
	s.nextFrame++
	if img.NChan() == 3 {
		return img, nil
	}
	return img.ToRGB(), nil
}

func (s *ffmpegSession) Close() error {
	s.closed = true
	return nil
}

// Parse ffprobe's "WIDTHxHEIGHT" output.
// ffprobe sometimes emits warnings before the line we want, so we take the first line that parses.
func parseVideoSize(out string) (int, int, error) {
	for _, line := range strings.Split(out, "\n") {
		line = strings.TrimSpace(line)
		// Some containers produce a trailing 'x' separator, eg "320x240x"
		line = strings.TrimSuffix(line, "x")
		parts := strings.Split(line, "x")
		if len(parts) != 2 {
			continue
		}
		width, errW := strconv.Atoi(parts[0])
		height, errH := strconv.Atoi(parts[1])
		if errW == nil && errH == nil && width > 0 && height > 0 {
			return width, height, nil
		}
	}
	return 0, 0, fmt.Errorf("No video stream found (ffprobe output: %v)", strings.TrimSpace(out))
}

// app_name is an executable, such as "ffmpeg" or "ffprobe"
// args must not include the executable name as the first parameter
// Returns the string output from exec.Cmd's "CombinedOutput" method.
func RunAppCombinedOutput(ctx context.Context, app_name string, args []string) ([]byte, error) {
	app_path, err := exec.LookPath(app_name)
	if err != nil {
		return nil, fmt.Errorf("%w: Unable to find '%v' in your path (%w)", ErrMissingApp, app_name, err)
	}
	cmd := exec.CommandContext(ctx, app_path, args...)
	out, err := cmd.CombinedOutput()
	if err != nil {
		outStr := ""
		if out != nil {
			outStr = string(out)
		}
		return nil, fmt.Errorf("%v execution failed: %w (%v)", app_name, err, outStr)
	}
	return out, nil
}

// Same as RunAppCombinedOutput, but only stdout is returned. stderr is included in the error message.
func RunAppOutput(ctx context.Context, app_name string, args []string) ([]byte, error) {
	app_path, err := exec.LookPath(app_name)
	if err != nil {
		return nil, fmt.Errorf("%w: Unable to find '%v' in your path (%w)", ErrMissingApp, app_name, err)
	}
	cmd := exec.CommandContext(ctx, app_path, args...)
	stderr := bytes.Buffer{}
	cmd.Stderr = &stderr
	out, err := cmd.Output()
	if err != nil {
		return nil, fmt.Errorf("%v execution failed: %w (%v)", app_name, err, strings.TrimSpace(stderr.String()))
	}
	return out, nil
}
