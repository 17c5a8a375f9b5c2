package main

import (
	"context"
	"encoding/base64"
	"encoding/json"
	"fmt"
	"os"
	"path/filepath"
	"time"

	"github.com/akamensky/argparse"
	"github.com/cyclopcam/logs"
	"github.com/cyclopcam/vidinspect/pkg/inspect"
	"github.com/cyclopcam/vidinspect/pkg/kibi"
	"github.com/cyclopcam/vidinspect/pkg/nn"
	"github.com/cyclopcam/vidinspect/pkg/nnload"
	"github.com/cyclopcam/vidinspect/pkg/tempfiles"
	"github.com/cyclopcam/vidinspect/pkg/videox"
)

type predictArgs struct {
	input   string
	output  string
	url     string
	variant string
	floor   float32
	maxSize string
	quality int
}

func main() {
	parser := argparse.NewParser("predict", "Detect objects in the first frame of a video file")
	input := parser.String("i", "input", &argparse.Options{Help: "Input video file", Required: true})
	output := parser.String("o", "output", &argparse.Options{Help: "Write the annotated first frame to this JPEG file", Default: ""})
	url := parser.String("u", "url", &argparse.Options{Help: "Inference server URL", Default: "http://localhost:8000"})
	variant := parser.Selector("", "variant", []string{"compact", "standard"}, &argparse.Options{Help: "Detector weights", Default: "standard"})
	floor := parser.Float("f", "floor", &argparse.Options{Help: "Confidence floor. 0 keeps every detection", Default: nn.DefaultProbabilityThreshold})
	maxSize := parser.String("", "maxsize", &argparse.Options{Help: "Reject videos larger than this, eg 256MB", Default: "1GB"})
	quality := parser.Int("q", "quality", &argparse.Options{Help: "JPEG quality of the annotated frame", Default: inspect.DefaultJPEGQuality})
	err := parser.Parse(os.Args)
	if err != nil {
		fmt.Print(parser.Usage(err))
		os.Exit(1)
	}

	logger, err := logs.NewLog()
	if err != nil {
		fmt.Fprintf(os.Stderr, "%v\n", err)
		os.Exit(1)
	}

	err = run(logger, predictArgs{
		input:   *input,
		output:  *output,
		url:     *url,
		variant: *variant,
		floor:   float32(*floor),
		maxSize: *maxSize,
		quality: *quality,
	})
	logger.Close()
	if err != nil {
		fmt.Fprintf(os.Stderr, "%v\n", err)
		os.Exit(1)
	}
}

// run inspects args.input and prints the result as JSON
func run(logger logs.Log, args predictArgs) error {
	modelVariant, err := nn.ParseModelVariant(args.variant)
	if err != nil {
		return err
	}
	if args.floor < 0 || args.floor > 1 {
		return fmt.Errorf("Confidence floor must be between 0 and 1 (%v)", args.floor)
	}
	maxVideoBytes, err := kibi.ParseBytes(args.maxSize)
	if err != nil {
		return err
	}
	f, err := os.Open(args.input)
	if err != nil {
		return err
	}
	defer f.Close()

	temp, err := tempfiles.NewTempFiles(filepath.Join(os.TempDir(), fmt.Sprintf("vidinspect-predict-%v", os.Getpid())))
	if err != nil {
		return err
	}
	defer os.RemoveAll(temp.Root)

	setup := nnload.ModelSetup{
		URL:     args.url,
		Variant: modelVariant,
		Timeout: time.Minute,
	}
	model := nnload.NewShared(func(ctx context.Context) (nn.ObjectDetector, error) {
		return nnload.LoadModel(ctx, logger, setup)
	})
	defer model.Close()

	pipeline := &inspect.Pipeline{
		Log:     logger,
		Decoder: &videox.FFmpegDecoder{},
		Temp:    temp,
		Models:  model,
		Variant: modelVariant,
		Encoder: inspect.JPEGEncoder{Quality: args.quality},
		Options: inspect.Options{
			ConfidenceFloor: args.floor,
			MaxVideoBytes:   maxVideoBytes,
		},
	}

	resp, err := pipeline.Run(context.Background(), f, args.output != "")
	if err != nil {
		return err
	}

	if args.output != "" {
		jpg, err := base64.StdEncoding.DecodeString(resp.AnnotatedFrame)
		if err != nil {
			return err
		}
		if err := os.WriteFile(args.output, jpg, 0664); err != nil {
			return err
		}
		resp.AnnotatedFrame = ""
	}

	encoder := json.NewEncoder(os.Stdout)
	encoder.SetIndent("", "  ")
	if err := encoder.Encode(resp); err != nil {
		return err
	}
	for _, d := range resp.Detections {
		logger.Infof("%v", d)
	}
	return nil
}
