package server

import (
	"context"
	"errors"
	"io"
	"net/http"

	"github.com/cyclopcam/vidinspect/pkg/inspect"
	"github.com/cyclopcam/vidinspect/pkg/www"
	"github.com/google/uuid"
	"github.com/julienschmidt/httprouter"
)

// Allowance for multipart headers and small form fields that accompany the video
const multipartOverhead = 1024 * 1024

// httpDetectVideo inspects the first frame of the video uploaded in the multipart field "file".
// ?annotate=1 or ?annotate=0 overrides the configured default for including the annotated frame.
func (s *Server) httpDetectVideo(w http.ResponseWriter, r *http.Request, params httprouter.Params) {
	requestID := uuid.NewString()[:8]
	includeFrame := s.pipeline.Options.IncludeAnnotatedFrame
	if v, ok := www.QueryBool(r, "annotate"); ok {
		includeFrame = v
	} else if www.QueryValue(r, "annotate") != "" {
		www.PanicBadRequestf("Invalid value for 'annotate' (%v). Use 1 or 0", www.QueryValue(r, "annotate"))
	}
	r.Body = http.MaxBytesReader(w, r.Body, s.Config.MaxUploadBytes()+multipartOverhead)

	ctx, cancel := context.WithTimeout(r.Context(), s.Config.RequestTimeout())
	defer cancel()

	var resp *inspect.DetectionResponse
	video, filename, err := findFilePart(r)
	if err == nil {
		s.Log.Infof("Request %v: inspecting '%v'", requestID, filename)
		resp, err = s.pipeline.Run(ctx, video, includeFrame)
	}
	if err != nil {
		kind := inspect.KindOf(err)
		var tooLarge *http.MaxBytesError
		if errors.As(err, &tooLarge) {
			kind = inspect.KindExtraction
		}
		s.Metrics.observeFailure(kind)
		if kind.IsClientError() {
			s.Log.Infof("Request %v failed (%v): %v", requestID, kind, err)
		} else {
			s.Log.Errorf("Request %v failed (%v): %v", requestID, kind, err)
		}
		www.SendError(w, err.Error(), kind.HTTPStatus())
		return
	}

	s.Metrics.observeSuccess(resp)
	s.Log.Infof("Request %v: %v (%.3f seconds)", requestID, resp.Summary, resp.ProcessingTimeSeconds)
	www.CacheNever(w)
	www.SendJSON(w, resp)
}

// findFilePart returns the contents of the "file" field of a multipart upload, without buffering it.
// Parts before "file" are skipped. Returns inspect.ErrMissingInput if there is no such part.
func findFilePart(r *http.Request) (io.Reader, string, error) {
	mr, err := r.MultipartReader()
	if err != nil {
		return nil, "", inspect.ErrMissingInput
	}
	for {
		part, err := mr.NextPart()
		if err == io.EOF {
			return nil, "", inspect.ErrMissingInput
		} else if err != nil {
			var tooLarge *http.MaxBytesError
			if errors.As(err, &tooLarge) {
				return nil, "", err
			}
			return nil, "", &inspect.Error{Kind: inspect.KindMissingInput, Err: err}
		}
		if part.FormName() == "file" {
			return part, part.FileName(), nil
		}
		part.Close()
	}
}
