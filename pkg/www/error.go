package www

import (
	"fmt"
	"io"
	"net/http"
	"strings"
)

// HTTPError can be panic'ed inside a handler that runs under RunProtected,
// which turns it into a JSON error response with the given status code.
type HTTPError struct {
	Code    int
	Message string
}

func (e HTTPError) Error() string {
	return fmt.Sprintf("%v %v", e.Code, e.Message)
}

// PanicBadRequestf panics with a 400 Bad Request.
func PanicBadRequestf(format string, args ...any) {
	panic(BadRequestf(format, args...))
}

func BadRequestf(format string, args ...any) HTTPError {
	return HTTPError{http.StatusBadRequest, fmt.Sprintf(format, args...)}
}

// PanicServerErrorf panics with a 500 Internal Server Error
func PanicServerErrorf(format string, args ...any) {
	panic(ServerErrorf(format, args...))
}

func ServerErrorf(format string, args ...any) HTTPError {
	return HTTPError{http.StatusInternalServerError, fmt.Sprintf(format, args...)}
}

// Upper limit on the amount of response body that FailedRequestSummary includes
const maxSummaryBody = 100

// FailedRequestSummary describes a non-200 response, for logs and error messages.
// It consumes and closes the response body.
func FailedRequestSummary(resp *http.Response) string {
	defer resp.Body.Close()
	body, _ := io.ReadAll(io.LimitReader(resp.Body, maxSummaryBody+1))
	txt := strings.TrimRight(string(body), "\n")
	if len(txt) > maxSummaryBody {
		txt = txt[:maxSummaryBody] + "..."
	}
	if txt == "" {
		return resp.Status
	}
	return resp.Status + "; " + txt
}
