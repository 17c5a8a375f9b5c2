package www

import (
	"encoding/json"
	"net/http"
)

// FetchJSON performs the request, and decodes the JSON response into output.
// Transport errors and non-200 responses are returned as errors, including a summary of the response body.
// If client is nil, http.DefaultClient is used.
func FetchJSON(client *http.Client, req *http.Request, output any) error {
	if client == nil {
		client = http.DefaultClient
	}
	resp, err := client.Do(req)
	if err != nil {
		return err
	}
	if resp.StatusCode != http.StatusOK {
		return &StatusError{Code: resp.StatusCode, Summary: FailedRequestSummary(resp)}
	}
	defer resp.Body.Close()
	return json.NewDecoder(resp.Body).Decode(output)
}

// Do performs the request, and returns an error on a transport failure or a non-200 response.
func Do(client *http.Client, req *http.Request) (*http.Response, error) {
	if client == nil {
		client = http.DefaultClient
	}
	resp, err := client.Do(req)
	if err != nil {
		return nil, err
	}
	if resp.StatusCode != http.StatusOK {
		return nil, &StatusError{Code: resp.StatusCode, Summary: FailedRequestSummary(resp)}
	}
	return resp, nil
}

// StatusError is returned by FetchJSON and Do when the server responds with a non-200 status code
type StatusError struct {
	Code    int
	Summary string
}

func (e *StatusError) Error() string {
	return "HTTP error " + e.Summary
}
