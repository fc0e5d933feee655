package exedra

import (
	"encoding/json"
	"fmt"
)

// HTTPError carries the vendor's response for a failed call. Detail holds the
// parsed JSON body when the vendor returned one.
type HTTPError struct {
	Op         string
	StatusCode int
	Body       string
	Detail     map[string]any
}

func (err *HTTPError) Error() string {
	if err.StatusCode == 0 {
		return fmt.Sprintf("exedra %s: %s", err.Op, err.Body)
	}
	return fmt.Sprintf("exedra %s: status %d: %s", err.Op, err.StatusCode, err.Body)
}

func newHTTPError(op string, statusCode int, body []byte) *HTTPError {
	httpErr := &HTTPError{Op: op, StatusCode: statusCode, Body: string(body)}
	var detail map[string]any
	if json.Unmarshal(body, &detail) == nil {
		httpErr.Detail = detail
	}
	return httpErr
}

func newTransportError(op string, err error) *HTTPError {
	return &HTTPError{Op: op, Body: err.Error()}
}
