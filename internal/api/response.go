package api

import (
	"encoding/json"
	"net/http"

	"github.com/openlux/lumen-hub/internal/apperrors"
)

// Problem is an RFC 7807 problem document. Every error response on the wire
// uses this shape.
type Problem struct {
	Type     string         `json:"type"`
	Title    string         `json:"title"`
	Status   int            `json:"status"`
	Detail   string         `json:"detail,omitempty"`
	Instance string         `json:"instance,omitempty"`
	Code     string         `json:"code,omitempty"`
	Details  map[string]any `json:"details,omitempty"`

	// RequestID lets a caller quote the failing request when reporting it.
	RequestID string `json:"request_id,omitempty"`
}

// ListResponse wraps collection endpoints.
type ListResponse struct {
	Object  string `json:"object"` // always "list"
	Data    any    `json:"data"`
	HasMore bool   `json:"has_more"`
	URL     string `json:"url"`
}

// WriteJSON sends a JSON response with the given status.
func WriteJSON(w http.ResponseWriter, status int, payload any) error {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	return json.NewEncoder(w).Encode(payload)
}

// WriteError serializes an error as an application/problem+json document.
func WriteError(w http.ResponseWriter, r *http.Request, err error) {
	appErr := apperrors.EnsureAppError(err)

	problem := Problem{
		Type:    "https://openlux.io/problems/" + string(appErr.Code),
		Title:   http.StatusText(appErr.StatusCode),
		Status:  appErr.StatusCode,
		Detail:  appErr.Message,
		Code:    string(appErr.Code),
		Details: appErr.Details,
	}
	if r != nil {
		problem.Instance = r.URL.Path
		problem.RequestID = GetRequestID(r)
	}

	w.Header().Set("Content-Type", "application/problem+json")
	w.WriteHeader(appErr.StatusCode)
	_ = json.NewEncoder(w).Encode(problem)
}

// WriteList writes a collection response.
func WriteList(w http.ResponseWriter, url string, data any, hasMore bool) error {
	return WriteJSON(w, http.StatusOK, ListResponse{
		Object:  "list",
		Data:    data,
		HasMore: hasMore,
		URL:     url,
	})
}

// WriteResource writes a single resource directly.
func WriteResource(w http.ResponseWriter, status int, resource any) error {
	return WriteJSON(w, status, resource)
}
