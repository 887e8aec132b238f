package httputil

import (
	"encoding/json"
	"net/http"
)

// ErrorBody is the JSON shape of every error response.
type ErrorBody struct {
	Error string `json:"error"`
}

// WriteJSON writes data as JSON with the given status code. The returned
// error only reports encoding or write failures; the status is already sent.
func WriteJSON(w http.ResponseWriter, status int, data any) error {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	return json.NewEncoder(w).Encode(data)
}

// WriteJSONError writes an ErrorBody with the given status code.
func WriteJSONError(w http.ResponseWriter, status int, msg string) error {
	return WriteJSON(w, status, ErrorBody{Error: msg})
}

// BadRequest writes a 400 Bad Request response with the given message.
func BadRequest(w http.ResponseWriter, msg string) error {
	return WriteJSONError(w, http.StatusBadRequest, msg)
}

// NotFound writes a 404 Not Found response.
func NotFound(w http.ResponseWriter, msg string) error {
	return WriteJSONError(w, http.StatusNotFound, msg)
}

// Unprocessable writes a 422 response for input that parsed as a request
// but could not be analysed.
func Unprocessable(w http.ResponseWriter, msg string) error {
	return WriteJSONError(w, http.StatusUnprocessableEntity, msg)
}

// InternalServerError writes a 500 Internal Server Error response.
func InternalServerError(w http.ResponseWriter, msg string) error {
	return WriteJSONError(w, http.StatusInternalServerError, msg)
}

// DecodeError reads an ErrorBody from a failed response, falling back to
// the status text when the body is not one.
func DecodeError(resp *http.Response) string {
	var body ErrorBody
	if err := json.NewDecoder(resp.Body).Decode(&body); err != nil || body.Error == "" {
		return http.StatusText(resp.StatusCode)
	}
	return body.Error
}
