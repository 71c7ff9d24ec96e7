package server

import (
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"net/http"

	"github.com/entrhq/pagewalker/pkg/browser"
)

const maxBodyBytes = 1 << 20

// respondJSON writes payload with status 200.
func respondJSON(w http.ResponseWriter, payload any) {
	w.Header().Set("Content-Type", "application/json")
	w.Header().Set("Cache-Control", "no-store")
	enc := json.NewEncoder(w)
	enc.SetEscapeHTML(false)
	_ = enc.Encode(payload)
}

// respondError writes {"error": message}. The message is the only
// discriminator callers get; the status code follows statusFor.
func respondError(w http.ResponseWriter, status int, err error) {
	w.Header().Set("Content-Type", "application/json")
	w.Header().Set("Cache-Control", "no-store")
	w.WriteHeader(status)
	enc := json.NewEncoder(w)
	enc.SetEscapeHTML(false)
	_ = enc.Encode(struct {
		Error string `json:"error"`
	}{Error: err.Error()})
}

// statusFor maps the browser error taxonomy onto HTTP status codes.
func statusFor(err error) int {
	switch {
	case errors.Is(err, browser.ErrNoActiveSession):
		return http.StatusConflict
	case errors.Is(err, browser.ErrIndexOutOfRange),
		errors.Is(err, browser.ErrStaleSnapshot),
		errors.Is(err, errBadRequest):
		return http.StatusBadRequest
	case errors.Is(err, browser.ErrNotFound):
		return http.StatusNotFound
	default:
		return http.StatusInternalServerError
	}
}

var errBadRequest = errors.New("bad request")

// decodeJSONBody reads one JSON object into dst. An empty body is accepted
// when allowEmpty is set.
func decodeJSONBody(w http.ResponseWriter, r *http.Request, dst any, allowEmpty bool) error {
	if r.Body == nil {
		if allowEmpty {
			return nil
		}
		return fmt.Errorf("%w: request body required", errBadRequest)
	}
	r.Body = http.MaxBytesReader(w, r.Body, maxBodyBytes)

	if err := json.NewDecoder(r.Body).Decode(dst); err != nil {
		if allowEmpty && errors.Is(err, io.EOF) {
			return nil
		}
		var maxErr *http.MaxBytesError
		if errors.As(err, &maxErr) {
			return fmt.Errorf("%w: request body too large (max %d bytes)", errBadRequest, maxBodyBytes)
		}
		return fmt.Errorf("%w: invalid JSON body: %v", errBadRequest, err)
	}
	return nil
}

func required(field, value string) error {
	if value == "" {
		return fmt.Errorf("%w: %s is required", errBadRequest, field)
	}
	return nil
}
