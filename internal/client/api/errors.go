package api

import (
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"net/http"
	"strings"
)

var (
	ErrUnavailable  = errors.New("server unavailable")
	ErrUnauthorized = errors.New("unauthorized")
	ErrForbidden    = errors.New("forbidden")
	ErrNotFound     = errors.New("not found")
	ErrConflict     = errors.New("conflict")
	ErrRateLimited  = errors.New("rate limited")
	ErrBadResponse  = errors.New("unexpected response")
)

// APIError is a protocol-level failure reported by the service.
type APIError struct {
	Status int    `json:"-"`
	Code   string `json:"code,omitempty"`
	Detail string `json:"detail,omitempty"`
}

func (e *APIError) Error() string {
	switch {
	case e.Code != "" && e.Detail != "":
		return fmt.Sprintf("api error %d %s: %s", e.Status, e.Code, e.Detail)
	case e.Detail != "":
		return fmt.Sprintf("api error %d: %s", e.Status, e.Detail)
	default:
		return fmt.Sprintf("api error %d: %s", e.Status, http.StatusText(e.Status))
	}
}

func (e *APIError) Is(target error) bool {
	switch target {
	case ErrUnauthorized:
		return e.Status == http.StatusUnauthorized
	case ErrForbidden:
		return e.Status == http.StatusForbidden
	case ErrNotFound:
		return e.Status == http.StatusNotFound
	case ErrConflict:
		return e.Status == http.StatusConflict
	case ErrRateLimited:
		return e.Status == http.StatusTooManyRequests
	}
	return false
}

// IsProtocolError reports whether err came back from the service, as opposed
// to a transport failure.
func IsProtocolError(err error) bool {
	var apiErr *APIError
	return errors.As(err, &apiErr)
}

// errorFromResponse builds an *APIError from a non-2xx response and closes
// its body. Non-JSON bodies end up in Detail.
func errorFromResponse(resp *http.Response) error {
	defer resp.Body.Close()

	body, _ := io.ReadAll(io.LimitReader(resp.Body, 64<<10))
	apiErr := &APIError{Status: resp.StatusCode}
	if err := json.Unmarshal(body, apiErr); err != nil {
		apiErr.Code, apiErr.Detail = "", strings.TrimSpace(string(body))
	}
	return apiErr
}

func unavailable(err error) error {
	return fmt.Errorf("%w: %w", ErrUnavailable, err)
}
