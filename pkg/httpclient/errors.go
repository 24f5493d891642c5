package httpclient

import (
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"strings"

	apperrors "github.com/good12834/shoestore/pkg/errors"
)

// maxErrorBody bounds how much of an error response is read.
const maxErrorBody = 1 << 20

// errorBody accepts the error shapes returned by the storefront API:
// {"error":{"code","message"}}, {"error":"..."} and {"message":"..."}.
type errorBody struct {
	Error   json.RawMessage `json:"error"`
	Message string          `json:"message"`
}

type structuredError struct {
	Code    string `json:"code"`
	Message string `json:"message"`
}

// ParseResponseError reads the body of a non-2xx response and translates it
// into an AppError keyed on the status code. The body is consumed and closed.
func ParseResponseError(resp *http.Response, serviceName string) error {
	defer func() { _ = resp.Body.Close() }()

	raw, err := io.ReadAll(io.LimitReader(resp.Body, maxErrorBody))
	if err != nil {
		return fmt.Errorf("%s returned status %d (failed to read body: %w)", serviceName, resp.StatusCode, err)
	}

	code, message := decodeErrorBody(raw)
	if message == "" {
		message = http.StatusText(resp.StatusCode)
	}
	return mapStatus(resp.StatusCode, code, message, serviceName)
}

func decodeErrorBody(raw []byte) (code, message string) {
	var body errorBody
	if json.Unmarshal(raw, &body) != nil {
		return "", strings.TrimSpace(string(raw))
	}
	if len(body.Error) > 0 {
		var se structuredError
		if json.Unmarshal(body.Error, &se) == nil && (se.Code != "" || se.Message != "") {
			return se.Code, se.Message
		}
		var s string
		if json.Unmarshal(body.Error, &s) == nil && s != "" {
			return "", s
		}
	}
	return "", body.Message
}

func mapStatus(status int, code, message, serviceName string) error {
	qualified := fmt.Sprintf("%s: %s", serviceName, message)

	switch {
	case status == http.StatusNotFound:
		return apperrors.NotFound(serviceName, message)
	case status == http.StatusBadRequest, status == http.StatusUnprocessableEntity:
		return apperrors.InvalidInput(qualified)
	case status == http.StatusConflict:
		return apperrors.Conflict(qualified)
	case status == http.StatusUnauthorized:
		return apperrors.Unauthorized(qualified)
	case status == http.StatusForbidden:
		return apperrors.Forbidden(qualified)
	case status == http.StatusServiceUnavailable:
		return &apperrors.AppError{
			Code:    codeOr(code, "SERVICE_UNAVAILABLE"),
			Message: qualified,
			Status:  http.StatusServiceUnavailable,
			Err:     apperrors.ErrServiceUnavail,
		}
	case status >= 500:
		return fmt.Errorf("%s server error (%d/%s): %s", serviceName, status, codeOr(code, "UPSTREAM_ERROR"), message)
	default:
		return &apperrors.AppError{
			Code:    codeOr(code, "UNEXPECTED_STATUS"),
			Message: qualified,
			Status:  status,
		}
	}
}

func codeOr(code, fallback string) string {
	if code == "" {
		return fallback
	}
	return code
}

// IsSuccess reports whether status is 2xx.
func IsSuccess(status int) bool {
	return status >= 200 && status < 300
}

// IsClientError returns true if the HTTP status code is a 4xx client error.
func IsClientError(status int) bool {
	return status >= 400 && status < 500
}
