package httpclient

import (
	"encoding/json"
	"fmt"
	"io"
	"net/http"

	apperrors "github.com/commercekit/cart-service/pkg/errors"
)

type errorEnvelope struct {
	Error struct {
		Code    string `json:"code"`
		Message string `json:"message"`
	} `json:"error"`
}

// ParseResponseError converts a non-2xx downstream response into an AppError.
// The body is consumed but not closed.
func ParseResponseError(resp *http.Response) error {
	body, _ := io.ReadAll(io.LimitReader(resp.Body, 4096))

	var env errorEnvelope
	msg := ""
	if err := json.Unmarshal(body, &env); err == nil && env.Error.Message != "" {
		msg = env.Error.Message
	}
	if msg == "" {
		msg = fmt.Sprintf("downstream returned status %d", resp.StatusCode)
	}

	return mapDownstreamError(resp.StatusCode, msg)
}

func mapDownstreamError(status int, msg string) error {
	switch status {
	case http.StatusNotFound:
		return &apperrors.AppError{
			Code:    "NOT_FOUND",
			Message: msg,
			Status:  http.StatusNotFound,
			Err:     apperrors.ErrNotFound,
		}
	case http.StatusBadRequest, http.StatusUnprocessableEntity:
		return apperrors.InvalidInput(msg)
	case http.StatusConflict:
		return apperrors.Conflict(msg)
	case http.StatusUnauthorized, http.StatusForbidden:
		return apperrors.Unauthorized(msg)
	case http.StatusServiceUnavailable, http.StatusBadGateway, http.StatusGatewayTimeout:
		return apperrors.ServiceUnavailable(msg)
	default:
		return &apperrors.AppError{
			Code:    "DOWNSTREAM_ERROR",
			Message: msg,
			Status:  status,
		}
	}
}

// IsClientError reports whether the status is in the 4xx range.
func IsClientError(status int) bool {
	return status >= 400 && status < 500
}
