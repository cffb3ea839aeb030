package httpclient

import (
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"strings"

	apperrors "github.com/utafrali/cartstate/pkg/errors"
)

// errorEnvelope is the {"error":{"code","message"}} body our own services emit.
type errorEnvelope struct {
	Error *struct {
		Code    string `json:"code"`
		Message string `json:"message"`
	} `json:"error"`
}

// ParseResponseError consumes and closes the body of a non-2xx response and
// translates it into an error. resource and id name what was being fetched.
func ParseResponseError(resp *http.Response, resource, id string) error {
	defer func() { _ = resp.Body.Close() }()

	body, err := io.ReadAll(io.LimitReader(resp.Body, 64<<10))
	if err != nil {
		return fmt.Errorf("%s %s: status %d (read body: %w)", resource, id, resp.StatusCode, err)
	}

	message := strings.TrimSpace(string(body))
	var env errorEnvelope
	if json.Unmarshal(body, &env) == nil && env.Error != nil {
		message = env.Error.Message
	}

	switch {
	case resp.StatusCode == http.StatusNotFound:
		return apperrors.NotFound(resource, id)
	case resp.StatusCode == http.StatusServiceUnavailable:
		return apperrors.ServiceUnavailable(fmt.Sprintf("%s: %s", resource, message))
	case resp.StatusCode >= 400 && resp.StatusCode < 500:
		return apperrors.InvalidInput(fmt.Sprintf("%s %s: %s", resource, id, message))
	default:
		return fmt.Errorf("%s %s: status %d: %s", resource, id, resp.StatusCode, message)
	}
}
