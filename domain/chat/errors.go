package chat

import (
	"errors"
	"fmt"
)

// ErrResponseParsing covers every transport-level failure: the response is not
// a well-formed HTTP response, or the line stream fails mid-read. Native
// transport errors are wrapped onto this sentinel instead of leaking.
var ErrResponseParsing = errors.New("response parsing failed")

// RequestFailedError reports an HTTP status outside [200,299]. The response
// body is not consumed in this case.
type RequestFailedError struct {
	StatusCode int
	Status     string
}

func (e *RequestFailedError) Error() string {
	if e.Status != "" {
		return fmt.Sprintf("request failed with status %d: %s", e.StatusCode, e.Status)
	}
	return fmt.Sprintf("request failed with status %d", e.StatusCode)
}

// StatusOK reports whether code is in the success range accepted by the
// streaming client.
func StatusOK(code int) bool {
	return code >= 200 && code <= 299
}
