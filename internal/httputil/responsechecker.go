package httputil

import (
	"fmt"
	"io"
	"net/http"

	"github.com/driversift/driversift"
)

// CheckResponse takes a http.Response and a variadic of ints representing
// acceptable http status codes. The error returned is of kind ErrTransient
// and will attempt to include some content from the server's response.
func CheckResponse(resp *http.Response, acceptableCodes ...int) error {
	acceptable := false
	for _, code := range acceptableCodes {
		if resp.StatusCode == code {
			acceptable = true
			break
		}
	}
	if !acceptable {
		var msg string
		limitBody, err := io.ReadAll(io.LimitReader(resp.Body, 256))
		if err == nil && len(limitBody) != 0 {
			msg = fmt.Sprintf("unexpected status code: %s (body starts: %q)", resp.Status, limitBody)
		} else {
			msg = fmt.Sprintf("unexpected status code: %s", resp.Status)
		}
		return &driversift.Error{
			Kind:    driversift.ErrTransient,
			Message: msg,
		}
	}
	return nil
}
