package runtime

import (
	"context"
	"errors"
	"fmt"
	"net"
	"net/http"
	"net/url"

	"golang.org/x/oauth2"
	"google.golang.org/api/googleapi"

	gc "github.com/joshsymonds/gmailpipe/internal/gmail"
)

// classify wraps a provider error with the matching gmail error kind.
// Errors that fit no kind are returned unchanged.
func classify(err error) error {
	if err == nil {
		return nil
	}
	if kind := kindOf(err); kind != nil {
		return fmt.Errorf("%w: %w", kind, err)
	}
	return err
}

func kindOf(err error) error {
	var apiErr *googleapi.Error
	if errors.As(err, &apiErr) {
		switch {
		case apiErr.Code == http.StatusUnauthorized:
			return gc.ErrUnauthenticated
		case apiErr.Code == http.StatusForbidden:
			if rateLimitReason(apiErr) {
				return gc.ErrRateLimited
			}
			return gc.ErrUnauthenticated
		case apiErr.Code == http.StatusNotFound:
			return gc.ErrNotFound
		case apiErr.Code == http.StatusTooManyRequests:
			return gc.ErrRateLimited
		case apiErr.Code >= http.StatusInternalServerError:
			return gc.ErrUnavailable
		}
		return nil
	}
	var tokenErr *oauth2.RetrieveError
	if errors.As(err, &tokenErr) {
		return gc.ErrUnauthenticated
	}
	// a request cut short by our own cancellation is not a network fault
	if errors.Is(err, context.Canceled) || errors.Is(err, context.DeadlineExceeded) {
		return nil
	}
	var urlErr *url.Error
	var netErr net.Error
	if errors.As(err, &urlErr) || errors.As(err, &netErr) {
		return gc.ErrConnectivity
	}
	return nil
}

func rateLimitReason(apiErr *googleapi.Error) bool {
	for _, item := range apiErr.Errors {
		switch item.Reason {
		case "rateLimitExceeded", "userRateLimitExceeded", "quotaExceeded":
			return true
		}
	}
	return false
}
