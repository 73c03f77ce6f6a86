package gservice

import (
	"context"
	"errors"
	"net"
	"net/http"

	"google.golang.org/api/googleapi"

	"github.com/hal9000y/greetguard/internal/auth"
	"github.com/hal9000y/greetguard/internal/fault"
)

// quotaReasons are 403 reasons Gmail uses for rate limiting.
var quotaReasons = map[string]bool{
	"rateLimitExceeded":     true,
	"userRateLimitExceeded": true,
	"quotaExceeded":         true,
	"dailyLimitExceeded":    true,
}

// Classify maps a Gmail client error onto a fault kind. A nil err stays nil.
func Classify(op string, err error) *fault.Error {
	if err == nil {
		return nil
	}

	var fe *fault.Error
	if errors.As(err, &fe) {
		return fe
	}

	var gerr *googleapi.Error
	var netErr net.Error

	switch {
	case errors.Is(err, auth.ErrTokenNotSet):
		return fault.Wrap(fault.KindPermission, op, err)
	case errors.As(err, &gerr):
		return fault.Wrap(statusKind(gerr), op, err).With("status", gerr.Code)
	case errors.Is(err, context.DeadlineExceeded):
		return fault.Wrap(fault.KindTimeout, op, err)
	case errors.As(err, &netErr):
		if netErr.Timeout() {
			return fault.Wrap(fault.KindTimeout, op, err)
		}
		return fault.Wrap(fault.KindNetwork, op, err)
	default:
		return fault.Wrap(fault.KindInternal, op, err)
	}
}

func statusKind(gerr *googleapi.Error) fault.Kind {
	switch code := gerr.Code; {
	case code == http.StatusTooManyRequests:
		return fault.KindQuota
	case code == http.StatusForbidden:
		for _, item := range gerr.Errors {
			if quotaReasons[item.Reason] {
				return fault.KindQuota
			}
		}
		return fault.KindPermission
	case code == http.StatusUnauthorized:
		return fault.KindPermission
	case code == http.StatusNotFound:
		return fault.KindNotFound
	case code == http.StatusBadGateway, code == http.StatusServiceUnavailable, code == http.StatusGatewayTimeout:
		return fault.KindAPIUnavailable
	case code == http.StatusRequestTimeout:
		return fault.KindTimeout
	case code >= 500:
		return fault.KindInternal
	default:
		return fault.KindValidation
	}
}
