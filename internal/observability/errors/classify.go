// Package errors maps errors to low-cardinality class names for metric tags and notifications.
package errors

import (
	"context"
	goerrors "errors"
	"net"
	"reflect"
	"strings"
)

// Well-known classes.
const (
	ClassCanceled          = "canceled"
	ClassTimeout           = "timeout"
	ClassProviderRateLimit = "provider_rate_limited"
	ClassProviderServer    = "provider_server"
	ClassProviderClient    = "provider_client"
	ClassNetwork           = "network"
	ClassUnknown           = "unknown"
)

type httpStatusCoder interface {
	HTTPStatusCode() int
}

type classifier interface {
	ErrorClass() string
}

// Classify returns a normalized error class. Errors that name their own class win,
// then HTTP status errors, context and network errors; everything else is the
// snake_case type name of the innermost wrapped error.
func Classify(err error) string {
	if err == nil {
		return ""
	}

	var named classifier
	if goerrors.As(err, &named) {
		if c := named.ErrorClass(); c != "" {
			return c
		}
	}

	var coder httpStatusCoder
	if goerrors.As(err, &coder) {
		switch code := coder.HTTPStatusCode(); {
		case code == 429:
			return ClassProviderRateLimit
		case code >= 500:
			return ClassProviderServer
		case code >= 400:
			return ClassProviderClient
		}
	}

	switch {
	case goerrors.Is(err, context.Canceled):
		return ClassCanceled
	case goerrors.Is(err, context.DeadlineExceeded):
		return ClassTimeout
	}

	var netErr net.Error
	if goerrors.As(err, &netErr) {
		if netErr.Timeout() {
			return ClassTimeout
		}
		return ClassNetwork
	}

	for {
		unwrapped := goerrors.Unwrap(err)
		if unwrapped == nil {
			break
		}
		err = unwrapped
	}

	t := reflect.TypeOf(err)
	for t != nil && t.Kind() == reflect.Pointer {
		t = t.Elem()
	}
	if t == nil {
		return ClassUnknown
	}
	name := strings.ReplaceAll(strings.ToLower(t.String()), ".", "_")
	if name == "" {
		return ClassUnknown
	}
	return name
}
