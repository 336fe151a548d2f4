// Copyright (c) Abstract Machines
// SPDX-License-Identifier: Apache-2.0

package management

import (
	"errors"
	"fmt"
	"net/http"
)

var (
	ErrNotFound     = errors.New("resource not found")
	ErrNoEndpoint   = errors.New("no management endpoint configured")
	ErrUnauthorized = errors.New("management API rejected the credentials")
)

// StatusError is a non-2xx response of the management API.
type StatusError struct {
	Method string
	Path   string
	Code   int
	Reason string
}

func (e *StatusError) Error() string {
	if e.Reason != "" {
		return fmt.Sprintf("%s %s: %d %s: %s", e.Method, e.Path, e.Code, http.StatusText(e.Code), e.Reason)
	}
	return fmt.Sprintf("%s %s: %d %s", e.Method, e.Path, e.Code, http.StatusText(e.Code))
}

// Unwrap maps well known statuses to sentinel errors.
func (e *StatusError) Unwrap() error {
	switch e.Code {
	case http.StatusNotFound:
		return ErrNotFound
	case http.StatusUnauthorized:
		return ErrUnauthorized
	default:
		return nil
	}
}

// clientError reports whether err is a request the server refused, which says
// nothing about the health of the endpoint.
func clientError(err error) bool {
	var se *StatusError
	return errors.As(err, &se) && se.Code >= 400 && se.Code < 500
}
