/*
Copyright 2024 The Vast CSI Driver Authors.
Licensed under the Apache License, Version 2.0 (the "License");
you may not use this file except in compliance with the License.
You may obtain a copy of the License at
    http://www.apache.org/licenses/LICENSE-2.0
Unless required by applicable law or agreed to in writing, software
distributed under the License is distributed on an "AS IS" BASIS,
WITHOUT WARRANTIES OR CONDITIONS OF ANY KIND, either express or implied.
See the License for the specific language governing permissions and
limitations under the License.
*/

package vms

import (
	"errors"
	"fmt"
)

// ApiError is raised for HTTP 400 and 503 responses, which the VMS uses
// to report request-level validation failures and transient overload
// rather than a generic outage. Handlers inspect Body/StatusCode to
// decide whether the error is expected (e.g. a duplicate-name 400).
type ApiError struct {
	Method     string
	URL        string
	StatusCode int
	Reason     string
	Body       []byte
}

func (e *ApiError) Error() string {
	first := firstLine(e.Body)

	return fmt.Sprintf("[%s %s] %s, <%s(%d)>", e.Method, e.URL, first, e.Reason, e.StatusCode)
}

func firstLine(body []byte) string {
	for i, b := range body {
		if b == '\n' {
			return string(body[:i])
		}
	}

	return string(body)
}

// HTTPError is raised for any other non-2xx response. The dispatcher
// maps it to an UNKNOWN gRPC status, same as ApiError when callers don't
// specifically unwrap it.
type HTTPError struct {
	Method     string
	URL        string
	StatusCode int
	Reason     string
	Body       []byte
}

func (e *HTTPError) Error() string {
	return fmt.Sprintf("[%s %s] %s, <%s(%d)>", e.Method, e.URL, firstLine(e.Body), e.Reason, e.StatusCode)
}

// ErrNoVIPs is returned when a VIP pool has no members matching the
// requested tenant at query time.
type ErrNoVIPs struct {
	Pool string
}

func (e *ErrNoVIPs) Error() string {
	return fmt.Sprintf("no vips in pool %s", e.Pool)
}

// ErrNotFound marks a lookup that found nothing; callers translate it to
// NOT_FOUND at the gRPC boundary.
var ErrNotFound = errors.New("not found")

// ErrTooMany marks a lookup that unexpectedly matched more than one
// resource (e.g. two quotas with substring-overlapping paths).
var ErrTooMany = errors.New("too many matching resources")
