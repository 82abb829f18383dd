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

// Package csierr carries the driver's domain errors: a single Abort type
// with an explicit gRPC code, plus the sentinel errors every component
// (volume builders, controller, node) raises instead of reaching for
// google.golang.org/grpc/status directly. Abort implements GRPCStatus,
// so returning one straight from a handler already produces the right
// wire-level status; no interceptor needs to convert it.
package csierr

import (
	"errors"
	"fmt"

	"google.golang.org/grpc/codes"
	"google.golang.org/grpc/status"
)

// Abort is a domain error carrying the gRPC status code the dispatcher
// should return.
type Abort struct {
	Code    codes.Code
	Message string
}

func (a *Abort) Error() string { return a.Message }

// GRPCStatus satisfies the interface google.golang.org/grpc/status.FromError
// checks for, so an *Abort returned straight from a handler reaches the
// wire as its own Code instead of being coerced to codes.Unknown.
func (a *Abort) GRPCStatus() *status.Status {
	return status.New(a.Code, a.Message)
}

// New builds an *Abort with a formatted message.
func New(code codes.Code, format string, args ...interface{}) error {
	return &Abort{Code: code, Message: fmt.Sprintf(format, args...)}
}

// MissingParameter reports a required StorageClass/secret parameter that
// was not supplied.
func MissingParameter(field string) error {
	return New(codes.InvalidArgument, "missing required parameter %q", field)
}

// NotFound reports that volume_id/snapshot_id does not resolve to a live
// resource.
func NotFound(format string, args ...interface{}) error {
	return New(codes.NotFound, format, args...)
}

// AlreadyExists reports a conflicting resource at the same name/path with
// different attributes.
func AlreadyExists(format string, args ...interface{}) error {
	return New(codes.AlreadyExists, format, args...)
}

// InvalidArgument reports a malformed or unsupported request field.
func InvalidArgument(format string, args ...interface{}) error {
	return New(codes.InvalidArgument, format, args...)
}

// Aborted reports a retryable conflict, typically a concurrent deletion
// race detected via ENOENT.
func Aborted(format string, args ...interface{}) error {
	return New(codes.Aborted, format, args...)
}

// OutOfRange reports a VMS-rejected capacity change.
func OutOfRange(format string, args ...interface{}) error {
	return New(codes.OutOfRange, format, args...)
}

// FailedPrecondition reports that the driver cannot serve the request in
// its current state (e.g. Probe unable to reach the VMS).
func FailedPrecondition(format string, args ...interface{}) error {
	return New(codes.FailedPrecondition, format, args...)
}

// Unknown wraps an unexpected error, the dispatcher's fallback mapping.
func Unknown(format string, args ...interface{}) error {
	return New(codes.Unknown, format, args...)
}

// AsAbort unwraps err to *Abort if it is (or wraps) one.
func AsAbort(err error) (*Abort, bool) {
	var a *Abort
	if errors.As(err, &a) {
		return a, true
	}

	return nil, false
}
