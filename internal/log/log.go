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

// Package log provides the driver's structured logging facade: a thin
// layer of klog verbosity tiers plus request correlation, shared by the
// dispatcher and every component it wraps.
package log

import (
	"context"
	"fmt"

	"k8s.io/klog/v2"
)

// Verbosity tiers used throughout the driver. The dispatcher logs most
// RPCs at Default and the chatty, high-frequency ones (Probe,
// NodeGetCapabilities) at Debug.
const (
	Default klog.Level = iota + 1
	Useful
	Extended
	Debug
	Trace
)

type contextKey string

// CtxKey carries the monotonic per-RPC sequence id assigned by the
// dispatcher's contextIDInjector.
var CtxKey = contextKey("ID")

// ReqID carries the request's primary identifier (volume id, name,
// snapshot id...) once the dispatcher has extracted it from the request.
var ReqID = contextKey("Req-ID")

// Log prefixes format with whatever correlation data ctx carries, so
// every line emitted during a single RPC can be grepped together.
func Log(ctx context.Context, format string) string {
	id := ctx.Value(CtxKey)
	if id == nil {
		return format
	}
	a := fmt.Sprintf("ID: %v ", id)
	reqID := ctx.Value(ReqID)
	if reqID == nil {
		return a + format
	}
	a += fmt.Sprintf("Req-ID: %v ", reqID)

	return a + format
}

// FatalLogMsg logs a fatal error without request context and exits.
func FatalLogMsg(message string, args ...interface{}) {
	klog.FatalDepth(1, fmt.Sprintf(message, args...))
}

// ErrorLogMsg logs an error without request context.
func ErrorLogMsg(message string, args ...interface{}) {
	klog.ErrorDepth(1, fmt.Sprintf(message, args...))
}

// ErrorLog logs an error, prefixed with the request's correlation data.
func ErrorLog(ctx context.Context, message string, args ...interface{}) {
	klog.ErrorDepth(1, fmt.Sprintf(Log(ctx, message), args...))
}

// WarningLogMsg logs a warning without request context.
func WarningLogMsg(message string, args ...interface{}) {
	klog.WarningDepth(1, fmt.Sprintf(message, args...))
}

// WarningLog logs a warning, prefixed with the request's correlation data.
func WarningLog(ctx context.Context, message string, args ...interface{}) {
	klog.WarningDepth(1, fmt.Sprintf(Log(ctx, message), args...))
}

// DefaultLogMsg logs at the Default tier without request context.
func DefaultLogMsg(message string, args ...interface{}) {
	if klog.V(Default).Enabled() {
		klog.InfoDepth(1, fmt.Sprintf(message, args...))
	}
}

// DefaultLog logs at the Default tier, prefixed with correlation data.
func DefaultLog(ctx context.Context, message string, args ...interface{}) {
	if klog.V(Default).Enabled() {
		klog.InfoDepth(1, fmt.Sprintf(Log(ctx, message), args...))
	}
}

// UsefulLog logs at the Useful tier, prefixed with correlation data.
func UsefulLog(ctx context.Context, message string, args ...interface{}) {
	if klog.V(Useful).Enabled() {
		klog.InfoDepth(1, fmt.Sprintf(Log(ctx, message), args...))
	}
}

// ExtendedLog logs at the Extended tier, prefixed with correlation data.
func ExtendedLog(ctx context.Context, message string, args ...interface{}) {
	if klog.V(Extended).Enabled() {
		klog.InfoDepth(1, fmt.Sprintf(Log(ctx, message), args...))
	}
}

// DebugLogMsg logs at the Debug tier without request context.
func DebugLogMsg(message string, args ...interface{}) {
	if klog.V(Debug).Enabled() {
		klog.InfoDepth(1, fmt.Sprintf(message, args...))
	}
}

// DebugLog logs at the Debug tier, prefixed with correlation data.
func DebugLog(ctx context.Context, message string, args ...interface{}) {
	if klog.V(Debug).Enabled() {
		klog.InfoDepth(1, fmt.Sprintf(Log(ctx, message), args...))
	}
}

// TraceLog logs at the Trace tier, prefixed with correlation data. Used
// for full request/response dumps.
func TraceLog(ctx context.Context, message string, args ...interface{}) {
	if klog.V(Trace).Enabled() {
		klog.InfoDepth(1, fmt.Sprintf(Log(ctx, message), args...))
	}
}
